package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider is an inference backend able to complete a prompt.
type Provider interface {
	Name() string
	// IsLocal reports whether the provider runs on this machine.
	IsLocal() bool
	// IsAvailable reports whether the provider can serve a request right now.
	IsAvailable(ctx context.Context) bool
	Profile() Profile
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest is a single prompt sent to a provider.
type CompletionRequest struct {
	System        string
	Prompt        string
	StopSequences []string
	MaxTokens     int
	Temperature   float64
	// JSON asks the provider to constrain its output to a JSON object when it can.
	JSON bool
}

// CompletionResponse is the provider's answer to a CompletionRequest.
type CompletionResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// TokensPerSecond is the output throughput of the completion.
func (r CompletionResponse) TokensPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.OutputTokens) / r.Duration.Seconds()
}

// ModelClass groups models by capability and price.
type ModelClass string

// Model classes known to the factory.
const (
	ClassMini   ModelClass = "mini"
	ClassFlash  ModelClass = "flash"
	ClassHaiku  ModelClass = "haiku"
	ClassSonnet ModelClass = "sonnet"
	ClassLarge  ModelClass = "large"
	ClassLocal  ModelClass = "local"
)

// Profile describes a provider for selection purposes.
type Profile struct {
	Class ModelClass
	// CostTier is 0 for free (local) and grows with price.
	CostTier int
	// StructuredOutput rates how reliably the provider follows a JSON schema, higher is better.
	StructuredOutput int
}

// Preference expresses what a caller optimizes for when asking for a provider.
type Preference int

// Provider preferences.
const (
	FastCheap Preference = iota
	BestQuality
	StructuredOutput
	LocalOnly
	Cheapest
)

func (p Preference) String() string {
	switch p {
	case FastCheap:
		return "FAST_CHEAP"
	case BestQuality:
		return "BEST_QUALITY"
	case StructuredOutput:
		return "STRUCTURED_OUTPUT"
	case LocalOnly:
		return "LOCAL_ONLY"
	case Cheapest:
		return "CHEAPEST"
	default:
		return fmt.Sprintf("PREFERENCE(%d)", int(p))
	}
}

// Preferences lists every preference.
func Preferences() []Preference {
	return []Preference{FastCheap, BestQuality, StructuredOutput, LocalOnly, Cheapest}
}

// ParsePreference converts a preference name (case-insensitive, '-' or '_') into a Preference.
func ParsePreference(name string) (Preference, error) {
	for _, p := range Preferences() {
		if normalizePreference(p.String()) == normalizePreference(name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown provider preference %q", name)
}

func normalizePreference(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}
