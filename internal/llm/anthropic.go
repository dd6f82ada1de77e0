package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

var _ Provider = (*AnthropicProvider)(nil)

// AnthropicProvider completes prompts with the Anthropic messages API.
type AnthropicProvider struct {
	cloudBase
}

// NewAnthropicProvider creates an Anthropic provider. Haiku models are the cheap class,
// everything else is treated as the premium class.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	base, err := newCloudBase("anthropic", cfg, anthropicDefaultModel, anthropicDefaultBaseURL)
	if err != nil {
		return nil, err
	}
	base.profile = anthropicProfile(base.model)
	return &AnthropicProvider{cloudBase: base}, nil
}

func anthropicProfile(model string) Profile {
	if strings.Contains(strings.ToLower(model), "haiku") {
		return Profile{Class: ClassHaiku, CostTier: 2, StructuredOutput: 2}
	}
	return Profile{Class: ClassSonnet, CostTier: 4, StructuredOutput: 2}
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a messages request. JSON mode is requested through the system prompt
// since the API has no response format switch.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	req = p.defaults(req)

	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}
	body := anthropicRequest{
		Model:         p.model,
		System:        system,
		Messages:      []anthropicMessage{{Role: "user", Content: req.Prompt}},
		StopSequences: req.StopSequences,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
	}

	return p.call(ctx, func(ctx context.Context) (CompletionResponse, error) {
		raw, err := p.postJSON(ctx, p.baseURL+"/messages", body, map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicVersion,
		})
		if err != nil {
			return CompletionResponse{}, err
		}

		var response anthropicResponse
		if err := json.Unmarshal(raw, &response); err != nil {
			return CompletionResponse{}, fmt.Errorf("failed to parse response: %w", err)
		}

		var text strings.Builder
		for _, block := range response.Content {
			if block.Type == "" || block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return CompletionResponse{}, fmt.Errorf("no content in response")
		}
		return CompletionResponse{
			Text:         text.String(),
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
		}, nil
	})
}
