package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
)

// Engine runs inference on a locally loaded model. Implementations hold at most one model.
type Engine interface {
	LoadModel(ctx context.Context, path string) error
	IsModelLoaded() bool
	LoadedModel() string
	UnloadModel()
	Complete(ctx context.Context, req EngineRequest) (CompletionResponse, error)
}

// EngineRequest is a raw prompt for an Engine.
type EngineRequest struct {
	Prompt        string
	StopSequences []string
	MaxTokens     int
	Temperature   float64
}

// ModelSource tells the on-device provider which model to run.
type ModelSource interface {
	GetSelectedModel(ctx context.Context) (*model.InstalledModel, error)
}

var _ Provider = (*OnDeviceProvider)(nil)

// OnDeviceProvider serves completions from the selected installed model.
type OnDeviceProvider struct {
	engine Engine
	models ModelSource
	logger *slog.Logger
}

// NewOnDeviceProvider creates a provider backed by engine and the selected model in models.
func NewOnDeviceProvider(engine Engine, models ModelSource, logger *slog.Logger) *OnDeviceProvider {
	return &OnDeviceProvider{
		engine: engine,
		models: models,
		logger: common.LoggerOrDefault(logger).With("provider", "on-device"),
	}
}

func (p *OnDeviceProvider) Name() string  { return "on-device" }
func (p *OnDeviceProvider) IsLocal() bool { return true }

func (p *OnDeviceProvider) Profile() Profile {
	return Profile{Class: ClassLocal, CostTier: 0, StructuredOutput: 1}
}

// IsAvailable is true only when a model is selected, is not corrupted, and the engine has it loaded.
// The model is loaded on demand.
func (p *OnDeviceProvider) IsAvailable(ctx context.Context) bool {
	if err := p.ensureLoaded(ctx); err != nil {
		p.logger.Debug("on-device provider unavailable", "error", err)
		return false
	}
	return true
}

func (p *OnDeviceProvider) ensureLoaded(ctx context.Context) error {
	if p.engine == nil || p.models == nil {
		return &ProviderUnavailableError{Provider: p.Name(), Reason: "no inference engine configured"}
	}
	selected, err := p.models.GetSelectedModel(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return &ProviderUnavailableError{Provider: p.Name(), Reason: "no model installed"}
		}
		return &ProviderUnavailableError{Provider: p.Name(), Reason: "model lookup failed", Err: err}
	}
	if selected.Status != model.ModelStatusReady {
		return &ProviderUnavailableError{Provider: p.Name(), Reason: fmt.Sprintf("model %s is %s", selected.ID, selected.Status)}
	}
	if p.engine.IsModelLoaded() && p.engine.LoadedModel() == selected.Path {
		return nil
	}
	if err := p.engine.LoadModel(ctx, selected.Path); err != nil {
		return p.engineFault("model failed to load", err)
	}
	p.logger.Info("loaded on-device model", "model", selected.ID)
	return nil
}

// engineFault keeps only the engine's message so callers never see engine error types.
func (p *OnDeviceProvider) engineFault(reason string, err error) *ProviderUnavailableError {
	return &ProviderUnavailableError{Provider: p.Name(), Reason: reason + ": " + err.Error()}
}

// Complete runs the prompt on the loaded model. Engine faults, including panics, are reported
// as ProviderUnavailableError.
func (p *OnDeviceProvider) Complete(ctx context.Context, req CompletionRequest) (resp CompletionResponse, err error) {
	if p.engine == nil || !p.engine.IsModelLoaded() {
		return CompletionResponse{}, &ProviderUnavailableError{Provider: p.Name(), Reason: "no model loaded"}
	}

	defer func() {
		if r := recover(); r != nil {
			resp = CompletionResponse{}
			err = p.engineFault("inference failed", fmt.Errorf("engine panic: %v", r))
		}
	}()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 128
	}
	out, err := p.engine.Complete(ctx, EngineRequest{
		Prompt:        buildLocalPrompt(req),
		StopSequences: req.StopSequences,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return CompletionResponse{}, ctx.Err()
		}
		return CompletionResponse{}, p.engineFault("inference failed", err)
	}
	p.logger.Debug("on-device completion",
		"output_tokens", out.OutputTokens,
		"tokens_per_second", out.TokensPerSecond())
	return out, nil
}

func buildLocalPrompt(req CompletionRequest) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	b.WriteString(req.Prompt)
	if req.JSON {
		b.WriteString("\n\nAnswer with one JSON object only.\n")
	}
	return b.String()
}
