package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider completes prompts with the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	cloudBase
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	base, err := newCloudBase("gemini", cfg, geminiDefaultModel, "")
	if err != nil {
		return nil, err
	}
	base.profile = geminiProfile(base.model)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: base.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{cloudBase: base, client: client}, nil
}

func geminiProfile(model string) Profile {
	m := strings.ToLower(model)
	if strings.Contains(m, "flash") {
		return Profile{Class: ClassFlash, CostTier: 1, StructuredOutput: 3}
	}
	return Profile{Class: ClassLarge, CostTier: 3, StructuredOutput: 3}
}

// Complete calls GenerateContent. JSON requests set the response MIME type.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	req = p.defaults(req)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
		StopSequences:   req.StopSequences,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	return p.call(ctx, func(ctx context.Context) (CompletionResponse, error) {
		resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), config)
		if err != nil {
			return CompletionResponse{}, p.mapError(err)
		}

		text := resp.Text()
		if text == "" {
			return CompletionResponse{}, fmt.Errorf("empty response from gemini")
		}
		out := CompletionResponse{Text: text}
		if resp.UsageMetadata != nil {
			out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		return out, nil
	})
}

func (p *GeminiProvider) mapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	resp := &http.Response{StatusCode: apiErr.Code, Header: http.Header{}}
	return statusError(p.name, resp, []byte(apiErr.Status+": "+apiErr.Message), p.health.clock.Now())
}
