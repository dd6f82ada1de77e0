package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openAIDefaultModel   = "gpt-4o-mini"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
)

var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider completes prompts with the OpenAI chat completions API.
type OpenAIProvider struct {
	cloudBase
}

// NewOpenAIProvider creates an OpenAI provider. The model class is derived from the model name.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	base, err := newCloudBase("openai", cfg, openAIDefaultModel, openAIDefaultBaseURL)
	if err != nil {
		return nil, err
	}
	base.profile = openAIProfile(base.model)
	return &OpenAIProvider{cloudBase: base}, nil
}

func openAIProfile(model string) Profile {
	if strings.Contains(strings.ToLower(model), "mini") {
		return Profile{Class: ClassMini, CostTier: 1, StructuredOutput: 3}
	}
	return Profile{Class: ClassLarge, CostTier: 4, StructuredOutput: 3}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Stop           []string              `json:"stop,omitempty"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	req = p.defaults(req)

	body := openAIRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	return p.call(ctx, func(ctx context.Context) (CompletionResponse, error) {
		raw, err := p.postJSON(ctx, p.baseURL+"/chat/completions", body, map[string]string{
			"Authorization": "Bearer " + p.apiKey,
		})
		if err != nil {
			return CompletionResponse{}, err
		}

		var response openAIResponse
		if err := json.Unmarshal(raw, &response); err != nil {
			return CompletionResponse{}, fmt.Errorf("failed to parse response: %w", err)
		}
		if len(response.Choices) == 0 {
			return CompletionResponse{}, fmt.Errorf("no completion choices returned")
		}
		return CompletionResponse{
			Text:         response.Choices[0].Message.Content,
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
		}, nil
	})
}
