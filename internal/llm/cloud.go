package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-import/internal/common"
)

// Config holds the settings shared by the cloud providers.
type Config struct {
	Clock             common.Clock
	Logger            *slog.Logger
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	MaxRetries        int
	RetryDelay        time.Duration
	Timeout           time.Duration
	QuotaCooldown     time.Duration
	Temperature       float64
	MaxTokens         int
}

// defaultRetryAfter is used when a 429 carries no usable Retry-After header.
const defaultRetryAfter = 30 * time.Second

// cloudBase carries the plumbing common to HTTP-backed providers.
type cloudBase struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	health      *health
	logger      *slog.Logger
	name        string
	apiKey      string
	model       string
	baseURL     string
	profile     Profile
	retry       common.RetryOptions
	temperature float64
	maxTokens   int
}

func newCloudBase(name string, cfg Config, defaultModel, defaultBaseURL string) (cloudBase, error) {
	if cfg.APIKey == "" {
		return cloudBase{}, fmt.Errorf("%s API key is required: %w", name, common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 150
	}

	return cloudBase{
		name:        name,
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		limiter:     newRateLimiter(cfg.RequestsPerMinute),
		health:      newHealth(cfg.Clock, cfg.QuotaCooldown),
		logger:      common.LoggerOrDefault(cfg.Logger).With("provider", name),
		retry: common.RetryOptions{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
		},
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (b *cloudBase) Name() string     { return b.name }
func (b *cloudBase) IsLocal() bool    { return false }
func (b *cloudBase) Profile() Profile { return b.profile }

// Model returns the model the provider sends requests to.
func (b *cloudBase) Model() string { return b.model }

// IsAvailable is true when the provider is configured and not cooling down.
func (b *cloudBase) IsAvailable(ctx context.Context) bool {
	if ctx.Err() != nil || b.apiKey == "" {
		return false
	}
	ok, _ := b.health.available()
	return ok
}

// Close releases the rate limiter.
func (b *cloudBase) Close() {
	b.limiter.Close()
}

func (b *cloudBase) defaults(req CompletionRequest) CompletionRequest {
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.maxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = b.temperature
	}
	return req
}

// call runs one logical request: health gate, rate limit, retries on transient failures, and
// health bookkeeping on rate-limit or quota errors.
func (b *cloudBase) call(ctx context.Context, do func(ctx context.Context) (CompletionResponse, error)) (CompletionResponse, error) {
	if ok, reason := b.health.available(); !ok {
		return CompletionResponse{}, &ProviderUnavailableError{Provider: b.name, Reason: reason}
	}
	if err := b.limiter.wait(ctx); err != nil {
		return CompletionResponse{}, err
	}

	var resp CompletionResponse
	start := time.Now()
	err := common.WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = do(ctx)
		return callErr
	}, b.retry)
	if err != nil {
		b.health.observe(err)
		b.logger.Warn("completion failed", "model", b.model, "error", err)
		return CompletionResponse{}, err
	}
	if resp.Duration == 0 {
		resp.Duration = time.Since(start)
	}
	b.logger.Debug("completion finished",
		"model", b.model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"duration", resp.Duration)
	return resp, nil
}

// postJSON sends body to url and returns the raw response body on 200.
func (b *cloudBase) postJSON(ctx context.Context, url string, body any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &common.RetryableError{Err: fmt.Errorf("%s request failed: %w", b.name, err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(b.name, resp, respBody, b.health.clock.Now())
	}
	return respBody, nil
}

// statusError maps a non-200 response into the provider error taxonomy.
func statusError(provider string, resp *http.Response, body []byte, now time.Time) error {
	text := strings.ToLower(string(body))
	switch {
	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusTooManyRequests && isQuotaMessage(text),
		resp.StatusCode == http.StatusBadRequest && strings.Contains(text, "credit balance"):
		return &QuotaExceededError{Provider: provider}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{Provider: provider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ProviderUnavailableError{Provider: provider, Reason: "authentication failed", Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	case resp.StatusCode >= 500:
		return &common.RetryableError{
			Err:       fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, body),
			Retryable: true,
		}
	default:
		return fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, body)
	}
}

func isQuotaMessage(text string) bool {
	return strings.Contains(text, "insufficient_quota") ||
		strings.Contains(text, "quota") && !strings.Contains(text, "rate")
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return defaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
