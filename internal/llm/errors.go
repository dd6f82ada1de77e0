package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoProvider is wrapped when no provider can serve a preference.
var ErrNoProvider = errors.New("no llm provider available")

// ProviderUnavailableError means a provider cannot serve requests: it is not configured,
// its model is not loaded, it is cooling down, or its engine failed.
type ProviderUnavailableError struct {
	Err      error
	Provider string
	Reason   string
}

func (e *ProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s unavailable: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s unavailable: %s", e.Provider, e.Reason)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// RateLimitedError means the provider asked us to slow down.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider %s rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// QuotaExceededError means the account behind the provider ran out of quota or credit.
type QuotaExceededError struct {
	Provider string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("provider %s quota exceeded", e.Provider)
}

// IsProviderFailure reports whether err should advance a fallback chain rather than abort it.
func IsProviderFailure(err error) bool {
	var unavailable *ProviderUnavailableError
	var limited *RateLimitedError
	var quota *QuotaExceededError
	return errors.As(err, &unavailable) || errors.As(err, &limited) || errors.As(err, &quota)
}
