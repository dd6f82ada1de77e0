package llm

import (
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/spice-import/internal/common"
)

// DefaultQuotaCooldown is how long a provider stays unavailable after exhausting its quota.
const DefaultQuotaCooldown = time.Hour

// health tracks whether a cloud provider is cooling down after a rate limit or quota error.
type health struct {
	until         time.Time
	clock         common.Clock
	reason        string
	quotaCooldown time.Duration
	mu            sync.Mutex
}

func newHealth(clock common.Clock, quotaCooldown time.Duration) *health {
	if clock == nil {
		clock = common.SystemClock{}
	}
	if quotaCooldown <= 0 {
		quotaCooldown = DefaultQuotaCooldown
	}
	return &health{clock: clock, quotaCooldown: quotaCooldown}
}

// available returns false and the reason while a cooldown is in effect.
func (h *health) available() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.until.IsZero() || !h.clock.Now().Before(h.until) {
		return true, ""
	}
	return false, h.reason
}

// observe records the outcome of a request.
func (h *health) observe(err error) {
	var limited *RateLimitedError
	var quota *QuotaExceededError
	switch {
	case errors.As(err, &limited):
		h.coolDown(limited.RetryAfter, "rate limited")
	case errors.As(err, &quota):
		h.coolDown(h.quotaCooldown, "quota exceeded")
	}
}

func (h *health) coolDown(d time.Duration, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	until := h.clock.Now().Add(d)
	if until.After(h.until) {
		h.until = until
		h.reason = reason
	}
}
