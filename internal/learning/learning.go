// Package learning turns user category corrections into learned merchant mappings.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/merchant"
	"github.com/Veraticus/spice-import/internal/model"
)

// Confidence schedule for learned mappings.
const (
	InitialConfidence       = 0.90
	ConfidenceStep          = 0.02
	MaxConfidence           = 0.98
	DefaultMappingThreshold = 1
)

// ErrBlankMerchant is returned when a correction carries no usable merchant name.
var ErrBlankMerchant = errors.New("merchant name is required to learn from a correction")

// Store is the persistence the use case needs.
type Store interface {
	GetLearnedMerchant(ctx context.Context, pattern string) (*model.LearnedMerchant, error)
	SaveLearnedMerchant(ctx context.Context, m *model.LearnedMerchant) error
	SaveCorrection(ctx context.Context, c *model.CategoryCorrection) error
	CountCorrections(ctx context.Context, merchantNormalized, categoryID string) (int, error)
}

// Result is one of *CorrectionSaved, *MappingCreated or *MappingUpdated.
type Result interface {
	isResult()
}

// CorrectionSaved means the correction was recorded but no mapping exists yet.
type CorrectionSaved struct {
	Correction model.CategoryCorrection
}

// MappingCreated means a new learned merchant was created.
type MappingCreated struct {
	Merchant model.LearnedMerchant
}

// MappingUpdated means an existing learned merchant was reinforced or redirected.
type MappingUpdated struct {
	Merchant         model.LearnedMerchant
	PreviousCategory string
}

func (*CorrectionSaved) isResult() {}
func (*MappingCreated) isResult()  {}
func (*MappingUpdated) isResult()  {}

// Request describes a single correction.
type Request struct {
	OriginalCategoryID  *string
	TransactionID       string
	CorrectedCategoryID string
	MerchantName        string
}

// UseCase records corrections and maintains learned merchants.
type UseCase struct {
	store     Store
	clock     common.Clock
	logger    *slog.Logger
	threshold int
}

// Option configures UseCase.
type Option func(*UseCase)

// WithClock sets the clock.
func WithClock(c common.Clock) Option {
	return func(u *UseCase) { u.clock = c }
}

// WithThreshold sets how many corrections of a merchant to the same category create a mapping.
func WithThreshold(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.threshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *UseCase) { u.logger = common.LoggerOrDefault(l) }
}

// New creates a UseCase.
func New(store Store, opts ...Option) *UseCase {
	u := &UseCase{
		store:     store,
		clock:     common.SystemClock{},
		logger:    slog.Default(),
		threshold: DefaultMappingThreshold,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ConfidenceFor returns the confidence of a mapping confirmed sampleCount times.
func ConfidenceFor(sampleCount int) float64 {
	if sampleCount < 1 {
		sampleCount = 1
	}
	return min(MaxConfidence, InitialConfidence+float64(sampleCount-1)*ConfidenceStep)
}

// Execute records a correction and creates or updates the merchant mapping it implies.
func (u *UseCase) Execute(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.MerchantName) == "" {
		return nil, ErrBlankMerchant
	}
	if strings.TrimSpace(req.CorrectedCategoryID) == "" {
		return nil, fmt.Errorf("corrected category is required")
	}
	pattern := merchant.Normalize(req.MerchantName)
	if pattern == "" {
		return nil, fmt.Errorf("%w: %q normalizes to nothing", ErrBlankMerchant, req.MerchantName)
	}

	now := u.clock.Now()
	correction := model.CategoryCorrection{
		CreatedAt:           now,
		OriginalCategoryID:  req.OriginalCategoryID,
		TransactionID:       req.TransactionID,
		CorrectedCategoryID: req.CorrectedCategoryID,
		MerchantName:        req.MerchantName,
		MerchantNormalized:  pattern,
	}
	if err := u.store.SaveCorrection(ctx, &correction); err != nil {
		return nil, fmt.Errorf("failed to save correction: %w", err)
	}

	existing, err := u.store.GetLearnedMerchant(ctx, pattern)
	switch {
	case err == nil:
		return u.update(ctx, *existing, req.CorrectedCategoryID, now)
	case !errors.Is(err, common.ErrNotFound):
		return nil, fmt.Errorf("failed to look up learned merchant: %w", err)
	}

	count, err := u.store.CountCorrections(ctx, pattern, req.CorrectedCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}
	if count < u.threshold {
		u.logger.Debug("correction saved, mapping threshold not reached",
			"merchant", pattern, "count", count, "threshold", u.threshold)
		return &CorrectionSaved{Correction: correction}, nil
	}

	created := model.LearnedMerchant{
		CreatedAt:       now,
		LastUsedAt:      now,
		MerchantPattern: pattern,
		CategoryID:      req.CorrectedCategoryID,
		Source:          model.LearnedByUser,
		SampleCount:     1,
		Confidence:      InitialConfidence,
	}
	if err := u.store.SaveLearnedMerchant(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to create learned merchant: %w", err)
	}
	u.logger.Info("learned merchant mapping created", "merchant", pattern, "category", created.CategoryID)
	return &MappingCreated{Merchant: created}, nil
}

func (u *UseCase) update(ctx context.Context, m model.LearnedMerchant, categoryID string, now time.Time) (Result, error) {
	previous := m.CategoryID
	if m.CategoryID == categoryID {
		m.SampleCount++
	} else {
		m.CategoryID = categoryID
		m.SampleCount = 1
	}
	m.Confidence = ConfidenceFor(m.SampleCount)
	m.Source = model.LearnedByUser
	m.LastUsedAt = now

	if err := u.store.SaveLearnedMerchant(ctx, &m); err != nil {
		return nil, fmt.Errorf("failed to update learned merchant: %w", err)
	}
	u.logger.Info("learned merchant mapping updated",
		"merchant", m.MerchantPattern, "category", m.CategoryID, "samples", m.SampleCount, "confidence", m.Confidence)
	return &MappingUpdated{Merchant: m, PreviousCategory: previous}, nil
}
