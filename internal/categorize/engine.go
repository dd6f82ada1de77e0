// Package categorize assigns categories to imported transactions through a cascade of tiers,
// from free local lookups to paid cloud models.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/spice-import/internal/classification"
	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/llm"
	"github.com/Veraticus/spice-import/internal/merchant"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/parser"
	"github.com/Veraticus/spice-import/internal/privacy"
)

// Store is the persistence the engine reads from.
type Store interface {
	ListLearnedMerchants(ctx context.Context) ([]model.LearnedMerchant, error)
	GetCategories(ctx context.Context) ([]model.Category, error)
	EnsureExists(ctx context.Context, categoryID string) (string, error)
}

// Candidate is one transaction to categorize, keyed by a caller-chosen ID.
type Candidate struct {
	ID          string
	Transaction model.ImportedTransaction
}

// Options tunes the cascade.
type Options struct {
	// Tier2MinConfidence is the lowest confidence accepted from the cheap cloud tier.
	Tier2MinConfidence float64
	// OnDeviceMinConfidence is the lowest confidence accepted from the on-device model.
	OnDeviceMinConfidence float64
	// HistoryConfidence is assigned to categories copied from the account's own history.
	HistoryConfidence float64
	// BatchSize is the number of transactions per cloud prompt.
	BatchSize int
	// Concurrency bounds parallel cloud prompts.
	Concurrency int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		Tier2MinConfidence:    0.70,
		OnDeviceMinConfidence: 0.70,
		HistoryConfidence:     0.80,
		BatchSize:             10,
		Concurrency:           4,
	}
}

// BatchResult aggregates a Categorize call.
type BatchResult struct {
	Results                map[string]model.CategorizationResult
	Counts                 map[model.CategorizationSource]int
	FallbackCount          int
	NeedsConfirmationCount int
}

// Engine runs the categorization cascade.
type Engine struct {
	store      Store
	rules      *classification.Rules
	providers  *llm.Factory
	anonymizer *privacy.Anonymizer
	logger     *slog.Logger
	opts       Options
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions replaces the thresholds. Zero fields keep their defaults.
func WithOptions(o Options) Option {
	return func(e *Engine) {
		def := DefaultOptions()
		if o.Tier2MinConfidence <= 0 {
			o.Tier2MinConfidence = def.Tier2MinConfidence
		}
		if o.OnDeviceMinConfidence <= 0 {
			o.OnDeviceMinConfidence = def.OnDeviceMinConfidence
		}
		if o.HistoryConfidence <= 0 {
			o.HistoryConfidence = def.HistoryConfidence
		}
		if o.BatchSize <= 0 {
			o.BatchSize = def.BatchSize
		}
		if o.Concurrency <= 0 {
			o.Concurrency = def.Concurrency
		}
		e.opts = o
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. rules defaults to the built-in rules; providers may be nil, in which
// case only the local tiers run.
func New(store Store, rules *classification.Rules, providers *llm.Factory, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		rules:      rules,
		providers:  providers,
		anonymizer: privacy.NewAnonymizer(),
		opts:       DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rules == nil {
		e.rules = classification.NewDefaultRules()
	}
	e.logger = common.LoggerOrDefault(e.logger)
	return e
}

// run is the state of one Categorize call. Results are merged under mu.
type run struct {
	results    map[string]model.CategorizationResult
	allowed    map[string]bool
	categories []model.Category
	mu         sync.Mutex
}

func (r *run) accept(id, categoryID string, source model.CategorizationSource, confidence float64) bool {
	if !r.allowed[categoryID] {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.results[id]; done {
		return false
	}
	r.results[id] = model.CategorizationResult{
		TransactionID: id,
		CategoryID:    categoryID,
		Source:        source,
		Confidence:    confidence,
	}
	return true
}

func (r *run) pending(candidates []Candidate) []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Candidate
	for _, c := range candidates {
		if _, done := r.results[c.ID]; !done {
			out = append(out, c)
		}
	}
	return out
}

// Categorize assigns a category to every candidate. history is the account's existing
// transactions, used by the user-history tier. Provider failures only reduce coverage; the
// returned error is reserved for store failures and cancellation.
func (e *Engine) Categorize(ctx context.Context, candidates []Candidate, history []model.Transaction) (*BatchResult, error) {
	categories, err := e.store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	r := &run{
		results:    make(map[string]model.CategorizationResult, len(candidates)),
		allowed:    make(map[string]bool, len(categories)),
		categories: categories,
	}
	for _, c := range categories {
		if c.IsActive {
			r.allowed[c.ID] = true
		}
	}

	if err := e.learnedTier(ctx, r, candidates); err != nil {
		return nil, err
	}
	if err := e.rulesTier(ctx, r, r.pending(candidates)); err != nil {
		return nil, err
	}
	e.historyTier(r, r.pending(candidates), history)

	if e.providers != nil {
		e.onDeviceTier(ctx, r, r.pending(candidates))
		if err := e.cloudTier(ctx, r, r.pending(candidates), llm.FastCheap, model.SourceLLMTier2, e.opts.Tier2MinConfidence); err != nil {
			return nil, err
		}
		if err := e.cloudTier(ctx, r, r.pending(candidates), llm.BestQuality, model.SourceLLMTier3, 0); err != nil {
			return nil, err
		}
	}

	if err := e.fallback(ctx, r, r.pending(candidates)); err != nil {
		return nil, err
	}

	batch := &BatchResult{Results: r.results, Counts: make(map[model.CategorizationSource]int)}
	for _, res := range r.results {
		if res.Fallback {
			batch.FallbackCount++
		} else {
			batch.Counts[res.Source]++
		}
		if res.RequiresUserConfirmation() {
			batch.NeedsConfirmationCount++
		}
	}

	e.logger.Info("categorized transactions",
		"count", len(candidates),
		"learned", batch.Counts[model.SourceUserLearned],
		"rules", batch.Counts[model.SourceRuleBased]+batch.Counts[model.SourceMerchantDatabase],
		"history", batch.Counts[model.SourceUserHistory],
		"on_device", batch.Counts[model.SourceOnDeviceML],
		"tier2", batch.Counts[model.SourceLLMTier2],
		"tier3", batch.Counts[model.SourceLLMTier3],
		"fallback", batch.FallbackCount,
		"needs_confirmation", batch.NeedsConfirmationCount)
	return batch, nil
}

// learnedTier matches the normalized description exactly, else the longest learned pattern
// contained in it.
func (e *Engine) learnedTier(ctx context.Context, r *run, candidates []Candidate) error {
	learned, err := e.store.ListLearnedMerchants(ctx)
	if err != nil {
		return fmt.Errorf("failed to load learned merchants: %w", err)
	}
	if len(learned) == 0 {
		return nil
	}

	byPattern := make(map[string]model.LearnedMerchant, len(learned))
	for _, lm := range learned {
		byPattern[lm.MerchantPattern] = lm
	}
	sort.SliceStable(learned, func(i, j int) bool {
		return len(learned[i].MerchantPattern) > len(learned[j].MerchantPattern)
	})

	for _, c := range candidates {
		key := merchant.Normalize(c.Transaction.Description)
		if key == "" {
			continue
		}
		lm, ok := byPattern[key]
		if !ok {
			for _, candidate := range learned {
				if merchant.Matches(candidate.MerchantPattern, c.Transaction.Description) {
					lm, ok = candidate, true
					break
				}
			}
		}
		if ok && r.accept(c.ID, lm.CategoryID, model.SourceUserLearned, lm.Confidence) {
			e.logger.Debug("learned merchant match", "id", c.ID, "pattern", lm.MerchantPattern, "category", lm.CategoryID)
		}
	}
	return nil
}

func (e *Engine) rulesTier(ctx context.Context, r *run, candidates []Candidate) error {
	for _, c := range candidates {
		txn := model.Transaction{
			Date:        c.Transaction.Date,
			Description: c.Transaction.Description,
			Currency:    c.Transaction.Currency,
			AmountMinor: c.Transaction.AmountMinor,
		}
		m, err := e.rules.Classify(ctx, txn, r.allowed)
		if err != nil {
			return fmt.Errorf("rule classification failed: %w", err)
		}
		if m != nil && r.accept(c.ID, m.CategoryID, m.Source, m.Confidence) {
			e.logger.Debug("rule match", "id", c.ID, "rule", m.PatternName, "category", m.CategoryID)
		}
	}
	return nil
}

// historyTier copies the category of the most recent categorized transaction with the same
// normalized description.
func (e *Engine) historyTier(r *run, candidates []Candidate, history []model.Transaction) {
	if len(history) == 0 || len(candidates) == 0 {
		return
	}
	latest := make(map[string]model.Transaction)
	for _, h := range history {
		if h.CategoryID == "" || h.CategoryID == model.OtherCategoryID {
			continue
		}
		key := merchant.Normalize(h.Description)
		if key == "" {
			continue
		}
		if prev, ok := latest[key]; !ok || h.Date.After(prev.Date) {
			latest[key] = h
		}
	}
	for _, c := range candidates {
		h, ok := latest[merchant.Normalize(c.Transaction.Description)]
		if ok && r.accept(c.ID, h.CategoryID, model.SourceUserHistory, e.opts.HistoryConfidence) {
			e.logger.Debug("history match", "id", c.ID, "category", h.CategoryID)
		}
	}
}

// onDeviceTier asks the local model one transaction at a time. Any failure leaves the
// transaction for the next tier.
func (e *Engine) onDeviceTier(ctx context.Context, r *run, candidates []Candidate) {
	if len(candidates) == 0 {
		return
	}
	provider, err := e.providers.GetProvider(ctx, llm.LocalOnly)
	if err != nil {
		e.logger.Debug("on-device tier skipped", "reason", err)
		return
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		resp, err := provider.Complete(ctx, llm.CompletionRequest{
			System:    systemPrompt,
			Prompt:    singlePrompt(r.categories, r.allowed, c.Transaction),
			MaxTokens: 64,
			JSON:      true,
		})
		if err != nil {
			e.logger.Warn("on-device inference failed", "id", c.ID, "error", err)
			continue
		}
		answer, err := llm.ParseCategoryAnswer(resp.Text)
		if err != nil {
			e.logger.Debug("unusable on-device answer", "id", c.ID, "error", err)
			continue
		}
		if answer.Confidence < e.opts.OnDeviceMinConfidence {
			continue
		}
		r.accept(c.ID, answer.CategoryID, model.SourceOnDeviceML, answer.Confidence)
	}
}

// cloudTier sends anonymized batches to the cloud chain for pref concurrently. Answers below
// minConfidence or outside the taxonomy are dropped.
func (e *Engine) cloudTier(ctx context.Context, r *run, candidates []Candidate, pref llm.Preference,
	source model.CategorizationSource, minConfidence float64) error {
	if len(candidates) == 0 {
		return nil
	}
	chain, err := e.providers.GetProvidersWithFallback(ctx, pref)
	if err != nil {
		e.logger.Debug("cloud tier skipped", "source", source, "reason", err)
		return nil
	}
	var cloud []llm.Provider
	for _, p := range chain {
		if !p.IsLocal() {
			cloud = append(cloud, p)
		}
	}
	if len(cloud) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for start := 0; start < len(candidates); start += e.opts.BatchSize {
		chunk := candidates[start:min(start+e.opts.BatchSize, len(candidates))]
		g.Go(func() error {
			answers, err := e.askCloud(gctx, cloud, r, chunk)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("cloud batch failed", "source", source, "size", len(chunk), "error", err)
				return nil
			}
			for i, c := range chunk {
				answer, ok := answers[strconv.Itoa(i+1)]
				if !ok || answer.Confidence < minConfidence {
					continue
				}
				r.accept(c.ID, answer.CategoryID, source, answer.Confidence)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("cloud categorization interrupted: %w", err)
	}
	return nil
}

// askCloud anonymizes the chunk and tries each provider in turn until one returns a usable answer.
func (e *Engine) askCloud(ctx context.Context, chain []llm.Provider, r *run, chunk []Candidate) (map[string]llm.CategoryAnswer, error) {
	descriptions := make([]string, len(chunk))
	for i, c := range chunk {
		descriptions[i] = e.anonymizer.Anonymize(c.Transaction.Description).AnonymizedText
	}
	req := llm.CompletionRequest{
		System:    systemPrompt,
		Prompt:    batchPrompt(r.categories, r.allowed, chunk, descriptions),
		MaxTokens: 64 * len(chunk),
		JSON:      true,
	}

	var errs []error
	for _, p := range chain {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("provider failed, trying next", "provider", p.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		answers, err := llm.ParseCategoryAnswers(resp.Text)
		if err != nil {
			e.logger.Warn("unusable provider answer, trying next", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return answers, nil
	}
	return nil, errors.Join(errs...)
}

func (e *Engine) fallback(ctx context.Context, r *run, candidates []Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	otherID, err := e.store.EnsureExists(ctx, model.OtherCategoryID)
	if err != nil {
		return fmt.Errorf("failed to resolve fallback category: %w", err)
	}
	for _, c := range candidates {
		r.results[c.ID] = model.CategorizationResult{
			TransactionID: c.ID,
			CategoryID:    otherID,
			Source:        model.SourceRuleBased,
			Fallback:      true,
		}
	}
	return nil
}

const systemPrompt = `You categorize bank transactions. Pick exactly one category ID from the list you are given.
Classify by what the merchant is, not by guesses about why the money was spent.
Placeholders such as [NAME_1] or [IBAN_2] stand for redacted personal data.`

func categoryList(categories []model.Category, allowed map[string]bool) string {
	var b strings.Builder
	for _, c := range categories {
		if !allowed[c.ID] {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", c.ID, c.Name)
		if c.Description != "" {
			fmt.Fprintf(&b, " (%s)", c.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func transactionLine(txn model.ImportedTransaction, description string) string {
	currency := txn.Currency
	if currency == "" {
		currency = "EUR"
	}
	return fmt.Sprintf("%s | %s %s | %s",
		txn.Date.Format("2006-01-02"), parser.FormatMinor(txn.AmountMinor, currency), currency, description)
}

func singlePrompt(categories []model.Category, allowed map[string]bool, txn model.ImportedTransaction) string {
	return fmt.Sprintf(`Categories:
%s
Transaction (date | amount | description):
%s

Respond with {"categoryId": "<id>", "confidence": <0.0-1.0>}.`,
		categoryList(categories, allowed), transactionLine(txn, txn.Description))
}

func batchPrompt(categories []model.Category, allowed map[string]bool, chunk []Candidate, descriptions []string) string {
	var lines strings.Builder
	for i, c := range chunk {
		fmt.Fprintf(&lines, "%d. %s\n", i+1, transactionLine(c.Transaction, descriptions[i]))
	}
	return fmt.Sprintf(`Categories:
%s
Transactions (number. date | amount | description):
%s
Respond with a JSON array containing one object per transaction:
[{"id": <number>, "categoryId": "<id>", "confidence": <0.0-1.0>}]`,
		categoryList(categories, allowed), lines.String())
}
