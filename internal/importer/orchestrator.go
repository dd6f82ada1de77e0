// Package importer drives an import session from parsed rows to saved transactions.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/Veraticus/spice-import/internal/categorize"
	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/dedupe"
	"github.com/Veraticus/spice-import/internal/learning"
	"github.com/Veraticus/spice-import/internal/merchant"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/storage"
	"github.com/Veraticus/spice-import/internal/validation"
)

// Errors returned by the orchestrator.
var (
	ErrSessionSuperseded = errors.New("import session was cancelled or replaced")
	ErrInvalidSelection  = errors.New("invalid transaction index")
	ErrAccountMismatch   = errors.New("account does not match the import session")
)

// ImportError reports a document that could not be parsed. No session is started.
type ImportError struct {
	Message string
}

func (e *ImportError) Error() string {
	return "import failed: " + e.Message
}

// Store is the persistence the orchestrator needs.
type Store interface {
	GetTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)
	RunInTx(ctx context.Context, fn func(tx *storage.Tx) error) error
}

// Categorizer assigns categories to candidates.
type Categorizer interface {
	Categorize(ctx context.Context, candidates []categorize.Candidate, history []model.Transaction) (*categorize.BatchResult, error)
}

// Learner turns category overrides into learned merchants.
type Learner interface {
	Execute(ctx context.Context, req learning.Request) (learning.Result, error)
}

// session is the state of the active import.
type session struct {
	cancel  context.CancelFunc
	preview *Preview
	// suggested is the engine's category per row, kept to detect overrides worth learning.
	suggested map[int]string
}

// Orchestrator runs one import session at a time. All methods are safe for concurrent use;
// CancelImport and Reset may be called while StartImport or ConfirmImport is running.
type Orchestrator struct {
	store       Store
	categorizer Categorizer
	learner     Learner
	validator   *validation.Validator
	detector    *dedupe.Detector
	progress    *ProgressStream
	logger      *slog.Logger
	clock       common.Clock
	session     *session
	generation  uint64
	mu          sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLearner feeds confirmed category overrides to l.
func WithLearner(l Learner) Option {
	return func(o *Orchestrator) { o.learner = l }
}

// WithValidator replaces the default validator.
func WithValidator(v *validation.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithDetector replaces the default duplicate detector.
func WithDetector(d *dedupe.Detector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// WithClock sets the clock used by the default validator.
func WithClock(c common.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(store Store, categorizer Categorizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		categorizer: categorizer,
		progress:    newProgressStream(),
		clock:       common.SystemClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validator == nil {
		o.validator = validation.NewValidator(o.clock, 0)
	}
	if o.detector == nil {
		o.detector = dedupe.NewDetector(dedupe.Options{})
	}
	o.logger = common.LoggerOrDefault(o.logger)
	return o
}

// Progress exposes the session state stream.
func (o *Orchestrator) Progress() *ProgressStream {
	return o.progress
}

// begin discards any active session and returns the generation and context of a new one.
func (o *Orchestrator) begin(ctx context.Context) (uint64, context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discardLocked()
	ctx, cancel := context.WithCancel(ctx)
	o.session = &session{cancel: cancel}
	return o.generation, ctx
}

// discardLocked cancels in-flight work and drops the session. Callers hold mu.
func (o *Orchestrator) discardLocked() {
	if o.session != nil && o.session.cancel != nil {
		o.session.cancel()
	}
	o.session = nil
	o.generation++
}

// advance publishes p if gen is still the active session.
func (o *Orchestrator) advance(gen uint64, p Progress) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return ErrSessionSuperseded
	}
	o.progress.publish(p)
	return nil
}

// fail moves an active session to Failed and returns err.
func (o *Orchestrator) fail(gen uint64, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return ErrSessionSuperseded
	}
	if o.session != nil && o.session.cancel != nil {
		o.session.cancel()
	}
	o.session = nil
	o.progress.publish(Failed{Err: err})
	o.logger.Error("import failed", "error", err)
	return err
}

// StartImport validates, deduplicates and categorizes parsed rows for accountID and holds the
// result as the session preview. A parse error returns *ImportError without touching the
// session. Starting a new import replaces any active session.
func (o *Orchestrator) StartImport(ctx context.Context, result model.ImportResult, accountID string) (*Preview, error) {
	var docType model.DocumentType
	switch r := result.(type) {
	case *model.ImportError:
		return nil, &ImportError{Message: r.Message}
	case *model.ImportSuccess:
		docType = r.DocumentType
	case *model.ImportNeedsInput:
		docType = r.DocumentType
	case nil:
		return nil, &ImportError{Message: "no parse result"}
	}
	if accountID == "" {
		return nil, fmt.Errorf("account is required: %w", common.ErrInvalidConfig)
	}
	rows := model.TransactionsOf(result)

	gen, ctx := o.begin(ctx)
	stage := func(p Progress) error {
		if err := o.advance(gen, p); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ErrSessionSuperseded
		}
		return nil
	}

	if err := stage(Validating{Total: len(rows)}); err != nil {
		return nil, err
	}
	checked := o.validator.Validate(rows)
	if !checked.IsValid {
		return nil, o.fail(gen, fmt.Errorf("%w: document has no usable rows", common.ErrNoTransactions))
	}

	if err := stage(Deduplicating{Total: len(rows)}); err != nil {
		return nil, err
	}
	history, err := o.store.GetTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, o.failOrSuperseded(ctx, gen, fmt.Errorf("failed to load account history: %w", err))
	}
	statuses := o.detector.CheckDuplicates(rows, history)

	preview := &Preview{
		AccountID:          accountID,
		DocumentType:       docType,
		ValidationWarnings: checked.Warnings,
		Transactions:       make([]model.ReviewableTransaction, len(rows)),
	}
	var candidates []categorize.Candidate
	for i, row := range rows {
		status := statuses[i]
		preview.Transactions[i] = model.NewReviewableTransaction(i, row, status)
		if status != nil && status.IsDuplicate() {
			preview.DuplicateCount++
		}
		if _, exact := status.(model.ExactDuplicate); !exact {
			candidates = append(candidates, categorize.Candidate{ID: strconv.Itoa(i), Transaction: row})
		}
	}

	if err := stage(Categorizing{Total: len(candidates)}); err != nil {
		return nil, err
	}
	suggested := make(map[int]string, len(candidates))
	if len(candidates) > 0 {
		batch, err := o.categorizer.Categorize(ctx, candidates, history)
		if err != nil {
			return nil, o.failOrSuperseded(ctx, gen, fmt.Errorf("categorization failed: %w", err))
		}
		preview.NeedsConfirmationCount = batch.NeedsConfirmationCount
		for id, res := range batch.Results {
			i, err := strconv.Atoi(id)
			if err != nil || i < 0 || i >= len(rows) {
				continue
			}
			preview.Transactions[i].Categorization = &res
			suggested[i] = res.CategoryID
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return nil, ErrSessionSuperseded
	}
	o.session.preview = preview
	o.session.suggested = suggested
	o.progress.publish(AwaitingConfirmation{Preview: preview.clone()})
	o.logger.Info("import ready for review",
		"account", accountID,
		"transactions", len(rows),
		"duplicates", preview.DuplicateCount,
		"warnings", len(preview.ValidationWarnings))

	out := preview.clone()
	return &out, nil
}

func (o *Orchestrator) failOrSuperseded(ctx context.Context, gen uint64, err error) error {
	if ctx.Err() != nil {
		o.mu.Lock()
		superseded := gen != o.generation
		o.mu.Unlock()
		if superseded {
			return ErrSessionSuperseded
		}
	}
	return o.fail(gen, err)
}

// Preview returns a copy of the active preview.
func (o *Orchestrator) Preview() (*Preview, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil || o.session.preview == nil {
		return nil, common.ErrNoActiveSession
	}
	out := o.session.preview.clone()
	return &out, nil
}

// editPreview applies fn to the active preview and republishes it.
func (o *Orchestrator) editPreview(fn func(p *Preview) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil || o.session.preview == nil {
		return common.ErrNoActiveSession
	}
	if err := fn(o.session.preview); err != nil {
		return err
	}
	o.progress.publish(AwaitingConfirmation{Preview: o.session.preview.clone()})
	return nil
}

func checkIndex(p *Preview, index int) error {
	if index < 0 || index >= len(p.Transactions) {
		return fmt.Errorf("%w: %d", ErrInvalidSelection, index)
	}
	return nil
}

// ToggleSelection flips whether row index will be saved.
func (o *Orchestrator) ToggleSelection(index int) error {
	return o.editPreview(func(p *Preview) error {
		if err := checkIndex(p, index); err != nil {
			return err
		}
		p.Transactions[index].IsSelected = !p.Transactions[index].IsSelected
		return nil
	})
}

// SelectAll selects every row, duplicates included.
func (o *Orchestrator) SelectAll() error {
	return o.editPreview(func(p *Preview) error {
		for i := range p.Transactions {
			p.Transactions[i].IsSelected = true
		}
		return nil
	})
}

// DeselectDuplicates deselects every probable or exact duplicate.
func (o *Orchestrator) DeselectDuplicates() error {
	return o.editPreview(func(p *Preview) error {
		for i, r := range p.Transactions {
			if r.DuplicateStatus.IsDuplicate() {
				p.Transactions[i].IsSelected = false
			}
		}
		return nil
	})
}

// SetCategoryOverride sets or, with nil, clears the user's category for row index.
func (o *Orchestrator) SetCategoryOverride(index int, categoryID *string) error {
	return o.editPreview(func(p *Preview) error {
		if err := checkIndex(p, index); err != nil {
			return err
		}
		if categoryID != nil {
			id := *categoryID
			categoryID = &id
		}
		p.Transactions[index].CategoryOverride = categoryID
		return nil
	})
}

// ConfirmImport saves the selected rows of the active preview in one database transaction.
// A nil selected uses the preview's selection; overrides are applied on top of the preview's
// overrides. accountID may be empty to use the session's account. On a write failure nothing is
// saved and the preview remains open for another attempt.
func (o *Orchestrator) ConfirmImport(ctx context.Context, selected []int, overrides map[int]string, accountID string) (*Completed, error) {
	o.mu.Lock()
	if o.session == nil || o.session.preview == nil {
		o.mu.Unlock()
		return nil, common.ErrNoActiveSession
	}
	preview := o.session.preview
	if accountID == "" {
		accountID = preview.AccountID
	}
	if accountID != preview.AccountID {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAccountMismatch, accountID)
	}

	indices, err := selection(preview, selected)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	for i := range overrides {
		if err := checkIndex(preview, i); err != nil {
			o.mu.Unlock()
			return nil, err
		}
	}

	rows := make([]pendingRow, 0, len(indices))
	for _, i := range indices {
		r := preview.Transactions[i]
		if id, ok := overrides[i]; ok {
			r.CategoryOverride = &id
		}
		rows = append(rows, pendingRow{row: r, suggested: o.session.suggested[i]})
	}

	gen := o.generation
	saveCtx, cancel := context.WithCancel(ctx)
	if o.session.cancel != nil {
		o.session.cancel()
	}
	o.session.cancel = cancel
	o.progress.publish(Saving{Count: len(rows)})
	o.mu.Unlock()
	defer cancel()

	saved, err := o.save(saveCtx, accountID, rows)

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		if err != nil {
			return nil, ErrSessionSuperseded
		}
		// The write committed before the session was discarded.
		return &Completed{SavedCount: len(saved), SkippedCount: len(preview.Transactions) - len(saved), DuplicateCount: preview.DuplicateCount}, nil
	}
	if err != nil {
		o.progress.publish(AwaitingConfirmation{Preview: preview.clone()})
		o.mu.Unlock()
		o.logger.Error("failed to save import", "account", accountID, "error", err)
		return nil, fmt.Errorf("failed to save import: %w", err)
	}
	done := Completed{
		SavedCount:     len(saved),
		SkippedCount:   len(preview.Transactions) - len(saved),
		DuplicateCount: preview.DuplicateCount,
	}
	o.session = nil
	o.progress.publish(done)
	o.mu.Unlock()

	o.logger.Info("import completed", "account", accountID, "saved", done.SavedCount, "skipped", done.SkippedCount)
	o.learnFromOverrides(ctx, saved)
	return &done, nil
}

// selection returns the sorted, distinct indices to save.
func selection(p *Preview, selected []int) ([]int, error) {
	if selected == nil {
		var out []int
		for i, r := range p.Transactions {
			if r.IsSelected {
				out = append(out, i)
			}
		}
		return out, nil
	}
	out := make([]int, 0, len(selected))
	for _, i := range selected {
		if err := checkIndex(p, i); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

type pendingRow struct {
	row       model.ReviewableTransaction
	suggested string
}

type savedRow struct {
	pendingRow
	txn model.Transaction
}

// save writes every row or none.
func (o *Orchestrator) save(ctx context.Context, accountID string, rows []pendingRow) ([]savedRow, error) {
	var saved []savedRow
	err := o.store.RunInTx(ctx, func(tx *storage.Tx) error {
		saved = saved[:0]
		for _, p := range rows {
			txn, err := toTransaction(ctx, tx, accountID, p.row)
			if err != nil {
				return err
			}
			if err := tx.CreateTransaction(ctx, &txn); err != nil {
				return err
			}
			saved = append(saved, savedRow{pendingRow: p, txn: txn})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// toTransaction applies the override, else the engine's category, else "other".
func toTransaction(ctx context.Context, tx *storage.Tx, accountID string, r model.ReviewableTransaction) (model.Transaction, error) {
	txn := model.Transaction{
		Date:        r.Transaction.Date,
		AccountID:   accountID,
		Description: r.Transaction.Description,
		Currency:    r.Transaction.Currency,
		AmountMinor: r.Transaction.AmountMinor,
	}

	categoryID := model.OtherCategoryID
	switch {
	case r.CategoryOverride != nil:
		categoryID = *r.CategoryOverride
		txn.CategorySource = model.SourceUser
		txn.Confidence = 1
	case r.Categorization != nil:
		categoryID = r.Categorization.CategoryID
		txn.CategorySource = r.Categorization.Source
		txn.Confidence = r.Categorization.Confidence
	default:
		txn.CategorySource = model.SourceRuleBased
	}

	resolved, err := tx.EnsureExists(ctx, categoryID)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to resolve category %q: %w", categoryID, err)
	}
	txn.CategoryID = resolved
	return txn, nil
}

// learnFromOverrides reports every override that differs from the engine's suggestion. Failures
// are logged; the import is already saved.
func (o *Orchestrator) learnFromOverrides(ctx context.Context, saved []savedRow) {
	if o.learner == nil {
		return
	}
	for _, s := range saved {
		if s.row.CategoryOverride == nil || s.txn.CategoryID == s.suggested {
			continue
		}
		name := merchant.DisplayName(s.txn.Description)
		if name == "" {
			continue
		}
		var original *string
		if s.suggested != "" {
			suggested := s.suggested
			original = &suggested
		}
		result, err := o.learner.Execute(ctx, learning.Request{
			TransactionID:       s.txn.ID,
			OriginalCategoryID:  original,
			CorrectedCategoryID: s.txn.CategoryID,
			MerchantName:        name,
		})
		if err != nil {
			o.logger.Warn("failed to learn from override", "transaction", s.txn.ID, "error", err)
			continue
		}
		o.logger.Debug("learned from override", "transaction", s.txn.ID, "result", fmt.Sprintf("%T", result))
	}
}

// CancelImport stops any running stage, discards the session and reports Cancelled.
func (o *Orchestrator) CancelImport() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discardLocked()
	o.progress.publish(Cancelled{})
	o.logger.Info("import cancelled")
}

// Reset discards the session and returns to Idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discardLocked()
	o.progress.publish(Idle{})
}
