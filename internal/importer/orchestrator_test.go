package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/categorize"
	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/learning"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/storage"
	"github.com/Veraticus/spice-import/internal/testutil"
)

const account = "checking"

var now = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

func imported(date time.Time, amount int64, description string) model.ImportedTransaction {
	return model.ImportedTransaction{
		Date:        date,
		Description: description,
		Currency:    "EUR",
		AmountMinor: amount,
		Source:      model.DocumentCSV,
		Confidence:  1,
	}
}

func success(rows ...model.ImportedTransaction) model.ImportResult {
	return &model.ImportSuccess{DocumentType: model.DocumentCSV, Transactions: rows, TotalConfidence: 1}
}

type fixture struct {
	db   *testutil.TestDB
	orch *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := testutil.SetupTestDBWithClock(t, common.FixedClock{T: now})
	clock := common.FixedClock{T: now}
	engine := categorize.New(db.Storage, nil, nil)
	opts = append([]Option{
		WithClock(clock),
		WithLearner(learning.New(db.Storage, learning.WithClock(clock))),
	}, opts...)
	return &fixture{db: db, orch: New(db.Storage, engine, opts...)}
}

func TestOrchestrator_ExactDuplicateSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SeedTransactions(account, model.Transaction{
		Date:        testutil.Day(2026, time.January, 8),
		Description: "Coffee Shop",
		Currency:    "EUR",
		AmountMinor: -5000,
	})

	preview, err := f.orch.StartImport(ctx, success(
		imported(testutil.Day(2026, time.January, 8), -5000, "Coffee Shop"),
		imported(testutil.Day(2026, time.January, 9), -1200, "Blorptastic Emporium"),
	), account)
	require.NoError(t, err)

	require.Len(t, preview.Transactions, 2)
	assert.IsType(t, model.ExactDuplicate{}, preview.Transactions[0].DuplicateStatus)
	assert.Equal(t, 1.0, preview.Transactions[0].DuplicateStatus.MatchScore())
	assert.Equal(t, 1, preview.DuplicateCount)
	assert.False(t, preview.Transactions[0].IsSelected)
	assert.True(t, preview.Transactions[1].IsSelected)
	assert.Nil(t, preview.Transactions[0].Categorization)
	require.NotNil(t, preview.Transactions[1].Categorization)

	require.NoError(t, f.orch.SelectAll())
	current, err := f.orch.Preview()
	require.NoError(t, err)
	assert.Equal(t, 2, current.SelectedCount())

	require.NoError(t, f.orch.DeselectDuplicates())
	current, err = f.orch.Preview()
	require.NoError(t, err)
	assert.False(t, current.Transactions[0].IsSelected)
	assert.True(t, current.Transactions[1].IsSelected)

	state, ok := f.orch.Progress().Current().(AwaitingConfirmation)
	require.True(t, ok)
	assert.Equal(t, 1, state.Preview.SelectedCount())

	done, err := f.orch.ConfirmImport(ctx, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, Completed{SavedCount: 1, SkippedCount: 1, DuplicateCount: 1}, *done)
	assert.Equal(t, *done, f.orch.Progress().Current())

	stored, err := f.db.Storage.GetTransactionsByAccount(ctx, account)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Blorptastic Emporium", stored[1].Description)
	assert.Equal(t, model.OtherCategoryID, stored[1].CategoryID)

	_, err = f.orch.ConfirmImport(ctx, nil, nil, "")
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
}

func TestOrchestrator_ParseErrorShortCircuits(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.StartImport(context.Background(), &model.ImportError{Message: "unsupported format"}, account)
	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, "unsupported format", importErr.Message)
	assert.Equal(t, Idle{}, f.orch.Progress().Current())

	_, err = f.orch.Preview()
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
}

func TestOrchestrator_EmptyDocumentFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.StartImport(context.Background(), success(), account)
	require.ErrorIs(t, err, common.ErrNoTransactions)
	failed, ok := f.orch.Progress().Current().(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, common.ErrNoTransactions)
}

func TestOrchestrator_ValidationWarningsDoNotBlock(t *testing.T) {
	f := newFixture(t)

	preview, err := f.orch.StartImport(context.Background(), success(
		imported(testutil.Day(2026, time.February, 1), -1000, "Zephyr Widgets"),
		imported(testutil.Day(2026, time.January, 2), -1000, "   "),
	), account)
	require.NoError(t, err)
	require.Len(t, preview.ValidationWarnings, 2)
	assert.Equal(t, 0, preview.ValidationWarnings[0].Index)
	assert.Equal(t, 1, preview.ValidationWarnings[1].Index)
	assert.Equal(t, 2, preview.SelectedCount())
}

func TestOrchestrator_OverridesAreSavedAndLearned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.StartImport(ctx, success(
		imported(testutil.Day(2026, time.January, 5), -2500, "Blorptastic Emporium"),
		imported(testutil.Day(2026, time.January, 6), -900, "Zephyr Widgets"),
	), account)
	require.NoError(t, err)

	groceries := "groceries"
	require.NoError(t, f.orch.SetCategoryOverride(1, &groceries))
	groceries = "changed after the call"

	done, err := f.orch.ConfirmImport(ctx, []int{0, 1, 1}, map[int]string{0: "shopping"}, account)
	require.NoError(t, err)
	assert.Equal(t, 2, done.SavedCount)
	assert.Zero(t, done.SkippedCount)

	stored, err := f.db.Storage.GetTransactionsByAccount(ctx, account)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "shopping", stored[0].CategoryID)
	assert.Equal(t, model.SourceUser, stored[0].CategorySource)
	assert.Equal(t, "groceries", stored[1].CategoryID)

	learned, err := f.db.Storage.GetLearnedMerchant(ctx, "blorptastic emporium")
	require.NoError(t, err)
	assert.Equal(t, "shopping", learned.CategoryID)
	assert.InDelta(t, learning.InitialConfidence, learned.Confidence, 0.0001)

	// The next session sees the learned merchant.
	preview, err := f.orch.StartImport(ctx, success(
		imported(testutil.Day(2026, time.January, 9), -3100, "Blorptastic Emporium"),
	), account)
	require.NoError(t, err)
	require.NotNil(t, preview.Transactions[0].Categorization)
	assert.Equal(t, model.SourceUserLearned, preview.Transactions[0].Categorization.Source)
	assert.Equal(t, "shopping", preview.Transactions[0].Categorization.CategoryID)
}

// failingStore lets every write happen inside the transaction and then fails the commit.
type failingStore struct {
	*storage.SQLiteStorage
}

func (s failingStore) RunInTx(ctx context.Context, fn func(tx *storage.Tx) error) error {
	return s.SQLiteStorage.RunInTx(ctx, func(tx *storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errors.New("disk full")
	})
}

func TestOrchestrator_SaveFailureLeavesNothing(t *testing.T) {
	db := testutil.SetupTestDBWithClock(t, common.FixedClock{T: now})
	orch := New(failingStore{db.Storage}, categorize.New(db.Storage, nil, nil), WithClock(common.FixedClock{T: now}))
	ctx := context.Background()

	_, err := orch.StartImport(ctx, success(
		imported(testutil.Day(2026, time.January, 5), -2500, "Blorptastic Emporium"),
		imported(testutil.Day(2026, time.January, 6), -900, "Zephyr Widgets"),
	), account)
	require.NoError(t, err)

	_, err = orch.ConfirmImport(ctx, nil, nil, account)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	count, err := db.Storage.GetTransactionCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, ok := orch.Progress().Current().(AwaitingConfirmation)
	assert.True(t, ok, "the preview stays open after a failed save")
	_, err = orch.Preview()
	assert.NoError(t, err)
}

func TestOrchestrator_ConfirmValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.StartImport(ctx, success(imported(testutil.Day(2026, time.January, 5), -2500, "Zephyr Widgets")), account)
	require.NoError(t, err)

	_, err = f.orch.ConfirmImport(ctx, []int{3}, nil, account)
	assert.ErrorIs(t, err, ErrInvalidSelection)
	_, err = f.orch.ConfirmImport(ctx, nil, map[int]string{-1: "fees"}, account)
	assert.ErrorIs(t, err, ErrInvalidSelection)
	_, err = f.orch.ConfirmImport(ctx, nil, nil, "savings")
	assert.ErrorIs(t, err, ErrAccountMismatch)

	assert.ErrorIs(t, f.orch.ToggleSelection(7), ErrInvalidSelection)
	require.NoError(t, f.orch.ToggleSelection(0))
	done, err := f.orch.ConfirmImport(ctx, nil, nil, account)
	require.NoError(t, err)
	assert.Zero(t, done.SavedCount)
	assert.Equal(t, 1, done.SkippedCount)
}

func TestOrchestrator_SelectionRequiresSession(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.orch.SelectAll(), common.ErrNoActiveSession)
	assert.ErrorIs(t, f.orch.DeselectDuplicates(), common.ErrNoActiveSession)
	assert.ErrorIs(t, f.orch.ToggleSelection(0), common.ErrNoActiveSession)
	assert.ErrorIs(t, f.orch.SetCategoryOverride(0, nil), common.ErrNoActiveSession)
}

func TestOrchestrator_RestartReplacesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.StartImport(ctx, success(imported(testutil.Day(2026, time.January, 5), -100, "Zephyr Widgets")), account)
	require.NoError(t, err)
	_, err = f.orch.StartImport(ctx, success(
		imported(testutil.Day(2026, time.January, 6), -200, "Quixotic Goods"),
		imported(testutil.Day(2026, time.January, 7), -300, "Blorptastic Emporium"),
	), "savings")
	require.NoError(t, err)

	preview, err := f.orch.Preview()
	require.NoError(t, err)
	assert.Equal(t, "savings", preview.AccountID)
	assert.Len(t, preview.Transactions, 2)
}

func TestOrchestrator_ResetAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.StartImport(ctx, success(imported(testutil.Day(2026, time.January, 5), -100, "Zephyr Widgets")), account)
	require.NoError(t, err)

	f.orch.CancelImport()
	assert.Equal(t, Cancelled{}, f.orch.Progress().Current())
	_, err = f.orch.Preview()
	assert.ErrorIs(t, err, common.ErrNoActiveSession)

	f.orch.Reset()
	assert.Equal(t, Idle{}, f.orch.Progress().Current())
}

// blockingCategorizer waits until its context ends.
type blockingCategorizer struct {
	started chan struct{}
}

func (b *blockingCategorizer) Categorize(ctx context.Context, _ []categorize.Candidate, _ []model.Transaction) (*categorize.BatchResult, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOrchestrator_CancelFromAnotherGoroutine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	blocker := &blockingCategorizer{started: make(chan struct{})}
	orch := New(db.Storage, blocker)

	updates, stop := orch.Progress().Subscribe()
	defer stop()

	errc := make(chan error, 1)
	go func() {
		_, err := orch.StartImport(context.Background(), success(
			imported(testutil.Day(2026, time.January, 5), -100, "Zephyr Widgets"),
		), account)
		errc <- err
	}()

	select {
	case <-blocker.started:
	case <-time.After(5 * time.Second):
		t.Fatal("categorization never started")
	}
	orch.CancelImport()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSessionSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("StartImport did not return after cancel")
	}

	assert.Equal(t, Cancelled{}, orch.Progress().Current())
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-updates:
			if _, ok := p.(Cancelled); ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber never saw Cancelled")
		}
	}
}

func TestOrchestrator_CategorizerFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	orch := New(db.Storage, failingCategorizer{})

	_, err := orch.StartImport(context.Background(), success(
		imported(testutil.Day(2026, time.January, 5), -100, "Zephyr Widgets"),
	), account)
	require.Error(t, err)

	failed, ok := orch.Progress().Current().(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, assert.AnError)
}

type failingCategorizer struct{}

func (failingCategorizer) Categorize(context.Context, []categorize.Candidate, []model.Transaction) (*categorize.BatchResult, error) {
	return nil, assert.AnError
}

func TestProgress_Strings(t *testing.T) {
	assert.Equal(t, "idle", Idle{}.String())
	assert.Equal(t, "saved 3, skipped 1 (1 duplicates)", Completed{SavedCount: 3, SkippedCount: 1, DuplicateCount: 1}.String())
	assert.True(t, IsTerminal(Cancelled{}))
	assert.True(t, IsTerminal(Failed{Err: assert.AnError}))
	assert.False(t, IsTerminal(Saving{Count: 2}))
}
