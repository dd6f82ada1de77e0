package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/modelstore"
	"github.com/Veraticus/spice-import/internal/stream"
	"github.com/Veraticus/spice-import/internal/validation"
)

func samplePreview() importer.Preview {
	day := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	groceries := "groceries"

	fresh := model.NewReviewableTransaction(0, model.ImportedTransaction{
		Date: day, Description: "Blorptastic Emporium", AmountMinor: -2599, Currency: "EUR",
	}, model.Unique{})
	fresh.Categorization = &model.CategorizationResult{CategoryID: "shopping", Source: model.SourceLLMTier2, Confidence: 0.9}

	dup := model.NewReviewableTransaction(1, model.ImportedTransaction{
		Date: day, Description: "Coffee Shop", AmountMinor: -5000, Currency: "EUR",
	}, model.ExactDuplicate{MatchingID: "t-1"})

	overridden := model.NewReviewableTransaction(2, model.ImportedTransaction{
		Date: day, Description: "Zephyr Widgets", AmountMinor: -1200, Currency: "EUR",
	}, model.ProbableDuplicate{MatchingID: "t-2", Similarity: 0.64})
	overridden.Categorization = &model.CategorizationResult{CategoryID: model.OtherCategoryID, Source: model.SourceRuleBased, Fallback: true}
	overridden.CategoryOverride = &groceries
	overridden.IsSelected = true

	return importer.Preview{
		AccountID:    "checking",
		DocumentType: model.DocumentCSV,
		Transactions: []model.ReviewableTransaction{fresh, dup, overridden},
		ValidationWarnings: []validation.Warning{
			{Type: validation.WarningLargeAmount, Message: "amount is unusually large", Index: 0},
		},
		DuplicateCount:         2,
		NeedsConfirmationCount: 1,
	}
}

func TestRenderPreview(t *testing.T) {
	out := RenderPreview(samplePreview())

	for _, want := range []string{
		"Import preview (CSV, account checking)",
		"2026-01-08",
		"-25.99 EUR",
		"-50.00 EUR",
		"Blorptastic Emporium",
		"LLM_TIER2 90%",
		"groceries",
		"USER",
		"duplicate",
		"probable duplicate (64%)",
		"2 of 3 selected",
		"2 possible duplicates",
		"1 need confirmation",
		"row 1: amount is unusually large",
	} {
		assert.Contains(t, out, want)
	}
}

func TestDuplicateLabel(t *testing.T) {
	assert.Equal(t, "new", DuplicateLabel(model.Unique{}))
	assert.Equal(t, "new", DuplicateLabel(nil))
	assert.Equal(t, "duplicate", DuplicateLabel(model.ExactDuplicate{}))
	assert.Equal(t, "probable duplicate (50%)", DuplicateLabel(model.ProbableDuplicate{Similarity: 0.5}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "äöü…", truncate("äöüßxyz", 4))
}

func TestRenderSourceBreakdown(t *testing.T) {
	out := RenderSourceBreakdown(samplePreview())
	assert.Contains(t, out, "LLM_TIER2")
	assert.Contains(t, out, "fallback (other)")
	assert.NotContains(t, out, "RULE_BASED")
}

func TestRenderCompleted(t *testing.T) {
	out := RenderCompleted(importer.Completed{SavedCount: 4, SkippedCount: 2, DuplicateCount: 1})
	assert.Contains(t, out, "Saved: 4")
	assert.Contains(t, out, "Skipped: 2")
	assert.Contains(t, out, "Duplicates skipped: 1")
}

func TestRenderImportProgress(t *testing.T) {
	out := &syncBuffer{}
	src := stream.NewLatest[importer.Progress](importer.Idle{})

	r := RenderImportProgress(out, src)
	src.Publish(importer.Categorizing{Total: 3})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "categorizing 3 transactions")
	}, time.Second, 10*time.Millisecond)

	r.Stop()
	assert.Equal(t, 0, src.Subscribers())
}

func TestRenderDownloadProgress(t *testing.T) {
	out := &syncBuffer{}
	src := stream.NewLatest(modelstore.Progress{})

	r := RenderDownloadProgress(out, src, "tiny")
	src.Publish(modelstore.Progress{ModelID: "other", Downloaded: 10, Total: 100})
	src.Publish(modelstore.Progress{ModelID: "tiny", Downloaded: 512, Total: 1024})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Downloading tiny")
	}, time.Second, 10*time.Millisecond)

	r.Stop()
	assert.NotContains(t, out.String(), "Downloading other")
}

func TestImportStep(t *testing.T) {
	assert.Equal(t, 0, importStep(importer.Idle{}))
	assert.Equal(t, 1, importStep(importer.Validating{}))
	assert.Equal(t, 3, importStep(importer.Categorizing{}))
	assert.Equal(t, importStages, importStep(importer.AwaitingConfirmation{}))
	assert.Equal(t, 0, importStep(importer.Failed{}))
}
