package categorize

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/llm"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/testutil"
)

func candidate(id, description string) Candidate {
	return Candidate{
		ID: id,
		Transaction: model.ImportedTransaction{
			Date:        testutil.Day(2026, time.January, 8),
			Description: description,
			Currency:    "EUR",
			AmountMinor: -2599,
			Confidence:  1,
		},
	}
}

func TestEngine_LocalTiers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Storage.SaveLearnedMerchant(ctx, &model.LearnedMerchant{
		MerchantPattern: "blorptastic",
		CategoryID:      "shopping",
		Confidence:      0.93,
		SampleCount:     2,
	}))
	history := []model.Transaction{
		{Date: testutil.Day(2025, time.December, 1), Description: "Quixotic Goods", CategoryID: "travel"},
		{Date: testutil.Day(2025, time.December, 20), Description: "QUIXOTIC GOODS", CategoryID: "entertainment"},
		{Date: testutil.Day(2025, time.December, 21), Description: "Zephyr Widgets", CategoryID: model.OtherCategoryID},
	}

	engine := New(db.Storage, nil, nil)
	result, err := engine.Categorize(ctx, []Candidate{
		candidate("0", "Blorptastic Emporium"),
		candidate("1", "STARBUCKS #1234"),
		candidate("2", "Quixotic Goods"),
		candidate("3", "Zephyr Widgets"),
		candidate("4", "MONTHLY SERVICE FEE"),
	}, history)
	require.NoError(t, err)
	require.Len(t, result.Results, 5)

	learned := result.Results["0"]
	assert.Equal(t, "shopping", learned.CategoryID)
	assert.Equal(t, model.SourceUserLearned, learned.Source)
	assert.InDelta(t, 0.93, learned.Confidence, 0.0001)

	db1 := result.Results["1"]
	assert.Equal(t, "dining", db1.CategoryID)
	assert.Equal(t, model.SourceMerchantDatabase, db1.Source)

	hist := result.Results["2"]
	assert.Equal(t, "entertainment", hist.CategoryID, "most recent history wins")
	assert.Equal(t, model.SourceUserHistory, hist.Source)
	assert.InDelta(t, 0.80, hist.Confidence, 0.0001)

	fallback := result.Results["3"]
	assert.Equal(t, model.OtherCategoryID, fallback.CategoryID)
	assert.True(t, fallback.Fallback)
	assert.Zero(t, fallback.Confidence)

	assert.Equal(t, "fees", result.Results["4"].CategoryID)
	assert.Equal(t, model.SourceRuleBased, result.Results["4"].Source)

	assert.Equal(t, 1, result.Counts[model.SourceUserLearned])
	assert.Equal(t, 1, result.Counts[model.SourceMerchantDatabase])
	assert.Equal(t, 1, result.Counts[model.SourceUserHistory])
	assert.Equal(t, 1, result.FallbackCount)
	// History (0.80), the fee rule (0.75) and the fallback are below high confidence.
	assert.Equal(t, 3, result.NeedsConfirmationCount)
}

func TestEngine_LearnedExactMatchBeatsContainedPattern(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	for _, lm := range []model.LearnedMerchant{
		{MerchantPattern: "frobnicator", CategoryID: "shopping", Confidence: 0.9},
		{MerchantPattern: "frobnicator supplies", CategoryID: "housing", Confidence: 0.94},
	} {
		require.NoError(t, db.Storage.SaveLearnedMerchant(ctx, &lm))
	}

	result, err := New(db.Storage, nil, nil).Categorize(ctx, []Candidate{
		candidate("exact", "Frobnicator Supplies"),
		candidate("contained", "Frobnicator Supplies Outlet"),
		candidate("short", "Frobnicator Repair"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "housing", result.Results["exact"].CategoryID)
	assert.Equal(t, "housing", result.Results["contained"].CategoryID, "longest pattern wins")
	assert.Equal(t, "shopping", result.Results["short"].CategoryID)
}

func TestEngine_CloudTiers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	mini := llm.NewMockProvider("openai", llm.ClassMini, 1)
	mini.Text = `[{"id": 1, "categoryId": "shopping", "confidence": 0.91},
		{"id": 2, "categoryId": "travel", "confidence": 0.55},
		{"id": 3, "categoryId": "not-a-category", "confidence": 0.99}]`
	sonnet := llm.NewMockProvider("anthropic", llm.ClassSonnet, 4)
	sonnet.Respond = func(req llm.CompletionRequest) (string, error) {
		// Tier 3 receives the two leftovers, renumbered.
		if strings.Contains(req.Prompt, "2. ") && !strings.Contains(req.Prompt, "3. ") {
			return `[{"id": 1, "categoryId": "travel", "confidence": 0.4}, {"id": 2, "categoryId": "utilities", "confidence": 0.6}]`, nil
		}
		return "", assert.AnError
	}

	engine := New(db.Storage, nil, llm.NewFactory(nil, mini, sonnet))
	result, err := engine.Categorize(ctx, []Candidate{
		candidate("a", "Blorptastic Emporium"),
		candidate("b", "Zephyr Widgets"),
		candidate("c", "Quixotic Goods"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SourceLLMTier2, result.Results["a"].Source)
	assert.Equal(t, "shopping", result.Results["a"].CategoryID)

	assert.Equal(t, model.SourceLLMTier3, result.Results["b"].Source)
	assert.Equal(t, "travel", result.Results["b"].CategoryID)
	assert.InDelta(t, 0.4, result.Results["b"].Confidence, 0.0001, "tier 3 accepts any confidence")

	assert.Equal(t, model.SourceLLMTier3, result.Results["c"].Source)
	assert.Equal(t, "utilities", result.Results["c"].CategoryID)

	require.Len(t, mini.Calls(), 1)
	require.Len(t, sonnet.Calls(), 1)
	assert.True(t, mini.Calls()[0].JSON)
}

func TestEngine_CloudFallsBackToNextProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	mini := llm.NewMockProvider("openai", llm.ClassMini, 1)
	mini.Err = &llm.RateLimitedError{Provider: "openai", RetryAfter: time.Minute}
	haiku := llm.NewMockProvider("anthropic", llm.ClassHaiku, 2)
	haiku.Text = `[{"id": 1, "categoryId": "groceries", "confidence": 0.88}]`

	result, err := New(db.Storage, nil, llm.NewFactory(nil, mini, haiku)).
		Categorize(ctx, []Candidate{candidate("x", "Zephyr Widgets")}, nil)
	require.NoError(t, err)

	assert.Equal(t, "groceries", result.Results["x"].CategoryID)
	assert.Equal(t, model.SourceLLMTier2, result.Results["x"].Source)
	assert.Len(t, mini.Calls(), 1)
}

func TestEngine_AllProvidersFailingFallsBackToOther(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	broken := llm.NewMockProvider("openai", llm.ClassMini, 1)
	broken.Err = &llm.QuotaExceededError{Provider: "openai"}
	garbled := llm.NewMockProvider("gemini", llm.ClassFlash, 1)
	garbled.Text = "I'm not sure."

	result, err := New(db.Storage, nil, llm.NewFactory(nil, broken, garbled)).
		Categorize(ctx, []Candidate{candidate("x", "Zephyr Widgets")}, nil)
	require.NoError(t, err)

	assert.True(t, result.Results["x"].Fallback)
	assert.Equal(t, model.OtherCategoryID, result.Results["x"].CategoryID)
	assert.Equal(t, model.SourceRuleBased, result.Results["x"].Source)
}

func TestEngine_AnonymizesBeforeCloud(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	mini := llm.NewMockProvider("openai", llm.ClassMini, 1)
	mini.Text = `[{"id": 1, "categoryId": "shopping", "confidence": 0.9}]`

	_, err := New(db.Storage, nil, llm.NewFactory(nil, mini)).
		Categorize(ctx, []Candidate{candidate("x", "Zephyr order jane.doe@example.com")}, nil)
	require.NoError(t, err)

	calls := mini.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Prompt, "jane.doe@example.com")
	assert.Contains(t, calls[0].Prompt, "[EMAIL_1]")
	assert.Contains(t, calls[0].Prompt, "2026-01-08 | -25.99 EUR")
}

func TestEngine_OnDeviceTier(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts confident answers", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		local := llm.NewMockProvider("on-device", llm.ClassLocal, 0)
		local.Text = `{"categoryId": "groceries", "confidence": 0.82}`

		result, err := New(db.Storage, nil, llm.NewFactory(nil, local)).
			Categorize(ctx, []Candidate{candidate("x", "Zephyr Widgets jane@example.com")}, nil)
		require.NoError(t, err)

		assert.Equal(t, model.SourceOnDeviceML, result.Results["x"].Source)
		assert.Equal(t, "groceries", result.Results["x"].CategoryID)
		// Nothing leaves the machine, so the prompt is not anonymized.
		assert.Contains(t, local.Calls()[0].Prompt, "jane@example.com")
	})

	t.Run("low confidence escalates to the cloud", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		local := llm.NewMockProvider("on-device", llm.ClassLocal, 0)
		local.Text = `{"categoryId": "groceries", "confidence": 0.5}`
		mini := llm.NewMockProvider("openai", llm.ClassMini, 1)
		mini.Text = `[{"id": 1, "categoryId": "shopping", "confidence": 0.9}]`

		result, err := New(db.Storage, nil, llm.NewFactory(nil, local, mini)).
			Categorize(ctx, []Candidate{candidate("x", "Zephyr Widgets")}, nil)
		require.NoError(t, err)

		assert.Equal(t, model.SourceLLMTier2, result.Results["x"].Source)
		assert.Len(t, local.Calls(), 1, "the local provider is not part of the cloud chain")
	})

	t.Run("inference failure degrades", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		local := llm.NewMockProvider("on-device", llm.ClassLocal, 0)
		local.Err = &llm.ProviderUnavailableError{Provider: "on-device", Reason: "inference failed"}

		result, err := New(db.Storage, nil, llm.NewFactory(nil, local)).
			Categorize(ctx, []Candidate{candidate("x", "Zephyr Widgets")}, nil)
		require.NoError(t, err)
		assert.True(t, result.Results["x"].Fallback)
	})
}

func TestEngine_BatchesRespectBatchSize(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int
	mini := llm.NewMockProvider("openai", llm.ClassMini, 1)
	mini.Respond = func(req llm.CompletionRequest) (string, error) {
		n := strings.Count(req.Prompt, "Zephyr Widgets ")
		mu.Lock()
		sizes = append(sizes, n)
		mu.Unlock()
		answers := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			answers = append(answers, `{"id": `+strconv.Itoa(i)+`, "categoryId": "shopping", "confidence": 0.9}`)
		}
		return "[" + strings.Join(answers, ",") + "]", nil
	}

	var candidates []Candidate
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		candidates = append(candidates, candidate(id, "Zephyr Widgets "+id))
	}

	engine := New(db.Storage, nil, llm.NewFactory(nil, mini), WithOptions(Options{BatchSize: 2, Concurrency: 2}))
	result, err := engine.Categorize(ctx, candidates, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, 5, result.Counts[model.SourceLLMTier2])
}

func TestEngine_Cancelled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	mini := llm.NewMockProvider("openai", llm.ClassMini, 1)
	mini.Respond = func(llm.CompletionRequest) (string, error) {
		cancel()
		return "", context.Canceled
	}

	_, err := New(db.Storage, nil, llm.NewFactory(nil, mini)).
		Categorize(ctx, []Candidate{candidate("x", "Zephyr Widgets")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
