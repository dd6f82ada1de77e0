package classification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/model"
)

func testPatterns() []Pattern {
	return []Pattern{
		{
			Name:       "Direct Deposit",
			Type:       PatternTypeIncome,
			CategoryID: "income",
			Regex:      `DIRECTDEP|DIRECT\s*DEP`,
			Priority:   100,
			Confidence: 0.90,
		},
		{
			Name:       "Interest",
			Type:       PatternTypeIncome,
			CategoryID: "interest",
			Regex:      `INTEREST`,
			Priority:   90,
			Confidence: 0.85,
		},
		{
			Name:       "Transfer",
			Type:       PatternTypeTransfer,
			CategoryID: "transfers",
			Regex:      `TRANSFER|XFER`,
			Priority:   80,
			Confidence: 0.80,
		},
		{
			Name:       "ATM",
			Type:       PatternTypeExpense,
			CategoryID: "cash",
			Regex:      `\bATM\b`,
			Priority:   50,
			Confidence: 0.75,
		},
	}
}

func TestNewPatternDetector(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		patterns []Pattern
		wantErr  bool
	}{
		{
			name:     "valid patterns",
			patterns: testPatterns(),
		},
		{
			name: "invalid regex",
			patterns: []Pattern{
				{Name: "Bad Pattern", CategoryID: "other", Regex: `[invalid regex`, Priority: 100},
			},
			wantErr: true,
			errMsg:  "failed to compile pattern",
		},
		{
			name: "missing category",
			patterns: []Pattern{
				{Name: "Orphan", Regex: `ORPHAN`, Priority: 1},
			},
			wantErr: true,
			errMsg:  "has no category",
		},
		{
			name:     "empty patterns",
			patterns: []Pattern{},
		},
		{
			name: "patterns sorted by priority",
			patterns: []Pattern{
				{Name: "Low Priority", CategoryID: "other", Regex: `LOW`, Priority: 10},
				{Name: "High Priority", CategoryID: "other", Regex: `HIGH`, Priority: 100},
				{Name: "Medium Priority", CategoryID: "other", Regex: `MEDIUM`, Priority: 50},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd, err := NewPatternDetector(tt.patterns)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, pd)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, pd)
			assert.Equal(t, len(tt.patterns), pd.GetPatternCount())

			for i := 0; i < len(pd.patterns)-1; i++ {
				assert.GreaterOrEqual(t, pd.patterns[i].Priority, pd.patterns[i+1].Priority)
			}
		})
	}
}

func TestPatternDetector_Classify(t *testing.T) {
	pd, err := NewPatternDetector(testPatterns())
	require.NoError(t, err)

	tests := []struct {
		wantMatch   *Match
		name        string
		description string
		amount      int64
	}{
		{
			name:        "direct deposit uppercase",
			description: "EMPLOYER DIRECTDEP",
			amount:      100000,
			wantMatch:   &Match{PatternName: "Direct Deposit", CategoryID: "income", Confidence: 0.95},
		},
		{
			name:        "direct deposit lowercase with space",
			description: "employer direct dep",
			amount:      100000,
			wantMatch:   &Match{PatternName: "Direct Deposit", CategoryID: "income", Confidence: 0.95},
		},
		{
			name:        "name contained boosts confidence",
			description: "SAVINGS INTEREST EARNED",
			amount:      512,
			wantMatch:   &Match{PatternName: "Interest", CategoryID: "interest", Confidence: 0.95},
		},
		{
			name:        "transfer in either direction",
			description: "ONLINE TRANSFER TO SAVINGS",
			amount:      -10000,
			wantMatch:   &Match{PatternName: "Transfer", CategoryID: "transfers", Confidence: 0.90},
		},
		{
			name:        "atm withdrawal",
			description: "ATM WITHDRAWAL",
			amount:      -2000,
			wantMatch:   &Match{PatternName: "ATM", CategoryID: "cash", Confidence: 0.85},
		},
		{
			name:        "no match",
			description: "STARBUCKS COFFEE",
			amount:      -450,
		},
		{
			name:        "priority wins over later patterns",
			description: "DIRECTDEP TRANSFER FROM EMPLOYER",
			amount:      100000,
			wantMatch:   &Match{PatternName: "Direct Deposit", CategoryID: "income", Confidence: 0.95},
		},
		{
			name:        "income pattern ignores debits",
			description: "INTEREST CHARGE",
			amount:      -500,
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := pd.Classify(ctx, model.Transaction{Description: tt.description, AmountMinor: tt.amount})
			require.NoError(t, err)

			if tt.wantMatch == nil {
				assert.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			assert.Equal(t, tt.wantMatch.PatternName, match.PatternName)
			assert.Equal(t, tt.wantMatch.CategoryID, match.CategoryID)
			assert.Equal(t, model.SourceRuleBased, match.Source)
			assert.InDelta(t, tt.wantMatch.Confidence, match.Confidence, 0.01)
		})
	}
}

func TestPatternDetector_ClassifyBatch(t *testing.T) {
	pd, err := NewPatternDetector(testPatterns())
	require.NoError(t, err)

	transactions := []model.Transaction{
		{ID: "1", Description: "EMPLOYER DIRECTDEP", AmountMinor: 100000},
		{ID: "2", Description: "ATM WITHDRAWAL", AmountMinor: -2000},
		{ID: "3", Description: "GROCERY STORE", AmountMinor: -3000},
		{ID: "4", Description: "DIRECTDEP BONUS", AmountMinor: 5000},
	}

	results, err := pd.ClassifyBatch(context.Background(), transactions)
	require.NoError(t, err)

	assert.Len(t, results, 3)
	assert.Equal(t, "income", results["1"].CategoryID)
	assert.Equal(t, "cash", results["2"].CategoryID)
	assert.Nil(t, results["3"])
	assert.Equal(t, "income", results["4"].CategoryID)
}

func TestPatternDetector_ClassifyBatch_ContextCancellation(t *testing.T) {
	pd, err := NewPatternDetector(testPatterns())
	require.NoError(t, err)

	transactions := make([]model.Transaction, 1000)
	for i := range transactions {
		transactions[i] = model.Transaction{Description: "TRANSFER"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pd.ClassifyBatch(ctx, transactions)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPatternDetector_UpdatePatterns(t *testing.T) {
	pd, err := NewPatternDetector(testPatterns()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, pd.GetPatternCount())

	err = pd.UpdatePatterns([]Pattern{
		{Name: "New Pattern 1", CategoryID: "fees", Type: PatternTypeExpense, Regex: `NEW1`, Priority: 100, Confidence: 0.90},
		{Name: "New Pattern 2", CategoryID: "transfers", Type: PatternTypeTransfer, Regex: `NEW2`, Priority: 80, Confidence: 0.85},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, pd.GetPatternCount())

	match, err := pd.Classify(context.Background(), model.Transaction{Description: "NEW1 TRANSACTION", AmountMinor: -1})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "New Pattern 1", match.PatternName)
	assert.Equal(t, "fees", match.CategoryID)

	err = pd.UpdatePatterns([]Pattern{{Name: "Broken", CategoryID: "x", Regex: `(`}})
	require.Error(t, err)
	assert.Equal(t, 2, pd.GetPatternCount())
}

func TestDefaultPatterns(t *testing.T) {
	patterns := DefaultPatterns()
	known := make(map[string]bool)
	for _, id := range model.CategoryIDs(model.DefaultCategories()) {
		known[id] = true
	}

	seen := make(map[PatternType]bool)
	for _, p := range patterns {
		seen[p.Type] = true
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Regex)
		assert.True(t, known[p.CategoryID], "pattern %s uses unknown category %s", p.Name, p.CategoryID)
		assert.Greater(t, p.Priority, 0)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
	}

	assert.True(t, seen[PatternTypeIncome], "Should have income patterns")
	assert.True(t, seen[PatternTypeExpense], "Should have expense patterns")
	assert.True(t, seen[PatternTypeTransfer], "Should have transfer patterns")

	_, err := NewPatternDetector(patterns)
	assert.NoError(t, err)
}

func TestPatternDetector_EdgeCases(t *testing.T) {
	pd, err := NewPatternDetector([]Pattern{
		{Name: "Folded Pattern", CategoryID: "dining", Regex: `cafe|naive|€`, Priority: 100, Confidence: 0.90},
		{Name: "Special Characters", CategoryID: "other", Regex: `\$\d+\.\d{2}`, Priority: 90, Confidence: 0.85},
		{
			Name:       "Long Pattern",
			CategoryID: "other",
			Regex:      `this\sis\sa\svery\slong\spattern\sthat\sshould\sget\sa\sconfidence\sboost`,
			Priority:   80,
			Confidence: 0.80,
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name          string
		description   string
		wantMatch     bool
		wantBoostOver float64
	}{
		{name: "accents are folded before matching", description: "Payment to Café", wantMatch: true},
		{name: "special characters match", description: "Amount: $123.45", wantMatch: true},
		{name: "empty description", description: ""},
		{name: "very long description", description: string(make([]byte, 10000))},
		{
			name:          "long pattern match with confidence boost",
			description:   "this is a very long pattern that should get a confidence boost",
			wantMatch:     true,
			wantBoostOver: 0.80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := pd.Classify(context.Background(), model.Transaction{Description: tt.description})
			require.NoError(t, err)

			if !tt.wantMatch {
				assert.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			if tt.wantBoostOver > 0 {
				assert.Greater(t, match.Confidence, tt.wantBoostOver)
			}
		})
	}
}

func BenchmarkPatternDetector_Classify(b *testing.B) {
	pd, err := NewPatternDetector(DefaultPatterns())
	require.NoError(b, err)

	txn := model.Transaction{ID: "bench", Description: "EMPLOYER DIRECTDEP PAYROLL ACME CORP", AmountMinor: 250000}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pd.Classify(ctx, txn); err != nil {
			b.Fatal(err)
		}
	}
}
