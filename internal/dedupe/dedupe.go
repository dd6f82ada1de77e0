// Package dedupe classifies imported rows against existing transactions of the same account.
package dedupe

import (
	"strings"
	"time"
	"unicode"

	"github.com/xrash/smetrics"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/textutil"
)

// Defaults for Options.
const (
	DefaultProbableThreshold = 0.5
	DefaultMaxDayDistance    = 1
)

// Options tunes the matcher.
type Options struct {
	// ProbableThreshold is the minimum description similarity for a ProbableDuplicate.
	ProbableThreshold float64
	// MaxDayDistance is the largest date gap in days a pair may have.
	MaxDayDistance int
}

// Detector compares each imported row with every existing transaction. Batches are hundreds of rows,
// so the comparison is a plain O(n*m) scan without an index.
type Detector struct {
	opts Options
}

// NewDetector creates a Detector, filling zero options with defaults.
func NewDetector(opts Options) *Detector {
	if opts.ProbableThreshold <= 0 {
		opts.ProbableThreshold = DefaultProbableThreshold
	}
	if opts.MaxDayDistance <= 0 {
		opts.MaxDayDistance = DefaultMaxDayDistance
	}
	return &Detector{opts: opts}
}

// CheckDuplicate returns the status of one imported row. Among qualifying matches the most similar
// wins, and an exact match wins any tie.
func (d *Detector) CheckDuplicate(imported model.ImportedTransaction, existing []model.Transaction) model.DuplicateStatus {
	desc := NormalizeDescription(imported.Description)
	day := common.CalendarDay(imported.Date)

	var best model.DuplicateStatus = model.Unique{}
	bestScore := -1.0
	for _, e := range existing {
		if e.AmountMinor != imported.AmountMinor {
			continue
		}
		if imported.Currency != "" && e.Currency != "" && imported.Currency != e.Currency {
			continue
		}
		distance := dayDistance(day, common.CalendarDay(e.Date))
		if distance > d.opts.MaxDayDistance {
			continue
		}

		other := NormalizeDescription(e.Description)
		if distance == 0 && desc == other {
			return model.ExactDuplicate{MatchingID: e.ID}
		}

		score := Similarity(desc, other)
		if score >= d.opts.ProbableThreshold && score > bestScore {
			best = model.ProbableDuplicate{MatchingID: e.ID, Similarity: score}
			bestScore = score
		}
	}
	return best
}

// CheckDuplicates returns a status for every imported row, keyed by row index.
func (d *Detector) CheckDuplicates(imported []model.ImportedTransaction, existing []model.Transaction) map[int]model.DuplicateStatus {
	out := make(map[int]model.DuplicateStatus, len(imported))
	for i, txn := range imported {
		out[i] = d.CheckDuplicate(txn, existing)
	}
	return out
}

// NormalizeDescription lowercases s, drops every rune that is neither a letter, a digit nor
// whitespace, and collapses whitespace. Punctuation is removed rather than turned into a separator,
// so "McDonald's" and "McDonalds" compare equal.
func NormalizeDescription(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return textutil.CollapseSpaces(b.String())
}

// Similarity is 1 minus the Levenshtein distance over the longer length, for already normalized text.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1.0
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	sim := 1.0 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// dayDistance counts whole days between two calendar days.
func dayDistance(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}
