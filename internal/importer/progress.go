package importer

import (
	"fmt"

	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/stream"
	"github.com/Veraticus/spice-import/internal/validation"
)

// Progress is the state of the import session. It is one of Idle, Validating, Deduplicating,
// Categorizing, AwaitingConfirmation, Saving, Completed, Cancelled or Failed.
type Progress interface {
	fmt.Stringer
	isProgress()
}

// Idle means no session is active.
type Idle struct{}

// Validating means the parsed rows are being checked.
type Validating struct {
	Total int
}

// Deduplicating means rows are being compared with the account history.
type Deduplicating struct {
	Total int
}

// Categorizing means the categorization cascade is running.
type Categorizing struct {
	Total int
}

// AwaitingConfirmation carries the preview the user reviews.
type AwaitingConfirmation struct {
	Preview Preview
}

// Saving means the selected rows are being written.
type Saving struct {
	Count int
}

// Completed reports a finished import.
type Completed struct {
	SavedCount     int
	SkippedCount   int
	DuplicateCount int
}

// Cancelled means the session was discarded by the user.
type Cancelled struct{}

// Failed means the pipeline stopped after it started.
type Failed struct {
	Err error
}

func (Idle) isProgress()                 {}
func (Validating) isProgress()           {}
func (Deduplicating) isProgress()        {}
func (Categorizing) isProgress()         {}
func (AwaitingConfirmation) isProgress() {}
func (Saving) isProgress()               {}
func (Completed) isProgress()            {}
func (Cancelled) isProgress()            {}
func (Failed) isProgress()               {}

func (Idle) String() string         { return "idle" }
func (p Validating) String() string { return fmt.Sprintf("validating %d transactions", p.Total) }
func (p Deduplicating) String() string {
	return fmt.Sprintf("checking %d transactions for duplicates", p.Total)
}
func (p Categorizing) String() string { return fmt.Sprintf("categorizing %d transactions", p.Total) }
func (p AwaitingConfirmation) String() string {
	return fmt.Sprintf("awaiting confirmation of %d transactions", len(p.Preview.Transactions))
}
func (p Saving) String() string { return fmt.Sprintf("saving %d transactions", p.Count) }
func (p Completed) String() string {
	return fmt.Sprintf("saved %d, skipped %d (%d duplicates)", p.SavedCount, p.SkippedCount, p.DuplicateCount)
}
func (Cancelled) String() string { return "cancelled" }
func (p Failed) String() string  { return "failed: " + p.Err.Error() }

// IsTerminal reports whether p ends a session.
func IsTerminal(p Progress) bool {
	switch p.(type) {
	case Completed, Cancelled, Failed:
		return true
	default:
		return false
	}
}

// Preview is the reviewable result of StartImport.
type Preview struct {
	AccountID              string
	DocumentType           model.DocumentType
	Transactions           []model.ReviewableTransaction
	ValidationWarnings     []validation.Warning
	DuplicateCount         int
	NeedsConfirmationCount int
}

// SelectedCount returns the number of rows that would be saved.
func (p Preview) SelectedCount() int {
	n := 0
	for _, r := range p.Transactions {
		if r.IsSelected {
			n++
		}
	}
	return n
}

func (p Preview) clone() Preview {
	out := p
	out.Transactions = append([]model.ReviewableTransaction(nil), p.Transactions...)
	out.ValidationWarnings = append([]validation.Warning(nil), p.ValidationWarnings...)
	return out
}

// ProgressStream broadcasts session state. New subscribers receive the current state first, and a
// slow subscriber only sees the newest state.
type ProgressStream struct {
	latest *stream.Latest[Progress]
}

func newProgressStream() *ProgressStream {
	return &ProgressStream{latest: stream.NewLatest[Progress](Idle{})}
}

// Current returns the latest state.
func (s *ProgressStream) Current() Progress {
	return s.latest.Current()
}

// Subscribe returns a channel of states and a function ending the subscription.
func (s *ProgressStream) Subscribe() (<-chan Progress, func()) {
	return s.latest.Subscribe()
}

func (s *ProgressStream) publish(p Progress) {
	s.latest.Publish(p)
}
