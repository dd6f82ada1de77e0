package model

// DuplicateStatus classifies an imported row against existing history. It is one of
// Unique, ProbableDuplicate or ExactDuplicate.
type DuplicateStatus interface {
	IsDuplicate() bool
	// MatchScore is the description similarity in [0,1]; 0 for Unique.
	MatchScore() float64
	isDuplicateStatus()
}

// Unique means no existing transaction resembles the row.
type Unique struct{}

// ProbableDuplicate means an existing transaction shares amount and a nearby date and its description
// is similar enough.
type ProbableDuplicate struct {
	MatchingID string
	Similarity float64
}

// ExactDuplicate means an existing transaction has the same date, amount and normalized description.
type ExactDuplicate struct {
	MatchingID string
}

func (Unique) IsDuplicate() bool            { return false }
func (ProbableDuplicate) IsDuplicate() bool { return true }
func (ExactDuplicate) IsDuplicate() bool    { return true }

func (Unique) MatchScore() float64              { return 0 }
func (p ProbableDuplicate) MatchScore() float64 { return p.Similarity }
func (ExactDuplicate) MatchScore() float64      { return 1.0 }

func (Unique) isDuplicateStatus()            {}
func (ProbableDuplicate) isDuplicateStatus() {}
func (ExactDuplicate) isDuplicateStatus()    {}
