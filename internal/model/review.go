package model

// ReviewableTransaction is one row of an import preview.
type ReviewableTransaction struct {
	DuplicateStatus  DuplicateStatus
	CategoryOverride *string
	Categorization   *CategorizationResult
	Transaction      ImportedTransaction
	Index            int
	IsSelected       bool
}

// NewReviewableTransaction builds a preview row; duplicates start deselected.
func NewReviewableTransaction(index int, txn ImportedTransaction, status DuplicateStatus) ReviewableTransaction {
	if status == nil {
		status = Unique{}
	}
	return ReviewableTransaction{
		Index:           index,
		Transaction:     txn,
		DuplicateStatus: status,
		IsSelected:      !status.IsDuplicate(),
	}
}

// EffectiveCategoryID returns the override when present, else the engine's category, else "".
func (r ReviewableTransaction) EffectiveCategoryID() string {
	if r.CategoryOverride != nil {
		return *r.CategoryOverride
	}
	if r.Categorization != nil {
		return r.Categorization.CategoryID
	}
	return ""
}
