package model

// DocumentType identifies the format of an import source.
type DocumentType string

// Document types understood by the import pipeline.
const (
	DocumentCSV     DocumentType = "CSV"
	DocumentOFX     DocumentType = "OFX"
	DocumentQIF     DocumentType = "QIF"
	DocumentPDF     DocumentType = "PDF"
	DocumentImage   DocumentType = "IMAGE"
	DocumentUnknown DocumentType = "UNKNOWN"
)

// IsScanned reports whether the document needs text extraction before parsing.
func (d DocumentType) IsScanned() bool {
	return d == DocumentPDF || d == DocumentImage
}

// ImportResult is the outcome of parsing one document. It is one of
// *ImportSuccess, *ImportError or *ImportNeedsInput.
type ImportResult interface {
	isImportResult()
}

// ImportSuccess carries the parsed rows of a cleanly parsed document.
type ImportSuccess struct {
	DocumentType    DocumentType
	Transactions    []ImportedTransaction
	TotalConfidence float64
}

// ImportError reports a malformed or unsupported document.
type ImportError struct {
	Message string
}

// ImportNeedsInput carries rows the parser could recover but is unsure about
// (guessed columns, ambiguous dates, OCR text).
type ImportNeedsInput struct {
	DocumentType DocumentType
	Transactions []ImportedTransaction
}

func (*ImportSuccess) isImportResult()    {}
func (*ImportError) isImportResult()      {}
func (*ImportNeedsInput) isImportResult() {}

func (e *ImportError) Error() string {
	return e.Message
}

// TransactionsOf returns the rows carried by a result, or nil for an error result.
func TransactionsOf(r ImportResult) []ImportedTransaction {
	switch v := r.(type) {
	case *ImportSuccess:
		return v.Transactions
	case *ImportNeedsInput:
		return v.Transactions
	default:
		return nil
	}
}
