// Package parser turns import documents into ImportedTransaction rows.
//
// Structured formats (CSV, OFX, QIF) are parsed directly. Scanned documents (PDF, images) are never
// decoded here; callers pass the text an OCR step already extracted, and the text extractor recovers
// what it can from it.
package parser

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/model"
)

// Request is one document to parse.
type Request struct {
	Filename string
	// ExtractedText is OCR output for scanned documents.
	ExtractedText string
	// Currency is assumed for amounts that carry no currency marker.
	Currency string
	Content  []byte
}

// Parser dispatches documents to the parser for their detected format.
type Parser struct {
	logger   *slog.Logger
	enhancer *Enhancer
}

// New creates a Parser. enhancer may be nil, in which case extracted rows are used as-is.
func New(enhancer *Enhancer, logger *slog.Logger) *Parser {
	return &Parser{enhancer: enhancer, logger: common.LoggerOrDefault(logger)}
}

// Parse detects the format of a document and parses it. Failures are reported as *model.ImportError,
// never as a Go error, so callers branch on a single result.
func (p *Parser) Parse(ctx context.Context, req Request) model.ImportResult {
	if err := ctx.Err(); err != nil {
		return &model.ImportError{Message: err.Error()}
	}

	det := detect.Detect(req.Filename, req.Content)
	p.logger.Debug("Detected document format",
		"file", req.Filename,
		"type", det.Type,
		"encoding", det.Encoding)

	if det.Type.IsScanned() || (det.Type == model.DocumentUnknown && strings.TrimSpace(req.ExtractedText) != "") {
		return p.parseExtracted(req, det.Type)
	}
	if det.Type == model.DocumentUnknown {
		return &model.ImportError{Message: common.ErrUnsupportedFormat.Error()}
	}

	text, err := detect.Decode(req.Content)
	if err != nil {
		return &model.ImportError{Message: err.Error()}
	}
	bank := detect.DetectBankSignature(text)
	currency := req.Currency
	if currency == "" && bank != nil {
		currency = bank.Currency
	}
	if bank != nil {
		p.logger.Debug("Matched bank signature", "bank", bank.Name)
	}

	var result model.ImportResult
	switch det.Type {
	case model.DocumentCSV:
		result = ParseCSV(text, CSVOptions{Delimiter: det.Delimiter, Bank: bank, Currency: currency})
	case model.DocumentOFX:
		result = ParseOFX(text)
	case model.DocumentQIF:
		result = ParseQIF(text, QIFOptions{Bank: bank, Currency: currency})
	default:
		result = &model.ImportError{Message: common.ErrUnsupportedFormat.Error()}
	}

	p.logResult(req.Filename, result)
	return result
}

func (p *Parser) parseExtracted(req Request, docType model.DocumentType) model.ImportResult {
	if docType == model.DocumentUnknown {
		docType = model.DocumentPDF
	}
	if strings.TrimSpace(req.ExtractedText) == "" {
		return &model.ImportError{Message: "scanned document has no extracted text; run text recognition first"}
	}

	bank := detect.DetectBankSignature(req.ExtractedText)
	currency := req.Currency
	var hint detect.DateOrder
	if bank != nil {
		hint = bank.DateOrder
		if currency == "" {
			currency = bank.Currency
		}
	}

	partials := TextExtractor{Currency: currency}.Extract(req.ExtractedText)
	dates := make([]string, len(partials))
	for i, pt := range partials {
		dates[i] = pt.RawDate
	}
	order, _ := InferDateOrder(dates, hint)

	txns := make([]model.ImportedTransaction, 0, len(partials))
	for _, pt := range partials {
		if p.enhancer != nil {
			pt = p.enhancer.Enhance(pt)
		}
		txn, err := ToImported(pt, docType, order)
		if err != nil {
			p.logger.Debug("Skipping extracted line", "date", pt.RawDate, "error", err)
			continue
		}
		txns = append(txns, txn)
	}

	if len(txns) == 0 {
		return &model.ImportError{Message: common.ErrNoTransactions.Error() + " in extracted text"}
	}
	result := &model.ImportNeedsInput{DocumentType: docType, Transactions: txns}
	p.logResult(req.Filename, result)
	return result
}

func (p *Parser) logResult(filename string, result model.ImportResult) {
	switch r := result.(type) {
	case *model.ImportSuccess:
		p.logger.Info("Parsed document", "file", filename, "type", r.DocumentType, "transactions", len(r.Transactions))
	case *model.ImportNeedsInput:
		p.logger.Info("Parsed document with uncertain rows", "file", filename, "type", r.DocumentType, "transactions", len(r.Transactions))
	case *model.ImportError:
		p.logger.Warn("Failed to parse document", "file", filename, "error", r.Message)
	}
}
