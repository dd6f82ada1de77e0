package parser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/model"
)

const ocrStatement = `ACME BANK STATEMENT
Account holder: J. Doe
15/01/2024 TESCO STORES 3217 -45.20 1,234.56
16/01/2024 Salary ACME LTD 2,500.00 3,734.56
17 Jan 2024 Refund Amazon 12.99 CR
Page 1 of 2
18/01/2024 Coffee corner €3.40
19/01/2024 Transfer to Maria Rossi 100.00
no date here -10.00
20/01/2024 date but no amount
`

func TestTextExtractor_Extract(t *testing.T) {
	partials := TextExtractor{Currency: "GBP"}.Extract(ocrStatement)
	require.Len(t, partials, 5)

	tesco := partials[0]
	assert.Equal(t, "15/01/2024", tesco.RawDate)
	assert.Equal(t, int64(4520), tesco.AmountMinor)
	assert.True(t, tesco.IsDebit)
	assert.False(t, tesco.IsCredit)
	assert.Equal(t, "GBP", tesco.Currency)
	assert.Equal(t, "TESCO STORES 3217", tesco.RawDescription)

	salary := partials[1]
	assert.Equal(t, int64(250000), salary.AmountMinor)
	assert.True(t, salary.IsCredit, "salary keyword marks a credit")
	assert.Equal(t, "Salary ACME LTD", salary.RawDescription)

	refund := partials[2]
	assert.Equal(t, "17 Jan 2024", refund.RawDate)
	assert.Equal(t, int64(1299), refund.AmountMinor)
	assert.True(t, refund.IsCredit)

	coffee := partials[3]
	assert.Equal(t, "EUR", coffee.Currency)
	assert.Equal(t, int64(340), coffee.AmountMinor)
	assert.False(t, coffee.IsCredit)
	assert.False(t, coffee.IsDebit)

	transfer := partials[4]
	assert.Equal(t, int64(10000), transfer.AmountMinor)
}

func TestEnhancer_Enhance(t *testing.T) {
	e := NewEnhancer(hinterFunc(func(desc string) (string, bool) {
		if strings.Contains(strings.ToLower(desc), "tesco") {
			return "groceries", true
		}
		return "", false
	}))

	p := model.PartialTransaction{RawDate: "15/01/2024", RawDescription: "CARD PAYMENT TO TESCO STORES", AmountMinor: 4520, IsDebit: true, Currency: "GBP"}
	got := e.Enhance(p)

	require.NotNil(t, got.Merchant)
	assert.Equal(t, "TESCO STORES", *got.Merchant)
	require.NotNil(t, got.CategoryHint)
	assert.Equal(t, "groceries", *got.CategoryHint)
	assert.Equal(t, p.RawDate, got.RawDate)
	assert.Equal(t, p.AmountMinor, got.AmountMinor)
	assert.Equal(t, p.Currency, got.Currency)
	assert.Equal(t, p.IsDebit, got.IsDebit)
	assert.Nil(t, p.Merchant, "original is not mutated")

	transfer := e.Enhance(model.PartialTransaction{RawDescription: "Transfer to Maria Rossi"})
	require.NotNil(t, transfer.CounterpartyName)
	assert.Equal(t, "Maria Rossi", *transfer.CounterpartyName)
	assert.Nil(t, transfer.CategoryHint)
}

func TestToImported(t *testing.T) {
	known := model.PartialTransaction{RawDate: "15/01/2024", RawDescription: "TESCO", AmountMinor: 4520, IsDebit: true}
	txn, err := ToImported(known, model.DocumentPDF, detect.DateOrderDMY)
	require.NoError(t, err)
	assert.Equal(t, int64(-4520), txn.AmountMinor)
	assert.InDelta(t, 0.6, txn.Confidence, 0.0001)
	assert.Equal(t, model.DocumentPDF, txn.Source)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), txn.Date)

	guessed := model.PartialTransaction{RawDate: "2024-01-15", RawDescription: "???", AmountMinor: 100}
	txn, err = ToImported(guessed.WithMerchant("Kiosk"), model.DocumentImage, detect.DateOrderUnknown)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), txn.AmountMinor)
	assert.InDelta(t, 0.5, txn.Confidence, 0.0001)
	assert.Equal(t, "Kiosk", txn.Description)

	_, err = ToImported(model.PartialTransaction{RawDate: "soon"}, model.DocumentPDF, detect.DateOrderUnknown)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParser_Parse(t *testing.T) {
	p := New(NewEnhancer(nil), nil)
	ctx := context.Background()

	t.Run("csv end to end", func(t *testing.T) {
		result := p.Parse(ctx, Request{Filename: "a.csv", Content: []byte("Date,Amount,Description\n2024-01-15,1000,Test")})
		assert.Len(t, model.TransactionsOf(result), 1)
		assert.IsType(t, &model.ImportSuccess{}, result)
	})

	t.Run("ofx", func(t *testing.T) {
		result := p.Parse(ctx, Request{Filename: "a.qfx", Content: []byte(sampleBankOFX)})
		assert.Len(t, model.TransactionsOf(result), 3)
	})

	t.Run("pdf without text", func(t *testing.T) {
		result := p.Parse(ctx, Request{Filename: "s.pdf", Content: []byte("%PDF-1.4 binary")})
		assert.IsType(t, &model.ImportError{}, result)
	})

	t.Run("pdf with extracted text", func(t *testing.T) {
		result := p.Parse(ctx, Request{Filename: "s.pdf", Content: []byte("%PDF-1.4"), ExtractedText: ocrStatement, Currency: "GBP"})
		needs, ok := result.(*model.ImportNeedsInput)
		require.True(t, ok, "expected needs input, got %T", result)
		assert.Equal(t, model.DocumentPDF, needs.DocumentType)
		require.Len(t, needs.Transactions, 5)
		assert.Equal(t, "TESCO STORES 3217", needs.Transactions[0].Description)
		assert.Equal(t, int64(-4520), needs.Transactions[0].AmountMinor)
	})

	t.Run("image with noise only", func(t *testing.T) {
		result := p.Parse(ctx, Request{Filename: "r.png", ExtractedText: "THANK YOU\nCOME AGAIN"})
		assert.IsType(t, &model.ImportError{}, result)
	})

	t.Run("unknown format", func(t *testing.T) {
		result := p.Parse(ctx, Request{Filename: "notes.docx", Content: []byte("hello")})
		assert.IsType(t, &model.ImportError{}, result)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.IsType(t, &model.ImportError{}, p.Parse(cctx, Request{Filename: "a.csv", Content: []byte("a,b")}))
	})
}

type hinterFunc func(string) (string, bool)

func (f hinterFunc) Hint(desc string) (string, bool) { return f(desc) }
