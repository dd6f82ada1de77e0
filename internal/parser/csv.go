package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/textutil"
)

// maxPreambleRows is how far down a header row is searched for; bank exports often start
// with account details.
const maxPreambleRows = 15

// Header keywords, folded, most specific first.
var (
	dateHeaders = []string{
		"transaction date", "booking date", "posting date", "posted date", "date operation", "buchungstag",
		"buchungsdatum", "fecha operacion", "data operazione", "date", "datum", "fecha", "data",
	}
	amountHeaders = []string{
		"amount", "betrag", "importo", "montant", "importe", "bedrag", "kwota", "umsatz", "value", "sum",
	}
	debitHeaders = []string{
		"debit", "debits", "withdrawal", "withdrawals", "paid out", "money out", "soll", "ausgang",
		"addebiti", "addebito", "uscite", "cargo", "cargos",
	}
	creditHeaders = []string{
		"credit", "credits", "deposit", "deposits", "paid in", "money in", "haben", "eingang",
		"accrediti", "accredito", "entrate", "abono", "abonos",
	}
	descriptionHeaders = []string{
		"description", "payee", "merchant", "narrative", "details", "memo", "verwendungszweck",
		"buchungstext", "beschreibung", "libelle", "causale", "descrizione", "concepto", "omschrijving",
		"name", "reference", "text",
	}
	currencyHeaders = []string{"currency", "ccy", "wahrung", "devise", "divisa", "moneda"}
)

// CSVOptions carries detection hints into the CSV parser.
type CSVOptions struct {
	Bank      *detect.BankSignature
	Currency  string
	Delimiter rune
}

type columns struct {
	descriptions []int
	date         int
	amount       int
	debit        int
	credit       int
	currency     int
}

func newColumns() columns {
	return columns{date: -1, amount: -1, debit: -1, credit: -1, currency: -1}
}

func (c columns) complete() bool {
	return c.date >= 0 && (c.amount >= 0 || c.debit >= 0 || c.credit >= 0)
}

// ParseCSV reads a delimited bank export. Columns come from a header row when one is found and are
// inferred from the data otherwise; inferred columns or an unresolved day/month order produce
// NeedsUserInput instead of Success.
func ParseCSV(text string, opts CSVOptions) model.ImportResult {
	rows, err := readRows(text, opts.Delimiter)
	if err != nil {
		return &model.ImportError{Message: fmt.Sprintf("failed to read CSV: %v", err)}
	}
	if len(rows) == 0 {
		return &model.ImportError{Message: "CSV document is empty"}
	}

	cols, headerIdx := findHeader(rows)
	guessed := false
	if headerIdx < 0 {
		cols = inferColumns(rows)
		guessed = true
		if !cols.complete() {
			return &model.ImportError{Message: "could not identify date and amount columns"}
		}
	}
	data := rows[headerIdx+1:]

	var hint detect.DateOrder
	var decimalSep rune
	if opts.Bank != nil {
		hint = opts.Bank.DateOrder
		decimalSep = opts.Bank.DecimalSeparator
	}
	order, ambiguous := InferDateOrder(column(data, cols.date), hint)
	if sep, ok := InferDecimalSeparator(amountSamples(data, cols)); ok {
		decimalSep = sep
	} else if decimalSep == 0 && opts.Delimiter == ';' {
		decimalSep = ','
	}

	rowConfidence := 1.0
	if guessed {
		rowConfidence -= 0.2
	}
	if ambiguous {
		rowConfidence -= 0.2
	}

	var txns []model.ImportedTransaction
	skipped := 0
	for i, row := range data {
		txn, ok := parseRow(row, cols, order, AmountOptions{Currency: opts.Currency, Decimal: decimalSep})
		if !ok {
			skipped++
			slog.Debug("Skipping CSV row", "row", headerIdx+2+i)
			continue
		}
		txn.Confidence = rowConfidence
		txns = append(txns, txn)
	}

	if len(txns) == 0 {
		return &model.ImportError{Message: "no transactions could be parsed from CSV"}
	}

	slog.Debug("Parsed CSV document",
		"transactions", len(txns),
		"skipped", skipped,
		"date_order", order.String(),
		"guessed_columns", guessed)

	if guessed || ambiguous {
		return &model.ImportNeedsInput{DocumentType: model.DocumentCSV, Transactions: txns}
	}
	total := rowConfidence * float64(len(txns)) / float64(len(txns)+skipped)
	return &model.ImportSuccess{DocumentType: model.DocumentCSV, Transactions: txns, TotalConfidence: total}
}

func readRows(text string, delimiter rune) ([][]string, error) {
	if delimiter == 0 {
		delimiter = ','
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlankRow(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func isBlankRow(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func findHeader(rows [][]string) (columns, int) {
	limit := min(len(rows), maxPreambleRows)
	for i := 0; i < limit; i++ {
		cols := headerColumns(rows[i])
		if cols.complete() {
			return cols, i
		}
	}
	return newColumns(), -1
}

func headerColumns(header []string) columns {
	cols := newColumns()
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = textutil.Normalize(textutil.Fold(h))
	}
	used := make(map[int]bool)
	claim := func(keywords []string) int {
		// exact matches first, then whole-word containment
		for _, kw := range keywords {
			for i, h := range folded {
				if !used[i] && h == kw {
					used[i] = true
					return i
				}
			}
		}
		for _, kw := range keywords {
			for i, h := range folded {
				if !used[i] && textutil.ContainsWord(h, kw) {
					used[i] = true
					return i
				}
			}
		}
		return -1
	}

	cols.date = claim(dateHeaders)
	cols.amount = claim(amountHeaders)
	if cols.amount < 0 {
		cols.debit = claim(debitHeaders)
		cols.credit = claim(creditHeaders)
	}
	cols.currency = claim(currencyHeaders)
	for {
		idx := claim(descriptionHeaders)
		if idx < 0 {
			break
		}
		cols.descriptions = append(cols.descriptions, idx)
	}
	return cols
}

// inferColumns guesses the layout of a headerless file from the first rows of data.
func inferColumns(rows [][]string) columns {
	cols := newColumns()
	sample := rows[:min(len(rows), 20)]
	width := 0
	for _, r := range sample {
		width = max(width, len(r))
	}

	dateScore := make([]int, width)
	amountScore := make([]int, width)
	textLen := make([]int, width)
	for _, r := range sample {
		for i, v := range r {
			v = strings.TrimSpace(v)
			if _, err := ParseDate(v, detect.DateOrderUnknown); err == nil {
				dateScore[i]++
				continue
			}
			if _, err := ParseAmount(v, AmountOptions{}); err == nil {
				amountScore[i]++
				continue
			}
			textLen[i] += len(v)
		}
	}

	half := (len(sample) + 1) / 2
	for i := 0; i < width; i++ {
		if cols.date < 0 && dateScore[i] >= half {
			cols.date = i
		}
	}
	for i := 0; i < width; i++ {
		if i != cols.date && cols.amount < 0 && amountScore[i] >= half {
			cols.amount = i
		}
	}
	best := -1
	for i := 0; i < width; i++ {
		if i == cols.date || i == cols.amount {
			continue
		}
		if best < 0 || textLen[i] > textLen[best] {
			best = i
		}
	}
	if best >= 0 && textLen[best] > 0 {
		cols.descriptions = []int{best}
	}
	return cols
}

func column(rows [][]string, idx int) []string {
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if idx < len(r) {
			if v := strings.TrimSpace(r[idx]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func amountSamples(rows [][]string, cols columns) []string {
	if cols.amount >= 0 {
		return column(rows, cols.amount)
	}
	return append(column(rows, cols.debit), column(rows, cols.credit)...)
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseRow(row []string, cols columns, order detect.DateOrder, amountOpts AmountOptions) (model.ImportedTransaction, bool) {
	date, err := ParseDate(field(row, cols.date), order)
	if err != nil {
		return model.ImportedTransaction{}, false
	}

	if cur := strings.ToUpper(field(row, cols.currency)); cur != "" {
		amountOpts.Currency = cur
	}

	var money Money
	if cols.amount >= 0 {
		money, err = ParseAmount(field(row, cols.amount), amountOpts)
		if err != nil {
			return model.ImportedTransaction{}, false
		}
	} else {
		money, err = mergeDebitCredit(field(row, cols.debit), field(row, cols.credit), amountOpts)
		if err != nil {
			return model.ImportedTransaction{}, false
		}
	}

	parts := make([]string, 0, len(cols.descriptions))
	for _, idx := range cols.descriptions {
		if v := field(row, idx); v != "" {
			parts = append(parts, v)
		}
	}

	return model.ImportedTransaction{
		Date:        date,
		AmountMinor: money.Minor,
		Currency:    money.Currency,
		Description: textutil.CollapseSpaces(strings.Join(parts, " ")),
		Source:      model.DocumentCSV,
	}, true
}

// mergeDebitCredit turns separate debit and credit columns into one signed amount.
// Banks disagree on whether debit columns carry a minus sign, so magnitudes are used.
func mergeDebitCredit(debit, credit string, opts AmountOptions) (Money, error) {
	if debit != "" {
		m, err := ParseAmount(debit, opts)
		if err != nil {
			return Money{}, err
		}
		if m.Minor != 0 {
			m.Minor = -abs(m.Minor)
			m.Explicit = true
			return m, nil
		}
	}
	if credit != "" {
		m, err := ParseAmount(credit, opts)
		if err != nil {
			return Money{}, err
		}
		m.Minor = abs(m.Minor)
		m.Explicit = true
		return m, nil
	}
	return Money{}, fmt.Errorf("%w: empty debit and credit", ErrInvalidAmount)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
