package parser

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/model"
)

// cash-like account types; investment and list sections are skipped.
var qifTransactionTypes = map[string]bool{
	"bank": true, "cash": true, "ccard": true, "oth a": true, "oth l": true,
}

type qifRecord struct {
	date   string
	amount string
	payee  string
	memo   string
	number string
}

// QIFOptions carries detection hints into the QIF parser.
type QIFOptions struct {
	Bank     *detect.BankSignature
	Currency string
}

// ParseQIF reads Quicken Interchange Format records (D, T/U, P, M, N, terminated by ^).
func ParseQIF(text string, opts QIFOptions) model.ImportResult {
	records, err := readQIFRecords(text)
	if err != nil {
		return &model.ImportError{Message: fmt.Sprintf("failed to read QIF: %v", err)}
	}
	if len(records) == 0 {
		return &model.ImportError{Message: "QIF document contains no transactions"}
	}

	dates := make([]string, len(records))
	for i, r := range records {
		dates[i] = r.date
	}
	hint := detect.DateOrderMDY
	if opts.Bank != nil && opts.Bank.DateOrder != detect.DateOrderUnknown {
		hint = opts.Bank.DateOrder
	}
	order, _ := InferDateOrder(dates, hint)

	var decimalSep rune
	if opts.Bank != nil {
		decimalSep = opts.Bank.DecimalSeparator
	}

	var txns []model.ImportedTransaction
	skipped := 0
	for _, r := range records {
		date, err := ParseDate(r.date, order)
		if err != nil {
			skipped++
			continue
		}
		money, err := ParseAmount(r.amount, AmountOptions{Currency: opts.Currency, Decimal: decimalSep})
		if err != nil {
			skipped++
			continue
		}
		desc := r.payee
		if desc == "" {
			desc = r.memo
		}
		if desc == "" && r.number != "" {
			desc = "Check " + r.number
		}
		txns = append(txns, model.ImportedTransaction{
			Date:        date,
			AmountMinor: money.Minor,
			Currency:    money.Currency,
			Description: desc,
			Source:      model.DocumentQIF,
			Confidence:  1.0,
		})
	}

	slog.Debug("Parsed QIF document", "transactions", len(txns), "skipped", skipped, "date_order", order.String())

	if len(txns) == 0 {
		return &model.ImportError{Message: "no transactions could be parsed from QIF"}
	}
	return &model.ImportSuccess{
		DocumentType:    model.DocumentQIF,
		Transactions:    txns,
		TotalConfidence: float64(len(txns)) / float64(len(txns)+skipped),
	}
}

func readQIFRecords(text string) ([]qifRecord, error) {
	var records []qifRecord
	var cur qifRecord
	dirty := false
	inTransactions := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "!") {
			header := strings.ToLower(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(header, "!type:"):
				inTransactions = qifTransactionTypes[strings.TrimSpace(strings.TrimPrefix(header, "!type:"))]
			case strings.HasPrefix(header, "!account"):
				inTransactions = false
			}
			cur, dirty = qifRecord{}, false
			continue
		}
		if !inTransactions {
			continue
		}

		code, value := line[0], strings.TrimSpace(line[1:])
		switch code {
		case '^':
			if dirty {
				records = append(records, cur)
			}
			cur, dirty = qifRecord{}, false
		case 'D':
			cur.date, dirty = value, true
		case 'T':
			cur.amount, dirty = value, true
		case 'U':
			if cur.amount == "" {
				cur.amount = value
			}
			dirty = true
		case 'P':
			cur.payee, dirty = value, true
		case 'M':
			cur.memo, dirty = value, true
		case 'N':
			cur.number, dirty = value, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if dirty {
		records = append(records, cur)
	}
	return records, nil
}
