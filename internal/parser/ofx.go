package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-import/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// opening tags at end of line missing their closing bracket
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseOFX reads bank and credit card statements from an OFX/QFX document.
func ParseOFX(text string) model.ImportResult {
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(text)))
	if err != nil {
		return &model.ImportError{Message: fmt.Sprintf("failed to parse OFX file: %v", err)}
	}

	var txns []model.ImportedTransaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList == nil {
				continue
			}
			txns = append(txns, convertOFXList(stmt.BankTranList.Transactions, currencyOf(stmt.CurDef))...)
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList == nil {
				continue
			}
			txns = append(txns, convertOFXList(stmt.BankTranList.Transactions, currencyOf(stmt.CurDef))...)
		}
	}

	slog.Debug("Parsed OFX file",
		"total_transactions", len(txns),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	if len(txns) == 0 {
		return &model.ImportError{Message: "OFX file contains no statement transactions"}
	}
	return &model.ImportSuccess{DocumentType: model.DocumentOFX, Transactions: txns, TotalConfidence: 1.0}
}

func currencyOf(sym ofxgo.CurrSymbol) string {
	code := sym.String()
	if code == "" || code == "XXX" {
		return ""
	}
	return code
}

func convertOFXList(list []ofxgo.Transaction, currency string) []model.ImportedTransaction {
	out := make([]model.ImportedTransaction, 0, len(list))
	for _, tx := range list {
		txn, err := convertOFXTransaction(tx, currency)
		if err != nil {
			slog.Warn("Skipping OFX transaction", "fitid", string(tx.FiTID), "error", err)
			continue
		}
		out = append(out, txn)
	}
	return out
}

// convertOFXTransaction keeps the OFX sign convention: negative amounts are debits.
func convertOFXTransaction(tx ofxgo.Transaction, currency string) (model.ImportedTransaction, error) {
	if tx.Currency != nil {
		if code := currencyOf(tx.Currency.CurSym); code != "" {
			currency = code
		}
	}

	amount, err := decimal.NewFromString(tx.TrnAmt.Rat.FloatString(6))
	if err != nil {
		return model.ImportedTransaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	date := tx.DtPosted.Time
	if date.IsZero() && tx.DtUser != nil {
		date = tx.DtUser.Time
	}
	if date.IsZero() {
		return model.ImportedTransaction{}, fmt.Errorf("missing posted date")
	}

	return model.ImportedTransaction{
		Date:        dateOnly(date),
		AmountMinor: amount.Shift(CurrencyExponent(currency)).Round(0).IntPart(),
		Currency:    currency,
		Description: ofxDescription(tx),
		Source:      model.DocumentOFX,
		Confidence:  1.0,
	}, nil
}

// ofxDescription prefers PAYEE, then NAME, and uses MEMO when NAME is generic.
func ofxDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	memo := strings.TrimSpace(string(tx.Memo))
	switch {
	case name == "":
		return memo
	case memo != "" && isGenericDescription(name):
		return name + " " + memo
	default:
		return name
	}
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE", "TRANSFER", "DIRECTDEBIT":
		return true
	}
	return false
}
