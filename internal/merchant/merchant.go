// Package merchant turns raw statement descriptions into stable merchant names and patterns.
package merchant

import (
	"regexp"
	"strings"

	"github.com/Veraticus/spice-import/internal/textutil"
)

// Card and transfer boilerplate that banks prepend to the merchant name.
var prefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"CARD PAYMENT TO ",
	"CARD PAYMENT ",
	"CONTACTLESS ",
	"POS ",
	"SQ *",
	"SQ*",
	"TST* ",
	"TST*",
	"PAYPAL *",
	"KARTENZAHLUNG ",
	"LASTSCHRIFT ",
	"PAIEMENT CB ",
	"PAGAMENTO POS ",
	"COMPRA TARJETA ",
}

var (
	leadingDate = regexp.MustCompile(`^\d{1,2}[/.-]\d{1,2}(?:[/.-]\d{2,4})?\s+`)
	storeNumber = regexp.MustCompile(`\bstore\s*#?\s*\d+\b|#\s*\d+\b|\bno\.?\s*\d+\b`)
	trailingRef = regexp.MustCompile(`(?:\s+[a-z]*\d[a-z0-9]*)+$`)
)

// DisplayName strips bank boilerplate from a description, keeping the original casing.
func DisplayName(description string) string {
	name := strings.TrimSpace(description)
	name = leadingDate.ReplaceAllString(name, "")

	upper := strings.ToUpper(name)
	for _, prefix := range prefixes {
		if strings.HasPrefix(upper, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	name = leadingDate.ReplaceAllString(name, "")
	return textutil.CollapseSpaces(name)
}

// Normalize produces the lookup key for a merchant: folded, without boilerplate, store numbers
// or trailing reference codes. It returns "" when nothing meaningful is left.
func Normalize(name string) string {
	key := textutil.Fold(DisplayName(name))
	key = storeNumber.ReplaceAllString(key, " ")
	key = textutil.Normalize(key)
	stripped := trailingRef.ReplaceAllString(key, "")
	if stripped != "" {
		key = stripped
	}
	return key
}

// Matches reports whether a normalized pattern occurs in the description on word boundaries.
func Matches(pattern, description string) bool {
	if pattern == "" {
		return false
	}
	return textutil.ContainsWord(Normalize(description), pattern)
}
