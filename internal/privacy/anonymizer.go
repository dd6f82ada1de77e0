// Package privacy redacts personal data from text before it leaves the machine and restores it
// afterwards. Mappings live only in memory and are scoped to a single round trip.
package privacy

import (
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// PIIType is the kind of personal data a placeholder stands for.
type PIIType string

// Detected PII types.
const (
	PIIEmail   PIIType = "EMAIL"
	PIIIBAN    PIIType = "IBAN"
	PIICard    PIIType = "CARD"
	PIIPhone   PIIType = "PHONE"
	PIIAccount PIIType = "ACCOUNT"
	PIIName    PIIType = "NAME"
)

var (
	emailRegex   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ibanRegex    = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`)
	cardRegex    = regexp.MustCompile(`\b\d(?:[ \-]?\d){12,18}\b`)
	phoneRegex   = regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{1,4}\)[ .\-]?)?\d{2,4}(?:[ .\-]\d{2,4}){1,4}|\+\d{8,14}`)
	accountRegex = regexp.MustCompile(`\b\d{8,18}\b`)

	transferName = regexp.MustCompile(
		`(?i:\b(?:transfer|xfer|zelle|venmo|wire|sent|received|überweisung|virement|bonifico|transferencia)` +
			`(?:\s+(?:to|from|an|von|de|à|a|da))?)\s+` +
			`(\p{Lu}[\p{Ll}'\-]+(?:\s+\p{Lu}[\p{Ll}'\-]+){1,3}|\p{Lu}{2,}(?:\s+\p{Lu}{2,}){1,2})`)
	toFromName = regexp.MustCompile(`(?i:\b(?:to|from)\b)\s+(\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+){1,3})`)

	protectedDate = regexp.MustCompile(
		`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b|\b\d{1,2}[/.\-]\d{1,2}(?:[/.\-]|')\d{2,4}\b|` +
			`\b(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\b|` +
			`(?i:\b\d{1,2}\.?[ \-](?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?[ \-]\d{2,4}\b)`)
	protectedAmount = regexp.MustCompile(
		`[+\-−]?(?:[€$£¥₹]\s?)?\d+(?:[.,'\x{00a0}]\d{3})*[.,]\d{2}\b|[+\-−]?[€$£¥₹]\s?\d+\b`)
)

// Mapping pairs placeholders with the text they replaced. It must never be sent along with the
// anonymized text.
type Mapping struct {
	toOriginal    map[string]string
	toPlaceholder map[string]string
	counters      map[PIIType]int
}

func newMapping() *Mapping {
	return &Mapping{
		toOriginal:    make(map[string]string),
		toPlaceholder: make(map[string]string),
		counters:      make(map[PIIType]int),
	}
}

// Len is the number of placeholders.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.toOriginal)
}

// Original returns the text a placeholder replaced.
func (m *Mapping) Original(placeholder string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.toOriginal[placeholder]
	return s, ok
}

// Placeholders lists every placeholder in sorted order.
func (m *Mapping) Placeholders() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.toOriginal))
	for p := range m.toOriginal {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Placeholder returns the placeholder assigned to an original value.
func (m *Mapping) Placeholder(original string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.toPlaceholder[original]
	return s, ok
}

// placeholderFor reuses the placeholder of a repeated value and never hands out a token that
// already occurs in the source text.
func (m *Mapping) placeholderFor(kind PIIType, original, source string) string {
	if p, ok := m.toPlaceholder[original]; ok {
		return p
	}
	var p string
	for {
		m.counters[kind]++
		p = fmt.Sprintf("[%s_%d]", kind, m.counters[kind])
		if !strings.Contains(source, p) {
			break
		}
	}
	m.toOriginal[p] = original
	m.toPlaceholder[original] = p
	return p
}

// Result is the outcome of Anonymize.
type Result struct {
	Mapping        *Mapping
	AnonymizedText string
	WasModified    bool
}

type span struct {
	kind       PIIType
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Anonymizer detects personal data in free text.
type Anonymizer struct{}

// NewAnonymizer creates an Anonymizer.
func NewAnonymizer() *Anonymizer {
	return &Anonymizer{}
}

// Anonymize replaces emails, IBANs, card numbers, phone numbers, long account numbers and names in
// transfer phrases with [TYPE_N] placeholders. Dates, amounts and every occurrence of the protect
// tokens are left untouched.
func (a *Anonymizer) Anonymize(text string, protect ...string) Result {
	mapping := newMapping()
	if text == "" {
		return Result{AnonymizedText: text, Mapping: mapping}
	}

	var guarded []span
	for _, loc := range protectedDate.FindAllStringIndex(text, -1) {
		guarded = append(guarded, span{start: loc[0], end: loc[1]})
	}
	for _, loc := range protectedAmount.FindAllStringIndex(text, -1) {
		guarded = append(guarded, span{start: loc[0], end: loc[1]})
	}
	for _, token := range protect {
		if token == "" {
			continue
		}
		for offset := 0; ; {
			idx := strings.Index(text[offset:], token)
			if idx < 0 {
				break
			}
			guarded = append(guarded, span{start: offset + idx, end: offset + idx + len(token)})
			offset += idx + len(token)
		}
	}

	var found []span
	claim := func(kind PIIType, start, end int) {
		s := span{kind: kind, start: start, end: end}
		for _, g := range guarded {
			if s.overlaps(g) {
				return
			}
		}
		for _, f := range found {
			if s.overlaps(f) {
				return
			}
		}
		found = append(found, s)
	}
	// Digit runs may swallow a neighbouring date or amount; only the unprotected pieces are tested.
	pieces := func(start, end int) [][2]int {
		out := [][2]int{{start, end}}
		for _, g := range guarded {
			var next [][2]int
			for _, p := range out {
				if g.end <= p[0] || g.start >= p[1] {
					next = append(next, p)
					continue
				}
				if g.start > p[0] {
					next = append(next, [2]int{p[0], g.start})
				}
				if g.end < p[1] {
					next = append(next, [2]int{g.end, p[1]})
				}
			}
			out = next
		}
		for i, p := range out {
			out[i][0], out[i][1] = trimDigitRun(text, p[0], p[1])
		}
		return out
	}

	for _, loc := range emailRegex.FindAllStringIndex(text, -1) {
		claim(PIIEmail, loc[0], loc[1])
	}
	for _, loc := range ibanRegex.FindAllStringIndex(text, -1) {
		if validIBAN(text[loc[0]:loc[1]]) {
			claim(PIIIBAN, loc[0], loc[1])
		}
	}
	for _, loc := range cardRegex.FindAllStringIndex(text, -1) {
		for _, p := range pieces(loc[0], loc[1]) {
			for _, w := range cardWindows(text, p[0], p[1]) {
				claim(PIICard, w[0], w[1])
			}
		}
	}
	for _, loc := range accountRegex.FindAllStringIndex(text, -1) {
		claim(PIIAccount, loc[0], loc[1])
	}
	for _, loc := range phoneRegex.FindAllStringIndex(text, -1) {
		for _, p := range pieces(loc[0], loc[1]) {
			if countDigits(text[p[0]:p[1]]) >= 9 {
				claim(PIIPhone, p[0], p[1])
			}
		}
	}
	for _, re := range []*regexp.Regexp{transferName, toFromName} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			claim(PIIName, loc[2], loc[3])
		}
	}

	if len(found) == 0 {
		return Result{AnonymizedText: text, Mapping: mapping}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range found {
		b.WriteString(text[last:s.start])
		b.WriteString(mapping.placeholderFor(s.kind, text[s.start:s.end], text))
		last = s.end
	}
	b.WriteString(text[last:])

	return Result{AnonymizedText: b.String(), WasModified: true, Mapping: mapping}
}

// Deanonymize substitutes every placeholder back in a single pass. Placeholders missing from the
// mapping are left as they are.
func Deanonymize(text string, mapping *Mapping) string {
	if mapping.Len() == 0 {
		return text
	}
	pairs := make([]string, 0, 2*mapping.Len())
	for p, original := range mapping.toOriginal {
		pairs = append(pairs, p, original)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// trimDigitRun drops separators left at either end of a piece of a number. A leading '+' or '('
// stays with the digits it introduces.
func trimDigitRun(text string, start, end int) (int, int) {
	for start < end && !isDigit(text[start]) && text[start] != '+' && text[start] != '(' {
		start++
	}
	for end > start && !isDigit(text[end-1]) {
		end--
	}
	return start, end
}

// cardWindows finds Luhn-valid runs of 13 to 19 digits inside [start,end) that begin and end on
// digit-group boundaries, preferring the longest run from each starting group.
func cardWindows(text string, start, end int) [][2]int {
	type group struct{ start, end int }
	var groups []group
	for i := start; i < end; {
		if !isDigit(text[i]) {
			i++
			continue
		}
		j := i
		for j < end && isDigit(text[j]) {
			j++
		}
		groups = append(groups, group{i, j})
		i = j
	}

	var out [][2]int
	for i := 0; i < len(groups); {
		matched := -1
		digits := 0
		for j := i; j < len(groups); j++ {
			digits += groups[j].end - groups[j].start
			if digits > 19 {
				break
			}
			if digits >= 13 && luhn(text[groups[i].start:groups[j].end]) {
				matched = j
			}
		}
		if matched < 0 {
			i++
			continue
		}
		out = append(out, [2]int{groups[i].start, groups[matched].end})
		i = matched + 1
	}
	return out
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

// validIBAN applies the ISO 13616 mod-97 check.
func validIBAN(s string) bool {
	compact := strings.ReplaceAll(s, " ", "")
	if len(compact) < 15 || len(compact) > 34 {
		return false
	}
	rearranged := compact[4:] + compact[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			digits.WriteString(fmt.Sprint(int(r-'A') + 10))
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
