package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/textutil"
)

// ErrInvalidDate is returned when a value cannot be read as a calendar date.
var ErrInvalidDate = errors.New("invalid date")

var (
	isoDate     = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})(?:[T ].*)?$`)
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	// numericDate also covers QIF years written after an apostrophe ("1/15'24", "1/15' 4").
	numericDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})(?:[/.\-]\s*|'\s*)(\d{1,4})$`)
	dayNameYear = regexp.MustCompile(`^(\d{1,2})[\s.\-/]+([^\d\s.,/\-]+)\.?[\s.\-/]+(\d{2,4})$`)
	nameDayYear = regexp.MustCompile(`^([^\d\s.,/\-]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
)

// monthNames maps folded month names and abbreviations in the languages bank exports use.
var monthNames = map[string]time.Month{
	"jan": 1, "january": 1, "januar": 1, "janv": 1, "janvier": 1, "ene": 1, "enero": 1, "gen": 1, "gennaio": 1, "januari": 1,
	"feb": 2, "february": 2, "februar": 2, "fev": 2, "fevr": 2, "fevrier": 2, "febrero": 2, "febbraio": 2, "februari": 2,
	"mar": 3, "march": 3, "marz": 3, "mars": 3, "marzo": 3, "maart": 3,
	"apr": 4, "april": 4, "avr": 4, "avril": 4, "abr": 4, "abril": 4, "aprile": 4,
	"may": 5, "mai": 5, "mayo": 5, "mag": 5, "maggio": 5, "mei": 5,
	"jun": 6, "june": 6, "juni": 6, "juin": 6, "junio": 6, "giu": 6, "giugno": 6,
	"jul": 7, "july": 7, "juli": 7, "juil": 7, "juillet": 7, "julio": 7, "lug": 7, "luglio": 7,
	"aug": 8, "august": 8, "aout": 8, "ago": 8, "agosto": 8, "augustus": 8,
	"sep": 9, "sept": 9, "september": 9, "septembre": 9, "septiembre": 9, "set": 9, "settembre": 9,
	"oct": 10, "october": 10, "okt": 10, "oktober": 10, "octobre": 10, "octubre": 10, "ott": 10, "ottobre": 10,
	"nov": 11, "november": 11, "novembre": 11, "noviembre": 11,
	"dec": 12, "december": 12, "dez": 12, "dezember": 12, "decembre": 12, "dic": 12, "diciembre": 12, "dicembre": 12,
}

// ParseDate reads a calendar date. order decides how two-number dates like 03/04/2024 are read;
// with DateOrderUnknown a component above 12 settles it, otherwise month comes first.
func ParseDate(raw string, order detect.DateOrder) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3], raw)
	}
	if m := compactDate.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3], raw)
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		a, b := atoi(m[1]), atoi(m[2])
		switch resolveOrder(a, b, order) {
		case detect.DateOrderDMY:
			return buildDate(m[3], m[2], m[1], raw)
		default:
			return buildDate(m[3], m[1], m[2], raw)
		}
	}
	if m := dayNameYear.FindStringSubmatch(s); m != nil {
		if month, ok := lookupMonth(m[2]); ok {
			return buildDate(m[3], strconv.Itoa(int(month)), m[1], raw)
		}
	}
	if m := nameDayYear.FindStringSubmatch(s); m != nil {
		if month, ok := lookupMonth(m[1]); ok {
			return buildDate(m[3], strconv.Itoa(int(month)), m[2], raw)
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func resolveOrder(a, b int, order detect.DateOrder) detect.DateOrder {
	switch {
	case a > 12:
		return detect.DateOrderDMY
	case b > 12:
		return detect.DateOrderMDY
	case order == detect.DateOrderDMY:
		return detect.DateOrderDMY
	default:
		return detect.DateOrderMDY
	}
}

func lookupMonth(name string) (time.Month, bool) {
	m, ok := monthNames[strings.TrimSuffix(textutil.Fold(name), ".")]
	return m, ok
}

func buildDate(year, month, day, raw string) (time.Time, error) {
	y, mo, d := atoi(year), atoi(month), atoi(day)
	switch {
	case len(strings.TrimSpace(year)) <= 2 && y < 70:
		y += 2000
	case len(strings.TrimSpace(year)) <= 2:
		y += 1900
	}
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, fmt.Errorf("%w: %q does not exist", ErrInvalidDate, raw)
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// InferDateOrder scans a column of date values. A first component above 12 anywhere means
// day-first, a second component above 12 means month-first. Without such evidence the hint
// is used, and failing that month-first is assumed and reported as ambiguous.
func InferDateOrder(samples []string, hint detect.DateOrder) (detect.DateOrder, bool) {
	dmy, mdy, numeric := 0, 0, 0
	for _, raw := range samples {
		m := numericDate.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		numeric++
		a, b := atoi(m[1]), atoi(m[2])
		if a > 12 {
			dmy++
		}
		if b > 12 {
			mdy++
		}
	}

	switch {
	case numeric == 0:
		return detect.DateOrderUnknown, false
	case dmy > 0 && mdy == 0:
		return detect.DateOrderDMY, false
	case mdy > 0 && dmy == 0:
		return detect.DateOrderMDY, false
	case hint == detect.DateOrderDMY || hint == detect.DateOrderMDY:
		return hint, false
	default:
		return detect.DateOrderMDY, true
	}
}

// dateOnly drops the time of day, keeping the calendar date as written.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
