// Package detect classifies import documents and recovers the hints parsers need:
// delimiter, text encoding and institution-specific locale conventions.
package detect

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/Veraticus/spice-import/internal/model"
)

// sniffLines is how many non-empty lines delimiter analysis looks at.
const sniffLines = 10

var (
	pdfMagic  = []byte("%PDF-")
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	gifMagic  = []byte("GIF8")
	tiffLE    = []byte{'I', 'I', 0x2A, 0x00}
	tiffBE    = []byte{'M', 'M', 0x00, 0x2A}
)

// candidate delimiters in tie-break order; comma wins ties.
var delimiters = []rune{',', ';', '\t', '|'}

// Detection is the result of classifying a document.
type Detection struct {
	Type model.DocumentType
	// Delimiter is set for CSV documents.
	Delimiter rune
	Encoding  Encoding
}

// Detect classifies a document from its content, falling back to the filename extension when
// content is absent or inconclusive. It never fails; unrecognized input is DocumentUnknown.
func Detect(filename string, content []byte) Detection {
	enc := DetectEncoding(content)
	if len(content) > 0 {
		if t, ok := detectBinary(content); ok {
			return Detection{Type: t, Encoding: enc}
		}

		text, err := Decode(content)
		if err == nil {
			if t, ok := detectHeader(text); ok {
				return Detection{Type: t, Encoding: enc}
			}
			if delim, ok := DetectDelimiter(text); ok {
				return Detection{Type: model.DocumentCSV, Delimiter: delim, Encoding: enc}
			}
		}
	}

	d := Detection{Type: detectExtension(filename), Encoding: enc}
	if d.Type == model.DocumentCSV {
		d.Delimiter = ','
		if strings.EqualFold(filepath.Ext(filename), ".tsv") {
			d.Delimiter = '\t'
		}
	}
	return d
}

func detectBinary(content []byte) (model.DocumentType, bool) {
	switch {
	case bytes.HasPrefix(content, pdfMagic):
		return model.DocumentPDF, true
	case bytes.HasPrefix(content, pngMagic),
		bytes.HasPrefix(content, jpegMagic),
		bytes.HasPrefix(content, gifMagic),
		bytes.HasPrefix(content, tiffLE),
		bytes.HasPrefix(content, tiffBE):
		return model.DocumentImage, true
	}
	return model.DocumentUnknown, false
}

func detectHeader(text string) (model.DocumentType, bool) {
	head := strings.TrimLeft(text, " \t\r\n")
	if len(head) > 512 {
		head = head[:512]
	}
	upper := strings.ToUpper(head)
	switch {
	case strings.HasPrefix(upper, "OFXHEADER:"),
		strings.HasPrefix(upper, "<?OFX"),
		strings.HasPrefix(upper, "<OFX>"),
		strings.HasPrefix(upper, "<?XML") && strings.Contains(upper, "<?OFX"):
		return model.DocumentOFX, true
	case strings.HasPrefix(upper, "!TYPE:"),
		strings.HasPrefix(upper, "!ACCOUNT"),
		strings.HasPrefix(upper, "!OPTION:"):
		return model.DocumentQIF, true
	}
	return model.DocumentUnknown, false
}

// DetectDelimiter counts candidate delimiters outside quoted spans across the first lines and
// returns the most frequent one. The second result is false when no candidate occurs at all.
func DetectDelimiter(text string) (rune, bool) {
	counts := make(map[rune]int, len(delimiters))
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		countOutsideQuotes(line, counts)
		seen++
		if seen >= sniffLines {
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range delimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best, bestCount > 0
}

func countOutsideQuotes(line string, counts map[rune]int) {
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, d := range delimiters {
			if r == d {
				counts[d]++
			}
		}
	}
}

func detectExtension(filename string) model.DocumentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv":
		return model.DocumentCSV
	case ".ofx", ".qfx":
		return model.DocumentOFX
	case ".qif":
		return model.DocumentQIF
	case ".pdf":
		return model.DocumentPDF
	case ".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".heic", ".webp":
		return model.DocumentImage
	default:
		return model.DocumentUnknown
	}
}
