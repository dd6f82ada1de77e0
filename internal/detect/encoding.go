package detect

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding is the text encoding of a document.
type Encoding string

// Encodings recognized from a byte order mark.
const (
	EncodingUTF8    Encoding = "UTF-8"
	EncodingUTF16LE Encoding = "UTF-16LE"
	EncodingUTF16BE Encoding = "UTF-16BE"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding inspects the leading bytes for a byte order mark. Without one it reports UTF-8.
func DetectEncoding(content []byte) Encoding {
	switch {
	case bytes.HasPrefix(content, bomUTF8):
		return EncodingUTF8
	case bytes.HasPrefix(content, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(content, bomUTF16BE):
		return EncodingUTF16BE
	default:
		return EncodingUTF8
	}
}

// Decode converts document bytes to a UTF-8 string with any byte order mark removed.
// Content without a BOM that is not valid UTF-8 is read as Windows-1252, which is what
// most bank exports without a BOM turn out to be.
func Decode(content []byte) (string, error) {
	if DetectEncoding(content) != EncodingUTF8 || bytes.HasPrefix(content, bomUTF8) {
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, content)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s content: %w", DetectEncoding(content), err)
		}
		return string(out), nil
	}

	if utf8.Valid(content) {
		return string(content), nil
	}

	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), content)
	if err != nil {
		return "", fmt.Errorf("failed to decode legacy content: %w", err)
	}
	return string(out), nil
}
