// internal/protocol/decode.go
package protocol

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeLine turns raw firmware bytes into text. Valid UTF-8 passes through;
// anything else is read as code page 437, which maps every byte, so decoding
// never fails. Trailing CR/LF are removed.
func DecodeLine(raw []byte) string {
	var text string
	if utf8.Valid(raw) {
		text = string(raw)
	} else if decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw); err == nil {
		text = string(decoded)
	} else {
		text = strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return strings.TrimRight(text, "\r\n")
}
