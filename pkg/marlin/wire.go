// pkg/marlin/wire.go
package marlin

import (
	"fmt"
	"strconv"
)

// Checksum returns the XOR of every byte of "N<seq><text>". Non-ASCII text
// contributes its UTF-8 bytes, which is what the firmware sums on receipt.
func Checksum(seq int, text string) byte {
	var cs byte
	for _, b := range []byte("N" + strconv.Itoa(seq) + text) {
		cs ^= b
	}
	return cs
}

// Encode frames text as a numbered, checksummed line: N<seq><text>*<checksum>\n
func Encode(seq int, text string) []byte {
	return []byte(fmt.Sprintf("N%d%s*%d\n", seq, text, Checksum(seq, text)))
}

// EncodeRaw frames text without numbering or checksum
func EncodeRaw(text string) []byte {
	return []byte(text + "\n")
}

// SetLineNumber returns the M110 command that makes next the following expected line number
func SetLineNumber(next int) string {
	return fmt.Sprintf("M110 N%d", next-1)
}
