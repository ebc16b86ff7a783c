package command

import (
	"encoding/hex"
	"unicode"
	"unicode/utf8"
)

// DescribeFrame renders a frame for debug logs: printable UTF-8 as-is,
// anything else (e.g. a binary routing id) as hex.
func DescribeFrame(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		printable := true
		for _, r := range string(b) {
			if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
				printable = false
				break
			}
		}
		if printable {
			return string(b)
		}
	}
	return "0x" + hex.EncodeToString(b)
}
