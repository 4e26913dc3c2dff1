package protocol

import (
	"regexp"
	"strings"
)

var nonWordRun = regexp.MustCompile(`\W+`)

// cleanText tidies fixed-width label fields from the panel: NUL padding
// becomes spaces, runs of non-word characters collapse to a single space,
// and the result is trimmed.
func cleanText(raw []byte) string {
	s := strings.ReplaceAll(string(raw), "\x00", " ")
	s = nonWordRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// decodeBCD extracts the decimal digits of a packed BCD field, skipping
// nibbles above 9 (0xF pads unused positions and terminates tags).
func decodeBCD(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		for _, nibble := range [2]byte{c >> 4, c & 0x0F} {
			if nibble <= 9 {
				b.WriteByte('0' + nibble)
			}
		}
	}
	return b.String()
}
