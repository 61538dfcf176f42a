// Package charset converts between the IBM PC code page 437 and Unicode
package charset

import "strings"

// reverse maps a glyph to the first byte that shows it. Byte 0 is left out, so a plain space
// always encodes as 0x20.
var reverse = func() map[rune]byte {
	m := make(map[rune]byte, len(CP437))
	for i := len(CP437) - 1; i > 0; i-- {
		m[CP437[i]] = byte(i)
	}
	return m
}()

// DecodeByte returns the glyph for b. Bytes below 0x20 stay as they are unless controlChars is set.
func DecodeByte(b byte, controlChars bool) rune {
	if b >= 0x20 || controlChars {
		return CP437[b]
	}
	return rune(b)
}

// Decode transliterates CP437 data into a UTF-8 string
func Decode(data []byte, controlChars bool) string {
	var s strings.Builder
	s.Grow(len(data))
	for _, b := range data {
		s.WriteRune(DecodeByte(b, controlChars))
	}
	return s.String()
}

// Encode transliterates a UTF-8 string into CP437 bytes. Runes without a CP437 glyph are kept
// as their low byte when they fit one, and dropped to '?' otherwise.
func Encode(s string) []byte {
	result := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := reverse[r]; ok {
			result = append(result, b)
		} else if r < 0x100 {
			result = append(result, byte(r))
		} else {
			result = append(result, '?')
		}
	}
	return result
}

// IsCP437 reports whether r has a CP437 glyph
func IsCP437(r rune) bool {
	if r == CP437[0] {
		return true
	}
	_, ok := reverse[r]
	return ok
}

// IsText reports whether s is entirely non-NUL 7-bit ASCII and/or characters that CP437 can show.
// Invalid UTF-8 is never text.
func IsText(s string) bool {
	for _, r := range s {
		if r == 0 || r >= 0x80 && !IsCP437(r) {
			return false
		}
	}
	return true
}
