// Package escape decodes the small set of textual escapes pPEG
// recognises inside '...'/"..."  literals and [...] character classes:
// \t \n \r \\ \uHHHH.
package escape

import "strings"

// Decode replaces each recognised escape in s with its codepoint. A
// backslash that does not start a recognised escape is preserved
// literally, along with the rune that follows it; this means a lone
// backslash is never "eaten" on its own. An invalid \u (fewer than
// four remaining runes, or a non-hex digit among them) likewise
// passes the backslash and the following rune through unchanged,
// leaving the rest of the \u escape to be scanned as ordinary text.
func Decode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	r := []rune(s)
	for i := 0; i < len(r); i++ {
		c := r[i]
		if c != '\\' || i+1 >= len(r) {
			b.WriteRune(c)
			continue
		}
		switch r[i+1] {
		case 't':
			b.WriteRune('\t')
			i++
		case 'n':
			b.WriteRune('\n')
			i++
		case 'r':
			b.WriteRune('\r')
			i++
		case '\\':
			b.WriteRune('\\')
			i++
		case 'u':
			if cp, ok := decodeHex4(r, i+2); ok {
				b.WriteRune(cp)
				i += 5
			} else {
				b.WriteRune(c)
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// decodeHex4 reads exactly four hex digits starting at index start
// and returns the codepoint they encode.
func decodeHex4(r []rune, start int) (rune, bool) {
	if start+4 > len(r) {
		return 0, false
	}
	var v rune
	for i := 0; i < 4; i++ {
		d, ok := hexDigit(r[start+i])
		if !ok {
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

func hexDigit(c rune) (rune, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
