// Package escape renders untrusted strings on a single printable line for
// logs and diagnostics.
package escape

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Escape returns s with control characters, quotes and backslashes escaped.
// Everything outside printable ASCII becomes \uXXXX; code points beyond the
// BMP are written as a UTF-16 surrogate pair.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			if r >= 0x20 && r <= 0x7e {
				b.WriteRune(r)
				continue
			}
			if r > 0xffff {
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
				continue
			}
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}

// Quote is Escape wrapped in double quotes.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

// Optional renders a value that may be missing: "(none)" when absent,
// "(empty)" when present but empty.
func Optional(s string, present bool) string {
	switch {
	case !present:
		return "(none)"
	case s == "":
		return "(empty)"
	default:
		return Escape(s)
	}
}

// Byte renders a single raw byte from a message header.
func Byte(c byte) string {
	return Escape(string(rune(c)))
}
