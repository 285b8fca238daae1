// Package textscan detects Unicode obfuscation in request content:
// invisible formatting characters that hide text from pattern matchers, and
// mixed-script homoglyph sequences that disguise flagged words.
package textscan

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Finding is one invisible-character occurrence.
type Finding struct {
	Kind      string // "zero-width", "bidi-override" or "tag-char"
	Codepoint string // e.g. "U+200B"
	Offset    int    // byte offset in the input
}

// Invisible reports every invisible formatting character in the input.
// Tab, newline and carriage return are not flagged.
func Invisible(s string) []Finding {
	var findings []Finding
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if kind := invisibleKind(r); kind != "" {
			findings = append(findings, Finding{
				Kind:      kind,
				Codepoint: fmt.Sprintf("U+%04X", r),
				Offset:    i,
			})
		}
		i += size
	}
	return findings
}

// MixedScript reports whether the input mixes Latin letters with Cyrillic or
// Greek characters that are visually confusable with Latin ones. Pure
// non-Latin text is not flagged; the signal is the mix.
func MixedScript(s string) bool {
	hasLatin := false
	hasConfusable := false
	for _, r := range s {
		if r < 128 && ((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			hasLatin = true
		} else if isConfusable(r) {
			hasConfusable = true
		}
		if hasLatin && hasConfusable {
			return true
		}
	}
	return false
}

func invisibleKind(r rune) string {
	switch r {
	case '​', // zero width space
		'‌', // zero width non-joiner
		'‍', // zero width joiner
		'⁠', // word joiner
		'\uFEFF', // zero width no-break space (BOM)
		'᠎', // mongolian vowel separator
		'‎', // left-to-right mark
		'‏': // right-to-left mark
		return "zero-width"
	case '‪', '‫', '‬', '‭', '‮',
		'⁦', '⁧', '⁨', '⁩':
		return "bidi-override"
	}
	if r >= 0xE0001 && r <= 0xE007F {
		return "tag-char"
	}
	return ""
}

func isConfusable(r rune) bool {
	if unicode.Is(unicode.Cyrillic, r) {
		_, ok := cyrillicConfusables[r]
		return ok
	}
	if unicode.Is(unicode.Greek, r) {
		_, ok := greekConfusables[r]
		return ok
	}
	return false
}

// Cyrillic letters visually confusable with Latin ones.
var cyrillicConfusables = map[rune]rune{
	'а': 'a',
	'А': 'A',
	'В': 'B',
	'с': 'c',
	'С': 'C',
	'е': 'e',
	'Е': 'E',
	'Н': 'H',
	'і': 'i',
	'І': 'I',
	'К': 'K',
	'М': 'M',
	'о': 'o',
	'О': 'O',
	'р': 'p',
	'Р': 'P',
	'Т': 'T',
	'х': 'x',
	'Х': 'X',
	'у': 'y',
	'У': 'Y',
}

// Greek letters visually confusable with Latin ones.
var greekConfusables = map[rune]rune{
	'Α': 'A',
	'Β': 'B',
	'Ε': 'E',
	'Η': 'H',
	'Ι': 'I',
	'Κ': 'K',
	'Μ': 'M',
	'Ν': 'N',
	'Ο': 'O',
	'ο': 'o',
	'Ρ': 'P',
	'Τ': 'T',
	'Υ': 'Y',
	'Χ': 'X',
	'Ζ': 'Z',
}
