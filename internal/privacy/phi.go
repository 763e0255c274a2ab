// Package privacy masks patient identifiers before they reach log output.
package privacy

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// numberRunRegex matches digit runs long enough to be an MRN, phone number
// or date component.
var numberRunRegex = regexp.MustCompile(`\d{4,}`)

// MaskIdentifier hides all but the last two characters of an identifier
// such as an MRN.
func MaskIdentifier(id string) string {
	id = strings.TrimSpace(id)
	n := utf8.RuneCountInString(id)
	if n == 0 {
		return ""
	}
	if n <= 2 {
		return strings.Repeat("*", n)
	}
	r := []rune(id)
	return strings.Repeat("*", n-2) + string(r[n-2:])
}

// Initials reduces a name to its initials, e.g. "Jane Roe" -> "J.R.".
func Initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(part)
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			b.WriteByte('.')
		}
	}
	return b.String()
}

// ScrubNumbers replaces long digit runs in free text with '#'.
func ScrubNumbers(text string) string {
	return numberRunRegex.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat("#", len(m))
	})
}
