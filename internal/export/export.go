// Package export renders note text into downloadable Word and PDF files.
// Only plain text is carried; no styling beyond a single body font.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Content types for exported files.
const (
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypePDF  = "application/pdf"
)

// ErrUnsupportedCharacter is returned for text that a document format cannot
// carry unchanged.
var ErrUnsupportedCharacter = errors.New("unsupported character")

var whitespaceRun = regexp.MustCompile(`\s+`)

// File is a rendered export ready to be sent as an attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Filename builds "{template}_Note.{ext}" with whitespace runs in the
// template replaced by a single underscore.
func Filename(template, ext string) string {
	return whitespaceRun.ReplaceAllString(template, "_") + "_Note." + ext
}

// lines splits note text into rendered lines. A CRLF pair is a line break
// like LF, so "a\r\nb" exports as the two lines "a" and "b".
func lines(text string) []string {
	out := strings.Split(text, "\n")
	for i, l := range out {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}

// checkText rejects invalid UTF-8 and control characters other than tab and
// line breaks. Neither document format has a representation for them.
func checkText(text string) error {
	for i, r := range text {
		switch {
		case r == utf8.RuneError:
			if _, size := utf8.DecodeRuneInString(text[i:]); size == 1 {
				return fmt.Errorf("%w: invalid UTF-8 at byte %d", ErrUnsupportedCharacter, i)
			}
		case r == '\n' || r == '\t':
		case r == '\r':
			if !strings.HasPrefix(text[i+1:], "\n") {
				return fmt.Errorf("%w: bare carriage return at byte %d", ErrUnsupportedCharacter, i)
			}
		case unicode.IsControl(r):
			return fmt.Errorf("%w: control character %U at byte %d", ErrUnsupportedCharacter, r, i)
		}
	}
	return nil
}
