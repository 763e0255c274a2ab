package export

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/go-pdf/fpdf"
)

const (
	pdfFont       = "DejaVu"
	pdfFontSize   = 12
	pdfMargin     = 20.0
	pdfLineHeight = 6.0
)

// bodyFont is embedded so that every character in the Basic Multilingual
// Plane renders, not only the Latin-1 subset of the core fonts.
//
//go:embed fonts/DejaVuSansCondensed.ttf
var bodyFont []byte

// textShow matches one uncompressed text object as written by Fpdf.Text.
var textShow = regexp.MustCompile(`(?s)BT [-\d.]+ [-\d.]+ Td \(((?:\\.|[^\\)])*)\) Tj ET`)

// PDF renders text on A4 pages, one text object per line. Lines wider than
// the printable width are wrapped at spaces; a new page starts when the
// current one is full.
func PDF(text, filename string) (*File, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	for _, r := range text {
		if r > 0xFFFF {
			return nil, fmt.Errorf("%w: %U is outside the Basic Multilingual Plane", ErrUnsupportedCharacter, r)
		}
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AddUTF8FontFromBytes(pdfFont, "", bodyFont)
	pdf.SetFont(pdfFont, "", pdfFontSize)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	width := pageW - 2*pdfMargin
	bottom := pageH - pdfMargin
	y := pdfMargin + pdfLineHeight

	for _, line := range lines(text) {
		rows := []string{line}
		if pdf.GetStringWidth(line) > width {
			rows = pdf.SplitText(line, width)
		}
		for _, row := range rows {
			if y > bottom {
				pdf.AddPage()
				y = pdfMargin + pdfLineHeight
			}
			pdf.Text(pdfMargin, y, row)
			y += pdfLineHeight
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &File{Name: filename, ContentType: ContentTypePDF, Data: buf.Bytes()}, nil
}

// PDFText extracts the text objects written by PDF, one per line. It only
// understands uncompressed content streams with UTF-16BE strings.
func PDFText(data []byte) string {
	matches := textShow.FindAllSubmatch(data, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, decodeUTF16BE(unescapePDF(string(m[1]))))
	}
	return strings.Join(out, "\n")
}

func decodeUTF16BE(s string) string {
	units := make([]uint16, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		units = append(units, uint16(s[i])<<8|uint16(s[i+1]))
	}
	return string(utf16.Decode(units))
}

func unescapePDF(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
