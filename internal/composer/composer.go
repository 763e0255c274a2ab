// Package composer assembles templated note text from a diagnosis template
// and the visit checkboxes.
package composer

import (
	"strings"

	"github.com/thebtf/orthomate/pkg/models"
)

// Fixed sentences, in output order.
const (
	LinePT        = "Physical therapy attempted."
	LineInjection = "Cortisone injection attempted."
	LineMRI       = "MRI ordered."
	LineReferral  = "Referral to specialist made."
	LineSurgery   = "Surgical intervention scheduled."
	Trailer       = "Note aligns with MTUS/ODG standards."
)

// Header returns the opening sentence for a template.
func Header(template models.Template) string {
	return "Patient is being evaluated for " + string(template) + "."
}

// Compose builds the note. Every line is newline-terminated except the
// trailer, which is always last.
func Compose(template models.Template, guidelines models.GuidelineFlags, steps models.NextSteps) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(Header(template))
	if guidelines.PTTried {
		line(LinePT)
	}
	if guidelines.InjectionTried {
		line(LineInjection)
	}
	if steps.MRI {
		line(LineMRI)
	}
	if steps.Referral {
		line(LineReferral)
	}
	if steps.Surgery {
		line(LineSurgery)
	}
	b.WriteString(Trailer)
	return b.String()
}
