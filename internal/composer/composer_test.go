package composer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/orthomate/pkg/models"
)

var templates = []models.Template{
	"Rotator Cuff Tear",
	"Carpal Tunnel Syndrome",
	"Hip Arthritis",
	"Knee Arthritis",
	"Meniscus Tear",
	"Distal Radius Fracture",
}

// allFlags enumerates all 32 checkbox combinations.
func allFlags() []struct {
	g models.GuidelineFlags
	s models.NextSteps
} {
	var out []struct {
		g models.GuidelineFlags
		s models.NextSteps
	}
	for mask := 0; mask < 32; mask++ {
		out = append(out, struct {
			g models.GuidelineFlags
			s models.NextSteps
		}{
			g: models.GuidelineFlags{PTTried: mask&1 != 0, InjectionTried: mask&2 != 0},
			s: models.NextSteps{MRI: mask&4 != 0, Referral: mask&8 != 0, Surgery: mask&16 != 0},
		})
	}
	return out
}

func TestCompose_KneeArthritisExample(t *testing.T) {
	got := Compose("Knee Arthritis",
		models.GuidelineFlags{PTTried: true},
		models.NextSteps{MRI: true})

	want := "Patient is being evaluated for Knee Arthritis.\nPhysical therapy attempted.\nMRI ordered.\nNote aligns with MTUS/ODG standards."
	assert.Equal(t, want, got)
}

func TestCompose_NoFlags(t *testing.T) {
	got := Compose("Meniscus Tear", models.GuidelineFlags{}, models.NextSteps{})
	assert.Equal(t, "Patient is being evaluated for Meniscus Tear.\nNote aligns with MTUS/ODG standards.", got)
}

func TestCompose_AllFlagsOrder(t *testing.T) {
	got := Compose("Hip Arthritis",
		models.GuidelineFlags{PTTried: true, InjectionTried: true},
		models.NextSteps{MRI: true, Referral: true, Surgery: true})

	want := []string{
		"Patient is being evaluated for Hip Arthritis.",
		LinePT,
		LineInjection,
		LineMRI,
		LineReferral,
		LineSurgery,
		Trailer,
	}
	if diff := cmp.Diff(want, strings.Split(got, "\n")); diff != "" {
		t.Errorf("Compose lines mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, strings.HasSuffix(got, "\n"))
}

func TestCompose_HeaderAndTrailerAlwaysPresent(t *testing.T) {
	for _, tpl := range templates {
		for _, f := range allFlags() {
			got := Compose(tpl, f.g, f.s)
			lines := strings.Split(got, "\n")
			require.GreaterOrEqual(t, len(lines), 2)
			assert.Equal(t, Header(tpl), lines[0])
			assert.Equal(t, Trailer, lines[len(lines)-1])
			assert.Equal(t, got, Compose(tpl, f.g, f.s), "compose must be deterministic")
		}
	}
}

func TestCompose_SingleToggleChangesOneLine(t *testing.T) {
	type toggle struct {
		name  string
		line  string
		apply func(*models.GuidelineFlags, *models.NextSteps)
	}
	toggles := []toggle{
		{"ptTried", LinePT, func(g *models.GuidelineFlags, _ *models.NextSteps) { g.PTTried = !g.PTTried }},
		{"injectionTried", LineInjection, func(g *models.GuidelineFlags, _ *models.NextSteps) { g.InjectionTried = !g.InjectionTried }},
		{"mri", LineMRI, func(_ *models.GuidelineFlags, s *models.NextSteps) { s.MRI = !s.MRI }},
		{"referral", LineReferral, func(_ *models.GuidelineFlags, s *models.NextSteps) { s.Referral = !s.Referral }},
		{"surgery", LineSurgery, func(_ *models.GuidelineFlags, s *models.NextSteps) { s.Surgery = !s.Surgery }},
	}

	for _, f := range allFlags() {
		for _, tg := range toggles {
			g, s := f.g, f.s
			before := strings.Split(Compose("Rotator Cuff Tear", g, s), "\n")
			tg.apply(&g, &s)
			after := strings.Split(Compose("Rotator Cuff Tear", g, s), "\n")

			added, removed := lineDelta(before, after)
			switch {
			case len(after) > len(before):
				assert.Equal(t, []string{tg.line}, added, tg.name)
				assert.Empty(t, removed, tg.name)
			default:
				assert.Equal(t, []string{tg.line}, removed, tg.name)
				assert.Empty(t, added, tg.name)
			}
		}
	}
}

// lineDelta returns lines present only in after and only in before.
func lineDelta(before, after []string) (added, removed []string) {
	in := func(set []string, s string) bool {
		for _, v := range set {
			if v == s {
				return true
			}
		}
		return false
	}
	for _, l := range after {
		if !in(before, l) {
			added = append(added, l)
		}
	}
	for _, l := range before {
		if !in(after, l) {
			removed = append(removed, l)
		}
	}
	return added, removed
}
