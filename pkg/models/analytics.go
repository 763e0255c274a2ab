// Package models contains domain models for orthomate.
package models

// AnalyticsSnapshot holds process-local save counters. Nothing here is
// persisted; counts start at zero on every worker start.
type AnalyticsSnapshot struct {
	TemplateCount map[Template]int `json:"templateCount"`
	TotalNotes    int              `json:"totalNotes"`
}

// Clone returns a deep copy safe to hand out across goroutines.
func (a AnalyticsSnapshot) Clone() AnalyticsSnapshot {
	counts := make(map[Template]int, len(a.TemplateCount))
	for k, v := range a.TemplateCount {
		counts[k] = v
	}
	return AnalyticsSnapshot{TemplateCount: counts, TotalNotes: a.TotalNotes}
}
