// Package analytics keeps the dashboard's in-process save counters and
// mirrors them to OpenTelemetry instruments.
package analytics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/orthomate/pkg/models"
)

const meterName = "github.com/thebtf/orthomate/internal/analytics"

// Tracker counts saved notes per template. Counts live only in memory and
// reset when the process restarts.
type Tracker struct {
	mu            sync.RWMutex
	totalNotes    int
	templateCount map[models.Template]int
	saved         metric.Int64Counter
}

// NewTracker creates a tracker using the global meter provider, which is a
// no-op unless the host process installs one.
func NewTracker() *Tracker {
	return NewTrackerWithMeter(otel.Meter(meterName))
}

// NewTrackerWithMeter creates a tracker reporting through meter.
func NewTrackerWithMeter(meter metric.Meter) *Tracker {
	t := &Tracker{templateCount: make(map[models.Template]int)}
	counter, err := meter.Int64Counter("orthomate.notes.saved",
		metric.WithDescription("Notes saved to the record store"),
		metric.WithUnit("{note}"))
	if err == nil {
		t.saved = counter
	}
	return t
}

// RecordSave counts one successful save for template.
func (t *Tracker) RecordSave(ctx context.Context, template models.Template) {
	t.mu.Lock()
	t.totalNotes++
	t.templateCount[template]++
	t.mu.Unlock()

	if t.saved != nil {
		t.saved.Add(ctx, 1, metric.WithAttributes(attribute.String("template", string(template))))
	}
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() models.AnalyticsSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.AnalyticsSnapshot{
		TotalNotes:    t.totalNotes,
		TemplateCount: t.templateCount,
	}.Clone()
}
