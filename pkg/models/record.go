// Package models contains domain models for orthomate.
package models

import (
	"time"
)

// DateLayout renders record dates as ISO-8601 UTC with millisecond precision.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Record is the immutable snapshot persisted when a note is saved.
type Record struct {
	ID       string      `json:"id"`
	Patient  PatientInfo `json:"patient"`
	Template Template    `json:"template"`
	Note     string      `json:"note"`
	Date     string      `json:"date"`
}

// NewRecord builds a record stamped with the given save time.
func NewRecord(id string, patient PatientInfo, template Template, note string, at time.Time) *Record {
	return &Record{
		ID:       id,
		Patient:  patient,
		Template: template,
		Note:     note,
		Date:     at.UTC().Format(DateLayout),
	}
}

// SavedAt parses Date back into a time. Records written by other clients may
// carry plain RFC3339 dates, so both layouts are accepted.
func (r *Record) SavedAt() (time.Time, error) {
	if t, err := time.Parse(DateLayout, r.Date); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, r.Date)
}
