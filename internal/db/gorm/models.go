// Package gorm provides GORM-based record storage for orthomate.
package gorm

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/orthomate/pkg/models"
)

// ErrRecordImmutable is returned when something tries to update a saved record.
var ErrRecordImmutable = errors.New("records are immutable once saved")

// Record represents a saved clinical note.
type Record struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Template    string `gorm:"type:text;not null;index:idx_records_template_date,priority:1"`
	PatientName string `gorm:"type:text"`
	PatientDOB  string `gorm:"column:patient_dob;type:text"`
	PatientMRN  string `gorm:"column:patient_mrn;type:text;index"`
	Note        string `gorm:"type:text;not null"`
	Date        string `gorm:"not null"`
	DateEpoch   int64  `gorm:"not null;index:idx_records_template_date,priority:2"`
}

func (Record) TableName() string { return "records" }

// BeforeCreate hook to ensure the id and epoch are set.
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Date == "" {
		r.Date = time.Now().UTC().Format(models.DateLayout)
	}
	if r.DateEpoch == 0 {
		saved := models.Record{Date: r.Date}
		if t, err := saved.SavedAt(); err == nil {
			r.DateEpoch = t.UnixMilli()
		} else {
			r.DateEpoch = time.Now().UnixMilli()
		}
	}
	return nil
}

// BeforeUpdate rejects every update.
func (r *Record) BeforeUpdate(tx *gorm.DB) error {
	return ErrRecordImmutable
}

func fromModelRecord(r *models.Record) *Record {
	return &Record{
		ID:          r.ID,
		Template:    string(r.Template),
		PatientName: r.Patient.Name,
		PatientDOB:  r.Patient.DOB,
		PatientMRN:  r.Patient.MRN,
		Note:        r.Note,
		Date:        r.Date,
	}
}

func toModelRecord(r *Record) *models.Record {
	return &models.Record{
		ID: r.ID,
		Patient: models.PatientInfo{
			Name: r.PatientName,
			DOB:  r.PatientDOB,
			MRN:  r.PatientMRN,
		},
		Template: models.Template(r.Template),
		Note:     r.Note,
		Date:     r.Date,
	}
}

func toModelRecords(records []Record) []*models.Record {
	result := make([]*models.Record, len(records))
	for i := range records {
		result[i] = toModelRecord(&records[i])
	}
	return result
}
