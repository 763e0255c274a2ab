// Package gorm provides GORM-based record storage for orthomate.
package gorm

import (
	"context"

	"gorm.io/gorm"

	"github.com/thebtf/orthomate/pkg/models"
)

// RecordStore saves and queries notes using GORM.
type RecordStore struct {
	store *Store
	db    *gorm.DB
}

// NewRecordStore creates a new record store.
func NewRecordStore(store *Store) *RecordStore {
	return &RecordStore{store: store, db: store.DB}
}

// Backend names the database dialect behind the store.
func (s *RecordStore) Backend() string {
	return s.store.Dialect()
}

// Ping verifies the database is reachable.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SaveRecord inserts a record. The record's ID and Date are filled in when
// empty so callers see what was persisted.
func (s *RecordStore) SaveRecord(ctx context.Context, r *models.Record) error {
	row := fromModelRecord(r)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	r.ID = row.ID
	r.Date = row.Date
	return nil
}

// FindByTemplate returns records whose template equals template exactly,
// oldest first. No match yields an empty slice.
func (s *RecordStore) FindByTemplate(ctx context.Context, template string) ([]*models.Record, error) {
	var rows []Record
	err := s.db.WithContext(ctx).
		Where("template = ?", template).
		Order("date_epoch ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelRecords(rows), nil
}
