package fortune

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingStoreDatabase = errors.New("fortune store: database handle is required")

// Store persists fortune rows. All access goes through the injected gorm
// handle; the store never owns a process-wide connection.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store over the provided database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingStoreDatabase
	}
	return &Store{db: db}, nil
}

// CountForDate returns how many fortune rows exist for the given calendar day.
func (s *Store) CountForDate(ctx context.Context, date string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Fortune{}).
		Where("fortune_date = ?", date).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("fortune store: count for %s: %w", date, err)
	}
	return int(count), nil
}

// Upsert writes the fortune text for (date, slot) with insert-or-replace
// semantics. A retried replenishment overwrites partial rows from a failed
// prior attempt.
func (s *Store) Upsert(ctx context.Context, date string, slot int, text string) error {
	row := Fortune{Text: text, Date: date, Slot: slot}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fortune_date"}, {Name: "slot"}},
			DoUpdates: clause.AssignmentColumns([]string{"fortune_text"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("fortune store: upsert %s slot %d: %w", date, slot, err)
	}
	return nil
}

// BySlot fetches the fortune for (date, slot). Returns ErrNotFound when the
// slot has no row for that day.
func (s *Store) BySlot(ctx context.Context, date string, slot int) (Fortune, error) {
	var row Fortune
	err := s.db.WithContext(ctx).
		Where("fortune_date = ? AND slot = ?", date, slot).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Fortune{}, fmt.Errorf("%w: %s slot %d", ErrNotFound, date, slot)
	}
	if err != nil {
		return Fortune{}, fmt.Errorf("fortune store: fetch %s slot %d: %w", date, slot, err)
	}
	return row, nil
}

// ForDate returns all fortunes for the given day ordered by slot.
func (s *Store) ForDate(ctx context.Context, date string) ([]Fortune, error) {
	var rows []Fortune
	err := s.db.WithContext(ctx).
		Where("fortune_date = ?", date).
		Order("slot ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fortune store: list for %s: %w", date, err)
	}
	return rows, nil
}
