package fortune

import (
	"errors"
	"time"
)

// DayFormat is the calendar-day key used across fortunes, sessions and stats.
const DayFormat = "2006-01-02"

var (
	// ErrGeneration indicates the fortune provider call failed before parsing.
	ErrGeneration = errors.New("fortune: generation failed")
	// ErrNotFound indicates no fortune row exists for the requested day and slot.
	ErrNotFound = errors.New("fortune: not found")
)

// Fortune models one of the day's numbered fortune variants. At most one row
// exists per (fortune_date, slot); a new day supersedes old rows without
// deleting them.
type Fortune struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Text      string    `gorm:"column:fortune_text;type:text;not null"`
	Date      string    `gorm:"column:fortune_date;size:10;not null;uniqueIndex:idx_fortune_date_slot,priority:1;index:idx_fortune_date"`
	Slot      int       `gorm:"column:slot;not null;default:1;uniqueIndex:idx_fortune_date_slot,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Fortune) TableName() string {
	return "fortunes"
}

// Day formats a point in time as a calendar-day key in the given location.
func Day(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return at.In(loc).Format(DayFormat)
}
