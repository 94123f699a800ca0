package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dayFormat          = "2006-01-02"
	defaultSummaryDays = 30
)

var errMissingRecorderDatabase = errors.New("analytics recorder: database handle is required")

// RecorderConfig wires the analytics recorder dependencies.
type RecorderConfig struct {
	Database *gorm.DB
	Enabled  bool
	Location *time.Location
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Recorder appends interaction events and keeps the per-day rollup in step.
// When disabled it swallows events silently so callers never branch on the
// analytics toggle.
type Recorder struct {
	db       *gorm.DB
	enabled  bool
	location *time.Location
	clock    func() time.Time
	logger   *zap.Logger
}

// NewRecorder constructs a Recorder with validated configuration.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, errMissingRecorderDatabase
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		db:       cfg.Database,
		enabled:  cfg.Enabled,
		location: loc,
		clock:    clock,
		logger:   logger,
	}, nil
}

// LogEvent appends one event and updates the day's stat row in the same
// transaction. A view bumps total_views, and unique_visitors on the hash's
// first view of the day; a share bumps total_shares.
func (r *Recorder) LogEvent(ctx context.Context, kind EventKind, fortuneID uint, visitorHash, userAgent, referrer string) error {
	if !r.enabled {
		return nil
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("analytics recorder: event id: %w", err)
	}

	now := r.clock()
	today := now.In(r.location).Format(dayFormat)

	event := Event{
		ID:          eventID.String(),
		Kind:        kind,
		FortuneID:   fortuneID,
		VisitorHash: visitorHash,
		UserAgent:   userAgent,
		Referrer:    referrer,
		CreatedAt:   now,
	}

	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stat_date"}},
			DoNothing: true,
		}).Create(&DailyStat{Date: today}).Error; err != nil {
			return err
		}

		switch kind {
		case EventView:
			if err := tx.Model(&DailyStat{}).
				Where("stat_date = ?", today).
				UpdateColumn("total_views", gorm.Expr("total_views + 1")).Error; err != nil {
				return err
			}
			var priorViews int64
			if err := tx.Model(&Event{}).
				Where("visitor_hash = ? AND event_type = ? AND created_at >= ? AND id <> ?",
					visitorHash, EventView, startOfDay(now, r.location), event.ID).
				Count(&priorViews).Error; err != nil {
				return err
			}
			if priorViews == 0 {
				if err := tx.Model(&DailyStat{}).
					Where("stat_date = ?", today).
					UpdateColumn("unique_visitors", gorm.Expr("unique_visitors + 1")).Error; err != nil {
					return err
				}
			}
		case EventShare:
			if err := tx.Model(&DailyStat{}).
				Where("stat_date = ?", today).
				UpdateColumn("total_shares", gorm.Expr("total_shares + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return fmt.Errorf("analytics recorder: log %s: %w", kind, txErr)
	}
	return nil
}

// Summary returns the daily rollups for the trailing days window, newest
// first.
func (r *Recorder) Summary(ctx context.Context, days int) ([]DailyStat, error) {
	if days < 1 {
		days = defaultSummaryDays
	}
	cutoff := r.clock().In(r.location).AddDate(0, 0, -days).Format(dayFormat)

	var stats []DailyStat
	err := r.db.WithContext(ctx).
		Where("stat_date >= ?", cutoff).
		Order("stat_date DESC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("analytics recorder: summary: %w", err)
	}
	return stats, nil
}

// TotalStats sums the daily rollups across all recorded days.
func (r *Recorder) TotalStats(ctx context.Context) (Totals, error) {
	var totals Totals
	err := r.db.WithContext(ctx).
		Model(&DailyStat{}).
		Select("COALESCE(SUM(total_views),0) AS views, COALESCE(SUM(unique_visitors),0) AS visitors, COALESCE(SUM(total_shares),0) AS shares").
		Scan(&totals).Error
	if err != nil {
		return Totals{}, fmt.Errorf("analytics recorder: totals: %w", err)
	}
	return totals, nil
}

func startOfDay(at time.Time, loc *time.Location) time.Time {
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
