package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analytics_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Event{}, &DailyStat{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestRecorder(t *testing.T, db *gorm.DB, enabled bool) *Recorder {
	t.Helper()
	recorder, err := NewRecorder(RecorderConfig{
		Database: db,
		Enabled:  enabled,
		Location: time.UTC,
		Clock:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("unexpected recorder error: %v", err)
	}
	return recorder
}

func todayStat(t *testing.T, db *gorm.DB) DailyStat {
	t.Helper()
	var stat DailyStat
	if err := db.Where("stat_date = ?", "2026-09-01").Take(&stat).Error; err != nil {
		t.Fatalf("daily stat row missing: %v", err)
	}
	return stat
}

func TestLogEventCountsViewsAndUniqueVisitors(t *testing.T) {
	db := openTestDB(t)
	recorder := newTestRecorder(t, db, true)
	ctx := context.Background()

	if err := recorder.LogEvent(ctx, EventView, 1, "hash-a", "agent", ""); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
	if err := recorder.LogEvent(ctx, EventView, 1, "hash-a", "agent", ""); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
	if err := recorder.LogEvent(ctx, EventView, 2, "hash-b", "agent", ""); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}

	stat := todayStat(t, db)
	if stat.TotalViews != 3 {
		t.Fatalf("expected 3 views, got %d", stat.TotalViews)
	}
	if stat.UniqueVisitors != 2 {
		t.Fatalf("expected 2 unique visitors, got %d", stat.UniqueVisitors)
	}
	if stat.TotalShares != 0 {
		t.Fatalf("expected no shares yet, got %d", stat.TotalShares)
	}
}

func TestLogEventCountsShares(t *testing.T) {
	db := openTestDB(t)
	recorder := newTestRecorder(t, db, true)
	ctx := context.Background()

	if err := recorder.LogEvent(ctx, EventShare, 1, "hash-a", "agent", "https://example.com"); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}

	stat := todayStat(t, db)
	if stat.TotalShares != 1 {
		t.Fatalf("expected 1 share, got %d", stat.TotalShares)
	}
	if stat.TotalViews != 0 {
		t.Fatalf("shares must not bump views, got %d", stat.TotalViews)
	}

	var event Event
	if err := db.Take(&event).Error; err != nil {
		t.Fatalf("event row missing: %v", err)
	}
	if event.Kind != EventShare || event.FortuneID != 1 {
		t.Fatalf("unexpected event row: %+v", event)
	}
	if event.ID == "" {
		t.Fatalf("event id must be assigned")
	}
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	db := openTestDB(t)
	recorder := newTestRecorder(t, db, false)

	if err := recorder.LogEvent(context.Background(), EventView, 1, "hash-a", "agent", ""); err != nil {
		t.Fatalf("disabled recorder must not error: %v", err)
	}

	var count int64
	if err := db.Model(&Event{}).Count(&count).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("disabled recorder must not persist events, got %d", count)
	}
}

func TestSummaryAndTotals(t *testing.T) {
	db := openTestDB(t)
	recorder := newTestRecorder(t, db, true)
	ctx := context.Background()

	seed := []DailyStat{
		{Date: "2026-08-30", TotalViews: 10, UniqueVisitors: 4, TotalShares: 1},
		{Date: "2026-08-31", TotalViews: 20, UniqueVisitors: 6, TotalShares: 2},
		{Date: "2025-01-01", TotalViews: 99, UniqueVisitors: 50, TotalShares: 9},
	}
	for _, stat := range seed {
		if err := db.Create(&stat).Error; err != nil {
			t.Fatalf("unexpected seed error: %v", err)
		}
	}

	daily, err := recorder.Summary(ctx, 30)
	if err != nil {
		t.Fatalf("unexpected summary error: %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("expected the 30-day window to exclude the old row, got %d rows", len(daily))
	}
	if daily[0].Date != "2026-08-31" {
		t.Fatalf("summary must be newest first, got %s", daily[0].Date)
	}

	totals, err := recorder.TotalStats(ctx)
	if err != nil {
		t.Fatalf("unexpected totals error: %v", err)
	}
	if totals.Views != 129 || totals.Visitors != 60 || totals.Shares != 12 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}
