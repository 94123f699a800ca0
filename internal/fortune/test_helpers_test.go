package fortune

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/nytm/delulu-fortune/internal/analytics"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fortune_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Fortune{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func mustStore(t *testing.T, db *gorm.DB) *Store {
	t.Helper()
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// countingGenerator returns canned texts and tracks how often it is invoked.
type countingGenerator struct {
	texts []string
	err   error
	calls int
}

func (g *countingGenerator) Generate(_ context.Context, count int) ([]string, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	out := make([]string, 0, count)
	out = append(out, g.texts...)
	for len(out) < count {
		out = append(out, FillerText)
	}
	return out[:count], nil
}

// fixedResolver always returns the same slot.
type fixedResolver struct {
	slot int
	err  error
}

func (r *fixedResolver) ResolveSlot(context.Context, string) (int, error) {
	return r.slot, r.err
}

// memoryRecorder captures logged events in memory. View events arrive from a
// detached goroutine, so access is synchronized.
type memoryRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	kind      analytics.EventKind
	fortuneID uint
	visitor   string
}

func (r *memoryRecorder) LogEvent(_ context.Context, kind analytics.EventKind, fortuneID uint, visitorHash, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, fortuneID: fortuneID, visitor: visitorHash})
	return nil
}

func (r *memoryRecorder) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *memoryRecorder) waitForEvents(t *testing.T, want int) []recordedEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		events := r.snapshot()
		if len(events) >= want {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d events, have %d", want, len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
