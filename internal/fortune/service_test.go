package fortune

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nytm/delulu-fortune/internal/analytics"
)

func newTestService(t *testing.T, store *Store, generator Generator, resolver SlotResolver, recorder *memoryRecorder, perDay int) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Store:       store,
		Replenisher: newTestReplenisher(t, store, generator, perDay),
		Resolver:    resolver,
		Recorder:    recorder,
		Location:    time.UTC,
		Clock:       fixedClock(testDay),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestGetFortuneGeneratesOnEmptyStore(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	generator := &countingGenerator{texts: []string{
		"Fortune one is long enough.",
		"Fortune two is long enough.",
		"Fortune three is long enough.",
		"Fortune four is long enough.",
		"Fortune five is long enough.",
	}}
	recorder := &memoryRecorder{}
	service := newTestService(t, store, generator, &fixedResolver{slot: 3}, recorder, 5)

	view, err := service.GetFortune(context.Background(), Visitor{Hash: "hash-1", UserAgent: "agent"})
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if generator.calls != 1 {
		t.Fatalf("expected one generation call, got %d", generator.calls)
	}
	if view.Slot != 3 {
		t.Fatalf("expected resolved slot 3, got %d", view.Slot)
	}
	if view.Text != "Fortune three is long enough." {
		t.Fatalf("unexpected fortune text: %q", view.Text)
	}
	if view.Date != "2026-09-01" {
		t.Fatalf("unexpected date: %q", view.Date)
	}
	if !view.Cached {
		t.Fatalf("cached must always report true")
	}

	events := recorder.waitForEvents(t, 1)
	if events[0].kind != analytics.EventView {
		t.Fatalf("expected a view event, got %s", events[0].kind)
	}
	if events[0].visitor != "hash-1" {
		t.Fatalf("view event carries wrong visitor: %s", events[0].visitor)
	}
}

func TestGetFortuneSecondCallSkipsGeneration(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	generator := &countingGenerator{texts: []string{
		"Fortune one is long enough.",
		"Fortune two is long enough.",
		"Fortune three is long enough.",
		"Fortune four is long enough.",
		"Fortune five is long enough.",
	}}
	recorder := &memoryRecorder{}
	service := newTestService(t, store, generator, &fixedResolver{slot: 2}, recorder, 5)
	ctx := context.Background()

	first, err := service.GetFortune(ctx, Visitor{Hash: "hash-1"})
	if err != nil {
		t.Fatalf("unexpected first get error: %v", err)
	}
	second, err := service.GetFortune(ctx, Visitor{Hash: "hash-1"})
	if err != nil {
		t.Fatalf("unexpected second get error: %v", err)
	}

	if generator.calls != 1 {
		t.Fatalf("expected zero further generation calls, got %d total", generator.calls)
	}
	if first.Slot != second.Slot || first.Text != second.Text {
		t.Fatalf("repeated gets must be stable: %v vs %v", first, second)
	}
}

func TestGetFortuneFallsBackToSlotOne(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	ctx := context.Background()
	for slot := 1; slot <= 3; slot++ {
		if err := store.Upsert(ctx, "2026-09-01", slot, "Populated fortune text."); err != nil {
			t.Fatalf("unexpected seed error: %v", err)
		}
	}

	// Resolver hands out a slot the replenishment never populated.
	recorder := &memoryRecorder{}
	service := newTestService(t, store, &countingGenerator{}, &fixedResolver{slot: 9}, recorder, 3)

	view, err := service.GetFortune(ctx, Visitor{Hash: "hash-1"})
	if err != nil {
		t.Fatalf("missing assigned slot must not fail the request: %v", err)
	}
	if view.Text != "Populated fortune text." {
		t.Fatalf("expected slot-1 fallback text, got %q", view.Text)
	}
	if view.Slot != 9 {
		t.Fatalf("response keeps the assigned slot, got %d", view.Slot)
	}
}

func TestGetFortunePropagatesGenerationFailure(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	service := newTestService(t, store, &countingGenerator{err: ErrGeneration}, &fixedResolver{slot: 1}, &memoryRecorder{}, 5)

	_, err := service.GetFortune(context.Background(), Visitor{Hash: "hash-1"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestTrackShareLogsAgainstResolvedFortune(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	ctx := context.Background()
	if err := store.Upsert(ctx, "2026-09-01", 2, "Shared fortune text here."); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}
	row, err := store.BySlot(ctx, "2026-09-01", 2)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}

	recorder := &memoryRecorder{}
	service := newTestService(t, store, &countingGenerator{}, &fixedResolver{slot: 2}, recorder, 5)

	if err := service.TrackShare(ctx, Visitor{Hash: "hash-1"}); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	events := recorder.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one share event, got %d", len(events))
	}
	if events[0].kind != analytics.EventShare {
		t.Fatalf("expected share event, got %s", events[0].kind)
	}
	if events[0].fortuneID != row.ID {
		t.Fatalf("share must reference the resolved fortune id %d, got %d", row.ID, events[0].fortuneID)
	}
}

func TestTrackShareReportsNotFoundOnEmptyDay(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	service := newTestService(t, store, &countingGenerator{}, &fixedResolver{slot: 1}, &memoryRecorder{}, 5)

	err := service.TrackShare(context.Background(), Visitor{Hash: "hash-1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatsRequiresConfiguredSource(t *testing.T) {
	store := mustStore(t, openTestDB(t))
	service := newTestService(t, store, &countingGenerator{}, &fixedResolver{slot: 1}, &memoryRecorder{}, 5)

	if _, err := service.Stats(context.Background(), 30); err == nil {
		t.Fatalf("expected error without a stats source")
	}
}
