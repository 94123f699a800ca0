package fortune

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingReplenisherStore     = errors.New("fortune replenisher: store is required")
	errMissingReplenisherGenerator = errors.New("fortune replenisher: generator is required")
)

// ReplenisherConfig wires the daily replenishment dependencies.
type ReplenisherConfig struct {
	Store     *Store
	Generator Generator
	PerDay    int
	Location  *time.Location
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Replenisher guarantees the day's fortune quota exists before any slot is
// served. It is safe to call concurrently: two racing replenishments both
// generate, but the per-slot upsert converges on the last writer. Duplicate
// generation under that race is an accepted inefficiency.
type Replenisher struct {
	store     *Store
	generator Generator
	perDay    int
	location  *time.Location
	clock     func() time.Time
	logger    *zap.Logger
}

// NewReplenisher constructs a Replenisher with validated dependencies.
func NewReplenisher(cfg ReplenisherConfig) (*Replenisher, error) {
	if cfg.Store == nil {
		return nil, errMissingReplenisherStore
	}
	if cfg.Generator == nil {
		return nil, errMissingReplenisherGenerator
	}
	perDay := cfg.PerDay
	if perDay < 1 {
		perDay = 1
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
	return &Replenisher{
		store:     cfg.Store,
		generator: cfg.Generator,
		perDay:    perDay,
		location:  loc,
		clock:     clock,
		logger:    logger,
	}, nil
}

// PerDay reports the configured daily quota.
func (r *Replenisher) PerDay() int {
	return r.perDay
}

// Today returns the current calendar-day key in the configured location.
func (r *Replenisher) Today() string {
	return Day(r.clock(), r.location)
}

// EnsureToday makes sure exactly perDay fortunes exist for today. Idempotent:
// once the quota is met it performs no generation at all.
func (r *Replenisher) EnsureToday(ctx context.Context) error {
	today := r.Today()

	count, err := r.store.CountForDate(ctx, today)
	if err != nil {
		return err
	}
	if count >= r.perDay {
		return nil
	}

	texts, err := r.generator.Generate(ctx, r.perDay)
	if err != nil {
		r.logger.Error("fortune generation failed",
			zap.String("date", today),
			zap.Int("have", count),
			zap.Error(err))
		return err
	}

	for i, text := range texts {
		if err := r.store.Upsert(ctx, today, i+1, text); err != nil {
			return err
		}
	}

	r.logger.Info("fortunes replenished",
		zap.String("date", today),
		zap.Int("count", len(texts)))
	return nil
}
