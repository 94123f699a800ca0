package fortune

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nytm/delulu-fortune/internal/analytics"
)

var (
	errMissingServiceStore       = errors.New("fortune service: store is required")
	errMissingServiceReplenisher = errors.New("fortune service: replenisher is required")
	errMissingServiceResolver    = errors.New("fortune service: slot resolver is required")
	errMissingServiceRecorder    = errors.New("fortune service: recorder is required")
)

// SlotResolver binds a visitor hash to a slot for the duration of a session
// window.
type SlotResolver interface {
	ResolveSlot(ctx context.Context, visitorHash string) (int, error)
}

// EventRecorder appends interaction events.
type EventRecorder interface {
	LogEvent(ctx context.Context, kind analytics.EventKind, fortuneID uint, visitorHash, userAgent, referrer string) error
}

// StatsSource reads the analytics rollups for the admin surface.
type StatsSource interface {
	Summary(ctx context.Context, days int) ([]analytics.DailyStat, error)
	TotalStats(ctx context.Context) (analytics.Totals, error)
}

// Counters receives domain counter ticks. Implemented by the metrics package;
// a no-op stands in when metrics are not wired.
type Counters interface {
	IncView()
	IncShare()
	IncCacheHit()
	IncCacheMiss()
}

type noopCounters struct{}

func (noopCounters) IncView()      {}
func (noopCounters) IncShare()     {}
func (noopCounters) IncCacheHit()  {}
func (noopCounters) IncCacheMiss() {}

// Visitor carries the per-request identity inputs.
type Visitor struct {
	Hash      string
	UserAgent string
	Referrer  string
}

// View is the fortune payload returned to a visitor. Cached reports
// personal-assignment semantics — "this is your previously assigned fortune"
// — and is always true, even when the row was generated this same request.
type View struct {
	Text   string
	Date   string
	Slot   int
	Cached bool
}

// StatsView bundles the admin stats payload.
type StatsView struct {
	Totals analytics.Totals
	Daily  []analytics.DailyStat
}

// ServiceConfig wires the orchestrator dependencies.
type ServiceConfig struct {
	Store       *Store
	Replenisher *Replenisher
	Resolver    SlotResolver
	Recorder    EventRecorder
	Stats       StatsSource
	Cache       Cache
	Counters    Counters
	Location    *time.Location
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Service composes replenishment, slot resolution, the fortune store and
// analytics into the per-request flows.
type Service struct {
	store       *Store
	replenisher *Replenisher
	resolver    SlotResolver
	recorder    EventRecorder
	stats       StatsSource
	cache       Cache
	counters    Counters
	location    *time.Location
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService constructs the orchestrator with validated dependencies.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingServiceStore
	}
	if cfg.Replenisher == nil {
		return nil, errMissingServiceReplenisher
	}
	if cfg.Resolver == nil {
		return nil, errMissingServiceResolver
	}
	if cfg.Recorder == nil {
		return nil, errMissingServiceRecorder
	}
	cache := cfg.Cache
	if cache == nil {
		cache = noopCache{}
	}
	counters := cfg.Counters
	if counters == nil {
		counters = noopCounters{}
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
	return &Service{
		store:       cfg.Store,
		replenisher: cfg.Replenisher,
		resolver:    cfg.Resolver,
		recorder:    cfg.Recorder,
		stats:       cfg.Stats,
		cache:       cache,
		counters:    counters,
		location:    loc,
		clock:       clock,
		logger:      logger,
	}, nil
}

// GetFortune serves the visitor's assigned fortune for today, replenishing
// the day's quota first when it is short. A missing assigned slot falls back
// to slot 1 rather than failing the request.
func (s *Service) GetFortune(ctx context.Context, visitor Visitor) (View, error) {
	if err := s.replenisher.EnsureToday(ctx); err != nil {
		return View{}, err
	}

	slot, err := s.resolver.ResolveSlot(ctx, visitor.Hash)
	if err != nil {
		return View{}, err
	}

	today := s.replenisher.Today()
	row, err := s.fetch(ctx, today, slot)
	if errors.Is(err, ErrNotFound) {
		row, err = s.fetch(ctx, today, 1)
	}
	if err != nil {
		return View{}, err
	}

	s.counters.IncView()
	s.logView(ctx, row.ID, visitor)

	return View{
		Text:   row.Text,
		Date:   row.Date,
		Slot:   slot,
		Cached: true,
	}, nil
}

// TrackShare records a share against the visitor's current fortune. The
// resolver assigns a slot when none exists yet; a missing fortune row for
// today still reports not found.
func (s *Service) TrackShare(ctx context.Context, visitor Visitor) error {
	slot, err := s.resolver.ResolveSlot(ctx, visitor.Hash)
	if err != nil {
		return err
	}

	today := Day(s.clock(), s.location)
	row, err := s.fetch(ctx, today, slot)
	if err != nil {
		return err
	}

	if err := s.recorder.LogEvent(ctx, analytics.EventShare, row.ID, visitor.Hash, visitor.UserAgent, visitor.Referrer); err != nil {
		return err
	}
	s.counters.IncShare()
	return nil
}

// Stats returns totals and the trailing daily rollups for the admin surface.
func (s *Service) Stats(ctx context.Context, days int) (StatsView, error) {
	if s.stats == nil {
		return StatsView{}, fmt.Errorf("fortune service: stats source not configured")
	}

	totals, err := s.stats.TotalStats(ctx)
	if err != nil {
		return StatsView{}, err
	}
	daily, err := s.stats.Summary(ctx, days)
	if err != nil {
		return StatsView{}, err
	}
	return StatsView{Totals: totals, Daily: daily}, nil
}

func (s *Service) fetch(ctx context.Context, date string, slot int) (Fortune, error) {
	if row, ok := s.cache.Get(date, slot); ok {
		s.counters.IncCacheHit()
		return row, nil
	}
	s.counters.IncCacheMiss()

	row, err := s.store.BySlot(ctx, date, slot)
	if err != nil {
		return Fortune{}, err
	}
	s.cache.Set(date, slot, row, s.untilEndOfDay())
	return row, nil
}

// logView is fire-and-forget relative to the response; a failed analytics
// write never degrades the fortune itself.
func (s *Service) logView(ctx context.Context, fortuneID uint, visitor Visitor) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := s.recorder.LogEvent(detached, analytics.EventView, fortuneID, visitor.Hash, visitor.UserAgent, visitor.Referrer); err != nil {
			s.logger.Warn("view event not recorded", zap.Error(err))
		}
	}()
}

func (s *Service) untilEndOfDay() time.Duration {
	now := s.clock().In(s.location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, 1)
	return midnight.Sub(now)
}
