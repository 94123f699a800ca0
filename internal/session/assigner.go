package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultSlotCount = 5
	defaultMinWindow = 4 * time.Hour
	defaultMaxWindow = 6 * time.Hour
)

var (
	errMissingAssignerDatabase = errors.New("session assigner: database handle is required")
	errInvalidWindow           = errors.New("session assigner: min window must not exceed max window")
)

// AssignerConfig wires the slot assigner dependencies.
type AssignerConfig struct {
	Database  *gorm.DB
	SlotCount int
	MinWindow time.Duration
	MaxWindow time.Duration
	Clock     func() time.Time
	// RandInt returns a uniform value in [0, n); overridable for tests.
	RandInt func(n int64) int64
	Logger  *zap.Logger
}

// Assigner binds visitor hashes to fortune slots for a randomized 4-6 hour
// window. Within one live window every resolution returns the same slot;
// after expiry a fresh independent slot is drawn.
type Assigner struct {
	db        *gorm.DB
	slotCount int
	minWindow time.Duration
	maxWindow time.Duration
	clock     func() time.Time
	randInt   func(n int64) int64
	logger    *zap.Logger
}

// NewAssigner constructs an Assigner with validated configuration.
func NewAssigner(cfg AssignerConfig) (*Assigner, error) {
	if cfg.Database == nil {
		return nil, errMissingAssignerDatabase
	}
	slotCount := cfg.SlotCount
	if slotCount < 1 {
		slotCount = defaultSlotCount
	}
	minWindow := cfg.MinWindow
	if minWindow <= 0 {
		minWindow = defaultMinWindow
	}
	maxWindow := cfg.MaxWindow
	if maxWindow <= 0 {
		maxWindow = defaultMaxWindow
	}
	if minWindow > maxWindow {
		return nil, errInvalidWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	randInt := cfg.RandInt
	if randInt == nil {
		randInt = rand.Int64N
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{
		db:        cfg.Database,
		slotCount: slotCount,
		minWindow: minWindow,
		maxWindow: maxWindow,
		clock:     clock,
		randInt:   randInt,
		logger:    logger,
	}, nil
}

// ResolveSlot returns the visitor's live slot, assigning a new uniformly
// random one when no unexpired session exists. Expired rows are purged
// inline before the lookup.
func (a *Assigner) ResolveSlot(ctx context.Context, visitorHash string) (int, error) {
	now := a.clock()

	if err := a.purgeExpired(ctx, now); err != nil {
		return 0, err
	}

	var existing VisitorSession
	err := a.db.WithContext(ctx).
		Where("visitor_hash = ? AND expires_at > ?", visitorHash, now).
		Take(&existing).Error
	if err == nil {
		return existing.Slot, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("session assigner: lookup: %w", err)
	}

	slot := int(a.randInt(int64(a.slotCount))) + 1
	window := a.minWindow
	if span := a.maxWindow - a.minWindow; span > 0 {
		window += time.Duration(a.randInt(int64(span)))
	}

	assigned := VisitorSession{
		VisitorHash: visitorHash,
		Slot:        slot,
		AssignedAt:  now,
		ExpiresAt:   now.Add(window),
	}
	err = a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "visitor_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"fortune_slot", "assigned_at", "expires_at"}),
		}).
		Create(&assigned).Error
	if err != nil {
		return 0, fmt.Errorf("session assigner: assign: %w", err)
	}

	a.logger.Debug("slot assigned",
		zap.Int("slot", slot),
		zap.Duration("window", window))
	return slot, nil
}

func (a *Assigner) purgeExpired(ctx context.Context, now time.Time) error {
	err := a.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&VisitorSession{}).Error
	if err != nil {
		return fmt.Errorf("session assigner: purge: %w", err)
	}
	return nil
}
