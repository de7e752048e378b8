package usage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/store"
)

// KeyPrefix prefixes every snapshot key.
const KeyPrefix = "usage_tracking"

// Key returns the store key of owner's snapshot.
func Key(owner uuid.UUID) string {
	return store.Key(KeyPrefix, owner.String())
}

// Notifier reports a usage delta to the remote service.
type Notifier interface {
	RecordUsage(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) error

func (f NotifierFunc) RecordUsage(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) error {
	return f(ctx, owner, r, amount)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNotifier sets the remote notifier. Without one, mutations stay local.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithClock replaces time.Now for period calculations.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithNotifyTimeout bounds each background notification.
func WithNotifyTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.notifyTimeout = d
		}
	}
}

// Tracker reads and mutates usage snapshots. It is safe for concurrent use.
type Tracker struct {
	store         store.Store
	notifier      Notifier
	now           func() time.Time
	logger        *slog.Logger
	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

// NewTracker creates a Tracker over s. Panics if s is nil.
func NewTracker(s store.Store, opts ...Option) *Tracker {
	if s == nil {
		panic("usage: store is required")
	}
	t := &Tracker{
		store:         s,
		now:           time.Now,
		logger:        slog.Default(),
		notifyTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("usage"))
	return t
}

// GetUsage returns owner's snapshot, creating it or rolling it over as needed.
func (t *Tracker) GetUsage(ctx context.Context, owner uuid.UUID) (Snapshot, error) {
	if owner == uuid.Nil {
		return Snapshot{}, ErrInvalidOwner
	}

	data, err := t.store.Get(ctx, Key(owner))
	switch {
	case err == nil:
		if snap, ok := t.decode(ctx, owner, data); ok {
			if _, rolled := snap.Rollover(t.now()); !rolled {
				return snap, nil
			}
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return Snapshot{}, errors.Join(ErrFailedToLoad, err)
	}

	return t.mutate(ctx, owner, func(s *Snapshot) {})
}

// Count returns the current counter for r.
func (t *Tracker) Count(ctx context.Context, owner uuid.UUID, r plans.Resource) (int64, error) {
	snap, err := t.GetUsage(ctx, owner)
	if err != nil {
		return 0, err
	}
	n, _ := snap.Count(r)
	return n, nil
}

// Increment adds amount to r and notifies the remote service in the background.
func (t *Tracker) Increment(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) (Snapshot, error) {
	if amount < 0 {
		return Snapshot{}, ErrNegativeAmount
	}
	snap, applied, err := t.add(ctx, owner, r, amount)
	if err != nil {
		return Snapshot{}, err
	}
	t.notify(ctx, owner, r, applied)
	return snap, nil
}

// Decrement subtracts amount from r, never going below zero, and notifies the
// remote service of the change actually applied.
func (t *Tracker) Decrement(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) (Snapshot, error) {
	if amount < 0 {
		return Snapshot{}, ErrNegativeAmount
	}
	snap, applied, err := t.add(ctx, owner, r, -amount)
	if err != nil {
		return Snapshot{}, err
	}
	t.notify(ctx, owner, r, applied)
	return snap, nil
}

// SetCount overwrites the counter for r with an authoritative value.
func (t *Tracker) SetCount(ctx context.Context, owner uuid.UUID, r plans.Resource, value int64) (Snapshot, error) {
	if value < 0 {
		return Snapshot{}, ErrNegativeAmount
	}
	if _, ok := (Snapshot{}).Count(r); !ok {
		return Snapshot{}, ErrUnknownResource
	}
	return t.mutate(ctx, owner, func(s *Snapshot) { s.set(r, value) })
}

// Reconcile applies authoritative remote counts in one atomic update.
func (t *Tracker) Reconcile(ctx context.Context, owner uuid.UUID, remote map[plans.Resource]int64) (Snapshot, error) {
	return t.mutate(ctx, owner, func(s *Snapshot) { *s = Reconcile(*s, remote) })
}

// PercentUsed returns the share of owner's quota for r already consumed.
// Resources without a limit report 0.
func (t *Tracker) PercentUsed(ctx context.Context, owner uuid.UUID, r plans.Resource, limits plans.Limits) (float64, error) {
	limit, ok := limits.For(r)
	if !ok {
		return 0, nil
	}
	current, err := t.Count(ctx, owner, r)
	if err != nil {
		return 0, err
	}
	return PercentUsed(current, limit), nil
}

// Clear removes owner's snapshot.
func (t *Tracker) Clear(ctx context.Context, owner uuid.UUID) error {
	if owner == uuid.Nil {
		return ErrInvalidOwner
	}
	if err := t.store.Delete(ctx, Key(owner)); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	return nil
}

// Wait blocks until background notifications have finished.
func (t *Tracker) Wait() {
	t.pending.Wait()
}

// add shifts r by delta and returns the change that survived clamping at zero.
func (t *Tracker) add(ctx context.Context, owner uuid.UUID, r plans.Resource, delta int64) (Snapshot, int64, error) {
	if _, ok := (Snapshot{}).Count(r); !ok {
		return Snapshot{}, 0, ErrUnknownResource
	}
	var applied int64
	snap, err := t.mutate(ctx, owner, func(s *Snapshot) {
		current, _ := s.Count(r)
		s.set(r, current+delta)
		updated, _ := s.Count(r)
		applied = updated - current
	})
	if err != nil {
		return Snapshot{}, 0, err
	}
	return snap, applied, nil
}

// mutate runs fn on the rolled-over snapshot inside one store update.
func (t *Tracker) mutate(ctx context.Context, owner uuid.UUID, fn func(*Snapshot)) (Snapshot, error) {
	if owner == uuid.Nil {
		return Snapshot{}, ErrInvalidOwner
	}

	now := t.now()
	var result Snapshot
	_, err := t.store.Update(ctx, Key(owner), func(current []byte, exists bool) ([]byte, error) {
		snap := NewSnapshot(now)
		if exists {
			if decoded, ok := t.decode(ctx, owner, current); ok {
				snap, _ = decoded.Rollover(now)
			}
		}
		fn(&snap)
		result = snap
		return json.Marshal(snap)
	})
	if err != nil {
		return Snapshot{}, errors.Join(ErrFailedToSave, err)
	}
	return result, nil
}

func (t *Tracker) decode(ctx context.Context, owner uuid.UUID, data []byte) (Snapshot, bool) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.logger.WarnContext(ctx, "discarding unreadable usage snapshot",
			logger.OwnerID(owner),
			logger.Error(err),
		)
		return Snapshot{}, false
	}
	return snap, true
}

func (t *Tracker) notify(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) {
	if t.notifier == nil || amount == 0 {
		return
	}

	bg := context.WithoutCancel(ctx)
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()

		ctx, cancel := context.WithTimeout(bg, t.notifyTimeout)
		defer cancel()

		if err := t.notifier.RecordUsage(ctx, owner, r, amount); err != nil {
			t.logger.WarnContext(ctx, "remote usage notification failed",
				logger.OwnerID(owner),
				logger.Resource(string(r)),
				slog.Int64("amount", amount),
				logger.Error(err),
			)
		}
	}()
}
