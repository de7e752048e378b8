package store

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
)

// Failover serves from a persisted primary store until it reports
// ErrStorageUnavailable, then switches to an in-memory store for the rest of the
// session. The failing call is retried against the fallback, so callers never
// see the storage error. Values written before the switch are not copied over;
// the synchronizer restores authoritative counts on its next run.
type Failover struct {
	primary  Store
	fallback Store
	degraded atomic.Bool
	logger   *slog.Logger
}

// FailoverOption configures a Failover store.
type FailoverOption func(*Failover)

// WithFallback replaces the default in-memory fallback.
func WithFallback(s Store) FailoverOption {
	return func(f *Failover) {
		if s != nil {
			f.fallback = s
		}
	}
}

// WithLogger sets the logger used to report the switch to the fallback.
func WithLogger(l *slog.Logger) FailoverOption {
	return func(f *Failover) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFailover wraps primary. Panics if primary is nil.
func NewFailover(primary Store, opts ...FailoverOption) *Failover {
	if primary == nil {
		panic("store: primary store is required")
	}
	f := &Failover{
		primary:  primary,
		fallback: NewMemory(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Degraded reports whether the store has switched to the fallback.
func (f *Failover) Degraded() bool {
	return f.degraded.Load()
}

func (f *Failover) active() Store {
	if f.degraded.Load() {
		return f.fallback
	}
	return f.primary
}

// trip switches to the fallback if err is a storage failure and reports whether it did.
func (f *Failover) trip(ctx context.Context, err error) bool {
	if !errors.Is(err, ErrStorageUnavailable) {
		return false
	}
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.WarnContext(ctx, "persisted store unavailable, using in-memory store for this session",
			logger.Component("store"),
			logger.Error(err),
		)
	}
	return true
}

func (f *Failover) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := f.active().Get(ctx, key)
	if err != nil && f.trip(ctx, err) {
		return f.fallback.Get(ctx, key)
	}
	return v, err
}

func (f *Failover) Set(ctx context.Context, key string, value []byte) error {
	err := f.active().Set(ctx, key, value)
	if err != nil && f.trip(ctx, err) {
		return f.fallback.Set(ctx, key, value)
	}
	return err
}

func (f *Failover) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	v, err := f.active().Update(ctx, key, fn)
	if err != nil && f.trip(ctx, err) {
		return f.fallback.Update(ctx, key, fn)
	}
	return v, err
}

func (f *Failover) Delete(ctx context.Context, keys ...string) error {
	err := f.active().Delete(ctx, keys...)
	if err != nil && f.trip(ctx, err) {
		return f.fallback.Delete(ctx, keys...)
	}
	return err
}

func (f *Failover) DeletePrefix(ctx context.Context, prefix string) error {
	err := f.active().DeletePrefix(ctx, prefix)
	if err != nil && f.trip(ctx, err) {
		return f.fallback.DeletePrefix(ctx, prefix)
	}
	return err
}
