package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/fetch"
	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/remote"
	"github.com/Cachi0001/Biz-sub011/pkg/usage"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultStatusTTL = 60 * time.Second

	statusKeyPrefix = "subscription_status"
)

var (
	ErrInvalidOwner = errors.New("syncer: owner id is required")
	ErrNotActive    = errors.New("syncer: owner is not the active identity")
)

// Sync outcomes reported to Recorder.
const (
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// StatusKey returns the fetch cache key of owner's subscription status.
func StatusKey(owner uuid.UUID) string {
	return statusKeyPrefix + ":" + owner.String()
}

// StatusSource reads the authoritative subscription status.
type StatusSource interface {
	Status(ctx context.Context, owner uuid.UUID) (remote.Status, error)
}

// UsageStore receives reconciled counters.
type UsageStore interface {
	Reconcile(ctx context.Context, owner uuid.UUID, counts map[plans.Resource]int64) (usage.Snapshot, error)
	Clear(ctx context.Context, owner uuid.UUID) error
}

// Recorder receives sync outcomes.
type Recorder interface {
	SyncCompleted(outcome string)
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithInterval sets the period of the background loop.
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStatusTTL sets how long a fetched status stays fresh.
func WithStatusTTL(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithCallOptions adds fetch options (retries, backoff) to every status call.
func WithCallOptions(opts ...fetch.CallOption) Option {
	return func(s *Syncer) { s.callOpts = append(s.callOpts, opts...) }
}

// WithLogger sets the syncer logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder attaches a sync recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Syncer reconciles remote subscription state into usage counters.
// Sync and Tier serve any owner; Start/Stop/SignOut manage the loop of the
// active identity.
type Syncer struct {
	source   StatusSource
	usage    UsageStore
	fetch    *fetch.Client
	interval time.Duration
	ttl      time.Duration
	callOpts []fetch.CallOption
	logger   *slog.Logger
	recorder Recorder

	seq     atomic.Uint64
	mu      sync.Mutex
	applied map[uuid.UUID]uint64 // seq of the last reconciled status

	lifecycle sync.Mutex
	active    uuid.UUID
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Syncer. Panics if a dependency is nil.
func New(source StatusSource, u UsageStore, fc *fetch.Client, opts ...Option) *Syncer {
	if source == nil || u == nil || fc == nil {
		panic("syncer: status source, usage store and fetch client are required")
	}
	s := &Syncer{
		source:   source,
		usage:    u,
		fetch:    fc,
		interval: DefaultInterval,
		ttl:      DefaultStatusTTL,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		applied:  make(map[uuid.UUID]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("syncer"))
	return s
}

// Sync pulls owner's status and reconciles its counters. With force the cached
// status is bypassed. A status that was already reconciled is not applied
// again, so optimistic increments made since then survive until the next pull.
func (s *Syncer) Sync(ctx context.Context, owner uuid.UUID, force bool) (remote.Status, error) {
	res, err := s.status(ctx, owner, fetch.WithCache(!force))
	if err != nil {
		if fetch.IsCancelled(err) {
			s.recorder.SyncCompleted(OutcomeCancelled)
		} else {
			s.recorder.SyncCompleted(OutcomeError)
		}
		return remote.Status{}, err
	}

	applied, err := s.apply(ctx, owner, res)
	if err != nil {
		s.recorder.SyncCompleted(OutcomeError)
		return remote.Status{}, err
	}
	if applied {
		s.recorder.SyncCompleted(OutcomeApplied)
	} else {
		s.recorder.SyncCompleted(OutcomeUnchanged)
	}
	return res.status, nil
}

// Tier returns owner's subscription tier from the cached status, fetching it
// when stale. A stale status is served when the service is unreachable.
func (s *Syncer) Tier(ctx context.Context, owner uuid.UUID) (plans.Tier, error) {
	res, err := s.status(ctx, owner, fetch.WithStaleOnError())
	if err != nil {
		return "", err
	}
	if _, err := s.apply(ctx, owner, res); err != nil {
		s.logger.WarnContext(ctx, "failed to reconcile usage after tier lookup",
			logger.OwnerID(owner),
			logger.Error(err),
		)
	}
	return res.status.Tier, nil
}

// LastStatus returns the cached status of owner, however old.
func (s *Syncer) LastStatus(owner uuid.UUID) (remote.Status, time.Time, bool) {
	res, _, ok := fetch.Cached[fetched](s.fetch, StatusKey(owner))
	if !ok {
		return remote.Status{}, time.Time{}, false
	}
	return res.status, res.at, true
}

// Start makes owner the active identity: it pulls the status immediately and
// then on every interval, bypassing the cache, until Stop, SignOut, another
// Start or ctx cancellation.
// Starting the already active owner is a no-op.
func (s *Syncer) Start(ctx context.Context, owner uuid.UUID) error {
	if owner == uuid.Nil {
		return ErrInvalidOwner
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.active == owner && s.running() {
		return nil
	}
	if s.active != uuid.Nil && s.active != owner {
		s.logger.InfoContext(ctx, "identity changed, restarting sync loop",
			logger.OwnerID(owner),
		)
	}
	s.stopLocked()

	loopCtx, cancel := context.WithCancel(logger.WithOwner(ctx, owner))
	done := make(chan struct{})
	s.active, s.cancel, s.done = owner, cancel, done

	go s.run(loopCtx, owner, done)
	return nil
}

// Stop ends the background loop and waits for it to exit.
func (s *Syncer) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
	s.active = uuid.Nil
}

// Active returns the owner whose loop is running, or uuid.Nil.
func (s *Syncer) Active() uuid.UUID {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running() {
		return uuid.Nil
	}
	return s.active
}

// SignOut stops owner's loop and removes its cached status and usage. It
// returns ErrNotActive when another owner holds the session; with no active
// owner it does nothing.
func (s *Syncer) SignOut(ctx context.Context, owner uuid.UUID) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.active == uuid.Nil {
		return nil
	}
	if s.active != owner {
		return ErrNotActive
	}
	s.stopLocked()
	s.active = uuid.Nil

	s.fetch.Invalidate(StatusKey(owner))
	s.mu.Lock()
	delete(s.applied, owner)
	s.mu.Unlock()

	if err := s.usage.Clear(ctx, owner); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "signed out", logger.OwnerID(owner))
	return nil
}

func (s *Syncer) run(ctx context.Context, owner uuid.UUID, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.syncLogged(ctx, owner, true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncLogged(ctx, owner, true)
		}
	}
}

func (s *Syncer) syncLogged(ctx context.Context, owner uuid.UUID, force bool) {
	if _, err := s.Sync(ctx, owner, force); err != nil && !fetch.IsCancelled(err) {
		s.logger.WarnContext(ctx, "subscription sync failed",
			logger.OwnerID(owner),
			logger.Error(err),
		)
	}
}

// stopLocked cancels the loop and waits for it. Caller holds lifecycle.
func (s *Syncer) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

func (s *Syncer) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// fetched is a pulled status tagged with the pull that produced it. The tag
// travels through the fetch cache, so stale and shared results keep theirs.
type fetched struct {
	status remote.Status
	seq    uint64
	at     time.Time
}

func (s *Syncer) status(ctx context.Context, owner uuid.UUID, extra ...fetch.CallOption) (fetched, error) {
	if owner == uuid.Nil {
		return fetched{}, ErrInvalidOwner
	}

	opts := make([]fetch.CallOption, 0, len(s.callOpts)+len(extra)+1)
	opts = append(opts, fetch.WithTTL(s.ttl))
	opts = append(opts, s.callOpts...)
	opts = append(opts, extra...)

	return fetch.Call(ctx, s.fetch, StatusKey(owner), func(ctx context.Context) (fetched, error) {
		status, err := s.source.Status(ctx, owner)
		if err != nil {
			return fetched{}, err
		}
		return fetched{status: status, seq: s.seq.Add(1), at: time.Now()}, nil
	}, opts...)
}

// apply reconciles res unless that pull, or a later one, was already applied.
func (s *Syncer) apply(ctx context.Context, owner uuid.UUID, res fetched) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied[owner] >= res.seq {
		return false, nil
	}
	snap, err := s.usage.Reconcile(ctx, owner, res.status.Usage())
	if err != nil {
		return false, err
	}
	s.applied[owner] = res.seq

	s.logger.DebugContext(ctx, "usage reconciled",
		logger.OwnerID(owner),
		logger.Tier(string(res.status.Tier)),
		slog.Int64("invoices", snap.Invoices),
	)
	return true, nil
}

type nopRecorder struct{}

func (nopRecorder) SyncCompleted(string) {}
