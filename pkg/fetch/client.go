package fetch

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
)

// Operation is the remote call guarded by the client.
type Operation[T any] func(ctx context.Context) (T, error)

type entry struct {
	value     any
	fetchedAt time.Time
	ttl       time.Duration
}

func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.fetchedAt) < e.ttl
}

// flight is the shared execution for one key generation.
type flight struct {
	key       string
	flightKey string
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	waiters   int
}

// Stats is a snapshot of client counters.
type Stats struct {
	Hits      uint64
	Stale     uint64
	Misses    uint64
	Shared    uint64
	Retries   uint64
	Errors    uint64
	Cancelled uint64
	Entries   int
	InFlight  int
}

// Client caches and de-duplicates remote calls. It is safe for concurrent use.
type Client struct {
	capacity int
	entries  *lru.Cache[string, *entry]
	group    singleflight.Group

	mu      sync.Mutex
	gens    map[string]uint64
	flights map[string]*flight

	defaults callOptions
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	hits, stale, misses, shared, retries, errs, cancels atomic.Uint64
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		capacity: DefaultCapacity,
		gens:     make(map[string]uint64),
		flights:  make(map[string]*flight),
		defaults: defaultCallOptions(),
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := lru.New[string, *entry](c.capacity)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	c.logger = c.logger.With(logger.Component("fetch"))

	return c, nil
}

// Call resolves key through the cache or by running op.
func Call[T any](ctx context.Context, c *Client, key string, op Operation[T], opts ...CallOption) (T, error) {
	var zero T
	if key == "" {
		return zero, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		c.complete(OutcomeCancelled)
		return zero, cancelled(err)
	}

	o := c.defaults
	for _, opt := range opts {
		opt(&o)
	}

	cached, hasCached := lookup[T](c, key)
	if hasCached && o.useCache {
		if cached.fresh {
			c.complete(OutcomeHit)
			return cached.value, nil
		}
		if o.staleWhileRevalidate {
			c.revalidate(ctx, key, erase(op), o)
			c.complete(OutcomeStale)
			return cached.value, nil
		}
	}

	v, err := c.do(ctx, key, erase(op), o)
	if err != nil {
		if IsCancelled(err) {
			c.complete(OutcomeCancelled)
			return zero, err
		}
		if hasCached && o.staleOnError {
			c.logger.WarnContext(ctx, "serving stale value after fetch failure",
				logger.Key(key),
				logger.Error(err),
			)
			c.complete(OutcomeStale)
			return cached.value, nil
		}
		c.complete(OutcomeError)
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		c.complete(OutcomeError)
		return zero, errors.New("fetch: shared result type mismatch for key " + key)
	}
	c.complete(OutcomeFetched)
	return typed, nil
}

// Cached returns the cached value for key regardless of freshness.
func Cached[T any](c *Client, key string) (value T, fetchedAt time.Time, ok bool) {
	e, found := c.entries.Peek(key)
	if !found {
		return value, time.Time{}, false
	}
	value, ok = e.value.(T)
	if !ok {
		return value, time.Time{}, false
	}
	return value, e.fetchedAt, true
}

// Invalidate drops every cached entry whose key starts with prefix and
// supersedes in-flight executions for those keys. Results of superseded
// executions are still delivered to their waiters but never cached.
func (c *Client) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
	for _, f := range c.flights {
		if strings.HasPrefix(f.key, prefix) && c.gens[f.key] == f.gen {
			c.gens[f.key]++
		}
	}
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	inFlight := len(c.flights)
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Stale:     c.stale.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Retries:   c.retries.Load(),
		Errors:    c.errs.Load(),
		Cancelled: c.cancels.Load(),
		Entries:   c.entries.Len(),
		InFlight:  inFlight,
	}
}

type cachedValue[T any] struct {
	value T
	fresh bool
}

func lookup[T any](c *Client, key string) (cachedValue[T], bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return cachedValue[T]{}, false
	}
	v, ok := e.value.(T)
	if !ok {
		return cachedValue[T]{}, false
	}
	return cachedValue[T]{value: v, fresh: e.fresh(c.now())}, true
}

func erase[T any](op Operation[T]) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return op(ctx)
	}
}

// do joins or starts the shared execution for key and waits for it under ctx.
func (c *Client) do(ctx context.Context, key string, op func(context.Context) (any, error), o callOptions) (any, error) {
	f, ch, joined := c.join(ctx, key, op, o)
	if joined {
		c.shared.Add(1)
		c.recorder.FetchShared()
	}

	select {
	case <-ctx.Done():
		c.leave(f, true)
		return nil, cancelled(ctx.Err())
	case res := <-ch:
		c.leave(f, false)
		return res.Val, res.Err
	}
}

// join registers the caller as a waiter of the current execution for key,
// starting one if needed. DoChan is called under the lock, so a waiter never
// attaches to an execution that already finished.
func (c *Client) join(ctx context.Context, key string, op func(context.Context) (any, error), o callOptions) (*flight, <-chan singleflight.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gens[key]
	flightKey := key + "#" + strconv.FormatUint(gen, 10)

	f, ok := c.flights[flightKey]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: key, flightKey: flightKey, gen: gen, ctx: fctx, cancel: cancel}
		c.flights[flightKey] = f
	}
	f.waiters++

	ch := c.group.DoChan(flightKey, func() (any, error) {
		v, err := c.retry(f.ctx, key, op, o)
		c.finish(f, v, err, o.ttl)
		return v, err
	})
	return f, ch, ok
}

// leave releases a waiter. When the last waiter gives up before the result
// arrives, the execution is cancelled and its generation retired so later
// callers start a new one.
func (c *Client) leave(f *flight, abandoned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	if c.flights[f.flightKey] == f {
		delete(c.flights, f.flightKey)
	}
	if abandoned && c.gens[f.key] == f.gen {
		c.gens[f.key]++
	}
	f.cancel()
}

// finish retires the execution and caches a successful result unless the
// generation was superseded meanwhile.
func (c *Client) finish(f *flight, v any, err error, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flights[f.flightKey] == f {
		delete(c.flights, f.flightKey)
	}
	f.cancel()

	if err != nil {
		return
	}
	if c.gens[f.key] != f.gen {
		c.logger.Debug("discarding superseded result", logger.Key(f.key))
		return
	}
	c.entries.Add(f.key, &entry{value: v, fetchedAt: c.now(), ttl: ttl})
}

func (c *Client) revalidate(ctx context.Context, key string, op func(context.Context) (any, error), o callOptions) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := c.do(bg, key, op, o); err != nil {
			c.logger.WarnContext(bg, "background revalidation failed",
				logger.Key(key),
				logger.Error(err),
			)
		}
	}()
}

// retry runs op until it succeeds, fails permanently or attempts run out.
func (c *Client) retry(ctx context.Context, key string, op func(context.Context) (any, error), o callOptions) (any, error) {
	c.misses.Add(1)

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			delay := o.backoff.NextInterval(attempt)
			c.logger.DebugContext(ctx, "retrying fetch",
				logger.Key(key),
				logger.Attempt(attempt),
				logger.Duration(delay),
			)
			c.retries.Add(1)
			c.recorder.FetchRetried()

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, cancelled(ctx.Err())
			case <-timer.C:
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = cancelled(err)
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}

	c.logger.WarnContext(ctx, "fetch failed after retries",
		logger.Key(key),
		logger.Attempt(o.maxRetries+1),
		logger.Error(lastErr),
	)
	return nil, errors.Join(ErrRetriesExhausted, lastErr)
}

func (c *Client) complete(outcome string) {
	switch outcome {
	case OutcomeHit:
		c.hits.Add(1)
	case OutcomeStale:
		c.stale.Add(1)
	case OutcomeError:
		c.errs.Add(1)
	case OutcomeCancelled:
		c.cancels.Add(1)
	}
	c.recorder.FetchCompleted(outcome)
}

type nopRecorder struct{}

func (nopRecorder) FetchCompleted(string) {}
func (nopRecorder) FetchRetried()         {}
func (nopRecorder) FetchShared()          {}
