package fetch

import (
	"log/slog"
	"time"
)

const (
	DefaultTTL        = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultCapacity   = 1024
)

type callOptions struct {
	ttl                  time.Duration
	useCache             bool
	maxRetries           int
	backoff              BackoffStrategy
	staleWhileRevalidate bool
	staleOnError         bool
}

func defaultCallOptions() callOptions {
	return callOptions{
		ttl:        DefaultTTL,
		useCache:   true,
		maxRetries: DefaultMaxRetries,
		backoff:    Exponential(DefaultBaseDelay),
	}
}

// CallOption configures a single Call.
type CallOption func(*callOptions)

// WithTTL sets how long a successful result stays fresh.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithCache controls whether a fresh cached value may satisfy the call.
// With false the operation always runs; its result still refreshes the cache.
func WithCache(use bool) CallOption {
	return func(o *callOptions) { o.useCache = use }
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBaseDelay uses exponential backoff starting at d.
func WithBaseDelay(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.backoff = Exponential(d)
		}
	}
}

// WithBackoff sets a custom backoff strategy.
func WithBackoff(s BackoffStrategy) CallOption {
	return func(o *callOptions) {
		if s != nil {
			o.backoff = s
		}
	}
}

// WithStaleWhileRevalidate serves a stale entry immediately and refreshes it
// in the background.
func WithStaleWhileRevalidate() CallOption {
	return func(o *callOptions) { o.staleWhileRevalidate = true }
}

// WithStaleOnError serves the previous entry, however old, when every attempt
// fails with a non-cancellation error.
func WithStaleOnError() CallOption {
	return func(o *callOptions) { o.staleOnError = true }
}

// Recorder receives fetch events, e.g. for Prometheus metrics.
type Recorder interface {
	// FetchCompleted is called once per Call with one of the Outcome values.
	FetchCompleted(outcome string)
	// FetchRetried is called before every retry attempt.
	FetchRetried()
	// FetchShared is called when a Call joined an in-flight execution.
	FetchShared()
}

// Call outcomes reported to Recorder.
const (
	OutcomeHit       = "hit"
	OutcomeStale     = "stale"
	OutcomeFetched   = "fetched"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Option configures a Client.
type Option func(*Client)

// WithCapacity bounds the number of cached entries (LRU eviction).
func WithCapacity(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches an event recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock replaces time.Now for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDefaults sets call options applied before per-call options.
func WithDefaults(opts ...CallOption) Option {
	return func(c *Client) {
		for _, opt := range opts {
			opt(&c.defaults)
		}
	}
}
