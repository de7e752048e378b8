package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Cachi0001/Biz-sub011/pkg/store"
)

// Store implements store.Store on top of Redis strings.
type Store struct {
	db            redis.UniversalClient
	prefix        string
	ttl           time.Duration
	scanBatchSize int64
	updateRetries int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeyPrefix namespaces every key (e.g. "biz:").
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL sets an expiration on written keys. Zero means no expiration.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithScanBatchSize sets the SCAN COUNT hint used by DeletePrefix.
func WithScanBatchSize(n int64) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.scanBatchSize = n
		}
	}
}

// WithUpdateRetries bounds how many times Update retries after a WATCH conflict.
func WithUpdateRetries(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.updateRetries = n
		}
	}
}

// NewStore wraps a Redis client as a store.Store.
func NewStore(client redis.UniversalClient, opts ...StoreOption) *Store {
	s := &Store{
		db:            client,
		scanBatchSize: 500,
		updateRetries: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromConfig applies the store-related fields of cfg.
func NewStoreFromConfig(client redis.UniversalClient, cfg Config) *Store {
	return NewStore(client,
		WithKeyPrefix(cfg.KeyPrefix),
		WithScanBatchSize(cfg.ScanBatchSize),
		WithUpdateRetries(cfg.UpdateRetries),
	)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}
	v, err := s.db.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(ctx, err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	if err := s.db.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return unavailable(ctx, err)
	}
	return nil
}

// callbackError marks errors produced by the caller's UpdateFunc so they are
// returned untouched instead of being reported as storage failures.
type callbackError struct{ err error }

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}
	fullKey := s.prefix + key

	var next []byte
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			current, exists = nil, false
		} else if err != nil {
			return err
		}

		next, err = fn(current, exists)
		if err != nil {
			return &callbackError{err: err}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, next, s.ttl)
			return nil
		})
		return err
	}

	for range s.updateRetries {
		err := s.db.Watch(ctx, txf, fullKey)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var cbErr *callbackError
		if errors.As(err, &cbErr) {
			return nil, cbErr.err
		}
		return nil, unavailable(ctx, err)
	}
	return nil, store.ErrConflict
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if err := s.db.Del(ctx, full...).Err(); err != nil {
		return unavailable(ctx, err)
	}
	return nil
}

// DeletePrefix removes matching keys using SCAN so Redis is never blocked.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(s.prefix+prefix) + "*"

	var cursor uint64
	for {
		batch, next, err := s.db.Scan(ctx, cursor, pattern, s.scanBatchSize).Result()
		if err != nil {
			return unavailable(ctx, err)
		}
		if len(batch) > 0 {
			if err := s.db.Del(ctx, batch...).Err(); err != nil {
				return unavailable(ctx, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// unavailable classifies a client error. Caller cancellation is returned as-is
// so it never flips the failover store into degraded mode.
func unavailable(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.Join(store.ErrStorageUnavailable, err)
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
