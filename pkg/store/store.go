package store

import (
	"context"
	"strings"
)

// UpdateFunc computes the next value of a key from its current value.
// exists is false when the key has no value yet. Returning an error aborts the
// update and leaves the stored value untouched.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a key/value store of serialized values.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Update atomically applies fn to the current value and stores the result.
	// It returns the value that was stored.
	Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key joins key parts with ":" (e.g. Key("usage_tracking", ownerID)).
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
