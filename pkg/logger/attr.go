package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// OwnerID records the owning account identifier under the key "owner_id".
func OwnerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("owner_id", id)
}

// Resource records the tracked resource kind under the key "resource".
func Resource(name string) slog.Attr {
	return slog.String("resource", name)
}

// Action records the enforcement action under the key "action".
func Action(name string) slog.Attr {
	return slog.String("action", name)
}

// Tier records the subscription tier under the key "tier".
func Tier(name string) slog.Attr {
	return slog.String("tier", name)
}

// Key records a cache key under the key "key".
func Key(key string) slog.Attr {
	return slog.String("key", key)
}

// Attempt records a 1-based attempt number under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
