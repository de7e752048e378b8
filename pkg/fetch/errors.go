package fetch

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNetworkFailure marks transient transport failures. Only these are retried.
	ErrNetworkFailure = errors.New("fetch: network failure")
	// ErrCancelled is returned when the caller's context is done.
	ErrCancelled = errors.New("fetch: cancelled")
	// ErrServerRejected marks a definitive refusal by the remote service.
	ErrServerRejected = errors.New("fetch: rejected by server")
	// ErrRetriesExhausted wraps the last error once every attempt failed.
	ErrRetriesExhausted = errors.New("fetch: retries exhausted")
	ErrEmptyKey         = errors.New("fetch: empty key")
)

// RejectedError carries the message returned by the remote service.
// It matches ErrServerRejected with errors.Is.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrServerRejected.Error()
	}
	return ErrServerRejected.Error() + ": " + e.Message
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrServerRejected
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, ErrServerRejected) {
		return false
	}
	if errors.Is(err, ErrNetworkFailure) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsCancelled reports whether err resulted from caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func cancelled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return errors.Join(ErrCancelled, err)
}
