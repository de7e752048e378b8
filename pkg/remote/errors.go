package remote

import "errors"

var (
	ErrInvalidURL         = errors.New("remote: invalid base URL")
	ErrCircuitOpen        = errors.New("remote: circuit breaker is open")
	ErrUnexpectedResponse = errors.New("remote: unexpected response")
	ErrInvalidOwner       = errors.New("remote: owner id is required")
)

// IsCircuitOpen reports whether err was caused by an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
