package httpapi

import (
	"errors"
	"net/http"
)

// Error is an API error with its HTTP status and a machine-readable code.
type Error struct {
	Status int
	Code   string
}

func (e Error) Error() string {
	return e.Code
}

var (
	ErrMissingSubject   = Error{Status: http.StatusUnauthorized, Code: "missing_identity"}
	ErrInvalidSubject   = Error{Status: http.StatusBadRequest, Code: "invalid_identity"}
	ErrUnknownAction    = Error{Status: http.StatusNotFound, Code: "unknown_action"}
	ErrUnknownResource  = Error{Status: http.StatusNotFound, Code: "unknown_resource"}
	ErrInvalidBody      = Error{Status: http.StatusBadRequest, Code: "invalid_body"}
	ErrInvalidAmount    = Error{Status: http.StatusUnprocessableEntity, Code: "invalid_amount"}
	ErrUpstreamRejected = Error{Status: http.StatusBadGateway, Code: "upstream_rejected"}
	ErrUpstreamDown     = Error{Status: http.StatusServiceUnavailable, Code: "upstream_unavailable"}
	ErrCancelled        = Error{Status: http.StatusRequestTimeout, Code: "request_cancelled"}
	ErrSessionMismatch  = Error{Status: http.StatusConflict, Code: "session_mismatch"}
	ErrInternal         = Error{Status: http.StatusInternalServerError, Code: "internal_error"}
	ErrNotFound         = Error{Status: http.StatusNotFound, Code: "not_found"}
	ErrMethodNotAllowed = Error{Status: http.StatusMethodNotAllowed, Code: "method_not_allowed"}
)

// asError maps err to an API error, defaulting to ErrInternal.
func asError(err error) Error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
