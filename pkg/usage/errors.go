package usage

import "errors"

var (
	ErrNegativeAmount  = errors.New("usage: amount must not be negative")
	ErrUnknownResource = errors.New("usage: unknown resource")
	ErrInvalidOwner    = errors.New("usage: owner id is required")
	ErrFailedToLoad    = errors.New("usage: failed to load snapshot")
	ErrFailedToSave    = errors.New("usage: failed to save snapshot")
)
