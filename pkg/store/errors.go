package store

import "errors"

var (
	ErrNotFound           = errors.New("store: key not found")
	ErrEmptyKey           = errors.New("store: empty key")
	ErrStorageUnavailable = errors.New("store: storage unavailable")
	ErrConflict           = errors.New("store: concurrent update conflict")
)
