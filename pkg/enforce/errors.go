package enforce

import "errors"

var (
	ErrOwnerUnresolved  = errors.New("enforce: owner could not be resolved")
	ErrTierUnavailable  = errors.New("enforce: tier unavailable")
	ErrUsageUnavailable = errors.New("enforce: usage unavailable")
)
