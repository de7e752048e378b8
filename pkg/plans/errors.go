package plans

import "errors"

var (
	ErrInvalidPlan       = errors.New("plans: invalid plan configuration")
	ErrDuplicateTier     = errors.New("plans: duplicate tier")
	ErrMissingFreeTier   = errors.New("plans: free tier is required")
	ErrFailedToLoadPlans = errors.New("plans: failed to load plans")
	ErrUnknownResource   = errors.New("plans: unknown resource")
)
