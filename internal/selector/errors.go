package selector

import "errors"

var (
	// ErrInvalidThreshold is returned when the threshold is negative.
	ErrInvalidThreshold = errors.New("threshold must be a non-negative integer")
	// ErrInvalidMaxItems is returned when the item limit is negative.
	ErrInvalidMaxItems = errors.New("max items must be a non-negative integer")
	// ErrInvalidSlack is returned when the DP overshoot allowance is negative.
	ErrInvalidSlack = errors.New("slack must be a non-negative integer")
	// ErrInvalidItem is returned when a pool entry fails validation.
	ErrInvalidItem = errors.New("invalid item in pool")
	// ErrTableTooLarge is returned when the DP table would exceed its cell budget.
	ErrTableTooLarge = errors.New("dp table exceeds the configured cell budget")
	// ErrUnknownStrategy is returned for an unrecognised strategy name.
	ErrUnknownStrategy = errors.New("unknown selection strategy")
)
