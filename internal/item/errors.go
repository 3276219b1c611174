package item

import "errors"

var (
	// ErrNegativeValue is returned when an item carries a negative value.
	ErrNegativeValue = errors.New("item value must be non-negative")
	// ErrNegativeCost is returned when an item carries a negative cost.
	ErrNegativeCost = errors.New("item cost must be non-negative")
	// ErrInvalidSize is returned when an item footprint is negative.
	ErrInvalidSize = errors.New("item width and height must be positive")
)
