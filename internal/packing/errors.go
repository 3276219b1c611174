package packing

import "errors"

var (
	// ErrInvalidGrid is returned when the grid has a non-positive dimension.
	ErrInvalidGrid = errors.New("grid width and height must be positive")
	// ErrGridTooLarge is returned when a grid side exceeds MaxSide.
	ErrGridTooLarge = errors.New("grid side exceeds the supported maximum")
	// ErrInvalidItem is returned when an item has a negative footprint.
	ErrInvalidItem = errors.New("invalid item footprint")
)
