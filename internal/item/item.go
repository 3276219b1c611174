// Package item defines the priced, sized inventory entry shared by the
// selector, the packing solver and the importers.
package item

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Item is a single inventory entry. Two items with identical value and cost
// are still distinct entries; duplicates are represented as repeated items.
type Item struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name,omitempty" yaml:"name"`
	Value  int64  `json:"value" yaml:"value"`
	Cost   int64  `json:"cost" yaml:"cost"`
	Width  int    `json:"width,omitempty" yaml:"width"`
	Height int    `json:"height,omitempty" yaml:"height"`
}

// Stack is an item together with how many identical copies the caller owns.
type Stack struct {
	Item  Item `json:"item"`
	Count int  `json:"count"`
}

// NewID returns a short random identifier for items that arrive without one.
func NewID() string {
	return uuid.New().String()[:8]
}

// Normalize returns a copy with missing dimensions defaulted to a single cell.
func (it Item) Normalize() Item {
	if it.Width == 0 {
		it.Width = 1
	}
	if it.Height == 0 {
		it.Height = 1
	}
	return it
}

// Validate reports whether the item can take part in a search.
func (it Item) Validate() error {
	if it.Value < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeValue, it.Value)
	}
	if it.Cost < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCost, it.Cost)
	}
	if it.Width < 0 || it.Height < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, it.Width, it.Height)
	}
	return nil
}

// Label is the display name, falling back to the ID.
func (it Item) Label() string {
	if it.Name != "" {
		return it.Name
	}
	return it.ID
}

// Expand turns counted stacks into repeated entries. Copies after the first
// receive an "#n" suffix on their ID so every entry stays distinguishable;
// a stack of several copies without an ID gets a fresh one first.
func Expand(stacks []Stack) []Item {
	total := 0
	for _, s := range stacks {
		if s.Count > 0 {
			total += s.Count
		}
	}

	out := make([]Item, 0, total)
	for _, s := range stacks {
		if s.Count > 1 && s.Item.ID == "" {
			s.Item.ID = NewID()
		}
		for n := 0; n < s.Count; n++ {
			cp := s.Item
			if n > 0 {
				cp.ID = s.Item.ID + "#" + strconv.Itoa(n+1)
			}
			out = append(out, cp)
		}
	}
	return out
}

// ExpandedLen is the number of entries Expand would return, saturating at
// math.MaxInt64 instead of overflowing.
func ExpandedLen(stacks []Stack) int64 {
	var total int64
	for _, s := range stacks {
		if s.Count <= 0 {
			continue
		}
		if total > math.MaxInt64-int64(s.Count) {
			return math.MaxInt64
		}
		total += int64(s.Count)
	}
	return total
}

// Totals sums value and cost over items.
func Totals(items []Item) (value, cost int64) {
	for _, it := range items {
		value += it.Value
		cost += it.Cost
	}
	return value, cost
}
