// Package packing decides whether a set of items can be laid out, without
// rotation or overlap, inside a fixed rectangular cell grid.
package packing

import (
	"context"
	"fmt"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

const ctxCheckInterval = 256

type search struct {
	ctx    context.Context
	grid   *Grid
	items  []item.Item
	placed []Placement
	budget int
	nodes  int
	halted bool
}

func (s *search) stop() bool {
	if s.halted {
		return true
	}
	if s.budget > 0 && s.nodes >= s.budget {
		s.halted = true
	} else if s.nodes%ctxCheckInterval == 0 && s.ctx.Err() != nil {
		s.halted = true
	}
	return s.halted
}

// place tries every row-major origin for item i and recurses into i+1.
func (s *search) place(i int) bool {
	if i == len(s.items) {
		return true
	}
	it := s.items[i]
	w, h := it.Width, it.Height

	// Identical footprints are interchangeable, so the next one only needs
	// origins after the previous one.
	start := 0
	if i > 0 {
		prev := s.placed[i-1]
		if prev.Width == w && prev.Height == h {
			start = prev.Y*s.grid.Width + prev.X + 1
		}
	}

	for pos := start; pos < s.grid.Width*s.grid.Height; pos++ {
		x, y := pos%s.grid.Width, pos/s.grid.Width
		if x+w > s.grid.Width {
			continue
		}
		if y+h > s.grid.Height {
			return false
		}
		if s.stop() {
			return false
		}
		s.nodes++
		if !s.grid.CanPlace(x, y, w, h) {
			continue
		}
		s.grid.Place(x, y, w, h, i)
		s.placed = append(s.placed, Placement{X: x, Y: y, Width: w, Height: h, Index: i})
		if s.place(i + 1) {
			return true
		}
		s.placed = s.placed[:len(s.placed)-1]
		s.grid.Remove(x, y, w, h)
	}
	return false
}

// Fit reports whether all items can be placed on a width x height grid and
// returns one valid arrangement when they can. Items keep their declared
// orientation; missing dimensions count as one cell. Oversized items and a
// total area above the grid's are rejected before any search. The search
// stops early when opts.NodeBudget is spent or ctx is cancelled, reporting
// ReasonBudgetExhausted with Partial set.
func Fit(ctx context.Context, items []item.Item, width, height int, opts Options) (Result, error) {
	if width <= 0 || height <= 0 {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrInvalidGrid, width, height)
	}
	if width > MaxSide || height > MaxSide {
		return Result{}, fmt.Errorf("%w: %dx%d, limit %d", ErrGridTooLarge, width, height, MaxSide)
	}

	normalized := make([]item.Item, len(items))
	area := 0
	for i, it := range items {
		if it.Width < 0 || it.Height < 0 {
			return Result{}, fmt.Errorf("%w: item %d is %dx%d", ErrInvalidItem, i, it.Width, it.Height)
		}
		it = it.Normalize()
		if it.Width > width || it.Height > height {
			return tooLarge(i, it.Label(), it.Width, it.Height, width, height), nil
		}
		area += it.Width * it.Height
		normalized[i] = it
	}

	if area > width*height {
		return Result{
			Reason: ReasonAreaExceeded,
			Detail: fmt.Sprintf("items cover %d cells, grid has %d", area, width*height),
		}, nil
	}

	budget := opts.NodeBudget
	if budget == 0 {
		budget = DefaultNodeBudget
	}

	s := &search{
		ctx:    ctx,
		grid:   NewGrid(width, height),
		items:  normalized,
		placed: make([]Placement, 0, len(normalized)),
		budget: budget,
	}

	if s.place(0) {
		return Result{Fit: true, Placements: s.placed, Nodes: s.nodes}, nil
	}

	res := Result{Nodes: s.nodes, Reason: ReasonNoArrangement, Detail: "no arrangement found"}
	if s.halted {
		res.Reason = ReasonBudgetExhausted
		res.Detail = fmt.Sprintf("search stopped after %d placement attempts", s.nodes)
		res.Partial = true
	}
	return res, nil
}
