// Package selector finds the cheapest subset of items whose combined value
// reaches a threshold while using at most a given number of items.
package selector

import (
	"context"
	"fmt"
	"sort"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

type engine struct {
	opts Options
}

// New creates a Selector using the provided options.
func New(opts Options) Selector {
	return &engine{opts: opts}
}

func (e *engine) Select(ctx context.Context, pool []item.Item, threshold int64, maxItems int) (Result, error) {
	return Select(ctx, pool, threshold, maxItems, e.opts)
}

// Select runs the strategy named in opts. StrategyAuto uses the exact DP for
// small pools whose table fits the cell budget and branch-and-bound otherwise.
func Select(ctx context.Context, pool []item.Item, threshold int64, maxItems int, opts Options) (Result, error) {
	opts = opts.withDefaults()

	switch opts.Strategy {
	case StrategyDP:
		return SolveDP(ctx, pool, threshold, maxItems, opts)
	case StrategyBranchAndBound:
		return SolveBranchAndBound(ctx, pool, threshold, maxItems, opts)
	case StrategyAuto:
		if err := validate(pool, threshold, maxItems, opts); err != nil {
			return Result{}, err
		}
		if len(pool) <= opts.DPMaxPool && tableFits(len(pool), maxItems, threshold+opts.Slack, opts.MaxTableCells) {
			return SolveDP(ctx, pool, threshold, maxItems, opts)
		}
		return SolveBranchAndBound(ctx, pool, threshold, maxItems, opts)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}
}

func validate(pool []item.Item, threshold int64, maxItems int, opts Options) error {
	if threshold < 0 {
		return ErrInvalidThreshold
	}
	if maxItems < 0 {
		return ErrInvalidMaxItems
	}
	if opts.Slack < 0 {
		return ErrInvalidSlack
	}
	for i, it := range pool {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w at index %d: %w", ErrInvalidItem, i, err)
		}
	}
	return nil
}

// tableFits reports whether both DP allocations stay within budget, counted
// in bits: the improvement bitset of items*(slots+1)*(limit+1) bits and the
// cost table of (slots+1)*(limit+1) int64 cells. Overflow reports false.
func tableFits(items, maxItems int, limit int64, budget int) bool {
	if items == 0 {
		return true
	}
	slots := min(maxItems, items)
	perBucket := int64(max(items, costCellBits)) * int64(slots+1)
	return limit+1 <= int64(budget)/perBucket
}

func newSelection(pool []item.Item, indices []int, threshold int64) *Selection {
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	items := make([]item.Item, 0, len(sorted))
	for _, idx := range sorted {
		items = append(items, pool[idx])
	}
	value, cost := item.Totals(items)

	return &Selection{
		Indices:        sorted,
		Items:          items,
		TotalValue:     value,
		TotalCost:      cost,
		MeetsThreshold: value >= threshold,
	}
}
