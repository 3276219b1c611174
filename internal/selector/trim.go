package selector

import (
	"sort"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

// TrimPool bounds the branch-and-bound candidate set. It returns pool indices
// ordered by value descending (cheaper first on equal value, then pool order).
// When the pool is larger than limit it keeps the top half by value, the
// lowest tenth, and an evenly strided sample of everything in between.
//
// Trimming trades completeness for bounded runtime: the search afterwards is
// optimal over the returned candidates only, not over the whole pool.
func TrimPool(pool []item.Item, limit int) []int {
	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := pool[order[a]], pool[order[b]]
		if ia.Value != ib.Value {
			return ia.Value > ib.Value
		}
		return ia.Cost < ib.Cost
	})

	if limit <= 0 || len(order) <= limit {
		return order
	}

	top := limit / 2
	tail := limit / 10
	mid := limit - top - tail

	out := make([]int, 0, limit)
	out = append(out, order[:top]...)

	rest := order[top : len(order)-tail]
	for k := 0; k < mid; k++ {
		out = append(out, rest[k*len(rest)/mid])
	}

	return append(out, order[len(order)-tail:]...)
}
