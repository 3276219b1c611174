package selector

import (
	"context"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

const ctxCheckInterval = 1024

type bnbSearch struct {
	ctx       context.Context
	values    []int64
	costs     []int64
	reach     []int64 // reach[k] = sum of values[0:k]
	threshold int64
	slots     int
	budget    int

	nodes     int
	exhausted bool
	chosen    []int

	best      []int
	bestCost  int64
	haveBest  bool
	fallback  []int
	fbValue   int64
	fbCost    int64
	haveFback bool
}

func (s *bnbSearch) stop() bool {
	if s.exhausted {
		return true
	}
	if s.budget > 0 && s.nodes >= s.budget {
		s.exhausted = true
	} else if s.nodes%ctxCheckInterval == 0 && s.ctx.Err() != nil {
		s.exhausted = true
	}
	return s.exhausted
}

// maxReach is the largest value obtainable with n more picks starting at
// candidate j; candidates are sorted by value descending.
func (s *bnbSearch) maxReach(j, n int) int64 {
	end := min(j+n, len(s.values))
	return s.reach[end] - s.reach[j]
}

func (s *bnbSearch) considerFallback(path []int, value, cost int64) {
	if s.haveFback && (value < s.fbValue || (value == s.fbValue && cost >= s.fbCost)) {
		return
	}
	s.fallback = append(s.fallback[:0], path...)
	s.fbValue, s.fbCost = value, cost
	s.haveFback = true
}

func (s *bnbSearch) dfs(start int, value, cost int64) {
	for j := start; j < len(s.values); j++ {
		if s.stop() {
			return
		}
		s.nodes++

		next := cost + s.costs[j]
		if s.haveBest && next >= s.bestCost {
			continue
		}

		open := s.slots - len(s.chosen)
		if value+s.maxReach(j, open) < s.threshold {
			// Later candidates reach even less. The greedy completion is
			// the best below-threshold result this branch can produce.
			if !s.haveBest {
				s.greedyFallback(j, open, value, cost)
			}
			return
		}

		s.chosen = append(s.chosen, j)
		total := value + s.values[j]
		if total >= s.threshold {
			s.best = append(s.best[:0], s.chosen...)
			s.bestCost = next
			s.haveBest = true
		} else {
			s.considerFallback(s.chosen, total, next)
			if len(s.chosen) < s.slots {
				s.dfs(j+1, total, next)
			}
		}
		s.chosen = s.chosen[:len(s.chosen)-1]
	}
}

func (s *bnbSearch) greedyFallback(j, open int, value, cost int64) {
	end := min(j+open, len(s.values))
	if end <= j {
		return
	}
	path := append([]int(nil), s.chosen...)
	for k := j; k < end; k++ {
		path = append(path, k)
		value += s.values[k]
		cost += s.costs[k]
	}
	s.considerFallback(path, value, cost)
}

// SolveBranchAndBound searches combinations of the trimmed candidate pool
// depth first. A branch stops as soon as it reaches the threshold, and is
// pruned when it cannot beat the cheapest solution so far or cannot reach the
// threshold with the slots it has left. When nothing reaches the threshold
// the highest-value attempt is returned as Fallback. Exhausting
// opts.NodeBudget or cancelling ctx returns the best found so far as Partial.
func SolveBranchAndBound(ctx context.Context, pool []item.Item, threshold int64, maxItems int, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if err := validate(pool, threshold, maxItems, opts); err != nil {
		return Result{}, err
	}

	res := Result{Strategy: StrategyBranchAndBound}
	if len(pool) == 0 || maxItems == 0 {
		return res, nil
	}

	candidates := TrimPool(pool, opts.CandidateCap)
	res.Candidates = len(candidates)

	s := &bnbSearch{
		ctx:       ctx,
		values:    make([]int64, len(candidates)),
		costs:     make([]int64, len(candidates)),
		reach:     make([]int64, len(candidates)+1),
		threshold: threshold,
		slots:     min(maxItems, len(candidates)),
		budget:    opts.NodeBudget,
		chosen:    make([]int, 0, maxItems),
	}
	for k, idx := range candidates {
		s.values[k] = pool[idx].Value
		s.costs[k] = pool[idx].Cost
		s.reach[k+1] = s.reach[k] + pool[idx].Value
	}

	s.dfs(0, 0, 0)

	res.Nodes = s.nodes
	res.Partial = s.exhausted
	toPool := func(path []int) []int {
		out := make([]int, len(path))
		for i, k := range path {
			out[i] = candidates[k]
		}
		return out
	}

	if s.haveBest {
		res.Best = newSelection(pool, toPool(s.best), threshold)
	} else if s.haveFback {
		res.Fallback = newSelection(pool, toPool(s.fallback), threshold)
	}
	return res, nil
}
