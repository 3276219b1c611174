package selector

import (
	"context"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

const unreachable = math.MaxInt64

// dpTable holds dp[count][bucket] = minimum cost of exactly count items whose
// value lands in bucket. Values past the last bucket are clamped into it.
type dpTable struct {
	slots int
	width int
	cost  []int64

	// improved has one bit per (item, count, bucket): set when that item
	// lowered the cell. clampedFrom keeps the source bucket of the last
	// improvement of the top bucket per (item, count), since clamping makes
	// bucket - value ambiguous there.
	improved    *bitset.BitSet
	clampedFrom []int
}

func newDPTable(items, slots, width int) *dpTable {
	cost := make([]int64, (slots+1)*width)
	for i := range cost {
		cost[i] = unreachable
	}
	cost[0] = 0

	return &dpTable{
		slots:       slots,
		width:       width,
		cost:        cost,
		improved:    bitset.New(uint(items * (slots + 1) * width)),
		clampedFrom: make([]int, items*(slots+1)),
	}
}

func (t *dpTable) cell(count, bucket int) int {
	return count*t.width + bucket
}

func (t *dpTable) bit(idx, count, bucket int) uint {
	return uint((idx*(t.slots+1)+count)*t.width + bucket)
}

func (t *dpTable) add(idx int, it item.Item) {
	top := t.width - 1
	for count := min(idx+1, t.slots); count >= 1; count-- {
		prev := (count - 1) * t.width
		row := count * t.width
		for bucket := 0; bucket < t.width; bucket++ {
			base := t.cost[prev+bucket]
			if base == unreachable {
				continue
			}
			next := top
			if it.Value < int64(top-bucket) {
				next = bucket + int(it.Value)
			}
			candidate := base + it.Cost
			if candidate < t.cost[row+next] {
				t.cost[row+next] = candidate
				t.improved.Set(t.bit(idx, count, next))
				if next == top {
					t.clampedFrom[idx*(t.slots+1)+count] = bucket
				}
			}
		}
	}
}

// reconstruct walks the improvement bits backwards from the last filled item.
func (t *dpTable) reconstruct(pool []item.Item, filled, count, bucket int) []int {
	indices := make([]int, 0, count)
	idx := filled - 1
	for count > 0 {
		for idx >= 0 && !t.improved.Test(t.bit(idx, count, bucket)) {
			idx--
		}
		if idx < 0 {
			return nil
		}
		indices = append(indices, idx)
		if bucket == t.width-1 {
			bucket = t.clampedFrom[idx*(t.slots+1)+count]
		} else {
			bucket -= int(pool[idx].Value)
		}
		count--
		idx--
	}
	return indices
}

type dpCell struct {
	count  int
	bucket int
}

// cheapest returns every reachable cell at or above threshold that shares the
// minimum cost, ordered by count and then bucket.
func (t *dpTable) cheapest(threshold int) []dpCell {
	best := int64(unreachable)
	var ties []dpCell
	for count := 1; count <= t.slots; count++ {
		for bucket := threshold; bucket < t.width; bucket++ {
			c := t.cost[t.cell(count, bucket)]
			switch {
			case c == unreachable || c > best:
			case c < best:
				best = c
				ties = append(ties[:0], dpCell{count: count, bucket: bucket})
			default:
				ties = append(ties, dpCell{count: count, bucket: bucket})
			}
		}
	}
	return ties
}

// SolveDP runs the exact bounded-knapsack table over the whole pool. The
// result has minimum total cost among subsets of at most maxItems entries
// whose value reaches threshold. Ties go to the fewest items, then the lowest
// value bucket, unless opts.Rand is set. Cancelling ctx stops after the
// current item and reports the best subset of the items processed so far as
// Partial.
func SolveDP(ctx context.Context, pool []item.Item, threshold int64, maxItems int, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if err := validate(pool, threshold, maxItems, opts); err != nil {
		return Result{}, err
	}

	res := Result{Strategy: StrategyDP, Candidates: len(pool)}
	if len(pool) == 0 || maxItems == 0 {
		return res, nil
	}

	limit := threshold + opts.Slack
	if !tableFits(len(pool), maxItems, limit, opts.MaxTableCells) {
		return res, fmt.Errorf("%w: %d items, %d slots, %d buckets", ErrTableTooLarge, len(pool), maxItems, limit+1)
	}

	slots := min(maxItems, len(pool))
	table := newDPTable(len(pool), slots, int(limit)+1)

	filled := 0
	for idx, it := range pool {
		if ctx.Err() != nil {
			res.Partial = true
			break
		}
		table.add(idx, it)
		filled++
		res.Nodes += slots * table.width
	}

	ties := table.cheapest(int(threshold))
	if len(ties) == 0 {
		return res, nil
	}

	pick := ties[0]
	if opts.Rand != nil {
		pick = ties[opts.Rand.Intn(len(ties))]
	}

	indices := table.reconstruct(pool, filled, pick.count, pick.bucket)
	if indices == nil {
		return res, fmt.Errorf("reconstruct dp cell (%d, %d): inconsistent table", pick.count, pick.bucket)
	}
	res.Best = newSelection(pool, indices, threshold)
	return res, nil
}
