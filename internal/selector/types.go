package selector

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

// Strategy names a selection algorithm.
type Strategy string

const (
	// StrategyAuto picks the exact DP when the table fits, branch-and-bound otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyDP is the exact bounded-knapsack table.
	StrategyDP Strategy = "dp"
	// StrategyBranchAndBound is the pruned depth-first search over a trimmed pool.
	StrategyBranchAndBound Strategy = "bnb"
)

const (
	// DefaultSlack is the overshoot allowance above the threshold kept in the DP table.
	DefaultSlack int64 = 5000
	// DefaultMaxTableCells bounds the DP allocations in bits: the
	// items*(maxItems+1)*(threshold+slack+1) bitset and the int64 cost table
	// of (maxItems+1)*(threshold+slack+1) cells are each checked against it.
	DefaultMaxTableCells = 1 << 28
	// DefaultDPMaxPool is the largest pool StrategyAuto hands to the DP.
	DefaultDPMaxPool = 64
	// DefaultCandidateCap is the trimmed pool size used by branch-and-bound.
	DefaultCandidateCap = 120
	// DefaultNodeBudget bounds the number of search nodes branch-and-bound visits.
	DefaultNodeBudget = 2_000_000

	costCellBits = 64
)

// Options tune a selection run. The zero value is valid: it means an exact DP
// without overshoot slack, no node budget and default limits elsewhere.
type Options struct {
	Strategy      Strategy
	Slack         int64
	MaxTableCells int
	DPMaxPool     int
	CandidateCap  int
	NodeBudget    int

	// Rand, when set, picks uniformly among equally cheap DP results instead of
	// the first one. A *rand.Rand is not safe for concurrent use; give every
	// call its own.
	Rand *rand.Rand
}

// DefaultOptions returns the options used by the service.
func DefaultOptions() Options {
	return Options{
		Strategy:      StrategyAuto,
		Slack:         DefaultSlack,
		MaxTableCells: DefaultMaxTableCells,
		DPMaxPool:     DefaultDPMaxPool,
		CandidateCap:  DefaultCandidateCap,
		NodeBudget:    DefaultNodeBudget,
	}
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	if o.MaxTableCells <= 0 {
		o.MaxTableCells = DefaultMaxTableCells
	}
	if o.DPMaxPool <= 0 {
		o.DPMaxPool = DefaultDPMaxPool
	}
	if o.CandidateCap <= 0 {
		o.CandidateCap = DefaultCandidateCap
	}
	return o
}

// ParseStrategy converts a user supplied name into a Strategy.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyDP, "knapsack":
		return StrategyDP, nil
	case StrategyBranchAndBound, "branch-and-bound", "dfs":
		return StrategyBranchAndBound, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
}

// Selection is a chosen subset of the pool.
type Selection struct {
	// Indices point into the caller's pool, ascending.
	Indices        []int       `json:"indices"`
	Items          []item.Item `json:"items"`
	TotalValue     int64       `json:"totalValue"`
	TotalCost      int64       `json:"totalCost"`
	MeetsThreshold bool        `json:"meetsThreshold"`
}

// Result is the outcome of a selection run. Best is nil when no subset within
// the item limit reaches the threshold; that is a normal outcome, not an error.
type Result struct {
	Best *Selection
	// Fallback is the highest-value subset below the threshold, reported by
	// branch-and-bound when Best is nil.
	Fallback   *Selection
	Strategy   Strategy
	Partial    bool
	Nodes      int
	Candidates int
}

// Found reports whether a subset reaching the threshold was found.
func (r Result) Found() bool {
	return r.Best != nil
}

// Selector describes the behaviour required from a threshold subset selector.
type Selector interface {
	Select(ctx context.Context, pool []item.Item, threshold int64, maxItems int) (Result, error)
}
