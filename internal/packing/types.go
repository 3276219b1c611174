package packing

import "fmt"

const (
	// DefaultWidth and DefaultHeight describe the circle's 9x6 cell grid.
	DefaultWidth  = 9
	DefaultHeight = 6
	// MaxSide is the largest grid width or height Fit accepts.
	MaxSide = 64
	// DefaultNodeBudget bounds the number of placement attempts per call.
	DefaultNodeBudget = 5_000_000
)

// Placement is the position of one item's rectangle on the grid.
type Placement struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Index  int `json:"index"`
}

// Overlaps reports whether two placements share at least one cell.
func (p Placement) Overlaps(o Placement) bool {
	return p.X < o.X+o.Width && o.X < p.X+p.Width &&
		p.Y < o.Y+o.Height && o.Y < p.Y+p.Height
}

// Reason explains why a fit check failed.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonItemTooLarge
	ReasonAreaExceeded
	ReasonNoArrangement
	ReasonBudgetExhausted
)

func (r Reason) String() string {
	switch r {
	case ReasonItemTooLarge:
		return "item_too_large"
	case ReasonAreaExceeded:
		return "area_exceeded"
	case ReasonNoArrangement:
		return "no_arrangement"
	case ReasonBudgetExhausted:
		return "budget_exhausted"
	default:
		return "none"
	}
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Options tune a fit check.
type Options struct {
	// NodeBudget caps placement attempts; zero means DefaultNodeBudget and a
	// negative value disables the cap.
	NodeBudget int
}

// Result is the verdict of a fit check. Placements are ordered by item index.
type Result struct {
	Fit        bool
	Placements []Placement
	Reason     Reason
	Detail     string
	Nodes      int
	Partial    bool
}

func tooLarge(idx int, label string, w, h, gw, gh int) Result {
	return Result{
		Reason: ReasonItemTooLarge,
		Detail: fmt.Sprintf("item %d (%s) is %dx%d, grid is %dx%d", idx, label, w, h, gw, gh),
	}
}
