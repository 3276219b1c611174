package packing

import "strings"

const empty = -1

// Grid is a cell occupancy mask. Each cell holds the index of the item
// covering it, or -1.
type Grid struct {
	Width  int
	Height int
	cells  []int
}

// NewGrid returns an empty grid.
func NewGrid(width, height int) *Grid {
	cells := make([]int, width*height)
	for i := range cells {
		cells[i] = empty
	}
	return &Grid{Width: width, Height: height, cells: cells}
}

// At returns the item index covering (x, y), or -1.
func (g *Grid) At(x, y int) int {
	return g.cells[y*g.Width+x]
}

// CanPlace reports whether a w x h rectangle at (x, y) is in bounds and free.
func (g *Grid) CanPlace(x, y, w, h int) bool {
	if x < 0 || y < 0 || x+w > g.Width || y+h > g.Height {
		return false
	}
	for dy := 0; dy < h; dy++ {
		row := (y+dy)*g.Width + x
		for dx := 0; dx < w; dx++ {
			if g.cells[row+dx] != empty {
				return false
			}
		}
	}
	return true
}

// Place marks the rectangle as covered by idx.
func (g *Grid) Place(x, y, w, h, idx int) {
	g.fill(x, y, w, h, idx)
}

// Remove clears the rectangle.
func (g *Grid) Remove(x, y, w, h int) {
	g.fill(x, y, w, h, empty)
}

func (g *Grid) fill(x, y, w, h, v int) {
	for dy := 0; dy < h; dy++ {
		row := (y+dy)*g.Width + x
		for dx := 0; dx < w; dx++ {
			g.cells[row+dx] = v
		}
	}
}

// String draws the grid one row per line: "." for free cells, A..Z then a..z
// for item indexes, "#" beyond that.
func (g *Grid) String() string {
	var b strings.Builder
	b.Grow((g.Width + 1) * g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			b.WriteByte(cellGlyph(g.At(x, y)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func cellGlyph(idx int) byte {
	switch {
	case idx == empty:
		return '.'
	case idx < 26:
		return byte('A' + idx)
	case idx < 52:
		return byte('a' + idx - 26)
	default:
		return '#'
	}
}

// Render builds the occupancy grid for a set of placements.
func Render(placements []Placement, width, height int) *Grid {
	g := NewGrid(width, height)
	for _, p := range placements {
		g.Place(p.X, p.Y, p.Width, p.Height, p.Index)
	}
	return g
}
