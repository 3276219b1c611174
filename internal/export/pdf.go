// Package export renders placement results to printable formats.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-pdf/fpdf"

	"github.com/eugenenazirov/cultist-circle/internal/item"
	"github.com/eugenenazirov/cultist-circle/internal/packing"
)

// ErrInvalidLayout is returned when the grid or placements cannot be drawn.
var ErrInvalidLayout = errors.New("invalid layout")

type rgb struct {
	R, G, B int
}

var itemColors = []rgb{
	{R: 76, G: 175, B: 80},
	{R: 33, G: 150, B: 243},
	{R: 255, G: 152, B: 0},
	{R: 156, G: 39, B: 176},
	{R: 0, G: 188, B: 212},
	{R: 244, G: 67, B: 54},
	{R: 255, G: 235, B: 59},
	{R: 121, G: 85, B: 72},
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	margin       = 15.0
	headerHeight = 12.0
	legendHeight = 30.0
	drawAreaTop  = margin + headerHeight + 8.0
)

// WriteGridPDF draws the container grid with every placed item and a legend,
// and writes the PDF document to w.
func WriteGridPDF(w io.Writer, items []item.Item, placements []packing.Placement, gridW, gridH int) error {
	pdf, err := buildGridPDF(items, placements, gridW, gridH)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ExportGridPDF writes the grid diagram to a file at path.
func ExportGridPDF(path string, items []item.Item, placements []packing.Placement, gridW, gridH int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WriteGridPDF(f, items, placements, gridW, gridH); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func buildGridPDF(items []item.Item, placements []packing.Placement, gridW, gridH int) (*fpdf.Fpdf, error) {
	if gridW <= 0 || gridH <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d", ErrInvalidLayout, gridW, gridH)
	}
	for _, p := range placements {
		if p.Index < 0 || p.Index >= len(items) {
			return nil, fmt.Errorf("%w: placement references item %d of %d", ErrInvalidLayout, p.Index, len(items))
		}
		if p.X < 0 || p.Y < 0 || p.X+p.Width > gridW || p.Y+p.Height > gridH {
			return nil, fmt.Errorf("%w: placement of item %d leaves the grid", ErrInvalidLayout, p.Index)
		}
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, margin)
	pdf.AddPage()

	value, cost := item.Totals(items)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(margin, margin)
	pdf.CellFormat(pageWidth-2*margin, headerHeight, fmt.Sprintf("Container %d x %d", gridW, gridH), "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(margin, margin+headerHeight)
	stats := fmt.Sprintf("Items: %d | Placed: %d | Total value: %d | Total cost: %d", len(items), len(placements), value, cost)
	pdf.CellFormat(pageWidth-2*margin, 5, stats, "", 0, "L", false, 0, "")

	drawWidth := pageWidth - 2*margin
	drawHeight := pageHeight - drawAreaTop - margin - legendHeight
	cell := math.Min(drawWidth/float64(gridW), drawHeight/float64(gridH))
	offsetX := margin + (drawWidth-cell*float64(gridW))/2
	offsetY := drawAreaTop

	drawCells(pdf, gridW, gridH, cell, offsetX, offsetY)

	for _, p := range placements {
		col := itemColors[p.Index%len(itemColors)]
		px := offsetX + float64(p.X)*cell
		py := offsetY + float64(p.Y)*cell
		pw := float64(p.Width) * cell
		ph := float64(p.Height) * cell

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.SetDrawColor(30, 30, 30)
		pdf.SetLineWidth(0.4)
		pdf.Rect(px+0.5, py+0.5, pw-1, ph-1, "FD")

		label := items[p.Index].Label()
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetTextColor(0, 0, 0)
		if lw := pdf.GetStringWidth(label); lw < pw-2 {
			pdf.SetXY(px+(pw-lw)/2, py+ph/2-2)
			pdf.CellFormat(lw, 4, label, "", 0, "C", false, 0, "")
		}
	}

	drawLegend(pdf, items, placements, offsetY+cell*float64(gridH)+6)
	return pdf, nil
}

// drawCells outlines every grid cell.
func drawCells(pdf *fpdf.Fpdf, gridW, gridH int, cell, offsetX, offsetY float64) {
	pdf.SetFillColor(235, 235, 235)
	pdf.SetDrawColor(180, 180, 180)
	pdf.SetLineWidth(0.2)
	for y := 0; y < gridH; y++ {
		for x := 0; x < gridW; x++ {
			pdf.Rect(offsetX+float64(x)*cell, offsetY+float64(y)*cell, cell, cell, "FD")
		}
	}
}

// drawLegend lists the placed items with their colour swatch, footprint and prices.
func drawLegend(pdf *fpdf.Fpdf, items []item.Item, placements []packing.Placement, startY float64) {
	if len(placements) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(margin, startY)
	pdf.CellFormat(30, 4, "Items placed:", "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	xPos := margin + 32
	maxX := pageWidth - margin

	for _, p := range placements {
		it := items[p.Index]
		col := itemColors[p.Index%len(itemColors)]
		label := fmt.Sprintf("%s (%dx%d, value %d, cost %d)", it.Label(), p.Width, p.Height, it.Value, it.Cost)
		labelW := pdf.GetStringWidth(label) + 6

		if xPos+labelW > maxX {
			startY += 5
			xPos = margin
		}

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(xPos, startY+0.5, 3, 3, "F")

		pdf.SetXY(xPos+4, startY)
		pdf.CellFormat(labelW-4, 4, label, "", 0, "L", false, 0, "")

		xPos += labelW + 2
	}
}
