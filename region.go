package cellstorage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	MaxColumns = excelize.MaxColumns // rightmost addressable column
	MaxRows    = excelize.TotalRows  // bottom addressable row
)

// ErrInvalidReference is returned when an A1 style reference cannot be parsed
var ErrInvalidReference = errors.New("invalid cell reference")

// Point addresses a single cell. columns and rows are 1-based, 0 means none.
type Point struct {
	Col int
	Row int
}

// IsValid reports whether the point lies inside the grid
func (p Point) IsValid() bool {
	return p.Col >= 1 && p.Col <= MaxColumns && p.Row >= 1 && p.Row <= MaxRows
}

// String renders the point in A1 notation
func (p Point) String() string {
	name, err := excelize.CoordinatesToCellName(p.Col, p.Row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", p.Row, p.Col)
	}
	return name
}

// ParsePoint parses an A1 style cell name such as "C5" or "$C$5"
func ParsePoint(name string) (Point, error) {
	col, row, err := excelize.CellNameToCoordinates(strings.ReplaceAll(name, "$", ""))
	if err != nil {
		return Point{}, fmt.Errorf("%w %q: %v", ErrInvalidReference, name, err)
	}
	return Point{Col: col, Row: row}, nil
}

// Rect is an inclusive rectangle of cells
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// NewRect builds a rectangle from its top-left corner and its size
func NewRect(col, row, width, height int) Rect {
	return Rect{Left: col, Top: row, Right: col + width - 1, Bottom: row + height - 1}
}

// RectFromPoint returns the 1x1 rectangle covering p
func RectFromPoint(p Point) Rect {
	return Rect{Left: p.Col, Top: p.Row, Right: p.Col, Bottom: p.Row}
}

// ParseRect parses "B3" or "B3:D7". the corners may be given in any order.
func ParseRect(ref string) (Rect, error) {
	parts := strings.Split(ref, ":")
	if len(parts) > 2 {
		return Rect{}, fmt.Errorf("%w %q", ErrInvalidReference, ref)
	}
	first, err := ParsePoint(parts[0])
	if err != nil {
		return Rect{}, err
	}
	last := first
	if len(parts) == 2 {
		if last, err = ParsePoint(parts[1]); err != nil {
			return Rect{}, err
		}
	}
	return Rect{
		Left:   min(first.Col, last.Col),
		Top:    min(first.Row, last.Row),
		Right:  max(first.Col, last.Col),
		Bottom: max(first.Row, last.Row),
	}, nil
}

func (r Rect) Width() int  { return r.Right - r.Left + 1 }
func (r Rect) Height() int { return r.Bottom - r.Top + 1 }

// TopLeft returns the master corner of the rectangle
func (r Rect) TopLeft() Point { return Point{Col: r.Left, Row: r.Top} }

// IsEmpty reports whether the rectangle covers no cell
func (r Rect) IsEmpty() bool {
	return r.Right < r.Left || r.Bottom < r.Top
}

// Contains reports whether p lies inside the rectangle
func (r Rect) Contains(p Point) bool {
	return p.Col >= r.Left && p.Col <= r.Right && p.Row >= r.Top && p.Row <= r.Bottom
}

// ContainsRect reports whether o lies completely inside the rectangle
func (r Rect) ContainsRect(o Rect) bool {
	return !o.IsEmpty() && o.Left >= r.Left && o.Right <= r.Right && o.Top >= r.Top && o.Bottom <= r.Bottom
}

// Intersects reports whether both rectangles share at least one cell
func (r Rect) Intersects(o Rect) bool {
	return !r.Intersect(o).IsEmpty()
}

// Intersect returns the common part of both rectangles, possibly empty
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		Left:   max(r.Left, o.Left),
		Top:    max(r.Top, o.Top),
		Right:  min(r.Right, o.Right),
		Bottom: min(r.Bottom, o.Bottom),
	}
}

// United returns the bounding rectangle of both rectangles
func (r Rect) United(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

// Subtract returns r minus o as at most four disjoint rectangles: a full
// width band above, a full width band below, and the left and right parts
// of the middle band.
func (r Rect) Subtract(o Rect) []Rect {
	cut := r.Intersect(o)
	if cut.IsEmpty() {
		return []Rect{r}
	}
	var pieces []Rect
	if cut.Top > r.Top {
		pieces = append(pieces, Rect{Left: r.Left, Top: r.Top, Right: r.Right, Bottom: cut.Top - 1})
	}
	if cut.Bottom < r.Bottom {
		pieces = append(pieces, Rect{Left: r.Left, Top: cut.Bottom + 1, Right: r.Right, Bottom: r.Bottom})
	}
	if cut.Left > r.Left {
		pieces = append(pieces, Rect{Left: r.Left, Top: cut.Top, Right: cut.Left - 1, Bottom: cut.Bottom})
	}
	if cut.Right < r.Right {
		pieces = append(pieces, Rect{Left: cut.Right + 1, Top: cut.Top, Right: r.Right, Bottom: cut.Bottom})
	}
	return pieces
}

// Translate moves the rectangle by dc columns and dr rows
func (r Rect) Translate(dc, dr int) Rect {
	return Rect{Left: r.Left + dc, Top: r.Top + dr, Right: r.Right + dc, Bottom: r.Bottom + dr}
}

// Clip restricts the rectangle to the grid
func (r Rect) Clip() Rect {
	return r.Intersect(Rect{Left: 1, Top: 1, Right: MaxColumns, Bottom: MaxRows})
}

// String renders the rectangle in A1 notation
func (r Rect) String() string {
	if r.IsEmpty() {
		return ""
	}
	first := r.TopLeft().String()
	if r.Left == r.Right && r.Top == r.Bottom {
		return first
	}
	return first + ":" + Point{Col: r.Right, Row: r.Bottom}.String()
}

// Region is a union of rectangles on one sheet
type Region []Rect

// RegionFromPoint returns the region covering a single cell
func RegionFromPoint(col, row int) Region {
	return Region{{Left: col, Top: row, Right: col, Bottom: row}}
}

// RegionFromRect returns the region covering r
func RegionFromRect(r Rect) Region {
	if r.IsEmpty() {
		return nil
	}
	return Region{r}
}

// ParseRegion parses a ";" separated list of A1 references
func ParseRegion(ref string) (Region, error) {
	var region Region
	for _, part := range strings.Split(ref, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rect, err := ParseRect(part)
		if err != nil {
			return nil, err
		}
		region = append(region, rect)
	}
	return region, nil
}

// IsEmpty reports whether the region covers no cell
func (r Region) IsEmpty() bool {
	for _, rect := range r {
		if !rect.IsEmpty() {
			return false
		}
	}
	return true
}

// Contains reports whether p lies in any of the rectangles
func (r Region) Contains(p Point) bool {
	for _, rect := range r {
		if rect.Contains(p) {
			return true
		}
	}
	return false
}

// Intersects reports whether any rectangle of the region shares a cell with o
func (r Region) Intersects(o Rect) bool {
	for _, rect := range r {
		if rect.Intersects(o) {
			return true
		}
	}
	return false
}

// Intersected returns the parts of the region inside o
func (r Region) Intersected(o Rect) Region {
	var out Region
	for _, rect := range r {
		if cut := rect.Intersect(o); !cut.IsEmpty() {
			out = append(out, cut)
		}
	}
	return out
}

// BoundingRect returns the smallest rectangle covering the region
func (r Region) BoundingRect() Rect {
	bounds := Rect{Left: 1, Top: 1, Right: 0, Bottom: 0}
	for _, rect := range r {
		bounds = bounds.United(rect)
	}
	return bounds
}

// String renders the region as ";" separated A1 references
func (r Region) String() string {
	parts := make([]string, 0, len(r))
	for _, rect := range r {
		if !rect.IsEmpty() {
			parts = append(parts, rect.String())
		}
	}
	return strings.Join(parts, ";")
}
