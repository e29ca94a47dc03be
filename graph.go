package cellstorage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

// FormulaSource gives the dependency graph read access to formula cells
type FormulaSource interface {
	FormulasIn(region Region) []PointEntry[Formula]
}

// DependencyNode represents a formula cell in the dependency graph
type DependencyNode struct {
	// address of *THIS* node
	Point Point

	Formula    Formula
	Precedents map[Rect]struct{} // ranges this cell reads from
}

// DependencyGraph tracks which ranges are read by the formulas of one sheet.
// it sits in front of another DamageSink: formula damages mark the damaged
// area stale, and the graph re-reads it from its FormulaSource the next time
// it is queried. this makes the order of damages during a shift irrelevant,
// only the final formula positions are indexed.
type DependencyGraph struct {
	sheetName string
	source    FormulaSource
	next      DamageSink

	nodes          map[Point]*DependencyNode   // formula cells
	rangeObservers map[Rect]map[Point]struct{} // range -> formula cells reading it
	stale          Region                      // areas to re-read from source
}

// NewDependencyGraph creates a graph for the sheet called sheetName.
// references qualified with another sheet name are ignored. next may be nil.
func NewDependencyGraph(sheetName string, next DamageSink) *DependencyGraph {
	if next == nil {
		next = discardDamage{}
	}
	return &DependencyGraph{
		sheetName:      sheetName,
		next:           next,
		nodes:          make(map[Point]*DependencyNode),
		rangeObservers: make(map[Rect]map[Point]struct{}),
	}
}

// SetSource attaches the formula source and schedules a full rebuild
func (dg *DependencyGraph) SetSource(source FormulaSource) {
	dg.source = source
	dg.stale = Region{{Left: 1, Top: 1, Right: MaxColumns, Bottom: MaxRows}}
}

// SetSheetName changes the name used to recognize own-sheet references
func (dg *DependencyGraph) SetSheetName(name string) {
	dg.sheetName = name
	dg.SetSource(dg.source)
}

// AddDamage records formula changes and forwards the damage
func (dg *DependencyGraph) AddDamage(d Damage) {
	if d.Changes&ChangeFormula != 0 {
		dg.stale = append(dg.stale, d.Region...)
	}
	dg.next.AddDamage(d)
}

// refresh re-reads the stale areas from the source
func (dg *DependencyGraph) refresh() {
	if len(dg.stale) == 0 || dg.source == nil {
		return
	}
	stale := dg.stale
	dg.stale = nil

	// drop nodes inside the stale areas
	for addr := range dg.nodes {
		if stale.Contains(addr) {
			dg.RemoveNode(addr)
		}
	}

	for _, e := range dg.source.FormulasIn(stale) {
		dg.SetFormula(e.Point, e.Value)
	}
}

// SetFormula indexes the references of the formula at addr, replacing
// whatever was indexed there before
func (dg *DependencyGraph) SetFormula(addr Point, formula Formula) {
	dg.RemoveNode(addr)
	if formula.IsEmpty() {
		return
	}
	node := &DependencyNode{
		Point:      addr,
		Formula:    formula,
		Precedents: make(map[Rect]struct{}),
	}
	for _, rect := range dg.references(formula) {
		node.Precedents[rect] = struct{}{}
		if dg.rangeObservers[rect] == nil {
			dg.rangeObservers[rect] = make(map[Point]struct{})
		}
		dg.rangeObservers[rect][addr] = struct{}{}
	}
	dg.nodes[addr] = node
}

// RemoveNode removes a node and all its dependencies
func (dg *DependencyGraph) RemoveNode(addr Point) bool {
	node, exists := dg.nodes[addr]
	if !exists {
		return false
	}

	// remove from range observers
	for rect := range node.Precedents {
		if observers, exists := dg.rangeObservers[rect]; exists {
			delete(observers, addr)
			if len(observers) == 0 {
				delete(dg.rangeObservers, rect)
			}
		}
	}

	delete(dg.nodes, addr)
	return true
}

// references extracts the own-sheet ranges read by a formula
func (dg *DependencyGraph) references(formula Formula) []Rect {
	ps := efp.ExcelParser()
	tokens := ps.Parse(strings.TrimPrefix(string(formula), "="))

	var refs []Rect
	for _, token := range tokens {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}
		ref := token.TValue
		if idx := strings.LastIndex(ref, "!"); idx >= 0 {
			sheet := strings.Trim(ref[:idx], "'")
			if sheet != dg.sheetName {
				continue
			}
			ref = ref[idx+1:]
		}
		if rect, ok := parseReference(ref); ok {
			refs = append(refs, rect)
		}
	}
	return refs
}

// parseReference understands cell ("A1"), range ("A1:B2"), whole column
// ("A:C") and whole row ("3:5") references. anything else, named ranges
// for instance, is not a reference into the grid.
func parseReference(ref string) (Rect, bool) {
	ref = strings.ReplaceAll(ref, "$", "")
	if rect, err := ParseRect(ref); err == nil {
		return rect, true
	}
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return Rect{}, false
	}
	if first, err := strconv.Atoi(parts[0]); err == nil {
		last, err := strconv.Atoi(parts[1])
		if err != nil {
			return Rect{}, false
		}
		return Rect{Left: 1, Top: min(first, last), Right: MaxColumns, Bottom: max(first, last)}, true
	}
	first, err := excelize.ColumnNameToNumber(parts[0])
	if err != nil {
		return Rect{}, false
	}
	last, err := excelize.ColumnNameToNumber(parts[1])
	if err != nil {
		return Rect{}, false
	}
	return Rect{Left: min(first, last), Top: 1, Right: max(first, last), Bottom: MaxRows}, true
}

// ReduceToProvidingRegion returns the parts of region read by at least one
// formula
func (dg *DependencyGraph) ReduceToProvidingRegion(region Region) Region {
	dg.refresh()

	var reduced Region
	for _, rect := range dg.observedRanges() {
		reduced = append(reduced, region.Intersected(rect)...)
	}
	return reduced
}

// observedRanges returns the referenced ranges in a stable order
func (dg *DependencyGraph) observedRanges() []Rect {
	ranges := make([]Rect, 0, len(dg.rangeObservers))
	for rect := range dg.rangeObservers {
		ranges = append(ranges, rect)
	}
	sort.Slice(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		if a.Bottom != b.Bottom {
			return a.Bottom < b.Bottom
		}
		return a.Right < b.Right
	})
	return ranges
}

// GetDirectDependents returns the formula cells reading addr
func (dg *DependencyGraph) GetDirectDependents(addr Point) []Point {
	dg.refresh()

	seen := make(map[Point]struct{})
	var result []Point
	for rect, observers := range dg.rangeObservers {
		if !rect.Contains(addr) {
			continue
		}
		for observer := range observers {
			if _, dup := seen[observer]; dup {
				continue
			}
			seen[observer] = struct{}{}
			result = append(result, observer)
		}
	}
	sortPoints(result)
	return result
}

// GetRangePrecedents returns the ranges read by the formula at addr
func (dg *DependencyGraph) GetRangePrecedents(addr Point) []Rect {
	dg.refresh()

	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	result := make([]Rect, 0, len(node.Precedents))
	for rect := range node.Precedents {
		result = append(result, rect)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Top != result[j].Top {
			return result[i].Top < result[j].Top
		}
		return result[i].Left < result[j].Left
	})
	return result
}

// GetFormula retrieves the indexed formula of a cell
func (dg *DependencyGraph) GetFormula(addr Point) (Formula, bool) {
	dg.refresh()
	if node, exists := dg.nodes[addr]; exists {
		return node.Formula, true
	}
	return "", false
}

// NodeCount returns the number of formula cells in the graph
func (dg *DependencyGraph) NodeCount() int {
	dg.refresh()
	return len(dg.nodes)
}

// RangeObserverCount returns the number of observed ranges
func (dg *DependencyGraph) RangeObserverCount() int {
	dg.refresh()
	return len(dg.rangeObservers)
}

// Clear removes all nodes and dependencies from the graph
func (dg *DependencyGraph) Clear() {
	dg.nodes = make(map[Point]*DependencyNode)
	dg.rangeObservers = make(map[Rect]map[Point]struct{})
	dg.stale = nil
}

func sortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Row != points[j].Row {
			return points[i].Row < points[j].Row
		}
		return points[i].Col < points[j].Col
	})
}
