package cellstorage

import (
	"log/slog"
	"math"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/tiendc/go-deepcopy"
)

// PointEntry is a stored cell value together with its position
type PointEntry[T any] struct {
	Point Point
	Value T
}

// PointStorage is a sparse map from cell positions to values. it keeps at
// most one entry per cell and nothing for empty cells.
//
// architecture:
//   - entries live in a red-black tree keyed by row-major packed positions
//   - a second tree keyed by column-major packed positions indexes the same
//     cells so column traversal is as cheap as row traversal
//
// every lookup and traversal step is O(log n) in the number of entries,
// shifts are O(k log n) in the number of moved entries.
type PointStorage[T any] struct {
	rows   *redblacktree.Tree // rowKey -> T
	cols   *redblacktree.Tree // colKey -> struct{}
	logger *slog.Logger
}

// NewPointStorage creates an empty point storage
func NewPointStorage[T any]() *PointStorage[T] {
	return &PointStorage[T]{
		rows:   redblacktree.NewWith(utils.Int64Comparator),
		cols:   redblacktree.NewWith(utils.Int64Comparator),
		logger: slog.Default(),
	}
}

// SetLogger replaces the logger used to report copy failures
func (s *PointStorage[T]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func rowKey(col, row int) int64 { return int64(row)<<32 | int64(col) }
func colKey(col, row int) int64 { return int64(col)<<32 | int64(row) }

func splitKey(key int64) (major, minor int) {
	return int(key >> 32), int(key & math.MaxUint32)
}

func (s *PointStorage[T]) value(node *redblacktree.Node) T {
	v, _ := node.Value.(T)
	return v
}

// Insert stores v at (col, row) and returns the previous value
func (s *PointStorage[T]) Insert(col, row int, v T) (old T, existed bool) {
	key := rowKey(col, row)
	if prev, found := s.rows.Get(key); found {
		old, _ = prev.(T)
		existed = true
	}
	s.rows.Put(key, v)
	s.cols.Put(colKey(col, row), struct{}{})
	return old, existed
}

// Lookup returns the value at (col, row), or the zero value for empty cells
func (s *PointStorage[T]) Lookup(col, row int) T {
	v, _ := s.LookupOK(col, row)
	return v
}

// LookupOK returns the value at (col, row) and whether the cell has one
func (s *PointStorage[T]) LookupOK(col, row int) (T, bool) {
	var zero T
	raw, found := s.rows.Get(rowKey(col, row))
	if !found {
		return zero, false
	}
	v, _ := raw.(T)
	return v, true
}

// Contains reports whether (col, row) holds an entry
func (s *PointStorage[T]) Contains(col, row int) bool {
	_, found := s.rows.Get(rowKey(col, row))
	return found
}

// Take removes the entry at (col, row) and returns it
func (s *PointStorage[T]) Take(col, row int) (old T, existed bool) {
	key := rowKey(col, row)
	prev, found := s.rows.Get(key)
	if !found {
		return old, false
	}
	old, _ = prev.(T)
	s.rows.Remove(key)
	s.cols.Remove(colKey(col, row))
	return old, true
}

// Count returns the number of stored entries
func (s *PointStorage[T]) Count() int {
	return s.rows.Size()
}

func (s *PointStorage[T]) IsEmpty() bool {
	return s.rows.Empty()
}

// Clear removes all entries
func (s *PointStorage[T]) Clear() {
	s.rows.Clear()
	s.cols.Clear()
}

// Columns returns the rightmost column holding an entry, 0 if empty
func (s *PointStorage[T]) Columns() int {
	node := s.cols.Right()
	if node == nil {
		return 0
	}
	col, _ := splitKey(node.Key.(int64))
	return col
}

// Rows returns the bottom row holding an entry, 0 if empty
func (s *PointStorage[T]) Rows() int {
	node := s.rows.Right()
	if node == nil {
		return 0
	}
	row, _ := splitKey(node.Key.(int64))
	return row
}

// FirstInRow returns the leftmost entry of a row. col is 0 when the row is
// empty.
func (s *PointStorage[T]) FirstInRow(row int) (col int, v T) {
	return s.NextInRow(0, row)
}

// NextInRow returns the first entry right of col in row
func (s *PointStorage[T]) NextInRow(col, row int) (int, T) {
	var zero T
	node, found := s.rows.Ceiling(rowKey(col+1, row))
	if !found {
		return 0, zero
	}
	r, c := splitKey(node.Key.(int64))
	if r != row {
		return 0, zero
	}
	return c, s.value(node)
}

// LastInRow returns the rightmost entry of a row
func (s *PointStorage[T]) LastInRow(row int) (int, T) {
	return s.PrevInRow(math.MaxInt32, row)
}

// PrevInRow returns the first entry left of col in row
func (s *PointStorage[T]) PrevInRow(col, row int) (int, T) {
	var zero T
	if col <= 1 {
		return 0, zero
	}
	node, found := s.rows.Floor(rowKey(col-1, row))
	if !found {
		return 0, zero
	}
	r, c := splitKey(node.Key.(int64))
	if r != row || c < 1 {
		return 0, zero
	}
	return c, s.value(node)
}

// FirstInColumn returns the topmost entry of a column. row is 0 when the
// column is empty.
func (s *PointStorage[T]) FirstInColumn(col int) (row int, v T) {
	return s.NextInColumn(col, 0)
}

// NextInColumn returns the first entry below row in col
func (s *PointStorage[T]) NextInColumn(col, row int) (int, T) {
	var zero T
	node, found := s.cols.Ceiling(colKey(col, row+1))
	if !found {
		return 0, zero
	}
	c, r := splitKey(node.Key.(int64))
	if c != col {
		return 0, zero
	}
	return r, s.Lookup(col, r)
}

// LastInColumn returns the bottom entry of a column
func (s *PointStorage[T]) LastInColumn(col int) (int, T) {
	return s.PrevInColumn(col, math.MaxInt32)
}

// PrevInColumn returns the first entry above row in col
func (s *PointStorage[T]) PrevInColumn(col, row int) (int, T) {
	var zero T
	if row <= 1 {
		return 0, zero
	}
	node, found := s.cols.Floor(colKey(col, row-1))
	if !found {
		return 0, zero
	}
	c, r := splitKey(node.Key.(int64))
	if c != col || r < 1 {
		return 0, zero
	}
	return r, s.Lookup(col, r)
}

// Entries returns every entry in row-major order
func (s *PointStorage[T]) Entries() []PointEntry[T] {
	entries := make([]PointEntry[T], 0, s.rows.Size())
	it := s.rows.Iterator()
	for it.Next() {
		row, col := splitKey(it.Key().(int64))
		v, _ := it.Value().(T)
		entries = append(entries, PointEntry[T]{Point: Point{Col: col, Row: row}, Value: v})
	}
	return entries
}

// EntriesInRow returns the entries of one row, left to right
func (s *PointStorage[T]) EntriesInRow(row int) []PointEntry[T] {
	return s.rowBand(row, row, 1, math.MaxInt32)
}

// EntriesInRegion returns the entries inside region in row-major order.
// overlapping rectangles do not report a cell twice.
func (s *PointStorage[T]) EntriesInRegion(region Region) []PointEntry[T] {
	if len(region) == 1 {
		r := region[0]
		return s.rowBand(r.Top, r.Bottom, r.Left, r.Right)
	}
	seen := make(map[Point]struct{})
	var entries []PointEntry[T]
	for _, r := range region {
		for _, e := range s.rowBand(r.Top, r.Bottom, r.Left, r.Right) {
			if _, dup := seen[e.Point]; dup {
				continue
			}
			seen[e.Point] = struct{}{}
			entries = append(entries, e)
		}
	}
	return entries
}

// rowBand collects the entries with top <= row <= bottom and
// left <= col <= right by walking the row-major tree
func (s *PointStorage[T]) rowBand(top, bottom, left, right int) []PointEntry[T] {
	var entries []PointEntry[T]
	if top > bottom || left > right {
		return entries
	}
	end := rowKey(math.MaxInt32, bottom)
	for node, ok := s.rows.Ceiling(rowKey(left, top)); ok; {
		key := node.Key.(int64)
		if key > end {
			break
		}
		row, col := splitKey(key)
		if col < left {
			node, ok = s.rows.Ceiling(rowKey(left, row))
			continue
		}
		if col > right {
			node, ok = s.rows.Ceiling(rowKey(left, row+1))
			continue
		}
		entries = append(entries, PointEntry[T]{Point: Point{Col: col, Row: row}, Value: s.value(node)})
		node, ok = s.rows.Ceiling(key + 1)
	}
	return entries
}

// columnBand collects the entries with left <= col <= right and
// top <= row <= bottom by walking the column-major tree
func (s *PointStorage[T]) columnBand(left, right, top, bottom int) []PointEntry[T] {
	var entries []PointEntry[T]
	if top > bottom || left > right {
		return entries
	}
	end := colKey(right, math.MaxInt32)
	for node, ok := s.cols.Ceiling(colKey(left, top)); ok; {
		key := node.Key.(int64)
		if key > end {
			break
		}
		col, row := splitKey(key)
		if row < top {
			node, ok = s.cols.Ceiling(colKey(col, top))
			continue
		}
		if row > bottom {
			node, ok = s.cols.Ceiling(colKey(col+1, top))
			continue
		}
		entries = append(entries, PointEntry[T]{Point: Point{Col: col, Row: row}, Value: s.Lookup(col, row)})
		node, ok = s.cols.Ceiling(key + 1)
	}
	return entries
}

// SubStorage returns an independent storage holding the entries inside
// region, re-keyed relative to the top-left corner of the region's
// bounding rectangle
func (s *PointStorage[T]) SubStorage(region Region) *PointStorage[T] {
	bounds := region.BoundingRect()
	sub := NewPointStorage[T]()
	sub.logger = s.logger
	for _, e := range copyEntries(s.logger, s.EntriesInRegion(region)) {
		sub.Insert(e.Point.Col-bounds.Left+1, e.Point.Row-bounds.Top+1, e.Value)
	}
	return sub
}

// Clone returns a deep copy of the storage
func (s *PointStorage[T]) Clone() *PointStorage[T] {
	clone := NewPointStorage[T]()
	clone.logger = s.logger
	for _, e := range copyEntries(s.logger, s.Entries()) {
		clone.Insert(e.Point.Col, e.Point.Row, e.Value)
	}
	return clone
}

func copyEntries[T any](logger *slog.Logger, entries []PointEntry[T]) []PointEntry[T] {
	var out []PointEntry[T]
	if err := deepcopy.Copy(&out, entries); err != nil {
		logger.Warn("deep copy of point entries failed, sharing values", "error", err)
		return entries
	}
	return out
}

// relocate removes the given entries and re-inserts each one at the
// position returned by move. entries whose new position falls outside the
// grid are dropped and returned.
func (s *PointStorage[T]) relocate(entries []PointEntry[T], move func(Point) Point) []PointEntry[T] {
	for _, e := range entries {
		s.Take(e.Point.Col, e.Point.Row)
	}
	var dropped []PointEntry[T]
	for _, e := range entries {
		p := move(e.Point)
		if !p.IsValid() {
			dropped = append(dropped, e)
			continue
		}
		s.Insert(p.Col, p.Row, e.Value)
	}
	return dropped
}

// remove deletes the given entries and returns them
func (s *PointStorage[T]) remove(entries []PointEntry[T]) []PointEntry[T] {
	for _, e := range entries {
		s.Take(e.Point.Col, e.Point.Row)
	}
	return entries
}

// InsertColumns shifts every column at or right of position by n. entries
// pushed beyond the last column are removed and returned.
func (s *PointStorage[T]) InsertColumns(position, n int) []PointEntry[T] {
	if n <= 0 {
		return nil
	}
	moved := s.columnBand(position, math.MaxInt32, 1, math.MaxInt32)
	return s.relocate(moved, func(p Point) Point { return Point{Col: p.Col + n, Row: p.Row} })
}

// RemoveColumns deletes n columns starting at position and shifts the
// columns right of them to the left. the deleted entries are returned.
func (s *PointStorage[T]) RemoveColumns(position, n int) []PointEntry[T] {
	if n <= 0 {
		return nil
	}
	removed := s.remove(s.columnBand(position, position+n-1, 1, math.MaxInt32))
	moved := s.columnBand(position+n, math.MaxInt32, 1, math.MaxInt32)
	s.relocate(moved, func(p Point) Point { return Point{Col: p.Col - n, Row: p.Row} })
	return removed
}

// InsertRows shifts every row at or below position by n. entries pushed
// beyond the last row are removed and returned.
func (s *PointStorage[T]) InsertRows(position, n int) []PointEntry[T] {
	if n <= 0 {
		return nil
	}
	moved := s.rowBand(position, math.MaxInt32, 1, math.MaxInt32)
	return s.relocate(moved, func(p Point) Point { return Point{Col: p.Col, Row: p.Row + n} })
}

// RemoveRows deletes n rows starting at position and shifts the rows below
// them up. the deleted entries are returned.
func (s *PointStorage[T]) RemoveRows(position, n int) []PointEntry[T] {
	if n <= 0 {
		return nil
	}
	removed := s.remove(s.rowBand(position, position+n-1, 1, math.MaxInt32))
	moved := s.rowBand(position+n, math.MaxInt32, 1, math.MaxInt32)
	s.relocate(moved, func(p Point) Point { return Point{Col: p.Col, Row: p.Row - n} })
	return removed
}

// InsertShiftRight moves the cells of rect and everything right of it, in
// the rows of rect, to the right by the width of rect
func (s *PointStorage[T]) InsertShiftRight(rect Rect) []PointEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	n := rect.Width()
	moved := s.rowBand(rect.Top, rect.Bottom, rect.Left, math.MaxInt32)
	return s.relocate(moved, func(p Point) Point { return Point{Col: p.Col + n, Row: p.Row} })
}

// RemoveShiftLeft deletes the cells of rect and moves the cells right of
// it, in the rows of rect, to the left by the width of rect
func (s *PointStorage[T]) RemoveShiftLeft(rect Rect) []PointEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	n := rect.Width()
	removed := s.remove(s.rowBand(rect.Top, rect.Bottom, rect.Left, rect.Right))
	moved := s.rowBand(rect.Top, rect.Bottom, rect.Right+1, math.MaxInt32)
	s.relocate(moved, func(p Point) Point { return Point{Col: p.Col - n, Row: p.Row} })
	return removed
}

// InsertShiftDown moves the cells of rect and everything below it, in the
// columns of rect, down by the height of rect
func (s *PointStorage[T]) InsertShiftDown(rect Rect) []PointEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	n := rect.Height()
	moved := s.columnBand(rect.Left, rect.Right, rect.Top, math.MaxInt32)
	return s.relocate(moved, func(p Point) Point { return Point{Col: p.Col, Row: p.Row + n} })
}

// RemoveShiftUp deletes the cells of rect and moves the cells below it, in
// the columns of rect, up by the height of rect
func (s *PointStorage[T]) RemoveShiftUp(rect Rect) []PointEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	n := rect.Height()
	removed := s.remove(s.columnBand(rect.Left, rect.Right, rect.Top, rect.Bottom))
	moved := s.columnBand(rect.Left, rect.Right, rect.Bottom+1, math.MaxInt32)
	s.relocate(moved, func(p Point) Point { return Point{Col: p.Col, Row: p.Row - n} })
	return removed
}
