package cellstorage

import (
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/rtree"
	"github.com/tiendc/go-deepcopy"
)

const rectLookupCacheSize = 256

// RectEntry is a stored rectangle and the value applied to all its cells
type RectEntry[T any] struct {
	Rect  Rect
	Value T
}

// RectStorage maps regions to values. a later insert overwrites earlier
// ones wherever they overlap, so the stored rectangles are kept pairwise
// disjoint: an insert first carves its area out of every existing entry.
// inserting the empty value only carves, nothing is stored for it.
//
// architecture:
//   - entries live in a map keyed by an id handed out on insert
//   - an R-tree indexes the rectangles by id, so point lookups, overlap
//     queries and shifts only visit the entries they touch
//   - an LRU cache remembers the entry covering recently read points
type RectStorage[T any] struct {
	entries map[int]RectEntry[T]
	nextID  int
	index   rtree.RTreeG[int]
	isEmpty func(T) bool
	logger  *slog.Logger

	// point -> entry id, -1 for points outside every entry.
	// purged on every mutation.
	cache *lru.Cache[Point, int]
}

// NewRectStorage creates an empty storage. isEmpty tells which values
// mean "nothing stored".
func NewRectStorage[T any](isEmpty func(T) bool) *RectStorage[T] {
	cache, err := lru.New[Point, int](rectLookupCacheSize)
	if err != nil {
		panic(err)
	}
	return &RectStorage[T]{
		entries: make(map[int]RectEntry[T]),
		isEmpty: isEmpty,
		logger:  slog.Default(),
		cache:   cache,
	}
}

// SetLogger replaces the logger used to report copy failures
func (s *RectStorage[T]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// box converts a cell rectangle into R-tree coordinates, x being the column
func box(r Rect) (lo, hi [2]float64) {
	return [2]float64{float64(r.Left), float64(r.Top)}, [2]float64{float64(r.Right), float64(r.Bottom)}
}

func (s *RectStorage[T]) add(rect Rect, v T) {
	id := s.nextID
	s.nextID++
	s.entries[id] = RectEntry[T]{Rect: rect, Value: v}
	lo, hi := box(rect)
	s.index.Insert(lo, hi, id)
}

func (s *RectStorage[T]) del(id int) RectEntry[T] {
	e := s.entries[id]
	lo, hi := box(e.Rect)
	s.index.Delete(lo, hi, id)
	delete(s.entries, id)
	return e
}

// search returns the ids of the entries sharing a cell with rect, in
// insertion order
func (s *RectStorage[T]) search(rect Rect) []int {
	var ids []int
	lo, hi := box(rect)
	s.index.Search(lo, hi, func(_, _ [2]float64, id int) bool {
		ids = append(ids, id)
		return true
	})
	sort.Ints(ids)
	return ids
}

// Insert applies v to every cell of region
func (s *RectStorage[T]) Insert(region Region, v T) {
	for _, rect := range region {
		rect = rect.Clip()
		if rect.IsEmpty() {
			continue
		}
		s.carve(rect)
		if !s.isEmpty(v) {
			s.add(rect, v)
		}
	}
	s.cache.Purge()
}

// carve removes rect from every stored entry
func (s *RectStorage[T]) carve(rect Rect) {
	for _, id := range s.search(rect) {
		e := s.del(id)
		for _, piece := range e.Rect.Subtract(rect) {
			s.add(piece, e.Value)
		}
	}
}

func (s *RectStorage[T]) idAt(p Point) int {
	if id, ok := s.cache.Get(p); ok {
		return id
	}
	id := -1
	if ids := s.search(Rect{Left: p.Col, Top: p.Row, Right: p.Col, Bottom: p.Row}); len(ids) > 0 {
		id = ids[0]
	}
	s.cache.Add(p, id)
	return id
}

// Contains returns the value covering p, or the zero value
func (s *RectStorage[T]) Contains(p Point) T {
	e, _ := s.ContainedPair(p)
	return e.Value
}

// ContainedPair returns the rectangle covering p together with its value
func (s *RectStorage[T]) ContainedPair(p Point) (RectEntry[T], bool) {
	id := s.idAt(p)
	if id < 0 {
		return RectEntry[T]{}, false
	}
	e, ok := s.entries[id]
	return e, ok
}

// IntersectingPairs returns every entry sharing a cell with region, sorted
// top to bottom then left to right
func (s *RectStorage[T]) IntersectingPairs(region Region) []RectEntry[T] {
	seen := make(map[int]struct{})
	var out []RectEntry[T]
	for _, rect := range region {
		for _, id := range s.search(rect) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, s.entries[id])
		}
	}
	sortRectEntries(out)
	return out
}

// Entries returns all stored entries sorted top to bottom then left to right
func (s *RectStorage[T]) Entries() []RectEntry[T] {
	out := make([]RectEntry[T], 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sortRectEntries(out)
	return out
}

func sortRectEntries[T any](entries []RectEntry[T]) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Rect, entries[j].Rect
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Left < b.Left
	})
}

// UsedArea returns the bounding rectangle of all entries
func (s *RectStorage[T]) UsedArea() Rect {
	if len(s.entries) == 0 {
		return Rect{Left: 1, Top: 1, Right: 0, Bottom: 0}
	}
	lo, hi := s.index.Bounds()
	return Rect{Left: int(lo[0]), Top: int(lo[1]), Right: int(hi[0]), Bottom: int(hi[1])}
}

// Count returns the number of stored rectangles
func (s *RectStorage[T]) Count() int {
	return len(s.entries)
}

// Clear removes all entries
func (s *RectStorage[T]) Clear() {
	s.entries = make(map[int]RectEntry[T])
	s.index.Clear()
	s.cache.Purge()
}

// closest returns the best position over the entries of strip, ranked by
// better, and the value found there. 0 when strip holds no entry.
func (s *RectStorage[T]) closest(strip Rect, pos func(Rect) int, better func(a, b int) bool) (int, T) {
	var zero T
	if strip.IsEmpty() {
		return 0, zero
	}
	best, v := 0, zero
	for _, id := range s.search(strip) {
		e := s.entries[id]
		if p := pos(e.Rect); best == 0 || better(p, best) {
			best, v = p, e.Value
		}
	}
	return best, v
}

func lowerPos(a, b int) bool  { return a < b }
func higherPos(a, b int) bool { return a > b }

// NextInRow returns the first column right of col in row covered by an
// entry, 0 if none
func (s *RectStorage[T]) NextInRow(col, row int) (int, T) {
	strip := Rect{Left: col + 1, Top: row, Right: MaxColumns, Bottom: row}
	return s.closest(strip, func(r Rect) int { return max(r.Left, col+1) }, lowerPos)
}

// PrevInRow returns the first column left of col in row covered by an
// entry, 0 if none
func (s *RectStorage[T]) PrevInRow(col, row int) (int, T) {
	strip := Rect{Left: 1, Top: row, Right: col - 1, Bottom: row}
	return s.closest(strip, func(r Rect) int { return min(r.Right, col-1) }, higherPos)
}

// NextInColumn returns the first row below row in col covered by an entry
func (s *RectStorage[T]) NextInColumn(col, row int) (int, T) {
	strip := Rect{Left: col, Top: row + 1, Right: col, Bottom: MaxRows}
	return s.closest(strip, func(r Rect) int { return max(r.Top, row+1) }, lowerPos)
}

// PrevInColumn returns the first row above row in col covered by an entry
func (s *RectStorage[T]) PrevInColumn(col, row int) (int, T) {
	strip := Rect{Left: col, Top: 1, Right: col, Bottom: row - 1}
	return s.closest(strip, func(r Rect) int { return min(r.Bottom, row-1) }, higherPos)
}

// SubStorage returns an independent storage with the parts of the entries
// inside region, re-keyed relative to the region's bounding rectangle
func (s *RectStorage[T]) SubStorage(region Region) *RectStorage[T] {
	bounds := region.BoundingRect()
	sub := NewRectStorage(s.isEmpty)
	sub.logger = s.logger
	for _, e := range copyRectEntries(s.logger, s.IntersectingPairs(region)) {
		for _, cut := range region.Intersected(e.Rect) {
			sub.Insert(Region{cut.Translate(1-bounds.Left, 1-bounds.Top)}, e.Value)
		}
	}
	return sub
}

// Clone returns a deep copy of the storage
func (s *RectStorage[T]) Clone() *RectStorage[T] {
	clone := NewRectStorage(s.isEmpty)
	clone.logger = s.logger
	for _, e := range copyRectEntries(s.logger, s.Entries()) {
		clone.add(e.Rect, e.Value)
	}
	return clone
}

func copyRectEntries[T any](logger *slog.Logger, entries []RectEntry[T]) []RectEntry[T] {
	var out []RectEntry[T]
	if err := deepcopy.Copy(&out, entries); err != nil {
		logger.Warn("deep copy of rect entries failed, sharing values", "error", err)
		out = make([]RectEntry[T], len(entries))
		copy(out, entries)
	}
	return out
}

// spanFunc maps the interval [lo, hi] of one axis through a shift. lost
// reports that cells of the interval were deleted or pushed off the grid.
type spanFunc func(lo, hi int) (nlo, nhi int, lost bool)

func insertSpan(position, n, limit int) spanFunc {
	return func(lo, hi int) (int, int, bool) {
		switch {
		case hi < position:
			return lo, hi, false
		case lo >= position:
			lo, hi = lo+n, hi+n
		default:
			hi += n
		}
		if hi > limit {
			return lo, limit, true
		}
		return lo, hi, false
	}
}

func removeSpan(position, n int) spanFunc {
	end := position + n - 1
	return func(lo, hi int) (int, int, bool) {
		switch {
		case hi < position:
			return lo, hi, false
		case lo > end:
			return lo - n, hi - n, false
		}
		nlo, nhi := lo, position-1
		if lo >= position {
			nlo = position
		}
		if hi > end {
			nhi = hi - n
		}
		return nlo, nhi, true
	}
}

// shift applies span to one axis of every entry, restricted to the cells
// whose other coordinate lies in [from, to]. only entries reaching
// position or beyond are visited: span leaves everything before it alone.
// parts of an entry outside the band keep their geometry. entries that
// lose cells are returned with their geometry from before the shift.
func (s *RectStorage[T]) shift(horizontal bool, from, to, position int, span spanFunc) []RectEntry[T] {
	area := Rect{Left: position, Top: from, Right: MaxColumns, Bottom: to}
	if !horizontal {
		area = Rect{Left: from, Top: position, Right: to, Bottom: MaxRows}
	}
	var displaced []RectEntry[T]
	for _, id := range s.search(area) {
		e := s.del(id)
		r := e.Rect
		band := Rect{Left: r.Left, Top: from, Right: r.Right, Bottom: to}
		if !horizontal {
			band = Rect{Left: from, Top: r.Top, Right: to, Bottom: r.Bottom}
		}
		inside := r.Intersect(band)
		for _, outside := range r.Subtract(band) {
			s.add(outside, e.Value)
		}
		var lost bool
		if horizontal {
			inside.Left, inside.Right, lost = span(inside.Left, inside.Right)
		} else {
			inside.Top, inside.Bottom, lost = span(inside.Top, inside.Bottom)
		}
		if lost {
			displaced = append(displaced, e)
		}
		if !inside.IsEmpty() {
			s.add(inside, e.Value)
		}
	}
	s.cache.Purge()
	sortRectEntries(displaced)
	return displaced
}

// InsertColumns shifts everything at or right of position by n columns.
// entries straddling position grow.
func (s *RectStorage[T]) InsertColumns(position, n int) []RectEntry[T] {
	if n <= 0 {
		return nil
	}
	return s.shift(true, 1, MaxRows, position, insertSpan(position, n, MaxColumns))
}

// RemoveColumns deletes n columns starting at position. entries straddling
// the deleted band shrink, entries inside it disappear.
func (s *RectStorage[T]) RemoveColumns(position, n int) []RectEntry[T] {
	if n <= 0 {
		return nil
	}
	return s.shift(true, 1, MaxRows, position, removeSpan(position, n))
}

// InsertRows shifts everything at or below position by n rows
func (s *RectStorage[T]) InsertRows(position, n int) []RectEntry[T] {
	if n <= 0 {
		return nil
	}
	return s.shift(false, 1, MaxColumns, position, insertSpan(position, n, MaxRows))
}

// RemoveRows deletes n rows starting at position
func (s *RectStorage[T]) RemoveRows(position, n int) []RectEntry[T] {
	if n <= 0 {
		return nil
	}
	return s.shift(false, 1, MaxColumns, position, removeSpan(position, n))
}

// InsertShiftRight moves the cells at or right of rect.Left, in the rows of
// rect, right by the width of rect
func (s *RectStorage[T]) InsertShiftRight(rect Rect) []RectEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	return s.shift(true, rect.Top, rect.Bottom, rect.Left, insertSpan(rect.Left, rect.Width(), MaxColumns))
}

// RemoveShiftLeft deletes the cells of rect and moves the cells right of it
// left by the width of rect
func (s *RectStorage[T]) RemoveShiftLeft(rect Rect) []RectEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	return s.shift(true, rect.Top, rect.Bottom, rect.Left, removeSpan(rect.Left, rect.Width()))
}

// InsertShiftDown moves the cells at or below rect.Top, in the columns of
// rect, down by the height of rect
func (s *RectStorage[T]) InsertShiftDown(rect Rect) []RectEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	return s.shift(false, rect.Left, rect.Right, rect.Top, insertSpan(rect.Top, rect.Height(), MaxRows))
}

// RemoveShiftUp deletes the cells of rect and moves the cells below it up
// by the height of rect
func (s *RectStorage[T]) RemoveShiftUp(rect Rect) []RectEntry[T] {
	if rect.IsEmpty() {
		return nil
	}
	return s.shift(false, rect.Left, rect.Right, rect.Top, removeSpan(rect.Top, rect.Height()))
}
