package cellstorage

import (
	"github.com/emirpasic/gods/maps/treemap"
)

// RowRun is a run of identical rows starting at First
type RowRun struct {
	First int
	Count int
}

// Last returns the last row of the run
func (r RowRun) Last() int { return r.First + r.Count - 1 }

// RowRepeatStorage compresses runs of identical rows. only runs longer than
// one row are stored, keyed by their last row so the run containing a row
// is found with a single ceiling lookup. there is no column counterpart:
// sheets are typically far taller than wide.
type RowRepeatStorage struct {
	runs *treemap.Map // last row -> repeat count
}

// NewRowRepeatStorage creates a storage where every row is its own run
func NewRowRepeatStorage() *RowRepeatStorage {
	return &RowRepeatStorage{runs: treemap.NewWithIntComparator()}
}

// runAt returns the stored run containing row
func (s *RowRepeatStorage) runAt(row int) (RowRun, bool) {
	key, value := s.runs.Ceiling(row)
	if key == nil {
		return RowRun{}, false
	}
	last, count := key.(int), value.(int)
	run := RowRun{First: last - count + 1, Count: count}
	if run.First > row {
		return RowRun{}, false
	}
	return run, true
}

// RowRepeat returns the length of the run containing row, 1 if row is not
// part of a run
func (s *RowRepeatStorage) RowRepeat(row int) int {
	if run, ok := s.runAt(row); ok {
		return run.Count
	}
	return 1
}

// FirstIdenticalRow returns the first row of the run containing row
func (s *RowRepeatStorage) FirstIdenticalRow(row int) int {
	if run, ok := s.runAt(row); ok {
		return run.First
	}
	return row
}

// LastIdenticalRow returns the last row of the run containing row
func (s *RowRepeatStorage) LastIdenticalRow(row int) int {
	if run, ok := s.runAt(row); ok {
		return run.Last()
	}
	return row
}

// SetRowRepeat declares rows [row, row+count) identical. runs overlapping
// that range are cut back to the rows outside it.
func (s *RowRepeatStorage) SetRowRepeat(row, count int) {
	if row < 1 || count < 1 {
		return
	}
	last := min(row+count-1, MaxRows)
	s.clearRange(row, last)
	s.put(row, last)
}

// SplitRowRepeat carves row out of its run so that RowRepeat(row) == 1.
// the rows before and after keep their own runs.
func (s *RowRepeatStorage) SplitRowRepeat(row int) {
	s.SetRowRepeat(row, 1)
}

// SplitAt makes row the first row of its run
func (s *RowRepeatStorage) SplitAt(row int) {
	run, ok := s.runAt(row)
	if !ok || run.First == row {
		return
	}
	s.runs.Remove(run.Last())
	s.put(run.First, row-1)
	s.put(row, run.Last())
}

// Runs returns all stored runs in row order
func (s *RowRepeatStorage) Runs() []RowRun {
	runs := make([]RowRun, 0, s.runs.Size())
	it := s.runs.Iterator()
	for it.Next() {
		last, count := it.Key().(int), it.Value().(int)
		runs = append(runs, RowRun{First: last - count + 1, Count: count})
	}
	return runs
}

// RunsFrom returns the stored runs ending at or after row
func (s *RowRepeatStorage) RunsFrom(row int) []RowRun {
	var runs []RowRun
	for key, value := s.runs.Ceiling(row); key != nil; key, value = s.runs.Ceiling(key.(int) + 1) {
		last, count := key.(int), value.(int)
		runs = append(runs, RowRun{First: last - count + 1, Count: count})
	}
	return runs
}

// IsEmpty reports whether no run is stored
func (s *RowRepeatStorage) IsEmpty() bool {
	return s.runs.Empty()
}

// Clone returns an independent copy
func (s *RowRepeatStorage) Clone() *RowRepeatStorage {
	clone := NewRowRepeatStorage()
	for _, run := range s.Runs() {
		clone.put(run.First, run.Last())
	}
	return clone
}

// put stores the run [first, last] if it spans more than one row
func (s *RowRepeatStorage) put(first, last int) {
	if last > first {
		s.runs.Put(last, last-first+1)
	}
}

// clearRange removes rows [first, last] from every run
func (s *RowRepeatStorage) clearRange(first, last int) {
	for _, run := range s.RunsFrom(first) {
		if run.First > last {
			break
		}
		s.runs.Remove(run.Last())
		s.put(run.First, first-1)
		s.put(last+1, run.Last())
	}
}

// rebuild maps every run through span. a run cut by an insertion is split
// in two since the inserted rows are empty.
func (s *RowRepeatStorage) rebuild(runs []RowRun, span func(run RowRun) []RowRun) {
	for _, run := range runs {
		s.runs.Remove(run.Last())
	}
	for _, run := range runs {
		for _, mapped := range span(run) {
			s.put(mapped.First, min(mapped.Last(), MaxRows))
		}
	}
}

// InsertRows shifts the runs at or below position by n rows
func (s *RowRepeatStorage) InsertRows(position, n int) {
	if n <= 0 {
		return
	}
	s.rebuild(s.RunsFrom(position), func(run RowRun) []RowRun {
		if run.First >= position {
			if run.First+n > MaxRows {
				return nil
			}
			return []RowRun{{First: run.First + n, Count: run.Count}}
		}
		return []RowRun{
			{First: run.First, Count: position - run.First},
			{First: position + n, Count: run.Last() - position + 1},
		}
	})
}

// RemoveRows deletes n rows starting at position. runs straddling the
// deleted rows shrink.
func (s *RowRepeatStorage) RemoveRows(position, n int) {
	if n <= 0 {
		return
	}
	span := removeSpan(position, n)
	s.rebuild(s.RunsFrom(position), func(run RowRun) []RowRun {
		first, last, _ := span(run.First, run.Last())
		if last < first {
			return nil
		}
		return []RowRun{{First: first, Count: last - first + 1}}
	})
}

// InsertShiftDown moves the rows of rect's columns at or below rect.Top
// down by its height. runs survive where their unmoved and moved cells
// still agree.
func (s *RowRepeatStorage) InsertShiftDown(rect Rect) {
	if rect.IsEmpty() {
		return
	}
	if rect.Left <= 1 && rect.Right >= MaxColumns {
		s.InsertRows(rect.Top, rect.Height())
		return
	}
	s.partialShift(rect.Top, rect.Height())
}

// RemoveShiftUp moves the rows of rect's columns below rect up by its
// height
func (s *RowRepeatStorage) RemoveShiftUp(rect Rect) {
	if rect.IsEmpty() {
		return
	}
	if rect.Left <= 1 && rect.Right >= MaxColumns {
		s.RemoveRows(rect.Top, rect.Height())
		return
	}
	s.partialShift(rect.Top, -rect.Height())
}

func (s *RowRepeatStorage) partialShift(top, delta int) {
	s.SplitAt(top)
	runs := s.PartialShiftRuns(top, delta)
	for _, run := range s.RunsFrom(top) {
		s.runs.Remove(run.Last())
	}
	for _, run := range runs {
		s.put(run.First, run.Last())
	}
}

// PartialShiftRuns returns the runs at or below top once some columns,
// from top down, moved by delta rows. a row keeps its run only where both
// the cells staying in place and the moved cells are uniform: the result
// is the intersection of the current runs with the runs carried along by
// the moved cells. on insertion the delta rows opened at top are uniformly
// empty in the moved columns. the runs must already be split at top.
func (s *RowRepeatStorage) PartialShiftRuns(top, delta int) []RowRun {
	fixed := s.RunsFrom(top)
	var moved []RowRun
	if delta > 0 {
		moved = append(moved, RowRun{First: top, Count: delta})
	}
	for _, run := range fixed {
		first := run.First
		if delta < 0 {
			first = max(first, top-delta)
		}
		first += delta
		if last := min(run.Last()+delta, MaxRows); last > first {
			moved = append(moved, RowRun{First: first, Count: last - first + 1})
		}
	}
	return intersectRuns(fixed, moved)
}

// intersectRuns returns the rows shared by a run of a and a run of b, as
// runs of at least two rows. both inputs are sorted and disjoint.
func intersectRuns(a, b []RowRun) []RowRun {
	var out []RowRun
	for i, j := 0, 0; i < len(a) && j < len(b); {
		first := max(a[i].First, b[j].First)
		last := min(a[i].Last(), b[j].Last())
		if last > first {
			out = append(out, RowRun{First: first, Count: last - first + 1})
		}
		if a[i].Last() < b[j].Last() {
			i++
		} else {
			j++
		}
	}
	return out
}

// InsertShiftRight splits the runs at the row boundaries of rect. runs
// inside the rows of rect stay identical since all their rows shift alike.
func (s *RowRepeatStorage) InsertShiftRight(rect Rect) {
	if rect.IsEmpty() {
		return
	}
	s.SplitAt(rect.Top)
	s.SplitAt(rect.Bottom + 1)
}

// RemoveShiftLeft splits the runs at the row boundaries of rect
func (s *RowRepeatStorage) RemoveShiftLeft(rect Rect) {
	s.InsertShiftRight(rect)
}
