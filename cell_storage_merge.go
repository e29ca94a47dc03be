package cellstorage

// MergeCells merges the (nx+1) x (ny+1) cells starting at (col, row) into
// one cell with (col, row) as master. the merge containing (col, row) and
// every merge overlapping the new one are dissolved first. with nx and ny
// both 0 the cell is only unmerged. one damage covers every rectangle
// touched.
func (cs *CellStorage) MergeCells(col, row, nx, ny int) {
	master := Point{Col: col, Row: row}
	if !master.IsValid() || nx < 0 || ny < 0 {
		return
	}
	var stale, merged Region
	if e, ok := cs.fusions.ContainedPair(master); ok {
		stale = append(stale, e.Rect)
	}
	if nx > 0 || ny > 0 {
		rect := NewRect(col, row, nx+1, ny+1).Clip()
		for _, e := range cs.fusions.IntersectingPairs(Region{rect}) {
			stale = appendRect(stale, e.Rect)
		}
		merged = Region{rect}
	}
	replaceRects(cs, cs.fusions, func(u *UndoData) *[][]RectEntry[bool] { return &u.fusions }, stale, merged, ChangeAppearance)
}

// appendRect adds r to region unless it is already listed
func appendRect(region Region, r Rect) Region {
	for _, have := range region {
		if have == r {
			return region
		}
	}
	return append(region, r)
}

// replaceRects clears the stale rectangles of a boolean layer and sets the
// fresh ones, as one mutation: one undo group and one damage over all of
// them
func replaceRects(cs *CellStorage, s *RectStorage[bool], pick func(*UndoData) *[][]RectEntry[bool], stale, fresh Region, changes Changes) {
	region := clipRegion(stale)
	for _, r := range clipRegion(fresh) {
		region = appendRect(region, r)
	}
	if region.IsEmpty() {
		return
	}
	cs.splitRegion(region)
	if cs.undo != nil {
		addGroup(pick(cs.undo), snapshotRects(s, region))
	}
	s.Insert(stale, false)
	s.Insert(fresh, true)
	cs.emit(region, changes)
}

// DoesMergeCells reports whether (col, row) is the master of a merge
func (cs *CellStorage) DoesMergeCells(col, row int) bool {
	e, ok := cs.fusions.ContainedPair(Point{Col: col, Row: row})
	return ok && e.Rect.TopLeft() == Point{Col: col, Row: row}
}

// IsPartOfMerged reports whether (col, row) is obscured by a merge, ie it
// lies inside a merged rectangle without being its master
func (cs *CellStorage) IsPartOfMerged(col, row int) bool {
	e, ok := cs.fusions.ContainedPair(Point{Col: col, Row: row})
	return ok && e.Rect.TopLeft() != Point{Col: col, Row: row}
}

// MasterCell returns the master of the merge containing (col, row), or
// the cell itself
func (cs *CellStorage) MasterCell(col, row int) Point {
	if e, ok := cs.fusions.ContainedPair(Point{Col: col, Row: row}); ok {
		return e.Rect.TopLeft()
	}
	return Point{Col: col, Row: row}
}

// MergedXCells returns how many extra columns the master cell at
// (col, row) spans
func (cs *CellStorage) MergedXCells(col, row int) int {
	e, ok := cs.fusions.ContainedPair(Point{Col: col, Row: row})
	if !ok || e.Rect.TopLeft() != (Point{Col: col, Row: row}) {
		return 0
	}
	return e.Rect.Width() - 1
}

// MergedYCells returns how many extra rows the master cell at (col, row)
// spans
func (cs *CellStorage) MergedYCells(col, row int) int {
	e, ok := cs.fusions.ContainedPair(Point{Col: col, Row: row})
	if !ok || e.Rect.TopLeft() != (Point{Col: col, Row: row}) {
		return 0
	}
	return e.Rect.Height() - 1
}

// MergedRegion returns the merged rectangles intersecting region
func (cs *CellStorage) MergedRegion(region Region) Region {
	var merged Region
	for _, e := range cs.fusions.IntersectingPairs(region) {
		merged = append(merged, e.Rect)
	}
	return merged
}

// LockCells locks rect as one array: only its top-left cell may be edited.
// arrays overlapping rect are unlocked first.
func (cs *CellStorage) LockCells(rect Rect) {
	rect = rect.Clip()
	if rect.IsEmpty() {
		return
	}
	var stale Region
	for _, e := range cs.matrices.IntersectingPairs(Region{rect}) {
		stale = append(stale, e.Rect)
	}
	replaceRects(cs, cs.matrices, func(u *UndoData) *[][]RectEntry[bool] { return &u.matrices }, stale, Region{rect}, ChangeAppearance|ChangeValue)
}

// UnlockCells dissolves the array containing (col, row) and clears the
// values of all its cells except the top-left one
func (cs *CellStorage) UnlockCells(col, row int) {
	e, ok := cs.matrices.ContainedPair(Point{Col: col, Row: row})
	if !ok {
		return
	}
	rect := e.Rect
	if !cs.loading() {
		cs.flattenRows(rect.Top, rect.Bottom)
	}

	master := rect.TopLeft()
	var cleared []PointEntry[Value]
	for _, v := range cs.values.EntriesInRegion(Region{rect}) {
		if v.Point == master {
			continue
		}
		cs.values.Take(v.Point.Col, v.Point.Row)
		cleared = append(cleared, v)
	}
	if cs.undo != nil {
		addGroup(&cs.undo.values, cleared)
	}
	// one damage for the array, covering the cleared values
	cs.setMatrix(rect, false)
}

// Locked reports whether (col, row) belongs to a locked array
func (cs *CellStorage) Locked(col, row int) bool {
	return cs.matrices.Contains(Point{Col: col, Row: row})
}

// LockedCells returns the locked array containing (col, row). the second
// result is false when the cell is not locked.
func (cs *CellStorage) LockedCells(col, row int) (Rect, bool) {
	e, ok := cs.matrices.ContainedPair(Point{Col: col, Row: row})
	return e.Rect, ok
}
