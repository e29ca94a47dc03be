package cellstorage

import "sort"

// InsertColumns inserts n empty columns before position
func (cs *CellStorage) InsertColumns(position, n int) {
	cs.applyShift(shiftOp{kind: shiftInsertColumns, position: position, count: n})
}

// RemoveColumns deletes n columns starting at position
func (cs *CellStorage) RemoveColumns(position, n int) {
	cs.applyShift(shiftOp{kind: shiftRemoveColumns, position: position, count: n})
}

// InsertRows inserts n empty rows before position
func (cs *CellStorage) InsertRows(position, n int) {
	cs.applyShift(shiftOp{kind: shiftInsertRows, position: position, count: n})
}

// RemoveRows deletes n rows starting at position
func (cs *CellStorage) RemoveRows(position, n int) {
	cs.applyShift(shiftOp{kind: shiftRemoveRows, position: position, count: n})
}

// InsertShiftRight inserts empty cells at rect, moving the cells at and
// right of it to the right
func (cs *CellStorage) InsertShiftRight(rect Rect) {
	cs.applyShift(shiftOp{kind: shiftInsertRight, rect: rect})
}

// RemoveShiftLeft deletes the cells of rect, moving the cells right of it
// to the left
func (cs *CellStorage) RemoveShiftLeft(rect Rect) {
	cs.applyShift(shiftOp{kind: shiftRemoveLeft, rect: rect})
}

// InsertShiftDown inserts empty cells at rect, moving the cells at and
// below it down
func (cs *CellStorage) InsertShiftDown(rect Rect) {
	cs.applyShift(shiftOp{kind: shiftInsertDown, rect: rect})
}

// RemoveShiftUp deletes the cells of rect, moving the cells below it up
func (cs *CellStorage) RemoveShiftUp(rect Rect) {
	cs.applyShift(shiftOp{kind: shiftRemoveUp, rect: rect})
}

func (op shiftOp) valid() bool {
	switch op.kind {
	case shiftInsertColumns, shiftRemoveColumns:
		return op.count > 0 && op.position >= 1 && op.position <= MaxColumns
	case shiftInsertRows, shiftRemoveRows:
		return op.count > 0 && op.position >= 1 && op.position <= MaxRows
	default:
		return !op.rect.IsEmpty() && op.rect.Clip() == op.rect
	}
}

// invalidation returns the area whose content moves or disappears: the
// edit point and everything after it
func (op shiftOp) invalidation() Rect {
	switch op.kind {
	case shiftInsertColumns, shiftRemoveColumns:
		return Rect{Left: op.position, Top: 1, Right: MaxColumns, Bottom: MaxRows}
	case shiftInsertRows, shiftRemoveRows:
		return Rect{Left: 1, Top: op.position, Right: MaxColumns, Bottom: MaxRows}
	case shiftInsertRight, shiftRemoveLeft:
		return Rect{Left: op.rect.Left, Top: op.rect.Top, Right: MaxColumns, Bottom: op.rect.Bottom}
	default:
		return Rect{Left: op.rect.Left, Top: op.rect.Top, Right: op.rect.Right, Bottom: MaxRows}
	}
}

// fullWidth reports whether a vertical partial shift covers whole rows
func (op shiftOp) fullWidth() bool {
	return op.rect.Left <= 1 && op.rect.Right >= MaxColumns
}

// fullHeight reports whether a horizontal partial shift covers whole
// columns
func (op shiftOp) fullHeight() bool {
	return op.rect.Top <= 1 && op.rect.Bottom >= MaxRows
}

// columnDelta returns how far a partial vertical shift moves the rows of
// its columns, 0 for every other shift
func (op shiftOp) columnDelta() int {
	switch {
	case op.kind == shiftInsertDown && !op.fullWidth():
		return op.rect.Height()
	case op.kind == shiftRemoveUp && !op.fullWidth():
		return -op.rect.Height()
	}
	return 0
}

// straddles reports whether a rectangle reaches into the moving cells of a
// partial shift while also covering cells that stay in place beside them
func (op shiftOp) straddles(r Rect) bool {
	if !r.Intersects(op.invalidation()) {
		return false
	}
	switch op.kind {
	case shiftInsertRight, shiftRemoveLeft:
		return !op.fullHeight() && (r.Top < op.rect.Top || r.Bottom > op.rect.Bottom)
	case shiftInsertDown, shiftRemoveUp:
		return !op.fullWidth() && (r.Left < op.rect.Left || r.Right > op.rect.Right)
	}
	return false
}

// applyShift runs a structural edit on every layer:
//  1. formula damage for the formulas at their old positions
//  2. the shift itself on every sub-storage and the row repeats, recording
//     the displaced entries when an undo session is open
//  3. formula damage for the formulas at their new positions
//  4. one appearance damage for the edited area and the merges it broke up
//  5. one value damage for the cells formulas read inside the edited area
func (cs *CellStorage) applyShift(op shiftOp) {
	if !op.valid() {
		return
	}
	invalidation := Region{op.invalidation()}
	cs.logger.Debug("shift", "op", op.String())

	cs.emitFormulaDamages(invalidation)

	var runs []RowRun
	if cs.undo != nil {
		runs = cs.rowRepeats.RunsFrom(op.invalidation().Top)
	}
	displaced := &UndoData{}
	dissolved := cs.dissolveStraddling(op, displaced)
	settled := cs.prepareRowRepeats(op)
	cs.shiftLayers(op, displaced)
	cs.shiftRowRepeats(op)
	for _, run := range settled {
		cs.clearRows(run.First+1, run.Last())
	}
	if cs.undo != nil {
		cs.closeUndoSegment()
		shift := op
		cs.undoSteps = append(cs.undoSteps, undoStep{data: displaced, shift: &shift, runs: runs})
	}

	cs.emitFormulaDamages(invalidation)
	cs.emit(append(Region{op.invalidation()}, dissolved...), ChangeAppearance)
	if providing := cs.opts.Dependencies.ReduceToProvidingRegion(invalidation); !providing.IsEmpty() {
		cs.emit(providing, ChangeValue)
	}
}

// emitFormulaDamages sends one formula damage per stored formula reaching
// into region. a formula heading a run covers the repeated rows too.
func (cs *CellStorage) emitFormulaDamages(region Region) {
	if cs.loading() {
		return
	}
	strip := func(col, top int, rect Rect) {
		bottom := min(cs.rowRepeats.LastIdenticalRow(top), rect.Bottom)
		cs.emit(Region{{Left: col, Top: top, Right: col, Bottom: bottom}}, ChangeFormula)
	}
	for _, rect := range region {
		if first := cs.canonical(rect.Top); first < rect.Top {
			for _, e := range cs.formulas.rowBand(first, first, rect.Left, rect.Right) {
				strip(e.Point.Col, rect.Top, rect)
			}
		}
		for _, e := range cs.formulas.EntriesInRegion(Region{rect}) {
			strip(e.Point.Col, e.Point.Row, rect)
		}
	}
}

// dissolveStraddling unmerges and unlocks the rectangles a partial shift
// would tear apart, recording them in u. it returns the dissolved
// rectangles.
func (cs *CellStorage) dissolveStraddling(op shiftOp, u *UndoData) Region {
	if op.kind < shiftInsertRight {
		return nil
	}
	var dissolved Region
	dissolve := func(s *RectStorage[bool], groups *[][]RectEntry[bool]) {
		var group []RectEntry[bool]
		for _, e := range s.IntersectingPairs(Region{op.invalidation()}) {
			if !op.straddles(e.Rect) {
				continue
			}
			s.Insert(Region{e.Rect}, false)
			group = append(group, e)
			dissolved = append(dissolved, e.Rect)
		}
		addGroup(groups, group)
	}
	dissolve(cs.fusions, &u.fusions)
	dissolve(cs.matrices, &u.matrices)
	if len(dissolved) > 0 {
		cs.logger.Debug("shift dissolved merged or locked cells", "op", op.String(), "count", len(dissolved))
	}
	return dissolved
}

// prepareRowRepeats materializes the rows a shift would otherwise tear out
// of their runs. runs are split at the row boundaries of the edit. a
// partial vertical shift copies the content of every row that stops being
// a repeat and returns the runs surviving it, whose repeated rows must be
// cleared once the shift is done.
func (cs *CellStorage) prepareRowRepeats(op shiftOp) []RowRun {
	if cs.rowRepeats.IsEmpty() {
		return nil
	}
	switch op.kind {
	case shiftInsertRows:
		cs.splitAt(op.position)
	case shiftRemoveRows:
		cs.splitAt(op.position)
		cs.splitAt(op.position + op.count)
	case shiftInsertRight, shiftRemoveLeft:
		cs.splitAt(op.rect.Top)
		cs.splitAt(op.rect.Bottom + 1)
	case shiftInsertDown:
		cs.splitAt(op.rect.Top)
	case shiftRemoveUp:
		cs.splitAt(op.rect.Top)
		if op.fullWidth() {
			cs.splitAt(op.rect.Bottom + 1)
		}
	}
	if delta := op.columnDelta(); delta != 0 {
		return cs.settleColumnShift(op.rect.Top, delta)
	}
	return nil
}

// settleColumnShift copies the content of the rows that leave their run
// when the rows of some columns, from top down, move by delta. a row needs
// its own copy when it stops being a repeat itself, for the cells staying
// in place, or when the row its moved cells land on does.
func (cs *CellStorage) settleColumnShift(top, delta int) []RowRun {
	fixed := cs.rowRepeats.RunsFrom(top)
	settled := cs.rowRepeats.PartialShiftRuns(top, delta)
	repeated := make([]RowRun, 0, len(settled))
	for _, run := range settled {
		repeated = append(repeated, RowRun{First: run.First + 1, Count: run.Count - 1})
	}
	moveFrom := top
	if delta < 0 {
		moveFrom = top - delta
	}

	need := make(map[int]int) // row -> first row of its run
	for _, run := range fixed {
		for _, row := range uncoveredRows(run.First+1, run.Last(), repeated) {
			need[row] = run.First
		}
		lo := max(run.First+1, moveFrom) + delta
		hi := min(run.Last()+delta, MaxRows)
		for _, row := range uncoveredRows(lo, hi, repeated) {
			need[row-delta] = run.First
		}
	}
	for row, first := range need {
		cs.copyRow(first, row)
	}
	if len(need) > 0 {
		cs.logger.Debug("materialized rows for a column shift", "top", top, "delta", delta, "rows", len(need), "runs", len(settled))
	}
	return settled
}

// uncoveredRows lists the rows of [lo, hi] outside every run of covered,
// which is sorted and disjoint
func uncoveredRows(lo, hi int, covered []RowRun) []int {
	var rows []int
	next := lo
	i := sort.Search(len(covered), func(i int) bool { return covered[i].Last() >= lo })
	for ; i < len(covered) && covered[i].First <= hi && next <= hi; i++ {
		for ; next < covered[i].First; next++ {
			rows = append(rows, next)
		}
		next = max(next, covered[i].Last()+1)
	}
	for ; next <= hi; next++ {
		rows = append(rows, next)
	}
	return rows
}

func (cs *CellStorage) shiftRowRepeats(op shiftOp) {
	switch op.kind {
	case shiftInsertRows:
		cs.rowRepeats.InsertRows(op.position, op.count)
	case shiftRemoveRows:
		cs.rowRepeats.RemoveRows(op.position, op.count)
	case shiftInsertRight:
		cs.rowRepeats.InsertShiftRight(op.rect)
	case shiftRemoveLeft:
		cs.rowRepeats.RemoveShiftLeft(op.rect)
	case shiftInsertDown:
		cs.rowRepeats.InsertShiftDown(op.rect)
	case shiftRemoveUp:
		cs.rowRepeats.RemoveShiftUp(op.rect)
	}
}

func (cs *CellStorage) shiftLayers(op shiftOp, u *UndoData) {
	addGroup(&u.values, shiftPoints(cs.values, op))
	addGroup(&u.formulas, shiftPoints(cs.formulas, op))
	addGroup(&u.links, shiftPoints(cs.links, op))
	addGroup(&u.userInputs, shiftPoints(cs.userInputs, op))
	addGroup(&u.richTexts, shiftPoints(cs.richTexts, op))

	addGroup(&u.comments, shiftRects(cs.comments, op))
	addGroup(&u.conditions, shiftRects(cs.conditions, op))
	addGroup(&u.validities, shiftRects(cs.validities, op))
	addGroup(&u.styles, shiftRects(cs.styles, op))
	addGroup(&u.bindings, shiftRects(cs.bindings, op))
	addGroup(&u.databases, shiftRects(cs.databases, op))
	addGroup(&u.namedAreas, shiftRects(cs.namedAreas, op))
	addGroup(&u.fusions, shiftRects(cs.fusions, op))
	addGroup(&u.matrices, shiftRects(cs.matrices, op))
}

func shiftPoints[T any](s *PointStorage[T], op shiftOp) []PointEntry[T] {
	switch op.kind {
	case shiftInsertColumns:
		return s.InsertColumns(op.position, op.count)
	case shiftRemoveColumns:
		return s.RemoveColumns(op.position, op.count)
	case shiftInsertRows:
		return s.InsertRows(op.position, op.count)
	case shiftRemoveRows:
		return s.RemoveRows(op.position, op.count)
	case shiftInsertRight:
		return s.InsertShiftRight(op.rect)
	case shiftRemoveLeft:
		return s.RemoveShiftLeft(op.rect)
	case shiftInsertDown:
		return s.InsertShiftDown(op.rect)
	default:
		return s.RemoveShiftUp(op.rect)
	}
}

func shiftRects[T any](s *RectStorage[T], op shiftOp) []RectEntry[T] {
	switch op.kind {
	case shiftInsertColumns:
		return s.InsertColumns(op.position, op.count)
	case shiftRemoveColumns:
		return s.RemoveColumns(op.position, op.count)
	case shiftInsertRows:
		return s.InsertRows(op.position, op.count)
	case shiftRemoveRows:
		return s.RemoveRows(op.position, op.count)
	case shiftInsertRight:
		return s.InsertShiftRight(op.rect)
	case shiftRemoveLeft:
		return s.RemoveShiftLeft(op.rect)
	case shiftInsertDown:
		return s.InsertShiftDown(op.rect)
	default:
		return s.RemoveShiftUp(op.rect)
	}
}
