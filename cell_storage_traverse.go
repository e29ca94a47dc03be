package cellstorage

// Visiting selects which layers count as content when traversing
type Visiting uint8

const (
	// VisitContentOnly visits cells with a value or a formula
	VisitContentOnly Visiting = iota
	// VisitAll also visits styled cells
	VisitAll
)

// hasContent reports whether the stored row holds a value or formula in col
func (cs *CellStorage) hasContent(col, storedRow int) bool {
	return cs.values.Contains(col, storedRow) || cs.formulas.Contains(col, storedRow)
}

// nearest picks the smallest non-zero candidate
func nearest(candidates ...int) int {
	best := 0
	for _, c := range candidates {
		if c > 0 && (best == 0 || c < best) {
			best = c
		}
	}
	return best
}

// FirstInRow returns the first column of row with content, 0 if none
func (cs *CellStorage) FirstInRow(row int, visiting Visiting) int {
	return cs.NextInRow(0, row, visiting)
}

// NextInRow returns the first column right of col with content in row
func (cs *CellStorage) NextInRow(col, row int, visiting Visiting) int {
	stored := cs.canonical(row)
	v, _ := cs.values.NextInRow(col, stored)
	f, _ := cs.formulas.NextInRow(col, stored)
	next := nearest(v, f)
	if visiting == VisitAll {
		s, _ := cs.styles.NextInRow(col, row)
		next = nearest(next, s)
	}
	return next
}

// LastInRow returns the last column of row with content, 0 if none
func (cs *CellStorage) LastInRow(row int, visiting Visiting) int {
	return cs.PrevInRow(MaxColumns+1, row, visiting)
}

// PrevInRow returns the first column left of col with content in row
func (cs *CellStorage) PrevInRow(col, row int, visiting Visiting) int {
	stored := cs.canonical(row)
	v, _ := cs.values.PrevInRow(col, stored)
	f, _ := cs.formulas.PrevInRow(col, stored)
	prev := max(v, f)
	if visiting == VisitAll {
		s, _ := cs.styles.PrevInRow(col, row)
		prev = max(prev, s)
	}
	return prev
}

// FirstInColumn returns the first row of col with content, 0 if none
func (cs *CellStorage) FirstInColumn(col int, visiting Visiting) int {
	return cs.NextInColumn(col, 0, visiting)
}

// NextInColumn returns the first row below row with content in col. rows
// repeating a row with content count as content.
func (cs *CellStorage) NextInColumn(col, row int, visiting Visiting) int {
	next := cs.nextContentInColumn(col, row)
	if visiting == VisitAll {
		s, _ := cs.styles.NextInColumn(col, row)
		next = nearest(next, s)
	}
	return next
}

func (cs *CellStorage) nextContentInColumn(col, row int) int {
	if row >= MaxRows {
		return 0
	}
	// a repeated row right below shares the content of its run
	if first := cs.canonical(row + 1); first < row+1 && cs.hasContent(col, first) {
		return row + 1
	}
	v, _ := cs.values.NextInColumn(col, row)
	f, _ := cs.formulas.NextInColumn(col, row)
	return nearest(v, f)
}

// LastInColumn returns the last row of col with content, 0 if none
func (cs *CellStorage) LastInColumn(col int, visiting Visiting) int {
	return cs.PrevInColumn(col, MaxRows+1, visiting)
}

// PrevInColumn returns the first row above row with content in col
func (cs *CellStorage) PrevInColumn(col, row int, visiting Visiting) int {
	prev := cs.prevContentInColumn(col, row)
	if visiting == VisitAll {
		s, _ := cs.styles.PrevInColumn(col, row)
		prev = max(prev, s)
	}
	return prev
}

func (cs *CellStorage) prevContentInColumn(col, row int) int {
	if row <= 1 {
		return 0
	}
	first := cs.canonical(row - 1)
	if cs.hasContent(col, first) {
		return row - 1
	}
	v, _ := cs.values.PrevInColumn(col, first)
	f, _ := cs.formulas.PrevInColumn(col, first)
	stored := max(v, f)
	if stored == 0 {
		return 0
	}
	// the stored row may start a run, its last repeat is the nearest
	return cs.rowRepeats.LastIdenticalRow(stored)
}
