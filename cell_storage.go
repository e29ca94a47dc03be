package cellstorage

import (
	"log/slog"
	"math"
)

// Options configures the collaborators of a CellStorage. nil collaborators
// default to no-ops.
type Options struct {
	// Damage receives one damage per mutation
	Damage DamageSink
	// Dependencies reduces shifted areas to the cells formulas read
	Dependencies DependencyManager
	// Sheet reports whether the owning sheet is being loaded
	Sheet LoadingState
	// Recalc reports whether a recalculation pass is running
	Recalc RecalcState
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Damage == nil {
		o.Damage = discardDamage{}
	}
	if o.Dependencies == nil {
		o.Dependencies = noDependencies{}
	}
	if o.Sheet == nil {
		o.Sheet = neverState{}
	}
	if o.Recalc == nil {
		o.Recalc = neverState{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// CellStorage holds every per-cell fact of one sheet.
//
// architecture:
//   - one PointStorage per point layer (value, formula, link, user input,
//     rich text) and one RectStorage per region layer
//   - a RowRepeatStorage compressing runs of identical rows: point layers
//     only store the first row of a run, reads of the other rows are
//     redirected to it
//   - every mutation emits exactly one Damage and, while an undo session is
//     active, records the values it overwrote
//
// a CellStorage is not safe for concurrent use.
type CellStorage struct {
	opts   Options
	logger *slog.Logger

	values     *PointStorage[Value]
	formulas   *PointStorage[Formula]
	links      *PointStorage[string]
	userInputs *PointStorage[string]
	richTexts  *PointStorage[*RichText]

	comments   *RectStorage[string]
	conditions *RectStorage[Conditions]
	validities *RectStorage[Validity]
	styles     *RectStorage[Style]
	bindings   *RectStorage[Binding]
	databases  *RectStorage[Database]
	namedAreas *RectStorage[string]
	fusions    *RectStorage[bool]
	matrices   *RectStorage[bool]

	rowRepeats *RowRepeatStorage

	undo      *UndoData // current segment, nil while idle
	undoSteps []undoStep
}

func isEmptyString(s string) bool { return s == "" }
func isFalse(b bool) bool         { return !b }

// New creates an empty cell storage
func New(opts Options) *CellStorage {
	opts = opts.withDefaults()
	cs := &CellStorage{
		opts:       opts,
		logger:     opts.Logger,
		values:     NewPointStorage[Value](),
		formulas:   NewPointStorage[Formula](),
		links:      NewPointStorage[string](),
		userInputs: NewPointStorage[string](),
		richTexts:  NewPointStorage[*RichText](),
		comments:   NewRectStorage(isEmptyString),
		conditions: NewRectStorage(Conditions.IsEmpty),
		validities: NewRectStorage(Validity.IsEmpty),
		styles:     NewRectStorage(Style.IsEmpty),
		bindings:   NewRectStorage(Binding.IsEmpty),
		databases:  NewRectStorage(Database.IsEmpty),
		namedAreas: NewRectStorage(isEmptyString),
		fusions:    NewRectStorage(isFalse),
		matrices:   NewRectStorage(isFalse),
		rowRepeats: NewRowRepeatStorage(),
	}
	cs.attachLogger()
	return cs
}

// attachLogger hands the storage's logger down to every layer
func (cs *CellStorage) attachLogger() {
	cs.values.SetLogger(cs.logger)
	cs.formulas.SetLogger(cs.logger)
	cs.links.SetLogger(cs.logger)
	cs.userInputs.SetLogger(cs.logger)
	cs.richTexts.SetLogger(cs.logger)
	cs.comments.SetLogger(cs.logger)
	cs.conditions.SetLogger(cs.logger)
	cs.validities.SetLogger(cs.logger)
	cs.styles.SetLogger(cs.logger)
	cs.bindings.SetLogger(cs.logger)
	cs.databases.SetLogger(cs.logger)
	cs.namedAreas.SetLogger(cs.logger)
	cs.fusions.SetLogger(cs.logger)
	cs.matrices.SetLogger(cs.logger)
}

func (cs *CellStorage) loading() bool {
	return cs.opts.Sheet.IsLoading()
}

// emit sends one damage unless the sheet is loading
func (cs *CellStorage) emit(region Region, changes Changes) {
	if changes == 0 || region.IsEmpty() || cs.loading() {
		return
	}
	cs.opts.Damage.AddDamage(Damage{Region: region, Changes: changes})
}

// canonical maps row to the stored row of its run
func (cs *CellStorage) canonical(row int) int {
	return cs.rowRepeats.FirstIdenticalRow(row)
}

// copyRow duplicates the point-layer content of one row into another
func (cs *CellStorage) copyRow(from, to int) {
	copyPointRow(cs.values, from, to)
	copyPointRow(cs.formulas, from, to)
	copyPointRow(cs.links, from, to)
	copyPointRow(cs.userInputs, from, to)
	copyPointRow(cs.richTexts, from, to)
}

func copyPointRow[T any](s *PointStorage[T], from, to int) {
	for _, e := range s.EntriesInRow(from) {
		s.Insert(e.Point.Col, to, e.Value)
	}
}

// clearRows drops the point-layer content of rows [first, last]
func (cs *CellStorage) clearRows(first, last int) {
	cs.takeRows(first, last, &UndoData{})
}

// takeRows drops the point-layer content of rows [first, last] and records
// it in u
func (cs *CellStorage) takeRows(first, last int, u *UndoData) {
	if last < first {
		return
	}
	addGroup(&u.values, clearPointRows(cs.values, first, last))
	addGroup(&u.formulas, clearPointRows(cs.formulas, first, last))
	addGroup(&u.links, clearPointRows(cs.links, first, last))
	addGroup(&u.userInputs, clearPointRows(cs.userInputs, first, last))
	addGroup(&u.richTexts, clearPointRows(cs.richTexts, first, last))
}

func clearPointRows[T any](s *PointStorage[T], first, last int) []PointEntry[T] {
	return s.remove(s.rowBand(first, last, 1, math.MaxInt32))
}

// compressRows turns rows [first, last], which must already read alike,
// into one run headed by first
func (cs *CellStorage) compressRows(first, last int) {
	cs.splitAt(first)
	cs.splitAt(last + 1)
	cs.rowRepeats.SetRowRepeat(first, last-first+1)
	cs.clearRows(first+1, last)
}

// splitAt makes row the first row of its run, copying the run's content
// into it. the content is logically unchanged, so there is no damage and
// nothing to undo.
func (cs *CellStorage) splitAt(row int) {
	if row < 1 || row > MaxRows {
		return
	}
	first := cs.canonical(row)
	if first == row {
		return
	}
	cs.rowRepeats.SplitAt(row)
	cs.copyRow(first, row)
}

// splitRow carves row out of its run
func (cs *CellStorage) splitRow(row int) {
	if cs.loading() {
		return
	}
	cs.splitAt(row)
	cs.splitAt(row + 1)
}

// splitRegion splits the runs at the row boundaries of every rectangle
func (cs *CellStorage) splitRegion(region Region) {
	if cs.loading() {
		return
	}
	for _, rect := range region {
		cs.splitAt(rect.Top)
		cs.splitAt(rect.Bottom + 1)
	}
}

// flattenRows materializes every run within rows [top, bottom] and drops
// them, so that each of those rows is stored on its own
func (cs *CellStorage) flattenRows(top, bottom int) {
	cs.splitAt(top)
	cs.splitAt(bottom + 1)
	var flattened int
	for _, run := range cs.rowRepeats.RunsFrom(top) {
		if run.First > bottom {
			break
		}
		for r := run.First + 1; r <= run.Last(); r++ {
			cs.copyRow(run.First, r)
		}
		flattened++
	}
	if flattened > 0 {
		cs.rowRepeats.clearRange(top, bottom)
		cs.logger.Debug("flattened row repeats", "top", top, "bottom", bottom, "runs", flattened)
	}
}

func clipRegion(region Region) Region {
	var clipped Region
	for _, rect := range region {
		if rect = rect.Clip(); !rect.IsEmpty() {
			clipped = append(clipped, rect)
		}
	}
	return clipped
}

// setPoint writes v, removing the entry when v is empty, and returns the
// value it replaced
func setPoint[T any](s *PointStorage[T], col, row int, v T, empty bool) T {
	var old T
	if empty {
		old, _ = s.Take(col, row)
	} else {
		old, _ = s.Insert(col, row, v)
	}
	return old
}

func recordPoint[T any](cs *CellStorage, pick func(*UndoData) *[][]PointEntry[T], col, row int, old T) {
	if cs.undo == nil {
		return
	}
	addGroup(pick(cs.undo), []PointEntry[T]{{Point: Point{Col: col, Row: row}, Value: old}})
}

// snapshotRects returns the entries restoring region to its current
// content: the region cleared first, then the old pieces written back
func snapshotRects[T any](s *RectStorage[T], region Region) []RectEntry[T] {
	var zero T
	var group []RectEntry[T]
	for _, rect := range region {
		group = append(group, RectEntry[T]{Rect: rect, Value: zero})
	}
	for _, e := range s.IntersectingPairs(region) {
		for _, piece := range region.Intersected(e.Rect) {
			group = append(group, RectEntry[T]{Rect: piece, Value: e.Value})
		}
	}
	return group
}

// setRects applies v to region on a region layer with the full setter
// protocol: split runs, record undo, mutate, emit one damage
func setRects[T any](cs *CellStorage, s *RectStorage[T], pick func(*UndoData) *[][]RectEntry[T], region Region, v T, changes Changes) {
	region = clipRegion(region)
	if region.IsEmpty() {
		return
	}
	cs.splitRegion(region)
	if cs.undo != nil {
		addGroup(pick(cs.undo), snapshotRects(s, region))
	}
	s.Insert(region, v)
	cs.emit(region, changes)
}

// Value returns the value of a cell, nil for empty cells
func (cs *CellStorage) Value(col, row int) Value {
	return cs.values.Lookup(col, cs.canonical(row))
}

// SetValue stores the value of a cell. setting nil removes it.
func (cs *CellStorage) SetValue(col, row int, v Value) {
	if !(Point{Col: col, Row: row}).IsValid() {
		return
	}
	v = NormalizeValue(v)
	cs.splitRow(row)
	old := setPoint(cs.values, col, row, v, IsEmptyValue(v))
	recordPoint(cs, func(u *UndoData) *[][]PointEntry[Value] { return &u.values }, col, row, old)

	changes := ChangeAppearance
	if !cs.opts.Recalc.IsActive() {
		changes |= ChangeValue
	}
	if !cs.bindings.Contains(Point{Col: col, Row: row}).IsEmpty() {
		changes |= ChangeBinding
	}
	cs.emit(RegionFromPoint(col, row), changes)
}

// Formula returns the formula of a cell, "" when it has none
func (cs *CellStorage) Formula(col, row int) Formula {
	return cs.formulas.Lookup(col, cs.canonical(row))
}

// SetFormula stores the formula of a cell. the value is left alone, it is
// up to the evaluator to compute it.
func (cs *CellStorage) SetFormula(col, row int, f Formula) {
	if !(Point{Col: col, Row: row}).IsValid() {
		return
	}
	cs.splitRow(row)
	old := setPoint(cs.formulas, col, row, f, f.IsEmpty())
	recordPoint(cs, func(u *UndoData) *[][]PointEntry[Formula] { return &u.formulas }, col, row, old)
	cs.emit(RegionFromPoint(col, row), ChangeFormula|ChangeValue)
}

// Link returns the hyperlink of a cell
func (cs *CellStorage) Link(col, row int) string {
	return cs.links.Lookup(col, cs.canonical(row))
}

func (cs *CellStorage) SetLink(col, row int, link string) {
	cs.setString(cs.links, func(u *UndoData) *[][]PointEntry[string] { return &u.links }, col, row, link)
}

// UserInput returns the text the user typed into a cell
func (cs *CellStorage) UserInput(col, row int) string {
	return cs.userInputs.Lookup(col, cs.canonical(row))
}

func (cs *CellStorage) SetUserInput(col, row int, input string) {
	cs.setString(cs.userInputs, func(u *UndoData) *[][]PointEntry[string] { return &u.userInputs }, col, row, input)
}

func (cs *CellStorage) setString(s *PointStorage[string], pick func(*UndoData) *[][]PointEntry[string], col, row int, v string) {
	if !(Point{Col: col, Row: row}).IsValid() {
		return
	}
	cs.splitRow(row)
	old := setPoint(s, col, row, v, v == "")
	recordPoint(cs, pick, col, row, old)
	cs.emit(RegionFromPoint(col, row), ChangeAppearance)
}

// RichText returns the rich text of a cell, nil when it has none
func (cs *CellStorage) RichText(col, row int) *RichText {
	return cs.richTexts.Lookup(col, cs.canonical(row))
}

// SetRichText stores the rich text of a cell. the payload is shared, it
// must not be modified afterwards.
func (cs *CellStorage) SetRichText(col, row int, text *RichText) {
	if !(Point{Col: col, Row: row}).IsValid() {
		return
	}
	cs.splitRow(row)
	old := setPoint(cs.richTexts, col, row, text, text == nil)
	recordPoint(cs, func(u *UndoData) *[][]PointEntry[*RichText] { return &u.richTexts }, col, row, old)
	cs.emit(RegionFromPoint(col, row), ChangeAppearance)
}

func (cs *CellStorage) Comment(col, row int) string {
	return cs.comments.Contains(Point{Col: col, Row: row})
}

func (cs *CellStorage) SetComment(region Region, comment string) {
	setRects(cs, cs.comments, func(u *UndoData) *[][]RectEntry[string] { return &u.comments }, region, comment, ChangeAppearance)
}

func (cs *CellStorage) Conditions(col, row int) Conditions {
	return cs.conditions.Contains(Point{Col: col, Row: row})
}

func (cs *CellStorage) SetConditions(region Region, conditions Conditions) {
	setRects(cs, cs.conditions, func(u *UndoData) *[][]RectEntry[Conditions] { return &u.conditions }, region, conditions, ChangeAppearance)
}

func (cs *CellStorage) Validity(col, row int) Validity {
	return cs.validities.Contains(Point{Col: col, Row: row})
}

func (cs *CellStorage) SetValidity(region Region, validity Validity) {
	setRects(cs, cs.validities, func(u *UndoData) *[][]RectEntry[Validity] { return &u.validities }, region, validity, ChangeAppearance)
}

func (cs *CellStorage) Style(col, row int) Style {
	return cs.styles.Contains(Point{Col: col, Row: row})
}

// SetStyle replaces the style of every cell in region
func (cs *CellStorage) SetStyle(region Region, style Style) {
	setRects(cs, cs.styles, func(u *UndoData) *[][]RectEntry[Style] { return &u.styles }, region, style, ChangeAppearance)
}

func (cs *CellStorage) Binding(col, row int) Binding {
	return cs.bindings.Contains(Point{Col: col, Row: row})
}

func (cs *CellStorage) SetBinding(region Region, binding Binding) {
	setRects(cs, cs.bindings, func(u *UndoData) *[][]RectEntry[Binding] { return &u.bindings }, region, binding, ChangeBinding)
}

func (cs *CellStorage) Database(col, row int) Database {
	return cs.databases.Contains(Point{Col: col, Row: row})
}

func (cs *CellStorage) SetDatabase(region Region, database Database) {
	setRects(cs, cs.databases, func(u *UndoData) *[][]RectEntry[Database] { return &u.databases }, region, database, ChangeAppearance)
}

// NamedArea returns the name of the named area covering a cell
func (cs *CellStorage) NamedArea(col, row int) string {
	return cs.namedAreas.Contains(Point{Col: col, Row: row})
}

func (cs *CellStorage) SetNamedArea(region Region, name string) {
	setRects(cs, cs.namedAreas, func(u *UndoData) *[][]RectEntry[string] { return &u.namedAreas }, region, name, ChangeNamedArea)
}

func (cs *CellStorage) setFusion(rect Rect, merged bool) {
	setRects(cs, cs.fusions, func(u *UndoData) *[][]RectEntry[bool] { return &u.fusions }, Region{rect}, merged, ChangeAppearance)
}

func (cs *CellStorage) setMatrix(rect Rect, locked bool) {
	setRects(cs, cs.matrices, func(u *UndoData) *[][]RectEntry[bool] { return &u.matrices }, Region{rect}, locked, ChangeAppearance|ChangeValue)
}

// Take removes the value, formula, link, user input and rich text of a
// cell in one step
func (cs *CellStorage) Take(col, row int) {
	if !(Point{Col: col, Row: row}).IsValid() {
		return
	}
	cs.splitRow(row)
	oldValue := setPoint(cs.values, col, row, nil, true)
	oldFormula := setPoint(cs.formulas, col, row, "", true)
	oldLink := setPoint(cs.links, col, row, "", true)
	oldInput := setPoint(cs.userInputs, col, row, "", true)
	oldText := setPoint(cs.richTexts, col, row, nil, true)
	if cs.undo != nil {
		recordPoint(cs, func(u *UndoData) *[][]PointEntry[Value] { return &u.values }, col, row, oldValue)
		recordPoint(cs, func(u *UndoData) *[][]PointEntry[Formula] { return &u.formulas }, col, row, oldFormula)
		recordPoint(cs, func(u *UndoData) *[][]PointEntry[string] { return &u.links }, col, row, oldLink)
		recordPoint(cs, func(u *UndoData) *[][]PointEntry[string] { return &u.userInputs }, col, row, oldInput)
		recordPoint(cs, func(u *UndoData) *[][]PointEntry[*RichText] { return &u.richTexts }, col, row, oldText)
	}
	changes := ChangeFormula | ChangeValue | ChangeAppearance
	if !cs.bindings.Contains(Point{Col: col, Row: row}).IsEmpty() {
		changes |= ChangeBinding
	}
	cs.emit(RegionFromPoint(col, row), changes)
}

// FormulasIn returns the formula cells inside region, including the rows
// of runs that only exist as repeats
func (cs *CellStorage) FormulasIn(region Region) []PointEntry[Formula] {
	return logicalEntries(cs, cs.formulas, region)
}

// logicalEntries returns the entries inside region as they read through
// the row-repeat redirect
func logicalEntries[T any](cs *CellStorage, s *PointStorage[T], region Region) []PointEntry[T] {
	entries := s.EntriesInRegion(region)
	if cs.rowRepeats.IsEmpty() {
		return entries
	}
	seen := make(map[Point]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Point] = struct{}{}
	}
	for _, rect := range region {
		for _, run := range cs.rowRepeats.RunsFrom(rect.Top) {
			if run.First > rect.Bottom {
				break
			}
			for _, e := range s.rowBand(run.First, run.First, rect.Left, rect.Right) {
				for r := max(run.First+1, rect.Top); r <= min(run.Last(), rect.Bottom); r++ {
					p := Point{Col: e.Point.Col, Row: r}
					if _, dup := seen[p]; dup {
						continue
					}
					seen[p] = struct{}{}
					entries = append(entries, PointEntry[T]{Point: p, Value: e.Value})
				}
			}
		}
	}
	return entries
}

// Columns returns the rightmost column holding point-layer content
func (cs *CellStorage) Columns() int {
	return max(cs.values.Columns(), cs.formulas.Columns(), cs.links.Columns(),
		cs.userInputs.Columns(), cs.richTexts.Columns())
}

// Rows returns the bottom row holding content, counting repeated rows.
// with includeStyles the styled area counts as content.
func (cs *CellStorage) Rows(includeStyles bool) int {
	rows := max(cs.values.Rows(), cs.formulas.Rows(), cs.links.Rows(),
		cs.userInputs.Rows(), cs.richTexts.Rows())
	if rows > 0 {
		rows = cs.rowRepeats.LastIdenticalRow(rows)
	}
	if includeStyles && cs.styles.Count() > 0 {
		rows = max(rows, cs.styles.UsedArea().Bottom)
	}
	return rows
}

// UsedArea returns the rectangle from A1 to the last column and row with
// content. it is empty for an empty sheet.
func (cs *CellStorage) UsedArea(includeStyles bool) Rect {
	cols := cs.Columns()
	if includeStyles && cs.styles.Count() > 0 {
		cols = max(cols, cs.styles.UsedArea().Right)
	}
	return Rect{Left: 1, Top: 1, Right: cols, Bottom: cs.Rows(includeStyles)}
}

// NamedAreas returns the regions of all named areas, by name
func (cs *CellStorage) NamedAreas() map[string]Region {
	areas := make(map[string]Region)
	for _, e := range cs.namedAreas.Entries() {
		areas[e.Value] = append(areas[e.Value], e.Rect)
	}
	return areas
}

// Databases returns the database ranges with the rectangles they cover
func (cs *CellStorage) Databases() []RectEntry[Database] {
	return cs.databases.Entries()
}

// Stats counts the stored entries per layer
type Stats struct {
	Values     int
	Formulas   int
	Links      int
	UserInputs int
	RichTexts  int
	Comments   int
	Conditions int
	Validities int
	Styles     int
	Bindings   int
	Databases  int
	NamedAreas int
	Fusions    int
	Matrices   int
	RowRepeats int
}

func (cs *CellStorage) Stats() Stats {
	return Stats{
		Values:     cs.values.Count(),
		Formulas:   cs.formulas.Count(),
		Links:      cs.links.Count(),
		UserInputs: cs.userInputs.Count(),
		RichTexts:  cs.richTexts.Count(),
		Comments:   cs.comments.Count(),
		Conditions: cs.conditions.Count(),
		Validities: cs.validities.Count(),
		Styles:     cs.styles.Count(),
		Bindings:   cs.bindings.Count(),
		Databases:  cs.databases.Count(),
		NamedAreas: cs.namedAreas.Count(),
		Fusions:    cs.fusions.Count(),
		Matrices:   cs.matrices.Count(),
		RowRepeats: len(cs.rowRepeats.Runs()),
	}
}

// SetRowRepeat declares rows [row, row+count) identical to row: the
// point-layer content of the following rows is replaced by repeats of row.
// region layers must already cover the run uniformly. loaders call this
// after writing the first row. a count of 1 carves row out of its run.
func (cs *CellStorage) SetRowRepeat(row, count int) {
	if row < 1 || row > MaxRows || count < 1 {
		return
	}
	last := min(row+count-1, MaxRows)
	if cs.undo == nil || last == row {
		cs.compressRows(row, last)
	} else {
		cs.closeUndoSegment()
		var old []RowRun
		for _, run := range cs.rowRepeats.RunsFrom(row) {
			if run.First > last {
				break
			}
			old = append(old, run)
		}
		cleared := &UndoData{}
		cs.splitAt(row)
		cs.splitAt(last + 1)
		cs.rowRepeats.SetRowRepeat(row, last-row+1)
		cs.takeRows(row+1, last, cleared)
		cs.undoSteps = append(cs.undoSteps, undoStep{
			data:     cleared,
			runs:     old,
			released: &RowRun{First: row, Count: last - row + 1},
		})
	}
	if last > row {
		cs.emit(Region{{Left: 1, Top: row + 1, Right: MaxColumns, Bottom: last}}, ChangeFormula|ChangeValue|ChangeAppearance)
	}
}

// RowRepeat returns the length of the run of identical rows containing row
func (cs *CellStorage) RowRepeat(row int) int {
	return cs.rowRepeats.RowRepeat(row)
}

// FirstIdenticalRow returns the first row of the run containing row
func (cs *CellStorage) FirstIdenticalRow(row int) int {
	return cs.rowRepeats.FirstIdenticalRow(row)
}

// RowRepeats returns the runs of identical rows
func (cs *CellStorage) RowRepeats() []RowRun {
	return cs.rowRepeats.Runs()
}

// SubStorage returns a detached storage holding the content of region,
// re-keyed so that the top-left corner of its bounding rectangle is A1.
// repeated rows are materialized.
func (cs *CellStorage) SubStorage(region Region) *CellStorage {
	region = clipRegion(region)
	sub := New(Options{Logger: cs.logger})
	if region.IsEmpty() {
		return sub
	}
	bounds := region.BoundingRect()
	sub.values = subPoints(cs, cs.values, region, bounds)
	sub.formulas = subPoints(cs, cs.formulas, region, bounds)
	sub.links = subPoints(cs, cs.links, region, bounds)
	sub.userInputs = subPoints(cs, cs.userInputs, region, bounds)
	sub.richTexts = subPoints(cs, cs.richTexts, region, bounds)
	sub.comments = cs.comments.SubStorage(region)
	sub.conditions = cs.conditions.SubStorage(region)
	sub.validities = cs.validities.SubStorage(region)
	sub.styles = cs.styles.SubStorage(region)
	sub.bindings = cs.bindings.SubStorage(region)
	sub.databases = cs.databases.SubStorage(region)
	sub.namedAreas = cs.namedAreas.SubStorage(region)
	sub.fusions = cs.fusions.SubStorage(region)
	sub.matrices = cs.matrices.SubStorage(region)
	return sub
}

func subPoints[T any](cs *CellStorage, s *PointStorage[T], region Region, bounds Rect) *PointStorage[T] {
	sub := NewPointStorage[T]()
	sub.SetLogger(cs.logger)
	for _, e := range copyEntries(cs.logger, logicalEntries(cs, s, region)) {
		sub.Insert(e.Point.Col-bounds.Left+1, e.Point.Row-bounds.Top+1, e.Value)
	}
	return sub
}

// Clone returns an independent deep copy. the copy has no collaborators
// and no undo session.
func (cs *CellStorage) Clone() *CellStorage {
	return &CellStorage{
		opts:       Options{Logger: cs.logger}.withDefaults(),
		logger:     cs.logger,
		values:     cs.values.Clone(),
		formulas:   cs.formulas.Clone(),
		links:      cs.links.Clone(),
		userInputs: cs.userInputs.Clone(),
		richTexts:  cs.richTexts.Clone(),
		comments:   cs.comments.Clone(),
		conditions: cs.conditions.Clone(),
		validities: cs.validities.Clone(),
		styles:     cs.styles.Clone(),
		bindings:   cs.bindings.Clone(),
		databases:  cs.databases.Clone(),
		namedAreas: cs.namedAreas.Clone(),
		fusions:    cs.fusions.Clone(),
		matrices:   cs.matrices.Clone(),
		rowRepeats: cs.rowRepeats.Clone(),
	}
}

// StartUndoRecording opens an undo session. a session must not already be
// open.
func (cs *CellStorage) StartUndoRecording() {
	if cs.undo != nil {
		cs.logger.Error("undo recording started twice")
		panic("cellstorage: undo recording already active")
	}
	cs.undo = &UndoData{}
	cs.undoSteps = nil
	cs.logger.Debug("undo recording started")
}

// StopUndoRecording closes the undo session and attaches one sub-command
// per recorded layer and shift to parent. undoing parent restores every
// cell touched during the session.
func (cs *CellStorage) StopUndoRecording(parent *Command) {
	if cs.undo == nil {
		cs.logger.Error("undo recording stopped while idle")
		panic("cellstorage: undo recording not active")
	}
	cs.closeUndoSegment()
	steps := cs.undoSteps
	cs.undo = nil
	cs.undoSteps = nil

	var added int
	for _, step := range steps {
		for _, cmd := range step.commands(cs) {
			parent.AddChild(cmd)
			added++
		}
	}
	cs.logger.Debug("undo recording stopped", "steps", len(steps), "commands", added)
}

// IsRecording reports whether an undo session is open
func (cs *CellStorage) IsRecording() bool {
	return cs.undo != nil
}

// closeUndoSegment ends the current run of setter changes
func (cs *CellStorage) closeUndoSegment() {
	if !cs.undo.IsEmpty() {
		cs.undoSteps = append(cs.undoSteps, undoStep{data: cs.undo})
	}
	cs.undo = &UndoData{}
}
