package cellstorage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/efp"
)

// AppErrorCode represents gRPC-style error codes for document-level errors.
// codes that make no sense for an in-memory document are skipped.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates the caller specified an invalid argument,
	// a malformed cell address for instance.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., sheet or named area)
	// was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// document is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9
)

// AppError represents errors at the document level (not cell errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// MapOptions configures a Map
type MapOptions struct {
	// Damage returns the sink receiving the damages of the named sheet.
	// nil discards them.
	Damage func(sheet string) DamageSink
	Logger *slog.Logger
}

// recalcManager counts nested recalculation passes
type recalcManager struct {
	depth int
}

func (r *recalcManager) IsActive() bool { return r.depth > 0 }

// Map is a document: a set of named sheets sharing the loading and
// recalculation state
type Map struct {
	sheets  *SheetTable
	opts    MapOptions
	logger  *slog.Logger
	loading bool
	recalc  *recalcManager
}

// Sheet is one page of a Map. it owns exactly one CellStorage and the
// dependency graph indexing its formulas.
type Sheet struct {
	id    uint32
	name  string
	doc   *Map
	cells *CellStorage
	graph *DependencyGraph

	// sheet-table references held by formulas, per formula cell
	references map[Point][]uint32
}

// NewMap creates an empty document
func NewMap(opts MapOptions) *Map {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Map{
		sheets: NewSheetTable(),
		opts:   opts,
		logger: opts.Logger,
		recalc: &recalcManager{},
	}
}

func (s *Sheet) ID() uint32 { return s.id }
func (s *Sheet) Name() string { return s.name }
func (s *Sheet) Cells() *CellStorage { return s.cells }
func (s *Sheet) Dependencies() *DependencyGraph { return s.graph }

// IsLoading reports whether the document is being loaded
func (s *Sheet) IsLoading() bool { return s.doc.loading }

// AddSheet adds a new, empty sheet
func (m *Map) AddSheet(name string) (*Sheet, error) {
	if name == "" {
		return nil, NewApplicationError(InvalidArgument, "Sheet name must not be empty")
	}
	if sheet, exists := m.sheets.GetSheetByName(name); exists && sheet != nil {
		return nil, NewApplicationError(AlreadyExists, "Sheet already exists")
	}

	sheet := &Sheet{doc: m, references: make(map[Point][]uint32)}
	var sink DamageSink = discardDamage{}
	if m.opts.Damage != nil {
		sink = m.opts.Damage(name)
	}
	sheet.graph = NewDependencyGraph(name, sink)
	sheet.cells = New(Options{
		Damage:       sheet.graph,
		Dependencies: sheet.graph,
		Sheet:        sheet,
		Recalc:       m.recalc,
		Logger:       m.logger.With("sheet", name),
	})
	sheet.graph.SetSource(sheet.cells)
	m.sheets.DefineSheet(name, sheet)
	m.logger.Debug("sheet added", "sheet", name, "id", sheet.id)
	return sheet, nil
}

// RemoveSheet removes a sheet and everything stored on it
func (m *Map) RemoveSheet(name string) error {
	sheet, exists := m.sheets.GetSheetByName(name)
	if !exists {
		return NewApplicationError(NotFound, "Sheet not found")
	}
	for _, ids := range sheet.references {
		for _, id := range ids {
			m.sheets.RemoveReference(id)
		}
	}
	sheet.graph.Clear()
	m.sheets.UndefineSheet(name)
	m.logger.Debug("sheet removed", "sheet", name)
	return nil
}

// RenameSheet renames a sheet
func (m *Map) RenameSheet(oldName, newName string) error {
	sheet, exists := m.sheets.GetSheetByName(oldName)
	if !exists {
		return NewApplicationError(NotFound, "Sheet not found")
	}
	if m.sheets.Contains(newName) {
		return NewApplicationError(AlreadyExists, "Sheet name already exists")
	}
	m.sheets.RenameSheet(oldName, newName)
	sheet.graph.SetSheetName(newName)
	return nil
}

// Sheet returns the sheet called name
func (m *Map) Sheet(name string) (*Sheet, bool) {
	return m.sheets.GetSheetByName(name)
}

// Sheets returns all sheets in creation order
func (m *Map) Sheets() []*Sheet {
	return m.sheets.DefinedSheets()
}

// DoesSheetExist checks if a sheet is defined
func (m *Map) DoesSheetExist(name string) bool {
	id, exists := m.sheets.GetSheetID(name)
	return exists && m.sheets.IsSheetDefined(id)
}

// ListReferencedSheets returns sheet names used by formulas that no sheet
// is defined for
func (m *Map) ListReferencedSheets() []string {
	return m.sheets.UndefinedSheets()
}

// SetLoading switches loading mode on or off. while loading, storages emit
// no damage and do not split row repeats; the caller recalculates
// everything afterwards.
func (m *Map) SetLoading(loading bool) {
	if m.loading == loading {
		return
	}
	m.loading = loading
	if !loading {
		// formulas written while loading emitted no damage
		for _, sheet := range m.Sheets() {
			sheet.graph.SetSource(sheet.cells)
		}
	}
	m.logger.Debug("loading mode changed", "loading", loading)
}

// IsLoading reports whether the document is being loaded
func (m *Map) IsLoading() bool {
	return m.loading
}

// BeginRecalc marks the start of a recalculation pass. passes nest.
func (m *Map) BeginRecalc() {
	m.recalc.depth++
}

// EndRecalc marks the end of a recalculation pass
func (m *Map) EndRecalc() error {
	if m.recalc.depth == 0 {
		return NewApplicationError(FailedPrecondition, "No recalculation in progress")
	}
	m.recalc.depth--
	return nil
}

// IsRecalculating reports whether a recalculation pass is running
func (m *Map) IsRecalculating() bool {
	return m.recalc.IsActive()
}

// splitAddress separates "Sheet1!B3" into sheet name and reference. the
// sheet name may be quoted.
func splitAddress(address string) (sheet, ref string) {
	idx := strings.LastIndex(address, "!")
	if idx < 0 {
		return "", address
	}
	return strings.Trim(address[:idx], "'"), address[idx+1:]
}

// resolveSheet finds the sheet an address refers to. an unqualified
// address refers to the first sheet.
func (m *Map) resolveSheet(name string) (*Sheet, error) {
	if name == "" {
		sheets := m.Sheets()
		if len(sheets) == 0 {
			return nil, NewApplicationError(NotFound, "Document has no sheets")
		}
		return sheets[0], nil
	}
	sheet, exists := m.sheets.GetSheetByName(name)
	if !exists {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("Sheet %q not found", name))
	}
	return sheet, nil
}

// Resolve parses a cell address such as "B3", "Sheet2!B3" or the name of
// a named area, which resolves to the area's top-left cell
func (m *Map) Resolve(address string) (*Sheet, Point, error) {
	sheet, region, err := m.ResolveRegion(address)
	if err != nil {
		return nil, Point{}, err
	}
	return sheet, region.BoundingRect().TopLeft(), nil
}

// ResolveRegion parses a region address such as "A1:C3", "Sheet2!A1:B2;D4"
// or the name of a named area
func (m *Map) ResolveRegion(address string) (*Sheet, Region, error) {
	name, ref := splitAddress(address)
	if name == "" {
		if area, ok := m.NamedArea(ref); ok {
			sheet, _ := m.sheets.GetSheetByName(area.Sheet)
			return sheet, area.Region, nil
		}
	}
	sheet, err := m.resolveSheet(name)
	if err != nil {
		return nil, nil, err
	}
	region, err := ParseRegion(ref)
	if err != nil {
		return nil, nil, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %v", err))
	}
	return sheet, region, nil
}

// Get retrieves the value of a cell
func (m *Map) Get(address string) (Value, error) {
	sheet, p, err := m.Resolve(address)
	if err != nil {
		return nil, err
	}
	return sheet.cells.Value(p.Col, p.Row), nil
}

// Set stores a value in a cell. strings starting with "=" are stored as
// formulas, replacing the value.
func (m *Map) Set(address string, value Value) error {
	sheet, p, err := m.Resolve(address)
	if err != nil {
		return err
	}
	if str, ok := value.(string); ok && len(str) > 1 && str[0] == '=' {
		sheet.SetFormula(p, Formula(str))
		sheet.cells.SetValue(p.Col, p.Row, nil)
		return nil
	}
	sheet.SetFormula(p, "")
	sheet.cells.SetValue(p.Col, p.Row, value)
	return nil
}

// Remove clears the content of a cell
func (m *Map) Remove(address string) error {
	sheet, p, err := m.Resolve(address)
	if err != nil {
		return err
	}
	sheet.releaseReferences(p)
	sheet.cells.Take(p.Col, p.Row)
	return nil
}

// SetFormula stores a formula and records the other sheets it reads from,
// so that missing ones show up in ListReferencedSheets
func (s *Sheet) SetFormula(p Point, formula Formula) {
	s.releaseReferences(p)
	s.cells.SetFormula(p.Col, p.Row, formula)
	for _, name := range otherSheetReferences(formula, s.name) {
		s.references[p] = append(s.references[p], s.doc.sheets.InternSheet(name))
	}
}

func (s *Sheet) releaseReferences(p Point) {
	for _, id := range s.references[p] {
		s.doc.sheets.RemoveReference(id)
	}
	delete(s.references, p)
}

// otherSheetReferences returns the names of the sheets, other than own,
// that a formula reads from
func otherSheetReferences(formula Formula, own string) []string {
	seen := make(map[string]struct{})
	var names []string
	ps := efp.ExcelParser()
	for _, token := range ps.Parse(strings.TrimPrefix(string(formula), "=")) {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}
		name, _ := splitAddress(token.TValue)
		if name == "" || name == own {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
