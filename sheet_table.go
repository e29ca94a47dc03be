package cellstorage

import "sort"

// SheetTable maps sheet names to IDs. a name is either defined, backed by a
// Sheet, or only referenced by formulas of other sheets. IDs survive
// renames.
type SheetTable struct {
	nameToID map[string]uint32
	idToName map[uint32]string

	defined    map[uint32]*Sheet   // ID -> sheet for defined names
	undefined  map[uint32]struct{} // referenced but not defined
	references map[uint32]int      // ID -> formula references
	nextID     uint32
}

// NewSheetTable creates an empty table
func NewSheetTable() *SheetTable {
	return &SheetTable{
		nameToID:   make(map[string]uint32),
		idToName:   make(map[uint32]string),
		defined:    make(map[uint32]*Sheet),
		undefined:  make(map[uint32]struct{}),
		references: make(map[uint32]int),
		nextID:     1, // 0 is "no sheet"
	}
}

func (st *SheetTable) add(name string) uint32 {
	id := st.nextID
	st.nameToID[name] = id
	st.idToName[id] = name
	st.nextID++
	return id
}

// InternSheet records a reference to name, defined or not, and returns
// its ID
func (st *SheetTable) InternSheet(name string) uint32 {
	id, exists := st.nameToID[name]
	if !exists {
		id = st.add(name)
		st.undefined[id] = struct{}{}
	}
	st.references[id]++
	return id
}

// DefineSheet attaches sheet to name and returns its ID. a referenced
// name keeps the ID formulas already resolved.
func (st *SheetTable) DefineSheet(name string, sheet *Sheet) uint32 {
	id, exists := st.nameToID[name]
	if !exists {
		id = st.add(name)
	}
	st.defined[id] = sheet
	delete(st.undefined, id)
	if sheet != nil {
		sheet.id = id
		sheet.name = name
	}
	return id
}

// UndefineSheet detaches the sheet from name. a name still referenced by
// formulas stays known as undefined. returns true if the name was removed
// completely.
func (st *SheetTable) UndefineSheet(name string) bool {
	id, exists := st.nameToID[name]
	if !exists {
		return false
	}
	delete(st.defined, id)
	if st.references[id] > 0 {
		st.undefined[id] = struct{}{}
		return false
	}
	st.remove(id)
	return true
}

// RenameSheet moves a defined sheet to a new name, keeping its ID. the
// new name must not be known yet.
func (st *SheetTable) RenameSheet(oldName, newName string) bool {
	id, exists := st.nameToID[oldName]
	if !exists {
		return false
	}
	if _, taken := st.nameToID[newName]; taken {
		return false
	}
	delete(st.nameToID, oldName)
	st.nameToID[newName] = id
	st.idToName[id] = newName
	if sheet := st.defined[id]; sheet != nil {
		sheet.name = newName
	}
	return true
}

func (st *SheetTable) remove(id uint32) {
	delete(st.nameToID, st.idToName[id])
	delete(st.idToName, id)
	delete(st.defined, id)
	delete(st.undefined, id)
	delete(st.references, id)
}

// RemoveReference drops one formula reference. an undefined name without
// references left is forgotten.
func (st *SheetTable) RemoveReference(id uint32) bool {
	if _, exists := st.idToName[id]; !exists {
		return false
	}
	st.references[id]--
	if st.references[id] > 0 {
		return false
	}
	st.references[id] = 0
	if _, isUndefined := st.undefined[id]; isUndefined {
		st.remove(id)
		return true
	}
	return false
}

// GetSheet returns the sheet defined under id
func (st *SheetTable) GetSheet(id uint32) (*Sheet, bool) {
	sheet, exists := st.defined[id]
	return sheet, exists
}

// GetSheetByName returns the sheet defined under name
func (st *SheetTable) GetSheetByName(name string) (*Sheet, bool) {
	id, exists := st.nameToID[name]
	if !exists {
		return nil, false
	}
	return st.GetSheet(id)
}

func (st *SheetTable) GetSheetID(name string) (uint32, bool) {
	id, exists := st.nameToID[name]
	return id, exists
}

func (st *SheetTable) GetSheetName(id uint32) (string, bool) {
	name, exists := st.idToName[id]
	return name, exists
}

// IsSheetDefined checks if a sheet has a definition
func (st *SheetTable) IsSheetDefined(id uint32) bool {
	_, exists := st.defined[id]
	return exists
}

// Contains checks if a name is known, defined or not
func (st *SheetTable) Contains(name string) bool {
	_, exists := st.nameToID[name]
	return exists
}

func (st *SheetTable) GetReferenceCount(id uint32) int {
	return st.references[id]
}

// DefinedSheets returns the defined sheets in creation order
func (st *SheetTable) DefinedSheets() []*Sheet {
	ids := make([]uint32, 0, len(st.defined))
	for id := range st.defined {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sheets := make([]*Sheet, 0, len(ids))
	for _, id := range ids {
		sheets = append(sheets, st.defined[id])
	}
	return sheets
}

// UndefinedSheets returns the names referenced by formulas without a
// sheet behind them, sorted
func (st *SheetTable) UndefinedSheets() []string {
	names := make([]string, 0, len(st.undefined))
	for id := range st.undefined {
		names = append(names, st.idToName[id])
	}
	sort.Strings(names)
	return names
}

// Count returns the number of known names, defined or not
func (st *SheetTable) Count() int {
	return len(st.nameToID)
}

func (st *SheetTable) CountDefined() int {
	return len(st.defined)
}

// Clear forgets every name
func (st *SheetTable) Clear() {
	st.nameToID = make(map[string]uint32)
	st.idToName = make(map[uint32]string)
	st.defined = make(map[uint32]*Sheet)
	st.undefined = make(map[uint32]struct{})
	st.references = make(map[uint32]int)
}
