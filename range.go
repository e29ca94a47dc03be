package cellstorage

import (
	"iter"
	"sort"
)

// NamedAreaRef is a named area together with the sheet defining it
type NamedAreaRef struct {
	Name   string
	Sheet  string
	Region Region
}

// NamedArea looks up a named area on any sheet
func (m *Map) NamedArea(name string) (NamedAreaRef, bool) {
	for _, sheet := range m.Sheets() {
		if region, ok := sheet.cells.NamedAreas()[name]; ok {
			return NamedAreaRef{Name: name, Sheet: sheet.name, Region: region}, true
		}
	}
	return NamedAreaRef{}, false
}

// DoesNamedAreaExist checks if a named area is defined on any sheet
func (m *Map) DoesNamedAreaExist(name string) bool {
	_, ok := m.NamedArea(name)
	return ok
}

// ListNamedAreas returns the names of all named areas, sorted
func (m *Map) ListNamedAreas() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, sheet := range m.Sheets() {
		for name := range sheet.cells.NamedAreas() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DefineNamedArea names the region at address, e.g. "Sheet1!A1:B4"
func (m *Map) DefineNamedArea(name, address string) error {
	if name == "" {
		return NewApplicationError(InvalidArgument, "Named area name must not be empty")
	}
	if m.DoesNamedAreaExist(name) {
		return NewApplicationError(AlreadyExists, "Named area already exists")
	}
	sheet, region, err := m.ResolveRegion(address)
	if err != nil {
		return err
	}
	sheet.cells.SetNamedArea(region, name)
	return nil
}

// RemoveNamedArea removes a named area
func (m *Map) RemoveNamedArea(name string) error {
	area, ok := m.NamedArea(name)
	if !ok {
		return NewApplicationError(NotFound, "Named area not found")
	}
	sheet, _ := m.sheets.GetSheetByName(area.Sheet)
	sheet.cells.SetNamedArea(area.Region, "")
	return nil
}

// RenameNamedArea gives a named area a new name, keeping its region
func (m *Map) RenameNamedArea(oldName, newName string) error {
	area, ok := m.NamedArea(oldName)
	if !ok {
		return NewApplicationError(NotFound, "Named area not found")
	}
	if m.DoesNamedAreaExist(newName) {
		return NewApplicationError(AlreadyExists, "Named area already exists")
	}
	sheet, _ := m.sheets.GetSheetByName(area.Sheet)
	sheet.cells.SetNamedArea(area.Region, newName)
	return nil
}

// Values returns an iterator over the non-empty values inside region in
// row-major order, repeated rows included
func (s *Sheet) Values(region Region) iter.Seq2[Point, Value] {
	return func(yield func(Point, Value) bool) {
		entries := logicalEntries(s.cells, s.cells.values, clipRegion(region))
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i].Point, entries[j].Point
			if a.Row != b.Row {
				return a.Row < b.Row
			}
			return a.Col < b.Col
		})
		for _, e := range entries {
			if !yield(e.Point, e.Value) {
				return
			}
		}
	}
}

// Formulas returns an iterator over the formula cells inside region in
// row-major order
func (s *Sheet) Formulas(region Region) iter.Seq2[Point, Formula] {
	return func(yield func(Point, Formula) bool) {
		entries := s.cells.FormulasIn(clipRegion(region))
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i].Point, entries[j].Point
			if a.Row != b.Row {
				return a.Row < b.Row
			}
			return a.Col < b.Col
		})
		for _, e := range entries {
			if !yield(e.Point, e.Value) {
				return
			}
		}
	}
}
