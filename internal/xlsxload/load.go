// Package xlsxload fills cell storages from xlsx workbooks.
package xlsxload

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/cellstorage"
)

// ErrFileNotFound indicates the input file does not exist.
var ErrFileNotFound = errors.New("file not found")

// LoadError represents an error while reading one part of a sheet.
type LoadError struct {
	SheetName string
	Component string // "cells", "merges", "comments", "links"
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load error in sheet %q (%s): %v", e.SheetName, e.Component, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Options configures loading.
type Options struct {
	// Sheets restricts loading to the named sheets. empty loads all.
	Sheets []string
	// CompressRows stores runs of identical rows once, as row repeats.
	CompressRows bool
}

// DefaultOptions returns the default loading options.
func DefaultOptions() Options {
	return Options{CompressRows: true}
}

func (o Options) wants(sheet string) bool {
	if len(o.Sheets) == 0 {
		return true
	}
	for _, name := range o.Sheets {
		if name == sheet {
			return true
		}
	}
	return false
}

// LoadFile opens the workbook at path and loads it into doc.
func LoadFile(path string, doc *cellstorage.Map, opts Options) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return Load(f, doc, opts)
}

// Load copies the sheets of f into doc. the document is in loading mode
// for the duration, so no damage is emitted.
func Load(f *excelize.File, doc *cellstorage.Map, opts Options) error {
	doc.SetLoading(true)
	defer doc.SetLoading(false)

	for _, name := range f.GetSheetList() {
		if !opts.wants(name) {
			continue
		}
		sheet, err := doc.AddSheet(name)
		if err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
		if err := loadSheet(f, name, sheet, opts); err != nil {
			return err
		}
	}
	return nil
}

func loadSheet(f *excelize.File, name string, sheet *cellstorage.Sheet, opts Options) error {
	cells := sheet.Cells()
	merges, err := f.GetMergeCells(name)
	if err != nil {
		return &LoadError{SheetName: name, Component: "merges", Err: err}
	}
	comments, err := f.GetComments(name)
	if err != nil {
		return &LoadError{SheetName: name, Component: "comments", Err: err}
	}

	// rows touched by region content never join a run
	pinned := make(map[int]struct{})
	for _, mc := range merges {
		rect, err := cellstorage.ParseRect(mc.GetStartAxis() + ":" + mc.GetEndAxis())
		if err != nil {
			return &LoadError{SheetName: name, Component: "merges", Err: err}
		}
		cells.MergeCells(rect.Left, rect.Top, rect.Width()-1, rect.Height()-1)
		for row := rect.Top; row <= rect.Bottom; row++ {
			pinned[row] = struct{}{}
		}
	}
	for _, c := range comments {
		p, err := cellstorage.ParsePoint(c.Cell)
		if err != nil {
			return &LoadError{SheetName: name, Component: "comments", Err: err}
		}
		cells.SetComment(cellstorage.RegionFromPoint(p.Col, p.Row), commentText(c))
		pinned[p.Row] = struct{}{}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return &LoadError{SheetName: name, Component: "cells", Err: err}
	}

	var run struct {
		first int
		key   string
	}
	flush := func(next int) {
		if run.first > 0 && next-run.first > 1 {
			cells.SetRowRepeat(run.first, next-run.first)
		}
		run.first = 0
	}

	for rowIdx, row := range rows {
		rowNum := rowIdx + 1
		key, plain, err := loadRow(f, name, rowNum, row, sheet)
		if err != nil {
			return err
		}
		if !opts.CompressRows {
			continue
		}
		if _, isPinned := pinned[rowNum]; isPinned || !plain || key == "" {
			flush(rowNum)
			continue
		}
		if run.first > 0 && key == run.key {
			// SetRowRepeat drops the copy once the run ends
			continue
		}
		flush(rowNum)
		run.first, run.key = rowNum, key
	}
	flush(len(rows) + 1)
	return nil
}

// loadRow writes one row and returns a key identifying its content. plain
// is false when the row holds formulas or links, which are never repeated.
func loadRow(f *excelize.File, sheet string, rowNum int, row []string, dst *cellstorage.Sheet) (string, bool, error) {
	cells := dst.Cells()
	plain := true
	var key strings.Builder
	for colIdx, raw := range row {
		col := colIdx + 1
		cellName, err := excelize.CoordinatesToCellName(col, rowNum)
		if err != nil {
			return "", false, &LoadError{SheetName: sheet, Component: "cells", Err: err}
		}
		formula, err := f.GetCellFormula(sheet, cellName)
		if err != nil {
			return "", false, &LoadError{SheetName: sheet, Component: "cells", Err: err}
		}
		if formula != "" {
			dst.SetFormula(cellstorage.Point{Col: col, Row: rowNum}, cellstorage.Formula("="+formula))
			plain = false
		}
		hasLink, target, err := f.GetCellHyperLink(sheet, cellName)
		if err != nil {
			return "", false, &LoadError{SheetName: sheet, Component: "links", Err: err}
		}
		if hasLink && target != "" {
			cells.SetLink(col, rowNum, target)
			plain = false
		}
		if raw == "" {
			key.WriteString("\x00")
			continue
		}
		cellType, err := f.GetCellType(sheet, cellName)
		if err != nil {
			return "", false, &LoadError{SheetName: sheet, Component: "cells", Err: err}
		}
		cells.SetValue(col, rowNum, parseValue(raw, cellType))
		cells.SetUserInput(col, rowNum, raw)
		// "1" typed as text and 1 typed as a number read alike
		fmt.Fprintf(&key, "%d:%s\x00", cellType, raw)
	}
	return key.String(), plain, nil
}

// parseValue converts the formatted cell text to a typed value
func parseValue(s string, cellType excelize.CellType) cellstorage.Value {
	switch cellType {
	case excelize.CellTypeBool:
		return s == "TRUE" || s == "1"
	case excelize.CellTypeError:
		if code, ok := cellstorage.ParseErrorCode(s); ok {
			return cellstorage.NewCellError(code, s)
		}
	case excelize.CellTypeInlineString, excelize.CellTypeSharedString:
		return s
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

func commentText(c excelize.Comment) string {
	if c.Text != "" {
		return c.Text
	}
	var b strings.Builder
	for _, run := range c.Paragraph {
		b.WriteString(run.Text)
	}
	return b.String()
}
