package cellstorage

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	loading bool
	active  bool
}

func (f *fakeState) IsLoading() bool { return f.loading }
func (f *fakeState) IsActive() bool  { return f.active }

// fakeDependencies pretends formulas read the cells of provides
type fakeDependencies struct {
	provides Region
}

func (f fakeDependencies) ReduceToProvidingRegion(region Region) Region {
	var out Region
	for _, rect := range region {
		out = append(out, f.provides.Intersected(rect)...)
	}
	return out
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRecorded(opts Options) (*CellStorage, *DamageRecorder) {
	rec := &DamageRecorder{}
	opts.Damage = rec
	if opts.Logger == nil {
		opts.Logger = quietLogger
	}
	return New(opts), rec
}

// dump renders every non-empty cell of area, one "B2:v=1,s=bold" string
// per cell, in row-major order
func dump(cs *CellStorage, area Rect) []string {
	var out []string
	for row := area.Top; row <= area.Bottom; row++ {
		for col := area.Left; col <= area.Right; col++ {
			var parts []string
			if v := cs.Value(col, row); v != nil {
				parts = append(parts, fmt.Sprintf("v=%v", v))
			}
			if f := cs.Formula(col, row); f != "" {
				parts = append(parts, "f="+string(f))
			}
			if l := cs.Link(col, row); l != "" {
				parts = append(parts, "l="+l)
			}
			if s := cs.Style(col, row); !s.IsEmpty() {
				parts = append(parts, fmt.Sprintf("s=%+v", s))
			}
			if c := cs.Comment(col, row); c != "" {
				parts = append(parts, "c="+c)
			}
			if cs.DoesMergeCells(col, row) {
				parts = append(parts, fmt.Sprintf("m=%dx%d", cs.MergedXCells(col, row), cs.MergedYCells(col, row)))
			}
			if cs.Locked(col, row) {
				parts = append(parts, "locked")
			}
			if len(parts) > 0 {
				out = append(out, Point{Col: col, Row: row}.String()+":"+strings.Join(parts, ","))
			}
		}
	}
	return out
}

func TestCellStorageLayers(t *testing.T) {
	cs, _ := newRecorded(Options{})
	bold := Style{Bold: true}
	text := NewRichText(TextRun{Text: "rich"})

	cs.SetValue(1, 1, 42)
	cs.SetValue(2, 1, "text")
	cs.SetValue(3, 1, true)
	cs.SetFormula(1, 2, "=A1*2")
	cs.SetLink(2, 2, "https://example.com")
	cs.SetUserInput(3, 2, "42")
	cs.SetRichText(4, 2, text)
	cs.SetComment(mustRegion(t, "A3:B3"), "note")
	cs.SetStyle(mustRegion(t, "A1:C1"), bold)
	cs.SetBinding(mustRegion(t, "D4"), Binding{Source: "chart1"})
	cs.SetNamedArea(mustRegion(t, "E5:E6"), "Totals")

	assert.Equal(t, 42.0, cs.Value(1, 1), "integers are stored as float64")
	assert.Equal(t, "text", cs.Value(2, 1))
	assert.Equal(t, true, cs.Value(3, 1))
	assert.Equal(t, Formula("=A1*2"), cs.Formula(1, 2))
	assert.Equal(t, "https://example.com", cs.Link(2, 2))
	assert.Equal(t, "42", cs.UserInput(3, 2))
	assert.Same(t, text, cs.RichText(4, 2))
	assert.Equal(t, "note", cs.Comment(2, 3))
	assert.Equal(t, bold, cs.Style(3, 1))
	assert.Equal(t, Binding{Source: "chart1"}, cs.Binding(4, 4))
	assert.Equal(t, "Totals", cs.NamedArea(5, 6))
	assert.Equal(t, map[string]Region{"Totals": mustRegion(t, "E5:E6")}, cs.NamedAreas())

	// writing the empty value removes the entry
	cs.SetValue(1, 1, nil)
	cs.SetFormula(1, 2, "")
	cs.SetLink(2, 2, "")
	cs.SetRichText(4, 2, nil)
	cs.SetStyle(mustRegion(t, "A1:C1"), Style{})

	stats := cs.Stats()
	assert.Equal(t, 2, stats.Values)
	assert.Equal(t, 0, stats.Formulas)
	assert.Equal(t, 0, stats.Links)
	assert.Equal(t, 1, stats.UserInputs)
	assert.Equal(t, 0, stats.RichTexts)
	assert.Equal(t, 0, stats.Styles)
	assert.Equal(t, 1, stats.Comments)

	// unsupported dynamic types read as empty
	cs.SetValue(5, 5, struct{}{})
	assert.Nil(t, cs.Value(5, 5))

	// off-grid writes are ignored
	cs.SetValue(0, 1, "x")
	cs.SetValue(1, MaxRows+1, "x")
	assert.Equal(t, 2, cs.Stats().Values)
}

func TestCellStorageDamages(t *testing.T) {
	t.Run("SetFormula", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetFormula(2, 3, "=A1")
		assert.Equal(t, []Damage{{Region: RegionFromPoint(2, 3), Changes: ChangeFormula | ChangeValue}}, rec.Damages)
	})

	t.Run("SetValue", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetValue(1, 1, 3.5)
		assert.Equal(t, []Damage{{Region: RegionFromPoint(1, 1), Changes: ChangeValue | ChangeAppearance}}, rec.Damages)
	})

	t.Run("SetValueInBoundRegion", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetBinding(mustRegion(t, "A1:A5"), Binding{Source: "series"})
		rec.Reset()

		cs.SetValue(1, 3, 1)
		require.Len(t, rec.Damages, 1)
		assert.Equal(t, ChangeValue|ChangeAppearance|ChangeBinding, rec.Damages[0].Changes)
	})

	t.Run("SetValueDuringRecalc", func(t *testing.T) {
		cs, rec := newRecorded(Options{Recalc: &fakeState{active: true}})
		cs.SetValue(1, 1, 1)
		require.Len(t, rec.Damages, 1)
		assert.Equal(t, ChangeAppearance, rec.Damages[0].Changes, "the recalculation already knows the value")
	})

	t.Run("RegionSetters", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		region := mustRegion(t, "A1:B2;D4")
		cs.SetStyle(region, Style{Italic: true})
		cs.SetNamedArea(region, "Input")
		assert.Equal(t, []Damage{
			{Region: region, Changes: ChangeAppearance},
			{Region: region, Changes: ChangeNamedArea},
		}, rec.Damages)
	})

	t.Run("Take", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetValue(1, 1, 1)
		cs.SetFormula(1, 1, "=2-1")
		cs.SetLink(1, 1, "https://example.com")
		rec.Reset()

		cs.Take(1, 1)
		assert.Empty(t, dump(cs, NewRect(1, 1, 1, 1)))
		assert.Equal(t, []Damage{{Region: RegionFromPoint(1, 1), Changes: ChangeFormula | ChangeValue | ChangeAppearance}}, rec.Damages)
	})

	t.Run("Merge", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.MergeCells(1, 1, 1, 1)
		assert.Equal(t, []Damage{{Region: mustRegion(t, "A1:B2"), Changes: ChangeAppearance}}, rec.Damages)
	})

	t.Run("MergeOverExistingMerges", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.MergeCells(1, 1, 1, 1)
		cs.MergeCells(4, 1, 1, 0)
		rec.Reset()

		cs.MergeCells(2, 2, 2, 0)
		assert.Equal(t, []Damage{{Region: mustRegion(t, "A1:B2;B2:D2"), Changes: ChangeAppearance}}, rec.Damages)

		rec.Reset()
		cs.MergeCells(4, 1, 0, 2)
		assert.Equal(t, []Damage{{Region: mustRegion(t, "D1:E1;B2:D2;D1:D3"), Changes: ChangeAppearance}}, rec.Damages,
			"the dissolved merges and the new one share one damage")
	})

	t.Run("LockOverExistingArray", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.LockCells(NewRect(1, 1, 2, 2))
		rec.Reset()

		cs.LockCells(NewRect(2, 2, 2, 2))
		assert.Equal(t, []Damage{{Region: mustRegion(t, "A1:B2;B2:C3"), Changes: ChangeValue | ChangeAppearance}}, rec.Damages)
		assert.False(t, cs.Locked(1, 1))
		assert.True(t, cs.Locked(3, 3))
	})

	t.Run("FormulaRun", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetFormula(1, 1, "=B1")
		cs.SetRowRepeat(1, 1000)
		rec.Reset()

		cs.InsertRows(500, 1)
		formulas := rec.WithChanges(ChangeFormula)
		require.Len(t, formulas, 2, "one damage per stored formula, covering its repeats")
		assert.Equal(t, mustRegion(t, "A500:A1000"), formulas[0].Region)
		assert.Equal(t, mustRegion(t, "A501:A1001"), formulas[1].Region)
	})
}

func TestCellStorageLoadingMode(t *testing.T) {
	state := &fakeState{loading: true}
	cs, rec := newRecorded(Options{Sheet: state})

	cs.SetValue(1, 1, "row")
	cs.SetStyle(mustRegion(t, "A1:C5"), Style{Bold: true})
	cs.SetRowRepeat(1, 5)
	cs.SetStyle(mustRegion(t, "B3"), Style{Italic: true})
	cs.InsertRows(10, 2)

	assert.Empty(t, rec.Damages)
	assert.Equal(t, []RowRun{{First: 1, Count: 5}}, cs.RowRepeats(), "loading never splits runs")
	assert.Equal(t, "row", cs.Value(1, 4))

	state.loading = false
	cs.SetValue(1, 3, "edited")
	assert.Len(t, rec.Damages, 1)
	assert.Equal(t, []RowRun{{First: 1, Count: 2}, {First: 4, Count: 2}}, cs.RowRepeats())
}

func TestCellStorageRowRepeats(t *testing.T) {
	t.Run("SplitLongRun", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetValue(1, 1, "same")
		cs.SetRowRepeat(1, 10000)
		rec.Reset()
		assert.Equal(t, 10000, cs.RowRepeat(7777))

		cs.SetValue(5, 5000, "x")
		assert.Equal(t, []RowRun{{First: 1, Count: 4999}, {First: 5001, Count: 5000}}, cs.RowRepeats())
		assert.Equal(t, 1, cs.RowRepeat(5000))
		assert.Equal(t, 5001, cs.FirstIdenticalRow(9000))

		assert.Equal(t, "x", cs.Value(5, 5000))
		assert.Nil(t, cs.Value(5, 4999))
		assert.Nil(t, cs.Value(5, 5001))
		for _, row := range []int{1, 4999, 5000, 5001, 10000} {
			assert.Equal(t, "same", cs.Value(1, row), "row %d", row)
		}
		assert.Nil(t, cs.Value(1, 10001))
		assert.Equal(t, []Damage{{Region: RegionFromPoint(5, 5000), Changes: ChangeValue | ChangeAppearance}}, rec.Damages)
	})

	t.Run("Identity", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(2, 3, 7)
		cs.SetFormula(3, 3, "=B3+1")
		cs.SetLink(4, 3, "https://example.com")
		cs.SetRowRepeat(3, 4)

		for row := 3; row <= 6; row++ {
			assert.Equal(t, 7.0, cs.Value(2, row))
			assert.Equal(t, Formula("=B3+1"), cs.Formula(3, row))
			assert.Equal(t, "https://example.com", cs.Link(4, row))
		}
		assert.Len(t, cs.FormulasIn(mustRegion(t, "A1:Z100")), 4)
		assert.Equal(t, 6, cs.Rows(false))
		assert.Equal(t, 1, cs.Stats().Values)
	})

	t.Run("RegionSetterSplits", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 1, "v")
		cs.SetRowRepeat(1, 10)
		cs.SetStyle(mustRegion(t, "A5:C5"), Style{Bold: true})
		assert.Equal(t, []RowRun{{First: 1, Count: 4}, {First: 6, Count: 5}}, cs.RowRepeats())
		assert.Equal(t, "v", cs.Value(1, 5))
	})

	t.Run("PartialVerticalShiftKeepsRuns", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 5, "x")
		cs.SetRowRepeat(5, 4)
		cs.RemoveShiftUp(NewRect(2, 1, 1, 1))
		assert.Equal(t, []RowRun{{First: 5, Count: 3}}, cs.RowRepeats())
		for row := 5; row <= 8; row++ {
			assert.Equal(t, "x", cs.Value(1, row))
		}
		assert.Nil(t, cs.Value(1, 9))
	})

	t.Run("LongRunColumnShift", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 1, "v")
		cs.SetValue(2, 1, "w")
		cs.SetRowRepeat(1, 1_000_000)

		cs.InsertShiftDown(NewRect(2, 1, 1, 1))
		assert.Equal(t, []RowRun{{First: 2, Count: 999_999}}, cs.RowRepeats())
		assert.Equal(t, 4, cs.Stats().Values, "only the rows leaving the run are copied")
		assert.Nil(t, cs.Value(2, 1))
		for _, row := range []int{2, 500_000, 1_000_000} {
			assert.Equal(t, "v", cs.Value(1, row), "row %d", row)
			assert.Equal(t, "w", cs.Value(2, row), "row %d", row)
		}
		assert.Nil(t, cs.Value(1, 1_000_001))
		assert.Equal(t, "w", cs.Value(2, 1_000_001))

		cs.RemoveShiftUp(NewRect(2, 1, 1, 1))
		assert.LessOrEqual(t, cs.Stats().Values, 6)
		for _, row := range []int{1, 2, 999_999, 1_000_000} {
			assert.Equal(t, "v", cs.Value(1, row), "row %d", row)
			assert.Equal(t, "w", cs.Value(2, row), "row %d", row)
		}
		assert.Nil(t, cs.Value(2, 1_000_001))
	})

	t.Run("SetRowRepeatKeepsNeighbours", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetValue(1, 1, "a")
		cs.SetRowRepeat(1, 10)
		cs.SetValue(2, 5, "b")
		rec.Reset()

		cs.SetRowRepeat(5, 3)
		assert.Equal(t, []RowRun{{First: 1, Count: 4}, {First: 5, Count: 3}, {First: 8, Count: 3}}, cs.RowRepeats())
		for row := 1; row <= 10; row++ {
			assert.Equal(t, "a", cs.Value(1, row), "row %d", row)
		}
		assert.Equal(t, "b", cs.Value(2, 7))
		assert.Nil(t, cs.Value(2, 8))
		assert.Equal(t, []Damage{{Region: Region{{Left: 1, Top: 6, Right: MaxColumns, Bottom: 7}}, Changes: ChangeFormula | ChangeValue | ChangeAppearance}}, rec.Damages)
	})

	t.Run("RowShiftsMoveRuns", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 5, "x")
		cs.SetRowRepeat(5, 4)
		cs.InsertRows(1, 2)
		assert.Equal(t, []RowRun{{First: 7, Count: 4}}, cs.RowRepeats())
		assert.Equal(t, "x", cs.Value(1, 10))
		assert.Nil(t, cs.Value(1, 5))
	})
}

func TestCellStorageShiftInverse(t *testing.T) {
	build := func() *CellStorage {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 1, "a1")
		cs.SetValue(2, 3, 23)
		cs.SetFormula(3, 4, "=B3")
		cs.SetLink(5, 5, "https://example.com")
		cs.SetStyle(mustRegion(t, "B2:D6"), Style{Bold: true})
		cs.SetComment(mustRegion(t, "E1:E8"), "note")
		cs.MergeCells(6, 9, 1, 1)
		return cs
	}
	area := NewRect(1, 1, 10, 12)
	rect := NewRect(2, 3, 2, 2)

	pairs := []struct {
		name          string
		forward, back func(cs *CellStorage)
	}{
		{"columns", func(cs *CellStorage) { cs.InsertColumns(2, 3) }, func(cs *CellStorage) { cs.RemoveColumns(2, 3) }},
		{"rows", func(cs *CellStorage) { cs.InsertRows(3, 2) }, func(cs *CellStorage) { cs.RemoveRows(3, 2) }},
		{"right", func(cs *CellStorage) { cs.InsertShiftRight(rect) }, func(cs *CellStorage) { cs.RemoveShiftLeft(rect) }},
		{"down", func(cs *CellStorage) { cs.InsertShiftDown(rect) }, func(cs *CellStorage) { cs.RemoveShiftUp(rect) }},
	}
	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			cs := build()
			want := dump(cs, area)
			tt.forward(cs)
			assert.NotEqual(t, want, dump(cs, area))
			tt.back(cs)
			assert.Equal(t, want, dump(cs, area))
		})
	}
}

func TestCellStorageShiftDamages(t *testing.T) {
	t.Run("ProvidingRegion", func(t *testing.T) {
		deps := fakeDependencies{provides: mustRegion(t, "A10;Z1")}
		cs, rec := newRecorded(Options{Dependencies: deps})
		cs.InsertRows(2, 1)

		values := rec.WithChanges(ChangeValue)
		require.Len(t, values, 1)
		assert.Equal(t, mustRegion(t, "A10"), values[0].Region, "only the cells formulas read")

		appearance := rec.WithChanges(ChangeAppearance)
		require.Len(t, appearance, 1)
		assert.Equal(t, Region{{Left: 1, Top: 2, Right: MaxColumns, Bottom: MaxRows}}, appearance[0].Region)
	})

	t.Run("NothingRead", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.InsertColumns(1, 1)
		assert.Empty(t, rec.WithChanges(ChangeValue))
	})

	t.Run("FormulasAtBothPositions", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.SetFormula(3, 5, "=A1")
		cs.SetFormula(3, 1, "=A2")
		rec.Reset()

		cs.InsertRows(3, 1)
		formulas := rec.WithChanges(ChangeFormula)
		require.Len(t, formulas, 2)
		assert.Equal(t, RegionFromPoint(3, 5), formulas[0].Region)
		assert.Equal(t, RegionFromPoint(3, 6), formulas[1].Region)
	})

	t.Run("InvalidShiftIsIgnored", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.InsertRows(0, 1)
		cs.RemoveColumns(1, 0)
		cs.InsertShiftDown(Rect{Left: 1, Top: 1, Right: MaxColumns + 1, Bottom: 1})
		assert.Empty(t, rec.Damages)
	})
}

func TestCellStorageMerge(t *testing.T) {
	cs, _ := newRecorded(Options{})
	cs.MergeCells(2, 2, 2, 1)

	assert.True(t, cs.DoesMergeCells(2, 2))
	assert.False(t, cs.IsPartOfMerged(2, 2))
	assert.True(t, cs.IsPartOfMerged(4, 3))
	assert.False(t, cs.DoesMergeCells(4, 3))
	assert.Equal(t, Point{Col: 2, Row: 2}, cs.MasterCell(4, 3))
	assert.Equal(t, Point{Col: 5, Row: 5}, cs.MasterCell(5, 5))
	assert.Equal(t, 2, cs.MergedXCells(2, 2))
	assert.Equal(t, 1, cs.MergedYCells(2, 2))
	assert.Equal(t, 0, cs.MergedXCells(3, 2))

	// an overlapping merge dissolves the old one
	cs.MergeCells(4, 3, 1, 1)
	assert.False(t, cs.DoesMergeCells(2, 2))
	assert.False(t, cs.IsPartOfMerged(2, 3))
	assert.Equal(t, Region{NewRect(4, 3, 2, 2)}, cs.MergedRegion(mustRegion(t, "A1:J10")))

	// a zero-sized merge only unmerges
	cs.MergeCells(5, 4, 0, 0)
	assert.Empty(t, cs.MergedRegion(mustRegion(t, "A1:J10")))
	assert.Equal(t, 0, cs.Stats().Fusions)
}

func TestCellStorageLockedArrays(t *testing.T) {
	cs, rec := newRecorded(Options{})
	for row := 2; row <= 3; row++ {
		for col := 2; col <= 3; col++ {
			cs.SetValue(col, row, col*row)
		}
	}
	rec.Reset()

	cs.LockCells(NewRect(2, 2, 2, 2))
	assert.True(t, cs.Locked(3, 3))
	assert.False(t, cs.Locked(4, 3))
	rect, ok := cs.LockedCells(3, 2)
	require.True(t, ok)
	assert.Equal(t, NewRect(2, 2, 2, 2), rect)
	assert.Equal(t, []Damage{{Region: Region{rect}, Changes: ChangeValue | ChangeAppearance}}, rec.Damages)

	cs.UnlockCells(3, 3)
	assert.False(t, cs.Locked(2, 2))
	assert.Equal(t, 4.0, cs.Value(2, 2), "the top-left value survives")
	assert.Nil(t, cs.Value(3, 2))
	assert.Nil(t, cs.Value(2, 3))
	assert.Nil(t, cs.Value(3, 3))

	_, ok = cs.LockedCells(3, 3)
	assert.False(t, ok)
}

func TestCellStorageUndo(t *testing.T) {
	t.Run("SetterSession", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 1, "before")
		cs.SetStyle(mustRegion(t, "A1:B2"), Style{Bold: true})
		area := NewRect(1, 1, 6, 6)
		want := dump(cs, area)

		cs.StartUndoRecording()
		assert.True(t, cs.IsRecording())
		cs.SetValue(1, 1, "after")
		cs.SetValue(1, 1, "again")
		cs.SetFormula(2, 2, "=A1")
		cs.SetStyle(mustRegion(t, "B2:C3"), Style{Italic: true})
		cs.SetComment(mustRegion(t, "D4"), "note")
		cs.MergeCells(4, 4, 1, 1)
		cs.Take(1, 1)
		cmd := NewCommand("edit")
		cs.StopUndoRecording(cmd)
		assert.False(t, cs.IsRecording())
		assert.NotEmpty(t, cmd.Children())

		cmd.Undo()
		assert.Equal(t, want, dump(cs, area))
	})

	t.Run("WithShifts", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 1, 1)
		cs.SetValue(1, 2, 2)
		cs.SetValue(1, 3, 3)
		cs.SetFormula(2, 3, "=A3")
		cs.SetStyle(mustRegion(t, "A1:A5"), Style{Bold: true})
		area := NewRect(1, 1, 8, 8)
		want := dump(cs, area)

		cs.StartUndoRecording()
		cs.SetValue(1, 1, 10)
		cs.RemoveRows(2, 1)
		cs.SetValue(1, 2, 30)
		cs.InsertColumns(1, 1)
		cs.SetFormula(3, 3, "=B1")
		cs.InsertShiftDown(NewRect(2, 1, 1, 2))
		cmd := NewCommand("structure")
		cs.StopUndoRecording(cmd)

		cmd.Undo()
		assert.Equal(t, want, dump(cs, area))
	})

	t.Run("LockedArray", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 1, 1)
		cs.SetValue(2, 1, 2)
		cs.LockCells(NewRect(1, 1, 2, 1))
		area := NewRect(1, 1, 3, 3)
		want := dump(cs, area)

		cs.StartUndoRecording()
		cs.UnlockCells(1, 1)
		cmd := NewCommand("unlock")
		cs.StopUndoRecording(cmd)
		assert.NotEqual(t, want, dump(cs, area))

		cmd.Undo()
		assert.Equal(t, want, dump(cs, area))
	})

	t.Run("EmptySession", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.StartUndoRecording()
		cmd := NewCommand("nothing")
		cs.StopUndoRecording(cmd)
		assert.Empty(t, cmd.Children())
	})

	t.Run("Misuse", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		assert.Panics(t, func() { cs.StopUndoRecording(NewCommand("idle")) })
		cs.StartUndoRecording()
		assert.Panics(t, func() { cs.StartUndoRecording() })
	})
}

func TestCellStorageUndoOverRowRepeats(t *testing.T) {
	build := func() *CellStorage {
		cs, _ := newRecorded(Options{})
		cs.SetValue(1, 3, "rep")
		cs.SetValue(2, 3, 7)
		cs.SetRowRepeat(3, 4)
		cs.SetValue(1, 10, "tail")
		return cs
	}
	area := NewRect(1, 1, 4, 14)

	tests := []struct {
		name string
		edit func(cs *CellStorage)
		// setter undo writes cells back without compressing rows again
		splitsRuns bool
	}{
		{name: "remove columns", edit: func(cs *CellStorage) { cs.RemoveColumns(1, 1) }},
		{name: "insert columns", edit: func(cs *CellStorage) { cs.InsertColumns(1, 2) }},
		{name: "insert rows inside the run", edit: func(cs *CellStorage) { cs.InsertRows(5, 2) }},
		{name: "remove rows inside the run", edit: func(cs *CellStorage) { cs.RemoveRows(4, 2) }},
		{name: "remove rows across the run start", edit: func(cs *CellStorage) { cs.RemoveRows(2, 3) }},
		{name: "shift down beside the run", edit: func(cs *CellStorage) { cs.InsertShiftDown(NewRect(2, 1, 1, 1)) }},
		{name: "shift up through the run", edit: func(cs *CellStorage) { cs.RemoveShiftUp(NewRect(1, 2, 1, 2)) }},
		{name: "shift right inside the run", edit: func(cs *CellStorage) { cs.InsertShiftRight(NewRect(1, 4, 1, 1)) }},
		{name: "shift left over the whole run", edit: func(cs *CellStorage) { cs.RemoveShiftLeft(NewRect(1, 3, 1, 4)) }},
		{name: "declare a longer run", edit: func(cs *CellStorage) { cs.SetRowRepeat(2, 8) }},
		{
			name: "edit then remove columns",
			edit: func(cs *CellStorage) {
				cs.SetValue(2, 5, "x")
				cs.RemoveColumns(2, 1)
			},
			splitsRuns: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := build()
			want := dump(cs, area)
			wantRuns := cs.RowRepeats()

			cs.StartUndoRecording()
			tt.edit(cs)
			cmd := NewCommand(tt.name)
			cs.StopUndoRecording(cmd)
			assert.NotEqual(t, want, dump(cs, area))

			cmd.Undo()
			assert.Equal(t, want, dump(cs, area))
			if !tt.splitsRuns {
				assert.Equal(t, wantRuns, cs.RowRepeats())
			}
		})
	}
}

func TestCellStorageStraddlingMerges(t *testing.T) {
	all := Region{NewRect(1, 1, 10, 10)}

	t.Run("ShiftRightAndBack", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.MergeCells(2, 2, 1, 1)
		cs.InsertShiftRight(NewRect(1, 2, 1, 1))
		assert.Empty(t, cs.MergedRegion(all), "half a merge cannot move")
		cs.RemoveShiftLeft(NewRect(1, 2, 1, 1))
		assert.Empty(t, cs.MergedRegion(all))
		for row := 1; row <= 4; row++ {
			for col := 1; col <= 5; col++ {
				assert.False(t, cs.DoesMergeCells(col, row), "%s", Point{Col: col, Row: row})
			}
		}
	})

	t.Run("MergeInsideTheBandMoves", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.MergeCells(2, 2, 1, 0)
		cs.InsertShiftRight(NewRect(1, 2, 1, 1))
		assert.True(t, cs.DoesMergeCells(3, 2))
		assert.Equal(t, 1, cs.MergedXCells(3, 2))
		assert.Equal(t, Region{NewRect(3, 2, 2, 1)}, cs.MergedRegion(all))
	})

	t.Run("ShiftDownDamagesTheDissolvedMerge", func(t *testing.T) {
		cs, rec := newRecorded(Options{})
		cs.MergeCells(1, 5, 2, 0)
		rec.Reset()

		cs.InsertShiftDown(NewRect(2, 1, 1, 1))
		assert.Empty(t, cs.MergedRegion(all))
		appearance := rec.WithChanges(ChangeAppearance)
		require.Len(t, appearance, 1)
		assert.Contains(t, appearance[0].Region, NewRect(1, 5, 3, 1))
	})

	t.Run("LockedArray", func(t *testing.T) {
		cs, _ := newRecorded(Options{})
		cs.SetValue(2, 2, 1)
		cs.LockCells(NewRect(2, 2, 2, 2))
		cs.RemoveShiftLeft(NewRect(1, 3, 1, 1))
		assert.False(t, cs.Locked(2, 2))
		assert.False(t, cs.Locked(2, 3))
		assert.Equal(t, 1.0, cs.Value(2, 2))
	})

	undoCases := []struct {
		name string
		edit func(cs *CellStorage)
	}{
		{"insert right", func(cs *CellStorage) { cs.InsertShiftRight(NewRect(1, 3, 1, 1)) }},
		{"remove left", func(cs *CellStorage) { cs.RemoveShiftLeft(NewRect(1, 2, 1, 1)) }},
		{"insert down", func(cs *CellStorage) { cs.InsertShiftDown(NewRect(3, 1, 1, 1)) }},
		{"remove up", func(cs *CellStorage) { cs.RemoveShiftUp(NewRect(2, 1, 1, 1)) }},
	}
	for _, tt := range undoCases {
		t.Run("Undo "+tt.name, func(t *testing.T) {
			cs, _ := newRecorded(Options{})
			cs.SetValue(2, 2, "master")
			cs.SetValue(4, 4, "d4")
			cs.MergeCells(2, 2, 1, 1)
			cs.LockCells(NewRect(4, 4, 2, 1))
			area := NewRect(1, 1, 8, 8)
			want := dump(cs, area)

			cs.StartUndoRecording()
			tt.edit(cs)
			cmd := NewCommand(tt.name)
			cs.StopUndoRecording(cmd)
			assert.Empty(t, cs.MergedRegion(all))

			cmd.Undo()
			assert.Equal(t, want, dump(cs, area))
		})
	}
}

func TestCellStorageTraversal(t *testing.T) {
	cs, _ := newRecorded(Options{})
	cs.SetValue(2, 2, "b2")
	cs.SetFormula(5, 2, "=B2")
	cs.SetStyle(mustRegion(t, "C2"), Style{Bold: true})
	cs.SetValue(2, 10, "b10")
	cs.SetRowRepeat(10, 5)

	t.Run("Row", func(t *testing.T) {
		assert.Equal(t, 2, cs.FirstInRow(2, VisitContentOnly))
		assert.Equal(t, 5, cs.NextInRow(2, 2, VisitContentOnly))
		assert.Equal(t, 3, cs.NextInRow(2, 2, VisitAll))
		assert.Equal(t, 0, cs.NextInRow(5, 2, VisitAll))
		assert.Equal(t, 5, cs.LastInRow(2, VisitContentOnly))
		assert.Equal(t, 2, cs.PrevInRow(5, 2, VisitContentOnly))
		assert.Equal(t, 3, cs.PrevInRow(5, 2, VisitAll))
		assert.Equal(t, 2, cs.FirstInRow(12, VisitContentOnly), "repeated rows share the content")
		assert.Equal(t, 0, cs.FirstInRow(3, VisitAll))
	})

	t.Run("Column", func(t *testing.T) {
		assert.Equal(t, 2, cs.FirstInColumn(2, VisitContentOnly))
		assert.Equal(t, 10, cs.NextInColumn(2, 2, VisitContentOnly))
		assert.Equal(t, 11, cs.NextInColumn(2, 10, VisitContentOnly))
		assert.Equal(t, 14, cs.LastInColumn(2, VisitContentOnly))
		assert.Equal(t, 0, cs.NextInColumn(2, 14, VisitContentOnly))
		assert.Equal(t, 13, cs.PrevInColumn(2, 14, VisitContentOnly))
		assert.Equal(t, 2, cs.PrevInColumn(2, 10, VisitContentOnly))
		assert.Equal(t, 0, cs.FirstInColumn(3, VisitContentOnly))
		assert.Equal(t, 2, cs.FirstInColumn(3, VisitAll))
	})
}

func TestCellStorageUsedArea(t *testing.T) {
	cs, _ := newRecorded(Options{})
	assert.True(t, cs.UsedArea(true).IsEmpty())

	cs.SetValue(3, 4, "x")
	cs.SetStyle(mustRegion(t, "F2:F9"), Style{Bold: true})
	assert.Equal(t, Rect{Left: 1, Top: 1, Right: 3, Bottom: 4}, cs.UsedArea(false))
	assert.Equal(t, Rect{Left: 1, Top: 1, Right: 6, Bottom: 9}, cs.UsedArea(true))

	cs.SetRowRepeat(4, 3)
	assert.Equal(t, 6, cs.Rows(false))
	assert.Equal(t, 1, cs.Stats().RowRepeats)
}

func TestCellStorageSubStorage(t *testing.T) {
	cs, _ := newRecorded(Options{})
	cs.SetValue(2, 2, "b2")
	cs.SetValue(3, 3, "r")
	cs.SetRowRepeat(3, 3)
	cs.SetStyle(mustRegion(t, "B2:B3"), Style{Bold: true})
	cs.SetValue(9, 9, "outside")

	sub := cs.SubStorage(mustRegion(t, "B2:C4"))
	assert.Equal(t, "b2", sub.Value(1, 1))
	assert.Equal(t, "r", sub.Value(2, 2))
	assert.Equal(t, "r", sub.Value(2, 3), "repeated rows are materialized")
	assert.Empty(t, sub.RowRepeats())
	assert.Equal(t, Style{Bold: true}, sub.Style(1, 2))
	assert.Equal(t, 3, sub.Stats().Values)

	assert.Equal(t, 0, cs.SubStorage(Region{}).Stats().Values)
}

func TestCellStorageClone(t *testing.T) {
	cs, rec := newRecorded(Options{})
	cs.SetValue(1, 1, "original")
	cs.SetRowRepeat(1, 3)
	cs.MergeCells(3, 3, 1, 0)
	rec.Reset()

	clone := cs.Clone()
	assert.Equal(t, dump(cs, NewRect(1, 1, 5, 5)), dump(clone, NewRect(1, 1, 5, 5)))

	clone.SetValue(1, 2, "changed")
	clone.MergeCells(3, 3, 0, 0)
	assert.Equal(t, "original", cs.Value(1, 2))
	assert.True(t, cs.DoesMergeCells(3, 3))
	assert.Equal(t, []RowRun{{First: 1, Count: 2}}, cs.RowRepeats(), "the merge split the run at row 3")
	assert.Empty(t, rec.Damages, "a clone has no collaborators")
}

func TestCellStorageLayersShareLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cs := New(Options{Logger: logger})
	cs.SetValue(1, 1, "v")
	cs.SetStyle(mustRegion(t, "A1:B2"), Style{Bold: true})

	for name, storage := range map[string]*CellStorage{
		"new":   cs,
		"clone": cs.Clone(),
		"sub":   cs.SubStorage(mustRegion(t, "A1:C3")),
	} {
		assert.Same(t, logger, storage.values.logger, name)
		assert.Same(t, logger, storage.formulas.logger, name)
		assert.Same(t, logger, storage.styles.logger, name)
		assert.Same(t, logger, storage.fusions.logger, name)
	}

	ps := NewPointStorage[string]()
	assert.Same(t, slog.Default(), ps.logger)
	ps.SetLogger(nil)
	assert.Same(t, slog.Default(), ps.logger, "a nil logger is ignored")
}
