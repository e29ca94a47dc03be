package cellstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref  string
		want Rect
		ok   bool
	}{
		{"B3", NewRect(2, 3, 1, 1), true},
		{"$B$3:$C$4", NewRect(2, 3, 2, 2), true},
		{"A:C", Rect{Left: 1, Top: 1, Right: 3, Bottom: MaxRows}, true},
		{"5:3", Rect{Left: 1, Top: 3, Right: MaxColumns, Bottom: 5}, true},
		{"Totals", Rect{}, false},
		{"A1:B2:C3", Rect{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := parseReference(tt.ref)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDependencyGraphIndexing(t *testing.T) {
	dg := NewDependencyGraph("Sheet1", nil)
	a1 := Point{Col: 1, Row: 1}
	b1 := Point{Col: 2, Row: 1}
	c1 := Point{Col: 3, Row: 1}

	dg.SetFormula(b1, "=A1*2")
	dg.SetFormula(c1, "=SUM(A1:A10)+Sheet2!A1+Sheet1!D4")

	assert.Equal(t, 2, dg.NodeCount())
	assert.Equal(t, []Point{b1, c1}, dg.GetDirectDependents(a1))
	assert.Equal(t, []Point{c1}, dg.GetDirectDependents(Point{Col: 4, Row: 4}))
	assert.Empty(t, dg.GetDirectDependents(Point{Col: 1, Row: 11}))
	assert.Equal(t, []Rect{NewRect(1, 1, 1, 10), NewRect(4, 4, 1, 1)}, dg.GetRangePrecedents(c1))

	f, ok := dg.GetFormula(b1)
	assert.True(t, ok)
	assert.Equal(t, Formula("=A1*2"), f)

	assert.True(t, dg.RemoveNode(b1))
	assert.False(t, dg.RemoveNode(b1))
	assert.Equal(t, []Point{c1}, dg.GetDirectDependents(a1))

	dg.SetFormula(c1, "")
	assert.Equal(t, 0, dg.NodeCount())
	assert.Equal(t, 0, dg.RangeObserverCount())
}

func TestDependencyGraphReduceToProvidingRegion(t *testing.T) {
	dg := NewDependencyGraph("Sheet1", nil)
	dg.SetFormula(Point{Col: 5, Row: 1}, "=SUM(B2:B5)")
	dg.SetFormula(Point{Col: 6, Row: 1}, "=D8")

	reduced := dg.ReduceToProvidingRegion(Region{NewRect(1, 4, 10, 10)})
	assert.Equal(t, Region{NewRect(2, 4, 1, 2), NewRect(4, 8, 1, 1)}, reduced)

	assert.Empty(t, dg.ReduceToProvidingRegion(Region{NewRect(7, 20, 1, 1)}))
}

func TestDependencyGraphFollowsStorage(t *testing.T) {
	rec := &DamageRecorder{}
	dg := NewDependencyGraph("Sheet1", rec)
	cs := New(Options{Damage: dg, Dependencies: dg})
	dg.SetSource(cs)

	cs.SetFormula(3, 1, "=A1+B1")
	assert.Equal(t, []Point{{Col: 3, Row: 1}}, dg.GetDirectDependents(Point{Col: 1, Row: 1}))
	require.Len(t, rec.Damages, 1, "damages are forwarded")

	// the formula moves with the shift, the graph re-reads it. references
	// are not rewritten, it still reads A1.
	cs.InsertRows(1, 2)
	assert.Equal(t, []Point{{Col: 3, Row: 3}}, dg.GetDirectDependents(Point{Col: 1, Row: 1}))
	_, ok := dg.GetFormula(Point{Col: 3, Row: 1})
	assert.False(t, ok)
	f, ok := dg.GetFormula(Point{Col: 3, Row: 3})
	assert.True(t, ok)
	assert.Equal(t, Formula("=A1+B1"), f)

	cs.Take(3, 3)
	assert.Equal(t, 0, dg.NodeCount())
}

func TestDependencyGraphSheetName(t *testing.T) {
	cs := New(Options{})
	dg := NewDependencyGraph("Old", nil)
	dg.SetSource(cs)
	cs.SetFormula(2, 2, "=Old!A1+New!B1")

	assert.Equal(t, []Point{{Col: 2, Row: 2}}, dg.GetDirectDependents(Point{Col: 1, Row: 1}))
	assert.Empty(t, dg.GetDirectDependents(Point{Col: 2, Row: 1}))

	dg.SetSheetName("New")
	assert.Empty(t, dg.GetDirectDependents(Point{Col: 1, Row: 1}))
	assert.Equal(t, []Point{{Col: 2, Row: 2}}, dg.GetDirectDependents(Point{Col: 2, Row: 1}))

	dg.Clear()
	assert.Equal(t, 0, dg.RangeObserverCount())
}
