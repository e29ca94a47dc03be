package cellstorage

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestChangesString(t *testing.T) {
	assert.Equal(t, "none", Changes(0).String())
	assert.Equal(t, "formula|value", (ChangeFormula | ChangeValue).String())
	assert.Equal(t, "appearance|named_area", (ChangeNamedArea | ChangeAppearance).String())

	c := ChangeFormula | ChangeAppearance
	assert.True(t, c.Has(ChangeFormula))
	assert.True(t, c.Has(ChangeFormula|ChangeAppearance))
	assert.False(t, c.Has(ChangeFormula|ChangeValue))
	assert.False(t, c.Has(0))
}

func TestDamageRecorder(t *testing.T) {
	rec := &DamageRecorder{}
	rec.AddDamage(Damage{Region: RegionFromPoint(1, 1), Changes: ChangeValue | ChangeAppearance})
	rec.AddDamage(Damage{Region: RegionFromPoint(2, 2), Changes: ChangeAppearance})

	assert.Len(t, rec.Damages, 2)
	assert.Len(t, rec.WithChanges(ChangeAppearance), 2)
	assert.Len(t, rec.WithChanges(ChangeValue), 1)

	rec.Reset()
	assert.Empty(t, rec.Damages)
}

func TestDamageMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := &DamageRecorder{}
	m := NewDamageMetrics(reg, rec)

	m.AddDamage(Damage{Region: Region{NewRect(1, 1, 2, 2), NewRect(5, 5, 1, 1)}, Changes: ChangeFormula | ChangeValue})
	m.AddDamage(Damage{Region: RegionFromPoint(3, 3), Changes: ChangeValue})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.damages.WithLabelValues("formula")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.damages.WithLabelValues("value")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.damages.WithLabelValues("appearance")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rects))
	assert.Len(t, rec.Damages, 2, "damages are forwarded")

	// a nil next sink discards
	other := NewDamageMetrics(prometheus.NewRegistry(), nil)
	other.AddDamage(Damage{Region: RegionFromPoint(1, 1), Changes: ChangeBinding})
	assert.Equal(t, 1.0, testutil.ToFloat64(other.damages.WithLabelValues("binding")))
}

func TestDamageFunc(t *testing.T) {
	var got []Damage
	var sink DamageSink = DamageFunc(func(d Damage) { got = append(got, d) })
	sink.AddDamage(Damage{Changes: ChangeNamedArea})
	assert.Equal(t, []Damage{{Changes: ChangeNamedArea}}, got)
}
