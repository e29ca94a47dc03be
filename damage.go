package cellstorage

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Changes is the set of change classes carried by a Damage
type Changes uint8

const (
	ChangeFormula    Changes = 1 << iota // formula text or its references changed
	ChangeValue                          // calculated value changed, dependents need recalculation
	ChangeBinding                        // bound data consumers need a refresh
	ChangeAppearance                     // cells need repainting
	ChangeNamedArea                      // named areas were redefined
)

var changeNames = []struct {
	flag Changes
	name string
}{
	{ChangeFormula, "formula"},
	{ChangeValue, "value"},
	{ChangeBinding, "binding"},
	{ChangeAppearance, "appearance"},
	{ChangeNamedArea, "named_area"},
}

// Has reports whether all flags of o are set
func (c Changes) Has(o Changes) bool { return c&o == o && o != 0 }

func (c Changes) String() string {
	var names []string
	for _, n := range changeNames {
		if c&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Damage describes which cells changed and how. it is a plain value,
// consumers may keep it.
type Damage struct {
	Region  Region
	Changes Changes
}

// DamageSink receives the damages emitted by a CellStorage, typically to
// schedule recalculation and repainting
type DamageSink interface {
	AddDamage(d Damage)
}

// DamageFunc adapts a function to DamageSink
type DamageFunc func(d Damage)

func (f DamageFunc) AddDamage(d Damage) { f(d) }

type discardDamage struct{}

func (discardDamage) AddDamage(Damage) {}

// DamageRecorder keeps every damage it receives in order
type DamageRecorder struct {
	Damages []Damage
}

func (r *DamageRecorder) AddDamage(d Damage) {
	r.Damages = append(r.Damages, d)
}

// Reset forgets the recorded damages
func (r *DamageRecorder) Reset() {
	r.Damages = nil
}

// WithChanges returns the recorded damages carrying all flags of c
func (r *DamageRecorder) WithChanges(c Changes) []Damage {
	var out []Damage
	for _, d := range r.Damages {
		if d.Changes.Has(c) {
			out = append(out, d)
		}
	}
	return out
}

// DamageMetrics counts damages per change class and forwards them to the
// next sink
type DamageMetrics struct {
	next    DamageSink
	damages *prometheus.CounterVec
	rects   prometheus.Counter
}

// NewDamageMetrics registers the damage counters with reg. next may be nil.
func NewDamageMetrics(reg prometheus.Registerer, next DamageSink) *DamageMetrics {
	m := &DamageMetrics{
		next: next,
		damages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellstorage",
			Name:      "damage_total",
			Help:      "Number of damages emitted, by change class.",
		}, []string{"change"}),
		rects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellstorage",
			Name:      "damaged_rects_total",
			Help:      "Number of rectangles carried by emitted damages.",
		}),
	}
	if m.next == nil {
		m.next = discardDamage{}
	}
	reg.MustRegister(m.damages, m.rects)
	return m
}

func (m *DamageMetrics) AddDamage(d Damage) {
	for _, n := range changeNames {
		if d.Changes&n.flag != 0 {
			m.damages.WithLabelValues(n.name).Inc()
		}
	}
	m.rects.Add(float64(len(d.Region)))
	m.next.AddDamage(d)
}

// DependencyManager reduces a region to the cells whose values are
// consumed by formulas
type DependencyManager interface {
	ReduceToProvidingRegion(region Region) Region
}

type noDependencies struct{}

func (noDependencies) ReduceToProvidingRegion(Region) Region { return nil }

// LoadingState tells whether the owning sheet is being loaded
type LoadingState interface {
	IsLoading() bool
}

// RecalcState tells whether a recalculation pass is running
type RecalcState interface {
	IsActive() bool
}

type neverState struct{}

func (neverState) IsLoading() bool { return false }
func (neverState) IsActive() bool  { return false }
