package cellstorage

import "strings"

// TextRun is one formatted fragment of a rich text
type TextRun struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	Color     string
}

// RichText is formatted cell text. instances are shared between cells and
// between storages, so they must not be modified once stored.
type RichText struct {
	Runs []TextRun
}

// NewRichText builds a rich text from its runs
func NewRichText(runs ...TextRun) *RichText {
	return &RichText{Runs: runs}
}

// PlainText concatenates the text of all runs
func (t *RichText) PlainText() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for _, run := range t.Runs {
		b.WriteString(run.Text)
	}
	return b.String()
}

type HAlign uint8

const (
	HAlignGeneral HAlign = iota
	HAlignLeft
	HAlignCenter
	HAlignRight
	HAlignJustified
)

type VAlign uint8

const (
	VAlignBottom VAlign = iota
	VAlignMiddle
	VAlignTop
)

// Style holds the cell formatting attributes. the zero value is the default
// style and is never stored.
type Style struct {
	FontFamily      string
	FontSize        float64
	Bold            bool
	Italic          bool
	Underline       bool
	Strikeout       bool
	FontColor       string
	BackgroundColor string
	HAlign          HAlign
	VAlign          VAlign
	NumberFormat    string
	WrapText        bool
	Indent          int
	Hidden          bool
	NotProtected    bool
}

func (s Style) IsEmpty() bool { return s == Style{} }

// ConditionOperator is a comparison used by conditional formats and
// validity rules
type ConditionOperator uint8

const (
	OperatorNone ConditionOperator = iota
	OperatorEqual
	OperatorNotEqual
	OperatorGreater
	OperatorGreaterOrEqual
	OperatorLess
	OperatorLessOrEqual
	OperatorBetween
	OperatorNotBetween
	OperatorFormula
)

// Conditional is one conditional formatting rule
type Conditional struct {
	Operator  ConditionOperator
	Value1    string
	Value2    string
	StyleName string
}

// Conditions is the ordered list of conditional formatting rules of a cell
type Conditions struct {
	Rules []Conditional
}

func (c Conditions) IsEmpty() bool { return len(c.Rules) == 0 }

// Restriction is the kind of input a validity rule accepts
type Restriction uint8

const (
	RestrictionNone Restriction = iota
	RestrictionNumber
	RestrictionInteger
	RestrictionText
	RestrictionTextLength
	RestrictionDate
	RestrictionTime
	RestrictionList
	RestrictionCustom
)

// Validity is a data validation rule
type Validity struct {
	Restriction Restriction
	Operator    ConditionOperator
	Min         string
	Max         string
	List        []string
	AllowEmpty  bool
	Title       string
	Message     string
}

func (v Validity) IsEmpty() bool { return v.Restriction == RestrictionNone }

// Binding links a region to an external data consumer such as a chart series
type Binding struct {
	Source string
}

func (b Binding) IsEmpty() bool { return b.Source == "" }

type Orientation uint8

const (
	OrientationRows Orientation = iota
	OrientationColumns
)

// Database is a named database range with its filter settings
type Database struct {
	Name        string
	Range       Rect
	HasHeader   bool
	Orientation Orientation
}

func (d Database) IsEmpty() bool { return d.Name == "" }
