package cellstorage

import "fmt"

// Command is a reversible edit. children are undone in reverse order before
// the command's own undo step, and redone in order after its own redo step.
type Command struct {
	Name string

	children []*Command
	undo     func()
	redo     func()
}

// NewCommand creates an empty command that only groups children
func NewCommand(name string) *Command {
	return &Command{Name: name}
}

// NewFuncCommand creates a command running the given steps. either may be nil.
func NewFuncCommand(name string, undo, redo func()) *Command {
	return &Command{Name: name, undo: undo, redo: redo}
}

// AddChild appends a sub-command
func (c *Command) AddChild(child *Command) {
	c.children = append(c.children, child)
}

// Children returns the sub-commands in execution order
func (c *Command) Children() []*Command {
	return c.children
}

// Undo reverts the command
func (c *Command) Undo() {
	for i := len(c.children) - 1; i >= 0; i-- {
		c.children[i].Undo()
	}
	if c.undo != nil {
		c.undo()
	}
}

// Redo re-applies the command
func (c *Command) Redo() {
	if c.redo != nil {
		c.redo()
	}
	for _, child := range c.children {
		child.Redo()
	}
}

// UndoData holds the values overwritten while recording, per layer. every
// mutation appends one group; groups are restored newest first, the entries
// inside a group in order.
type UndoData struct {
	values     [][]PointEntry[Value]
	formulas   [][]PointEntry[Formula]
	links      [][]PointEntry[string]
	userInputs [][]PointEntry[string]
	richTexts  [][]PointEntry[*RichText]

	comments   [][]RectEntry[string]
	conditions [][]RectEntry[Conditions]
	validities [][]RectEntry[Validity]
	styles     [][]RectEntry[Style]
	bindings   [][]RectEntry[Binding]
	databases  [][]RectEntry[Database]
	namedAreas [][]RectEntry[string]
	fusions    [][]RectEntry[bool]
	matrices   [][]RectEntry[bool]
}

// IsEmpty reports whether nothing was recorded
func (u *UndoData) IsEmpty() bool {
	return len(u.values) == 0 && len(u.formulas) == 0 && len(u.links) == 0 &&
		len(u.userInputs) == 0 && len(u.richTexts) == 0 && len(u.comments) == 0 &&
		len(u.conditions) == 0 && len(u.validities) == 0 && len(u.styles) == 0 &&
		len(u.bindings) == 0 && len(u.databases) == 0 && len(u.namedAreas) == 0 &&
		len(u.fusions) == 0 && len(u.matrices) == 0
}

func addGroup[E any](groups *[][]E, group []E) {
	if len(group) > 0 {
		*groups = append(*groups, group)
	}
}

// pointRestore builds the sub-command writing back the old values of a
// point layer
func pointRestore[T any](name string, groups [][]PointEntry[T], set func(col, row int, v T)) *Command {
	return NewFuncCommand(name, func() {
		for i := len(groups) - 1; i >= 0; i-- {
			for _, e := range groups[i] {
				set(e.Point.Col, e.Point.Row, e.Value)
			}
		}
	}, nil)
}

// rectRestore builds the sub-command writing back the old values of a
// region layer
func rectRestore[T any](name string, groups [][]RectEntry[T], set func(r Rect, v T)) *Command {
	return NewFuncCommand(name, func() {
		for i := len(groups) - 1; i >= 0; i-- {
			for _, e := range groups[i] {
				set(e.Rect, e.Value)
			}
		}
	}, nil)
}

// commands converts the aggregate into one sub-command per non-empty layer
func (u *UndoData) commands(cs *CellStorage) []*Command {
	var cmds []*Command
	add := func(n int, build func() *Command) {
		if n > 0 {
			cmds = append(cmds, build())
		}
	}
	add(len(u.values), func() *Command {
		return pointRestore("restore values", u.values, cs.SetValue)
	})
	add(len(u.formulas), func() *Command {
		return pointRestore("restore formulas", u.formulas, cs.SetFormula)
	})
	add(len(u.links), func() *Command {
		return pointRestore("restore links", u.links, cs.SetLink)
	})
	add(len(u.userInputs), func() *Command {
		return pointRestore("restore user input", u.userInputs, cs.SetUserInput)
	})
	add(len(u.richTexts), func() *Command {
		return pointRestore("restore rich text", u.richTexts, cs.SetRichText)
	})
	add(len(u.comments), func() *Command {
		return rectRestore("restore comments", u.comments, func(r Rect, v string) { cs.SetComment(Region{r}, v) })
	})
	add(len(u.conditions), func() *Command {
		return rectRestore("restore conditions", u.conditions, func(r Rect, v Conditions) { cs.SetConditions(Region{r}, v) })
	})
	add(len(u.validities), func() *Command {
		return rectRestore("restore validity", u.validities, func(r Rect, v Validity) { cs.SetValidity(Region{r}, v) })
	})
	add(len(u.styles), func() *Command {
		return rectRestore("restore styles", u.styles, func(r Rect, v Style) { cs.SetStyle(Region{r}, v) })
	})
	add(len(u.bindings), func() *Command {
		return rectRestore("restore bindings", u.bindings, func(r Rect, v Binding) { cs.SetBinding(Region{r}, v) })
	})
	add(len(u.databases), func() *Command {
		return rectRestore("restore databases", u.databases, func(r Rect, v Database) { cs.SetDatabase(Region{r}, v) })
	})
	add(len(u.namedAreas), func() *Command {
		return rectRestore("restore named areas", u.namedAreas, func(r Rect, v string) { cs.SetNamedArea(Region{r}, v) })
	})
	add(len(u.fusions), func() *Command {
		return rectRestore("restore merged cells", u.fusions, cs.setFusion)
	})
	add(len(u.matrices), func() *Command {
		return rectRestore("restore locked arrays", u.matrices, cs.setMatrix)
	})
	return cmds
}

type shiftKind uint8

const (
	shiftInsertColumns shiftKind = iota
	shiftRemoveColumns
	shiftInsertRows
	shiftRemoveRows
	shiftInsertRight
	shiftRemoveLeft
	shiftInsertDown
	shiftRemoveUp
)

var shiftNames = map[shiftKind]string{
	shiftInsertColumns: "insert columns",
	shiftRemoveColumns: "remove columns",
	shiftInsertRows:    "insert rows",
	shiftRemoveRows:    "remove rows",
	shiftInsertRight:   "insert cells shifting right",
	shiftRemoveLeft:    "remove cells shifting left",
	shiftInsertDown:    "insert cells shifting down",
	shiftRemoveUp:      "remove cells shifting up",
}

func (k shiftKind) String() string { return shiftNames[k] }

// inverse returns the shift undoing k
func (k shiftKind) inverse() shiftKind {
	switch k {
	case shiftInsertColumns:
		return shiftRemoveColumns
	case shiftRemoveColumns:
		return shiftInsertColumns
	case shiftInsertRows:
		return shiftRemoveRows
	case shiftRemoveRows:
		return shiftInsertRows
	case shiftInsertRight:
		return shiftRemoveLeft
	case shiftRemoveLeft:
		return shiftInsertRight
	case shiftInsertDown:
		return shiftRemoveUp
	default:
		return shiftInsertDown
	}
}

// shiftOp is one recorded structural edit. rect carries the shifted cells
// for the partial shifts, position and count the columns or rows for the
// others.
type shiftOp struct {
	kind     shiftKind
	position int
	count    int
	rect     Rect
}

func (op shiftOp) String() string {
	if op.kind >= shiftInsertRight {
		return fmt.Sprintf("%s %s", op.kind, op.rect)
	}
	return fmt.Sprintf("%s %d+%d", op.kind, op.position, op.count)
}

// undoStep is either a run of recorded setter changes, a shift together
// with the entries it displaced, or a row repeat declaration. runs are
// the row repeats to re-establish once everything else was undone, and
// released the run to dissolve before the old content is written back.
type undoStep struct {
	data     *UndoData
	shift    *shiftOp
	runs     []RowRun
	released *RowRun
}

// commands converts the step into sub-commands. undoing runs them in
// reverse: first the inverse shift or the release of the declared run,
// then the restore of the old entries at their old positions, then the
// old row repeats.
func (s undoStep) commands(cs *CellStorage) []*Command {
	var cmds []*Command
	if len(s.runs) > 0 {
		runs := s.runs
		cmds = append(cmds, NewFuncCommand("restore row repeats", func() {
			for _, run := range runs {
				cs.compressRows(run.First, run.Last())
			}
		}, nil))
	}
	cmds = append(cmds, s.data.commands(cs)...)
	if s.released != nil {
		run := *s.released
		cmds = append(cmds, NewFuncCommand("release row repeat", func() {
			cs.rowRepeats.clearRange(run.First, run.Last())
			cs.clearRows(run.First+1, run.Last())
		}, nil))
	}
	if s.shift != nil {
		op := *s.shift
		inverse := shiftOp{kind: op.kind.inverse(), position: op.position, count: op.count, rect: op.rect}
		cmds = append(cmds, NewFuncCommand("undo "+op.String(),
			func() { cs.applyShift(inverse) },
			nil,
		))
	}
	return cmds
}
