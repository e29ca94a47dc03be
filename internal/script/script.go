// Package script replays YAML operation scripts against a cell storage.
//
// A script names a sheet and lists steps:
//
//	sheet: Data
//	steps:
//	  - op: set_value
//	    cell: B3
//	    value: 12
//	  - op: begin_undo
//	  - op: insert_rows
//	    position: 2
//	    count: 3
//	  - op: end_undo
//	  - op: undo
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vogtb/go-spreadsheet/packages/cellstorage"
)

// DefaultSheet is the sheet name used when a script names none
const DefaultSheet = "Sheet1"

var (
	// ErrUnknownOp is returned for a step whose op is not supported
	ErrUnknownOp = errors.New("unknown op")
	// ErrMissingArgument is returned when a step lacks a field its op needs
	ErrMissingArgument = errors.New("missing argument")
	// ErrNothingToUndo is returned by an undo step without a closed session
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Script is a parsed operation script
type Script struct {
	Sheet string `yaml:"sheet"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation. which fields are read depends on Op.
type Step struct {
	Op       string     `yaml:"op"`
	Cell     string     `yaml:"cell,omitempty"`
	Region   string     `yaml:"region,omitempty"`
	Value    any        `yaml:"value,omitempty"`
	Text     string     `yaml:"text,omitempty"`
	Name     string     `yaml:"name,omitempty"`
	Style    *StyleSpec `yaml:"style,omitempty"`
	Position int        `yaml:"position,omitempty"`
	Count    int        `yaml:"count,omitempty"`
}

// StyleSpec is the YAML form of a cell style
type StyleSpec struct {
	FontFamily   string  `yaml:"font_family,omitempty"`
	FontSize     float64 `yaml:"font_size,omitempty"`
	Bold         bool    `yaml:"bold,omitempty"`
	Italic       bool    `yaml:"italic,omitempty"`
	Underline    bool    `yaml:"underline,omitempty"`
	Strikeout    bool    `yaml:"strikeout,omitempty"`
	FontColor    string  `yaml:"font_color,omitempty"`
	Background   string  `yaml:"background,omitempty"`
	HAlign       string  `yaml:"halign,omitempty"`
	VAlign       string  `yaml:"valign,omitempty"`
	NumberFormat string  `yaml:"number_format,omitempty"`
	Wrap         bool    `yaml:"wrap,omitempty"`
	Indent       int     `yaml:"indent,omitempty"`
}

var hAligns = map[string]cellstorage.HAlign{
	"":          cellstorage.HAlignGeneral,
	"general":   cellstorage.HAlignGeneral,
	"left":      cellstorage.HAlignLeft,
	"center":    cellstorage.HAlignCenter,
	"right":     cellstorage.HAlignRight,
	"justified": cellstorage.HAlignJustified,
}

var vAligns = map[string]cellstorage.VAlign{
	"":       cellstorage.VAlignBottom,
	"bottom": cellstorage.VAlignBottom,
	"middle": cellstorage.VAlignMiddle,
	"top":    cellstorage.VAlignTop,
}

// Style converts the YAML form to a cell style
func (s StyleSpec) Style() (cellstorage.Style, error) {
	h, ok := hAligns[strings.ToLower(s.HAlign)]
	if !ok {
		return cellstorage.Style{}, fmt.Errorf("invalid halign %q", s.HAlign)
	}
	v, ok := vAligns[strings.ToLower(s.VAlign)]
	if !ok {
		return cellstorage.Style{}, fmt.Errorf("invalid valign %q", s.VAlign)
	}
	return cellstorage.Style{
		FontFamily:      s.FontFamily,
		FontSize:        s.FontSize,
		Bold:            s.Bold,
		Italic:          s.Italic,
		Underline:       s.Underline,
		Strikeout:       s.Strikeout,
		FontColor:       s.FontColor,
		BackgroundColor: s.Background,
		HAlign:          h,
		VAlign:          v,
		NumberFormat:    s.NumberFormat,
		WrapText:        s.Wrap,
		Indent:          s.Indent,
	}, nil
}

// StepError reports the step a replay failed at
type StepError struct {
	Index int
	Op    string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Parse decodes a script. unknown fields are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &Script{Sheet: DefaultSheet}, nil
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if s.Sheet == "" {
		s.Sheet = DefaultSheet
	}
	return &s, nil
}

// ParseBytes decodes a script held in memory
func ParseBytes(data []byte) (*Script, error) {
	return Parse(bytes.NewReader(data))
}

// LoadFile reads and decodes the script at path
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Runner applies steps to one sheet of a document. it keeps the commands
// of closed undo sessions so that later steps can undo them.
type Runner struct {
	doc    *cellstorage.Map
	sheet  *cellstorage.Sheet
	logger *slog.Logger

	history []*cellstorage.Command
	session string
}

// NewRunner returns a runner writing to the sheet called name, which is
// added to doc when missing
func NewRunner(doc *cellstorage.Map, name string, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sheet, ok := doc.Sheet(name)
	if !ok {
		var err error
		if sheet, err = doc.AddSheet(name); err != nil {
			return nil, fmt.Errorf("add sheet %q: %w", name, err)
		}
	}
	return &Runner{doc: doc, sheet: sheet, logger: logger.With("sheet", name)}, nil
}

// Sheet returns the sheet the runner writes to
func (r *Runner) Sheet() *cellstorage.Sheet { return r.sheet }

// Run applies every step of s in order and stops at the first failure
func (r *Runner) Run(s *Script) error {
	for i, step := range s.Steps {
		if err := r.Apply(step); err != nil {
			return &StepError{Index: i, Op: step.Op, Err: err}
		}
	}
	if r.sheet.Cells().IsRecording() {
		r.logger.Warn("script ended with an open undo session")
	}
	return nil
}

// Replay runs s against doc
func Replay(doc *cellstorage.Map, s *Script, logger *slog.Logger) (*Runner, error) {
	r, err := NewRunner(doc, s.Sheet, logger)
	if err != nil {
		return nil, err
	}
	return r, r.Run(s)
}

// Apply executes a single step
func (r *Runner) Apply(step Step) error {
	cells := r.sheet.Cells()
	r.logger.Debug("apply step", "op", step.Op, "cell", step.Cell, "region", step.Region)

	switch step.Op {
	case "set":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		return r.doc.Set(r.qualify(p.String()), step.Value)
	case "set_value":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		cells.SetValue(p.Col, p.Row, step.Value)
	case "set_formula":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		text := step.Text
		if text != "" && !strings.HasPrefix(text, "=") {
			text = "=" + text
		}
		r.sheet.SetFormula(p, cellstorage.Formula(text))
	case "set_link":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		cells.SetLink(p.Col, p.Row, step.Text)
	case "set_user_input":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		cells.SetUserInput(p.Col, p.Row, step.Text)
	case "clear":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		return r.doc.Remove(r.qualify(p.String()))
	case "set_comment":
		region, err := r.region(step)
		if err != nil {
			return err
		}
		cells.SetComment(region, step.Text)
	case "set_style":
		region, err := r.region(step)
		if err != nil {
			return err
		}
		var style cellstorage.Style
		if step.Style != nil {
			if style, err = step.Style.Style(); err != nil {
				return err
			}
		}
		cells.SetStyle(region, style)
	case "define_name":
		if step.Name == "" || step.Region == "" {
			return fmt.Errorf("%w: define_name needs name and region", ErrMissingArgument)
		}
		return r.doc.DefineNamedArea(step.Name, r.qualify(step.Region))
	case "remove_name":
		return r.doc.RemoveNamedArea(step.Name)
	case "merge", "lock":
		region, err := r.region(step)
		if err != nil {
			return err
		}
		rect := region.BoundingRect()
		if step.Op == "merge" {
			cells.MergeCells(rect.Left, rect.Top, rect.Width()-1, rect.Height()-1)
		} else {
			cells.LockCells(rect)
		}
	case "unmerge":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		master := cells.MasterCell(p.Col, p.Row)
		cells.MergeCells(master.Col, master.Row, 0, 0)
	case "unlock":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		cells.UnlockCells(p.Col, p.Row)
	case "row_repeat":
		p, err := r.point(step)
		if err != nil {
			return err
		}
		cells.SetRowRepeat(p.Row, step.Count)
	case "insert_rows", "remove_rows", "insert_columns", "remove_columns":
		if step.Position < 1 || step.Count < 1 {
			return fmt.Errorf("%w: %s needs position and count", ErrMissingArgument, step.Op)
		}
		switch step.Op {
		case "insert_rows":
			cells.InsertRows(step.Position, step.Count)
		case "remove_rows":
			cells.RemoveRows(step.Position, step.Count)
		case "insert_columns":
			cells.InsertColumns(step.Position, step.Count)
		default:
			cells.RemoveColumns(step.Position, step.Count)
		}
	case "insert_shift_right", "remove_shift_left", "insert_shift_down", "remove_shift_up":
		region, err := r.region(step)
		if err != nil {
			return err
		}
		rect := region.BoundingRect()
		switch step.Op {
		case "insert_shift_right":
			cells.InsertShiftRight(rect)
		case "remove_shift_left":
			cells.RemoveShiftLeft(rect)
		case "insert_shift_down":
			cells.InsertShiftDown(rect)
		default:
			cells.RemoveShiftUp(rect)
		}
	case "begin_undo":
		if cells.IsRecording() {
			return fmt.Errorf("undo session %q already open", r.session)
		}
		r.session = step.Name
		cells.StartUndoRecording()
	case "end_undo":
		if !cells.IsRecording() {
			return errors.New("no undo session open")
		}
		name := r.session
		if name == "" {
			name = fmt.Sprintf("session %d", len(r.history)+1)
		}
		cmd := cellstorage.NewCommand(name)
		cells.StopUndoRecording(cmd)
		r.history = append(r.history, cmd)
		r.session = ""
	case "undo":
		if len(r.history) == 0 {
			return ErrNothingToUndo
		}
		cmd := r.history[len(r.history)-1]
		r.history = r.history[:len(r.history)-1]
		cmd.Undo()
		r.logger.Debug("undone", "command", cmd.Name, "children", len(cmd.Children()))
	default:
		return fmt.Errorf("%w %q", ErrUnknownOp, step.Op)
	}
	return nil
}

func (r *Runner) qualify(ref string) string {
	return "'" + r.sheet.Name() + "'!" + ref
}

func (r *Runner) point(step Step) (cellstorage.Point, error) {
	if step.Cell == "" {
		return cellstorage.Point{}, fmt.Errorf("%w: %s needs a cell", ErrMissingArgument, step.Op)
	}
	return cellstorage.ParsePoint(step.Cell)
}

func (r *Runner) region(step Step) (cellstorage.Region, error) {
	ref := step.Region
	if ref == "" {
		ref = step.Cell
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: %s needs a region", ErrMissingArgument, step.Op)
	}
	return cellstorage.ParseRegion(ref)
}
