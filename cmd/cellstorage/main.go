// Package main provides the cellstorage command line tool.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/cellstorage"
	"github.com/vogtb/go-spreadsheet/packages/cellstorage/internal/logging"
	"github.com/vogtb/go-spreadsheet/packages/cellstorage/internal/script"
	"github.com/vogtb/go-spreadsheet/packages/cellstorage/internal/xlsxload"
)

var (
	logLevel    string
	logFormat   string
	withMetrics bool

	inspectSheets []string
	noCompress    bool
	showDamages   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellstorage",
		Short: "Inspect and exercise spreadsheet cell storages",
		Long: `cellstorage loads xlsx workbooks into cell storages and replays
scripted edits against them, printing the resulting cells and damages.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(os.Stderr, logLevel, logFormat)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")
	rootCmd.PersistentFlags().BoolVar(&withMetrics, "metrics", false, "Print damage counters after the run")

	inspectCmd := &cobra.Command{
		Use:   "inspect [input.xlsx]",
		Short: "Load a workbook and print a summary of every sheet",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	inspectCmd.Flags().StringSliceVar(&inspectSheets, "sheet", nil, "Sheets to load (default: all)")
	inspectCmd.Flags().BoolVar(&noCompress, "no-compress", false, "Store identical rows individually")

	replayCmd := &cobra.Command{
		Use:   "replay [script.yaml]",
		Short: "Apply a script of edits to a fresh sheet",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	replayCmd.Flags().BoolVar(&showDamages, "damages", true, "Print the emitted damages")

	rootCmd.AddCommand(inspectCmd, replayCmd)
	return rootCmd
}

// damageSetup builds the damage sinks of a document: a recorder per sheet,
// counted by one metrics sink when requested
type damageSetup struct {
	registry  *prometheus.Registry
	metrics   *cellstorage.DamageMetrics
	recorders map[string]*cellstorage.DamageRecorder
}

func newDamageSetup() *damageSetup {
	d := &damageSetup{recorders: make(map[string]*cellstorage.DamageRecorder)}
	if withMetrics {
		d.registry = prometheus.NewRegistry()
		d.metrics = cellstorage.NewDamageMetrics(d.registry, nil)
	}
	return d
}

// sink returns the damage sink of one sheet
func (d *damageSetup) sink(sheet string) cellstorage.DamageSink {
	rec := &cellstorage.DamageRecorder{}
	d.recorders[sheet] = rec
	if d.metrics == nil {
		return rec
	}
	return cellstorage.DamageFunc(func(dmg cellstorage.Damage) {
		d.metrics.AddDamage(dmg)
		rec.AddDamage(dmg)
	})
}

func (d *damageSetup) printMetrics(w io.Writer) error {
	if d.registry == nil {
		return nil
	}
	families, err := d.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(w, "metrics:")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			fmt.Fprintf(w, "  %s %g\n", name, m.GetCounter().GetValue())
		}
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	damages := newDamageSetup()
	doc := cellstorage.NewMap(cellstorage.MapOptions{Damage: damages.sink, Logger: slog.Default()})

	opts := xlsxload.DefaultOptions()
	opts.Sheets = inspectSheets
	opts.CompressRows = !noCompress
	if err := xlsxload.LoadFile(args[0], doc, opts); err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, sheet := range doc.Sheets() {
		printSheetSummary(out, sheet)
	}
	if missing := doc.ListReferencedSheets(); len(missing) > 0 {
		fmt.Fprintf(out, "referenced but missing sheets: %s\n", strings.Join(missing, ", "))
	}
	return damages.printMetrics(out)
}

func printSheetSummary(w io.Writer, sheet *cellstorage.Sheet) {
	cells := sheet.Cells()
	stats := cells.Stats()
	used := cells.UsedArea(true)

	fmt.Fprintf(w, "sheet %q\n", sheet.Name())
	if used.IsEmpty() {
		fmt.Fprintln(w, "  used area: empty")
	} else {
		fmt.Fprintf(w, "  used area: %s\n", used)
	}
	fmt.Fprintf(w, "  values=%d formulas=%d links=%d inputs=%d comments=%d styles=%d\n",
		stats.Values, stats.Formulas, stats.Links, stats.UserInputs, stats.Comments, stats.Styles)
	fmt.Fprintf(w, "  merges=%d arrays=%d named areas=%d formula nodes=%d\n",
		stats.Fusions, stats.Matrices, stats.NamedAreas, sheet.Dependencies().NodeCount())

	if merged := cells.MergedRegion(cellstorage.Region{used}); len(merged) > 0 {
		fmt.Fprintf(w, "  merged: %s\n", merged)
	}
	runs := cells.RowRepeats()
	if len(runs) > 0 {
		parts := make([]string, 0, len(runs))
		for _, run := range runs {
			parts = append(parts, fmt.Sprintf("%d-%d", run.First, run.Last()))
		}
		fmt.Fprintf(w, "  repeated rows: %s\n", strings.Join(parts, " "))
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	s, err := script.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	damages := newDamageSetup()
	doc := cellstorage.NewMap(cellstorage.MapOptions{Damage: damages.sink, Logger: slog.Default()})
	runner, err := script.Replay(doc, s, slog.Default())
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	out := cmd.OutOrStdout()
	sheet := runner.Sheet()
	used := sheet.Cells().UsedArea(false)
	fmt.Fprintf(out, "sheet %q\n", sheet.Name())
	if !used.IsEmpty() {
		printCells(out, sheet, used)
	}
	if showDamages {
		rec := damages.recorders[sheet.Name()]
		fmt.Fprintf(out, "damages (%d):\n", len(rec.Damages))
		for _, d := range rec.Damages {
			fmt.Fprintf(out, "  %s %s\n", d.Region, d.Changes)
		}
	}
	return damages.printMetrics(out)
}

func printCells(w io.Writer, sheet *cellstorage.Sheet, used cellstorage.Rect) {
	cells := sheet.Cells()
	lines := make(map[cellstorage.Point]string)
	for p, v := range sheet.Values(cellstorage.Region{used}) {
		lines[p] = fmt.Sprintf("%v", v)
	}
	for p, f := range sheet.Formulas(cellstorage.Region{used}) {
		lines[p] = fmt.Sprintf("%s  [%v]", f, cells.Value(p.Col, p.Row))
	}
	points := make([]cellstorage.Point, 0, len(lines))
	for p := range lines {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Row != points[j].Row {
			return points[i].Row < points[j].Row
		}
		return points[i].Col < points[j].Col
	})
	for _, p := range points {
		fmt.Fprintf(w, "  %-8s %s\n", p, lines[p])
	}
}
