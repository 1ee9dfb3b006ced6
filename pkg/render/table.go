package render

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/view"
)

// TableOptions control console table output.
type TableOptions struct {
	// Colors enables ANSI colours for selected rows.
	Colors bool

	// MaxRunWidth caps the run column; 0 sizes it from the terminal width.
	MaxRunWidth int
}

// RunTable writes the run rows of a composed model.
func RunTable(w io.Writer, rows []view.Row, opts TableOptions) error {
	if w == nil {
		return fmt.Errorf("nil writer")
	}

	tw := newWriter(w)
	tw.AppendHeader(table.Row{"", "Run", "Model", "Best reward", "Last avg return", "Elapsed"})

	width := opts.MaxRunWidth
	if width <= 0 {
		width = runColumnWidth(w)
	}
	if width > 0 {
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, WidthMax: width, WidthMaxEnforcer: text.Trim},
		})
	}

	for _, r := range rows {
		mark := " "
		run := r.Run
		if r.Selected {
			mark = "x"
			if opts.Colors {
				run = text.Colors{text.FgHiGreen, text.Bold}.Sprint(run)
			}
		}
		tw.AppendRow(table.Row{mark, run, r.Model, r.BestReward, r.LastAvgReturn, r.Elapsed})
	}

	tw.Render()
	return nil
}

// SummaryTable writes raw run summaries as listed by the backend.
func SummaryTable(w io.Writer, runs []backend.RunSummary) error {
	rows := view.Compose(view.Input{Runs: runs, ShowAll: true}).Rows
	return RunTable(w, rows, TableOptions{})
}

// SeriesTable writes the points of one series.
func SeriesTable(w io.Writer, ts backend.TimeSeries) error {
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	tw := newWriter(w)
	tw.AppendHeader(table.Row{"#", "Step", "Avg return"})
	for i, p := range ts.Points {
		tw.AppendRow(table.Row{
			i + 1,
			strconv.FormatFloat(p.Step, 'f', -1, 64),
			strconv.FormatFloat(p.Return, 'f', -1, 64),
		})
	}
	tw.AppendFooter(table.Row{"", "Points", ts.Len()})
	tw.Render()
	return nil
}

func newWriter(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.DrawBorder = true
	return tw
}

// runColumnWidth leaves room for the fixed-width columns on a terminal.
// It returns 0 (unconstrained) when w is not a terminal.
func runColumnWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 0
	}
	available := width - 60
	if available < 12 {
		available = 12
	}
	return available
}
