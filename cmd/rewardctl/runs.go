package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/render"
	"github.com/HatiCode/rewardboard/pkg/view"
)

func newRunsCmd(flags *rootFlags) *cobra.Command {
	var (
		all    bool
		format string
	)

	c := &cobra.Command{
		Use:   "runs",
		Short: "List training runs, newest first",
		Long: `List training runs as the dashboard's run table shows them.

Only the newest run is listed unless --all is given.

Examples:
  rewardctl runs
  rewardctl runs --all
  rewardctl runs --all --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := newSource(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			runs, err := src.Runs(ctx)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			return writeRuns(cmd.OutOrStdout(), runs, all, format)
		},
	}

	c.Flags().BoolVarP(&all, "all", "a", false, "Include older runs")
	c.Flags().StringVarP(&format, "format", "f", "table", "Output format: table|json")
	return c
}

func writeRuns(w io.Writer, runs []backend.RunSummary, all bool, format string) error {
	m := view.Compose(view.Input{Runs: runs, ShowAll: all})

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m.Rows)
	case "table", "":
		if len(m.Rows) == 0 {
			_, err := fmt.Fprintln(w, "no runs")
			return err
		}
		if all {
			if err := render.SummaryTable(w, runs); err != nil {
				return err
			}
		} else if err := render.RunTable(w, m.Rows, render.TableOptions{}); err != nil {
			return err
		}
		if m.ShowHide != nil && !all {
			_, err := fmt.Fprintf(w, "%d older runs hidden, use --all to list them\n", m.ShowHide.Hidden)
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (valid: table, json)", format)
	}
}

func newSeriesCmd(flags *rootFlags) *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:   "series <run>",
		Short: "Print the parsed reward series of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := newSource(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			res, err := src.RunResults(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch run %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Series)
			case "table", "":
				return render.SeriesTable(out, res.Series)
			default:
				return fmt.Errorf("unknown format %q (valid: table, json)", format)
			}
		},
	}

	c.Flags().StringVarP(&format, "format", "f", "table", "Output format: table|json")
	return c
}
