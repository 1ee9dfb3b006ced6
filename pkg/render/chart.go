// Package render draws composed view models: an SVG reward chart for the web
// dashboard and console tables for the CLI.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/HatiCode/rewardboard/pkg/view"
)

// ChartOptions size and title the chart.
type ChartOptions struct {
	Width  int
	Height int
	Title  string
}

// DefaultChartOptions is used for zero fields.
var DefaultChartOptions = ChartOptions{Width: 960, Height: 420}

var (
	backgroundColor = drawing.ColorFromHex("111827")
	canvasColor     = drawing.ColorFromHex("1f2937")
	axisColor       = drawing.ColorFromHex("9ca3af")
)

// ChartSeries picks what to plot: the selected runs, or the live series when
// no selected run has data yet.
func ChartSeries(m view.Model) []view.Series {
	if len(m.Series) > 0 {
		return m.Series
	}
	if m.Live.Series != nil && len(m.Live.Series.X) > 0 {
		return []view.Series{*m.Live.Series}
	}
	return nil
}

// ChartSVG writes the reward-over-steps chart of m as SVG. When there is
// nothing to plot an empty placeholder image is written instead.
func ChartSVG(w io.Writer, m view.Model, opts ChartOptions) error {
	if opts.Width <= 0 {
		opts.Width = DefaultChartOptions.Width
	}
	if opts.Height <= 0 {
		opts.Height = DefaultChartOptions.Height
	}

	plotted := ChartSeries(m)
	if len(plotted) == 0 {
		return placeholderSVG(w, opts, "waiting for data")
	}

	series := make([]chart.Series, 0, len(plotted))
	xr, yr := bounds{min: math.Inf(1), max: math.Inf(-1)}, bounds{min: math.Inf(1), max: math.Inf(-1)}
	for _, s := range plotted {
		n := min(len(s.X), len(s.Y))
		if n == 0 {
			continue
		}
		xs, ys := s.X[:n], s.Y[:n]
		for i := range n {
			xr.add(xs[i])
			yr.add(ys[i])
		}
		color := parseColor(s.Color)
		series = append(series, chart.ContinuousSeries{
			Name:    s.Label,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: color,
				StrokeWidth: 2,
				DotColor:    color,
				DotWidth:    dotWidth(n),
			},
		})
	}
	if len(series) == 0 {
		return placeholderSVG(w, opts, "waiting for data")
	}

	axisStyle := chart.Style{FontColor: axisColor, StrokeColor: axisColor}
	ch := chart.Chart{
		Title:      opts.Title,
		TitleStyle: chart.Style{FontColor: axisColor},
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16},
		},
		Canvas: chart.Style{FillColor: canvasColor},
		XAxis: chart.XAxis{
			Name:      "steps",
			NameStyle: axisStyle,
			Style:     axisStyle,
			Range:     xr.rangeOf(),
		},
		YAxis: chart.YAxis{
			Name:      "avg return",
			NameStyle: axisStyle,
			Style:     axisStyle,
			Range:     yr.rangeOf(),
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch, chart.Style{FillColor: canvasColor, FontColor: axisColor, StrokeColor: axisColor})}

	if err := ch.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// dotWidth shows markers only for short series, where a line alone may be
// invisible.
func dotWidth(n int) float64 {
	if n <= 2 {
		return 4
	}
	return 0
}

// parseColor accepts #rgb and #rrggbb; anything else falls back to the first
// palette colour.
func parseColor(hex string) drawing.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 3 && len(hex) != 6 {
		hex = strings.TrimPrefix(view.Palette[0], "#")
	}
	return drawing.ColorFromHex(hex)
}

type bounds struct{ min, max float64 }

func (b *bounds) add(v float64) {
	b.min = math.Min(b.min, v)
	b.max = math.Max(b.max, v)
}

// rangeOf pads degenerate ranges, which go-chart refuses to draw.
func (b bounds) rangeOf() *chart.ContinuousRange {
	lo, hi := b.min, b.max
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 1)
		lo, hi = lo-pad, hi+pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func placeholderSVG(w io.Writer, opts ChartOptions, msg string) error {
	if w == nil {
		return errors.New("nil writer")
	}
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="100%%" height="100%%" fill="#%s"/>`+
			`<text x="50%%" y="50%%" fill="#%s" font-family="sans-serif" font-size="16" text-anchor="middle">%s</text></svg>`,
		opts.Width, opts.Height, "111827", "9ca3af", msg)
	return err
}
