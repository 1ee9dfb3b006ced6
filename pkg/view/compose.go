package view

import (
	"fmt"
	"math"
	"strconv"

	"github.com/HatiCode/rewardboard/pkg/backend"
)

// Placeholder is rendered for any missing value.
const Placeholder = "-"

// Palette holds the line colours, assigned by position in the selection.
var Palette = []string{
	"#1f77b4",
	"#ff7f0e",
	"#2ca02c",
	"#d62728",
	"#9467bd",
	"#8c564b",
	"#e377c2",
	"#17becf",
}

// Input is a read-only snapshot of a view's state.
type Input struct {
	Runs      []backend.RunSummary
	Selection []string
	// Cache holds the cached series of selected runs; uncached runs are absent.
	Cache   map[string]backend.TimeSeries
	ShowAll bool
	Live    backend.Results
	HasLive bool
}

// Series is one plotted line.
type Series struct {
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
	Label string    `json:"label"`
	Color string    `json:"color"`
}

// Row is one rendered table row.
type Row struct {
	Run           string `json:"run"`
	Model         string `json:"model"`
	BestReward    string `json:"best_reward"`
	LastAvgReturn string `json:"last_avg_return"`
	Elapsed       string `json:"elapsed"`
	Selected      bool   `json:"selected"`
}

// ShowHide is the show/hide older runs affordance.
type ShowHide struct {
	Label   string `json:"label"`
	Hidden  int    `json:"hidden"`
	ShowAll bool   `json:"show_all"`
}

// LiveStats are the headline numbers of the live run.
type LiveStats struct {
	Available   bool    `json:"available"`
	BestReward  string  `json:"best_reward"`
	BestEpisode string  `json:"best_episode"`
	BestSteps   string  `json:"best_steps"`
	Last        string  `json:"last"`
	Elapsed     string  `json:"elapsed"`
	Points      int     `json:"points"`
	Series      *Series `json:"series,omitempty"`
}

// Model is everything needed to render the dashboard.
type Model struct {
	Series    []Series  `json:"series"`
	Rows      []Row     `json:"rows"`
	ShowHide  *ShowHide `json:"show_hide,omitempty"`
	Selection []string  `json:"selection"`
	Live      LiveStats `json:"live"`
}

// Compose derives the renderable model from in. It has no side effects.
func Compose(in Input) Model {
	m := Model{
		Series:    []Series{},
		Rows:      []Row{},
		Selection: append([]string{}, in.Selection...),
		Live:      composeLive(in.Live, in.HasLive),
	}

	selected := make(map[string]bool, len(in.Selection))
	for i, run := range in.Selection {
		selected[run] = true
		ts, ok := in.Cache[run]
		if !ok || ts.Len() == 0 {
			continue
		}
		m.Series = append(m.Series, Series{
			X:     ts.Steps(),
			Y:     ts.Returns(),
			Label: run,
			Color: Palette[i%len(Palette)],
		})
	}

	visible := in.Runs
	if !in.ShowAll && len(visible) > 1 {
		visible = visible[:1]
	}
	for _, rs := range visible {
		m.Rows = append(m.Rows, Row{
			Run:           rs.Run,
			Model:         orPlaceholder(rs.Model),
			BestReward:    FormatNumber(rs.BestReward),
			LastAvgReturn: FormatNumber(rs.LastAvgReturn),
			Elapsed:       FormatElapsed(rs.ElapsedMin),
			Selected:      selected[rs.Run],
		})
	}

	if len(in.Runs) > 1 {
		hidden := len(in.Runs) - 1
		verb := "Show"
		if in.ShowAll {
			verb = "Hide"
		}
		m.ShowHide = &ShowHide{
			Label:   fmt.Sprintf("%s %d older runs", verb, hidden),
			Hidden:  hidden,
			ShowAll: in.ShowAll,
		}
	}

	return m
}

func composeLive(r backend.Results, ok bool) LiveStats {
	ls := LiveStats{
		Available:   ok,
		BestReward:  Placeholder,
		BestEpisode: Placeholder,
		BestSteps:   Placeholder,
		Last:        FormatNumber(r.Last),
		Elapsed:     Placeholder,
		Points:      r.Series.Len(),
	}
	if b := r.Best; b != nil {
		ls.BestReward = FormatNumber(b.Reward)
		ls.BestEpisode = strconv.Itoa(b.Episode)
		ls.BestSteps = strconv.Itoa(b.Steps)
	}
	if v, ok := r.LastElapsed(); ok {
		ls.Elapsed = FormatElapsed(&v)
	}
	if r.Series.Len() > 0 {
		ls.Series = &Series{
			X:     r.Series.Steps(),
			Y:     r.Series.Returns(),
			Label: "live",
			Color: Palette[0],
		}
	}
	return ls
}

// FormatElapsed renders minutes as HH:MM: hours are the whole minutes divided
// by 60 and minutes the remainder, each zero-padded to two digits. Nil
// renders the placeholder.
func FormatElapsed(minutes *float64) string {
	if minutes == nil || math.IsNaN(*minutes) || math.IsInf(*minutes, 0) {
		return Placeholder
	}
	total := int64(math.Floor(*minutes))
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	return fmt.Sprintf("%s%02d:%02d", sign, total/60, total%60)
}

// FormatNumber prints v verbatim (shortest representation that round-trips).
// Magnitudes of 1e21 and above, or below 1e-6, use exponent notation. Nil
// renders the placeholder.
func FormatNumber(v *float64) string {
	if v == nil {
		return Placeholder
	}
	if a := math.Abs(*v); a >= 1e21 || (a != 0 && a < 1e-6) {
		return strconv.FormatFloat(*v, 'g', -1, 64)
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}
