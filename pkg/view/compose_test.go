package view

import (
	"fmt"
	"testing"

	"github.com/HatiCode/rewardboard/pkg/backend"
)

func ptr(v float64) *float64 { return &v }

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		name    string
		minutes *float64
		want    string
	}{
		{"two hours five", ptr(125), "02:05"},
		{"under an hour", ptr(59), "00:59"},
		{"absent", nil, Placeholder},
		{"zero", ptr(0), "00:00"},
		{"fractional minutes floor", ptr(61.9), "01:01"},
		{"over a day", ptr(1500), "25:00"},
		{"three digit hours", ptr(6000), "100:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatElapsed(tt.minutes); got != tt.want {
				t.Errorf("FormatElapsed() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, Placeholder},
		{ptr(21), "21"},
		{ptr(-19.25), "-19.25"},
		{ptr(0.1), "0.1"},
		{ptr(1500000), "1500000"},
		{ptr(0.000125), "0.000125"},
		{ptr(1e21), "1e+21"},
		{ptr(-2.5e-7), "-2.5e-07"},
		{ptr(0), "0"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompose_SeriesFollowSelection(t *testing.T) {
	cache := map[string]backend.TimeSeries{
		"a": {Run: "a", Points: []backend.Point{{Step: 10, Return: 1}, {Step: 20, Return: 2}}},
		"c": {Run: "c", Points: []backend.Point{{Step: 5, Return: -3}}},
		"e": {Run: "e", Points: []backend.Point{}},
	}
	m := Compose(Input{Selection: []string{"a", "b", "c", "e"}, Cache: cache})

	if len(m.Series) != 2 {
		t.Fatalf("len(series) = %d, want 2 (uncached and empty runs omitted)", len(m.Series))
	}
	if m.Series[0].Label != "a" || m.Series[0].Color != Palette[0] {
		t.Errorf("series[0] = %+v", m.Series[0])
	}
	// c keeps the colour of its selection position, not its series position.
	if m.Series[1].Label != "c" || m.Series[1].Color != Palette[2] {
		t.Errorf("series[1] = %+v", m.Series[1])
	}
	if len(m.Series[0].X) != 2 || m.Series[0].X[1] != 20 || m.Series[0].Y[1] != 2 {
		t.Errorf("series[0] points = %v %v", m.Series[0].X, m.Series[0].Y)
	}
}

func TestCompose_ColorsCycle(t *testing.T) {
	var selection []string
	cache := make(map[string]backend.TimeSeries)
	for i := 0; i < len(Palette)+2; i++ {
		run := fmt.Sprintf("r%d", i)
		selection = append(selection, run)
		cache[run] = backend.TimeSeries{Run: run, Points: []backend.Point{{Step: 1, Return: 1}}}
	}

	m := Compose(Input{Selection: selection, Cache: cache})
	for i, s := range m.Series {
		if want := Palette[i%len(Palette)]; s.Color != want {
			t.Errorf("series[%d].Color = %s, want %s", i, s.Color, want)
		}
	}

	// Removing the first run shifts every other colour.
	m = Compose(Input{Selection: selection[1:], Cache: cache})
	if m.Series[0].Label != "r1" || m.Series[0].Color != Palette[0] {
		t.Errorf("after removal series[0] = %s %s", m.Series[0].Label, m.Series[0].Color)
	}
}

func TestCompose_Rows(t *testing.T) {
	runs := []backend.RunSummary{
		{Run: "r3", Model: "ppo", BestReward: ptr(21), LastAvgReturn: ptr(18.5), ElapsedMin: ptr(125)},
		{Run: "r2"},
		{Run: "r1", Model: "dqn", ElapsedMin: ptr(59)},
	}

	tests := []struct {
		name      string
		showAll   bool
		wantRuns  []string
		wantLabel string
	}{
		{"latest only", false, []string{"r3"}, "Show 2 older runs"},
		{"show all", true, []string{"r3", "r2", "r1"}, "Hide 2 older runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compose(Input{Runs: runs, Selection: []string{"r1"}, ShowAll: tt.showAll})
			if len(m.Rows) != len(tt.wantRuns) {
				t.Fatalf("len(rows) = %d, want %d", len(m.Rows), len(tt.wantRuns))
			}
			for i, r := range m.Rows {
				if r.Run != tt.wantRuns[i] {
					t.Errorf("rows[%d].Run = %s, want %s", i, r.Run, tt.wantRuns[i])
				}
			}
			if m.ShowHide == nil || m.ShowHide.Label != tt.wantLabel || m.ShowHide.Hidden != 2 {
				t.Errorf("show/hide = %+v, want label %q", m.ShowHide, tt.wantLabel)
			}
		})
	}

	m := Compose(Input{Runs: runs, Selection: []string{"r1"}, ShowAll: true})
	first := m.Rows[0]
	if first.Model != "ppo" || first.BestReward != "21" || first.LastAvgReturn != "18.5" || first.Elapsed != "02:05" {
		t.Errorf("rows[0] = %+v", first)
	}
	if first.Selected {
		t.Error("rows[0] should not be selected")
	}
	empty := m.Rows[1]
	if empty.Model != Placeholder || empty.BestReward != Placeholder || empty.LastAvgReturn != Placeholder || empty.Elapsed != Placeholder {
		t.Errorf("rows[1] should be all placeholders, got %+v", empty)
	}
	if !m.Rows[2].Selected || m.Rows[2].Elapsed != "00:59" {
		t.Errorf("rows[2] = %+v", m.Rows[2])
	}
}

func TestCompose_ShowHideNeedsMoreThanOneRun(t *testing.T) {
	for _, runs := range [][]backend.RunSummary{nil, {{Run: "only"}}} {
		m := Compose(Input{Runs: runs, ShowAll: true})
		if m.ShowHide != nil {
			t.Errorf("len(runs)=%d: show/hide should be absent, got %+v", len(runs), m.ShowHide)
		}
		if len(m.Rows) != len(runs) {
			t.Errorf("len(rows) = %d, want %d", len(m.Rows), len(runs))
		}
	}
}

func TestCompose_LiveStats(t *testing.T) {
	m := Compose(Input{})
	if m.Live.Available || m.Live.Series != nil || m.Live.Last != Placeholder || m.Live.Elapsed != Placeholder {
		t.Errorf("empty live stats = %+v", m.Live)
	}
	if m.Series == nil || m.Rows == nil {
		t.Error("series and rows should be empty slices, not nil")
	}

	live := backend.Results{
		Series:  backend.TimeSeries{Points: []backend.Point{{Step: 100, Return: -20}, {Step: 200, Return: -18}}},
		Elapsed: []float64{1, 2, 75},
		Best:    &bestFixture,
		Last:    ptr(-18),
	}
	m = Compose(Input{Live: live, HasLive: true})
	if !m.Live.Available || m.Live.Points != 2 {
		t.Errorf("live = %+v", m.Live)
	}
	if m.Live.BestReward != "-17" || m.Live.BestEpisode != "42" || m.Live.BestSteps != "84000" {
		t.Errorf("best = %s ep %s steps %s", m.Live.BestReward, m.Live.BestEpisode, m.Live.BestSteps)
	}
	if m.Live.Last != "-18" || m.Live.Elapsed != "01:15" {
		t.Errorf("last = %s elapsed = %s", m.Live.Last, m.Live.Elapsed)
	}
	if m.Live.Series == nil || m.Live.Series.Label != "live" || len(m.Live.Series.Y) != 2 {
		t.Errorf("live series = %+v", m.Live.Series)
	}
}

var bestFixture = backend.BestEpisode{Episode: 42, Steps: 84000, Reward: ptr(-17)}
