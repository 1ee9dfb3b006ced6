// Package backend provides the client for the training backend that rewardboard
// polls. The backend is an external collaborator exposing three read-only JSON
// endpoints:
//
//   - GET /results: the live (most recent) run's reward series
//   - GET /runs: run summaries, newest first
//   - GET /results/{run}: one run's full reward series
//
// Payloads are parsed leniently: numbers may arrive as JSON numbers or as
// numeric strings, and anything that does not parse to a finite float is
// treated as absent. A (step, return) pair is dropped as a whole when either
// side is unusable, so the step and return columns never misalign.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the backend does not know the requested run.
var ErrNotFound = errors.New("run not found")

// Point is one (step, windowed average return) observation.
type Point struct {
	Step   float64 `json:"step"`
	Return float64 `json:"return"`
}

// TimeSeries is the ordered reward series of a single run.
// Points keep the order in which the backend sent them.
type TimeSeries struct {
	Run    string  `json:"run"`
	Points []Point `json:"points"`
}

// Steps returns the x values of the series.
func (ts TimeSeries) Steps() []float64 {
	out := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		out[i] = p.Step
	}
	return out
}

// Returns returns the y values of the series.
func (ts TimeSeries) Returns() []float64 {
	out := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		out[i] = p.Return
	}
	return out
}

// Len returns the number of points.
func (ts TimeSeries) Len() int { return len(ts.Points) }

// BestEpisode is the most recent best episode reported for a run.
type BestEpisode struct {
	Episode int      `json:"episode"`
	Steps   int      `json:"steps"`
	Reward  *float64 `json:"reward,omitempty"`
}

// Results is the payload of /results and /results/{run}.
type Results struct {
	Series TimeSeries `json:"series"`
	// Elapsed is the elapsed-minutes column of the training log; unusable
	// entries are dropped.
	Elapsed []float64    `json:"elapsed,omitempty"`
	Best    *BestEpisode `json:"best,omitempty"`
	Last    *float64     `json:"last,omitempty"`
}

// LastElapsed returns the last elapsed-minutes value, if any.
func (r Results) LastElapsed() (float64, bool) {
	if len(r.Elapsed) == 0 {
		return 0, false
	}
	return r.Elapsed[len(r.Elapsed)-1], true
}

// RunSummary is one row of /runs. Optional numeric fields are nil when the
// backend sent null or something unparsable.
type RunSummary struct {
	Run           string   `json:"run"`
	Model         string   `json:"model,omitempty"`
	BestReward    *float64 `json:"best_reward,omitempty"`
	LastAvgReturn *float64 `json:"last_avg_return,omitempty"`
	ElapsedMin    *float64 `json:"elapsed_min,omitempty"`
}

// Source is the interface the poller uses to reach the backend.
//
// Implementations must respect context cancellation and never panic on
// malformed payloads; they return an error instead, and the caller keeps its
// previous state.
type Source interface {
	// Results fetches the live run's series.
	Results(ctx context.Context) (Results, error)

	// Runs fetches the run summaries, newest first.
	Runs(ctx context.Context) ([]RunSummary, error)

	// RunResults fetches one run's full series.
	RunResults(ctx context.Context, run string) (Results, error)
}
