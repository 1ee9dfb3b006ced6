package view

import (
	"slices"

	"github.com/HatiCode/rewardboard/pkg/backend"
)

// State is the selection and run-list state of one view.
//
// State is not safe for concurrent use; View guards it with its mutex. All
// mutation goes through Toggle, ReplaceRuns, SetShowAll and SetLive.
type State struct {
	runs      []backend.RunSummary
	selection []string
	showAll   bool
	live      backend.Results
	hasLive   bool

	// defaultApplied is set the first time a non-empty run list is seen.
	defaultApplied bool
}

// NewState returns an empty state: no runs, no selection, latest run only.
func NewState() *State {
	return &State{}
}

// Toggle adds run to the selection, or removes it if already selected.
// It reports whether run is selected afterwards.
func (s *State) Toggle(run string) bool {
	if i := slices.Index(s.selection, run); i >= 0 {
		s.selection = slices.Delete(s.selection, i, i+1)
		return false
	}
	s.selection = append(s.selection, run)
	return true
}

// IsSelected reports whether run is in the selection.
func (s *State) IsSelected(run string) bool {
	return slices.Contains(s.selection, run)
}

// Selection returns a copy of the selected run identifiers in selection order.
func (s *State) Selection() []string {
	return slices.Clone(s.selection)
}

// ReplaceRuns swaps in a freshly fetched run list.
//
// The first time the list is non-empty, and only then, the newest run
// (runs[0]) is selected if nothing is selected yet. The selected run is
// returned with ok set when that happened.
func (s *State) ReplaceRuns(runs []backend.RunSummary) (selected string, ok bool) {
	s.runs = slices.Clone(runs)

	if s.defaultApplied || len(s.runs) == 0 {
		return "", false
	}
	s.defaultApplied = true
	if len(s.selection) > 0 {
		return "", false
	}
	s.selection = []string{s.runs[0].Run}
	return s.runs[0].Run, true
}

// Runs returns a copy of the current run list.
func (s *State) Runs() []backend.RunSummary {
	return slices.Clone(s.runs)
}

// SetShowAll sets the table display gate.
func (s *State) SetShowAll(v bool) { s.showAll = v }

// ShowAll reports whether every run is listed in the table.
func (s *State) ShowAll() bool { return s.showAll }

// SetLive replaces the live run results.
func (s *State) SetLive(r backend.Results) {
	s.live = r
	s.hasLive = true
}

// Live returns the live run results and whether any were fetched yet.
func (s *State) Live() (backend.Results, bool) {
	return s.live, s.hasLive
}
