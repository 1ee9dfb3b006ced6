// Package backendtest provides an in-process training backend speaking the
// same JSON as the real one. It backs tests and the mock-trainer example.
package backendtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/HatiCode/rewardboard/pkg/backend"
)

// Server is an http.Handler serving /results, /runs and /results/{run}.
// The live run is the first run set with SetRuns. It is safe for concurrent
// use.
type Server struct {
	mu      sync.Mutex
	runs    []backend.RunSummary
	results map[string]backend.Results
	hits    map[string]int
	failing bool
}

// New returns an empty backend.
func New() *Server {
	return &Server{
		results: make(map[string]backend.Results),
		hits:    make(map[string]int),
	}
}

// SetRuns replaces the run list, newest first.
func (s *Server) SetRuns(runs ...backend.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]backend.RunSummary(nil), runs...)
}

// SetResults stores the results of run.
func (s *Server) SetResults(run string, res backend.Results) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res.Series.Run = run
	s.results[run] = res
}

// Append adds points to run's series and updates its summary.
func (s *Server) Append(run string, elapsedMin float64, points ...backend.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.results[run]
	res.Series.Run = run
	res.Series.Points = append(res.Series.Points, points...)
	for range points {
		res.Elapsed = append(res.Elapsed, elapsedMin)
	}
	if n := len(res.Series.Points); n > 0 {
		last := res.Series.Points[n-1].Return
		res.Last = &last
	}
	s.results[run] = res

	for i := range s.runs {
		if s.runs[i].Run != run {
			continue
		}
		s.runs[i].LastAvgReturn = res.Last
		elapsed := elapsedMin
		s.runs[i].ElapsedMin = &elapsed
	}
}

// SetBest records run's best episode and its summary's best reward.
func (s *Server) SetBest(run string, best backend.BestEpisode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.results[run]
	res.Series.Run = run
	res.Best = &best
	s.results[run] = res

	for i := range s.runs {
		if s.runs[i].Run == run {
			s.runs[i].BestReward = best.Reward
		}
	}
}

// SetFailing makes every request answer 503 until called with false.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Hits returns how many requests path received, e.g. "/results/r1".
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	s.hits[r.URL.Path]++
	failing := s.failing
	s.mu.Unlock()

	if failing {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
		return
	}

	switch {
	case r.URL.Path == "/runs":
		s.writeRuns(w)
	case r.URL.Path == "/results":
		s.writeLive(w)
	case strings.HasPrefix(r.URL.Path, "/results/"):
		s.writeRun(w, strings.TrimPrefix(r.URL.Path, "/results/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

func (s *Server) writeRuns(w http.ResponseWriter) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.runs))
	for _, rs := range s.runs {
		out = append(out, map[string]any{
			"run":             rs.Run,
			"model":           nullString(rs.Model),
			"best_reward":     rs.BestReward,
			"last_avg_return": rs.LastAvgReturn,
			"elapsed_min":     rs.ElapsedMin,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeLive(w http.ResponseWriter) {
	s.mu.Lock()
	var res backend.Results
	if len(s.runs) > 0 {
		res = s.results[s.runs[0].Run]
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, payload(res))
}

func (s *Server) writeRun(w http.ResponseWriter, run string) {
	s.mu.Lock()
	res, ok := s.results[run]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Run " + run + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, payload(res))
}

// payload renders results the way the training backend does: parallel steps,
// returns and elapsed columns plus the last and best summaries.
func payload(res backend.Results) map[string]any {
	var best any
	if res.Best != nil {
		best = map[string]any{
			"episode": res.Best.Episode,
			"steps":   res.Best.Steps,
			"reward":  res.Best.Reward,
		}
	}
	return map[string]any{
		"steps":   res.Series.Steps(),
		"returns": res.Series.Returns(),
		"elapsed": nonNil(res.Elapsed),
		"last":    res.Last,
		"best":    best,
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
