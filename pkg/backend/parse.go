package backend

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseResults decodes a /results payload.
//
// The body must be a JSON object; a missing or non-array "steps" or "returns"
// field yields an empty series rather than an error.
func ParseResults(run string, body []byte) (Results, error) {
	if !gjson.ValidBytes(body) {
		return Results{}, errors.New("results: invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Results{}, fmt.Errorf("results: expected object, got %s", root.Type)
	}

	res := Results{
		Series: TimeSeries{
			Run:    run,
			Points: ParsePoints(root.Get("steps"), root.Get("returns")),
		},
		Elapsed: parseColumn(root.Get("elapsed")),
	}

	if last, ok := parseNumber(root.Get("last")); ok {
		res.Last = &last
	}

	if best := root.Get("best"); best.IsObject() {
		b := &BestEpisode{}
		if v, ok := parseNumber(best.Get("episode")); ok {
			b.Episode = int(v)
		}
		if v, ok := parseNumber(best.Get("steps")); ok {
			b.Steps = int(v)
		}
		if v, ok := parseNumber(best.Get("reward")); ok {
			b.Reward = &v
		}
		res.Best = b
	}

	return res, nil
}

// ParsePoints zips the steps and returns columns into points.
// Pairs where either side fails to parse are skipped; trailing entries of the
// longer column are ignored.
func ParsePoints(steps, returns gjson.Result) []Point {
	if !steps.IsArray() || !returns.IsArray() {
		return []Point{}
	}

	xs := steps.Array()
	ys := returns.Array()
	n := min(len(xs), len(ys))

	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		step, ok := parseNumber(xs[i])
		if !ok {
			continue
		}
		ret, ok := parseNumber(ys[i])
		if !ok {
			continue
		}
		points = append(points, Point{Step: step, Return: ret})
	}
	return points
}

// ParseRuns decodes a /runs payload. Entries without a run identifier are
// skipped.
func ParseRuns(body []byte) ([]RunSummary, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("runs: invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("runs: expected array, got %s", root.Type)
	}

	runs := make([]RunSummary, 0, len(root.Array()))
	for _, item := range root.Array() {
		if !item.IsObject() {
			continue
		}
		id := parseString(item.Get("run"))
		if id == "" {
			continue
		}
		rs := RunSummary{
			Run:   id,
			Model: parseString(item.Get("model")),
		}
		if v, ok := parseNumber(item.Get("best_reward")); ok {
			rs.BestReward = &v
		}
		if v, ok := parseNumber(item.Get("last_avg_return")); ok {
			rs.LastAvgReturn = &v
		}
		if v, ok := parseNumber(item.Get("elapsed_min")); ok {
			rs.ElapsedMin = &v
		}
		runs = append(runs, rs)
	}
	return runs, nil
}

func parseColumn(v gjson.Result) []float64 {
	if !v.IsArray() {
		return nil
	}
	var out []float64
	for _, item := range v.Array() {
		if f, ok := parseNumber(item); ok {
			out = append(out, f)
		}
	}
	return out
}

// parseNumber accepts JSON numbers and numeric strings. NaN and infinities are
// rejected.
func parseNumber(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return v.Raw
	default:
		return ""
	}
}
