// Package view keeps one dashboard view in sync with the training backend.
//
// A View owns a State (run list, selection, live results) and two periodic
// tasks: the live task refreshes the live series and the run list, the
// selection task refreshes every selected run's cached series. The selection
// task is rebuilt on every selection change and does not exist while nothing
// is selected. Selecting a run that has no cache entry issues exactly one
// population fetch for it.
//
// Fetch failures are logged and leave the previous state in place; the next
// tick retries.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/schedule"
	"github.com/HatiCode/rewardboard/pkg/storage"
)

// DefaultInterval is the refresh period of both tasks.
const DefaultInterval = 5 * time.Second

// Endpoint labels passed to Observer.ObserveFetch.
const (
	EndpointResults    = "results"
	EndpointRuns       = "runs"
	EndpointRunResults = "run_results"
)

// ErrClosed is returned by operations on a closed view.
var ErrClosed = errors.New("view closed")

// Observer receives fetch, cache and selection events. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveFetch(endpoint string, duration time.Duration, err error)
	ObserveCachePut(run string)
	ObserveSelectionChange()
}

// Options configure a View.
type Options struct {
	// Source is the backend client (required).
	Source backend.Source

	// Cache is the run cache, usually shared by all views (required).
	Cache storage.Store

	// Interval is the refresh period; DefaultInterval when zero.
	Interval time.Duration

	// FetchTimeout bounds each backend call; zero means no timeout.
	FetchTimeout time.Duration

	Logger   *slog.Logger
	Observer Observer
}

// View is one mounted dashboard view.
type View struct {
	src          backend.Source
	cache        storage.Store
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	obs          Observer

	mu        sync.Mutex
	state     *State
	requested map[string]bool
	// retained holds the last series seen for each selected run, so an
	// expired cache entry does not blank the chart during an outage.
	retained map[string]backend.TimeSeries
	ctx       context.Context
	cancel    context.CancelFunc
	liveTask  *schedule.Task
	selTask   *schedule.Task
	started   bool
	closed    bool
	subs      map[int]chan struct{}
	nextSub   int

	// bg tracks population fetches and retired selection tasks.
	bg sync.WaitGroup
}

// New creates a view. Start must be called to begin polling.
func New(opts Options) (*View, error) {
	if opts.Source == nil {
		return nil, errors.New("view: source is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("view: cache is required")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("view: interval must be positive, got %s", opts.Interval)
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &View{
		src:          opts.Source,
		cache:        opts.Cache,
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		logger:       logger,
		obs:          opts.Observer,
		state:        NewState(),
		requested:    make(map[string]bool),
		retained:     make(map[string]backend.TimeSeries),
		subs:         make(map[int]chan struct{}),
	}, nil
}

// Start mounts the view: the live task runs once immediately and then every
// interval until Close is called or ctx is canceled.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if v.started {
		return errors.New("view: already started")
	}
	v.started = true
	v.ctx, v.cancel = context.WithCancel(ctx)

	v.liveTask = schedule.Start(v.ctx, schedule.Options{
		Name:      "live",
		Interval:  v.interval,
		Immediate: true,
		Logger:    v.logger,
	}, v.RefreshLive)

	// Selections made before mounting take effect now.
	v.selectionChangedLocked()
	return nil
}

// Close tears the view down. It cancels both tasks and waits for every
// in-flight fetch; no fetch is issued after Close returns. Close is
// idempotent.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
	}
	live, sel := v.liveTask, v.selTask
	v.liveTask, v.selTask = nil, nil
	for id, ch := range v.subs {
		close(ch)
		delete(v.subs, id)
	}
	v.mu.Unlock()

	if live != nil {
		live.Stop()
	}
	if sel != nil {
		sel.Stop()
	}
	v.bg.Wait()
}

// Closed reports whether Close was called.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// RefreshLive fetches the live series and the run list. Each successful fetch
// replaces its own part of the state; failures are returned joined.
func (v *View) RefreshLive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error

	live, err := v.fetchResults(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("fetch live results: %w", err))
	}
	runs, runsErr := v.fetchRuns(ctx)
	if runsErr != nil {
		errs = append(errs, fmt.Errorf("fetch runs: %w", runsErr))
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.Join(errs...)
	}
	changed := false
	if err == nil {
		v.state.SetLive(live)
		changed = true
	}
	if runsErr == nil {
		changed = true
		if run, ok := v.state.ReplaceRuns(runs); ok {
			v.logger.Info("selected newest run", "run", run)
			v.selectionChangedLocked()
		}
	}
	if changed {
		v.notifyLocked()
	}
	v.mu.Unlock()

	return errors.Join(errs...)
}

// RefreshRun fetches one run's series and overwrites its cache entry. On
// failure the previous entry is kept, and a selected run keeps its last
// series even if the cache entry expires meanwhile.
func (v *View) RefreshRun(ctx context.Context, run string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := v.fetchRun(ctx, run)
	if err != nil {
		return fmt.Errorf("fetch run %s: %w", run, err)
	}

	v.retain(run, res.Series)
	if err := v.cache.Put(ctx, storage.Entry{Run: run, Series: res.Series, FetchedAt: time.Now()}); err != nil {
		return fmt.Errorf("cache run %s: %w", run, err)
	}
	if v.obs != nil {
		v.obs.ObserveCachePut(run)
	}

	v.mu.Lock()
	v.notifyLocked()
	v.mu.Unlock()
	return nil
}

// Toggle flips run's membership in the selection and reports whether it is
// selected afterwards.
func (v *View) Toggle(run string) (bool, error) {
	if run == "" {
		return false, errors.New("run identifier required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false, ErrClosed
	}
	selected := v.state.Toggle(run)
	if !selected {
		delete(v.requested, run)
		delete(v.retained, run)
	}
	if v.obs != nil {
		v.obs.ObserveSelectionChange()
	}
	v.selectionChangedLocked()
	v.notifyLocked()
	return selected, nil
}

// SetShowAll sets the table display gate.
func (v *View) SetShowAll(show bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if v.state.ShowAll() != show {
		v.state.SetShowAll(show)
		v.notifyLocked()
	}
	return nil
}

// ToggleShowAll flips the table display gate and returns the new value.
func (v *View) ToggleShowAll() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false, ErrClosed
	}
	show := !v.state.ShowAll()
	v.state.SetShowAll(show)
	v.notifyLocked()
	return show, nil
}

// Selection returns the selected run identifiers in selection order.
func (v *View) Selection() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Selection()
}

// retain records series as the last good data of run while it is selected.
func (v *View) retain(run string, series backend.TimeSeries) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed && v.state.IsSelected(run) {
		v.retained[run] = series
	}
}

// Snapshot returns a read-only copy of the state, with the cached series of
// every selected run. A run missing from the cache, or whose cache read
// fails, falls back to the last series this view saw for it.
func (v *View) Snapshot(ctx context.Context) Input {
	v.mu.Lock()
	in := Input{
		Runs:      v.state.Runs(),
		Selection: v.state.Selection(),
		ShowAll:   v.state.ShowAll(),
	}
	in.Live, in.HasLive = v.state.Live()
	v.mu.Unlock()

	in.Cache = make(map[string]backend.TimeSeries, len(in.Selection))
	for _, run := range in.Selection {
		entry, found, err := v.cache.Get(ctx, run)
		if err != nil {
			v.logger.Warn("cache read failed", "run", run, "error", err)
		}
		if found && err == nil {
			in.Cache[run] = entry.Series
		}
	}

	v.mu.Lock()
	for _, run := range in.Selection {
		if !v.state.IsSelected(run) {
			continue
		}
		if ts, ok := in.Cache[run]; ok {
			v.retained[run] = ts
		} else if ts, ok := v.retained[run]; ok {
			in.Cache[run] = ts
		}
	}
	v.mu.Unlock()
	return in
}

// Model composes the current state.
func (v *View) Model(ctx context.Context) Model {
	return Compose(v.Snapshot(ctx))
}

// Subscribe returns a channel receiving a value after state changes. Bursts of
// changes are coalesced into one value. The channel is closed when the view
// closes; call the returned func to unsubscribe earlier.
func (v *View) Subscribe() (<-chan struct{}, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan struct{}, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.subs[id]; ok {
				close(c)
				delete(v.subs, id)
			}
		})
	}
}

func (v *View) notifyLocked() {
	for _, ch := range v.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// selectionChangedLocked rebuilds the selection task for the current
// selection and issues population fetches for selected runs not yet
// requested. It is a no-op before Start.
func (v *View) selectionChangedLocked() {
	if !v.started || v.closed {
		return
	}

	if old := v.selTask; old != nil {
		old.Cancel()
		v.bg.Add(1)
		go func() {
			defer v.bg.Done()
			old.Stop()
		}()
		v.selTask = nil
	}

	selection := v.state.Selection()
	if len(selection) > 0 {
		v.selTask = schedule.Start(v.ctx, schedule.Options{
			Name:     "selection",
			Interval: v.interval,
			Logger:   v.logger,
		}, func(ctx context.Context) error {
			return v.refreshSelection(ctx, selection)
		})
	}

	for _, run := range selection {
		if v.requested[run] {
			continue
		}
		v.requested[run] = true
		v.bg.Add(1)
		go v.populate(run)
	}
}

// populate fetches run once unless it is already cached.
func (v *View) populate(run string) {
	defer v.bg.Done()

	ctx := v.ctx
	if ctx.Err() != nil {
		return
	}
	if entry, found, err := v.cache.Get(ctx, run); err == nil && found {
		v.retain(run, entry.Series)
		v.mu.Lock()
		v.notifyLocked()
		v.mu.Unlock()
		return
	}
	if err := v.RefreshRun(ctx, run); err != nil && ctx.Err() == nil {
		v.logger.Warn("population fetch failed", "run", run, "error", err)
	}
}

// refreshSelection refreshes every run of one selection epoch concurrently.
func (v *View) refreshSelection(ctx context.Context, selection []string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(selection))
	for i, run := range selection {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = v.RefreshRun(ctx, run)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (v *View) fetchResults(ctx context.Context) (backend.Results, error) {
	ctx, cancel := v.fetchContext(ctx)
	defer cancel()
	start := time.Now()
	res, err := v.src.Results(ctx)
	v.observeFetch(EndpointResults, start, err)
	return res, err
}

func (v *View) fetchRuns(ctx context.Context) ([]backend.RunSummary, error) {
	ctx, cancel := v.fetchContext(ctx)
	defer cancel()
	start := time.Now()
	runs, err := v.src.Runs(ctx)
	v.observeFetch(EndpointRuns, start, err)
	return runs, err
}

func (v *View) fetchRun(ctx context.Context, run string) (backend.Results, error) {
	ctx, cancel := v.fetchContext(ctx)
	defer cancel()
	start := time.Now()
	res, err := v.src.RunResults(ctx, run)
	v.observeFetch(EndpointRunResults, start, err)
	return res, err
}

func (v *View) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.fetchTimeout > 0 {
		return context.WithTimeout(ctx, v.fetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (v *View) observeFetch(endpoint string, start time.Time, err error) {
	if v.obs != nil {
		v.obs.ObserveFetch(endpoint, time.Since(start), err)
	}
}
