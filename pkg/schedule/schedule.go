// Package schedule runs periodic work with an explicit cancellation handle.
//
// A Task owns one goroutine driven by a time.Ticker. Every tick runs in its
// own goroutine, so a slow tick delays only its own work and never the next
// one. Stop cancels the context passed to ticks and waits for the loop and all
// in-flight ticks to return.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickFunc is the work performed on every tick. Errors are logged and the
// task keeps running.
type TickFunc func(ctx context.Context) error

// Options configure a Task.
type Options struct {
	// Name appears in log records.
	Name string

	// Interval between ticks (required, > 0).
	Interval time.Duration

	// Immediate runs the first tick as soon as the task starts instead of
	// after the first interval.
	Immediate bool

	// Logger is optional; slog.Default() is used when nil.
	Logger *slog.Logger
}

// Task is a running periodic task.
type Task struct {
	name     string
	interval time.Duration
	fn       TickFunc
	logger   *slog.Logger

	cancel   context.CancelFunc
	loopDone chan struct{}
	ticks    sync.WaitGroup
	stopOnce sync.Once
}

// Start launches a task calling fn every opts.Interval until Stop is called or
// parent is canceled.
func Start(parent context.Context, opts Options, fn TickFunc) *Task {
	if opts.Interval <= 0 {
		panic("schedule: interval must be positive")
	}
	if fn == nil {
		panic("schedule: nil tick func")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		name:     opts.Name,
		interval: opts.Interval,
		fn:       fn,
		logger:   logger.With("task", opts.Name),
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}

	go t.run(ctx, opts.Immediate)
	return t
}

func (t *Task) run(ctx context.Context, immediate bool) {
	defer close(t.loopDone)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if immediate {
		t.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick must only be called from the loop goroutine so that Add never races
// with the Wait in Stop.
func (t *Task) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	t.ticks.Add(1)
	go func() {
		defer t.ticks.Done()
		if err := t.fn(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error("tick failed", "error", err)
		}
	}()
}

// Cancel stops future ticks without waiting for in-flight ones. Stop must
// still be called to wait for them.
func (t *Task) Cancel() { t.cancel() }

// Stop cancels the task and blocks until the loop and every in-flight tick
// have returned. It is safe to call more than once.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.loopDone
		t.ticks.Wait()
	})
}

// Interval returns the task period.
func (t *Task) Interval() time.Duration { return t.interval }
