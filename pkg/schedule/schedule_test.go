package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTask_ImmediateFirstTick(t *testing.T) {
	ran := make(chan struct{}, 1)
	task := Start(context.Background(), Options{Name: "live", Interval: time.Hour, Immediate: true, Logger: discardLogger()},
		func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		})
	defer task.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate tick did not run")
	}
}

func TestTask_NoImmediateTick(t *testing.T) {
	var calls atomic.Int32
	task := Start(context.Background(), Options{Interval: time.Hour, Logger: discardLogger()},
		func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})

	time.Sleep(30 * time.Millisecond)
	task.Stop()

	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

func TestTask_Periodic(t *testing.T) {
	var calls atomic.Int32
	task := Start(context.Background(), Options{Interval: 10 * time.Millisecond, Logger: discardLogger()},
		func(ctx context.Context) error {
			calls.Add(1)
			return errors.New("backend down")
		})

	time.Sleep(75 * time.Millisecond)
	task.Stop()

	if got := calls.Load(); got < 3 {
		t.Errorf("calls = %d, want at least 3 (errors must not stop the task)", got)
	}
}

func TestTask_SlowTickDoesNotBlockNext(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	task := Start(context.Background(), Options{Interval: 10 * time.Millisecond, Immediate: true, Logger: discardLogger()},
		func(ctx context.Context) error {
			started.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		})

	time.Sleep(60 * time.Millisecond)
	got := started.Load()
	close(release)
	task.Stop()

	if got < 2 {
		t.Errorf("ticks started while first was blocked = %d, want >= 2", got)
	}
}

func TestTask_StopWaitsAndCancels(t *testing.T) {
	var calls atomic.Int32
	var finished atomic.Bool
	task := Start(context.Background(), Options{Interval: 5 * time.Millisecond, Immediate: true, Logger: discardLogger()},
		func(ctx context.Context) error {
			calls.Add(1)
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			finished.Store(true)
			return ctx.Err()
		})

	time.Sleep(20 * time.Millisecond)
	task.Stop()

	if !finished.Load() {
		t.Error("Stop() returned before in-flight ticks finished")
	}

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("tick ran after Stop(): %d -> %d", after, calls.Load())
	}

	task.Stop()
}

func TestTask_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Start(ctx, Options{Interval: time.Millisecond, Logger: discardLogger()},
		func(ctx context.Context) error { return nil })

	cancel()

	done := make(chan struct{})
	go func() {
		task.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() after parent cancel did not return")
	}
}

func TestStart_InvalidInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Start() with zero interval should panic")
		}
	}()
	Start(context.Background(), Options{}, func(ctx context.Context) error { return nil })
}
