// Package session maps browser and RPC sessions to mounted views.
//
// Each session owns exactly one view.View. Sessions idle for longer than the
// configured timeout are torn down by a background sweeper, which closes the
// view and with it every timer it owns.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/rewardboard/pkg/view"
)

// DefaultIdleTimeout is used when Options.IdleTimeout is zero.
const DefaultIdleTimeout = 10 * time.Minute

// ErrUnknownSession is returned for ids that were never opened or already
// expired.
var ErrUnknownSession = errors.New("unknown session")

// ErrRegistryClosed is returned by Open after Close.
var ErrRegistryClosed = errors.New("session registry closed")

// Factory builds an unstarted view for a new session.
type Factory func() (*view.View, error)

// Options configure a Registry.
type Options struct {
	// NewView builds the view of each session (required).
	NewView Factory

	// IdleTimeout is how long a session survives without being touched.
	IdleTimeout time.Duration

	// SweepInterval is how often idle sessions are looked for; defaults to a
	// quarter of IdleTimeout.
	SweepInterval time.Duration

	// OnChange is called with the number of open sessions after every change.
	OnChange func(active int)

	Logger *slog.Logger
}

type session struct {
	view     *view.View
	lastSeen time.Time
}

// Registry owns the open sessions. It is safe for concurrent use.
type Registry struct {
	newView  Factory
	idle     time.Duration
	onChange func(int)
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

// NewRegistry creates a registry. Views are started with a context derived
// from ctx. Close must be called to stop the sweeper and close every view.
func NewRegistry(ctx context.Context, opts Options) (*Registry, error) {
	if opts.NewView == nil {
		return nil, errors.New("session: view factory is required")
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.IdleTimeout / 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		newView:     opts.NewView,
		idle:        opts.IdleTimeout,
		onChange:    opts.OnChange,
		logger:      logger,
		ctx:         rctx,
		cancel:      cancel,
		sessions:    make(map[string]*session),
		sweepTicker: time.NewTicker(opts.SweepInterval),
		sweepDone:   make(chan struct{}),
	}
	go r.runSweep()
	return r, nil
}

func (r *Registry) runSweep() {
	defer close(r.sweepDone)
	for {
		select {
		case <-r.sweepTicker.C:
			r.sweep(time.Now())
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var expired []*view.View
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.idle {
			expired = append(expired, s.view)
			delete(r.sessions, id)
			r.logger.Info("session expired", "session", id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	for _, v := range expired {
		v.Close()
	}
	r.changed(n)
}

// Open creates a session, mounts its view and returns the new id.
func (r *Registry) Open() (string, *view.View, error) {
	v, err := r.newView()
	if err != nil {
		return "", nil, fmt.Errorf("create view: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", nil, ErrRegistryClosed
	}
	if err := v.Start(r.ctx); err != nil {
		r.mu.Unlock()
		v.Close()
		return "", nil, fmt.Errorf("start view: %w", err)
	}
	id := uuid.NewString()
	r.sessions[id] = &session{view: v, lastSeen: time.Now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session opened", "session", id)
	r.changed(n)
	return id, v, nil
}

// Get returns the view of session id and marks the session as seen.
func (r *Registry) Get(id string) (*view.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	s.lastSeen = time.Now()
	return s.view, nil
}

// GetOrOpen returns the view of session id, opening a new session when id is
// unknown. created reports whether a new session was opened.
func (r *Registry) GetOrOpen(id string) (sid string, v *view.View, created bool, err error) {
	if id != "" {
		if v, err := r.Get(id); err == nil {
			return id, v, false, nil
		}
	}
	sid, v, err = r.Open()
	return sid, v, err == nil, err
}

// Touch marks session id as seen.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.lastSeen = time.Now()
	}
}

// CloseSession tears session id down.
func (r *Registry) CloseSession(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	s.view.Close()
	r.logger.Info("session closed", "session", id)
	r.changed(n)
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the sweeper and closes every session. It is safe to call more
// than once.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		views := make([]*view.View, 0, len(r.sessions))
		for id, s := range r.sessions {
			views = append(views, s.view)
			delete(r.sessions, id)
		}
		r.mu.Unlock()

		r.cancel()
		<-r.sweepDone
		r.sweepTicker.Stop()

		var wg sync.WaitGroup
		for _, v := range views {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v.Close()
			}()
		}
		wg.Wait()
		r.changed(0)
	})
}

func (r *Registry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
