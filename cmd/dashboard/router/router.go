// Package router configures HTTP routes for the dashboard.
//
// Routes configured:
//   - GET /                        - HTML dashboard
//   - GET /chart.svg               - reward chart of the session's view
//   - GET /api/view                - composed view model as JSON
//   - POST /api/runs/{run}/toggle  - toggle a run's selection
//   - POST /api/show-all           - show or hide older runs
//   - GET /ws                      - WebSocket stream of view models
//   - GET /healthz                 - health check
//   - GET /metrics                 - Prometheus metrics endpoint
//
// Every browser gets a session cookie; the session owns one view, so two tabs
// sharing a cookie share a selection. Form posts from the HTML page are
// answered with a redirect to /, everything else with the view model.
package router

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/rewardboard/pkg/httpx"
	"github.com/HatiCode/rewardboard/pkg/render"
	"github.com/HatiCode/rewardboard/pkg/session"
	"github.com/HatiCode/rewardboard/pkg/storage"
	"github.com/HatiCode/rewardboard/pkg/view"
)

// CookieName is the session cookie.
const CookieName = "rewardboard_session"

// Options configure the routes.
type Options struct {
	// Sessions owns the per-browser views (required).
	Sessions *session.Registry

	// Gatherer backs /metrics; the default gatherer when nil.
	Gatherer prometheus.Gatherer

	// Health is checked by /healthz when set.
	Health func(ctx context.Context) error

	// ModelAsset is the URL of the mesh shown by the 3D viewer.
	ModelAsset string

	// SecureCookie marks the session cookie Secure (TLS deployments).
	SecureCookie bool

	Chart  render.ChartOptions
	Logger *slog.Logger
}

type handler struct {
	sessions   *session.Registry
	modelAsset string
	secure     bool
	chart      render.ChartOptions
	logger     *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the dashboard.
func SetupRoutes(opts Options) *http.ServeMux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chartOpts := opts.Chart
	if chartOpts.Width <= 0 || chartOpts.Height <= 0 {
		chartOpts = render.DefaultChartOptions
	}
	h := &handler{
		sessions:   opts.Sessions,
		modelAsset: opts.ModelAsset,
		secure:     opts.SecureCookie,
		chart:      chartOpts,
		logger:     logger,
	}

	mux := http.NewServeMux()

	// Health check endpoint
	if opts.Health != nil {
		mux.Handle("/healthz", httpx.HealthHandlerWithCheck(opts.Health))
	} else {
		mux.Handle("/healthz", httpx.HealthHandler())
	}

	// Prometheus metrics endpoint
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /chart.svg", h.handleChart)
	mux.HandleFunc("GET /api/view", h.handleView)
	mux.HandleFunc("POST /api/runs/{run}/toggle", h.handleToggle)
	mux.HandleFunc("POST /api/show-all", h.handleShowAll)
	mux.HandleFunc("GET /ws", h.handleWebSocket)

	return mux
}

// resolve returns the caller's session, opening one when the cookie is
// missing or stale. cookie is non-nil when a new session was opened.
func (h *handler) resolve(r *http.Request) (string, *view.View, *http.Cookie, error) {
	var id string
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}

	sid, v, created, err := h.sessions.GetOrOpen(id)
	if err != nil {
		return "", nil, nil, err
	}
	if !created {
		return sid, v, nil, nil
	}
	return sid, v, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// session resolves the session and sets the cookie on w when needed. It
// writes an error response and returns nil when no session is available.
func (h *handler) session(w http.ResponseWriter, r *http.Request) *view.View {
	_, v, cookie, err := h.resolve(r)
	if err != nil {
		h.logger.Error("failed to open session", "error", err)
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "session unavailable")
		return nil
	}
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	return v
}

func (h *handler) handleView(w http.ResponseWriter, r *http.Request) {
	v := h.session(w, r)
	if v == nil {
		return
	}
	h.writeModel(w, r, v)
}

func (h *handler) handleChart(w http.ResponseWriter, r *http.Request) {
	v := h.session(w, r)
	if v == nil {
		return
	}

	var buf bytes.Buffer
	if err := render.ChartSVG(&buf, v.Model(r.Context()), h.chart); err != nil {
		h.logger.Error("failed to render chart", "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "chart rendering failed")
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("failed to write chart", "error", err)
	}
}

func (h *handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	run := r.PathValue("run")
	if err := storage.ValidateRun(run); err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid run identifier")
		return
	}

	v := h.session(w, r)
	if v == nil {
		return
	}
	if _, err := v.Toggle(run); err != nil {
		h.writeViewError(w, err)
		return
	}
	h.respond(w, r, v)
}

func (h *handler) handleShowAll(w http.ResponseWriter, r *http.Request) {
	v := h.session(w, r)
	if v == nil {
		return
	}

	var err error
	if raw := r.FormValue("show"); raw != "" {
		show, perr := strconv.ParseBool(raw)
		if perr != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "show must be a boolean")
			return
		}
		err = v.SetShowAll(show)
	} else {
		_, err = v.ToggleShowAll()
	}
	if err != nil {
		h.writeViewError(w, err)
		return
	}
	h.respond(w, r, v)
}

// respond redirects form posts back to the page and answers API calls with
// the view model.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, v *view.View) {
	if isFormPost(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.writeModel(w, r, v)
}

func (h *handler) writeModel(w http.ResponseWriter, r *http.Request, v *view.View) {
	if err := httpx.WriteJSON(w, http.StatusOK, v.Model(r.Context())); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *handler) writeViewError(w http.ResponseWriter, err error) {
	if errors.Is(err, view.ErrClosed) {
		httpx.WriteErrorMessage(w, http.StatusConflict, "session closed, reload the page")
		return
	}
	h.logger.Error("view update failed", "error", err)
	httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

func isFormPost(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}
