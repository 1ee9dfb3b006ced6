package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/session"
	"github.com/HatiCode/rewardboard/pkg/storage"
	"github.com/HatiCode/rewardboard/pkg/view"
)

func ptr(v float64) *float64 { return &v }

type fakeSource struct{}

func (fakeSource) Results(context.Context) (backend.Results, error) {
	return backend.Results{
		Series:  backend.TimeSeries{Points: []backend.Point{{Step: 100, Return: -21}, {Step: 200, Return: -19.5}}},
		Elapsed: []float64{1, 2.5},
		Best:    &backend.BestEpisode{Episode: 7, Steps: 1800, Reward: ptr(-18)},
		Last:    ptr(-19.5),
	}, nil
}

func (fakeSource) Runs(context.Context) ([]backend.RunSummary, error) {
	return []backend.RunSummary{
		{Run: "r2", Model: "ppo", BestReward: ptr(12), ElapsedMin: ptr(125)},
		{Run: "r1", Model: "dqn"},
	}, nil
}

func (fakeSource) RunResults(_ context.Context, run string) (backend.Results, error) {
	switch run {
	case "r1", "r2":
		return backend.Results{Series: backend.TimeSeries{
			Run:    run,
			Points: []backend.Point{{Step: 1, Return: -20}, {Step: 2, Return: -15}},
		}}, nil
	default:
		return backend.Results{}, backend.ErrNotFound
	}
}

func newTestRoutes(t *testing.T, opts Options) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := storage.NewMemoryStore()
	reg, err := session.NewRegistry(context.Background(), session.Options{
		NewView: func() (*view.View, error) {
			return view.New(view.Options{
				Source:   fakeSource{},
				Cache:    store,
				Interval: time.Hour,
				Logger:   logger,
			})
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	t.Cleanup(reg.Close)

	opts.Sessions = reg
	opts.Logger = logger
	return SetupRoutes(opts)
}

func do(h http.Handler, method, target string, cookie *http.Cookie, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", CookieName)
	return nil
}

func decodeModel(t *testing.T, w *httptest.ResponseRecorder) view.Model {
	t.Helper()
	var m view.Model
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode model: %v", err)
	}
	return m
}

// settle polls /api/view until cond holds.
func settle(t *testing.T, h http.Handler, cookie *http.Cookie, cond func(view.Model) bool) view.Model {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m := decodeModel(t, do(h, http.MethodGet, "/api/view", cookie, "", nil))
		if cond(m) {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("view never settled, last model: %+v", m)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSetupRoutes_Healthz(t *testing.T) {
	mux := newTestRoutes(t, Options{})

	w := do(mux, http.MethodGet, "/healthz", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "OK" {
		t.Errorf("body = %q, want %q", w.Body.String(), "OK")
	}
}

func TestSetupRoutes_HealthzCheckFails(t *testing.T) {
	mux := newTestRoutes(t, Options{Health: func(context.Context) error {
		return errors.New("redis unreachable")
	}})

	w := do(mux, http.MethodGet, "/healthz", nil, "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(w.Body.String(), "redis unreachable") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestSetupRoutes_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "rewardboard_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	mux := newTestRoutes(t, Options{Gatherer: reg})

	w := do(mux, http.MethodGet, "/metrics", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "rewardboard_test_total 1") {
		t.Errorf("metrics output missing counter: %s", w.Body.String())
	}
}

func TestAPIView_DefaultSelection(t *testing.T) {
	mux := newTestRoutes(t, Options{})

	first := do(mux, http.MethodGet, "/api/view", nil, "", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", first.Code, http.StatusOK)
	}
	if ct := first.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	cookie := sessionCookie(t, first)
	if !cookie.HttpOnly || cookie.Path != "/" {
		t.Errorf("cookie = %+v, want HttpOnly with path /", cookie)
	}

	m := settle(t, mux, cookie, func(m view.Model) bool { return len(m.Series) == 1 })

	if !slices.Equal(m.Selection, []string{"r2"}) {
		t.Errorf("selection = %v, want [r2]", m.Selection)
	}
	if m.Series[0].Label != "r2" || m.Series[0].Color != view.Palette[0] {
		t.Errorf("series = %+v", m.Series[0])
	}
	if len(m.Rows) != 1 || m.Rows[0].Elapsed != "02:05" {
		t.Errorf("rows = %+v, want only r2 with elapsed 02:05", m.Rows)
	}
	if m.ShowHide == nil || m.ShowHide.Label != "Show 1 older runs" {
		t.Errorf("show/hide = %+v", m.ShowHide)
	}
	if !m.Live.Available || m.Live.BestEpisode != "7" {
		t.Errorf("live = %+v", m.Live)
	}

	// The same cookie keeps the session; no new cookie is issued.
	again := do(mux, http.MethodGet, "/api/view", cookie, "", nil)
	if len(again.Result().Cookies()) != 0 {
		t.Error("known session should not get a new cookie")
	}
}

func TestAPIView_StaleCookieOpensSession(t *testing.T) {
	mux := newTestRoutes(t, Options{})

	w := do(mux, http.MethodGet, "/api/view", &http.Cookie{Name: CookieName, Value: "expired"}, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if c := sessionCookie(t, w); c.Value == "expired" {
		t.Error("stale session id was reused")
	}
}

func TestToggle(t *testing.T) {
	mux := newTestRoutes(t, Options{})
	cookie := sessionCookie(t, do(mux, http.MethodGet, "/api/view", nil, "", nil))
	settle(t, mux, cookie, func(m view.Model) bool { return len(m.Selection) == 1 })

	w := do(mux, http.MethodPost, "/api/runs/r1/toggle", cookie, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	m := decodeModel(t, w)
	if !slices.Equal(m.Selection, []string{"r2", "r1"}) {
		t.Errorf("selection = %v, want [r2 r1]", m.Selection)
	}

	m = settle(t, mux, cookie, func(m view.Model) bool { return len(m.Series) == 2 })
	if m.Series[1].Label != "r1" || m.Series[1].Color != view.Palette[1] {
		t.Errorf("series[1] = %+v", m.Series[1])
	}

	// Form posts from the page redirect back to it.
	form := do(mux, http.MethodPost, "/api/runs/r1/toggle", cookie, "application/x-www-form-urlencoded", strings.NewReader(""))
	if form.Code != http.StatusSeeOther || form.Header().Get("Location") != "/" {
		t.Errorf("form post = %d %q, want 303 /", form.Code, form.Header().Get("Location"))
	}
	m = settle(t, mux, cookie, func(m view.Model) bool { return len(m.Selection) == 1 })
	if m.Selection[0] != "r2" {
		t.Errorf("selection = %v, want [r2]", m.Selection)
	}
}

func TestToggle_InvalidRun(t *testing.T) {
	mux := newTestRoutes(t, Options{})

	w := do(mux, http.MethodPost, "/api/runs/bad%20id/toggle", nil, "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	get := do(mux, http.MethodGet, "/api/runs/r1/toggle", nil, "", nil)
	if get.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET toggle status = %d, want %d", get.Code, http.StatusMethodNotAllowed)
	}
}

func TestShowAll(t *testing.T) {
	mux := newTestRoutes(t, Options{})
	cookie := sessionCookie(t, do(mux, http.MethodGet, "/api/view", nil, "", nil))
	settle(t, mux, cookie, func(m view.Model) bool { return len(m.Rows) == 1 })

	m := decodeModel(t, do(mux, http.MethodPost, "/api/show-all", cookie, "", nil))
	if len(m.Rows) != 2 || m.ShowHide == nil || m.ShowHide.Label != "Hide 1 older runs" {
		t.Errorf("after toggle rows = %d, show/hide = %+v", len(m.Rows), m.ShowHide)
	}

	m = decodeModel(t, do(mux, http.MethodPost, "/api/show-all?show=false", cookie, "", nil))
	if len(m.Rows) != 1 {
		t.Errorf("after show=false rows = %d, want 1", len(m.Rows))
	}

	m = decodeModel(t, do(mux, http.MethodPost, "/api/show-all?show=true", cookie, "", nil))
	if len(m.Rows) != 2 {
		t.Errorf("after show=true rows = %d, want 2", len(m.Rows))
	}

	bad := do(mux, http.MethodPost, "/api/show-all?show=maybe", cookie, "", nil)
	if bad.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", bad.Code, http.StatusBadRequest)
	}
}

func TestIndex(t *testing.T) {
	mux := newTestRoutes(t, Options{ModelAsset: "/static/paddle.glb"})
	cookie := sessionCookie(t, do(mux, http.MethodGet, "/api/view", nil, "", nil))
	settle(t, mux, cookie, func(m view.Model) bool { return len(m.Rows) == 1 })

	w := do(mux, http.MethodGet, "/", cookie, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := w.Body.String()
	for _, want := range []string{
		"<model-viewer",
		`src="/static/paddle.glb"`,
		"disable-zoom",
		`action="/api/runs/r2/toggle"`,
		"Show 1 older runs",
		rules[0],
		`src="/chart.svg"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	if nf := do(mux, http.MethodGet, "/nope", cookie, "", nil); nf.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", nf.Code)
	}
}

func TestChart(t *testing.T) {
	mux := newTestRoutes(t, Options{})

	w := do(mux, http.MethodGet, "/chart.svg", nil, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", ct)
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("body is not an SVG document")
	}
}

func TestWebSocket_StreamsChanges(t *testing.T) {
	mux := newTestRoutes(t, Options{})
	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("handshake did not set a session cookie")
	}

	readUntil := func(cond func(view.Model) bool) view.Model {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var m view.Model
			if err := conn.ReadJSON(&m); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			if cond(m) {
				return m
			}
		}
	}

	readUntil(func(m view.Model) bool { return slices.Equal(m.Selection, []string{"r2"}) })

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/runs/r1/toggle", nil)
	req.AddCookie(cookie)
	toggle, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("toggle request error = %v", err)
	}
	toggle.Body.Close()

	m := readUntil(func(m view.Model) bool { return len(m.Series) == 2 })
	if !slices.Equal(m.Selection, []string{"r2", "r1"}) {
		t.Errorf("selection = %v, want [r2 r1]", m.Selection)
	}
}
