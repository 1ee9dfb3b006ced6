package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	rewardtls "github.com/HatiCode/rewardboard/pkg/tls"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusCreated, map[string]int{"n": 2}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"n":2}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, errors.New("bad run"))

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusBadRequest || resp.Error != "bad run" {
		t.Errorf("got %d %+v", rec.Code, resp)
	}
}

func TestHealthHandlerWithCheck(t *testing.T) {
	tests := []struct {
		name       string
		check      func(context.Context) error
		wantStatus int
	}{
		{"healthy", func(context.Context) error { return nil }, http.StatusOK},
		{"unhealthy", func(context.Context) error { return errors.New("redis down") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthHandlerWithCheck(tt.check)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddlewares(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), LoggingMiddleware(discardLogger()), RecoveryMiddleware(discardLogger()), mw("a"), mw("b"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Join(order, ",") != "a,b" {
		t.Errorf("middleware order = %v", order)
	}
}

func TestResponseWriter_Hijack(t *testing.T) {
	var hijacked bool
	h := LoggingMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("wrapped writer does not implement http.Hijacker")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("Hijack() error = %v", err)
			return
		}
		hijacked = true
		_ = conn.Close()
	}))

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
	}
	if !hijacked {
		t.Error("connection was not hijacked")
	}
}

func TestServer_ServeAndStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.Handle("/healthz", HealthHandler())
	s := NewServer(ln.Addr().String(), mux, discardLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve() error = %v, want nil after Stop", err)
	}
}

func TestServer_StartTLSRequiresCertificate(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NewServeMux(), discardLogger())
	if err := s.StartTLS(); err == nil {
		t.Error("StartTLS() without config should fail")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(rewardtls.Config{}, 0)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", c.Timeout)
	}
	if _, err := NewClient(rewardtls.Config{Enabled: true, CAFile: "/does/not/exist"}, time.Second); err == nil {
		t.Error("NewClient() with missing CA should fail")
	}
}
