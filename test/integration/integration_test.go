//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/HatiCode/rewardboard/cmd/dashboard/router"
	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/backend/backendtest"
	"github.com/HatiCode/rewardboard/pkg/session"
	"github.com/HatiCode/rewardboard/pkg/storage"
	"github.com/HatiCode/rewardboard/pkg/view"
)

func ptr(v float64) *float64 { return &v }

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

// newReplica builds one dashboard replica: its own sessions, the shared cache.
func newReplica(t *testing.T, backendURL string, cache storage.Store) *session.Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	src, err := backend.NewHTTPSource(backendURL, nil, nil)
	if err != nil {
		t.Fatalf("NewHTTPSource() error = %v", err)
	}
	reg, err := session.NewRegistry(context.Background(), session.Options{
		NewView: func() (*view.View, error) {
			return view.New(view.Options{Source: src, Cache: cache, Interval: time.Hour, Logger: logger})
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	t.Cleanup(reg.Close)
	return reg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestDashboardReplicasShareRedisCache runs two replicas against one backend
// and one Redis run cache: a run fetched by one replica is not fetched again
// by the other.
func TestDashboardReplicasShareRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	fake := backendtest.New()
	fake.SetRuns(
		backend.RunSummary{Run: "20251004_101500", Model: "dqn", BestReward: ptr(15)},
		backend.RunSummary{Run: "20251003_232605", Model: "ppo"},
	)
	fake.Append("20251004_101500", 2, backend.Point{Step: 5000, Return: -20}, backend.Point{Step: 10000, Return: -12.5})
	fake.Append("20251003_232605", 90, backend.Point{Step: 5000, Return: -21})
	backendServer := httptest.NewServer(fake)
	defer backendServer.Close()

	cache, err := storage.NewRedisStore(startRedis(t), "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer cache.Close()

	replicaA := newReplica(t, backendServer.URL, cache)
	replicaB := newReplica(t, backendServer.URL, cache)

	// Replica A is driven over HTTP like a browser would.
	dashboard := httptest.NewServer(router.SetupRoutes(router.Options{
		Sessions: replicaA,
		Health:   cache.Ping,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	defer dashboard.Close()

	resp, err := http.Get(dashboard.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	var cookie *http.Cookie
	getModel := func() view.Model {
		req, _ := http.NewRequest(http.MethodGet, dashboard.URL+"/api/view", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /api/view error = %v", err)
		}
		defer resp.Body.Close()
		for _, c := range resp.Cookies() {
			if c.Name == router.CookieName {
				cookie = c
			}
		}
		var m view.Model
		if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
			t.Fatalf("decode model: %v", err)
		}
		return m
	}

	waitFor(t, "replica A to plot the newest run", func() bool {
		m := getModel()
		return len(m.Series) == 1 && m.Series[0].Label == "20251004_101500"
	})
	if got := fake.Hits("/results/20251004_101500"); got != 1 {
		t.Fatalf("backend fetches of newest run = %d, want 1", got)
	}

	// Replica B's default selection finds the run already cached.
	_, viewB, err := replicaB.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "replica B to plot the newest run", func() bool {
		return len(viewB.Model(context.Background()).Series) == 1
	})
	if got := fake.Hits("/results/20251004_101500"); got != 1 {
		t.Errorf("backend fetches after replica B = %d, want still 1", got)
	}

	// A backend outage keeps the last good state.
	fake.SetFailing(true)
	if err := viewB.RefreshLive(context.Background()); err == nil {
		t.Error("RefreshLive() error = nil during outage")
	}
	if m := viewB.Model(context.Background()); len(m.Rows) != 1 || !m.Live.Available {
		t.Errorf("model after failed refresh = %+v, want previous state", m)
	}
	fake.SetFailing(false)

	// Tearing the replicas down stops all polling.
	replicaA.Close()
	replicaB.Close()
	before := fake.Hits("/results") + fake.Hits("/runs")
	time.Sleep(100 * time.Millisecond)
	if after := fake.Hits("/results") + fake.Hits("/runs"); after != before {
		t.Errorf("backend polled after close: %d -> %d", before, after)
	}
}
