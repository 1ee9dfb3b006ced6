// Command dashboard serves the rewardboard training dashboard.
//
// Each browser session mounts its own view, which polls the training backend
// for the live run and the run list, keeps the selected runs' series in a run
// cache shared by all sessions, and streams the composed view to the page.
//
// The dashboard serves an HTTP UI on port 8080 and a gRPC control surface on
// port 50051 (both configurable) providing:
//   - GET /          - HTML dashboard
//   - GET /ws        - WebSocket view stream
//   - GET /api/view  - View model as JSON
//   - GET /healthz   - Health check endpoint
//   - GET /metrics   - Prometheus metrics endpoint
//   - rewardboard.v1.Dashboard - session control over gRPC
//
// Usage:
//
//	dashboard -backend-url=http://trainer:8000 -poll-interval=5s
//
// Environment variables:
//
//	BACKEND_URL    - Training backend base URL (default: http://localhost:8000)
//	POLL_INTERVAL  - Refresh period (default: 5s)
//	FETCH_TIMEOUT  - Per-request backend timeout (default: none)
//	BACKEND_RPS    - Backend request rate across sessions (default: 20)
//	LISTEN         - HTTP listen address (default: :8080)
//	GRPC_LISTEN    - gRPC listen address, empty disables (default: :50051)
//	STORAGE        - Run cache: memory or redis (default: memory)
//	REDIS_ADDR     - Redis address (default: localhost:6379)
//	CACHE_TTL      - In-memory run cache TTL (default: none)
//	SESSION_IDLE   - Idle session timeout (default: 10m)
//	MODEL_ASSET    - URL of the 3D model asset
//	CONFIG_FILE    - YAML or TOML configuration file
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "go.uber.org/automaxprocs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/HatiCode/rewardboard/cmd/dashboard/config"
	"github.com/HatiCode/rewardboard/cmd/dashboard/logger"
	"github.com/HatiCode/rewardboard/cmd/dashboard/metrics"
	"github.com/HatiCode/rewardboard/cmd/dashboard/router"
	"github.com/HatiCode/rewardboard/cmd/dashboard/store"
	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/httpx"
	"github.com/HatiCode/rewardboard/pkg/rpc"
	"github.com/HatiCode/rewardboard/pkg/session"
	rewardtls "github.com/HatiCode/rewardboard/pkg/tls"
	"github.com/HatiCode/rewardboard/pkg/view"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting rewardboard dashboard",
		"version", version,
		"backend_url", cfg.BackendURL,
		"poll_interval", cfg.PollInterval,
		"storage", cfg.Storage,
		"tls_enabled", cfg.TLS.Enabled,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cache, cacheHealth, err := store.New(cfg, log)
	if err != nil {
		log.Error("failed to create run cache", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Error("failed to close run cache", "error", err)
		}
	}()

	client, err := httpx.NewClient(cfg.BackendTLS, 0)
	if err != nil {
		log.Error("failed to create backend client", "error", err)
		os.Exit(1)
	}
	src, err := backend.NewHTTPSource(cfg.BackendURL, client, backend.NewLimiter(cfg.BackendRPS))
	if err != nil {
		log.Error("invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions, err := session.NewRegistry(ctx, session.Options{
		NewView: func() (*view.View, error) {
			return view.New(view.Options{
				Source:       src,
				Cache:        cache,
				Interval:     cfg.PollInterval,
				FetchTimeout: cfg.FetchTimeout,
				Logger:       log,
				Observer:     m,
			})
		},
		IdleTimeout: cfg.SessionIdle,
		OnChange:    m.SetSessions,
		Logger:      log,
	})
	if err != nil {
		log.Error("failed to create session registry", "error", err)
		os.Exit(1)
	}

	serverTLS, err := serverTLSConfig(cfg.TLS)
	if err != nil {
		log.Error("invalid TLS configuration", "error", err)
		os.Exit(1)
	}

	mux := router.SetupRoutes(router.Options{
		Sessions:     sessions,
		Gatherer:     reg,
		Health:       cacheHealth,
		ModelAsset:   cfg.ModelAsset,
		SecureCookie: cfg.TLS.Enabled,
		Logger:       log,
	})
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(log), httpx.LoggingMiddleware(log))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	serverErr := make(chan error, 2)
	go func() {
		if serverTLS != nil {
			httpServer.SetTLSConfig(serverTLS)
			serverErr <- httpServer.StartTLS()
			return
		}
		serverErr <- httpServer.Start()
	}()

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.GRPCListen != "" {
		grpcServer, healthServer = rpc.NewServer(rpc.NewService(sessions, log), serverTLS, log)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		go func() {
			log.Info("grpc server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serverErr <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")

	// Closing the sessions ends every view stream, so the servers can drain.
	sessions.Close()
	cancel()

	if grpcServer != nil {
		log.Info("shutting down grpc server")
		healthServer.Shutdown()
		stopGRPC(grpcServer, 10*time.Second)
	}

	log.Info("shutting down http server")
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func serverTLSConfig(cfg rewardtls.Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return rewardtls.NewServerTLSConfig(cfg)
}

// stopGRPC drains the server, forcing it down after timeout.
func stopGRPC(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
	}
}
