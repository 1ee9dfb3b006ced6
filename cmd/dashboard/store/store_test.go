package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/HatiCode/rewardboard/cmd/dashboard/config"
	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/storage"
)

func TestNew_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, ttl := range []time.Duration{0, time.Minute} {
		cfg := config.Defaults()
		cfg.CacheTTL = ttl

		s, health, err := New(&cfg, logger)
		if err != nil {
			t.Fatalf("New(ttl=%v) error = %v", ttl, err)
		}
		if health != nil {
			t.Error("memory store should have no health check")
		}

		ctx := context.Background()
		entry := storage.Entry{Run: "r1", Series: backend.TimeSeries{Run: "r1", Points: []backend.Point{{Step: 1, Return: 2}}}}
		if err := s.Put(ctx, entry); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, found, _ := s.Get(ctx, "r1"); !found {
			t.Error("Get() found = false, want true")
		}
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
}

func TestNew_Unknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage = "etcd"
	if _, _, err := New(&cfg, slog.Default()); err == nil {
		t.Error("New() error = nil, want error")
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage = "redis"
	cfg.RedisAddr = "127.0.0.1:1"
	if _, _, err := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("New() error = nil, want connection error")
	}
}
