// Package storage provides run cache implementations: the mapping from run
// identifier to that run's reward series.
//
// Entries are created the first time a run is fetched and overwritten (never
// merged) on every refresh. MemoryStore keeps entries for the lifetime of the
// process unless a TTL is configured; RedisStore shares entries between
// dashboard replicas and always expires them.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/HatiCode/rewardboard/pkg/backend"
)

// Entry is one cached run series.
type Entry struct {
	Run       string             `json:"run"`
	Series    backend.TimeSeries `json:"series"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// Store is the run cache interface used by views.
type Store interface {
	// Put creates or overwrites the entry for entry.Run.
	Put(ctx context.Context, entry Entry) error

	// Get returns the entry for run. found is false when the run has never
	// been cached (or its entry expired).
	Get(ctx context.Context, run string) (Entry, bool, error)
}

// ValidateRun rejects identifiers that cannot be used as cache keys.
func ValidateRun(run string) error {
	if run == "" {
		return fmt.Errorf("run identifier required")
	}
	for _, c := range run {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("invalid run identifier %q: only alphanumeric, dots, hyphens, and underscores allowed", run)
		}
	}
	return nil
}
