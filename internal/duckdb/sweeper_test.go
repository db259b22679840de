package duckdb

import (
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

type cutoffRecorder struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (r *cutoffRecorder) PurgeQuarantineBefore(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return 0, nil
}

func (r *cutoffRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func TestStartQuarantineSweeper_Disabled(t *testing.T) {
	t.Parallel()

	for _, days := range []int{0, -3} {
		if s := StartQuarantineSweeper(&cutoffRecorder{}, days, 0); s != nil {
			t.Fatalf("days=%d: expected nil sweeper", days)
		}
	}
}

func TestQuarantineSweeper_Cutoff(t *testing.T) {
	t.Parallel()

	rec := &cutoffRecorder{}
	s := StartQuarantineSweeper(rec, 7, time.Hour)
	defer s.Stop()

	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	if _, err := s.PurgeNow(); err != nil {
		t.Fatalf("PurgeNow: %v", err)
	}

	rec.mu.Lock()
	got := rec.cutoffs[len(rec.cutoffs)-1]
	rec.mu.Unlock()
	if want := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", got, want)
	}
}

func TestQuarantineSweeper_TicksUntilStopped(t *testing.T) {
	t.Parallel()

	rec := &cutoffRecorder{}
	s := StartQuarantineSweeper(rec, 1, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeps = %d, want at least 3", rec.count())
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	s.Stop()
	after := rec.count()
	time.Sleep(20 * time.Millisecond)
	if rec.count() != after {
		t.Fatal("sweeper kept running after Stop")
	}
}

func TestQuarantineSweeper_StartupPurge(t *testing.T) {
	// Seed items are dated 2025; a one-day window purges them on startup.
	store := seededStore(t)
	s := StartQuarantineSweeper(store, 1, time.Hour)
	defer s.Stop()

	items, _, err := store.ListQuarantine(model.ListOpts{})
	if err != nil {
		t.Fatalf("ListQuarantine: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("quarantine after startup purge = %d items", len(items))
	}
}
