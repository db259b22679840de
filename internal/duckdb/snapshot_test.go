package duckdb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/mailnav/internal/model"
)

func TestSnapshotTo_CopyOpensWithSameData(t *testing.T) {
	t.Parallel()

	store, err := NewStore(filepath.Join(t.TempDir(), "mailnav.duckdb"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.ApplySeed(&Seed{
		Domains: []model.Domain{{Name: "snapshot.example", Enabled: true}},
	}); err != nil {
		t.Fatalf("ApplySeed: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "backups", "snapshot.duckdb")
	snap, err := store.SnapshotTo(context.Background(), dst)
	if err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if int64(len(data)) != snap.Size || snap.Size == 0 {
		t.Fatalf("size = %d, file has %d bytes", snap.Size, len(data))
	}
	sum := sha256.Sum256(data)
	if !bytes.Equal(sum[:], snap.SHA256) {
		t.Fatal("checksum does not match the written file")
	}
	if leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(dst), "*.tmp")); len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}

	restored, err := NewStore(dst)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer restored.Close()
	domains, err := restored.ListDomains()
	if err != nil {
		t.Fatalf("ListDomains: %v", err)
	}
	if len(domains) != 1 || domains[0].Name != "snapshot.example" {
		t.Fatalf("restored domains = %+v", domains)
	}
}

func TestSnapshotTo_InMemoryStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.SnapshotTo(context.Background(), filepath.Join(t.TempDir(), "snapshot.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}

func TestSnapshotTo_CanceledContext(t *testing.T) {
	t.Parallel()

	store, err := NewStore(filepath.Join(t.TempDir(), "mailnav.duckdb"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := filepath.Join(t.TempDir(), "snapshot.duckdb")
	if _, err := store.SnapshotTo(ctx, dst); err == nil {
		t.Fatal("expected error for a canceled context")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("snapshot should not exist, stat err = %v", err)
	}
}
