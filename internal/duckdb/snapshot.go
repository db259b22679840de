package duckdb

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// ErrInMemoryStore is returned when snapshotting a store that has no file.
var ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

// SnapshotTo checkpoints the database and copies its file to dstPath,
// hashing the copy as it is written. Only the checkpoint holds the write
// lock; the copy runs while admin requests continue.
func (s *Store) SnapshotTo(ctx context.Context, dstPath string) (model.Snapshot, error) {
	if s.dbPath == "" {
		return model.Snapshot{}, ErrInMemoryStore
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return model.Snapshot{}, fmt.Errorf("duckdb: snapshot dir: %w", err)
	}

	if err := s.checkpoint(ctx); err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{Path: dstPath, At: time.Now().UTC()}
	size, sum, err := copyHashed(ctx, s.dbPath, dstPath)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("duckdb: snapshot copy: %w", err)
	}
	snap.Size, snap.SHA256 = size, sum
	return snap, nil
}

func (s *Store) checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("duckdb: snapshot conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("duckdb: checkpoint: %w", err)
	}
	return nil
}

// copyHashed writes src to a temporary sibling of dst and renames it into
// place, so dst is never observed half written.
func copyHashed(ctx context.Context, srcPath, dstPath string) (int64, []byte, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), filepath.Base(dstPath)+".*.tmp")
	if err != nil {
		return 0, nil, err
	}
	fail := func(err error) (int64, []byte, error) {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return 0, nil, err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, nil, err
	}
	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, nil, err
	}
	return n, h.Sum(nil), nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
