package backup

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	snapshotPrefix = "mailnav-"
	snapshotExt    = ".duckdb"
	// Fixed width so lexical order matches chronology.
	snapshotStamp = "20060102-150405.000000"
)

// Manager runs periodic local snapshots and optional remote uploads.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu   sync.Mutex
	last model.Snapshot
}

// NewManager validates cfg and starts the snapshot loop. It returns nil
// when backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, errors.New("backup: nil snapshotter")
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, errors.New("backup: local-dir is required when backup is enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(context.Background(), S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
			ContentType:  "application/vnd.duckdb",
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	m := newManager(store, cfg, uploader)
	if cfg.Manual {
		return m, nil
	}

	m.wg.Add(1)
	go m.run()
	return m, nil
}

func newManager(store Snapshotter, cfg Config, uploader Uploader) *Manager {
	m := &Manager{store: store, cfg: cfg, uploader: uploader, now: time.Now}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// run takes a startup snapshot, to shrink the recovery point after a
// restart, then one per interval.
func (m *Manager) run() {
	defer m.wg.Done()

	if _, err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// RunOnce takes one snapshot, uploads it when a bucket is configured and
// prunes old local copies. A failed upload keeps the local snapshot.
func (m *Manager) RunOnce(ctx context.Context) (model.Snapshot, error) {
	name := snapshotPrefix + m.now().UTC().Format(snapshotStamp) + snapshotExt
	snap, err := m.store.SnapshotTo(ctx, filepath.Join(m.cfg.LocalDir, name))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("backup: snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s (%d bytes, sha256 %s)", snap.Path, snap.Size, hex.EncodeToString(snap.SHA256))

	if m.uploader != nil {
		remote, err := m.uploader.Upload(ctx, snap)
		if err != nil {
			m.remember(snap)
			return snap, fmt.Errorf("backup: upload: %w", err)
		}
		snap.Remote = remote
		log.Printf("backup: uploaded snapshot to %s", remote)
	}
	m.remember(snap)

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return snap, fmt.Errorf("backup: prune: %w", err)
	}
	return snap, nil
}

func (m *Manager) remember(snap model.Snapshot) {
	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
}

// Last returns the most recent snapshot taken by this manager.
func (m *Manager) Last() (model.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.last.Path != ""
}

// Stop cancels any in-flight snapshot or upload and waits for the loop.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// pruneLocalBackups keeps the newest keepLast snapshots in localDir.
func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		names = append(names, name)
	}
	if len(names) <= keepLast {
		return nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	var errs []error
	for _, name := range names[keepLast:] {
		if err := os.Remove(filepath.Join(localDir, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
