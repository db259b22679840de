// Package duckdb is the admin backend's storage layer: domains, accounts,
// mailboxes, the quarantine and daily traffic counters.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/mailnav/internal/duckdb/migrate"
	"github.com/tinytelemetry/mailnav/internal/model"
)

// DefaultQueryTimeout bounds every store query unless NewStore is told otherwise.
const DefaultQueryTimeout = 30 * time.Second

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = model.ErrNotFound

// ErrBadCredentials is returned by Authenticate for an unknown user, a wrong
// password or a disabled account.
var ErrBadCredentials = model.ErrBadCredentials

var _ model.AdminAPI = (*Store)(nil)

// Store is the admin database. Writers hold mu exclusively; every query
// runs under QueryTimeout.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	QueryTimeout time.Duration
	PageSize     int
}

// NewStore opens dbPath, or an in-memory database when it is empty, and
// migrates it to the latest schema. queryTimeout overrides
// DefaultQueryTimeout when positive.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("duckdb: create data dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath, QueryTimeout: DefaultQueryTimeout, PageSize: model.DefaultPageSize}
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		s.QueryTimeout = queryTimeout[0]
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// pageSize resolves the page length: the request, then the store, then
// the package default.
func (s *Store) pageSize(opts model.ListOpts) int {
	for _, n := range []int{opts.PageSize, s.PageSize} {
		if n > 0 {
			return n
		}
	}
	return model.DefaultPageSize
}
