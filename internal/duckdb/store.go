// Package duckdb is the backend record store: cases, evidence metadata and
// the parsed MFT, Amcache and Security rows of each evidence.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/kapeview/kapeview/internal/duckdb/migrate"
	"github.com/kapeview/kapeview/internal/model"
)

// DefaultQueryTimeout bounds queries issued without a caller deadline.
const DefaultQueryTimeout = 30 * time.Second

// ErrNotFound is returned when a case or evidence does not exist.
var ErrNotFound = errors.New("duckdb: not found")

// Store manages the DuckDB connection and implements the model store
// interfaces.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

var (
	_ model.RecordReader = (*Store)(nil)
	_ model.RecordWriter = (*Store)(nil)
	_ model.CaseStore    = (*Store)(nil)
)

// NewStore opens or creates a DuckDB database and applies pending
// migrations. An empty dbPath opens an in-memory database. queryTimeout
// defaults to DefaultQueryTimeout.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("duckdb: create db dir: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", dbPath, err)
	}

	qt := DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	if err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dbPath: dbPath, QueryTimeout: qt}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the CSV importer and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTimeout applies the store timeout unless ctx already has a deadline.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.QueryTimeout)
}
