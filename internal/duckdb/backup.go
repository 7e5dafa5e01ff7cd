package duckdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	return s.dbPath
}

// ExportTo writes a full copy of the database (schema.sql, load.sql and one
// Parquet file per table) into the directory dst, which must not exist yet.
// The export is written to a sibling temp directory and renamed into place
// so a partial export is never visible under dst.
func (s *Store) ExportTo(ctx context.Context, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("duckdb: export target %s already exists", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("duckdb: create export parent: %w", err)
	}
	tmp := dst + ".partial"
	_ = os.RemoveAll(tmp)

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stmt := fmt.Sprintf("EXPORT DATABASE %s (FORMAT PARQUET)", quoteLiteral(tmp))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("duckdb: export database: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("duckdb: finalize export: %w", err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
