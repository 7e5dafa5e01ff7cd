package duckdb

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/kapeview/kapeview/internal/model"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindBool
)

// column maps one record field onto a table column.
type column struct {
	field string
	name  string
	kind  columnKind
	// search marks text columns matched by the free-text filter.
	search bool
}

type tableSpec struct {
	name    string
	columns []column
}

var tables = map[model.Dataset]tableSpec{
	model.DatasetMFT: {name: "mft_records", columns: []column{
		{field: "EntryNumber", name: "entry_number", kind: kindInt},
		{field: "FileName", name: "file_name", search: true},
		{field: "FullPath", name: "full_path", search: true},
		{field: "Size", name: "size", kind: kindInt},
		{field: "Created", name: "created"},
		{field: "Modified", name: "modified"},
		{field: "IsDirectory", name: "is_directory", kind: kindBool},
	}},
	model.DatasetAmcache: {name: "amcache_records", columns: []column{
		{field: "AppName", name: "app_name", search: true},
		{field: "Version", name: "version"},
		{field: "Publisher", name: "publisher", search: true},
		{field: "InstallDate", name: "install_date"},
		{field: "FilePath", name: "file_path", search: true},
		{field: "SHA1", name: "sha1", search: true},
	}},
	model.DatasetSecurity: {name: "security_events", columns: []column{
		{field: "Timestamp", name: "ts"},
		{field: "EventID", name: "event_id", kind: kindInt},
		{field: "LogonType", name: "logon_type"},
		{field: "User", name: "user_name", search: true},
		{field: "SourceIP", name: "source_ip", search: true},
		{field: "Computer", name: "computer", search: true},
		{field: "Message", name: "message", search: true},
	}},
}

func specFor(ds model.Dataset) (tableSpec, error) {
	t, ok := tables[ds]
	if !ok {
		return tableSpec{}, fmt.Errorf("duckdb: unknown dataset %q", ds)
	}
	return t, nil
}

// Fields returns the record fields stored for a dataset, in table order.
func Fields(ds model.Dataset) []string {
	t := tables[ds]
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.field
	}
	return out
}

// ReplaceRecords swaps the stored rows of one evidence and dataset for rows
// in a single transaction. Rows with unconvertible numeric fields are
// dropped and logged; the number of rows written is returned.
func (s *Store) ReplaceRecords(ctx context.Context, evidenceID string, ds model.Dataset, rows []model.Record) (int64, error) {
	spec, err := specFor(ds)
	if err != nil {
		return 0, err
	}

	values := make([][]any, 0, len(rows))
	var dropped int
	for i, r := range rows {
		args, err := spec.args(evidenceID, r)
		if err != nil {
			dropped++
			if dropped <= 5 {
				log.Printf("duckdb: dropping %s row %d of evidence %s: %v", ds, i+1, evidenceID, err)
			}
			continue
		}
		values = append(values, args)
	}
	if dropped > 0 {
		log.Printf("duckdb: %d/%d %s rows dropped for evidence %s", dropped, len(rows), ds, evidenceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin replace %s: %w", ds, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+spec.name+" WHERE evidence_id = ?", evidenceID); err != nil {
		return 0, fmt.Errorf("duckdb: clear %s: %w", spec.name, err)
	}

	names := make([]string, 0, len(spec.columns)+1)
	names = append(names, "evidence_id")
	for _, c := range spec.columns {
		names = append(names, c.name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.name, strings.Join(names, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("duckdb: prepare %s insert: %w", spec.name, err)
	}
	defer stmt.Close()

	for _, args := range values {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("duckdb: insert %s: %w", spec.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: commit %s: %w", spec.name, err)
	}
	return int64(len(values)), nil
}

func (t tableSpec) args(evidenceID string, r model.Record) ([]any, error) {
	out := make([]any, 0, len(t.columns)+1)
	out = append(out, evidenceID)
	for _, c := range t.columns {
		v, err := c.convert(r.Text(c.field))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.field, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c column) convert(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch c.kind {
	case kindInt:
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return nil, err
			}
			n = int64(f)
		}
		return n, nil
	case kindBool:
		switch strings.ToLower(s) {
		case "true", "1", "yes", "y":
			return true, nil
		}
		return false, nil
	}
	return s, nil
}

// RowCount returns the number of stored rows of one dataset for an evidence.
func (s *Store) RowCount(ctx context.Context, evidenceID string, ds model.Dataset) (int64, error) {
	spec, err := specFor(ds)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.name+" WHERE evidence_id = ?", evidenceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count %s: %w", spec.name, err)
	}
	return n, nil
}
