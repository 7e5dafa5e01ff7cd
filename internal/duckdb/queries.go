package duckdb

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/kapeview/kapeview/internal/model"
)

const (
	sizeMiB       = 1 << 20
	sizeMediumMax = 100 * sizeMiB
)

// whereClause builds the WHERE fragment and args for an evidence page
// query. Unknown filter values match nothing rather than everything.
func whereClause(ds model.Dataset, spec tableSpec, evidenceID string, q model.PageQuery) (string, []any) {
	conds := []string{"evidence_id = ?"}
	args := []any{evidenceID}

	if q.Text != "" {
		var ors []string
		for _, c := range spec.columns {
			if !c.search {
				continue
			}
			ors = append(ors, fmt.Sprintf("strpos(lower(coalesce(%s, '')), lower(?)) > 0", c.name))
			args = append(args, q.Text)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	for field, val := range q.Filters {
		switch ds {
		case model.DatasetMFT:
			switch field {
			case "type":
				switch strings.ToLower(val) {
				case "dir", "directory":
					conds = append(conds, "is_directory")
				case "file":
					conds = append(conds, "NOT coalesce(is_directory, false)")
				default:
					conds = append(conds, "false")
				}
			case "size_bucket":
				switch val {
				case model.SizeBucketSmall:
					conds = append(conds, "coalesce(size, 0) < ?")
					args = append(args, sizeMiB)
				case model.SizeBucketMedium:
					conds = append(conds, "size >= ? AND size <= ?")
					args = append(args, sizeMiB, sizeMediumMax)
				case model.SizeBucketLarge:
					conds = append(conds, "size > ?")
					args = append(args, sizeMediumMax)
				default:
					conds = append(conds, "false")
				}
			}
		case model.DatasetAmcache:
			if field == "publisher" {
				conds = append(conds, "publisher = ?")
				args = append(args, val)
			}
		case model.DatasetSecurity:
			switch field {
			case "event_id":
				n, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					conds = append(conds, "false")
					continue
				}
				conds = append(conds, "event_id = ?")
				args = append(args, n)
			case "logon_type":
				conds = append(conds, "logon_type = ?")
				args = append(args, val)
			}
		}
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(spec tableSpec, q model.PageQuery) string {
	col := spec.columns[0].name
	for _, c := range spec.columns {
		if c.field == q.SortKey {
			col = c.name
			break
		}
	}
	dir := "ASC"
	if q.SortDir == model.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, rowid", col, dir)
}

// QueryPage returns one page of a dataset with the total matching count.
// Amcache pages also carry the publisher facet list.
func (s *Store) QueryPage(ctx context.Context, evidenceID string, ds model.Dataset, q model.PageQuery) (*model.PageResult, error) {
	spec, err := specFor(ds)
	if err != nil {
		return nil, err
	}
	if q.PageSize <= 0 {
		q.PageSize = model.DefaultPageSize
	}
	where, args := whereClause(ds, spec, evidenceID, q)

	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out := &model.PageResult{Rows: []model.Record{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.name+" "+where, args...).Scan(&out.Total); err != nil {
		return nil, fmt.Errorf("duckdb: count %s: %w", spec.name, err)
	}

	selects := make([]string, len(spec.columns))
	for i, c := range spec.columns {
		selects[i] = fmt.Sprintf("%s AS %q", c.name, c.field)
	}
	query := fmt.Sprintf("SELECT %s FROM %s %s %s LIMIT ? OFFSET ?",
		strings.Join(selects, ", "), spec.name, where, orderClause(spec, q))

	rows, err := s.db.QueryContext(ctx, query, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("duckdb: page %s: %w", spec.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, len(spec.columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			log.Printf("duckdb scan error (QueryPage %s): %v", ds, err)
			continue
		}
		rec := make(model.Record, len(spec.columns))
		for i, c := range spec.columns {
			rec[c.field] = normalize(vals[i])
		}
		out.Rows = append(out.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: page %s: %w", spec.name, err)
	}

	if ds == model.DatasetAmcache {
		pubs, err := s.distinctPublishers(ctx, evidenceID, maxFacets)
		if err != nil {
			log.Printf("duckdb: publisher facets for %s: %v", evidenceID, err)
		}
		out.Publishers = pubs
	}

	if d := time.Since(start); d > 2*time.Second {
		log.Printf("duckdb: slow %s page query for %s took %s", ds, evidenceID, d.Round(time.Millisecond))
	}
	return out, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}

const maxFacets = 200

// DistinctPublishers returns the most common non-empty Amcache publishers.
func (s *Store) DistinctPublishers(ctx context.Context, evidenceID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.distinctPublishers(ctx, evidenceID, limit)
}

func (s *Store) distinctPublishers(ctx context.Context, evidenceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = maxFacets
	}
	rows, err := s.db.QueryContext(ctx, `SELECT publisher, COUNT(*) AS n
		FROM amcache_records
		WHERE evidence_id = ? AND coalesce(publisher, '') <> ''
		GROUP BY publisher
		ORDER BY n DESC, publisher
		LIMIT ?`, evidenceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			p string
			n int64
		)
		if err := rows.Scan(&p, &n); err != nil {
			log.Printf("duckdb scan error (DistinctPublishers): %v", err)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SecuritySummary counts stored security events per event id, most common
// first.
func (s *Store) SecuritySummary(ctx context.Context, evidenceID string) ([]model.EventIDCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT coalesce(event_id, 0), COUNT(*) AS n
		FROM security_events
		WHERE evidence_id = ?
		GROUP BY 1
		ORDER BY n DESC, 1`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("duckdb: security summary: %w", err)
	}
	defer rows.Close()

	out := []model.EventIDCount{}
	for rows.Next() {
		var c model.EventIDCount
		if err := rows.Scan(&c.EventID, &c.Count); err != nil {
			log.Printf("duckdb scan error (SecuritySummary): %v", err)
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
