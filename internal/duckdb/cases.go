package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kapeview/kapeview/internal/model"
)

// CreateCase inserts a case. CreatedAt defaults to now and Status to OPEN.
func (s *Store) CreateCase(ctx context.Context, c *model.CaseRow) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = model.CaseOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `INSERT INTO cases (id, case_number, title, description, investigator, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CaseNumber, c.Title, c.Description, c.Investigator, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("duckdb: insert case %s: %w", c.CaseNumber, err)
	}
	return nil
}

// CaseByID returns one case or ErrNotFound.
func (s *Store) CaseByID(ctx context.Context, id string) (*model.CaseRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var c model.CaseRow
	err := s.db.QueryRowContext(ctx, `SELECT id, case_number, title, description, investigator, status, created_at
		FROM cases WHERE id = ?`, id).
		Scan(&c.ID, &c.CaseNumber, &c.Title, &c.Description, &c.Investigator, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("duckdb: case %s: %w", id, err)
	}
	return &c, nil
}

const evidenceColumns = `id, case_id, original_name, stored_path, size_bytes, sha256, source_system,
	acquisition_tool, notes, extracted_dir, mft_csv_path, amcache_csv_path, security_csv_path,
	parse_status, parse_message, summary, created_at, updated_at`

// CreateEvidence inserts an evidence row.
func (s *Store) CreateEvidence(ctx context.Context, e *model.EvidenceRow) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.ParseStatus == "" {
		e.ParseStatus = model.StatusPending
	}
	summary, err := encodeSummary(e.Summary)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `INSERT INTO evidence (`+evidenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CaseID, e.OriginalName, e.StoredPath, e.SizeBytes, e.SHA256, e.SourceSystem,
		e.AcquisitionTool, e.Notes, e.ExtractedDir, e.MFTCSVPath, e.AmcacheCSVPath, e.SecurityCSVPath,
		e.ParseStatus, e.ParseMessage, summary, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("duckdb: insert evidence %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEvidence writes back every mutable evidence field and bumps
// UpdatedAt.
func (s *Store) UpdateEvidence(ctx context.Context, e *model.EvidenceRow) error {
	e.UpdatedAt = time.Now().UTC()
	summary, err := encodeSummary(e.Summary)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE evidence SET
		stored_path = ?, size_bytes = ?, sha256 = ?, extracted_dir = ?,
		mft_csv_path = ?, amcache_csv_path = ?, security_csv_path = ?,
		parse_status = ?, parse_message = ?, summary = ?, updated_at = ?
		WHERE id = ?`,
		e.StoredPath, e.SizeBytes, e.SHA256, e.ExtractedDir,
		e.MFTCSVPath, e.AmcacheCSVPath, e.SecurityCSVPath,
		e.ParseStatus, e.ParseMessage, summary, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("duckdb: update evidence %s: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// EvidenceByID returns one evidence row or ErrNotFound.
func (s *Store) EvidenceByID(ctx context.Context, id string) (*model.EvidenceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		e       model.EvidenceRow
		summary string
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE id = ?`, id).Scan(
		&e.ID, &e.CaseID, &e.OriginalName, &e.StoredPath, &e.SizeBytes, &e.SHA256, &e.SourceSystem,
		&e.AcquisitionTool, &e.Notes, &e.ExtractedDir, &e.MFTCSVPath, &e.AmcacheCSVPath, &e.SecurityCSVPath,
		&e.ParseStatus, &e.ParseMessage, &summary, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("duckdb: evidence %s: %w", id, err)
	}
	e.Summary = decodeSummary(summary)
	return &e, nil
}

// Overview returns the dashboard totals and the most recent cases.
func (s *Store) Overview(ctx context.Context, recent int) (*model.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out model.Overview
	err := s.db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM cases),
			(SELECT COUNT(*) FROM evidence),
			(SELECT COUNT(*) FROM cases WHERE status IN (?, ?)),
			(SELECT COUNT(*) FROM cases WHERE status = ?)`,
		model.CaseOpen, model.CaseInProgress, model.CaseClosed).
		Scan(&out.Totals.Cases, &out.Totals.Evidence, &out.Totals.ActiveCases, &out.Totals.CompletedCases)
	if err != nil {
		return nil, fmt.Errorf("duckdb: overview totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.case_number, c.title, c.investigator, c.status, c.created_at,
			COUNT(e.id) AS evidence_count
		FROM cases c LEFT JOIN evidence e ON e.case_id = c.id
		GROUP BY c.id, c.case_number, c.title, c.investigator, c.status, c.created_at
		ORDER BY c.created_at DESC
		LIMIT ?`, recent)
	if err != nil {
		return nil, fmt.Errorf("duckdb: recent cases: %w", err)
	}
	defer rows.Close()

	out.RecentCases = []model.CaseSummary{}
	for rows.Next() {
		var (
			cs      model.CaseSummary
			created time.Time
		)
		if err := rows.Scan(&cs.ID, &cs.CaseNumber, &cs.Title, &cs.Investigator, &cs.Status, &created, &cs.EvidenceCount); err != nil {
			log.Printf("duckdb scan error (Overview): %v", err)
			continue
		}
		cs.StatusBadge = model.StatusBadge(cs.Status)
		cs.CreatedAt = created.UTC().Format(time.RFC3339)
		out.RecentCases = append(out.RecentCases, cs)
	}
	return &out, rows.Err()
}

func encodeSummary(s model.Summary) (string, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("duckdb: encode summary: %w", err)
	}
	return string(b), nil
}

func decodeSummary(raw string) model.Summary {
	out := model.Summary{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("duckdb: bad summary json, ignoring: %v", err)
		return model.Summary{}
	}
	return out
}
