// Package evidence implements the backend ingestion stages over a media
// root: storing uploaded archives, extracting them and running the
// artifact parsers.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kapeview/kapeview/internal/duckdb"
	"github.com/kapeview/kapeview/internal/journal"
	"github.com/kapeview/kapeview/internal/metrics"
	"github.com/kapeview/kapeview/internal/model"
)

// Media root layout.
const (
	ZipDir       = "evidence_zips"
	ExtractedDir = "extracted"
	ParsedDir    = "parsed"
	LogDir       = "logs"

	// MediaURL is the URL prefix the media root is served under.
	MediaURL = "/media/"

	defaultAcquisitionTool = "KAPE"
)

// ErrNotFound is returned for an unknown evidence id.
var ErrNotFound = errors.New("evidence: not found")

// InputError is a request the caller must fix; the HTTP layer maps it to
// 400 with the text as body.
type InputError string

func (e InputError) Error() string { return string(e) }

const (
	ErrMissingID      InputError = "missing id"
	ErrMissingFile    InputError = "missing file"
	ErrUnknownCase    InputError = "case not found"
	ErrNoArchive      InputError = "zip file not registered"
	ErrArchiveMissing InputError = "zip file not found"
	ErrNotExtracted   InputError = "extracted path not found"
)

// Store is the persistence the workspace needs.
type Store interface {
	model.CaseStore
	model.RecordWriter
}

// Config configures a Workspace.
type Config struct {
	MediaRoot string
	Parser    ParserConfig
}

// Workspace runs the ingestion stages. Stages of different evidence may run
// concurrently; stages of the same evidence are serialized.
type Workspace struct {
	root   string
	parser ParserConfig
	store  Store
	runner Runner

	now   func() time.Time
	newID func() string

	locks sync.Map // evidence id -> *sync.Mutex
}

var _ model.EvidenceService = (*Workspace)(nil)

// New creates a workspace over cfg.MediaRoot. runner defaults to ExecRunner.
func New(cfg Config, store Store, runner Runner) (*Workspace, error) {
	root := strings.TrimSpace(cfg.MediaRoot)
	if root == "" {
		return nil, errors.New("evidence: media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("evidence: media root: %w", err)
	}
	for _, dir := range []string{ZipDir, ExtractedDir, ParsedDir, LogDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("evidence: create %s: %w", dir, err)
		}
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Workspace{
		root:   abs,
		parser: cfg.Parser.withDefaults(),
		store:  store,
		runner: runner,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Root returns the absolute media root.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) lock(id string) func() {
	v, _ := w.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (w *Workspace) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

func (w *Workspace) extractedDir(id string) string { return filepath.Join(w.root, ExtractedDir, id) }
func (w *Workspace) parsedDir(id string) string    { return filepath.Join(w.root, ParsedDir, id) }

func (w *Workspace) openJournal(id string) (*runLog, error) {
	jr, err := journal.Open(filepath.Join(w.root, LogDir, id+".jsonl"))
	if err != nil {
		return nil, err
	}
	return &runLog{Journal: jr, id: id, logf: log.Printf}, nil
}

// runLog is the journal of one evidence as used by the stages. The first
// failed write is logged, later ones only lose their entry.
type runLog struct {
	*journal.Journal
	id   string
	logf func(format string, args ...any)
	once sync.Once
}

// Append records text for stage and returns its sequence number, or 0
// when the entry could not be written.
func (l *runLog) Append(stage, text string) uint64 {
	seq, err := l.Journal.Append(stage, text)
	if err != nil {
		l.once.Do(func() { l.logf("evidence: run log of %s: %v", l.id, err) })
		return 0
	}
	return seq
}

func (l *runLog) Appendf(stage, format string, args ...any) uint64 {
	return l.Append(stage, fmt.Sprintf(format, args...))
}

// MediaLink turns a media-root relative path into its served URL path.
func MediaLink(rel string) string {
	if rel == "" {
		return ""
	}
	return MediaURL + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

func (w *Workspace) evidence(ctx context.Context, id string) (*model.EvidenceRow, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingID
	}
	ev, err := w.store.EvidenceByID(ctx, id)
	if errors.Is(err, duckdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return ev, err
}

// Upload stores an archive under evidence_zips/<id>.zip, hashing it while it
// streams, and registers it with the given case or a new one.
func (w *Workspace) Upload(ctx context.Context, up model.EvidenceUpload) (*model.UploadResult, error) {
	start := w.now()
	if up.Body == nil {
		return nil, ErrMissingFile
	}

	c, err := w.resolveCase(ctx, up.CaseID)
	if err != nil {
		return nil, err
	}

	id := w.newID()
	rel := filepath.ToSlash(filepath.Join(ZipDir, id+".zip"))
	size, sum, err := writeHashed(w.abs(rel), up.Body)
	if err != nil {
		metrics.StageRunsTotal.WithLabelValues("upload", metrics.StatusFailure).Inc()
		return nil, err
	}
	metrics.UploadBytesTotal.Add(float64(size))

	notes := up.Notes
	if by := strings.TrimSpace(up.UploadedBy); by != "" {
		notes = strings.TrimSpace(notes + "\n[UploadedBy:" + by + "]")
	}
	tool := strings.TrimSpace(up.AcquisitionTool)
	if tool == "" {
		tool = defaultAcquisitionTool
	}
	name := filepath.Base(strings.TrimSpace(up.Filename))
	if name == "." || name == "/" || name == "" {
		name = "evidence.zip"
	}

	ev := &model.EvidenceRow{
		ID:              id,
		CaseID:          c.ID,
		OriginalName:    name,
		StoredPath:      rel,
		SizeBytes:       size,
		SHA256:          sum,
		SourceSystem:    up.SourceSystem,
		AcquisitionTool: tool,
		Notes:           notes,
		ParseStatus:     model.StatusPending,
		ParseMessage:    "uploaded",
	}
	if err := w.store.CreateEvidence(ctx, ev); err != nil {
		_ = os.Remove(w.abs(rel))
		metrics.StageRunsTotal.WithLabelValues("upload", metrics.StatusFailure).Inc()
		return nil, err
	}

	metrics.StageRunsTotal.WithLabelValues("upload", metrics.StatusSuccess).Inc()
	metrics.StageDuration.WithLabelValues("upload").Observe(w.now().Sub(start).Seconds())
	log.Printf("evidence: stored %s as %s (%d bytes, case %s)", name, id, size, c.CaseNumber)

	return &model.UploadResult{
		ID:           id,
		CaseID:       c.ID,
		CaseNumber:   c.CaseNumber,
		OriginalName: name,
		SizeBytes:    size,
		SHA256:       sum,
		Status:       ev.ParseStatus,
	}, nil
}

func (w *Workspace) resolveCase(ctx context.Context, caseID string) (*model.CaseRow, error) {
	if caseID = strings.TrimSpace(caseID); caseID != "" {
		c, err := w.store.CaseByID(ctx, caseID)
		if errors.Is(err, duckdb.ErrNotFound) {
			return nil, ErrUnknownCase
		}
		return c, err
	}

	number := "CASE-" + w.now().Format("20060102-150405")
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c := &model.CaseRow{
			ID:          w.newID(),
			CaseNumber:  number,
			Title:       "Auto-created Case",
			Description: "Created by evidence upload",
			Status:      model.CaseOpen,
		}
		if attempt > 1 {
			c.CaseNumber = fmt.Sprintf("%s-%d", number, attempt)
		}
		if lastErr = w.store.CreateCase(ctx, c); lastErr == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("evidence: create case: %w", lastErr)
}

// writeHashed copies r to path and returns the size and hex SHA-256.
func writeHashed(path string, r io.Reader) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, "", fmt.Errorf("evidence: create zip dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, "", fmt.Errorf("evidence: create archive: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, "", fmt.Errorf("evidence: write archive: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Detail builds the client view of one evidence.
func (w *Workspace) Detail(ctx context.Context, id string) (*model.EvidenceDetail, error) {
	ev, err := w.evidence(ctx, id)
	if err != nil {
		return nil, err
	}

	mft, amc := ev.MFTCSVPath, ev.AmcacheCSVPath
	if mft == "" && nonEmptyFile(filepath.Join(w.parsedDir(id), mftCSV)) {
		mft = filepath.ToSlash(filepath.Join(ParsedDir, id, mftCSV))
	}
	if amc == "" && nonEmptyFile(filepath.Join(w.parsedDir(id), amcacheFocusCSV)) {
		amc = filepath.ToSlash(filepath.Join(ParsedDir, id, amcacheFocusCSV))
	}

	summary := ev.Summary
	if summary == nil {
		summary = model.Summary{}
	}
	d := &model.EvidenceDetail{
		ID:              ev.ID,
		CaseID:          ev.CaseID,
		Status:          ev.ParseStatus,
		OriginalName:    ev.OriginalName,
		SizeBytes:       ev.SizeBytes,
		SHA256:          ev.SHA256,
		ZipFile:         MediaLink(ev.StoredPath),
		ExtractPath:     ev.ExtractedDir,
		SourceSystem:    ev.SourceSystem,
		AcquisitionTool: ev.AcquisitionTool,
		Notes:           ev.Notes,
		CreatedAt:       ev.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       ev.UpdatedAt.UTC().Format(time.RFC3339),
		MFTCSV:          MediaLink(mft),
		AmcacheCSV:      MediaLink(amc),
		SecurityCSV:     MediaLink(ev.SecurityCSVPath),
		Summary:         summary,
	}
	m, err := ReadManifest(w.parsedDir(id))
	switch {
	case err == nil:
		d.ParserImage = m.ParserImage
		d.ParsedAt = m.FinishedAt.UTC().Format(time.RFC3339)
	case !errors.Is(err, os.ErrNotExist):
		log.Printf("evidence: manifest of %s: %v", id, err)
	}
	return d, nil
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
