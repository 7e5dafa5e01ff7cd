package evidence

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kapeview/kapeview/internal/metrics"
	"github.com/kapeview/kapeview/internal/model"
)

// Extract unpacks the stored archive into extracted/<id>/. Entries with
// absolute paths or ".." segments are skipped, as are symlinks.
func (w *Workspace) Extract(ctx context.Context, id string) (*model.ExtractResult, error) {
	ev, err := w.evidence(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.StoredPath == "" {
		return nil, ErrNoArchive
	}
	zipPath := w.abs(ev.StoredPath)
	if _, err := os.Stat(zipPath); err != nil {
		return nil, ErrArchiveMissing
	}

	unlock := w.lock(id)
	defer unlock()
	start := w.now()

	jr, err := w.openJournal(id)
	if err != nil {
		return nil, err
	}
	defer jr.Close()

	out := w.extractedDir(id)
	ev.ParseStatus = model.StatusRunning
	ev.ParseMessage = "extracting"
	if err := w.store.UpdateEvidence(ctx, ev); err != nil {
		return nil, err
	}

	n, skipped, err := unzip(ctx, zipPath, out)
	if err != nil {
		msg := fmt.Sprintf("extract error: %v", err)
		jr.Append("extract", msg)
		ev.ParseStatus = model.StatusFailed
		ev.ParseMessage = msg
		if uerr := w.store.UpdateEvidence(ctx, ev); uerr != nil {
			log.Printf("evidence: record extract failure of %s: %v", id, uerr)
		}
		metrics.StageRunsTotal.WithLabelValues("extract", metrics.StatusFailure).Inc()
		res := &model.ExtractResult{OK: false, Status: ev.ParseStatus, Error: err.Error()}
		return res, fmt.Errorf("evidence: extract %s: %w", id, err)
	}

	jr.Appendf("extract", "extracted %d entries to %s (%d skipped)", n, out, skipped)
	ev.ExtractedDir = out
	ev.ParseMessage = "ready"
	if err := w.store.UpdateEvidence(ctx, ev); err != nil {
		return nil, err
	}

	metrics.StageRunsTotal.WithLabelValues("extract", metrics.StatusSuccess).Inc()
	metrics.StageDuration.WithLabelValues("extract").Observe(w.now().Sub(start).Seconds())
	log.Printf("evidence: extracted %s: %d entries, %d skipped", id, n, skipped)
	return &model.ExtractResult{OK: true, Status: ev.ParseStatus, ExtractPath: out}, nil
}

// unzip extracts src into dst and returns the number of files written and
// entries skipped.
func unzip(ctx context.Context, src, dst string) (written, skipped int, err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, 0, err
	}
	defer zr.Close()

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, 0, err
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}
		rel, ok := safeEntryPath(f.Name)
		if !ok || f.Mode()&os.ModeSymlink != 0 {
			skipped++
			continue
		}
		target := filepath.Join(dst, filepath.FromSlash(rel))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, skipped, err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return written, skipped, fmt.Errorf("%s: %w", f.Name, err)
		}
		written++
	}
	return written, skipped, nil
}

// safeEntryPath normalizes a zip entry name and rejects absolute paths,
// drive letters and parent-directory segments.
func safeEntryPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") || (len(name) > 1 && name[1] == ':') {
		return "", false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", false
	}
	return clean, true
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
