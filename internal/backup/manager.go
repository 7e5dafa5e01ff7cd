package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kapeview/kapeview/internal/metrics"
)

const (
	defaultKeep = 14
	namePrefix  = "kapeview-"
	nameLayout  = "20060102-150405"
)

// Manager creates snapshot directories named kapeview-<utc timestamp>,
// uploads them when S3 is configured and keeps the newest Keep locally.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	now      func() time.Time
}

// NewManager validates cfg and prepares the snapshot directory.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("backup: nil snapshotter")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("backup: dir is required")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = defaultKeep
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}

	m := &Manager{store: store, cfg: cfg, now: time.Now}
	if strings.TrimSpace(cfg.S3URL) != "" {
		u, err := NewS3Uploader(S3Config{
			BucketURL: cfg.S3URL,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		m.uploader = u
	}
	return m, nil
}

// Run snapshots every Interval until ctx is done. It returns nil on
// cancellation so it can sit in a run group.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// RunOnce writes one snapshot, uploads it when configured and prunes old
// local copies. It returns the snapshot directory.
func (m *Manager) RunOnce(ctx context.Context) (string, error) {
	dst := filepath.Join(m.cfg.Dir, namePrefix+m.now().UTC().Format(nameLayout))
	if err := m.store.ExportTo(ctx, dst); err != nil {
		metrics.SnapshotsTotal.WithLabelValues(metrics.StatusFailure).Inc()
		return "", fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", dst)

	if m.uploader != nil {
		if err := m.uploader.UploadDir(ctx, dst); err != nil {
			metrics.SnapshotsTotal.WithLabelValues(metrics.StatusFailure).Inc()
			return dst, fmt.Errorf("upload: %w", err)
		}
		log.Printf("backup: uploaded snapshot %s", filepath.Base(dst))
	}
	metrics.SnapshotsTotal.WithLabelValues(metrics.StatusSuccess).Inc()

	if err := prune(m.cfg.Dir, m.cfg.Keep); err != nil {
		return dst, fmt.Errorf("prune snapshots: %w", err)
	}
	return dst, nil
}

// prune removes all but the newest keep snapshot directories. Names sort
// chronologically.
func prune(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), namePrefix) && !strings.HasSuffix(e.Name(), ".partial") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names[keep:] {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return err
		}
		log.Printf("backup: pruned %s", name)
	}
	return nil
}
