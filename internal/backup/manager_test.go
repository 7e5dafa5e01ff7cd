package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeSnapshotter writes a single marker file per snapshot.
type fakeSnapshotter struct {
	err error
}

func (f *fakeSnapshotter) ExportTo(_ context.Context, dst string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(dst); err == nil {
		return errors.New("exists")
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, "schema.sql"), []byte("CREATE TABLE t(x INT);"), 0o644)
}

type recordingUploader struct {
	dirs []string
	err  error
}

func (u *recordingUploader) UploadDir(_ context.Context, dir string) error {
	u.dirs = append(u.dirs, dir)
	return u.err
}

func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Hour)
		return t
	}
}

func TestNewManager_RequiresDir(t *testing.T) {
	t.Parallel()
	if _, err := NewManager(&fakeSnapshotter{}, Config{}); err == nil {
		t.Fatal("expected error for empty dir")
	}
	if _, err := NewManager(nil, Config{Dir: t.TempDir()}); err == nil {
		t.Fatal("expected error for nil snapshotter")
	}
}

func TestRunOnce_CreatesAndPrunesSnapshots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	up := &recordingUploader{}
	m := &Manager{
		store:    &fakeSnapshotter{},
		cfg:      Config{Dir: dir, Keep: 2},
		uploader: up,
		now:      stepClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	}

	var last string
	for i := 0; i < 3; i++ {
		dst, err := m.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
		last = dst
	}

	if filepath.Base(last) != "kapeview-20250601-030000" {
		t.Errorf("last snapshot = %s", last)
	}
	got, err := filepath.Glob(filepath.Join(dir, "kapeview-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("snapshots = %v, want 2", got)
	}
	if filepath.Base(got[0]) != "kapeview-20250601-020000" {
		t.Errorf("oldest kept = %s, want the second snapshot", got[0])
	}
	if len(up.dirs) != 3 {
		t.Errorf("uploads = %d, want 3", len(up.dirs))
	}
}

func TestRunOnce_Failures(t *testing.T) {
	t.Parallel()

	m := &Manager{
		store: &fakeSnapshotter{err: errors.New("disk full")},
		cfg:   Config{Dir: t.TempDir(), Keep: 2},
		now:   time.Now,
	}
	if _, err := m.RunOnce(context.Background()); err == nil {
		t.Fatal("expected export error")
	}

	m.store = &fakeSnapshotter{}
	m.uploader = &recordingUploader{err: errors.New("access denied")}
	dst, err := m.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if _, statErr := os.Stat(dst); statErr != nil {
		t.Errorf("local snapshot should survive a failed upload: %v", statErr)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	m := &Manager{
		store: &fakeSnapshotter{},
		cfg:   Config{Dir: t.TempDir(), Keep: 2, Interval: 5 * time.Millisecond},
		now:   stepClock(time.Now()),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
