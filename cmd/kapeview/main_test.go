package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExitCodeForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{"plain", errors.New("boom"), 1, "Error: boom"},
		{"explicit", &exitError{code: 2, err: errors.New("bad config")}, 2, "Error: bad config"},
		{"wrapped explicit", fmt.Errorf("serve: %w", &exitError{code: 3}), 3, "Error: serve: exit 3"},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), 130, "canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stderr bytes.Buffer
			code := runMain(func() error { return tt.err }, &stderr)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stderr.String(), tt.wantOut) {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.wantOut)
			}
		})
	}
}

func TestRunMain_Success(t *testing.T) {
	t.Parallel()
	var stderr bytes.Buffer
	if code := runMain(func() error { return nil }, &stderr); code != 0 || stderr.Len() != 0 {
		t.Errorf("code = %d, stderr = %q", code, stderr.String())
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KAPEVIEW_PARSER_IMAGE", "registry.local/ez:1.2")
	t.Setenv("KAPEVIEW_BACKUP_KEEP", "3")

	path := filepath.Join(t.TempDir(), "config.yml")
	yml := "listen-addr: 0.0.0.0:9000\n" +
		"media-root: ~/evidence\n" +
		"backup:\n  interval: 30m\n  s3-url: s3://bucket/kapeview\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("listen-addr = %q", cfg.ListenAddr)
	}
	if cfg.MediaRoot != filepath.Join(home, "evidence") {
		t.Errorf("media-root = %q, want ~ expanded", cfg.MediaRoot)
	}
	if cfg.Parser.Image != "registry.local/ez:1.2" || cfg.Parser.MountPoint != "/mnt/media" {
		t.Errorf("parser = %+v", cfg.Parser)
	}
	if cfg.Backup.Interval != 30*time.Minute || cfg.Backup.Keep != 3 || cfg.Backup.S3URL != "s3://bucket/kapeview" {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if cfg.ConfigPath != path {
		t.Errorf("config path = %q", cfg.ConfigPath)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.Backup.Interval != 0 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.DBPath != filepath.Join(home, ".local", "share", "kapeview", "kapeview.duckdb") {
		t.Errorf("db-path = %q", cfg.DBPath)
	}
}

func TestLoadConfig_RejectsNegativeInterval(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KAPEVIEW_BACKUP_INTERVAL", "-5m")
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error for negative backup.interval")
	}
}
