package evidence

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/kapeview/kapeview/internal/model"
)

// Preflight checks that the parse stage can run: the docker CLI and parser
// image are available and the media directories are writable.
func (w *Workspace) Preflight(ctx context.Context) (*model.Preflight, error) {
	var c model.PreflightChecks

	if _, err := w.runner.LookPath("docker"); err == nil {
		c.DockerCLI = true
		_, code, err := w.runner.Run(ctx, "docker", "image", "inspect", w.parser.Image)
		c.ParserImageOK = err == nil && code == 0
	}
	c.MediaRootWritable = writable(w.root)
	c.ParsedWritable = writable(filepath.Join(w.root, ParsedDir))
	c.ExtractedWritable = writable(filepath.Join(w.root, ExtractedDir))

	if total, free, err := diskUsage(w.root); err == nil {
		c.DiskTotalBytes, c.DiskFreeBytes = total, free
	} else {
		log.Printf("evidence: disk usage of %s: %v", w.root, err)
	}

	ok := c.DockerCLI && c.ParserImageOK && c.MediaRootWritable && c.ParsedWritable && c.ExtractedWritable
	return &model.Preflight{OK: ok, Checks: c}, nil
}

func writable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	return os.Remove(name) == nil
}
