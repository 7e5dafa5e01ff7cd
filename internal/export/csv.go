// Package export serializes the rows currently shown for a dataset.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kapeview/kapeview/internal/model"
)

// Quote wraps a field in double quotes, doubling embedded quotes.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CurrentView writes a header row and one row per record, every field
// quoted, fields joined by commas and rows by newlines. Only the rows
// passed in are written; callers pass the rows currently on screen.
func CurrentView(w io.Writer, columns []model.Column, rows []model.Record) error {
	lines := make([]string, 0, len(rows)+1)

	fields := make([]string, len(columns))
	for i, c := range columns {
		fields[i] = Quote(c.Title)
	}
	lines = append(lines, strings.Join(fields, ","))

	for _, r := range rows {
		for i, c := range columns {
			fields[i] = Quote(r.Text(c.Field))
		}
		lines = append(lines, strings.Join(fields, ","))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// FileName is the export file name of a dataset view.
func FileName(ds model.Dataset) string {
	return string(ds) + "_view.csv"
}

// WriteFile exports the rows to <dir>/<dataset>_view.csv and returns the path.
func WriteFile(dir string, ds model.Dataset, rows []model.Record) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(ds))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := CurrentView(f, model.Columns(ds), rows); err != nil {
		f.Close()
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", path, err)
	}
	return path, nil
}
