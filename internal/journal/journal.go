// Package journal keeps the append-only run log of the backend stages of
// one evidence: parser command lines, their output and exit codes.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755

	// TailSize is the number of entries reported back as a stage log tail.
	TailSize = 10
)

// Entry is one line of the run log.
type Entry struct {
	Seq   uint64    `json:"seq"`
	Time  time.Time `json:"time"`
	Stage string    `json:"stage"`
	Text  string    `json:"text"`
}

// Journal stores one JSON entry per line. Sequence numbers continue across
// reopenings of the same file.
type Journal struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextSeq uint64
	now     func() time.Time
}

// Open creates or opens a journal at path. A partially written trailing
// line left by a crash is truncated away.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	var maxSeq uint64
	valid, err := scan(path, func(e Entry) { maxSeq = max(maxSeq, e.Seq) })
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if info, err := f.Stat(); err == nil && info.Size() > valid {
		if err := f.Truncate(valid); err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: truncate partial entry: %w", err)
		}
	}
	return &Journal{path: path, file: f, nextSeq: maxSeq + 1, now: time.Now}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Append persists one entry for stage and returns its sequence number.
func (j *Journal) Append(stage, text string) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	e := Entry{Seq: j.nextSeq, Time: j.now().UTC(), Stage: stage, Text: text}
	line, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("journal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return 0, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync entry: %w", err)
	}
	j.nextSeq++
	return e.Seq, nil
}

// Appendf is Append with fmt formatting.
func (j *Journal) Appendf(stage, format string, args ...any) (uint64, error) {
	return j.Append(stage, fmt.Sprintf(format, args...))
}

// Tail returns up to n most recent entries, oldest first. With since > 0
// only entries with Seq >= since are considered.
func (j *Journal) Tail(n int, since uint64) ([]Entry, error) {
	j.mu.Lock()
	path := j.path
	j.mu.Unlock()

	var out []Entry
	_, err := scan(path, func(e Entry) {
		if e.Seq < since {
			return
		}
		out = append(out, e)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	})
	return out, err
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Format renders entries as the newline-joined log tail shown to clients.
func Format(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, strings.TrimRight(e.Text, "\n"))
	}
	return strings.Join(lines, "\n")
}

// scan calls fn for every complete, well-formed entry of the file at path
// and returns the byte length of that valid prefix. It stops at the first
// partial or malformed line. A missing file has no entries.
func scan(path string, fn func(Entry)) (int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal: open for read: %w", err)
	}
	defer f.Close()

	var valid int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return valid, fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return valid, nil
		}
		var e Entry
		if json.Unmarshal(line, &e) != nil {
			return valid, nil
		}
		valid += int64(len(line))
		fn(e)
	}
}
