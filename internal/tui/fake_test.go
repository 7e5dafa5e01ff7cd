package tui

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kapeview/kapeview/internal/model"
)

type pageCall struct {
	evidenceID string
	ds         model.Dataset
	params     url.Values
}

// fakeBackend serves canned results and records every request.
type fakeBackend struct {
	mu sync.Mutex

	totals     map[model.Dataset]int64
	publishers []string
	pageErr    map[model.Dataset]error
	summary    model.Summary
	overview   *model.Overview
	preflight  *model.Preflight
	overErr    error

	upload     *model.UploadResult
	uploadErr  error
	extract    *model.ExtractResult
	extractErr error
	parse      *model.ParseResult

	calls        []pageCall
	extractCalls int
	parseCalls   int
}

var _ model.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		totals: map[model.Dataset]int64{
			model.DatasetMFT:      120,
			model.DatasetAmcache:  30,
			model.DatasetSecurity: 7,
		},
		publishers: []string{"Microsoft Corporation", "Google LLC"},
		pageErr:    map[model.Dataset]error{},
		overview: &model.Overview{
			Totals: model.OverviewTotals{Cases: 2, Evidence: 3, ActiveCases: 1, CompletedCases: 1},
			RecentCases: []model.CaseSummary{
				{ID: "c1", CaseNumber: "CASE-20250314-092653", Title: "Auto-created Case", EvidenceCount: 3, Status: model.CaseOpen},
			},
		},
		preflight: &model.Preflight{OK: true, Checks: model.PreflightChecks{
			DockerCLI: true, ParserImageOK: true, MediaRootWritable: true,
			ParsedWritable: true, ExtractedWritable: true,
			DiskTotalBytes: 100 << 30, DiskFreeBytes: 50 << 30,
		}},
		upload:  &model.UploadResult{ID: "ev-9", CaseNumber: "CASE-1", OriginalName: "triage.zip", SizeBytes: 100, SHA256: "abc"},
		extract: &model.ExtractResult{OK: true, Status: model.StatusRunning},
		parse: &model.ParseResult{
			OK:      true,
			Status:  model.StatusDone,
			MFTCSV:  "/media/parsed/ev-9/mft.csv",
			LogTail: "[parse] imported 3 mft rows",
			Summary: model.Summary{"mft_rows": 3},
		},
	}
}

func (f *fakeBackend) Overview(context.Context) (*model.Overview, error) {
	if f.overErr != nil {
		return nil, f.overErr
	}
	return f.overview, nil
}

func (f *fakeBackend) Preflight(context.Context) (*model.Preflight, error) {
	return f.preflight, nil
}

func (f *fakeBackend) Evidence(_ context.Context, id string) (*model.EvidenceDetail, error) {
	return &model.EvidenceDetail{ID: id, Status: model.StatusDone, Summary: f.summary}, nil
}

func (f *fakeBackend) Page(_ context.Context, evidenceID string, ds model.Dataset, params url.Values) (*model.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageCall{evidenceID: evidenceID, ds: ds, params: params})
	if err := f.pageErr[ds]; err != nil {
		return nil, err
	}
	res := &model.PageResult{Total: f.totals[ds]}
	for i := range 3 {
		res.Rows = append(res.Rows, model.Record{
			"EntryNumber": i + 1,
			"FileName":    fmt.Sprintf("file%d.exe", i),
			"AppName":     fmt.Sprintf("App %d", i),
			"EventID":     4624,
			"Message":     "Logon success (4624)",
		})
	}
	if ds == model.DatasetAmcache {
		res.Publishers = f.publishers
	}
	return res, nil
}

func (f *fakeBackend) Upload(_ context.Context, _ model.UploadRequest, progress func(sent, total int64)) (*model.UploadResult, error) {
	if progress != nil {
		progress(50, 100)
		progress(100, 100)
	}
	return f.upload, f.uploadErr
}

func (f *fakeBackend) StartExtract(context.Context, string) (*model.ExtractResult, error) {
	f.mu.Lock()
	f.extractCalls++
	f.mu.Unlock()
	return f.extract, f.extractErr
}

func (f *fakeBackend) StartParse(context.Context, string) (*model.ParseResult, error) {
	f.mu.Lock()
	f.parseCalls++
	f.mu.Unlock()
	return f.parse, nil
}

// lastCall returns the most recent page request for ds.
func (f *fakeBackend) lastCall(t *testing.T, ds model.Dataset) pageCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].ds == ds {
			return f.calls[i]
		}
	}
	t.Fatalf("no %s request", ds)
	return pageCall{}
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errBackendDown = errors.New("connection refused")

// timerCmdWait bounds how long drive waits on a command. Timer-based
// commands (cursor blink, spinner) take longer and are dropped.
const timerCmdWait = 100 * time.Millisecond

// run executes cmd, giving up after timerCmdWait.
func run(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timerCmdWait):
		return nil
	}
}

// drive runs cmd and every command produced while handling its messages
// until nothing is left. Spinner ticks and cursor blinks are dropped.
func drive(t *testing.T, update func(tea.Msg) tea.Cmd, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 1000 {
			t.Fatal("commands did not settle")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := run(c).(type) {
		case nil, SpinnerTickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			queue = append(queue, update(msg))
		}
	}
}

func pageUpdater(p Page) func(tea.Msg) tea.Cmd {
	return func(msg tea.Msg) tea.Cmd {
		cmd, _ := p.Update(msg)
		return cmd
	}
}

// press sends a key to p and drives the resulting commands.
func press(t *testing.T, p Page, keys ...string) *PageNav {
	t.Helper()
	var nav *PageNav
	for _, k := range keys {
		cmd, n := p.Update(keyMsg(k))
		if n != nil {
			nav = n
		}
		drive(t, pageUpdater(p), cmd)
	}
	return nav
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
