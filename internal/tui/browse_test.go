package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kapeview/kapeview/internal/model"
)

func newTestBrowsePage(t *testing.T, fb *fakeBackend, evidenceID string) (*BrowsePage, *statusLine) {
	t.Helper()
	status := newStatusLine()
	p := NewBrowsePage(fb, BrowseOptions{
		EvidenceID: evidenceID,
		PageSize:   50,
		ExportDir:  t.TempDir(),
	}, DefaultKeyMap(), status)
	p.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	drive(t, pageUpdater(p), p.Init())
	return p, status
}

func TestBrowse_LoadsEveryDatasetAndAggregates(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	if n := fb.callCount(); n != 3 {
		t.Fatalf("page requests = %d, want 3", n)
	}
	for _, ds := range model.Datasets {
		v := p.views[ds]
		if !v.loaded || len(v.rows) != 3 {
			t.Errorf("%s: loaded=%v rows=%d", ds, v.loaded, len(v.rows))
		}
		if v.total != fb.totals[ds] {
			t.Errorf("%s: total = %d, want %d", ds, v.total, fb.totals[ds])
		}
	}
	if p.agg.Total != 157 {
		t.Errorf("aggregate = %d, want 157", p.agg.Total)
	}
	if p.Loading() {
		t.Error("still loading after every response arrived")
	}
	if got := p.views[model.DatasetAmcache].facets; len(got) != 2 {
		t.Errorf("amcache facets = %v", got)
	}

	view := p.View(160, 40)
	for _, want := range []string{"MFT 120", "Amcache 30", "Security 7", "records 157", "page 1 of 3"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestBrowse_SummaryCountsOverrideTotals(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	fb.summary = model.Summary{"mft_rows": 1000, "security_rows": 0}
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	if got := p.agg.Totals[model.DatasetMFT]; got != 1000 || !p.agg.FromSummary[model.DatasetMFT] {
		t.Errorf("mft = %d (summary %v), want 1000 from summary", got, p.agg.FromSummary[model.DatasetMFT])
	}
	if p.agg.FromSummary[model.DatasetSecurity] {
		t.Error("zero security count must not override the loaded total")
	}
	if p.agg.Total != 1000+30+7 {
		t.Errorf("aggregate = %d", p.agg.Total)
	}
	if !strings.Contains(p.View(160, 40), "MFT 1,000*") {
		t.Error("summarized count not marked in the tabs")
	}
}

func TestBrowse_NoEvidence(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "")

	if fb.callCount() != 0 {
		t.Fatal("requests issued without an evidence id")
	}
	if !strings.Contains(p.View(100, 20), "No evidence selected") {
		t.Error("placeholder missing")
	}

	press(t, p, "e")
	if !p.Capturing() {
		t.Fatal("evidence input not focused")
	}
	press(t, p, "ev-7", "enter")
	if p.engine.EvidenceID() != "ev-7" {
		t.Fatalf("evidence = %q", p.engine.EvidenceID())
	}
	if call := fb.lastCall(t, model.DatasetSecurity); call.evidenceID != "ev-7" {
		t.Errorf("security fetched for %q", call.evidenceID)
	}
}

func TestBrowse_QueryKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		keys  []string
		ds    model.Dataset
		param string
		want  string
	}{
		{"search", []string{"/", "cmd.exe", "enter"}, model.DatasetMFT, "q", "cmd.exe"},
		{"search resets page", []string{"right", "/", "x", "enter"}, model.DatasetMFT, "page", "1"},
		{"next page", []string{"right"}, model.DatasetMFT, "page", "2"},
		{"last page", []string{"G"}, model.DatasetMFT, "page", "3"},
		{"first page", []string{"G", "g"}, model.DatasetMFT, "page", "1"},
		{"sort cursor column", []string{">", "s"}, model.DatasetMFT, "sort", "FileName"},
		{"sort active column toggles", []string{"s"}, model.DatasetMFT, "order", "desc"},
		{"cursor wraps left", []string{"<", "s"}, model.DatasetMFT, "sort", "Modified"},
		{"reverse sort", []string{"S"}, model.DatasetMFT, "order", "desc"},
		{"security default sort reversed", []string{"tab", "tab", "S"}, model.DatasetSecurity, "order", "asc"},
		{"publisher filter", []string{"tab", "f", "right", "enter"}, model.DatasetAmcache, "publisher", "Microsoft Corporation"},
		{"event id filter", []string{"shift+tab", "f", "right", "enter"}, model.DatasetSecurity, "event_id", "4624"},
		{"size filter", []string{"f", "down", "right", "right", "right", "enter"}, model.DatasetMFT, "size_bucket", "large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fb := newFakeBackend()
			p, _ := newTestBrowsePage(t, fb, "ev-1")
			press(t, p, tt.keys...)

			if got := fb.lastCall(t, tt.ds).params.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}
}

func TestBrowse_PagerStopsAtBounds(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	before := fb.callCount()
	press(t, p, "left")
	if fb.callCount() != before {
		t.Error("prev on page 1 issued a request")
	}
	press(t, p, "G")
	before = fb.callCount()
	press(t, p, "right")
	if fb.callCount() != before {
		t.Error("next on the last page issued a request")
	}
}

func TestBrowse_ClearFilters(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	press(t, p, "/", "svchost", "enter", "S", "c")

	params := fb.lastCall(t, model.DatasetMFT).params
	if params.Get("q") != "" || params.Get("sort") != "EntryNumber" || params.Get("order") != "asc" {
		t.Errorf("params after clear = %v", params)
	}
}

func TestBrowse_LoadErrorKeepsRowsAndReports(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, status := newTestBrowsePage(t, fb, "ev-1")

	fb.mu.Lock()
	fb.pageErr[model.DatasetMFT] = errBackendDown
	fb.mu.Unlock()
	press(t, p, "right")

	if got := status.Error(); !strings.Contains(got, "MFT") || !strings.Contains(got, "connection refused") {
		t.Errorf("status error = %q", got)
	}
	if len(p.views[model.DatasetMFT].rows) != 3 {
		t.Error("rows dropped after a failed load")
	}
	if p.views[model.DatasetMFT].pager.Page != 1 {
		t.Errorf("pager page = %d, want 1", p.views[model.DatasetMFT].pager.Page)
	}
}

func TestBrowse_StaleResponseIgnored(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	// Two page changes in flight; the older answer arrives last.
	first, _ := p.Update(keyMsg("right"))
	second, _ := p.Update(keyMsg("G"))
	msgs := collect(first)
	drive(t, pageUpdater(p), second)
	for _, m := range msgs {
		p.Update(m)
	}
	if got := p.views[model.DatasetMFT].pager.Page; got != 3 {
		t.Errorf("page = %d, want 3", got)
	}
}

// collect runs cmd without feeding its messages back.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := run(cmd).(type) {
	case nil:
		return nil
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, collect(c)...)
		}
		return out
	default:
		return []tea.Msg{msg}
	}
}

func TestBrowse_RecordModal(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	press(t, p, "down", "enter")
	top := p.modals.Top()
	if top == nil || top.ID() != "record" {
		t.Fatalf("top modal = %v", top)
	}
	if view := p.View(120, 40); !strings.Contains(view, "file1.exe") {
		t.Error("record modal does not show the selected row")
	}
	press(t, p, "esc")
	if p.modals.Top() != nil {
		t.Error("esc did not close the modal")
	}
}

func TestBrowse_Export(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, status := newTestBrowsePage(t, fb, "ev-1")

	press(t, p, "x")

	path := filepath.Join(p.exportDir, "mft_view.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("lines = %d, want header + 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], `"Entry","File Name"`) {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.Contains(status.Notice(), "Exported 3 rows") {
		t.Errorf("notice = %q", status.Notice())
	}
}

func TestBrowse_OpenSwitchesEvidence(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestBrowsePage(t, fb, "ev-1")

	drive(t, pageUpdater(p), p.Open("ev-2"))

	for _, ds := range model.Datasets {
		if call := fb.lastCall(t, ds); call.evidenceID != "ev-2" {
			t.Errorf("%s fetched for %q", ds, call.evidenceID)
		}
	}
	if p.Open("ev-2") != nil {
		t.Error("reopening the same evidence reloaded")
	}
}

func TestBrowse_SortByColumn(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, status := newTestBrowsePage(t, fb, "ev-1")

	press(t, p, "tab", "tab")
	if p.Dataset() != model.DatasetSecurity {
		t.Fatalf("dataset = %s", p.Dataset())
	}

	// Message has no sort key.
	before := fb.callCount()
	press(t, p, ">", ">")
	if got := p.views[model.DatasetSecurity].table.Columns()[2].Title; got != "[Message]" {
		t.Errorf("cursor header = %q", got)
	}
	press(t, p, "s")
	if fb.callCount() != before {
		t.Error("sorting by Message issued a request")
	}
	q := p.engine.Query(model.DatasetSecurity)
	if q.SortKey != "Timestamp" || q.SortDir != model.SortDesc {
		t.Errorf("sort = %s %s, want Timestamp desc", q.SortKey, q.SortDir)
	}
	if got := status.Notice(); got != "Message cannot be sorted" {
		t.Errorf("notice = %q", got)
	}

	press(t, p, ">", "s")
	params := fb.lastCall(t, model.DatasetSecurity).params
	if params.Get("sort") != "User" || params.Get("order") != "asc" || params.Get("page") != "1" {
		t.Errorf("params = %v, want User asc on page 1", params)
	}
	if got := p.views[model.DatasetSecurity].table.Columns()[3].Title; got != "[User ▲]" {
		t.Errorf("sorted header = %q", got)
	}
	if p.views[model.DatasetMFT].column != 0 {
		t.Error("column cursor leaked into another dataset")
	}
}

func TestFormatCount(t *testing.T) {
	t.Parallel()
	for in, want := range map[int64]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567"} {
		if got := formatCount(in); got != want {
			t.Errorf("formatCount(%d) = %q, want %q", in, got, want)
		}
	}
}
