package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kapeview/kapeview/internal/model"
)

func newTestOverviewPage(t *testing.T, fb *fakeBackend, records AggregateSource) (*OverviewPage, *statusLine) {
	t.Helper()
	status := newStatusLine()
	p := NewOverviewPage(fb, records, 0, DefaultKeyMap(), status)
	p.Update(tea.WindowSizeMsg{Width: 120, Height: 50})
	drive(t, pageUpdater(p), p.Init())
	return p, status
}

func TestOverview_Loads(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, status := newTestOverviewPage(t, fb, nil)

	if p.Loading() {
		t.Error("still loading")
	}
	if p.overview == nil || p.preflight == nil {
		t.Fatal("overview or preflight not stored")
	}
	view := p.View(120, 50)
	for _, want := range []string{"Totals", "Preflight", "ready", "CASE-20250314-092653", "50.0 GiB free of 100.0 GiB"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Records") {
		t.Error("records chart shown without an evidence")
	}
	if status.Error() != "" || status.Notice() != "" {
		t.Errorf("status = %q / %q", status.Error(), status.Notice())
	}
}

func TestOverview_LowDisk(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	fb.preflight.Checks.DiskFreeBytes = 5 << 30
	_, status := newTestOverviewPage(t, fb, nil)

	if status.Notice() != "Low disk space on the backend media root" {
		t.Errorf("notice = %q", status.Notice())
	}
}

func TestOverview_BackendDown(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	fb.overErr = errBackendDown
	p, status := newTestOverviewPage(t, fb, nil)

	if got := status.Error(); got != "overview: connection refused" {
		t.Errorf("status error = %q", got)
	}
	if p.overview != nil {
		t.Error("overview stored despite the error")
	}
	if !strings.Contains(p.View(120, 50), "No cases yet") {
		t.Error("empty case list not rendered")
	}
}

func TestOverview_RecordsChart(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	browsePage, _ := newTestBrowsePage(t, fb, "ev-1")
	p, _ := newTestOverviewPage(t, fb, browsePage.Engine())

	view := p.View(120, 50)
	if !strings.Contains(view, "evidence ev-1") {
		t.Error("records chart missing")
	}
}

func TestOverview_CaseModal(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestOverviewPage(t, fb, nil)

	press(t, p, "enter")
	top := p.modals.Top()
	if top == nil || top.ID() != "case" {
		t.Fatalf("top modal = %v", top)
	}
	if !strings.Contains(p.View(120, 50), "Auto-created Case") {
		t.Error("case modal does not show the title")
	}
	press(t, p, "esc")
	if p.Capturing() {
		t.Error("modal still open")
	}
}

func TestOverview_Refresh(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend()
	p, _ := newTestOverviewPage(t, fb, nil)

	fb.overview = &model.Overview{Totals: model.OverviewTotals{Cases: 9}}
	press(t, p, "r")

	if p.overview.Totals.Cases != 9 {
		t.Errorf("cases = %d after refresh", p.overview.Totals.Cases)
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{100 << 30, "100.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
