package duckdb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kapeview/kapeview/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedEvidence(t *testing.T, store *Store, id string) {
	t.Helper()
	ctx := context.Background()
	c := &model.CaseRow{ID: "case-" + id, CaseNumber: "CASE-" + id, Title: "Auto " + id}
	if err := store.CreateCase(ctx, c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if err := store.CreateEvidence(ctx, &model.EvidenceRow{ID: id, CaseID: c.ID, OriginalName: id + ".zip"}); err != nil {
		t.Fatalf("CreateEvidence: %v", err)
	}
}

func TestEvidenceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvidence(t, store, "ev-1")

	ev, err := store.EvidenceByID(ctx, "ev-1")
	if err != nil {
		t.Fatalf("EvidenceByID: %v", err)
	}
	if ev.ParseStatus != model.StatusPending {
		t.Errorf("ParseStatus = %q, want PENDING", ev.ParseStatus)
	}

	ev.ParseStatus = model.StatusDone
	ev.MFTCSVPath = "parsed/ev-1/mft.csv"
	ev.Summary = model.Summary{"mft_rows": 12, "mft_filelisting": "parsed/ev-1/mft_FileListing.csv"}
	if err := store.UpdateEvidence(ctx, ev); err != nil {
		t.Fatalf("UpdateEvidence: %v", err)
	}

	got, err := store.EvidenceByID(ctx, "ev-1")
	if err != nil {
		t.Fatalf("EvidenceByID: %v", err)
	}
	if got.ParseStatus != model.StatusDone || got.MFTCSVPath != "parsed/ev-1/mft.csv" {
		t.Errorf("update not persisted: %+v", got)
	}
	if n, ok := got.Summary.Count(model.DatasetMFT); !ok || n != 12 {
		t.Errorf("summary mft_rows = %d %v, want 12", n, ok)
	}
}

func TestNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EvidenceByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("EvidenceByID err = %v, want ErrNotFound", err)
	}
	if _, err := store.CaseByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CaseByID err = %v, want ErrNotFound", err)
	}
	if err := store.UpdateEvidence(ctx, &model.EvidenceRow{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEvidence err = %v, want ErrNotFound", err)
	}
}

func TestOverview(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{model.CaseOpen, model.CaseInProgress, model.CaseClosed, model.CaseOnHold} {
		c := &model.CaseRow{
			ID:         fmt.Sprintf("c%d", i),
			CaseNumber: fmt.Sprintf("CASE-%d", i),
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.CreateCase(ctx, c); err != nil {
			t.Fatalf("CreateCase: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := store.CreateEvidence(ctx, &model.EvidenceRow{ID: fmt.Sprintf("e%d", i), CaseID: "c0"}); err != nil {
			t.Fatalf("CreateEvidence: %v", err)
		}
	}

	ov, err := store.Overview(ctx, 3)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	want := model.OverviewTotals{Cases: 4, Evidence: 3, ActiveCases: 2, CompletedCases: 1}
	if ov.Totals != want {
		t.Errorf("totals = %+v, want %+v", ov.Totals, want)
	}
	if len(ov.RecentCases) != 3 {
		t.Fatalf("recent = %d, want 3", len(ov.RecentCases))
	}
	if ov.RecentCases[0].ID != "c3" {
		t.Errorf("most recent = %s, want c3", ov.RecentCases[0].ID)
	}
	if ov.RecentCases[0].StatusBadge != "secondary" {
		t.Errorf("ON_HOLD badge = %s, want secondary", ov.RecentCases[0].StatusBadge)
	}
}

func mftFixture() []model.Record {
	return []model.Record{
		{"EntryNumber": "0", "FileName": "$MFT", "FullPath": ".\\$MFT", "Size": "262144", "IsDirectory": "False"},
		{"EntryNumber": "5", "FileName": ".", "FullPath": ".", "Size": "0", "IsDirectory": "True"},
		{"EntryNumber": "40", "FileName": "pagefile.sys", "FullPath": ".\\pagefile.sys", "Size": "1073741824", "IsDirectory": "False"},
		{"EntryNumber": "41", "FileName": "cmd.exe", "FullPath": ".\\Windows\\System32\\cmd.exe", "Size": "289792", "IsDirectory": "False"},
		{"EntryNumber": "42", "FileName": "setup.log", "FullPath": ".\\Windows\\setup.log", "Size": "5242880", "IsDirectory": "False"},
		{"EntryNumber": "not-a-number", "FileName": "broken"},
	}
}

func TestReplaceRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvidence(t, store, "ev-1")

	n, err := store.ReplaceRecords(ctx, "ev-1", model.DatasetMFT, mftFixture())
	if err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	if n != 5 {
		t.Errorf("written = %d, want 5 (one unconvertible row dropped)", n)
	}

	// A second import replaces rather than appends.
	n, err = store.ReplaceRecords(ctx, "ev-1", model.DatasetMFT, mftFixture()[:2])
	if err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	count, err := store.RowCount(ctx, "ev-1", model.DatasetMFT)
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	if n != 2 || count != 2 {
		t.Errorf("after replace written=%d count=%d, want 2/2", n, count)
	}

	if _, err := store.ReplaceRecords(ctx, "ev-1", model.Dataset("prefetch"), nil); err == nil {
		t.Error("expected error for unknown dataset")
	}
}

func TestQueryPage_MFT(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvidence(t, store, "ev-1")
	seedEvidence(t, store, "ev-2")
	if _, err := store.ReplaceRecords(ctx, "ev-1", model.DatasetMFT, mftFixture()); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ReplaceRecords(ctx, "ev-2", model.DatasetMFT, mftFixture()[:1]); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		q         model.PageQuery
		wantTotal int64
		wantFirst string
		wantRows  int
	}{
		{
			name:      "default order",
			q:         model.PageQuery{Page: 1, PageSize: 2, SortKey: "EntryNumber", SortDir: model.SortAsc},
			wantTotal: 5, wantFirst: "$MFT", wantRows: 2,
		},
		{
			name:      "second page",
			q:         model.PageQuery{Page: 3, PageSize: 2, SortKey: "EntryNumber", SortDir: model.SortAsc},
			wantTotal: 5, wantFirst: "setup.log", wantRows: 1,
		},
		{
			name:      "size desc",
			q:         model.PageQuery{Page: 1, PageSize: 10, SortKey: "Size", SortDir: model.SortDesc},
			wantTotal: 5, wantFirst: "pagefile.sys", wantRows: 5,
		},
		{
			name:      "free text is case-insensitive",
			q:         model.PageQuery{Page: 1, PageSize: 10, Text: "SYSTEM32", SortKey: "EntryNumber"},
			wantTotal: 1, wantFirst: "cmd.exe", wantRows: 1,
		},
		{
			name:      "directories",
			q:         model.PageQuery{Page: 1, PageSize: 10, Filters: map[string]string{"type": "dir"}, SortKey: "EntryNumber"},
			wantTotal: 1, wantFirst: ".", wantRows: 1,
		},
		{
			name:      "medium files",
			q:         model.PageQuery{Page: 1, PageSize: 10, Filters: map[string]string{"type": "file", "size_bucket": "medium"}, SortKey: "EntryNumber"},
			wantTotal: 1, wantFirst: "setup.log", wantRows: 1,
		},
		{
			name:      "unknown bucket matches nothing",
			q:         model.PageQuery{Page: 1, PageSize: 10, Filters: map[string]string{"size_bucket": "huge"}},
			wantTotal: 0, wantRows: 0,
		},
		{
			name:      "unknown sort key falls back to first column",
			q:         model.PageQuery{Page: 1, PageSize: 1, SortKey: "DROP TABLE"},
			wantTotal: 5, wantFirst: "$MFT", wantRows: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.QueryPage(ctx, "ev-1", model.DatasetMFT, tt.q)
			if err != nil {
				t.Fatalf("QueryPage: %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Rows) != tt.wantRows {
				t.Fatalf("rows = %d, want %d", len(res.Rows), tt.wantRows)
			}
			if tt.wantRows > 0 {
				if got := res.Rows[0].Text("FileName"); got != tt.wantFirst {
					t.Errorf("first = %q, want %q", got, tt.wantFirst)
				}
			}
		})
	}
}

func TestQueryPage_AmcacheFacets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvidence(t, store, "ev-1")
	rows := []model.Record{
		{"AppName": "Edge", "Publisher": "Microsoft"},
		{"AppName": "Teams", "Publisher": "Microsoft"},
		{"AppName": "Chrome", "Publisher": "Google"},
		{"AppName": "tool.exe", "Publisher": ""},
	}
	if _, err := store.ReplaceRecords(ctx, "ev-1", model.DatasetAmcache, rows); err != nil {
		t.Fatal(err)
	}

	res, err := store.QueryPage(ctx, "ev-1", model.DatasetAmcache, model.PageQuery{
		Page: 1, PageSize: 10, SortKey: "AppName", Filters: map[string]string{"publisher": "Microsoft"},
	})
	if err != nil {
		t.Fatalf("QueryPage: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("total = %d, want 2", res.Total)
	}
	if len(res.Publishers) != 2 || res.Publishers[0] != "Microsoft" || res.Publishers[1] != "Google" {
		t.Errorf("publishers = %v, want [Microsoft Google]", res.Publishers)
	}
}

func TestSecuritySummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvidence(t, store, "ev-1")
	rows := []model.Record{
		{"Timestamp": "2026-01-01T10:00:00Z", "EventID": "4624", "LogonType": "3"},
		{"Timestamp": "2026-01-01T10:01:00Z", "EventID": "4624", "LogonType": "10"},
		{"Timestamp": "2026-01-01T10:02:00Z", "EventID": "4625", "LogonType": "3"},
	}
	if _, err := store.ReplaceRecords(ctx, "ev-1", model.DatasetSecurity, rows); err != nil {
		t.Fatal(err)
	}

	sum, err := store.SecuritySummary(ctx, "ev-1")
	if err != nil {
		t.Fatalf("SecuritySummary: %v", err)
	}
	if len(sum) != 2 || sum[0] != (model.EventIDCount{EventID: 4624, Count: 2}) {
		t.Errorf("summary = %+v", sum)
	}

	res, err := store.QueryPage(ctx, "ev-1", model.DatasetSecurity, model.PageQuery{
		Page: 1, PageSize: 10, SortKey: "Timestamp", SortDir: model.SortDesc,
		Filters: map[string]string{"event_id": "4624", "logon_type": "3"},
	})
	if err != nil {
		t.Fatalf("QueryPage: %v", err)
	}
	if res.Total != 1 || res.Rows[0].Text("EventID") != "4624" {
		t.Errorf("filtered page = %+v", res)
	}
}
