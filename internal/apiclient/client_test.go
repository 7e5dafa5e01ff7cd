package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kapeview/kapeview/internal/apiclient"
	"github.com/kapeview/kapeview/internal/model"
)

const testToken = "tok-123"

// fakeBackend mimics the evidence API closely enough for the client.
func fakeBackend(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var rejected atomic.Int32
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(v)
	}
	requireToken := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get(apiclient.CSRFHeader) != testToken {
			rejected.Add(1)
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "csrf"})
			return false
		}
		return true
	}

	mux.HandleFunc("GET /api/dashboard/overview", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: apiclient.CSRFCookie, Value: testToken, Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"totals":       map[string]any{"cases": 2, "evidence": 3, "active_cases": 1, "completed_cases": 1},
			"recent_cases": []any{map[string]any{"id": "c1", "case_number": "CASE-1", "evidence_count": 3}},
		})
	})
	mux.HandleFunc("GET /api/evidence/{id}/{ds}/", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "ev-1" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{
			"rows": []any{map[string]any{
				"EntryNumber": 42,
				"FileName":    q.Get("q"),
				"FullPath":    r.PathValue("ds") + ":" + q.Get("sort") + ":" + q.Get("order") + ":" + q.Get("page"),
			}},
			"total":      1234,
			"publishers": []string{"Microsoft"},
		})
	})
	mux.HandleFunc("GET /api/evidence/{id}/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      r.PathValue("id"),
			"status":  "DONE",
			"summary": map[string]any{"mft_rows": 10, "security_rows": 4},
		})
	})
	mux.HandleFunc("POST /api/start-extract/", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		if r.FormValue("id") == "full" {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "disk full"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "RUNNING"})
	})
	mux.HandleFunc("POST /api/start-parse/", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		http.Error(w, "missing id", http.StatusBadRequest)
	})
	mux.HandleFunc("POST /api/upload-evidence/", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			http.Error(w, "not ajax", http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile(apiclient.UploadField)
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":            "ev-9",
			"case_number":   "CASE-" + r.FormValue("case_id"),
			"original_name": hdr.Filename,
			"size_bytes":    len(data),
			"sha256":        r.FormValue("uploaded_by"),
			"status":        "PENDING",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &rejected
}

func newClient(t *testing.T, srv *httptest.Server) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(srv.URL+"/", 0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_RejectsBadScheme(t *testing.T) {
	t.Parallel()
	if _, err := apiclient.New("ftp://example.com", 0); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestPage_SendsParamsAndDecodes(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBackend(t)
	c := newClient(t, srv)

	params := url.Values{"q": {"cmd.exe"}, "sort": {"Size"}, "order": {"desc"}, "page": {"3"}}
	res, err := c.Page(context.Background(), "ev-1", model.DatasetMFT, params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1234 {
		t.Errorf("total = %d, want 1234", res.Total)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if got := row.Text("EntryNumber"); got != "42" {
		t.Errorf("EntryNumber = %q, want 42", got)
	}
	if got := row.Text("FullPath"); got != "mft:Size:desc:3" {
		t.Errorf("echoed params = %q", got)
	}
	if got := row.Text("FileName"); got != "cmd.exe" {
		t.Errorf("free text = %q", got)
	}
	if len(res.Publishers) != 1 {
		t.Errorf("publishers = %v", res.Publishers)
	}
}

func TestPage_NotFoundIsStatusError(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBackend(t)
	c := newClient(t, srv)

	_, err := c.Page(context.Background(), "nope", model.DatasetAmcache, nil)
	if !apiclient.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("err = %v, want 404 StatusError", err)
	}
}

func TestEvidence_SummaryCounts(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBackend(t)
	c := newClient(t, srv)

	ev, err := c.Evidence(context.Background(), "ev-1")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := ev.Summary.Count(model.DatasetMFT); !ok || n != 10 {
		t.Errorf("mft count = %d %v, want 10", n, ok)
	}
	if n, ok := ev.Summary.Count(model.DatasetSecurity); !ok || n != 4 {
		t.Errorf("security count = %d %v, want 4", n, ok)
	}
	if _, ok := ev.Summary.Count(model.DatasetAmcache); ok {
		t.Error("amcache count should be absent")
	}
}

func TestStartExtract_PrimesCSRFAndDecodesErrorBody(t *testing.T) {
	t.Parallel()
	srv, rejected := fakeBackend(t)
	c := newClient(t, srv)

	res, err := c.StartExtract(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("StartExtract: %v", err)
	}
	if !res.OK {
		t.Error("ok = false, want true")
	}

	res, err = c.StartExtract(context.Background(), "full")
	if !apiclient.IsStatus(err, http.StatusInternalServerError) {
		t.Fatalf("err = %v, want 500 StatusError", err)
	}
	if res == nil || res.OK || res.Error != "disk full" {
		t.Errorf("result = %+v, want decoded error body", res)
	}
	if n := rejected.Load(); n != 0 {
		t.Errorf("csrf rejections = %d, want 0", n)
	}
}

func TestStartParse_PlainTextError(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBackend(t)
	c := newClient(t, srv)

	res, err := c.StartParse(context.Background(), "")
	if res != nil {
		t.Errorf("result = %+v, want nil for a non-JSON body", res)
	}
	var se *apiclient.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Body != "missing id" {
		t.Errorf("err = %v, want 400 missing id", err)
	}
}

func TestUpload_StreamsMultipart(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBackend(t)
	c := newClient(t, srv)

	path := filepath.Join(t.TempDir(), "triage.zip")
	payload := strings.Repeat("PK", 40000)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	var lastSent, lastTotal int64
	res, err := c.Upload(context.Background(), model.UploadRequest{
		Path:       path,
		CaseID:     "7",
		UploadedBy: "analyst",
	}, func(sent, total int64) {
		lastSent, lastTotal = sent, total
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "ev-9" || res.OriginalName != "triage.zip" || res.CaseNumber != "CASE-7" {
		t.Errorf("result = %+v", res)
	}
	if res.SizeBytes != int64(len(payload)) {
		t.Errorf("size = %d, want %d", res.SizeBytes, len(payload))
	}
	if res.SHA256 != "analyst" {
		t.Errorf("uploaded_by field not sent: %q", res.SHA256)
	}
	if lastSent != int64(len(payload)) || lastTotal != int64(len(payload)) {
		t.Errorf("progress = %d/%d, want %d/%d", lastSent, lastTotal, len(payload), len(payload))
	}
}

func TestUpload_MissingFile(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBackend(t)
	c := newClient(t, srv)

	_, err := c.Upload(context.Background(), model.UploadRequest{Path: filepath.Join(t.TempDir(), "none.zip")}, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()
	c, err := apiclient.New("http://127.0.0.1:8000", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.ResolveURL("/media/parsed/1/mft.csv"); got != "http://127.0.0.1:8000/media/parsed/1/mft.csv" {
		t.Errorf("ResolveURL = %s", got)
	}
	if got := c.ResolveURL(""); got != "" {
		t.Errorf("ResolveURL(\"\") = %q", got)
	}
}
