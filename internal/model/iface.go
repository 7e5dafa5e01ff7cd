package model

import (
	"context"
	"io"
	"net/url"
)

// Backend is the client-side view of the evidence backend.
type Backend interface {
	Overview(ctx context.Context) (*Overview, error)
	Preflight(ctx context.Context) (*Preflight, error)
	Evidence(ctx context.Context, id string) (*EvidenceDetail, error)
	Page(ctx context.Context, evidenceID string, ds Dataset, params url.Values) (*PageResult, error)
	Upload(ctx context.Context, req UploadRequest, progress func(sent, total int64)) (*UploadResult, error)
	StartExtract(ctx context.Context, id string) (*ExtractResult, error)
	StartParse(ctx context.Context, id string) (*ParseResult, error)
}

// PageQuery is a decoded dataset page request on the server side.
type PageQuery struct {
	Page     int
	PageSize int
	Text     string
	Filters  map[string]string
	SortKey  string
	SortDir  SortDir
}

// Offset is the row offset of the requested page.
func (q PageQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// RecordReader serves dataset pages, summaries and the dashboard.
type RecordReader interface {
	QueryPage(ctx context.Context, evidenceID string, ds Dataset, q PageQuery) (*PageResult, error)
	DistinctPublishers(ctx context.Context, evidenceID string, limit int) ([]string, error)
	Overview(ctx context.Context, recent int) (*Overview, error)
	EvidenceByID(ctx context.Context, id string) (*EvidenceRow, error)
}

// RecordWriter loads parsed records for one evidence.
type RecordWriter interface {
	ReplaceRecords(ctx context.Context, evidenceID string, ds Dataset, rows []Record) (int64, error)
}

// CaseStore persists cases and evidence metadata.
type CaseStore interface {
	CreateCase(ctx context.Context, c *CaseRow) error
	CaseByID(ctx context.Context, id string) (*CaseRow, error)
	CreateEvidence(ctx context.Context, e *EvidenceRow) error
	UpdateEvidence(ctx context.Context, e *EvidenceRow) error
	EvidenceByID(ctx context.Context, id string) (*EvidenceRow, error)
}

// EvidenceUpload is an incoming archive on the server side.
type EvidenceUpload struct {
	Filename        string
	Body            io.Reader
	CaseID          string
	UploadedBy      string
	SourceSystem    string
	AcquisitionTool string
	Notes           string
}

// EvidenceService runs the server-side ingestion stages.
type EvidenceService interface {
	Upload(ctx context.Context, up EvidenceUpload) (*UploadResult, error)
	Extract(ctx context.Context, id string) (*ExtractResult, error)
	Parse(ctx context.Context, id string) (*ParseResult, error)
	Preflight(ctx context.Context) (*Preflight, error)
}
