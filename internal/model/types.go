package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Dataset identifies one of the three independently paged record collections.
type Dataset string

const (
	DatasetMFT      Dataset = "mft"
	DatasetAmcache  Dataset = "amcache"
	DatasetSecurity Dataset = "security"
)

// Datasets lists every dataset in display order.
var Datasets = []Dataset{DatasetMFT, DatasetAmcache, DatasetSecurity}

// ParseDataset returns the dataset named by s.
func ParseDataset(s string) (Dataset, bool) {
	switch Dataset(strings.ToLower(strings.TrimSpace(s))) {
	case DatasetMFT:
		return DatasetMFT, true
	case DatasetAmcache:
		return DatasetAmcache, true
	case DatasetSecurity:
		return DatasetSecurity, true
	}
	return "", false
}

// Title is the human label for the dataset.
func (d Dataset) Title() string {
	switch d {
	case DatasetMFT:
		return "MFT"
	case DatasetAmcache:
		return "Amcache"
	case DatasetSecurity:
		return "Security"
	}
	return string(d)
}

// SortDir is the direction of a dataset sort.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Toggle returns the opposite direction.
func (d SortDir) Toggle() SortDir {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// ParseSortDir parses "asc"/"desc", case-insensitively.
func ParseSortDir(s string) (SortDir, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return SortAsc, true
	case "desc":
		return SortDesc, true
	}
	return "", false
}

// Record is one row of a dataset: field name to primitive value.
// Numbers decoded from the wire are json.Number.
type Record map[string]any

// Text renders the named field for display. Missing and null fields are "".
func (r Record) Text(field string) string {
	return FormatValue(r[field])
}

// FormatValue renders a primitive record value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// PageResult is the rows plus total count returned for one page of one
// dataset's query. It replaces the prior result for its dataset wholesale.
type PageResult struct {
	Rows       []Record `json:"rows"`
	Total      int64    `json:"total"`
	Publishers []string `json:"publishers,omitempty"`
}

// Summary is the free-form per-evidence summary produced by the parse stage.
// Besides row counts it may carry artifact paths.
type Summary map[string]any

// Summary keys for security row counts, in precedence order.
var securitySummaryKeys = []string{"security_events_rows_db", "security_events_rows", "security_rows"}

// Count returns the summary's row count for a dataset, if present and numeric.
func (s Summary) Count(ds Dataset) (int64, bool) {
	switch ds {
	case DatasetMFT:
		return numeric(s["mft_rows"])
	case DatasetAmcache:
		return numeric(s["amcache_rows"])
	case DatasetSecurity:
		// Zero counts fall through to the next key.
		for _, k := range securitySummaryKeys {
			if n, ok := numeric(s[k]); ok && n != 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func numeric(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

// EvidenceDetail describes one uploaded evidence archive.
type EvidenceDetail struct {
	ID              string  `json:"id"`
	CaseID          string  `json:"case_id"`
	Status          string  `json:"status"`
	OriginalName    string  `json:"original_name"`
	SizeBytes       int64   `json:"size_bytes"`
	SHA256          string  `json:"sha256"`
	ZipFile         string  `json:"zip_file,omitempty"`
	ExtractPath     string  `json:"extract_path,omitempty"`
	SourceSystem    string  `json:"source_system"`
	AcquisitionTool string  `json:"acquisition_tool"`
	Notes           string  `json:"notes"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	MFTCSV          string  `json:"mft_csv,omitempty"`
	AmcacheCSV      string  `json:"amcache_csv,omitempty"`
	SecurityCSV     string  `json:"security_csv,omitempty"`
	ParserImage     string  `json:"parser_image,omitempty"`
	ParsedAt        string  `json:"parsed_at,omitempty"`
	Summary         Summary `json:"summary"`
}

// OverviewTotals are the dashboard counters.
type OverviewTotals struct {
	Cases          int64 `json:"cases"`
	Evidence       int64 `json:"evidence"`
	ActiveCases    int64 `json:"active_cases"`
	CompletedCases int64 `json:"completed_cases"`
}

// CaseSummary is one row of the recent cases list.
type CaseSummary struct {
	ID            string `json:"id"`
	CaseNumber    string `json:"case_number"`
	Title         string `json:"title"`
	EvidenceCount int64  `json:"evidence_count"`
	Investigator  string `json:"investigator"`
	Status        string `json:"status"`
	StatusBadge   string `json:"status_badge"`
	CreatedAt     string `json:"created_at"`
}

// Overview is the dashboard summary.
type Overview struct {
	Totals      OverviewTotals `json:"totals"`
	RecentCases []CaseSummary  `json:"recent_cases"`
}

// PreflightChecks are the individual backend health checks.
type PreflightChecks struct {
	DockerCLI         bool  `json:"docker_cli"`
	ParserImageOK     bool  `json:"parser_image_ok"`
	MediaRootWritable bool  `json:"media_root_writable"`
	ParsedWritable    bool  `json:"parsed_writable"`
	ExtractedWritable bool  `json:"extracted_writable"`
	DiskTotalBytes    int64 `json:"disk_total_bytes"`
	DiskFreeBytes     int64 `json:"disk_free_bytes"`
}

// DiskLow reports whether free space is under LowDiskFraction of the total.
func (c PreflightChecks) DiskLow() bool {
	if c.DiskTotalBytes <= 0 {
		return false
	}
	return float64(c.DiskFreeBytes) < float64(c.DiskTotalBytes)*LowDiskFraction
}

// Preflight is the backend health report.
type Preflight struct {
	OK     bool            `json:"ok"`
	Checks PreflightChecks `json:"checks"`
}

// UploadRequest describes an archive to upload and its case metadata.
type UploadRequest struct {
	Path            string
	CaseID          string
	UploadedBy      string
	SourceSystem    string
	AcquisitionTool string
	Notes           string
}

// UploadResult is the backend's answer to a successful upload.
type UploadResult struct {
	ID           string `json:"id"`
	CaseID       string `json:"case_id"`
	CaseNumber   string `json:"case_number"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	SHA256       string `json:"sha256"`
	Status       string `json:"status"`
}

// ExtractResult is the backend's answer to start-extract.
type ExtractResult struct {
	OK          bool   `json:"ok"`
	Status      string `json:"status,omitempty"`
	ExtractPath string `json:"extract_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ParseResult is the backend's answer to start-parse.
type ParseResult struct {
	OK             bool     `json:"ok"`
	Status         string   `json:"status,omitempty"`
	MFTCSV         string   `json:"mft_csv,omitempty"`
	AmcacheCSV     string   `json:"amcache_csv,omitempty"`
	AmcacheAll     []string `json:"amcache_all,omitempty"`
	MFTFileListing string   `json:"mft_filelisting,omitempty"`
	SecurityCSV    string   `json:"security_csv,omitempty"`
	LogTail        string   `json:"log_tail,omitempty"`
	Summary        Summary  `json:"summary,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Succeeded reports whether the parse stage finished successfully:
// ok is true, or status is PARSED or DONE in any case.
func (r ParseResult) Succeeded() bool {
	if r.OK {
		return true
	}
	switch strings.ToUpper(strings.TrimSpace(r.Status)) {
	case "PARSED", StatusDone:
		return true
	}
	return false
}

// Artifacts returns the non-empty artifact locators keyed by name.
func (r ParseResult) Artifacts() map[string]string {
	out := make(map[string]string)
	add := func(name, loc string) {
		if loc != "" {
			out[name] = loc
		}
	}
	add("mft_csv", r.MFTCSV)
	add("amcache_csv", r.AmcacheCSV)
	add("mft_filelisting", r.MFTFileListing)
	add("security_csv", r.SecurityCSV)
	for i, loc := range r.AmcacheAll {
		add("amcache_"+strconv.Itoa(i+1), loc)
	}
	return out
}

// EventIDCount is the number of security events with one event id.
type EventIDCount struct {
	EventID int64 `json:"event_id"`
	Count   int64 `json:"count"`
}
