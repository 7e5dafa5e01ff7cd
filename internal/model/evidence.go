package model

import "time"

// Case statuses.
const (
	CaseOpen       = "OPEN"
	CaseInProgress = "IN_PROGRESS"
	CaseOnHold     = "ON_HOLD"
	CaseClosed     = "CLOSED"
)

// CaseRow is a stored investigation case.
type CaseRow struct {
	ID           string
	CaseNumber   string
	Title        string
	Description  string
	Investigator string
	Status       string
	CreatedAt    time.Time
}

// StatusBadge maps a case status to the badge style name shown in lists.
func StatusBadge(status string) string {
	switch status {
	case CaseOpen:
		return "primary"
	case CaseInProgress:
		return "warning"
	case CaseClosed:
		return "success"
	}
	return "secondary"
}

// EvidenceRow is a stored evidence archive and its pipeline state.
// Paths other than ExtractedDir are relative to the media root.
type EvidenceRow struct {
	ID              string
	CaseID          string
	OriginalName    string
	StoredPath      string
	SizeBytes       int64
	SHA256          string
	SourceSystem    string
	AcquisitionTool string
	Notes           string
	ExtractedDir    string
	MFTCSVPath      string
	AmcacheCSVPath  string
	SecurityCSVPath string
	ParseStatus     string
	ParseMessage    string
	Summary         Summary
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
