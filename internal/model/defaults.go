package model

import (
	"math"
	"time"
)

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultPageSize       = 50
	MaxPageSize           = 500
	MaxPage               = math.MaxInt / MaxPageSize
	DefaultRequestTimeout = 60 * time.Second
	DefaultServerURL      = "http://127.0.0.1:8000"

	// LowDiskFraction is the free/total ratio under which preflight warns.
	LowDiskFraction = 0.10
)

// Evidence parse statuses.
const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

// Column is one display column of a dataset table.
// SortKey is empty for columns the backend cannot sort on.
type Column struct {
	Title   string
	Field   string
	SortKey string
	Width   int
}

var datasetColumns = map[Dataset][]Column{
	DatasetMFT: {
		{Title: "Entry", Field: "EntryNumber", SortKey: "EntryNumber", Width: 8},
		{Title: "File Name", Field: "FileName", SortKey: "FileName", Width: 24},
		{Title: "Full Path", Field: "FullPath", SortKey: "FullPath", Width: 40},
		{Title: "Size", Field: "Size", SortKey: "Size", Width: 10},
		{Title: "Created", Field: "Created", SortKey: "Created", Width: 20},
		{Title: "Modified", Field: "Modified", SortKey: "Modified", Width: 20},
	},
	DatasetAmcache: {
		{Title: "App Name", Field: "AppName", SortKey: "AppName", Width: 28},
		{Title: "Version", Field: "Version", SortKey: "Version", Width: 14},
		{Title: "Publisher", Field: "Publisher", SortKey: "Publisher", Width: 22},
		{Title: "Install Date", Field: "InstallDate", SortKey: "InstallDate", Width: 20},
		{Title: "File Path", Field: "FilePath", SortKey: "FilePath", Width: 40},
	},
	DatasetSecurity: {
		{Title: "Timestamp", Field: "Timestamp", SortKey: "Timestamp", Width: 20},
		{Title: "Event ID", Field: "EventID", SortKey: "EventID", Width: 8},
		{Title: "Message", Field: "Message", Width: 48},
		{Title: "User", Field: "User", SortKey: "User", Width: 18},
		{Title: "Source IP", Field: "SourceIP", Width: 15},
		{Title: "Computer", Field: "Computer", SortKey: "Computer", Width: 18},
	},
}

// Columns returns the display columns of a dataset.
func Columns(ds Dataset) []Column {
	return datasetColumns[ds]
}

// SortKeys returns the backend-recognized sort keys of a dataset in column order.
func SortKeys(ds Dataset) []string {
	var keys []string
	for _, c := range datasetColumns[ds] {
		if c.SortKey != "" {
			keys = append(keys, c.SortKey)
		}
	}
	return keys
}

// FilterFields lists the dataset-specific column filters accepted by the backend.
func FilterFields(ds Dataset) []string {
	switch ds {
	case DatasetMFT:
		return []string{"type", "size_bucket"}
	case DatasetAmcache:
		return []string{"publisher"}
	case DatasetSecurity:
		return []string{"event_id", "logon_type"}
	}
	return nil
}

// DefaultSort returns the initial sort key and direction of a dataset.
func DefaultSort(ds Dataset) (string, SortDir) {
	switch ds {
	case DatasetAmcache:
		return "AppName", SortAsc
	case DatasetSecurity:
		return "Timestamp", SortDesc
	}
	return "EntryNumber", SortAsc
}

// MFT size buckets accepted by the size_bucket filter.
const (
	SizeBucketSmall  = "small"  // < 1 MiB
	SizeBucketMedium = "medium" // 1 MiB .. 100 MiB
	SizeBucketLarge  = "large"  // > 100 MiB
)
