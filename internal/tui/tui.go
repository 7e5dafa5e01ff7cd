// Package tui is the terminal client: an overview dashboard, the dataset
// browser and the ingestion pipeline, as Bubble Tea pages.
package tui

import (
	"time"

	"github.com/kapeview/kapeview/internal/model"
	"github.com/kapeview/kapeview/internal/pipeline"
)

// Options configures the client.
type Options struct {
	EvidenceID string
	PageSize   int
	ExportDir  string
	Timeout    time.Duration
	// StageTimeout bounds each upload, extract and parse round trip.
	StageTimeout time.Duration
	// ResolveURL turns backend artifact locators into absolute URLs.
	ResolveURL func(string) string
}

// New wires the pages over backend. The browse page opens first when an
// evidence id is given.
func New(backend model.Backend, opts Options) *App {
	keys := DefaultKeyMap()
	status := newStatusLine()

	browsePage := NewBrowsePage(backend, BrowseOptions{
		EvidenceID: opts.EvidenceID,
		PageSize:   opts.PageSize,
		Timeout:    opts.Timeout,
		ExportDir:  opts.ExportDir,
	}, keys, status)
	overview := NewOverviewPage(backend, browsePage.Engine(), opts.Timeout, keys, status)
	ingest := NewPipelinePage(pipeline.New(backend, opts.StageTimeout), opts.ResolveURL, keys, status)

	app := NewApp(keys, status, overview, browsePage, ingest)
	if opts.EvidenceID != "" {
		app.activePage = PageBrowse
	}
	return app
}
