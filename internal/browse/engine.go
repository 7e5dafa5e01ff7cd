// Package browse is the multi-dataset query engine: it loads pages of the
// MFT, Amcache and Security datasets, discards stale responses, drives the
// pagers and keeps the aggregate record counter consistent.
package browse

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/kapeview/kapeview/internal/model"
	"github.com/kapeview/kapeview/internal/pager"
	"github.com/kapeview/kapeview/internal/query"
)

// Fetcher is the subset of the backend the engine needs.
type Fetcher interface {
	Page(ctx context.Context, evidenceID string, ds model.Dataset, params url.Values) (*model.PageResult, error)
	Evidence(ctx context.Context, id string) (*model.EvidenceDetail, error)
}

// Sink receives everything the engine wants shown. Calls happen on the
// goroutine that calls Apply.
type Sink interface {
	Rows(ds model.Dataset, rows []model.Record)
	Count(ds model.Dataset, total int64)
	Pager(ds model.Dataset, p pager.Pager)
	Facets(ds model.Dataset, values []string)
	Aggregate(a Aggregate)
	Notice(ds model.Dataset, err error)
}

// Loaded is the completion of one dataset fetch.
type Loaded struct {
	EvidenceID string
	Dataset    model.Dataset
	Seq        uint64
	Result     *model.PageResult
	Err        error
}

// SummaryLoaded is the completion of the evidence summary fetch.
type SummaryLoaded struct {
	EvidenceID string
	Detail     *model.EvidenceDetail
	Err        error
}

// LoadFunc performs a dataset fetch. It blocks on the network and must run
// off the UI loop; its result goes back through Engine.Apply.
type LoadFunc func() Loaded

// SummaryFunc performs the summary fetch; its result goes back through
// Engine.ApplySummary.
type SummaryFunc func() SummaryLoaded

// ErrNoEvidence is reported when a load is requested before an evidence id
// is set.
var ErrNoEvidence = errors.New("browse: no evidence selected")

type dataset struct {
	seq    uint64
	result *model.PageResult
	pager  pager.Pager
	facets []string
	err    error
}

// Engine owns the query state and the last result of every dataset.
// It is not safe for concurrent use: all methods except the returned
// LoadFunc/SummaryFunc closures belong to the UI loop.
type Engine struct {
	fetcher    Fetcher
	sink       Sink
	timeout    time.Duration
	evidenceID string

	state    *query.State
	datasets map[model.Dataset]*dataset
	summary  model.Summary
	pending  []LoadFunc
}

// Options configures an Engine.
type Options struct {
	EvidenceID string
	PageSize   int
	// Timeout bounds each fetch. Zero means model.DefaultRequestTimeout.
	Timeout time.Duration
}

// NewEngine creates an engine with every dataset at its defaults.
func NewEngine(f Fetcher, sink Sink, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = model.DefaultRequestTimeout
	}
	e := &Engine{
		fetcher:    f,
		sink:       sink,
		timeout:    opts.Timeout,
		evidenceID: opts.EvidenceID,
		state:      query.NewState(opts.PageSize),
		datasets:   make(map[model.Dataset]*dataset, len(model.Datasets)),
	}
	for _, ds := range model.Datasets {
		e.datasets[ds] = &dataset{}
	}
	return e
}

// EvidenceID returns the evidence being browsed.
func (e *Engine) EvidenceID() string { return e.evidenceID }

// SetEvidence switches to another evidence. Results, facets and the summary
// are dropped and every in-flight response becomes stale.
func (e *Engine) SetEvidence(id string) {
	e.evidenceID = id
	e.summary = nil
	e.pending = nil
	for _, ds := range model.Datasets {
		st := e.datasets[ds]
		st.seq++
		st.result = nil
		st.pager = pager.Pager{}
		st.facets = nil
		st.err = nil
		e.state.Clear(ds)
	}
}

// Query returns a copy of the dataset's current descriptor.
func (e *Engine) Query(ds model.Dataset) query.Descriptor {
	return e.state.Snapshot(ds)
}

// Result returns the dataset's last applied page, or nil.
func (e *Engine) Result(ds model.Dataset) *model.PageResult {
	return e.datasets[ds].result
}

// Pager returns the dataset's current pager.
func (e *Engine) Pager(ds model.Dataset) pager.Pager {
	return e.datasets[ds].pager
}

// Facets returns the dataset's facet values.
func (e *Engine) Facets(ds model.Dataset) []string {
	return e.datasets[ds].facets
}

// LastError returns the error of the dataset's most recent failed load,
// cleared by the next successful one.
func (e *Engine) LastError(ds model.Dataset) error {
	return e.datasets[ds].err
}

// Load issues a fetch for the dataset's current descriptor. The request is
// stamped with a new sequence number, which makes every earlier in-flight
// request for the dataset stale.
func (e *Engine) Load(ds model.Dataset) LoadFunc {
	st := e.datasets[ds]
	st.seq++
	seq := st.seq
	id := e.evidenceID
	params := query.Encode(e.state.Snapshot(ds))
	fetcher := e.fetcher
	timeout := e.timeout

	return func() Loaded {
		out := Loaded{EvidenceID: id, Dataset: ds, Seq: seq}
		if id == "" {
			out.Err = ErrNoEvidence
			return out
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out.Result, out.Err = fetcher.Page(ctx, id, ds, params)
		return out
	}
}

// LoadSummary fetches the evidence summary.
func (e *Engine) LoadSummary() SummaryFunc {
	id := e.evidenceID
	fetcher := e.fetcher
	timeout := e.timeout

	return func() SummaryLoaded {
		out := SummaryLoaded{EvidenceID: id}
		if id == "" {
			out.Err = ErrNoEvidence
			return out
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out.Detail, out.Err = fetcher.Evidence(ctx, id)
		return out
	}
}

// LoadAll issues the three dataset loads. They are independent and may be
// run concurrently.
func (e *Engine) LoadAll() []LoadFunc {
	out := make([]LoadFunc, 0, len(model.Datasets))
	for _, ds := range model.Datasets {
		out = append(out, e.Load(ds))
	}
	return out
}

// Apply stores a completed fetch and drives the sink. It returns false when
// the response was discarded as stale or reported an error.
func (e *Engine) Apply(l Loaded) bool {
	st, ok := e.datasets[l.Dataset]
	if !ok {
		return false
	}
	if l.Seq != st.seq || l.EvidenceID != e.evidenceID {
		return false
	}
	if l.Err == nil && l.Result == nil {
		l.Err = errors.New("browse: empty response")
	}
	if l.Err != nil {
		st.err = l.Err
		log.Printf("browse: load %s page=%d failed: %v", l.Dataset, e.state.Snapshot(l.Dataset).Page, l.Err)
		e.sink.Notice(l.Dataset, l.Err)
		return false
	}

	ds := l.Dataset
	res := l.Result
	st.result = res
	st.err = nil

	desc := e.state.Snapshot(ds)
	pages := pager.TotalPages(res.Total, desc.PageSize)
	clamped := e.state.ClampPage(ds, pages)
	desc = e.state.Snapshot(ds)

	e.sink.Rows(ds, res.Rows)
	e.sink.Count(ds, res.Total)
	st.pager = pager.New(desc.Page, desc.PageSize, res.Total, func(p int) {
		e.setPage(ds, p)
	})
	e.sink.Pager(ds, st.pager)

	if ds == model.DatasetAmcache && len(st.facets) == 0 && len(res.Publishers) > 0 {
		st.facets = append([]string(nil), res.Publishers...)
		e.sink.Facets(ds, st.facets)
	}

	e.recompute()

	if clamped {
		e.pending = append(e.pending, e.Load(ds))
	}
	return true
}

// ApplySummary stores the evidence summary. Its counts take precedence over
// the loaded totals in the aggregate. Failures are logged and ignored.
func (e *Engine) ApplySummary(s SummaryLoaded) bool {
	if s.EvidenceID != e.evidenceID {
		return false
	}
	if s.Err != nil {
		log.Printf("browse: summary for %s failed: %v", s.EvidenceID, s.Err)
		return false
	}
	if s.Detail == nil || s.Detail.Summary == nil {
		return false
	}
	e.summary = s.Detail.Summary
	e.recompute()
	return true
}

// Aggregate returns the current cross-dataset counts.
func (e *Engine) Aggregate() Aggregate {
	var totals [3]int64
	var fromSummary [3]bool
	for i, ds := range model.Datasets {
		if r := e.datasets[ds].result; r != nil {
			totals[i] = r.Total
		}
		if e.summary != nil {
			if n, ok := e.summary.Count(ds); ok {
				totals[i] = n
				fromSummary[i] = true
			}
		}
	}
	return newAggregate(totals, fromSummary)
}

func (e *Engine) recompute() {
	e.sink.Aggregate(e.Aggregate())
}

// SetFilter changes a filter and queues a reload from page 1.
func (e *Engine) SetFilter(ds model.Dataset, field, value string) {
	if e.state.Snapshot(ds).Filter(field) == value {
		return
	}
	e.state.SetFilter(ds, field, value)
	e.pending = append(e.pending, e.Load(ds))
}

// SortByColumn sorts by a display column and queues a reload. Columns with
// no sort key do nothing.
func (e *Engine) SortByColumn(ds model.Dataset, col int) bool {
	if !e.state.SortByColumn(ds, col) {
		return false
	}
	e.pending = append(e.pending, e.Load(ds))
	return true
}

// SetSort sorts by key and queues a reload.
func (e *Engine) SetSort(ds model.Dataset, key string) bool {
	if !e.state.SetSort(ds, key) {
		return false
	}
	e.pending = append(e.pending, e.Load(ds))
	return true
}

// SetPage moves to page p and queues a reload. Pages outside the dataset's
// pager range are rejected.
func (e *Engine) SetPage(ds model.Dataset, p int) bool {
	return e.datasets[ds].pager.Select(p)
}

func (e *Engine) setPage(ds model.Dataset, p int) {
	if !e.state.SetPage(ds, p, e.datasets[ds].pager.TotalPages) {
		return
	}
	e.pending = append(e.pending, e.Load(ds))
}

// Clear restores the dataset's default query and queues a reload.
func (e *Engine) Clear(ds model.Dataset) {
	e.state.Clear(ds)
	e.pending = append(e.pending, e.Load(ds))
}

// Reload queues a fetch of the dataset's current page.
func (e *Engine) Reload(ds model.Dataset) {
	e.pending = append(e.pending, e.Load(ds))
}

// TakePending returns and clears the loads queued by mutations and pager
// callbacks since the last call.
func (e *Engine) TakePending() []LoadFunc {
	out := e.pending
	e.pending = nil
	return out
}
