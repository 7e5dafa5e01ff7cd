package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kapeview/kapeview/internal/browse"
	"github.com/kapeview/kapeview/internal/export"
	"github.com/kapeview/kapeview/internal/model"
	"github.com/kapeview/kapeview/internal/pager"
	"github.com/kapeview/kapeview/internal/query"
)

type pageLoadedMsg struct{ browse.Loaded }

type summaryLoadedMsg struct{ browse.SummaryLoaded }

type exportedMsg struct {
	path string
	rows int
	err  error
}

// datasetView is what the table of one dataset currently shows.
type datasetView struct {
	table  table.Model
	rows   []model.Record
	total  int64
	pager  pager.Pager
	facets []string
	loaded bool
	column int
}

// BrowseOptions configures a BrowsePage.
type BrowseOptions struct {
	EvidenceID string
	PageSize   int
	Timeout    time.Duration
	ExportDir  string
}

// BrowsePage pages through the MFT, Amcache and Security datasets of one
// evidence. It is the presentation sink of a browse.Engine: the engine
// decides what to load and which responses count, the page only renders.
type BrowsePage struct {
	engine    *browse.Engine
	keys      KeyMap
	status    *statusLine
	exportDir string

	active   int
	views    map[model.Dataset]*datasetView
	agg      browse.Aggregate
	inflight int

	search         textinput.Model
	searching      bool
	evidenceInput  textinput.Model
	choosingTarget bool
	modals         modalStack

	width  int
	height int
}

var (
	_ Page        = (*BrowsePage)(nil)
	_ browse.Sink = (*BrowsePage)(nil)
)

// NewBrowsePage creates the page and its engine.
func NewBrowsePage(fetcher browse.Fetcher, opts BrowseOptions, keys KeyMap, status *statusLine) *BrowsePage {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search"
	search.CharLimit = 200

	evidence := textinput.New()
	evidence.Prompt = "evidence id: "
	evidence.CharLimit = 64

	p := &BrowsePage{
		keys:          keys,
		status:        status,
		exportDir:     opts.ExportDir,
		views:         make(map[model.Dataset]*datasetView, len(model.Datasets)),
		search:        search,
		evidenceInput: evidence,
	}
	for _, ds := range model.Datasets {
		t := table.New(
			table.WithColumns(datasetColumns(ds, query.Descriptor{}, 0, 0)),
			table.WithFocused(true),
			table.WithHeight(10),
		)
		t.SetStyles(tableStyles())
		p.views[ds] = &datasetView{table: t}
	}
	p.engine = browse.NewEngine(fetcher, p, browse.Options{
		EvidenceID: opts.EvidenceID,
		PageSize:   opts.PageSize,
		Timeout:    opts.Timeout,
	})
	return p
}

// Engine returns the page's query engine.
func (p *BrowsePage) Engine() *browse.Engine { return p.engine }

// Dataset returns the dataset on screen.
func (p *BrowsePage) Dataset() model.Dataset { return model.Datasets[p.active] }

func (p *BrowsePage) ID() string    { return PageBrowse }
func (p *BrowsePage) Title() string { return "Browse" }

func (p *BrowsePage) Init() tea.Cmd {
	if p.engine.EvidenceID() == "" {
		return nil
	}
	return p.loadAll()
}

// Open switches to the evidence id passed as params.
func (p *BrowsePage) Open(params interface{}) tea.Cmd {
	id, ok := params.(string)
	if !ok || strings.TrimSpace(id) == "" || id == p.engine.EvidenceID() {
		return nil
	}
	return p.setEvidence(id)
}

// Loading reports whether dataset or summary fetches are in flight.
func (p *BrowsePage) Loading() bool { return p.inflight > 0 }

// Capturing reports whether a text input or modal holds the keyboard.
func (p *BrowsePage) Capturing() bool {
	return p.searching || p.choosingTarget || p.modals.Top() != nil
}

func (p *BrowsePage) setEvidence(id string) tea.Cmd {
	p.engine.SetEvidence(strings.TrimSpace(id))
	for _, ds := range model.Datasets {
		v := p.views[ds]
		v.rows, v.total, v.pager, v.facets, v.loaded = nil, 0, pager.Pager{}, nil, false
		v.table.SetRows(nil)
		p.setColumns(ds)
	}
	p.agg = p.engine.Aggregate()
	p.status.Notify("Evidence %s", p.engine.EvidenceID())
	return p.loadAll()
}

// loadAll issues the three dataset loads and the summary fetch together;
// they complete independently.
func (p *BrowsePage) loadAll() tea.Cmd {
	loads := p.engine.LoadAll()
	cmds := make([]tea.Cmd, 0, len(loads)+1)
	for _, l := range loads {
		cmds = append(cmds, p.loadCmd(l))
	}
	summary := p.engine.LoadSummary()
	p.inflight++
	cmds = append(cmds, func() tea.Msg { return summaryLoadedMsg{summary()} })
	return tea.Batch(cmds...)
}

func (p *BrowsePage) loadCmd(l browse.LoadFunc) tea.Cmd {
	p.inflight++
	return func() tea.Msg { return pageLoadedMsg{l()} }
}

// flush turns the loads queued by engine mutations into commands.
func (p *BrowsePage) flush() tea.Cmd {
	pending := p.engine.TakePending()
	if len(pending) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(pending))
	for _, l := range pending {
		cmds = append(cmds, p.loadCmd(l))
	}
	return tea.Batch(cmds...)
}

// Rows implements browse.Sink.
func (p *BrowsePage) Rows(ds model.Dataset, rows []model.Record) {
	v := p.views[ds]
	v.rows = rows
	v.loaded = true
	p.setColumns(ds)
	v.table.SetRows(tableRows(ds, rows))
	if v.table.Cursor() >= len(rows) {
		v.table.SetCursor(0)
	}
}

// Count implements browse.Sink.
func (p *BrowsePage) Count(ds model.Dataset, total int64) { p.views[ds].total = total }

// Pager implements browse.Sink.
func (p *BrowsePage) Pager(ds model.Dataset, pg pager.Pager) { p.views[ds].pager = pg }

// Facets implements browse.Sink.
func (p *BrowsePage) Facets(ds model.Dataset, values []string) { p.views[ds].facets = values }

// Aggregate implements browse.Sink.
func (p *BrowsePage) Aggregate(a browse.Aggregate) { p.agg = a }

// Notice implements browse.Sink.
func (p *BrowsePage) Notice(ds model.Dataset, err error) {
	p.status.Errorf("%s: %v", ds.Title(), err)
}

func (p *BrowsePage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		for _, ds := range model.Datasets {
			p.setColumns(ds)
		}
		return nil, nil

	case pageLoadedMsg:
		p.inflight = max(p.inflight-1, 0)
		p.engine.Apply(msg.Loaded)
		return p.flush(), nil

	case summaryLoadedMsg:
		p.inflight = max(p.inflight-1, 0)
		p.engine.ApplySummary(msg.SummaryLoaded)
		return nil, nil

	case filtersAppliedMsg:
		for _, c := range msg.Changes {
			p.engine.SetFilter(msg.Dataset, c.Field, c.Value)
		}
		return p.flush(), nil

	case exportedMsg:
		if msg.err != nil {
			p.status.Errorf("export: %v", msg.err)
		} else {
			p.status.Notify("Exported %d rows to %s", msg.rows, msg.path)
		}
		return nil, nil

	case tea.KeyMsg:
		return p.handleKey(msg), nil
	}
	return nil, nil
}

func (p *BrowsePage) handleKey(msg tea.KeyMsg) tea.Cmd {
	if handled, cmd := p.modals.Update(msg); handled {
		return cmd
	}
	if p.searching {
		return p.handleSearchKey(msg)
	}
	if p.choosingTarget {
		return p.handleEvidenceKey(msg)
	}

	ds := p.Dataset()
	v := p.views[ds]
	switch {
	case key.Matches(msg, p.keys.Help):
		p.modals.Push(p.helpModal())
	case key.Matches(msg, p.keys.Evidence):
		p.choosingTarget = true
		p.evidenceInput.SetValue(p.engine.EvidenceID())
		p.evidenceInput.CursorEnd()
		return p.evidenceInput.Focus()
	case p.engine.EvidenceID() == "":
		return nil

	case key.Matches(msg, p.keys.NextDataset):
		p.active = (p.active + 1) % len(model.Datasets)
	case key.Matches(msg, p.keys.PrevDataset):
		p.active = (p.active - 1 + len(model.Datasets)) % len(model.Datasets)
	case key.Matches(msg, p.keys.Up), key.Matches(msg, p.keys.Down):
		var cmd tea.Cmd
		v.table, cmd = v.table.Update(msg)
		return cmd
	case key.Matches(msg, p.keys.Enter):
		if i := v.table.Cursor(); i >= 0 && i < len(v.rows) {
			p.modals.Push(NewRecordModal(ds, v.rows[i]))
		}
	case key.Matches(msg, p.keys.PrevPage):
		v.pager.Prev()
	case key.Matches(msg, p.keys.NextPage):
		v.pager.Next()
	case key.Matches(msg, p.keys.FirstPage):
		v.pager.First()
	case key.Matches(msg, p.keys.LastPage):
		v.pager.Last()
	case key.Matches(msg, p.keys.Search):
		p.searching = true
		p.search.SetValue(p.engine.Query(ds).FreeText)
		p.search.CursorEnd()
		return p.search.Focus()
	case key.Matches(msg, p.keys.Filters):
		p.modals.Push(NewFilterModal(ds, p.engine.Query(ds).Filters, p.engine.Facets(ds), p.keys))
	case key.Matches(msg, p.keys.ClearFilters):
		p.engine.Clear(ds)
	case key.Matches(msg, p.keys.PrevColumn):
		v.column = (v.column - 1 + len(model.Columns(ds))) % len(model.Columns(ds))
		p.setColumns(ds)
	case key.Matches(msg, p.keys.NextColumn):
		v.column = (v.column + 1) % len(model.Columns(ds))
		p.setColumns(ds)
	case key.Matches(msg, p.keys.SortColumn):
		if !p.engine.SortByColumn(ds, v.column) {
			p.status.Notify("%s cannot be sorted", model.Columns(ds)[v.column].Title)
		}
	case key.Matches(msg, p.keys.SortReverse):
		p.engine.SetSort(ds, p.engine.Query(ds).SortKey)
	case key.Matches(msg, p.keys.Refresh):
		p.engine.Reload(ds)
		summary := p.engine.LoadSummary()
		p.inflight++
		return tea.Batch(p.flush(), func() tea.Msg { return summaryLoadedMsg{summary()} })
	case key.Matches(msg, p.keys.Export):
		return p.exportCmd(ds, v.rows)
	}
	return p.flush()
}

func (p *BrowsePage) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, p.keys.Escape):
		p.searching = false
		p.search.Blur()
		return nil
	case msg.Type == tea.KeyEnter:
		p.searching = false
		p.search.Blur()
		p.engine.SetFilter(p.Dataset(), query.FreeTextField, strings.TrimSpace(p.search.Value()))
		return p.flush()
	}
	var cmd tea.Cmd
	p.search, cmd = p.search.Update(msg)
	return cmd
}

func (p *BrowsePage) handleEvidenceKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, p.keys.Escape):
		p.choosingTarget = false
		p.evidenceInput.Blur()
		return nil
	case msg.Type == tea.KeyEnter:
		p.choosingTarget = false
		p.evidenceInput.Blur()
		id := strings.TrimSpace(p.evidenceInput.Value())
		if id == "" || id == p.engine.EvidenceID() {
			return nil
		}
		return p.setEvidence(id)
	}
	var cmd tea.Cmd
	p.evidenceInput, cmd = p.evidenceInput.Update(msg)
	return cmd
}

// exportCmd writes the rows on screen to <export dir>/<ds>_view.csv.
func (p *BrowsePage) exportCmd(ds model.Dataset, rows []model.Record) tea.Cmd {
	if len(rows) == 0 {
		p.status.Notify("Nothing to export")
		return nil
	}
	dir := p.exportDir
	rows = append([]model.Record(nil), rows...)
	return func() tea.Msg {
		path, err := export.WriteFile(dir, ds, rows)
		return exportedMsg{path: path, rows: len(rows), err: err}
	}
}

func (p *BrowsePage) helpModal() Modal {
	k := p.keys
	return NewHelpModal(map[string][]key.Binding{
		"Datasets": {k.NextDataset, k.PrevDataset, k.Up, k.Down, k.Enter, k.Evidence, k.Refresh},
		"Query":    {k.Search, k.Filters, k.ClearFilters, k.PrevColumn, k.NextColumn, k.SortColumn, k.SortReverse},
		"Pages":    {k.PrevPage, k.NextPage, k.FirstPage, k.LastPage},
		"Other":    {k.Export, k.Overview, k.Browse, k.Pipeline, k.Quit},
	}, []string{"Datasets", "Query", "Pages", "Other"})
}

func (p *BrowsePage) View(width, height int) string {
	if top := p.modals.Top(); top != nil {
		return top.View(width, height)
	}
	if p.engine.EvidenceID() == "" {
		msg := dimStyle.Render("No evidence selected. Press e to enter an evidence id.")
		if p.choosingTarget {
			msg = p.evidenceInput.View()
		}
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	ds := p.Dataset()
	v := p.views[ds]
	desc := p.engine.Query(ds)

	header := p.renderTabs(width)
	queryLine := renderQueryLine(ds, desc, width)
	pagerLine := renderPager(v, width)

	var input string
	switch {
	case p.searching:
		input = p.search.View()
	case p.choosingTarget:
		input = p.evidenceInput.View()
	}

	used := lipgloss.Height(header) + lipgloss.Height(queryLine) + lipgloss.Height(pagerLine) + 2
	if input != "" {
		used++
	}
	tableHeight := max(height-used-2, 3)
	v.table.SetHeight(tableHeight)

	var body string
	switch {
	case !v.loaded && p.inflight > 0:
		body = renderLoadingPlaceholder(max(width-4, 10), tableHeight+1, "Loading "+ds.Title()+"...")
	case !v.loaded:
		body = lipgloss.Place(max(width-4, 10), tableHeight+1, lipgloss.Center, lipgloss.Center,
			dimStyle.Render("No data. Press r to reload."))
	case len(v.rows) == 0:
		body = lipgloss.Place(max(width-4, 10), tableHeight+1, lipgloss.Center, lipgloss.Center,
			dimStyle.Render("No matching records"))
	default:
		body = v.table.View()
	}
	box := activeSectionStyle.Width(max(width-2, 10)).Render(body)

	parts := []string{header, queryLine, box, pagerLine}
	if input != "" {
		parts = append(parts, input)
	}
	return lipgloss.NewStyle().MaxHeight(height).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (p *BrowsePage) renderTabs(width int) string {
	var tabs []string
	for i, ds := range model.Datasets {
		label := fmt.Sprintf("%s %s", ds.Title(), formatCount(p.agg.Totals[ds]))
		if p.agg.FromSummary[ds] {
			label += "*"
		}
		if i == p.active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	left := strings.Join(tabs, " ")

	right := fmt.Sprintf("evidence %s  records %s", p.engine.EvidenceID(), formatCount(p.agg.Total))
	if p.inflight > 0 {
		right = spinnerFrame() + " " + right
	}
	right = dimStyle.Render(right)
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func renderQueryLine(ds model.Dataset, d query.Descriptor, width int) string {
	parts := []string{}
	if d.FreeText != "" {
		parts = append(parts, "search: "+d.FreeText)
	}
	fields := make([]string, 0, len(d.Filters))
	for f, val := range d.Filters {
		if val != "" {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	for _, f := range fields {
		parts = append(parts, filterLabel(f)+"="+d.Filters[f])
	}
	if d.SortKey != "" {
		parts = append(parts, "sort: "+d.SortKey+" "+sortArrow(d.SortDir))
	}
	if len(parts) == 0 {
		parts = append(parts, "no filters")
	}
	return truncateWidth(dimStyle.Render(strings.Join(parts, " | ")), width)
}

func renderPager(v *datasetView, width int) string {
	pg := v.pager
	if pg.TotalPages == 0 {
		return ""
	}
	var b strings.Builder
	if pg.PrevDisabled {
		b.WriteString(dimStyle.Render("‹ prev"))
	} else {
		b.WriteString("‹ prev")
	}
	b.WriteString("  ")
	if len(pg.Links) > 0 && pg.Links[0] > 1 {
		b.WriteString(dimStyle.Render("… "))
	}
	for _, n := range pg.Links {
		if n == pg.Page {
			b.WriteString(activeTabStyle.Render(fmt.Sprintf("%d", n)))
		} else {
			fmt.Fprintf(&b, " %d ", n)
		}
	}
	if len(pg.Links) > 0 && pg.Links[len(pg.Links)-1] < pg.TotalPages {
		b.WriteString(dimStyle.Render(" …"))
	}
	b.WriteString("  ")
	if pg.NextDisabled {
		b.WriteString(dimStyle.Render("next ›"))
	} else {
		b.WriteString("next ›")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("   page %d of %d, %s rows", pg.Page, pg.TotalPages, formatCount(v.total))))
	return truncateWidth(b.String(), width)
}

func sortArrow(d model.SortDir) string {
	if d == model.SortDesc {
		return "▼"
	}
	return "▲"
}

func (p *BrowsePage) setColumns(ds model.Dataset) {
	v := p.views[ds]
	v.table.SetColumns(datasetColumns(ds, p.engine.Query(ds), v.column, p.width))
}

// datasetColumns sizes the dataset's columns to width, giving the slack to
// the widest column. The sorted column gets an arrow and the column under
// the cursor is bracketed.
func datasetColumns(ds model.Dataset, d query.Descriptor, cursor, width int) []table.Column {
	cols := model.Columns(ds)
	out := make([]table.Column, len(cols))
	sum, widest := 0, 0
	for i, c := range cols {
		title := c.Title
		if c.SortKey != "" && c.SortKey == d.SortKey {
			title += " " + sortArrow(d.SortDir)
		}
		if i == cursor {
			title = "[" + title + "]"
		}
		out[i] = table.Column{Title: title, Width: c.Width}
		sum += c.Width + 2
		if c.Width > cols[widest].Width {
			widest = i
		}
	}
	if slack := width - 6 - sum; width > 0 && slack > 0 {
		out[widest].Width += slack
	}
	return out
}

func tableRows(ds model.Dataset, rows []model.Record) []table.Row {
	cols := model.Columns(ds)
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		row := make(table.Row, len(cols))
		for j, c := range cols {
			row[j] = strings.ReplaceAll(r.Text(c.Field), "\n", " ")
		}
		out[i] = row
	}
	return out
}

// formatCount renders n with thousands separators.
func formatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
