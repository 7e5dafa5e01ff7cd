package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kapeview/kapeview/internal/browse"
	"github.com/kapeview/kapeview/internal/model"
)

// OverviewSource is the backend subset the overview page reads.
type OverviewSource interface {
	Overview(ctx context.Context) (*model.Overview, error)
	Preflight(ctx context.Context) (*model.Preflight, error)
}

// AggregateSource exposes the record counts of the evidence being browsed.
type AggregateSource interface {
	EvidenceID() string
	Aggregate() browse.Aggregate
}

type overviewLoadedMsg struct {
	overview *model.Overview
	err      error
}

type preflightLoadedMsg struct {
	preflight *model.Preflight
	err       error
}

// OverviewPage shows the dashboard totals, recent cases, the backend
// preflight checks and the record counts of the open evidence.
type OverviewPage struct {
	source  OverviewSource
	records AggregateSource
	timeout time.Duration
	keys    KeyMap
	status  *statusLine

	overview  *model.Overview
	preflight *model.Preflight
	pending   int
	cases     table.Model
	modals    modalStack

	width  int
	height int
}

var _ Page = (*OverviewPage)(nil)

// NewOverviewPage creates the overview page. records may be nil.
func NewOverviewPage(source OverviewSource, records AggregateSource, timeout time.Duration, keys KeyMap, status *statusLine) *OverviewPage {
	if timeout <= 0 {
		timeout = model.DefaultRequestTimeout
	}
	cases := table.New(
		table.WithColumns(caseColumns(80)),
		table.WithFocused(true),
		table.WithHeight(5),
	)
	cases.SetStyles(tableStyles())
	return &OverviewPage{
		source:  source,
		records: records,
		timeout: timeout,
		keys:    keys,
		status:  status,
		cases:   cases,
	}
}

func (p *OverviewPage) ID() string    { return PageOverview }
func (p *OverviewPage) Title() string { return "Overview" }

func (p *OverviewPage) Init() tea.Cmd { return p.refresh() }

// Loading reports whether overview or preflight requests are in flight.
func (p *OverviewPage) Loading() bool { return p.pending > 0 }

// Capturing reports whether a modal holds the keyboard.
func (p *OverviewPage) Capturing() bool { return p.modals.Top() != nil }

func (p *OverviewPage) refresh() tea.Cmd {
	p.pending += 2
	src, timeout := p.source, p.timeout
	return tea.Batch(
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			ov, err := src.Overview(ctx)
			return overviewLoadedMsg{overview: ov, err: err}
		},
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			pf, err := src.Preflight(ctx)
			return preflightLoadedMsg{preflight: pf, err: err}
		},
	)
}

func (p *OverviewPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.cases.SetColumns(caseColumns(p.width - 4))
		return nil, nil

	case overviewLoadedMsg:
		p.pending = max(p.pending-1, 0)
		if msg.err != nil {
			p.status.Errorf("overview: %v", msg.err)
			return nil, nil
		}
		p.overview = msg.overview
		p.cases.SetRows(caseRows(msg.overview.RecentCases))
		return nil, nil

	case preflightLoadedMsg:
		p.pending = max(p.pending-1, 0)
		if msg.err != nil {
			p.status.Errorf("preflight: %v", msg.err)
			return nil, nil
		}
		p.preflight = msg.preflight
		if msg.preflight.Checks.DiskLow() {
			p.status.Notify("Low disk space on the backend media root")
		}
		return nil, nil

	case tea.KeyMsg:
		if handled, cmd := p.modals.Update(msg); handled {
			return cmd, nil
		}
		switch {
		case key.Matches(msg, p.keys.Refresh):
			return p.refresh(), nil
		case key.Matches(msg, p.keys.Help):
			p.modals.Push(NewHelpModal(map[string][]key.Binding{
				"Global":   {p.keys.Overview, p.keys.Browse, p.keys.Pipeline, p.keys.Quit, p.keys.ForceQuit},
				"Overview": {p.keys.Refresh, p.keys.Up, p.keys.Down, p.keys.Enter},
			}, []string{"Overview", "Global"}))
			return nil, nil
		case key.Matches(msg, p.keys.Enter):
			if c := p.selectedCase(); c != nil {
				p.modals.Push(NewTextModal("case", c.CaseNumber, formatCase(*c)))
			}
			return nil, nil
		}
		var cmd tea.Cmd
		p.cases, cmd = p.cases.Update(msg)
		return cmd, nil
	}
	return nil, nil
}

func (p *OverviewPage) selectedCase() *model.CaseSummary {
	if p.overview == nil {
		return nil
	}
	i := p.cases.Cursor()
	if i < 0 || i >= len(p.overview.RecentCases) {
		return nil
	}
	return &p.overview.RecentCases[i]
}

func (p *OverviewPage) View(width, height int) string {
	if top := p.modals.Top(); top != nil {
		return top.View(width, height)
	}
	if p.overview == nil && p.preflight == nil {
		if p.pending > 0 {
			return renderLoadingPlaceholder(width, height, "Loading overview...")
		}
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
			dimStyle.Render("Backend unreachable, press r to retry"))
	}

	inner := max(width-4, 20)
	chartHeight := 6
	if height < 30 {
		chartHeight = 4
	}

	var sections []string
	sections = append(sections, sectionStyle.Width(inner).Render(
		titleStyle.Render("Totals")+"\n"+renderBarChart(p.totalBars(), inner-2, chartHeight)))

	if bars := p.recordBars(); len(bars) > 0 {
		title := titleStyle.Render("Records") + dimStyle.Render("  evidence "+p.records.EvidenceID())
		sections = append(sections, sectionStyle.Width(inner).Render(
			title+"\n"+renderBarChart(bars, inner-2, chartHeight)))
	}

	sections = append(sections, sectionStyle.Width(inner).Render(p.renderPreflight()))

	used := 0
	for _, s := range sections {
		used += lipgloss.Height(s)
	}
	casesHeight := max(height-used-3, 3)
	p.cases.SetHeight(casesHeight)
	casesView := titleStyle.Render("Recent cases") + "\n"
	if p.overview == nil || len(p.overview.RecentCases) == 0 {
		casesView += dimStyle.Render("No cases yet")
	} else {
		casesView += p.cases.View()
	}
	sections = append(sections, activeSectionStyle.Width(inner).Render(casesView))

	return lipgloss.NewStyle().MaxHeight(height).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (p *OverviewPage) totalBars() []chartBar {
	var t model.OverviewTotals
	if p.overview != nil {
		t = p.overview.Totals
	}
	return []chartBar{
		{label: "Cases", value: t.Cases, color: ColorBlue},
		{label: "Evidence", value: t.Evidence, color: ColorGreen},
		{label: "Active", value: t.ActiveCases, color: ColorOrange},
		{label: "Completed", value: t.CompletedCases, color: ColorGray},
	}
}

func (p *OverviewPage) recordBars() []chartBar {
	if p.records == nil || p.records.EvidenceID() == "" {
		return nil
	}
	agg := p.records.Aggregate()
	colors := []lipgloss.Color{ColorBlue, ColorGreen, ColorYellow}
	bars := make([]chartBar, 0, len(model.Datasets)+1)
	for i, ds := range model.Datasets {
		bars = append(bars, chartBar{label: ds.Title(), value: agg.Totals[ds], color: colors[i]})
	}
	return append(bars, chartBar{label: "Total", value: agg.Total, color: ColorWhite})
}

func (p *OverviewPage) renderPreflight() string {
	if p.preflight == nil {
		return titleStyle.Render("Preflight") + "\n" + dimStyle.Render("not available")
	}
	c := p.preflight.Checks
	head := titleStyle.Render("Preflight") + " "
	if p.preflight.OK {
		head += okStyle.Render("ready")
	} else {
		head += errStyle.Render("not ready")
	}
	items := []string{
		checkMark(c.DockerCLI) + " docker",
		checkMark(c.ParserImageOK) + " parser image",
		checkMark(c.MediaRootWritable) + " media root",
		checkMark(c.ExtractedWritable) + " extracted",
		checkMark(c.ParsedWritable) + " parsed",
	}
	disk := fmt.Sprintf("disk %s free of %s", formatBytes(c.DiskFreeBytes), formatBytes(c.DiskTotalBytes))
	if c.DiskLow() {
		disk = warnStyle.Render("! " + disk)
	} else {
		disk = dimStyle.Render(disk)
	}
	return head + "\n" + strings.Join(items, "   ") + "\n" + disk
}

func caseColumns(width int) []table.Column {
	fixed := 20 + 10 + 12 + 18
	return []table.Column{
		{Title: "Case", Width: 20},
		{Title: "Title", Width: max(width-fixed-10, 10)},
		{Title: "Evidence", Width: 10},
		{Title: "Status", Width: 12},
		{Title: "Created", Width: 18},
	}
}

func caseRows(cases []model.CaseSummary) []table.Row {
	rows := make([]table.Row, 0, len(cases))
	for _, c := range cases {
		rows = append(rows, table.Row{
			c.CaseNumber,
			c.Title,
			fmt.Sprintf("%d", c.EvidenceCount),
			c.Status,
			shortTime(c.CreatedAt),
		})
	}
	return rows
}

func formatCase(c model.CaseSummary) string {
	return fmt.Sprintf("Number        %s\nTitle         %s\nStatus        %s\nInvestigator  %s\nEvidence      %d\nCreated       %s\nID            %s\n",
		c.CaseNumber, c.Title, c.Status, c.Investigator, c.EvidenceCount, c.CreatedAt, c.ID)
}

// shortTime trims an RFC 3339 timestamp to minutes.
func shortTime(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return s
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorWhite).
		Background(ColorNavy).
		Bold(false)
	return s
}
