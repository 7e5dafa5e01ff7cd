package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kapeview/kapeview/internal/model"
	"github.com/kapeview/kapeview/internal/pipeline"
)

type stepDoneMsg struct{ pipeline.Result }

type uploadProgressMsg struct {
	sent  int64
	total int64
}

// Form fields of the upload form, in focus order.
const (
	fieldPath = iota
	fieldCase
	fieldUploadedBy
	fieldSourceSystem
	fieldTool
	fieldNotes
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Archive",
	"Case ID",
	"Uploaded by",
	"Source system",
	"Acquired with",
	"Notes",
}

// PipelinePage uploads an evidence archive and drives extraction and
// parsing on the backend through a pipeline.Controller.
type PipelinePage struct {
	ctrl    *pipeline.Controller
	resolve func(string) string
	keys    KeyMap
	status  *statusLine

	fields [fieldCount]textinput.Model
	focus  int

	bar        progress.Model
	sent       int64
	total      int64
	progressCh chan uploadProgressMsg

	modals modalStack
	width  int
	height int
}

var _ Page = (*PipelinePage)(nil)

// NewPipelinePage creates the page. resolve turns artifact locators into
// absolute URLs and may be nil.
func NewPipelinePage(ctrl *pipeline.Controller, resolve func(string) string, keys KeyMap, status *statusLine) *PipelinePage {
	p := &PipelinePage{
		ctrl:    ctrl,
		resolve: resolve,
		keys:    keys,
		status:  status,
		focus:   -1,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	for i := range p.fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 512
		p.fields[i] = ti
	}
	p.fields[fieldPath].Placeholder = "/path/to/triage.zip"
	p.fields[fieldCase].Placeholder = "new case"
	p.fields[fieldTool].Placeholder = "KAPE"
	return p
}

func (p *PipelinePage) ID() string    { return PagePipeline }
func (p *PipelinePage) Title() string { return "Ingest" }

func (p *PipelinePage) Init() tea.Cmd { return nil }

// Loading reports whether a stage is in flight.
func (p *PipelinePage) Loading() bool { return p.ctrl.Stage().InFlight() }

// Capturing reports whether the form or a modal holds the keyboard.
func (p *PipelinePage) Capturing() bool { return p.focus >= 0 || p.modals.Top() != nil }

// Open preselects the archive path passed as params.
func (p *PipelinePage) Open(params interface{}) tea.Cmd {
	if path, ok := params.(string); ok && path != "" {
		p.fields[fieldPath].SetValue(path)
		p.commitForm()
	}
	return nil
}

func (p *PipelinePage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.bar.Width = max(min(msg.Width-20, 80), 10)
		for i := range p.fields {
			p.fields[i].Width = max(min(msg.Width-24, 100), 10)
		}
		return nil, nil

	case uploadProgressMsg:
		p.sent, p.total = msg.sent, msg.total
		if p.ctrl.Stage() == pipeline.StageUploading && p.progressCh != nil {
			return waitProgress(p.progressCh), nil
		}
		return nil, nil

	case stepDoneMsg:
		return p.applyStep(msg.Result), nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return nil, nil
}

func (p *PipelinePage) applyStep(r pipeline.Result) tea.Cmd {
	if r.Stage() == pipeline.StageUploading {
		p.progressCh = nil
	}
	before := p.ctrl.Stage()
	next := p.ctrl.Apply(r)
	if next != nil {
		return runStep(next)
	}
	stage := p.ctrl.Stage()
	if stage == before {
		return nil
	}

	at, reason, failed := p.ctrl.Failure()
	switch {
	case failed && at == r.Stage():
		body := reason
		if job := p.ctrl.Job(); job != nil && strings.TrimSpace(job.LogTail) != "" && at == pipeline.StageParsing {
			body += "\n\nParser log:\n" + job.LogTail
		}
		p.modals.Push(NewAlertModal(p.ctrl.Status(), body))
		p.status.Errorf("%s", p.ctrl.Status())
	case stage == pipeline.StageUploaded:
		p.status.Notify("%s, press a to analyze", p.ctrl.Status())
	case stage == pipeline.StageParsed:
		p.status.Notify("%s, press b to browse", p.ctrl.Status())
	}
	return nil
}

func (p *PipelinePage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	if handled, cmd := p.modals.Update(msg); handled {
		return cmd, nil
	}
	if p.focus >= 0 {
		return p.handleFormKey(msg), nil
	}

	switch {
	case key.Matches(msg, p.keys.Help):
		k := p.keys
		p.modals.Push(NewHelpModal(map[string][]key.Binding{
			"Ingest": {k.EditForm, k.NextField, k.PrevField, k.Upload, k.Analyze, k.LogTail, k.OpenResults},
			"Global": {k.Overview, k.Browse, k.Pipeline, k.Quit, k.ForceQuit},
		}, []string{"Ingest", "Global"}))
	case key.Matches(msg, p.keys.EditForm), key.Matches(msg, p.keys.NextField):
		return p.focusField(0), nil
	case key.Matches(msg, p.keys.Upload):
		return p.startUpload(), nil
	case key.Matches(msg, p.keys.Analyze):
		return p.startAnalyze(), nil
	case key.Matches(msg, p.keys.LogTail):
		if job := p.ctrl.Job(); job != nil && job.LogTail != "" {
			p.modals.Push(NewTextModal("logtail", "Parser log", job.LogTail))
		}
	case key.Matches(msg, p.keys.OpenResults):
		if job := p.ctrl.Job(); job != nil && p.ctrl.Stage() == pipeline.StageParsed {
			return nil, &PageNav{PageID: PageBrowse, Params: job.ID}
		}
	}
	return nil, nil
}

func (p *PipelinePage) handleFormKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, p.keys.Escape), msg.Type == tea.KeyEnter:
		p.fields[p.focus].Blur()
		p.focus = -1
		p.commitForm()
		return nil
	case key.Matches(msg, p.keys.NextField):
		return p.focusField((p.focus + 1) % fieldCount)
	case key.Matches(msg, p.keys.PrevField):
		return p.focusField((p.focus - 1 + fieldCount) % fieldCount)
	}
	var cmd tea.Cmd
	p.fields[p.focus], cmd = p.fields[p.focus].Update(msg)
	return cmd
}

func (p *PipelinePage) focusField(i int) tea.Cmd {
	if p.focus >= 0 {
		p.fields[p.focus].Blur()
	}
	p.focus = i
	return p.fields[i].Focus()
}

// commitForm hands the form to the controller when an archive is set.
func (p *PipelinePage) commitForm() {
	path := expandHome(strings.TrimSpace(p.fields[fieldPath].Value()))
	if path == "" {
		return
	}
	if info, err := os.Stat(path); err != nil {
		p.status.Errorf("archive: %v", err)
		return
	} else if info.IsDir() {
		p.status.Errorf("archive: %s is a directory", path)
		return
	}
	if err := p.ctrl.SelectFile(p.request(path)); err != nil {
		p.status.Errorf("%v", err)
		return
	}
	p.status.Notify("%s", p.ctrl.Status())
}

func (p *PipelinePage) request(path string) model.UploadRequest {
	v := func(i int) string { return strings.TrimSpace(p.fields[i].Value()) }
	return model.UploadRequest{
		Path:            path,
		CaseID:          v(fieldCase),
		UploadedBy:      v(fieldUploadedBy),
		SourceSystem:    v(fieldSourceSystem),
		AcquisitionTool: v(fieldTool),
		Notes:           v(fieldNotes),
	}
}

func (p *PipelinePage) startUpload() tea.Cmd {
	p.commitForm()
	if !p.ctrl.CanUpload() {
		if p.ctrl.File() == "" {
			p.status.Errorf("select an archive first")
		}
		return nil
	}
	ch := make(chan uploadProgressMsg, 16)
	step, err := p.ctrl.Upload(func(sent, total int64) {
		select {
		case ch <- uploadProgressMsg{sent: sent, total: total}:
		default:
		}
	})
	if err != nil {
		p.status.Errorf("%v", err)
		return nil
	}
	p.sent, p.total = 0, 0
	p.progressCh = ch
	p.status.Notify("%s", p.ctrl.Status())
	return tea.Batch(
		func() tea.Msg {
			r := step()
			close(ch)
			return stepDoneMsg{r}
		},
		waitProgress(ch),
	)
}

func (p *PipelinePage) startAnalyze() tea.Cmd {
	if !p.ctrl.CanAnalyze() {
		if p.ctrl.Job() == nil {
			p.status.Errorf("upload an archive first")
		}
		return nil
	}
	step, err := p.ctrl.Analyze()
	if err != nil {
		p.status.Errorf("%v", err)
		return nil
	}
	p.status.Notify("%s", p.ctrl.Status())
	return runStep(step)
}

func runStep(step pipeline.Step) tea.Cmd {
	return func() tea.Msg { return stepDoneMsg{step()} }
}

// waitProgress delivers the next upload progress report. It returns nil
// once the upload finished and the channel is closed.
func waitProgress(ch <-chan uploadProgressMsg) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-ch
		if !ok {
			return nil
		}
		return m
	}
}

// Percent is the bar position: bytes sent while uploading, the stage
// checkpoint otherwise.
func (p *PipelinePage) Percent() float64 {
	stage := p.ctrl.Stage()
	if stage == pipeline.StageUploading {
		if p.total <= 0 {
			return 0
		}
		return min(float64(p.sent)/float64(p.total), 1)
	}
	return float64(stage.Checkpoint()) / 100
}

func (p *PipelinePage) View(width, height int) string {
	if top := p.modals.Top(); top != nil {
		return top.View(width, height)
	}
	inner := max(width-4, 20)

	sections := []string{
		p.renderForm(inner),
		p.renderProgress(inner),
	}
	if job := p.ctrl.Job(); job != nil {
		sections = append(sections, sectionStyle.Width(inner).Render(p.renderJob(job)))
	}
	sections = append(sections, p.renderHints())
	return lipgloss.NewStyle().MaxHeight(height).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (p *PipelinePage) renderForm(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Evidence archive") + "\n")
	for i := range p.fields {
		label := fmt.Sprintf("%-14s", fieldLabels[i])
		if i == p.focus {
			label = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true).Render(label)
		} else {
			label = dimStyle.Render(label)
		}
		b.WriteString(label + " " + p.fields[i].View())
		if i < fieldCount-1 {
			b.WriteString("\n")
		}
	}
	style := sectionStyle
	if p.focus >= 0 {
		style = activeSectionStyle
	}
	return style.Width(width).Render(b.String())
}

func (p *PipelinePage) renderProgress(width int) string {
	stage := p.ctrl.Stage()
	steps := []struct {
		label string
		at    pipeline.Stage
	}{
		{"upload", pipeline.StageUploading},
		{"extract", pipeline.StageExtracting},
		{"parse", pipeline.StageParsing},
	}
	failedAt, _, failed := p.ctrl.Failure()
	var crumbs []string
	for _, s := range steps {
		var style lipgloss.Style
		switch {
		case failed && failedAt == s.at && (stage == pipeline.StageFailed || stage == pipeline.StageReady):
			style = errStyle
		case stage == s.at:
			style = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
		case stage > s.at && stage != pipeline.StageFailed:
			style = okStyle
		default:
			style = dimStyle
		}
		crumbs = append(crumbs, style.Render(s.label))
	}

	line := p.ctrl.Status()
	if stage.InFlight() {
		line = spinnerFrame() + " " + line
	}
	bar := p.bar.ViewAs(p.Percent())
	if stage == pipeline.StageUploading && p.total > 0 {
		bar += dimStyle.Render(fmt.Sprintf("  %s / %s", formatBytes(p.sent), formatBytes(p.total)))
	} else if stage != pipeline.StageIdle && stage != pipeline.StageReady {
		bar += dimStyle.Render(fmt.Sprintf("  ~%d%%", stage.Checkpoint()))
	}
	content := titleStyle.Render("Pipeline") + "  " + strings.Join(crumbs, dimStyle.Render(" › ")) +
		"\n" + line + "\n" + bar
	return sectionStyle.Width(width).Render(content)
}

func (p *PipelinePage) renderJob(job *pipeline.Job) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Evidence "+job.ID) + "\n")
	fmt.Fprintf(&b, "%-10s %s\n", "Case", job.CaseNumber)
	fmt.Fprintf(&b, "%-10s %s (%s)\n", "File", job.OriginalName, formatBytes(job.SizeBytes))
	fmt.Fprintf(&b, "%-10s %s\n", "SHA-256", job.SHA256)

	if len(job.Summary) > 0 {
		var counts []string
		for _, ds := range model.Datasets {
			if n, ok := job.Summary.Count(ds); ok {
				counts = append(counts, fmt.Sprintf("%s %s", ds.Title(), formatCount(n)))
			}
		}
		if len(counts) > 0 {
			fmt.Fprintf(&b, "%-10s %s\n", "Rows", strings.Join(counts, ", "))
		}
	}

	if len(job.Artifacts) > 0 {
		b.WriteString("\n" + titleStyle.Render("Artifacts") + "\n")
		names := make([]string, 0, len(job.Artifacts))
		for name := range job.Artifacts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			loc := job.Artifacts[name]
			if p.resolve != nil {
				loc = p.resolve(loc)
			}
			fmt.Fprintf(&b, "  %-16s %s\n", name, loc)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *PipelinePage) renderHints() string {
	hint := func(b key.Binding, enabled bool) string {
		h := b.Help()
		text := h.Key + " " + h.Desc
		if !enabled {
			return dimStyle.Faint(true).Render(text)
		}
		return text
	}
	job := p.ctrl.Job()
	parts := []string{
		hint(p.keys.EditForm, p.focus < 0),
		hint(p.keys.Upload, p.ctrl.File() != "" && !p.ctrl.Stage().InFlight()),
		hint(p.keys.Analyze, p.ctrl.CanAnalyze()),
		hint(p.keys.LogTail, job != nil && job.LogTail != ""),
		hint(p.keys.OpenResults, job != nil && p.ctrl.Stage() == pipeline.StageParsed),
	}
	return " " + strings.Join(parts, dimStyle.Render(" | "))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
