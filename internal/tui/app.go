package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// App is the top-level Bubble Tea model that routes between pages.
// Key presses go to the active page; every other message is delivered to
// all pages so results of requests issued from a page that is no longer
// visible still land.
type App struct {
	pages      map[string]Page
	order      []string
	activePage string
	width      int
	height     int

	keys     KeyMap
	status   *statusLine
	ticking  bool
	quitting bool
}

// NewApp creates a new App with the given pages. The first page is the
// default. status is shared with the pages and rendered under them.
func NewApp(keys KeyMap, status *statusLine, pages ...Page) *App {
	pageMap := make(map[string]Page, len(pages))
	order := make([]string, 0, len(pages))
	for _, p := range pages {
		pageMap[p.ID()] = p
		order = append(order, p.ID())
	}
	a := &App{
		pages:  pageMap,
		order:  order,
		keys:   keys,
		status: status,
	}
	if len(order) > 0 {
		a.activePage = order[0]
	}
	return a
}

// ActivePage returns the id of the visible page.
func (a *App) ActivePage() string { return a.activePage }

func (a *App) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, id := range a.order {
		cmds = append(cmds, a.pages[id].Init())
	}
	return tea.Batch(append(cmds, a.armSpinner())...)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case SpinnerTickMsg:
		a.ticking = false
		return a, a.armSpinner()

	case tea.KeyMsg:
		if key.Matches(msg, a.keys.ForceQuit) {
			a.quitting = true
			return a, tea.Quit
		}
		if !a.capturing() {
			switch {
			case key.Matches(msg, a.keys.Quit):
				a.quitting = true
				return a, tea.Quit
			case key.Matches(msg, a.keys.Overview):
				return a, a.navigate(&PageNav{PageID: PageOverview})
			case key.Matches(msg, a.keys.Browse):
				return a, a.navigate(&PageNav{PageID: PageBrowse})
			case key.Matches(msg, a.keys.Pipeline):
				return a, a.navigate(&PageNav{PageID: PagePipeline})
			}
		}
		p, ok := a.pages[a.activePage]
		if !ok {
			return a, nil
		}
		cmd, nav := p.Update(msg)
		return a, tea.Batch(cmd, a.navigate(nav), a.armSpinner())
	}

	cmds := make([]tea.Cmd, 0, len(a.order)+1)
	var nav *PageNav
	for _, id := range a.order {
		cmd, n := a.pages[id].Update(pageMsg(msg, a))
		cmds = append(cmds, cmd)
		if n != nil && id == a.activePage {
			nav = n
		}
	}
	cmds = append(cmds, a.navigate(nav), a.armSpinner())
	return a, tea.Batch(cmds...)
}

// pageMsg shrinks window sizes by the rows the app chrome takes.
func pageMsg(msg tea.Msg, a *App) tea.Msg {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		wsm.Height = max(wsm.Height-1, 0)
		return wsm
	}
	return msg
}

func (a *App) navigate(nav *PageNav) tea.Cmd {
	if nav == nil {
		return nil
	}
	p, exists := a.pages[nav.PageID]
	if !exists {
		return nil
	}
	var cmds []tea.Cmd
	if r, ok := p.(ParamReceiver); ok && nav.Params != nil {
		cmds = append(cmds, r.Open(nav.Params))
	}
	if nav.PageID != a.activePage {
		a.activePage = nav.PageID
	}
	cmds = append(cmds, a.armSpinner())
	return tea.Batch(cmds...)
}

func (a *App) capturing() bool {
	if c, ok := a.pages[a.activePage].(Capturer); ok {
		return c.Capturing()
	}
	return false
}

// armSpinner schedules a single spinner tick while any page is loading.
func (a *App) armSpinner() tea.Cmd {
	if a.ticking {
		return nil
	}
	for _, p := range a.pages {
		if l, ok := p.(Loader); ok && l.Loading() {
			a.ticking = true
			return spinnerTick()
		}
	}
	return nil
}

func (a *App) View() string {
	if a.quitting {
		return ""
	}
	p, ok := a.pages[a.activePage]
	if !ok {
		return "No active page"
	}
	body := p.View(a.width, max(a.height-1, 0))
	return lipgloss.JoinVertical(lipgloss.Left, body, a.renderStatusBar())
}

// renderStatusBar renders page tabs on the left and the current error or
// notice on the right.
func (a *App) renderStatusBar() string {
	var tabs []string
	for i, id := range a.order {
		label := string(rune('1'+i)) + " " + a.pages[id].Title()
		if id == a.activePage {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	left := strings.Join(tabs, "")

	var right string
	if msg := a.status.Error(); msg != "" {
		right = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(lipgloss.Color("#FF6666")).
			Render(msg)
	} else if n := a.status.Notice(); n != "" {
		right = statusBarStyle.Render(n)
	}
	right += statusBarStyle.Render(" ? help ")

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		avail := max(a.width-lipgloss.Width(left)-1, 0)
		right = truncateWidth(right, avail)
		gap = max(a.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	}
	return left + statusBarStyle.Render(strings.Repeat(" ", gap)) + right
}

// truncateWidth cuts s to at most w cells.
func truncateWidth(s string, w int) string {
	if w <= 0 {
		return ""
	}
	return lipgloss.NewStyle().MaxWidth(w).Render(s)
}
