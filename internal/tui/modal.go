package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kapeview/kapeview/internal/model"
)

// Modal is a self-contained modal that owns its own Update/View lifecycle.
// Each page keeps a stack; the topmost modal receives all input and renders
// over the page.
type Modal interface {
	// ID returns a unique identifier used to deduplicate pushes.
	ID() string
	// Update processes a message. Return pop=true to close the modal.
	Update(msg tea.Msg) (pop bool, cmd tea.Cmd)
	// View renders the modal content for the given terminal dimensions.
	View(width, height int) string
}

type modalStack []Modal

// Push pushes a modal onto the stack. Deduplicates by ID.
func (s *modalStack) Push(m Modal) {
	for _, existing := range *s {
		if existing.ID() == m.ID() {
			return
		}
	}
	*s = append(*s, m)
}

// Pop removes the topmost modal.
func (s *modalStack) Pop() {
	if n := len(*s); n > 0 {
		*s = (*s)[:n-1]
	}
}

// Top returns the topmost modal, or nil if the stack is empty.
func (s modalStack) Top() Modal {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Update routes msg to the topmost modal and pops it on request. handled
// is false when the stack is empty.
func (s *modalStack) Update(msg tea.Msg) (handled bool, cmd tea.Cmd) {
	top := s.Top()
	if top == nil {
		return false, nil
	}
	pop, cmd := top.Update(msg)
	if pop {
		s.Pop()
	}
	return true, cmd
}

// TextModal is a scrollable read-only modal.
type TextModal struct {
	id       string
	title    string
	content  string
	accent   lipgloss.Color
	viewport viewport.Model
}

// NewTextModal creates a modal showing content under title.
func NewTextModal(id, title, content string) *TextModal {
	return &TextModal{
		id:       id,
		title:    title,
		content:  content,
		accent:   ColorBlue,
		viewport: viewport.New(80, 20),
	}
}

// NewAlertModal creates a modal for a failure message.
func NewAlertModal(title, message string) *TextModal {
	m := NewTextModal("alert", title, message)
	m.accent = ColorRed
	return m
}

// NewRecordModal shows every field of a record, sorted by name, with the
// dataset's display columns first.
func NewRecordModal(ds model.Dataset, rec model.Record) *TextModal {
	return NewTextModal("record", ds.Title()+" record", formatRecord(ds, rec))
}

// NewHelpModal lists the key bindings of the given groups.
func NewHelpModal(groups map[string][]key.Binding, order []string) *TextModal {
	var b strings.Builder
	for i, name := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(titleStyle.Render(name))
		b.WriteString("\n")
		for _, kb := range groups[name] {
			h := kb.Help()
			fmt.Fprintf(&b, "  %-12s %s\n", h.Key, h.Desc)
		}
	}
	return NewTextModal("help", "Keys", b.String())
}

func (d *TextModal) ID() string { return d.id }

func (d *TextModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			d.viewport.ScrollUp(1)
			return false, nil
		case "down", "j":
			d.viewport.ScrollDown(1)
			return false, nil
		case "pgup":
			d.viewport.HalfPageUp()
			return false, nil
		case "pgdown":
			d.viewport.HalfPageDown()
			return false, nil
		case "escape", "esc", "q", "enter":
			return true, nil
		}
		var cmd tea.Cmd
		d.viewport, cmd = d.viewport.Update(msg)
		return false, cmd

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress {
			switch msg.Button {
			case tea.MouseButtonWheelUp:
				d.viewport.ScrollUp(1)
			case tea.MouseButtonWheelDown:
				d.viewport.ScrollDown(1)
			}
		}
	}
	return false, nil
}

func (d *TextModal) View(width, height int) string {
	return renderSingleModalView(&d.viewport, d.title, d.content, d.accent, width, height)
}

// renderSingleModalView renders a simple scrollable modal with the given content.
func renderSingleModalView(vp *viewport.Model, title, content string, accent lipgloss.Color, width, height int) string {
	modalWidth := max(width-8, 20)
	modalHeight := max(height-6, 8)

	contentWidth := modalWidth - 4
	contentHeight := modalHeight - 4

	vp.Width = contentWidth
	vp.Height = contentHeight
	vp.SetContent(lipgloss.NewStyle().Width(contentWidth - 2).Render(content))

	contentPane := lipgloss.NewStyle().
		Width(contentWidth).
		Height(contentHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		Render(vp.View())

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(accent).
		Bold(true).
		Render(title)

	modal := lipgloss.JoinVertical(lipgloss.Left, header, contentPane, renderModalStatusBar())

	finalModal := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, finalModal)
}

// renderModalStatusBar renders the status bar for modals
func renderModalStatusBar() string {
	statusItems := []string{"up/down/Wheel: Scroll", "PgUp/PgDn: Page", "ESC: Close"}
	return dimStyle.Render(strings.Join(statusItems, " | "))
}

func formatRecord(ds model.Dataset, rec model.Record) string {
	seen := make(map[string]bool, len(rec))
	var b strings.Builder
	width := 0
	for name := range rec {
		width = max(width, len(name))
	}
	line := func(name string) {
		seen[name] = true
		fmt.Fprintf(&b, "%-*s  %s\n", width, name, rec.Text(name))
	}
	for _, col := range model.Columns(ds) {
		if _, ok := rec[col.Field]; ok {
			line(col.Field)
		}
	}
	rest := make([]string, 0, len(rec))
	for name := range rec {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	if len(rest) > 0 && b.Len() > 0 {
		b.WriteString("\n")
	}
	for _, name := range rest {
		line(name)
	}
	return b.String()
}
