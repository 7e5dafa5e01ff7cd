package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kapeview/kapeview/internal/model"
)

// Common Security event ids offered by the event_id filter.
var securityEventIDs = []string{"4624", "4625", "4634", "4647", "4648", "4672", "4688", "4720", "4732"}

// Windows logon types offered by the logon_type filter.
var logonTypes = []string{"2", "3", "4", "5", "7", "8", "9", "10", "11"}

// filterChoices returns the selectable values of a dataset filter. The
// empty string, meaning any value, is always first.
func filterChoices(field string, facets []string) []string {
	out := []string{""}
	switch field {
	case "type":
		out = append(out, "file", "dir")
	case "size_bucket":
		out = append(out, model.SizeBucketSmall, model.SizeBucketMedium, model.SizeBucketLarge)
	case "publisher":
		out = append(out, facets...)
	case "event_id":
		out = append(out, securityEventIDs...)
	case "logon_type":
		out = append(out, logonTypes...)
	}
	return out
}

func filterLabel(field string) string {
	switch field {
	case "type":
		return "Type"
	case "size_bucket":
		return "Size"
	case "publisher":
		return "Publisher"
	case "event_id":
		return "Event ID"
	case "logon_type":
		return "Logon type"
	}
	return field
}

// filterChange is one filter value chosen in the modal.
type filterChange struct {
	Field string
	Value string
}

// filtersAppliedMsg carries the changes confirmed in a FilterModal.
type filtersAppliedMsg struct {
	Dataset model.Dataset
	Changes []filterChange
}

type filterRow struct {
	field   string
	choices []string
	index   int
	initial int
}

// FilterModal edits the column filters of one dataset. Values are cycled
// in place and sent as a filtersAppliedMsg on enter.
type FilterModal struct {
	ds     model.Dataset
	rows   []filterRow
	cursor int
	keys   KeyMap
}

// NewFilterModal creates a modal for ds. current maps field to its active
// value; facets feed the publisher choices.
func NewFilterModal(ds model.Dataset, current map[string]string, facets []string, keys KeyMap) *FilterModal {
	m := &FilterModal{ds: ds, keys: keys}
	for _, field := range model.FilterFields(ds) {
		choices := filterChoices(field, facets)
		idx := 0
		if v := current[field]; v != "" {
			idx = indexOf(choices, v)
			if idx < 0 {
				choices = append(choices, v)
				idx = len(choices) - 1
			}
		}
		m.rows = append(m.rows, filterRow{field: field, choices: choices, index: idx, initial: idx})
	}
	return m
}

func indexOf(vals []string, v string) int {
	for i, s := range vals {
		if s == v {
			return i
		}
	}
	return -1
}

func (m *FilterModal) ID() string { return "filters" }

func (m *FilterModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || len(m.rows) == 0 {
		if ok && key.Matches(km, m.keys.Escape, m.keys.Enter) {
			return true, nil
		}
		return false, nil
	}
	row := &m.rows[m.cursor]
	switch {
	case key.Matches(km, m.keys.Escape):
		return true, nil
	case key.Matches(km, m.keys.Up):
		m.cursor = (m.cursor - 1 + len(m.rows)) % len(m.rows)
	case key.Matches(km, m.keys.Down), key.Matches(km, m.keys.NextDataset):
		m.cursor = (m.cursor + 1) % len(m.rows)
	case key.Matches(km, m.keys.PrevValue):
		row.index = (row.index - 1 + len(row.choices)) % len(row.choices)
	case key.Matches(km, m.keys.NextValue):
		row.index = (row.index + 1) % len(row.choices)
	case key.Matches(km, m.keys.Enter):
		changes := m.Changes()
		if len(changes) == 0 {
			return true, nil
		}
		ds := m.ds
		return true, func() tea.Msg {
			return filtersAppliedMsg{Dataset: ds, Changes: changes}
		}
	}
	return false, nil
}

// Changes returns the fields whose value differs from when the modal opened.
func (m *FilterModal) Changes() []filterChange {
	var out []filterChange
	for _, r := range m.rows {
		if r.index != r.initial {
			out = append(out, filterChange{Field: r.field, Value: r.choices[r.index]})
		}
	}
	return out
}

func (m *FilterModal) View(width, height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.ds.Title()+" filters") + "\n\n")
	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("No filters for this dataset") + "\n")
	}
	for i, r := range m.rows {
		val := r.choices[r.index]
		if val == "" {
			val = "any"
		}
		line := fmt.Sprintf("%-12s ‹ %s ›", filterLabel(r.field), val)
		if r.field == "publisher" && len(r.choices) == 1 {
			line += dimStyle.Render("  (no publishers loaded)")
		}
		if i == m.cursor {
			line = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true).Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("↑/↓ field | ←/→ value | enter apply | esc cancel"))

	box := activeSectionStyle.Width(min(max(width-10, 30), 70)).Render(b.String())
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
