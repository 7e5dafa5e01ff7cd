// Package query holds the per-dataset query descriptors of the browsing
// engine and their wire encoding.
package query

import (
	"maps"

	"github.com/kapeview/kapeview/internal/model"
)

// Descriptor is the mutable query of one dataset.
type Descriptor struct {
	Page     int
	PageSize int
	FreeText string
	Filters  map[string]string
	SortKey  string
	SortDir  model.SortDir
}

// Default returns the initial descriptor of a dataset.
func Default(ds model.Dataset, pageSize int) Descriptor {
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	key, dir := model.DefaultSort(ds)
	return Descriptor{
		Page:     1,
		PageSize: pageSize,
		Filters:  map[string]string{},
		SortKey:  key,
		SortDir:  dir,
	}
}

func (d Descriptor) clone() Descriptor {
	out := d
	out.Filters = maps.Clone(d.Filters)
	if out.Filters == nil {
		out.Filters = map[string]string{}
	}
	return out
}

// Filter returns the value of a column filter, or the free text for "q".
func (d Descriptor) Filter(field string) string {
	if field == "" || field == FreeTextField {
		return d.FreeText
	}
	return d.Filters[field]
}

// FreeTextField is the parameter name of the free-text filter.
const FreeTextField = "q"

// State owns the descriptors of all datasets. Only its methods mutate them.
// It is not safe for concurrent use; the UI loop is its single writer.
type State struct {
	pageSize int
	desc     map[model.Dataset]*Descriptor
}

// NewState creates descriptors at their defaults for every dataset.
func NewState(pageSize int) *State {
	s := &State{pageSize: pageSize, desc: make(map[model.Dataset]*Descriptor, len(model.Datasets))}
	for _, ds := range model.Datasets {
		d := Default(ds, pageSize)
		s.desc[ds] = &d
	}
	return s
}

func (s *State) get(ds model.Dataset) *Descriptor {
	d, ok := s.desc[ds]
	if !ok {
		nd := Default(ds, s.pageSize)
		d = &nd
		s.desc[ds] = d
	}
	return d
}

// Snapshot returns a copy of the dataset's descriptor.
func (s *State) Snapshot(ds model.Dataset) Descriptor {
	return s.get(ds).clone()
}

// SetFilter sets the free text (field "" or "q") or a column filter and
// resets the page to 1. An empty value removes the column filter.
func (s *State) SetFilter(ds model.Dataset, field, value string) {
	d := s.get(ds)
	if field == "" || field == FreeTextField {
		d.FreeText = value
	} else if value == "" {
		delete(d.Filters, field)
	} else {
		d.Filters[field] = value
	}
	d.Page = 1
}

// SetSort sorts by key. The active key toggles direction, a new key sorts
// ascending. The page resets to 1. Keys the dataset cannot sort on are
// ignored and false is returned.
func (s *State) SetSort(ds model.Dataset, key string) bool {
	if !sortable(ds, key) {
		return false
	}
	d := s.get(ds)
	if d.SortKey == key {
		d.SortDir = d.SortDir.Toggle()
	} else {
		d.SortKey = key
		d.SortDir = model.SortAsc
	}
	d.Page = 1
	return true
}

// SortByColumn sorts by the key mapped to a display column. Indexes outside
// the column map fall back to the first key; columns with no sort key leave
// the current sort untouched and return false.
func (s *State) SortByColumn(ds model.Dataset, col int) bool {
	cols := model.Columns(ds)
	if len(cols) == 0 {
		return false
	}
	if col < 0 || col >= len(cols) {
		col = 0
	}
	key := cols[col].SortKey
	if key == "" {
		return false
	}
	return s.SetSort(ds, key)
}

// SetPage moves to page p. It is rejected when p is outside [1, totalPages]
// or already current.
func (s *State) SetPage(ds model.Dataset, p, totalPages int) bool {
	d := s.get(ds)
	if p < 1 || p > totalPages || p == d.Page {
		return false
	}
	d.Page = p
	return true
}

// ClampPage pulls the page back into [1, totalPages] and reports whether
// it changed.
func (s *State) ClampPage(ds model.Dataset, totalPages int) bool {
	d := s.get(ds)
	if totalPages < 1 {
		totalPages = 1
	}
	switch {
	case d.Page > totalPages:
		d.Page = totalPages
	case d.Page < 1:
		d.Page = 1
	default:
		return false
	}
	return true
}

// Clear restores the dataset's defaults.
func (s *State) Clear(ds model.Dataset) {
	d := Default(ds, s.pageSize)
	s.desc[ds] = &d
}

func sortable(ds model.Dataset, key string) bool {
	for _, k := range model.SortKeys(ds) {
		if k == key {
			return true
		}
	}
	return false
}
