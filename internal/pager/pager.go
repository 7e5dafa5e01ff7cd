// Package pager computes the bounded window of page links shown under a
// dataset table.
package pager

// Window is the number of page links on each side of the current page.
const Window = 2

// TotalPages returns max(1, ceil(total/pageSize)).
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	n := (total + int64(pageSize) - 1) / int64(pageSize)
	if n < 1 {
		return 1
	}
	return int(n)
}

// Pager is the navigation state of one dataset. It is rebuilt after every
// load and bound to a callback that requests a new page.
type Pager struct {
	Page         int
	TotalPages   int
	Links        []int
	PrevDisabled bool
	NextDisabled bool

	onSelect func(page int)
}

// New builds a pager for the given position. page is clamped into
// [1, TotalPages]. onSelect may be nil.
func New(page, pageSize int, total int64, onSelect func(page int)) Pager {
	pages := TotalPages(total, pageSize)
	page = max(1, min(page, pages))

	start := max(1, page-Window)
	end := min(pages, page+Window)
	links := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		links = append(links, p)
	}

	return Pager{
		Page:         page,
		TotalPages:   pages,
		Links:        links,
		PrevDisabled: page <= 1,
		NextDisabled: page >= pages,
		onSelect:     onSelect,
	}
}

// Select requests page p. Out-of-range pages and the current page are
// ignored and false is returned.
func (p Pager) Select(page int) bool {
	if page < 1 || page > p.TotalPages || page == p.Page {
		return false
	}
	if p.onSelect != nil {
		p.onSelect(page)
	}
	return true
}

// Prev requests the previous page.
func (p Pager) Prev() bool {
	if p.PrevDisabled {
		return false
	}
	return p.Select(p.Page - 1)
}

// Next requests the next page.
func (p Pager) Next() bool {
	if p.NextDisabled {
		return false
	}
	return p.Select(p.Page + 1)
}

// First requests page 1.
func (p Pager) First() bool { return p.Select(1) }

// Last requests the last page.
func (p Pager) Last() bool { return p.Select(p.TotalPages) }
