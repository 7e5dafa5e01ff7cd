package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kapeview/kapeview/internal/model"
)

// Encode serializes every descriptor field as query parameters.
func Encode(d Descriptor) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(d.Page))
	v.Set("page_size", strconv.Itoa(d.PageSize))
	v.Set(FreeTextField, d.FreeText)
	for k, val := range d.Filters {
		v.Set(k, val)
	}
	v.Set("sort", d.SortKey)
	v.Set("order", string(d.SortDir))
	return v
}

// Decode builds a server-side page query from request parameters. Missing
// or invalid values fall back to the dataset defaults; unknown sort keys
// fall back to the default key, page is capped at model.MaxPage and
// page_size is clamped to [1, model.MaxPageSize].
func Decode(ds model.Dataset, v url.Values) model.PageQuery {
	key, dir := model.DefaultSort(ds)
	q := model.PageQuery{
		Page:     1,
		PageSize: model.DefaultPageSize,
		Text:     strings.TrimSpace(v.Get(FreeTextField)),
		Filters:  map[string]string{},
		SortKey:  key,
		SortDir:  dir,
	}
	if n, err := strconv.Atoi(v.Get("page")); err == nil && n > 0 {
		q.Page = min(n, model.MaxPage)
	}
	if n, err := strconv.Atoi(v.Get("page_size")); err == nil && n > 0 {
		q.PageSize = min(n, model.MaxPageSize)
	}
	if s := v.Get("sort"); sortable(ds, s) {
		q.SortKey = s
		if d, ok := model.ParseSortDir(v.Get("order")); ok {
			q.SortDir = d
		} else {
			q.SortDir = model.SortAsc
		}
	} else if d, ok := model.ParseSortDir(v.Get("order")); ok && s == "" {
		q.SortDir = d
	}
	for _, f := range model.FilterFields(ds) {
		if val := strings.TrimSpace(v.Get(f)); val != "" {
			q.Filters[f] = val
		}
	}
	return q
}
