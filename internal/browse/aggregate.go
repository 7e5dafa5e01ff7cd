package browse

import "github.com/kapeview/kapeview/internal/model"

// Aggregate is the cross-dataset record counter.
type Aggregate struct {
	// Totals are the per-dataset counts as displayed, summary values
	// substituted where the summary has them.
	Totals map[model.Dataset]int64
	// FromSummary marks the datasets whose count came from the summary.
	FromSummary map[model.Dataset]bool
	Total       int64
}

func newAggregate(totals [3]int64, fromSummary [3]bool) Aggregate {
	a := Aggregate{
		Totals:      make(map[model.Dataset]int64, len(model.Datasets)),
		FromSummary: make(map[model.Dataset]bool, len(model.Datasets)),
	}
	for i, ds := range model.Datasets {
		a.Totals[ds] = totals[i]
		a.FromSummary[ds] = fromSummary[i]
		a.Total += totals[i]
	}
	return a
}

// Summarized reports whether any count came from the evidence summary.
func (a Aggregate) Summarized() bool {
	for _, ok := range a.FromSummary {
		if ok {
			return true
		}
	}
	return false
}
