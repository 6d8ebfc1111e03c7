package engine

import (
	"sort"

	"github.com/jask/ledgermate/internal/budget"
)

// PayeePattern is a learned payee → category prior: how often this
// payee's transactions landed in its dominant category. Confidence is
// an ordering heuristic in (0,1], not a calibrated probability.
type PayeePattern struct {
	PayeeName      string
	NormalizedName string
	CategoryID     string
	CategoryName   string
	Occurrences    int
	Confidence     float64
}

// BuildPayeePatterns derives per-payee category frequencies from
// historical transactions. Only non-deleted, categorized transactions
// with a payee name participate; a payee whose dominant category no
// longer exists in the supplied list is dropped as stale. Result is
// sorted by dominant-category occurrences descending.
func BuildPayeePatterns(transactions []budget.Transaction, categories []budget.Category) []PayeePattern {
	categoryName := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryName[c.ID] = c.Name
	}

	type group struct {
		firstName string
		counts    map[string]int
		catOrder  []string // first-encounter order, breaks count ties
		total     int
	}
	groups := make(map[string]*group)
	var keyOrder []string
	for _, t := range transactions {
		if t.Deleted || !t.Categorized() || t.Date.IsZero() {
			continue
		}
		key := PatternKey(t.PayeeName)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{firstName: t.PayeeName, counts: make(map[string]int)}
			groups[key] = g
			keyOrder = append(keyOrder, key)
		}
		cat := *t.CategoryID
		if _, seen := g.counts[cat]; !seen {
			g.catOrder = append(g.catOrder, cat)
		}
		g.counts[cat]++
		g.total++
	}

	patterns := make([]PayeePattern, 0, len(groups))
	for _, key := range keyOrder {
		g := groups[key]
		topCat, topCount := "", 0
		for _, cat := range g.catOrder {
			if g.counts[cat] > topCount {
				topCat, topCount = cat, g.counts[cat]
			}
		}
		name, known := categoryName[topCat]
		if !known {
			continue
		}
		patterns = append(patterns, PayeePattern{
			PayeeName:      g.firstName,
			NormalizedName: key,
			CategoryID:     topCat,
			CategoryName:   name,
			Occurrences:    topCount,
			Confidence:     float64(topCount) / float64(g.total),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Occurrences > patterns[j].Occurrences
	})
	return patterns
}
