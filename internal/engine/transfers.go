package engine

import (
	"sort"
	"time"

	"github.com/jask/ledgermate/internal/budget"
)

// TransferPair is a matched outflow/inflow believed to be money moved
// between the user's own accounts. Recomputed on every call, never
// persisted.
type TransferPair struct {
	Outflow     budget.Transaction
	Inflow      budget.Transaction
	FromAccount budget.Account
	ToAccount   budget.Account
	Confidence  float64
}

// maxTransferGapDays is the widest outflow/inflow date gap still
// considered a plausible transfer. Each day of gap costs 0.1
// confidence.
const maxTransferGapDays = 3

// DetectTransfers pairs uncategorized outflows with uncategorized
// inflows of the same absolute amount on a different account. Matching
// is greedy: each outflow takes its best remaining inflow and both are
// consumed, so a later outflow can be starved of its ideal partner.
// That is an accepted runtime/simplicity tradeoff, not a bug. Result is
// sorted by confidence descending; ties keep encounter order.
func DetectTransfers(transactions []budget.Transaction, accounts []budget.Account) []TransferPair {
	accountByID := make(map[string]budget.Account, len(accounts))
	for _, a := range accounts {
		accountByID[a.ID] = a
	}

	// Bucket uncategorized candidates by absolute amount. Bucket keys
	// are walked in first-encounter order so the result never depends
	// on map iteration.
	type bucket struct {
		outflows []budget.Transaction
		inflows  []budget.Transaction
	}
	buckets := make(map[int64]*bucket)
	var order []int64
	for _, t := range transactions {
		if t.Deleted || t.Categorized() || t.Amount == 0 || t.Date.IsZero() {
			continue
		}
		abs := t.Amount
		if abs < 0 {
			abs = -abs
		}
		b, ok := buckets[abs]
		if !ok {
			b = &bucket{}
			buckets[abs] = b
			order = append(order, abs)
		}
		if t.Amount < 0 {
			b.outflows = append(b.outflows, t)
		} else {
			b.inflows = append(b.inflows, t)
		}
	}

	consumed := make(map[string]bool)
	var pairs []TransferPair
	for _, amt := range order {
		b := buckets[amt]
		for _, out := range b.outflows {
			if consumed[out.ID] {
				continue
			}
			bestIdx := -1
			bestConf := 0.0
			for i, in := range b.inflows {
				if consumed[in.ID] || in.ID == out.ID || in.AccountID == out.AccountID {
					// same-account hits are refunds, never transfers
					continue
				}
				conf := transferConfidence(out, in)
				if conf > bestConf {
					bestConf, bestIdx = conf, i
				}
			}
			if bestIdx < 0 {
				continue
			}
			in := b.inflows[bestIdx]
			consumed[out.ID] = true
			consumed[in.ID] = true
			pairs = append(pairs, TransferPair{
				Outflow:     out,
				Inflow:      in,
				FromAccount: accountByID[out.AccountID],
				ToAccount:   accountByID[in.AccountID],
				Confidence:  bestConf,
			})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Confidence > pairs[j].Confidence
	})
	return pairs
}

// transferConfidence scores a candidate pair by date proximity: 1.0 for
// same-day, minus 0.1 per day of gap, zero (no match) beyond the
// allowed window.
func transferConfidence(a, b budget.Transaction) float64 {
	days := daysApart(a.Date, b.Date)
	if days > maxTransferGapDays {
		return 0
	}
	return 1 - 0.1*float64(days)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
