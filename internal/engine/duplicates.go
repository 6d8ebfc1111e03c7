package engine

import (
	"sort"
	"time"

	"github.com/agnivade/levenshtein"
)

// PayeeRule is the locally-persisted state for one payee: naming,
// learned defaults and duplicate bookkeeping. The engine never mutates
// these; merges happen in the caller.
type PayeeRule struct {
	PayeeID           string
	RawName           string
	DisplayName       string
	NormalizedName    string
	DefaultCategoryID *string
	Tags              []string
	LastSeen          time.Time
	TransactionCount  int
	DuplicateOf       *string
}

// DuplicateGroup clusters payees whose names look like variants of the
// same merchant. Primary is the most-used record; Similarity is the
// mean pairwise score of the members against it.
type DuplicateGroup struct {
	Primary    PayeeRule
	Duplicates []PayeeRule
	Similarity float64
}

const (
	// levenshteinFloor is the minimum normalized edit-distance
	// similarity before two names are considered related at all.
	levenshteinFloor = 0.85
	// prefixMinLen guards the prefix heuristic: a shorter name of 3 or
	// fewer characters is too ambiguous to treat as a brand prefix
	// ("ABC" must not swallow "ABC Corp").
	prefixMinLen = 3
	prefixScore  = 0.9
)

// FindDuplicateGroups clusters payees by display-name similarity.
// Payees already flagged as duplicates of another record are excluded.
// Scanning order is by transaction count descending so the most-used
// record always becomes a cluster's primary; each payee joins at most
// one group. Output is sorted by duplicate count descending and is
// identical across repeated runs on the same input.
func FindDuplicateGroups(payees []PayeeRule) []DuplicateGroup {
	candidates := make([]PayeeRule, 0, len(payees))
	for _, p := range payees {
		if p.DuplicateOf != nil && *p.DuplicateOf != "" {
			continue
		}
		p.NormalizedName = NormalizeName(p.DisplayName)
		if p.NormalizedName == "" {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TransactionCount > candidates[j].TransactionCount
	})

	processed := make(map[string]bool, len(candidates))
	var groups []DuplicateGroup
	for i, primary := range candidates {
		if processed[primary.PayeeID] {
			continue
		}
		var members []PayeeRule
		var scores []float64
		for j := i + 1; j < len(candidates); j++ {
			other := candidates[j]
			if processed[other.PayeeID] {
				continue
			}
			score := pairSimilarity(primary.NormalizedName, other.NormalizedName)
			if score > 0 {
				members = append(members, other)
				scores = append(scores, score)
			}
		}
		if len(members) == 0 {
			continue
		}
		processed[primary.PayeeID] = true
		sum := 0.0
		for _, m := range members {
			processed[m.PayeeID] = true
		}
		for _, s := range scores {
			sum += s
		}
		groups = append(groups, DuplicateGroup{
			Primary:    primary,
			Duplicates: members,
			Similarity: sum / float64(len(scores)),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Duplicates) > len(groups[j].Duplicates)
	})
	return groups
}

// pairSimilarity scores two normalized names in [0,1]. Zero means "no
// relationship", not merely "dissimilar": anything under the
// Levenshtein floor is treated as unrelated so conservative clustering
// never merges distinct short merchant names.
func pairSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) > prefixMinLen &&
		float64(len(shorter))/float64(len(longer)) > 0.5 &&
		len(longer) > len(shorter) && longer[:len(shorter)] == shorter {
		return prefixScore
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	sim := 1 - float64(dist)/float64(maxLen)
	if sim > levenshteinFloor {
		return sim
	}
	return 0
}
