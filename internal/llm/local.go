package llm

import (
	"context"
	"strings"
)

// LocalProvider is an offline heuristic implementation. It answers from
// the pattern hints and simple token overlap so the app keeps working
// without an API key; confidence stays low enough that callers treat
// its output as a weak suggestion.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (l *LocalProvider) Categorize(_ context.Context, req CategorizeRequest) (CategorizeResponse, error) {
	payee := strings.ToLower(req.Transaction.PayeeName)

	// learned history first: a hint for the same payee is the strongest
	// signal an offline provider has
	for _, h := range req.Patterns {
		if strings.EqualFold(h.PayeeName, req.Transaction.PayeeName) {
			return CategorizeResponse{
				Category:   h.Category,
				Confidence: h.Confidence,
				Reasoning:  "matched past usage",
			}, nil
		}
	}

	bestCat, bestScore := "", 0.0
	for _, cat := range req.Categories {
		score := tokenOverlap(payee, strings.ToLower(cat))
		if score > bestScore {
			bestScore, bestCat = score, cat
		}
	}
	return CategorizeResponse{Category: bestCat, Confidence: bestScore}, nil
}

func (l *LocalProvider) SuggestTags(_ context.Context, req TagRequest) (TagResponse, error) {
	// reuse existing tags that appear verbatim in the payee name
	payee := strings.ToLower(req.Transaction.PayeeName)
	var tags []string
	for _, t := range req.ExistingTags {
		if t != "" && strings.Contains(payee, strings.ToLower(t)) {
			tags = append(tags, t)
		}
		if req.MaxTags > 0 && len(tags) == req.MaxTags {
			break
		}
	}
	return TagResponse{Tags: tags}, nil
}

// tokenOverlap is a Jaccard ratio over whitespace/punctuation tokens.
func tokenOverlap(a, b string) float64 {
	at, bt := tokens(a), tokens(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	intersect := 0
	for t := range at {
		if _, ok := bt[t]; ok {
			intersect++
		}
	}
	return float64(intersect) / float64(len(at)+len(bt)-intersect)
}

func tokens(s string) map[string]struct{} {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/' || r == '*' || r == '&'
	})
	out := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}
