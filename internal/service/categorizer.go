package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jask/ledgermate/internal/budget"
	"github.com/jask/ledgermate/internal/cache"
	"github.com/jask/ledgermate/internal/engine"
	"github.com/jask/ledgermate/internal/llm"
)

const (
	// patternConfidenceThreshold and patternMinUses gate the learned
	// prior: below either, the pattern is advisory context for the
	// model rather than an answer in its own right.
	patternConfidenceThreshold = 0.8
	patternMinUses             = 3

	// defaultBatchWidth bounds in-flight provider calls; the completion
	// service rate-limits aggressively.
	defaultBatchWidth = 3
)

// Suggestion is a category proposal for one transaction. Err is set
// when the provider call for this transaction failed; sibling
// transactions in the same batch are unaffected.
type Suggestion struct {
	TransactionID string
	CategoryID    string
	CategoryName  string
	Confidence    float64
	Source        string // "pattern", "cache" or "llm"
	Err           error
}

// Categorizer proposes categories for uncategorized transactions.
// Precedence per transaction: learned pattern prior, then cached
// response, then a live completion call whose result is cached.
type Categorizer struct {
	Provider llm.Provider
	Cache    *cache.Cache
	Width    int
	Log      *slog.Logger
}

// CategorizeBatch produces one suggestion per uncategorized, non-deleted
// transaction. Provider calls run at most Width (default 3) at a time;
// a failed call yields a Suggestion with Err set and never aborts the
// rest of the batch.
func (s *Categorizer) CategorizeBatch(
	ctx context.Context,
	txs []budget.Transaction,
	accounts []budget.Account,
	categories []budget.Category,
	patterns []engine.PayeePattern,
) []Suggestion {
	categoryID := make(map[string]string, len(categories))
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		categoryID[c.Name] = c.ID
		names = append(names, c.Name)
	}
	accountName := make(map[string]string, len(accounts))
	for _, a := range accounts {
		accountName[a.ID] = a.Name
	}
	patternByKey := make(map[string]engine.PayeePattern, len(patterns))
	for _, p := range patterns {
		patternByKey[p.NormalizedName] = p
	}

	var pending []budget.Transaction
	for _, t := range txs {
		if !t.Deleted && !t.Categorized() && t.PayeeName != "" {
			pending = append(pending, t)
		}
	}

	out := make([]Suggestion, len(pending))
	width := s.Width
	if width <= 0 {
		width = defaultBatchWidth
	}
	var g errgroup.Group
	g.SetLimit(width)
	for i, tx := range pending {
		// pattern prior answers without touching the provider
		if p, ok := patternByKey[engine.PatternKey(tx.PayeeName)]; ok &&
			p.Confidence >= patternConfidenceThreshold && p.Occurrences >= patternMinUses {
			out[i] = Suggestion{
				TransactionID: tx.ID,
				CategoryID:    p.CategoryID,
				CategoryName:  p.CategoryName,
				Confidence:    p.Confidence,
				Source:        "pattern",
			}
			continue
		}
		g.Go(func() error {
			out[i] = s.categorizeOne(ctx, tx, accountName[tx.AccountID], names, categoryID, patterns)
			return nil // partial-failure isolation: errors stay in the slot
		})
	}
	_ = g.Wait()
	return out
}

func (s *Categorizer) categorizeOne(
	ctx context.Context,
	tx budget.Transaction,
	account string,
	categoryNames []string,
	categoryID map[string]string,
	patterns []engine.PayeePattern,
) Suggestion {
	key := cache.Key("categorize", tx.PayeeName, strings.Join(categoryNames, ","))
	if s.Cache != nil {
		if raw, ok := s.Cache.Get(key); ok {
			var resp llm.CategorizeResponse
			if err := json.Unmarshal(raw, &resp); err == nil && resp.Category != "" {
				return s.toSuggestion(tx.ID, resp, categoryID, "cache")
			}
			// unexpected shape: treat as a miss and recompute
		}
	}

	req := llm.CategorizeRequest{
		Transaction: llm.TransactionInput{
			PayeeName: tx.PayeeName,
			Amount:    tx.Amount,
			Date:      tx.Date.Format(budget.DateLayout),
			Account:   account,
			Memo:      tx.Memo,
		},
		Categories: categoryNames,
		Patterns:   patternHints(patterns, 20),
	}
	resp, err := s.Provider.Categorize(ctx, req)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("categorize call failed", "transaction", tx.ID, "payee", tx.PayeeName, "err", err)
		}
		return Suggestion{TransactionID: tx.ID, Err: err}
	}
	if s.Cache != nil {
		if raw, err := json.Marshal(resp); err == nil {
			s.Cache.Set(key, raw)
		}
	}
	return s.toSuggestion(tx.ID, resp, categoryID, "llm")
}

// SuggestTags proposes tags for a single transaction, consulting the
// cache before the provider.
func (s *Categorizer) SuggestTags(ctx context.Context, tx budget.Transaction, account string, existing []string) []string {
	key := cache.Key("tags", tx.PayeeName, strconv.FormatInt(tx.Amount, 10))
	if s.Cache != nil {
		if raw, ok := s.Cache.Get(key); ok {
			var resp llm.TagResponse
			if err := json.Unmarshal(raw, &resp); err == nil {
				return resp.Tags
			}
		}
	}
	resp, err := s.Provider.SuggestTags(ctx, llm.TagRequest{
		Transaction: llm.TransactionInput{
			PayeeName: tx.PayeeName,
			Amount:    tx.Amount,
			Date:      tx.Date.Format(budget.DateLayout),
			Account:   account,
			Memo:      tx.Memo,
		},
		ExistingTags: existing,
		MaxTags:      5,
	})
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("tag call failed", "transaction", tx.ID, "err", err)
		}
		return nil
	}
	if s.Cache != nil {
		if raw, err := json.Marshal(resp); err == nil {
			s.Cache.Set(key, raw)
		}
	}
	return resp.Tags
}

func (s *Categorizer) toSuggestion(txID string, resp llm.CategorizeResponse, categoryID map[string]string, source string) Suggestion {
	id, ok := categoryID[resp.Category]
	if !ok {
		// the model named a category we do not have; report nothing
		return Suggestion{TransactionID: txID, Source: source}
	}
	return Suggestion{
		TransactionID: txID,
		CategoryID:    id,
		CategoryName:  resp.Category,
		Confidence:    resp.Confidence,
		Source:        source,
	}
}

func patternHints(patterns []engine.PayeePattern, limit int) []llm.PatternHint {
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	hints := make([]llm.PatternHint, 0, len(patterns))
	for _, p := range patterns {
		hints = append(hints, llm.PatternHint{
			PayeeName:  p.PayeeName,
			Category:   p.CategoryName,
			Confidence: p.Confidence,
		})
	}
	return hints
}
