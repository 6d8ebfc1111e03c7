package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jask/ledgermate/internal/budget"
	"github.com/jask/ledgermate/internal/engine"
	"github.com/jask/ledgermate/internal/store"
)

// PayeeSync refreshes the local payee rules from a budgeting-service
// snapshot: usage counts, last-seen dates and normalized names, while
// preserving anything the user has already decided (default category,
// tags, duplicate flags).
type PayeeSync struct {
	Payees *store.PayeeRepo
	Log    *slog.Logger
}

// Sync upserts one rule per payee seen in the snapshot and returns how
// many rules were written. Transactions naming a payee without a payee
// id are grouped by normalized name; an id is minted for them once and
// reused on later syncs.
func (s *PayeeSync) Sync(ctx context.Context, payees []budget.Payee, txs []budget.Transaction) (int, error) {
	existing, err := s.Payees.List(ctx, true)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]engine.PayeeRule, len(existing))
	byNorm := make(map[string]engine.PayeeRule, len(existing))
	for _, r := range existing {
		byID[r.PayeeID] = r
		if r.NormalizedName != "" {
			byNorm[r.NormalizedName] = r
		}
	}

	type usage struct {
		count    int
		lastSeen budget.Transaction
	}
	usageByPayee := make(map[string]*usage)
	orphanNames := make(map[string]*usage) // payee name but no payee id
	for _, t := range txs {
		if t.Deleted || t.PayeeName == "" {
			continue
		}
		var u *usage
		if t.PayeeID != nil && *t.PayeeID != "" {
			if usageByPayee[*t.PayeeID] == nil {
				usageByPayee[*t.PayeeID] = &usage{}
			}
			u = usageByPayee[*t.PayeeID]
		} else {
			norm := engine.NormalizeName(t.PayeeName)
			if norm == "" {
				continue
			}
			if orphanNames[norm] == nil {
				orphanNames[norm] = &usage{}
			}
			u = orphanNames[norm]
		}
		u.count++
		if t.Date.After(u.lastSeen.Date) {
			u.lastSeen = t
		}
	}

	written := 0
	for _, p := range payees {
		rule := engine.PayeeRule{
			PayeeID:        p.ID,
			RawName:        p.Name,
			DisplayName:    p.Name,
			NormalizedName: engine.NormalizeName(p.Name),
		}
		if prev, ok := byID[p.ID]; ok {
			rule.DefaultCategoryID = prev.DefaultCategoryID
			rule.Tags = prev.Tags
			rule.DuplicateOf = prev.DuplicateOf
			rule.DisplayName = prev.DisplayName
		}
		if u, ok := usageByPayee[p.ID]; ok {
			rule.TransactionCount = u.count
			rule.LastSeen = u.lastSeen.Date
		}
		if err := s.Payees.Upsert(ctx, rule); err != nil {
			return written, err
		}
		written++
	}

	for norm, u := range orphanNames {
		rule := engine.PayeeRule{
			PayeeID:          uuid.NewString(),
			RawName:          u.lastSeen.PayeeName,
			DisplayName:      u.lastSeen.PayeeName,
			NormalizedName:   norm,
			TransactionCount: u.count,
			LastSeen:         u.lastSeen.Date,
		}
		if prev, ok := byNorm[norm]; ok {
			rule.PayeeID = prev.PayeeID
			rule.DisplayName = prev.DisplayName
			rule.DefaultCategoryID = prev.DefaultCategoryID
			rule.Tags = prev.Tags
			rule.DuplicateOf = prev.DuplicateOf
		}
		if err := s.Payees.Upsert(ctx, rule); err != nil {
			return written, err
		}
		written++
	}

	if s.Log != nil {
		s.Log.Info("payee rules synced", "rules", written)
	}
	return written, nil
}

// ApplyDuplicateGroup folds every member of a detected group into its
// primary.
func (s *PayeeSync) ApplyDuplicateGroup(ctx context.Context, g engine.DuplicateGroup) error {
	for _, d := range g.Duplicates {
		if err := s.Payees.MarkDuplicate(ctx, d.PayeeID, g.Primary.PayeeID); err != nil {
			return err
		}
	}
	return nil
}
