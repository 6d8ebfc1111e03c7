package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jask/ledgermate/internal/engine"
)

// PayeeRepo handles payee rule rows.
type PayeeRepo struct {
	db *sql.DB
}

func NewPayeeRepo(db *sql.DB) *PayeeRepo { return &PayeeRepo{db: db} }

// Upsert inserts or replaces the rule for a payee, preserving
// created_at on replace.
func (r *PayeeRepo) Upsert(ctx context.Context, p engine.PayeeRule) error {
	tags, err := json.Marshal(orEmpty(p.Tags))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO payee_rules(
	 payee_id, raw_name, display_name, normalized_name, default_category_id,
	 tags, last_seen, transaction_count, duplicate_of, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(payee_id) DO UPDATE SET
	 raw_name=excluded.raw_name,
	 display_name=excluded.display_name,
	 normalized_name=excluded.normalized_name,
	 default_category_id=excluded.default_category_id,
	 tags=excluded.tags,
	 last_seen=excluded.last_seen,
	 transaction_count=excluded.transaction_count,
	 duplicate_of=excluded.duplicate_of,
	 updated_at=CURRENT_TIMESTAMP;
	`,
		p.PayeeID, p.RawName, p.DisplayName, p.NormalizedName, p.DefaultCategoryID,
		string(tags), nullTime(p.LastSeen), p.TransactionCount, p.DuplicateOf)
	return err
}

// List returns all rules ordered by transaction count descending. Set
// includeDuplicates to also return rules already folded into another
// payee.
func (r *PayeeRepo) List(ctx context.Context, includeDuplicates bool) ([]engine.PayeeRule, error) {
	q := `SELECT payee_id, raw_name, display_name, normalized_name, default_category_id,
	 tags, last_seen, transaction_count, duplicate_of
	 FROM payee_rules`
	if !includeDuplicates {
		q += ` WHERE duplicate_of IS NULL`
	}
	q += ` ORDER BY transaction_count DESC, payee_id`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PayeeRule
	for rows.Next() {
		var p engine.PayeeRule
		var tags string
		var lastSeen sql.NullTime
		if err := rows.Scan(&p.PayeeID, &p.RawName, &p.DisplayName, &p.NormalizedName,
			&p.DefaultCategoryID, &tags, &lastSeen, &p.TransactionCount, &p.DuplicateOf); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			p.LastSeen = lastSeen.Time
		}
		_ = json.Unmarshal([]byte(tags), &p.Tags)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get fetches one rule, nil when absent.
func (r *PayeeRepo) Get(ctx context.Context, payeeID string) (*engine.PayeeRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT payee_id, raw_name, display_name, normalized_name, default_category_id,
	 tags, last_seen, transaction_count, duplicate_of
	 FROM payee_rules WHERE payee_id = ?`, payeeID)

	var p engine.PayeeRule
	var tags string
	var lastSeen sql.NullTime
	err := row.Scan(&p.PayeeID, &p.RawName, &p.DisplayName, &p.NormalizedName,
		&p.DefaultCategoryID, &tags, &lastSeen, &p.TransactionCount, &p.DuplicateOf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		p.LastSeen = lastSeen.Time
	}
	_ = json.Unmarshal([]byte(tags), &p.Tags)
	return &p, nil
}

// SetDefaultCategory records the user's preferred category for a payee.
func (r *PayeeRepo) SetDefaultCategory(ctx context.Context, payeeID string, categoryID *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payee_rules SET default_category_id = ?, updated_at=CURRENT_TIMESTAMP WHERE payee_id = ?`,
		categoryID, payeeID)
	return err
}

// SetTags replaces the payee's tag set, preserving order.
func (r *PayeeRepo) SetTags(ctx context.Context, payeeID string, tags []string) error {
	data, err := json.Marshal(orEmpty(dedupeOrdered(tags)))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE payee_rules SET tags = ?, updated_at=CURRENT_TIMESTAMP WHERE payee_id = ?`,
		string(data), payeeID)
	return err
}

// MarkDuplicate folds payeeID into primaryID. The primary inherits a
// default category from the duplicate when it has none of its own.
func (r *PayeeRepo) MarkDuplicate(ctx context.Context, payeeID, primaryID string) error {
	return WithTx(r.db, func(tx *sql.Tx) error {
		var dupCat sql.NullString
		if err := tx.QueryRowContext(ctx,
			`SELECT default_category_id FROM payee_rules WHERE payee_id = ?`, payeeID).Scan(&dupCat); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE payee_rules SET duplicate_of = ?, updated_at=CURRENT_TIMESTAMP WHERE payee_id = ?`,
			primaryID, payeeID); err != nil {
			return err
		}
		if dupCat.Valid {
			if _, err := tx.ExecContext(ctx, `
			UPDATE payee_rules SET default_category_id = ?, updated_at=CURRENT_TIMESTAMP
			WHERE payee_id = ? AND default_category_id IS NULL`,
				dupCat.String, primaryID); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func orEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func dedupeOrdered(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
