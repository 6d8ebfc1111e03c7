package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermate/internal/engine"
)

func setupPayeeRepo(t *testing.T) (*PayeeRepo, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("migrations")
	require.NoError(t, err)
	require.NoError(t, Migrate(dbPath, migrations))

	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPayeeRepo(db), ctx
}

func TestPayeeRepo_UpsertAndGet(t *testing.T) {
	t.Parallel()
	repo, ctx := setupPayeeRepo(t)

	cat := "cat-groceries"
	rule := engine.PayeeRule{
		PayeeID:           "p1",
		RawName:           "COLES 0412",
		DisplayName:       "Coles",
		NormalizedName:    "coles",
		DefaultCategoryID: &cat,
		Tags:              []string{"supermarket", "weekly"},
		LastSeen:          time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TransactionCount:  12,
	}
	require.NoError(t, repo.Upsert(ctx, rule))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Coles", got.DisplayName)
	require.Equal(t, "coles", got.NormalizedName)
	require.NotNil(t, got.DefaultCategoryID)
	require.Equal(t, cat, *got.DefaultCategoryID)
	require.Equal(t, []string{"supermarket", "weekly"}, got.Tags)
	require.Equal(t, 12, got.TransactionCount)
	require.Equal(t, "2024-03-01", got.LastSeen.UTC().Format("2006-01-02"))
}

func TestPayeeRepo_UpsertReplaces(t *testing.T) {
	t.Parallel()
	repo, ctx := setupPayeeRepo(t)

	rule := engine.PayeeRule{PayeeID: "p1", RawName: "Coles", DisplayName: "Coles", NormalizedName: "coles", TransactionCount: 1}
	require.NoError(t, repo.Upsert(ctx, rule))
	rule.TransactionCount = 5
	require.NoError(t, repo.Upsert(ctx, rule))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 5, got.TransactionCount)

	all, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPayeeRepo_GetMissing(t *testing.T) {
	t.Parallel()
	repo, ctx := setupPayeeRepo(t)

	got, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPayeeRepo_ListOrderAndDuplicateFilter(t *testing.T) {
	t.Parallel()
	repo, ctx := setupPayeeRepo(t)

	require.NoError(t, repo.Upsert(ctx, engine.PayeeRule{PayeeID: "p1", RawName: "A", DisplayName: "A", NormalizedName: "a", TransactionCount: 3}))
	require.NoError(t, repo.Upsert(ctx, engine.PayeeRule{PayeeID: "p2", RawName: "B", DisplayName: "B", NormalizedName: "b", TransactionCount: 9}))
	require.NoError(t, repo.Upsert(ctx, engine.PayeeRule{PayeeID: "p3", RawName: "C", DisplayName: "C", NormalizedName: "c", TransactionCount: 1}))
	require.NoError(t, repo.MarkDuplicate(ctx, "p3", "p2"))

	active, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "p2", active[0].PayeeID, "ordered by usage")
	require.Equal(t, "p1", active[1].PayeeID)

	all, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestPayeeRepo_MarkDuplicateInheritsCategory(t *testing.T) {
	t.Parallel()
	repo, ctx := setupPayeeRepo(t)

	cat := "cat-shopping"
	require.NoError(t, repo.Upsert(ctx, engine.PayeeRule{PayeeID: "primary", RawName: "Amazon", DisplayName: "Amazon", NormalizedName: "amazon", TransactionCount: 10}))
	require.NoError(t, repo.Upsert(ctx, engine.PayeeRule{PayeeID: "dup", RawName: "AMAZON", DisplayName: "AMAZON", NormalizedName: "amazon", DefaultCategoryID: &cat, TransactionCount: 2}))

	require.NoError(t, repo.MarkDuplicate(ctx, "dup", "primary"))

	dup, err := repo.Get(ctx, "dup")
	require.NoError(t, err)
	require.NotNil(t, dup.DuplicateOf)
	require.Equal(t, "primary", *dup.DuplicateOf)

	primary, err := repo.Get(ctx, "primary")
	require.NoError(t, err)
	require.NotNil(t, primary.DefaultCategoryID, "primary inherits the duplicate's default category")
	require.Equal(t, cat, *primary.DefaultCategoryID)
}

func TestPayeeRepo_SetTagsDedupes(t *testing.T) {
	t.Parallel()
	repo, ctx := setupPayeeRepo(t)

	require.NoError(t, repo.Upsert(ctx, engine.PayeeRule{PayeeID: "p1", RawName: "X", DisplayName: "X", NormalizedName: "x"}))
	require.NoError(t, repo.SetTags(ctx, "p1", []string{"fuel", "car", "fuel", ""}))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"fuel", "car"}, got.Tags)
}
