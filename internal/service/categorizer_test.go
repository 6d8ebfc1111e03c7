package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermate/internal/budget"
	"github.com/jask/ledgermate/internal/cache"
	"github.com/jask/ledgermate/internal/engine"
	"github.com/jask/ledgermate/internal/llm"
)

// fakeProvider scripts responses per payee name and records call
// volume so tests can assert on caching and concurrency behavior.
type fakeProvider struct {
	mu        sync.Mutex
	responses map[string]llm.CategorizeResponse
	failFor   map[string]bool
	calls     int32
	inFlight  int32
	maxFlight int32
	delay     time.Duration
}

func (f *fakeProvider) Categorize(_ context.Context, req llm.CategorizeRequest) (llm.CategorizeResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxFlight, prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[req.Transaction.PayeeName] {
		return llm.CategorizeResponse{}, fmt.Errorf("provider unavailable")
	}
	return f.responses[req.Transaction.PayeeName], nil
}

func (f *fakeProvider) SuggestTags(_ context.Context, req llm.TagRequest) (llm.TagResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	return llm.TagResponse{Tags: []string{"auto"}}, nil
}

var (
	batchAccounts   = []budget.Account{{ID: "acc-a", Name: "Checking"}}
	batchCategories = []budget.Category{
		{ID: "cat-groceries", Name: "Groceries"},
		{ID: "cat-transport", Name: "Transport"},
	}
)

func uncategorized(id, payee string) budget.Transaction {
	return budget.Transaction{
		ID:        id,
		Date:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Amount:    -12500,
		AccountID: "acc-a",
		PayeeName: payee,
	}
}

func newTestCacheFile(t *testing.T) *cache.Cache {
	t.Helper()
	return cache.New(filepath.Join(t.TempDir(), "cache.json"))
}

func TestCategorizeBatch_PatternPriorSkipsProvider(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}

	patterns := []engine.PayeePattern{{
		PayeeName:      "Coles",
		NormalizedName: "coles",
		CategoryID:     "cat-groceries",
		CategoryName:   "Groceries",
		Occurrences:    8,
		Confidence:     1.0,
	}}

	suggs := c.CategorizeBatch(context.Background(),
		[]budget.Transaction{uncategorized("t1", "Coles")},
		batchAccounts, batchCategories, patterns)

	require.Len(t, suggs, 1)
	require.Equal(t, "pattern", suggs[0].Source)
	require.Equal(t, "cat-groceries", suggs[0].CategoryID)
	require.Equal(t, int32(0), atomic.LoadInt32(&provider.calls), "strong prior answers without the provider")
}

func TestCategorizeBatch_WeakPatternGoesToProvider(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{responses: map[string]llm.CategorizeResponse{
		"Coles": {Category: "Groceries", Confidence: 0.9},
	}}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}

	// confident enough but too few uses
	patterns := []engine.PayeePattern{{
		PayeeName: "Coles", NormalizedName: "coles",
		CategoryID: "cat-groceries", CategoryName: "Groceries",
		Occurrences: 1, Confidence: 1.0,
	}}

	suggs := c.CategorizeBatch(context.Background(),
		[]budget.Transaction{uncategorized("t1", "Coles")},
		batchAccounts, batchCategories, patterns)

	require.Len(t, suggs, 1)
	require.Equal(t, "llm", suggs[0].Source)
	require.Equal(t, "cat-groceries", suggs[0].CategoryID)
	require.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestCategorizeBatch_SecondRunServedFromCache(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{responses: map[string]llm.CategorizeResponse{
		"Uber": {Category: "Transport", Confidence: 0.8},
	}}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}
	txs := []budget.Transaction{uncategorized("t1", "Uber")}

	first := c.CategorizeBatch(context.Background(), txs, batchAccounts, batchCategories, nil)
	require.Equal(t, "llm", first[0].Source)

	second := c.CategorizeBatch(context.Background(), txs, batchAccounts, batchCategories, nil)
	require.Equal(t, "cache", second[0].Source)
	require.Equal(t, first[0].CategoryID, second[0].CategoryID)
	require.Equal(t, int32(1), atomic.LoadInt32(&provider.calls), "cached result must not trigger a second call")
}

func TestCategorizeBatch_FailureIsolation(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		responses: map[string]llm.CategorizeResponse{
			"Uber": {Category: "Transport", Confidence: 0.8},
		},
		failFor: map[string]bool{"Broken": true},
	}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}

	suggs := c.CategorizeBatch(context.Background(),
		[]budget.Transaction{
			uncategorized("t1", "Broken"),
			uncategorized("t2", "Uber"),
		},
		batchAccounts, batchCategories, nil)

	require.Len(t, suggs, 2)
	require.Error(t, suggs[0].Err)
	require.NoError(t, suggs[1].Err)
	require.Equal(t, "cat-transport", suggs[1].CategoryID, "sibling unaffected by the failure")
}

func TestCategorizeBatch_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		responses: map[string]llm.CategorizeResponse{},
		delay:     20 * time.Millisecond,
	}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t), Width: 3}

	var txs []budget.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, uncategorized(fmt.Sprintf("t%d", i), fmt.Sprintf("Payee %d", i)))
	}

	c.CategorizeBatch(context.Background(), txs, batchAccounts, batchCategories, nil)
	require.LessOrEqual(t, atomic.LoadInt32(&provider.maxFlight), int32(3))
	require.Equal(t, int32(12), atomic.LoadInt32(&provider.calls))
}

func TestCategorizeBatch_UnknownCategoryFromModel(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{responses: map[string]llm.CategorizeResponse{
		"Mystery": {Category: "Not A Real Category", Confidence: 0.99},
	}}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}

	suggs := c.CategorizeBatch(context.Background(),
		[]budget.Transaction{uncategorized("t1", "Mystery")},
		batchAccounts, batchCategories, nil)

	require.Len(t, suggs, 1)
	require.NoError(t, suggs[0].Err)
	require.Empty(t, suggs[0].CategoryID, "hallucinated category names are discarded")
}

func TestCategorizeBatch_SkipsCategorizedDeletedNameless(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}

	cat := "cat-groceries"
	done := uncategorized("t1", "Coles")
	done.CategoryID = &cat
	gone := uncategorized("t2", "Coles")
	gone.Deleted = true
	nameless := uncategorized("t3", "")

	suggs := c.CategorizeBatch(context.Background(),
		[]budget.Transaction{done, gone, nameless},
		batchAccounts, batchCategories, nil)

	require.Empty(t, suggs)
	require.Equal(t, int32(0), atomic.LoadInt32(&provider.calls))
}

func TestSuggestTags_CachesResult(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	c := &Categorizer{Provider: provider, Cache: newTestCacheFile(t)}
	tx := uncategorized("t1", "Shell")

	first := c.SuggestTags(context.Background(), tx, "Checking", []string{"fuel"})
	require.Equal(t, []string{"auto"}, first)

	second := c.SuggestTags(context.Background(), tx, "Checking", []string{"fuel"})
	require.Equal(t, first, second)
	require.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}
