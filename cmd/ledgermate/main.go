package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jask/ledgermate/internal/budget"
	"github.com/jask/ledgermate/internal/cache"
	"github.com/jask/ledgermate/internal/config"
	"github.com/jask/ledgermate/internal/engine"
	"github.com/jask/ledgermate/internal/llm"
	"github.com/jask/ledgermate/internal/service"
	"github.com/jask/ledgermate/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginTop(1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	confStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Log)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}
	if err := store.Migrate(cfg.Database.Path, "internal/store/migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	token := cfg.ResolveToken()
	if token == "" {
		log.Fatalf("no budgeting-service token; set %s", cfg.Budget.TokenEnv)
	}
	client := budget.NewClient(cfg.Budget.BaseURL, cfg.Budget.BudgetID, token)

	logger.Info("fetching budget data", "budget", cfg.Budget.BudgetID)
	txs, err := client.Transactions(ctx)
	if err != nil {
		log.Fatalf("fetch transactions: %v", err)
	}
	accounts, err := client.Accounts(ctx)
	if err != nil {
		log.Fatalf("fetch accounts: %v", err)
	}
	payees, err := client.Payees(ctx)
	if err != nil {
		log.Fatalf("fetch payees: %v", err)
	}
	categories, err := client.Categories(ctx)
	if err != nil {
		log.Fatalf("fetch categories: %v", err)
	}
	logger.Info("snapshot loaded",
		"transactions", len(txs), "accounts", len(accounts),
		"payees", len(payees), "categories", len(categories))

	payeeRepo := store.NewPayeeRepo(db)
	sync := &service.PayeeSync{Payees: payeeRepo, Log: logger}
	if _, err := sync.Sync(ctx, payees, txs); err != nil {
		log.Fatalf("sync payee rules: %v", err)
	}
	rules, err := payeeRepo.List(ctx, false)
	if err != nil {
		log.Fatalf("list payee rules: %v", err)
	}

	transfers := engine.DetectTransfers(txs, accounts)
	groups := engine.FindDuplicateGroups(rules)
	patterns := engine.BuildPayeePatterns(txs, categories)

	printTransfers(transfers)
	printDuplicates(groups)
	printPatterns(patterns)

	respCache := cache.New(cfg.Cache.Path,
		cache.WithTTL(time.Duration(cfg.Cache.TTLDays)*24*time.Hour))
	if purged := respCache.CleanupAll(); purged > 0 {
		logger.Info("cache cleanup", "purged", purged)
	}

	categorizer := &service.Categorizer{
		Provider: provider(cfg, logger),
		Cache:    respCache,
		Log:      logger,
	}
	suggestions := categorizer.CategorizeBatch(ctx, txs, accounts, categories, patterns)
	printSuggestions(suggestions)
}

func provider(cfg config.Config, logger *slog.Logger) llm.Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "openai":
		if key := cfg.ResolveAPIKey(); key != "" {
			return llm.NewOpenAIProvider(key, cfg.LLM.Model)
		}
		logger.Warn("no api key configured, falling back to local heuristics")
		return llm.NewLocalProvider()
	default:
		return llm.NewLocalProvider()
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func printTransfers(pairs []engine.TransferPair) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Likely transfers (%d)", len(pairs))))
	if len(pairs) == 0 {
		fmt.Println(dimStyle.Render("  none detected"))
		return
	}
	for _, p := range pairs {
		fmt.Printf("  %s → %s  %s  %s %s\n",
			p.FromAccount.Name, p.ToAccount.Name,
			milli(p.Outflow.Amount),
			p.Outflow.Date.Format(budget.DateLayout),
			confStyle.Render(fmt.Sprintf("%.0f%%", p.Confidence*100)))
	}
}

func printDuplicates(groups []engine.DuplicateGroup) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Duplicate payees (%d groups)", len(groups))))
	if len(groups) == 0 {
		fmt.Println(dimStyle.Render("  none detected"))
		return
	}
	for _, g := range groups {
		names := make([]string, 0, len(g.Duplicates))
		for _, d := range g.Duplicates {
			names = append(names, d.DisplayName)
		}
		fmt.Printf("  %s  ⇐  %s  %s\n",
			g.Primary.DisplayName, strings.Join(names, ", "),
			confStyle.Render(fmt.Sprintf("%.0f%%", g.Similarity*100)))
	}
}

func printPatterns(patterns []engine.PayeePattern) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Learned payee patterns (%d)", len(patterns))))
	limit := len(patterns)
	if limit > 15 {
		limit = 15
	}
	for _, p := range patterns[:limit] {
		fmt.Printf("  %-30s %-20s ×%-3d %s\n",
			p.PayeeName, p.CategoryName, p.Occurrences,
			dimStyle.Render(fmt.Sprintf("%.2f", p.Confidence)))
	}
}

func printSuggestions(suggs []service.Suggestion) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Category suggestions (%d)", len(suggs))))
	for _, s := range suggs {
		if s.Err != nil {
			fmt.Printf("  %s  %s\n", s.TransactionID, warnStyle.Render("failed: "+s.Err.Error()))
			continue
		}
		if s.CategoryID == "" {
			continue
		}
		fmt.Printf("  %s  %-20s %s %s\n",
			s.TransactionID, s.CategoryName,
			confStyle.Render(fmt.Sprintf("%.0f%%", s.Confidence*100)),
			dimStyle.Render("("+s.Source+")"))
	}
}

func milli(amount int64) string {
	if amount < 0 {
		amount = -amount
	}
	return fmt.Sprintf("$%d.%02d", amount/1000, (amount%1000)/10)
}
