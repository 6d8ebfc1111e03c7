package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Budget   BudgetConfig
	Database DatabaseConfig
	Cache    CacheConfig
	LLM      LLMConfig
	Log      LogConfig
}

// BudgetConfig holds budgeting-service settings.
type BudgetConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	BudgetID string `mapstructure:"budget_id"`
	TokenEnv string `mapstructure:"token_env"`
	Token    string
}

// DatabaseConfig holds sqlite settings for the payee-rule store.
type DatabaseConfig struct {
	Path string
}

// CacheConfig holds response-cache settings.
type CacheConfig struct {
	Path    string
	TTLDays int `mapstructure:"ttl_days"`
}

// LLMConfig holds completion-provider settings.
type LLMConfig struct {
	Provider  string
	APIKeyEnv string `mapstructure:"api_key_env"`
	APIKey    string `mapstructure:"api_key"`
	Model     string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from file and env. Env var overrides use
// prefix LEDGERMATE_.
func Load() (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgermate")
	v.SetDefault("budget.base_url", "https://api.ynab.com/v1")
	v.SetDefault("budget.budget_id", "last-used")
	v.SetDefault("budget.token_env", "LEDGERMATE_BUDGET_TOKEN")
	v.SetDefault("budget.token", "")
	v.SetDefault("database.path", filepath.Join(dataDir, "ledgermate.db"))
	v.SetDefault("cache.path", filepath.Join(dataDir, "ai-cache.json"))
	v.SetDefault("cache.ttl_days", 30)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERMATE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgermate"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERMATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// ResolveToken returns the budgeting-service token, preferring the
// named env var over the config file value.
func (c Config) ResolveToken() string {
	if env := strings.TrimSpace(c.Budget.TokenEnv); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.Budget.Token)
}

// ResolveAPIKey returns the completion-provider key, preferring the
// named env var over the config file value.
func (c Config) ResolveAPIKey() string {
	if env := strings.TrimSpace(c.LLM.APIKeyEnv); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.LLM.APIKey)
}
