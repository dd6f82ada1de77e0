package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-import/internal/common"
)

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "$HOME/.local/share/spice/spice.db"

// DefaultModelsDir is used when models.dir is unset.
const DefaultModelsDir = "$HOME/.local/share/spice/models"

// Config is the typed application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Models     ModelsConfig     `mapstructure:"models"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Import     ImportConfig     `mapstructure:"import"`
	Dedupe     DedupeConfig     `mapstructure:"dedupe"`
	Categorize CategorizeConfig `mapstructure:"categorize"`
	Learning   LearningConfig   `mapstructure:"learning"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelsConfig configures on-device model storage and the download catalog.
type ModelsConfig struct {
	Dir     string       `mapstructure:"dir"`
	Catalog []ModelEntry `mapstructure:"catalog"`
}

// ModelEntry is a downloadable model.
type ModelEntry struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	SHA256    string `mapstructure:"sha256"`
	SizeBytes int64  `mapstructure:"size_bytes"`
}

// LLMConfig holds the provider settings.
type LLMConfig struct {
	OpenAI        ProviderConfig `mapstructure:"openai"`
	Anthropic     ProviderConfig `mapstructure:"anthropic"`
	Gemini        ProviderConfig `mapstructure:"gemini"`
	OnDevice      OnDeviceConfig `mapstructure:"ondevice"`
	QuotaCooldown time.Duration  `mapstructure:"quota_cooldown"`
}

// ProviderConfig configures one cloud provider. A provider without an API key is not registered.
type ProviderConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the provider has credentials.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// OnDeviceConfig configures the local inference CLI.
type OnDeviceConfig struct {
	CLIPath string        `mapstructure:"cli_path"`
	Threads int           `mapstructure:"threads"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ImportConfig tunes validation.
type ImportConfig struct {
	// LargeAmountThreshold is in minor units.
	LargeAmountThreshold int64  `mapstructure:"large_amount_threshold"`
	Currency             string `mapstructure:"currency"`
}

// DedupeConfig tunes duplicate detection.
type DedupeConfig struct {
	ProbableThreshold float64 `mapstructure:"probable_threshold"`
	MaxDayDistance    int     `mapstructure:"max_day_distance"`
}

// CategorizeConfig tunes the categorization cascade.
type CategorizeConfig struct {
	Tier2MinConfidence    float64 `mapstructure:"tier2_min_confidence"`
	OnDeviceMinConfidence float64 `mapstructure:"ondevice_min_confidence"`
	HistoryConfidence     float64 `mapstructure:"history_confidence"`
	BatchSize             int     `mapstructure:"batch_size"`
	Concurrency           int     `mapstructure:"concurrency"`
}

// LearningConfig tunes merchant learning.
type LearningConfig struct {
	// MappingThreshold is the number of matching corrections before a mapping is created.
	MappingThreshold int `mapstructure:"mapping_threshold"`
}

// apiKeyEnv lists the conventional environment variables read when no key is configured.
var apiKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// SetDefaults registers every key with its default so environment overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("models.dir", DefaultModelsDir)

	v.SetDefault("import.large_amount_threshold", 10_000_000)
	v.SetDefault("import.currency", "EUR")

	v.SetDefault("dedupe.probable_threshold", 0.5)
	v.SetDefault("dedupe.max_day_distance", 1)

	v.SetDefault("categorize.tier2_min_confidence", 0.70)
	v.SetDefault("categorize.ondevice_min_confidence", 0.70)
	v.SetDefault("categorize.history_confidence", 0.80)
	v.SetDefault("categorize.batch_size", 10)
	v.SetDefault("categorize.concurrency", 4)

	v.SetDefault("learning.mapping_threshold", 1)

	for _, name := range []string{"openai", "anthropic", "gemini"} {
		prefix := "llm." + name + "."
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"model", "")
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"requests_per_minute", 50)
		v.SetDefault(prefix+"max_retries", 3)
		v.SetDefault(prefix+"timeout", 30*time.Second)
	}
	v.SetDefault("llm.anthropic.requests_per_minute", 40)
	v.SetDefault("llm.ondevice.cli_path", "llama-cli")
	v.SetDefault("llm.ondevice.threads", 0)
	v.SetDefault("llm.ondevice.timeout", 2*time.Minute)
	v.SetDefault("llm.quota_cooldown", time.Hour)
}

// Load builds a Config from v. Defaults must already be registered with SetDefaults.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.LLM.OpenAI.APIKey = keyOrEnv(cfg.LLM.OpenAI.APIKey, "openai")
	cfg.LLM.Anthropic.APIKey = keyOrEnv(cfg.LLM.Anthropic.APIKey, "anthropic")
	cfg.LLM.Gemini.APIKey = keyOrEnv(cfg.LLM.Gemini.APIKey, "gemini")

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Models.Dir = ExpandPath(cfg.Models.Dir)
	cfg.LLM.OnDevice.CLIPath = ExpandPath(cfg.LLM.OnDevice.CLIPath)

	if len(cfg.Models.Catalog) == 0 {
		cfg.Models.Catalog = DefaultCatalog()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func keyOrEnv(configured, provider string) string {
	if configured != "" {
		return configured
	}
	for _, name := range apiKeyEnv[provider] {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// Validate checks ranges. Every problem is reported, each wrapping common.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", common.ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Database.Path == "" {
		invalid("database.path is empty")
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		invalid("logging.level %q", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		invalid("logging.format %q must be console or json", c.Logging.Format)
	}
	if c.Import.LargeAmountThreshold <= 0 {
		invalid("import.large_amount_threshold must be positive")
	}
	if !unitInterval(c.Dedupe.ProbableThreshold) {
		invalid("dedupe.probable_threshold %v must be in (0, 1]", c.Dedupe.ProbableThreshold)
	}
	if c.Dedupe.MaxDayDistance < 0 {
		invalid("dedupe.max_day_distance must not be negative")
	}
	if !unitInterval(c.Categorize.Tier2MinConfidence) {
		invalid("categorize.tier2_min_confidence %v must be in (0, 1]", c.Categorize.Tier2MinConfidence)
	}
	if !unitInterval(c.Categorize.OnDeviceMinConfidence) {
		invalid("categorize.ondevice_min_confidence %v must be in (0, 1]", c.Categorize.OnDeviceMinConfidence)
	}
	if !unitInterval(c.Categorize.HistoryConfidence) {
		invalid("categorize.history_confidence %v must be in (0, 1]", c.Categorize.HistoryConfidence)
	}
	if c.Categorize.BatchSize <= 0 {
		invalid("categorize.batch_size must be positive")
	}
	if c.Categorize.Concurrency <= 0 {
		invalid("categorize.concurrency must be positive")
	}
	if c.Learning.MappingThreshold < 1 {
		invalid("learning.mapping_threshold must be at least 1")
	}

	seen := make(map[string]bool, len(c.Models.Catalog))
	for i, m := range c.Models.Catalog {
		if m.ID == "" || m.URL == "" {
			invalid("models.catalog[%d] needs an id and a url", i)
			continue
		}
		if seen[m.ID] {
			invalid("models.catalog has duplicate id %q", m.ID)
		}
		seen[m.ID] = true
	}

	return errors.Join(errs...)
}

func unitInterval(f float64) bool {
	return f > 0 && f <= 1
}

// FindModel returns the catalog entry with the given id.
func (c *Config) FindModel(id string) (ModelEntry, bool) {
	for _, m := range c.Models.Catalog {
		if m.ID == id {
			return m, true
		}
	}
	return ModelEntry{}, false
}

// DefaultCatalog lists the models offered when the configuration names none.
func DefaultCatalog() []ModelEntry {
	return []ModelEntry{
		{
			ID:   "qwen2.5-1.5b-instruct-q4",
			Name: "Qwen2.5 1.5B Instruct (Q4_K_M)",
			URL:  "https://huggingface.co/Qwen/Qwen2.5-1.5B-Instruct-GGUF/resolve/main/qwen2.5-1.5b-instruct-q4_k_m.gguf",
		},
		{
			ID:   "llama-3.2-3b-instruct-q4",
			Name: "Llama 3.2 3B Instruct (Q4_K_M)",
			URL:  "https://huggingface.co/bartowski/Llama-3.2-3B-Instruct-GGUF/resolve/main/Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		},
	}
}
