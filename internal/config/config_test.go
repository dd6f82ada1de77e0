package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/common"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("SPICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, names := range apiKeyEnv {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearKeys(t)

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/spice/spice.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(home, ".local/share/spice/models"), cfg.Models.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, int64(10_000_000), cfg.Import.LargeAmountThreshold)
	assert.InDelta(t, 0.5, cfg.Dedupe.ProbableThreshold, 1e-9)
	assert.Equal(t, 1, cfg.Dedupe.MaxDayDistance)
	assert.InDelta(t, 0.70, cfg.Categorize.Tier2MinConfidence, 1e-9)
	assert.Equal(t, 10, cfg.Categorize.BatchSize)
	assert.Equal(t, 4, cfg.Categorize.Concurrency)
	assert.Equal(t, 1, cfg.Learning.MappingThreshold)
	assert.Equal(t, 30*time.Second, cfg.LLM.OpenAI.Timeout)
	assert.Equal(t, 40, cfg.LLM.Anthropic.RequestsPerMinute)
	assert.Equal(t, time.Hour, cfg.LLM.QuotaCooldown)
	assert.False(t, cfg.LLM.OpenAI.Enabled())
	assert.Equal(t, DefaultCatalog(), cfg.Models.Catalog)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	clearKeys(t)
	t.Setenv("SPICE_CATEGORIZE_BATCH_SIZE", "25")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := Load(newViper(t, `
database:
  path: /tmp/spice-test.db
llm:
  openai:
    api_key: sk-file
    model: gpt-4o-mini
    timeout: 5s
  quota_cooldown: 10m
dedupe:
  probable_threshold: 0.6
models:
  catalog:
    - id: tiny
      name: Tiny
      url: https://example.com/tiny.gguf
      sha256: abc
      size_bytes: 42
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/spice-test.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Categorize.BatchSize)
	assert.Equal(t, "sk-file", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.OpenAI.Timeout)
	assert.Equal(t, "sk-ant-env", cfg.LLM.Anthropic.APIKey)
	assert.True(t, cfg.LLM.Anthropic.Enabled())
	assert.False(t, cfg.LLM.Gemini.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.LLM.QuotaCooldown)
	assert.InDelta(t, 0.6, cfg.Dedupe.ProbableThreshold, 1e-9)

	require.Len(t, cfg.Models.Catalog, 1)
	entry, ok := cfg.FindModel("tiny")
	require.True(t, ok)
	assert.Equal(t, ModelEntry{ID: "tiny", Name: "Tiny", URL: "https://example.com/tiny.gguf", SHA256: "abc", SizeBytes: 42}, entry)
	_, ok = cfg.FindModel("missing")
	assert.False(t, ok)
}

func TestLoad_ConfiguredKeyBeatsEnvironment(t *testing.T) {
	clearKeys(t)
	t.Setenv("GOOGLE_API_KEY", "google-env")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "google-env", cfg.LLM.Gemini.APIKey)

	t.Setenv("SPICE_LLM_GEMINI_API_KEY", "spice-env")
	cfg, err = Load(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "spice-env", cfg.LLM.Gemini.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	clearKeys(t)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"threshold above one", "dedupe:\n  probable_threshold: 1.5\n", "dedupe.probable_threshold"},
		{"zero batch size", "categorize:\n  batch_size: 0\n", "categorize.batch_size"},
		{"negative concurrency", "categorize:\n  concurrency: -1\n", "categorize.concurrency"},
		{"zero mapping threshold", "learning:\n  mapping_threshold: 0\n", "learning.mapping_threshold"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"catalog without url", "models:\n  catalog:\n    - id: x\n", "models.catalog[0]"},
		{
			"duplicate catalog ids",
			"models:\n  catalog:\n    - {id: x, url: http://a}\n    - {id: x, url: http://b}\n",
			"duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Config{Logging: LoggingConfig{Level: "info", Format: "json"}, Database: DatabaseConfig{Path: "x.db"}}
	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"import.large_amount_threshold", "dedupe.probable_threshold", "categorize.batch_size"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SPICE_TEST_DIR", "/data")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/spice.db", filepath.Join(home, "spice.db")},
		{"$SPICE_TEST_DIR/spice.db", "/data/spice.db"},
		{"/abs/path", "/abs/path"},
		{"~other/file", "~other/file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestEnsureParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "spice.db")
	require.NoError(t, EnsureParentDir(path))
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
