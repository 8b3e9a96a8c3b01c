package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "review-insights/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"OPENAI_MODEL", "ANALYZE_BATCH_SIZE", "OPENAI_TARGET_RPM", "ANALYZE_PROVIDER_RATIO"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "gpt-4o-mini-2024-07-18", cfg.OpenAIModel)
	assert.Equal(t, 5, cfg.AnalyzeBatchSize)
	assert.Equal(t, 10, cfg.AnalyzeDefaultLimit)
	assert.Equal(t, 500, cfg.AnalyzeMaxLimit)
	assert.Equal(t, 4000, cfg.TargetRPM)
	assert.Equal(t, 1600000, cfg.TargetTPM)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 8*time.Second, cfg.BackoffMax)
	assert.Equal(t, 50*time.Millisecond, cfg.AnalyzePostBatchDelay)
	assert.InDelta(t, 0.5, cfg.AnalyzeProviderRatio, 1e-9)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ANALYZE_BATCH_SIZE", "8")
	t.Setenv("OPENAI_BACKOFF_MAX_MS", "2000")
	t.Setenv("ANALYZE_MODEL_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg := Load()
	assert.Equal(t, 8, cfg.AnalyzeBatchSize)
	assert.Equal(t, 2*time.Second, cfg.BackoffMax)
	assert.Equal(t, "gemini", cfg.ModelProvider)
	assert.Equal(t, "g-key", cfg.ModelAPIKey())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Load()
	cfg.DatabaseURL = ""
	cfg.DBDriver = "oracle"
	cfg.AnalyzeBatchSize = 0
	cfg.BackoffMax = cfg.BackoffBase / 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrValidation))
	for _, key := range []string{"DATABASE_URL", "DB_DRIVER", "ANALYZE_BATCH_SIZE", "OPENAI_BACKOFF_MAX_MS"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidateAllowsMissingModelKey(t *testing.T) {
	cfg := Load()
	cfg.DatabaseURL = "postgres://u:p@localhost/db"
	cfg.OpenAIAPIKey = ""
	cfg.AdminPort = "6061"
	assert.NoError(t, cfg.Validate())
}

func TestSummaryMasksSecrets(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "sk-1234567890", DatabaseURL: "postgres://user:secret@db/reviews"}
	sum := cfg.GetConfigSummary()
	assert.Equal(t, "sk-123*******", sum["openai_api_key"])
	assert.NotContains(t, sum["database_url"], "secret")
}

func TestWatcherReloadPublishesChangedKeys(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("ANALYZE_BATCH_SIZE", "5")
	t.Setenv("ADMIN_PORT", "6061")

	dir := t.TempDir()
	path := filepath.Join(dir, "app.env")
	require.NoError(t, os.WriteFile(path, []byte("ANALYZE_BATCH_SIZE=7\n"), 0o600))

	w := NewWatcher(path, Load(), nil)
	defer w.Close()
	ch := w.Subscribe()

	w.Reload()

	select {
	case chg := <-ch:
		require.NoError(t, chg.Err)
		assert.Equal(t, []string{"ANALYZE_BATCH_SIZE"}, chg.Fields)
		assert.Equal(t, 7, chg.New.AnalyzeBatchSize)
		assert.Equal(t, 5, chg.Old.AnalyzeBatchSize)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
	assert.Equal(t, 7, w.Current().AnalyzeBatchSize)
}

func TestWatcherRejectsInvalidReload(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("ANALYZE_BATCH_SIZE", "5")
	t.Setenv("ADMIN_PORT", "6061")

	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte("ANALYZE_BATCH_SIZE=500\n"), 0o600))

	w := NewWatcher(path, Load(), nil)
	defer w.Close()
	ch := w.Subscribe()
	w.Reload()

	chg := <-ch
	require.Error(t, chg.Err)
	assert.True(t, strings.Contains(chg.Err.Error(), "ANALYZE_BATCH_SIZE"))
	assert.Equal(t, 5, w.Current().AnalyzeBatchSize)
}
