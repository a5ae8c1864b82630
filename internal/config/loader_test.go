package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadFrom_DefaultsAndExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("FABLE_DEEPL_KEY", "deepl-secret")
	writeFile(t, dir, "config.yaml", `
app:
  name: fable
translation:
  primary:
    api_key: ${FABLE_DEEPL_KEY}
  fallback:
    api_key: ${FABLE_GOOGLE_KEY:google-default}
`)
	writeFile(t, dir, "config.test.yaml", `
quota:
  free_monthly_limit: 5
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "fable", cfg.App.Name)
	assert.Equal(t, "deepl-secret", cfg.Translation.Primary.APIKey)
	assert.Equal(t, "google-default", cfg.Translation.Fallback.APIKey)
	assert.Equal(t, 5, cfg.Quota.FreeMonthlyLimit)
	assert.Equal(t, 3, cfg.Translation.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.Translation.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Generation.EnqueueTimeout)
	assert.Equal(t, "X-User-ID", cfg.Security.UserHeader)
}

func TestLoadFrom_MissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}

func TestLoadFrom_RejectsNegativeQuota(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	writeFile(t, dir, "config.yaml", "quota:\n  free_monthly_limit: -1\n")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "free_monthly_limit")
}

func TestExpandEnv_LeavesUnknownPlaceholder(t *testing.T) {
	assert.Equal(t, "${FABLE_UNSET_VAR}", expandEnv("${FABLE_UNSET_VAR}"))
}

func TestGenerationProvider(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{DefaultProvider: "openai"}}
	assert.Equal(t, "openai", cfg.GenerationProvider())
	cfg.Generation.Provider = "deepseek"
	assert.Equal(t, "deepseek", cfg.GenerationProvider())
}
