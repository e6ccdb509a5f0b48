package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrideByEnv(t *testing.T) {
	t.Run("documented variable names", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/phyrisk")
		t.Setenv("JWT_SECRET_KEY", "s3cret")
		t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg := defaultConfig()
		overrideByEnv(cfg)

		assert.Equal(t, "postgres://u:p@localhost:5432/phyrisk", cfg.Database.URL)
		assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
		assert.Equal(t, 15, cfg.Auth.JWTExpireMinute)
		assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	})

	t.Run("LLM_API_KEY wins over OPENAI_API_KEY", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-openai")
		t.Setenv("LLM_API_KEY", "sk-llm")

		cfg := defaultConfig()
		overrideByEnv(cfg)

		assert.Equal(t, "sk-llm", cfg.LLM.APIKey)
	})

	t.Run("bad numbers keep defaults", func(t *testing.T) {
		t.Setenv("APP_PORT", "eighty")
		t.Setenv("MODEL_LOW_THRESHOLD", "low")

		cfg := defaultConfig()
		overrideByEnv(cfg)

		assert.Equal(t, 8000, cfg.App.Port)
		assert.Equal(t, 0.33, cfg.Model.LowThreshold)
	})

	t.Run("admin email list", func(t *testing.T) {
		t.Setenv("ADMIN_EMAILS", " a@x.io, ,b@x.io ")

		cfg := defaultConfig()
		overrideByEnv(cfg)

		assert.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.Auth.AdminEmails)
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
port = 9000

[model]
low_threshold = 0.2
high_threshold = 0.8

[storage]
max_upload_mb = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 0.2, cfg.Model.LowThreshold)
	assert.Equal(t, 0.8, cfg.Model.HighThreshold)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "sqlite:///./dev.db", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Model.LowThreshold = 0.7
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.App.Env = "production"
	assert.Error(t, cfg.Validate(), "default jwt secret must be rejected in production")

	cfg.Auth.JWTSecret = "real-secret"
	assert.NoError(t, cfg.Validate())
}
