package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/privacydesk/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, config.StoragePostgres, cfg.Storage)
	assert.Equal(t, 48*time.Hour, cfg.Requests.TokenTTL)
	assert.Equal(t, "gdpr", cfg.Requests.MetaPrefix)
	assert.Equal(t, "gdpr_requests", cfg.Requests.Namespace)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("GDPR_TOKEN_TTL", "24h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("WORKER_BATCH_SIZE", "50")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, config.StorageMemory, cfg.Storage)
	assert.Equal(t, 24*time.Hour, cfg.Requests.TokenTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad storage", map[string]string{"STORAGE_BACKEND": "sqlite"}},
		{"bad env", map[string]string{"APP_ENV": "qa"}},
		{"short signing key", map[string]string{"JWT_SIGNING_KEY": "short"}},
		{"production with dev key", map[string]string{"APP_ENV": "production"}},
		{"subscription without project", map[string]string{"PUBSUB_PROJECT_ID": "proj"}},
		{"smtp without valid sender", map[string]string{"SMTP_HOST": "mail", "SMTP_FROM": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PRIVACYDESK_TEST_VALUE=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PRIVACYDESK_TEST_VALUE") })

	assert.True(t, config.LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("PRIVACYDESK_TEST_VALUE"))

	assert.False(t, config.LoadDotEnv(filepath.Join(dir, "missing.env")))
}
