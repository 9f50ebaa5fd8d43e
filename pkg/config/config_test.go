package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inConfigDir writes config.yaml into a temp dir and makes it the working directory.
func inConfigDir(t *testing.T, yamlContent string) string {
	t.Helper()
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644))

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() {
		_ = os.Chdir(originalDir)
	})

	for _, key := range []string{"PORT", "BASE_URL", "PGHOST", "ENVIRONMENT", "QUOTA_FREE_DAILY_LIMIT", "LLM_API_KEY", "AUTH_PRIVILEGED_ROLES"} {
		os.Unsetenv(key)
	}
	return tmpDir
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	inConfigDir(t, `
port: "3480"
env: "test"
database:
  host: "db.example.com"
quota:
  free_daily_limit: 5
`)
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LLM_API_KEY", "sk-from-env")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "4443", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:4443", cfg.BaseURL)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 5, cfg.Quota.FreeDailyLimit)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoad_Defaults(t *testing.T) {
	inConfigDir(t, `env: "test"`)

	cfg, err := Load("v")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 120*time.Second, cfg.LLM.GenerationTimeout)
	assert.Equal(t, 3, cfg.Quota.FreeDailyLimit)
	assert.Equal(t, 10*time.Minute, cfg.Quota.ReservationTTL)
	assert.Equal(t, 3, cfg.Pipeline.EnhancementMinElements)
	assert.Equal(t, 4, cfg.Pipeline.VerificationMinElements)
	assert.Equal(t, 5, cfg.Pipeline.RefinementMinElements)
	assert.Equal(t, 6, cfg.Pipeline.MaxIconAdditions)
	assert.Equal(t, 0.5, cfg.Pipeline.CoverageWarnRatio)
	assert.Equal(t, []string{"pro", "admin"}, cfg.Auth.PrivilegedRoles)
	assert.Empty(t, cfg.Redis.Addr(), "redis disabled by default")
	assert.Equal(t, "http://localhost:3480", cfg.BaseURL)
}

func TestLoad_ApiKeyIgnoredInYAML(t *testing.T) {
	inConfigDir(t, `
llm:
  api_key: "sk-should-not-load"
  model: "gpt-4o-mini"
`)

	cfg, err := Load("v")
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoad_BaseURLExplicit(t *testing.T) {
	inConfigDir(t, `base_url: "http://canvas.internal:8080"`)

	cfg, err := Load("v")
	require.NoError(t, err)
	assert.Equal(t, "http://canvas.internal:8080", cfg.BaseURL)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalDir) })

	_, err = Load("v")
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("QUOTA_FREE_DAILY_LIMIT", "7")
	t.Setenv("AUTH_PRIVILEGED_ROLES", "pro,staff")
	os.Unsetenv("BASE_URL")

	cfg, err := LoadFromEnv("v")
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 7, cfg.Quota.FreeDailyLimit)
	assert.Equal(t, []string{"pro", "staff"}, cfg.Auth.PrivilegedRoles)
}

func TestLoad_InvalidLimits(t *testing.T) {
	inConfigDir(t, `
limits:
  max_text_chars: -1
`)

	_, err := Load("v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_text_chars")
}

func TestValidateLimits(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Limits: LimitsConfig{MaxTextChars: 100, MaxImageBytes: 100, MaxUploadBytes: 100},
			Quota:  QuotaConfig{FreeDailyLimit: 3, ReservationTTL: time.Minute},
			LLM: LLMConfig{
				MaxTokens:           1000,
				GenerationTimeout:   time.Minute,
				EnhancementTimeout:  time.Minute,
				VerificationTimeout: time.Minute,
				RefinementTimeout:   time.Minute,
			},
		}
	}
	require.NoError(t, valid().validateLimits())

	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"generation_timeout", func(c *Config) { c.LLM.GenerationTimeout = 0 }},
		{"enhancement_timeout", func(c *Config) { c.LLM.EnhancementTimeout = 0 }},
		{"verification_timeout", func(c *Config) { c.LLM.VerificationTimeout = -time.Second }},
		{"refinement_timeout", func(c *Config) { c.LLM.RefinementTimeout = 0 }},
		{"reservation_ttl", func(c *Config) { c.Quota.ReservationTTL = 0 }},
		{"reservation_ttl", func(c *Config) { c.Quota.ReservationTTL = -time.Minute }},
		{"free_daily_limit", func(c *Config) { c.Quota.FreeDailyLimit = -1 }},
		{"max_tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validateLimits()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateTLS(t *testing.T) {
	t.Run("both provided", func(t *testing.T) {
		dir := t.TempDir()
		cert := filepath.Join(dir, "cert.pem")
		key := filepath.Join(dir, "key.pem")
		require.NoError(t, os.WriteFile(cert, []byte("c"), 0644))
		require.NoError(t, os.WriteFile(key, []byte("k"), 0644))
		inConfigDir(t, fmt.Sprintf("tls_cert_path: %q\ntls_key_path: %q\n", cert, key))

		cfg, err := Load("v")
		require.NoError(t, err)
		assert.Equal(t, "https://localhost:3480", cfg.BaseURL)
	})

	t.Run("only cert", func(t *testing.T) {
		dir := t.TempDir()
		cert := filepath.Join(dir, "cert.pem")
		require.NoError(t, os.WriteFile(cert, []byte("c"), 0644))
		inConfigDir(t, fmt.Sprintf("tls_cert_path: %q\n", cert))

		_, err := Load("v")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be provided together")
	})

	t.Run("missing files", func(t *testing.T) {
		inConfigDir(t, "tls_cert_path: \"/nonexistent/cert.pem\"\ntls_key_path: \"/nonexistent/key.pem\"\n")

		_, err := Load("v")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})
}

func TestParseJWKSEndpoints(t *testing.T) {
	got := parseJWKSEndpoints("https://a.example=https://a.example/jwks.json, https://b.example=https://b.example/keys?v=2")
	assert.Equal(t, map[string]string{
		"https://a.example": "https://a.example/jwks.json",
		"https://b.example": "https://b.example/keys?v=2",
	}, got)

	assert.Empty(t, parseJWKSEndpoints(""))
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db.internal", Port: 5433, User: "u", Password: "p", Database: "canvas", SSLMode: "require"}
	assert.Equal(t, "host=db.internal port=5433 user=u password=p dbname=canvas sslmode=require", c.ConnectionString())
}

func TestConfig_ListenAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:3480", (&Config{BindAddr: "127.0.0.1", Port: "3480"}).ListenAddr())
	assert.Equal(t, "[::1]:3480", (&Config{BindAddr: "::1", Port: "3480"}).ListenAddr())
	assert.Equal(t, ":8080", (&Config{Port: "8080"}).ListenAddr())
}

func TestConfig_IsLocal(t *testing.T) {
	assert.True(t, (&Config{Env: "local"}).IsLocal())
	assert.False(t, (&Config{Env: "production"}).IsLocal())
}
