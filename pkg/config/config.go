package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-canvas.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	Limits   LimitsConfig   `yaml:"limits"`
	Quota    QuotaConfig    `yaml:"quota"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.ekaya.ai=https://auth.ekaya.ai/.well-known/jwks.json"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// PrivilegedRoles exempt a caller from the daily quota.
	PrivilegedRoles []string `yaml:"privileged_roles" env:"AUTH_PRIVILEGED_ROLES" env-separator:"," env-default:"pro,admin"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_canvas"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. An empty host disables Redis and
// quota reservations are held in process memory instead.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LLMConfig configures the chat-completion endpoint and per-stage call budgets.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"8000"`

	GenerationTemperature   float64 `yaml:"generation_temperature" env:"LLM_GENERATION_TEMPERATURE" env-default:"0.4"`
	EnhancementTemperature  float64 `yaml:"enhancement_temperature" env:"LLM_ENHANCEMENT_TEMPERATURE" env-default:"0.3"`
	VerificationTemperature float64 `yaml:"verification_temperature" env:"LLM_VERIFICATION_TEMPERATURE" env-default:"0.1"`
	RefinementTemperature   float64 `yaml:"refinement_temperature" env:"LLM_REFINEMENT_TEMPERATURE" env-default:"0.2"`

	GenerationTimeout   time.Duration `yaml:"generation_timeout" env:"LLM_GENERATION_TIMEOUT" env-default:"120s"`
	EnhancementTimeout  time.Duration `yaml:"enhancement_timeout" env:"LLM_ENHANCEMENT_TIMEOUT" env-default:"60s"`
	VerificationTimeout time.Duration `yaml:"verification_timeout" env:"LLM_VERIFICATION_TIMEOUT" env-default:"60s"`
	RefinementTimeout   time.Duration `yaml:"refinement_timeout" env:"LLM_REFINEMENT_TIMEOUT" env-default:"60s"`

	// Consecutive provider failures before the breaker opens, and how long it stays open.
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`
}

// LimitsConfig bounds request payloads.
type LimitsConfig struct {
	// MaxTextChars is the ceiling for raw and PDF-extracted text.
	MaxTextChars int `yaml:"max_text_chars" env:"LIMIT_MAX_TEXT_CHARS" env-default:"50000"`
	// MaxImageBytes is checked against the base64-encoded size actually sent.
	MaxImageBytes int `yaml:"max_image_bytes" env:"LIMIT_MAX_IMAGE_BYTES" env-default:"20971520"`
	// MaxUploadBytes caps the HTTP request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"LIMIT_MAX_UPLOAD_BYTES" env-default:"26214400"`
}

// QuotaConfig holds free-tier quota settings.
type QuotaConfig struct {
	FreeDailyLimit int           `yaml:"free_daily_limit" env:"QUOTA_FREE_DAILY_LIMIT" env-default:"3"`
	ReservationTTL time.Duration `yaml:"reservation_ttl" env:"QUOTA_RESERVATION_TTL" env-default:"10m"`
}

// PipelineConfig holds the best-effort stage thresholds.
type PipelineConfig struct {
	EnhancementMinElements  int     `yaml:"enhancement_min_elements" env:"PIPELINE_ENHANCEMENT_MIN_ELEMENTS" env-default:"3"`
	VerificationMinElements int     `yaml:"verification_min_elements" env:"PIPELINE_VERIFICATION_MIN_ELEMENTS" env-default:"4"`
	RefinementMinElements   int     `yaml:"refinement_min_elements" env:"PIPELINE_REFINEMENT_MIN_ELEMENTS" env-default:"5"`
	MaxIconAdditions        int     `yaml:"max_icon_additions" env:"PIPELINE_MAX_ICON_ADDITIONS" env-default:"6"`
	CoverageWarnRatio       float64 `yaml:"coverage_warn_ratio" env:"PIPELINE_COVERAGE_WARN_RATIO" env-default:"0.5"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, REDIS_PASSWORD, LLM_API_KEY) must come from environment
// variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds configuration from environment variables and defaults
// only, for deployments that ship no config.yaml.
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)

	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := c.validateLimits(); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if c.BaseURL == "" {
		scheme := "http"
		if c.TLSCertPath != "" {
			scheme = "https"
		}
		c.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + c.Port,
		}).String()
	}

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (c *Config) validateLimits() error {
	switch {
	case c.Limits.MaxTextChars <= 0:
		return fmt.Errorf("max_text_chars must be positive")
	case c.Limits.MaxImageBytes <= 0:
		return fmt.Errorf("max_image_bytes must be positive")
	case c.Limits.MaxUploadBytes <= 0:
		return fmt.Errorf("max_upload_bytes must be positive")
	case c.Quota.FreeDailyLimit < 0:
		return fmt.Errorf("free_daily_limit must not be negative")
	case c.LLM.MaxTokens <= 0:
		return fmt.Errorf("llm max_tokens must be positive")
	case c.LLM.GenerationTimeout <= 0:
		return fmt.Errorf("llm generation_timeout must be positive")
	case c.LLM.EnhancementTimeout <= 0:
		return fmt.Errorf("llm enhancement_timeout must be positive")
	case c.LLM.VerificationTimeout <= 0:
		return fmt.Errorf("llm verification_timeout must be positive")
	case c.LLM.RefinementTimeout <= 0:
		return fmt.Errorf("llm refinement_timeout must be positive")
	case c.Quota.ReservationTTL <= 0:
		return fmt.Errorf("quota reservation_ttl must be positive")
	}
	return nil
}

// IsLocal reports whether the server runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}

// Addr returns the host:port of the Redis server, or "" when Redis is disabled.
func (c *RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
