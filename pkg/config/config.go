package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sitecrew-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (idempotency key registry)
	Redis RedisConfig `yaml:"redis"`

	// Events configuration (domain event publication)
	Events EventsConfig `yaml:"events"`

	// Generator configuration (AI contract/scope draft generation)
	Generator GeneratorConfig `yaml:"generator"`

	// Workflow policy knobs
	Workflow WorkflowConfig `yaml:"workflow"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sitecrew"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sitecrew_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// URL builds a pgx-compatible connection string.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration. Host left empty disables Redis;
// idempotency then falls back to state-machine guards alone.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// EventsConfig holds RabbitMQ publication settings. URL left empty disables
// publication (events are logged and dropped).
type EventsConfig struct {
	URL      string `yaml:"-" env:"AMQP_URL"` // Carries credentials - env only
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" env-default:"workflow.events"`
}

// GeneratorConfig holds the OpenAI-compatible endpoint used for contract and
// scope draft generation. Endpoint left empty disables drafting.
type GeneratorConfig struct {
	Endpoint string `yaml:"endpoint" env:"GENERATOR_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"GENERATOR_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"GENERATOR_API_KEY"` // Secret - not in YAML
}

// IsAvailable returns true if the generator is configured.
func (c *GeneratorConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.Model != ""
}

// WorkflowConfig holds explicit policy decisions of the escrow workflow.
type WorkflowConfig struct {
	// StrictSequential requires milestone N to be approved before milestone
	// N+1 can be submitted. The original marketplace did not enforce this,
	// so it defaults to false; some owners want it on.
	StrictSequential bool `yaml:"strict_sequential" env:"WORKFLOW_STRICT_SEQUENTIAL" env-default:"false"`

	// RoundingToleranceBasisPoints bounds how far the payment-schedule
	// percentages may drift from 100% (1 basis point = 0.01%). Amounts are
	// always exact; only the display percentages get tolerance.
	RoundingToleranceBasisPoints int64 `yaml:"rounding_tolerance_basis_points" env:"WORKFLOW_ROUNDING_TOLERANCE_BP" env-default:"1"`

	// IdempotencyTTLHours is how long idempotency keys are remembered.
	IdempotencyTTLHours int `yaml:"idempotency_ttl_hours" env:"WORKFLOW_IDEMPOTENCY_TTL_HOURS" env-default:"24"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseComplexFields parses fields that need post-processing after cleanenv.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = make(map[string]string)
	if c.Auth.JWKSEndpointsStr == "" {
		return nil
	}
	for _, pair := range strings.Split(c.Auth.JWKSEndpointsStr, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid jwks_endpoints entry %q, want issuer=url", pair)
		}
		c.Auth.JWKSEndpoints[parts[0]] = parts[1]
	}
	return nil
}

func (c *Config) validate() error {
	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification enabled but no jwks_endpoints configured")
	}
	if c.Workflow.RoundingToleranceBasisPoints < 0 {
		return fmt.Errorf("rounding_tolerance_basis_points must be non-negative")
	}
	return nil
}
