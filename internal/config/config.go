package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Name           string   `yaml:"name"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" (default) or "postgres"
	Path   string `yaml:"path"`   // sqlite file path
	DSN    string `yaml:"dsn"`    // postgres connection string

	// AccessLogRetention bounds how long access log rows are kept (default 90 days).
	AccessLogRetention time.Duration `yaml:"access_log_retention"`
}

type AuthConfig struct {
	AccessTokenSecret  string         `yaml:"access_token_secret"`
	RefreshTokenSecret string         `yaml:"refresh_token_secret"`
	AccessTokenTTL     time.Duration  `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration  `yaml:"refresh_token_ttl"`
	TOTPIssuer         string         `yaml:"totp_issuer"`
	MFAMasterCode      string         `yaml:"mfa_master_code"`
	Password           PasswordConfig `yaml:"password"`
}

type PasswordConfig struct {
	MinLength     int    `yaml:"min_length"`
	MemoryKiB     uint32 `yaml:"memory_kib"`
	Iterations    uint32 `yaml:"iterations"`
	Parallelism   uint8  `yaml:"parallelism"`
	MaxConcurrent int    `yaml:"max_concurrent"` // 0 means GOMAXPROCS
}

type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	AuthPerMinute    int  `yaml:"auth_per_minute"`
	RefreshPerMinute int  `yaml:"refresh_per_minute"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML, applying env overrides, validation and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.Auth.MFAMasterCode = strings.TrimSpace(cfg.Auth.MFAMasterCode)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEWSROOM_ACCESS_TOKEN_SECRET"); v != "" {
		c.Auth.AccessTokenSecret = v
	}
	if v := os.Getenv("NEWSROOM_REFRESH_TOKEN_SECRET"); v != "" {
		c.Auth.RefreshTokenSecret = v
	}
	if v := os.Getenv("NEWSROOM_MFA_MASTER_CODE"); v != "" {
		c.Auth.MFAMasterCode = v
	}
	if v := os.Getenv("NEWSROOM_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
}

func (c *Config) validate() error {
	if c.Auth.AccessTokenSecret == "" {
		return fmt.Errorf("auth.access_token_secret is required")
	}
	if len(c.Auth.AccessTokenSecret) < 32 {
		return fmt.Errorf("auth.access_token_secret must be at least 32 characters")
	}
	if c.Auth.RefreshTokenSecret == "" {
		return fmt.Errorf("auth.refresh_token_secret is required")
	}
	if len(c.Auth.RefreshTokenSecret) < 32 {
		return fmt.Errorf("auth.refresh_token_secret must be at least 32 characters")
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return fmt.Errorf("auth.access_token_secret and auth.refresh_token_secret must differ")
	}
	if c.Auth.MFAMasterCode != "" && len(c.Auth.MFAMasterCode) < 8 {
		return fmt.Errorf("auth.mfa_master_code must be at least 8 characters when set")
	}

	switch c.Database.Driver {
	case "", "sqlite3":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.AccessLogRetention < 0 {
		return fmt.Errorf("database.access_log_retention must not be negative")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "Newsroom"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/newsroom.db"
	}
	if c.Database.AccessLogRetention == 0 {
		c.Database.AccessLogRetention = 90 * 24 * time.Hour
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.TOTPIssuer == "" {
		c.Auth.TOTPIssuer = c.Server.Name
	}
	if c.Auth.Password.MinLength == 0 {
		c.Auth.Password.MinLength = 8
	}
	if c.Auth.Password.MemoryKiB == 0 {
		c.Auth.Password.MemoryKiB = 64 * 1024
	}
	if c.Auth.Password.Iterations == 0 {
		c.Auth.Password.Iterations = 3
	}
	if c.Auth.Password.Parallelism == 0 {
		c.Auth.Password.Parallelism = 2
	}
	if c.RateLimit.AuthPerMinute == 0 {
		c.RateLimit.AuthPerMinute = 20
	}
	if c.RateLimit.RefreshPerMinute == 0 {
		c.RateLimit.RefreshPerMinute = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
