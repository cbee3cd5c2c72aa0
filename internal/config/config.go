package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	HTTP struct {
		Port            int `yaml:"port"`
		ShutdownSeconds int `yaml:"shutdown_seconds"`

		// TrustedProxies are addresses or CIDRs whose X-Forwarded-For is honoured.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"http"`

	Storage struct {
		Driver string `yaml:"driver"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Mongo struct {
			URI      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Mail struct {
		Provider string `yaml:"provider"`
		From     string `yaml:"from"`
		Resend   struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"resend"`
		SMTP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`
	} `yaml:"mail"`

	Scheduler struct {
		Cron           string `yaml:"cron"`
		SendIntervalMS int    `yaml:"send_interval_ms"`
		RunOnStart     bool   `yaml:"run_on_start"`
	} `yaml:"scheduler"`

	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
		BcryptCost    int    `yaml:"bcrypt_cost"`
	} `yaml:"auth"`

	RateLimit struct {
		LoginAttempts int `yaml:"login_attempts"`
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"rate_limit"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Cron          string `yaml:"cron"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	// Operators are account emails allowed to trigger passes manually.
	Operators []string `yaml:"operators"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${ENV_VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// missing .env is fine
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Storage.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Storage.SQLite.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Parse decodes YAML config data, expanding ${ENV_VAR} placeholders, applies
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3001
	}
	if c.HTTP.ShutdownSeconds <= 0 {
		c.HTTP.ShutdownSeconds = 5
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "data/remindr.db"
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "remindr"
	}
	c.Mail.Provider = strings.ToLower(strings.TrimSpace(c.Mail.Provider))
	if c.Mail.Provider == "" {
		c.Mail.Provider = "log"
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 * * * *"
	}
	if c.Scheduler.SendIntervalMS == 0 {
		c.Scheduler.SendIntervalMS = 600
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 7 * 24
	}
	if c.RateLimit.LoginAttempts <= 0 {
		c.RateLimit.LoginAttempts = 10
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Backup.Cron == "" {
		c.Backup.Cron = "30 3 * * *"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "mongo":
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Mail.Provider {
	case "log":
	case "resend":
		if c.Mail.Resend.APIKey == "" {
			return fmt.Errorf("mail.resend.api_key is required for the resend provider")
		}
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp.host is required for the smtp provider")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}

	if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
		return fmt.Errorf("scheduler.cron: %w", err)
	}
	if c.Backup.Enabled {
		if _, err := cron.ParseStandard(c.Backup.Cron); err != nil {
			return fmt.Errorf("backup.cron: %w", err)
		}
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if _, err := c.TrustedProxies(); err != nil {
		return err
	}
	return nil
}

// TrustedProxies parses http.trusted_proxies. A bare address is a single-host
// prefix.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.HTTP.TrustedProxies))
	for _, raw := range c.HTTP.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("http.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("http.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// SendInterval is the minimum spacing between two sends. Negative disables
// pacing.
func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.Scheduler.SendIntervalMS) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownSeconds) * time.Second
}
