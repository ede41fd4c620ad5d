package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/y0f/apiprobe/internal/executor"
)

type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Target   TargetConfig   `yaml:"target"`
	Database DatabaseConfig `yaml:"database"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type EngineConfig struct {
	Concurrency         int           `yaml:"concurrency"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	RateLimitPerSec     float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst      int           `yaml:"rate_limit_burst"`
	MaxBodySize         int64         `yaml:"max_body_size"`
	InsecureSkipVerify  bool          `yaml:"insecure_skip_verify"`
	BlockPrivateTargets bool          `yaml:"block_private_targets"`
	Proxy               string        `yaml:"proxy"`
	NoProxy             string        `yaml:"no_proxy"`
}

type TargetConfig struct {
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers"`
}

type DatabaseConfig struct {
	// DSN is a SQLite path or a postgres:// URL. Empty disables history.
	DSN           string `yaml:"dsn"`
	MaxReadConns  int    `yaml:"max_read_conns"`
	RetentionDays int    `yaml:"retention_days"`
}

type ReportConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

var reportFormats = []string{"json", "junit", "xlsx"}

func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency:    executor.DefaultConcurrency,
			RequestTimeout: executor.DefaultRequestTimeout,
			MaxRetries:     executor.DefaultMaxRetries,
			RetryBackoff:   executor.DefaultRetryBackoff,
			MaxBodySize:    executor.DefaultMaxBodySize,
		},
		Database: DatabaseConfig{
			DSN:           "apiprobe.db",
			MaxReadConns:  4,
			RetentionDays: 90,
		},
		Report: ReportConfig{
			Dir:     "reports",
			Formats: []string{"json", "junit"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.Target.BaseURL = strings.TrimRight(cfg.Target.BaseURL, "/")
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	return validateLogging(c.Logging)
}

func (c *Config) validateEngine() error {
	e := c.Engine
	if e.Concurrency < 1 || e.Concurrency > executor.MaxConcurrency {
		return fmt.Errorf("engine.concurrency must be between 1 and %d", executor.MaxConcurrency)
	}
	if e.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be positive")
	}
	if e.RunTimeout < 0 {
		return fmt.Errorf("engine.run_timeout must not be negative")
	}
	if e.MaxRetries < 0 || e.MaxRetries > executor.MaxRetries {
		return fmt.Errorf("engine.max_retries must be between 0 and %d", executor.MaxRetries)
	}
	if e.RetryBackoff < 0 {
		return fmt.Errorf("engine.retry_backoff must not be negative")
	}
	if e.RateLimitPerSec < 0 {
		return fmt.Errorf("engine.rate_limit_per_sec must not be negative")
	}
	if e.RateLimitBurst < 0 {
		return fmt.Errorf("engine.rate_limit_burst must not be negative")
	}
	if e.MaxBodySize <= 0 {
		return fmt.Errorf("engine.max_body_size must be positive")
	}
	if e.Proxy != "" {
		if err := absoluteURL(e.Proxy); err != nil {
			return fmt.Errorf("engine.proxy %w", err)
		}
	}
	return nil
}

func (c *Config) validateTarget() error {
	if c.Target.BaseURL != "" {
		if err := absoluteURL(c.Target.BaseURL); err != nil {
			return fmt.Errorf("target.base_url %w", err)
		}
	}
	for name := range c.Target.Headers {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " :\r\n") {
			return fmt.Errorf("target.headers has invalid header name %q", name)
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.DSN == "" {
		return nil
	}
	if c.Database.MaxReadConns <= 0 {
		return fmt.Errorf("database.max_read_conns must be positive")
	}
	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("database.retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateReport() error {
	for i, f := range c.Report.Formats {
		if !validFormat(f) {
			return fmt.Errorf("report.formats[%d] must be one of: %s", i, strings.Join(reportFormats, ", "))
		}
	}
	if len(c.Report.Formats) > 0 && c.Report.Dir == "" {
		return fmt.Errorf("report.dir is required when report.formats is set")
	}
	return nil
}

func validFormat(f string) bool {
	for _, known := range reportFormats {
		if f == known {
			return true
		}
	}
	return false
}

func validateLogging(l LoggingConfig) error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}
}

func absoluteURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL (e.g. https://example.com)")
	}
	return nil
}

// ExecutorConfig maps the engine and target sections onto executor
// settings.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		BaseURL:            c.Target.BaseURL,
		Headers:            c.Target.Headers,
		Concurrency:        c.Engine.Concurrency,
		RequestTimeout:     c.Engine.RequestTimeout,
		MaxRetries:         c.Engine.MaxRetries,
		RetryBackoff:       c.Engine.RetryBackoff,
		RateLimit:          c.Engine.RateLimitPerSec,
		RateBurst:          c.Engine.RateLimitBurst,
		MaxBodySize:        c.Engine.MaxBodySize,
		InsecureSkipVerify: c.Engine.InsecureSkipVerify,
		BlockPrivate:       c.Engine.BlockPrivateTargets,
		Proxy:              c.Engine.Proxy,
		NoProxy:            c.Engine.NoProxy,
	}
}
