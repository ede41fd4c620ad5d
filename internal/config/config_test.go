package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Engine.Concurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.RequestTimeout != 10*time.Second {
		t.Fatalf("expected 10s request timeout, got %s", cfg.Engine.RequestTimeout)
	}
	if cfg.Engine.MaxBodySize != 1<<20 {
		t.Fatalf("expected 1MiB body cap, got %d", cfg.Engine.MaxBodySize)
	}
	if cfg.Database.DSN != "apiprobe.db" {
		t.Fatalf("expected apiprobe.db, got %s", cfg.Database.DSN)
	}
	if cfg.Database.RetentionDays != 90 {
		t.Fatalf("expected 90 retention days, got %d", cfg.Database.RetentionDays)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info log level, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{
			name:   "zero concurrency",
			modify: func(c *Config) { c.Engine.Concurrency = 0 },
			errSub: "engine.concurrency",
		},
		{
			name:   "concurrency too high",
			modify: func(c *Config) { c.Engine.Concurrency = 257 },
			errSub: "engine.concurrency",
		},
		{
			name:   "zero request timeout",
			modify: func(c *Config) { c.Engine.RequestTimeout = 0 },
			errSub: "request_timeout",
		},
		{
			name:   "negative run timeout",
			modify: func(c *Config) { c.Engine.RunTimeout = -time.Second },
			errSub: "run_timeout",
		},
		{
			name:   "too many retries",
			modify: func(c *Config) { c.Engine.MaxRetries = 6 },
			errSub: "max_retries",
		},
		{
			name:   "negative rate limit",
			modify: func(c *Config) { c.Engine.RateLimitPerSec = -1 },
			errSub: "rate_limit_per_sec",
		},
		{
			name:   "zero max body size",
			modify: func(c *Config) { c.Engine.MaxBodySize = 0 },
			errSub: "max_body_size",
		},
		{
			name:   "relative proxy",
			modify: func(c *Config) { c.Engine.Proxy = "proxy:3128" },
			errSub: "engine.proxy",
		},
		{
			name:   "relative base url",
			modify: func(c *Config) { c.Target.BaseURL = "api.example.com" },
			errSub: "target.base_url",
		},
		{
			name:   "bad header name",
			modify: func(c *Config) { c.Target.Headers = map[string]string{"X Bad": "1"} },
			errSub: "target.headers",
		},
		{
			name:   "zero read conns",
			modify: func(c *Config) { c.Database.MaxReadConns = 0 },
			errSub: "max_read_conns",
		},
		{
			name:   "negative retention days",
			modify: func(c *Config) { c.Database.RetentionDays = -1 },
			errSub: "retention_days",
		},
		{
			name:   "unknown report format",
			modify: func(c *Config) { c.Report.Formats = []string{"json", "html"} },
			errSub: "report.formats[1]",
		},
		{
			name:   "formats without dir",
			modify: func(c *Config) { c.Report.Dir = "" },
			errSub: "report.dir",
		},
		{
			name:   "invalid log level",
			modify: func(c *Config) { c.Logging.Level = "trace" },
			errSub: "logging.level",
		},
		{
			name:   "invalid log format",
			modify: func(c *Config) { c.Logging.Format = "xml" },
			errSub: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("expected error containing %q, got %q", tt.errSub, err.Error())
			}
		})
	}
}

func TestValidateWithoutDatabase(t *testing.T) {
	c := Defaults()
	c.Database.DSN = ""
	c.Database.MaxReadConns = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("history disabled should skip database checks: %v", err)
	}
}

func TestExecutorConfig(t *testing.T) {
	c := Defaults()
	c.Target.BaseURL = "https://api.example.com"
	c.Target.Headers = map[string]string{"Authorization": "Bearer x"}
	c.Engine.RateLimitPerSec = 5
	c.Engine.BlockPrivateTargets = true

	ec := c.ExecutorConfig()
	if ec.BaseURL != "https://api.example.com" || ec.Headers["Authorization"] != "Bearer x" {
		t.Fatalf("target not mapped: %+v", ec)
	}
	if ec.RateLimit != 5 || !ec.BlockPrivate || ec.MaxRetries != 2 {
		t.Fatalf("engine not mapped: %+v", ec)
	}
}

func TestLoad(t *testing.T) {
	t.Run("valid YAML", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		data := `
engine:
  concurrency: 8
  run_timeout: 2m
target:
  base_url: "https://api.example.com/"
  headers:
    X-Api-Key: secret
database:
  dsn: "postgres://probe@db/history"
report:
  formats: [json, junit, xlsx]
logging:
  level: "debug"
  format: json
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Engine.Concurrency != 8 || cfg.Engine.RunTimeout != 2*time.Minute {
			t.Fatalf("unexpected engine config %+v", cfg.Engine)
		}
		if cfg.Engine.RequestTimeout != 10*time.Second {
			t.Fatalf("expected default request timeout to survive, got %s", cfg.Engine.RequestTimeout)
		}
		if cfg.Target.BaseURL != "https://api.example.com" {
			t.Fatalf("expected trailing slash trimmed, got %s", cfg.Target.BaseURL)
		}
		if cfg.Target.Headers["X-Api-Key"] != "secret" {
			t.Fatalf("unexpected headers %v", cfg.Target.Headers)
		}
		if len(cfg.Report.Formats) != 3 || cfg.Report.Dir != "reports" {
			t.Fatalf("unexpected report config %+v", cfg.Report)
		}
	})

	t.Run("env var expansion", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		t.Setenv("APIPROBE_TEST_TOKEN", "s3cr3t")
		data := `
target:
  base_url: "http://localhost:8080"
  headers:
    Authorization: "Bearer ${APIPROBE_TEST_TOKEN}"
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Target.Headers["Authorization"] != "Bearer s3cr3t" {
			t.Fatalf("expected expanded token, got %s", cfg.Target.Headers["Authorization"])
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("{{invalid"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid YAML")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("engine:\n  concurrency: 0\n"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "validate config") {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/config.yaml")
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}
