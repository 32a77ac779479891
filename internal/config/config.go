package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Provider struct {
		FinMindURL       string `yaml:"finmind_url"`
		FinMindToken     string `yaml:"finmind_token"`
		TWSEURL          string `yaml:"twse_url"`
		CallsPerHour     int    `yaml:"calls_per_hour"`
		PaceRequests     bool   `yaml:"pace_requests"`
		WaitForBudget    bool   `yaml:"wait_for_budget"`
		MaxRetries       int    `yaml:"max_retries"`
		RetryBaseSeconds int    `yaml:"retry_base_seconds"`
		TimeoutSeconds   int    `yaml:"timeout_seconds"`
	} `yaml:"provider"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Export struct {
		WorkbookPath string `yaml:"workbook_path"`
	} `yaml:"export"`
	Screen struct {
		NewHighThreshold float64 `yaml:"new_high_threshold"`
	} `yaml:"screen"`
	Schedule struct {
		DailyCron   string `yaml:"daily_cron"`
		MonthlyCron string `yaml:"monthly_cron"`
	} `yaml:"schedule"`
	Workers     int `yaml:"workers"`
	HistoryDays int `yaml:"history_days"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("FINMIND_URL"); v != "" {
		cfg.Provider.FinMindURL = v
	}
	if v := os.Getenv("FINMIND_TOKEN"); v != "" {
		cfg.Provider.FinMindToken = v
	}
	if v := os.Getenv("TWSE_URL"); v != "" {
		cfg.Provider.TWSEURL = v
	}
	if v := os.Getenv("CALLS_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Provider.CallsPerHour = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("WORKBOOK_PATH"); v != "" {
		cfg.Export.WorkbookPath = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		cfg.Schedule.DailyCron = v
	}
	if v := os.Getenv("CRON_MONTHLY"); v != "" {
		cfg.Schedule.MonthlyCron = v
	}

	// Defaults
	if cfg.Provider.FinMindURL == "" {
		cfg.Provider.FinMindURL = "https://api.finmindtrade.com"
	}
	if cfg.Provider.TWSEURL == "" {
		cfg.Provider.TWSEURL = "https://www.twse.com.tw"
	}
	if cfg.Provider.CallsPerHour == 0 {
		cfg.Provider.CallsPerHour = 600
	}
	if cfg.Provider.MaxRetries == 0 {
		cfg.Provider.MaxRetries = 3
	}
	if cfg.Provider.RetryBaseSeconds == 0 {
		cfg.Provider.RetryBaseSeconds = 2
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 30
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/zftrend.db"
	}
	if cfg.Screen.NewHighThreshold == 0 {
		cfg.Screen.NewHighThreshold = 0.99
	}
	if cfg.Schedule.DailyCron == "" {
		cfg.Schedule.DailyCron = "0 30 15 * * 1-5"
	}
	if cfg.Schedule.MonthlyCron == "" {
		cfg.Schedule.MonthlyCron = "0 0 8 1 * *"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.HistoryDays == 0 {
		cfg.HistoryDays = 365
	}

	return cfg, nil
}

// Validate checks that all required fields are sane.
func (c *Config) Validate() error {
	if c.Provider.CallsPerHour <= 0 {
		return fmt.Errorf("provider.calls_per_hour must be positive")
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must not be negative")
	}
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required")
	}
	if c.Screen.NewHighThreshold <= 0 || c.Screen.NewHighThreshold > 1 {
		return fmt.Errorf("screen.new_high_threshold must be in (0, 1]")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.HistoryDays <= 0 {
		return fmt.Errorf("history_days must be positive")
	}
	return nil
}

// Timeout returns the provider HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// RetryBase returns the initial retry backoff.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Provider.RetryBaseSeconds) * time.Second
}
