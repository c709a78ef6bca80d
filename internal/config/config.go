// Package config handles KenoBot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/kenobot/config.yaml, /config/config.yaml,
// /etc/kenobot/config.yaml. An explicit path (from -config flag) is
// checked by FindConfig before these.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kenobot", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/kenobot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all KenoBot configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	API        APIConfig        `yaml:"api"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	SleepCycle SleepCycleConfig `yaml:"sleep_cycle"`
	Provider   ProviderConfig   `yaml:"provider"`
	Owner      OwnerConfig      `yaml:"owner"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// OwnerConfig identifies the conversation the notifier delivers HEALTH_*
// and ERROR signals to, and the model/API key the agent bridge's default
// provider uses.
type OwnerConfig struct {
	ChatID         string        `yaml:"chat_id"`
	Channel        string        `yaml:"channel"`
	AnthropicKey   string        `yaml:"anthropic_api_key"`
	Model          string        `yaml:"model"`
	BudgetUSD      float64       `yaml:"budget_usd"`
	BudgetPeriod   time.Duration `yaml:"budget_period"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ListenConfig defines the HTTP server bind address.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// WebhookConfig configures the /webhook HMAC-signed endpoint.
type WebhookConfig struct {
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig configures the authenticated REST surface.
type APIConfig struct {
	BearerToken    string        `yaml:"bearer_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      int           `yaml:"rate_limit"` // requests per window, per IP
	RateWindow     time.Duration `yaml:"rate_window"`
	CORSOrigin     string        `yaml:"cors_origin"`
}

// SchedulerConfig configures cron-driven task injection.
type SchedulerConfig struct {
	// JournalDir overrides DataDir/scheduler for the task journal.
	JournalDir string `yaml:"journal_dir"`
}

// WatchdogConfig configures periodic health checks.
type WatchdogConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RSSWarnMB  int64         `yaml:"rss_warn_mb"`
	RSSFailMB  int64         `yaml:"rss_fail_mb"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// SleepCycleConfig configures the background consolidation job.
type SleepCycleConfig struct {
	Period     time.Duration `yaml:"period"`
	TargetHour int           `yaml:"target_hour"`
}

// ProviderConfig configures the circuit-breaker-wrapped provider facade.
type ProviderConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${KENOBOT_WEBHOOK_SECRET}).
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 30 * time.Second
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 30 * time.Second
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = 60
	}
	if c.API.RateWindow == 0 {
		c.API.RateWindow = time.Minute
	}
	if c.API.CORSOrigin == "" {
		c.API.CORSOrigin = "*"
	}
	if c.Scheduler.JournalDir == "" {
		c.Scheduler.JournalDir = filepath.Join(c.DataDir, "scheduler")
	}
	if c.Watchdog.Interval == 0 {
		c.Watchdog.Interval = 30 * time.Second
	}
	if c.Watchdog.RSSWarnMB == 0 {
		c.Watchdog.RSSWarnMB = 256
	}
	if c.Watchdog.RSSFailMB == 0 {
		c.Watchdog.RSSFailMB = 512
	}
	if c.Watchdog.StaleAfter == 0 {
		c.Watchdog.StaleAfter = 36 * time.Hour
	}
	if c.SleepCycle.Period == 0 {
		c.SleepCycle.Period = 24 * time.Hour
	}
	if c.Provider.FailureThreshold == 0 {
		c.Provider.FailureThreshold = 3
	}
	if c.Provider.Cooldown == 0 {
		c.Provider.Cooldown = 30 * time.Second
	}
	if c.Owner.Channel == "" {
		c.Owner.Channel = "api"
	}
	if c.Owner.Model == "" {
		c.Owner.Model = "claude-sonnet-4-20250514"
	}
	if c.Owner.RequestTimeout == 0 {
		c.Owner.RequestTimeout = 25 * time.Second
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.SleepCycle.TargetHour < 0 || c.SleepCycle.TargetHour > 23 {
		return fmt.Errorf("sleep_cycle.target_hour %d out of range (0-23)", c.SleepCycle.TargetHour)
	}
	return nil
}

// Default returns a default configuration suitable for local development.
// All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
