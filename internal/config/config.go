// ABOUTME: Configuration loading and parsing for verdin-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete verdin-gateway configuration
type Config struct {
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Sessions SessionsConfig `yaml:"sessions"`
	Replies  RepliesConfig  `yaml:"replies"`
	Typing   TypingConfig   `yaml:"typing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WhatsAppConfig holds settings for the whatsmeow device store.
type WhatsAppConfig struct {
	// StoreDir is the directory holding per-session sqlite device stores.
	StoreDir string `yaml:"store_dir"`
}

// GeminiConfig holds completion service configuration.
type GeminiConfig struct {
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"top_p"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// SessionsConfig holds session lifecycle configuration.
type SessionsConfig struct {
	MaxSessions          int `yaml:"max_sessions"`
	MaxCredentialRetries int `yaml:"max_credential_retries"`

	RestartDelay      time.Duration `yaml:"-"`
	SettleDelay       time.Duration `yaml:"-"`
	StatusInterval    time.Duration `yaml:"-"`
	RestartDelayRaw   string        `yaml:"restart_delay"`
	SettleDelayRaw    string        `yaml:"settle_delay"`
	StatusIntervalRaw string        `yaml:"status_interval"`
}

// RepliesConfig holds the reply engine's history, quota and filtering knobs.
type RepliesConfig struct {
	HistoryLimit     int `yaml:"history_limit"`
	RateLimitMax     int `yaml:"rate_limit_max"`
	MaxReplyLength   int `yaml:"max_reply_length"`
	ActiveChatsLimit int `yaml:"active_chats_limit"`

	RateLimitWindow     time.Duration `yaml:"-"`
	HistoryRetention    time.Duration `yaml:"-"`
	StalenessWindow     time.Duration `yaml:"-"`
	RateLimitWindowRaw  string        `yaml:"rate_limit_window"`
	HistoryRetentionRaw string        `yaml:"history_retention"`
	StalenessWindowRaw  string        `yaml:"staleness_window"`
}

// TypingConfig holds typing simulator pacing configuration.
type TypingConfig struct {
	MinDelay        time.Duration `yaml:"-"`
	MaxDelay        time.Duration `yaml:"-"`
	PerCharDelay    time.Duration `yaml:"-"`
	MinDelayRaw     string        `yaml:"min_delay"`
	MaxDelayRaw     string        `yaml:"max_delay"`
	PerCharDelayRaw string        `yaml:"per_char_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and defaults are applied
// before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero-valued fields with the stock gateway defaults.
func (c *Config) ApplyDefaults() {
	if c.WhatsApp.StoreDir == "" {
		c.WhatsApp.StoreDir = "data"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Gemini.Temperature == 0 {
		c.Gemini.Temperature = 0.9
	}
	if c.Gemini.TopP == 0 {
		c.Gemini.TopP = 0.95
	}
	if c.Gemini.MaxOutputTokens == 0 {
		c.Gemini.MaxOutputTokens = 256
	}
	if c.Gemini.RequestTimeout == 0 {
		c.Gemini.RequestTimeout = 15 * time.Second
	}
	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = 3
	}
	if c.Sessions.MaxCredentialRetries == 0 {
		c.Sessions.MaxCredentialRetries = 3
	}
	if c.Sessions.RestartDelay == 0 {
		c.Sessions.RestartDelay = 5 * time.Second
	}
	if c.Sessions.SettleDelay == 0 {
		c.Sessions.SettleDelay = 3 * time.Second
	}
	if c.Sessions.StatusInterval == 0 {
		c.Sessions.StatusInterval = 5 * time.Minute
	}
	if c.Replies.HistoryLimit == 0 {
		c.Replies.HistoryLimit = 10
	}
	if c.Replies.RateLimitMax == 0 {
		c.Replies.RateLimitMax = 2
	}
	if c.Replies.MaxReplyLength == 0 {
		c.Replies.MaxReplyLength = 600
	}
	if c.Replies.ActiveChatsLimit == 0 {
		c.Replies.ActiveChatsLimit = 500
	}
	if c.Replies.RateLimitWindow == 0 {
		c.Replies.RateLimitWindow = time.Minute
	}
	if c.Replies.HistoryRetention == 0 {
		c.Replies.HistoryRetention = 24 * time.Hour
	}
	if c.Replies.StalenessWindow == 0 {
		c.Replies.StalenessWindow = 5 * time.Minute
	}
	if c.Typing.MinDelay == 0 {
		c.Typing.MinDelay = time.Second
	}
	if c.Typing.MaxDelay == 0 {
		c.Typing.MaxDelay = 3 * time.Second
	}
	if c.Typing.PerCharDelay == 0 {
		c.Typing.PerCharDelay = 30 * time.Millisecond
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if c.Sessions.MaxSessions < 1 {
		return fmt.Errorf("sessions.max_sessions must be at least 1")
	}
	if c.Typing.MinDelay > c.Typing.MaxDelay {
		return fmt.Errorf("typing.min_delay must not exceed typing.max_delay")
	}
	if c.Replies.RateLimitMax < 1 {
		return fmt.Errorf("replies.rate_limit_max must be at least 1")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Gemini.RequestTimeoutRaw, &cfg.Gemini.RequestTimeout, "gemini.request_timeout"},
		{cfg.Sessions.RestartDelayRaw, &cfg.Sessions.RestartDelay, "sessions.restart_delay"},
		{cfg.Sessions.SettleDelayRaw, &cfg.Sessions.SettleDelay, "sessions.settle_delay"},
		{cfg.Sessions.StatusIntervalRaw, &cfg.Sessions.StatusInterval, "sessions.status_interval"},
		{cfg.Replies.RateLimitWindowRaw, &cfg.Replies.RateLimitWindow, "replies.rate_limit_window"},
		{cfg.Replies.HistoryRetentionRaw, &cfg.Replies.HistoryRetention, "replies.history_retention"},
		{cfg.Replies.StalenessWindowRaw, &cfg.Replies.StalenessWindow, "replies.staleness_window"},
		{cfg.Typing.MinDelayRaw, &cfg.Typing.MinDelay, "typing.min_delay"},
		{cfg.Typing.MaxDelayRaw, &cfg.Typing.MaxDelay, "typing.max_delay"},
		{cfg.Typing.PerCharDelayRaw, &cfg.Typing.PerCharDelay, "typing.per_char_delay"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
