package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. CYBERGUARD_LOG_LEVEL.
const envPrefix = "cyberguard"

// ProviderConfig holds the settings for the disposable-mailbox provider.
type ProviderConfig struct {
	// BaseURL is the root URL of the mail.tm-compatible API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RequestTimeout bounds every HTTP call to the provider.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// RateLimit is the maximum number of requests per second.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`

	// MaxRetries is how many times a 429 response is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// MailboxConfig holds the provisioning and polling policy.
type MailboxConfig struct {
	LocalPartLength int           `mapstructure:"local_part_length" yaml:"local_part_length"`
	Password        string        `mapstructure:"password" yaml:"password"`
	IdentityTTL     time.Duration `mapstructure:"identity_ttl" yaml:"identity_ttl"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// ChatConfig holds settings for the chat assistant integration.
type ChatConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	MaxHistory int           `mapstructure:"max_history" yaml:"max_history"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	File        string `mapstructure:"file" yaml:"file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
}

// StoreConfig locates the session database. The default ":memory:" keeps
// all state inside the process.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"provider-url": "provider.base_url",
	"interval":     "mailbox.poll_interval",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"store":        "store.path",
	"chat-model":   "chat.model",
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/cyberguard/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "cyberguard", "config.yaml")
}

// DefaultAppConfig returns the built-in configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Provider: ProviderConfig{
			BaseURL:        "https://api.mail.tm",
			RequestTimeout: 20 * time.Second,
			RateLimit:      8,
			MaxRetries:     3,
		},
		Mailbox: MailboxConfig{
			LocalPartLength: 10,
			Password:        "TempPass1234!",
			IdentityTTL:     time.Hour,
			PollInterval:    10 * time.Second,
			FetchTimeout:    20 * time.Second,
		},
		Chat: ChatConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			Model:      "gemini-1.5-flash-latest",
			MaxHistory: 20,
			Timeout:    60 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Store: StoreConfig{
			Path: ":memory:",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()

	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.request_timeout", d.Provider.RequestTimeout)
	v.SetDefault("provider.rate_limit", d.Provider.RateLimit)
	v.SetDefault("provider.max_retries", d.Provider.MaxRetries)

	v.SetDefault("mailbox.local_part_length", d.Mailbox.LocalPartLength)
	v.SetDefault("mailbox.password", d.Mailbox.Password)
	v.SetDefault("mailbox.identity_ttl", d.Mailbox.IdentityTTL)
	v.SetDefault("mailbox.poll_interval", d.Mailbox.PollInterval)
	v.SetDefault("mailbox.fetch_timeout", d.Mailbox.FetchTimeout)

	v.SetDefault("chat.base_url", d.Chat.BaseURL)
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.max_history", d.Chat.MaxHistory)
	v.SetDefault("chat.timeout", d.Chat.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)

	v.SetDefault("store.path", d.Store.Path)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values resolve in order: changed flags, CYBERGUARD_* environment (a .env
// file in the working directory is loaded first if present), the file,
// then defaults. A missing file is not an error. flags may be nil.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *AppConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Provider.BaseURL) == "":
		return errors.New("config: provider.base_url is required")
	case c.Mailbox.PollInterval <= 0:
		return fmt.Errorf("config: mailbox.poll_interval must be positive, got %s", c.Mailbox.PollInterval)
	case c.Mailbox.LocalPartLength < 6:
		return fmt.Errorf("config: mailbox.local_part_length must be at least 6, got %d", c.Mailbox.LocalPartLength)
	case c.Mailbox.Password == "":
		return errors.New("config: mailbox.password is required")
	case c.Chat.MaxHistory < 1:
		return fmt.Errorf("config: chat.max_history must be at least 1, got %d", c.Chat.MaxHistory)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The chat API key is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("provider", map[string]interface{}{
		"base_url":        cfg.Provider.BaseURL,
		"request_timeout": cfg.Provider.RequestTimeout.String(),
		"rate_limit":      cfg.Provider.RateLimit,
		"max_retries":     cfg.Provider.MaxRetries,
	})
	v.Set("mailbox", map[string]interface{}{
		"local_part_length": cfg.Mailbox.LocalPartLength,
		"password":          cfg.Mailbox.Password,
		"identity_ttl":      cfg.Mailbox.IdentityTTL.String(),
		"poll_interval":     cfg.Mailbox.PollInterval.String(),
		"fetch_timeout":     cfg.Mailbox.FetchTimeout.String(),
	})
	v.Set("chat", map[string]interface{}{
		"base_url":    cfg.Chat.BaseURL,
		"model":       cfg.Chat.Model,
		"max_history": cfg.Chat.MaxHistory,
		"timeout":     cfg.Chat.Timeout.String(),
	})
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
