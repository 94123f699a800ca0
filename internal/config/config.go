package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "FORTUNE"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "data/fortune.db"
	defaultLogLevel      = "info"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOpenAITimeout = 30 * time.Second
	defaultPerDay        = 5
	defaultTimezone      = "Asia/Kolkata"
	defaultMinHours      = 4
	defaultMaxHours      = 6
	defaultCacheSizeMB   = 8
	defaultTokenTTLMin   = 30
)

// AppConfig captures runtime configuration for the fortune API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAITimeout    time.Duration
	FortunesPerDay   int
	Timezone         string
	SessionMinWindow time.Duration
	SessionMaxWindow time.Duration
	CacheEnabled     bool
	CacheSizeMB      int
	AnalyticsEnabled bool
	AdminKey         string
	AdminTokenTTL    time.Duration
	Debug            bool
}

// Location resolves the configured provider-local timezone. The calendar-day
// rollover for fortunes and visitor identity follows this location.
func (c AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("openai.model", defaultOpenAIModel)
	configViper.SetDefault("openai.timeout", defaultOpenAITimeout)
	configViper.SetDefault("fortune.per_day", defaultPerDay)
	configViper.SetDefault("fortune.timezone", defaultTimezone)
	configViper.SetDefault("session.min_hours", defaultMinHours)
	configViper.SetDefault("session.max_hours", defaultMaxHours)
	configViper.SetDefault("cache.enabled", true)
	configViper.SetDefault("cache.size_mb", defaultCacheSizeMB)
	configViper.SetDefault("analytics.enabled", true)
	configViper.SetDefault("admin.token_ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("debug", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		OpenAIAPIKey:     configViper.GetString("openai.api_key"),
		OpenAIModel:      configViper.GetString("openai.model"),
		OpenAITimeout:    configViper.GetDuration("openai.timeout"),
		FortunesPerDay:   configViper.GetInt("fortune.per_day"),
		Timezone:         configViper.GetString("fortune.timezone"),
		SessionMinWindow: time.Duration(configViper.GetInt("session.min_hours")) * time.Hour,
		SessionMaxWindow: time.Duration(configViper.GetInt("session.max_hours")) * time.Hour,
		CacheEnabled:     configViper.GetBool("cache.enabled"),
		CacheSizeMB:      configViper.GetInt("cache.size_mb"),
		AnalyticsEnabled: configViper.GetBool("analytics.enabled"),
		AdminKey:         configViper.GetString("admin.key"),
		AdminTokenTTL:    time.Duration(configViper.GetInt("admin.token_ttl_minutes")) * time.Minute,
		Debug:            configViper.GetBool("debug"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AdminKey) == "" {
		return fmt.Errorf("admin.key is required")
	}
	if c.FortunesPerDay < 1 {
		return fmt.Errorf("fortune.per_day must be at least 1")
	}
	if c.SessionMinWindow > c.SessionMaxWindow {
		return fmt.Errorf("session.min_hours must not exceed session.max_hours")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("fortune.timezone is invalid: %w", err)
	}
	return nil
}
