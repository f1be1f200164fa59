package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "STORYBOARD"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "storyboard.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultBackendTimeout    = 15
	defaultCacheTTLSeconds   = 60
	defaultHydrationSettleMS = 300
	defaultCanvasExportScale = 3.0
	maxHydrationSettleMillis = 5000
	minimumCanvasExportScale = 0.1
	maximumCanvasExportScale = 10.0
)

// AppConfig captures runtime configuration for the editor service and CLI.
type AppConfig struct {
	HTTPAddress     string
	BackendBaseURL  string
	BackendAPIToken string
	BackendTimeout  time.Duration
	RedisURL        string
	CacheTTL        time.Duration
	DatabasePath    string
	LogLevel        string
	LogFormat       string
	SettleDelay     time.Duration
	ExportScale     float64
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
	configViper.SetDefault("backend.timeout_seconds", defaultBackendTimeout)
	configViper.SetDefault("cache.ttl_seconds", defaultCacheTTLSeconds)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("hydration.settle_ms", defaultHydrationSettleMS)
	configViper.SetDefault("canvas.export_scale", defaultCanvasExportScale)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		BackendBaseURL:  strings.TrimRight(strings.TrimSpace(configViper.GetString("backend.base_url")), "/"),
		BackendAPIToken: configViper.GetString("backend.api_token"),
		BackendTimeout:  time.Duration(configViper.GetInt("backend.timeout_seconds")) * time.Second,
		RedisURL:        strings.TrimSpace(configViper.GetString("cache.redis_url")),
		CacheTTL:        time.Duration(configViper.GetInt("cache.ttl_seconds")) * time.Second,
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		LogFormat:       configViper.GetString("log.format"),
		SettleDelay:     time.Duration(configViper.GetInt("hydration.settle_ms")) * time.Millisecond,
		ExportScale:     configViper.GetFloat64("canvas.export_scale"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.BackendBaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	parsed, err := url.Parse(c.BackendBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute url")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("backend.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SettleDelay < 0 || c.SettleDelay > maxHydrationSettleMillis*time.Millisecond {
		return fmt.Errorf("hydration.settle_ms must be between 0 and %d", maxHydrationSettleMillis)
	}
	if c.ExportScale < minimumCanvasExportScale || c.ExportScale > maximumCanvasExportScale {
		return fmt.Errorf("canvas.export_scale must be between %.1f and %.1f", minimumCanvasExportScale, maximumCanvasExportScale)
	}
	if c.RedisURL != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive when cache.redis_url is set")
	}
	return nil
}
