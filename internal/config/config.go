package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Drafts         DraftsConfig         `mapstructure:"drafts"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Scoring        ScoringConfig        `mapstructure:"scoring"`
	History        HistoryConfig        `mapstructure:"history"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Sessions       SessionsConfig       `mapstructure:"sessions"`
	Log            LogConfig            `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	Mode           string   `mapstructure:"mode"`
	StaticDir      string   `mapstructure:"static_dir"`
	DevFrontendURL string   `mapstructure:"dev_frontend_url"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	Commit         string   `mapstructure:"commit"`
	BuildTime      string   `mapstructure:"build_time"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"` // memory | sqlite
	SQLitePath    string `mapstructure:"sqlite_path"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	SnapshotPath  string `mapstructure:"snapshot_path"`
}

type DraftsConfig struct {
	Driver string `mapstructure:"driver"` // store | file
	Dir    string `mapstructure:"dir"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ScoringConfig struct {
	OverallFormula string `mapstructure:"overall_formula"` // weighted | category_mean
}

type HistoryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type RecommendationConfig struct {
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// SessionsConfig bounds how long an idle lifecycle stays in memory. Drafts outlive it.
type SessionsConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

const devSecret = "wellbeing-dev-secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.dev_frontend_url", "")
	v.SetDefault("server.commit", "")
	v.SetDefault("server.build_time", "")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "data/wellbeing.db")
	v.SetDefault("storage.migrations_dir", "")
	v.SetDefault("storage.snapshot_path", "")

	v.SetDefault("drafts.driver", "store")
	v.SetDefault("drafts.dir", "data/drafts")

	v.SetDefault("auth.jwt_secret", devSecret)
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)

	v.SetDefault("scoring.overall_formula", "weighted")
	v.SetDefault("history.timeout", 5*time.Second)

	v.SetDefault("recommendation.url", "")
	v.SetDefault("recommendation.api_key", "")
	v.SetDefault("recommendation.model", "")
	v.SetDefault("recommendation.timeout", 8*time.Second)
	v.SetDefault("recommendation.concurrency", 3)

	v.SetDefault("rate_limit.max_requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("sessions.idle_timeout", 2*time.Hour)
	v.SetDefault("sessions.sweep_interval", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Load reads config.yaml from path (a directory or a file) when present, then
// overlays WELLBEING_* environment variables, e.g. WELLBEING_SERVER_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		v.SetConfigFile(path)
	} else {
		if path == "" {
			path = "."
		}
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WELLBEING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.driver %q: want memory or sqlite", c.Storage.Driver)
	}
	switch c.Drafts.Driver {
	case "store", "file":
	default:
		return fmt.Errorf("drafts.driver %q: want store or file", c.Drafts.Driver)
	}
	switch c.Scoring.OverallFormula {
	case "weighted", "category_mean":
	default:
		return fmt.Errorf("scoring.overall_formula %q: want weighted or category_mean", c.Scoring.OverallFormula)
	}
	if c.Server.Mode == "release" && (len(c.Auth.JWTSecret) < 32 || c.Auth.JWTSecret == devSecret) {
		return fmt.Errorf("auth.jwt_secret is too short (%d chars), must be at least 32 characters in release mode", len(c.Auth.JWTSecret))
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must not be negative")
	}
	for _, p := range c.Server.TrustedProxies {
		p = strings.TrimSpace(p)
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("server.trusted_proxies %q: want an IP or CIDR", p)
		}
	}
	return nil
}
