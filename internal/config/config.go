// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobradar/jobradar/internal/discovery"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Window    WindowConfig    `mapstructure:"window"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// CrawlConfig governs the pagination budgets and politeness settings.
type CrawlConfig struct {
	MaxPagesPerSearch    int    `mapstructure:"max_pages_per_search"`
	MaxJobsPerSearch     int    `mapstructure:"max_jobs_per_search"`
	CircuitBreakerBlocks int    `mapstructure:"circuit_breaker_blocks"`
	DuplicatePageLimit   int    `mapstructure:"duplicate_page_limit"`
	DetailStalenessDays  int    `mapstructure:"detail_staleness_days"`
	UserAgent            string `mapstructure:"user_agent"`
	AcceptLanguage       string `mapstructure:"accept_language"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	// MaxRunMinutes caps one full crawl run's wall-clock time, independent
	// of the per-page fetch timeout. Zero disables the cap.
	MaxRunMinutes int `mapstructure:"max_run_minutes"`
	// WatchdogStaleMinutes is the age past which a still-running crawl
	// run is considered abandoned.
	WatchdogStaleMinutes int `mapstructure:"watchdog_stale_minutes"`
}

// WindowConfig tunes the adaptive date-window policy.
type WindowConfig struct {
	RecentThresholdHours int    `mapstructure:"recent_threshold_hours"`
	RecentCode           string `mapstructure:"recent_code"`
	FallbackCode         string `mapstructure:"fallback_code"`
}

// LifecycleConfig governs job aging.
type LifecycleConfig struct {
	StaleAfterDays      int `mapstructure:"stale_after_days"`
	HardDeleteAfterDays int `mapstructure:"hard_delete_after_days"`
	MaxCrawlAgeHours    int `mapstructure:"max_crawl_age_hours"`
	// MaxRunMinutes caps one maintenance pass's wall-clock time. Zero
	// disables the cap.
	MaxRunMinutes int `mapstructure:"max_run_minutes"`
}

// HeadlessConfig configures the browser-rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleMs      int  `mapstructure:"settle_ms"`
}

// PubSubConfig holds metadata for discovery event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ScheduleConfig holds cron expressions for the long-running mode.
type ScheduleConfig struct {
	Crawl     string `mapstructure:"crawl"`
	Lifecycle string `mapstructure:"lifecycle"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("crawl.max_pages_per_search", 50)
	v.SetDefault("crawl.max_jobs_per_search", 2000)
	v.SetDefault("crawl.circuit_breaker_blocks", 3)
	v.SetDefault("crawl.duplicate_page_limit", 3)
	v.SetDefault("crawl.detail_staleness_days", 7)
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawl.accept_language", "en-US,en;q=0.9")
	v.SetDefault("crawl.timeout_seconds", 20)
	v.SetDefault("crawl.max_run_minutes", 120)
	v.SetDefault("crawl.watchdog_stale_minutes", 180)
	v.SetDefault("window.recent_threshold_hours", 30)
	v.SetDefault("window.recent_code", "r86400")
	v.SetDefault("window.fallback_code", "r604800")
	v.SetDefault("lifecycle.stale_after_days", 60)
	v.SetDefault("lifecycle.hard_delete_after_days", 120)
	v.SetDefault("lifecycle.max_crawl_age_hours", 36)
	v.SetDefault("lifecycle.max_run_minutes", 30)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_ms", 1200)
	v.SetDefault("schedule.crawl", "0 6,18 * * *")
	v.SetDefault("schedule.lifecycle", "30 4 * * *")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Crawl.MaxPagesPerSearch <= 0 {
		return fmt.Errorf("crawl.max_pages_per_search must be > 0")
	}
	if c.Crawl.MaxJobsPerSearch <= 0 {
		return fmt.Errorf("crawl.max_jobs_per_search must be > 0")
	}
	if c.Crawl.CircuitBreakerBlocks <= 0 {
		return fmt.Errorf("crawl.circuit_breaker_blocks must be > 0")
	}
	if c.Crawl.DuplicatePageLimit <= 0 {
		return fmt.Errorf("crawl.duplicate_page_limit must be > 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Lifecycle.StaleAfterDays <= 0 {
		return fmt.Errorf("lifecycle.stale_after_days must be > 0")
	}
	if c.Lifecycle.HardDeleteAfterDays <= c.Lifecycle.StaleAfterDays {
		return fmt.Errorf("lifecycle.hard_delete_after_days (%d) must be > lifecycle.stale_after_days (%d)",
			c.Lifecycle.HardDeleteAfterDays, c.Lifecycle.StaleAfterDays)
	}
	if c.Lifecycle.MaxCrawlAgeHours <= 0 {
		return fmt.Errorf("lifecycle.max_crawl_age_hours must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	return nil
}

// Budget converts the crawl config into the pagination budget.
func (c Config) Budget() discovery.Budget {
	return discovery.Budget{
		MaxPagesPerSearch:    c.Crawl.MaxPagesPerSearch,
		MaxJobsPerSearch:     c.Crawl.MaxJobsPerSearch,
		CircuitBreakerBlocks: c.Crawl.CircuitBreakerBlocks,
		DuplicatePageLimit:   c.Crawl.DuplicatePageLimit,
	}
}

// WindowPolicy converts the window config into the adaptive policy.
func (c Config) WindowPolicy() discovery.WindowPolicy {
	return discovery.WindowPolicy{
		RecentThreshold: time.Duration(c.Window.RecentThresholdHours) * time.Hour,
		RecentCode:      c.Window.RecentCode,
		FallbackCode:    c.Window.FallbackCode,
	}
}

// FetchTimeout returns the page fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutSeconds) * time.Second
}

// WatchdogThreshold returns the stale-run age for the watchdog.
func (c Config) WatchdogThreshold() time.Duration {
	return time.Duration(c.Crawl.WatchdogStaleMinutes) * time.Minute
}

// CrawlRunTimeout returns the wall-clock cap for one crawl run. Zero
// means unbounded.
func (c Config) CrawlRunTimeout() time.Duration {
	return time.Duration(c.Crawl.MaxRunMinutes) * time.Minute
}

// MaintenanceRunTimeout returns the wall-clock cap for one maintenance
// pass. Zero means unbounded.
func (c Config) MaintenanceRunTimeout() time.Duration {
	return time.Duration(c.Lifecycle.MaxRunMinutes) * time.Minute
}
