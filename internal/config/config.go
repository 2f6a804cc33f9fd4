// Package config loads and validates serpscout configuration.
//
// Configuration is resolved by viper from (in order of precedence) command
// line flags, SERPSCOUT_* environment variables, and a YAML config file.
// Engines defined in the file are merged over the built-in engine table.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/serpscout/serpscout/internal/engine"
)

// ProxyConfig controls the proxy pool manager.
type ProxyConfig struct {
	// Sources are proxy feed endpoints. Format is one of "text" (ip:port
	// or scheme://ip:port lines), "json" (proxyscrape-style payload) or
	// "html" (table of ip/port cells).
	Sources []SourceConfig `mapstructure:"sources" validate:"min=1,dive"`

	// TestURL is the known-good target used to measure proxies.
	TestURL string `mapstructure:"test_url" validate:"required,url"`

	TestTimeout    time.Duration `mapstructure:"test_timeout" validate:"gt=0"`
	MaxConcurrent  int           `mapstructure:"max_concurrent_tests" validate:"gt=0"`
	MaxCandidates  int           `mapstructure:"max_candidates" validate:"gt=0"`
	RetestAfter    time.Duration `mapstructure:"retest_after" validate:"gt=0"`
	MaxRecordAge   time.Duration `mapstructure:"max_record_age" validate:"gt=0"`
	DeadThreshold  int           `mapstructure:"dead_threshold" validate:"gt=0"`
	SuccessWeight  float64       `mapstructure:"success_weight" validate:"gt=0"`
	LatencyPenalty float64       `mapstructure:"latency_penalty" validate:"gte=0"`

	// LiveFailureCost is how many test failures a failure during real use
	// counts for.
	LiveFailureCost int `mapstructure:"live_failure_cost" validate:"gt=0"`

	// RotationWindow excludes proxies handed out within this window from
	// Best() selection when rotation is requested.
	RotationWindow time.Duration `mapstructure:"rotation_window" validate:"gte=0"`

	// SnapshotPath persists pool ratings across runs. Empty disables.
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// SourceConfig is one proxy feed endpoint.
type SourceConfig struct {
	URL    string `mapstructure:"url" validate:"required,url"`
	Format string `mapstructure:"format" validate:"required,oneof=text json html"`
}

// FingerprintConfig controls device profile generation.
type FingerprintConfig struct {
	DeviceClasses   []string `mapstructure:"device_classes" validate:"min=1,dive,oneof=android ios"`
	Locale          string   `mapstructure:"locale" validate:"required"`
	DefaultTimezone string   `mapstructure:"default_timezone" validate:"required"`

	// GeoDBPath points at an IP2Location BIN database used to derive the
	// timezone from a proxy's egress address. Empty falls back to
	// DefaultTimezone.
	GeoDBPath string `mapstructure:"geo_db_path"`
}

// BrowserConfig controls the headless browser pool.
type BrowserConfig struct {
	Workers         int           `mapstructure:"workers" validate:"gt=0"`
	Headless        bool          `mapstructure:"headless"`
	WarmupTimeout   time.Duration `mapstructure:"warmup_timeout" validate:"gt=0"`
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout" validate:"gt=0"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	ScreenshotDir   string        `mapstructure:"screenshot_dir"`
}

// FetchConfig controls the TLS-impersonated fast path. The TLS
// fingerprint itself follows the device profile, so it is not configured
// here.
type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// MinDelay/MaxDelay bound the jittered pause before each request.
	MinDelay time.Duration `mapstructure:"min_delay" validate:"gte=0"`
	MaxDelay time.Duration `mapstructure:"max_delay" validate:"gte=0"`

	// MaxPageSize caps response bodies; larger pages are truncated.
	MaxPageSize int `mapstructure:"max_page_size" validate:"gte=0"`
}

// ScrapeConfig controls the orchestrator.
type ScrapeConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" validate:"gt=0"`

	// RetryBudget bounds challenge reverification loops in the fallback
	// driver.
	RetryBudget int `mapstructure:"retry_budget" validate:"gt=0"`
}

// CollectorConfig controls the autonomous CAPTCHA collection loop.
type CollectorConfig struct {
	Dir         string        `mapstructure:"dir" validate:"required"`
	Queries     []string      `mapstructure:"queries" validate:"min=1"`
	Concurrency int           `mapstructure:"concurrency" validate:"gt=0"`
	MinWait     time.Duration `mapstructure:"min_wait" validate:"gt=0"`
	MaxWait     time.Duration `mapstructure:"max_wait" validate:"gt=0"`
}

// Config is the root configuration.
type Config struct {
	Engines     map[string]engine.Engine `mapstructure:"engines" validate:"min=1"`
	Proxy       ProxyConfig              `mapstructure:"proxy"`
	Fingerprint FingerprintConfig        `mapstructure:"fingerprint"`
	Browser     BrowserConfig            `mapstructure:"browser"`
	Fetch       FetchConfig              `mapstructure:"fetch"`
	Scrape      ScrapeConfig             `mapstructure:"scrape"`
	Collector   CollectorConfig          `mapstructure:"collector"`
}

// SetDefaults registers default values on a viper instance. Called before
// the config file is read so file values win.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("proxy.sources", []map[string]string{
		{
			"url":    "https://api.proxyscrape.com/v3/free-proxy-list/get?request=displayproxies&proxy_format=ipport&format=json",
			"format": "json",
		},
		{
			"url":    "https://api.proxyscrape.com/v4/free-proxy-list/get?request=get_proxies&proxy_format=protocolipport&format=text",
			"format": "text",
		},
	})
	v.SetDefault("proxy.test_url", "https://httpbin.org/ip")
	v.SetDefault("proxy.test_timeout", 7*time.Second)
	v.SetDefault("proxy.max_concurrent_tests", 20)
	v.SetDefault("proxy.max_candidates", 100)
	v.SetDefault("proxy.retest_after", 5*time.Minute)
	v.SetDefault("proxy.max_record_age", time.Hour)
	v.SetDefault("proxy.dead_threshold", 3)
	v.SetDefault("proxy.success_weight", 100.0)
	v.SetDefault("proxy.latency_penalty", 20.0)
	v.SetDefault("proxy.live_failure_cost", 2)
	v.SetDefault("proxy.rotation_window", 30*time.Second)
	v.SetDefault("proxy.snapshot_path", "")

	v.SetDefault("fingerprint.device_classes", []string{"android", "ios"})
	v.SetDefault("fingerprint.locale", "en-US")
	v.SetDefault("fingerprint.default_timezone", "Europe/London")
	v.SetDefault("fingerprint.geo_db_path", "")

	v.SetDefault("browser.workers", 2)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.warmup_timeout", 45*time.Second)
	v.SetDefault("browser.fallback_timeout", 90*time.Second)
	v.SetDefault("browser.settle_delay", 2*time.Second)
	v.SetDefault("browser.screenshot_dir", "screenshots")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.min_delay", 800*time.Millisecond)
	v.SetDefault("fetch.max_delay", 2200*time.Millisecond)
	v.SetDefault("fetch.max_page_size", 0)

	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.retry_budget", 3)

	v.SetDefault("collector.dir", "captchas")
	v.SetDefault("collector.queries", []string{
		"latest tech news",
		"weather in tokyo",
		"python asyncio tutorial",
	})
	v.SetDefault("collector.concurrency", 25)
	v.SetDefault("collector.min_wait", 5*time.Minute)
	v.SetDefault("collector.max_wait", 15*time.Minute)
}

// Load unmarshals and validates the configuration from a viper instance.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// File-defined engines overlay the built-in table.
	merged := engine.Defaults()
	for key, e := range cfg.Engines {
		merged[key] = e
	}
	cfg.Engines = merged

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a config against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Fetch.MaxDelay < cfg.Fetch.MinDelay {
		return fmt.Errorf("invalid config: fetch.max_delay is below fetch.min_delay")
	}
	if cfg.Collector.MaxWait < cfg.Collector.MinWait {
		return fmt.Errorf("invalid config: collector.max_wait is below collector.min_wait")
	}
	return nil
}
