package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/pricelens/backend/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Matching  MatchingConfig  `mapstructure:"matching"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the catalog store
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "memory" or "postgres"
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// BrowserConfig selects how store pages are loaded
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver"` // "chrome" or "http"
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path"`
	PageLoadTimeout   time.Duration `mapstructure:"page_load_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ScrapeConfig holds adapter settings
type ScrapeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Stores  []string      `mapstructure:"stores"`
	Lavka   LavkaConfig   `mapstructure:"lavka"`
	Samokat SamokatConfig `mapstructure:"samokat"`
}

// LavkaConfig tunes the infinite-scroll crawl
type LavkaConfig struct {
	URL              string        `mapstructure:"url"`
	InitialWait      time.Duration `mapstructure:"initial_wait"`
	ScrollStep       int           `mapstructure:"scroll_step"`
	ScrollPause      time.Duration `mapstructure:"scroll_pause"`
	FinalPause       time.Duration `mapstructure:"final_pause"`
	MaxStableRepeats int           `mapstructure:"max_stable_repeats"`
	MaxScrolls       int           `mapstructure:"max_scrolls"`
}

// SamokatConfig tunes the single-pass crawl
type SamokatConfig struct {
	URL         string        `mapstructure:"url"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
}

// SchedulerConfig controls periodic ingestion
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// DeliveryConfig holds per-store delivery fees as decimal strings
type DeliveryConfig struct {
	LavkaFee   string `mapstructure:"lavka_fee"`
	SamokatFee string `mapstructure:"samokat_fee"`
}

// MatchingConfig holds comparison matching configuration
type MatchingConfig struct {
	EnableFuzzyMatching bool    `mapstructure:"enable_fuzzy_matching"`
	FuzzyThreshold      float64 `mapstructure:"fuzzy_threshold"`
	EnableDebugLogging  bool    `mapstructure:"enable_debug_logging"`
}

// Fees returns the parsed delivery fees keyed by store
func (c DeliveryConfig) Fees() (map[domain.Store]decimal.Decimal, error) {
	lavka, err := decimal.NewFromString(strings.TrimSpace(c.LavkaFee))
	if err != nil {
		return nil, fmt.Errorf("delivery.lavka_fee %q is not a decimal: %w", c.LavkaFee, err)
	}
	samokat, err := decimal.NewFromString(strings.TrimSpace(c.SamokatFee))
	if err != nil {
		return nil, fmt.Errorf("delivery.samokat_fee %q is not a decimal: %w", c.SamokatFee, err)
	}
	return map[domain.Store]decimal.Decimal{
		domain.StoreLavka:   lavka,
		domain.StoreSamokat: samokat,
	}, nil
}

// EnabledStores returns the configured stores in canonical form
func (c ScrapeConfig) EnabledStores() ([]domain.Store, error) {
	stores := make([]domain.Store, 0, len(c.Stores))
	seen := make(map[domain.Store]struct{})
	for _, name := range c.Stores {
		store, err := domain.ParseStore(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[store]; ok {
			continue
		}
		seen[store] = struct{}{}
		stores = append(stores, store)
	}
	return stores, nil
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricelens/")

	// Environment variable settings, e.g. PRICELENS_SCRAPE_LAVKA_URL
	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory if present.
// Variables already set in the environment win.
func loadEnvFile() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database defaults
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "10m")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)

	// Browser defaults
	v.SetDefault("browser.driver", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.page_load_timeout", "30s")
	v.SetDefault("browser.requests_per_second", 1.0)

	// Scrape defaults
	v.SetDefault("scrape.timeout", "5m")
	v.SetDefault("scrape.stores", []string{string(domain.StoreLavka), string(domain.StoreSamokat)})
	v.SetDefault("scrape.lavka.url", "https://lavka.yandex.ru/catalog/grocery/category/water")
	v.SetDefault("scrape.lavka.initial_wait", "5s")
	v.SetDefault("scrape.lavka.scroll_step", 850)
	v.SetDefault("scrape.lavka.scroll_pause", "1s")
	v.SetDefault("scrape.lavka.final_pause", "2s")
	v.SetDefault("scrape.lavka.max_stable_repeats", 4)
	v.SetDefault("scrape.lavka.max_scrolls", 500)
	v.SetDefault("scrape.samokat.url", "https://samokat.ru/category/voda")
	v.SetDefault("scrape.samokat.initial_wait", "5s")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "2h")
	v.SetDefault("scheduler.run_on_start", true)

	// Delivery defaults
	v.SetDefault("delivery.lavka_fee", "199.00")
	v.SetDefault("delivery.samokat_fee", "99.00")

	// Matching defaults
	v.SetDefault("matching.enable_fuzzy_matching", false)
	v.SetDefault("matching.fuzzy_threshold", 0.92)
	v.SetDefault("matching.enable_debug_logging", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.Driver != "memory" && config.Database.Driver != "postgres" {
		return fmt.Errorf("database driver must be 'memory' or 'postgres', got: %s", config.Database.Driver)
	}

	if config.Database.Driver == "postgres" && config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when driver is 'postgres' (set PRICELENS_DATABASE_DSN)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Browser.Driver != "chrome" && config.Browser.Driver != "http" {
		return fmt.Errorf("browser driver must be 'chrome' or 'http', got: %s", config.Browser.Driver)
	}

	if _, err := config.Scrape.EnabledStores(); err != nil {
		return err
	}

	if config.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got: %s", config.Scheduler.Interval)
	}

	if _, err := config.Delivery.Fees(); err != nil {
		return err
	}

	if config.Scrape.Lavka.MaxStableRepeats < 1 {
		return fmt.Errorf("scrape.lavka.max_stable_repeats must be at least 1, got: %d", config.Scrape.Lavka.MaxStableRepeats)
	}

	if config.Matching.FuzzyThreshold <= 0 || config.Matching.FuzzyThreshold > 1 {
		return fmt.Errorf("matching.fuzzy_threshold must be in (0, 1], got: %v", config.Matching.FuzzyThreshold)
	}

	return nil
}
