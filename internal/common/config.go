// Package common provides shared utilities for Tradescope
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Tradescope
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Engine      EngineConfig  `toml:"engine"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds storage backend configuration.
// Backend "surrealdb" uses the SurrealDB connection settings;
// "memory" runs with the in-process store (dev and tests).
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	CachePath string `toml:"cache_path"` // local bar-cache directory (BadgerHold)
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	MarketData MarketDataConfig `toml:"marketdata"`
}

// MarketDataConfig holds market-data provider configuration
type MarketDataConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *MarketDataConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// EngineConfig holds the analytics engine thresholds.
type EngineConfig struct {
	LargePositionQty   float64 `toml:"large_position_qty"`   // stock quantity above which a pure stock position is medium risk
	EfficiencyFloor    float64 `toml:"efficiency_floor"`     // trades with efficiency >= this count as "efficient"
	AdverseMAEPct      float64 `toml:"adverse_mae_pct"`      // records with mae <= this count as "large MAE"
	NakedPutLabeling   bool    `toml:"naked_put_labeling"`   // label bare short puts "Naked Put" instead of "Cash-Secured Put"
	BarFetchTimeout    string  `toml:"bar_fetch_timeout"`    // per-symbol price history fetch timeout
	BarCacheTTL        string  `toml:"bar_cache_ttl"`        // daily-bar cache time-to-live
	CalculationWorkers int     `toml:"calculation_workers"`  // parallel symbols during MFE/MAE calculation
	GapToleranceDays   int     `toml:"gap_tolerance_days"`   // allowed calendar-day slack at window edges before declaring a data gap
}

// GetBarFetchTimeout parses and returns the bar fetch timeout duration
func (c *EngineConfig) GetBarFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.BarFetchTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetBarCacheTTL parses and returns the bar cache TTL duration
func (c *EngineConfig) GetBarCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.BarCacheTTL)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   "surrealdb",
			Address:   "ws://localhost:8000",
			Username:  "root",
			Password:  "root",
			Namespace: "tradescope",
			Database:  "journal",
			CachePath: "data/barcache",
		},
		Clients: ClientsConfig{
			MarketData: MarketDataConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Engine: EngineConfig{
			LargePositionQty:   1000,
			EfficiencyFloor:    0.5,
			AdverseMAEPct:      -10,
			NakedPutLabeling:   false,
			BarFetchTimeout:    "15s",
			BarCacheTTL:        "6h",
			CalculationWorkers: 4,
			GapToleranceDays:   5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TRADESCOPE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("TRADESCOPE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("TRADESCOPE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("TRADESCOPE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("TRADESCOPE_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	if addr := os.Getenv("TRADESCOPE_SURREAL_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if key := os.Getenv("TRADESCOPE_MARKETDATA_API_KEY"); key != "" {
		config.Clients.MarketData.APIKey = key
	}
	if key := os.Getenv("EODHD_API_KEY"); key != "" && config.Clients.MarketData.APIKey == "" {
		config.Clients.MarketData.APIKey = key
	}
}

// validate rejects configurations the engine cannot run with.
// Invalid thresholds are programmer/operator errors and are fatal,
// unlike per-record data errors which are isolated at runtime.
func validate(config *Config) error {
	switch strings.ToLower(config.Storage.Backend) {
	case "surrealdb", "memory":
	default:
		return fmt.Errorf("invalid storage backend %q (want surrealdb or memory)", config.Storage.Backend)
	}

	if config.Engine.LargePositionQty <= 0 {
		return fmt.Errorf("engine.large_position_qty must be positive, got %v", config.Engine.LargePositionQty)
	}
	if config.Engine.EfficiencyFloor < 0 || config.Engine.EfficiencyFloor > 1 {
		return fmt.Errorf("engine.efficiency_floor must be in [0,1], got %v", config.Engine.EfficiencyFloor)
	}
	if config.Engine.AdverseMAEPct >= 0 {
		return fmt.Errorf("engine.adverse_mae_pct must be negative, got %v", config.Engine.AdverseMAEPct)
	}
	if config.Engine.CalculationWorkers <= 0 {
		config.Engine.CalculationWorkers = 1
	}
	if config.Engine.GapToleranceDays <= 0 {
		config.Engine.GapToleranceDays = 5
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
