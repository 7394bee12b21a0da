// Package app wires configuration, storage, clients, and services into
// one application object shared by the server entry point
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/tradescope/internal/clients/marketdata"
	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/interfaces"
	"github.com/bobmcallan/tradescope/internal/normalize"
	"github.com/bobmcallan/tradescope/internal/services/analytics"
	"github.com/bobmcallan/tradescope/internal/services/excursion"
	"github.com/bobmcallan/tradescope/internal/services/portfolio"
	"github.com/bobmcallan/tradescope/internal/services/strategy"
	"github.com/bobmcallan/tradescope/internal/storage/barcache"
	"github.com/bobmcallan/tradescope/internal/storage/memory"
	"github.com/bobmcallan/tradescope/internal/storage/surrealdb"
)

// App holds all initialized services and clients. It is the shared core
// behind cmd/tradescope-server.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	MarketData       interfaces.MarketDataClient
	Normalizer       *normalize.Normalizer
	PortfolioService interfaces.PortfolioService
	ExcursionService interfaces.ExcursionService
	AnalyticsService interfaces.AnalyticsService
	StartupTime      time.Time

	barCache *barcache.Cache
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services from configuration.
// configPath may be empty, in which case the default resolution logic
// is used.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("TRADESCOPE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "tradescope.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tradescope.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative cache path to binary directory
	if config.Storage.CachePath != "" && !filepath.IsAbs(config.Storage.CachePath) {
		config.Storage.CachePath = filepath.Join(binDir, config.Storage.CachePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	app := &App{
		Config:      config,
		Logger:      logger,
		StartupTime: time.Now(),
	}

	// Storage backend
	switch config.Storage.Backend {
	case "memory":
		app.Storage = memory.NewManager()
		logger.Info().Msg("Using in-memory storage (data will not persist)")
	default:
		manager, err := surrealdb.NewManager(logger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.Storage = manager
	}

	// Market-data client, wrapped in the bar cache
	if config.Clients.MarketData.APIKey != "" {
		client := marketdata.NewClient(config.Clients.MarketData.APIKey,
			marketdata.WithBaseURL(config.Clients.MarketData.BaseURL),
			marketdata.WithLogger(logger),
			marketdata.WithRateLimit(config.Clients.MarketData.RateLimit),
			marketdata.WithTimeout(config.Clients.MarketData.GetTimeout()),
		)

		cache, err := barcache.New(client, config.Storage.CachePath, config.Engine.GetBarCacheTTL(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open bar cache: %w", err)
		}
		app.barCache = cache
		app.MarketData = cache
	} else {
		logger.Warn().Msg("Market data API key not configured - pricing and excursion analytics will be limited")
	}

	// Services
	app.Normalizer = normalize.NewNormalizer()

	classifier := strategy.NewClassifier(strategy.Options{
		LargePositionQty: config.Engine.LargePositionQty,
		NakedPutLabeling: config.Engine.NakedPutLabeling,
	}, logger)

	app.PortfolioService = portfolio.NewService(app.Storage, app.MarketData, classifier, logger)
	app.ExcursionService = excursion.NewService(app.Storage, app.MarketData, excursion.Config{
		Workers:          config.Engine.CalculationWorkers,
		FetchTimeout:     config.Engine.GetBarFetchTimeout(),
		GapToleranceDays: config.Engine.GapToleranceDays,
	}, logger)
	app.AnalyticsService = analytics.NewService(app.Storage, analytics.Thresholds{
		EfficiencyFloor: config.Engine.EfficiencyFloor,
		AdverseMAEPct:   config.Engine.AdverseMAEPct,
	}, logger)

	logger.Info().
		Str("version", common.GetVersion()).
		Str("environment", config.Environment).
		Str("storage", config.Storage.Backend).
		Msg("Tradescope initialized")

	return app, nil
}

// InvalidateBarCache drops cached daily bars for a symbol ("" = all).
func (a *App) InvalidateBarCache(symbol string) error {
	if a.barCache == nil {
		return nil
	}
	return a.barCache.Invalidate(symbol)
}

// Close releases storage and cache resources.
func (a *App) Close() {
	if a.barCache != nil {
		if err := a.barCache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close bar cache")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	a.Logger.Info().Msg("Tradescope shut down")
}
