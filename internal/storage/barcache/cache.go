// Package barcache provides a BadgerHold-backed daily-bar cache that
// fronts the market-data client. The cache is an explicit object with a
// stated TTL and an explicit invalidation call; there is no process-wide
// cached state anywhere else.
package barcache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/interfaces"
	"github.com/bobmcallan/tradescope/internal/models"
)

// cachedSeries is one stored bar window, keyed by symbol and window.
type cachedSeries struct {
	Key       string `badgerhold:"key"`
	Symbol    string
	Bars      []models.DailyBar
	FetchedAt time.Time
}

// Cache decorates a MarketDataClient with persistent daily-bar caching.
// Quotes and option marks pass straight through: quotes are point-in-time
// and mark series are cheap relative to their cardinality.
type Cache struct {
	inner  interfaces.MarketDataClient
	db     *badgerhold.Store
	ttl    time.Duration
	logger *common.Logger
	now    func() time.Time // injectable clock for testing
}

// New opens a bar cache at the given directory path.
func New(inner interfaces.MarketDataClient, path string, ttl time.Duration, logger *common.Logger) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar cache: %w", err)
	}

	logger.Debug().Str("path", path).Dur("ttl", ttl).Msg("Bar cache opened")

	return &Cache{
		inner:  inner,
		db:     db,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// GetDailyBars serves the window from cache when a fresh entry exists,
// fetching and storing otherwise. A fetch failure is returned as-is; a
// cache write failure is logged and the fetched bars still returned.
func (c *Cache) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyBar, error) {
	key := seriesKey(symbol, from, to)

	var cached cachedSeries
	err := c.db.Get(key, &cached)
	if err == nil && c.now().Sub(cached.FetchedAt) < c.ttl {
		c.logger.Debug().Str("symbol", symbol).Msg("Bar cache hit")
		return cached.Bars, nil
	}
	if err != nil && err != badgerhold.ErrNotFound {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Bar cache read failed, fetching")
	}

	bars, err := c.inner.GetDailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	entry := cachedSeries{Key: key, Symbol: symbol, Bars: bars, FetchedAt: c.now()}
	if err := c.db.Upsert(key, &entry); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Bar cache write failed")
	}
	return bars, nil
}

// GetRealTimeQuote passes through to the inner client.
func (c *Cache) GetRealTimeQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return c.inner.GetRealTimeQuote(ctx, symbol)
}

// GetOptionMarks passes through to the inner client.
func (c *Cache) GetOptionMarks(ctx context.Context, occSymbol string, from, to time.Time) ([]models.OptionMark, error) {
	return c.inner.GetOptionMarks(ctx, occSymbol, from, to)
}

// Invalidate drops every cached window for a symbol, forcing the next
// read to refetch. An empty symbol drops the whole cache.
func (c *Cache) Invalidate(symbol string) error {
	var query *badgerhold.Query
	if symbol != "" {
		query = badgerhold.Where("Symbol").Eq(symbol)
	}
	if err := c.db.DeleteMatching(cachedSeries{}, query); err != nil {
		return fmt.Errorf("failed to invalidate bar cache for '%s': %w", symbol, err)
	}
	c.logger.Debug().Str("symbol", symbol).Msg("Bar cache invalidated")
	return nil
}

func seriesKey(symbol string, from, to time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Ensure Cache implements MarketDataClient
var _ interfaces.MarketDataClient = (*Cache)(nil)
