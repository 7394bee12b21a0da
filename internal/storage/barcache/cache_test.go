package barcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/models"
)

// countingClient records fetch counts and serves a fixed bar series.
type countingClient struct {
	bars  []models.DailyBar
	err   error
	calls int
}

func (f *countingClient) GetDailyBars(context.Context, string, time.Time, time.Time) ([]models.DailyBar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func (f *countingClient) GetRealTimeQuote(context.Context, string) (*models.Quote, error) {
	return &models.Quote{Price: 42}, nil
}

func (f *countingClient) GetOptionMarks(context.Context, string, time.Time, time.Time) ([]models.OptionMark, error) {
	return nil, nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func newTestCache(t *testing.T, inner *countingClient, ttl time.Duration) *Cache {
	t.Helper()
	cache, err := New(inner, t.TempDir(), ttl, common.NewSilentLogger())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheServesSecondReadWithoutFetch(t *testing.T) {
	inner := &countingClient{bars: []models.DailyBar{{Date: day("2024-01-02"), High: 101, Low: 99}}}
	cache := newTestCache(t, inner, time.Hour)
	ctx := context.Background()

	first, err := cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, inner.calls)

	second, err := cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second read served from cache")
}

func TestCacheDistinctWindowsFetchSeparately(t *testing.T) {
	inner := &countingClient{bars: []models.DailyBar{{Date: day("2024-01-02")}}}
	cache := newTestCache(t, inner, time.Hour)
	ctx := context.Background()

	_, err := cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	_, err = cache.GetDailyBars(ctx, "AAPL", day("2024-02-01"), day("2024-02-28"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCacheExpiryRefetches(t *testing.T) {
	inner := &countingClient{bars: []models.DailyBar{{Date: day("2024-01-02")}}}
	cache := newTestCache(t, inner, time.Hour)
	ctx := context.Background()

	clock := day("2024-06-01")
	cache.now = func() time.Time { return clock }

	_, err := cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	_, err = cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "stale entry refetched after TTL")
}

func TestCacheInvalidateBySymbol(t *testing.T) {
	inner := &countingClient{bars: []models.DailyBar{{Date: day("2024-01-02")}}}
	cache := newTestCache(t, inner, time.Hour)
	ctx := context.Background()

	_, err := cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	_, err = cache.GetDailyBars(ctx, "MSFT", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)

	require.NoError(t, cache.Invalidate("AAPL"))

	_, err = cache.GetDailyBars(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls, "invalidated symbol refetched")

	_, err = cache.GetDailyBars(ctx, "MSFT", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls, "other symbol untouched")
}

func TestCacheFetchFailurePropagates(t *testing.T) {
	inner := &countingClient{err: fmt.Errorf("provider down")}
	cache := newTestCache(t, inner, time.Hour)

	_, err := cache.GetDailyBars(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-31"))
	assert.Error(t, err)
}

func TestCachePassThroughQuote(t *testing.T) {
	inner := &countingClient{}
	cache := newTestCache(t, inner, time.Hour)

	quote, err := cache.GetRealTimeQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 42.0, quote.Price)
}
