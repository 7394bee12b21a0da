package excursion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/models"
	"github.com/bobmcallan/tradescope/internal/storage/memory"
)

// fakeMarketData serves canned bar and mark series per symbol and
// records call counts.
type fakeMarketData struct {
	mu       sync.Mutex
	bars     map[string][]models.DailyBar
	marks    map[string][]models.OptionMark
	failures map[string]error
	barCalls int
}

func (f *fakeMarketData) GetDailyBars(_ context.Context, symbol string, _, _ time.Time) ([]models.DailyBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barCalls++
	if err, ok := f.failures[symbol]; ok {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeMarketData) GetRealTimeQuote(_ context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("no quote for %s", symbol)
}

func (f *fakeMarketData) GetOptionMarks(_ context.Context, occSymbol string, _, _ time.Time) ([]models.OptionMark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[occSymbol]; ok {
		return nil, err
	}
	return f.marks[occSymbol], nil
}

func newExcursionService(t *testing.T, trades []*models.Trade, md *fakeMarketData) (*Service, *memory.Manager) {
	t.Helper()
	store := memory.NewManager()
	ctx := context.Background()
	for _, tr := range trades {
		require.NoError(t, store.TradeStore().SaveTrade(ctx, tr))
	}
	svc := NewService(store, md, Config{Workers: 2, GapToleranceDays: 5}, common.NewSilentLogger())
	svc.now = func() time.Time { return day("2024-02-01") }
	return svc, store
}

func stockPair(underlying string) []*models.Trade {
	return []*models.Trade{
		{ID: underlying + "-t1", Symbol: underlying, Underlying: underlying, Timestamp: day("2024-01-02"), Action: models.ActionBuy, Quantity: 100, Price: 100, Instrument: models.InstrumentStock},
		{ID: underlying + "-t2", Symbol: underlying, Underlying: underlying, Timestamp: day("2024-01-10"), Action: models.ActionSell, Quantity: 100, Price: 108, Instrument: models.InstrumentStock},
	}
}

func defaultBars() []models.DailyBar {
	return []models.DailyBar{
		bar("2024-01-02", 101, 99),
		bar("2024-01-04", 112, 98),
		bar("2024-01-10", 109, 107),
	}
}

func TestCalculateSingleUnderlying(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]models.DailyBar{"AAPL": defaultBars()}}
	svc, store := newExcursionService(t, stockPair("AAPL"), md)

	result, err := svc.Calculate(context.Background(), "AAPL", false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CalculatedCount)
	assert.Zero(t, result.SkippedCount)
	assert.Empty(t, result.FailedSymbols)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	require.NotNil(t, rec.MFE)
	assert.InDelta(t, 12.0, *rec.MFE, 1e-9)
	assert.InDelta(t, -2.0, *rec.MAE, 1e-9)

	// The record persisted under its trade ID.
	stored, err := store.ExcursionStore().Get(context.Background(), "AAPL-t1")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, *stored.MFE, 1e-9)
}

func TestCalculateSkipsExistingUnlessRecalculate(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]models.DailyBar{"AAPL": defaultBars()}}
	svc, _ := newExcursionService(t, stockPair("AAPL"), md)
	ctx := context.Background()

	first, err := svc.Calculate(ctx, "AAPL", false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CalculatedCount)

	second, err := svc.Calculate(ctx, "AAPL", false)
	require.NoError(t, err)
	assert.Zero(t, second.CalculatedCount)
	assert.Equal(t, 1, second.SkippedCount)

	third, err := svc.Calculate(ctx, "AAPL", true)
	require.NoError(t, err)
	assert.Equal(t, 1, third.CalculatedCount)
	assert.Zero(t, third.SkippedCount)
}

func TestCalculateRecalculationIdempotent(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]models.DailyBar{"AAPL": defaultBars()}}
	svc, store := newExcursionService(t, stockPair("AAPL"), md)
	ctx := context.Background()

	_, err := svc.Calculate(ctx, "AAPL", true)
	require.NoError(t, err)
	_, err = svc.Calculate(ctx, "AAPL", true)
	require.NoError(t, err)

	// Overwrite in place, never append.
	records, err := store.ExcursionStore().List(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCalculateAllUnderlyings(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]models.DailyBar{
		"AAPL": defaultBars(),
		"MSFT": defaultBars(),
	}}
	trades := append(stockPair("AAPL"), stockPair("MSFT")...)
	svc, _ := newExcursionService(t, trades, md)

	result, err := svc.Calculate(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.CalculatedCount)
	assert.Equal(t, 2, md.barCalls, "one bar fetch per underlying")
}

func TestCalculateFailedSymbolIsolated(t *testing.T) {
	md := &fakeMarketData{
		bars:     map[string][]models.DailyBar{"MSFT": defaultBars()},
		failures: map[string]error{"AAPL": fmt.Errorf("provider timeout")},
	}
	trades := append(stockPair("AAPL"), stockPair("MSFT")...)
	svc, store := newExcursionService(t, trades, md)

	result, err := svc.Calculate(context.Background(), "", false)
	require.NoError(t, err, "a symbol gap never fails the batch")
	assert.Equal(t, []string{"AAPL"}, result.FailedSymbols)
	assert.Equal(t, 2, result.CalculatedCount)

	// The failed symbol still gets a record, with nil excursion fields.
	rec, err := store.ExcursionStore().Get(context.Background(), "AAPL-t1")
	require.NoError(t, err)
	assert.Nil(t, rec.MFE)
	assert.Nil(t, rec.MAE)

	// The healthy symbol computed normally.
	rec, err = store.ExcursionStore().Get(context.Background(), "MSFT-t1")
	require.NoError(t, err)
	require.NotNil(t, rec.MFE)
}

func TestCalculateOptionTrip(t *testing.T) {
	expiry := day("2024-12-20")
	trades := []*models.Trade{
		{ID: "o1", Symbol: "AAPL", Underlying: "AAPL", Timestamp: day("2024-01-02"), Action: models.ActionBuy, Quantity: 1, Price: 1.50, Instrument: models.InstrumentOption, OptionType: models.OptionCall, Strike: 185, Expiry: expiry},
	}
	occ := "AAPL241220C00185000"
	md := &fakeMarketData{marks: map[string][]models.OptionMark{
		occ: {
			{Date: day("2024-01-03"), PnLPct: 30},
			{Date: day("2024-01-05"), PnLPct: -15},
		},
	}}
	svc, _ := newExcursionService(t, trades, md)

	result, err := svc.Calculate(context.Background(), "AAPL", false)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	require.NotNil(t, rec.MFE)
	assert.InDelta(t, 30.0, *rec.MFE, 1e-9)
	assert.InDelta(t, -15.0, *rec.MAE, 1e-9)
	assert.Nil(t, rec.Efficiency)
	assert.Zero(t, md.barCalls, "option-only underlyings fetch no OHLC bars")
}

func TestOCCSymbol(t *testing.T) {
	trip := &RoundTrip{
		Underlying: "AAPL",
		OptionType: models.OptionCall,
		Strike:     185,
		Expiry:     day("2024-12-20"),
	}
	assert.Equal(t, "AAPL241220C00185000", OCCSymbol(trip))

	trip.OptionType = models.OptionPut
	trip.Strike = 187.5
	assert.Equal(t, "AAPL241220P00187500", OCCSymbol(trip))
}

func TestGetRecords(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]models.DailyBar{"AAPL": defaultBars()}}
	svc, _ := newExcursionService(t, stockPair("AAPL"), md)
	ctx := context.Background()

	_, err := svc.Calculate(ctx, "AAPL", false)
	require.NoError(t, err)

	records, err := svc.GetRecords(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = svc.GetRecords(ctx, "TSLA")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCalculateWithoutMarketDataClient(t *testing.T) {
	expiry := day("2024-12-20")
	trades := append(stockPair("AAPL"), &models.Trade{
		ID: "o1", Symbol: "AAPL", Underlying: "AAPL", Timestamp: day("2024-01-02"),
		Action: models.ActionBuy, Quantity: 1, Price: 1.50,
		Instrument: models.InstrumentOption, OptionType: models.OptionCall, Strike: 185, Expiry: expiry,
	})

	store := memory.NewManager()
	ctx := context.Background()
	for _, tr := range trades {
		require.NoError(t, store.TradeStore().SaveTrade(ctx, tr))
	}
	svc := NewService(store, nil, Config{Workers: 2, GapToleranceDays: 5}, common.NewSilentLogger())
	svc.now = func() time.Time { return day("2024-02-01") }

	result, err := svc.Calculate(ctx, "AAPL", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, result.FailedSymbols)
	assert.Equal(t, 2, result.CalculatedCount)
	require.Len(t, result.Records, 2)

	// Every record degrades to a data gap but keeps its identity.
	for _, rec := range result.Records {
		assert.Nil(t, rec.MFE)
		assert.Nil(t, rec.MAE)
		assert.Nil(t, rec.Efficiency)
		assert.Equal(t, "AAPL", rec.Underlying)
	}

	stored, err := store.ExcursionStore().Get(ctx, "AAPL-t1")
	require.NoError(t, err)
	assert.Nil(t, stored.MFE)
}
