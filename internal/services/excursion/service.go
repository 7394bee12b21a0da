package excursion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/interfaces"
	"github.com/bobmcallan/tradescope/internal/models"
)

// Service implements ExcursionService. Each Calculate pass is a
// stateless batch: per-underlying work fans out across a bounded worker
// pool, every record write is an independent upsert by trade ID, and a
// failed price fetch degrades that underlying's records instead of
// failing the batch.
type Service struct {
	storage    interfaces.StorageManager
	marketdata interfaces.MarketDataClient
	logger     *common.Logger
	now        func() time.Time // injectable clock for testing

	workers      int
	fetchTimeout time.Duration
	gapTolerance int
}

// Config tunes a calculation pass.
type Config struct {
	// Workers bounds concurrent per-underlying calculations.
	Workers int
	// FetchTimeout bounds each market-data call.
	FetchTimeout time.Duration
	// GapToleranceDays is the widest edge gap a bar window may have
	// before the record degrades to nil excursion fields.
	GapToleranceDays int
}

// NewService creates a new excursion service.
func NewService(storage interfaces.StorageManager, marketdata interfaces.MarketDataClient, cfg Config, logger *common.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.GapToleranceDays <= 0 {
		cfg.GapToleranceDays = 5
	}
	return &Service{
		storage:      storage,
		marketdata:   marketdata,
		logger:       logger,
		now:          time.Now,
		workers:      cfg.Workers,
		fetchTimeout: cfg.FetchTimeout,
		gapTolerance: cfg.GapToleranceDays,
	}
}

// Calculate computes excursion records for one underlying, or all when
// underlying is empty. Existing records are skipped unless recalculate
// is set; recalculation overwrites in place and is idempotent.
func (s *Service) Calculate(ctx context.Context, underlying string, recalculate bool) (*models.CalculationResult, error) {
	underlyings := []string{underlying}
	if underlying == "" {
		var err error
		underlyings, err = s.storage.TradeStore().ListUnderlyings(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list underlyings: %w", err)
		}
	}

	result := &models.CalculationResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)

	for _, u := range underlyings {
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()

			partial := s.calculateUnderlying(ctx, u, recalculate)

			mu.Lock()
			result.CalculatedCount += partial.CalculatedCount
			result.SkippedCount += partial.SkippedCount
			result.FailedSymbols = append(result.FailedSymbols, partial.FailedSymbols...)
			result.Records = append(result.Records, partial.Records...)
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	sort.Slice(result.Records, func(i, j int) bool {
		if result.Records[i].EntryDate.Equal(result.Records[j].EntryDate) {
			return result.Records[i].TradeID < result.Records[j].TradeID
		}
		return result.Records[i].EntryDate.Before(result.Records[j].EntryDate)
	})
	result.FailedSymbols = dedupe(result.FailedSymbols)

	s.logger.Info().
		Int("calculated", result.CalculatedCount).
		Int("skipped", result.SkippedCount).
		Int("failed_symbols", len(result.FailedSymbols)).
		Msg("Excursion calculation pass complete")

	return result, nil
}

// GetRecords retrieves stored records ("" = all underlyings).
func (s *Service) GetRecords(ctx context.Context, underlying string) ([]*models.MFEMAERecord, error) {
	records, err := s.storage.ExcursionStore().List(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("failed to load excursion records: %w", err)
	}
	return records, nil
}

// calculateUnderlying processes one underlying's whole trade history.
// Errors are folded into the partial result, never returned: one
// underlying's gap must not block the others.
func (s *Service) calculateUnderlying(ctx context.Context, underlying string, recalculate bool) *models.CalculationResult {
	partial := &models.CalculationResult{}

	trades, err := s.storage.TradeStore().GetTrades(ctx, underlying)
	if err != nil {
		s.logger.Warn().Err(err).Str("underlying", underlying).Msg("Trade load failed, skipping underlying")
		partial.FailedSymbols = append(partial.FailedSymbols, underlying)
		return partial
	}
	trips := BuildRoundTrips(trades)
	if len(trips) == 0 {
		return partial
	}

	pending := trips[:0]
	for _, trip := range trips {
		if !recalculate {
			if _, err := s.storage.ExcursionStore().Get(ctx, trip.TradeID); err == nil {
				partial.SkippedCount++
				continue
			}
		}
		pending = append(pending, trip)
	}
	if len(pending) == 0 {
		return partial
	}

	asOf := s.now()
	bars, barsOK := s.fetchBars(ctx, underlying, pending, asOf)
	if !barsOK {
		partial.FailedSymbols = append(partial.FailedSymbols, underlying)
	}

	for _, trip := range pending {
		var rec *models.MFEMAERecord
		if trip.Instrument == models.InstrumentOption {
			rec = s.computeOptionTrip(ctx, trip, asOf)
		} else {
			rec = Compute(trip, bars, asOf, s.gapTolerance)
		}

		if err := s.storage.ExcursionStore().Upsert(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("trade_id", rec.TradeID).Msg("Excursion upsert failed")
			partial.FailedSymbols = append(partial.FailedSymbols, underlying)
			continue
		}
		partial.CalculatedCount++
		partial.Records = append(partial.Records, rec)
	}
	return partial
}

// fetchBars loads one OHLC window covering every pending trip. A fetch
// failure returns false; callers still compute records, which degrade
// to nil excursion fields.
func (s *Service) fetchBars(ctx context.Context, underlying string, trips []*RoundTrip, asOf time.Time) ([]models.DailyBar, bool) {
	needsBars := false
	from := asOf
	for _, trip := range trips {
		if trip.Instrument == models.InstrumentOption {
			continue
		}
		needsBars = true
		if trip.EntryDate.Before(from) {
			from = trip.EntryDate
		}
	}
	if !needsBars {
		return nil, true
	}
	if s.marketdata == nil {
		s.logger.Warn().Str("underlying", underlying).Msg("No market data client, records degrade to data gap")
		return nil, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	bars, err := s.marketdata.GetDailyBars(fetchCtx, underlying, from, asOf)
	if err != nil {
		s.logger.Warn().Err(err).Str("underlying", underlying).Msg("Bar fetch failed, records degrade to data gap")
		return nil, false
	}
	return bars, true
}

// computeOptionTrip walks the option position's own mark-to-market P&L
// series. A mark fetch failure yields a record with nil excursion
// fields, same as a stock data gap.
func (s *Service) computeOptionTrip(ctx context.Context, trip *RoundTrip, asOf time.Time) *models.MFEMAERecord {
	if s.marketdata == nil {
		s.logger.Warn().Str("symbol", trip.Symbol).Msg("No market data client, record degrades to data gap")
		return ComputeOption(trip, nil, asOf)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	windowEnd := asOf
	if trip.ExitDate != nil {
		windowEnd = *trip.ExitDate
	}
	marks, err := s.marketdata.GetOptionMarks(fetchCtx, OCCSymbol(trip), trip.EntryDate, windowEnd)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", trip.Symbol).Msg("Option mark fetch failed, record degrades to data gap")
		marks = nil
	}
	return ComputeOption(trip, marks, asOf)
}

// OCCSymbol renders a trip's option identity in OCC 21-byte format,
// e.g. AAPL241220C00185000.
func OCCSymbol(trip *RoundTrip) string {
	cp := "C"
	if trip.OptionType == models.OptionPut {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", trip.Underlying, trip.Expiry.Format("060102"), cp, int(trip.Strike*1000))
}

func dedupe(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	sort.Strings(symbols)
	out := symbols[:1]
	for _, s := range symbols[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// Ensure Service implements ExcursionService
var _ interfaces.ExcursionService = (*Service)(nil)
