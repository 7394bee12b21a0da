package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/interfaces"
	"github.com/bobmcallan/tradescope/internal/models"
	"github.com/bobmcallan/tradescope/internal/services/strategy"
)

// Service implements PortfolioService. Positions are stateless
// derivations: every request rebuilds them from the stored trade
// history, prices them with live quotes, and classifies the combined
// strategy. Nothing is written back.
type Service struct {
	storage    interfaces.StorageManager
	marketdata interfaces.MarketDataClient
	classifier *strategy.Classifier
	logger     *common.Logger
	now        func() time.Time // injectable clock for testing
}

// NewService creates a new portfolio service.
// marketdata may be nil, in which case positions fall back to cost-basis pricing.
func NewService(storage interfaces.StorageManager, marketdata interfaces.MarketDataClient, classifier *strategy.Classifier, logger *common.Logger) *Service {
	return &Service{
		storage:    storage,
		marketdata: marketdata,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// GetPortfolio rebuilds all positions with current prices and totals.
func (s *Service) GetPortfolio(ctx context.Context) (*models.Portfolio, error) {
	trades, err := s.storage.TradeStore().GetTrades(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	positions := Aggregate(trades)

	out := make([]models.Position, 0, len(positions))
	var totals models.PortfolioTotals
	for _, pos := range positions {
		s.enrich(ctx, pos)
		totals.MarketValue += pos.MarketValue
		totals.UnrealizedPnL += pos.UnrealizedPnL
		totals.RealizedPnL += pos.RealizedPnL
		totals.PositionCount++
		out = append(out, *pos)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Underlying < out[j].Underlying })

	s.logger.Debug().
		Int("positions", len(out)).
		Float64("market_value", totals.MarketValue).
		Msg("Portfolio rebuilt")

	return &models.Portfolio{
		Positions: out,
		Totals:    totals,
		AsOf:      s.now(),
	}, nil
}

// GetPosition rebuilds the position for one underlying.
func (s *Service) GetPosition(ctx context.Context, underlying string) (*models.Position, error) {
	trades, err := s.storage.TradeStore().GetTrades(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for %s: %w", underlying, err)
	}

	positions := Aggregate(trades)
	pos, ok := positions[underlying]
	if !ok {
		return nil, fmt.Errorf("no open position for %s", underlying)
	}

	s.enrich(ctx, pos)
	return pos, nil
}

// enrich prices the position and classifies its combined strategy.
// A quote failure degrades that one position to cost-basis pricing.
func (s *Service) enrich(ctx context.Context, pos *models.Position) {
	Price(pos, s.currentPrice(ctx, pos.Underlying))

	label, risk := s.classifier.Classify(strategy.Input{
		StockQuantity: pos.StockQuantity,
		CurrentPrice:  pos.CurrentPrice,
		Legs:          pos.Legs,
	})
	pos.Strategy = label
	pos.RiskLevel = risk
}

func (s *Service) currentPrice(ctx context.Context, underlying string) float64 {
	if s.marketdata == nil {
		return 0
	}
	quote, err := s.marketdata.GetRealTimeQuote(ctx, underlying)
	if err != nil {
		s.logger.Warn().Err(err).Str("underlying", underlying).Msg("Quote unavailable, pricing at cost")
		return 0
	}
	return quote.Price
}

// Ensure Service implements PortfolioService
var _ interfaces.PortfolioService = (*Service)(nil)
