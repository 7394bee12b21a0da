// Package interfaces defines service contracts for Tradescope
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/tradescope/internal/models"
)

// MarketDataClient provides price history, real-time quotes, and option
// mark series. Any call may fail or time out; callers must treat that as
// a recoverable data gap for the affected symbol, never a batch failure.
type MarketDataClient interface {
	// GetDailyBars retrieves daily OHLC bars for [from, to], ascending.
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyBar, error)

	// GetRealTimeQuote retrieves the current price for a symbol.
	GetRealTimeQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetOptionMarks retrieves the mark-to-market P&L percentage series
	// for an option position over [from, to], ascending.
	GetOptionMarks(ctx context.Context, occSymbol string, from, to time.Time) ([]models.OptionMark, error)
}
