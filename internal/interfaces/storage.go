// Package interfaces defines service contracts for Tradescope
package interfaces

import (
	"context"

	"github.com/bobmcallan/tradescope/internal/models"
)

// StorageManager coordinates the storage backends
type StorageManager interface {
	TradeStore() TradeStore
	ExcursionStore() ExcursionStore

	// Lifecycle
	Close() error
}

// TradeStore persists raw trade records. Trades are written by ingestion
// and read-only for the engine.
type TradeStore interface {
	// SaveTrade upserts a trade by its stable ID.
	SaveTrade(ctx context.Context, trade *models.Trade) error

	// GetTrades retrieves trades for an underlying in chronological order.
	// Empty underlying returns all trades.
	GetTrades(ctx context.Context, underlying string) ([]*models.Trade, error)

	// ListUnderlyings returns the distinct underlyings with trade history.
	ListUnderlyings(ctx context.Context) ([]string, error)
}

// ExcursionStore persists MFE/MAE records keyed by trade ID.
// Upsert semantics: recalculation overwrites in place, never duplicates.
type ExcursionStore interface {
	Upsert(ctx context.Context, record *models.MFEMAERecord) error
	Get(ctx context.Context, tradeID string) (*models.MFEMAERecord, error)

	// List retrieves records, optionally filtered by underlying ("" = all),
	// ordered by entry date ascending.
	List(ctx context.Context, underlying string) ([]*models.MFEMAERecord, error)
}
