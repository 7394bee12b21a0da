package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/models"
)

// TradeStore persists trades in the "trades" table, one record per
// stable trade ID.
type TradeStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewTradeStore(db *surrealdb.DB, logger *common.Logger) *TradeStore {
	return &TradeStore{db: db, logger: logger}
}

// SaveTrade upserts a trade by its stable ID.
func (s *TradeStore) SaveTrade(ctx context.Context, trade *models.Trade) error {
	if trade == nil || trade.ID == "" {
		return fmt.Errorf("trade requires an ID")
	}

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("trades", trade.ID), "data": trade}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Trade](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save trade after retries: %w", lastErr)
}

// GetTrades retrieves trades for an underlying in chronological order.
// Empty underlying returns all trades.
func (s *TradeStore) GetTrades(ctx context.Context, underlying string) ([]*models.Trade, error) {
	sql := "SELECT * FROM trades ORDER BY timestamp ASC, id ASC"
	vars := map[string]any{}
	if underlying != "" {
		sql = "SELECT * FROM trades WHERE underlying = $underlying ORDER BY timestamp ASC, id ASC"
		vars["underlying"] = underlying
	}

	results, err := surrealdb.Query[[]models.Trade](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}

	var trades []*models.Trade
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			trades = append(trades, &(*results)[0].Result[i])
		}
	}
	return trades, nil
}

// ListUnderlyings returns the distinct underlyings with trade history.
func (s *TradeStore) ListUnderlyings(ctx context.Context) ([]string, error) {
	type underlyingResult struct {
		Underlying string `json:"underlying"`
	}

	sql := "SELECT underlying FROM trades GROUP BY underlying ORDER BY underlying ASC"
	results, err := surrealdb.Query[[]underlyingResult](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list underlyings: %w", err)
	}

	var underlyings []string
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			underlyings = append(underlyings, r.Underlying)
		}
	}
	return underlyings, nil
}
