package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/models"
)

// ExcursionStore persists MFE/MAE records in the "mfe_mae_records"
// table, one record per trade ID. Recalculation overwrites in place.
type ExcursionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewExcursionStore(db *surrealdb.DB, logger *common.Logger) *ExcursionStore {
	return &ExcursionStore{db: db, logger: logger}
}

// Upsert overwrites the record for its trade ID. Last write wins;
// recomputation is deterministic for the same inputs, so concurrent
// writers converge.
func (s *ExcursionStore) Upsert(ctx context.Context, record *models.MFEMAERecord) error {
	if record == nil || record.TradeID == "" {
		return fmt.Errorf("excursion record requires a trade ID")
	}

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("mfe_mae_records", record.TradeID), "data": record}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.MFEMAERecord](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save excursion record after retries: %w", lastErr)
}

// Get retrieves the record for a trade ID.
func (s *ExcursionStore) Get(ctx context.Context, tradeID string) (*models.MFEMAERecord, error) {
	record, err := surrealdb.Select[models.MFEMAERecord](ctx, s.db, surrealmodels.NewRecordID("mfe_mae_records", tradeID))
	if err != nil {
		return nil, fmt.Errorf("failed to select excursion record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("excursion record for '%s' not found", tradeID)
	}
	return record, nil
}

// List retrieves records, optionally filtered by underlying ("" = all),
// ordered by entry date ascending.
func (s *ExcursionStore) List(ctx context.Context, underlying string) ([]*models.MFEMAERecord, error) {
	sql := "SELECT * FROM mfe_mae_records ORDER BY entry_date ASC, trade_id ASC"
	vars := map[string]any{}
	if underlying != "" {
		sql = "SELECT * FROM mfe_mae_records WHERE underlying = $underlying ORDER BY entry_date ASC, trade_id ASC"
		vars["underlying"] = underlying
	}

	results, err := surrealdb.Query[[]models.MFEMAERecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list excursion records: %w", err)
	}

	var records []*models.MFEMAERecord
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			records = append(records, &(*results)[0].Result[i])
		}
	}
	return records, nil
}
