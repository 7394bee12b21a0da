// Package interfaces defines service contracts for Tradescope
package interfaces

import (
	"context"

	"github.com/bobmcallan/tradescope/internal/models"
)

// PortfolioService derives consolidated positions from trade history
type PortfolioService interface {
	// GetPortfolio rebuilds all positions with current prices and totals.
	GetPortfolio(ctx context.Context) (*models.Portfolio, error)

	// GetPosition rebuilds the position for one underlying.
	GetPosition(ctx context.Context, underlying string) (*models.Position, error)
}

// ExcursionService computes MFE/MAE analytics from trade history and
// price series
type ExcursionService interface {
	// Calculate computes excursion records for one underlying, or all
	// when underlying is empty. Existing records are skipped unless
	// recalculate is set; recalculation is idempotent.
	Calculate(ctx context.Context, underlying string, recalculate bool) (*models.CalculationResult, error)

	// GetRecords retrieves stored records ("" = all underlyings).
	GetRecords(ctx context.Context, underlying string) ([]*models.MFEMAERecord, error)
}

// AnalyticsService rolls up excursion records and positions
type AnalyticsService interface {
	// GetStats summarizes all stored excursion records.
	GetStats(ctx context.Context) (*models.Analysis, error)

	// RenderEfficiencyChart renders a PNG scatter of efficiency vs MFE
	// for closed trades.
	RenderEfficiencyChart(ctx context.Context) ([]byte, error)
}
