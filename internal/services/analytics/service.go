// Package analytics rolls excursion records up into summary statistics
// and threshold-derived findings
package analytics

import (
	"context"
	"fmt"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/interfaces"
	"github.com/bobmcallan/tradescope/internal/models"
)

// Thresholds configures the finding rules.
type Thresholds struct {
	// EfficiencyFloor marks a closed trade efficient when its capture
	// ratio meets or exceeds it.
	EfficiencyFloor float64
	// AdverseMAEPct marks a trade as a large drawdown when its MAE is
	// at or below it (a negative percentage).
	AdverseMAEPct float64
}

// Service implements AnalyticsService. All findings are deterministic
// arithmetic over stored records; nothing here consults a model or
// external scorer.
type Service struct {
	storage    interfaces.StorageManager
	thresholds Thresholds
	logger     *common.Logger
}

// NewService creates a new analytics service.
func NewService(storage interfaces.StorageManager, thresholds Thresholds, logger *common.Logger) *Service {
	if thresholds.EfficiencyFloor <= 0 {
		thresholds.EfficiencyFloor = 0.5
	}
	if thresholds.AdverseMAEPct >= 0 {
		thresholds.AdverseMAEPct = -10
	}
	return &Service{storage: storage, thresholds: thresholds, logger: logger}
}

// GetStats summarizes all stored excursion records.
func (s *Service) GetStats(ctx context.Context) (*models.Analysis, error) {
	records, err := s.storage.ExcursionStore().List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load excursion records: %w", err)
	}
	return Summarize(records, s.thresholds), nil
}

// Summarize reduces a record set to aggregate statistics and findings.
// Averages run over the records where the field is defined; records
// with data gaps count toward MissingData and nothing else.
func Summarize(records []*models.MFEMAERecord, th Thresholds) *models.Analysis {
	analysis := &models.Analysis{
		TotalRecords:    len(records),
		EfficiencyFloor: th.EfficiencyFloor,
		AdverseMAEPct:   th.AdverseMAEPct,
	}

	var sumMFE, sumMAE, sumEff float64
	var nExcursion, nEff int
	for _, r := range records {
		if r.IsOpen() {
			analysis.OpenTrades++
		} else {
			analysis.ClosedTrades++
		}
		if r.MFE == nil || r.MAE == nil {
			analysis.MissingData++
			continue
		}

		sumMFE += *r.MFE
		sumMAE += *r.MAE
		nExcursion++

		if r.Efficiency != nil {
			sumEff += *r.Efficiency
			nEff++
			if *r.Efficiency >= th.EfficiencyFloor {
				analysis.EfficientTrades++
			}
		}
		if *r.MAE <= th.AdverseMAEPct {
			analysis.LargeMAETrades++
		}
	}

	if nExcursion > 0 {
		analysis.AvgMFE = sumMFE / float64(nExcursion)
		analysis.AvgMAE = sumMAE / float64(nExcursion)
	}
	if nEff > 0 {
		analysis.AvgEfficiency = sumEff / float64(nEff)
	}

	analysis.Issues, analysis.Suggestions = findings(analysis, nEff)
	return analysis
}

// findings derives the free-text issue and suggestion lists from the
// aggregates. The rules are ordered so the output is deterministic for
// a given record set.
func findings(a *models.Analysis, scoredTrades int) (issues, suggestions []string) {
	if a.MissingData > 0 {
		issues = append(issues, fmt.Sprintf("%d of %d trades are missing price history; rerun the calculation with recalculate once the provider recovers", a.MissingData, a.TotalRecords))
	}
	if a.LargeMAETrades > 0 {
		issues = append(issues, fmt.Sprintf("%d trades drew down %.0f%% or worse against entry", a.LargeMAETrades, a.AdverseMAEPct))
		suggestions = append(suggestions, fmt.Sprintf("review stop placement: drawdowns beyond %.0f%% suggest exits are too loose for the position size", a.AdverseMAEPct))
	}
	if scoredTrades > 0 && a.AvgEfficiency < a.EfficiencyFloor {
		issues = append(issues, fmt.Sprintf("average efficiency %.2f is below the %.2f floor", a.AvgEfficiency, a.EfficiencyFloor))
		suggestions = append(suggestions, "profits are being given back after the favorable extreme; consider tightening exits or scaling out near prior peaks")
	}
	if scoredTrades > 0 && a.EfficientTrades == scoredTrades && a.AvgEfficiency >= a.EfficiencyFloor {
		suggestions = append(suggestions, "exit timing is capturing most of the available move; current exit rules look sound")
	}
	return issues, suggestions
}

// SummarizePortfolio sums position values into portfolio totals. The
// totals are exact sums of the per-position numbers; any rounding is a
// display concern left to callers.
func SummarizePortfolio(positions []models.Position) models.PortfolioTotals {
	var totals models.PortfolioTotals
	for _, pos := range positions {
		totals.MarketValue += pos.MarketValue
		totals.UnrealizedPnL += pos.UnrealizedPnL
		totals.RealizedPnL += pos.RealizedPnL
		totals.PositionCount++
	}
	return totals
}

// Ensure Service implements AnalyticsService
var _ interfaces.AnalyticsService = (*Service)(nil)
