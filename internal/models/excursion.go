package models

import "time"

// TradeDirection is the side of a round trip
type TradeDirection string

const (
	DirectionLong  TradeDirection = "long"
	DirectionShort TradeDirection = "short"
)

// DailyBar is one daily OHLC bar from the market-data provider.
type DailyBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote is a real-time price snapshot.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// OptionMark is one point of an option position's mark-to-market P&L
// percentage series. Underlying OHLC excursions are not meaningful for
// time-decaying instruments, so the option walk runs over these instead.
type OptionMark struct {
	Date   time.Time `json:"date"`
	PnLPct float64   `json:"pnl_pct"`
}

// MFEMAERecord holds the excursion analytics for one round trip (or one
// still-open trade, partially populated). Pointer fields are nil when
// the value is undefined: exit fields for open trades, mfe/mae when the
// price history has a gap, efficiency for open trades and always for
// option trades (premium paths make capture ratios misleading, so the
// field is intentionally never populated for options).
type MFEMAERecord struct {
	TradeID      string         `json:"trade_id"`
	Symbol       string         `json:"symbol"`
	Underlying   string         `json:"underlying"`
	Instrument   InstrumentType `json:"instrument_type"`
	Direction    TradeDirection `json:"direction"`
	EntryDate    time.Time      `json:"entry_date"`
	EntryPrice   float64        `json:"entry_price"`
	ExitDate     *time.Time     `json:"exit_date,omitempty"`
	ExitPrice    *float64       `json:"exit_price,omitempty"`
	MFE          *float64       `json:"mfe,omitempty"` // %, >= 0 when defined
	MAE          *float64       `json:"mae,omitempty"` // %, <= 0 when defined
	RealizedPct  *float64       `json:"realized_pnl_pct,omitempty"`
	Efficiency   *float64       `json:"trade_efficiency,omitempty"` // realized_pct / mfe
	HoldingDays  int            `json:"holding_days"`
	CalculatedAt time.Time      `json:"calculated_at"`
}

// IsOpen returns true while the trade has no exit.
func (r *MFEMAERecord) IsOpen() bool {
	return r.ExitDate == nil
}

// CalculationResult summarizes one MFE/MAE calculation pass.
// Per-symbol failures are reported here rather than failing the batch.
type CalculationResult struct {
	CalculatedCount int             `json:"calculated_count"`
	SkippedCount    int             `json:"skipped_count"` // already calculated, recalculate=false
	FailedSymbols   []string        `json:"failed_symbols,omitempty"`
	Records         []*MFEMAERecord `json:"records"`
}

// Analysis is the aggregate excursion summary: deterministic statistics
// and threshold-derived findings, no AI involved.
type Analysis struct {
	TotalRecords    int      `json:"total_records"`
	ClosedTrades    int      `json:"closed_trades"`
	OpenTrades      int      `json:"open_trades"`
	MissingData     int      `json:"missing_data"` // records with nil mfe/mae (provider gaps)
	AvgMFE          float64  `json:"avg_mfe"`
	AvgMAE          float64  `json:"avg_mae"`
	AvgEfficiency   float64  `json:"avg_efficiency"`
	EfficientTrades int      `json:"efficient_trades"` // efficiency >= floor
	LargeMAETrades  int      `json:"large_mae_trades"` // mae <= adverse threshold
	EfficiencyFloor float64  `json:"efficiency_floor"`
	AdverseMAEPct   float64  `json:"adverse_mae_pct"`
	Issues          []string `json:"issues,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
}
