package models

import "time"

// RiskLevel is a coarse loss-exposure tier for a combined strategy
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// Strategy labels assigned by the classifier. New labels must be added
// ahead of the Options Combo catch-all in the rule table or they will
// never fire.
const (
	StrategyPureStock      = "Pure Stock Position"
	StrategyCoveredCall    = "Covered Call"
	StrategyCollar         = "Collar"
	StrategyProtectivePut  = "Protective Put"
	StrategyCashSecuredPut = "Cash-Secured Put"
	StrategyNakedPut       = "Naked Put"
	StrategyLongStraddle   = "Long Straddle"
	StrategyLongStrangle   = "Long Strangle"
	StrategyShortStraddle  = "Short Straddle"
	StrategyShortStrangle  = "Short Strangle"
	StrategyBullCallSpread = "Bull Call Spread"
	StrategyBearCallSpread = "Bear Call Spread"
	StrategyBullPutSpread  = "Bull Put Spread"
	StrategyBearPutSpread  = "Bear Put Spread"
	StrategyIronCondor     = "Iron Condor"
	StrategyIronButterfly  = "Iron Butterfly"
	StrategyOptionsCombo   = "Options Combo"
)

// OptionLeg is the net open quantity of one option contract line
// (underlying/type/strike/expiry). Ephemeral: recomputed on every
// aggregation pass, never persisted on its own.
type OptionLeg struct {
	Type        OptionType `json:"option_type"`
	Strike      float64    `json:"strike"`
	Expiry      time.Time  `json:"expiry"`
	NetQuantity float64    `json:"net_quantity"` // signed: positive long, negative short
}

// IsLong returns true for a net-long leg.
func (l OptionLeg) IsLong() bool {
	return l.NetQuantity > 0
}

// IsShort returns true for a net-short leg.
func (l OptionLeg) IsShort() bool {
	return l.NetQuantity < 0
}

// Position is the consolidated per-underlying view: stock leg, open
// option legs, and the inferred combined strategy. Derived in full from
// trade history on every request.
type Position struct {
	Underlying    string      `json:"underlying"`
	StockQuantity float64     `json:"stock_quantity"`
	AvgCost       float64     `json:"avg_cost"`
	CurrentPrice  float64     `json:"current_price"`
	MarketValue   float64     `json:"market_value"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	RealizedPnL   float64     `json:"realized_pnl"`
	Legs          []OptionLeg `json:"option_legs,omitempty"`
	Strategy      string      `json:"strategy"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	LastTrade     time.Time   `json:"last_trade"`
}

// PortfolioTotals are exact sums over the constituent positions.
type PortfolioTotals struct {
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	PositionCount int     `json:"position_count"`
}

// Portfolio is the response shape of the portfolio operation.
type Portfolio struct {
	Positions []Position      `json:"positions"`
	Totals    PortfolioTotals `json:"totals"`
	AsOf      time.Time       `json:"as_of"`
}
