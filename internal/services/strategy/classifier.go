// Package strategy classifies the combined stock/option shape of a
// position into a strategy label and risk tier
package strategy

import (
	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/models"
)

// Input is the position shape presented to the rule table.
type Input struct {
	StockQuantity float64
	CurrentPrice  float64
	Legs          []models.OptionLeg
}

// Rule is one entry in the ordered classification table. When evaluates
// the predicate; Apply produces the label and risk tier, which may
// depend on the input (e.g. position size).
type Rule struct {
	Name  string
	When  func(Input) bool
	Apply func(Input) (string, models.RiskLevel)
}

// Options configures classification policy.
type Options struct {
	// LargePositionQty is the absolute stock quantity at which a pure
	// stock position moves from low to medium risk.
	LargePositionQty float64

	// NakedPutLabeling labels bare short puts "Naked Put" (very high
	// risk) instead of the default "Cash-Secured Put" convention, which
	// assumes cash backing is tracked elsewhere.
	NakedPutLabeling bool
}

// Classifier evaluates the rule table top to bottom; the first matching
// rule wins, so more specific shapes must be listed before generic
// fallbacks. New rules must be inserted before the Options Combo
// catch-all or they will be shadowed.
type Classifier struct {
	rules  []Rule
	logger *common.Logger
}

// NewClassifier builds the rule table for the given policy options.
func NewClassifier(opts Options, logger *common.Logger) *Classifier {
	if opts.LargePositionQty <= 0 {
		opts.LargePositionQty = 1000
	}
	return &Classifier{rules: buildRules(opts), logger: logger}
}

// Classify assigns a strategy label and risk tier. The rule table is
// exhaustive for any input with stock or open legs; a flat input with
// no legs yields no classification (the position is not emitted at all).
// The table is mutually exclusive by construction: if no rule fires on
// a non-empty input that is a table bug, logged loudly and mapped to
// the generic combo label rather than raised.
func (c *Classifier) Classify(in Input) (string, models.RiskLevel) {
	if in.StockQuantity == 0 && len(in.Legs) == 0 {
		return "", ""
	}
	for _, rule := range c.rules {
		if rule.When(in) {
			return rule.Apply(in)
		}
	}
	c.logger.Error().
		Float64("stock_qty", in.StockQuantity).
		Int("legs", len(in.Legs)).
		Msg("Classification rule table gap, falling back to generic combo")
	return models.StrategyOptionsCombo, models.RiskHigh
}

func buildRules(opts Options) []Rule {
	return []Rule{
		{
			Name: "pure-stock",
			When: func(in Input) bool {
				return len(in.Legs) == 0 && in.StockQuantity != 0
			},
			Apply: func(in Input) (string, models.RiskLevel) {
				if abs(in.StockQuantity) >= opts.LargePositionQty {
					return models.StrategyPureStock, models.RiskMedium
				}
				return models.StrategyPureStock, models.RiskLow
			},
		},
		{
			Name: "covered-call",
			When: func(in Input) bool {
				return in.StockQuantity > 0 &&
					len(in.Legs) == 1 &&
					shortCalls(in.Legs) == 1 &&
					in.Legs[0].Strike >= in.CurrentPrice
			},
			Apply: fixed(models.StrategyCoveredCall, models.RiskMedium),
		},
		{
			Name: "collar",
			When: func(in Input) bool {
				if in.StockQuantity <= 0 || len(in.Legs) != 2 {
					return false
				}
				call, put := findLeg(in.Legs, models.OptionCall), findLeg(in.Legs, models.OptionPut)
				return call != nil && put != nil &&
					call.IsShort() && put.IsLong() &&
					call.Strike != put.Strike
			},
			Apply: fixed(models.StrategyCollar, models.RiskLow),
		},
		{
			Name: "protective-put",
			When: func(in Input) bool {
				return in.StockQuantity > 0 &&
					len(in.Legs) == 1 &&
					longPuts(in.Legs) == 1
			},
			Apply: fixed(models.StrategyProtectivePut, models.RiskLow),
		},
		{
			Name: "short-put",
			When: func(in Input) bool {
				return in.StockQuantity == 0 &&
					len(in.Legs) == 1 &&
					shortPuts(in.Legs) == 1
			},
			Apply: func(Input) (string, models.RiskLevel) {
				if opts.NakedPutLabeling {
					return models.StrategyNakedPut, models.RiskVeryHigh
				}
				return models.StrategyCashSecuredPut, models.RiskMedium
			},
		},
		{
			Name: "long-straddle-strangle",
			When: func(in Input) bool {
				if in.StockQuantity != 0 || len(in.Legs) != 2 {
					return false
				}
				call, put := findLeg(in.Legs, models.OptionCall), findLeg(in.Legs, models.OptionPut)
				return call != nil && put != nil && call.IsLong() && put.IsLong()
			},
			Apply: func(in Input) (string, models.RiskLevel) {
				call, put := findLeg(in.Legs, models.OptionCall), findLeg(in.Legs, models.OptionPut)
				if call.Strike == put.Strike && call.Expiry.Equal(put.Expiry) {
					return models.StrategyLongStraddle, models.RiskHigh
				}
				return models.StrategyLongStrangle, models.RiskHigh
			},
		},
		{
			Name: "short-straddle-strangle",
			When: func(in Input) bool {
				if in.StockQuantity != 0 || len(in.Legs) != 2 {
					return false
				}
				call, put := findLeg(in.Legs, models.OptionCall), findLeg(in.Legs, models.OptionPut)
				return call != nil && put != nil && call.IsShort() && put.IsShort()
			},
			Apply: func(in Input) (string, models.RiskLevel) {
				call, put := findLeg(in.Legs, models.OptionCall), findLeg(in.Legs, models.OptionPut)
				if call.Strike == put.Strike && call.Expiry.Equal(put.Expiry) {
					return models.StrategyShortStraddle, models.RiskVeryHigh
				}
				return models.StrategyShortStrangle, models.RiskVeryHigh
			},
		},
		{
			Name: "vertical-spread",
			When: func(in Input) bool {
				return in.StockQuantity == 0 && isVertical(in.Legs)
			},
			Apply: func(in Input) (string, models.RiskLevel) {
				return verticalLabel(in.Legs), models.RiskMedium
			},
		},
		{
			Name: "iron-condor-butterfly",
			When: func(in Input) bool {
				return in.StockQuantity == 0 && isIron(in.Legs)
			},
			Apply: func(in Input) (string, models.RiskLevel) {
				shortCall := findShort(in.Legs, models.OptionCall)
				shortPut := findShort(in.Legs, models.OptionPut)
				if shortCall.Strike == shortPut.Strike {
					return models.StrategyIronButterfly, models.RiskMedium
				}
				return models.StrategyIronCondor, models.RiskMedium
			},
		},
		{
			// Catch-all. Anything with at least one open leg that no
			// specific rule recognized is unclassified exposure.
			Name: "options-combo",
			When: func(in Input) bool {
				return len(in.Legs) >= 1
			},
			Apply: fixed(models.StrategyOptionsCombo, models.RiskHigh),
		},
	}
}

// isVertical reports two same-type, same-expiry legs on opposite sides
// with different strikes.
func isVertical(legs []models.OptionLeg) bool {
	if len(legs) != 2 {
		return false
	}
	a, b := legs[0], legs[1]
	return a.Type == b.Type &&
		a.Expiry.Equal(b.Expiry) &&
		a.Strike != b.Strike &&
		a.IsLong() != b.IsLong()
}

func verticalLabel(legs []models.OptionLeg) string {
	long, short := legs[0], legs[1]
	if short.IsLong() {
		long, short = short, long
	}
	if long.Type == models.OptionCall {
		if long.Strike < short.Strike {
			return models.StrategyBullCallSpread
		}
		return models.StrategyBearCallSpread
	}
	if long.Strike > short.Strike {
		return models.StrategyBearPutSpread
	}
	return models.StrategyBullPutSpread
}

// isIron reports four legs forming a call vertical and a put vertical
// at the same expiry: one long and one short of each type.
func isIron(legs []models.OptionLeg) bool {
	if len(legs) != 4 {
		return false
	}
	var calls, puts []models.OptionLeg
	for _, l := range legs {
		if l.Type == models.OptionCall {
			calls = append(calls, l)
		} else {
			puts = append(puts, l)
		}
	}
	if len(calls) != 2 || len(puts) != 2 {
		return false
	}
	expiry := legs[0].Expiry
	for _, l := range legs[1:] {
		if !l.Expiry.Equal(expiry) {
			return false
		}
	}
	return calls[0].IsLong() != calls[1].IsLong() &&
		puts[0].IsLong() != puts[1].IsLong()
}

func findLeg(legs []models.OptionLeg, t models.OptionType) *models.OptionLeg {
	for i := range legs {
		if legs[i].Type == t {
			return &legs[i]
		}
	}
	return nil
}

func findShort(legs []models.OptionLeg, t models.OptionType) *models.OptionLeg {
	for i := range legs {
		if legs[i].Type == t && legs[i].IsShort() {
			return &legs[i]
		}
	}
	return nil
}

func shortCalls(legs []models.OptionLeg) int { return countLegs(legs, models.OptionCall, false) }
func shortPuts(legs []models.OptionLeg) int  { return countLegs(legs, models.OptionPut, false) }
func longPuts(legs []models.OptionLeg) int   { return countLegs(legs, models.OptionPut, true) }

func countLegs(legs []models.OptionLeg, t models.OptionType, long bool) int {
	n := 0
	for _, l := range legs {
		if l.Type == t && l.IsLong() == long && l.NetQuantity != 0 {
			n++
		}
	}
	return n
}

func fixed(label string, risk models.RiskLevel) func(Input) (string, models.RiskLevel) {
	return func(Input) (string, models.RiskLevel) { return label, risk }
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
