// Package portfolio derives consolidated per-underlying positions from
// raw trade history
package portfolio

import (
	"sort"

	"github.com/bobmcallan/tradescope/internal/models"
)

// Aggregate partitions trades by underlying and folds each partition
// into a Position. Underlyings left with no stock and no open option
// legs are not emitted. The input order does not matter; trades are
// processed chronologically per underlying.
func Aggregate(trades []*models.Trade) map[string]*models.Position {
	byUnderlying := make(map[string][]*models.Trade)
	for _, t := range trades {
		byUnderlying[t.Underlying] = append(byUnderlying[t.Underlying], t)
	}

	positions := make(map[string]*models.Position)
	for underlying, group := range byUnderlying {
		pos := aggregateOne(underlying, group)
		if pos.StockQuantity == 0 && len(pos.Legs) == 0 {
			continue
		}
		positions[underlying] = pos
	}
	return positions
}

func aggregateOne(underlying string, trades []*models.Trade) *models.Position {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	pos := &models.Position{Underlying: underlying}
	legQty := make(map[string]float64)
	legProto := make(map[string]models.OptionLeg)

	var qty, avgCost float64
	for _, t := range trades {
		// Realization is decided upstream; the aggregator only sums it.
		pos.RealizedPnL += t.RealizedPnL
		if t.Timestamp.After(pos.LastTrade) {
			pos.LastTrade = t.Timestamp
		}

		if t.IsOption() {
			key := t.LegKey()
			legQty[key] += t.SignedQuantity()
			legProto[key] = models.OptionLeg{
				Type:   t.OptionType,
				Strike: t.Strike,
				Expiry: t.Expiry,
			}
			continue
		}

		qty, avgCost = applyStockTrade(qty, avgCost, t)
	}

	pos.StockQuantity = qty
	pos.AvgCost = avgCost
	pos.Legs = openLegs(legQty, legProto)
	return pos
}

// applyStockTrade folds one stock trade into the running quantity and
// weighted-average cost. Adding to a position reweights the average;
// reducing leaves it untouched; crossing through flat resets the average
// to the price of the trade that reopens the position.
func applyStockTrade(qty, avgCost float64, t *models.Trade) (float64, float64) {
	delta := t.SignedQuantity()
	newQty := qty + delta

	switch {
	case qty == 0:
		// Opening from flat
		return newQty, t.Price
	case sameSign(qty, delta):
		// Adding to the position: weighted average
		return newQty, (abs(qty)*avgCost + abs(delta)*t.Price) / abs(newQty)
	case newQty == 0:
		// Fully closed
		return 0, 0
	case sameSign(qty, newQty):
		// Partial reduction: avg cost untouched
		return newQty, avgCost
	default:
		// Crossed through flat to the other side
		return newQty, t.Price
	}
}

// openLegs drops fully-closed legs and orders the rest deterministically
// by expiry, strike, then type.
func openLegs(legQty map[string]float64, legProto map[string]models.OptionLeg) []models.OptionLeg {
	var legs []models.OptionLeg
	for key, net := range legQty {
		if net == 0 {
			continue
		}
		leg := legProto[key]
		leg.NetQuantity = net
		legs = append(legs, leg)
	}
	sort.Slice(legs, func(i, j int) bool {
		if !legs[i].Expiry.Equal(legs[j].Expiry) {
			return legs[i].Expiry.Before(legs[j].Expiry)
		}
		if legs[i].Strike != legs[j].Strike {
			return legs[i].Strike < legs[j].Strike
		}
		return legs[i].Type < legs[j].Type
	})
	return legs
}

// Price applies a current price to the position, deriving market value
// and the stock-leg unrealized P&L. A zero price (quote unavailable)
// falls back to average cost so the position still renders.
func Price(pos *models.Position, currentPrice float64) {
	if currentPrice <= 0 {
		currentPrice = pos.AvgCost
	}
	pos.CurrentPrice = currentPrice
	pos.MarketValue = currentPrice * pos.StockQuantity
	if pos.StockQuantity != 0 {
		pos.UnrealizedPnL = (currentPrice - pos.AvgCost) * pos.StockQuantity
	} else {
		pos.UnrealizedPnL = 0
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
