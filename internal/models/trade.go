// Package models defines data structures for Tradescope
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TradeAction is the trade side
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// InstrumentType distinguishes stock from option trades
type InstrumentType string

const (
	InstrumentStock  InstrumentType = "STOCK"
	InstrumentOption InstrumentType = "OPTION"
)

// OptionType is CALL or PUT
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Trade is one raw broker trade record, normalized. Created by ingestion
// and never mutated by the engine; all derived state (positions, legs,
// excursion records) is recomputed from the trade history.
type Trade struct {
	ID          string         `json:"id"` // stable hash of broker fields
	Timestamp   time.Time      `json:"timestamp"`
	Symbol      string         `json:"symbol"`     // full broker symbol (OCC symbol for options)
	Underlying  string         `json:"underlying"` // root stock symbol
	Action      TradeAction    `json:"action"`
	Quantity    float64        `json:"quantity"` // signed: positive long, negative short
	Price       float64        `json:"price"`
	Commission  float64        `json:"commission"`
	RealizedPnL float64        `json:"realized_pnl"` // set by the upstream broker feed on closing trades
	Instrument  InstrumentType `json:"instrument_type"`

	// Option fields, zero values for stock trades
	Strike     float64    `json:"strike,omitempty"`
	Expiry     time.Time  `json:"expiry,omitempty"`
	OptionType OptionType `json:"option_type,omitempty"`
}

// IsOption returns true for option trades.
func (t *Trade) IsOption() bool {
	return t.Instrument == InstrumentOption
}

// SignedQuantity returns the position delta of the trade: positive for
// BUY, negative for SELL, regardless of how Quantity was signed upstream.
func (t *Trade) SignedQuantity() float64 {
	qty := t.Quantity
	if qty < 0 {
		qty = -qty
	}
	if t.Action == ActionSell {
		return -qty
	}
	return qty
}

// LegKey identifies the option leg a trade belongs to.
func (t *Trade) LegKey() string {
	return fmt.Sprintf("%s|%.4f|%s", t.OptionType, t.Strike, t.Expiry.Format("2006-01-02"))
}

// ComputeTradeID computes a deterministic trade ID using SHA256 over the
// broker fields that identify a fill. Re-ingesting the same feed yields
// the same IDs, so downstream upserts stay idempotent.
func ComputeTradeID(symbol string, timestamp time.Time, action TradeAction, quantity, price float64) string {
	data := fmt.Sprintf("%s|%d|%s|%.6f|%.6f", symbol, timestamp.Unix(), action, quantity, price)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
