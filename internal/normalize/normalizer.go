// Package normalize validates and coerces raw broker trade records into
// canonical Trade values. All malformed-input handling lives here: a bad
// record is rejected with a typed error and the caller decides whether
// the batch continues.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/tradescope/internal/models"
)

// ErrValidation is the sentinel all record-level rejections unwrap to.
var ErrValidation = errors.New("invalid trade record")

// ValidationError reports a malformed field on a raw trade record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade record: field %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DateParseError reports an unparseable date string. It carries the raw
// value so batch callers can log exactly what the broker sent.
type DateParseError struct {
	Field string
	Raw   string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid trade record: field %s: unparseable date %q", e.Field, e.Raw)
}

func (e *DateParseError) Unwrap() error { return ErrValidation }

// dateFormats are tried in priority order; the first match wins.
var dateFormats = []string{
	"20060102",
	"2006-01-02",
	"20060102;150405",
	"2006/01/02",
}

// FieldRule is a declarative parse rule for one numeric field.
type FieldRule struct {
	Default       float64
	AllowNegative bool
}

// RawTrade is the untyped record shape delivered by the broker feed.
type RawTrade struct {
	Symbol      string `json:"symbol"`
	Underlying  string `json:"underlying"`
	Timestamp   string `json:"timestamp"`
	Action      string `json:"action"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Commission  string `json:"commission"`
	RealizedPnL string `json:"realized_pnl"`
	Instrument  string `json:"instrument_type"`
	Strike      string `json:"strike"`
	Expiry      string `json:"expiry"`
	OptionType  string `json:"option_type"`
}

// Normalizer converts RawTrade records to models.Trade. Pure, no side
// effects, safe for concurrent use.
type Normalizer struct {
	rules map[string]FieldRule
}

// NewNormalizer creates a Normalizer with the default per-field rules.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		rules: map[string]FieldRule{
			"quantity":     {Default: 0, AllowNegative: true}, // negative = short
			"price":        {Default: 0, AllowNegative: false},
			"commission":   {Default: 0, AllowNegative: false},
			"realized_pnl": {Default: 0, AllowNegative: true},
			"strike":       {Default: 0, AllowNegative: false},
		},
	}
}

// Normalize validates and coerces one raw record.
func (n *Normalizer) Normalize(raw RawTrade) (*models.Trade, error) {
	symbol := strings.TrimSpace(raw.Symbol)
	if symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "empty"}
	}

	underlying := strings.ToUpper(strings.TrimSpace(raw.Underlying))
	if underlying == "" {
		underlying = strings.ToUpper(symbol)
	}

	action, err := parseAction(raw.Action)
	if err != nil {
		return nil, err
	}

	timestamp, err := ParseDate(raw.Timestamp)
	if err != nil {
		return nil, &DateParseError{Field: "timestamp", Raw: raw.Timestamp}
	}

	instrument, err := parseInstrument(raw.Instrument)
	if err != nil {
		return nil, err
	}

	quantity := n.safeFloat("quantity", raw.Quantity)
	if quantity == 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "zero or unparseable"}
	}

	price := n.safeFloat("price", raw.Price)
	// Options may close at zero (worthless expiry); a zero stock price
	// is always corrupt input and would poison excursion percentages.
	if instrument == models.InstrumentStock && price <= 0 {
		return nil, &ValidationError{Field: "price", Reason: "zero or unparseable"}
	}

	trade := &models.Trade{
		Timestamp:   timestamp,
		Symbol:      symbol,
		Underlying:  underlying,
		Action:      action,
		Quantity:    quantity,
		Price:       price,
		Commission:  n.safeFloat("commission", raw.Commission),
		RealizedPnL: n.safeFloat("realized_pnl", raw.RealizedPnL),
		Instrument:  instrument,
	}

	if instrument == models.InstrumentOption {
		optType, err := parseOptionType(raw.OptionType)
		if err != nil {
			return nil, err
		}
		expiry, err := ParseDate(raw.Expiry)
		if err != nil {
			return nil, &DateParseError{Field: "expiry", Raw: raw.Expiry}
		}
		strike := n.safeFloat("strike", raw.Strike)
		if strike <= 0 {
			return nil, &ValidationError{Field: "strike", Reason: "missing or non-positive"}
		}
		trade.OptionType = optType
		trade.Expiry = expiry
		trade.Strike = strike
	}

	trade.ID = models.ComputeTradeID(trade.Symbol, trade.Timestamp, trade.Action, trade.Quantity, trade.Price)
	return trade, nil
}

// NormalizeBatch normalizes a slice of raw records, isolating per-record
// failures. Returns the valid trades and the rejection errors in input
// order; one corrupt record never blocks the rest of the batch.
func (n *Normalizer) NormalizeBatch(raws []RawTrade) ([]*models.Trade, []error) {
	var trades []*models.Trade
	var errs []error
	for _, raw := range raws {
		trade, err := n.Normalize(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, errs
}

// safeFloat parses a numeric field under its declared rule: the rule's
// default substitutes for missing or unparseable values, and negatives
// are clamped to the default unless the rule allows them.
func (n *Normalizer) safeFloat(field, value string) float64 {
	rule := n.rules[field]
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if value == "" {
		return rule.Default
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return rule.Default
	}
	if f < 0 && !rule.AllowNegative {
		return rule.Default
	}
	return f
}

// ParseDate tries the accepted textual date shapes in priority order.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no matching date format for %q", value)
}

func parseAction(value string) (models.TradeAction, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY", "BOT", "B":
		return models.ActionBuy, nil
	case "SELL", "SLD", "S":
		return models.ActionSell, nil
	}
	return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", value)}
}

func parseInstrument(value string) (models.InstrumentType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "STOCK", "STK", "EQUITY":
		return models.InstrumentStock, nil
	case "OPTION", "OPT":
		return models.InstrumentOption, nil
	}
	return "", &ValidationError{Field: "instrument_type", Reason: fmt.Sprintf("unknown instrument %q", value)}
}

func parseOptionType(value string) (models.OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "CALL", "C":
		return models.OptionCall, nil
	case "PUT", "P":
		return models.OptionPut, nil
	}
	return "", &ValidationError{Field: "option_type", Reason: fmt.Sprintf("unknown option type %q", value)}
}
