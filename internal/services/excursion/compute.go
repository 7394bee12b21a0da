// Package excursion computes Maximum Favorable and Maximum Adverse
// Excursion analytics for round-trip trades
package excursion

import (
	"sort"
	"time"

	"github.com/bobmcallan/tradescope/internal/models"
)

// RoundTrip is one entry event paired with either an exit event or
// "still open". Built from trade history by flat-crossing detection:
// a position opening from zero starts a trip, returning to zero ends
// it. A trade that crosses through flat closes the old trip and opens
// a new one in the opposite direction at the same price and time.
type RoundTrip struct {
	TradeID    string // ID of the entry trade
	Symbol     string
	Underlying string
	Instrument models.InstrumentType
	Direction  models.TradeDirection
	EntryDate  time.Time
	EntryPrice float64
	ExitDate   *time.Time
	ExitPrice  *float64

	// Option identity, zero for stock trips
	OptionType models.OptionType
	Strike     float64
	Expiry     time.Time
}

// IsOpen returns true while the trip has no exit event.
func (rt *RoundTrip) IsOpen() bool { return rt.ExitDate == nil }

// BuildRoundTrips derives round trips from one underlying's trade
// history. Stock trades form one quantity walk; option trades form an
// independent walk per (type, strike, expiry) leg. Adds and partial
// reductions extend the current trip; only flat transitions open or
// close one.
func BuildRoundTrips(trades []*models.Trade) []*RoundTrip {
	sorted := make([]*models.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var trips []*RoundTrip
	stock := newWalk()
	legs := make(map[string]*walk)

	for _, t := range sorted {
		if t.IsOption() {
			w, ok := legs[t.LegKey()]
			if !ok {
				w = newWalk()
				legs[t.LegKey()] = w
			}
			trips = append(trips, w.apply(t)...)
			continue
		}
		trips = append(trips, stock.apply(t)...)
	}

	// Still-open trips surface last, after every closed one.
	if stock.open != nil {
		trips = append(trips, stock.open)
	}
	keys := make([]string, 0, len(legs))
	for k := range legs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if legs[k].open != nil {
			trips = append(trips, legs[k].open)
		}
	}
	return trips
}

// walk tracks the running signed quantity of one instrument and the
// trip currently open on it.
type walk struct {
	qty  float64
	open *RoundTrip
}

func newWalk() *walk { return &walk{} }

// apply folds one trade into the walk and returns any trips it closed.
func (w *walk) apply(t *models.Trade) []*RoundTrip {
	delta := t.SignedQuantity()
	newQty := w.qty + delta

	var closed []*RoundTrip
	switch {
	case w.qty == 0:
		w.open = openTrip(t)
	case sameSign(w.qty, newQty) || newQty == 0:
		if newQty == 0 {
			closed = append(closed, closeTrip(w.open, t))
			w.open = nil
		}
		// Partial add or reduction keeps the trip running.
	default:
		// Crossed through flat: the crossing trade both exits and
		// re-enters on the other side.
		closed = append(closed, closeTrip(w.open, t))
		w.open = openTrip(t)
	}
	w.qty = newQty
	return closed
}

func openTrip(t *models.Trade) *RoundTrip {
	direction := models.DirectionLong
	if t.SignedQuantity() < 0 {
		direction = models.DirectionShort
	}
	return &RoundTrip{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Underlying: t.Underlying,
		Instrument: t.Instrument,
		Direction:  direction,
		EntryDate:  t.Timestamp,
		EntryPrice: t.Price,
		OptionType: t.OptionType,
		Strike:     t.Strike,
		Expiry:     t.Expiry,
	}
}

func closeTrip(trip *RoundTrip, t *models.Trade) *RoundTrip {
	exitDate := t.Timestamp
	exitPrice := t.Price
	trip.ExitDate = &exitDate
	trip.ExitPrice = &exitPrice
	return trip
}

// Compute walks the supplied price series and fills an MFEMAERecord for
// the trip. For stock trips the series is daily OHLC bars of the
// underlying; for option trips callers pass the position's own
// mark-to-market P&L percentage series via ComputeOption instead.
//
// If the series is empty, or does not cover the trip's window, mfe and
// mae degrade to nil for the whole record. The record itself is always
// produced.
func Compute(trip *RoundTrip, bars []models.DailyBar, asOf time.Time, gapToleranceDays int) *models.MFEMAERecord {
	rec := newRecord(trip, asOf)

	windowEnd := asOf
	if trip.ExitDate != nil {
		windowEnd = *trip.ExitDate
	}
	// A non-positive entry price has no percentage baseline; treat it
	// like a data gap rather than emitting Inf excursions.
	if trip.EntryPrice <= 0 {
		return rec
	}

	window := barsInWindow(bars, trip.EntryDate, windowEnd)
	if !covers(window, trip.EntryDate, windowEnd, gapToleranceDays) {
		return rec // data gap, excursion fields stay nil
	}

	// Entry day counts, so the extrema start at zero.
	var mfe, mae float64
	for _, bar := range window {
		var fav, adv float64
		if trip.Direction == models.DirectionLong {
			fav = pct(bar.High, trip.EntryPrice)
			adv = pct(bar.Low, trip.EntryPrice)
		} else {
			fav = -pct(bar.Low, trip.EntryPrice)
			adv = -pct(bar.High, trip.EntryPrice)
		}
		if fav > mfe {
			mfe = fav
		}
		if adv < mae {
			mae = adv
		}
	}
	rec.MFE = &mfe
	rec.MAE = &mae

	finishRecord(rec, trip)
	return rec
}

// ComputeOption walks an option trip over its mark-to-market P&L
// percentage series. Efficiency is never populated for options:
// premium paths on time-decaying instruments make capture ratios
// misleading, so the field is intentionally not applicable.
func ComputeOption(trip *RoundTrip, marks []models.OptionMark, asOf time.Time) *models.MFEMAERecord {
	rec := newRecord(trip, asOf)

	windowEnd := asOf
	if trip.ExitDate != nil {
		windowEnd = *trip.ExitDate
	}
	var inWindow []models.OptionMark
	for _, m := range marks {
		if m.Date.Before(truncateDay(trip.EntryDate)) || m.Date.After(windowEnd) {
			continue
		}
		inWindow = append(inWindow, m)
	}
	if len(inWindow) == 0 {
		return rec
	}

	var mfe, mae float64
	for _, m := range inWindow {
		if m.PnLPct > mfe {
			mfe = m.PnLPct
		}
		if m.PnLPct < mae {
			mae = m.PnLPct
		}
	}
	rec.MFE = &mfe
	rec.MAE = &mae

	// Mark excursions stand on their own, but the realized percentage
	// needs a positive entry premium as its baseline.
	if trip.ExitDate != nil && trip.EntryPrice > 0 {
		realized := realizedPct(trip)
		rec.RealizedPct = &realized
	}
	return rec
}

func newRecord(trip *RoundTrip, asOf time.Time) *models.MFEMAERecord {
	rec := &models.MFEMAERecord{
		TradeID:      trip.TradeID,
		Symbol:       trip.Symbol,
		Underlying:   trip.Underlying,
		Instrument:   trip.Instrument,
		Direction:    trip.Direction,
		EntryDate:    trip.EntryDate,
		EntryPrice:   trip.EntryPrice,
		ExitDate:     trip.ExitDate,
		ExitPrice:    trip.ExitPrice,
		CalculatedAt: asOf,
	}
	end := asOf
	if trip.ExitDate != nil {
		end = *trip.ExitDate
	}
	rec.HoldingDays = int(truncateDay(end).Sub(truncateDay(trip.EntryDate)).Hours() / 24)
	return rec
}

// finishRecord derives realized percentage and efficiency for closed
// stock trips. Efficiency is realized percentage divided by MFE, and
// only defined when MFE is positive: a trade that was never in profit
// has no capture ratio to report.
func finishRecord(rec *models.MFEMAERecord, trip *RoundTrip) {
	if trip.ExitDate == nil {
		return
	}
	realized := realizedPct(trip)
	rec.RealizedPct = &realized

	if rec.MFE != nil && *rec.MFE > 0 {
		eff := realized / *rec.MFE
		rec.Efficiency = &eff
	}
}

func realizedPct(trip *RoundTrip) float64 {
	raw := pct(*trip.ExitPrice, trip.EntryPrice)
	if trip.Direction == models.DirectionShort {
		return -raw
	}
	return raw
}

// barsInWindow filters an ascending bar series to [entry, end] by day.
func barsInWindow(bars []models.DailyBar, entry, end time.Time) []models.DailyBar {
	entryDay := truncateDay(entry)
	endDay := truncateDay(end)
	var out []models.DailyBar
	for _, b := range bars {
		day := truncateDay(b.Date)
		if day.Before(entryDay) || day.After(endDay) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// covers reports whether a bar window reaches both edges of the trip
// within the gap tolerance. Weekends and holidays leave small gaps at
// the edges; a provider outage leaves large ones.
func covers(window []models.DailyBar, entry, end time.Time, toleranceDays int) bool {
	if len(window) == 0 {
		return false
	}
	tol := time.Duration(toleranceDays) * 24 * time.Hour
	first := truncateDay(window[0].Date)
	last := truncateDay(window[len(window)-1].Date)
	if first.Sub(truncateDay(entry)) > tol {
		return false
	}
	if truncateDay(end).Sub(last) > tol {
		return false
	}
	return true
}

func pct(price, entry float64) float64 {
	return (price - entry) / entry * 100
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
