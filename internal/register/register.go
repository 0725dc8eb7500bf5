// Package register supplies the read-side helpers around
// model.TradeRegister that don't belong on the write path owned by
// internal/accounting: the closed-candle snapshot rule and the
// human-readable JSON export format.
package register

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/duration"
	"github.com/paperbot/engine/internal/model"
)

// LastClosedCandle returns the most recent fully-closed candle. Entry-time
// snapshots must never read the in-progress bar: candles is assumed
// ascending by Timestamp, and source implementations may still be mid-way
// through forming the final bar, so it is excluded whenever an earlier,
// unambiguously closed candle is available.
func LastClosedCandle(candles []model.Candle) (model.Candle, bool) {
	switch len(candles) {
	case 0:
		return model.Candle{}, false
	case 1:
		return candles[0], true
	default:
		return candles[len(candles)-2], true
	}
}

// Export is the trade-register JSON export shape: identical to
// model.TradeRegister except duration_seconds is rendered as the
// human-readable "{h}h {m}m {s}s" string instead of a raw integer.
type Export struct {
	model.TradeRegister
	DurationSeconds *int64  `json:"-"`
	Duration        *string `json:"duration,omitempty"`
}

// ToExport converts a closed (or still-open) register row to its export
// form, formatting DurationSeconds via internal/duration.Format.
func ToExport(r model.TradeRegister) Export {
	e := Export{TradeRegister: r}
	if r.DurationSeconds != nil {
		formatted := duration.Format(*r.DurationSeconds)
		e.Duration = &formatted
	}
	// Blank the raw field on the embedded struct's JSON output; the
	// formatted string above is authoritative for export.
	e.TradeRegister.DurationSeconds = nil
	return e
}

// MarshalBatch renders a slice of register rows as a JSON array using the
// export shape.
func MarshalBatch(rows []model.TradeRegister) ([]byte, error) {
	out := make([]Export, len(rows))
	for i, r := range rows {
		out[i] = ToExport(r)
	}
	return json.MarshalIndent(out, "", "  ")
}

// SlippageAnnotation formats the informational note appended to a closed
// register row's Notes field: "Slippage: $X.XX USD". Reporting-only; the
// amount is never re-subtracted from balance or net PnL.
func SlippageAnnotation(slippageCost decimal.Decimal) string {
	return "Slippage: $" + slippageCost.Abs().StringFixed(2) + " USD"
}
