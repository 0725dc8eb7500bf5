// Package marketdata defines the engine's market-data boundary:
// candles, ticker, order-book, and funding-rate reads. Exchange connectors
// live elsewhere — this package only specifies the interface,
// a per-symbol rate/timeout wrapper, and a deterministic fake used by the
// accounting and orchestrator tests.
package marketdata

import (
	"context"
	"time"

	"github.com/paperbot/engine/internal/apperrors"
	"github.com/paperbot/engine/internal/model"
)

// DefaultTimeout is the default per-call timeout on market-data
// operations: a timeout skips the symbol for this tick and is never
// retried within the same tick.
const DefaultTimeout = 10 * time.Second

// Source is the market-data capability the engine consumes. Exchange SDKs
// must be adapted to this interface; their native numeric types never cross
// it.
type Source interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
	GetTicker(ctx context.Context, symbol string) (model.Ticker, error)
	GetFundingRates(ctx context.Context, symbol string, limit int) ([]model.FundingRate, error)
	GetOrderbook(ctx context.Context, symbol string) (model.OrderBook, error)
}

// WithTimeout wraps Source so every call is bounded by DefaultTimeout (or an
// override). A timeout surfaces as the wrapped call's error, unchanged, and
// is not retried here; GetTicker additionally reports a non-positive mark
// price as an apperrors KindNoPrice error.
type WithTimeout struct {
	Source  Source
	Timeout time.Duration
}

func NewWithTimeout(src Source, timeout time.Duration) *WithTimeout {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WithTimeout{Source: src, Timeout: timeout}
}

func (w *WithTimeout) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	return w.Source.FetchCandles(ctx, symbol, timeframe, limit)
}

func (w *WithTimeout) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	t, err := w.Source.GetTicker(ctx, symbol)
	if err != nil {
		return t, err
	}
	if !t.MarkPrice.IsPositive() {
		return t, apperrors.New(apperrors.KindNoPrice, "mark price not positive for "+symbol)
	}
	return t, nil
}

func (w *WithTimeout) GetFundingRates(ctx context.Context, symbol string, limit int) ([]model.FundingRate, error) {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	return w.Source.GetFundingRates(ctx, symbol, limit)
}

func (w *WithTimeout) GetOrderbook(ctx context.Context, symbol string) (model.OrderBook, error) {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	return w.Source.GetOrderbook(ctx, symbol)
}
