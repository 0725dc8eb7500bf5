package marketdata

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/paperbot/engine/internal/model"
)

// Limiter throttles per-symbol fetches against a MarketDataSource so a large
// symbol list doesn't hammer the upstream connector faster than it can
// sustain — polling fans out over symbols within a tick while all mutation
// stays serialized elsewhere.
type Limiter struct {
	Source  Source
	limiter *rate.Limiter
}

// NewLimiter wraps src with a token-bucket limiter allowing ratePerSecond
// ticker/candle fetches per second, bursting up to burst.
func NewLimiter(src Source, ratePerSecond float64, burst int) *Limiter {
	return &Limiter{Source: src, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (l *Limiter) wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// TickerResult pairs a symbol with its fetched ticker or fetch error, for
// fan-out callers that keep iterating symbols independently: one symbol's
// failure never aborts the rest.
type TickerResult struct {
	Symbol string
	Ticker model.Ticker
	Err    error
}

// FetchTickers fetches the current ticker for every symbol concurrently,
// each gated by the shared rate limiter, and returns one result per symbol
// in the input order. A per-symbol error never aborts the others.
func (l *Limiter) FetchTickers(ctx context.Context, symbols []string) []TickerResult {
	results := make([]TickerResult, len(symbols))
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			if err := l.wait(ctx); err != nil {
				results[i] = TickerResult{Symbol: symbol, Err: err}
				return
			}
			t, err := l.Source.GetTicker(ctx, symbol)
			results[i] = TickerResult{Symbol: symbol, Ticker: t, Err: err}
		}(i, sym)
	}
	wg.Wait()
	return results
}

// GetTicker implements Source directly (rate-limited, single symbol); use
// FetchTickers instead when fanning out over many symbols at once.
func (l *Limiter) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	if err := l.wait(ctx); err != nil {
		return model.Ticker{}, err
	}
	return l.Source.GetTicker(ctx, symbol)
}

func (l *Limiter) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Source.FetchCandles(ctx, symbol, timeframe, limit)
}

func (l *Limiter) GetFundingRates(ctx context.Context, symbol string, limit int) ([]model.FundingRate, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Source.GetFundingRates(ctx, symbol, limit)
}

func (l *Limiter) GetOrderbook(ctx context.Context, symbol string) (model.OrderBook, error) {
	if err := l.wait(ctx); err != nil {
		return model.OrderBook{}, err
	}
	return l.Source.GetOrderbook(ctx, symbol)
}

var _ Source = (*Limiter)(nil)
