package marketdata

import (
	"context"
	"sync"

	"github.com/paperbot/engine/internal/apperrors"
	"github.com/paperbot/engine/internal/model"
)

// Fake is a deterministic, in-memory market-data source used by tests and
// offline replay. Callers push prices with SetTicker/PushCandle; reads
// never touch the network.
type Fake struct {
	mu       sync.Mutex
	tickers  map[string]model.Ticker
	candles  map[string][]model.Candle
	funding  map[string][]model.FundingRate
	books    map[string]model.OrderBook
}

func NewFake() *Fake {
	return &Fake{
		tickers: make(map[string]model.Ticker),
		candles: make(map[string][]model.Candle),
		funding: make(map[string][]model.FundingRate),
		books:   make(map[string]model.OrderBook),
	}
}

// SetTicker installs the ticker returned for symbol until overwritten.
func (f *Fake) SetTicker(symbol string, t model.Ticker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Symbol = symbol
	f.tickers[symbol] = t
}

func (f *Fake) PushCandle(symbol string, c model.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = append(f.candles[symbol], c)
}

func (f *Fake) SetCandles(symbol string, cs []model.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = cs
}

func (f *Fake) SetFunding(symbol string, rates []model.FundingRate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funding[symbol] = rates
}

func (f *Fake) SetOrderbook(symbol string, ob model.OrderBook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[symbol] = ob
}

func (f *Fake) FetchCandles(_ context.Context, symbol, _ string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.candles[symbol]
	if limit > 0 && len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	out := make([]model.Candle, len(cs))
	copy(out, cs)
	return out, nil
}

func (f *Fake) GetTicker(_ context.Context, symbol string) (model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	if !ok || !t.MarkPrice.IsPositive() {
		return model.Ticker{}, apperrors.New(apperrors.KindNoPrice, "no ticker for "+symbol)
	}
	return t, nil
}

func (f *Fake) GetFundingRates(_ context.Context, symbol string, limit int) ([]model.FundingRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := f.funding[symbol]
	if limit > 0 && len(rs) > limit {
		rs = rs[len(rs)-limit:]
	}
	return rs, nil
}

func (f *Fake) GetOrderbook(_ context.Context, symbol string) (model.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[symbol], nil
}

var _ Source = (*Fake)(nil)
