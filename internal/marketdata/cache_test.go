package marketdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbot/engine/internal/model"
)

type mapTickerCache struct {
	entries map[string]model.Ticker
	sets    int
}

func newMapTickerCache() *mapTickerCache {
	return &mapTickerCache{entries: make(map[string]model.Ticker)}
}

func (m *mapTickerCache) Get(_ context.Context, symbol string) (model.Ticker, bool) {
	t, ok := m.entries[symbol]
	return t, ok
}

func (m *mapTickerCache) Set(_ context.Context, symbol string, t model.Ticker) {
	m.entries[symbol] = t
	m.sets++
}

// countingSource counts how often the underlying ticker fetch actually runs.
type countingSource struct {
	*Fake
	tickerCalls int
}

func (c *countingSource) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	c.tickerCalls++
	return c.Fake.GetTicker(ctx, symbol)
}

func TestCachedSource_MissFetchesAndPopulates(t *testing.T) {
	fake := NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: decimal.NewFromInt(50000)})
	src := &countingSource{Fake: fake}
	cache := newMapTickerCache()
	cs := NewCachedSource(src, cache)

	got, err := cs.GetTicker(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.True(t, got.MarkPrice.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, 1, src.tickerCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestCachedSource_HitSkipsUnderlyingFetch(t *testing.T) {
	fake := NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: decimal.NewFromInt(50000)})
	src := &countingSource{Fake: fake}
	cache := newMapTickerCache()
	cs := NewCachedSource(src, cache)

	_, err := cs.GetTicker(context.Background(), "BTC-USD")
	require.NoError(t, err)
	_, err = cs.GetTicker(context.Background(), "BTC-USD")
	require.NoError(t, err)

	assert.Equal(t, 1, src.tickerCalls, "second read must be served from the cache")
}

func TestCachedSource_FetchErrorIsNotCached(t *testing.T) {
	src := &countingSource{Fake: NewFake()} // no ticker configured
	cache := newMapTickerCache()
	cs := NewCachedSource(src, cache)

	_, err := cs.GetTicker(context.Background(), "BTC-USD")
	require.Error(t, err)
	assert.Equal(t, 0, cache.sets)
}

func TestCachedSource_CandlesPassThrough(t *testing.T) {
	fake := NewFake()
	fake.PushCandle("BTC-USD", model.Candle{Close: decimal.NewFromInt(100)})
	cs := NewCachedSource(fake, newMapTickerCache())

	candles, err := cs.FetchCandles(context.Background(), "BTC-USD", "1h", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
}
