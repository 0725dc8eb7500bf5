package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paperbot/engine/internal/logger"
	"github.com/paperbot/engine/internal/model"
)

// DefaultTickerTTL bounds how stale a cached ticker may be. Exit checks and
// PnL marks read the ticker every tick; a short TTL keeps them honest while
// still absorbing repeated reads within one tick.
const DefaultTickerTTL = 2 * time.Second

// TickerCache is the narrow store CachedSource reads through. A miss (or
// any cache-side failure) falls back to the underlying Source; the cache is
// never allowed to fail a price fetch.
type TickerCache interface {
	Get(ctx context.Context, symbol string) (model.Ticker, bool)
	Set(ctx context.Context, symbol string, t model.Ticker)
}

// CachedSource decorates a Source with a read-through ticker cache. Only
// GetTicker is cached; candles, funding, and order books pass straight
// through.
type CachedSource struct {
	Source Source
	Cache  TickerCache
}

func NewCachedSource(src Source, cache TickerCache) *CachedSource {
	return &CachedSource{Source: src, Cache: cache}
}

func (c *CachedSource) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	if t, ok := c.Cache.Get(ctx, symbol); ok {
		return t, nil
	}
	t, err := c.Source.GetTicker(ctx, symbol)
	if err != nil {
		return model.Ticker{}, err
	}
	c.Cache.Set(ctx, symbol, t)
	return t, nil
}

func (c *CachedSource) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	return c.Source.FetchCandles(ctx, symbol, timeframe, limit)
}

func (c *CachedSource) GetFundingRates(ctx context.Context, symbol string, limit int) ([]model.FundingRate, error) {
	return c.Source.GetFundingRates(ctx, symbol, limit)
}

func (c *CachedSource) GetOrderbook(ctx context.Context, symbol string) (model.OrderBook, error) {
	return c.Source.GetOrderbook(ctx, symbol)
}

var _ Source = (*CachedSource)(nil)

// RedisTickerCache is the production TickerCache: tickers stored as JSON
// under a per-symbol key with a short expiry, so a second process (or a
// burst of reads within one tick) shares the same fetch.
type RedisTickerCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisTickerCache connects to addr (host:port). It pings once at
// construction; a failed ping returns an error so the caller can run
// uncached instead of silently missing on every read. A non-positive ttl
// falls back to DefaultTickerTTL.
func NewRedisTickerCache(addr string, ttl time.Duration) (*RedisTickerCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultTickerTTL
	}
	return &RedisTickerCache{client: client, ttl: ttl, log: logger.NewLogger("ticker_cache")}, nil
}

func tickerKey(symbol string) string { return "paperengine:ticker:" + symbol }

func (r *RedisTickerCache) Get(ctx context.Context, symbol string) (model.Ticker, bool) {
	raw, err := r.client.Get(ctx, tickerKey(symbol)).Bytes()
	if err != nil {
		return model.Ticker{}, false
	}
	var t model.Ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		r.log.Warn("discarding unparseable cached ticker", "symbol", symbol, "error", err.Error())
		return model.Ticker{}, false
	}
	return t, true
}

func (r *RedisTickerCache) Set(ctx context.Context, symbol string, t model.Ticker) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, tickerKey(symbol), raw, r.ttl).Err(); err != nil {
		r.log.Warn("failed to cache ticker", "symbol", symbol, "error", err.Error())
	}
}

func (r *RedisTickerCache) Close() error {
	return r.client.Close()
}
