package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/logger"
	"github.com/paperbot/engine/internal/marketdata"
	"github.com/paperbot/engine/internal/model"
	"github.com/paperbot/engine/internal/register"
)

// Evaluation is the harness's per-symbol, per-tick output: at most one entry
// signal plus zero or more close signals for positions the strategy owns.
type Evaluation struct {
	Symbol       string
	EntrySignal  *Signal
	CloseSignals []*Signal
	Candles      []model.Candle
	Skipped      bool
	SkipReason   string
}

// OpenPositionsLookup is the minimal query the harness needs to find the
// positions a strategy owns, without importing the accounting engine.
type OpenPositionsLookup func(ctx context.Context, symbol, strategyName string) ([]model.Position, error)

// DefaultAnalyzeTimeout bounds a single Analyze call; LLM-backed strategies
// dominate this path and must never stall a tick indefinitely.
const DefaultAnalyzeTimeout = 10 * time.Second

// Harness feeds a Strategy a consistent snapshot of history and state and
// collects its decisions.
type Harness struct {
	Market         marketdata.Source
	CandleLimit    int
	AnalyzeTimeout time.Duration
	LLMJournal     *LLMJournal
	Log            *logger.Logger

	lookupOpen OpenPositionsLookup
}

// NewHarness builds a Harness. lookupOpen resolves which positions a
// strategy currently owns so ShouldClosePosition can be invoked for each
// of them.
func NewHarness(mkt marketdata.Source, candleLimit int, lookupOpen OpenPositionsLookup) *Harness {
	if candleLimit <= 0 {
		candleLimit = 200
	}
	return &Harness{
		Market:         mkt,
		CandleLimit:    candleLimit,
		AnalyzeTimeout: DefaultAnalyzeTimeout,
		LLMJournal:     NewLLMJournal(""),
		Log:            logger.NewLogger("strategy_harness"),
		lookupOpen:     lookupOpen,
	}
}

// Evaluate runs one per-tick, per-symbol harness pass: pull a bounded
// candle window, skip if below the strategy's minimum bars, refresh price
// history, analyze, filter by minimum confidence, and check the close
// question for every position the strategy owns.
func (h *Harness) Evaluate(ctx context.Context, s Strategy, symbol string) (*Evaluation, error) {
	candles, err := h.Market.FetchCandles(ctx, symbol, s.Timeframe(), h.CandleLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", symbol, err)
	}

	eval := &Evaluation{Symbol: symbol, Candles: candles}
	if len(candles) < s.MinBars() {
		eval.Skipped = true
		eval.SkipReason = fmt.Sprintf("only %d of %d required bars available", len(candles), s.MinBars())
		return eval, nil
	}

	if updater, ok := s.(PriceHistoryUpdater); ok {
		updater.UpdatePriceHistory(symbol, candles)
	}

	signal, err := h.callAnalyze(ctx, s, candles, symbol)
	if err != nil {
		return eval, err
	}
	if signal != nil && signal.Kind != SignalHold && signal.Confidence.GreaterThanOrEqual(s.MinConfidence()) {
		if !signal.Price.IsPositive() {
			// default to the last fully-closed candle, never the still-forming
			// final bar
			if last, ok := register.LastClosedCandle(candles); ok {
				signal.Price = last.Close
			}
		}
		eval.EntrySignal = signal
	}

	if h.lookupOpen != nil {
		owned, err := h.lookupOpen(ctx, symbol, s.Name())
		if err != nil {
			h.Log.Warn("failed to look up owned positions", "symbol", symbol, "strategy", s.Name(), "error", err.Error())
		}
		for _, pos := range owned {
			closeSig, err := h.callShouldClose(ctx, s, candles, pos)
			if err != nil {
				h.Log.Warn("should_close_position failed", "symbol", symbol, "position_id", pos.ID, "error", err.Error())
				continue
			}
			if closeSig != nil && closeSig.Kind == SignalClose {
				eval.CloseSignals = append(eval.CloseSignals, closeSig)
			}
		}
	}

	return eval, nil
}

func (h *Harness) callAnalyze(ctx context.Context, s Strategy, candles []model.Candle, symbol string) (sig *Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked in analyze: %v", s.Name(), r)
		}
	}()
	if h.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.AnalyzeTimeout)
		defer cancel()
	}
	sig, err = s.Analyze(ctx, candles, symbol)
	if err != nil {
		return nil, err
	}
	if llmStrategy, ok := s.(LLMBacked); ok && llmStrategy.IsLLMBacked() && sig != nil {
		h.LLMJournal.Log(s.Name(), symbol, sig.Reason, sig.Observations)
	}
	return sig, nil
}

func (h *Harness) callShouldClose(ctx context.Context, s Strategy, candles []model.Candle, pos model.Position) (sig *Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked in should_close_position: %v", s.Name(), r)
		}
	}()
	return s.ShouldClosePosition(ctx, candles, pos.EntryPrice, pos.Side, pos.UnrealizedPnLPct)
}

// SizeFor applies the sizing policy: a fixed-size override takes
// precedence, otherwise size = (balance * size_percent/100) / price.
func SizeFor(balance, price, sizePercent decimal.Decimal, fixedOverride *decimal.Decimal) decimal.Decimal {
	if fixedOverride != nil {
		return *fixedOverride
	}
	if !price.IsPositive() {
		return decimal.Zero
	}
	return balance.Mul(sizePercent).Div(decimal.NewFromInt(100)).Div(price)
}
