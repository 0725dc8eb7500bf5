// Package strategy implements the strategy harness: a polymorphic adapter
// that snapshots history and invokes a Strategy's analyze/close
// capabilities, expressed as a capability set rather than a class
// hierarchy.
package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/model"
)

// SignalKind classifies what a Signal asks for.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
	SignalHold SignalKind = "hold"
	SignalClose SignalKind = "close"
)

// Signal is the output of Strategy.Analyze/ShouldClosePosition. A nil
// *Signal or a Signal with Kind==SignalHold both mean "no action".
type Signal struct {
	Kind         SignalKind
	Symbol       string
	Confidence   decimal.Decimal // 0..10
	Price        decimal.Decimal
	StopLoss     *decimal.Decimal
	TakeProfit   *decimal.Decimal
	SizePercent  decimal.Decimal // % of current balance, sizing policy lives in the Orchestrator
	Reason       string
	Observations string
	Strategy     string
}

// ReadOnlyView is the narrow, read-only capability the Orchestrator hands
// to strategies instead of the accounting engine itself, so a strategy can
// observe positions and prices but never mutate balances.
type ReadOnlyView interface {
	OpenPositionsFor(ctx context.Context, symbol string) ([]model.Position, error)
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SessionContext is the read-only session metadata a strategy may want
// (limits, mode, elapsed time), passed via the optional SetSessionContext
// capability.
type SessionContext struct {
	SessionID        string
	AccountName      string
	Mode             model.SessionMode
	StartedAt        time.Time
	TimeLimitSeconds int64
	MaxLossLimit     decimal.Decimal
	MaxPositions     int
	Symbols          []string
}

// Strategy is the capability-based contract concrete strategies
// (breakout, scalping, funding-arbitrage, llm-prompt, anomaly-detection,
// ...) implement and register under a string identifier; this package owns
// the interface and the harness around it.
type Strategy interface {
	Name() string
	Timeframe() string
	MinBars() int
	MinConfidence() decimal.Decimal

	Analyze(ctx context.Context, candles []model.Candle, symbol string) (*Signal, error)
	ShouldClosePosition(ctx context.Context, candles []model.Candle, entryPrice decimal.Decimal, side model.Side, currentPnLPercent decimal.Decimal) (*Signal, error)
}

// SessionContextSetter is the optional set_session_context capability.
type SessionContextSetter interface {
	SetSessionContext(ctx SessionContext)
}

// EngineAware is the optional set_paper_trading_engine capability; it
// receives the narrow ReadOnlyView, never the AccountingEngine itself.
type EngineAware interface {
	SetPaperTradingEngine(view ReadOnlyView)
}

// PriceHistoryUpdater is the optional update_price_history capability.
type PriceHistoryUpdater interface {
	UpdatePriceHistory(symbol string, candles []model.Candle)
}

// LLMBacked is the optional capability an LLM-prompt-driven strategy
// advertises so the harness journals its signals' reasons and observations
// to the separate LLMJournal instead of the main log.
type LLMBacked interface {
	IsLLMBacked() bool
}

// HedgeAware lets a strategy opt into holding both a long and a short
// position on the same symbol simultaneously.
type HedgeAware interface {
	AllowsHedging() bool
}

// AutoCoerceAware permits an open arriving while an opposite-side position
// exists to auto-coerce into a close-then-reopen sequence.
type AutoCoerceAware interface {
	AutoCoerceOpposite() bool
}
