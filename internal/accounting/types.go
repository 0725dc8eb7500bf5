// Package accounting is the sole authority for mutating Account, Position,
// and Trade state. Every monetary change flows through Engine and is
// persisted atomically via Store.WithTx, with fixed-precision decimal math
// throughout.
package accounting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/model"
)

// Notifier is the narrow capability Engine needs to emit lifecycle
// events. Delivery is best-effort and must never block accounting; concrete
// implementations (internal/notifier) enforce that on their own side.
type Notifier interface {
	PositionOpened(symbol string, side model.Side)
	PositionClosedProfit(symbol string, pnl decimal.Decimal)
	PositionClosedLoss(symbol string, pnl decimal.Decimal)
}

// NoopNotifier discards every event; used when no Notifier is configured.
type NoopNotifier struct{}

func (NoopNotifier) PositionOpened(string, model.Side)             {}
func (NoopNotifier) PositionClosedProfit(string, decimal.Decimal)  {}
func (NoopNotifier) PositionClosedLoss(string, decimal.Decimal)    {}

// RegisterContext carries the TradeRegister audit-trail fields that
// only the strategy/harness layer can supply (market context, indicators,
// signal metadata, session limits). Zero values are acceptable; the engine
// never rejects an open for a missing context field.
type RegisterContext struct {
	Volume24h  decimal.Decimal
	Volatility decimal.Decimal

	RSI               *decimal.Decimal
	MACD              *decimal.Decimal
	BollingerPosition *decimal.Decimal

	SignalConfidence   decimal.Decimal
	SignalReason       string
	StrategyParameters model.JSONMap
	Flags              []string

	BotVersion       string
	MaxLossLimit     *decimal.Decimal
	TimeLimitSeconds *int64
}

// OpenParams is the input to Engine.OpenPosition.
type OpenParams struct {
	Symbol     string
	Side       model.Side
	Size       decimal.Decimal
	Leverage   decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	Strategy   string
	Notes      string
	SessionID  string
	Context    RegisterContext
}

// Summary is the read-only account rollup returned by AccountSummary.
type Summary struct {
	CurrentBalance  decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	Equity          decimal.Decimal
	TotalPnL        decimal.Decimal
	ROI             decimal.Decimal
	OpenPositions   int
	WinRate         decimal.Decimal
	MaxDrawdown     decimal.Decimal
	PeakBalance     decimal.Decimal
}

// exitTrigger names which exit-sweep branch fired, used
// internally to enforce the liquidation-before-SL-before-TP ordering.
type exitTrigger int

const (
	triggerNone exitTrigger = iota
	triggerLiquidation
	triggerStopLoss
	triggerTakeProfit
)

func (t exitTrigger) reason() model.ExitReason {
	switch t {
	case triggerLiquidation:
		return model.ExitLiquidation
	case triggerStopLoss:
		return model.ExitStopLoss
	case triggerTakeProfit:
		return model.ExitTakeProfit
	default:
		return model.ExitManual
	}
}

// clockSource is the minimal time source Engine needs; satisfied by
// internal/clock.Clock without importing it directly (avoids a dependency
// cycle risk if clock ever needs accounting types).
type clockSource interface {
	Now() time.Time
}
