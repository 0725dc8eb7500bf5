// Package model holds the engine's data model: Account, Position, Order,
// Trade, TradeRegister, and TradingSession, plus the market-data value
// types crossing the MarketDataSource boundary. Money fields use
// decimal.Decimal throughout so balances never drift over long sessions.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Side is a position/order direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the closing direction for a position held on this side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// PositionStatus is the Position state machine: open -> closed or
// open -> liquidated, no other transitions.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "open"
	PositionClosed     PositionStatus = "closed"
	PositionLiquidated PositionStatus = "liquidated"
)

// OrderStatus is the Order state machine: pending -> (filled |
// partially_filled | cancelled | rejected). Terminal states are immutable.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderFilled          OrderStatus = "filled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// OrderType names the kind of order request (market/limit/SL/TP).
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStopLoss  OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// ExitReason enumerates why a Trade closed.
type ExitReason string

const (
	ExitManual              ExitReason = "manual"
	ExitStopLoss            ExitReason = "stop_loss"
	ExitTakeProfit          ExitReason = "take_profit"
	ExitLiquidation         ExitReason = "liquidation"
	ExitStrategyClose       ExitReason = "strategy_close"
	ExitTimeout             ExitReason = "timeout"
	ExitMaxLoss             ExitReason = "max_loss"
	ExitStructureNormalized ExitReason = "structure_normalized"
)

// SessionEndReason enumerates why a TradingSession ended.
type SessionEndReason string

const (
	EndManual    SessionEndReason = "manual"
	EndTimeLimit SessionEndReason = "time_limit"
	EndMaxLoss   SessionEndReason = "max_loss"
	EndError     SessionEndReason = "error"
)

// SessionMode distinguishes a paper session from a (never-implemented) real
// one; the register's `mode` column is always "paper" in this engine, but
// the column keeps the register rows portable to a live-trading variant.
type SessionMode string

const (
	ModePaper SessionMode = "paper"
	ModeReal  SessionMode = "real"
)

// Account is a named virtual balance.
type Account struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`

	InitialBalance decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"initial_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"current_balance"`
	PeakBalance    decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"peak_balance"`

	LeverageDefault decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"leverage_default"`
	LeverageCap     decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"leverage_cap"`
	MakerFee        decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"maker_fee"`
	TakerFee        decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"taker_fee"`

	TotalTrades   int             `gorm:"not null;default:0" json:"total_trades"`
	WinningTrades int             `gorm:"not null;default:0" json:"winning_trades"`
	LosingTrades  int             `gorm:"not null;default:0" json:"losing_trades"`
	TotalPnL      decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_pnl"`
	MaxDrawdown   decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"max_drawdown"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string { return "paper_accounts" }

// Position is an open exposure.
type Position struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Symbol    string    `gorm:"size:32;not null;index" json:"symbol"`
	Side      Side      `gorm:"size:8;not null" json:"side"`

	Size       decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"size"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"entry_price"`
	Leverage   decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"leverage"`
	MarginUsed decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"margin_used"`

	StopLoss   *decimal.Decimal `gorm:"type:numeric(24,8)" json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `gorm:"type:numeric(24,8)" json:"take_profit,omitempty"`

	CurrentPrice       decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"current_price"`
	UnrealizedPnL      decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"unrealized_pnl"`
	UnrealizedPnLPct   decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"unrealized_pnl_percent"`

	Status PositionStatus `gorm:"size:16;not null;index" json:"status"`

	Strategy string `gorm:"size:64;index" json:"strategy"`
	Notes    string `gorm:"type:text" json:"notes"`

	OpenedAt time.Time  `gorm:"not null" json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (Position) TableName() string { return "paper_positions" }

// Dir returns +1 for long, -1 for short, the sign convention used by every
// PnL formula in the engine.
func (p *Position) Dir() int64 {
	if p.Side == SideShort {
		return -1
	}
	return 1
}

// Order is a pending or historical request (market/limit/SL/TP).
type Order struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Symbol    string    `gorm:"size:32;not null" json:"symbol"`
	Side      Side      `gorm:"size:8;not null" json:"side"`
	Type      OrderType `gorm:"size:16;not null" json:"type"`

	Size        decimal.Decimal  `gorm:"type:numeric(24,8);not null" json:"size"`
	LimitPrice  *decimal.Decimal `gorm:"type:numeric(24,8)" json:"limit_price,omitempty"`
	FilledPrice *decimal.Decimal `gorm:"type:numeric(24,8)" json:"filled_price,omitempty"`
	FilledSize  decimal.Decimal  `gorm:"type:numeric(24,8);not null" json:"filled_size"`

	Status OrderStatus `gorm:"size:24;not null;index" json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (Order) TableName() string { return "paper_orders" }

// Terminal reports whether the order is in an immutable terminal state.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

// Trade is a closed round-trip.
type Trade struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index:idx_trades_account_exit" json:"account_id"`
	PositionID uuid.UUID `gorm:"type:uuid;not null;index" json:"position_id"`
	Symbol    string    `gorm:"size:32;not null" json:"symbol"`
	Side      Side      `gorm:"size:8;not null" json:"side"`

	Size       decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"size"`
	Leverage   decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"leverage"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"entry_price"`
	EntryTime  time.Time       `gorm:"not null" json:"entry_time"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"exit_price"`
	ExitTime   time.Time       `gorm:"not null;index:idx_trades_account_exit" json:"exit_time"`

	EntryFee     decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"entry_fee"`
	ExitFee      decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"exit_fee"`
	TotalFees    decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_fees"`
	SlippageCost decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"slippage_cost"`

	GrossPnL decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"gross_pnl"`
	NetPnL   decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"net_pnl"`
	PnLPct   decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"pnl_percent"`

	ExitReason      ExitReason `gorm:"size:32;not null" json:"exit_reason"`
	DurationMinutes float64    `gorm:"not null" json:"duration_minutes"`

	Strategy string `gorm:"size:64;index" json:"strategy"`
	Notes    string `gorm:"type:text" json:"notes"`
}

func (Trade) TableName() string { return "paper_trades" }

// TradeRegister is the append-only audit row paired 1:1 with a
// lifecycle-complete Trade, carrying full entry-time context.
type TradeRegister struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index:idx_register_account_entry" json:"account_id"`
	StrategyID string   `gorm:"size:64" json:"strategy_id"`
	SessionID string     `gorm:"size:128;index" json:"session_id"`
	Mode      SessionMode `gorm:"size:8;not null" json:"mode"`
	Symbol    string     `gorm:"size:32;not null;index:idx_register_account_entry" json:"symbol"`

	// Entry context
	EntryTimestamp       time.Time       `gorm:"not null;index:idx_register_account_entry" json:"entry_timestamp"`
	EntryPrice           decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"entry_price"`
	EntrySize            decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"entry_size"`
	EntryValueUSD        decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"entry_value_usd"`
	EntryLeverage        decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"entry_leverage"`
	MarginRequired       decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"margin_required"`
	MarginAvailableBefore decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"margin_available_before"`
	FeeEntry             decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"fee_entry"`
	ExpectedEntryPrice   decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"expected_entry_price"`
	ActualEntryPrice     decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"actual_entry_price"`
	EntrySlippagePercent decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"entry_slippage_percent"`

	// Exit context (nil/zero while open)
	ExitTimestamp        *time.Time       `json:"exit_timestamp,omitempty"`
	ExitPrice            *decimal.Decimal `gorm:"type:numeric(24,8)" json:"exit_price,omitempty"`
	ExitReason           *ExitReason      `gorm:"size:32" json:"exit_reason,omitempty"`
	FeeExit              *decimal.Decimal `gorm:"type:numeric(24,8)" json:"fee_exit,omitempty"`
	FeeTotal             *decimal.Decimal `gorm:"type:numeric(24,8)" json:"fee_total,omitempty"`
	PnLGross             *decimal.Decimal `gorm:"type:numeric(24,8)" json:"pnl_gross,omitempty"`
	PnLNet               *decimal.Decimal `gorm:"type:numeric(24,8)" json:"pnl_net,omitempty"`
	PnLPercent           *decimal.Decimal `gorm:"type:numeric(10,4)" json:"pnl_percent,omitempty"`
	DurationSeconds      *int64           `json:"duration_seconds,omitempty"`
	ExpectedExitPrice    *decimal.Decimal `gorm:"type:numeric(24,8)" json:"expected_exit_price,omitempty"`
	ActualExitPrice      *decimal.Decimal `gorm:"type:numeric(24,8)" json:"actual_exit_price,omitempty"`
	ExitSlippagePercent  *decimal.Decimal `gorm:"type:numeric(10,6)" json:"exit_slippage_percent,omitempty"`
	PaperTradeID         *uuid.UUID       `gorm:"type:uuid" json:"paper_trade_id,omitempty"`

	// Market context at entry
	MarketPriceAtEntry decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"market_price_at_entry"`
	Volume24h          decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"volume_24h"`
	Volatility         decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"volatility"`

	// Indicators at entry
	RSI               *decimal.Decimal `gorm:"type:numeric(10,4)" json:"rsi,omitempty"`
	MACD              *decimal.Decimal `gorm:"type:numeric(24,8)" json:"macd,omitempty"`
	BollingerPosition *decimal.Decimal `gorm:"type:numeric(6,4)" json:"bollinger_position,omitempty"`

	// Strategy context
	SignalConfidence    decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"signal_confidence"`
	SignalReason        string          `gorm:"type:text" json:"signal_reason"`
	StrategyParameters  JSONMap         `gorm:"type:jsonb" json:"strategy_parameters"`
	StopLossPrice       *decimal.Decimal `gorm:"type:numeric(24,8)" json:"stop_loss_price,omitempty"`
	TakeProfitPrice     *decimal.Decimal `gorm:"type:numeric(24,8)" json:"take_profit_price,omitempty"`
	Flags               StringList      `gorm:"type:jsonb" json:"flags"`

	// Session context
	BotVersion      string           `gorm:"size:32" json:"bot_version"`
	MaxLossLimit    *decimal.Decimal `gorm:"type:numeric(24,8)" json:"max_loss_limit,omitempty"`
	TimeLimitSeconds *int64          `json:"time_limit_seconds,omitempty"`

	Notes string     `gorm:"type:text" json:"notes"`
	Tags  StringList `gorm:"type:jsonb" json:"tags"`
}

func (TradeRegister) TableName() string { return "trade_registers" }

// IsOpen reports the row invariant exit_timestamp IS NULL <=> open.
func (r *TradeRegister) IsOpen() bool { return r.ExitTimestamp == nil }

// TradingSession is one run of the engine.
type TradingSession struct {
	SessionID string      `gorm:"primaryKey;size:128" json:"session_id"`
	AccountID uuid.UUID   `gorm:"type:uuid;not null;index" json:"account_id"`
	StrategyID string     `gorm:"size:64" json:"strategy_id"`
	Mode      SessionMode `gorm:"size:8;not null" json:"mode"`

	Symbols StringList `gorm:"type:jsonb" json:"symbols"`

	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`

	TimeLimitSeconds int64            `json:"time_limit_seconds"`
	MaxLossLimit     decimal.Decimal  `gorm:"type:numeric(24,8)" json:"max_loss_limit"`
	MaxPositions     int              `json:"max_positions"`

	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	TotalPnL      decimal.Decimal `gorm:"type:numeric(24,8)" json:"total_pnl"`

	StartingBalance decimal.Decimal `gorm:"type:numeric(24,8)" json:"starting_balance"`
	EndingBalance   decimal.Decimal `gorm:"type:numeric(24,8)" json:"ending_balance"`
	PeakBalance     decimal.Decimal `gorm:"type:numeric(24,8)" json:"peak_balance"`
	MaxDrawdown     decimal.Decimal `gorm:"type:numeric(10,4)" json:"max_drawdown"`

	EndReason *SessionEndReason `gorm:"size:16" json:"end_reason,omitempty"`
}

func (TradingSession) TableName() string { return "trading_sessions" }

// Active reports the row invariant ended_at NULL <=> active.
func (s *TradingSession) Active() bool { return s.EndedAt == nil }

// Candle is one OHLCV bar crossing the MarketDataSource boundary.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Ticker is the current market snapshot used for PnL and exit checks.
type Ticker struct {
	Symbol        string
	MarkPrice     decimal.Decimal
	Bid           decimal.Decimal
	Ask           decimal.Decimal
	Volume24h     decimal.Decimal
	FundingRate   *decimal.Decimal
	OpenInterest  *decimal.Decimal
	Timestamp     time.Time
}

// FundingRate is one funding-rate observation.
type FundingRate struct {
	Timestamp time.Time
	Rate      decimal.Decimal
}

// OrderBookLevel is one price/size level of an order book.
type OrderBookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is the current bid/ask ladder.
type OrderBook struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}
