package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/apperrors"
	"github.com/paperbot/engine/internal/logger"
	"github.com/paperbot/engine/internal/marketdata"
	"github.com/paperbot/engine/internal/model"
	"github.com/paperbot/engine/internal/register"
	"github.com/paperbot/engine/internal/store"
)

var hundred = decimal.NewFromInt(100)

// txMaxAttempts and txBaseBackoff bound the transient-failure retry: the
// transaction is retried with exponential backoff up to 3 attempts, then
// the error propagates so the session ends with reason error.
const (
	txMaxAttempts = 3
	txBaseBackoff = 100 * time.Millisecond
)

// Engine is the accounting engine: the only component that opens, closes,
// or revalues positions and moves account balances.
type Engine struct {
	Store    store.Store
	Market   marketdata.Source
	Notify   Notifier
	Clock    clockSource
	Log      *logger.Logger

	// SlippagePercent is the fixed fractional haircut applied on exits
	// (e.g. 0.75 means 0.75%).
	SlippagePercent decimal.Decimal
}

// New builds an Engine. notify may be nil, in which case a no-op notifier
// is used; Log starts as an "accounting" console logger.
func New(st store.Store, mkt marketdata.Source, notify Notifier, clk clockSource, slippagePercent decimal.Decimal) *Engine {
	if notify == nil {
		notify = NoopNotifier{}
	}
	return &Engine{
		Store:           st,
		Market:          mkt,
		Notify:          notify,
		Clock:           clk,
		Log:             logger.NewLogger("accounting"),
		SlippagePercent: slippagePercent,
	}
}

// OpenPosition validates and opens a position at the current mark price.
// On any failure the transaction rolls back and no Position is returned.
func (e *Engine) OpenPosition(ctx context.Context, accountID uuid.UUID, p OpenParams) (*model.Position, error) {
	if p.Side != model.SideLong && p.Side != model.SideShort {
		return nil, apperrors.New(apperrors.KindInvalidSide, fmt.Sprintf("side must be long or short, got %q", p.Side))
	}
	if !p.Size.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidSize, "size must be a positive number")
	}
	if p.Leverage.LessThan(decimal.NewFromInt(1)) {
		return nil, apperrors.New(apperrors.KindInvalidLeverage, "leverage must be >= 1")
	}

	ticker, err := e.Market.GetTicker(ctx, p.Symbol)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNoPrice, "fetch mark price for "+p.Symbol, err)
	}
	markPrice := ticker.MarkPrice
	if !markPrice.IsPositive() {
		return nil, apperrors.New(apperrors.KindNoPrice, "mark price not positive for "+p.Symbol)
	}
	if p.Context.Volume24h.IsZero() {
		p.Context.Volume24h = ticker.Volume24h
	}

	var result *model.Position
	err = e.withTxRetry(ctx, func(tx store.Store) error {
		account, err := tx.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseFatal, "lock account", err)
		}
		if p.Leverage.GreaterThan(account.LeverageCap) {
			return apperrors.New(apperrors.KindInvalidLeverage, fmt.Sprintf("leverage %s exceeds cap %s", p.Leverage, account.LeverageCap))
		}

		positionValue := p.Size.Mul(markPrice)
		marginRequired := positionValue.Div(p.Leverage)
		entryFee := positionValue.Mul(account.TakerFee)

		if account.CurrentBalance.LessThan(marginRequired.Add(entryFee)) {
			return apperrors.New(apperrors.KindInsufficientFunds, "insufficient free margin")
		}

		now := e.Clock.Now()
		pos := &model.Position{
			ID:               uuid.New(),
			AccountID:        accountID,
			Symbol:           p.Symbol,
			Side:             p.Side,
			Size:             p.Size,
			EntryPrice:       markPrice,
			Leverage:         p.Leverage,
			MarginUsed:       marginRequired,
			StopLoss:         p.StopLoss,
			TakeProfit:       p.TakeProfit,
			CurrentPrice:     markPrice,
			UnrealizedPnL:    decimal.Zero,
			UnrealizedPnLPct: decimal.Zero,
			Status:           model.PositionOpen,
			Strategy:         p.Strategy,
			Notes:            p.Notes,
			OpenedAt:         now,
		}

		account.CurrentBalance = account.CurrentBalance.Sub(marginRequired).Sub(entryFee)
		if err := tx.Accounts().Update(ctx, account); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "debit account", err)
		}
		if err := tx.Positions().Create(ctx, pos); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "insert position", err)
		}

		reg := e.buildEntryRegister(accountID, pos, markPrice, marginRequired, entryFee, account.CurrentBalance.Add(marginRequired).Add(entryFee), p)
		if err := tx.Register().Create(ctx, reg); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "insert register entry", err)
		}
		if err := tx.Orders().Create(ctx, filledMarketOrder(accountID, pos.Symbol, p.Side, p.Size, markPrice, now)); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "insert entry order", err)
		}

		result = pos
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Notify.PositionOpened(result.Symbol, result.Side)
	return result, nil
}

func (e *Engine) buildEntryRegister(accountID uuid.UUID, pos *model.Position, markPrice, marginRequired, entryFee, marginAvailableBefore decimal.Decimal, p OpenParams) *model.TradeRegister {
	entrySlippagePct := decimal.Zero // market orders fill at mark; only exits carry a slippage haircut
	return &model.TradeRegister{
		ID:                    uuid.New(),
		AccountID:             accountID,
		StrategyID:            p.Strategy,
		SessionID:             p.SessionID,
		Mode:                  model.ModePaper,
		Symbol:                pos.Symbol,
		EntryTimestamp:        pos.OpenedAt,
		EntryPrice:            markPrice,
		EntrySize:             pos.Size,
		EntryValueUSD:         pos.Size.Mul(markPrice),
		EntryLeverage:         pos.Leverage,
		MarginRequired:        marginRequired,
		MarginAvailableBefore: marginAvailableBefore,
		FeeEntry:              entryFee,
		ExpectedEntryPrice:    markPrice,
		ActualEntryPrice:      markPrice,
		EntrySlippagePercent:  entrySlippagePct,
		MarketPriceAtEntry:    markPrice,
		Volume24h:             p.Context.Volume24h,
		Volatility:            p.Context.Volatility,
		RSI:                   p.Context.RSI,
		MACD:                  p.Context.MACD,
		BollingerPosition:     p.Context.BollingerPosition,
		SignalConfidence:      p.Context.SignalConfidence,
		SignalReason:          p.Context.SignalReason,
		StrategyParameters:    p.Context.StrategyParameters,
		StopLossPrice:         pos.StopLoss,
		TakeProfitPrice:       pos.TakeProfit,
		Flags:                 model.StringList(p.Context.Flags),
		BotVersion:            p.Context.BotVersion,
		MaxLossLimit:          p.Context.MaxLossLimit,
		TimeLimitSeconds:      p.Context.TimeLimitSeconds,
		Notes:                 p.Notes,
	}
}

// ClosePosition closes an open position at the current mark price.
func (e *Engine) ClosePosition(ctx context.Context, positionID uuid.UUID, reason model.ExitReason, notes string) (*model.Trade, error) {
	pos, err := e.Store.Positions().GetByID(ctx, positionID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindNotOpen, "position not found")
	}
	if pos.Status != model.PositionOpen {
		return nil, apperrors.New(apperrors.KindNotOpen, "position is not open")
	}

	ticker, err := e.Market.GetTicker(ctx, pos.Symbol)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNoPrice, "fetch mark price for "+pos.Symbol, err)
	}
	return e.closeAt(ctx, pos, ticker.MarkPrice, reason, notes)
}

// closeAt performs the atomic close given an already-fetched mark price, so
// CheckExits and ClosePosition share one code path.
func (e *Engine) closeAt(ctx context.Context, pos *model.Position, markPrice decimal.Decimal, reason model.ExitReason, notes string) (*model.Trade, error) {
	dir := decimal.NewFromInt(pos.Dir())
	slip := e.SlippagePercent.Div(hundred)

	var effectiveExit decimal.Decimal
	if pos.Side == model.SideLong {
		effectiveExit = markPrice.Mul(decimal.NewFromInt(1).Sub(slip))
	} else {
		effectiveExit = markPrice.Mul(decimal.NewFromInt(1).Add(slip))
	}

	slippageCost := pos.Size.Mul(markPrice).Mul(slip)

	grossPnL := pos.Size.Mul(pos.Leverage).Mul(dir).Mul(effectiveExit.Sub(pos.EntryPrice))
	pnlPct := dir.Mul(pos.Leverage).Mul(effectiveExit.Div(pos.EntryPrice).Sub(decimal.NewFromInt(1))).Mul(hundred)

	account, err := e.Store.Accounts().GetByID(ctx, pos.AccountID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseFatal, "load account", err)
	}

	entryFee := pos.Size.Mul(pos.EntryPrice).Mul(account.TakerFee)
	exitFee := pos.Size.Mul(markPrice).Mul(account.TakerFee)
	// Net PnL is entry/exit fees only: slippage is already embedded in
	// effectiveExit (and thus in grossPnL), so subtracting slippageCost
	// again here would double-count it. See DESIGN.md's Open Question
	// resolution — slippageCost below is reporting-only.
	netPnL := grossPnL.Sub(entryFee).Sub(exitFee)

	now := e.Clock.Now()
	trade := &model.Trade{
		ID:              uuid.New(),
		AccountID:       pos.AccountID,
		PositionID:      pos.ID,
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		Size:            pos.Size,
		Leverage:        pos.Leverage,
		EntryPrice:      pos.EntryPrice,
		EntryTime:       pos.OpenedAt,
		ExitPrice:       effectiveExit,
		ExitTime:        now,
		EntryFee:        entryFee,
		ExitFee:         exitFee,
		TotalFees:       entryFee.Add(exitFee),
		SlippageCost:    slippageCost,
		GrossPnL:        grossPnL,
		NetPnL:          netPnL,
		PnLPct:          pnlPct,
		ExitReason:      reason,
		DurationMinutes: now.Sub(pos.OpenedAt).Minutes(),
		Strategy:        pos.Strategy,
		Notes:           composeCloseNotes(notes, slippageCost),
	}

	err = e.withTxRetry(ctx, func(tx store.Store) error {
		lockedAccount, err := tx.Accounts().LockForUpdate(ctx, pos.AccountID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseFatal, "lock account", err)
		}

		lockedPos, err := tx.Positions().GetByID(ctx, pos.ID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseFatal, "reload position", err)
		}
		if lockedPos.Status != model.PositionOpen {
			return apperrors.New(apperrors.KindNotOpen, "position already closed")
		}

		lockedAccount.CurrentBalance = lockedAccount.CurrentBalance.Add(lockedPos.MarginUsed).Add(grossPnL).Sub(exitFee)
		lockedAccount.TotalTrades++
		// a scratch trade is not a win; counting it as losing keeps
		// total_trades == winning_trades + losing_trades after every commit
		if netPnL.IsPositive() {
			lockedAccount.WinningTrades++
		} else {
			lockedAccount.LosingTrades++
		}
		lockedAccount.TotalPnL = lockedAccount.TotalPnL.Add(netPnL)

		equity := e.equityOf(ctx, lockedAccount, lockedPos.ID)
		if equity.GreaterThan(lockedAccount.PeakBalance) {
			lockedAccount.PeakBalance = equity
		} else if lockedAccount.PeakBalance.IsPositive() {
			drawdown := lockedAccount.PeakBalance.Sub(equity).Div(lockedAccount.PeakBalance).Mul(hundred)
			if drawdown.GreaterThan(lockedAccount.MaxDrawdown) {
				lockedAccount.MaxDrawdown = drawdown
			}
		}

		if reason == model.ExitLiquidation {
			lockedPos.Status = model.PositionLiquidated
		} else {
			lockedPos.Status = model.PositionClosed
		}
		lockedPos.ClosedAt = &now

		if err := tx.Accounts().Update(ctx, lockedAccount); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "credit account", err)
		}
		if err := tx.Positions().Update(ctx, lockedPos); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "close position", err)
		}
		if err := tx.Trades().Create(ctx, trade); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "insert trade", err)
		}
		if err := tx.Orders().Create(ctx, filledMarketOrder(pos.AccountID, pos.Symbol, pos.Side.Opposite(), pos.Size, markPrice, now)); err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "insert exit order", err)
		}

		if reg, regErr := tx.Register().OpenFor(ctx, pos.AccountID, pos.Symbol); regErr == nil {
			e.patchExitRegister(reg, trade)
			if err := tx.Register().Update(ctx, reg); err != nil {
				return apperrors.Wrap(apperrors.KindDatabaseTransient, "patch register", err)
			}
		} else {
			e.Log.Warn("no matching open register row for closed position", "position_id", pos.ID, "symbol", pos.Symbol)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if netPnL.IsNegative() {
		e.Notify.PositionClosedLoss(pos.Symbol, netPnL)
	} else {
		e.Notify.PositionClosedProfit(pos.Symbol, netPnL)
	}
	return trade, nil
}

func (e *Engine) patchExitRegister(reg *model.TradeRegister, trade *model.Trade) {
	exitTime := trade.ExitTime
	reg.ExitTimestamp = &exitTime
	exitPrice := trade.ExitPrice
	reg.ExitPrice = &exitPrice
	exitReason := trade.ExitReason
	reg.ExitReason = &exitReason
	reg.FeeExit = &trade.ExitFee
	reg.FeeTotal = &trade.TotalFees
	reg.PnLGross = &trade.GrossPnL
	reg.PnLNet = &trade.NetPnL
	reg.PnLPercent = &trade.PnLPct
	durationSeconds := int64(trade.ExitTime.Sub(trade.EntryTime).Seconds())
	reg.DurationSeconds = &durationSeconds
	reg.ExpectedExitPrice = &trade.ExitPrice
	reg.ActualExitPrice = &trade.ExitPrice
	reg.ExitSlippagePercent = &e.SlippagePercent
	reg.PaperTradeID = &trade.ID
}

// filledMarketOrder journals the order row backing a simulated market fill:
// the paper engine fills at mark immediately, so every order it records is
// born terminal (pending->filled within one transaction).
func filledMarketOrder(accountID uuid.UUID, symbol string, side model.Side, size, fillPrice decimal.Decimal, at time.Time) *model.Order {
	return &model.Order{
		ID:          uuid.New(),
		AccountID:   accountID,
		Symbol:      symbol,
		Side:        side,
		Type:        model.OrderTypeMarket,
		Size:        size,
		FilledPrice: &fillPrice,
		FilledSize:  size,
		Status:      model.OrderFilled,
		CreatedAt:   at,
		UpdatedAt:   at,
		FinishedAt:  &at,
	}
}

func composeCloseNotes(notes string, slippageCost decimal.Decimal) string {
	annotation := register.SlippageAnnotation(slippageCost)
	if notes == "" {
		return annotation
	}
	return notes + " | " + annotation
}

// CheckExits runs the SL/TP/liquidation sweep over all open positions.
// Liquidation precedes SL precedes TP; at most one exit per position per
// sweep. Returns the list of Trades that closed, stable in insertion order.
func (e *Engine) CheckExits(ctx context.Context, accountID uuid.UUID) ([]model.Trade, error) {
	positions, err := e.Store.Positions().ListOpen(ctx, accountID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseTransient, "list open positions", err)
	}

	var closed []model.Trade
	for i := range positions {
		pos := positions[i]
		ticker, err := e.Market.GetTicker(ctx, pos.Symbol)
		if err != nil {
			e.Log.Warn("skipping exit check, no price", "symbol", pos.Symbol, "error", err.Error())
			continue
		}
		mark := ticker.MarkPrice
		dir := decimal.NewFromInt(pos.Dir())
		pnlPct := dir.Mul(pos.Leverage).Mul(mark.Div(pos.EntryPrice).Sub(decimal.NewFromInt(1))).Mul(hundred)

		trigger := e.evaluateTrigger(&pos, mark, pnlPct)
		if trigger == triggerNone {
			if err := e.refreshUnrealized(ctx, &pos, mark, pnlPct); err != nil {
				e.Log.Warn("failed to refresh position mark", "position_id", pos.ID, "error", err.Error())
			}
			continue
		}

		trade, err := e.closeAt(ctx, &pos, mark, trigger.reason(), "")
		if err != nil {
			// an exhausted-retry or fatal database error aborts the sweep and
			// propagates so the session can end with reason error
			if apperrors.Retryable(err) || apperrors.EndsSession(err) {
				return closed, err
			}
			e.Log.Error("exit sweep close failed", err, "position_id", pos.ID, "symbol", pos.Symbol)
			continue
		}
		closed = append(closed, *trade)
	}
	return closed, nil
}

// evaluateTrigger applies the exit ordering policy: liquidation precedes
// stop-loss precedes take-profit.
func (e *Engine) evaluateTrigger(pos *model.Position, mark, pnlPct decimal.Decimal) exitTrigger {
	if pnlPct.LessThanOrEqual(decimal.NewFromInt(-100)) {
		return triggerLiquidation
	}
	if pos.StopLoss != nil {
		if pos.Side == model.SideLong && mark.LessThanOrEqual(*pos.StopLoss) {
			return triggerStopLoss
		}
		if pos.Side == model.SideShort && mark.GreaterThanOrEqual(*pos.StopLoss) {
			return triggerStopLoss
		}
	}
	if pos.TakeProfit != nil {
		if pos.Side == model.SideLong && mark.GreaterThanOrEqual(*pos.TakeProfit) {
			return triggerTakeProfit
		}
		if pos.Side == model.SideShort && mark.LessThanOrEqual(*pos.TakeProfit) {
			return triggerTakeProfit
		}
	}
	return triggerNone
}

func (e *Engine) refreshUnrealized(ctx context.Context, pos *model.Position, mark, pnlPct decimal.Decimal) error {
	dir := decimal.NewFromInt(pos.Dir())
	pos.CurrentPrice = mark
	pos.UnrealizedPnL = pos.Size.Mul(pos.Leverage).Mul(dir).Mul(mark.Sub(pos.EntryPrice))
	pos.UnrealizedPnLPct = pnlPct
	return e.Store.Positions().Update(ctx, pos)
}

// equityOf computes current_balance + the sum of unrealized PnL over open
// positions. It reads the stored UnrealizedPnL field (refreshed by each
// CheckExits sweep) rather than refetching tickers, so a read taken before
// a tick's sweep sees the previous sweep's marks.
// excludePosition lets closeAt compute post-close equity without
// double-counting the position whose realized PnL was just folded into
// account.CurrentBalance but whose Status update hasn't been persisted yet.
func (e *Engine) equityOf(ctx context.Context, account *model.Account, excludePosition uuid.UUID) decimal.Decimal {
	positions, err := e.Store.Positions().ListOpen(ctx, account.ID)
	if err != nil {
		return account.CurrentBalance
	}
	equity := account.CurrentBalance
	for _, p := range positions {
		if p.ID == excludePosition {
			continue
		}
		equity = equity.Add(p.UnrealizedPnL)
	}
	return equity
}

// AccountSummary is the pure read of the account's live state.
func (e *Engine) AccountSummary(ctx context.Context, accountID uuid.UUID) (Summary, error) {
	account, err := e.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return Summary{}, apperrors.Wrap(apperrors.KindDatabaseTransient, "load account", err)
	}
	positions, err := e.Store.Positions().ListOpen(ctx, accountID)
	if err != nil {
		return Summary{}, apperrors.Wrap(apperrors.KindDatabaseTransient, "list open positions", err)
	}

	unrealized := decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	equity := account.CurrentBalance.Add(unrealized)

	var winRate decimal.Decimal
	if account.TotalTrades > 0 {
		winRate = decimal.NewFromInt(int64(account.WinningTrades)).Div(decimal.NewFromInt(int64(account.TotalTrades))).Mul(hundred)
	}
	var roi decimal.Decimal
	if account.InitialBalance.IsPositive() {
		roi = equity.Sub(account.InitialBalance).Div(account.InitialBalance).Mul(hundred)
	}

	return Summary{
		CurrentBalance: account.CurrentBalance,
		UnrealizedPnL:  unrealized,
		Equity:         equity,
		TotalPnL:       account.TotalPnL,
		ROI:            roi,
		OpenPositions:  len(positions),
		WinRate:        winRate,
		MaxDrawdown:    account.MaxDrawdown,
		PeakBalance:    account.PeakBalance,
	}, nil
}

// withTxRetry wraps Store.WithTx with the transient-failure retry policy.
// The callback must be re-runnable from scratch: nothing is persisted until
// a transaction commits, so a retried attempt starts clean.
func (e *Engine) withTxRetry(ctx context.Context, fn func(tx store.Store) error) error {
	backoff := txBaseBackoff
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = e.Store.WithTx(ctx, fn)
		if err == nil || !apperrors.Retryable(err) {
			return err
		}
		if attempt < txMaxAttempts {
			e.Log.Warn("transient database error, retrying transaction", "attempt", attempt, "error", err.Error())
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return err
}

// ReconcileStartup discovers the account's open Positions and open
// TradeRegister rows at process start, resuming exit monitoring without
// re-opening anything. An open register row with no matching open position
// is inconsistent and is logged as a data-integrity alert; the row itself is
// left untouched for the operator to inspect.
func (e *Engine) ReconcileStartup(ctx context.Context, accountID uuid.UUID) (openPositions, orphanRegisters int, err error) {
	positions, err := e.Store.Positions().ListOpen(ctx, accountID)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.KindDatabaseFatal, "list open positions at startup", err)
	}
	registers, err := e.Store.Register().ListOpen(ctx, accountID)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.KindDatabaseFatal, "list open register rows at startup", err)
	}

	openBySymbol := make(map[string]int, len(positions))
	for _, p := range positions {
		openBySymbol[p.Symbol]++
	}

	for _, reg := range registers {
		if openBySymbol[reg.Symbol] > 0 {
			openBySymbol[reg.Symbol]--
			continue
		}
		orphanRegisters++
		e.Log.Error("data-integrity alert: open register row without a matching open position", nil,
			"register_id", reg.ID, "symbol", reg.Symbol, "entry_timestamp", reg.EntryTimestamp)
	}

	for symbol, unmatched := range openBySymbol {
		if unmatched > 0 {
			e.Log.Warn("open position without a matching open register row", "symbol", symbol, "count", unmatched)
		}
	}

	if len(positions) > 0 {
		e.Log.Info("resuming exit monitoring for open positions", "count", len(positions))
	}
	return len(positions), orphanRegisters, nil
}

// Reset is a dev/test operation: force-close all
// open positions without generating Trades, zero counters, reset peak.
func (e *Engine) Reset(ctx context.Context, accountID uuid.UUID, initialBalance decimal.Decimal) error {
	return e.Store.WithTx(ctx, func(tx store.Store) error {
		account, err := tx.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseFatal, "lock account", err)
		}
		positions, err := tx.Positions().ListOpen(ctx, accountID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindDatabaseTransient, "list open positions", err)
		}
		now := e.Clock.Now()
		for i := range positions {
			pos := positions[i]
			pos.Status = model.PositionClosed
			pos.ClosedAt = &now
			if err := tx.Positions().Update(ctx, &pos); err != nil {
				return apperrors.Wrap(apperrors.KindDatabaseTransient, "force-close position", err)
			}
		}

		account.CurrentBalance = initialBalance
		account.InitialBalance = initialBalance
		account.PeakBalance = initialBalance
		account.TotalTrades = 0
		account.WinningTrades = 0
		account.LosingTrades = 0
		account.TotalPnL = decimal.Zero
		account.MaxDrawdown = decimal.Zero
		return tx.Accounts().Update(ctx, account)
	})
}
