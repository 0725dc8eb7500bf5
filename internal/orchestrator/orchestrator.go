// Package orchestrator implements the engine's main loop: a
// single-threaded cooperative tick cycle (I/O may fan out, mutations stay
// serialized) driving the risk guard, the accounting engine, and one
// strategy harness per registered strategy, paced against a Clock with no
// catch-up burst when a tick overruns.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/accounting"
	"github.com/paperbot/engine/internal/apperrors"
	"github.com/paperbot/engine/internal/clock"
	"github.com/paperbot/engine/internal/logger"
	"github.com/paperbot/engine/internal/marketdata"
	"github.com/paperbot/engine/internal/model"
	"github.com/paperbot/engine/internal/money"
	"github.com/paperbot/engine/internal/observability"
	"github.com/paperbot/engine/internal/risk"
	"github.com/paperbot/engine/internal/store"
	"github.com/paperbot/engine/internal/strategy"
)

// SymbolStrategy pairs a configured symbol with the Strategy instance
// evaluating it; the Orchestrator holds one Strategy instance per session,
// but each may be wired to more than one symbol.
type SymbolStrategy struct {
	Symbol   string
	Strategy strategy.Strategy
}

// Orchestrator owns the tick loop and the session lifecycle around it.
type Orchestrator struct {
	Engine       *accounting.Engine
	Guard        *risk.Guard
	Store        store.Store
	Market       marketdata.Source
	Clock        clock.Clock
	Log          *logger.Logger
	AccountID    uuid.UUID
	SessionID    string
	CheckInterval time.Duration
	Leverage     decimal.Decimal

	// LLMJournal, if set, is the shared signal journal handed to every
	// harness so LLM-backed strategies' signals are logged outside the main log.
	LLMJournal *strategy.LLMJournal

	// OnTick, if set, is called after every tick with its wall-clock
	// duration — the hook cmd/paperengine uses to feed the prometheus tick
	// histogram without this package importing client_golang directly.
	OnTick func(time.Duration)

	// OnTradeClosed, if set, is called once per Trade produced by the exit
	// sweep or a strategy-requested close.
	OnTradeClosed func(model.Trade)

	// Spans, if set, persists a ServiceSpan row for every tick alongside the
	// in-process otel span, so a session's tick timing survives after the
	// process exits.
	Spans *observability.SpanRecorder

	// Session is the read-only session metadata handed to strategies that
	// implement the SetSessionContext capability.
	Session strategy.SessionContext

	// BotVersion is stamped into every register row's session context.
	BotVersion string

	// SizeOverrides maps a symbol base (e.g. "BTC") to a fixed position size
	// that takes precedence over percent-of-balance sizing.
	SizeOverrides map[string]decimal.Decimal

	// SummaryEvery controls how many ticks pass between periodic summary
	// emissions. Zero keeps the default of 10.
	SummaryEvery int

	pairs     []SymbolStrategy
	harness   map[string]*strategy.Harness
	tickCount int
}

// New builds an Orchestrator with no strategies wired; Register adds the
// (symbol, strategy) pairs and builds one Harness per strategy, each with
// its owned-positions lookup bound to that strategy's name.
func New(engine *accounting.Engine, guard *risk.Guard, st store.Store, mkt marketdata.Source, clk clock.Clock, accountID uuid.UUID, sessionID string, checkInterval time.Duration, leverage decimal.Decimal) *Orchestrator {
	return &Orchestrator{
		Engine:        engine,
		Guard:         guard,
		Store:         st,
		Market:        mkt,
		Clock:         clk,
		Log:           logger.NewLogger("orchestrator"),
		AccountID:     accountID,
		SessionID:     sessionID,
		CheckInterval: checkInterval,
		Leverage:      leverage,
		harness:       make(map[string]*strategy.Harness),
	}
}

// Register wires a (symbol, strategy) pair into the tick loop and builds the
// Harness that evaluates it, binding the harness's owned-positions lookup to
// this strategy's name so owned positions can be offered for closing.
func (o *Orchestrator) Register(symbol string, s strategy.Strategy, candleLimit int) {
	o.pairs = append(o.pairs, SymbolStrategy{Symbol: symbol, Strategy: s})
	if _, ok := o.harness[s.Name()]; !ok {
		h := strategy.NewHarness(o.Market, candleLimit, o.lookupOwned(s.Name()))
		if o.LLMJournal != nil {
			h.LLMJournal = o.LLMJournal
		}
		o.harness[s.Name()] = h
	}
	if setter, ok := s.(strategy.EngineAware); ok {
		setter.SetPaperTradingEngine(readOnlyView{store: o.Store, market: o.Market, accountID: o.AccountID})
	}
	if setter, ok := s.(strategy.SessionContextSetter); ok {
		setter.SetSessionContext(o.Session)
	}
}

func (o *Orchestrator) lookupOwned(strategyName string) strategy.OpenPositionsLookup {
	return func(ctx context.Context, symbol, name string) ([]model.Position, error) {
		open, err := o.Store.Positions().ListOpen(ctx, o.AccountID)
		if err != nil {
			return nil, err
		}
		owned := make([]model.Position, 0, len(open))
		for _, p := range open {
			if p.Symbol == symbol && p.Strategy == strategyName {
				owned = append(owned, p)
			}
		}
		return owned, nil
	}
}

// Run executes the tick loop until ctx is cancelled. It returns the
// session end reason once the loop exits.
func (o *Orchestrator) Run(ctx context.Context) model.SessionEndReason {
	for {
		select {
		case <-ctx.Done():
			return o.cancel()
		default:
		}

		tickStart := o.Clock.Now()
		o.tick(ctx)
		if o.OnTick != nil {
			o.OnTick(o.Clock.Now().Sub(tickStart))
		}

		if o.Guard.Stopped() {
			o.emitSummary(context.Background(), "final summary")
			return o.Guard.StopReason()
		}

		elapsed := o.Clock.Now().Sub(tickStart)
		remaining := o.CheckInterval - elapsed
		if remaining > 0 {
			select {
			case <-ctx.Done():
				return o.cancel()
			case <-o.Clock.After(remaining):
			}
		}
		// if a tick overran the interval, the next one starts immediately;
		// missed ticks are never queued.
	}
}

// cancel runs the interrupt path: latch the stop, close the session
// row with end_reason=manual, and emit the final summary. The in-progress
// transaction (if any) has already finished by the time Run observes
// ctx.Done(), so nothing is interrupted mid-commit.
func (o *Orchestrator) cancel() model.SessionEndReason {
	o.Guard.Stop(model.EndManual)
	bg := context.Background()
	o.endSession(bg, model.EndManual)
	o.emitSummary(bg, "final summary")
	o.Log.Info("orchestrator cancelled, session ended", "session_id", o.SessionID)
	return model.EndManual
}

// tick runs one full pass: session gates, the exits sweep, per-symbol
// strategy evaluation, and signal application.
func (o *Orchestrator) tick(ctx context.Context) {
	ctx, span := observability.Tracer().Start(ctx, "orchestrator.tick")
	defer span.End()

	var dbSpan *observability.ActiveSpan
	if o.Spans != nil {
		dbSpan = o.Spans.Start("orchestrator.tick")
	}
	tickStatus := "ok"
	if dbSpan != nil {
		defer func() { dbSpan.End(tickStatus) }()
	}

	summary, err := o.Engine.AccountSummary(ctx, o.AccountID)
	if err != nil {
		o.Log.Warn("failed to read account summary before pre_tick", "error", err.Error())
		tickStatus = "error"
		return
	}

	if stopped, reason := o.Guard.PreTick(o.Clock.Now(), summary.TotalPnL, summary.MaxDrawdown); stopped {
		o.endSession(ctx, reason)
		return
	}

	// exits before entries; liquidation-before-SL-before-TP is handled
	// inside CheckExits
	closed, err := o.Engine.CheckExits(ctx, o.AccountID)
	if err != nil {
		if o.fatalIfUnrecoverable(ctx, err) {
			tickStatus = "error"
			return
		}
		o.Log.Warn("check_exits failed", "error", err.Error())
	}
	for _, t := range closed {
		if t.NetPnL.IsNegative() {
			o.Guard.OnAdverseClose(o.Clock.Now())
		}
		if o.OnTradeClosed != nil {
			o.OnTradeClosed(t)
		}
	}

	if !o.Guard.AllowEntry(o.Clock.Now()) {
		return
	}

	// evaluate each configured symbol in configured order; strategies are
	// not concurrent with each other's mutations, only their I/O may
	// overlap
	for _, pair := range o.pairs {
		h, ok := o.harness[pair.Strategy.Name()]
		if !ok {
			continue
		}
		eval, err := h.Evaluate(ctx, pair.Strategy, pair.Symbol)
		if err != nil {
			o.Log.Warn("strategy evaluation failed, skipping for this tick", "strategy", pair.Strategy.Name(), "symbol", pair.Symbol, "error", err.Error())
			continue
		}
		if eval.Skipped {
			continue
		}

		for _, closeSig := range eval.CloseSignals {
			o.applyClose(ctx, pair, closeSig)
		}

		if eval.EntrySignal != nil {
			o.applyEntry(ctx, pair, eval.EntrySignal, summary)
		}
	}

	o.tickCount++
	every := o.SummaryEvery
	if every <= 0 {
		every = 10
	}
	if o.tickCount%every == 0 {
		o.emitSummary(ctx, "periodic summary")
	}
}

// fatalIfUnrecoverable latches the session stopped with end_reason=error
// when a database failure is fatal or survived the retry policy; no further
// ticks run after it. Returns whether it latched.
func (o *Orchestrator) fatalIfUnrecoverable(ctx context.Context, err error) bool {
	if !apperrors.EndsSession(err) && !apperrors.Retryable(err) {
		return false
	}
	o.Log.Error("unrecoverable database failure, ending session", err, "session_id", o.SessionID)
	o.Guard.Stop(model.EndError)
	o.endSession(ctx, model.EndError)
	return true
}

// emitSummary logs the operator summary: balance, equity,
// unrealized PnL, open positions, win rate.
func (o *Orchestrator) emitSummary(ctx context.Context, label string) {
	summary, err := o.Engine.AccountSummary(ctx, o.AccountID)
	if err != nil {
		o.Log.Warn("failed to read account summary", "error", err.Error())
		return
	}
	o.Log.Info(label,
		"session_id", o.SessionID,
		"balance", money.Present(summary.CurrentBalance).String(),
		"equity", money.Present(summary.Equity).String(),
		"unrealized_pnl", money.Present(summary.UnrealizedPnL).String(),
		"total_pnl", money.Present(summary.TotalPnL).String(),
		"open_positions", summary.OpenPositions,
		"win_rate", money.Present(summary.WinRate).String(),
	)
}

// endSession closes the TradingSession row with its end reason and rollup
// stats (duration, trade counters, balances, drawdown).
func (o *Orchestrator) endSession(ctx context.Context, reason model.SessionEndReason) {
	sess, err := o.Store.Sessions().GetByID(ctx, o.SessionID)
	if err != nil {
		o.Log.Warn("failed to load session while ending it", "session_id", o.SessionID, "error", err.Error())
		return
	}
	if !sess.Active() {
		return
	}
	now := o.Clock.Now()
	sess.EndedAt = &now
	sess.EndReason = &reason
	sess.DurationSeconds = int64(now.Sub(sess.StartedAt).Seconds())

	// Session-scoped trade rollup from this session's register rows; account
	// counters span the account's whole lifetime and may include prior
	// sessions.
	if regs, err := o.Store.Register().ListBySession(ctx, o.SessionID); err == nil {
		total := decimal.Zero
		for _, reg := range regs {
			if reg.PnLNet == nil {
				continue
			}
			sess.TotalTrades++
			if reg.PnLNet.IsPositive() {
				sess.WinningTrades++
			} else {
				sess.LosingTrades++
			}
			total = total.Add(*reg.PnLNet)
		}
		sess.TotalPnL = total
	} else {
		o.Log.Warn("failed to list register rows for session rollup", "error", err.Error())
	}

	if account, err := o.Store.Accounts().GetByID(ctx, o.AccountID); err == nil {
		sess.EndingBalance = account.CurrentBalance
		sess.PeakBalance = account.PeakBalance
		sess.MaxDrawdown = account.MaxDrawdown
	} else {
		o.Log.Warn("failed to load account for session rollup", "error", err.Error())
	}

	if err := o.Store.Sessions().Update(ctx, sess); err != nil {
		o.Log.Warn("failed to persist session end", "session_id", o.SessionID, "error", err.Error())
	}
	o.Log.Info("session ended", "session_id", o.SessionID, "reason", string(reason))
}

func (o *Orchestrator) applyClose(ctx context.Context, pair SymbolStrategy, sig *strategy.Signal) {
	open, err := o.Store.Positions().OpenBySymbol(ctx, o.AccountID, pair.Symbol, pair.Strategy.Name())
	if err != nil {
		return
	}
	trade, err := o.Engine.ClosePosition(ctx, open.ID, model.ExitStrategyClose, sig.Reason)
	if err != nil {
		o.Log.Warn("strategy-requested close failed", "symbol", pair.Symbol, "error", err.Error())
		return
	}
	if o.OnTradeClosed != nil {
		o.OnTradeClosed(*trade)
	}
}

func (o *Orchestrator) applyEntry(ctx context.Context, pair SymbolStrategy, sig *strategy.Signal, summary accounting.Summary) {
	side := model.SideLong
	if sig.Kind == strategy.SignalSell {
		side = model.SideShort
	}

	existing, err := o.Store.Positions().OpenBySymbol(ctx, o.AccountID, pair.Symbol, pair.Strategy.Name())
	if err == nil && existing != nil && existing.Side != side {
		// at most one open position per (symbol, strategy) unless the
		// strategy explicitly permits hedging: only a hedging strategy may
		// hold the opposite side alongside this one
		if hedge, ok := pair.Strategy.(strategy.HedgeAware); !ok || !hedge.AllowsHedging() {
			coerce, ok := pair.Strategy.(strategy.AutoCoerceAware)
			if ok && coerce.AutoCoerceOpposite() {
				if _, closeErr := o.Engine.ClosePosition(ctx, existing.ID, model.ExitStrategyClose, "auto-coerced close ahead of opposite-side entry"); closeErr != nil {
					o.Log.Warn("auto-coerce close failed", "symbol", pair.Symbol, "error", closeErr.Error())
				}
				return // the entry is re-evaluated on the next tick
			}
			return
		}
	}

	open, err := o.Store.Positions().ListOpen(ctx, o.AccountID)
	if err != nil {
		o.Log.Warn("failed to count open positions", "error", err.Error())
		return
	}
	for _, p := range open {
		if p.Symbol == pair.Symbol && p.Strategy == pair.Strategy.Name() && p.Side == side {
			// already own a same-side position under this strategy
			o.Log.Debug("dropping duplicate same-side entry signal", "symbol", pair.Symbol, "strategy", pair.Strategy.Name(), "side", string(side))
			return
		}
	}
	if !o.Guard.AllowOpen(len(open)) {
		return
	}

	size := strategy.SizeFor(summary.CurrentBalance, sig.Price, sig.SizePercent, o.sizeOverrideFor(pair.Symbol))
	if !size.IsPositive() {
		return
	}

	regCtx := accounting.RegisterContext{
		SignalConfidence: sig.Confidence,
		SignalReason:     sig.Reason,
		BotVersion:       o.BotVersion,
	}
	if o.Session.MaxLossLimit.IsPositive() {
		limit := o.Session.MaxLossLimit
		regCtx.MaxLossLimit = &limit
	}
	if o.Session.TimeLimitSeconds > 0 {
		seconds := o.Session.TimeLimitSeconds
		regCtx.TimeLimitSeconds = &seconds
	}

	params := accounting.OpenParams{
		Symbol:     pair.Symbol,
		Side:       side,
		Size:       size,
		Leverage:   o.Leverage,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Strategy:   pair.Strategy.Name(),
		Notes:      sig.Reason,
		SessionID:  o.SessionID,
		Context:    regCtx,
	}
	if _, err := o.Engine.OpenPosition(ctx, o.AccountID, params); err != nil {
		o.Log.Warn("strategy-requested open failed", "symbol", pair.Symbol, "strategy", pair.Strategy.Name(), "error", err.Error())
	}
}

// sizeOverrideFor resolves the BASE:AMOUNT fixed-size override for a
// symbol: "BTC-USD" matches base "BTC".
func (o *Orchestrator) sizeOverrideFor(symbol string) *decimal.Decimal {
	if len(o.SizeOverrides) == 0 {
		return nil
	}
	base := symbol
	if i := strings.IndexAny(symbol, "-/"); i > 0 {
		base = symbol[:i]
	}
	if v, ok := o.SizeOverrides[base]; ok {
		return &v
	}
	return nil
}

// readOnlyView is the narrow adapter handed to EngineAware strategies: it
// exposes only open-position and price lookups, never the mutating Engine
// itself, so a strategy cannot reach back into balances.
type readOnlyView struct {
	store     store.Store
	market    marketdata.Source
	accountID uuid.UUID
}

func (v readOnlyView) OpenPositionsFor(ctx context.Context, symbol string) ([]model.Position, error) {
	open, err := v.store.Positions().ListOpen(ctx, v.accountID)
	if err != nil {
		return nil, err
	}
	owned := make([]model.Position, 0, len(open))
	for _, p := range open {
		if p.Symbol == symbol {
			owned = append(owned, p)
		}
	}
	return owned, nil
}

func (v readOnlyView) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t, err := v.market.GetTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.MarkPrice, nil
}
