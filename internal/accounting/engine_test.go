package accounting_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/paperbot/engine/internal/accounting"
	"github.com/paperbot/engine/internal/clock"
	"github.com/paperbot/engine/internal/marketdata"
	"github.com/paperbot/engine/internal/model"
	"github.com/paperbot/engine/internal/store"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestAccount(t *testing.T, st store.Store, balance, taker, leverageCap string) *model.Account {
	t.Helper()
	acc := &model.Account{
		ID:              uuid.New(),
		Name:            "test",
		InitialBalance:  d(balance),
		CurrentBalance:  d(balance),
		PeakBalance:     d(balance),
		LeverageDefault: d("1"),
		LeverageCap:     d(leverageCap),
		MakerFee:        d(taker),
		TakerFee:        d(taker),
	}
	require.NoError(t, st.Accounts().Create(context.Background(), acc))
	return acc
}

func newEngine(mkt marketdata.Source, st store.Store, slippagePct string, now time.Time) *accounting.Engine {
	return accounting.New(st, mkt, nil, clock.NewFake(now), d(slippagePct))
}

// Simple profitable long with fees and slippage; pins the exact accounting
// arithmetic end to end.
func TestClosePosition_SimpleProfitableLong(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0.0005", "10")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := newEngine(fake, st, "0.75", now)

	pos, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol:   "BTC-USD",
		Side:     model.SideLong,
		Size:     d("0.1"),
		Leverage: d("1"),
	})
	require.NoError(t, err)

	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("55000")})
	trade, err := eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)

	// effective exit = 55000 * (1 - 0.0075) = 54587.5
	require.True(t, trade.ExitPrice.Equal(d("54587.5")), "exit price %s", trade.ExitPrice)
	// gross = 0.1 * 1 * (54587.5 - 50000) = 458.75
	require.True(t, trade.GrossPnL.Equal(d("458.75")), "gross %s", trade.GrossPnL)
	require.True(t, trade.EntryFee.Equal(d("2.5")), "entry fee %s", trade.EntryFee)
	require.True(t, trade.ExitFee.Equal(d("2.75")), "exit fee %s", trade.ExitFee)
	require.True(t, trade.SlippageCost.Equal(d("41.25")), "slippage %s", trade.SlippageCost)

	// Net PnL deliberately does NOT double-subtract slippage: it is already
	// embedded in the effective exit price used for grossPnL. See
	// DESIGN.md's pinned decision.
	require.True(t, trade.NetPnL.Equal(d("453.5")), "net pnl %s", trade.NetPnL)

	updated, err := st.Accounts().GetByID(ctx, acc.ID)
	require.NoError(t, err)
	// balance = 10000 - entryFee(2.5) - margin(5000) + margin(5000) + gross(458.75) - exitFee(2.75)
	require.True(t, updated.CurrentBalance.Equal(d("10453.5")), "balance %s", updated.CurrentBalance)
	require.Equal(t, 1, updated.TotalTrades)
	require.Equal(t, 1, updated.WinningTrades)
	require.Equal(t, 0, updated.LosingTrades)
}

// Liquidation of a 10x long: a loss equal to margin force-closes it.
func TestCheckExits_Liquidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "10")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	pos, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol:   "BTC-USD",
		Side:     model.SideLong,
		Size:     d("0.1"),
		Leverage: d("10"),
	})
	require.NoError(t, err)
	require.True(t, pos.MarginUsed.Equal(d("500")))

	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("44999")})
	trades, err := eng.CheckExits(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.ExitLiquidation, trades[0].ExitReason)
}

// Stop-loss takes priority over take-profit on a gap through the stop,
// liquidation excluded.
func TestCheckExits_StopLossPriorityOverTakeProfit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "5")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	sl := d("49000")
	tp := d("51000")
	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol:     "BTC-USD",
		Side:       model.SideLong,
		Size:       d("0.1"),
		Leverage:   d("1"),
		StopLoss:   &sl,
		TakeProfit: &tp,
	})
	require.NoError(t, err)

	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("48000")})
	trades, err := eng.CheckExits(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.ExitStopLoss, trades[0].ExitReason)
}

func TestCheckExits_LiquidationPrecedesStopLoss(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "10")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	sl := d("49000")
	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol:   "BTC-USD",
		Side:     model.SideLong,
		Size:     d("0.1"),
		Leverage: d("10"),
		StopLoss: &sl,
	})
	require.NoError(t, err)

	// Both SL and liquidation conditions are satisfied; liquidation wins.
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("40000")})
	trades, err := eng.CheckExits(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.ExitLiquidation, trades[0].ExitReason)
}

// Round-trip law: opening and closing at the same price with zero fees and
// zero slippage yields exactly zero net PnL and an unchanged balance.
func TestClosePosition_ZeroFeeRoundTripIsFlat(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "5")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	pos, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("5"),
	})
	require.NoError(t, err)

	trade, err := eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)
	require.True(t, trade.NetPnL.IsZero(), "net pnl %s", trade.NetPnL)

	updated, err := st.Accounts().GetByID(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentBalance.Equal(d("10000")), "balance %s", updated.CurrentBalance)

	// a scratch trade counts as a loss, keeping the counter identity intact
	require.Equal(t, updated.TotalTrades, updated.WinningTrades+updated.LosingTrades)
	require.Equal(t, 1, updated.LosingTrades)
}

// Conservation over a sequence of round-trips with fees: the balance ends
// at initial + the sum of net PnL, and the trade counters always satisfy
// total = winning + losing.
func TestClosePosition_ConservationAcrossWinAndLoss(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0.0005", "5")

	fake := marketdata.NewFake()
	eng := newEngine(fake, st, "0", time.Now())

	// winning long: 50000 -> 51000
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	pos, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("1"),
	})
	require.NoError(t, err)
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("51000")})
	win, err := eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)
	require.True(t, win.NetPnL.IsPositive())

	// losing short: 3000 -> 3100
	fake.SetTicker("ETH-USD", model.Ticker{MarkPrice: d("3000")})
	pos, err = eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "ETH-USD", Side: model.SideShort, Size: d("1"), Leverage: d("2"),
	})
	require.NoError(t, err)
	fake.SetTicker("ETH-USD", model.Ticker{MarkPrice: d("3100")})
	loss, err := eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)
	require.True(t, loss.NetPnL.IsNegative())

	updated, err := st.Accounts().GetByID(ctx, acc.ID)
	require.NoError(t, err)
	wantBalance := d("10000").Add(win.NetPnL).Add(loss.NetPnL)
	require.True(t, updated.CurrentBalance.Equal(wantBalance), "balance %s, want %s", updated.CurrentBalance, wantBalance)
	require.True(t, updated.TotalPnL.Equal(win.NetPnL.Add(loss.NetPnL)))
	require.Equal(t, 2, updated.TotalTrades)
	require.Equal(t, updated.TotalTrades, updated.WinningTrades+updated.LosingTrades)
	require.Equal(t, 1, updated.WinningTrades)
	require.Equal(t, 1, updated.LosingTrades)
	require.True(t, updated.PeakBalance.GreaterThanOrEqual(updated.CurrentBalance))
}

// Liquidation is inclusive: a loss of exactly 100% of margin triggers it.
func TestCheckExits_LiquidationInclusiveAtExactly100Percent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "10")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("10"),
	})
	require.NoError(t, err)

	// 10x long from 50000: a 10% drop to 45000 is exactly -100%
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("45000")})
	trades, err := eng.CheckExits(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.ExitLiquidation, trades[0].ExitReason)
}

// A stop-loss at exactly the mark price triggers (inclusive comparison).
func TestCheckExits_StopLossInclusiveAtExactMark(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "5")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	sl := d("49000")
	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("1"), StopLoss: &sl,
	})
	require.NoError(t, err)

	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("49000")})
	trades, err := eng.CheckExits(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.ExitStopLoss, trades[0].ExitReason)
}

func TestOpenPosition_RejectsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "100", "0", "1")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol:   "BTC-USD",
		Side:     model.SideLong,
		Size:     d("0.1"),
		Leverage: d("1"),
	})
	require.Error(t, err)
}

func TestOpenPosition_RejectsNoPrice(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "1")

	fake := marketdata.NewFake() // no ticker configured
	eng := newEngine(fake, st, "0", time.Now())

	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol:   "BTC-USD",
		Side:     model.SideLong,
		Size:     d("0.1"),
		Leverage: d("1"),
	})
	require.Error(t, err)
}

func TestClosePosition_IdempotentNotOpen(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "1")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	pos, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("1"),
	})
	require.NoError(t, err)

	_, err = eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)

	_, err = eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.Error(t, err)
}

func TestTradeRegister_PairingAcrossClose(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "1")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	pos, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("1"),
	})
	require.NoError(t, err)

	openRegs, err := st.Register().ListOpen(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, openRegs, 1)

	_, err = eng.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)

	openRegs, err = st.Register().ListOpen(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, openRegs, 0, "no orphan open register row should remain after close")
}

// Register pairing survives a restart. A position
// opened by one engine instance is picked up by a fresh instance over the
// same store; closing it patches the original register row and leaves no
// orphan behind.
func TestTradeRegister_PairingAcrossRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "1")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})

	eng1 := newEngine(fake, st, "0", time.Now())
	pos, err := eng1.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("1"),
	})
	require.NoError(t, err)

	// "restart": a fresh engine over the same store
	eng2 := newEngine(fake, st, "0", time.Now())
	open, orphans, err := eng2.ReconcileStartup(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, open)
	require.Equal(t, 0, orphans)

	openRegs, err := st.Register().ListOpen(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, openRegs, 1)

	_, err = eng2.ClosePosition(ctx, pos.ID, model.ExitManual, "")
	require.NoError(t, err)

	openRegs, err = st.Register().ListOpen(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, openRegs, 0)
}

func TestReconcileStartup_FlagsOrphanRegisterRow(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "1")

	require.NoError(t, st.Register().Create(ctx, &model.TradeRegister{
		ID:             uuid.New(),
		AccountID:      acc.ID,
		Symbol:         "ETH-USD",
		Mode:           model.ModePaper,
		EntryTimestamp: time.Now(),
	}))

	eng := newEngine(marketdata.NewFake(), st, "0", time.Now())
	open, orphans, err := eng.ReconcileStartup(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, 0, open)
	require.Equal(t, 1, orphans)
}

func TestAccountSummary_ReflectsUnrealizedAfterSweep(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	acc := newTestAccount(t, st, "10000", "0", "1")

	fake := marketdata.NewFake()
	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("50000")})
	eng := newEngine(fake, st, "0", time.Now())

	_, err := eng.OpenPosition(ctx, acc.ID, accounting.OpenParams{
		Symbol: "BTC-USD", Side: model.SideLong, Size: d("0.1"), Leverage: d("1"),
	})
	require.NoError(t, err)

	fake.SetTicker("BTC-USD", model.Ticker{MarkPrice: d("51000")})
	_, err = eng.CheckExits(ctx, acc.ID)
	require.NoError(t, err)

	summary, err := eng.AccountSummary(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, summary.UnrealizedPnL.Equal(d("100")), "unrealized %s", summary.UnrealizedPnL)
	require.Equal(t, 1, summary.OpenPositions)
}
