package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbot/engine/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPreTick_TimeLimitLatches(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 60, d("1000"), nil, 0, 0)

	stopped, reason := g.PreTick(start.Add(30*time.Second), decimal.Zero, decimal.Zero)
	assert.False(t, stopped)
	assert.Empty(t, reason)

	stopped, reason = g.PreTick(start.Add(61*time.Second), decimal.Zero, decimal.Zero)
	require.True(t, stopped)
	assert.Equal(t, model.EndTimeLimit, reason)

	// latch is sticky even if a later call reports a condition that would
	// otherwise indicate a different reason.
	stopped, reason = g.PreTick(start.Add(120*time.Second), d("-5000"), decimal.Zero)
	require.True(t, stopped)
	assert.Equal(t, model.EndTimeLimit, reason)
}

func TestPreTick_MaxLossLatches(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 0, d("500"), nil, 0, 0)

	stopped, _ := g.PreTick(start, d("-499"), decimal.Zero)
	assert.False(t, stopped)

	stopped, reason := g.PreTick(start, d("-500"), decimal.Zero)
	require.True(t, stopped)
	assert.Equal(t, model.EndMaxLoss, reason)
}

func TestPreTick_MaxDrawdownPausesOnly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDD := d("10")
	g := New(start, 0, decimal.Zero, &maxDD, 0, 0)

	stopped, _ := g.PreTick(start, decimal.Zero, d("12"))
	assert.False(t, stopped, "drawdown breach pauses entries, it never stops the session")
	assert.False(t, g.Stopped())
	assert.False(t, g.AllowEntry(start), "entries blocked while paused")

	// drawdown recovers: pause lifts, entries resume.
	stopped, _ = g.PreTick(start, decimal.Zero, d("1"))
	assert.False(t, stopped)
	assert.True(t, g.AllowEntry(start))
}

func TestAllowEntry_CooldownAfterAdverseClose(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 0, decimal.Zero, nil, 30*time.Second, 0)

	assert.True(t, g.AllowEntry(start))
	g.OnAdverseClose(start)
	assert.False(t, g.AllowEntry(start.Add(10*time.Second)), "still inside cooldown window")
	assert.True(t, g.AllowEntry(start.Add(31*time.Second)), "cooldown window has elapsed")
}

func TestAllowEntry_ProfitableCloseDoesNotCooldown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 0, decimal.Zero, nil, 30*time.Second, 0)
	assert.True(t, g.AllowEntry(start))
	// no OnAdverseClose call: a profitable close never starts a cooldown.
	assert.True(t, g.AllowEntry(start.Add(time.Second)))
}

func TestStop_ManualLatchIsSticky(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 0, decimal.Zero, nil, 0, 0)

	g.Stop(model.EndManual)
	assert.True(t, g.Stopped())
	assert.Equal(t, model.EndManual, g.StopReason())

	// a second Stop call with a different reason does not override the first.
	g.Stop(model.EndMaxLoss)
	assert.Equal(t, model.EndManual, g.StopReason())
}

func TestAllowOpen_PositionCap(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 0, decimal.Zero, nil, 0, 2)

	assert.True(t, g.AllowOpen(0))
	assert.True(t, g.AllowOpen(1))
	assert.False(t, g.AllowOpen(2), "cap reached, no further opens")
	assert.False(t, g.AllowOpen(3))
}

func TestAllowOpen_ZeroCapMeansUncapped(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(start, 0, decimal.Zero, nil, 0, 0)
	assert.True(t, g.AllowOpen(1000))
}
