// Package risk implements the session risk guard: session-level gates
// evaluated in order ahead of every new-position decision.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/model"
)

// Guard gates session limits. Once a stop latch fires, no further position
// opens are permitted for the remainder of the session; in-flight exits
// still run.
type Guard struct {
	TimeLimitSeconds   int64
	MaxLossLimit       decimal.Decimal
	MaxDrawdownPercent *decimal.Decimal
	CooldownDuration   time.Duration
	MaxPositions       int

	startedAt time.Time

	mu            sync.Mutex
	stopped       bool
	stopReason    model.SessionEndReason
	paused        bool
	cooldownUntil time.Time
}

// New builds a Guard for a session starting at startedAt. maxDrawdownPct is
// nil when the optional max_drawdown configuration is absent; maxPositions
// zero means uncapped.
func New(startedAt time.Time, timeLimitSeconds int64, maxLossLimit decimal.Decimal, maxDrawdownPct *decimal.Decimal, cooldown time.Duration, maxPositions int) *Guard {
	return &Guard{
		TimeLimitSeconds:   timeLimitSeconds,
		MaxLossLimit:       maxLossLimit,
		MaxDrawdownPercent: maxDrawdownPct,
		CooldownDuration:   cooldown,
		MaxPositions:       maxPositions,
		startedAt:          startedAt,
	}
}

// PreTick evaluates the session gates in order against the account's current
// totalPnL and maxDrawdown. It returns whether the session just latched
// stopped, and why. Once stopped, subsequent calls keep returning the same
// reason (the latch never un-sets).
func (g *Guard) PreTick(now time.Time, totalPnL, maxDrawdown decimal.Decimal) (bool, model.SessionEndReason) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return true, g.stopReason
	}

	if g.TimeLimitSeconds > 0 && now.Sub(g.startedAt) >= time.Duration(g.TimeLimitSeconds)*time.Second {
		g.stopped = true
		g.stopReason = model.EndTimeLimit
		return true, g.stopReason
	}

	if g.MaxLossLimit.IsPositive() && totalPnL.LessThanOrEqual(g.MaxLossLimit.Neg()) {
		g.stopped = true
		g.stopReason = model.EndMaxLoss
		return true, g.stopReason
	}

	if g.MaxDrawdownPercent != nil && maxDrawdown.GreaterThanOrEqual(*g.MaxDrawdownPercent) {
		g.paused = true
	} else {
		g.paused = false
	}

	return false, ""
}

// AllowEntry reports whether a new open_position call is currently
// permitted: the session must not be stopped, not drawdown-paused, and not
// within a post-adverse-close cooldown window.
func (g *Guard) AllowEntry(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.paused {
		return false
	}
	return !now.Before(g.cooldownUntil)
}

// AllowOpen reports whether opening one more position stays within the
// session's position cap given the current open count.
func (g *Guard) AllowOpen(openPositions int) bool {
	return g.MaxPositions <= 0 || openPositions < g.MaxPositions
}

// OnAdverseClose starts a cooldown window after a losing close.
func (g *Guard) OnAdverseClose(now time.Time) {
	if g.CooldownDuration <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldownUntil = now.Add(g.CooldownDuration)
}

// Stop lets the Orchestrator latch a stop directly (e.g. a
// cancellation or a fatal database error), without going
// through PreTick's gate evaluation.
func (g *Guard) Stop(reason model.SessionEndReason) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.stopped {
		g.stopped = true
		g.stopReason = reason
	}
}

func (g *Guard) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

func (g *Guard) StopReason() model.SessionEndReason {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopReason
}
