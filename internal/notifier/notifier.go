// Package notifier is the engine's pure side-effect component emitting position_opened/position_closed_profit/
// position_closed_loss events. Delivery is best-effort — accounting is
// never blocked on notification.
package notifier

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/logger"
	"github.com/paperbot/engine/internal/model"
)

// EventType names the position-lifecycle notification events.
type EventType string

const (
	EventPositionOpened        EventType = "position_opened"
	EventPositionClosedProfit  EventType = "position_closed_profit"
	EventPositionClosedLoss    EventType = "position_closed_loss"
)

// Event is the payload fanned out to every configured Sink.
type Event struct {
	Type      EventType
	Symbol    string
	Side      model.Side
	PnL       decimal.Decimal
	Timestamp time.Time
}

// Sink receives Events fire-and-forget; a Sink must never block the caller
// for long (each Dispatch call runs the sink in its own goroutine).
type Sink interface {
	Send(Event)
}

// Notifier fans each event out to all configured sinks without blocking the
// accounting engine, satisfying the "fire-and-forget, never awaited"
// fire-and-forget rule: dispatch is never awaited.
type Notifier struct {
	sinks []Sink
	log   *logger.Logger
}

func New(sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, log: logger.NewLogger("notifier")}
}

func (n *Notifier) dispatch(evt Event) {
	for _, sink := range n.sinks {
		sink := sink
		go func() {
			defer func() {
				if r := recover(); r != nil {
					n.log.Warn("notifier sink panicked", "error", r)
				}
			}()
			sink.Send(evt)
		}()
	}
}

// PositionOpened implements accounting.Notifier.
func (n *Notifier) PositionOpened(symbol string, side model.Side) {
	n.dispatch(Event{Type: EventPositionOpened, Symbol: symbol, Side: side, Timestamp: time.Now()})
}

// PositionClosedProfit implements accounting.Notifier.
func (n *Notifier) PositionClosedProfit(symbol string, pnl decimal.Decimal) {
	n.dispatch(Event{Type: EventPositionClosedProfit, Symbol: symbol, PnL: pnl, Timestamp: time.Now()})
}

// PositionClosedLoss implements accounting.Notifier.
func (n *Notifier) PositionClosedLoss(symbol string, pnl decimal.Decimal) {
	n.dispatch(Event{Type: EventPositionClosedLoss, Symbol: symbol, PnL: pnl, Timestamp: time.Now()})
}
