package notifier

import "github.com/paperbot/engine/internal/logger"

// ConsoleSink logs every event at the configured logger, mirroring the
// familiar plain notification lines but through the leveled
// Logger the rest of the engine uses.
type ConsoleSink struct {
	log *logger.Logger
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{log: logger.NewLogger("notify")}
}

func (c *ConsoleSink) Send(evt Event) {
	switch evt.Type {
	case EventPositionOpened:
		c.log.Info("position opened", "symbol", evt.Symbol, "side", string(evt.Side))
	case EventPositionClosedProfit:
		c.log.Info("position closed in profit", "symbol", evt.Symbol, "pnl", evt.PnL.String())
	case EventPositionClosedLoss:
		c.log.Info("position closed at a loss", "symbol", evt.Symbol, "pnl", evt.PnL.String())
	}
}
