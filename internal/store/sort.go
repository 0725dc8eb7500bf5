package store

import (
	"sort"

	"github.com/paperbot/engine/internal/model"
)

func sortPositionsByOpenedAt(ps []model.Position) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].OpenedAt.Before(ps[j].OpenedAt) })
}

func sortTradesByExitTimeDesc(ts []model.Trade) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ExitTime.After(ts[j].ExitTime) })
}
