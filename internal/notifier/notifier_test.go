package notifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbot/engine/internal/model"
)

type recordingSink struct {
	events chan Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan Event, 8)}
}

func (s *recordingSink) Send(evt Event) {
	s.events <- evt
}

type panickingSink struct{}

func (panickingSink) Send(Event) { panic("boom") }

func recv(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched event")
		return Event{}
	}
}

func TestPositionOpened_FansOutToAllSinks(t *testing.T) {
	a, b := newRecordingSink(), newRecordingSink()
	n := New(a, b)

	n.PositionOpened("BTC-USD", model.SideLong)

	evtA := recv(t, a.events)
	evtB := recv(t, b.events)
	assert.Equal(t, EventPositionOpened, evtA.Type)
	assert.Equal(t, "BTC-USD", evtA.Symbol)
	assert.Equal(t, model.SideLong, evtA.Side)
	assert.Equal(t, evtA.Type, evtB.Type)
}

func TestPositionClosedProfit_CarriesPnL(t *testing.T) {
	sink := newRecordingSink()
	n := New(sink)

	n.PositionClosedProfit("ETH-USD", decimal.RequireFromString("42.50"))

	evt := recv(t, sink.events)
	assert.Equal(t, EventPositionClosedProfit, evt.Type)
	require.True(t, decimal.RequireFromString("42.50").Equal(evt.PnL))
}

func TestPositionClosedLoss_CarriesPnL(t *testing.T) {
	sink := newRecordingSink()
	n := New(sink)

	n.PositionClosedLoss("ETH-USD", decimal.RequireFromString("-10"))

	evt := recv(t, sink.events)
	assert.Equal(t, EventPositionClosedLoss, evt.Type)
	require.True(t, decimal.RequireFromString("-10").Equal(evt.PnL))
}

func TestDispatch_SinkPanicDoesNotPropagateOrBlockOtherSinks(t *testing.T) {
	good := newRecordingSink()
	n := New(panickingSink{}, good)

	assert.NotPanics(t, func() {
		n.PositionOpened("BTC-USD", model.SideShort)
	})
	evt := recv(t, good.events)
	assert.Equal(t, "BTC-USD", evt.Symbol)
}
