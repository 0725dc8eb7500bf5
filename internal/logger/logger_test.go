package logger

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects the process log for the duration of fn and returns what
// was written.
func capture(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prevOut := log.Writer()
	prevFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()
	fn()
	return buf.String()
}

func TestInfo_CarriesComponentTag(t *testing.T) {
	l := NewLogger("accounting")
	out := capture(t, func() { l.Info("position opened", "symbol", "BTC-USD") })
	assert.Contains(t, out, "[accounting]")
	assert.Contains(t, out, "position opened symbol=BTC-USD")
}

func TestWithSession_TagsLinesAndLeavesReceiverUntouched(t *testing.T) {
	base := NewLogger("orchestrator")
	tagged := base.WithSession("acct_20260101_000000")

	out := capture(t, func() { tagged.Info("tick") })
	assert.Contains(t, out, "[session acct_20260101_000000]")

	out = capture(t, func() { base.Info("tick") })
	assert.NotContains(t, out, "[session", "deriving a session logger must not tag the parent")
}

func TestDebug_FilteredAtDefaultLevel(t *testing.T) {
	l := NewLogger("harness") // LOG_LEVEL unset in tests, minimum is INFO
	out := capture(t, func() { l.Debug("candle window", "bars", 200) })
	assert.Empty(t, out)
}

func TestError_AppendsErrorPair(t *testing.T) {
	l := NewLogger("store")
	out := capture(t, func() { l.Error("commit failed", errors.New("deadlock detected")) })
	require.Contains(t, out, "ERROR")
	assert.Contains(t, out, "error=deadlock detected")
}

func TestWrite_DanglingKeyIsVisible(t *testing.T) {
	l := NewLogger("notify")
	out := capture(t, func() { l.Warn("odd pairs", "symbol") })
	assert.Contains(t, out, "symbol=?")
}
