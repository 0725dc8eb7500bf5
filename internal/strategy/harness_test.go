package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbot/engine/internal/marketdata"
	"github.com/paperbot/engine/internal/model"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type stubStrategy struct {
	minBars       int
	minConfidence decimal.Decimal
	signal        *Signal
	closeSignal   *Signal
	updated       bool
}

func (s *stubStrategy) Name() string                        { return "stub" }
func (s *stubStrategy) Timeframe() string                    { return "1h" }
func (s *stubStrategy) MinBars() int                          { return s.minBars }
func (s *stubStrategy) MinConfidence() decimal.Decimal        { return s.minConfidence }

func (s *stubStrategy) Analyze(ctx context.Context, candles []model.Candle, symbol string) (*Signal, error) {
	return s.signal, nil
}

func (s *stubStrategy) ShouldClosePosition(ctx context.Context, candles []model.Candle, entryPrice decimal.Decimal, side model.Side, currentPnLPercent decimal.Decimal) (*Signal, error) {
	return s.closeSignal, nil
}

func (s *stubStrategy) UpdatePriceHistory(symbol string, candles []model.Candle) {
	s.updated = true
}

func candlesOf(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Close: dec("100")}
	}
	return out
}

func TestEvaluate_SkipsWhenBelowMinBars(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(3))
	s := &stubStrategy{minBars: 10, minConfidence: dec("5")}
	h := NewHarness(mkt, 50, nil)

	eval, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)
	assert.True(t, eval.Skipped)
	assert.Nil(t, eval.EntrySignal)
}

func TestEvaluate_EntrySignalBelowMinConfidenceIsDropped(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(10))
	s := &stubStrategy{
		minBars:       5,
		minConfidence: dec("8"),
		signal:        &Signal{Kind: SignalBuy, Confidence: dec("3"), Price: dec("100")},
	}
	h := NewHarness(mkt, 50, nil)

	eval, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)
	assert.False(t, eval.Skipped)
	assert.Nil(t, eval.EntrySignal, "confidence below MinConfidence must be filtered out")
}

func TestEvaluate_EntrySignalAtOrAboveMinConfidenceSurvives(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(10))
	s := &stubStrategy{
		minBars:       5,
		minConfidence: dec("5"),
		signal:        &Signal{Kind: SignalBuy, Confidence: dec("5"), Price: dec("100")},
	}
	h := NewHarness(mkt, 50, nil)

	eval, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, eval.EntrySignal)
	assert.Equal(t, SignalBuy, eval.EntrySignal.Kind)
	assert.True(t, s.updated, "PriceHistoryUpdater capability must be invoked when implemented")
}

func TestEvaluate_HoldSignalNeverBecomesAnEntry(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(10))
	s := &stubStrategy{
		minBars:       5,
		minConfidence: dec("0"),
		signal:        &Signal{Kind: SignalHold, Confidence: dec("10")},
	}
	h := NewHarness(mkt, 50, nil)

	eval, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)
	assert.Nil(t, eval.EntrySignal)
}

func TestEvaluate_ChecksCloseSignalsForOwnedPositions(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(10))
	owned := model.Position{ID: uuid.New(), Symbol: "BTC-USD", Side: model.SideLong, EntryPrice: dec("100")}
	lookup := func(ctx context.Context, symbol, strategyName string) ([]model.Position, error) {
		return []model.Position{owned}, nil
	}
	s := &stubStrategy{
		minBars:       5,
		minConfidence: dec("0"),
		closeSignal:   &Signal{Kind: SignalClose, Reason: "take profit hit"},
	}
	h := NewHarness(mkt, 50, lookup)

	eval, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)
	require.Len(t, eval.CloseSignals, 1)
	assert.Equal(t, "take profit hit", eval.CloseSignals[0].Reason)
}

// llmStub advertises the LLMBacked capability so its signals are routed to
// the separate journal.
type llmStub struct {
	stubStrategy
}

func (s *llmStub) IsLLMBacked() bool { return true }

func TestEvaluate_LLMBackedStrategyWritesJournalLine(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(10))
	s := &llmStub{stubStrategy{
		minBars:       5,
		minConfidence: dec("0"),
		signal:        &Signal{Kind: SignalBuy, Confidence: dec("9"), Price: dec("100"), Reason: "model saw a breakout"},
	}}
	h := NewHarness(mkt, 50, nil)
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	h.LLMJournal = NewLLMJournal(path)
	defer h.LLMJournal.Close()

	_, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"strategy":"stub"`)
	assert.Contains(t, string(raw), "model saw a breakout")
}

func TestEvaluate_NonLLMStrategySkipsJournal(t *testing.T) {
	mkt := marketdata.NewFake()
	mkt.SetCandles("BTC-USD", candlesOf(10))
	s := &stubStrategy{
		minBars:       5,
		minConfidence: dec("0"),
		signal:        &Signal{Kind: SignalBuy, Confidence: dec("9"), Price: dec("100"), Reason: "plain signal"},
	}
	h := NewHarness(mkt, 50, nil)
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	h.LLMJournal = NewLLMJournal(path)
	defer h.LLMJournal.Close()

	_, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, raw, "only LLM-backed strategies log to the journal")
}

func TestEvaluate_SignalPriceDefaultsToLastClosedCandle(t *testing.T) {
	mkt := marketdata.NewFake()
	candles := candlesOf(10)
	candles[8].Close = dec("120") // last fully-closed bar
	candles[9].Close = dec("130") // still forming, must not be used
	mkt.SetCandles("BTC-USD", candles)
	s := &stubStrategy{
		minBars:       5,
		minConfidence: dec("0"),
		signal:        &Signal{Kind: SignalBuy, Confidence: dec("9")},
	}
	h := NewHarness(mkt, 50, nil)

	eval, err := h.Evaluate(context.Background(), s, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, eval.EntrySignal)
	assert.True(t, dec("120").Equal(eval.EntrySignal.Price), "price %s", eval.EntrySignal.Price)
}

func TestSizeFor_FixedOverrideTakesPrecedence(t *testing.T) {
	fixed := dec("2.5")
	got := SizeFor(dec("1000"), dec("100"), dec("10"), &fixed)
	assert.True(t, fixed.Equal(got))
}

func TestSizeFor_PercentOfBalance(t *testing.T) {
	got := SizeFor(dec("1000"), dec("100"), dec("10"), nil)
	assert.True(t, dec("1").Equal(got), "10%% of 1000 balance at price 100 should size to 1 unit")
}

func TestSizeFor_ZeroPriceReturnsZero(t *testing.T) {
	got := SizeFor(dec("1000"), decimal.Zero, dec("10"), nil)
	assert.True(t, decimal.Zero.Equal(got))
}
