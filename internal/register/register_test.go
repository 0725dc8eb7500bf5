package register

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbot/engine/internal/model"
)

func TestLastClosedCandle_Empty(t *testing.T) {
	_, ok := LastClosedCandle(nil)
	assert.False(t, ok)
}

func TestLastClosedCandle_SingleCandle(t *testing.T) {
	c := model.Candle{Close: decimal.RequireFromString("100")}
	got, ok := LastClosedCandle([]model.Candle{c})
	require.True(t, ok)
	assert.True(t, c.Close.Equal(got.Close))
}

func TestLastClosedCandle_ExcludesInProgressBar(t *testing.T) {
	closed := model.Candle{Close: decimal.RequireFromString("100")}
	forming := model.Candle{Close: decimal.RequireFromString("999")}
	got, ok := LastClosedCandle([]model.Candle{{Close: decimal.RequireFromString("50")}, closed, forming})
	require.True(t, ok)
	assert.True(t, closed.Close.Equal(got.Close), "must return the second-to-last candle, never the still-forming final one")
}

func TestToExport_FormatsDurationAndBlanksRawField(t *testing.T) {
	secs := int64(3725) // 1h 2m 5s
	r := model.TradeRegister{
		ID:              uuid.New(),
		Symbol:          "BTC-USD",
		DurationSeconds: &secs,
	}
	e := ToExport(r)
	require.NotNil(t, e.Duration)
	assert.Contains(t, *e.Duration, "1h")
	assert.Nil(t, e.TradeRegister.DurationSeconds)

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"duration":"`)
	assert.NotContains(t, string(b), `"duration_seconds"`)
}

func TestToExport_OpenRegisterHasNoDuration(t *testing.T) {
	r := model.TradeRegister{ID: uuid.New(), Symbol: "ETH-USD"}
	e := ToExport(r)
	assert.Nil(t, e.Duration)
}

func TestMarshalBatch_ProducesJSONArray(t *testing.T) {
	rows := []model.TradeRegister{
		{ID: uuid.New(), Symbol: "BTC-USD"},
		{ID: uuid.New(), Symbol: "ETH-USD"},
	}
	b, err := MarshalBatch(rows)
	require.NoError(t, err)

	var out []Export
	require.NoError(t, json.Unmarshal(b, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "BTC-USD", out[0].Symbol)
	assert.Equal(t, "ETH-USD", out[1].Symbol)
}

func TestSlippageAnnotation_FormatsAbsoluteValue(t *testing.T) {
	got := SlippageAnnotation(decimal.RequireFromString("-4.5"))
	assert.Equal(t, "Slippage: $4.50 USD", got)
}
