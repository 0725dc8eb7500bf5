package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

var testSpecs = []ParamSpec{
	{Name: "lookback", Type: ParamInt, Default: 20, Min: fp(1), Max: fp(500)},
	{Name: "threshold", Type: ParamFloat, Default: 1.5, Min: fp(0)},
	{Name: "mode", Type: ParamString, Default: "fast"},
	{Name: "trailing", Type: ParamBool, Default: false},
}

func TestValidateParams_AppliesDefaults(t *testing.T) {
	out, err := ValidateParams(testSpecs, nil)
	require.NoError(t, err)
	require.Equal(t, 20, out["lookback"])
	require.Equal(t, 1.5, out["threshold"])
	require.Equal(t, "fast", out["mode"])
	require.Equal(t, false, out["trailing"])
}

func TestValidateParams_RejectsUnknownKey(t *testing.T) {
	_, err := ValidateParams(testSpecs, map[string]interface{}{"lookbck": 10})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown strategy parameter")
}

func TestValidateParams_EnforcesBounds(t *testing.T) {
	_, err := ValidateParams(testSpecs, map[string]interface{}{"lookback": 501})
	require.Error(t, err)

	_, err = ValidateParams(testSpecs, map[string]interface{}{"threshold": -0.1})
	require.Error(t, err)
}

func TestValidateParams_CoercesJSONNumbers(t *testing.T) {
	// a JSON-decoded config map carries every number as float64
	out, err := ValidateParams(testSpecs, map[string]interface{}{"lookback": float64(50)})
	require.NoError(t, err)
	require.Equal(t, 50, out["lookback"])

	_, err = ValidateParams(testSpecs, map[string]interface{}{"lookback": 50.5})
	require.Error(t, err, "fractional value is not an int")
}

func TestValidateParams_TypeMismatch(t *testing.T) {
	_, err := ValidateParams(testSpecs, map[string]interface{}{"mode": 3})
	require.Error(t, err)

	_, err = ValidateParams(testSpecs, map[string]interface{}{"trailing": "yes"})
	require.Error(t, err)
}
