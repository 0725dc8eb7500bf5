package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap is a gorm-compatible jsonb column holding an opaque map, used
// for TradeRegister.StrategyParameters.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("JSONMap.Scan: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// StringList is a gorm-compatible jsonb column holding a string slice, used
// for TradingSession.Symbols and TradeRegister.Tags/Flags.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("StringList.Scan: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}
