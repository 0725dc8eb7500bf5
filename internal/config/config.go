package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/paperbot/engine/internal/duration"
)

// Config is the per-session configuration recognized by the engine. It
// loads from the process environment (optionally backed by a .env file),
// with duration and list fields parsed into their native types instead of
// left as raw strings.
type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Status/control HTTP surface
	Port    string
	GinMode string

	// Redis (optional notifier fan-out / ticker cache)
	RedisAddr string

	// Session parameters
	Account        string
	Balance        float64
	Symbols        []string
	Leverage       float64
	Strategy       string
	StrategyParams map[string]interface{}
	TimeLimit     int64 // seconds, 0 = unbounded
	CheckInterval int64 // seconds
	MaxLoss       float64

	PositionSizeBase   string
	PositionSizeAmount float64
	MaxPositions       int

	MaxDrawdownPercent float64 // 0 = disabled
	CooldownSeconds    int64

	// LLMJournalPath, when set, is the JSON-lines file LLM-backed strategies'
	// signal reasons and observations are journaled to, separate from the
	// main log.
	LLMJournalPath string

	// Notifier
	SoundEnabled  bool
	SoundTTS      bool
	WebSocketPush bool
}

// Load reads process environment variables (after trying to load a .env
// file, ignoring its absence) into a Config, applying defaults.
func Load() (*Config, error) {
	godotenv.Load()

	timeLimit, err := parseDurationEnv("TIME_LIMIT", "")
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_LIMIT: %w", err)
	}
	checkInterval, err := parseDurationEnv("CHECK_INTERVAL", "1m")
	if err != nil {
		return nil, fmt.Errorf("invalid CHECK_INTERVAL: %w", err)
	}

	balance, err := strconv.ParseFloat(getEnv("BALANCE", "10000"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BALANCE: %w", err)
	}
	leverage, err := strconv.ParseFloat(getEnv("LEVERAGE", "2.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LEVERAGE: %w", err)
	}
	maxLoss, err := strconv.ParseFloat(getEnv("MAX_LOSS", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_LOSS: %w", err)
	}
	maxPositions, err := strconv.Atoi(getEnv("MAX_POSITIONS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_POSITIONS: %w", err)
	}
	maxDrawdown, err := strconv.ParseFloat(getEnv("MAX_DRAWDOWN_PERCENT", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_DRAWDOWN_PERCENT: %w", err)
	}
	cooldown, err := parseDurationEnv("COOLDOWN", "")
	if err != nil {
		return nil, fmt.Errorf("invalid COOLDOWN: %w", err)
	}

	posBase, posAmount, err := parsePositionSize(getEnv("POSITION_SIZE", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid POSITION_SIZE: %w", err)
	}

	strategyParams, err := parseStrategyParams(getEnv("STRATEGY_PARAMS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid STRATEGY_PARAMS: %w", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "paperengine"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "release"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		Account:        getEnv("ACCOUNT", "default"),
		Balance:        balance,
		Symbols:        splitSymbols(getEnv("SYMBOLS", "BTC-USD")),
		Leverage:       leverage,
		Strategy:       getEnv("STRATEGY", ""),
		StrategyParams: strategyParams,
		TimeLimit:     timeLimit,
		CheckInterval: checkInterval,
		MaxLoss:       maxLoss,

		PositionSizeBase:   posBase,
		PositionSizeAmount: posAmount,
		MaxPositions:       maxPositions,

		MaxDrawdownPercent: maxDrawdown,
		CooldownSeconds:    cooldown,

		LLMJournalPath: getEnv("LLM_JOURNAL_PATH", ""),

		SoundEnabled:  getEnv("PAPER_SOUND_ENABLED", "false") == "true",
		SoundTTS:      getEnv("PAPER_SOUND_TTS", "false") == "true",
		WebSocketPush: getEnv("PAPER_WEBSOCKET_PUSH", "false") == "true",
	}, nil
}

func (c *Config) DBDSN() string {
	return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser +
		" dbname=" + c.DBName + " password=" + c.DBPassword + " sslmode=" + c.DBSSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key, defaultValue string) (int64, error) {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return 0, nil
	}
	return duration.Parse(raw)
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseStrategyParams decodes the STRATEGY_PARAMS JSON object (e.g.
// `{"lookback": 50}`). The map is validated against the strategy's declared
// parameter schema at session start; decoding here only rejects malformed
// JSON.
func parseStrategyParams(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// parsePositionSize parses the "BASE:AMOUNT" override (e.g. "BTC:1").
func parsePositionSize(raw string) (base string, amount float64, err error) {
	if raw == "" {
		return "", 0, nil
	}
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected BASE:AMOUNT, got %q", raw)
	}
	amount, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, err
	}
	return parts[0], amount, nil
}
