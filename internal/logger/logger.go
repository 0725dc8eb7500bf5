// Package logger is the engine's console log layer: small leveled loggers
// tagged by component and, once a trading session exists, by session ID, so
// interleaved output from the orchestrator, the accounting engine, and the
// notifier sinks stays attributable to the run that produced it. Durable,
// queryable logging is internal/observability's job; this package only
// writes to the process log.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel orders message severities; messages below a logger's minimum
// level are discarded before any formatting work happens.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// levelFromEnv resolves the process-wide minimum level from LOG_LEVEL.
// Unset or unrecognized values mean INFO, so a default run stays quiet.
func levelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes leveled, component-tagged lines to the process log. A
// Logger is immutable after construction; WithSession derives a copy whose
// lines additionally carry the trading session's ID.
type Logger struct {
	component string
	session   string
	min       LogLevel
}

// NewLogger builds a console logger for one component ("accounting",
// "orchestrator", ...). The minimum level is read from LOG_LEVEL at
// construction.
func NewLogger(component string) *Logger {
	return &Logger{component: component, min: levelFromEnv()}
}

// WithSession derives a logger whose every line carries sessionID, the
// console counterpart of observability.Logger's session scoping. The
// receiver is left untouched so pre-session bootstrap loggers keep their
// untagged output.
func (l *Logger) WithSession(sessionID string) *Logger {
	cp := *l
	cp.session = sessionID
	return &cp
}

func (l *Logger) Debug(message string, keyvals ...interface{}) { l.write(DEBUG, message, keyvals) }
func (l *Logger) Info(message string, keyvals ...interface{})  { l.write(INFO, message, keyvals) }
func (l *Logger) Warn(message string, keyvals ...interface{})  { l.write(WARN, message, keyvals) }

// Error takes the error as its own argument so call sites never
// hand-assemble an "error" pair; a nil err logs the message alone.
func (l *Logger) Error(message string, err error, keyvals ...interface{}) {
	if err != nil {
		keyvals = append(keyvals, "error", err.Error())
	}
	l.write(ERROR, message, keyvals)
}

func (l *Logger) write(level LogLevel, message string, keyvals []interface{}) {
	if level < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(level.String())
	b.WriteString(" [")
	b.WriteString(l.component)
	b.WriteByte(']')
	if l.session != "" {
		b.WriteString(" [session ")
		b.WriteString(l.session)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(message)
	appendPairs(&b, keyvals)
	log.Print(b.String())
}

// appendPairs renders keyvals as " k=v k=v". A dangling key with no value
// is rendered with "?" instead of being dropped, so a miscounted call site
// is visible in the output.
func appendPairs(b *strings.Builder, keyvals []interface{}) {
	for i := 0; i < len(keyvals); i += 2 {
		b.WriteByte(' ')
		fmt.Fprintf(b, "%v=", keyvals[i])
		if i+1 < len(keyvals) {
			fmt.Fprintf(b, "%v", keyvals[i+1])
		} else {
			b.WriteByte('?')
		}
	}
}

// global serves the package-level helpers used by bootstrap code that runs
// before any component logger exists. cmd/paperengine replaces it with a
// session-tagged logger once the TradingSession row is created.
var global = NewLogger("paperengine")

func SetGlobalLogger(l *Logger) { global = l }

func Debug(message string, keyvals ...interface{}) { global.Debug(message, keyvals...) }
func Info(message string, keyvals ...interface{})  { global.Info(message, keyvals...) }
func Warn(message string, keyvals ...interface{})  { global.Warn(message, keyvals...) }

func Error(message string, err error, keyvals ...interface{}) {
	global.Error(message, err, keyvals...)
}
