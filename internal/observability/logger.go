package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceLog is a structured, database-persisted log entry scoped to a
// trading session so a session's complete log history can be pulled back
// out by SessionID for post-mortem review, independent of the trace/span ID
// a single request happened to carry.
type ServiceLog struct {
	ID           int64           `json:"id" gorm:"primaryKey"`
	TraceID      *uuid.UUID      `json:"trace_id,omitempty" gorm:"type:uuid"`
	SpanID       string          `json:"span_id,omitempty"`
	ParentSpanID string          `json:"parent_span_id,omitempty"`
	ServiceName  string          `json:"service_name" gorm:"not null"`
	SessionID    string          `json:"session_id,omitempty" gorm:"index"`
	LogLevel     string          `json:"log_level" gorm:"not null"`
	Message      string          `json:"message" gorm:"not null"`
	Metadata     json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	Timestamp    time.Time       `json:"timestamp" gorm:"default:now()"`
	SourceFile   string          `json:"source_file,omitempty"`
	SourceLine   int             `json:"source_line,omitempty"`
}

func (ServiceLog) TableName() string {
	return "service_logs"
}

// Logger persists structured log entries for a trading session, with an
// in-memory stdout echo for immediate visibility.
type Logger struct {
	db          *gorm.DB
	serviceName string
	minLevel    LogLevel
}

// LogLevel represents logging severity.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}[l]
}

// NewLogger builds a Logger that writes ServiceLog rows tagged with
// serviceName.
func NewLogger(db *gorm.DB, serviceName string) *Logger {
	return &Logger{
		db:          db,
		serviceName: serviceName,
		minLevel:    INFO,
	}
}

// SetLevel sets the minimum logging level.
func (l *Logger) SetLevel(level LogLevel) {
	l.minLevel = level
}

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	sessionIDKey contextKey = "session_id"
)

// WithTrace attaches a fresh trace ID to ctx, for log correlation across one
// request or one orchestrator tick.
func (l *Logger) WithTrace(ctx context.Context) (context.Context, uuid.UUID) {
	traceID := uuid.New()
	return context.WithValue(ctx, traceIDKey, traceID), traceID
}

// GetTraceID retrieves the trace ID attached by WithTrace, if any.
func (l *Logger) GetTraceID(ctx context.Context) *uuid.UUID {
	if traceID, ok := ctx.Value(traceIDKey).(uuid.UUID); ok {
		return &traceID
	}
	return nil
}

// WithSession attaches a TradingSession's SessionID to ctx so every log
// entry written through it, for the remainder of that session, is tagged
// and later retrievable via QueryLogs's sessionID filter.
func (l *Logger) WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID attached by WithSession, if any.
func (l *Logger) GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// log writes a log entry to the database, tagged with whatever trace/session
// IDs ctx carries.
func (l *Logger) log(ctx context.Context, level LogLevel, message string, metadata map[string]interface{}) {
	if level < l.minLevel {
		return
	}

	// Get caller info
	_, file, line, _ := runtime.Caller(2)

	traceID := l.GetTraceID(ctx)
	sessionID := l.GetSessionID(ctx)

	// Serialize metadata
	var metadataJSON json.RawMessage
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			log.Printf("[LOGGER] Warning: Failed to marshal metadata: %v", err)
		} else {
			metadataJSON = data
		}
	}

	logEntry := ServiceLog{
		TraceID:     traceID,
		ServiceName: l.serviceName,
		SessionID:   sessionID,
		LogLevel:    level.String(),
		Message:     message,
		Metadata:    metadataJSON,
		Timestamp:   time.Now(),
		SourceFile:  file,
		SourceLine:  line,
	}

	// Async write to avoid blocking the caller on database latency.
	go func() {
		if err := l.db.Create(&logEntry).Error; err != nil {
			log.Printf("[LOGGER] failed to write log: %v", err)
		}
	}()

	prefix := map[LogLevel]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"}[level]
	switch {
	case sessionID != "" && traceID != nil:
		log.Printf("[%s] [%s] [session %s] [trace %s] %s", prefix, l.serviceName, sessionID, traceID.String()[:8], message)
	case sessionID != "":
		log.Printf("[%s] [%s] [session %s] %s", prefix, l.serviceName, sessionID, message)
	case traceID != nil:
		log.Printf("[%s] [%s] [trace %s] %s", prefix, l.serviceName, traceID.String()[:8], message)
	default:
		log.Printf("[%s] [%s] %s", prefix, l.serviceName, message)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, message string, metadata map[string]interface{}) {
	l.log(ctx, DEBUG, message, metadata)
}

// Info logs an info message.
func (l *Logger) Info(ctx context.Context, message string, metadata map[string]interface{}) {
	l.log(ctx, INFO, message, metadata)
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, message string, metadata map[string]interface{}) {
	l.log(ctx, WARN, message, metadata)
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, message string, metadata map[string]interface{}) {
	l.log(ctx, ERROR, message, metadata)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.Info(ctx, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.Error(ctx, fmt.Sprintf(format, args...), nil)
}

// QueryLogs retrieves logs from the database, optionally filtered by
// service name, level, trading session, and/or trace ID.
func (l *Logger) QueryLogs(serviceName, sessionID, level string, traceID *uuid.UUID, limit int) ([]ServiceLog, error) {
	var logs []ServiceLog
	query := l.db.Model(&ServiceLog{})

	if serviceName != "" {
		query = query.Where("service_name = ?", serviceName)
	}
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	if level != "" {
		query = query.Where("log_level = ?", level)
	}
	if traceID != nil {
		query = query.Where("trace_id = ?", traceID)
	}

	err := query.Order("timestamp DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
