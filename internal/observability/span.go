package observability

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceSpan is a database-persisted record of one orchestrator tick or
// accounting operation, tagged with the TradingSession it ran under — a
// durable complement to the in-process otel span Tracer() emits, queryable
// after the process exits to reconstruct a session's full timing history.
type ServiceSpan struct {
	ID            int64      `json:"id" gorm:"primaryKey"`
	TraceID       uuid.UUID  `json:"trace_id" gorm:"type:uuid;not null"`
	SpanID        string     `json:"span_id" gorm:"not null;unique"`
	ServiceName   string     `json:"service_name" gorm:"not null"`
	SessionID     string     `json:"session_id" gorm:"index"`
	OperationName string     `json:"operation_name" gorm:"not null"`
	StartTime     time.Time  `json:"start_time" gorm:"not null"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	DurationMs    *int64     `json:"duration_ms,omitempty"`
	Status        string     `json:"status,omitempty"` // ok, error
}

func (ServiceSpan) TableName() string {
	return "service_spans"
}

// SpanRecorder persists ServiceSpan rows for a single trading session. All
// spans it opens share one TraceID, so a session's complete span history
// can be pulled back out and reassembled in order.
type SpanRecorder struct {
	db          *gorm.DB
	serviceName string
	sessionID   string
	traceID     uuid.UUID
}

// NewSpanRecorder builds a recorder for one trading session.
func NewSpanRecorder(db *gorm.DB, serviceName, sessionID string) *SpanRecorder {
	return &SpanRecorder{
		db:          db,
		serviceName: serviceName,
		sessionID:   sessionID,
		traceID:     uuid.New(),
	}
}

// ActiveSpan is a started-but-not-yet-ended ServiceSpan; call End once the
// operation completes.
type ActiveSpan struct {
	db  *gorm.DB
	row ServiceSpan
}

// Start opens a span for operationName (e.g. "orchestrator.tick",
// "accounting.open_position").
func (r *SpanRecorder) Start(operationName string) *ActiveSpan {
	return &ActiveSpan{
		db: r.db,
		row: ServiceSpan{
			TraceID:       r.traceID,
			SpanID:        uuid.NewString(),
			ServiceName:   r.serviceName,
			SessionID:     r.sessionID,
			OperationName: operationName,
			StartTime:     time.Now(),
		},
	}
}

// End closes the span with the given status ("ok" or "error") and persists
// it asynchronously.
func (s *ActiveSpan) End(status string) {
	now := time.Now()
	s.row.EndTime = &now
	ms := now.Sub(s.row.StartTime).Milliseconds()
	s.row.DurationMs = &ms
	s.row.Status = status

	go func() {
		if err := s.db.Create(&s.row).Error; err != nil {
			log.Printf("[SPAN] failed to persist span: %v", err)
		}
	}()
}
