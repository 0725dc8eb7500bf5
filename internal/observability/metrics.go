package observability

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"
)

// ServiceMetric is a database-persisted metric data point, tagged with the
// TradingSession it was recorded under so a session's full metric history
// survives after the prometheus process-local gauges reset on restart.
type ServiceMetric struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	ServiceName string          `json:"service_name" gorm:"not null"`
	SessionID   string          `json:"session_id,omitempty" gorm:"index"`
	MetricName  string          `json:"metric_name" gorm:"not null"`
	MetricType  string          `json:"metric_type" gorm:"not null"` // counter, gauge, histogram
	MetricValue float64         `json:"metric_value" gorm:"not null"`
	Labels      json.RawMessage `json:"labels,omitempty" gorm:"type:jsonb"`
	Timestamp   time.Time       `json:"timestamp" gorm:"default:now()"`
}

func (ServiceMetric) TableName() string {
	return "service_metrics"
}

// MetricsCollector persists ServiceMetric rows for the current trading
// session, complementing the process-local PromMetrics gauges with durable
// per-session history queryable after the process exits.
type MetricsCollector struct {
	db          *gorm.DB
	serviceName string
	sessionID   string
}

// NewMetricsCollector builds a collector tagged with serviceName. Call
// SetSession once a TradingSession exists so subsequent records carry its
// SessionID.
func NewMetricsCollector(db *gorm.DB, serviceName string) *MetricsCollector {
	return &MetricsCollector{
		db:          db,
		serviceName: serviceName,
	}
}

// SetSession tags every metric recorded from this point on with sessionID.
func (m *MetricsCollector) SetSession(sessionID string) {
	m.sessionID = sessionID
}

// RecordCounter increments a counter metric.
func (m *MetricsCollector) RecordCounter(name string, value float64, labels map[string]string) {
	m.record("counter", name, value, labels)
}

// RecordGauge records a gauge metric (current value).
func (m *MetricsCollector) RecordGauge(name string, value float64, labels map[string]string) {
	m.record("gauge", name, value, labels)
}

// RecordHistogram records a histogram metric (duration/size).
func (m *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	m.record("histogram", name, value, labels)
}

// record writes a metric to the database.
func (m *MetricsCollector) record(metricType, name string, value float64, labels map[string]string) {
	var labelsJSON json.RawMessage
	if labels != nil {
		data, err := json.Marshal(labels)
		if err != nil {
			log.Printf("[METRICS] Warning: Failed to marshal labels: %v", err)
		} else {
			labelsJSON = data
		}
	}

	metric := ServiceMetric{
		ServiceName: m.serviceName,
		SessionID:   m.sessionID,
		MetricName:  name,
		MetricType:  metricType,
		MetricValue: value,
		Labels:      labelsJSON,
		Timestamp:   time.Now(),
	}

	// Async write to avoid blocking the caller on database latency.
	go func() {
		if err := m.db.Create(&metric).Error; err != nil {
			log.Printf("[METRICS] failed to write metric: %v", err)
		}
	}()
}

// StartTimer returns a function that records an elapsed-duration histogram
// when called.
func (m *MetricsCollector) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Milliseconds()
		m.RecordHistogram(name, float64(duration), labels)
	}
}
