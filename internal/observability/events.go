package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"enlitens/internal/adapters/kafka"
	"enlitens/pkg/logger"
)

// EventType labels a pipeline event on the wire.
type EventType string

const (
	EventNodeStart EventType = "node_start"
	EventNodeEnd   EventType = "node_end"
	EventAlert     EventType = "alert"
	EventQuality   EventType = "quality_metrics"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// latencyAlertThreshold is the node duration beyond which a warning alert is
// raised.
const latencyAlertThreshold = 300 * time.Second

// NodeEvent reports one node execution transition.
type NodeEvent struct {
	Type            EventType `json:"type"`
	DocumentID      string    `json:"document_id"`
	Node            string    `json:"node"`
	Status          string    `json:"status,omitempty"`
	Attempt         int       `json:"attempt"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// AlertEvent is a warning or critical pipeline alert.
type AlertEvent struct {
	Type       EventType `json:"type"`
	Severity   string    `json:"severity"`
	DocumentID string    `json:"document_id,omitempty"`
	Node       string    `json:"node,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// QualityEvent carries a document's rubric scores after validation.
type QualityEvent struct {
	Type       EventType          `json:"type"`
	DocumentID string             `json:"document_id"`
	Scores     map[string]float64 `json:"scores"`
	Passed     bool               `json:"passed"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Publisher is the event transport. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Emitter fans pipeline events out to the structured log, an optional Kafka
// producer and an optional HTTP broadcast endpoint. Delivery failures are
// logged and never propagate to the pipeline.
type Emitter struct {
	producer     Publisher
	broadcastURL string
	client       *http.Client
	log          *logger.Logger
}

// NewEmitter builds an emitter. Both producer and broadcastURL may be empty;
// events then only reach the log.
func NewEmitter(producer Publisher, broadcastURL string) *Emitter {
	return &Emitter{
		producer:     producer,
		broadcastURL: broadcastURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		log:          logger.Get().With("component", "observability"),
	}
}

// NodeStart records a node beginning an attempt.
func (e *Emitter) NodeStart(ctx context.Context, documentID, node string, attempt int) {
	if e == nil {
		return
	}
	e.log.Debugw("node start", "document_id", documentID, "node", node, "attempt", attempt)
	e.send(ctx, kafka.TopicPipelineEvents, documentID, NodeEvent{
		Type:       EventNodeStart,
		DocumentID: documentID,
		Node:       node,
		Attempt:    attempt,
		Timestamp:  time.Now().UTC(),
	})
}

// NodeEnd records a node finishing with a status. Slow nodes raise a warning
// alert; errored nodes raise a critical one.
func (e *Emitter) NodeEnd(ctx context.Context, documentID, node, status string, attempt int, duration time.Duration) {
	if e == nil {
		return
	}
	e.log.Infow("node end",
		"document_id", documentID,
		"node", node,
		"status", status,
		"attempt", attempt,
		"duration", duration.Seconds(),
	)
	e.send(ctx, kafka.TopicPipelineEvents, documentID, NodeEvent{
		Type:            EventNodeEnd,
		DocumentID:      documentID,
		Node:            node,
		Status:          status,
		Attempt:         attempt,
		DurationSeconds: duration.Seconds(),
		Timestamp:       time.Now().UTC(),
	})

	if duration > latencyAlertThreshold {
		e.Alert(ctx, SeverityWarning, documentID, node, "node latency exceeded 300s")
	}
	if status == "error" {
		e.Alert(ctx, SeverityCritical, documentID, node, "node failed after all attempts")
	}
}

// Alert raises a pipeline alert.
func (e *Emitter) Alert(ctx context.Context, severity, documentID, node, message string) {
	if e == nil {
		return
	}
	if severity == SeverityCritical {
		e.log.Errorw("pipeline alert", "severity", severity, "document_id", documentID, "node", node, "message", message)
	} else {
		e.log.Warnw("pipeline alert", "severity", severity, "document_id", documentID, "node", node, "message", message)
	}
	e.send(ctx, kafka.TopicAlerts, documentID, AlertEvent{
		Type:       EventAlert,
		Severity:   severity,
		DocumentID: documentID,
		Node:       node,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	})
}

// Quality publishes a document's validation scores.
func (e *Emitter) Quality(ctx context.Context, documentID string, scores map[string]float64, passed bool) {
	if e == nil {
		return
	}
	e.log.Infow("quality metrics", "document_id", documentID, "passed", passed, "overall", scores["overall_quality"])
	e.send(ctx, kafka.TopicQualityMetrics, documentID, QualityEvent{
		Type:       EventQuality,
		DocumentID: documentID,
		Scores:     scores,
		Passed:     passed,
		Timestamp:  time.Now().UTC(),
	})
}

func (e *Emitter) send(ctx context.Context, topic, key string, event interface{}) {
	if e.producer != nil {
		if err := e.producer.Publish(ctx, topic, key, event); err != nil {
			e.log.Warnf("event publish failed for %s: %v", topic, err)
		}
	}
	if e.broadcastURL != "" {
		e.broadcast(ctx, event)
	}
}

func (e *Emitter) broadcast(ctx context.Context, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		e.log.Warnf("event marshal failed: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.broadcastURL, bytes.NewReader(data))
	if err != nil {
		e.log.Warnf("broadcast request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warnf("broadcast delivery failed: %v", err)
		return
	}
	resp.Body.Close()
}
