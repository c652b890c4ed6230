package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/internal/adapters/kafka"
)

type recordingPublisher struct {
	topics []string
	keys   []string
	events []interface{}
}

func (r *recordingPublisher) Publish(_ context.Context, topic, key string, event interface{}) error {
	r.topics = append(r.topics, topic)
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	return nil
}

func TestNodeEndPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "")

	e.NodeStart(context.Background(), "doc-1", "science_extraction", 1)
	e.NodeEnd(context.Background(), "doc-1", "science_extraction", "done", 1, 2*time.Second)

	require.Len(t, pub.events, 2)
	assert.Equal(t, kafka.TopicPipelineEvents, pub.topics[0])
	assert.Equal(t, "doc-1", pub.keys[0])

	end, ok := pub.events[1].(NodeEvent)
	require.True(t, ok)
	assert.Equal(t, EventNodeEnd, end.Type)
	assert.Equal(t, "done", end.Status)
	assert.InDelta(t, 2.0, end.DurationSeconds, 1e-9)
}

func TestSlowNodeRaisesWarningAlert(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "")

	e.NodeEnd(context.Background(), "doc-1", "clinical_synthesis", "done", 1, 301*time.Second)

	require.Len(t, pub.events, 2)
	alert, ok := pub.events[1].(AlertEvent)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, alert.Severity)
	assert.Equal(t, kafka.TopicAlerts, pub.topics[1])
}

func TestErroredNodeRaisesCriticalAlert(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "")

	e.NodeEnd(context.Background(), "doc-1", "marketing_seo", "error", 3, time.Second)

	require.Len(t, pub.events, 2)
	alert, ok := pub.events[1].(AlertEvent)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, alert.Severity)
}

func TestQualityEventCarriesScores(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "")

	e.Quality(context.Background(), "doc-1", map[string]float64{"overall_quality": 0.82}, true)

	require.Len(t, pub.events, 1)
	assert.Equal(t, kafka.TopicQualityMetrics, pub.topics[0])
	quality, ok := pub.events[0].(QualityEvent)
	require.True(t, ok)
	assert.True(t, quality.Passed)
	assert.InDelta(t, 0.82, quality.Scores["overall_quality"], 1e-9)
}

func TestBroadcastPostsJSON(t *testing.T) {
	var received NodeEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := NewEmitter(nil, srv.URL)
	e.NodeStart(context.Background(), "doc-2", "context_rag", 1)

	assert.Equal(t, "doc-2", received.DocumentID)
	assert.Equal(t, EventNodeStart, received.Type)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	e.NodeStart(context.Background(), "doc", "node", 1)
	e.NodeEnd(context.Background(), "doc", "node", "done", 1, time.Second)
	e.Alert(context.Background(), SeverityWarning, "doc", "node", "msg")
	e.Quality(context.Background(), "doc", nil, false)
}
