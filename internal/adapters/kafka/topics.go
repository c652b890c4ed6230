package kafka

// Topic definitions for pipeline event streaming
const (
	// Pipeline lifecycle events
	TopicPipelineEvents = "pipeline.events"

	// Per-document quality metrics
	TopicQualityMetrics = "pipeline.quality"

	// Warning and critical alerts
	TopicAlerts = "pipeline.alerts"
)
