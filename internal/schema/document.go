package schema

import "time"

// DocType selects the pipeline mode for a document. Each mode maps to a skip
// mask over workflow nodes.
type DocType string

const (
	DocTypeFull             DocType = "full"
	DocTypeScienceOnly      DocType = "science_only"
	DocTypeMarketingRefresh DocType = "marketing_refresh"
	DocTypeValidationOnly   DocType = "validation_only"
	DocTypeContextReference DocType = "context_reference"
)

// Valid reports whether the doc type is one of the known pipeline modes.
func (d DocType) Valid() bool {
	switch d {
	case DocTypeFull, DocTypeScienceOnly, DocTypeMarketingRefresh, DocTypeValidationOnly, DocTypeContextReference:
		return true
	}
	return false
}

// Entity is a labeled span produced by the external entity extractor.
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// DocumentContext is the orchestrator's input for one document.
type DocumentContext struct {
	DocumentID      string                 `json:"document_id"`
	DocumentText    string                 `json:"document_text"`
	DocType         DocType                `json:"doc_type"`
	ClientInsights  map[string]interface{} `json:"client_insights,omitempty"`
	FounderInsights map[string]interface{} `json:"founder_insights,omitempty"`
	RegionalContext map[string]interface{} `json:"regional_context,omitempty"`
	Entities        map[string][]Entity    `json:"extracted_entities,omitempty"`
}

// EntryMetadata summarizes one processed document.
type EntryMetadata struct {
	DocumentID      string    `json:"document_id"`
	ProcessedAt     time.Time `json:"processed_at"`
	ProcessingTime  float64   `json:"processing_time_seconds"`
	QualityScore    float64   `json:"quality_score"`
	ConfidenceScore float64   `json:"confidence_score"`
	DegradedModes   []string  `json:"degraded_modes,omitempty"`
}

// KnowledgeEntry is the final per-document artifact.
type KnowledgeEntry struct {
	Metadata         EntryMetadata    `json:"metadata"`
	AgentOutputs     CompleteOutput   `json:"agent_outputs"`
	ValidationReport ValidationReport `json:"validation_report"`
	// FullDocumentText is retained so citation audits can re-verify quotes
	// long after the source PDF is gone.
	FullDocumentText string `json:"full_document_text"`
	ValidationPassed bool   `json:"validation_passed"`
}

// KnowledgeBase is the persisted output file schema.
type KnowledgeBase struct {
	Documents      []KnowledgeEntry `json:"documents"`
	TotalDocuments int              `json:"total_documents"`
}

// ProcessingStatus is the sidecar written when the pipeline aborts.
type ProcessingStatus struct {
	Reason            string    `json:"reason"`
	AffectedDocuments []string  `json:"affected_documents"`
	Timestamp         time.Time `json:"timestamp"`
}
