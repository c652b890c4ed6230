package agents

import (
	"context"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/adapters/websearch"
	"enlitens/internal/retrieval"
	"enlitens/internal/schema"
)

// AgentType identifies a pipeline agent.
type AgentType string

const (
	TypeNews            AgentType = "news"
	TypePolicy          AgentType = "policy"
	TypeResources       AgentType = "resources"
	TypeEvents          AgentType = "events"
	TypeResearchUpdate  AgentType = "research_update"
	TypeMyths           AgentType = "myths"
	TypeCommunityImpact AgentType = "community_impact"
	TypeSymptomTrends   AgentType = "symptom_trends"

	TypeScienceExtraction AgentType = "science_extraction"
	TypeContextRAG        AgentType = "context_rag"
	TypeClinicalSynthesis AgentType = "clinical_synthesis"
	TypeEducational       AgentType = "educational"
	TypeRebellion         AgentType = "rebellion"
	TypeFounderVoice      AgentType = "founder_voice"
	TypeMarketingSEO      AgentType = "marketing_seo"
	TypeValidation        AgentType = "validation"
)

// WebIntelTypes lists the fan-out web intelligence agents in graph order.
var WebIntelTypes = []AgentType{
	TypeNews, TypePolicy, TypeResources, TypeEvents,
	TypeResearchUpdate, TypeMyths, TypeCommunityImpact, TypeSymptomTrends,
}

// Request carries everything an agent may need for one document.
type Request struct {
	Document  schema.DocumentContext
	Outputs   schema.CompleteOutput
	Retrieved []retrieval.SearchResult
	Attempt   int
}

// Response is an agent's contribution to the document's knowledge entry.
// Sections are keyed by wire name (e.g. "research_content").
type Response struct {
	Sections   map[string]schema.Section
	Statistics []schema.Statistic
	Blog       *schema.BlogContent
	Meta       map[string]string
}

// Empty reports whether the response carries no usable content.
func (r *Response) Empty() bool {
	if r == nil {
		return true
	}
	for _, s := range r.Sections {
		if s.Populated() {
			return false
		}
	}
	return len(r.Statistics) == 0 && (r.Blog == nil || len(r.Blog.Statistics) == 0 && len(r.Blog.Narratives) == 0)
}

// Agent is the execution contract every pipeline agent satisfies. Process
// must be safe to call repeatedly: the runner retries on empty or invalid
// output.
type Agent interface {
	Name() string
	Type() AgentType

	// Initialize wires collaborators. Called once before the first Process.
	Initialize(ctx context.Context, services *Services) error

	// Process produces the agent's output for one document.
	Process(ctx context.Context, req Request) (*Response, error)

	// ValidateOutput checks the agent's own output contract.
	ValidateOutput(resp *Response) error

	// Cleanup releases per-document resources.
	Cleanup(ctx context.Context) error
}

// Retriever is the slice of the hybrid retriever agents depend on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filter retrieval.SearchFilter) ([]retrieval.SearchResult, error)
}

// OutputCache stores agent responses keyed by document fingerprint.
type OutputCache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response)
}

// Services bundles shared collaborators injected into agents.
type Services struct {
	Chat      ai.ChatProvider
	ChatModel string
	Retriever Retriever
	Searcher  websearch.Searcher
	Cache     OutputCache
}
