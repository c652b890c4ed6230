package agents

import (
	"context"
	"fmt"
	"strings"

	"enlitens/internal/schema"
	"enlitens/pkg/logger"
)

// webIntelTopics maps each web intelligence agent to its search focus.
var webIntelTopics = map[AgentType]string{
	TypeNews:            "recent news coverage",
	TypePolicy:          "policy and insurance changes",
	TypeResources:       "community resources and support services",
	TypeEvents:          "upcoming events and conferences",
	TypeResearchUpdate:  "latest research publications",
	TypeMyths:           "common myths and misconceptions",
	TypeCommunityImpact: "lived experience and community impact",
	TypeSymptomTrends:   "reported symptom trends and presentations",
}

const webIntelSystemPrompt = `You summarize web search results for a neurodiversity-affirming clinic's content team.
Respond with a single JSON object:
  "findings": list of concrete takeaways grounded in the snippets
  "sources": list of source URLs you actually used
Only use information present in the snippets.`

// WebIntelAgent gathers external context on one topic. The eight instances
// fan out in parallel after document intake.
type WebIntelAgent struct {
	agentType AgentType
	services  *Services
	log       *logger.Logger
}

// NewWebIntelAgent creates the agent for one of the web intelligence topics.
func NewWebIntelAgent(agentType AgentType) *WebIntelAgent {
	return &WebIntelAgent{
		agentType: agentType,
		log:       logger.Get().With("agent", string(agentType)),
	}
}

func (a *WebIntelAgent) Name() string    { return string(a.agentType) }
func (a *WebIntelAgent) Type() AgentType { return a.agentType }

func (a *WebIntelAgent) Initialize(_ context.Context, services *Services) error {
	a.services = services
	return nil
}

// Process searches the web for the agent's topic and condenses results.
// Without a configured searcher the agent yields an empty response, which
// the graph records as an empty node rather than a failure.
func (a *WebIntelAgent) Process(ctx context.Context, req Request) (*Response, error) {
	if a.services.Searcher == nil {
		a.log.Debug("Web search disabled, skipping intel gathering")
		return &Response{}, nil
	}

	query := a.buildQuery(req.Document)
	results, err := a.services.Searcher.Search(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Response{}, nil
	}

	var snippets strings.Builder
	for _, r := range results {
		fmt.Fprintf(&snippets, "- [%s](%s): %s\n", r.Title, r.URL, r.Snippet)
	}

	section := schema.Section{}
	if a.services.Chat != nil {
		obj, err := completeJSON(ctx, a.services, webIntelSystemPrompt,
			fmt.Sprintf("Topic: %s\nQuery: %s\n\nSearch results:\n%s", webIntelTopics[a.agentType], query, snippets.String()))
		if err != nil {
			return nil, err
		}
		section = schema.Section(sectionFromJSON(obj))
	} else {
		// Degraded mode: raw snippets become the findings.
		for _, r := range results {
			section["findings"] = append(section["findings"], r.Snippet)
			section["sources"] = append(section["sources"], r.URL)
		}
	}

	return &Response{
		Sections: map[string]schema.Section{string(a.agentType): section},
	}, nil
}

func (a *WebIntelAgent) buildQuery(doc schema.DocumentContext) string {
	terms := []string{webIntelTopics[a.agentType]}
	terms = append(terms, entityHighlights(doc.Entities, 3)...)
	if region := regionalSummary(doc.RegionalContext); region != "" {
		terms = append(terms, region)
	}
	return strings.Join(terms, " ")
}

func (a *WebIntelAgent) ValidateOutput(resp *Response) error {
	// Web intel is best-effort; an empty result set is acceptable.
	return nil
}

func (a *WebIntelAgent) Cleanup(_ context.Context) error { return nil }
