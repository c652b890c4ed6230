package agents

import (
	"context"
	"fmt"
	"strings"

	"enlitens/internal/retrieval"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// ContextRAGAgent pulls supporting passages from the chunk index for the
// current document's key topics. Output feeds the clinical synthesis and
// the semantic validation layer.
type ContextRAGAgent struct {
	services *Services
	log      *logger.Logger
}

func NewContextRAGAgent() *ContextRAGAgent {
	return &ContextRAGAgent{log: logger.Get().With("agent", string(TypeContextRAG))}
}

func (a *ContextRAGAgent) Name() string    { return string(TypeContextRAG) }
func (a *ContextRAGAgent) Type() AgentType { return TypeContextRAG }

func (a *ContextRAGAgent) Initialize(_ context.Context, services *Services) error {
	if services == nil || services.Retriever == nil {
		return errors.Wrap(errors.ErrAgentInit, "context RAG agent requires a retriever")
	}
	a.services = services
	return nil
}

func (a *ContextRAGAgent) Process(ctx context.Context, req Request) (*Response, error) {
	queries := a.buildQueries(req)
	if len(queries) == 0 {
		return &Response{}, nil
	}

	seen := make(map[string]bool)
	var passages []string
	var sources []string

	for _, query := range queries {
		results, err := a.services.Retriever.Retrieve(ctx, query, retrieval.SearchFilter{})
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if seen[res.Chunk.ChunkID] {
				continue
			}
			seen[res.Chunk.ChunkID] = true
			passages = append(passages, res.Chunk.Text)
			sources = append(sources, fmt.Sprintf("%s (pages %v)", res.Chunk.Metadata.DocumentID, res.Chunk.Pages))
		}
	}

	section := schema.Section{}
	if len(passages) > 0 {
		section["supporting_context"] = passages
		section["context_sources"] = sources
	}

	return &Response{
		Sections: map[string]schema.Section{"context_content": section},
	}, nil
}

// buildQueries derives retrieval queries from extracted findings, falling
// back to entity names and the document head.
func (a *ContextRAGAgent) buildQueries(req Request) []string {
	var queries []string

	if research := req.Outputs.SectionByName("research_content"); research != nil {
		for _, finding := range research["findings"] {
			queries = append(queries, finding)
			if len(queries) >= 5 {
				return queries
			}
		}
	}

	for _, name := range entityHighlights(req.Document.Entities, 5) {
		queries = append(queries, name)
		if len(queries) >= 5 {
			return queries
		}
	}

	if len(queries) == 0 {
		head := strings.TrimSpace(truncate(req.Document.DocumentText, 500))
		if head != "" {
			queries = append(queries, head)
		}
	}
	return queries
}

func (a *ContextRAGAgent) ValidateOutput(resp *Response) error {
	// An empty context pool is legitimate for the first corpus document.
	return nil
}

func (a *ContextRAGAgent) Cleanup(_ context.Context) error { return nil }
