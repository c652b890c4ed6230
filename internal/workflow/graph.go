package workflow

import (
	"enlitens/internal/agents"
	"enlitens/internal/schema"
)

// Graph is the node topology as ordered layers. Nodes within a layer have no
// dependencies on each other and may run concurrently; each layer depends on
// everything before it.
type Graph struct {
	Layers [][]agents.AgentType
}

// DefaultGraph is the full pipeline: web-intel fan-out, then science
// extraction alongside context retrieval, clinical synthesis, the creative
// fan-out, the marketing fan-in and finally validation.
func DefaultGraph() *Graph {
	return &Graph{
		Layers: [][]agents.AgentType{
			append([]agents.AgentType{}, agents.WebIntelTypes...),
			{agents.TypeScienceExtraction, agents.TypeContextRAG},
			{agents.TypeClinicalSynthesis},
			{agents.TypeEducational, agents.TypeRebellion, agents.TypeFounderVoice},
			{agents.TypeMarketingSEO},
			{agents.TypeValidation},
		},
	}
}

// Nodes returns every node in topological order.
func (g *Graph) Nodes() []agents.AgentType {
	var nodes []agents.AgentType
	for _, layer := range g.Layers {
		nodes = append(nodes, layer...)
	}
	return nodes
}

// SkipMask returns the nodes excluded for a doc type. Unknown doc types fall
// back to the full pipeline.
func SkipMask(docType schema.DocType) map[agents.AgentType]bool {
	mask := make(map[agents.AgentType]bool)
	switch docType {
	case schema.DocTypeScienceOnly:
		mask[agents.TypeEducational] = true
		mask[agents.TypeRebellion] = true
		mask[agents.TypeFounderVoice] = true
		mask[agents.TypeMarketingSEO] = true
		mask[agents.TypeValidation] = true
	case schema.DocTypeMarketingRefresh:
		mask[agents.TypeScienceExtraction] = true
		mask[agents.TypeClinicalSynthesis] = true
	case schema.DocTypeValidationOnly:
		for _, node := range DefaultGraph().Nodes() {
			if node != agents.TypeValidation {
				mask[node] = true
			}
		}
	case schema.DocTypeContextReference:
		// Reference documents only feed the retrieval pool.
		for _, node := range DefaultGraph().Nodes() {
			if node != agents.TypeScienceExtraction && node != agents.TypeContextRAG {
				mask[node] = true
			}
		}
	}
	return mask
}
