package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/internal/agents"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

func testDoc() schema.DocumentContext {
	return schema.DocumentContext{
		DocumentID:   "doc-1",
		DocumentText: "markdown body",
		DocType:      schema.DocTypeFull,
	}
}

func TestApplyRejectsDoubleResultWrite(t *testing.T) {
	state := NewState(testDoc(), nil)

	first := Delta{
		Node:   agents.TypeScienceExtraction,
		Status: StatusDone,
		Result: &agents.Response{Sections: map[string]schema.Section{
			"research_content": {"findings": {"f1"}},
		}},
	}
	require.NoError(t, state.Apply(first))

	second := Delta{
		Node:   agents.TypeScienceExtraction,
		Result: &agents.Response{},
	}
	err := state.Apply(second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateCorrupt))
}

func TestApplyRejectsAttemptRegression(t *testing.T) {
	state := NewState(testDoc(), nil)

	require.NoError(t, state.Apply(Delta{Node: agents.TypeClinicalSynthesis, Attempts: 2}))
	err := state.Apply(Delta{Node: agents.TypeClinicalSynthesis, Attempts: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateCorrupt))

	// Equal or higher is fine.
	assert.NoError(t, state.Apply(Delta{Node: agents.TypeClinicalSynthesis, Attempts: 2}))
	assert.NoError(t, state.Apply(Delta{Node: agents.TypeClinicalSynthesis, Attempts: 3}))
}

func TestApplyRejectsConflictingCompletion(t *testing.T) {
	state := NewState(testDoc(), nil)

	require.NoError(t, state.Apply(Delta{Node: agents.TypeEducational, Status: StatusDone}))
	err := state.Apply(Delta{Node: agents.TypeEducational, Status: StatusEmpty})
	require.Error(t, err)

	// Re-applying the same status is idempotent.
	assert.NoError(t, state.Apply(Delta{Node: agents.TypeEducational, Status: StatusDone}))
}

func TestApplyMergesMapsAndUnionsSkips(t *testing.T) {
	state := NewState(testDoc(), map[agents.AgentType]bool{agents.TypeNews: true})

	require.NoError(t, state.Apply(Delta{
		Node:         agents.TypeScienceExtraction,
		Stage:        "science_extraction",
		Metadata:     map[string]string{"a": "1"},
		Intermediate: map[string]string{"science_extraction": "done"},
		SkipNodes:    []agents.AgentType{agents.TypePolicy},
	}))
	require.NoError(t, state.Apply(Delta{
		Node:     agents.TypeClinicalSynthesis,
		Stage:    "clinical_synthesis",
		Metadata: map[string]string{"b": "2"},
	}))

	assert.Equal(t, "clinical_synthesis", state.Stage)
	assert.Equal(t, "1", state.Metadata["a"])
	assert.Equal(t, "2", state.Metadata["b"])
	assert.True(t, state.SkipNodes[agents.TypeNews])
	assert.True(t, state.SkipNodes[agents.TypePolicy])
}

func TestMergedOutputRoutesSections(t *testing.T) {
	state := NewState(testDoc(), nil)

	require.NoError(t, state.Apply(Delta{
		Node: agents.TypeScienceExtraction,
		Result: &agents.Response{
			Sections: map[string]schema.Section{"research_content": {"findings": {"f1"}}},
			Blog:     &schema.BlogContent{Statistics: []schema.Statistic{{Text: "s1"}}},
		},
	}))
	require.NoError(t, state.Apply(Delta{
		Node:   agents.TypeMarketingSEO,
		Result: &agents.Response{Sections: map[string]schema.Section{
			"marketing_content": {"calls_to_action": {"c1"}},
			"seo_content":       {"primary_keywords": {"k1"}},
		}},
	}))
	require.NoError(t, state.Apply(Delta{
		Node:   agents.TypeNews,
		Result: &agents.Response{Sections: map[string]schema.Section{
			"news": {"findings": {"n1"}},
		}},
	}))
	require.NoError(t, state.Apply(Delta{
		Node:   agents.TypeContextRAG,
		Result: &agents.Response{Sections: map[string]schema.Section{
			"context_content": {"supporting_context": {"ctx1"}},
		}},
	}))

	out := state.MergedOutput()
	assert.Equal(t, []string{"f1"}, out.Research["findings"])
	assert.Len(t, out.Blog.Statistics, 1)
	assert.Equal(t, []string{"c1"}, out.Marketing["calls_to_action"])
	assert.Equal(t, []string{"k1"}, out.SEO["primary_keywords"])
	assert.Equal(t, []string{"n1"}, out.WebIntel["news"]["findings"])
	assert.Equal(t, []string{"ctx1"}, out.Extra["context_content"]["supporting_context"])
}

func TestSkipMasks(t *testing.T) {
	science := SkipMask(schema.DocTypeScienceOnly)
	assert.True(t, science[agents.TypeEducational])
	assert.True(t, science[agents.TypeMarketingSEO])
	assert.True(t, science[agents.TypeValidation])
	assert.False(t, science[agents.TypeScienceExtraction])
	assert.False(t, science[agents.TypeNews])

	refresh := SkipMask(schema.DocTypeMarketingRefresh)
	assert.True(t, refresh[agents.TypeScienceExtraction])
	assert.True(t, refresh[agents.TypeClinicalSynthesis])
	assert.False(t, refresh[agents.TypeMarketingSEO])

	valOnly := SkipMask(schema.DocTypeValidationOnly)
	assert.False(t, valOnly[agents.TypeValidation])
	for _, node := range DefaultGraph().Nodes() {
		if node != agents.TypeValidation {
			assert.True(t, valOnly[node], "node %s should be skipped", node)
		}
	}

	assert.Empty(t, SkipMask(schema.DocTypeFull))
}

func TestDefaultGraphOrdering(t *testing.T) {
	g := DefaultGraph()
	require.Len(t, g.Layers, 6)
	assert.Len(t, g.Layers[0], 8)
	assert.Equal(t, []agents.AgentType{agents.TypeScienceExtraction, agents.TypeContextRAG}, g.Layers[1])
	assert.Equal(t, []agents.AgentType{agents.TypeValidation}, g.Layers[5])
	assert.Len(t, g.Nodes(), 16)
}
