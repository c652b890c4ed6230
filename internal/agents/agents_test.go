package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/adapters/websearch"
	"enlitens/internal/retrieval"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

type stubChat struct {
	content string
	err     error
	lastReq ai.ChatRequest
}

func (s *stubChat) Name() string { return "stub" }

func (s *stubChat) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &ai.ChatResponse{Content: s.content, FinishReason: ai.FinishReasonStop}, nil
}

type stubSearcher struct {
	results []websearch.Result
}

func (s *stubSearcher) Search(_ context.Context, _ string, limit int) ([]websearch.Result, error) {
	if limit < len(s.results) {
		return s.results[:limit], nil
	}
	return s.results, nil
}

type stubRetriever struct {
	results []retrieval.SearchResult
	queries []string
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, _ retrieval.SearchFilter) ([]retrieval.SearchResult, error) {
	s.queries = append(s.queries, query)
	return s.results, nil
}

func docContext() schema.DocumentContext {
	return schema.DocumentContext{
		DocumentID:   "smith2024",
		DocumentText: "Dopamine neurons encode reward prediction errors.",
		DocType:      schema.DocTypeFull,
	}
}

func TestParseStatistics(t *testing.T) {
	raw := json.RawMessage(`[
		{"text": "According to the study, 34% of participants improved", "quote": "34% of participants improved", "pages": [3], "section": "Results"},
		{"text": "", "quote": "ignored"},
		{"text": "Already cited [Source: other2020]", "quote": "q"}
	]`)

	stats := parseStatistics(raw, "smith2024")
	require.Len(t, stats, 2)
	assert.Contains(t, stats[0].Text, "[Source: smith2024]")
	assert.Equal(t, "smith2024", stats[0].Citation.SourceID)
	assert.Equal(t, []int{3}, stats[0].Citation.Pages)
	assert.Contains(t, stats[1].Text, "[Source: other2020]")
}

func TestScienceAgentProcess(t *testing.T) {
	chat := &stubChat{content: `{
		"findings": ["According to the study, dopamine encodes prediction errors"],
		"methods": ["fMRI"],
		"statistics": [{"text": "According to the study, 34% improved", "quote": "34% improved", "pages": [2], "section": "Results"}]
	}`}

	agent := NewScienceAgent()
	require.NoError(t, agent.Initialize(context.Background(), &Services{Chat: chat, ChatModel: "gpt-4o-mini"}))

	resp, err := agent.Process(context.Background(), Request{Document: docContext()})
	require.NoError(t, err)
	require.NoError(t, agent.ValidateOutput(resp))

	section := resp.Sections["research_content"]
	assert.Len(t, section["findings"], 1)
	assert.Len(t, resp.Statistics, 1)
	require.NotNil(t, resp.Blog)
	assert.Len(t, resp.Blog.Statistics, 1)
	assert.True(t, chat.lastReq.JSONMode)
}

func TestScienceAgentRejectsNoFindings(t *testing.T) {
	agent := NewScienceAgent()
	resp := &Response{Sections: map[string]schema.Section{
		"research_content": {"methods": []string{"fMRI"}},
	}}
	assert.Error(t, agent.ValidateOutput(resp))
}

func TestWebIntelAgentWithoutSearcher(t *testing.T) {
	agent := NewWebIntelAgent(TypeNews)
	require.NoError(t, agent.Initialize(context.Background(), &Services{}))

	resp, err := agent.Process(context.Background(), Request{Document: docContext()})
	require.NoError(t, err)
	assert.True(t, resp.Empty())
	assert.NoError(t, agent.ValidateOutput(resp), "empty web intel is acceptable")
}

func TestWebIntelAgentDegradedWithoutChat(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "A", URL: "https://a.example", Snippet: "new clinic guidance published"},
	}}
	agent := NewWebIntelAgent(TypePolicy)
	require.NoError(t, agent.Initialize(context.Background(), &Services{Searcher: searcher}))

	resp, err := agent.Process(context.Background(), Request{Document: docContext()})
	require.NoError(t, err)

	section := resp.Sections[string(TypePolicy)]
	assert.Equal(t, []string{"new clinic guidance published"}, section["findings"])
	assert.Equal(t, []string{"https://a.example"}, section["sources"])
}

func TestContextRAGAgentQueriesFindings(t *testing.T) {
	ret := &stubRetriever{results: []retrieval.SearchResult{
		{Chunk: schema.Chunk{ChunkID: "c1", Text: "prior evidence", Metadata: schema.ChunkMetadata{DocumentID: "old2019"}}},
	}}
	agent := NewContextRAGAgent()
	require.NoError(t, agent.Initialize(context.Background(), &Services{Retriever: ret}))

	req := Request{
		Document: docContext(),
		Outputs: schema.CompleteOutput{
			Research: schema.Section{"findings": []string{"dopamine encodes prediction errors"}},
		},
	}
	resp, err := agent.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"dopamine encodes prediction errors"}, ret.queries)
	section := resp.Sections["context_content"]
	assert.Equal(t, []string{"prior evidence"}, section["supporting_context"])
}

func TestClinicalAgentRequiresResearch(t *testing.T) {
	agent := NewClinicalAgent()
	require.NoError(t, agent.Initialize(context.Background(), &Services{Chat: &stubChat{content: "{}"}}))

	_, err := agent.Process(context.Background(), Request{Document: docContext()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestClinicalAgentIncludesClientInsights(t *testing.T) {
	chat := &stubChat{content: `{"implications": ["support interoception work"], "recommendations": ["slow down assessments"]}`}
	agent := NewClinicalAgent()
	require.NoError(t, agent.Initialize(context.Background(), &Services{Chat: chat}))

	doc := docContext()
	doc.ClientInsights = map[string]interface{}{
		"sensory_profile": "seeks deep pressure",
		"goals":           []interface{}{"reduce overwhelm", "better sleep"},
	}

	_, err := agent.Process(context.Background(), Request{
		Document: doc,
		Outputs: schema.CompleteOutput{
			Research: schema.Section{"findings": []string{"interoception predicts anxiety"}},
		},
	})
	require.NoError(t, err)

	user := chat.lastReq.Messages[1].Content
	assert.Contains(t, user, "sensory_profile: seeks deep pressure")
	assert.Contains(t, user, "goals: reduce overwhelm; better sleep")
}

func TestFounderVoiceAgentIncludesFounderInsights(t *testing.T) {
	chat := &stubChat{content: `{"personal_takes": ["this is why I opened the clinic"]}`}
	agent, err := NewContentAgent(TypeFounderVoice)
	require.NoError(t, err)
	require.NoError(t, agent.Initialize(context.Background(), &Services{Chat: chat}))

	doc := docContext()
	doc.FounderInsights = map[string]interface{}{"origin_story": "late diagnosed"}

	_, err = agent.Process(context.Background(), Request{
		Document: doc,
		Outputs: schema.CompleteOutput{
			Clinical: schema.Section{"implications": []string{"assessments must adapt"}},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, chat.lastReq.Messages[1].Content, "origin_story: late diagnosed")
}

func TestContentAgentValidation(t *testing.T) {
	agent, err := NewContentAgent(TypeEducational)
	require.NoError(t, err)

	valid := &Response{Sections: map[string]schema.Section{
		"educational_content": {
			"explanations":        []string{"e1"},
			"learning_objectives": []string{"o1"},
		},
	}}
	assert.NoError(t, agent.ValidateOutput(valid))

	missing := &Response{Sections: map[string]schema.Section{
		"educational_content": {"explanations": []string{"e1"}},
	}}
	assert.Error(t, agent.ValidateOutput(missing))

	_, err = NewContentAgent(TypeNews)
	assert.Error(t, err)
}

func TestMarketingAgentBansRiskyClaims(t *testing.T) {
	agent := NewMarketingAgent()

	resp := &Response{Sections: map[string]schema.Section{
		"marketing_content": {"headlines": []string{"We guarantee results"}},
		"seo_content":       {"keywords": []string{"autism assessment"}},
	}}
	err := agent.ValidateOutput(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "banned")

	clean := &Response{Sections: map[string]schema.Section{
		"marketing_content": {"headlines": []string{"Understand your brain"}},
		"seo_content":       {"keywords": []string{"autism assessment"}},
	}}
	assert.NoError(t, agent.ValidateOutput(clean))
}

func TestCreativesReady(t *testing.T) {
	outputs := schema.CompleteOutput{
		Educational:  schema.Section{"explanations": []string{"x"}},
		Rebellion:    schema.Section{"myths_challenged": []string{"x"}},
		FounderVoice: schema.Section{"personal_takes": []string{"x"}},
	}
	assert.True(t, CreativesReady(outputs))

	outputs.FounderVoice = schema.Section{}
	assert.False(t, CreativesReady(outputs))
}

func TestBuildRegistry(t *testing.T) {
	services := &Services{Chat: &stubChat{content: "{}"}, Retriever: &stubRetriever{}}
	registry, err := BuildRegistry(context.Background(), services)
	require.NoError(t, err)

	assert.Len(t, registry.List(), 15)
	for _, agentType := range WebIntelTypes {
		_, ok := registry.Get(agentType)
		assert.True(t, ok, "missing web intel agent %s", agentType)
	}
	_, ok := registry.Get(TypeMarketingSEO)
	assert.True(t, ok)
}

func TestEntityHighlights(t *testing.T) {
	entities := map[string][]schema.Entity{
		"neuroscience": {
			{Text: "interoception", Confidence: 0.95},
			{Text: "amygdala", Confidence: 0.80},
		},
		"clinical": {
			{Text: "Interoception", Confidence: 0.90},
			{Text: "masking", Confidence: 0.70},
		},
	}

	names := entityHighlights(entities, 2)
	assert.Equal(t, []string{"interoception", "amygdala"}, names)

	assert.Empty(t, entityHighlights(nil, 3))
	assert.Empty(t, entityHighlights(entities, 0))
}

func TestInsightSummary(t *testing.T) {
	insights := map[string]interface{}{
		"themes":   []interface{}{"burnout", "masking"},
		"quote":    "I never felt heard",
		"sessions": 12,
		"empty":    "",
	}
	rendered := insightSummary(insights)
	assert.Equal(t, "quote: I never felt heard\nsessions: 12\nthemes: burnout; masking", rendered)
	assert.Empty(t, insightSummary(nil))
}

func TestRegionalSummary(t *testing.T) {
	region := map[string]interface{}{
		"city":          "St. Louis",
		"neighborhoods": []interface{}{"Webster Groves", "Kirkwood"},
		"population":    300000,
	}
	assert.Equal(t, "St. Louis, Webster Groves, Kirkwood", regionalSummary(region))
	assert.Empty(t, regionalSummary(nil))
}

func TestStripFencesAndStringList(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))

	assert.Equal(t, []string{"a", "b"}, stringList(json.RawMessage(`["a","b"]`)))
	assert.Equal(t, []string{"solo"}, stringList(json.RawMessage(`"solo"`)))
	assert.Empty(t, stringList(json.RawMessage(`""`)))
	assert.Equal(t, []string{"42"}, stringList(json.RawMessage(`[42]`)))
}
