package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/internal/adapters/config"
	"enlitens/internal/agents"
	"enlitens/internal/schema"
	"enlitens/internal/validation"
)

// stubAgent replays a fixed response and records every invocation.
type stubAgent struct {
	agentType agents.AgentType
	response  *agents.Response
	err       error

	mu       sync.Mutex
	calls    int
	sawState []schema.CompleteOutput
}

func (a *stubAgent) Name() string           { return string(a.agentType) }
func (a *stubAgent) Type() agents.AgentType { return a.agentType }

func (a *stubAgent) Initialize(context.Context, *agents.Services) error { return nil }
func (a *stubAgent) ValidateOutput(*agents.Response) error              { return nil }
func (a *stubAgent) Cleanup(context.Context) error                      { return nil }

func (a *stubAgent) Process(_ context.Context, req agents.Request) (*agents.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.sawState = append(a.sawState, req.Outputs)
	if a.err != nil {
		return nil, a.err
	}
	return a.response, nil
}

func sectionResponse(wire string, fields schema.Section) *agents.Response {
	return &agents.Response{Sections: map[string]schema.Section{wire: fields}}
}

func buildStubRegistry(t *testing.T) (*agents.Registry, map[agents.AgentType]*stubAgent) {
	t.Helper()
	registry := agents.NewRegistry()
	stubs := make(map[agents.AgentType]*stubAgent)

	add := func(agentType agents.AgentType, resp *agents.Response) {
		stub := &stubAgent{agentType: agentType, response: resp}
		stubs[agentType] = stub
		registry.Register(stub)
	}

	for _, wi := range agents.WebIntelTypes {
		add(wi, sectionResponse(string(wi), schema.Section{"findings": {"intel for " + string(wi)}}))
	}
	add(agents.TypeScienceExtraction, &agents.Response{
		Sections: map[string]schema.Section{"research_content": {
			"findings":     {"According to the study, training reduced anxiety."},
			"statistics":   {"According to the study, anxiety dropped 40 percent. [Source: doc-1]"},
			"implications": {"Interoception training matters clinically."},
		}},
		Blog: &schema.BlogContent{Statistics: []schema.Statistic{{
			Text:     "Anxiety dropped 40 percent.",
			Citation: &schema.Citation{SourceID: "doc-1", Quote: "training reduced anxiety"},
		}}},
	})
	add(agents.TypeContextRAG, sectionResponse("context_content", schema.Section{"supporting_context": {"prior document context"}}))
	add(agents.TypeClinicalSynthesis, sectionResponse("clinical_content", schema.Section{
		"implications":  {"Clinical interoception implications."},
		"interventions": {"Interoception training intervention."},
	}))
	add(agents.TypeEducational, sectionResponse("educational_content", schema.Section{"explanations": {"e1"}}))
	add(agents.TypeRebellion, sectionResponse("rebellion_content", schema.Section{"myths_challenged": {"m1"}}))
	add(agents.TypeFounderVoice, sectionResponse("founder_voice_content", schema.Section{"personal_takes": {"p1"}}))
	add(agents.TypeMarketingSEO, &agents.Response{Sections: map[string]schema.Section{
		"marketing_content": {"calls_to_action": {"c1"}},
		"seo_content":       {"primary_keywords": {"k1"}},
	}})

	return registry, stubs
}

func newTestOrchestrator(t *testing.T, registry *agents.Registry) *Orchestrator {
	t.Helper()
	engine := validation.NewEngine(validation.EngineOptions{Config: config.ValidationConfig{
		SimilarityThreshold:   0.68,
		CitationThreshold:     0.80,
		SelfCritiqueThreshold: 0.75,
		AcceptanceThreshold:   0.65,
	}})
	return New(Config{
		Registry: registry,
		Runner:   agents.NewRunner(agents.RunnerConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil),
		Engine:   engine,
	})
}

func TestProcessDocumentFullPipeline(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	o := newTestOrchestrator(t, registry)

	entry, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-1",
		DocumentText: "The study showed training reduced anxiety across participants in the trial.",
		DocType:      schema.DocTypeFull,
	})
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Every generation agent ran exactly once.
	for agentType, stub := range stubs {
		assert.Equal(t, 1, stub.calls, "agent %s", agentType)
	}

	assert.Equal(t, "doc-1", entry.Metadata.DocumentID)
	assert.NotEmpty(t, entry.AgentOutputs.Research["findings"])
	assert.NotEmpty(t, entry.AgentOutputs.Marketing["calls_to_action"])
	assert.Len(t, entry.AgentOutputs.WebIntel, 8)
	assert.NotEmpty(t, entry.ValidationReport.QualityScores)
	assert.Equal(t, entry.ValidationReport.QualityScores["overall_quality"], entry.Metadata.QualityScore)
	assert.Equal(t, "The study showed training reduced anxiety across participants in the trial.", entry.FullDocumentText)
}

func TestClinicalSeesUpstreamResearch(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	o := newTestOrchestrator(t, registry)

	_, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-1",
		DocumentText: "source text long enough for the structural checks to see it",
	})
	require.NoError(t, err)

	clinical := stubs[agents.TypeClinicalSynthesis]
	require.Len(t, clinical.sawState, 1)
	assert.NotEmpty(t, clinical.sawState[0].Research["findings"], "clinical synthesis should see science output")

	marketing := stubs[agents.TypeMarketingSEO]
	require.Len(t, marketing.sawState, 1)
	assert.NotEmpty(t, marketing.sawState[0].Educational, "marketing should see creative outputs")
	assert.NotEmpty(t, marketing.sawState[0].FounderVoice)
}

func TestScienceOnlySkipsCreativeNodes(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	o := newTestOrchestrator(t, registry)

	entry, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-2",
		DocumentText: "science only body",
		DocType:      schema.DocTypeScienceOnly,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stubs[agents.TypeScienceExtraction].calls)
	assert.Zero(t, stubs[agents.TypeEducational].calls)
	assert.Zero(t, stubs[agents.TypeMarketingSEO].calls)

	// No validation ran, so the entry is not gated.
	assert.True(t, entry.ValidationPassed)
	assert.Empty(t, entry.ValidationReport.QualityScores)
}

func TestValidationOnlyRunsJustValidation(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	o := newTestOrchestrator(t, registry)

	entry, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-3",
		DocumentText: "validation only body",
		DocType:      schema.DocTypeValidationOnly,
	})
	require.NoError(t, err)

	for agentType, stub := range stubs {
		assert.Zero(t, stub.calls, "agent %s should not run", agentType)
	}
	assert.NotEmpty(t, entry.ValidationReport.QualityScores)
	assert.False(t, entry.ValidationPassed, "empty output cannot pass validation")
}

func TestMarketingWaitsForMissingCreatives(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	// Educational produces nothing, so its result slot stays nil.
	stubs[agents.TypeEducational].response = &agents.Response{}
	o := newTestOrchestrator(t, registry)

	state := NewState(testDoc(), nil)
	assert.True(t, o.creativesWaiting(state))

	entry, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-4",
		DocumentText: "body text",
	})
	require.NoError(t, err)

	// Marketing still ran once its siblings completed.
	assert.Equal(t, 1, stubs[agents.TypeMarketingSEO].calls)
	assert.NotNil(t, entry)
}

func TestMarketingHeldWhenCreativeSlotUnset(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	// A failed creative never writes its result slot, unlike an empty one.
	stubs[agents.TypeEducational].err = assert.AnError
	o := newTestOrchestrator(t, registry)

	entry, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-7",
		DocumentText: "body text for processing",
	})
	require.NoError(t, err)

	// The fan-in holds while a creative slot is unset.
	assert.Zero(t, stubs[agents.TypeMarketingSEO].calls)
	assert.Empty(t, entry.AgentOutputs.Marketing)
	assert.Empty(t, entry.AgentOutputs.SEO)
}

func TestCancellationStopsBetweenLayers(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	o := newTestOrchestrator(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry, err := o.ProcessDocument(ctx, schema.DocumentContext{
		DocumentID:   "doc-5",
		DocumentText: "body",
	})
	require.Error(t, err)
	require.NotNil(t, entry, "partial entry must still be returned")

	for agentType, stub := range stubs {
		assert.Zero(t, stub.calls, "agent %s should not run after cancellation", agentType)
	}
}

func TestProcessDocumentRejectsMissingID(t *testing.T) {
	registry, _ := buildStubRegistry(t)
	o := newTestOrchestrator(t, registry)

	_, err := o.ProcessDocument(context.Background(), schema.DocumentContext{})
	require.Error(t, err)
}

func TestNodeErrorRecordedDownstreamTreatsEmpty(t *testing.T) {
	registry, stubs := buildStubRegistry(t)
	stubs[agents.TypeClinicalSynthesis].err = assert.AnError
	o := newTestOrchestrator(t, registry)

	entry, err := o.ProcessDocument(context.Background(), schema.DocumentContext{
		DocumentID:   "doc-6",
		DocumentText: "body text for processing",
	})
	require.NoError(t, err)

	// Downstream creative agents still ran with an empty clinical slot.
	assert.Equal(t, 1, stubs[agents.TypeEducational].calls)
	assert.Empty(t, entry.AgentOutputs.Clinical)
	assert.False(t, entry.ValidationPassed)
}
