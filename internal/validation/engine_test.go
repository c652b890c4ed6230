package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/adapters/config"
	"enlitens/internal/schema"
)

const engineDoc = `According to the study, interoception training reduced anxiety scores by 40 percent
after eight weeks. The randomized trial enrolled 120 participants across three St. Louis
clinics. Interoception is the perception of internal bodily signals and is supported by
the insula. Training improved heartbeat detection accuracy and emotional regulation in
both clinical and community samples. The control group showed no change over the same
period, and no adverse events were reported during the intervention.`

func sectionWithCounts(fields []string, count int, template string) schema.Section {
	sec := schema.Section{}
	for _, field := range fields {
		items := make([]string, count)
		for i := range items {
			items[i] = template
		}
		sec[field] = items
	}
	return sec
}

func acceptableOutput() *schema.CompleteOutput {
	eduTemplate := "It turns out interoception training reshapes the insula's processing of bodily signals, which is why clients feel calmer once their nervous system learns to read its own state accurately."
	mktTemplate := "Brain-based therapy for St. Louis adults grounded in interoception research."
	seoTemplate := "interoception training st. louis anxiety therapy"
	fvTemplate := "Your brain isn't broken, it's adapting. Interoception training gives St. Louis clients a way back to their own signals."

	out := &schema.CompleteOutput{
		Research: schema.Section{
			"findings": {
				"According to the study, interoception training reduced anxiety scores by 40 percent after eight weeks.",
				"According to the study, training improved heartbeat detection accuracy and emotional regulation.",
				"According to the study, the control group showed no change over the same period.",
			},
			"statistics": {
				"According to the study, anxiety scores dropped by 40 percent. [Source: doc-1]",
				"According to the study, 120 participants enrolled across three clinics. [Source: doc-1]",
			},
			"implications": {"Interoception training belongs in anxiety treatment planning."},
		},
		Clinical: schema.Section{
			"implications":    {"Interoception deficits drive anxiety presentations."},
			"interventions":   {"Weekly interoception training with heartbeat detection practice."},
			"recommendations": {"Screen for interoceptive awareness at intake."},
		},
		Educational:  sectionWithCounts(requiredEducationalFields, 5, eduTemplate),
		Marketing:    sectionWithCounts(requiredMarketingFields, 3, mktTemplate),
		SEO:          sectionWithCounts(requiredSEOFields, 5, seoTemplate),
		FounderVoice: schema.Section{"personal_takes": {fvTemplate, fvTemplate, fvTemplate}},
		Rebellion: schema.Section{
			"myths_challenged":   {"Myth: anxiety is purely psychological."},
			"counter_narratives": {"Contrary to the myth, anxiety tracks interoceptive signaling."},
		},
		Blog: schema.BlogContent{Statistics: []schema.Statistic{
			{
				Text:     "Anxiety dropped 40% after eight weeks.",
				Citation: &schema.Citation{SourceID: "doc-1", Quote: "interoception training reduced anxiety scores by 40 percent"},
			},
		}},
		SelfConsistency: &schema.SelfConsistency{NumSamples: 3, VoteThreshold: 2},
	}
	return out
}

func newTestEngine(chat ai.ChatProvider) *Engine {
	return NewEngine(EngineOptions{
		Config: config.ValidationConfig{
			SimilarityThreshold:   0.68,
			CitationThreshold:     0.80,
			SelfCritiqueThreshold: 0.75,
			AcceptanceThreshold:   0.65,
			SelfConsistencyVotes:  3,
		},
		Chat:      chat,
		ChatModel: "test-model",
	})
}

type cannedChat struct {
	content string
	calls   int
}

func (c *cannedChat) Name() string { return "canned" }

func (c *cannedChat) Chat(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
	c.calls++
	return &ai.ChatResponse{Content: c.content}, nil
}

func TestEngineAcceptsHighQualityDocument(t *testing.T) {
	engine := newTestEngine(nil)
	report := engine.Validate(context.Background(), acceptableOutput(), engineDoc, 0)

	assert.True(t, report.FinalValidation.Passed, "triggers: %v warnings: %v", report.RetryMetadata.Triggers, report.Warnings)
	assert.False(t, report.RetryMetadata.NeedsRetry)
	assert.Empty(t, report.RetryMetadata.Triggers)
	assert.True(t, report.VerificationReport.OverallPassed)
	assert.Empty(t, report.CitationReport.Failed)
	assert.GreaterOrEqual(t, report.QualityScores["overall_quality"], 0.65)
	assert.Equal(t, 1.0, report.QualityScores["fact_checking"])
	assert.False(t, report.HasCriticalWarning())
	assert.Nil(t, report.SelfCritique)
}

func TestEngineRejectsEmptyOutput(t *testing.T) {
	engine := newTestEngine(nil)
	report := engine.Validate(context.Background(), &schema.CompleteOutput{}, engineDoc, 1)

	assert.False(t, report.FinalValidation.Passed)
	assert.True(t, report.RetryMetadata.NeedsRetry)
	assert.Equal(t, 1, report.RetryMetadata.Attempt)
	assert.Contains(t, report.RetryMetadata.Triggers, TriggerLowQuality)
	assert.Contains(t, report.RetryMetadata.Triggers, TriggerVerificationFailed)
	assert.Contains(t, report.RetryMetadata.Triggers, "critical:educational_content")
	assert.NotEmpty(t, report.FinalValidation.Recommendations)
}

func TestEngineWarnsOnMissingSections(t *testing.T) {
	engine := newTestEngine(nil)
	report := engine.Validate(context.Background(), &schema.CompleteOutput{}, engineDoc, 0)

	var found bool
	for _, w := range report.Warnings {
		if w.Section == "educational_content" && w.Message == "Section missing entirely" {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", report.Warnings)
}

func TestEngineSurfacesVerificationIssuesAsWarnings(t *testing.T) {
	engine := newTestEngine(nil)

	out := acceptableOutput()
	out.Marketing["calls_to_action"] = []string{"We guarantee results for every client."}

	report := engine.Validate(context.Background(), out, engineDoc, 0)

	assert.False(t, report.FinalValidation.Passed)
	assert.Contains(t, report.RetryMetadata.Triggers, TriggerVerificationFailed)

	var found bool
	for _, w := range report.Warnings {
		if w.Section == "marketing_compliance" && containsAny(w.Message, []string{"guarantee"}) {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", report.Warnings)
}

func TestEngineFailedCitationBlocksAcceptance(t *testing.T) {
	out := acceptableOutput()
	out.Blog.Statistics = append(out.Blog.Statistics, schema.Statistic{
		Text:     "fabricated",
		Citation: &schema.Citation{SourceID: "doc-1", Quote: "chocolate consumption triples executive function in one week"},
	})

	engine := newTestEngine(nil)
	report := engine.Validate(context.Background(), out, engineDoc, 0)

	assert.False(t, report.FinalValidation.Passed)
	assert.Contains(t, report.RetryMetadata.Triggers, TriggerCitationMismatch)
	require.Len(t, report.CitationReport.Failed, 1)
}

func TestEngineMissingQuoteTrigger(t *testing.T) {
	out := acceptableOutput()
	out.Blog.Statistics = append(out.Blog.Statistics, schema.Statistic{Text: "no quote"})

	engine := newTestEngine(nil)
	report := engine.Validate(context.Background(), out, engineDoc, 0)

	assert.Contains(t, report.RetryMetadata.Triggers, TriggerMissingQuotes)
	assert.Equal(t, []int{1}, report.CitationReport.MissingQuotes)
}

func TestEngineSelfCritiqueOnVerificationFailure(t *testing.T) {
	chat := &cannedChat{content: `{"issues":["marketing uses a banned claim"],"evidence_chains":["calls_to_action -> guarantee"],"next_actions":["regenerate marketing content"]}`}
	engine := newTestEngine(chat)

	out := acceptableOutput()
	out.Marketing["calls_to_action"] = []string{"We guarantee results.", "Second call", "Third call"}

	report := engine.Validate(context.Background(), out, engineDoc, 0)

	assert.False(t, report.VerificationReport.OverallPassed)
	require.NotNil(t, report.SelfCritique)
	assert.True(t, report.RetryMetadata.SelfCritiquePerformed)
	assert.Equal(t, []string{"marketing uses a banned claim"}, report.SelfCritique.Issues)
	assert.Greater(t, chat.calls, 0)
}

func TestEngineCritiqueParseFailureRecordedAsNil(t *testing.T) {
	chat := &cannedChat{content: "not json at all"}
	engine := newTestEngine(chat)

	report := engine.Validate(context.Background(), &schema.CompleteOutput{}, engineDoc, 0)

	assert.Nil(t, report.SelfCritique)
	assert.False(t, report.RetryMetadata.SelfCritiquePerformed)
}
