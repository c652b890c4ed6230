package agents

import (
	"context"
	"fmt"
	"strings"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

const clinicalSystemPrompt = `You are a clinician translating neuroscience research into practice guidance for a neurodiversity-affirming assessment clinic.
Ground every statement in the research findings and supporting context you are given.
Respond with a single JSON object:
  "implications": clinical implications of the findings
  "assessment_relevance": how the findings change assessment practice
  "recommendations": concrete recommendations for clinicians
  "client_communication": how to explain the findings to clients in plain language`

// ClinicalAgent synthesizes research output and retrieved context into
// clinical guidance. It runs after science extraction and context RAG.
type ClinicalAgent struct {
	services *Services
	log      *logger.Logger
}

func NewClinicalAgent() *ClinicalAgent {
	return &ClinicalAgent{log: logger.Get().With("agent", string(TypeClinicalSynthesis))}
}

func (a *ClinicalAgent) Name() string    { return string(TypeClinicalSynthesis) }
func (a *ClinicalAgent) Type() AgentType { return TypeClinicalSynthesis }

func (a *ClinicalAgent) Initialize(_ context.Context, services *Services) error {
	if services == nil || services.Chat == nil {
		return errors.Wrap(errors.ErrAgentInit, "clinical agent requires a chat provider")
	}
	a.services = services
	return nil
}

func (a *ClinicalAgent) Process(ctx context.Context, req Request) (*Response, error) {
	research := req.Outputs.SectionByName("research_content")
	if !research.Populated() {
		return nil, errors.Wrap(errors.ErrInvalidInput, "clinical synthesis requires research content")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Research findings:\n%s\n", joinItems(research["findings"]))
	if stats := research["statistics"]; len(stats) > 0 {
		fmt.Fprintf(&prompt, "\nKey statistics:\n%s\n", joinItems(stats))
	}
	if context, ok := req.Outputs.Extra["context_content"]; ok {
		if passages := context["supporting_context"]; len(passages) > 0 {
			fmt.Fprintf(&prompt, "\nSupporting context from prior literature:\n%s\n",
				truncate(joinItems(passages), 12000))
		}
	}
	if insights := insightSummary(req.Document.ClientInsights); insights != "" {
		fmt.Fprintf(&prompt, "\nClient insights:\n%s\n", truncate(insights, 4000))
	}

	obj, err := completeJSON(ctx, a.services, clinicalSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	return &Response{
		Sections: map[string]schema.Section{
			"clinical_content": schema.Section(sectionFromJSON(obj)),
		},
	}, nil
}

func (a *ClinicalAgent) ValidateOutput(resp *Response) error {
	if resp.Empty() {
		return errors.ErrEmptyOutput
	}
	section := resp.Sections["clinical_content"]
	if len(section["implications"]) == 0 && len(section["recommendations"]) == 0 {
		return errors.Wrap(errors.ErrOutputInvalid, "clinical content lacks implications and recommendations")
	}
	return nil
}

func (a *ClinicalAgent) Cleanup(_ context.Context) error { return nil }

func joinItems(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}
