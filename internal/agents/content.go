package agents

import (
	"context"
	"fmt"
	"strings"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

const educationalSystemPrompt = `You write educational material about neuroscience for autistic and ADHD adults.
Build on the clinical synthesis you are given. Favor "aha moment" framing: surprise the reader by correcting a wrong intuition, then explain the prediction error.
Respond with a single JSON object, every key a list of strings:
  "explanations" (at least 5), "examples" (at least 5), "analogies" (at least 5),
  "definitions" (at least 5), "processes" (at least 5), "comparisons" (at least 5),
  "visual_aids" (at least 4 descriptions of diagrams), "learning_objectives" (at least 5)`

const rebellionSystemPrompt = `You write myth-busting content challenging deficit-based framings of neurodivergence.
Ground every claim in the clinical synthesis you are given. Be direct, never cruel.
Respond with a single JSON object:
  "myths_challenged": deficit-framing myths the research contradicts
  "counter_narratives": evidence-backed reframings
  "calls_to_action": what readers can do differently`

const founderVoiceSystemPrompt = `You write in the clinic founder's voice: first person, direct, warm, occasionally profane, always on the client's side.
Build on the clinical synthesis you are given.
Respond with a single JSON object:
  "personal_takes": first-person reactions to the findings
  "client_stories": anonymized composite vignettes the findings explain
  "signature_phrases": short quotable lines in the founder's voice`

// contentSpec describes one creative content agent.
type contentSpec struct {
	agentType    AgentType
	wireName     string
	systemPrompt string
	// requiredFields must be non-empty for the output to validate.
	requiredFields []string
}

var contentSpecs = map[AgentType]contentSpec{
	TypeEducational: {
		agentType:      TypeEducational,
		wireName:       "educational_content",
		systemPrompt:   educationalSystemPrompt,
		requiredFields: []string{"explanations", "learning_objectives"},
	},
	TypeRebellion: {
		agentType:      TypeRebellion,
		wireName:       "rebellion_content",
		systemPrompt:   rebellionSystemPrompt,
		requiredFields: []string{"myths_challenged", "counter_narratives"},
	},
	TypeFounderVoice: {
		agentType:      TypeFounderVoice,
		wireName:       "founder_voice_content",
		systemPrompt:   founderVoiceSystemPrompt,
		requiredFields: []string{"personal_takes"},
	},
}

// ContentAgent produces one creative section (educational, rebellion or
// founder voice) from the clinical synthesis.
type ContentAgent struct {
	spec     contentSpec
	services *Services
	log      *logger.Logger
}

// NewContentAgent creates the creative agent for the given type.
func NewContentAgent(agentType AgentType) (*ContentAgent, error) {
	spec, ok := contentSpecs[agentType]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "no content spec for agent %s", agentType)
	}
	return &ContentAgent{
		spec: spec,
		log:  logger.Get().With("agent", string(agentType)),
	}, nil
}

func (a *ContentAgent) Name() string    { return string(a.spec.agentType) }
func (a *ContentAgent) Type() AgentType { return a.spec.agentType }

func (a *ContentAgent) Initialize(_ context.Context, services *Services) error {
	if services == nil || services.Chat == nil {
		return errors.Wrapf(errors.ErrAgentInit, "%s agent requires a chat provider", a.spec.agentType)
	}
	a.services = services
	return nil
}

func (a *ContentAgent) Process(ctx context.Context, req Request) (*Response, error) {
	clinical := req.Outputs.SectionByName("clinical_content")
	research := req.Outputs.SectionByName("research_content")
	if !clinical.Populated() && !research.Populated() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "%s requires upstream synthesis", a.spec.agentType)
	}

	var prompt strings.Builder
	if clinical.Populated() {
		fmt.Fprintf(&prompt, "Clinical synthesis:\n%s\n", truncate(sectionDigest(clinical), 12000))
	}
	if research.Populated() {
		fmt.Fprintf(&prompt, "\nResearch findings:\n%s\n", truncate(joinItems(research["findings"]), 8000))
	}
	if a.spec.agentType == TypeFounderVoice {
		if insights := insightSummary(req.Document.FounderInsights); insights != "" {
			fmt.Fprintf(&prompt, "\nFounder background notes:\n%s\n", truncate(insights, 4000))
		}
	}

	obj, err := completeJSON(ctx, a.services, a.spec.systemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	return &Response{
		Sections: map[string]schema.Section{
			a.spec.wireName: schema.Section(sectionFromJSON(obj)),
		},
	}, nil
}

func (a *ContentAgent) ValidateOutput(resp *Response) error {
	if resp.Empty() {
		return errors.ErrEmptyOutput
	}
	section := resp.Sections[a.spec.wireName]
	for _, field := range a.spec.requiredFields {
		if len(section[field]) == 0 {
			return errors.Wrapf(errors.ErrOutputInvalid, "%s missing required field %q", a.spec.wireName, field)
		}
	}
	return nil
}

func (a *ContentAgent) Cleanup(_ context.Context) error { return nil }

func sectionDigest(section schema.Section) string {
	var b strings.Builder
	for key, items := range section {
		fmt.Fprintf(&b, "%s:\n%s", key, joinItems(items))
	}
	return b.String()
}
