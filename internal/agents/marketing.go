package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

var bannedClaimPattern = regexp.MustCompile(`(?i)\b(guarantee[ds]?|cure[ds]?|testimonials?|reviews?)\b`)

func containsBannedClaim(text string) bool {
	return bannedClaimPattern.MatchString(text)
}

const marketingSystemPrompt = `You write marketing and SEO copy for a neurodiversity-affirming assessment clinic.
Build on ALL the creative material you are given. Never promise outcomes: the words "guarantee", "cure", "testimonial" and "review" are banned.
Respond with a single JSON object:
  "marketing_content": {"headlines": [...], "social_posts": [...], "email_snippets": [...], "value_propositions": [...]}
  "seo_content": {"title_tags": [...], "meta_descriptions": [...], "keywords": [...], "local_keywords": [...], "headers": [...]}`

// MarketingAgent is the fan-in agent producing marketing and SEO sections
// from the three creative outputs.
type MarketingAgent struct {
	services *Services
	log      *logger.Logger
}

func NewMarketingAgent() *MarketingAgent {
	return &MarketingAgent{log: logger.Get().With("agent", string(TypeMarketingSEO))}
}

func (a *MarketingAgent) Name() string    { return string(TypeMarketingSEO) }
func (a *MarketingAgent) Type() AgentType { return TypeMarketingSEO }

func (a *MarketingAgent) Initialize(_ context.Context, services *Services) error {
	if services == nil || services.Chat == nil {
		return errors.Wrap(errors.ErrAgentInit, "marketing agent requires a chat provider")
	}
	a.services = services
	return nil
}

// CreativesReady reports whether all three upstream creative sections have
// arrived. The graph uses this to hold marketing until the fan-in is
// complete.
func CreativesReady(outputs schema.CompleteOutput) bool {
	return outputs.Educational.Populated() &&
		outputs.Rebellion.Populated() &&
		outputs.FounderVoice.Populated()
}

func (a *MarketingAgent) Process(ctx context.Context, req Request) (*Response, error) {
	var prompt strings.Builder
	for _, name := range []string{"educational_content", "rebellion_content", "founder_voice_content"} {
		if section := req.Outputs.SectionByName(name); section.Populated() {
			fmt.Fprintf(&prompt, "%s:\n%s\n\n", name, truncate(sectionDigest(section), 8000))
		}
	}
	if prompt.Len() == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "marketing requires creative sections")
	}
	if region := regionalSummary(req.Document.RegionalContext); region != "" {
		fmt.Fprintf(&prompt, "Region for local SEO: %s\n", region)
	}

	obj, err := completeJSON(ctx, a.services, marketingSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	sections := make(map[string]schema.Section, 2)
	for _, name := range []string{"marketing_content", "seo_content"} {
		var nested map[string]json.RawMessage
		if raw, ok := obj[name]; ok {
			if err := json.Unmarshal(raw, &nested); err == nil {
				sections[name] = schema.Section(sectionFromJSON(nested))
			}
		}
	}

	return &Response{Sections: sections}, nil
}

func (a *MarketingAgent) ValidateOutput(resp *Response) error {
	if resp.Empty() {
		return errors.ErrEmptyOutput
	}
	marketing := resp.Sections["marketing_content"]
	seo := resp.Sections["seo_content"]
	if !marketing.Populated() || !seo.Populated() {
		return errors.Wrap(errors.ErrOutputInvalid, "marketing and seo sections are both required")
	}
	for _, item := range append(marketing.AllItems(), seo.AllItems()...) {
		if containsBannedClaim(item) {
			return errors.Wrapf(errors.ErrOutputInvalid, "banned marketing claim in %q", item)
		}
	}
	return nil
}

func (a *MarketingAgent) Cleanup(_ context.Context) error { return nil }
