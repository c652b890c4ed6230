package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

const scienceSystemPrompt = `You are a neuroscience research analyst. Extract the scientific content of the paper you are given.
Respond with a single JSON object with these keys:
  "findings": list of key findings, each phrased as "According to the study, ..."
  "methods": list of methods used
  "limitations": list of stated limitations
  "populations": list of studied populations
  "statistics": list of objects {"text": finding with the exact number, "quote": verbatim supporting quote from the paper, "pages": [page numbers], "section": section name}
Every statistic quote must be copied verbatim from the paper.`

// ScienceAgent extracts research findings and verbatim-cited statistics
// from the source paper.
type ScienceAgent struct {
	services *Services
	log      *logger.Logger
}

func NewScienceAgent() *ScienceAgent {
	return &ScienceAgent{log: logger.Get().With("agent", string(TypeScienceExtraction))}
}

func (a *ScienceAgent) Name() string    { return string(TypeScienceExtraction) }
func (a *ScienceAgent) Type() AgentType { return TypeScienceExtraction }

func (a *ScienceAgent) Initialize(_ context.Context, services *Services) error {
	if services == nil || services.Chat == nil {
		return errors.Wrap(errors.ErrAgentInit, "science agent requires a chat provider")
	}
	a.services = services
	return nil
}

func (a *ScienceAgent) Process(ctx context.Context, req Request) (*Response, error) {
	user := fmt.Sprintf("Document ID: %s\n\nPaper text:\n%s",
		req.Document.DocumentID, truncate(req.Document.DocumentText, 60000))
	if names := entityHighlights(req.Document.Entities, 12); len(names) > 0 {
		user += "\n\nEntities flagged by an upstream extractor (verify against the text): " + strings.Join(names, ", ")
	}

	obj, err := completeJSON(ctx, a.services, scienceSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	section := schema.Section{}
	for _, key := range []string{"findings", "methods", "limitations", "populations"} {
		if items := stringList(obj[key]); len(items) > 0 {
			section[key] = items
		}
	}

	stats := parseStatistics(obj["statistics"], req.Document.DocumentID)
	statTexts := make([]string, 0, len(stats))
	for _, s := range stats {
		statTexts = append(statTexts, s.Text)
	}
	if len(statTexts) > 0 {
		section["statistics"] = statTexts
	}

	return &Response{
		Sections:   map[string]schema.Section{"research_content": section},
		Statistics: stats,
		Blog:       &schema.BlogContent{Statistics: stats},
	}, nil
}

func (a *ScienceAgent) ValidateOutput(resp *Response) error {
	if resp.Empty() {
		return errors.ErrEmptyOutput
	}
	section := resp.Sections["research_content"]
	if len(section["findings"]) == 0 {
		return errors.Wrap(errors.ErrOutputInvalid, "research content has no findings")
	}
	return nil
}

func (a *ScienceAgent) Cleanup(_ context.Context) error { return nil }

func parseStatistics(raw json.RawMessage, documentID string) []schema.Statistic {
	if len(raw) == 0 {
		return nil
	}

	var items []struct {
		Text    string `json:"text"`
		Quote   string `json:"quote"`
		Pages   []int  `json:"pages"`
		Section string `json:"section"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	stats := make([]schema.Statistic, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		if !strings.Contains(text, "[Source:") {
			text = fmt.Sprintf("%s [Source: %s]", text, documentID)
		}
		stats = append(stats, schema.Statistic{
			Text: text,
			Citation: &schema.Citation{
				SourceID: documentID,
				Quote:    strings.TrimSpace(item.Quote),
				Pages:    item.Pages,
				Section:  item.Section,
			},
		})
	}
	return stats
}
