package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/schema"
	"enlitens/pkg/logger"
)

const selfCritiqueSystemPrompt = `You are a quality auditor for clinical education content. Given a content digest and a list of detected issues, produce a remediation plan as JSON with exactly these keys:
{"issues": ["..."], "evidence_chains": ["..."], "next_actions": ["..."]}
issues restates what is wrong, evidence_chains traces each issue back to the content that caused it, next_actions lists concrete regeneration steps.`

// SelfCritic asks the LLM for a remediation plan when a document's quality
// falls below threshold. A nil result means the critique could not be
// produced; the caller records that and moves on.
type SelfCritic struct {
	chat  ai.ChatProvider
	model string
}

func NewSelfCritic(chat ai.ChatProvider, model string) *SelfCritic {
	return &SelfCritic{chat: chat, model: model}
}

// Critique summarizes the output and issues for the model and parses the
// returned plan. Errors and unparseable responses are logged and yield nil.
func (c *SelfCritic) Critique(ctx context.Context, out *schema.CompleteOutput, issues []string) *schema.SelfCritique {
	if c == nil || c.chat == nil {
		return nil
	}

	resp, err := c.chat.Chat(ctx, ai.ChatRequest{
		Model: c.model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: selfCritiqueSystemPrompt},
			{Role: ai.RoleUser, Content: critiquePrompt(out, issues)},
		},
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		logger.Warnf("self-critique request failed: %v", err)
		return nil
	}

	var critique schema.SelfCritique
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &critique); err != nil {
		logger.Warnf("self-critique response unparseable: %v", err)
		return nil
	}
	return &critique
}

func critiquePrompt(out *schema.CompleteOutput, issues []string) string {
	var b strings.Builder
	b.WriteString("Detected issues:\n")
	for _, issue := range issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	b.WriteString("\nContent digest:\n")
	b.WriteString(outputDigest(out))
	return b.String()
}

// outputDigest renders a compact per-section summary so the critique prompt
// stays well under the context budget.
func outputDigest(out *schema.CompleteOutput) string {
	if out == nil {
		return "(no content)"
	}
	var b strings.Builder
	for _, name := range requiredSections {
		sec := out.SectionByName(name)
		if !sec.Populated() {
			fmt.Fprintf(&b, "%s: empty\n", name)
			continue
		}
		fmt.Fprintf(&b, "%s:\n", name)
		for field, items := range sec {
			if len(items) == 0 {
				continue
			}
			sample := items[0]
			if len(sample) > 200 {
				sample = sample[:200] + "..."
			}
			fmt.Fprintf(&b, "  %s (%d items): %s\n", field, len(items), sample)
		}
	}
	return b.String()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
