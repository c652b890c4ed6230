package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

// completeJSON sends a system/user prompt pair in JSON mode and returns the
// raw object. Markdown fences around the JSON are tolerated.
func completeJSON(ctx context.Context, services *Services, system, user string) (map[string]json.RawMessage, error) {
	if services.Chat == nil {
		return nil, errors.Wrap(errors.ErrAgentInit, "chat provider not configured")
	}

	resp, err := services.Chat.Chat(ctx, ai.ChatRequest{
		Model: services.ChatModel,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: system},
			{Role: ai.RoleUser, Content: user},
		},
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	raw := stripFences(resp.Content)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, errors.Wrapf(errors.ErrOutputInvalid, "model returned non-JSON output: %v", err)
	}
	return obj, nil
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

// stringList coerces a JSON value into a list of strings. Scalars become a
// single-element list; non-string items are rendered with %v.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					out = append(out, v)
				}
			case nil:
			default:
				out = append(out, fmt.Sprintf("%v", v))
			}
		}
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	}
	return []string{string(raw)}
}

// sectionFromJSON converts a raw object into a Section, coercing every
// field into a string list. Unknown keys are preserved.
func sectionFromJSON(obj map[string]json.RawMessage) map[string][]string {
	section := make(map[string][]string, len(obj))
	for key, raw := range obj {
		if items := stringList(raw); len(items) > 0 {
			section[key] = items
		}
	}
	return section
}

// truncate limits prompt payloads to avoid blowing model context.
func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "\n[... truncated ...]"
}

// entityHighlights flattens the labeled entity families into the most
// confident distinct span texts, capped at limit.
func entityHighlights(entities map[string][]schema.Entity, limit int) []string {
	if len(entities) == 0 || limit <= 0 {
		return nil
	}

	var all []schema.Entity
	for _, spans := range entities {
		all = append(all, spans...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Confidence > all[j].Confidence
	})

	seen := make(map[string]bool, limit)
	var out []string
	for _, e := range all {
		key := strings.ToLower(strings.TrimSpace(e.Text))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(e.Text))
		if len(out) == limit {
			break
		}
	}
	return out
}

// insightSummary renders an insight map as "key: value" lines, keys in
// sorted order so prompts stay cache-stable.
func insightSummary(insights map[string]interface{}) string {
	if len(insights) == 0 {
		return ""
	}

	keys := make([]string, 0, len(insights))
	for k := range insights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := insights[k].(type) {
		case string:
			if v == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		case []interface{}:
			items := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					items = append(items, s)
				}
			}
			if len(items) > 0 {
				fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(items, "; "))
			}
		default:
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}
	return strings.TrimSpace(b.String())
}

// regionalSummary flattens the regional context map into a single prompt
// line, keys in sorted order so prompts stay cache-stable.
func regionalSummary(regional map[string]interface{}) string {
	if len(regional) == 0 {
		return ""
	}

	keys := make([]string, 0, len(regional))
	for k := range regional {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := regional[k].(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	return strings.Join(parts, ", ")
}
