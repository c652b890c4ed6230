package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/adapters/embeddings"
	"enlitens/internal/schema"
	"enlitens/pkg/logger"
)

// Judge labels a claim against source text. strict asks for a conservative
// reading where uncertainty counts against the claim.
type Judge interface {
	Evaluate(ctx context.Context, claim, source string, strict bool) schema.JudgeDecision
}

// LLMJudge routes claims to the chat provider and falls back to lexical
// overlap when the call fails or the verdict is unparseable.
type LLMJudge struct {
	chat  ai.ChatProvider
	model string
}

func NewLLMJudge(chat ai.ChatProvider, model string) *LLMJudge {
	return &LLMJudge{chat: chat, model: model}
}

func (j *LLMJudge) Evaluate(ctx context.Context, claim, source string, strict bool) schema.JudgeDecision {
	if strings.TrimSpace(claim) == "" {
		return schema.JudgeDecision{Verdict: schema.VerdictUnsupported, Rationale: "empty claim"}
	}
	if j == nil || j.chat == nil {
		return heuristicDecision(claim, source)
	}

	instruction := "You are a meticulous scientific fact checker. Label the claim as supported, mostly_supported, unsupported, or contradictory compared to the provided source text."
	if strict {
		instruction += " Be conservative and flag uncertainties as unsupported."
	}
	temperature := 0.4
	if strict {
		temperature = 0.2
	}

	resp, err := j.chat.Chat(ctx, ai.ChatRequest{
		Model: j.model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: instruction + ` Respond with JSON: {"verdict": "...", "confidence": 0.0, "rationale": "..."}`},
			{Role: ai.RoleUser, Content: fmt.Sprintf("Claim:\n%s\n\nSource text:\n%s", claim, source)},
		},
		Temperature: temperature,
		JSONMode:    true,
	})
	if err != nil {
		logger.Warnf("judge call failed, falling back to lexical overlap: %v", err)
		return heuristicDecision(claim, source)
	}

	var decision schema.JudgeDecision
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &decision); err != nil || decision.Verdict == "" {
		logger.Warnf("judge verdict unparseable, falling back to lexical overlap")
		return heuristicDecision(claim, source)
	}
	return decision
}

// heuristicDecision grades a claim by token overlap with the source.
func heuristicDecision(claim, source string) schema.JudgeDecision {
	overlap := tokenOverlap(claim, source)
	switch {
	case overlap > 0.6:
		return schema.JudgeDecision{Verdict: schema.VerdictSupported, Confidence: overlap, Rationale: "high lexical overlap with source text"}
	case overlap > 0.4:
		return schema.JudgeDecision{Verdict: schema.VerdictMostlySupported, Confidence: overlap, Rationale: "moderate lexical overlap"}
	}
	return schema.JudgeDecision{Verdict: schema.VerdictUnsupported, Confidence: overlap, Rationale: "low overlap, flagged for review"}
}

func tokenOverlap(a, b string) float64 {
	tokensA := normalizeTokens(a)
	tokensB := normalizeTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	shared := 0
	for token := range tokensA {
		if tokensB[token] {
			shared++
		}
	}
	smaller := len(tokensA)
	if len(tokensB) < smaller {
		smaller = len(tokensB)
	}
	return float64(shared) / float64(smaller)
}

func normalizeTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.Fields(text) {
		token := strings.ToLower(strings.Trim(raw, ".,;:!?()[]{}\"'`"))
		if token != "" {
			tokens[token] = true
		}
	}
	return tokens
}

// LayeredValidator runs structural, semantic and judge layers over a
// document's research claims.
type LayeredValidator struct {
	embedder     embeddings.Provider
	judge        Judge
	simThreshold float64
	votes        int
	enableVoting bool
}

// NewLayeredValidator builds the pipeline. embedder may be nil; semantic
// similarity then degrades to lexical overlap. votes <= 1 disables
// self-consistency voting.
func NewLayeredValidator(embedder embeddings.Provider, judge Judge, simThreshold float64, votes int) *LayeredValidator {
	if simThreshold <= 0 {
		simThreshold = 0.68
	}
	if judge == nil {
		judge = &LLMJudge{}
	}
	return &LayeredValidator{
		embedder:     embedder,
		judge:        judge,
		simThreshold: simThreshold,
		votes:        votes,
		enableVoting: votes > 1,
	}
}

// Validate runs the layers and computes the faithfulness metrics. Claims are
// the research findings; flagged claims are those below the similarity
// threshold, each routed to the judge.
func (l *LayeredValidator) Validate(ctx context.Context, out *schema.CompleteOutput, documentText string) *schema.LayeredReport {
	if out == nil {
		out = &schema.CompleteOutput{}
	}
	report := &schema.LayeredReport{}

	report.Layers = append(report.Layers, l.structuralLayer(out, documentText))

	claims := out.Research["findings"]
	similarities := l.claimSimilarities(ctx, claims, documentText)

	semantic, flaggedIdx := l.semanticLayer(claims, similarities)
	report.Layers = append(report.Layers, semantic)

	for _, idx := range flaggedIdx {
		claim := claims[idx]
		flagged := schema.FlaggedClaim{
			Claim:      claim,
			Similarity: similarities[idx],
			Judge:      l.judge.Evaluate(ctx, claim, documentText, false),
		}
		if l.enableVoting {
			outcome := l.vote(ctx, claim, documentText)
			flagged.SelfConsistency = &outcome
		}
		report.FlaggedClaims = append(report.FlaggedClaims, flagged)
	}

	report.Metrics = layeredMetrics(claims, report.FlaggedClaims)
	return report
}

func (l *LayeredValidator) structuralLayer(out *schema.CompleteOutput, documentText string) schema.VerificationStep {
	var issues []string
	var components []float64

	if len(documentText) < 500 {
		issues = append(issues, "insufficient source text")
		components = append(components, 0)
	} else {
		components = append(components, 1)
	}

	findings := out.Research["findings"]
	switch {
	case len(findings) >= 3:
		components = append(components, 1)
	case len(findings) > 0:
		issues = append(issues, "fewer than three findings detected")
		components = append(components, 0.5)
	default:
		issues = append(issues, "fewer than three findings detected")
		components = append(components, 0)
	}

	if out.Clinical.Populated() {
		components = append(components, 1)
	} else {
		issues = append(issues, "clinical content missing")
		components = append(components, 0)
	}

	if len(out.Blog.Statistics) > 0 {
		components = append(components, 1)
	} else {
		issues = append(issues, "no citation-bearing statistics")
		components = append(components, 0.2)
	}

	var sum float64
	for _, c := range components {
		sum += c
	}
	score := sum / float64(len(components))

	return schema.VerificationStep{
		Name:     "structural_rules",
		Passed:   score >= 0.7,
		Evidence: fmt.Sprintf("structural score %.2f across %d checks", score, len(components)),
		Issues:   issues,
	}
}

// claimSimilarities embeds the source and each claim and returns cosine
// similarities. Without an embedder it falls back to token overlap.
func (l *LayeredValidator) claimSimilarities(ctx context.Context, claims []string, documentText string) []float64 {
	similarities := make([]float64, len(claims))
	if len(claims) == 0 {
		return similarities
	}

	if l.embedder == nil {
		for i, claim := range claims {
			similarities[i] = tokenOverlap(claim, documentText)
		}
		return similarities
	}

	texts := append([]string{documentText}, claims...)
	vectors, err := l.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		logger.Warnf("semantic layer embedding failed, using lexical overlap: %v", err)
		for i, claim := range claims {
			similarities[i] = tokenOverlap(claim, documentText)
		}
		return similarities
	}

	source := vectors[0]
	for i := range claims {
		similarities[i] = cosine(source, vectors[i+1])
	}
	return similarities
}

func (l *LayeredValidator) semanticLayer(claims []string, similarities []float64) (schema.VerificationStep, []int) {
	var flagged []int
	var issues []string
	var sum float64
	for i, sim := range similarities {
		sum += sim
		if sim < l.simThreshold {
			flagged = append(flagged, i)
			issues = append(issues, fmt.Sprintf("claim below similarity threshold (%.2f): %s", sim, claims[i]))
		}
	}

	avg := 0.0
	if len(similarities) > 0 {
		avg = sum / float64(len(similarities))
	}

	return schema.VerificationStep{
		Name:     "semantic_similarity",
		Passed:   len(flagged) == 0,
		Evidence: fmt.Sprintf("mean similarity %.2f over %d claims", avg, len(claims)),
		Issues:   issues,
	}, flagged
}

// vote runs repeated judge passes, alternating strict mode, and aggregates
// the verdicts.
func (l *LayeredValidator) vote(ctx context.Context, claim, source string) schema.VotingOutcome {
	outcome := schema.VotingOutcome{}
	supported := 0
	var confidenceSum float64
	for i := 0; i < l.votes; i++ {
		decision := l.judge.Evaluate(ctx, claim, source, i%2 == 1)
		outcome.Votes = append(outcome.Votes, decision)
		confidenceSum += decision.Confidence
		if decision.Verdict.Supported() {
			supported++
		}
	}

	outcome.SupportRatio = float64(supported) / float64(l.votes)
	outcome.AggregateConfidence = confidenceSum / float64(l.votes)
	switch {
	case outcome.SupportRatio > 0.66:
		outcome.DominantVerdict = "supported"
	case outcome.SupportRatio < 0.34:
		outcome.DominantVerdict = "unsupported"
	default:
		outcome.DominantVerdict = "ambiguous"
	}
	return outcome
}

func layeredMetrics(claims []string, flagged []schema.FlaggedClaim) schema.LayeredMetrics {
	if len(claims) == 0 {
		return schema.LayeredMetrics{PrecisionAt3: 1, RecallAt3: 1, Faithfulness: 1}
	}

	flaggedSet := make(map[string]bool, len(flagged))
	for _, f := range flagged {
		flaggedSet[f.Claim] = true
	}

	topK := claims
	if len(topK) > 3 {
		topK = topK[:3]
	}
	hits := 0
	for _, claim := range topK {
		if !flaggedSet[claim] {
			hits++
		}
	}
	precision := float64(hits) / float64(len(topK))

	var protected []string
	for _, claim := range claims {
		if !flaggedSet[claim] {
			protected = append(protected, claim)
		}
	}
	recall := 0.0
	if len(protected) > 0 {
		k := 3
		if len(claims) < k {
			k = len(claims)
		}
		top := len(protected)
		if top > 3 {
			top = 3
		}
		recall = float64(top) / float64(k)
	}

	rate := float64(len(flagged)) / float64(len(claims))
	faithfulness := 1 - rate
	if faithfulness < 0 {
		faithfulness = 0
	}

	return schema.LayeredMetrics{
		PrecisionAt3:      precision,
		RecallAt3:         recall,
		Faithfulness:      faithfulness,
		HallucinationRate: rate,
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
