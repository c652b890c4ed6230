package validation

import (
	"context"
	"fmt"
	"sort"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/adapters/config"
	"enlitens/internal/adapters/embeddings"
	"enlitens/internal/adapters/websearch"
	"enlitens/internal/schema"
	"enlitens/pkg/logger"
)

// Retry trigger names recorded in the validation report.
const (
	TriggerLowQuality         = "low_quality"
	TriggerVerificationFailed = "verification_failed"
	TriggerCitationMismatch   = "citation_mismatch"
	TriggerMissingQuotes      = "missing_quotes"
)

// Engine runs the full validation stack for one document: citation audit,
// chain of verification, rubric scoring, layered claim verification,
// self-critique and the acceptance gate.
type Engine struct {
	scorer    *Scorer
	chain     *Chain
	citations *CitationVerifier
	layered   *LayeredValidator
	critic    *SelfCritic

	critiqueThreshold   float64
	acceptanceThreshold float64
}

// EngineOptions wires the engine's collaborators. Chat, Embedder, Searcher
// and Scraper are all optional; absent collaborators degrade the
// corresponding layer rather than failing validation.
type EngineOptions struct {
	Config         config.ValidationConfig
	Chat           ai.ChatProvider
	ChatModel      string
	Embedder       embeddings.Provider
	Searcher       websearch.Searcher
	Scraper        websearch.Scraper
	LocaleKeywords []string
}

// NewEngine builds the engine from config.
func NewEngine(opts EngineOptions) *Engine {
	cfg := opts.Config
	if cfg.SelfCritiqueThreshold <= 0 {
		cfg.SelfCritiqueThreshold = 0.75
	}
	if cfg.AcceptanceThreshold <= 0 {
		cfg.AcceptanceThreshold = 0.65
	}

	var searcher websearch.Searcher
	var scraper websearch.Scraper
	if cfg.WebCorroboration {
		searcher = opts.Searcher
		scraper = opts.Scraper
	}

	var judge Judge
	var critic *SelfCritic
	if opts.Chat != nil {
		judge = NewLLMJudge(opts.Chat, opts.ChatModel)
		critic = NewSelfCritic(opts.Chat, opts.ChatModel)
	}

	return &Engine{
		scorer:              NewScorer(opts.LocaleKeywords),
		chain:               NewChain(),
		citations:           NewCitationVerifier(cfg.CitationThreshold, searcher, scraper, cfg.WebCorroborationLimit),
		layered:             NewLayeredValidator(opts.Embedder, judge, cfg.SimilarityThreshold, cfg.SelfConsistencyVotes),
		critic:              critic,
		critiqueThreshold:   cfg.SelfCritiqueThreshold,
		acceptanceThreshold: cfg.AcceptanceThreshold,
	}
}

// Validate produces the full validation report for one document. attempt is
// the current retry attempt from the workflow state.
func (e *Engine) Validate(ctx context.Context, out *schema.CompleteOutput, documentText string, attempt int) schema.ValidationReport {
	if out == nil {
		out = &schema.CompleteOutput{}
	}

	citationReport := e.citations.Verify(ctx, out.Blog.Statistics, documentText)
	verification := e.chain.Run(out)

	scores, warnings := e.scorer.Score(ScoreInput{
		Output:             out,
		Citations:          citationReport,
		VerificationPassed: verification.OverallPassed,
	})
	overall := scores["overall_quality"]

	for _, step := range verification.Steps {
		if step.Passed {
			continue
		}
		for _, issue := range step.Issues {
			warnings = append(warnings, schema.Warning{
				Section:  step.Name,
				Message:  issue,
				Severity: schema.SeverityWarning,
			})
		}
	}

	layered := e.layered.Validate(ctx, out, documentText)

	report := schema.ValidationReport{
		QualityScores:      scores,
		VerificationReport: verification,
		CitationReport:     citationReport,
		Warnings:           warnings,
		LayeredReport:      layered,
	}

	triggers := collectTriggers(&report, overall, e.acceptanceThreshold)

	critiqueNeeded := overall < e.critiqueThreshold ||
		!verification.OverallPassed ||
		len(citationReport.Failed) > 0
	if critiqueNeeded {
		report.SelfCritique = e.critic.Critique(ctx, out, triggerIssues(&report, triggers))
	}

	passed := overall >= e.acceptanceThreshold &&
		verification.OverallPassed &&
		len(citationReport.Failed) == 0 &&
		!report.HasCriticalWarning()

	report.FinalValidation = schema.FinalValidation{
		Passed:          passed,
		Recommendations: recommendations(scores),
	}
	report.RetryMetadata = schema.RetryMetadata{
		Attempt:               attempt,
		NeedsRetry:            report.HasCriticalWarning() || !passed,
		Triggers:              triggers,
		SelfCritiquePerformed: report.SelfCritique != nil,
	}

	logger.Infof("validation complete: overall=%.2f passed=%v triggers=%v", overall, passed, triggers)
	return report
}

// collectTriggers derives retry trigger names from the report.
func collectTriggers(report *schema.ValidationReport, overall, acceptance float64) []string {
	var triggers []string
	if overall < acceptance {
		triggers = append(triggers, TriggerLowQuality)
	}
	if !report.VerificationReport.OverallPassed {
		triggers = append(triggers, TriggerVerificationFailed)
	}
	if len(report.CitationReport.Failed) > 0 {
		triggers = append(triggers, TriggerCitationMismatch)
	}
	if len(report.CitationReport.MissingQuotes) > 0 {
		triggers = append(triggers, TriggerMissingQuotes)
	}

	critical := make(map[string]bool)
	for _, w := range report.Warnings {
		if w.Severity == schema.SeverityCritical && !critical[w.Section] {
			critical[w.Section] = true
			triggers = append(triggers, "critical:"+w.Section)
		}
	}
	return triggers
}

// triggerIssues expands trigger names into human-readable issues for the
// self-critique prompt.
func triggerIssues(report *schema.ValidationReport, triggers []string) []string {
	issues := append([]string{}, triggers...)
	for _, step := range report.VerificationReport.Steps {
		issues = append(issues, step.Issues...)
	}
	for _, failure := range report.CitationReport.Failed {
		issues = append(issues, fmt.Sprintf("statistic %d: %s", failure.Index, failure.Reason))
	}
	return issues
}

// recommendations names the rubrics that scored lowest so retries know where
// to focus.
func recommendations(scores map[string]float64) []string {
	type weak struct {
		rubric string
		score  float64
	}
	var low []weak
	for rubric, score := range scores {
		if rubric == "overall_quality" || score >= 0.6 {
			continue
		}
		low = append(low, weak{rubric: rubric, score: score})
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].score != low[j].score {
			return low[i].score < low[j].score
		}
		return low[i].rubric < low[j].rubric
	})

	var recs []string
	for _, item := range low {
		recs = append(recs, fmt.Sprintf("improve %s (%.2f)", item.rubric, item.score))
	}
	return recs
}
