package validation

import (
	"fmt"

	"enlitens/internal/schema"
)

// depthTarget is the per-string character length at which educational_depth
// saturates at 1.0.
const depthTarget = 180.0

// neutralFactChecking is used when a document carries no statistics at all.
const neutralFactChecking = 0.75

// Scorer computes the per-rubric quality scores for a merged agent output.
type Scorer struct {
	localeKeywords []string
}

// NewScorer builds a scorer. A nil or empty locale list falls back to the
// default regional lexicon.
func NewScorer(localeKeywords []string) *Scorer {
	if len(localeKeywords) == 0 {
		localeKeywords = defaultLocaleKeywords
	}
	return &Scorer{localeKeywords: localeKeywords}
}

// ScoreInput bundles everything quality scoring depends on besides the
// content itself.
type ScoreInput struct {
	Output             *schema.CompleteOutput
	Citations          schema.CitationReport
	VerificationPassed bool
}

// Score returns rubric scores in [0,1] plus warnings for unmet minimums.
// overall_quality is the mean of every other rubric.
func (s *Scorer) Score(in ScoreInput) (map[string]float64, []schema.Warning) {
	out := in.Output
	if out == nil {
		out = &schema.CompleteOutput{}
	}

	scores := make(map[string]float64)
	var warnings []schema.Warning

	scores["educational_coverage"] = scoreCoverage(out.Educational, requiredEducationalFields)
	scores["educational_depth"] = scoreDepth(out.Educational)
	scores["aha_alignment"] = scoreKeywordFraction(out.Educational.AllItems(), predictionErrorKeywords)

	eduMin, eduWarn := scoreMinimums("educational_content", out.Educational, educationalMinimums)
	scores["educational_minimums"] = eduMin
	warnings = append(warnings, eduWarn...)

	scores["marketing_effectiveness"] = scoreCoverage(out.Marketing, requiredMarketingFields)
	mktMin, mktWarn := scoreMinimums("marketing_content", out.Marketing, marketingMinimums)
	scores["marketing_minimums"] = mktMin
	warnings = append(warnings, mktWarn...)

	scores["seo_readiness"] = scoreCoverage(out.SEO, requiredSEOFields)
	seoMin, seoWarn := scoreMinimums("seo_content", out.SEO, seoMinimums)
	scores["seo_minimums"] = seoMin
	warnings = append(warnings, seoWarn...)

	localized := append(out.Marketing.AllItems(), out.SEO.AllItems()...)
	localized = append(localized, out.FounderVoice.AllItems()...)
	scores["localization"] = scoreKeywordFraction(localized, s.localeKeywords)

	scores["founder_voice_authenticity"] = scoreKeywordFraction(out.FounderVoice.AllItems(), founderSignaturePhrases)
	scores["rebellion_alignment"] = scoreCoverage(out.Rebellion, requiredRebellionFields)
	scores["completeness"] = scoreCompleteness(out)

	scores["fact_checking"] = factCheckingScore(in.Citations)
	if in.VerificationPassed {
		scores["verification_chain"] = 1.0
	} else {
		scores["verification_chain"] = 0.0
	}

	var sum float64
	for _, v := range scores {
		sum += v
	}
	scores["overall_quality"] = sum / float64(len(scores))

	return scores, warnings
}

// factCheckingScore derives the fact_checking rubric from citation results.
func factCheckingScore(report schema.CitationReport) float64 {
	if report.Total == 0 {
		return neutralFactChecking
	}
	score := float64(report.Total-len(report.Failed)-len(report.MissingQuotes)) / float64(report.Total)
	if score < 0 {
		return 0
	}
	return score
}

func scoreCoverage(sec schema.Section, required []string) float64 {
	if len(required) == 0 {
		return 0
	}
	populated := 0
	for _, field := range required {
		if len(sec[field]) > 0 {
			populated++
		}
	}
	return float64(populated) / float64(len(required))
}

func scoreDepth(sec schema.Section) float64 {
	items := sec.AllItems()
	if len(items) == 0 {
		return 0
	}
	var total int
	for _, item := range items {
		total += len(item)
	}
	mean := float64(total) / float64(len(items))
	score := mean / depthTarget
	if score > 1 {
		return 1
	}
	return score
}

func scoreKeywordFraction(items []string, keywords []string) float64 {
	if len(items) == 0 {
		return 0
	}
	hits := 0
	for _, item := range items {
		if containsAny(item, keywords) {
			hits++
		}
	}
	return float64(hits) / float64(len(items))
}

func scoreMinimums(section string, sec schema.Section, mins []fieldMinimum) (float64, []schema.Warning) {
	if len(mins) == 0 {
		return 0, nil
	}
	if !sec.Populated() {
		return 0, []schema.Warning{{
			Section:  section,
			Message:  "Section missing entirely",
			Severity: schema.SeverityCritical,
		}}
	}
	met := 0
	var warnings []schema.Warning
	for _, fm := range mins {
		count := len(sec[fm.Field])
		if count >= fm.Min {
			met++
			continue
		}
		severity := schema.SeverityWarning
		if fm.Critical {
			severity = schema.SeverityCritical
		}
		warnings = append(warnings, schema.Warning{
			Section:  section,
			Message:  fmt.Sprintf("%s has %d items, minimum is %d", fm.Field, count, fm.Min),
			Severity: severity,
		})
	}
	return float64(met) / float64(len(mins)), warnings
}

func scoreCompleteness(out *schema.CompleteOutput) float64 {
	populated := 0
	for _, name := range requiredSections {
		if sec := out.SectionByName(name); sec.Populated() {
			populated++
		}
	}
	return float64(populated) / float64(len(requiredSections))
}
