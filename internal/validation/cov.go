package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"enlitens/internal/schema"
)

var (
	bannedClaimPattern = regexp.MustCompile(`(?i)\b(guarantee[ds]?|cure[ds]?|testimonials?|reviews?)\b`)
	keywordPattern     = regexp.MustCompile(`[a-zA-Z]{4,}`)
)

// Chain runs the sequential chain-of-verification checks over a merged
// output: research grounding, clinical alignment, marketing compliance and
// self-consistency evidence. Every step runs even when an earlier one fails.
type Chain struct{}

// NewChain builds the verification chain.
func NewChain() *Chain {
	return &Chain{}
}

// Run executes all steps in order. The report passes only when every step
// does.
func (c *Chain) Run(out *schema.CompleteOutput) schema.VerificationReport {
	if out == nil {
		out = &schema.CompleteOutput{}
	}
	steps := []schema.VerificationStep{
		c.checkResearchGrounding(out),
		c.checkClinicalAlignment(out),
		c.checkMarketingCompliance(out),
		c.checkSelfConsistency(out),
	}
	overall := true
	for _, step := range steps {
		if !step.Passed {
			overall = false
		}
	}
	return schema.VerificationReport{OverallPassed: overall, Steps: steps}
}

func (c *Chain) checkResearchGrounding(out *schema.CompleteOutput) schema.VerificationStep {
	statistics := out.Research["statistics"]
	findings := out.Research["findings"]

	if len(statistics) == 0 && len(findings) == 0 {
		return schema.VerificationStep{
			Name:     "research_grounding",
			Passed:   false,
			Evidence: "No research statistics or findings available for verification.",
			Issues:   []string{"research content missing, cannot validate grounding"},
		}
	}

	grounded := 0
	for _, item := range statistics {
		if strings.Contains(item, "[Source:") && strings.Contains(item, "According to") {
			grounded++
		}
	}
	coverage := 1.0
	if len(statistics) > 0 {
		coverage = float64(grounded) / float64(len(statistics))
	}

	passed := coverage >= 0.7 && len(findings) > 0
	var issues []string
	if coverage < 0.7 {
		issues = append(issues, fmt.Sprintf("only %d/%d statistics include the citation pattern", grounded, len(statistics)))
	}
	if len(findings) == 0 {
		issues = append(issues, "findings section empty, unable to cross-reference claims")
	}

	evidence := "No statistics provided."
	if len(statistics) > 0 {
		evidence = fmt.Sprintf("Citation coverage %.0f%% across %d statistics.", coverage*100, len(statistics))
	}

	return schema.VerificationStep{Name: "research_grounding", Passed: passed, Evidence: evidence, Issues: issues}
}

func (c *Chain) checkClinicalAlignment(out *schema.CompleteOutput) schema.VerificationStep {
	researchTerms := extractKeywords(out.Research["implications"])
	clinicalTerms := extractKeywords(out.Clinical["interventions"])

	var shared []string
	for term := range researchTerms {
		if clinicalTerms[term] {
			shared = append(shared, term)
		}
	}
	sort.Strings(shared)

	passed := len(shared) > 0
	evidence := "No shared terminology detected."
	var issues []string
	if passed {
		sample := shared
		if len(sample) > 5 {
			sample = sample[:5]
		}
		evidence = "Shared terminology: " + strings.Join(sample, ", ")
	} else {
		issues = append(issues, "clinical interventions do not reference research implications by shared terminology")
	}

	return schema.VerificationStep{Name: "clinical_alignment", Passed: passed, Evidence: evidence, Issues: issues}
}

func (c *Chain) checkMarketingCompliance(out *schema.CompleteOutput) schema.VerificationStep {
	var flagged []string
	for field, values := range out.Marketing {
		for _, value := range values {
			if bannedClaimPattern.MatchString(value) {
				flagged = append(flagged, field+": "+value)
			}
		}
	}
	sort.Strings(flagged)

	passed := len(flagged) == 0
	evidence := "No compliance issues found."
	if !passed {
		sample := flagged
		if len(sample) > 3 {
			sample = sample[:3]
		}
		evidence = "Flagged content: " + strings.Join(sample, "; ")
	}

	return schema.VerificationStep{Name: "marketing_compliance", Passed: passed, Evidence: evidence, Issues: flagged}
}

func (c *Chain) checkSelfConsistency(out *schema.CompleteOutput) schema.VerificationStep {
	meta := out.SelfConsistency
	if meta == nil {
		return schema.VerificationStep{
			Name:     "self_consistency_evidence",
			Passed:   false,
			Evidence: "No self-consistency metadata.",
			Issues:   []string{"self-consistency metadata unavailable or insufficient"},
		}
	}

	passed := meta.NumSamples >= 2 && meta.VoteThreshold >= 1
	var issues []string
	if !passed {
		issues = append(issues, "self-consistency metadata unavailable or insufficient")
	}
	evidence := fmt.Sprintf("%d samples evaluated with threshold %d.", meta.NumSamples, meta.VoteThreshold)

	return schema.VerificationStep{Name: "self_consistency_evidence", Passed: passed, Evidence: evidence, Issues: issues}
}

func extractKeywords(values []string) map[string]bool {
	keywords := make(map[string]bool)
	for _, value := range values {
		for _, token := range keywordPattern.FindAllString(value, -1) {
			keywords[strings.ToLower(token)] = true
		}
	}
	return keywords
}
