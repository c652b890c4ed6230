package schema

// Severity grades validation warnings.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warning is a section-scoped validation finding.
type Warning struct {
	Section  string   `json:"section"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// VerificationStep is one link in the chain of verification.
type VerificationStep struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Evidence string   `json:"evidence"`
	Issues   []string `json:"issues"`
}

// VerificationReport aggregates the chain-of-verification outcome.
type VerificationReport struct {
	OverallPassed bool               `json:"overall_passed"`
	Steps         []VerificationStep `json:"steps"`
}

// CitationFailure records one statistic whose quote could not be matched.
type CitationFailure struct {
	Index      int     `json:"index"`
	Quote      string  `json:"quote"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// CitationReport summarizes citation verification for one document.
type CitationReport struct {
	Total         int               `json:"total"`
	Verified      int               `json:"verified"`
	Failed        []CitationFailure `json:"failed"`
	MissingQuotes []int             `json:"missing_quotes"`
	// WebCorroborated lists statistic indexes resolved by external search.
	WebCorroborated []int `json:"web_corroborated,omitempty"`
}

// RetryMetadata captures why a document needs (or needed) reprocessing.
type RetryMetadata struct {
	Attempt               int      `json:"attempt"`
	NeedsRetry            bool     `json:"needs_retry"`
	Triggers              []string `json:"triggers"`
	SelfCritiquePerformed bool     `json:"self_critique_performed"`
}

// SelfCritique is the LLM-generated remediation plan produced when quality
// falls below threshold.
type SelfCritique struct {
	Issues         []string `json:"issues"`
	EvidenceChains []string `json:"evidence_chains"`
	NextActions    []string `json:"next_actions"`
}

// FinalValidation is the acceptance gate.
type FinalValidation struct {
	Passed          bool     `json:"passed"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// JudgeVerdict enumerates LLM-judge outcomes for a claim.
type JudgeVerdict string

const (
	VerdictSupported       JudgeVerdict = "supported"
	VerdictMostlySupported JudgeVerdict = "mostly_supported"
	VerdictUnsupported     JudgeVerdict = "unsupported"
	VerdictContradictory   JudgeVerdict = "contradictory"
)

// Supported reports whether the verdict counts as supporting the claim.
func (v JudgeVerdict) Supported() bool {
	return v == VerdictSupported || v == VerdictMostlySupported
}

// JudgeDecision is one judge invocation's result.
type JudgeDecision struct {
	Verdict    JudgeVerdict `json:"verdict"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale"`
}

// FlaggedClaim is a claim that fell below the semantic similarity threshold
// and was routed to the judge.
type FlaggedClaim struct {
	Claim           string         `json:"claim"`
	Similarity      float64        `json:"similarity"`
	Judge           JudgeDecision  `json:"judge"`
	SelfConsistency *VotingOutcome `json:"self_consistency,omitempty"`
}

// VotingOutcome aggregates repeated judge passes over one claim.
type VotingOutcome struct {
	SupportRatio        float64         `json:"support_ratio"`
	AggregateConfidence float64         `json:"aggregate_confidence"`
	DominantVerdict     string          `json:"dominant_verdict"`
	Votes               []JudgeDecision `json:"votes"`
}

// LayeredReport is the structural/semantic/judge verification result applied
// to critical claims.
type LayeredReport struct {
	Layers        []VerificationStep `json:"layers"`
	FlaggedClaims []FlaggedClaim     `json:"flagged_claims"`
	Metrics       LayeredMetrics     `json:"metrics"`
}

// LayeredMetrics are the per-document verification metrics.
type LayeredMetrics struct {
	PrecisionAt3      float64 `json:"precision_at_3"`
	RecallAt3         float64 `json:"recall_at_3"`
	Faithfulness      float64 `json:"faithfulness"`
	HallucinationRate float64 `json:"hallucination_rate"`
}

// ValidationReport is the full validation output attached to each entry.
type ValidationReport struct {
	QualityScores      map[string]float64 `json:"quality_scores"`
	VerificationReport VerificationReport `json:"verification_report"`
	CitationReport     CitationReport     `json:"citation_report"`
	Warnings           []Warning          `json:"warnings"`
	RetryMetadata      RetryMetadata      `json:"retry_metadata"`
	SelfCritique       *SelfCritique      `json:"self_critique,omitempty"`
	LayeredReport      *LayeredReport     `json:"layered_report,omitempty"`
	FinalValidation    FinalValidation    `json:"final_validation"`
}

// HasCriticalWarning reports whether any warning is severity critical.
func (r *ValidationReport) HasCriticalWarning() bool {
	for _, w := range r.Warnings {
		if w.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
