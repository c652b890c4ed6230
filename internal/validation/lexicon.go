package validation

import "strings"

// predictionErrorKeywords mark content that reframes a reader's prior
// assumption. The aha_alignment rubric counts items carrying at least one.
var predictionErrorKeywords = []string{
	"surpris",
	"unexpected",
	"contrary to",
	"counterintuitive",
	"counter-intuitive",
	"myth",
	"misconception",
	"turns out",
	"actually",
	"assumed",
	"assumption",
	"reframe",
	"rethink",
	"not broken",
	"prediction error",
}

// founderSignaturePhrases are fragments of the founder persona's key phrases,
// lowered and shortened so paraphrases still match.
var founderSignaturePhrases = []string{
	"brain isn't broken",
	"it's adapting",
	"traditional therapy",
	"heal the brain",
	"neuroscience shows",
	"not disordered",
	"responding to your environment",
	"real therapy for real people",
	"real talk",
}

// defaultLocaleKeywords anchor content to the practice's home region when the
// document context supplies no locale of its own.
var defaultLocaleKeywords = []string{
	"st. louis",
	"saint louis",
	"st louis",
	"stl",
	"missouri",
	"midwest",
}

// fieldMinimum is a per-field floor on item count. Critical fields raise
// severity-critical warnings when unmet.
type fieldMinimum struct {
	Field    string
	Min      int
	Critical bool
}

var educationalMinimums = []fieldMinimum{
	{Field: "explanations", Min: 5, Critical: true},
	{Field: "examples", Min: 5},
	{Field: "analogies", Min: 5},
	{Field: "definitions", Min: 5},
	{Field: "processes", Min: 5},
	{Field: "comparisons", Min: 5},
	{Field: "visual_aids", Min: 4},
	{Field: "learning_objectives", Min: 5, Critical: true},
}

var marketingMinimums = []fieldMinimum{
	{Field: "service_descriptions", Min: 3, Critical: true},
	{Field: "trust_builders", Min: 3},
	{Field: "calls_to_action", Min: 3},
	{Field: "audience_hooks", Min: 3},
}

var seoMinimums = []fieldMinimum{
	{Field: "primary_keywords", Min: 5, Critical: true},
	{Field: "meta_descriptions", Min: 2},
	{Field: "content_topics", Min: 3},
	{Field: "local_seo_terms", Min: 3},
}

var (
	requiredEducationalFields = []string{
		"explanations", "examples", "analogies", "definitions",
		"processes", "comparisons", "visual_aids", "learning_objectives",
	}
	requiredMarketingFields = []string{
		"service_descriptions", "trust_builders", "calls_to_action", "audience_hooks",
	}
	requiredSEOFields = []string{
		"primary_keywords", "meta_descriptions", "content_topics", "local_seo_terms",
	}
	requiredRebellionFields = []string{"myths_challenged", "counter_narratives"}
)

// requiredSections drive the completeness rubric.
var requiredSections = []string{
	"research_content",
	"clinical_content",
	"educational_content",
	"marketing_content",
	"seo_content",
	"founder_voice_content",
	"rebellion_content",
}

func containsAny(text string, keywords []string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
