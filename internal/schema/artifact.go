package schema

// Section is one content block produced by an agent: field name to items.
// All generated content is list-valued; scalar agent output is normalized
// into a single-item list at ingress.
type Section map[string][]string

// Populated reports whether at least one field has at least one item.
func (s Section) Populated() bool {
	for _, items := range s {
		if len(items) > 0 {
			return true
		}
	}
	return false
}

// AllItems flattens every field's items into one slice.
func (s Section) AllItems() []string {
	var out []string
	for _, items := range s {
		out = append(out, items...)
	}
	return out
}

// Citation ties a generated claim back to a source span.
type Citation struct {
	SourceID string `json:"source_id"`
	Quote    string `json:"quote"`
	Pages    []int  `json:"pages,omitempty"`
	Section  string `json:"section,omitempty"`
}

// Statistic is a quantitative claim with its supporting citation.
type Statistic struct {
	Text     string    `json:"text"`
	Citation *Citation `json:"citation,omitempty"`
}

// BlogContent holds the citation-bearing statistics that the citation
// verifier audits against the source document.
type BlogContent struct {
	Statistics []Statistic `json:"statistics,omitempty"`
	Narratives []string    `json:"narratives,omitempty"`
}

// SelfConsistency declares how many samples and votes backed an output.
type SelfConsistency struct {
	NumSamples    int `json:"num_samples"`
	VoteThreshold int `json:"vote_threshold"`
}

// Artifact is the uniform output contract of one agent run. Name identifies
// the producing agent; Fields carries its list-valued content; Statistics is
// set only by agents that emit quantitative claims. Unknown payload keys are
// preserved in Meta but ignored by validation.
type Artifact struct {
	Name       string            `json:"name"`
	Fields     Section           `json:"fields"`
	Statistics []Statistic       `json:"statistics,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Empty reports whether the artifact carries no usable content.
func (a *Artifact) Empty() bool {
	if a == nil {
		return true
	}
	return !a.Fields.Populated() && len(a.Statistics) == 0
}

// CompleteOutput is the merged view over all agent artifacts for one
// document, keyed into the sections validation knows about.
type CompleteOutput struct {
	Research        Section            `json:"research_content,omitempty"`
	Clinical        Section            `json:"clinical_content,omitempty"`
	Educational     Section            `json:"educational_content,omitempty"`
	Marketing       Section            `json:"marketing_content,omitempty"`
	SEO             Section            `json:"seo_content,omitempty"`
	FounderVoice    Section            `json:"founder_voice_content,omitempty"`
	Rebellion       Section            `json:"rebellion_content,omitempty"`
	Blog            BlogContent        `json:"blog_content,omitempty"`
	WebIntel        map[string]Section `json:"web_intel,omitempty"`
	SelfConsistency *SelfConsistency   `json:"self_consistency,omitempty"`
	// Extra preserves artifacts from agents validation does not score.
	Extra map[string]Section `json:"extra,omitempty"`
}

// SectionByName resolves a top-level section by its wire name. Returns nil
// for unknown names.
func (o *CompleteOutput) SectionByName(name string) Section {
	switch name {
	case "research_content":
		return o.Research
	case "clinical_content":
		return o.Clinical
	case "educational_content":
		return o.Educational
	case "marketing_content":
		return o.Marketing
	case "seo_content":
		return o.SEO
	case "founder_voice_content":
		return o.FounderVoice
	case "rebellion_content":
		return o.Rebellion
	}
	return nil
}
