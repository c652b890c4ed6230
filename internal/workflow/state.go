package workflow

import (
	"time"

	"enlitens/internal/agents"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

// NodeStatus is the terminal status a node records in completed_nodes.
type NodeStatus string

const (
	StatusDone    NodeStatus = "done"
	StatusSkipped NodeStatus = "skipped"
	StatusEmpty   NodeStatus = "empty"
)

// State is the per-document workflow state. Nodes never mutate it directly;
// each returns a Delta and the orchestrator applies deltas sequentially with
// per-field merge rules: Stage and Timestamp are last-writer-wins, the maps
// are dict-merge, SkipNodes is set-union and Results slots are
// node-exclusive.
type State struct {
	DocumentID string
	DocType    schema.DocType
	Stage      string
	Timestamp  time.Time

	SkipNodes       map[agents.AgentType]bool
	CompletedNodes  map[agents.AgentType]NodeStatus
	AttemptCounters map[agents.AgentType]int
	Errors          map[agents.AgentType]string
	Metadata        map[string]string
	Intermediate    map[string]string

	Results map[agents.AgentType]*agents.Response
}

// NewState initializes state for one document with the doc type's skip mask
// already applied.
func NewState(doc schema.DocumentContext, skip map[agents.AgentType]bool) *State {
	skipCopy := make(map[agents.AgentType]bool, len(skip))
	for node := range skip {
		skipCopy[node] = true
	}
	return &State{
		DocumentID:      doc.DocumentID,
		DocType:         doc.DocType,
		Stage:           "entry",
		Timestamp:       time.Now().UTC(),
		SkipNodes:       skipCopy,
		CompletedNodes:  make(map[agents.AgentType]NodeStatus),
		AttemptCounters: make(map[agents.AgentType]int),
		Errors:          make(map[agents.AgentType]string),
		Metadata:        make(map[string]string),
		Intermediate:    make(map[string]string),
		Results:         make(map[agents.AgentType]*agents.Response),
	}
}

// Delta is the outcome of one node execution. Node identifies the writer;
// Result writes the node-exclusive slot.
type Delta struct {
	Node         agents.AgentType
	Stage        string
	Status       NodeStatus
	Attempts     int
	Err          string
	Result       *agents.Response
	Metadata     map[string]string
	Intermediate map[string]string
	SkipNodes    []agents.AgentType
}

// Apply merges a delta into the state. It rejects writes that would violate
// the state invariants: double-writing an exclusive result slot, regressing
// an attempt counter, or completing a node twice with conflicting status.
func (s *State) Apply(d Delta) error {
	if d.Node == "" {
		return errors.Wrapf(errors.ErrStateCorrupt, "delta has no writer node")
	}

	if d.Result != nil {
		if _, exists := s.Results[d.Node]; exists {
			return errors.Wrapf(errors.ErrStateCorrupt, "result slot for %s written twice", d.Node)
		}
		s.Results[d.Node] = d.Result
	}

	if d.Attempts > 0 {
		if d.Attempts < s.AttemptCounters[d.Node] {
			return errors.Wrapf(errors.ErrStateCorrupt, "attempt counter for %s regressed from %d to %d",
				d.Node, s.AttemptCounters[d.Node], d.Attempts)
		}
		s.AttemptCounters[d.Node] = d.Attempts
	}

	if d.Status != "" {
		if prev, done := s.CompletedNodes[d.Node]; done && prev != d.Status {
			return errors.Wrapf(errors.ErrStateCorrupt, "node %s completed twice (%s then %s)", d.Node, prev, d.Status)
		}
		s.CompletedNodes[d.Node] = d.Status
	}

	if d.Err != "" {
		s.Errors[d.Node] = d.Err
	}
	for k, v := range d.Metadata {
		s.Metadata[k] = v
	}
	for k, v := range d.Intermediate {
		s.Intermediate[k] = v
	}
	for _, node := range d.SkipNodes {
		s.SkipNodes[node] = true
	}

	if d.Stage != "" {
		s.Stage = d.Stage
	}
	s.Timestamp = time.Now().UTC()
	return nil
}

// Completed reports whether a node has recorded any terminal status.
func (s *State) Completed(node agents.AgentType) bool {
	_, ok := s.CompletedNodes[node]
	return ok
}

// MergedOutput assembles the validation view over all node results. Nodes
// that errored contribute their last non-empty output; absent slots stay
// empty.
func (s *State) MergedOutput() schema.CompleteOutput {
	out := schema.CompleteOutput{}

	for node, resp := range s.Results {
		if resp == nil {
			continue
		}
		switch node {
		case agents.TypeScienceExtraction:
			out.Research = resp.Sections["research_content"]
			if resp.Blog != nil {
				out.Blog = *resp.Blog
			}
		case agents.TypeClinicalSynthesis:
			out.Clinical = resp.Sections["clinical_content"]
		case agents.TypeEducational:
			out.Educational = resp.Sections["educational_content"]
		case agents.TypeRebellion:
			out.Rebellion = resp.Sections["rebellion_content"]
		case agents.TypeFounderVoice:
			out.FounderVoice = resp.Sections["founder_voice_content"]
		case agents.TypeMarketingSEO:
			out.Marketing = resp.Sections["marketing_content"]
			out.SEO = resp.Sections["seo_content"]
		case agents.TypeContextRAG:
			if section, ok := resp.Sections["context_content"]; ok {
				if out.Extra == nil {
					out.Extra = make(map[string]schema.Section)
				}
				out.Extra["context_content"] = section
			}
		default:
			if isWebIntel(node) {
				if section, ok := resp.Sections[string(node)]; ok {
					if out.WebIntel == nil {
						out.WebIntel = make(map[string]schema.Section)
					}
					out.WebIntel[string(node)] = section
				}
			}
		}
	}

	return out
}

func isWebIntel(node agents.AgentType) bool {
	for _, t := range agents.WebIntelTypes {
		if t == node {
			return true
		}
	}
	return false
}
