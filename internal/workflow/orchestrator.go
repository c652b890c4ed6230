package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"enlitens/internal/agents"
	"enlitens/internal/metrics"
	"enlitens/internal/observability"
	"enlitens/internal/schema"
	"enlitens/internal/validation"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// StageWaitingCreatives is the stage marker the marketing fan-in records
// while any creative prerequisite slot is still unset.
const StageWaitingCreatives = "marketing_waiting_creatives"

var creativePrerequisites = []agents.AgentType{
	agents.TypeEducational,
	agents.TypeRebellion,
	agents.TypeFounderVoice,
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Registry *agents.Registry
	Runner   *agents.Runner
	Engine   *validation.Engine
	Emitter  *observability.Emitter
	Graph    *Graph
	// ConsistencyVotes is the self-consistency sample count recorded on the
	// merged output for the verification chain.
	ConsistencyVotes int
}

// Orchestrator executes the agent graph for one document at a time. Nodes in
// the same layer run concurrently; their deltas are applied to the state
// sequentially in node order so replays are deterministic.
type Orchestrator struct {
	registry    *agents.Registry
	runner      *agents.Runner
	engine      *validation.Engine
	emitter     *observability.Emitter
	graph       *Graph
	consistency schema.SelfConsistency
	log         *logger.Logger
}

// New builds an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Graph == nil {
		cfg.Graph = DefaultGraph()
	}
	votes := cfg.ConsistencyVotes
	if votes < 2 {
		votes = 3
	}
	return &Orchestrator{
		registry: cfg.Registry,
		runner:   cfg.Runner,
		engine:   cfg.Engine,
		emitter:  cfg.Emitter,
		graph:    cfg.Graph,
		consistency: schema.SelfConsistency{
			NumSamples:    votes,
			VoteThreshold: votes/2 + 1,
		},
		log: logger.Get().With("component", "orchestrator"),
	}
}

// ProcessDocument runs the graph over one document and assembles its
// knowledge entry. Cancellation is cooperative: the current layer finishes,
// remaining layers are abandoned and the partial entry is returned alongside
// the context error.
func (o *Orchestrator) ProcessDocument(ctx context.Context, doc schema.DocumentContext) (*schema.KnowledgeEntry, error) {
	start := time.Now()

	if doc.DocumentID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "document id required")
	}
	if doc.DocType == "" {
		doc.DocType = schema.DocTypeFull
	}
	if !doc.DocType.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown doc type %q", doc.DocType)
	}

	o.log.Infow("processing document", "document_id", doc.DocumentID, "doc_type", doc.DocType)

	state := NewState(doc, SkipMask(doc.DocType))
	var report *schema.ValidationReport

	for _, layer := range o.graph.Layers {
		if ctx.Err() != nil {
			break
		}

		pending := o.resolveLayer(ctx, state, doc.DocumentID, layer)
		if len(pending) == 0 {
			continue
		}

		if pending[0] == agents.TypeMarketingSEO && o.creativesWaiting(state) {
			// The fan-in holds: record the marker and leave the node unrun so
			// no marketing result is produced from incomplete creatives.
			if err := state.Apply(Delta{Node: agents.TypeMarketingSEO, Stage: StageWaitingCreatives}); err != nil {
				o.log.Errorf("state apply failed: %v", err)
			}
			continue
		}

		if pending[0] == agents.TypeValidation {
			report = o.runValidation(ctx, state, doc)
			continue
		}

		for _, delta := range o.runLayer(ctx, state, pending, doc) {
			if err := state.Apply(delta); err != nil {
				o.log.Errorf("state apply failed for %s: %v", delta.Node, err)
			}
		}
	}

	entry := o.assembleEntry(state, doc, report, time.Since(start))
	metrics.RecordDocument(string(doc.DocType), documentStatus(ctx, report), time.Since(start), entry.Metadata.QualityScore)

	if err := ctx.Err(); err != nil {
		return entry, errors.Wrap(err, "document processing interrupted")
	}
	return entry, nil
}

// resolveLayer marks skipped and already-completed nodes, returning the nodes
// that still need to run.
func (o *Orchestrator) resolveLayer(ctx context.Context, state *State, documentID string, layer []agents.AgentType) []agents.AgentType {
	var pending []agents.AgentType
	for _, node := range layer {
		if state.Completed(node) {
			continue
		}
		if state.SkipNodes[node] {
			if err := state.Apply(Delta{Node: node, Status: StatusSkipped, Stage: string(node)}); err != nil {
				o.log.Errorf("state apply failed for %s: %v", node, err)
			}
			o.emitter.NodeEnd(ctx, documentID, string(node), string(StatusSkipped), 0, 0)
			metrics.RecordAgent(string(node), string(StatusSkipped), 0, 0, false)
			continue
		}
		pending = append(pending, node)
	}
	return pending
}

// creativesWaiting reports whether any creative prerequisite slot is unset
// while its node is not skipped.
func (o *Orchestrator) creativesWaiting(state *State) bool {
	if agents.CreativesReady(state.MergedOutput()) {
		return false
	}
	for _, node := range creativePrerequisites {
		if state.SkipNodes[node] {
			continue
		}
		if state.Results[node] == nil {
			return true
		}
	}
	return false
}

// runLayer executes layer nodes concurrently against a snapshot of the
// current state and returns their deltas in node order.
func (o *Orchestrator) runLayer(ctx context.Context, state *State, nodes []agents.AgentType, doc schema.DocumentContext) []Delta {
	outputs := state.MergedOutput()
	attempts := make(map[agents.AgentType]int, len(nodes))
	for _, node := range nodes {
		attempts[node] = state.AttemptCounters[node]
	}

	deltas := make([]Delta, len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node agents.AgentType) {
			defer wg.Done()
			deltas[i] = o.runNode(ctx, node, doc, outputs, attempts[node])
		}(i, node)
	}
	wg.Wait()

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Node < deltas[j].Node })
	return deltas
}

func (o *Orchestrator) runNode(ctx context.Context, node agents.AgentType, doc schema.DocumentContext, outputs schema.CompleteOutput, priorAttempts int) Delta {
	agent, ok := o.registry.Get(node)
	if !ok {
		o.log.Errorf("agent %s not registered", node)
		return Delta{Node: node, Stage: string(node), Status: StatusEmpty, Err: "agent not registered"}
	}

	o.emitter.NodeStart(ctx, doc.DocumentID, string(node), priorAttempts+1)
	start := time.Now()

	result := o.runner.Run(ctx, agent, agents.Request{Document: doc, Outputs: outputs})
	duration := time.Since(start)

	status := StatusDone
	eventStatus := string(StatusDone)
	errMsg := ""
	switch {
	case result.Err != nil:
		status = StatusEmpty
		eventStatus = "error"
		errMsg = result.Err.Error()
	case result.Response == nil || result.Response.Empty():
		status = StatusEmpty
		eventStatus = string(StatusEmpty)
	}

	totalAttempts := priorAttempts + result.Attempts
	if result.Cached {
		totalAttempts = priorAttempts + 1
	}

	o.emitter.NodeEnd(ctx, doc.DocumentID, string(node), eventStatus, totalAttempts, duration)
	metrics.RecordAgent(string(node), eventStatus, duration, result.Attempts, result.Cached)

	return Delta{
		Node:         node,
		Stage:        string(node),
		Status:       status,
		Attempts:     totalAttempts,
		Err:          errMsg,
		Result:       result.Response,
		Intermediate: map[string]string{string(node): eventStatus},
	}
}

// runValidation invokes the validation engine directly; validation has no
// generation agent behind it.
func (o *Orchestrator) runValidation(ctx context.Context, state *State, doc schema.DocumentContext) *schema.ValidationReport {
	node := agents.TypeValidation
	attempt := state.AttemptCounters[node] + 1

	if o.engine == nil {
		o.log.Warn("validation engine not configured, skipping validation")
		if err := state.Apply(Delta{Node: node, Stage: string(node), Status: StatusEmpty, Err: "validation engine unavailable"}); err != nil {
			o.log.Errorf("state apply failed: %v", err)
		}
		return nil
	}

	o.emitter.NodeStart(ctx, doc.DocumentID, string(node), attempt)
	start := time.Now()

	merged := state.MergedOutput()
	merged.SelfConsistency = &o.consistency
	report := o.engine.Validate(ctx, &merged, doc.DocumentText, attempt)
	duration := time.Since(start)

	o.emitter.NodeEnd(ctx, doc.DocumentID, string(node), string(StatusDone), attempt, duration)
	o.emitter.Quality(ctx, doc.DocumentID, report.QualityScores, report.FinalValidation.Passed)
	metrics.RecordValidation(report.FinalValidation.Passed, len(report.CitationReport.Failed))

	if err := state.Apply(Delta{
		Node:         node,
		Stage:        string(node),
		Status:       StatusDone,
		Attempts:     attempt,
		Intermediate: map[string]string{string(node): string(StatusDone)},
	}); err != nil {
		o.log.Errorf("state apply failed: %v", err)
	}
	return &report
}

func (o *Orchestrator) assembleEntry(state *State, doc schema.DocumentContext, report *schema.ValidationReport, elapsed time.Duration) *schema.KnowledgeEntry {
	merged := state.MergedOutput()
	merged.SelfConsistency = &o.consistency

	entry := &schema.KnowledgeEntry{
		Metadata: schema.EntryMetadata{
			DocumentID:     doc.DocumentID,
			ProcessedAt:    time.Now().UTC(),
			ProcessingTime: elapsed.Seconds(),
		},
		AgentOutputs:     merged,
		FullDocumentText: doc.DocumentText,
		// Documents whose doc type never reaches validation are not gated.
		ValidationPassed: true,
	}

	if report != nil {
		entry.ValidationReport = *report
		entry.Metadata.QualityScore = report.QualityScores["overall_quality"]
		entry.ValidationPassed = report.FinalValidation.Passed
		if report.LayeredReport != nil {
			entry.Metadata.ConfidenceScore = report.LayeredReport.Metrics.Faithfulness
		}
	}
	if degraded, ok := state.Metadata["degraded_modes"]; ok && degraded != "" {
		entry.Metadata.DegradedModes = append(entry.Metadata.DegradedModes, degraded)
	}
	return entry
}

func documentStatus(ctx context.Context, report *schema.ValidationReport) string {
	switch {
	case ctx.Err() != nil:
		return "error"
	case report == nil:
		return "passed"
	case report.FinalValidation.Passed:
		return "passed"
	}
	return "failed"
}
