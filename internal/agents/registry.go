package agents

import (
	"context"
	"sync"

	"enlitens/pkg/errors"
)

// Registry stores agents by type for lookup by the graph runtime.
type Registry struct {
	mu     sync.RWMutex
	agents map[AgentType]Agent
}

// NewRegistry constructs an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[AgentType]Agent)}
}

// Register adds or replaces an agent entry.
func (r *Registry) Register(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.Type()] = agent
}

// Get retrieves an agent by type.
func (r *Registry) Get(agentType AgentType) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentType]
	return agent, ok
}

// List returns registered agent types.
func (r *Registry) List() []AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]AgentType, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	return types
}

// BuildRegistry constructs and initializes the full agent set.
func BuildRegistry(ctx context.Context, services *Services) (*Registry, error) {
	registry := NewRegistry()

	for _, agentType := range WebIntelTypes {
		registry.Register(NewWebIntelAgent(agentType))
	}
	registry.Register(NewScienceAgent())
	registry.Register(NewContextRAGAgent())
	registry.Register(NewClinicalAgent())
	for _, agentType := range []AgentType{TypeEducational, TypeRebellion, TypeFounderVoice} {
		agent, err := NewContentAgent(agentType)
		if err != nil {
			return nil, err
		}
		registry.Register(agent)
	}
	registry.Register(NewMarketingAgent())

	for _, agentType := range registry.List() {
		agent, _ := registry.Get(agentType)
		if err := agent.Initialize(ctx, services); err != nil {
			return nil, errors.Wrapf(err, "initialize agent %s", agentType)
		}
	}
	return registry, nil
}
