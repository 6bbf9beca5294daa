package agents

import (
	"fmt"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/contextstore"
	"github.com/civicmind/civicmind/pkg/rules"
	"github.com/civicmind/civicmind/pkg/tools"
)

// Department bundles everything one agent's pipeline needs: its rules engine
// and its tool registry. Departments are stateless; per-request state lives
// in the pipeline.
type Department struct {
	Type  civic.AgentType
	Rules *rules.Engine
	Tools *tools.Registry
}

// NewDepartment builds one department over a shared context store.
func NewDepartment(agent civic.AgentType, store contextstore.Store) *Department {
	return &Department{
		Type:  agent,
		Rules: rules.ForAgent(agent),
		Tools: tools.NewRegistryFor(agent, store),
	}
}

// Registry holds all six departments, keyed by agent type.
type Registry struct {
	byType map[civic.AgentType]*Department
}

// NewRegistry builds every department over one shared context store.
func NewRegistry(store contextstore.Store) *Registry {
	r := &Registry{byType: make(map[civic.AgentType]*Department, len(civic.AgentTypes()))}
	for _, agent := range civic.AgentTypes() {
		r.byType[agent] = NewDepartment(agent, store)
	}
	return r
}

// Get returns one department.
func (r *Registry) Get(agent civic.AgentType) (*Department, error) {
	d, ok := r.byType[agent]
	if !ok {
		return nil, fmt.Errorf("no department registered for agent %q", agent)
	}
	return d, nil
}

// Route resolves the department for a request type, falling back to the
// default agent for unknown types.
func (r *Registry) Route(requestType string) (*Department, error) {
	agent, _ := AgentFor(requestType)
	return r.Get(agent)
}
