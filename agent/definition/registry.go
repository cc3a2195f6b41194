package definition

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Registry is the fixed, read-only collection of agent definitions loaded
// once per process. It is safe to share across goroutines without locking.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry validates defs and builds a registry. Duplicate names return
// ErrDuplicateAgent.
func NewRegistry(defs []*Definition) (*Registry, error) {
	r := &Registry{
		defs:  make(map[string]*Definition, len(defs)),
		order: make([]string, 0, len(defs)),
	}
	for _, d := range defs {
		if d == nil {
			continue
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.defs[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, d.Name)
		}
		r.defs[d.Name] = d.Clone()
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// MustNewRegistry creates a registry or panics on error.
//
// WARNING: only for initialization code and tests.
func MustNewRegistry(defs ...*Definition) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(fmt.Sprintf("failed to build agent registry: %v", err))
	}
	return r
}

// Get returns the shared definition for name. Callers must not mutate it;
// use Clone for a private copy.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Has reports whether name is a registered agent.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// List returns agent names in load order.
func (r *Registry) List() []string {
	return slices.Clone(r.order)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.order)
}

// HandoffTriggers maps each handoff trigger to its agent. When two agents
// declare the same trigger the later one in load order wins and the
// collision is logged.
func (r *Registry) HandoffTriggers(logger *zap.Logger) map[string]string {
	if logger == nil {
		logger = zap.NewNop()
	}
	triggers := make(map[string]string, len(r.order))
	for _, name := range r.order {
		token := r.defs[name].HandoffTrigger
		if token == "" {
			continue
		}
		if prev, exists := triggers[token]; exists && prev != name {
			logger.Warn("handoff trigger collision, last registered wins",
				zap.String("token", token),
				zap.String("previous", prev),
				zap.String("agent", name),
			)
		}
		triggers[token] = name
	}
	return triggers
}
