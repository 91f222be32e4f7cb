package workflow

import (
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// Order returns the steps of def in dependency order using a depth-first
// visit. A step revisited while still being visited is a cycle, reported as a
// *domain.ConfigError. Dependencies on ids that are not steps of def are
// ignored here and surface as unmet dependencies at execution time.
func Order(def domain.WorkflowDefinition) ([]domain.WorkflowStep, error) {
	byID := make(map[string]domain.WorkflowStep, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID == "" {
			return nil, domain.NewConfigError("workflow_step", "workflow %s has a step without id", def.ID)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, domain.NewConfigError("workflow_step", "workflow %s has duplicate step %s", def.ID, s.ID)
		}
		byID[s.ID] = s
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(def.Steps))
	ordered := make([]domain.WorkflowStep, 0, len(def.Steps))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		step, ok := byID[id]
		if !ok {
			return nil
		}
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return domain.NewConfigError("workflow_cycle", "workflow %s has a dependency cycle: %v", def.ID, append(path, id))
		}
		state[id] = visiting
		for _, dep := range step.DependsOn {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = visited
		ordered = append(ordered, step)
		return nil
	}

	for _, s := range def.Steps {
		if err := visit(s.ID, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Validate checks that def is executable against the given agents: it has an
// id, at least one step, every step targets a known agent, and the step graph
// is acyclic.
func Validate(def domain.WorkflowDefinition, known func(domain.AgentType) bool) error {
	if def.ID == "" {
		return domain.NewConfigError("workflow", "workflow id is required")
	}
	if len(def.Steps) == 0 {
		return domain.NewConfigError("workflow", "workflow %s has no steps", def.ID)
	}
	for _, s := range def.Steps {
		if known != nil && !known(s.Agent) {
			return domain.NewConfigError("workflow_agent", "workflow %s step %s targets unknown agent %q", def.ID, s.ID, s.Agent)
		}
	}
	_, err := Order(def)
	return err
}
