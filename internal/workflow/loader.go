package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type fileFormat struct {
	Workflows []domain.WorkflowDefinition `yaml:"workflows"`
}

// LoadFile reads workflow definitions from a YAML file of the form
//
//	workflows:
//	  - id: weekly_review
//	    name: Weekly review
//	    steps:
//	      - id: list
//	        agent: tasks
//	        action: list
func LoadFile(path string) ([]domain.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows file: %w", err)
	}
	return Parse(data)
}

// Parse decodes workflow definitions from YAML.
func Parse(data []byte) ([]domain.WorkflowDefinition, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.NewConfigError("workflow_file", "invalid workflows yaml: %v", err)
	}
	return f.Workflows, nil
}

// Merge overlays extra onto base: definitions with the same id replace the
// base entry in place, new ones are appended.
func Merge(base, extra []domain.WorkflowDefinition) []domain.WorkflowDefinition {
	out := append([]domain.WorkflowDefinition(nil), base...)
	index := make(map[string]int, len(out))
	for i, d := range out {
		index[d.ID] = i
	}
	for _, d := range extra {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// NewDefaultEngine builds an engine with the built-in catalog, merged with
// the definitions in path when path is not empty. Every definition is
// validated; the first invalid one fails the load.
func NewDefaultEngine(agents AgentSource, path string, opts ...EngineOption) (*Engine, error) {
	e := NewEngine(agents, nil, nil)
	for _, opt := range opts {
		opt(e)
	}
	defs := Definitions()
	if path != "" {
		extra, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = Merge(defs, extra)
	}
	if err := e.RegisterAll(defs); err != nil {
		return nil, err
	}
	return e, nil
}
