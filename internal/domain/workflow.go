package domain

import "encoding/json"

// WorkflowStep is one node of a workflow DAG.
type WorkflowStep struct {
	ID          string         `json:"id" yaml:"id"`
	Agent       AgentType      `json:"agent" yaml:"agent"`
	Action      string         `json:"action" yaml:"action"`
	Description string         `json:"description" yaml:"description"`
	DependsOn   []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// WorkflowDefinition is a static, named DAG of steps.
type WorkflowDefinition struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	Description       string         `json:"description,omitempty" yaml:"description,omitempty"`
	Steps             []WorkflowStep `json:"steps" yaml:"steps"`
	TriggerConditions []string       `json:"trigger_conditions,omitempty" yaml:"trigger_conditions,omitempty"`
}

// StepResult is the recorded outcome of one executed step.
type StepResult struct {
	StepID     string          `json:"step_id"`
	Agent      AgentType       `json:"agent"`
	Status     StepStatus      `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	ApprovalID string          `json:"approval_id,omitempty"`
	ToolsUsed  []string        `json:"tools_used,omitempty"`
}

// WorkflowResult is the outcome of one workflow execution.
type WorkflowResult struct {
	WorkflowID     string         `json:"workflow_id"`
	Status         WorkflowStatus `json:"status"`
	Success        bool           `json:"success"`
	Steps          []StepResult   `json:"steps"`
	CompletedSteps int            `json:"completed_steps"`
	FailedSteps    int            `json:"failed_steps"`
	ApprovalID     string         `json:"approval_id,omitempty"`
	PausedAtStep   string         `json:"paused_at_step,omitempty"`
	ChainOfThought []string       `json:"chain_of_thought"`
}
