package domain

// Classification is the orchestrator's reading of a request.
type Classification struct {
	Intent            string         `json:"intent"`
	TargetAgent       AgentType      `json:"targetAgent"`
	Confidence        float64        `json:"confidence"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	SecondaryAgents   []AgentType    `json:"secondaryAgents,omitempty"`
	SuggestedWorkflow string         `json:"suggestedWorkflow,omitempty"`
	Reasoning         string         `json:"reasoning,omitempty"`
}

// SecondaryResult pairs a secondary agent with what it returned.
type SecondaryResult struct {
	Agent  AgentType    `json:"agent"`
	Result *AgentResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// RoutingResult is what the orchestrator hands back for one request.
type RoutingResult struct {
	Success          bool              `json:"success"`
	Intent           string            `json:"intent,omitempty"`
	TargetAgent      AgentType         `json:"target_agent,omitempty"`
	Confidence       float64           `json:"confidence"`
	Clarification    string            `json:"clarification,omitempty"`
	AgentResult      *AgentResult      `json:"agent_result,omitempty"`
	WorkflowResult   *WorkflowResult   `json:"workflow_result,omitempty"`
	SecondaryResults []SecondaryResult `json:"secondary_results,omitempty"`
	ChainOfThought   []string          `json:"chain_of_thought"`
	Error            string            `json:"error,omitempty"`
}
