package domain

import "encoding/json"

// JSONSchema is a JSON-schema-like object describing tool input.
type JSONSchema map[string]any

// ToolDefinition is the part of a tool that is shown to the model.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema JSONSchema `json:"input_schema"`
}

// ApprovalDetails is what a tool handler reports when its own successful
// completion still needs a human to confirm it.
type ApprovalDetails struct {
	ProposedAction string `json:"proposed_action,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
	Impact         string `json:"impact,omitempty"`
	IsReversible   bool   `json:"is_reversible"`
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Success          bool             `json:"success"`
	Data             json.RawMessage  `json:"data,omitempty"`
	Error            string           `json:"error,omitempty"`
	RequiresApproval bool             `json:"requires_approval,omitempty"`
	ApprovalDetails  *ApprovalDetails `json:"approval_details,omitempty"`
}

// FailedResult builds a failed ToolResult.
func FailedResult(msg string) ToolResult {
	return ToolResult{Success: false, Error: msg}
}

// Content renders the result as the text fed back to the model.
func (r ToolResult) Content() string {
	if !r.Success {
		return `{"success":false,"error":` + quote(r.Error) + `}`
	}
	if len(r.Data) == 0 {
		return `{"success":true}`
	}
	return `{"success":true,"data":` + string(r.Data) + `}`
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
