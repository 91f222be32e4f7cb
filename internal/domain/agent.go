package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AgentResult is the outcome of one agent invocation.
type AgentResult struct {
	Success          bool            `json:"success"`
	Message          string          `json:"message,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	Error            string          `json:"error,omitempty"`
	RequiresApproval bool            `json:"requires_approval"`
	ApprovalID       string          `json:"approval_id,omitempty"`
	ToolsUsed        []string        `json:"tools_used"`
	ChainOfThought   []string        `json:"chain_of_thought"`
	Iterations       int             `json:"iterations"`
	RateLimited      bool            `json:"rate_limited,omitempty"`
	ResetAt          *time.Time      `json:"reset_at,omitempty"`
}

// Agent is the contract every domain agent satisfies, for direct routing
// and for workflow steps alike.
//
// A returned error means infrastructure broke. Model and tool failures are
// reported through a failed AgentResult.
type Agent interface {
	Type() AgentType
	Process(ctx context.Context, ec ExecutionContext, message, sessionID string) (*AgentResult, error)
}
