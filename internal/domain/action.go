package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecentAction is an append-only learning record written after every tool execution.
type RecentAction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	AgentType  AgentType       `json:"agent_type"`
	Action     string          `json:"action"`
	Summary    string          `json:"summary"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     ActionStatus    `json:"status"`
	Confidence float64         `json:"confidence"`
}

// NewRecentAction builds the learning record for one tool execution.
func NewRecentAction(userID string, agent AgentType, toolName string, input json.RawMessage, res ToolResult, confidence float64) RecentAction {
	a := RecentAction{
		ID:         "act_" + uuid.NewString(),
		UserID:     userID,
		AgentType:  agent,
		Action:     toolName,
		Input:      input,
		Timestamp:  time.Now().UTC(),
		Confidence: confidence,
	}
	switch {
	case res.RequiresApproval:
		a.Status = ActionStatusPendingApproval
		a.Summary = toolName + " awaiting approval"
	case res.Success:
		a.Status = ActionStatusSucceeded
		a.Summary = toolName + " succeeded"
		a.Output = res.Data
	default:
		a.Status = ActionStatusFailed
		a.Summary = toolName + " failed: " + res.Error
	}
	return a
}

// Message is one persisted conversation turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	AgentType AgentType `json:"agent_type"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an audit record.
type Event struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id,omitempty"`
	AgentType AgentType       `json:"agent_type,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AgentRunPayload is the payload of agent_run_* audit events.
type AgentRunPayload struct {
	RequestID  string   `json:"request_id,omitempty"`
	Success    bool     `json:"success"`
	DurationMs int64    `json:"duration_ms"`
	ToolsUsed  []string `json:"tools_used"`
	Iterations int      `json:"iterations"`
	ApprovalID string   `json:"approval_id,omitempty"`
	Error      string   `json:"error,omitempty"`
}
