package domain

import (
	"encoding/json"
	"time"
)

// DefaultApprovalWindow is how long a pending approval stays actionable.
const DefaultApprovalWindow = 24 * time.Hour

// ApprovalRequest is a durable, user-visible record of a tool call waiting
// for a human decision.
type ApprovalRequest struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	SessionID      string           `json:"session_id,omitempty"`
	AgentType      AgentType        `json:"agent_type"`
	ToolName       string           `json:"tool_name"`
	ToolInput      json.RawMessage  `json:"tool_input,omitempty"`
	Category       ApprovalCategory `json:"category"`
	ProposedAction string           `json:"proposed_action"`
	Reasoning      string           `json:"reasoning,omitempty"`
	Impact         string           `json:"impact,omitempty"`
	IsReversible   bool             `json:"is_reversible"`
	Status         ApprovalStatus   `json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty"`
	DecidedBy      string           `json:"decided_by,omitempty"`
	Feedback       string           `json:"feedback,omitempty"`
	ConsumedAt     *time.Time       `json:"consumed_at,omitempty"`
}

// IsExpired reports whether the request is past its validity window.
// An EXPIRED status always counts; a PENDING record past ExpiresAt counts too,
// even if the sweeper has not reached it yet.
func (a *ApprovalRequest) IsExpired(now time.Time) bool {
	if a.Status == ApprovalStatusExpired {
		return true
	}
	return a.Status == ApprovalStatusPending && !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Decision is a human answer to an approval request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Status maps a decision onto the terminal approval status it produces.
func (d Decision) Status() (ApprovalStatus, bool) {
	switch d {
	case DecisionApprove:
		return ApprovalStatusApproved, true
	case DecisionReject:
		return ApprovalStatusRejected, true
	default:
		return "", false
	}
}
