// Package backend talks to the domain services (mail, calendar, CRM, travel,
// tasks, meeting notes) that actually perform tool side effects.
package backend

import (
	"context"
	"encoding/json"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// Request is one domain-service call.
type Request struct {
	Domain   domain.AgentType `json:"domain"`
	Action   string           `json:"action"`
	UserID   string           `json:"user_id"`
	Timezone string           `json:"timezone,omitempty"`
	Input    json.RawMessage  `json:"input,omitempty"`
	// ApprovalID confirms an action a human already approved.
	ApprovalID string `json:"approval_id,omitempty"`
}

// Response is the domain service answer.
type Response struct {
	Data             json.RawMessage         `json:"data,omitempty"`
	Error            string                  `json:"error,omitempty"`
	RequiresApproval bool                    `json:"requires_approval,omitempty"`
	ApprovalDetails  *domain.ApprovalDetails `json:"approval_details,omitempty"`
}

// Backend performs domain actions.
type Backend interface {
	Call(ctx context.Context, req Request) (*Response, error)
}
