package domain

import "time"

// UserPreferences carries the per-user knobs that influence approval policy.
type UserPreferences struct {
	// SpendThreshold gates any tool call whose "amount" argument exceeds it.
	// Zero disables the check.
	SpendThreshold float64           `json:"spend_threshold,omitempty"`
	TrustedTools   []string          `json:"trusted_tools,omitempty"`
	BlockedTools   []string          `json:"blocked_tools,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	WorkingHours   string            `json:"working_hours,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// LearnedPattern is a behaviour inferred from past actions.
type LearnedPattern struct {
	Pattern     string  `json:"pattern"`
	ToolName    string  `json:"tool_name,omitempty"`
	AutoApprove bool    `json:"auto_approve"`
	Confidence  float64 `json:"confidence"`
	Occurrences int     `json:"occurrences"`
}

// ExecutionContext is the per-request value object handed to agents and
// tool handlers. The core never mutates it.
type ExecutionContext struct {
	UserID          string           `json:"user_id"`
	SessionID       string           `json:"session_id"`
	RequestID       string           `json:"request_id"`
	Domain          AgentType        `json:"domain,omitempty"`
	Timezone        string           `json:"timezone,omitempty"`
	Preferences     UserPreferences  `json:"preferences"`
	RecentActions   []RecentAction   `json:"recent_actions,omitempty"`
	LearnedPatterns []LearnedPattern `json:"learned_patterns,omitempty"`

	// ApprovalsDisabled skips REQUEST_APPROVAL gating. ALWAYS_ASK still gates.
	ApprovalsDisabled bool `json:"approvals_disabled,omitempty"`
	// ApprovalID is set when a tool runs on behalf of an approved request.
	ApprovalID string `json:"approval_id,omitempty"`
}

// WithDomain returns a copy scoped to another agent domain.
func (ec ExecutionContext) WithDomain(d AgentType) ExecutionContext {
	ec.Domain = d
	return ec
}

// Location resolves the context timezone, falling back to UTC.
func (ec ExecutionContext) Location() *time.Location {
	if ec.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(ec.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TrustedTools merges explicitly trusted tools with learned auto-approve patterns.
func (ec ExecutionContext) TrustedTools() []string {
	out := append([]string(nil), ec.Preferences.TrustedTools...)
	for _, p := range ec.LearnedPatterns {
		if p.AutoApprove && p.ToolName != "" {
			out = append(out, p.ToolName)
		}
	}
	return out
}
