// Package domain defines the core domain models for the assistant.
package domain

// AgentType identifies a domain agent.
type AgentType string

const (
	AgentInbox        AgentType = "inbox"
	AgentCalendar     AgentType = "calendar"
	AgentCRM          AgentType = "crm"
	AgentTravel       AgentType = "travel"
	AgentTasks        AgentType = "tasks"
	AgentMeetingPrep  AgentType = "meeting_prep"
	AgentOrchestrator AgentType = "orchestrator"
)

// DomainAgents lists the agents requests can be routed to.
var DomainAgents = []AgentType{
	AgentInbox,
	AgentCalendar,
	AgentCRM,
	AgentTravel,
	AgentTasks,
	AgentMeetingPrep,
}

// IsDomainAgent reports whether t names one of the routable domain agents.
func IsDomainAgent(t AgentType) bool {
	for _, a := range DomainAgents {
		if a == t {
			return true
		}
	}
	return false
}

// ApprovalCategory is the approval policy attached to a tool.
type ApprovalCategory string

const (
	ApprovalAutoApprove     ApprovalCategory = "AUTO_APPROVE"
	ApprovalRequestApproval ApprovalCategory = "REQUEST_APPROVAL"
	ApprovalAlwaysAsk       ApprovalCategory = "ALWAYS_ASK"
)

// RequiresApproval reports whether the category gates execution.
func (c ApprovalCategory) RequiresApproval() bool {
	return c == ApprovalRequestApproval || c == ApprovalAlwaysAsk
}

// ApprovalStatus represents the status of an approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusExpired  ApprovalStatus = "EXPIRED"
)

// ActionStatus is the outcome recorded for a RecentAction.
type ActionStatus string

const (
	ActionStatusSucceeded       ActionStatus = "SUCCEEDED"
	ActionStatusFailed          ActionStatus = "FAILED"
	ActionStatusPendingApproval ActionStatus = "PENDING_APPROVAL"
)

// StepStatus represents the status of a workflow step.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusPaused    StepStatus = "paused"
)

// WorkflowStatus represents the terminal state of a workflow execution.
type WorkflowStatus string

const (
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// EventType represents the type of an audit event.
type EventType string

const (
	EventTypeAgentRunCompleted EventType = "agent_run_completed"
	EventTypeAgentRunFailed    EventType = "agent_run_failed"
	EventTypeAgentRunPaused    EventType = "agent_run_paused"
	EventTypeApprovalRequested EventType = "approval_requested"
	EventTypeApprovalDecision  EventType = "approval_decision"
	EventTypeApprovalExpired   EventType = "approval_expired"
	EventTypeApprovalResumed   EventType = "approval_resumed"
	EventTypeWorkflowCompleted EventType = "workflow_completed"
	EventTypeWorkflowPaused    EventType = "workflow_paused"
	EventTypeRequestRouted     EventType = "request_routed"
	EventTypeRequestClarify    EventType = "request_clarification"
)
