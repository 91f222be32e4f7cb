package domain

import (
	"errors"
	"fmt"
	"time"
)

// Approval-state errors. Each maps to its own user-facing message.
var (
	ErrApprovalNotFound       = errors.New("approval not found")
	ErrApprovalExpired        = errors.New("approval expired")
	ErrApprovalAlreadyDecided = errors.New("approval already decided")
	ErrApprovalRejected       = errors.New("approval was rejected")
	ErrApprovalPending        = errors.New("approval is still pending")
	ErrApprovalConsumed       = errors.New("approval already used")
	ErrToolMismatch           = errors.New("tool does not match approval")
)

// ErrRateLimited is matched by errors.Is on a *RateLimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// ConfigError is a fatal configuration problem detected at load or ordering time.
type ConfigError struct {
	Kind   string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Kind, e.Detail)
}

// NewConfigError builds a ConfigError.
func NewConfigError(kind, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// RateLimitError carries the time the caller's window resets.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return "Rate limit exceeded. Resets at " + e.ResetAt.UTC().Format(time.RFC3339)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ApprovalMessage renders the user-facing text for an approval-state error.
func ApprovalMessage(err error) string {
	switch {
	case errors.Is(err, ErrApprovalNotFound):
		return "Approval request not found."
	case errors.Is(err, ErrApprovalExpired):
		return "Approval request has expired."
	case errors.Is(err, ErrApprovalAlreadyDecided):
		return "Approval request was already decided."
	case errors.Is(err, ErrApprovalRejected):
		return "Action was rejected by user."
	case errors.Is(err, ErrApprovalPending):
		return "Approval request is still awaiting a decision."
	case errors.Is(err, ErrApprovalConsumed):
		return "Approved action has already been executed."
	case errors.Is(err, ErrToolMismatch):
		return "Tool does not match the approved request."
	default:
		return err.Error()
	}
}
