package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// DecisionRequest is the body of POST /v1/approvals/:approval_id/decide.
type DecisionRequest struct {
	Decision  string `json:"decision"`
	DecidedBy string `json:"decided_by,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}

// ResumeRequest is the optional body of POST /v1/approvals/:approval_id/resume.
// Without a tool name the stored call is resumed.
type ResumeRequest struct {
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// ResumeResponse carries the result of a resumed tool call.
type ResumeResponse struct {
	ApprovalID string            `json:"approval_id"`
	Result     domain.ToolResult `json:"result"`
}

// ListApprovals returns the actionable approvals of a user.
func (h *Handler) ListApprovals(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if blank(userID) {
		return errorJSON(c, http.StatusBadRequest, "user_id is required")
	}
	approvals, err := h.deps.Approvals.ListPending(c.Request().Context(), userID)
	if err != nil {
		return h.approvalError(c, "", err)
	}
	if approvals == nil {
		approvals = []domain.ApprovalRequest{}
	}
	return c.JSON(http.StatusOK, map[string]any{"approvals": approvals})
}

// GetApproval returns a single approval request.
func (h *Handler) GetApproval(c echo.Context) error {
	id := c.Param("approval_id")
	ap, err := h.deps.Approvals.Get(c.Request().Context(), id)
	if err != nil {
		return h.approvalError(c, id, err)
	}
	return c.JSON(http.StatusOK, ap)
}

// DecideApproval records an approve or reject decision.
func (h *Handler) DecideApproval(c echo.Context) error {
	id := c.Param("approval_id")
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	decision := domain.Decision(strings.ToLower(strings.TrimSpace(req.Decision)))
	if _, ok := decision.Status(); !ok {
		return errorJSON(c, http.StatusBadRequest, "decision must be approve or reject")
	}
	decidedBy := req.DecidedBy
	if decidedBy == "" {
		decidedBy = "api"
	}

	ap, err := h.deps.Approvals.Decide(c.Request().Context(), id, decision, decidedBy, req.Feedback)
	if err != nil {
		return h.approvalError(c, id, err)
	}
	return c.JSON(http.StatusOK, ap)
}

// ResumeApproval executes the approved tool call.
func (h *Handler) ResumeApproval(c echo.Context) error {
	id := c.Param("approval_id")
	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	var (
		res domain.ToolResult
		err error
	)
	if req.ToolName != "" {
		res, err = h.deps.Approvals.ResumeAfterApproval(ctx, id, req.ToolName, req.ToolInput)
	} else {
		res, err = h.deps.Approvals.ResumeByID(ctx, id)
	}
	if err != nil {
		return h.approvalError(c, id, err)
	}
	return c.JSON(http.StatusOK, ResumeResponse{ApprovalID: id, Result: res})
}

// approvalError maps approval-state errors onto distinct status codes.
func (h *Handler) approvalError(c echo.Context, id string, err error) error {
	status := approvalStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("approval request failed", zap.String("approval_id", id), zap.Error(err))
		return errorJSON(c, status, "internal error")
	}
	return errorJSON(c, status, domain.ApprovalMessage(err))
}

func approvalStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrApprovalNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrApprovalExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrApprovalRejected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrToolMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrApprovalAlreadyDecided),
		errors.Is(err, domain.ErrApprovalConsumed),
		errors.Is(err, domain.ErrApprovalPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
