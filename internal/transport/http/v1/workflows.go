package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/workflow"
)

// RunWorkflowRequest is the body of POST /v1/workflows/:workflow_id/run.
type RunWorkflowRequest struct {
	contextFields
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ListWorkflows returns the registered workflow definitions.
func (h *Handler) ListWorkflows(c echo.Context) error {
	defs := h.deps.Workflows.List()
	if defs == nil {
		defs = []domain.WorkflowDefinition{}
	}
	return c.JSON(http.StatusOK, map[string]any{"workflows": defs})
}

// RunWorkflow executes a workflow directly, bypassing classification.
func (h *Handler) RunWorkflow(c echo.Context) error {
	id := c.Param("workflow_id")
	var req RunWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if blank(req.UserID) {
		return errorJSON(c, http.StatusBadRequest, "user_id is required")
	}

	ctx := c.Request().Context()
	ec := h.executionContext(ctx, req.contextFields)
	res, err := h.deps.Workflows.ExecuteByID(ctx, id, ec, req.Parameters)
	switch {
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return errorJSON(c, http.StatusNotFound, "workflow not found")
	case err != nil:
		h.logger.Error("workflow execution failed", zap.String("workflow_id", id), zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
