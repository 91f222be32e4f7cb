package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SubmitRequestBody is the body of POST /v1/requests.
type SubmitRequestBody struct {
	contextFields
	Message string `json:"message"`
}

// SubmitRequest routes a free-text request through the orchestrator.
func (h *Handler) SubmitRequest(c echo.Context) error {
	var req SubmitRequestBody
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if blank(req.UserID) {
		return errorJSON(c, http.StatusBadRequest, "user_id is required")
	}
	if blank(req.Message) {
		return errorJSON(c, http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	ec := h.executionContext(ctx, req.contextFields)
	res, err := h.deps.Router.Route(ctx, ec, req.Message, req.SessionID)
	if err != nil {
		h.logger.Error("request routing failed",
			zap.String("request_id", ec.RequestID),
			zap.String("user_id", ec.UserID),
			zap.Error(err),
		)
		return errorJSON(c, http.StatusInternalServerError, "failed to process request")
	}

	status := http.StatusOK
	if res.AgentResult != nil && res.AgentResult.RateLimited {
		status = http.StatusTooManyRequests
	}
	return c.JSON(status, res)
}
