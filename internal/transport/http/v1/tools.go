package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// ToolInfo describes a registered tool.
type ToolInfo struct {
	domain.ToolDefinition
	Domain           domain.AgentType        `json:"domain"`
	ApprovalCategory domain.ApprovalCategory `json:"approval_category"`
}

// ListTools returns the tool catalog, optionally filtered by ?domain=.
func (h *Handler) ListTools(c echo.Context) error {
	filter := domain.AgentType(c.QueryParam("domain"))
	out := []ToolInfo{}
	for _, t := range h.deps.Tools.List() {
		if filter != "" && t.Domain != filter {
			continue
		}
		out = append(out, ToolInfo{
			ToolDefinition:   t.ToolDefinition,
			Domain:           t.Domain,
			ApprovalCategory: t.ApprovalCategory,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": out})
}
