// Package v1 provides the HTTP handlers of the public API.
package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
	"github.com/cas-pilex/edithAI-sub000/internal/tools"
)

// Router routes a free-text request. *orchestrator.Orchestrator satisfies it.
type Router interface {
	Route(ctx context.Context, ec domain.ExecutionContext, message, sessionID string) (*domain.RoutingResult, error)
}

// Approvals is the approval gate surface. *approval.Gate satisfies it.
type Approvals interface {
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	ListPending(ctx context.Context, userID string) ([]domain.ApprovalRequest, error)
	Decide(ctx context.Context, id string, decision domain.Decision, decidedBy, feedback string) (*domain.ApprovalRequest, error)
	ResumeAfterApproval(ctx context.Context, id, toolName string, toolInput json.RawMessage) (domain.ToolResult, error)
	ResumeByID(ctx context.Context, id string) (domain.ToolResult, error)
}

// ToolCatalog lists registered tools. *tools.Registry satisfies it.
type ToolCatalog interface {
	List() []tools.Tool
}

// Workflows lists and runs workflows. *workflow.Engine satisfies it.
type Workflows interface {
	List() []domain.WorkflowDefinition
	ExecuteByID(ctx context.Context, id string, ec domain.ExecutionContext, params map[string]any) (*domain.WorkflowResult, error)
}

// ContextLoader attaches history to a request context. *agent.ContextLoader satisfies it.
type ContextLoader interface {
	Load(ctx context.Context, ec domain.ExecutionContext) domain.ExecutionContext
}

// Deps are the collaborators a Handler serves. Nil members disable their routes.
type Deps struct {
	Router    Router
	Approvals Approvals
	Tools     ToolCatalog
	Workflows Workflows
	Contexts  ContextLoader
	WebSocket echo.HandlerFunc
	Logger    *zap.Logger
}

// Handler handles HTTP requests.
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		logger: logging.OrNop(deps.Logger),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	if h.deps.Router != nil {
		e.POST("/v1/requests", h.SubmitRequest)
	}

	if h.deps.Approvals != nil {
		e.GET("/v1/approvals", h.ListApprovals)
		e.GET("/v1/approvals/:approval_id", h.GetApproval)
		e.POST("/v1/approvals/:approval_id/decide", h.DecideApproval)
		e.POST("/v1/approvals/:approval_id/resume", h.ResumeApproval)
	}

	if h.deps.Tools != nil {
		e.GET("/v1/tools", h.ListTools)
	}

	if h.deps.Workflows != nil {
		e.GET("/v1/workflows", h.ListWorkflows)
		e.POST("/v1/workflows/:workflow_id/run", h.RunWorkflow)
	}

	if h.deps.WebSocket != nil {
		e.GET("/v1/ws", h.deps.WebSocket)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// contextFields are the caller-supplied parts of an ExecutionContext.
type contextFields struct {
	UserID      string                 `json:"user_id"`
	SessionID   string                 `json:"session_id,omitempty"`
	Timezone    string                 `json:"timezone,omitempty"`
	Preferences domain.UserPreferences `json:"preferences"`
}

func (h *Handler) executionContext(ctx context.Context, f contextFields) domain.ExecutionContext {
	ec := domain.ExecutionContext{
		UserID:      f.UserID,
		SessionID:   f.SessionID,
		RequestID:   "req_" + uuid.NewString(),
		Timezone:    f.Timezone,
		Preferences: f.Preferences,
	}
	if h.deps.Contexts != nil {
		ec = h.deps.Contexts.Load(ctx, ec)
	}
	return ec
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
