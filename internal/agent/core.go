// Package agent implements the agent execution core: a bounded tool-calling
// loop that drives the model, gates risky tool calls behind approvals and
// records what it did.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/llm"
	"github.com/cas-pilex/edithAI-sub000/internal/approval"
	"github.com/cas-pilex/edithAI-sub000/internal/audit"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
	"github.com/cas-pilex/edithAI-sub000/internal/policy"
	"github.com/cas-pilex/edithAI-sub000/internal/ratelimit"
)

// DefaultMaxIterations bounds the number of model round-trips per request.
const DefaultMaxIterations = 10

// ToolRegistry is the part of the tool registry the core uses.
type ToolRegistry interface {
	GetForDomain(d domain.AgentType) []domain.ToolDefinition
	GetApprovalCategory(name string) domain.ApprovalCategory
	Validate(name string, input json.RawMessage) error
	Execute(ctx context.Context, name string, input json.RawMessage, ec domain.ExecutionContext) domain.ToolResult
}

// ApprovalCreator persists approval requests. *approval.Gate satisfies it.
type ApprovalCreator interface {
	Create(ctx context.Context, p approval.CreateParams) (*domain.ApprovalRequest, error)
}

// PolicyResolver overrides registry approval categories per context.
// *policy.Engine satisfies it.
type PolicyResolver interface {
	Resolve(ctx context.Context, in policy.Input) (policy.Result, error)
}

// Store persists learning records and conversation history.
type Store interface {
	CreateAction(ctx context.Context, a *domain.RecentAction) error
	CreateMessage(ctx context.Context, m *domain.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
}

// Config tunes the loop.
type Config struct {
	MaxIterations int
	HistoryLimit  int
	Model         string
	MaxTokens     int
	Temperature   float32
}

// Deps are the collaborators of a Core. Model, Tools and Approvals are required.
type Deps struct {
	Model     llm.Model
	Tools     ToolRegistry
	Approvals ApprovalCreator
	Policy    PolicyResolver
	Limiter   ratelimit.Limiter
	Store     Store
	Audit     audit.Writer
	Logger    *zap.Logger
}

// Core is one domain agent backed by the tool-calling loop.
type Core struct {
	agentType    domain.AgentType
	systemPrompt string
	deps         Deps
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

var _ domain.Agent = (*Core)(nil)

// New creates a Core for agentType.
func New(agentType domain.AgentType, systemPrompt string, deps Deps, cfg Config) *Core {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	return &Core{
		agentType:    agentType,
		systemPrompt: systemPrompt,
		deps:         deps,
		cfg:          cfg,
		logger:       logging.OrNop(deps.Logger).With(zap.String("agent", string(agentType))),
		now:          time.Now,
	}
}

// Type implements domain.Agent.
func (c *Core) Type() domain.AgentType {
	return c.agentType
}

// Process implements domain.Agent.
func (c *Core) Process(ctx context.Context, ec domain.ExecutionContext, message, sessionID string) (*domain.AgentResult, error) {
	return c.run(ctx, ec, message, sessionID, nil)
}

// ProcessStream is Process with the streaming model variant. onDelta receives
// text and tool-input deltas as they arrive.
func (c *Core) ProcessStream(ctx context.Context, ec domain.ExecutionContext, message, sessionID string, onDelta llm.StreamCallback) (*domain.AgentResult, error) {
	if onDelta == nil {
		onDelta = func(llm.StreamEvent) error { return nil }
	}
	return c.run(ctx, ec, message, sessionID, onDelta)
}

// run is the per-invocation state machine. A returned error means
// infrastructure broke; model and tool failures come back as a failed result.
func (c *Core) run(ctx context.Context, ec domain.ExecutionContext, message, sessionID string, onDelta llm.StreamCallback) (result *domain.AgentResult, err error) {
	start := c.now()
	if sessionID == "" {
		sessionID = ec.SessionID
	}
	ec = ec.WithDomain(c.agentType)
	ec.SessionID = sessionID

	run := &loopState{
		result: &domain.AgentResult{
			ToolsUsed:      []string{},
			ChainOfThought: []string{},
		},
	}
	defer func() {
		c.recordRun(ctx, ec, run.result, err, c.now().Sub(start))
	}()

	if limited := c.checkRateLimit(ctx, ec.UserID, run); limited {
		return run.result, nil
	}

	history := c.loadHistory(ctx, sessionID)
	c.saveMessage(ctx, ec, llm.RoleUser, message)

	req := &llm.Request{
		Model:       c.cfg.Model,
		System:      c.buildSystemPrompt(ec),
		Messages:    append(history, llm.Message{Role: llm.RoleUser, Content: message}),
		Tools:       c.deps.Tools.GetForDomain(c.agentType),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	for iter := 1; iter <= c.cfg.MaxIterations; iter++ {
		run.result.Iterations = iter
		c.countModelCall(ctx, ec.UserID)
		run.think("Calling model (iteration %d)", iter)

		resp, err := c.complete(ctx, req, onDelta)
		if err != nil {
			c.logger.Warn("model call failed", zap.Int("iteration", iter), zap.Error(err))
			run.result.Success = false
			run.result.Error = err.Error()
			run.think("Model call failed: %s", err.Error())
			return run.result, nil
		}

		text := resp.Text()
		if text != "" {
			run.lastText = text
		}
		calls := resp.ToolCalls()
		if resp.StopReason != llm.StopToolUse || len(calls) == 0 {
			run.result.Success = true
			run.result.Message = text
			run.think("Model answered without tools")
			c.saveMessage(ctx, ec, llm.RoleAssistant, text)
			return run.result, nil
		}

		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})

		for _, call := range calls {
			out, err := c.handleToolCall(ctx, ec, call, run)
			if err != nil {
				run.result.Success = false
				run.result.Error = err.Error()
				return run.result, err
			}
			if out.paused != nil {
				c.pause(ctx, ec, out.paused, run)
				return run.result, nil
			}
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    out.result.Content(),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	// Out of iterations: hand back partial progress instead of failing.
	run.think("Stopped after %d iterations", c.cfg.MaxIterations)
	run.result.Success = true
	run.result.Message = run.lastText
	if run.result.Message == "" {
		run.result.Message = fmt.Sprintf("Stopped after %d steps without a final answer.", c.cfg.MaxIterations)
	}
	c.saveMessage(ctx, ec, llm.RoleAssistant, run.result.Message)
	return run.result, nil
}

type loopState struct {
	result   *domain.AgentResult
	lastText string
}

func (s *loopState) think(format string, args ...interface{}) {
	s.result.ChainOfThought = append(s.result.ChainOfThought, fmt.Sprintf(format, args...))
}

func (c *Core) complete(ctx context.Context, req *llm.Request, onDelta llm.StreamCallback) (*llm.Response, error) {
	if onDelta != nil {
		return c.deps.Model.CompleteStream(ctx, req, onDelta)
	}
	return c.deps.Model.Complete(ctx, req)
}

// checkRateLimit runs once before the first model call. A limiter failure is
// logged and does not block the request.
func (c *Core) checkRateLimit(ctx context.Context, userID string, run *loopState) bool {
	if c.deps.Limiter == nil {
		return false
	}
	st, err := c.deps.Limiter.Check(ctx, userID)
	if err != nil {
		c.logger.Warn("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	if st.Allowed {
		return false
	}
	rle := &domain.RateLimitError{ResetAt: st.ResetAt}
	resetAt := st.ResetAt
	run.result.Success = false
	run.result.RateLimited = true
	run.result.ResetAt = &resetAt
	run.result.Error = rle.Error()
	run.think("Rate limit reached (%d/%d)", st.Count, st.Limit)
	return true
}

func (c *Core) countModelCall(ctx context.Context, userID string) {
	if c.deps.Limiter == nil {
		return
	}
	if _, err := c.deps.Limiter.Increment(ctx, userID); err != nil {
		c.logger.Warn("rate limit increment failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *Core) recordRun(ctx context.Context, ec domain.ExecutionContext, res *domain.AgentResult, runErr error, elapsed time.Duration) {
	eventType := domain.EventTypeAgentRunCompleted
	switch {
	case res.RequiresApproval:
		eventType = domain.EventTypeAgentRunPaused
	case !res.Success || runErr != nil:
		eventType = domain.EventTypeAgentRunFailed
	}
	payload := domain.AgentRunPayload{
		RequestID:  ec.RequestID,
		Success:    res.Success,
		DurationMs: elapsed.Milliseconds(),
		ToolsUsed:  res.ToolsUsed,
		Iterations: res.Iterations,
		ApprovalID: res.ApprovalID,
		Error:      res.Error,
	}
	c.deps.Audit.Write(ctx, audit.NewEvent(eventType, ec.UserID, ec.SessionID, c.agentType, payload))

	fields := []zap.Field{
		zap.String("user_id", ec.UserID),
		zap.String("request_id", ec.RequestID),
		zap.Bool("success", res.Success),
		zap.Int("iterations", res.Iterations),
		zap.Strings("tools_used", res.ToolsUsed),
		zap.Duration("duration", elapsed),
	}
	if runErr != nil {
		c.logger.Error("agent run failed", append(fields, zap.Error(runErr))...)
		return
	}
	c.logger.Info("agent run finished", fields...)
}

// ErrApprovalsUnavailable is returned when a tool needs approval but no gate is configured.
var ErrApprovalsUnavailable = errors.New("approval gate is not configured")
