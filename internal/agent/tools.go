package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/llm"
	"github.com/cas-pilex/edithAI-sub000/internal/approval"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/policy"
)

type toolOutcome struct {
	result domain.ToolResult
	paused *domain.ApprovalRequest
}

// handleToolCall resolves approval for one tool call, then either pauses or
// executes it. Errors are infrastructure failures only.
func (c *Core) handleToolCall(ctx context.Context, ec domain.ExecutionContext, call llm.ToolCall, run *loopState) (toolOutcome, error) {
	run.think("Model requested %s", call.Name)

	category, blockReason, blocked := c.resolveCategory(ctx, ec, call)
	if blocked {
		res := domain.FailedResult("blocked by policy: " + blockReason)
		run.think("Policy blocked %s: %s", call.Name, blockReason)
		c.recordAction(ctx, ec, call, res)
		return toolOutcome{result: res}, nil
	}

	// Malformed calls go back to the model instead of to a human.
	if err := c.deps.Tools.Validate(call.Name, call.Input); err != nil {
		res := domain.FailedResult(err.Error())
		run.think("%s rejected: %s", call.Name, res.Error)
		c.recordAction(ctx, ec, call, res)
		return toolOutcome{result: res}, nil
	}

	if needsApproval(category, ec) {
		ap, err := c.requestApproval(ctx, ec, call, category, nil, run)
		if err != nil {
			return toolOutcome{}, err
		}
		return toolOutcome{paused: ap}, nil
	}

	res := c.deps.Tools.Execute(ctx, call.Name, call.Input, ec)
	run.result.ToolsUsed = append(run.result.ToolsUsed, call.Name)

	// A handler may declare that its own completion still needs a human.
	if res.RequiresApproval && ec.ApprovalID == "" && !ec.ApprovalsDisabled {
		c.recordAction(ctx, ec, call, res)
		ap, err := c.requestApproval(ctx, ec, call, domain.ApprovalRequestApproval, res.ApprovalDetails, run)
		if err != nil {
			return toolOutcome{}, err
		}
		return toolOutcome{paused: ap}, nil
	}

	if res.Success {
		run.think("Executed %s", call.Name)
	} else {
		run.think("%s failed: %s", call.Name, res.Error)
	}
	c.recordAction(ctx, ec, call, res)
	return toolOutcome{result: res}, nil
}

// resolveCategory applies the context policy on top of the registry category.
// A policy evaluation failure keeps the registry answer.
func (c *Core) resolveCategory(ctx context.Context, ec domain.ExecutionContext, call llm.ToolCall) (domain.ApprovalCategory, string, bool) {
	category := c.deps.Tools.GetApprovalCategory(call.Name)
	if c.deps.Policy == nil {
		return category, "", false
	}
	decision, err := c.deps.Policy.Resolve(ctx, policy.InputFor(call.Name, category, call.Input, ec))
	if err != nil {
		c.logger.Warn("policy evaluation failed", zap.String("tool_name", call.Name), zap.Error(err))
		return category, "", false
	}
	resolved, blocked := policy.Apply(category, decision.Decision)
	if blocked {
		reason := decision.Reason
		if reason == "" {
			reason = "tool is blocked"
		}
		return resolved, reason, true
	}
	return resolved, "", false
}

// needsApproval reports whether a call must wait for a human. ALWAYS_ASK
// gates even when approvals are disabled for the call.
func needsApproval(category domain.ApprovalCategory, ec domain.ExecutionContext) bool {
	switch category {
	case domain.ApprovalAlwaysAsk:
		return true
	case domain.ApprovalRequestApproval:
		return !ec.ApprovalsDisabled
	default:
		return false
	}
}

func (c *Core) requestApproval(ctx context.Context, ec domain.ExecutionContext, call llm.ToolCall, category domain.ApprovalCategory, details *domain.ApprovalDetails, run *loopState) (*domain.ApprovalRequest, error) {
	if c.deps.Approvals == nil {
		return nil, ErrApprovalsUnavailable
	}
	params := approval.CreateParams{
		UserID:         ec.UserID,
		SessionID:      ec.SessionID,
		AgentType:      c.agentType,
		ToolName:       call.Name,
		ToolInput:      call.Input,
		Category:       category,
		ProposedAction: describeCall(call),
		Reasoning:      run.lastText,
		Impact:         impactOf(category),
		IsReversible:   category != domain.ApprovalAlwaysAsk,
	}
	if details != nil {
		if details.ProposedAction != "" {
			params.ProposedAction = details.ProposedAction
		}
		if details.Reasoning != "" {
			params.Reasoning = details.Reasoning
		}
		if details.Impact != "" {
			params.Impact = details.Impact
		}
		params.IsReversible = details.IsReversible
	}

	ap, err := c.deps.Approvals.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to request approval for %s: %w", call.Name, err)
	}
	run.think("%s requires approval (%s); created %s", call.Name, category, ap.ID)
	return ap, nil
}

func (c *Core) pause(ctx context.Context, ec domain.ExecutionContext, ap *domain.ApprovalRequest, run *loopState) {
	run.result.Success = true
	run.result.RequiresApproval = true
	run.result.ApprovalID = ap.ID
	run.result.Message = "Approval required: " + ap.ProposedAction
	c.saveMessage(ctx, ec, llm.RoleAssistant, run.result.Message)
}

func (c *Core) recordAction(ctx context.Context, ec domain.ExecutionContext, call llm.ToolCall, res domain.ToolResult) {
	if c.deps.Store == nil {
		return
	}
	a := domain.NewRecentAction(ec.UserID, c.agentType, call.Name, call.Input, res, 1)
	if err := c.deps.Store.CreateAction(ctx, &a); err != nil {
		c.logger.Warn("failed to record action", zap.String("tool_name", call.Name), zap.Error(err))
	}
}

func describeCall(call llm.ToolCall) string {
	if len(call.Input) == 0 || string(call.Input) == "{}" {
		return "Run " + call.Name
	}
	return fmt.Sprintf("Run %s with %s", call.Name, string(call.Input))
}

func impactOf(category domain.ApprovalCategory) string {
	if category == domain.ApprovalAlwaysAsk {
		return "High impact: this action always requires confirmation."
	}
	return "This action changes data on your behalf."
}
