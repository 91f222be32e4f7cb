// Package policy resolves context-specific overrides of a tool's approval
// category with an OPA policy.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// Decision is the policy verdict for one tool call.
type Decision string

const (
	DecisionInherit         Decision = "inherit"
	DecisionAutoApprove     Decision = "auto_approve"
	DecisionRequireApproval Decision = "require_approval"
	DecisionAlwaysAsk       Decision = "always_ask"
	DecisionBlock           Decision = "block"
)

// Input is what the policy sees for one tool call.
type Input struct {
	ToolName       string
	Category       domain.ApprovalCategory
	Domain         domain.AgentType
	UserID         string
	Args           json.RawMessage
	SpendThreshold float64
	TrustedTools   []string
	BlockedTools   []string
}

// InputFor builds the policy input of a tool call made under ec.
func InputFor(toolName string, category domain.ApprovalCategory, args json.RawMessage, ec domain.ExecutionContext) Input {
	return Input{
		ToolName:       toolName,
		Category:       category,
		Domain:         ec.Domain,
		UserID:         ec.UserID,
		Args:           args,
		SpendThreshold: ec.Preferences.SpendThreshold,
		TrustedTools:   ec.TrustedTools(),
		BlockedTools:   ec.Preferences.BlockedTools,
	}
}

// Result is a decision plus a human-readable reason.
type Result struct {
	Decision Decision
	Reason   string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from rego source.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.approval_policy.result"),
		rego.Module("approval_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy at path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Resolve evaluates the policy for in.
func (e *Engine) Resolve(ctx context.Context, in Input) (Result, error) {
	var args any = map[string]any{}
	if len(in.Args) > 0 {
		if err := json.Unmarshal(in.Args, &args); err != nil {
			return Result{}, fmt.Errorf("failed to decode tool args: %w", err)
		}
	}
	input := map[string]any{
		"tool_name":       in.ToolName,
		"category":        string(in.Category),
		"domain":          string(in.Domain),
		"user_id":         in.UserID,
		"args":            args,
		"spend_threshold": in.SpendThreshold,
		"trusted_tools":   nonNil(in.TrustedTools),
		"blocked_tools":   nonNil(in.BlockedTools),
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Result{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Result{Decision: DecisionInherit}, nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		return Result{Decision: Decision(v)}, nil
	case map[string]interface{}:
		res := Result{}
		if d, ok := v["decision"].(string); ok {
			res.Decision = Decision(d)
		}
		if r, ok := v["reason"].(string); ok {
			res.Reason = r
		}
		if res.Decision == "" {
			res.Decision = DecisionInherit
		}
		return res, nil
	default:
		return Result{}, fmt.Errorf("unexpected policy result type %T", v)
	}
}

// Apply folds a decision into the registry category. ALWAYS_ASK is never
// downgraded. The second return value reports a block.
func Apply(base domain.ApprovalCategory, d Decision) (domain.ApprovalCategory, bool) {
	if base == "" {
		base = domain.ApprovalAutoApprove
	}
	switch d {
	case DecisionBlock:
		return base, true
	case DecisionAlwaysAsk:
		return domain.ApprovalAlwaysAsk, false
	case DecisionRequireApproval:
		if base == domain.ApprovalAlwaysAsk {
			return base, false
		}
		return domain.ApprovalRequestApproval, false
	case DecisionAutoApprove:
		if base == domain.ApprovalAlwaysAsk {
			return base, false
		}
		return domain.ApprovalAutoApprove, false
	default:
		return base, false
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package approval_policy

default decision := "inherit"

decision := "block" if {
	input.tool_name in input.blocked_tools
} else := "always_ask" if {
	input.category == "ALWAYS_ASK"
} else := "require_approval" if {
	input.spend_threshold > 0
	input.args.amount > input.spend_threshold
} else := "auto_approve" if {
	input.category == "REQUEST_APPROVAL"
	input.tool_name in input.trusted_tools
}

reasons := {
	"inherit": "",
	"block": "tool is blocked by user preference",
	"always_ask": "tool always requires confirmation",
	"require_approval": sprintf("amount exceeds spend threshold of %v", [input.spend_threshold]),
	"auto_approve": "user trusts this tool",
}

result := {"decision": decision, "reason": reasons[decision]}
`
