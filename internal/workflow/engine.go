// Package workflow runs static multi-agent workflows: a small DAG of steps,
// each delegated to a domain agent, executed in dependency order.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/audit"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// ErrUnknownWorkflow is returned by ExecuteByID for an unregistered id.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// AgentSource resolves domain agents. agents.Set satisfies it.
type AgentSource interface {
	Get(t domain.AgentType) (domain.Agent, bool)
}

// Engine holds the workflow catalog and executes workflows.
type Engine struct {
	agents AgentSource
	audit  audit.Writer
	logger *zap.Logger

	mu    sync.RWMutex
	defs  map[string]domain.WorkflowDefinition
	order []string
}

// EngineOption configures an Engine built by NewDefaultEngine.
type EngineOption func(*Engine)

// WithAudit sets the audit sink.
func WithAudit(w audit.Writer) EngineOption {
	return func(e *Engine) {
		if w != nil {
			e.audit = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// NewEngine creates an engine with an empty catalog.
func NewEngine(agents AgentSource, auditWriter audit.Writer, logger *zap.Logger) *Engine {
	if auditWriter == nil {
		auditWriter = audit.Nop{}
	}
	return &Engine{
		agents: agents,
		audit:  auditWriter,
		logger: logging.OrNop(logger),
		defs:   make(map[string]domain.WorkflowDefinition),
	}
}

// Register validates def and adds it, replacing a definition with the same id.
func (e *Engine) Register(def domain.WorkflowDefinition) error {
	if err := Validate(def, e.knownAgent); err != nil {
		return err
	}
	e.warnDanglingDeps(def)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.defs[def.ID]; !exists {
		e.order = append(e.order, def.ID)
	}
	e.defs[def.ID] = def
	return nil
}

// RegisterAll registers defs, stopping at the first invalid one.
func (e *Engine) RegisterAll(defs []domain.WorkflowDefinition) error {
	for _, def := range defs {
		if err := e.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a registered workflow.
func (e *Engine) Get(id string) (domain.WorkflowDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[id]
	return def, ok
}

// List returns the catalog in registration order.
func (e *Engine) List() []domain.WorkflowDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.WorkflowDefinition, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.defs[id])
	}
	return out
}

// MatchTrigger returns the workflow whose trigger conditions best match
// message, by number of matching phrases. Ties go to the earlier workflow.
func (e *Engine) MatchTrigger(message string) (domain.WorkflowDefinition, bool) {
	msg := strings.ToLower(message)
	var best domain.WorkflowDefinition
	bestScore := 0
	for _, def := range e.List() {
		score := 0
		for _, cond := range def.TriggerConditions {
			if cond != "" && strings.Contains(msg, strings.ToLower(cond)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = def, score
		}
	}
	return best, bestScore > 0
}

// ExecuteByID runs a registered workflow.
func (e *Engine) ExecuteByID(ctx context.Context, id string, ec domain.ExecutionContext, params map[string]any) (*domain.WorkflowResult, error) {
	def, ok := e.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	return e.Execute(ctx, def, ec, params)
}

// Execute runs def's steps sequentially in dependency order.
//
// A step whose dependencies have not all produced a result fails with
// "unmet dependencies" and execution continues. A step that needs approval
// pauses the whole workflow: later steps never run and nothing is rolled
// back. The workflow succeeds when at least one step completed.
//
// The only error returned is a configuration error from ordering, raised
// before any step runs.
func (e *Engine) Execute(ctx context.Context, def domain.WorkflowDefinition, ec domain.ExecutionContext, params map[string]any) (*domain.WorkflowResult, error) {
	steps, err := Order(def)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &domain.WorkflowResult{
		WorkflowID:     def.ID,
		Steps:          make([]domain.StepResult, 0, len(steps)),
		ChainOfThought: []string{fmt.Sprintf("Running workflow %s (%d steps)", def.ID, len(steps))},
	}
	outputs := make(map[string]*domain.AgentResult, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			sr := failedStep(step, "workflow cancelled: "+err.Error())
			res.Steps = append(res.Steps, sr)
			res.FailedSteps++
			break
		}

		if missing := unmetDependencies(step, outputs); len(missing) > 0 {
			sr := failedStep(step, "unmet dependencies: "+strings.Join(missing, ", "))
			res.Steps = append(res.Steps, sr)
			res.FailedSteps++
			res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Skipped %s: %s", step.ID, sr.Error))
			continue
		}

		sr, agentRes := e.runStep(ctx, def, step, ec, stepParameters(params, step, outputs))
		res.Steps = append(res.Steps, sr)

		switch sr.Status {
		case domain.StepStatusPaused:
			res.Status = domain.WorkflowStatusPaused
			res.Success = true
			res.ApprovalID = sr.ApprovalID
			res.PausedAtStep = step.ID
			res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Paused at %s waiting for approval %s", step.ID, sr.ApprovalID))
			e.finish(ctx, ec, res, start)
			return res, nil
		case domain.StepStatusCompleted:
			outputs[step.ID] = agentRes
			res.CompletedSteps++
			res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Completed %s via %s", step.ID, step.Agent))
		default:
			res.FailedSteps++
			res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Step %s failed: %s", step.ID, sr.Error))
		}
	}

	res.Success = res.CompletedSteps > 0
	res.Status = domain.WorkflowStatusCompleted
	if !res.Success {
		res.Status = domain.WorkflowStatusFailed
	}
	e.finish(ctx, ec, res, start)
	return res, nil
}

func (e *Engine) runStep(ctx context.Context, def domain.WorkflowDefinition, step domain.WorkflowStep, ec domain.ExecutionContext, params map[string]any) (domain.StepResult, *domain.AgentResult) {
	a, ok := e.agents.Get(step.Agent)
	if !ok {
		return failedStep(step, fmt.Sprintf("unknown agent %q", step.Agent)), nil
	}

	ar, err := a.Process(ctx, ec.WithDomain(step.Agent), stepMessage(def, step, params), ec.SessionID)
	if err != nil {
		e.logger.Warn("workflow step failed",
			zap.String("workflow_id", def.ID),
			zap.String("step_id", step.ID),
			zap.Error(err),
		)
		return failedStep(step, err.Error()), nil
	}

	sr := domain.StepResult{
		StepID:    step.ID,
		Agent:     step.Agent,
		Message:   ar.Message,
		Data:      ar.Data,
		ToolsUsed: ar.ToolsUsed,
	}
	switch {
	case ar.RequiresApproval:
		sr.Status = domain.StepStatusPaused
		sr.ApprovalID = ar.ApprovalID
	case ar.Success:
		sr.Status = domain.StepStatusCompleted
	default:
		sr.Status = domain.StepStatusFailed
		sr.Error = ar.Error
		if sr.Error == "" {
			sr.Error = "step failed"
		}
	}
	return sr, ar
}

func (e *Engine) finish(ctx context.Context, ec domain.ExecutionContext, res *domain.WorkflowResult, start time.Time) {
	eventType := domain.EventTypeWorkflowCompleted
	if res.Status == domain.WorkflowStatusPaused {
		eventType = domain.EventTypeWorkflowPaused
	}
	e.audit.Write(ctx, audit.NewEvent(eventType, ec.UserID, ec.SessionID, "", map[string]interface{}{
		"workflow_id":     res.WorkflowID,
		"status":          res.Status,
		"completed_steps": res.CompletedSteps,
		"failed_steps":    res.FailedSteps,
		"approval_id":     res.ApprovalID,
		"duration_ms":     time.Since(start).Milliseconds(),
	}))
	e.logger.Info("workflow finished",
		zap.String("workflow_id", res.WorkflowID),
		zap.String("status", string(res.Status)),
		zap.Int("completed_steps", res.CompletedSteps),
		zap.Int("failed_steps", res.FailedSteps),
	)
}

func (e *Engine) knownAgent(t domain.AgentType) bool {
	if e.agents == nil {
		return domain.IsDomainAgent(t)
	}
	_, ok := e.agents.Get(t)
	return ok
}

func (e *Engine) warnDanglingDeps(def domain.WorkflowDefinition) {
	ids := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		ids[s.ID] = true
	}
	for _, s := range def.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				e.logger.Warn("workflow step depends on unknown step",
					zap.String("workflow_id", def.ID),
					zap.String("step_id", s.ID),
					zap.String("depends_on", dep),
				)
			}
		}
	}
}

func failedStep(step domain.WorkflowStep, reason string) domain.StepResult {
	return domain.StepResult{
		StepID: step.ID,
		Agent:  step.Agent,
		Status: domain.StepStatusFailed,
		Error:  reason,
	}
}

func unmetDependencies(step domain.WorkflowStep, outputs map[string]*domain.AgentResult) []string {
	var missing []string
	for _, dep := range step.DependsOn {
		if _, ok := outputs[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

// stepParameters merges the workflow input, the step's static parameters and
// each dependency's result under "<depId>_result".
func stepParameters(base map[string]any, step domain.WorkflowStep, outputs map[string]*domain.AgentResult) map[string]any {
	params := make(map[string]any, len(base)+len(step.Parameters)+len(step.DependsOn))
	for k, v := range base {
		params[k] = v
	}
	for k, v := range step.Parameters {
		params[k] = v
	}
	for _, dep := range step.DependsOn {
		out := outputs[dep]
		if out == nil {
			continue
		}
		params[dep+"_result"] = resultValue(out)
	}
	return params
}

func resultValue(r *domain.AgentResult) any {
	if len(r.Data) > 0 {
		var v any
		if err := json.Unmarshal(r.Data, &v); err == nil {
			return v
		}
	}
	return r.Message
}

func stepMessage(def domain.WorkflowDefinition, step domain.WorkflowStep, params map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %q, step %q: %s\n", def.Name, step.ID, step.Description)
	fmt.Fprintf(&b, "Action: %s\n", step.Action)
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Parameters:\n")
		for _, k := range keys {
			v, err := json.Marshal(params[k])
			if err != nil {
				v = []byte(fmt.Sprint(params[k]))
			}
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	return b.String()
}
