// Package orchestrator classifies incoming requests and routes them to a
// domain agent or a workflow.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/llm"
	"github.com/cas-pilex/edithAI-sub000/internal/audit"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// DefaultConfidenceThreshold is the confidence below which the orchestrator
// asks for clarification instead of acting.
const DefaultConfidenceThreshold = 0.7

// AgentSource resolves domain agents. agents.Set satisfies it.
type AgentSource interface {
	Get(t domain.AgentType) (domain.Agent, bool)
}

// Workflows is the workflow engine surface the orchestrator uses.
// *workflow.Engine satisfies it.
type Workflows interface {
	Get(id string) (domain.WorkflowDefinition, bool)
	List() []domain.WorkflowDefinition
	MatchTrigger(message string) (domain.WorkflowDefinition, bool)
	Execute(ctx context.Context, def domain.WorkflowDefinition, ec domain.ExecutionContext, params map[string]any) (*domain.WorkflowResult, error)
}

// Config tunes routing.
type Config struct {
	ConfidenceThreshold float64
	Model               string
}

// Orchestrator routes requests.
type Orchestrator struct {
	model     llm.Model
	agents    AgentSource
	workflows Workflows
	cfg       Config
	audit     audit.Writer
	logger    *zap.Logger
}

// New creates an Orchestrator. workflows may be nil.
func New(model llm.Model, agents AgentSource, workflows Workflows, cfg Config, auditWriter audit.Writer, logger *zap.Logger) *Orchestrator {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if auditWriter == nil {
		auditWriter = audit.Nop{}
	}
	return &Orchestrator{
		model:     model,
		agents:    agents,
		workflows: workflows,
		cfg:       cfg,
		audit:     auditWriter,
		logger:    logging.OrNop(logger),
	}
}

// Route classifies message and acts on it. Below the confidence threshold it
// only returns a clarification question. A suggested workflow runs instead of
// single-agent routing; otherwise the target agent handles the request while
// secondary agents run concurrently.
//
// The returned error is reserved for infrastructure and configuration
// failures; model failures come back as an unsuccessful result.
func (o *Orchestrator) Route(ctx context.Context, ec domain.ExecutionContext, message, sessionID string) (*domain.RoutingResult, error) {
	if ec.RequestID == "" {
		ec.RequestID = "req_" + uuid.NewString()
	}
	if sessionID == "" {
		sessionID = ec.SessionID
	}
	ec.SessionID = sessionID

	res := &domain.RoutingResult{ChainOfThought: []string{}}

	cls, err := o.Classify(ctx, message)
	if err != nil {
		if isParseError(err) {
			res.ChainOfThought = append(res.ChainOfThought, "Could not read the classification: "+err.Error())
			return o.clarify(ctx, ec, res, ""), nil
		}
		o.logger.Warn("classification failed", zap.String("request_id", ec.RequestID), zap.Error(err))
		res.Success = false
		res.Error = err.Error()
		res.ChainOfThought = append(res.ChainOfThought, "Classification failed: "+err.Error())
		return res, nil
	}

	res.Intent = cls.Intent
	res.TargetAgent = cls.TargetAgent
	res.Confidence = cls.Confidence
	res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Classified as %q for %s (confidence %.2f)", cls.Intent, cls.TargetAgent, cls.Confidence))
	if cls.Reasoning != "" {
		res.ChainOfThought = append(res.ChainOfThought, "Reasoning: "+cls.Reasoning)
	}

	if cls.Confidence < o.cfg.ConfidenceThreshold {
		res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Confidence below %.2f, asking for clarification", o.cfg.ConfidenceThreshold))
		return o.clarify(ctx, ec, res, cls.Intent), nil
	}

	if def, ok := o.pickWorkflow(cls); ok {
		res.ChainOfThought = append(res.ChainOfThought, "Running workflow "+def.ID)
		wf, err := o.workflows.Execute(ctx, def, ec, cls.Parameters)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.ID, err)
		}
		res.WorkflowResult = wf
		res.Success = wf.Success
		if !wf.Success {
			res.Error = "workflow " + def.ID + " did not complete any step"
		}
		res.ChainOfThought = append(res.ChainOfThought, wf.ChainOfThought...)
		o.routed(ctx, ec, res, def.ID)
		return res, nil
	}

	primary, ok := o.agents.Get(cls.TargetAgent)
	if !ok {
		res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Unknown agent %q", cls.TargetAgent))
		return o.clarify(ctx, ec, res, cls.Intent), nil
	}

	secondaries := o.startSecondaries(ctx, ec, cls, message)

	ar, err := primary.Process(ctx, ec.WithDomain(cls.TargetAgent), message, sessionID)
	res.SecondaryResults = secondaries.wait()
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cls.TargetAgent, err)
	}

	res.AgentResult = ar
	res.Success = ar.Success
	res.Error = ar.Error
	res.ChainOfThought = append(res.ChainOfThought, ar.ChainOfThought...)
	for _, sr := range res.SecondaryResults {
		switch {
		case sr.Error != "":
			res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Secondary %s failed: %s", sr.Agent, sr.Error))
		case sr.Result != nil:
			res.ChainOfThought = append(res.ChainOfThought, fmt.Sprintf("Secondary %s: %s", sr.Agent, sr.Result.Message))
		}
	}
	o.routed(ctx, ec, res, "")
	return res, nil
}

// pickWorkflow returns the workflow the classifier suggested, if it exists.
// Trigger phrases only inform the classification prompt.
func (o *Orchestrator) pickWorkflow(cls *domain.Classification) (domain.WorkflowDefinition, bool) {
	if o.workflows == nil || cls.SuggestedWorkflow == "" {
		return domain.WorkflowDefinition{}, false
	}
	def, ok := o.workflows.Get(cls.SuggestedWorkflow)
	if !ok {
		o.logger.Debug("classifier suggested unknown workflow", zap.String("workflow_id", cls.SuggestedWorkflow))
	}
	return def, ok
}

type secondaryRun struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	results []domain.SecondaryResult
}

// startSecondaries runs every distinct secondary agent concurrently.
// Results arrive in completion order.
func (o *Orchestrator) startSecondaries(ctx context.Context, ec domain.ExecutionContext, cls *domain.Classification, message string) *secondaryRun {
	run := &secondaryRun{}
	seen := map[domain.AgentType]bool{cls.TargetAgent: true}
	for _, t := range cls.SecondaryAgents {
		if seen[t] {
			continue
		}
		seen[t] = true
		a, ok := o.agents.Get(t)
		if !ok {
			o.logger.Debug("skipping unknown secondary agent", zap.String("agent", string(t)))
			continue
		}
		run.wg.Add(1)
		go func(t domain.AgentType, a domain.Agent) {
			defer run.wg.Done()
			sr := domain.SecondaryResult{Agent: t}
			ar, err := a.Process(ctx, ec.WithDomain(t), message, ec.SessionID)
			if err != nil {
				sr.Error = err.Error()
			} else {
				sr.Result = ar
			}
			run.mu.Lock()
			run.results = append(run.results, sr)
			run.mu.Unlock()
		}(t, a)
	}
	return run
}

func (r *secondaryRun) wait() []domain.SecondaryResult {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results
}

func (o *Orchestrator) clarify(ctx context.Context, ec domain.ExecutionContext, res *domain.RoutingResult, intent string) *domain.RoutingResult {
	res.Success = true
	if intent != "" {
		res.Clarification = fmt.Sprintf("I think you want to %s, but I'm not sure. Could you give me a bit more detail?", strings.ReplaceAll(intent, "_", " "))
	} else {
		res.Clarification = "I'm not sure what you'd like me to do. Could you rephrase or add more detail?"
	}
	o.audit.Write(ctx, audit.NewEvent(domain.EventTypeRequestClarify, ec.UserID, ec.SessionID, domain.AgentOrchestrator, map[string]interface{}{
		"request_id": ec.RequestID,
		"intent":     res.Intent,
		"confidence": res.Confidence,
	}))
	return res
}

func (o *Orchestrator) routed(ctx context.Context, ec domain.ExecutionContext, res *domain.RoutingResult, workflowID string) {
	o.audit.Write(ctx, audit.NewEvent(domain.EventTypeRequestRouted, ec.UserID, ec.SessionID, domain.AgentOrchestrator, map[string]interface{}{
		"request_id":   ec.RequestID,
		"intent":       res.Intent,
		"target_agent": res.TargetAgent,
		"confidence":   res.Confidence,
		"workflow_id":  workflowID,
		"success":      res.Success,
	}))
	o.logger.Info("request routed",
		zap.String("request_id", ec.RequestID),
		zap.String("target_agent", string(res.TargetAgent)),
		zap.String("workflow_id", workflowID),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("success", res.Success),
	)
}

// Classify asks the model to classify message.
func (o *Orchestrator) Classify(ctx context.Context, message string) (*domain.Classification, error) {
	resp, err := o.model.Complete(ctx, &llm.Request{
		Model:       o.cfg.Model,
		System:      o.classificationPrompt(message),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: message}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return ParseClassification(resp.Text())
}

func (o *Orchestrator) classificationPrompt(message string) string {
	var b strings.Builder
	b.WriteString("You classify requests for a personal operations assistant and pick who should handle them.\n\n")
	b.WriteString("Agents:\n")
	for _, t := range domain.DomainAgents {
		if _, ok := o.agents.Get(t); ok {
			fmt.Fprintf(&b, "- %s: %s\n", t, agentBlurbs[t])
		}
	}
	if o.workflows != nil {
		if defs := o.workflows.List(); len(defs) > 0 {
			b.WriteString("\nWorkflows (multi-step processes):\n")
			for _, d := range defs {
				fmt.Fprintf(&b, "- %s: %s\n", d.ID, d.Description)
			}
		}
		if def, ok := o.workflows.MatchTrigger(message); ok {
			fmt.Fprintf(&b, "\nThe request mentions trigger phrases of %s. Suggest it only if the user wants the whole process run.\n", def.ID)
		}
	}
	b.WriteString(`
Answer with JSON only:
{"intent": "...", "targetAgent": "<agent>", "confidence": 0.0-1.0, "parameters": {}, "secondaryAgents": [], "suggestedWorkflow": "<workflow id or empty>", "reasoning": "..."}`)
	return b.String()
}

var agentBlurbs = map[domain.AgentType]string{
	domain.AgentInbox:       "email search, drafting, sending, archiving",
	domain.AgentCalendar:    "events, availability, scheduling",
	domain.AgentCRM:         "contacts and client interactions",
	domain.AgentTravel:      "flights, hotels, bookings",
	domain.AgentTasks:       "to-dos and reminders",
	domain.AgentMeetingPrep: "meeting briefs and attendee research",
}
