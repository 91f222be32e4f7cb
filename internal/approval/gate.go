// Package approval implements the approval gate: durable approval requests
// that suspend a tool call until a human decides, and at-most-once resume.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/audit"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
	"github.com/cas-pilex/edithAI-sub000/internal/notify"
)

// Store is the persistence the gate needs.
type Store interface {
	CreateApproval(ctx context.Context, ap *domain.ApprovalRequest) error
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	ListPendingApprovals(ctx context.Context, userID string) ([]domain.ApprovalRequest, error)
	ListExpiredPendingApprovals(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalRequest, error)
	DecideApproval(ctx context.Context, id string, status domain.ApprovalStatus, decidedBy, feedback string, at time.Time) (bool, error)
	ExpireApprovalIfPending(ctx context.Context, id string, at time.Time) (bool, error)
	ConsumeApproval(ctx context.Context, id string, at time.Time) (bool, error)
	CreateAction(ctx context.Context, a *domain.RecentAction) error
}

// Executor runs a tool. *tools.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, input json.RawMessage, ec domain.ExecutionContext) domain.ToolResult
}

// Gate creates, decides and resumes approval requests.
type Gate struct {
	store    Store
	tools    Executor
	notifier notify.Notifier
	audit    audit.Writer
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithNotifier sets the channel approval prompts are sent through.
func WithNotifier(n notify.Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// WithAudit sets the audit sink.
func WithAudit(w audit.Writer) Option {
	return func(g *Gate) { g.audit = w }
}

// WithWindow sets the default validity window of new requests.
func WithWindow(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = logging.OrNop(l) }
}

// NewGate creates a Gate.
func NewGate(store Store, tools Executor, opts ...Option) *Gate {
	g := &Gate{
		store:    store,
		tools:    tools,
		notifier: notify.Nop{},
		audit:    audit.Nop{},
		window:   domain.DefaultApprovalWindow,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateParams describes the tool call that needs a decision.
type CreateParams struct {
	UserID         string
	SessionID      string
	AgentType      domain.AgentType
	ToolName       string
	ToolInput      json.RawMessage
	Category       domain.ApprovalCategory
	ProposedAction string
	Reasoning      string
	Impact         string
	IsReversible   bool
	// Window overrides the gate's default validity window when positive.
	Window time.Duration
}

// Create persists a PENDING approval request and notifies the user. A failed
// notification does not fail creation.
func (g *Gate) Create(ctx context.Context, p CreateParams) (*domain.ApprovalRequest, error) {
	window := g.window
	if p.Window > 0 {
		window = p.Window
	}
	category := p.Category
	if category == "" {
		category = domain.ApprovalRequestApproval
	}
	proposed := p.ProposedAction
	if proposed == "" {
		proposed = "Execute " + p.ToolName
	}

	now := g.now().UTC()
	ap := &domain.ApprovalRequest{
		ID:             "ap_" + uuid.NewString(),
		UserID:         p.UserID,
		SessionID:      p.SessionID,
		AgentType:      p.AgentType,
		ToolName:       p.ToolName,
		ToolInput:      p.ToolInput,
		Category:       category,
		ProposedAction: proposed,
		Reasoning:      p.Reasoning,
		Impact:         p.Impact,
		IsReversible:   p.IsReversible,
		Status:         domain.ApprovalStatusPending,
		ExpiresAt:      now.Add(window),
		CreatedAt:      now,
	}
	if err := g.store.CreateApproval(ctx, ap); err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	g.logger.Info("approval requested",
		zap.String("approval_id", ap.ID),
		zap.String("user_id", ap.UserID),
		zap.String("tool_name", ap.ToolName),
		zap.String("category", string(ap.Category)),
	)
	g.audit.Write(ctx, audit.NewEvent(domain.EventTypeApprovalRequested, ap.UserID, ap.SessionID, ap.AgentType, map[string]string{
		"approval_id": ap.ID,
		"tool_name":   ap.ToolName,
		"category":    string(ap.Category),
	}))

	if !g.notifier.Send(ctx, ap.UserID, "Approval needed", notificationBody(ap), decisionActions(ap.ID)) {
		g.logger.Debug("approval notification not delivered", zap.String("approval_id", ap.ID))
	}
	return ap, nil
}

// Get returns an approval request or ErrApprovalNotFound.
func (g *Gate) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	ap, err := g.store.GetApproval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if ap == nil {
		return nil, domain.ErrApprovalNotFound
	}
	return ap, nil
}

// ListPending returns the user's pending requests that are still in their window.
func (g *Gate) ListPending(ctx context.Context, userID string) ([]domain.ApprovalRequest, error) {
	all, err := g.store.ListPendingApprovals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	now := g.now()
	out := make([]domain.ApprovalRequest, 0, len(all))
	for _, ap := range all {
		if !ap.IsExpired(now) {
			out = append(out, ap)
		}
	}
	return out, nil
}

// Decide moves a PENDING request to APPROVED or REJECTED. It is effective
// exactly once; a request past its window is marked EXPIRED instead.
func (g *Gate) Decide(ctx context.Context, id string, decision domain.Decision, decidedBy, feedback string) (*domain.ApprovalRequest, error) {
	status, ok := decision.Status()
	if !ok {
		return nil, fmt.Errorf("invalid decision %q", decision)
	}

	ap, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := g.now()
	if ap.IsExpired(now) {
		g.expire(ctx, ap, now)
		return nil, domain.ErrApprovalExpired
	}
	if ap.Status != domain.ApprovalStatusPending {
		return nil, domain.ErrApprovalAlreadyDecided
	}

	updated, err := g.store.DecideApproval(ctx, id, status, decidedBy, feedback, now)
	if err != nil {
		return nil, fmt.Errorf("failed to decide approval: %w", err)
	}
	if !updated {
		// lost a race with another decision or the sweeper
		current, err := g.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.IsExpired(g.now()) {
			return nil, domain.ErrApprovalExpired
		}
		return nil, domain.ErrApprovalAlreadyDecided
	}

	g.logger.Info("approval decided",
		zap.String("approval_id", id),
		zap.String("status", string(status)),
		zap.String("decided_by", decidedBy),
	)
	g.audit.Write(ctx, audit.NewEvent(domain.EventTypeApprovalDecision, ap.UserID, ap.SessionID, ap.AgentType, map[string]string{
		"approval_id": id,
		"status":      string(status),
		"decided_by":  decidedBy,
	}))
	return g.Get(ctx, id)
}

// ResumeAfterApproval executes the approved tool call exactly once. toolName
// must match the stored request; toolInput, when given, must be equivalent to
// the stored input. Approval-state problems are returned both as a failed
// result carrying the user-facing message and as the matching sentinel error.
func (g *Gate) ResumeAfterApproval(ctx context.Context, id, toolName string, toolInput json.RawMessage) (domain.ToolResult, error) {
	return g.resume(ctx, id, toolName, toolInput, true)
}

// ResumeByID resumes using the tool name and input stored on the request.
func (g *Gate) ResumeByID(ctx context.Context, id string) (domain.ToolResult, error) {
	return g.resume(ctx, id, "", nil, false)
}

func (g *Gate) resume(ctx context.Context, id, toolName string, toolInput json.RawMessage, checkTool bool) (domain.ToolResult, error) {
	ap, err := g.store.GetApproval(ctx, id)
	if err != nil {
		return domain.FailedResult("failed to load approval"), fmt.Errorf("failed to get approval: %w", err)
	}
	if err := g.checkResumable(ap, toolName, toolInput, checkTool); err != nil {
		return domain.FailedResult(domain.ApprovalMessage(err)), err
	}

	now := g.now()
	claimed, err := g.store.ConsumeApproval(ctx, id, now)
	if err != nil {
		return domain.FailedResult("failed to claim approval"), fmt.Errorf("failed to consume approval: %w", err)
	}
	if !claimed {
		return domain.FailedResult(domain.ApprovalMessage(domain.ErrApprovalConsumed)), domain.ErrApprovalConsumed
	}

	input := ap.ToolInput
	if len(toolInput) > 0 {
		input = toolInput
	}
	ec := domain.ExecutionContext{
		UserID:            ap.UserID,
		SessionID:         ap.SessionID,
		RequestID:         "resume_" + id,
		Domain:            ap.AgentType,
		ApprovalsDisabled: true,
		ApprovalID:        id,
	}
	res := g.tools.Execute(ctx, ap.ToolName, input, ec)

	action := domain.NewRecentAction(ap.UserID, ap.AgentType, ap.ToolName, input, res, 1)
	if err := g.store.CreateAction(ctx, &action); err != nil {
		g.logger.Warn("failed to record resumed action", zap.String("approval_id", id), zap.Error(err))
	}
	g.audit.Write(ctx, audit.NewEvent(domain.EventTypeApprovalResumed, ap.UserID, ap.SessionID, ap.AgentType, map[string]interface{}{
		"approval_id": id,
		"tool_name":   ap.ToolName,
		"success":     res.Success,
	}))
	g.logger.Info("approval resumed",
		zap.String("approval_id", id),
		zap.String("tool_name", ap.ToolName),
		zap.Bool("success", res.Success),
	)
	return res, nil
}

func (g *Gate) checkResumable(ap *domain.ApprovalRequest, toolName string, toolInput json.RawMessage, checkTool bool) error {
	if ap == nil {
		return domain.ErrApprovalNotFound
	}
	if ap.Status == domain.ApprovalStatusRejected {
		return domain.ErrApprovalRejected
	}
	if ap.IsExpired(g.now()) {
		return domain.ErrApprovalExpired
	}
	if ap.Status == domain.ApprovalStatusPending {
		return domain.ErrApprovalPending
	}
	if ap.ConsumedAt != nil {
		return domain.ErrApprovalConsumed
	}
	if checkTool {
		if toolName != ap.ToolName {
			return domain.ErrToolMismatch
		}
		if len(toolInput) > 0 && len(ap.ToolInput) > 0 && !sameJSON(toolInput, ap.ToolInput) {
			return domain.ErrToolMismatch
		}
	}
	return nil
}

func (g *Gate) expire(ctx context.Context, ap *domain.ApprovalRequest, now time.Time) bool {
	if ap.Status != domain.ApprovalStatusPending {
		return false
	}
	updated, err := g.store.ExpireApprovalIfPending(ctx, ap.ID, now)
	if err != nil {
		g.logger.Warn("failed to expire approval", zap.String("approval_id", ap.ID), zap.Error(err))
		return false
	}
	if !updated {
		return false
	}
	g.audit.Write(ctx, audit.NewEvent(domain.EventTypeApprovalExpired, ap.UserID, ap.SessionID, ap.AgentType, map[string]string{
		"approval_id": ap.ID,
		"tool_name":   ap.ToolName,
	}))
	return true
}

func notificationBody(ap *domain.ApprovalRequest) string {
	body := ap.ProposedAction
	if ap.Impact != "" {
		body += "\nImpact: " + ap.Impact
	}
	if !ap.IsReversible {
		body += "\nThis action cannot be undone."
	}
	return body
}

func decisionActions(id string) []notify.Action {
	return []notify.Action{
		{ID: string(domain.DecisionApprove), Label: "Approve", Payload: map[string]string{"approval_id": id}},
		{ID: string(domain.DecisionReject), Label: "Reject", Payload: map[string]string{"approval_id": id}},
	}
}

func sameJSON(a, b json.RawMessage) bool {
	var va, vb interface{}
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
