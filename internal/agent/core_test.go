package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/llm"
	"github.com/cas-pilex/edithAI-sub000/internal/approval"
	"github.com/cas-pilex/edithAI-sub000/internal/audit"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/policy"
	"github.com/cas-pilex/edithAI-sub000/internal/ratelimit"
	"github.com/cas-pilex/edithAI-sub000/internal/repository"
	"github.com/cas-pilex/edithAI-sub000/internal/testutil"
	"github.com/cas-pilex/edithAI-sub000/internal/tools"
)

type harness struct {
	core    *Core
	model   *llm.MockModel
	store   *repository.Store
	gate    *approval.Gate
	limiter *ratelimit.MemoryLimiter

	mu    sync.Mutex
	execs []string
}

func (h *harness) executed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.execs...)
}

func (h *harness) tool(name string, category domain.ApprovalCategory, fn tools.Handler) tools.Tool {
	return tools.Tool{
		ToolDefinition:   domain.ToolDefinition{Name: name, Description: name},
		Domain:           domain.AgentTasks,
		ApprovalCategory: category,
		Handler: func(ctx context.Context, input json.RawMessage, ec domain.ExecutionContext) (domain.ToolResult, error) {
			h.mu.Lock()
			h.execs = append(h.execs, name)
			h.mu.Unlock()
			if fn != nil {
				return fn(ctx, input, ec)
			}
			return domain.ToolResult{Success: true, Data: json.RawMessage(`{"ok":true}`)}, nil
		},
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		model:   llm.NewMockModel(),
		store:   testutil.NewTestSQLiteStore(t),
		limiter: ratelimit.NewMemoryLimiter(100, time.Hour),
	}

	reg := tools.NewRegistry()
	reg.MustRegister(h.tool("tasks.list", domain.ApprovalAutoApprove, nil))
	reg.MustRegister(h.tool("tasks.create", domain.ApprovalAutoApprove, nil))
	reg.MustRegister(h.tool("tasks.delete", domain.ApprovalRequestApproval, nil))
	reg.MustRegister(h.tool("tasks.purge", domain.ApprovalAlwaysAsk, nil))
	reg.MustRegister(h.tool("tasks.fail", domain.ApprovalAutoApprove, func(context.Context, json.RawMessage, domain.ExecutionContext) (domain.ToolResult, error) {
		return domain.ToolResult{}, errors.New("backend unavailable")
	}))
	reg.MustRegister(h.tool("tasks.pay", domain.ApprovalAutoApprove, func(context.Context, json.RawMessage, domain.ExecutionContext) (domain.ToolResult, error) {
		return domain.ToolResult{Success: true}, nil
	}))
	reg.MustRegister(h.tool("tasks.reserve", domain.ApprovalAutoApprove, func(_ context.Context, _ json.RawMessage, ec domain.ExecutionContext) (domain.ToolResult, error) {
		if ec.ApprovalID != "" {
			return domain.ToolResult{Success: true, Data: json.RawMessage(`{"confirmed":true}`)}, nil
		}
		return domain.ToolResult{
			Success:          true,
			RequiresApproval: true,
			ApprovalDetails:  &domain.ApprovalDetails{ProposedAction: "Confirm reservation for 300 EUR", Impact: "Card charge", IsReversible: false},
		}, nil
	}))
	archive := h.tool("tasks.archive", domain.ApprovalRequestApproval, nil)
	archive.InputSchema = domain.JSONSchema{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "string"}},
		"required":   []any{"id"},
	}
	reg.MustRegister(archive)
	reg.Seal()

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	h.gate = approval.NewGate(h.store, reg)
	h.core = New(domain.AgentTasks, "You manage tasks.", Deps{
		Model:     h.model,
		Tools:     reg,
		Approvals: h.gate,
		Policy:    engine,
		Limiter:   h.limiter,
		Store:     h.store,
		Audit:     audit.NewStoreWriter(h.store, nil),
	}, cfg)
	return h
}

func call(id, name, input string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}
}

func baseContext() domain.ExecutionContext {
	return domain.ExecutionContext{UserID: "u1", RequestID: "req_1", Timezone: "Europe/Berlin"}
}

func TestLoopTerminatesAfterMaxIterations(t *testing.T) {
	h := newHarness(t, Config{})
	n := 0
	h.model.Fallback = func(*llm.Request) *llm.Response {
		n++
		return llm.ToolUseResponse(fmt.Sprintf("step %d", n), call(fmt.Sprintf("c%d", n), "tasks.list", `{}`))
	}

	res, err := h.core.Process(context.Background(), baseContext(), "loop forever", "s1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, DefaultMaxIterations, h.model.Calls())
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.True(t, res.Success)
	assert.Equal(t, "step 10", res.Message)
	assert.Len(t, res.ToolsUsed, DefaultMaxIterations)
	assert.False(t, res.RequiresApproval)
}

func TestLoopHonorsConfiguredBound(t *testing.T) {
	h := newHarness(t, Config{MaxIterations: 3})
	h.model.Fallback = func(*llm.Request) *llm.Response {
		return llm.ToolUseResponse("", call("c", "tasks.list", `{}`))
	}

	res, err := h.core.Process(context.Background(), baseContext(), "loop", "")
	require.NoError(t, err)
	assert.Equal(t, 3, h.model.Calls())
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "Stopped after 3 steps")
}

func TestApprovalShortCircuitsBatch(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.Push(llm.ToolUseResponse("Cleaning up",
		call("c1", "tasks.list", `{}`),
		call("c2", "tasks.delete", `{"task_id":"t1"}`),
		call("c3", "tasks.create", `{"title":"after"}`),
	))

	res, err := h.core.Process(context.Background(), baseContext(), "delete t1", "s1")
	require.NoError(t, err)

	assert.True(t, res.RequiresApproval)
	require.NotEmpty(t, res.ApprovalID)
	assert.Equal(t, []string{"tasks.list"}, h.executed())
	assert.Equal(t, []string{"tasks.list"}, res.ToolsUsed)
	assert.Equal(t, 1, h.model.Calls())

	ap, err := h.gate.Get(context.Background(), res.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, ap.Status)
	assert.Equal(t, "tasks.delete", ap.ToolName)
	assert.Equal(t, "s1", ap.SessionID)
	assert.Equal(t, "Cleaning up", ap.Reasoning)
	assert.JSONEq(t, `{"task_id":"t1"}`, string(ap.ToolInput))

	resumed, err := h.gate.ResumeByID(context.Background(), res.ApprovalID)
	require.ErrorIs(t, err, domain.ErrApprovalPending)
	assert.False(t, resumed.Success)
}

func TestApprovalsDisabledStillGatesAlwaysAsk(t *testing.T) {
	h := newHarness(t, Config{})
	ec := baseContext()
	ec.ApprovalsDisabled = true

	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.delete", `{"task_id":"t1"}`)))
	h.model.Push(llm.ToolUseResponse("", call("c2", "tasks.purge", `{}`)))

	res, err := h.core.Process(context.Background(), ec, "delete and purge", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks.delete"}, h.executed())
	assert.True(t, res.RequiresApproval)

	ap, err := h.gate.Get(context.Background(), res.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalAlwaysAsk, ap.Category)
	assert.False(t, ap.IsReversible)
}

func TestHandlerDeclaredApprovalPauses(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.reserve", `{"amount":300}`)))

	res, err := h.core.Process(context.Background(), baseContext(), "reserve", "")
	require.NoError(t, err)
	require.True(t, res.RequiresApproval)
	assert.Equal(t, "Approval required: Confirm reservation for 300 EUR", res.Message)

	ap, err := h.gate.Get(context.Background(), res.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, "Card charge", ap.Impact)
	assert.False(t, ap.IsReversible)

	_, err = h.gate.Decide(context.Background(), ap.ID, domain.DecisionApprove, "u1", "")
	require.NoError(t, err)
	out, err := h.gate.ResumeAfterApproval(context.Background(), ap.ID, "tasks.reserve", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"confirmed":true}`, string(out.Data))
	assert.Equal(t, []string{"tasks.reserve", "tasks.reserve"}, h.executed())
}

func TestRateLimitShortCircuits(t *testing.T) {
	h := newHarness(t, Config{})
	h.core.deps.Limiter = ratelimit.NewMemoryLimiter(2, time.Hour)

	for i := 0; i < 2; i++ {
		res, err := h.core.Process(context.Background(), baseContext(), "hi", "")
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	res, err := h.core.Process(context.Background(), baseContext(), "hi", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.RateLimited)
	require.NotNil(t, res.ResetAt)
	assert.True(t, res.ResetAt.After(time.Now()))
	assert.True(t, strings.HasPrefix(res.Error, "Rate limit exceeded. Resets at "))
	assert.Equal(t, 2, h.model.Calls())
	assert.Empty(t, h.executed())
}

func TestModelErrorBecomesFailedResult(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.PushError(errors.New("upstream 503"))

	res, err := h.core.Process(context.Background(), baseContext(), "hi", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "upstream 503", res.Error)
}

func TestToolFailureIsFedBackToModel(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.fail", `{}`)))
	h.model.Push(llm.TextResponse("The backend is down, try later."))

	res, err := h.core.Process(context.Background(), baseContext(), "do it", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "The backend is down, try later.", res.Message)

	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.JSONEq(t, `{"success":false,"error":"backend unavailable"}`, last.Content)

	actions, err := h.store.ListRecentActions(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionStatusFailed, actions[0].Status)
}

func TestPolicyBlocksTool(t *testing.T) {
	h := newHarness(t, Config{})
	ec := baseContext()
	ec.Preferences.BlockedTools = []string{"tasks.create"}

	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.create", `{"title":"x"}`)))
	h.model.Push(llm.TextResponse("I cannot create tasks."))

	res, err := h.core.Process(context.Background(), ec, "create", "")
	require.NoError(t, err)
	assert.Empty(t, h.executed())
	assert.True(t, res.Success)

	reqs := h.model.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, last.Content, "blocked by policy")
}

func TestSpendThresholdRequiresApproval(t *testing.T) {
	h := newHarness(t, Config{})
	ec := baseContext()
	ec.Preferences.SpendThreshold = 100

	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.pay", `{"amount":50}`)))
	h.model.Push(llm.ToolUseResponse("", call("c2", "tasks.pay", `{"amount":500}`)))

	res, err := h.core.Process(context.Background(), ec, "pay", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks.pay"}, h.executed())
	assert.True(t, res.RequiresApproval)
}

func TestTrustedToolSkipsApproval(t *testing.T) {
	h := newHarness(t, Config{})
	ec := baseContext()
	ec.LearnedPatterns = []domain.LearnedPattern{{Pattern: "always deletes done tasks", ToolName: "tasks.delete", AutoApprove: true, Confidence: 0.9}}

	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.delete", `{"task_id":"t1"}`)))
	h.model.Push(llm.TextResponse("Deleted."))

	res, err := h.core.Process(context.Background(), ec, "delete t1", "")
	require.NoError(t, err)
	assert.False(t, res.RequiresApproval)
	assert.Equal(t, []string{"tasks.delete"}, h.executed())
	assert.Contains(t, h.model.Requests()[0].System, "always deletes done tasks")
}

func TestHistoryAndAuditArePersisted(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.model.Push(llm.TextResponse("First answer"))
	h.model.Push(llm.TextResponse("Second answer"))

	_, err := h.core.Process(ctx, baseContext(), "first question", "s-hist")
	require.NoError(t, err)
	_, err = h.core.Process(ctx, baseContext(), "second question", "s-hist")
	require.NoError(t, err)

	second := h.model.Requests()[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "first question", second.Messages[0].Content)
	assert.Equal(t, "First answer", second.Messages[1].Content)
	assert.Equal(t, "second question", second.Messages[2].Content)

	events, err := h.store.ListEvents(ctx, "u1", time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeAgentRunCompleted, events[0].Type)
	var payload domain.AgentRunPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "req_1", payload.RequestID)
	assert.Equal(t, 1, payload.Iterations)
}

func TestProcessStreamEmitsDeltas(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.list", `{}`)))
	h.model.Push(llm.TextResponse("Here are all of your open tasks for today."))

	var text strings.Builder
	var toolDeltas int
	res, err := h.core.ProcessStream(context.Background(), baseContext(), "list", "", func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.EventTextDelta:
			text.WriteString(ev.Text)
		case llm.EventToolInputDelta:
			toolDeltas++
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, res.Message, text.String())
	assert.Equal(t, 1, toolDeltas)
}

func TestMissingGateIsInfrastructureError(t *testing.T) {
	h := newHarness(t, Config{})
	h.core.deps.Approvals = nil
	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.delete", `{"task_id":"t1"}`)))

	res, err := h.core.Process(context.Background(), baseContext(), "delete", "")
	require.ErrorIs(t, err, ErrApprovalsUnavailable)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestInvalidInputIsRejectedBeforeApproval(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.archive", `{"wrong":1}`)))
	h.model.Push(llm.ToolUseResponse("", call("c2", "tasks.archive", `{"id":"t1"}`)))

	res, err := h.core.Process(ctx, baseContext(), "archive t1", "")
	require.NoError(t, err)
	assert.Empty(t, h.executed())
	require.True(t, res.RequiresApproval)
	assert.Equal(t, 2, h.model.Calls())

	reqs := h.model.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Contains(t, last.Content, "invalid input")

	pending, err := h.gate.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.ApprovalID, pending[0].ID)
	assert.JSONEq(t, `{"id":"t1"}`, string(pending[0].ToolInput))
}

type failingActionStore struct {
	*repository.Store
}

func (failingActionStore) CreateAction(context.Context, *domain.RecentAction) error {
	return errors.New("disk full")
}

func TestLearningRecordFailureDoesNotFailTool(t *testing.T) {
	h := newHarness(t, Config{})
	h.core.deps.Store = failingActionStore{h.store}
	h.model.Push(llm.ToolUseResponse("", call("c1", "tasks.list", `{}`)))
	h.model.Push(llm.TextResponse("You have no open tasks."))

	res, err := h.core.Process(context.Background(), baseContext(), "list", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "You have no open tasks.", res.Message)
	assert.Equal(t, []string{"tasks.list"}, h.executed())
	assert.Equal(t, []string{"tasks.list"}, res.ToolsUsed)

	reqs := h.model.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.JSONEq(t, `{"success":true,"data":{"ok":true}}`, last.Content)
}
