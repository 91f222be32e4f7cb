package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cas-pilex/edithAI-sub000/internal/approval"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/testutil"
	"github.com/cas-pilex/edithAI-sub000/internal/tools"
	"github.com/cas-pilex/edithAI-sub000/internal/workflow"
)

type fakeRouter struct {
	ec     domain.ExecutionContext
	result *domain.RoutingResult
	err    error
}

func (r *fakeRouter) Route(_ context.Context, ec domain.ExecutionContext, message, _ string) (*domain.RoutingResult, error) {
	r.ec = ec
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &domain.RoutingResult{Success: true, Intent: message, TargetAgent: domain.AgentTasks, Confidence: 0.9}, nil
}

type fakeWorkflows struct {
	params map[string]any
}

func (w *fakeWorkflows) List() []domain.WorkflowDefinition {
	return workflow.Definitions()
}

func (w *fakeWorkflows) ExecuteByID(_ context.Context, id string, ec domain.ExecutionContext, params map[string]any) (*domain.WorkflowResult, error) {
	if id != workflow.MeetingPreparation {
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownWorkflow, id)
	}
	w.params = params
	return &domain.WorkflowResult{WorkflowID: id, Status: domain.WorkflowStatusCompleted, Success: true, CompletedSteps: 4}, nil
}

type fakeContexts struct{}

func (fakeContexts) Load(_ context.Context, ec domain.ExecutionContext) domain.ExecutionContext {
	ec.LearnedPatterns = []domain.LearnedPattern{{Pattern: "Routinely approves tasks.delete", ToolName: "tasks.delete", AutoApprove: true}}
	return ec
}

type testEnv struct {
	h         *Handler
	gate      *approval.Gate
	router    *fakeRouter
	workflows *fakeWorkflows
	execs     *int32
}

func newTestHandler(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewTestSQLiteStore(t)

	var execs int32
	reg := tools.NewRegistry()
	reg.MustRegister(tools.Tool{
		ToolDefinition:   domain.ToolDefinition{Name: "tasks.delete", Description: "Delete a task"},
		Domain:           domain.AgentTasks,
		ApprovalCategory: domain.ApprovalRequestApproval,
		Handler: func(context.Context, json.RawMessage, domain.ExecutionContext) (domain.ToolResult, error) {
			atomic.AddInt32(&execs, 1)
			return domain.ToolResult{Success: true, Data: json.RawMessage(`{"deleted":true}`)}, nil
		},
	})
	reg.MustRegister(tools.Tool{
		ToolDefinition:   domain.ToolDefinition{Name: "inbox.search", Description: "Search mail"},
		Domain:           domain.AgentInbox,
		ApprovalCategory: domain.ApprovalAutoApprove,
		Handler: func(context.Context, json.RawMessage, domain.ExecutionContext) (domain.ToolResult, error) {
			return domain.ToolResult{Success: true}, nil
		},
	})
	reg.Seal()

	env := &testEnv{
		gate:      approval.NewGate(store, reg),
		router:    &fakeRouter{},
		workflows: &fakeWorkflows{},
		execs:     &execs,
	}
	env.h = NewHandler(Deps{
		Router:    env.router,
		Approvals: env.gate,
		Tools:     reg,
		Workflows: env.workflows,
		Contexts:  fakeContexts{},
	})
	return env
}

func (env *testEnv) pending(t *testing.T) *domain.ApprovalRequest {
	t.Helper()
	ap, err := env.gate.Create(context.Background(), approval.CreateParams{
		UserID:    "u1",
		SessionID: "s1",
		AgentType: domain.AgentTasks,
		ToolName:  "tasks.delete",
		ToolInput: json.RawMessage(`{"task_id":"t1"}`),
	})
	require.NoError(t, err)
	return ap
}

func jsonRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req, httptest.NewRecorder()
}

func approvalContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, path, id string) echo.Context {
	c := e.NewContext(req, rec)
	c.SetPath(path)
	c.SetParamNames("approval_id")
	c.SetParamValues(id)
	return c
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["error"]
}

func TestSubmitRequestBuildsContext(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)

	req, rec := jsonRequest(http.MethodPost, "/v1/requests",
		`{"user_id":"u1","session_id":"s1","message":"add a task","timezone":"Europe/Berlin","preferences":{"spend_threshold":200}}`)
	c := e.NewContext(req, rec)

	require.NoError(t, env.h.SubmitRequest(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res domain.RoutingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, domain.AgentTasks, res.TargetAgent)

	ec := env.router.ec
	assert.Equal(t, "u1", ec.UserID)
	assert.Equal(t, "s1", ec.SessionID)
	assert.Equal(t, "Europe/Berlin", ec.Timezone)
	assert.Equal(t, 200.0, ec.Preferences.SpendThreshold)
	assert.NotEmpty(t, ec.RequestID)
	assert.Equal(t, []string{"tasks.delete"}, ec.TrustedTools())
}

func TestSubmitRequestValidation(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)

	cases := map[string]string{
		"missing user":    `{"message":"hi"}`,
		"missing message": `{"user_id":"u1","message":"  "}`,
		"malformed":       `{"user_id":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req, rec := jsonRequest(http.MethodPost, "/v1/requests", body)
			require.NoError(t, env.h.SubmitRequest(e.NewContext(req, rec)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitRequestRateLimitedAndFailure(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)

	env.router.result = &domain.RoutingResult{
		AgentResult: &domain.AgentResult{RateLimited: true, Error: "Rate limit exceeded."},
	}
	req, rec := jsonRequest(http.MethodPost, "/v1/requests", `{"user_id":"u1","message":"hi"}`)
	require.NoError(t, env.h.SubmitRequest(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	env.router.result = nil
	env.router.err = errors.New("approval store down")
	req, rec = jsonRequest(http.MethodPost, "/v1/requests", `{"user_id":"u1","message":"hi"}`)
	require.NoError(t, env.h.SubmitRequest(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to process request", errorOf(t, rec))
}

func TestListAndGetApprovals(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)
	ap := env.pending(t)

	req, rec := jsonRequest(http.MethodGet, "/v1/approvals?user_id=u1", "")
	require.NoError(t, env.h.ListApprovals(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Approvals []domain.ApprovalRequest `json:"approvals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Approvals, 1)
	assert.Equal(t, ap.ID, list.Approvals[0].ID)

	req, rec = jsonRequest(http.MethodGet, "/v1/approvals", "")
	require.NoError(t, env.h.ListApprovals(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = jsonRequest(http.MethodGet, "/v1/approvals/"+ap.ID, "")
	require.NoError(t, env.h.GetApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id", ap.ID)))
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = jsonRequest(http.MethodGet, "/v1/approvals/ap_missing", "")
	require.NoError(t, env.h.GetApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id", "ap_missing")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ApprovalMessage(domain.ErrApprovalNotFound), errorOf(t, rec))
}

func TestDecideThenResume(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)
	ap := env.pending(t)

	req, rec := jsonRequest(http.MethodPost, "/v1/approvals/"+ap.ID+"/decide", `{"decision":"Approve","decided_by":"u1"}`)
	require.NoError(t, env.h.DecideApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id/decide", ap.ID)))
	assert.Equal(t, http.StatusOK, rec.Code)
	var decided domain.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	assert.Equal(t, domain.ApprovalStatusApproved, decided.Status)
	assert.Equal(t, "u1", decided.DecidedBy)

	req, rec = jsonRequest(http.MethodPost, "/v1/approvals/"+ap.ID+"/decide", `{"decision":"reject"}`)
	require.NoError(t, env.h.DecideApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id/decide", ap.ID)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	req, rec = jsonRequest(http.MethodPost, "/v1/approvals/"+ap.ID+"/resume", "")
	require.NoError(t, env.h.ResumeApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id/resume", ap.ID)))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resumed ResumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resumed))
	assert.True(t, resumed.Result.Success)
	assert.JSONEq(t, `{"deleted":true}`, string(resumed.Result.Data))

	req, rec = jsonRequest(http.MethodPost, "/v1/approvals/"+ap.ID+"/resume", "")
	require.NoError(t, env.h.ResumeApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id/resume", ap.ID)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ApprovalMessage(domain.ErrApprovalConsumed), errorOf(t, rec))
	assert.Equal(t, int32(1), atomic.LoadInt32(env.execs))
}

func TestDecideRejectsUnknownDecision(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)
	ap := env.pending(t)

	req, rec := jsonRequest(http.MethodPost, "/v1/approvals/"+ap.ID+"/decide", `{"decision":"maybe"}`)
	require.NoError(t, env.h.DecideApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id/decide", ap.ID)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "decision must be approve or reject", errorOf(t, rec))
}

func TestResumeStatusCodes(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)
	ctx := context.Background()

	pending := env.pending(t)
	rejected := env.pending(t)
	_, err := env.gate.Decide(ctx, rejected.ID, domain.DecisionReject, "u1", "no")
	require.NoError(t, err)
	approved := env.pending(t)
	_, err = env.gate.Decide(ctx, approved.ID, domain.DecisionApprove, "u1", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{"pending", pending.ID, "", http.StatusConflict},
		{"rejected", rejected.ID, "", http.StatusForbidden},
		{"missing", "ap_missing", "", http.StatusNotFound},
		{"tool mismatch", approved.ID, `{"tool_name":"inbox.search"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := jsonRequest(http.MethodPost, "/v1/approvals/"+tt.id+"/resume", tt.body)
			require.NoError(t, env.h.ResumeApproval(approvalContext(e, req, rec, "/v1/approvals/:approval_id/resume", tt.id)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(env.execs))
}

func TestApprovalStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusGone, approvalStatus(domain.ErrApprovalExpired))
	assert.Equal(t, http.StatusConflict, approvalStatus(fmt.Errorf("wrapped: %w", domain.ErrApprovalAlreadyDecided)))
	assert.Equal(t, http.StatusInternalServerError, approvalStatus(errors.New("boom")))
}

func TestListToolsFiltersByDomain(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)

	req, rec := jsonRequest(http.MethodGet, "/v1/tools?domain=tasks", "")
	require.NoError(t, env.h.ListTools(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tools []ToolInfo `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "tasks.delete", resp.Tools[0].Name)
	assert.Equal(t, domain.ApprovalRequestApproval, resp.Tools[0].ApprovalCategory)

	req, rec = jsonRequest(http.MethodGet, "/v1/tools", "")
	require.NoError(t, env.h.ListTools(e.NewContext(req, rec)))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tools, 2)
}

func TestWorkflows(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)

	req, rec := jsonRequest(http.MethodGet, "/v1/workflows", "")
	require.NoError(t, env.h.ListWorkflows(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), workflow.TravelBooking)

	run := func(id, body string) *httptest.ResponseRecorder {
		req, rec := jsonRequest(http.MethodPost, "/v1/workflows/"+id+"/run", body)
		c := e.NewContext(req, rec)
		c.SetPath("/v1/workflows/:workflow_id/run")
		c.SetParamNames("workflow_id")
		c.SetParamValues(id)
		require.NoError(t, env.h.RunWorkflow(c))
		return rec
	}

	rec = run(workflow.MeetingPreparation, `{"user_id":"u1","parameters":{"meeting":"Acme sync"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme sync", env.workflows.params["meeting"])

	rec = run("nope", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = run(workflow.MeetingPreparation, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndRoutes(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t)
	env.h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	req = httptest.NewRequest(http.MethodGet, "/v1/tools?domain=inbox", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inbox.search")

	// no websocket handler configured
	req = httptest.NewRequest(http.MethodGet, "/v1/ws?user_id=u1", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
