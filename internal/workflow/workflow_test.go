package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type fakeAgent struct {
	typ domain.AgentType

	mu       sync.Mutex
	messages []string
	respond  func(message string) (*domain.AgentResult, error)
}

func (a *fakeAgent) Type() domain.AgentType { return a.typ }

func (a *fakeAgent) Process(_ context.Context, _ domain.ExecutionContext, message, _ string) (*domain.AgentResult, error) {
	a.mu.Lock()
	a.messages = append(a.messages, message)
	a.mu.Unlock()
	if a.respond != nil {
		return a.respond(message)
	}
	return &domain.AgentResult{Success: true, Message: string(a.typ) + " done"}, nil
}

type fakeAgents map[domain.AgentType]*fakeAgent

func (f fakeAgents) Get(t domain.AgentType) (domain.Agent, bool) {
	a, ok := f[t]
	if !ok {
		return nil, false
	}
	return a, true
}

func newFakeAgents() fakeAgents {
	out := fakeAgents{}
	for _, t := range domain.DomainAgents {
		out[t] = &fakeAgent{typ: t}
	}
	return out
}

func step(id string, agent domain.AgentType, deps ...string) domain.WorkflowStep {
	return domain.WorkflowStep{ID: id, Agent: agent, Action: "act_" + id, Description: "do " + id, DependsOn: deps}
}

func indexOf(steps []domain.WorkflowStep, id string) int {
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func TestOrderDiamond(t *testing.T) {
	defs := []domain.WorkflowDefinition{
		{ID: "diamond", Steps: []domain.WorkflowStep{
			step("A", domain.AgentTasks),
			step("B", domain.AgentTasks, "A"),
			step("C", domain.AgentTasks, "A"),
			step("D", domain.AgentTasks, "B", "C"),
		}},
		{ID: "reversed", Steps: []domain.WorkflowStep{
			step("D", domain.AgentTasks, "B", "C"),
			step("C", domain.AgentTasks, "A"),
			step("B", domain.AgentTasks, "A"),
			step("A", domain.AgentTasks),
		}},
	}
	for _, def := range defs {
		t.Run(def.ID, func(t *testing.T) {
			ordered, err := Order(def)
			require.NoError(t, err)
			require.Len(t, ordered, 4)
			a, b, c, d := indexOf(ordered, "A"), indexOf(ordered, "B"), indexOf(ordered, "C"), indexOf(ordered, "D")
			assert.Less(t, a, b)
			assert.Less(t, a, c)
			assert.Less(t, b, d)
			assert.Less(t, c, d)
			assert.Equal(t, 3, d)
		})
	}
}

func TestOrderDetectsCycleBeforeAnyStepRuns(t *testing.T) {
	def := domain.WorkflowDefinition{ID: "loop", Steps: []domain.WorkflowStep{
		step("A", domain.AgentTasks, "B"),
		step("B", domain.AgentTasks, "A"),
	}}

	_, err := Order(def)
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))

	agents := newFakeAgents()
	e := NewEngine(agents, nil, nil)
	res, err := e.Execute(context.Background(), def, domain.ExecutionContext{UserID: "u1"}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
	assert.Nil(t, res)
	assert.Empty(t, agents[domain.AgentTasks].messages)

	assert.Error(t, e.Register(def))
}

func TestOrderRejectsDuplicateSteps(t *testing.T) {
	_, err := Order(domain.WorkflowDefinition{ID: "dup", Steps: []domain.WorkflowStep{step("A", domain.AgentTasks), step("A", domain.AgentCRM)}})
	assert.True(t, domain.IsConfigError(err))
}

func TestPartialSuccessWithUnmetDependencies(t *testing.T) {
	agents := newFakeAgents()
	e := NewEngine(agents, nil, nil)
	def := domain.WorkflowDefinition{ID: "partial", Steps: []domain.WorkflowStep{
		step("s1", domain.AgentInbox),
		step("s2", domain.AgentCRM, "missing"),
		step("s3", domain.AgentTasks, "s1"),
		step("s4", domain.AgentCalendar),
	}}

	res, err := e.Execute(context.Background(), def, domain.ExecutionContext{UserID: "u1"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.WorkflowStatusCompleted, res.Status)
	assert.Equal(t, 3, res.CompletedSteps)
	assert.Equal(t, 1, res.FailedSteps)
	require.Len(t, res.Steps, 4)
	assert.Equal(t, domain.StepStatusFailed, res.Steps[1].Status)
	assert.Contains(t, res.Steps[1].Error, "unmet dependencies: missing")
	assert.Empty(t, agents[domain.AgentCRM].messages)
}

func TestFailedStepCascadesAsUnmetDependency(t *testing.T) {
	agents := newFakeAgents()
	agents[domain.AgentInbox].respond = func(string) (*domain.AgentResult, error) {
		return &domain.AgentResult{Success: false, Error: "mailbox locked"}, nil
	}
	agents[domain.AgentCRM].respond = func(string) (*domain.AgentResult, error) {
		return nil, errors.New("crm timeout")
	}
	e := NewEngine(agents, nil, nil)
	def := domain.WorkflowDefinition{ID: "cascade", Steps: []domain.WorkflowStep{
		step("mail", domain.AgentInbox),
		step("tasks", domain.AgentTasks, "mail"),
		step("crm", domain.AgentCRM),
	}}

	res, err := e.Execute(context.Background(), def, domain.ExecutionContext{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.WorkflowStatusFailed, res.Status)
	assert.Equal(t, 3, res.FailedSteps)
	assert.Equal(t, "mailbox locked", res.Steps[0].Error)
	assert.Contains(t, res.Steps[1].Error, "unmet dependencies")
	assert.Equal(t, "crm timeout", res.Steps[2].Error)
}

func TestDependencyResultsAreInjected(t *testing.T) {
	agents := newFakeAgents()
	agents[domain.AgentCalendar].respond = func(string) (*domain.AgentResult, error) {
		return &domain.AgentResult{Success: true, Message: "found", Data: json.RawMessage(`{"event_id":"ev42"}`)}, nil
	}
	agents[domain.AgentCRM].respond = func(string) (*domain.AgentResult, error) {
		return &domain.AgentResult{Success: true, Message: "Alice is the CFO"}, nil
	}
	e := NewEngine(agents, nil, nil)
	def := domain.WorkflowDefinition{ID: "inject", Name: "Inject", Steps: []domain.WorkflowStep{
		step("cal", domain.AgentCalendar),
		step("crm", domain.AgentCRM, "cal"),
		{ID: "brief", Agent: domain.AgentMeetingPrep, Action: "generate_brief", DependsOn: []string{"cal", "crm"}, Parameters: map[string]any{"format": "short"}},
	}}

	_, err := e.Execute(context.Background(), def, domain.ExecutionContext{}, map[string]any{"meeting": "Board sync"})
	require.NoError(t, err)

	msgs := agents[domain.AgentMeetingPrep].messages
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `- cal_result: {"event_id":"ev42"}`)
	assert.Contains(t, msgs[0], `- crm_result: "Alice is the CFO"`)
	assert.Contains(t, msgs[0], `- format: "short"`)
	assert.Contains(t, msgs[0], `- meeting: "Board sync"`)
	assert.Contains(t, msgs[0], "Action: generate_brief")

	assert.NotContains(t, agents[domain.AgentCalendar].messages[0], "_result")
}

func TestApprovalPausesWorkflow(t *testing.T) {
	agents := newFakeAgents()
	agents[domain.AgentTravel].respond = func(msg string) (*domain.AgentResult, error) {
		if strings.Contains(msg, "book_travel") {
			return &domain.AgentResult{Success: true, RequiresApproval: true, ApprovalID: "ap_1", Message: "Approval required"}, nil
		}
		return &domain.AgentResult{Success: true, Message: "3 flights"}, nil
	}
	e := NewEngine(agents, nil, nil)
	require.NoError(t, e.RegisterAll(Definitions()))

	res, err := e.ExecuteByID(context.Background(), TravelBooking, domain.ExecutionContext{UserID: "u1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusPaused, res.Status)
	assert.Equal(t, "ap_1", res.ApprovalID)
	assert.Equal(t, "book_travel", res.PausedAtStep)
	assert.Equal(t, 1, res.CompletedSteps)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, domain.StepStatusPaused, res.Steps[1].Status)
	assert.Empty(t, agents[domain.AgentCalendar].messages)
	assert.Empty(t, agents[domain.AgentTasks].messages)
}

func TestBuiltInDefinitionsAreValid(t *testing.T) {
	e := NewEngine(newFakeAgents(), nil, nil)
	require.NoError(t, e.RegisterAll(Definitions()))
	assert.Len(t, e.List(), 4)

	def, ok := e.Get(MeetingPreparation)
	require.True(t, ok)
	ordered, err := Order(def)
	require.NoError(t, err)
	assert.Equal(t, "brief", ordered[len(ordered)-1].ID)

	_, err = e.ExecuteByID(context.Background(), "nope", domain.ExecutionContext{}, nil)
	assert.Error(t, err)
}

func TestRegisterRejectsUnknownAgent(t *testing.T) {
	e := NewEngine(newFakeAgents(), nil, nil)
	err := e.Register(domain.WorkflowDefinition{ID: "bad", Steps: []domain.WorkflowStep{step("a", "weather")}})
	assert.True(t, domain.IsConfigError(err))

	err = e.Register(domain.WorkflowDefinition{ID: "empty"})
	assert.True(t, domain.IsConfigError(err))
}

func TestMatchTrigger(t *testing.T) {
	e := NewEngine(newFakeAgents(), nil, nil)
	require.NoError(t, e.RegisterAll(Definitions()))

	def, ok := e.MatchTrigger("Can you prepare for my 3pm with Acme?")
	require.True(t, ok)
	assert.Equal(t, MeetingPreparation, def.ID)

	def, ok = e.MatchTrigger("Please follow up with Dana from Initech")
	require.True(t, ok)
	assert.Equal(t, ClientFollowUp, def.ID)

	_, ok = e.MatchTrigger("what's the weather")
	assert.False(t, ok)
}

func TestLoadFileMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	content := `
workflows:
  - id: inbox_triage
    name: Quick triage
    steps:
      - id: scan
        agent: inbox
        action: search
        description: Scan unread
    trigger_conditions: ["quick triage"]
  - id: weekly_review
    name: Weekly review
    steps:
      - id: list
        agent: tasks
        action: list
      - id: plan
        agent: calendar
        action: find_free_slots
        depends_on: [list]
        parameters:
          horizon_days: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	e, err := NewDefaultEngine(newFakeAgents(), path)
	require.NoError(t, err)
	list := e.List()
	require.Len(t, list, 5)
	assert.Equal(t, InboxTriage, list[2].ID)
	assert.Equal(t, "Quick triage", list[2].Name)
	assert.Len(t, list[2].Steps, 1)
	assert.Equal(t, "weekly_review", list[4].ID)
	assert.Equal(t, []string{"list"}, list[4].Steps[1].DependsOn)
	assert.Equal(t, 7, list[4].Steps[1].Parameters["horizon_days"])
}

func TestLoadFileRejectsCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	content := `
workflows:
  - id: broken
    steps:
      - {id: a, agent: tasks, action: list, depends_on: [b]}
      - {id: b, agent: tasks, action: list, depends_on: [a]}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := NewDefaultEngine(newFakeAgents(), path)
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))

	_, err = Parse([]byte("workflows: ["))
	assert.True(t, domain.IsConfigError(err))
}
