package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// MockFunc answers one mocked domain action.
type MockFunc func(ctx context.Context, req Request) (*Response, error)

// MockBackend is an in-process backend with canned data and an in-memory
// task list. It records every call.
type MockBackend struct {
	mu        sync.Mutex
	calls     []Request
	overrides map[string]MockFunc
	tasks     map[string][]mockTask
}

type mockTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Due       string `json:"due,omitempty"`
	Completed bool   `json:"completed"`
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		overrides: make(map[string]MockFunc),
		tasks:     make(map[string][]mockTask),
	}
}

// On overrides the response for domain.action.
func (m *MockBackend) On(d domain.AgentType, action string, fn MockFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key(d, action)] = fn
}

// Calls returns a copy of the recorded calls.
func (m *MockBackend) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount counts recorded calls to domain.action.
func (m *MockBackend) CallCount(d domain.AgentType, action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Domain == d && c.Action == action {
			n++
		}
	}
	return n
}

// Call implements Backend.
func (m *MockBackend) Call(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.overrides[key(req.Domain, req.Action)]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if req.Domain == domain.AgentTasks {
		return m.tasksCall(req)
	}
	return cannedResponse(req)
}

func (m *MockBackend) tasksCall(req Request) (*Response, error) {
	var in struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Due   string `json:"due"`
	}
	if len(req.Input) > 0 {
		if err := json.Unmarshal(req.Input, &in); err != nil {
			return &Response{Error: "invalid input: " + err.Error()}, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.tasks[req.UserID]

	switch req.Action {
	case "list":
		return dataResponse(map[string]any{"tasks": list})
	case "create":
		t := mockTask{ID: "task_" + uuid.NewString()[:8], Title: in.Title, Due: in.Due}
		m.tasks[req.UserID] = append(list, t)
		return dataResponse(t)
	case "complete", "delete":
		for i := range list {
			if list[i].ID != in.ID {
				continue
			}
			if req.Action == "complete" {
				list[i].Completed = true
				return dataResponse(list[i])
			}
			m.tasks[req.UserID] = append(list[:i:i], list[i+1:]...)
			return dataResponse(map[string]any{"deleted": in.ID})
		}
		return &Response{Error: fmt.Sprintf("task %s not found", in.ID)}, nil
	}
	return &Response{Error: "unknown tasks action " + req.Action}, nil
}

func cannedResponse(req Request) (*Response, error) {
	now := time.Now().UTC()
	switch key(req.Domain, req.Action) {
	case "inbox.search":
		return dataResponse(map[string]any{"emails": []map[string]any{
			{"id": "em_1", "from": "alex@example.com", "subject": "Quarterly review", "unread": true},
			{"id": "em_2", "from": "billing@vendor.example", "subject": "Invoice #4411", "unread": false},
		}})
	case "inbox.draft_reply":
		return dataResponse(map[string]any{"draft_id": "dr_" + uuid.NewString()[:8]})
	case "inbox.send_email":
		return dataResponse(map[string]any{"message_id": "msg_" + uuid.NewString()[:8], "sent": true})
	case "inbox.archive":
		return dataResponse(map[string]any{"archived": true})
	case "calendar.list_events":
		return dataResponse(map[string]any{"events": []map[string]any{
			{"id": "ev_1", "title": "Client sync", "start": now.Add(26 * time.Hour).Format(time.RFC3339)},
		}})
	case "calendar.find_free_slots":
		return dataResponse(map[string]any{"slots": []string{
			now.Add(48 * time.Hour).Truncate(time.Hour).Format(time.RFC3339),
			now.Add(50 * time.Hour).Truncate(time.Hour).Format(time.RFC3339),
		}})
	case "calendar.create_event":
		return dataResponse(map[string]any{"event_id": "ev_" + uuid.NewString()[:8], "created": true})
	case "calendar.cancel_event":
		return dataResponse(map[string]any{"cancelled": true})
	case "crm.lookup_contact":
		return dataResponse(map[string]any{"contact": map[string]any{
			"name": "Alex Doe", "company": "Acme", "last_contact": now.Add(-30 * 24 * time.Hour).Format("2006-01-02"),
		}})
	case "crm.update_contact", "crm.log_interaction":
		return dataResponse(map[string]any{"updated": true})
	case "travel.search_flights":
		return dataResponse(map[string]any{"flights": []map[string]any{
			{"id": "fl_1", "carrier": "KL", "price": 420.0},
			{"id": "fl_2", "carrier": "LH", "price": 389.0},
		}})
	case "travel.book_flight":
		return dataResponse(map[string]any{"booking_id": "bk_" + uuid.NewString()[:8]})
	case "travel.book_hotel":
		if req.ApprovalID == "" {
			resp, err := dataResponse(map[string]any{"hold_id": "hold_" + uuid.NewString()[:8]})
			if err != nil {
				return nil, err
			}
			resp.RequiresApproval = true
			resp.ApprovalDetails = &domain.ApprovalDetails{
				ProposedAction: "Confirm hotel booking",
				Reasoning:      "Room is on hold and the rate is non-refundable",
				Impact:         "Charges the card on file",
				IsReversible:   false,
			}
			return resp, nil
		}
		return dataResponse(map[string]any{"booking_id": "bk_" + uuid.NewString()[:8], "confirmed": true})
	case "meeting_prep.gather_context":
		return dataResponse(map[string]any{"attendees": []string{"Alex Doe"}, "open_items": 2})
	case "meeting_prep.generate_brief":
		return dataResponse(map[string]any{"brief": "Review Q3 numbers with Alex and confirm renewal."})
	}
	return &Response{Error: "unknown action " + key(req.Domain, req.Action)}, nil
}

func dataResponse(v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{Data: data}, nil
}

func key(d domain.AgentType, action string) string {
	return string(d) + "." + action
}
