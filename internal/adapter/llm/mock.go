package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type scripted struct {
	resp *Response
	err  error
}

// MockModel replays a scripted sequence of responses and records every request.
// Once the script is exhausted it answers with Fallback, or echoes the last
// user message.
type MockModel struct {
	mu       sync.Mutex
	script   []scripted
	requests []Request

	// Fallback answers once the script is exhausted.
	Fallback func(req *Request) *Response
}

// NewMockModel creates a mock model with an initial script.
func NewMockModel(responses ...*Response) *MockModel {
	m := &MockModel{}
	for _, r := range responses {
		m.Push(r)
	}
	return m
}

var _ Model = (*MockModel)(nil)

// Push appends a response to the script.
func (m *MockModel) Push(resp *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{resp: resp})
}

// PushError appends a failing turn to the script.
func (m *MockModel) PushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
}

// Requests returns copies of the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls is the number of requests received.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	cp := *req
	cp.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, cp)

	var next *scripted
	if len(m.script) > 0 {
		next = &m.script[0]
		m.script = m.script[1:]
	}
	fallback := m.Fallback
	m.mu.Unlock()

	if next != nil {
		if next.err != nil {
			return nil, next.err
		}
		return next.resp, nil
	}
	if fallback != nil {
		return fallback(req), nil
	}
	return TextResponse("Mock response to: " + lastUserMessage(req)), nil
}

// CompleteStream implements Model by chunking the scripted response.
func (m *MockModel) CompleteStream(ctx context.Context, req *Request, cb StreamCallback) (*Response, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, block := range resp.Content {
		switch block.Type {
		case ContentText:
			for _, chunk := range splitIntoChunks(block.Text, 16) {
				if err := cb(StreamEvent{Type: EventTextDelta, Text: chunk}); err != nil {
					return nil, err
				}
			}
		case ContentToolUse:
			if block.ToolCall == nil {
				continue
			}
			if err := cb(StreamEvent{
				Type:       EventToolInputDelta,
				ToolCallID: block.ToolCall.ID,
				ToolName:   block.ToolCall.Name,
				InputDelta: string(block.ToolCall.Input),
			}); err != nil {
				return nil, err
			}
		}
	}
	return resp, nil
}

func splitIntoChunks(s string, size int) []string {
	runes := []rune(s)
	var chunks []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}

func lastUserMessage(req *Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

var demoKeywords = []struct {
	agent    domain.AgentType
	keywords []string
}{
	{domain.AgentMeetingPrep, []string{"prepare", "brief", "prep"}},
	{domain.AgentTravel, []string{"flight", "hotel", "trip", "travel"}},
	{domain.AgentCalendar, []string{"meeting", "calendar", "schedule", "event"}},
	{domain.AgentInbox, []string{"email", "inbox", "mail", "reply"}},
	{domain.AgentCRM, []string{"contact", "client", "crm"}},
	{domain.AgentTasks, []string{"task", "todo", "remind"}},
}

// DemoFallback gives the mock model enough behaviour to run the service
// end-to-end without a provider: routing prompts get a keyword-based
// classification, agent turns get a short acknowledgement.
func DemoFallback(req *Request) *Response {
	msg := strings.ToLower(lastUserMessage(req))
	if len(req.Tools) == 0 && strings.Contains(req.System, "classif") {
		target, confidence := domain.AgentType(""), 0.3
		for _, k := range demoKeywords {
			for _, kw := range k.keywords {
				if strings.Contains(msg, kw) {
					target, confidence = k.agent, 0.9
					break
				}
			}
			if target != "" {
				break
			}
		}
		if target == "" {
			target = domain.AgentTasks
		}
		out, _ := json.Marshal(domain.Classification{
			Intent:      "demo",
			TargetAgent: target,
			Confidence:  confidence,
			Reasoning:   "keyword match",
		})
		return TextResponse(string(out))
	}
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == RoleTool {
		return TextResponse(fmt.Sprintf("Done. Last tool result: %s", req.Messages[n-1].Content))
	}
	return TextResponse("Mock response to: " + lastUserMessage(req))
}
