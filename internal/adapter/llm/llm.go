// Package llm provides an abstraction over the language-model APIs the
// agents talk to.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// StopReason explains why the model stopped.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// ContentType discriminates ContentBlock.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentToolUse ContentType = "tool_use"
)

// ContentBlock is either text or a tool call.
type ContentBlock struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ToolCall *ToolCall   `json:"tool_call,omitempty"`
}

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request is a completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []domain.ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Response is a completion response.
type Response struct {
	StopReason StopReason     `json:"stop_reason"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model,omitempty"`
	Usage      Usage          `json:"usage"`
}

// Text concatenates the text blocks.
func (r *Response) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == ContentText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the requested tool calls in order.
func (r *Response) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, c := range r.Content {
		if c.Type == ContentToolUse && c.ToolCall != nil {
			calls = append(calls, *c.ToolCall)
		}
	}
	return calls
}

// StreamEventType discriminates StreamEvent.
type StreamEventType string

const (
	EventTextDelta      StreamEventType = "text_delta"
	EventToolInputDelta StreamEventType = "tool_input_delta"
)

// StreamEvent is an incremental piece of a streamed completion.
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	InputDelta string          `json:"input_delta,omitempty"`
}

// StreamCallback receives stream events. Returning an error aborts the stream.
type StreamCallback func(ev StreamEvent) error

// Model is the language-model capability.
type Model interface {
	// Complete sends a non-streaming request.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// CompleteStream streams the completion through cb and returns the
	// same final shape as Complete.
	CompleteStream(ctx context.Context, req *Request, cb StreamCallback) (*Response, error)
}

// TextResponse builds an end_turn response.
func TextResponse(text string) *Response {
	return &Response{
		StopReason: StopEndTurn,
		Content:    []ContentBlock{{Type: ContentText, Text: text}},
	}
}

// ToolUseResponse builds a tool_use response, optionally preceded by text.
func ToolUseResponse(text string, calls ...ToolCall) *Response {
	resp := &Response{StopReason: StopToolUse}
	if text != "" {
		resp.Content = append(resp.Content, ContentBlock{Type: ContentText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		resp.Content = append(resp.Content, ContentBlock{Type: ContentToolUse, ToolCall: &call})
	}
	return resp
}
