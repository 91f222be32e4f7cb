package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible endpoint (OpenAI, LiteLLM, DeepSeek).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIModel talks to an OpenAI-compatible chat completions API.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates an OpenAI-compatible model.
func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIModel{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

var _ Model = (*OpenAIModel)(nil)

// Complete implements Model.
func (m *OpenAIModel) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	choice := resp.Choices[0]

	out := &Response{
		Model: resp.Model,
		Usage: Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, ContentBlock{Type: ContentText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: rawArgs(tc.Function.Arguments)}
		out.Content = append(out.Content, ContentBlock{Type: ContentToolUse, ToolCall: &call})
	}
	out.StopReason = stopReason(choice.FinishReason, len(choice.Message.ToolCalls) > 0)
	return out, nil
}

// CompleteStream implements Model.
func (m *OpenAIModel) CompleteStream(ctx context.Context, req *Request, cb StreamCallback) (*Response, error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()

	// tool calls arrive in pieces keyed by index
	type partial struct {
		id, name string
		args     []byte
	}
	builders := make(map[int]*partial)
	var text []byte
	var finish openai.FinishReason
	out := &Response{Model: m.model}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk.Usage != nil {
			out.Usage = Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			text = append(text, delta.Content...)
			if err := cb(StreamEvent{Type: EventTextDelta, Text: delta.Content}); err != nil {
				return nil, err
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := builders[idx]
			if !ok {
				b = &partial{}
				builders[idx] = b
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			b.args = append(b.args, tc.Function.Arguments...)
			if tc.Function.Arguments != "" {
				if err := cb(StreamEvent{Type: EventToolInputDelta, ToolCallID: b.id, ToolName: b.name, InputDelta: tc.Function.Arguments}); err != nil {
					return nil, err
				}
			}
		}

		if chunk.Choices[0].FinishReason != "" {
			finish = chunk.Choices[0].FinishReason
		}
	}

	if len(text) > 0 {
		out.Content = append(out.Content, ContentBlock{Type: ContentText, Text: string(text)})
	}
	indexes := make([]int, 0, len(builders))
	for idx := range builders {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		b := builders[idx]
		call := ToolCall{ID: b.id, Name: b.name, Input: rawArgs(string(b.args))}
		out.Content = append(out.Content, ContentBlock{Type: ContentToolUse, ToolCall: &call})
	}
	out.StopReason = stopReason(finish, len(builders) > 0)
	return out, nil
}

func (m *OpenAIModel) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = m.model
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertOpenAIMessages(req.System, req.Messages),
		Tools:       convertOpenAITools(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func convertOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == RoleTool {
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.ToolName
		}
		if len(m.ToolCalls) > 0 {
			// some compatible APIs reject an assistant message without content
			if msg.Content == "" {
				msg.Content = " "
			}
			msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				msg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				}
			}
		}
		result = append(result, msg)
	}
	return result
}

func convertOpenAITools(req *Request) []openai.Tool {
	if len(req.Tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(req.Tools))
	for i, t := range req.Tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

func stopReason(finish openai.FinishReason, hasToolCalls bool) StopReason {
	switch {
	case finish == openai.FinishReasonToolCalls || hasToolCalls:
		return StopToolUse
	case finish == openai.FinishReasonLength:
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

// rawArgs keeps valid JSON arguments and wraps anything else so downstream
// schema validation reports it instead of a decode panic.
func rawArgs(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return json.RawMessage(quoted)
}
