package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// GeminiConfig configures the Gemini API or Vertex AI backend.
type GeminiConfig struct {
	APIKey    string
	ProjectID string
	Location  string
	Model     string
}

// GeminiModel talks to Gemini through google.golang.org/genai.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini model. Vertex AI is used when a project
// and location are configured.
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.ProjectID != "" && cfg.Location != "" {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = cfg.ProjectID
		clientConfig.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiModel{client: client, model: model}, nil
}

var _ Model = (*GeminiModel)(nil)

// Complete implements Model.
func (m *GeminiModel) Complete(ctx context.Context, req *Request) (*Response, error) {
	model, contents, conf, err := m.prepareCall(req)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Models.GenerateContent(ctx, model, contents, conf)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates returned")
	}

	out := &Response{Model: model, Usage: geminiUsage(resp)}
	appendGeminiParts(out, resp.Candidates[0])
	out.StopReason = geminiStopReason(resp.Candidates[0], out)
	return out, nil
}

// CompleteStream implements Model.
func (m *GeminiModel) CompleteStream(ctx context.Context, req *Request, cb StreamCallback) (*Response, error) {
	model, contents, conf, err := m.prepareCall(req)
	if err != nil {
		return nil, err
	}

	out := &Response{Model: model}
	var text []byte
	var last *genai.Candidate
	var calls []ContentBlock

	for chunk, err := range m.client.Models.GenerateContentStream(ctx, model, contents, conf) {
		if err != nil {
			return nil, err
		}
		if chunk.UsageMetadata != nil {
			out.Usage = geminiUsage(chunk)
		}
		if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
			continue
		}
		last = chunk.Candidates[0]
		for _, part := range last.Content.Parts {
			if part.Text != "" {
				text = append(text, part.Text...)
				if err := cb(StreamEvent{Type: EventTextDelta, Text: part.Text}); err != nil {
					return nil, err
				}
			}
			if part.FunctionCall != nil {
				call := geminiToolCall(part.FunctionCall)
				calls = append(calls, ContentBlock{Type: ContentToolUse, ToolCall: &call})
				if err := cb(StreamEvent{Type: EventToolInputDelta, ToolCallID: call.ID, ToolName: call.Name, InputDelta: string(call.Input)}); err != nil {
					return nil, err
				}
			}
		}
	}

	if len(text) > 0 {
		out.Content = append(out.Content, ContentBlock{Type: ContentText, Text: string(text)})
	}
	out.Content = append(out.Content, calls...)
	out.StopReason = geminiStopReason(last, out)
	return out, nil
}

func (m *GeminiModel) prepareCall(req *Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	var contents []*genai.Content
	for _, msg := range req.Messages {
		content, err := convertGeminiMessage(msg)
		if err != nil {
			return "", nil, nil, err
		}
		contents = append(contents, content)
	}

	conf := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
		Tools:       convertGeminiTools(req.Tools),
	}
	if req.MaxTokens > 0 {
		conf.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		conf.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	model := req.Model
	if model == "" {
		model = m.model
	}
	return model, contents, conf, nil
}

func convertGeminiMessage(m Message) (*genai.Content, error) {
	role := "user"
	if m.Role == RoleAssistant {
		role = "model"
	}

	var parts []*genai.Part
	if m.Content != "" && m.Role != RoleTool {
		parts = append(parts, &genai.Part{Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		if len(tc.Input) > 0 {
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool arguments for %s: %w", tc.Name, err)
			}
		}
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
		})
	}
	if m.Role == RoleTool {
		// wrap as "result" so the response is always a JSON object
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: map[string]any{"result": m.Content},
			},
		})
	}
	return &genai.Content{Role: role, Parts: parts}, nil
}

func convertGeminiTools(tools []domain.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	valType, _ := schema["type"].(string)
	s := &genai.Schema{
		Type:        toGenaiType(valType),
		Description: getString(schema, "description"),
		Enum:        stringList(schema["enum"]),
		Required:    stringList(schema["required"]),
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if vMap, ok := v.(map[string]any); ok {
				s.Properties[k] = convertSchema(vMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = convertSchema(items)
	}
	return s
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func getString(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

// stringList accepts both []string and the []any produced by JSON decoding.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func geminiToolCall(fc *genai.FunctionCall) ToolCall {
	args, _ := json.Marshal(fc.Args)
	if fc.Args == nil {
		args = []byte(`{}`)
	}
	id := fc.ID
	if id == "" {
		// the Gemini API does not always assign call ids
		id = "call_" + uuid.NewString()
	}
	return ToolCall{ID: id, Name: fc.Name, Input: args}
}

func appendGeminiParts(out *Response, cand *genai.Candidate) {
	if cand == nil || cand.Content == nil {
		return
	}
	var text string
	var calls []ContentBlock
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			call := geminiToolCall(part.FunctionCall)
			calls = append(calls, ContentBlock{Type: ContentToolUse, ToolCall: &call})
		}
	}
	if text != "" {
		out.Content = append(out.Content, ContentBlock{Type: ContentText, Text: text})
	}
	out.Content = append(out.Content, calls...)
}

func geminiStopReason(cand *genai.Candidate, out *Response) StopReason {
	if len(out.ToolCalls()) > 0 {
		return StopToolUse
	}
	if cand != nil && cand.FinishReason == genai.FinishReasonMaxTokens {
		return StopMaxTokens
	}
	return StopEndTurn
}

func geminiUsage(resp *genai.GenerateContentResponse) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}
