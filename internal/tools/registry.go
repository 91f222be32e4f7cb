// Package tools holds the catalog of tools agents may ask the model to call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// Handler executes a tool. A returned error is converted into a failed
// ToolResult by the registry and never reaches the caller.
type Handler func(ctx context.Context, input json.RawMessage, ec domain.ExecutionContext) (domain.ToolResult, error)

// Tool is a registered tool: its model-facing definition plus dispatch data.
type Tool struct {
	domain.ToolDefinition
	Domain           domain.AgentType
	Handler          Handler
	ApprovalCategory domain.ApprovalCategory
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry maps tool names to tools. It is written at boot and read-only
// afterwards; Seal enforces that.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	order  []string
	sealed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// Register adds a tool. Duplicate names are a configuration error.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return domain.NewConfigError("tool_registration", "tool name is required")
	}
	if tool.Handler == nil {
		return domain.NewConfigError("tool_registration", "handler is required for %s", tool.Name)
	}
	if tool.ApprovalCategory == "" {
		tool.ApprovalCategory = domain.ApprovalAutoApprove
	}

	schema, err := compileSchema(tool.Name, tool.InputSchema)
	if err != nil {
		return domain.NewConfigError("tool_registration", "invalid input schema for %s: %v", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return domain.NewConfigError("tool_registration", "registry is sealed, cannot register %s", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return domain.NewConfigError("duplicate_tool", "tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = &entry{tool: tool, schema: schema}
	r.order = append(r.order, tool.Name)
	return nil
}

// MustRegister registers a tool or panics.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// GetForDomain returns the definitions (no handlers) visible to an agent,
// in registration order.
func (r *Registry) GetForDomain(d domain.AgentType) []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []domain.ToolDefinition
	for _, name := range r.order {
		e := r.tools[name]
		if e.tool.Domain == d {
			defs = append(defs, e.tool.ToolDefinition)
		}
	}
	return defs
}

// List returns every tool in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Domains returns the sorted set of domains that own at least one tool.
func (r *Registry) Domains() []domain.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.AgentType]bool)
	var out []domain.AgentType
	for _, e := range r.tools {
		if !seen[e.tool.Domain] {
			seen[e.tool.Domain] = true
			out = append(out, e.tool.Domain)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetApprovalCategory returns the tool's category, AUTO_APPROVE when unknown.
func (r *Registry) GetApprovalCategory(name string) domain.ApprovalCategory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tools[name]; ok && e.tool.ApprovalCategory != "" {
		return e.tool.ApprovalCategory
	}
	return domain.ApprovalAutoApprove
}

// Validate checks input against the tool's schema.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if err := validate(e.schema, input); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// Execute runs a tool. It never returns an error: unknown tools, invalid
// input, handler errors and handler panics all become failed results.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage, ec domain.ExecutionContext) (result domain.ToolResult) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return domain.FailedResult("unknown tool: " + name)
	}
	if err := validate(e.schema, input); err != nil {
		return domain.FailedResult("invalid input: " + err.Error())
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = domain.FailedResult(fmt.Sprintf("tool %s failed: %v", name, rec))
		}
	}()

	res, err := e.tool.Handler(ctx, input, ec)
	if err != nil {
		return domain.FailedResult(err.Error())
	}
	if !res.Success && res.Error == "" {
		res.Error = "tool " + name + " failed"
	}
	return res
}

const schemaURLPrefix = "mem://tools/"

func compileSchema(name string, schema domain.JSONSchema) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	// round trip through JSON so nested maps and numbers have the types
	// the compiler expects
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return nil, err
	}

	// a fixed scheme keeps the working directory out of validation errors
	url := schemaURLPrefix + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, schemaObj); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func validate(schema *jsonschema.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var args any
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(args)
}
