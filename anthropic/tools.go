package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolDefinition binds a tool the model can call to a handler that runs it.
// Build one with NewTool so the input schema and validation come from the
// handler's argument type.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema

	resolved *jsonschema.Resolved
	invoke   func(ctx context.Context, input json.RawMessage) (string, error)
}

// NewTool derives a ToolDefinition from a typed handler. The input schema
// comes from T's struct tags; fields without omitempty are required, the
// envelope rejects unknown properties. Parameter-listing sections at the
// end of description ("Args:", ":param x:", "@param x") are stripped and
// folded into the matching property descriptions.
func NewTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (*ToolDefinition, error) {
	if name == "" {
		return nil, fmt.Errorf("anthropic: tool name is required")
	}
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("anthropic: derive schema for tool %q: %w", name, err)
	}
	closeSchema(schema)

	desc, paramDocs := splitParamDocs(description)
	for param, doc := range paramDocs {
		if prop, ok := schema.Properties[param]; ok && prop.Description == "" {
			prop.Description = doc
		}
	}
	// A declared default makes the parameter optional.
	if len(schema.Required) > 0 {
		required := schema.Required[:0]
		for _, r := range schema.Required {
			if prop, ok := schema.Properties[r]; ok && len(prop.Default) > 0 {
				continue
			}
			required = append(required, r)
		}
		schema.Required = required
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("anthropic: resolve schema for tool %q: %w", name, err)
	}

	def := &ToolDefinition{
		Name:        name,
		Description: desc,
		Schema:      schema,
		resolved:    resolved,
	}
	def.invoke = func(ctx context.Context, input json.RawMessage) (string, error) {
		var args T
		if err := json.Unmarshal(input, &args); err != nil {
			return "", &InvalidToolInputError{Tool: name, Cause: err}
		}
		return fn(ctx, args)
	}
	return def, nil
}

// MustTool is NewTool for static tool tables; it panics on schema errors.
func MustTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) *ToolDefinition {
	def, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return def
}

// Param returns the API representation of the tool.
func (d *ToolDefinition) Param() Tool {
	raw, _ := json.Marshal(d.Schema)
	return Tool{Name: d.Name, Description: d.Description, InputSchema: raw}
}

// Call validates input against the tool's schema and runs the handler.
// Validation failures return InvalidToolInputError; bad input never
// reaches the handler.
func (d *ToolDefinition) Call(ctx context.Context, input json.RawMessage) (string, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var loose any
	if err := json.Unmarshal(input, &loose); err != nil {
		return "", &InvalidToolInputError{Tool: d.Name, Cause: err}
	}
	if d.resolved != nil {
		if err := d.resolved.Validate(loose); err != nil {
			return "", &InvalidToolInputError{Tool: d.Name, Cause: err}
		}
	}
	return d.invoke(ctx, input)
}

// closeSchema marks every object in the tree with additionalProperties
// false so the model cannot invent parameters.
func closeSchema(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	if s.Type == "object" || len(s.Properties) > 0 {
		if s.AdditionalProperties == nil {
			s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		}
	}
	for _, p := range s.Properties {
		closeSchema(p)
	}
	closeSchema(s.Items)
	for _, sub := range s.AnyOf {
		closeSchema(sub)
	}
	for _, sub := range s.AllOf {
		closeSchema(sub)
	}
	for _, sub := range s.OneOf {
		closeSchema(sub)
	}
}

var (
	argsHeaderRe = regexp.MustCompile(`(?mi)^\s*(args|arguments|parameters)\s*:?\s*$`)
	paramLineRe  = regexp.MustCompile(`(?m)^\s*(?::param\s+(\w+)\s*:|@param\s+(\w+)\s+|(\w+)\s*(?:\([^)]*\))?\s*:\s+)(.*)$`)
)

// splitParamDocs strips a trailing parameter-listing section from a tool
// description and returns the per-parameter docs it contained.
func splitParamDocs(description string) (string, map[string]string) {
	docs := map[string]string{}

	body := description
	if loc := argsHeaderRe.FindStringIndex(description); loc != nil {
		body = description[:loc[0]]
		section := description[loc[1]:]
		for _, m := range paramLineRe.FindAllStringSubmatch(section, -1) {
			name := m[1] + m[2] + m[3]
			if name != "" {
				docs[name] = strings.TrimSpace(m[4])
			}
		}
	} else {
		// Sphinx and Javadoc styles carry no header line.
		if loc := paramLineRe.FindStringIndex(description); loc != nil && strings.HasPrefix(strings.TrimSpace(description[loc[0]:loc[1]]), ":param") {
			body = description[:loc[0]]
			for _, m := range paramLineRe.FindAllStringSubmatch(description[loc[0]:], -1) {
				name := m[1] + m[2] + m[3]
				if name != "" {
					docs[name] = strings.TrimSpace(m[4])
				}
			}
		}
	}
	return strings.TrimSpace(body), docs
}

// ToolRegistry is a concurrency-safe catalog of tools, handed to the tool
// runner as one unit.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDefinition
}

func NewToolRegistry(defs ...*ToolDefinition) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]*ToolDefinition, len(defs))}
	for _, d := range defs {
		r.tools[d.Name] = d
	}
	return r
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(def *ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
}

// Get looks a tool up by name.
func (r *ToolRegistry) Get(name string) (*ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Params returns the API representation of every registered tool, sorted
// by name for stable request bodies.
func (r *ToolRegistry) Params() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d.Param())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
