package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lgc202/anthropic-kit/httpx"
)

// allowedStringFormats are the format values the API understands; anything
// else is demoted into the description so the model still sees the intent.
var allowedStringFormats = map[string]bool{
	"date-time": true, "date": true, "time": true, "duration": true,
	"email": true, "hostname": true, "uri": true,
	"ipv4": true, "ipv6": true, "uuid": true,
}

// SchemaFor derives the wire-ready JSON schema for T: objects are closed,
// oneOf is normalized to anyOf, unsupported formats and constraints are
// folded into descriptions.
func SchemaFor[T any]() (json.RawMessage, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	transformSchema(schema)
	return json.Marshal(schema)
}

// transformSchema rewrites a derived schema in place into the dialect the
// structured-output endpoint accepts.
func transformSchema(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	if s.Type == "object" || len(s.Properties) > 0 {
		if s.AdditionalProperties == nil {
			s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		}
	}
	if s.Format != "" && !allowedStringFormats[s.Format] {
		s.Description = appendNote(s.Description, "format: "+s.Format)
		s.Format = ""
	}
	if len(s.OneOf) > 0 {
		s.AnyOf = append(s.AnyOf, s.OneOf...)
		s.OneOf = nil
	}
	foldConstraints(s)

	for _, p := range s.Properties {
		transformSchema(p)
	}
	transformSchema(s.Items)
	for _, sub := range s.AnyOf {
		transformSchema(sub)
	}
	for _, sub := range s.AllOf {
		transformSchema(sub)
	}
}

// foldConstraints moves numeric and size constraints the endpoint ignores
// into a textual suffix on the description.
func foldConstraints(s *jsonschema.Schema) {
	notes := map[string]string{}
	if s.Minimum != nil {
		notes["minimum"] = trimFloat(*s.Minimum)
		s.Minimum = nil
	}
	if s.Maximum != nil {
		notes["maximum"] = trimFloat(*s.Maximum)
		s.Maximum = nil
	}
	if s.ExclusiveMinimum != nil {
		notes["exclusiveMinimum"] = trimFloat(*s.ExclusiveMinimum)
		s.ExclusiveMinimum = nil
	}
	if s.ExclusiveMaximum != nil {
		notes["exclusiveMaximum"] = trimFloat(*s.ExclusiveMaximum)
		s.ExclusiveMaximum = nil
	}
	if s.MultipleOf != nil {
		notes["multipleOf"] = trimFloat(*s.MultipleOf)
		s.MultipleOf = nil
	}
	if s.MinLength != nil {
		notes["minLength"] = fmt.Sprint(*s.MinLength)
		s.MinLength = nil
	}
	if s.MaxLength != nil {
		notes["maxLength"] = fmt.Sprint(*s.MaxLength)
		s.MaxLength = nil
	}
	if s.Pattern != "" {
		notes["pattern"] = s.Pattern
		s.Pattern = ""
	}
	if s.MinItems != nil && *s.MinItems > 1 {
		notes["minItems"] = fmt.Sprint(*s.MinItems)
		s.MinItems = nil
	}
	if s.MaxItems != nil {
		notes["maxItems"] = fmt.Sprint(*s.MaxItems)
		s.MaxItems = nil
	}
	if len(notes) == 0 {
		return
	}
	keys := make([]string, 0, len(notes))
	for k := range notes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + notes[k]
	}
	s.Description = appendNote(s.Description, strings.Join(parts, ", "))
}

func appendNote(desc, note string) string {
	if desc == "" {
		return "{" + note + "}"
	}
	return desc + " {" + note + "}"
}

func trimFloat(f float64) string {
	out := fmt.Sprintf("%g", f)
	return out
}

// StructuredResult pairs the decoded value with the raw message it came
// from, so callers keep access to usage and stop_reason.
type StructuredResult[T any] struct {
	Output  T
	Message *Message
}

// NewStructured sends the conversation and decodes the model's reply into
// T. On backends with native structured output the schema travels in
// output_config and the reply is guaranteed JSON; elsewhere the schema is
// injected into the system prompt and a failed parse returns
// StructuredOutputParseError without retrying.
func NewStructured[T any](ctx context.Context, c *Client, params MessageNewParams, opts ...httpx.RequestOption) (*StructuredResult[T], error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("anthropic: derive output schema: %w", err)
	}

	applyOutputSchema(c, &params, schema)

	msg, err := c.Messages.New(ctx, params, opts...)
	if err != nil {
		return nil, err
	}
	out, err := decodeStructured[T](msg)
	if err != nil {
		return nil, err
	}
	return &StructuredResult[T]{Output: *out, Message: msg}, nil
}

// applyOutputSchema routes the schema natively or through the system prompt,
// depending on what the backend supports.
func applyOutputSchema(c *Client, params *MessageNewParams, schema json.RawMessage) {
	if c.Capabilities().NativeOutputFormat {
		params.Output = &OutputConfig{Format: &OutputFormat{Type: "json_schema", Schema: schema}}
		return
	}
	params.Output = nil
	params.System = injectSchemaPrompt(params.System, schema)
}

// StructuredStream decorates a MessageStream with typed decoding of the
// completed message. The raw event surface (Recv, Each, Events) stays
// available for progress reporting while the reply is in flight.
type StructuredStream[T any] struct {
	*MessageStream
}

// NewStructuredStreaming is the streaming counterpart of NewStructured. The
// schema travels the same way; call Final once the stream is drained (or let
// Final drain it) to get the decoded value.
func NewStructuredStreaming[T any](ctx context.Context, c *Client, params MessageNewParams, opts ...httpx.RequestOption) (*StructuredStream[T], error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("anthropic: derive output schema: %w", err)
	}
	applyOutputSchema(c, &params, schema)

	stream, err := c.Messages.NewStreaming(ctx, params, opts...)
	if err != nil {
		return nil, err
	}
	return &StructuredStream[T]{MessageStream: stream}, nil
}

// Final drains any remaining events and decodes the completed message into
// T. A failed parse returns StructuredOutputParseError.
func (s *StructuredStream[T]) Final() (*StructuredResult[T], error) {
	msg, err := s.FinalMessage()
	if err != nil {
		return nil, err
	}
	out, err := decodeStructured[T](&msg)
	if err != nil {
		return nil, err
	}
	return &StructuredResult[T]{Output: *out, Message: &msg}, nil
}

func decodeStructured[T any](msg *Message) (*T, error) {
	var text string
	for _, block := range msg.Content {
		if block.Type == ContentBlockText {
			text = block.Text
			break
		}
	}
	var out T
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&out); err != nil {
		return nil, &StructuredOutputParseError{Text: text, Cause: err}
	}
	return &out, nil
}

func injectSchemaPrompt(system string, schema json.RawMessage) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond only with a single JSON object matching this JSON schema, with no surrounding prose or code fences:\n")
	b.Write(schema)
	return b.String()
}
