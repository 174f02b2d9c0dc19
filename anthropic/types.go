package anthropic

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
)

type ContentBlockType string

const (
	ContentBlockText       ContentBlockType = "text"
	ContentBlockThinking   ContentBlockType = "thinking"
	ContentBlockToolUse    ContentBlockType = "tool_use"
	ContentBlockToolResult ContentBlockType = "tool_result"
	ContentBlockImage      ContentBlockType = "image"
)

// ContentBlock is one typed chunk of a message body. The wire format is a
// tagged union; a single flat struct with omitempty fields keeps marshalling
// symmetric with what the server sends.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Thinking blocks.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// Tool use blocks. Input holds the parsed arguments object; while a
	// stream is in flight it may be a best-effort parse of partial JSON.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// Image blocks.
	Source *ImageSource `json:"source,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentBlockText, Text: text}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: ContentBlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Message is a complete assistant message, either returned by the unary API
// or accumulated from a stream.
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type,omitempty"`
	Role         Role           `json:"role"`
	Model        string         `json:"model,omitempty"`
	Content      []ContentBlock `json:"content"`
	StopReason   StopReason     `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Text returns the concatenated text of all text blocks.
func (m *Message) Text() string {
	var b strings.Builder
	for i := range m.Content {
		if m.Content[i].Type == ContentBlockText {
			b.WriteString(m.Content[i].Text)
		}
	}
	return b.String()
}

// ToolUses returns the tool_use blocks in order of appearance.
func (m *Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for i := range m.Content {
		if m.Content[i].Type == ContentBlockToolUse {
			out = append(out, m.Content[i])
		}
	}
	return out
}

// ToParam converts a received message into a conversation entry for the next
// request.
func (m *Message) ToParam() MessageParam {
	return MessageParam{Role: m.Role, Content: append([]ContentBlock(nil), m.Content...)}
}

// MessageParam is one entry of the conversation sent to the API.
type MessageParam struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

func UserMessage(text string) MessageParam {
	return MessageParam{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

func AssistantMessage(text string) MessageParam {
	return MessageParam{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// Tool is the wire form of a tool the model may invoke.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type ToolChoice struct {
	Type string `json:"type"` // "auto", "any", "tool", "none"
	Name string `json:"name,omitempty"`
}

// OutputFormat requests native structured output.
type OutputFormat struct {
	Type   string          `json:"type"` // "json_schema"
	Schema json.RawMessage `json:"schema"`
}

type OutputConfig struct {
	Format *OutputFormat `json:"format,omitempty"`
}

// MessageNewParams is the body of POST /v1/messages.
type MessageNewParams struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []MessageParam `json:"messages"`

	System        string            `json:"system,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	Tools      []Tool        `json:"tools,omitempty"`
	ToolChoice *ToolChoice   `json:"tool_choice,omitempty"`
	Output     *OutputConfig `json:"output_config,omitempty"`

	Stream bool `json:"stream,omitempty"`
}

// Clone deep-copies the parts the tool runner mutates between iterations.
func (p MessageNewParams) Clone() MessageNewParams {
	out := p
	out.Messages = make([]MessageParam, len(p.Messages))
	for i, m := range p.Messages {
		out.Messages[i] = MessageParam{Role: m.Role, Content: append([]ContentBlock(nil), m.Content...)}
	}
	out.Tools = append([]Tool(nil), p.Tools...)
	out.StopSequences = append([]string(nil), p.StopSequences...)
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Stream event types, as named on the wire.
type StreamEventType string

const (
	EventMessageStart      StreamEventType = "message_start"
	EventContentBlockStart StreamEventType = "content_block_start"
	EventContentBlockDelta StreamEventType = "content_block_delta"
	EventContentBlockStop  StreamEventType = "content_block_stop"
	EventMessageDelta      StreamEventType = "message_delta"
	EventMessageStop       StreamEventType = "message_stop"
	EventPing              StreamEventType = "ping"
	EventError             StreamEventType = "error"
)

type DeltaType string

const (
	DeltaText      DeltaType = "text_delta"
	DeltaInputJSON DeltaType = "input_json_delta"
	DeltaThinking  DeltaType = "thinking_delta"
	DeltaSignature DeltaType = "signature_delta"
)

// Delta is the payload of content_block_delta and message_delta events.
type Delta struct {
	Type DeltaType `json:"type,omitempty"`

	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`

	StopReason   StopReason `json:"stop_reason,omitempty"`
	StopSequence string     `json:"stop_sequence,omitempty"`
}

// MessageDeltaUsage carries cumulative usage on message_delta events.
type MessageDeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

// MessageStreamEvent is one raw event of a message stream.
type MessageStreamEvent struct {
	Type StreamEventType `json:"type"`

	Message      *Message           `json:"message,omitempty"`
	Index        int                `json:"index,omitempty"`
	ContentBlock *ContentBlock      `json:"content_block,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Usage        *MessageDeltaUsage `json:"usage,omitempty"`

	// Error is set on "error" events.
	Error *APIErrorDetail `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// APIErrorDetail is the error object the API embeds in error payloads.
type APIErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Token counting.

type MessageCountTokensParams struct {
	Model    string         `json:"model"`
	Messages []MessageParam `json:"messages"`
	System   string         `json:"system,omitempty"`
	Tools    []Tool         `json:"tools,omitempty"`
}

type MessageTokensCount struct {
	InputTokens int `json:"input_tokens"`
}
