package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultMaxIterations bounds the agentic loop when the caller sets none.
const DefaultMaxIterations = 10

// ToolRunner drives the agentic loop: the model proposes tool calls, the
// runner executes them and feeds the results back, until the model stops
// asking for tools or the iteration budget runs out.
type ToolRunner struct {
	client   *Client
	registry *ToolRegistry

	maxIterations int
	concurrency   int
}

// ToolRunnerOption configures a ToolRunner.
type ToolRunnerOption func(*ToolRunner)

// WithMaxIterations bounds how many model turns the loop may take.
func WithMaxIterations(n int) ToolRunnerOption {
	return func(r *ToolRunner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithConcurrency lets independent tool handlers of one turn run in
// parallel, up to n at a time. Results are still assembled in the order
// the model emitted the tool calls.
func WithConcurrency(n int) ToolRunnerOption {
	return func(r *ToolRunner) {
		if n > 1 {
			r.concurrency = n
		}
	}
}

func NewToolRunner(client *Client, registry *ToolRegistry, opts ...ToolRunnerOption) *ToolRunner {
	r := &ToolRunner{
		client:        client,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		concurrency:   1,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ToolRunResult is the outcome of a completed (or exhausted) loop.
type ToolRunResult struct {
	// Message is the model's final assistant message.
	Message *Message
	// Transcript is the full conversation, including every intermediate
	// assistant turn and tool result.
	Transcript []MessageParam
	// Iterations counts the model turns taken.
	Iterations int
	// MaxIterationsReached is set when the loop stopped on budget while
	// the model still wanted tools.
	MaxIterationsReached bool
}

// Run executes the loop to completion. On a transport failure the partial
// transcript is returned alongside the error.
func (r *ToolRunner) Run(ctx context.Context, params MessageNewParams) (*ToolRunResult, error) {
	return r.run(ctx, params, nil)
}

func (r *ToolRunner) run(ctx context.Context, params MessageNewParams, emit func(ToolRunEvent) bool) (*ToolRunResult, error) {
	params = params.Clone()
	if len(params.Tools) == 0 {
		params.Tools = r.registry.Params()
	}

	result := &ToolRunResult{Transcript: params.Messages}
	for turn := 0; ; turn++ {
		if turn >= r.maxIterations {
			result.MaxIterationsReached = true
			return result, nil
		}

		msg, err := r.turn(ctx, params, turn, emit)
		if err != nil {
			return result, err
		}
		result.Iterations = turn + 1
		result.Message = msg

		assistant := msg.ToParam()
		params.Messages = append(params.Messages, assistant)
		result.Transcript = params.Messages

		if msg.StopReason != StopReasonToolUse {
			return result, nil
		}

		uses := msg.ToolUses()
		if len(uses) == 0 {
			return result, nil
		}
		results := r.executeTools(ctx, uses, turn, emit)
		params.Messages = append(params.Messages, MessageParam{Role: RoleUser, Content: results})
		result.Transcript = params.Messages
	}
}

// turn issues one model call. When emit is set the call streams and every
// event is forwarded before the accumulated message is returned.
func (r *ToolRunner) turn(ctx context.Context, params MessageNewParams, turn int, emit func(ToolRunEvent) bool) (*Message, error) {
	if emit == nil {
		return r.client.Messages.New(ctx, params)
	}

	stream, err := r.client.Messages.NewStreaming(ctx, params)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	for {
		ev, err := stream.Recv()
		if err != nil {
			break
		}
		if !emit(ToolRunEvent{Type: ToolRunEventStream, Turn: turn, Event: &ev}) {
			return nil, context.Canceled
		}
	}
	msg, err := stream.FinalMessage()
	if err != nil {
		return nil, err
	}
	if !emit(ToolRunEvent{Type: ToolRunEventMessage, Turn: turn, Message: &msg}) {
		return nil, context.Canceled
	}
	return &msg, nil
}

// executeTools runs every tool_use block of one assistant turn and returns
// the tool_result blocks in the order the model emitted the calls.
func (r *ToolRunner) executeTools(ctx context.Context, uses []ContentBlock, turn int, emit func(ToolRunEvent) bool) []ContentBlock {
	results := make([]ContentBlock, len(uses))

	runOne := func(i int, use ContentBlock) {
		if emit != nil {
			emit(ToolRunEvent{
				Type: ToolRunEventToolStart, Turn: turn,
				ToolUseID: use.ID, ToolName: use.Name, Input: use.Input,
			})
		}
		content, isErr := r.callTool(ctx, use)
		results[i] = ToolResultBlock(use.ID, content, isErr)
		if emit != nil {
			emit(ToolRunEvent{
				Type: ToolRunEventToolEnd, Turn: turn,
				ToolUseID: use.ID, ToolName: use.Name,
				Result: content, IsError: isErr,
			})
		}
	}

	if r.concurrency <= 1 || len(uses) == 1 {
		for i, use := range uses {
			runOne(i, use)
		}
		return results
	}

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for i, use := range uses {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, use ContentBlock) {
			defer wg.Done()
			defer func() { <-sem }()
			runOne(i, use)
		}(i, use)
	}
	wg.Wait()
	return results
}

// callTool never lets a handler failure escape the loop: unknown tools,
// invalid input, handler errors, and handler panics all come back as an
// is_error tool result for the model to react to.
func (r *ToolRunner) callTool(ctx context.Context, use ContentBlock) (content string, isError bool) {
	def, ok := r.registry.Get(use.Name)
	if !ok {
		return fmt.Sprintf("unknown tool: %s", use.Name), true
	}

	defer func() {
		if rec := recover(); rec != nil {
			content = fmt.Sprintf("tool %s panicked: %v", use.Name, rec)
			isError = true
		}
	}()
	out, err := def.Call(ctx, use.Input)
	if err != nil {
		return err.Error(), true
	}
	return out, false
}

// ToolRunEventType tags entries of the streaming runner's event union.
type ToolRunEventType string

const (
	ToolRunEventStream    ToolRunEventType = "stream_event"
	ToolRunEventMessage   ToolRunEventType = "message_complete"
	ToolRunEventToolStart ToolRunEventType = "tool_invocation_start"
	ToolRunEventToolEnd   ToolRunEventType = "tool_invocation_end"
	ToolRunEventDone      ToolRunEventType = "done"
)

// ToolRunEvent is one entry of the streaming runner's output. Which fields
// are set depends on Type; Turn is valid for all per-iteration entries.
type ToolRunEvent struct {
	Type ToolRunEventType
	Turn int

	// stream_event
	Event *MessageStreamEvent

	// message_complete
	Message *Message

	// tool_invocation_start / tool_invocation_end
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
	Result    string
	IsError   bool

	// done
	Final *ToolRunResult

	// Err terminates the stream; the channel closes after delivering it.
	Err error
}

// RunStreaming executes the loop while forwarding every inner stream event,
// tool invocation boundary, and per-turn message on the returned channel.
// The channel closes after a done event or an error event. Cancelling ctx
// cancels the in-flight model stream and running tool handlers.
func (r *ToolRunner) RunStreaming(ctx context.Context, params MessageNewParams) <-chan ToolRunEvent {
	out := make(chan ToolRunEvent)
	go func() {
		defer close(out)
		emit := func(ev ToolRunEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		result, err := r.run(ctx, params, emit)
		if err != nil {
			emit(ToolRunEvent{Type: ToolRunEventDone, Final: result, Err: err})
			return
		}
		emit(ToolRunEvent{Type: ToolRunEventDone, Final: result})
	}()
	return out
}
