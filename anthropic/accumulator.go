package anthropic

import (
	"encoding/json"
	"strings"
)

// MessageAccumulator folds MessageStreamEvents into a growing Message
// snapshot. It enforces the stream's ordering contract: message_start first,
// content blocks appended strictly in index order, no deltas after a block's
// stop, and nothing after message_stop.
type MessageAccumulator struct {
	message  Message
	started  bool
	complete bool

	// inputJSON buffers input_json_delta fragments per block index until the
	// block stops; the partial parse feeds live previews of tool input.
	inputJSON map[int]*strings.Builder
	stopped   map[int]bool
}

// Message returns the current snapshot. Before message_start it is the zero
// Message; after message_stop it is final.
func (a *MessageAccumulator) Message() Message { return a.message }

// Complete reports whether message_stop has been observed.
func (a *MessageAccumulator) Complete() bool { return a.complete }

// Apply folds one event into the snapshot. ping events are ignored. A stream
// that violates the ordering contract yields an *UnexpectedEventOrderError.
func (a *MessageAccumulator) Apply(ev MessageStreamEvent) error {
	if ev.Type == EventPing {
		return nil
	}
	if a.complete {
		return &UnexpectedEventOrderError{Event: ev.Type, Reason: "event after message_stop"}
	}
	if !a.started && ev.Type != EventMessageStart {
		return &UnexpectedEventOrderError{Event: ev.Type, Reason: "stream did not begin with message_start"}
	}

	switch ev.Type {
	case EventMessageStart:
		if a.started {
			return &UnexpectedEventOrderError{Event: ev.Type, Reason: "duplicate message_start"}
		}
		if ev.Message == nil {
			return &UnexpectedEventOrderError{Event: ev.Type, Reason: "missing message"}
		}
		a.message = *ev.Message
		a.message.Content = append([]ContentBlock(nil), ev.Message.Content...)
		a.started = true
		a.inputJSON = make(map[int]*strings.Builder)
		a.stopped = make(map[int]bool)

	case EventContentBlockStart:
		if ev.ContentBlock == nil {
			return &UnexpectedEventOrderError{Event: ev.Type, Reason: "missing content_block"}
		}
		if ev.Index != len(a.message.Content) {
			return &UnexpectedEventOrderError{Event: ev.Type, Reason: "content block index out of order"}
		}
		a.message.Content = append(a.message.Content, *ev.ContentBlock)

	case EventContentBlockDelta:
		block, err := a.openBlock(ev)
		if err != nil {
			return err
		}
		if ev.Delta == nil {
			return &UnexpectedEventOrderError{Event: ev.Type, Reason: "missing delta"}
		}
		switch ev.Delta.Type {
		case DeltaText:
			block.Text += ev.Delta.Text
		case DeltaThinking:
			block.Thinking += ev.Delta.Thinking
		case DeltaSignature:
			block.Signature += ev.Delta.Signature
		case DeltaInputJSON:
			buf := a.inputJSON[ev.Index]
			if buf == nil {
				buf = &strings.Builder{}
				a.inputJSON[ev.Index] = buf
			}
			buf.WriteString(ev.Delta.PartialJSON)
			// Eager partial parse for live preview; on failure the previous
			// value stays.
			var preview any
			if err := parsePartialJSON(buf.String(), &preview); err == nil {
				if raw, err := json.Marshal(preview); err == nil {
					block.Input = raw
				}
			}
		}

	case EventContentBlockStop:
		block, err := a.openBlock(ev)
		if err != nil {
			return err
		}
		if buf := a.inputJSON[ev.Index]; buf != nil && buf.Len() > 0 {
			// Finalize tool input from the full buffer; a valid concatenation
			// must parse exactly.
			var input any
			if err := parsePartialJSON(buf.String(), &input); err == nil {
				if raw, err := json.Marshal(input); err == nil {
					block.Input = raw
				}
			}
		}
		a.stopped[ev.Index] = true

	case EventMessageDelta:
		if ev.Delta != nil {
			if ev.Delta.StopReason != "" {
				a.message.StopReason = ev.Delta.StopReason
			}
			if ev.Delta.StopSequence != "" {
				a.message.StopSequence = ev.Delta.StopSequence
			}
		}
		if ev.Usage != nil {
			// The server sends cumulative output tokens; replace, don't add.
			a.message.Usage.OutputTokens = ev.Usage.OutputTokens
		}

	case EventMessageStop:
		a.complete = true

	default:
		// Unknown event types are carried in the raw view but do not touch
		// the snapshot.
	}
	return nil
}

func (a *MessageAccumulator) openBlock(ev MessageStreamEvent) (*ContentBlock, error) {
	if ev.Index < 0 || ev.Index >= len(a.message.Content) {
		return nil, &UnexpectedEventOrderError{Event: ev.Type, Reason: "delta for unknown content block"}
	}
	if a.stopped[ev.Index] {
		return nil, &UnexpectedEventOrderError{Event: ev.Type, Reason: "delta after content_block_stop"}
	}
	return &a.message.Content[ev.Index], nil
}
