package anthropic

import (
	"encoding/json"
	"errors"
	"testing"
)

func msgStartEvent() MessageStreamEvent {
	return MessageStreamEvent{
		Type: EventMessageStart,
		Message: &Message{
			ID:    "msg_01",
			Type:  "message",
			Role:  RoleAssistant,
			Model: "claude-sonnet-4-5",
			Usage: Usage{InputTokens: 25},
		},
	}
}

func blockStart(index int, block ContentBlock) MessageStreamEvent {
	return MessageStreamEvent{Type: EventContentBlockStart, Index: index, ContentBlock: &block}
}

func textDelta(index int, text string) MessageStreamEvent {
	return MessageStreamEvent{Type: EventContentBlockDelta, Index: index, Delta: &Delta{Type: DeltaText, Text: text}}
}

func jsonDelta(index int, partial string) MessageStreamEvent {
	return MessageStreamEvent{Type: EventContentBlockDelta, Index: index, Delta: &Delta{Type: DeltaInputJSON, PartialJSON: partial}}
}

func blockStop(index int) MessageStreamEvent {
	return MessageStreamEvent{Type: EventContentBlockStop, Index: index}
}

func applyAll(t *testing.T, acc *MessageAccumulator, events ...MessageStreamEvent) {
	t.Helper()
	for _, ev := range events {
		if err := acc.Apply(ev); err != nil {
			t.Fatalf("Apply(%s) error: %v", ev.Type, err)
		}
	}
}

func TestAccumulatorTextMessage(t *testing.T) {
	var acc MessageAccumulator
	applyAll(t, &acc,
		msgStartEvent(),
		blockStart(0, ContentBlock{Type: ContentBlockText}),
		textDelta(0, "Hello"),
		textDelta(0, ", world"),
		blockStop(0),
		MessageStreamEvent{
			Type:  EventMessageDelta,
			Delta: &Delta{StopReason: StopReasonEndTurn},
			Usage: &MessageDeltaUsage{OutputTokens: 12},
		},
		MessageStreamEvent{Type: EventMessageStop},
	)

	if !acc.Complete() {
		t.Fatal("accumulator should be complete")
	}
	msg := acc.Message()
	if got := msg.Text(); got != "Hello, world" {
		t.Errorf("Text() = %q", got)
	}
	if msg.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q", msg.StopReason)
	}
	if msg.Usage.InputTokens != 25 || msg.Usage.OutputTokens != 12 {
		t.Errorf("Usage = %+v", msg.Usage)
	}
}

func TestAccumulatorCumulativeOutputTokens(t *testing.T) {
	var acc MessageAccumulator
	applyAll(t, &acc,
		msgStartEvent(),
		MessageStreamEvent{Type: EventMessageDelta, Usage: &MessageDeltaUsage{OutputTokens: 5}},
		MessageStreamEvent{Type: EventMessageDelta, Usage: &MessageDeltaUsage{OutputTokens: 17}},
	)
	if got := acc.Message().Usage.OutputTokens; got != 17 {
		t.Errorf("OutputTokens = %d, want the latest cumulative value 17", got)
	}
}

func TestAccumulatorToolInput(t *testing.T) {
	var acc MessageAccumulator
	applyAll(t, &acc,
		msgStartEvent(),
		blockStart(0, ContentBlock{Type: ContentBlockToolUse, ID: "toolu_01", Name: "get_weather"}),
		jsonDelta(0, `{"loca`),
		jsonDelta(0, `tion":"Par`),
	)

	// Mid-stream the partial parse yields a usable preview.
	var preview map[string]any
	if err := json.Unmarshal(acc.Message().Content[0].Input, &preview); err != nil {
		t.Fatalf("partial input not parseable: %v", err)
	}
	if preview["location"] != "Par" {
		t.Errorf("preview = %#v", preview)
	}

	applyAll(t, &acc, jsonDelta(0, `is"}`), blockStop(0))
	if got := string(acc.Message().Content[0].Input); got != `{"location":"Paris"}` {
		t.Errorf("final input = %s", got)
	}
}

func TestAccumulatorPingIgnored(t *testing.T) {
	var acc MessageAccumulator
	if err := acc.Apply(MessageStreamEvent{Type: EventPing}); err != nil {
		t.Fatalf("ping before message_start must be accepted: %v", err)
	}
	applyAll(t, &acc, msgStartEvent(), MessageStreamEvent{Type: EventPing})
}

func TestAccumulatorOrderViolations(t *testing.T) {
	expectOrderErr := func(t *testing.T, err error) {
		t.Helper()
		var oe *UnexpectedEventOrderError
		if !errors.As(err, &oe) {
			t.Fatalf("got %v, want UnexpectedEventOrderError", err)
		}
	}

	t.Run("delta before message_start", func(t *testing.T) {
		var acc MessageAccumulator
		expectOrderErr(t, acc.Apply(textDelta(0, "x")))
	})
	t.Run("message_delta before message_start", func(t *testing.T) {
		var acc MessageAccumulator
		expectOrderErr(t, acc.Apply(MessageStreamEvent{Type: EventMessageDelta, Delta: &Delta{StopReason: StopReasonEndTurn}}))
	})
	t.Run("duplicate message_start", func(t *testing.T) {
		var acc MessageAccumulator
		applyAll(t, &acc, msgStartEvent())
		expectOrderErr(t, acc.Apply(msgStartEvent()))
	})
	t.Run("block index gap", func(t *testing.T) {
		var acc MessageAccumulator
		applyAll(t, &acc, msgStartEvent())
		expectOrderErr(t, acc.Apply(blockStart(1, ContentBlock{Type: ContentBlockText})))
	})
	t.Run("delta for unknown block", func(t *testing.T) {
		var acc MessageAccumulator
		applyAll(t, &acc, msgStartEvent())
		expectOrderErr(t, acc.Apply(textDelta(0, "x")))
	})
	t.Run("delta after block stop", func(t *testing.T) {
		var acc MessageAccumulator
		applyAll(t, &acc,
			msgStartEvent(),
			blockStart(0, ContentBlock{Type: ContentBlockText}),
			blockStop(0),
		)
		expectOrderErr(t, acc.Apply(textDelta(0, "late")))
	})
	t.Run("event after message_stop", func(t *testing.T) {
		var acc MessageAccumulator
		applyAll(t, &acc, msgStartEvent(), MessageStreamEvent{Type: EventMessageStop})
		expectOrderErr(t, acc.Apply(MessageStreamEvent{Type: EventMessageDelta}))
	})
}

func TestAccumulatorThinkingDeltas(t *testing.T) {
	var acc MessageAccumulator
	applyAll(t, &acc,
		msgStartEvent(),
		blockStart(0, ContentBlock{Type: ContentBlockThinking}),
		MessageStreamEvent{Type: EventContentBlockDelta, Index: 0, Delta: &Delta{Type: DeltaThinking, Thinking: "step one; "}},
		MessageStreamEvent{Type: EventContentBlockDelta, Index: 0, Delta: &Delta{Type: DeltaThinking, Thinking: "step two"}},
		MessageStreamEvent{Type: EventContentBlockDelta, Index: 0, Delta: &Delta{Type: DeltaSignature, Signature: "sig"}},
		blockStop(0),
	)
	block := acc.Message().Content[0]
	if block.Thinking != "step one; step two" {
		t.Errorf("Thinking = %q", block.Thinking)
	}
	if block.Signature != "sig" {
		t.Errorf("Signature = %q", block.Signature)
	}
}
