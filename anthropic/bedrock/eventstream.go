package bedrock

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/tidwall/gjson"

	"github.com/lgc202/anthropic-kit/anthropic"
)

// streamContentType is the binary framing Bedrock streaming responses use
// instead of text/event-stream.
const streamContentType = "application/vnd.amazon.eventstream"

// StreamContentType reports Bedrock's streaming framing.
func (b *Backend) StreamContentType() string { return streamContentType }

// NewStreamDecoder wraps a streaming response body in the binary
// event-stream decoder.
func (b *Backend) NewStreamDecoder(body io.Reader) anthropic.StreamDecoder {
	return &eventStreamDecoder{r: body, dec: eventstream.NewDecoder()}
}

// eventStreamDecoder reads Bedrock's event-stream frames and re-emits the
// embedded API events. Each chunk frame carries a base64 "bytes" payload
// holding one JSON event; the event name comes from its "type" field.
type eventStreamDecoder struct {
	r   io.Reader
	dec *eventstream.Decoder
}

func (d *eventStreamDecoder) Next() (anthropic.ServerSentEvent, error) {
	for {
		msg, err := d.dec.Decode(d.r, nil)
		if err != nil {
			// io.EOF marks a clean end of the frame sequence.
			return anthropic.ServerSentEvent{}, err
		}

		switch mt := headerString(msg.Headers, ":message-type"); mt {
		case "", "event":
			var chunk struct {
				Bytes []byte `json:"bytes"`
			}
			if err := json.Unmarshal(msg.Payload, &chunk); err != nil {
				return anthropic.ServerSentEvent{}, fmt.Errorf("bedrock: decode chunk frame: %w", err)
			}
			if len(chunk.Bytes) == 0 {
				continue
			}
			data := string(chunk.Bytes)
			return anthropic.ServerSentEvent{
				Event: gjson.Get(data, "type").String(),
				Data:  data,
			}, nil
		case "exception":
			return anthropic.ServerSentEvent{}, fmt.Errorf("bedrock: stream exception %s: %s",
				headerString(msg.Headers, ":exception-type"), msg.Payload)
		default:
			return anthropic.ServerSentEvent{}, fmt.Errorf("bedrock: stream %s %s: %s",
				mt, headerString(msg.Headers, ":error-code"), headerString(msg.Headers, ":error-message"))
		}
	}
}

func headerString(hs eventstream.Headers, name string) string {
	for _, h := range hs {
		if h.Name != name {
			continue
		}
		if s, ok := h.Value.(eventstream.StringValue); ok {
			return string(s)
		}
	}
	return ""
}
