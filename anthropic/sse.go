package anthropic

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

// ServerSentEvent is one dispatched SSE record.
type ServerSentEvent struct {
	Event string
	Data  string
	ID    string
	Retry int
}

// StreamDecoder turns a provider's streaming wire framing into a sequence of
// ServerSentEvents. The default implementation reads text/event-stream;
// backends with a different framing (Bedrock's binary event stream) supply
// their own through the StreamTransport extension.
type StreamDecoder interface {
	// Next returns the next dispatched event, or io.EOF at end of stream.
	Next() (ServerSentEvent, error)
}

// sseDecoder parses a byte stream into ServerSentEvents per the HTML spec:
// blank line dispatches, ":" starts a comment, fields split at the first ":"
// with one leading space stripped from the value, multiple data lines join
// with "\n", and an event with all buffers empty is suppressed.
type sseDecoder struct {
	r           *bufio.Reader
	lastEventID string
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next dispatched event, or io.EOF at end of stream.
func (d *sseDecoder) Next() (ServerSentEvent, error) {
	var (
		event   string
		data    []string
		retry   int
		hasData bool
	)
	dispatch := func() (ServerSentEvent, bool) {
		ev := ServerSentEvent{
			Event: event,
			Data:  strings.Join(data, "\n"),
			ID:    d.lastEventID,
			Retry: retry,
		}
		if ev.Event == "" && !hasData && retry == 0 {
			return ServerSentEvent{}, false
		}
		return ev, true
	}

	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			// A final event without a trailing blank line still dispatches.
			if len(line) > 0 {
				d.parseLine(trimLineEnding(line), &event, &data, &retry, &hasData)
			}
			if ev, ok := dispatch(); ok {
				return ev, nil
			}
			if err == io.EOF {
				return ServerSentEvent{}, io.EOF
			}
			return ServerSentEvent{}, err
		}

		line = trimLineEnding(line)
		if len(line) == 0 {
			if ev, ok := dispatch(); ok {
				return ev, nil
			}
			// Empty dispatch: reset and keep reading.
			event, data, retry, hasData = "", nil, 0, false
			continue
		}
		d.parseLine(line, &event, &data, &retry, &hasData)
	}
}

func (d *sseDecoder) parseLine(line []byte, event *string, data *[]string, retry *int, hasData *bool) {
	if line[0] == ':' {
		return
	}
	var field, value string
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field = string(line[:i])
		v := line[i+1:]
		if len(v) > 0 && v[0] == ' ' {
			v = v[1:]
		}
		value = string(v)
	} else {
		field = string(line)
	}

	switch field {
	case "data":
		*data = append(*data, value)
		*hasData = true
	case "event":
		*event = value
	case "id":
		if !strings.ContainsRune(value, 0) {
			d.lastEventID = value
		}
	case "retry":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			*retry = n
		}
	}
	// Unknown fields are ignored.
}

func trimLineEnding(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
