package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// MessageStream reads MessageStreamEvents off an SSE response while
// maintaining an accumulated Message snapshot.
//
// Recv returns each raw event in server order and io.EOF once the stream
// finished normally (after message_stop). The snapshot is available at any
// point via Message(), and the final message via FinalMessage(). Closing the
// stream early releases the connection; subsequent reads return
// ErrStreamClosed.
type MessageStream struct {
	resp *http.Response
	dec  StreamDecoder

	mu   sync.Mutex
	acc  MessageAccumulator
	done bool
	err  error

	// closed is read outside the mutex so Close can interrupt a Recv that
	// is blocked on the network.
	closed    atomic.Bool
	closeOnce sync.Once

	handler StreamHandler
	endOnce sync.Once
}

// StreamHandler is the optional callback surface of a stream. Every field is
// optional; nil callbacks are skipped. OnEnd fires exactly once, whether the
// stream completed, errored, or was cancelled, and after every other
// callback for the stream.
type StreamHandler struct {
	// OnStreamEvent observes every raw event, including pings.
	OnStreamEvent func(ev MessageStreamEvent)
	// OnText observes each text delta together with the snapshot so far.
	OnText func(delta string, snapshot Message)
	// OnInputJSON observes each tool-input fragment with the current
	// best-effort parse of the partial input.
	OnInputJSON func(delta string, partial json.RawMessage)
	// OnContentBlock fires when a content block is finalized.
	OnContentBlock func(block ContentBlock)
	// OnMessage fires with the final message at message_stop.
	OnMessage func(msg Message)
	// OnError observes any stream error before it is returned to the caller.
	OnError func(err error)
	// OnTimeout fires when the stream dies to a deadline.
	OnTimeout func()
	// OnEnd fires exactly once at stream termination.
	OnEnd func()
}

func newMessageStream(resp *http.Response, dec StreamDecoder) *MessageStream {
	return &MessageStream{resp: resp, dec: dec}
}

// Subscribe installs the callback surface. It must be called before the
// first Recv.
func (s *MessageStream) Subscribe(h StreamHandler) { s.handler = h }

// Message returns the current accumulated snapshot.
func (s *MessageStream) Message() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Message()
}

// Recv returns the next raw event. It returns io.EOF after message_stop,
// ErrStreamClosed after Close, and the decorated error on any failure.
func (s *MessageStream) Recv() (MessageStreamEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return MessageStreamEvent{}, ErrStreamClosed
	}
	if s.done {
		return MessageStreamEvent{}, io.EOF
	}
	if s.err != nil {
		return MessageStreamEvent{}, s.err
	}

	sse, err := s.dec.Next()
	if err != nil {
		// A concurrent Close interrupts the read by closing the body.
		if s.closed.Load() {
			s.finish()
			return MessageStreamEvent{}, ErrStreamClosed
		}
		if errors.Is(err, io.EOF) {
			// Connection ended without message_stop.
			return MessageStreamEvent{}, s.fail(&APIError{
				Kind:    ErrKindConnection,
				Message: "stream ended before message_stop",
				Cause:   io.ErrUnexpectedEOF,
			})
		}
		if errors.Is(err, context.DeadlineExceeded) {
			if s.handler.OnTimeout != nil {
				s.handler.OnTimeout()
			}
			return MessageStreamEvent{}, s.fail(&APIError{Kind: ErrKindTimeout, Message: "stream read timed out", Cause: err})
		}
		return MessageStreamEvent{}, s.fail(&APIError{Kind: ErrKindConnection, Message: "stream read failed", Cause: err})
	}

	var ev MessageStreamEvent
	if err := json.Unmarshal([]byte(sse.Data), &ev); err != nil {
		return MessageStreamEvent{}, s.fail(&APIError{
			Kind:    ErrKindResponseValidation,
			Message: "undecodable stream event",
			Raw:     []byte(sse.Data),
			Cause:   err,
		})
	}
	ev.Raw = json.RawMessage(sse.Data)
	if ev.Type == "" && sse.Event != "" {
		ev.Type = StreamEventType(sse.Event)
	}

	// Server-side error events are raised directly and never reach the
	// accumulator.
	if ev.Type == EventError {
		apiErr := &APIError{Kind: ErrKindInternalServer, Raw: ev.Raw}
		if ev.Error != nil {
			apiErr.Type = ev.Error.Type
			apiErr.Message = ev.Error.Message
			apiErr.Kind = kindForErrorType(ev.Error.Type)
		}
		return MessageStreamEvent{}, s.fail(apiErr)
	}

	if err := s.acc.Apply(ev); err != nil {
		return MessageStreamEvent{}, s.fail(err)
	}
	s.dispatch(ev)

	if ev.Type == EventMessageStop {
		s.done = true
		s.finish()
	}
	return ev, nil
}

// dispatch runs the view callbacks for one accepted event.
func (s *MessageStream) dispatch(ev MessageStreamEvent) {
	h := s.handler
	if h.OnStreamEvent != nil {
		h.OnStreamEvent(ev)
	}
	switch ev.Type {
	case EventContentBlockDelta:
		if ev.Delta == nil {
			return
		}
		switch ev.Delta.Type {
		case DeltaText:
			if h.OnText != nil {
				h.OnText(ev.Delta.Text, s.acc.Message())
			}
		case DeltaInputJSON:
			if h.OnInputJSON != nil {
				snapshot := s.acc.Message()
				var partial json.RawMessage
				if ev.Index >= 0 && ev.Index < len(snapshot.Content) {
					partial = snapshot.Content[ev.Index].Input
				}
				h.OnInputJSON(ev.Delta.PartialJSON, partial)
			}
		}
	case EventContentBlockStop:
		if h.OnContentBlock != nil {
			snapshot := s.acc.Message()
			if ev.Index >= 0 && ev.Index < len(snapshot.Content) {
				h.OnContentBlock(snapshot.Content[ev.Index])
			}
		}
	case EventMessageStop:
		if h.OnMessage != nil {
			h.OnMessage(s.acc.Message())
		}
	}
}

// fail records err, notifies the handler, closes the connection, and fires
// OnEnd. The stream is unusable afterwards.
func (s *MessageStream) fail(err error) error {
	s.err = err
	if s.handler.OnError != nil {
		s.handler.OnError(err)
	}
	if s.resp != nil && s.resp.Body != nil {
		_ = s.resp.Body.Close()
	}
	s.finish()
	return err
}

func (s *MessageStream) finish() {
	s.endOnce.Do(func() {
		if s.handler.OnEnd != nil {
			s.handler.OnEnd()
		}
	})
}

// Close cancels the stream. It closes the HTTP body first, without taking
// the stream mutex, so a Recv blocked on the network unblocks immediately;
// then OnEnd fires if it has not fired yet. Close is idempotent.
func (s *MessageStream) Close() error {
	var err error
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closed.Store(true)
		if s.resp != nil && s.resp.Body != nil {
			err = s.resp.Body.Close()
		}
	})
	if !first {
		return nil
	}
	s.mu.Lock()
	s.finish()
	s.mu.Unlock()
	return err
}

// FinalMessage drains the remaining events and returns the completed
// message. It closes the stream.
func (s *MessageStream) FinalMessage() (Message, error) {
	defer s.Close()
	for {
		_, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Message{}, err
		}
	}
	msg := s.Message()
	return msg, nil
}

// Each drains the stream, dispatching h for every event, and returns the
// final message. It is the callback-style consumption mode.
func (s *MessageStream) Each(h StreamHandler) (Message, error) {
	s.Subscribe(h)
	return s.FinalMessage()
}

// StreamResult is one item of the channel view: an event or a terminal
// error.
type StreamResult struct {
	Event MessageStreamEvent
	Err   error
}

// Events exposes the stream as a channel for concurrent consumption. The
// channel closes when the stream ends; a terminal error (other than normal
// completion) is delivered as the last item. Cancelling ctx closes the
// stream, interrupting a read in flight.
func (s *MessageStream) Events(ctx context.Context) <-chan StreamResult {
	out := make(chan StreamResult)
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	go func() {
		defer close(out)
		defer stop()
		for {
			ev, err := s.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, ErrStreamClosed) {
					select {
					case out <- StreamResult{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case out <- StreamResult{Event: ev}:
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		}
	}()
	return out
}

func kindForErrorType(errType string) ErrorKind {
	switch errType {
	case "rate_limit_error":
		return ErrKindRateLimit
	case "authentication_error":
		return ErrKindAuthentication
	case "permission_error":
		return ErrKindPermissionDenied
	case "not_found_error":
		return ErrKindNotFound
	case "invalid_request_error":
		return ErrKindBadRequest
	case "overloaded_error", "api_error":
		return ErrKindInternalServer
	default:
		return ErrKindInternalServer
	}
}
