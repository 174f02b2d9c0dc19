package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/lgc202/anthropic-kit/httpx"
)

// CompletionsService talks to the legacy /v1/complete text API. New code
// should prefer MessagesService; this exists for older prompt-formatted
// workloads.
type CompletionsService struct {
	client *Client
}

// HumanPrompt and AIPrompt are the turn markers the legacy prompt format
// requires.
const (
	HumanPrompt = "\n\nHuman:"
	AIPrompt    = "\n\nAssistant:"
)

type CompletionNewParams struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	MaxTokensToSample int    `json:"max_tokens_to_sample"`

	StopSequences []string `json:"stop_sequences,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`

	Stream bool `json:"stream,omitempty"`
}

type Completion struct {
	ID         string `json:"id,omitempty"`
	Type       string `json:"type,omitempty"`
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason,omitempty"`
	Model      string `json:"model,omitempty"`
}

// New generates a completion for a raw prompt.
func (s *CompletionsService) New(ctx context.Context, params CompletionNewParams, opts ...httpx.RequestOption) (*Completion, error) {
	params.Stream = false
	var out Completion
	if err := s.client.requestJSON(ctx, "POST", "/v1/complete", params, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewStreaming generates a completion and streams the text as it is
// produced. The caller owns the stream and must Close it.
func (s *CompletionsService) NewStreaming(ctx context.Context, params CompletionNewParams, opts ...httpx.RequestOption) (*CompletionStream, error) {
	params.Stream = true
	resp, err := s.client.requestStream(ctx, "POST", "/v1/complete", params, opts...)
	if err != nil {
		return nil, err
	}
	return &CompletionStream{resp: resp, dec: s.client.streamDecoder(resp)}, nil
}

// CompletionStream yields completion chunks. Recv returns io.EOF after the
// server's final chunk; Snapshot accumulates the text seen so far.
type CompletionStream struct {
	resp *http.Response
	dec  StreamDecoder

	mu       sync.Mutex
	closed   bool
	done     bool
	err      error
	snapshot string
}

func (s *CompletionStream) Recv() (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	for {
		if s.done {
			return nil, io.EOF
		}
		ev, err := s.dec.Next()
		if err != nil {
			if err == io.EOF {
				s.done = true
				return nil, io.EOF
			}
			s.err = &APIError{Kind: ErrKindConnection, Message: "completion stream interrupted", Cause: err}
			return nil, s.err
		}
		switch ev.Event {
		case "ping":
			continue
		case "error":
			var payload struct {
				Error APIErrorDetail `json:"error"`
			}
			_ = json.Unmarshal([]byte(ev.Data), &payload)
			s.err = &APIError{
				Kind:    kindForErrorType(payload.Error.Type),
				Type:    payload.Error.Type,
				Message: payload.Error.Message,
			}
			return nil, s.err
		}
		var chunk Completion
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			s.err = &APIError{Kind: ErrKindResponseValidation, Message: "decode completion event", Cause: err}
			return nil, s.err
		}
		s.snapshot += chunk.Completion
		if chunk.StopReason != "" {
			s.done = true
		}
		return &chunk, nil
	}
}

// Snapshot returns the concatenation of all completion text received.
func (s *CompletionStream) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *CompletionStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

func (s *CompletionStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}
