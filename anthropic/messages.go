package anthropic

import (
	"context"

	"github.com/lgc202/anthropic-kit/httpx"
)

// MessagesService talks to the /v1/messages API.
type MessagesService struct {
	client  *Client
	Batches *MessageBatchesService
}

// New sends a conversation to the model and waits for the full response.
func (s *MessagesService) New(ctx context.Context, params MessageNewParams, opts ...httpx.RequestOption) (*Message, error) {
	params.Stream = false
	var msg Message
	if err := s.client.requestJSON(ctx, "POST", "/v1/messages", params, &msg, opts...); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NewStreaming sends a conversation to the model and returns a stream of
// server-sent events. The caller owns the stream and must Close it.
func (s *MessagesService) NewStreaming(ctx context.Context, params MessageNewParams, opts ...httpx.RequestOption) (*MessageStream, error) {
	params.Stream = true
	resp, err := s.client.requestStream(ctx, "POST", "/v1/messages", params, opts...)
	if err != nil {
		return nil, err
	}
	return newMessageStream(resp, s.client.streamDecoder(resp)), nil
}

// CountTokens reports how many input tokens a request would consume,
// without running inference.
func (s *MessagesService) CountTokens(ctx context.Context, params MessageCountTokensParams, opts ...httpx.RequestOption) (*MessageTokensCount, error) {
	if !s.client.Capabilities().TokenCounting {
		return nil, &APIError{Kind: ErrKindBadRequest, Message: "token counting is not supported by this backend"}
	}
	var count MessageTokensCount
	if err := s.client.requestJSON(ctx, "POST", "/v1/messages/count_tokens", params, &count, opts...); err != nil {
		return nil, err
	}
	return &count, nil
}
