package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lgc202/anthropic-kit/httpx"
)

// MessageBatchesService talks to the /v1/messages/batches API, which runs
// large sets of message requests asynchronously at reduced cost.
type MessageBatchesService struct {
	client *Client
}

// MessageBatchRequestCounts breaks down the requests in a batch by state.
type MessageBatchRequestCounts struct {
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Errored    int `json:"errored"`
	Canceled   int `json:"canceled"`
	Expired    int `json:"expired"`
}

// MessageBatch is a server-side batch job.
type MessageBatch struct {
	ID                string                    `json:"id"`
	Type              string                    `json:"type"`
	ProcessingStatus  string                    `json:"processing_status"` // in_progress, canceling, ended
	RequestCounts     MessageBatchRequestCounts `json:"request_counts"`
	CreatedAt         time.Time                 `json:"created_at"`
	EndedAt           *time.Time                `json:"ended_at,omitempty"`
	ExpiresAt         time.Time                 `json:"expires_at"`
	CancelInitiatedAt *time.Time                `json:"cancel_initiated_at,omitempty"`
	ResultsURL        string                    `json:"results_url,omitempty"`
}

// Ended reports whether every request in the batch reached a final state.
func (b *MessageBatch) Ended() bool { return b.ProcessingStatus == "ended" }

// MessageBatchNewParams creates a batch from individual message requests.
type MessageBatchNewParams struct {
	Requests []MessageBatchRequest `json:"requests"`
}

// MessageBatchRequest is one entry in a batch. CustomID ties the eventual
// result back to the request; results arrive in arbitrary order.
type MessageBatchRequest struct {
	CustomID string           `json:"custom_id"`
	Params   MessageNewParams `json:"params"`
}

// MessageBatchResult is one line of the results file.
type MessageBatchResult struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type    string          `json:"type"` // succeeded, errored, canceled, expired
		Message *Message        `json:"message,omitempty"`
		Error   *APIErrorDetail `json:"error,omitempty"`
	} `json:"result"`
}

func (s *MessageBatchesService) checkSupported() error {
	if !s.client.Capabilities().MessageBatches {
		return &APIError{Kind: ErrKindBadRequest, Message: "message batches are not supported by this backend"}
	}
	return nil
}

// New submits a batch for asynchronous processing.
func (s *MessageBatchesService) New(ctx context.Context, params MessageBatchNewParams, opts ...httpx.RequestOption) (*MessageBatch, error) {
	if err := s.checkSupported(); err != nil {
		return nil, err
	}
	var batch MessageBatch
	if err := s.client.requestJSON(ctx, "POST", "/v1/messages/batches", params, &batch, opts...); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Get fetches the current state of a batch.
func (s *MessageBatchesService) Get(ctx context.Context, batchID string, opts ...httpx.RequestOption) (*MessageBatch, error) {
	if err := s.checkSupported(); err != nil {
		return nil, err
	}
	var batch MessageBatch
	if err := s.client.requestJSON(ctx, "GET", "/v1/messages/batches/"+batchID, nil, &batch, opts...); err != nil {
		return nil, err
	}
	return &batch, nil
}

// List pages through the workspace's batches, most recent first.
func (s *MessageBatchesService) List(ctx context.Context, params ListParams, opts ...httpx.RequestOption) (*Page[MessageBatch], error) {
	if err := s.checkSupported(); err != nil {
		return nil, err
	}
	return listPage[MessageBatch](ctx, s.client, "/v1/messages/batches", params, opts...)
}

// Cancel asks the server to stop a batch. Requests already in flight may
// still complete; poll Get until ProcessingStatus reports ended.
func (s *MessageBatchesService) Cancel(ctx context.Context, batchID string, opts ...httpx.RequestOption) (*MessageBatch, error) {
	if err := s.checkSupported(); err != nil {
		return nil, err
	}
	var batch MessageBatch
	if err := s.client.requestJSON(ctx, "POST", "/v1/messages/batches/"+batchID+"/cancel", nil, &batch, opts...); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Results streams the batch results file. The batch must have ended. The
// caller owns the iterator and must Close it.
func (s *MessageBatchesService) Results(ctx context.Context, batchID string, opts ...httpx.RequestOption) (*BatchResultsIterator, error) {
	if err := s.checkSupported(); err != nil {
		return nil, err
	}
	path := "/v1/messages/batches/" + batchID + "/results"
	reqOpts := append([]httpx.RequestOption{httpx.WithHeader("Accept", "application/x-jsonl")}, opts...)
	req, err := s.client.http.NewRequest(ctx, "GET", path, reqOpts...)
	if err != nil {
		return nil, classifyError("GET", path, err)
	}
	resp, err := s.client.http.DoStatus(req)
	if err != nil {
		return nil, classifyError("GET", path, err)
	}
	return &BatchResultsIterator{body: resp.Body, sc: newJSONLScanner(resp.Body)}, nil
}

// BatchResultsIterator reads results one line at a time so arbitrarily
// large batches never load fully into memory.
type BatchResultsIterator struct {
	body io.ReadCloser
	sc   *bufio.Scanner
}

func newJSONLScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	// Individual results carry whole messages and can run long.
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return sc
}

// Next returns the next result, or io.EOF when the file is exhausted.
func (it *BatchResultsIterator) Next() (*MessageBatchResult, error) {
	for it.sc.Scan() {
		line := bytes.TrimSpace(it.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var res MessageBatchResult
		if err := json.Unmarshal(line, &res); err != nil {
			return nil, &APIError{Kind: ErrKindResponseValidation, Message: fmt.Sprintf("decode batch result line: %v", err), Cause: err}
		}
		return &res, nil
	}
	if err := it.sc.Err(); err != nil {
		return nil, &APIError{Kind: ErrKindConnection, Message: "batch results stream interrupted", Cause: err}
	}
	return nil, io.EOF
}

// Close releases the underlying connection.
func (it *BatchResultsIterator) Close() error { return it.body.Close() }
