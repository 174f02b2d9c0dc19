package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompletionsNew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/complete" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req CompletionNewParams
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if req.MaxTokensToSample != 256 {
			t.Errorf("max_tokens_to_sample = %d", req.MaxTokensToSample)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"compl_01","type":"completion","completion":" Hello!","stop_reason":"stop_sequence","model":"m"}`)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	out, err := client.Completions.New(context.Background(), CompletionNewParams{
		Model:             "claude-2.1",
		Prompt:            HumanPrompt + " Say hello." + AIPrompt,
		MaxTokensToSample: 256,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Completion != " Hello!" || out.StopReason != "stop_sequence" {
		t.Errorf("completion = %+v", out)
	}
}

func TestCompletionsNewStreaming(t *testing.T) {
	body := event("completion", `{"type":"completion","completion":"Hel","stop_reason":null}`) +
		event("ping", `{"type":"ping"}`) +
		event("completion", `{"type":"completion","completion":"lo","stop_reason":null}`) +
		event("completion", `{"type":"completion","completion":"!","stop_reason":"stop_sequence"}`)
	srv := httptest.NewServer(sseHandler(t, body))
	defer srv.Close()
	client := newTestClient(t, srv)

	stream, err := client.Completions.NewStreaming(context.Background(), CompletionNewParams{
		Model:             "claude-2.1",
		Prompt:            HumanPrompt + " Say hello." + AIPrompt,
		MaxTokensToSample: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	var chunks []string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, chunk.Completion)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks: %v", len(chunks), chunks)
	}
	if stream.Snapshot() != "Hello!" {
		t.Errorf("Snapshot() = %q", stream.Snapshot())
	}
	if stream.Err() != nil {
		t.Errorf("Err() = %v", stream.Err())
	}
}

func TestCompletionsStreamError(t *testing.T) {
	body := event("completion", `{"type":"completion","completion":"x","stop_reason":null}`) +
		event("error", `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	srv := httptest.NewServer(sseHandler(t, body))
	defer srv.Close()
	client := newTestClient(t, srv)

	stream, err := client.Completions.NewStreaming(context.Background(), CompletionNewParams{
		Model: "claude-2.1", Prompt: HumanPrompt + " x" + AIPrompt, MaxTokensToSample: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); err != nil {
		t.Fatal(err)
	}
	_, err = stream.Recv()
	var ae *APIError
	if !errors.As(err, &ae) || ae.Kind != ErrKindRateLimit {
		t.Fatalf("got %v, want rate_limit error", err)
	}
}
