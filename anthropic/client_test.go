package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const messageFixture = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5",
	"content": [{"type": "text", "text": "Hi!"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 3}
}`

func TestMessagesNew(t *testing.T) {
	var gotReq struct {
		Model     string         `json:"model"`
		MaxTokens int            `json:"max_tokens"`
		Messages  []MessageParam `json:"messages"`
		Stream    bool           `json:"stream"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Anthropic-Version") != APIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("Anthropic-Version"))
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "anthropic-kit/") {
			t.Errorf("user-agent = %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("POST should carry an idempotency key")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageFixture)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	msg, err := client.Messages.New(context.Background(), defaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if gotReq.Model != "claude-sonnet-4-5" || gotReq.MaxTokens != 64 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Stream {
		t.Error("unary call must not set stream")
	}
	if msg.ID != "msg_01" || msg.Text() != "Hi!" {
		t.Errorf("message = %+v", msg)
	}
	if msg.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q", msg.StopReason)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{400, ErrKindBadRequest},
		{401, ErrKindAuthentication},
		{403, ErrKindPermissionDenied},
		{404, ErrKindNotFound},
		{409, ErrKindConflict},
		{422, ErrKindUnprocessableEntity},
		{429, ErrKindRateLimit},
		{500, ErrKindInternalServer},
		{418, ErrKindStatus},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Request-Id", "req_123")
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"test_error","message":"boom"}}`)
		}))
		client := newTestClient(t, srv)

		_, err := client.Messages.New(context.Background(), defaultParams())
		srv.Close()

		var ae *APIError
		if !errors.As(err, &ae) {
			t.Fatalf("status %d: got %v, want *APIError", tt.status, err)
		}
		if ae.Kind != tt.kind {
			t.Errorf("status %d: Kind = %s, want %s", tt.status, ae.Kind, tt.kind)
		}
		if ae.StatusCode != tt.status {
			t.Errorf("status %d: StatusCode = %d", tt.status, ae.StatusCode)
		}
		if ae.Message != "boom" || ae.Type != "test_error" {
			t.Errorf("status %d: parsed body = %q/%q", tt.status, ae.Type, ae.Message)
		}
		if ae.RequestID != "req_123" {
			t.Errorf("status %d: RequestID = %q", tt.status, ae.RequestID)
		}
	}
}

func TestConnectionError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")
	client, err := New(WithAPIKey("k"), WithBaseURL("http://127.0.0.1:1"), WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Messages.New(context.Background(), defaultParams())
	var ae *APIError
	if !errors.As(err, &ae) || ae.Kind != ErrKindConnection {
		t.Fatalf("got %v, want connection error", err)
	}
}

func TestMutuallyExclusiveAuth(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "env-token")
	t.Setenv("ANTHROPIC_BASE_URL", "")
	if _, err := New(); !errors.Is(err, ErrMutuallyExclusiveAuth) {
		t.Fatalf("got %v, want ErrMutuallyExclusiveAuth", err)
	}
}

func TestOptionOverridesEnvAuth(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer opt-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Api-Key") != "" {
			t.Error("api key must not be sent alongside bearer auth")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageFixture)
	}))
	defer srv.Close()

	client, err := New(WithAuthToken("opt-token"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Messages.New(context.Background(), defaultParams()); err != nil {
		t.Fatal(err)
	}
}

func TestEnvBaseURLAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "env-key" {
			t.Errorf("X-Api-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageFixture)
	}))
	defer srv.Close()
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
	t.Setenv("ANTHROPIC_BASE_URL", srv.URL)

	client, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Messages.New(context.Background(), defaultParams()); err != nil {
		t.Fatal(err)
	}
}

func TestBetaHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Anthropic-Beta"); got != "output-128k-2025-02-19,token-counting-2024-11-01" {
			t.Errorf("Anthropic-Beta = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageFixture)
	}))
	defer srv.Close()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")

	client, err := New(
		WithAPIKey("k"),
		WithBaseURL(srv.URL),
		WithBetas("output-128k-2025-02-19", "token-counting-2024-11-01"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Messages.New(context.Background(), defaultParams()); err != nil {
		t.Fatal(err)
	}
}

func TestCountTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages/count_tokens" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"input_tokens": 42}`)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	count, err := client.Messages.CountTokens(context.Background(), MessageCountTokensParams{
		Model:    "claude-sonnet-4-5",
		Messages: []MessageParam{UserMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if count.InputTokens != 42 {
		t.Errorf("InputTokens = %d", count.InputTokens)
	}
}
