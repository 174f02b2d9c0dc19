package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	t.Setenv("ANTHROPIC_BEDROCK_BASE_URL", "")
	b, err := New(context.Background(), "us-east-1",
		WithCredentials(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBaseURL(t *testing.T) {
	b := testBackend(t)
	if got := b.BaseURL(); got != "https://bedrock-runtime.us-east-1.amazonaws.com" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestPrepareRequestUnary(t *testing.T) {
	b := testBackend(t)
	body := []byte(`{"model":"claude-sonnet-4-5","max_tokens":64,"messages":[]}`)

	path, newBody, err := b.PrepareRequest("POST", "/v1/messages", body, false)
	if err != nil {
		t.Fatal(err)
	}
	if path != "/model/claude-sonnet-4-5/invoke" {
		t.Errorf("path = %q", path)
	}

	var payload map[string]any
	if err := json.Unmarshal(newBody, &payload); err != nil {
		t.Fatal(err)
	}
	if _, ok := payload["model"]; ok {
		t.Error("model must be stripped from the body")
	}
	if payload["anthropic_version"] != DefaultVersion {
		t.Errorf("anthropic_version = %v", payload["anthropic_version"])
	}
}

func TestPrepareRequestStream(t *testing.T) {
	b := testBackend(t)
	body := []byte(`{"model":"claude-sonnet-4-5","stream":true,"max_tokens":64}`)

	path, newBody, err := b.PrepareRequest("POST", "/v1/messages", body, true)
	if err != nil {
		t.Fatal(err)
	}
	if path != "/model/claude-sonnet-4-5/invoke-with-response-stream" {
		t.Errorf("path = %q", path)
	}
	var payload map[string]any
	if err := json.Unmarshal(newBody, &payload); err != nil {
		t.Fatal(err)
	}
	if _, ok := payload["stream"]; ok {
		t.Error("stream flag must be stripped; the URL selects streaming")
	}
}

func TestPrepareRequestPreservesVersion(t *testing.T) {
	b := testBackend(t)
	body := []byte(`{"model":"m","anthropic_version":"custom"}`)
	_, newBody, err := b.PrepareRequest("POST", "/v1/messages", body, false)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	_ = json.Unmarshal(newBody, &payload)
	if payload["anthropic_version"] != "custom" {
		t.Errorf("anthropic_version = %v, want caller's value kept", payload["anthropic_version"])
	}
}

func TestPrepareRequestErrors(t *testing.T) {
	b := testBackend(t)
	if _, _, err := b.PrepareRequest("POST", "/v1/messages/batches", []byte(`{"model":"m"}`), false); err == nil {
		t.Error("batches endpoint should be rejected")
	}
	if _, _, err := b.PrepareRequest("POST", "/v1/messages", []byte(`{}`), false); err == nil {
		t.Error("missing model should be rejected")
	}
}

func TestSignRequest(t *testing.T) {
	b := testBackend(t)
	body := []byte(`{"max_tokens":1}`)
	req, _ := http.NewRequest("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke", bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")

	if err := b.SignRequest(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256") {
		t.Errorf("Authorization = %q", auth)
	}
	if !strings.Contains(auth, "us-east-1/bedrock/aws4_request") {
		t.Errorf("credential scope missing: %q", auth)
	}
	if req.Header.Get("Connection") != "" {
		t.Error("Connection header must not survive into the signed request")
	}
	if strings.Contains(auth, "connection") {
		t.Error("connection must not be a signed header")
	}
}

func TestCapabilities(t *testing.T) {
	caps := testBackend(t).Capabilities()
	if caps.MessageBatches || caps.TokenCounting || caps.NativeOutputFormat {
		t.Errorf("capabilities = %+v, want none", caps)
	}
}

func TestNewEnvFallbacks(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("ANTHROPIC_BEDROCK_BASE_URL", "https://bedrock.internal/")

	b, err := New(context.Background(), "",
		WithCredentials(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")))
	if err != nil {
		t.Fatal(err)
	}
	if b.region != "eu-central-1" {
		t.Errorf("region = %q, want eu-central-1", b.region)
	}
	if got := b.BaseURL(); got != "https://bedrock.internal" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func encodeChunk(t *testing.T, buf *bytes.Buffer, inner string) {
	t.Helper()
	payload, err := json.Marshal(struct {
		Bytes []byte `json:"bytes"`
	}{Bytes: []byte(inner)})
	if err != nil {
		t.Fatal(err)
	}
	enc := eventstream.NewEncoder()
	err = enc.Encode(buf, eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":message-type", Value: eventstream.StringValue("event")},
			{Name: ":event-type", Value: eventstream.StringValue("chunk")},
		},
		Payload: payload,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEventStreamDecoder(t *testing.T) {
	var buf bytes.Buffer
	encodeChunk(t, &buf, `{"type":"message_start","message":{"id":"msg_01","content":[]}}`)
	encodeChunk(t, &buf, `{"type":"message_stop"}`)

	dec := testBackend(t).NewStreamDecoder(&buf)

	ev, err := dec.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Event != "message_start" {
		t.Errorf("first event = %q, want message_start", ev.Event)
	}
	if !strings.Contains(ev.Data, `"id":"msg_01"`) {
		t.Errorf("first event data = %q", ev.Data)
	}

	ev, err = dec.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Event != "message_stop" {
		t.Errorf("second event = %q, want message_stop", ev.Event)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("after last frame: %v, want io.EOF", err)
	}
}

func TestEventStreamDecoderException(t *testing.T) {
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	err := enc.Encode(&buf, eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":message-type", Value: eventstream.StringValue("exception")},
			{Name: ":exception-type", Value: eventstream.StringValue("throttlingException")},
		},
		Payload: []byte(`{"message":"rate exceeded"}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	dec := testBackend(t).NewStreamDecoder(&buf)
	if _, err := dec.Next(); err == nil || !strings.Contains(err.Error(), "throttlingException") {
		t.Fatalf("exception frame yielded %v", err)
	}
}

func TestStreamContentType(t *testing.T) {
	if got := testBackend(t).StreamContentType(); got != "application/vnd.amazon.eventstream" {
		t.Errorf("StreamContentType() = %q", got)
	}
}
