package vertex

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"golang.org/x/oauth2"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	t.Setenv("ANTHROPIC_VERTEX_BASE_URL", "")
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
	b, err := New(context.Background(), "us-east5", WithProjectID("my-project"), WithTokenSource(ts))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBaseURL(t *testing.T) {
	if got := testBackend(t).BaseURL(); got != "https://us-east5-aiplatform.googleapis.com" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestPrepareRequest(t *testing.T) {
	b := testBackend(t)
	body := []byte(`{"model":"claude-sonnet-4-5","max_tokens":64}`)

	path, newBody, err := b.PrepareRequest("POST", "/v1/messages", body, false)
	if err != nil {
		t.Fatal(err)
	}
	want := "/v1/projects/my-project/locations/us-east5/publishers/anthropic/models/claude-sonnet-4-5:rawPredict"
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
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
	path, _, err := b.PrepareRequest("POST", "/v1/messages", []byte(`{"model":"m","stream":true}`), true)
	if err != nil {
		t.Fatal(err)
	}
	if path != "/v1/projects/my-project/locations/us-east5/publishers/anthropic/models/m:streamRawPredict" {
		t.Errorf("path = %q", path)
	}
}

func TestPrepareRequestCountTokens(t *testing.T) {
	b := testBackend(t)
	path, _, err := b.PrepareRequest("POST", "/v1/messages/count_tokens", []byte(`{"model":"m"}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if path != "/v1/projects/my-project/locations/us-east5/publishers/anthropic/models/m:countTokens" {
		t.Errorf("path = %q", path)
	}
}

func TestPrepareRequestUnsupported(t *testing.T) {
	b := testBackend(t)
	if _, _, err := b.PrepareRequest("POST", "/v1/complete", []byte(`{"model":"m"}`), false); err == nil {
		t.Error("legacy completions should be rejected")
	}
}

func TestSignRequest(t *testing.T) {
	b := testBackend(t)
	req, _ := http.NewRequest("POST", "https://us-east5-aiplatform.googleapis.com/", nil)
	if err := b.SignRequest(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestCapabilities(t *testing.T) {
	caps := testBackend(t).Capabilities()
	if !caps.TokenCounting {
		t.Error("vertex supports token counting")
	}
	if caps.MessageBatches {
		t.Error("vertex does not support batches")
	}
}

func TestNewRequiresRegion(t *testing.T) {
	t.Setenv("CLOUD_ML_REGION", "")
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"})
	if _, err := New(context.Background(), "", WithProjectID("p"), WithTokenSource(ts)); err == nil {
		t.Error("missing region should be rejected")
	}
}

func TestNewEnvFallbacks(t *testing.T) {
	t.Setenv("CLOUD_ML_REGION", "europe-west1")
	t.Setenv("ANTHROPIC_VERTEX_PROJECT_ID", "env-project")
	t.Setenv("ANTHROPIC_VERTEX_BASE_URL", "https://vertex.internal/")

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"})
	b, err := New(context.Background(), "", WithTokenSource(ts))
	if err != nil {
		t.Fatal(err)
	}
	if b.region != "europe-west1" || b.projectID != "env-project" {
		t.Errorf("env fallbacks not applied: region=%q project=%q", b.region, b.projectID)
	}
	if got := b.BaseURL(); got != "https://vertex.internal" {
		t.Errorf("BaseURL() = %q", got)
	}
}
