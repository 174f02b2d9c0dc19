// Package vertex routes API calls through Google Vertex AI. It rewrites
// logical endpoints into rawPredict URLs and authenticates with OAuth
// tokens from the ambient Google credential chain.
package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/lgc202/anthropic-kit/anthropic"
)

// DefaultVersion is the anthropic_version Vertex expects in request bodies.
const DefaultVersion = "vertex-2023-10-16"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Backend implements anthropic.Backend against Vertex AI.
type Backend struct {
	region    string
	projectID string
	baseURL   string
	tokens    oauth2.TokenSource
}

// Option configures a Backend.
type Option func(*Backend)

// WithProjectID overrides the project id discovered from credentials.
func WithProjectID(id string) Option {
	return func(b *Backend) { b.projectID = id }
}

// WithBaseURL overrides the regional endpoint.
func WithBaseURL(u string) Option {
	return func(b *Backend) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithTokenSource bypasses the default credential chain.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(b *Backend) { b.tokens = ts }
}

// New builds a Backend for region. Credentials and the project id come
// from the ambient chain unless overridden; tokens refresh themselves when
// expired. An empty region falls back to CLOUD_ML_REGION, the project id to
// ANTHROPIC_VERTEX_PROJECT_ID, and ANTHROPIC_VERTEX_BASE_URL overrides the
// endpoint unless WithBaseURL is given.
func New(ctx context.Context, region string, opts ...Option) (*Backend, error) {
	b := &Backend{region: region}
	if b.region == "" {
		b.region = os.Getenv("CLOUD_ML_REGION")
	}
	b.projectID = os.Getenv("ANTHROPIC_VERTEX_PROJECT_ID")
	if u := os.Getenv("ANTHROPIC_VERTEX_BASE_URL"); u != "" {
		b.baseURL = strings.TrimRight(u, "/")
	}
	for _, o := range opts {
		o(b)
	}
	if b.region == "" {
		return nil, fmt.Errorf("vertex: region is required")
	}
	if b.tokens == nil || b.projectID == "" {
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("vertex: find default credentials: %w", err)
		}
		if b.tokens == nil {
			b.tokens = creds.TokenSource
		}
		if b.projectID == "" {
			b.projectID = creds.ProjectID
		}
	}
	if b.projectID == "" {
		return nil, fmt.Errorf("vertex: project id is required and was not found in credentials")
	}
	return b, nil
}

func (b *Backend) BaseURL() string {
	if b.baseURL != "" {
		return b.baseURL
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", b.region)
}

// PrepareRequest maps /v1/messages onto the publisher model's rawPredict
// (or streamRawPredict) method. The model travels in the URL, so it is
// stripped from the body and anthropic_version is injected when absent.
func (b *Backend) PrepareRequest(method, path string, body []byte, stream bool) (string, []byte, error) {
	var verb string
	switch path {
	case "/v1/messages":
		verb = "rawPredict"
		if stream {
			verb = "streamRawPredict"
		}
	case "/v1/messages/count_tokens":
		verb = "countTokens"
	default:
		return "", nil, fmt.Errorf("vertex: unsupported endpoint %s", path)
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		return "", nil, fmt.Errorf("vertex: request body carries no model")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, fmt.Errorf("vertex: decode request body: %w", err)
	}
	delete(payload, "model")
	if !gjson.GetBytes(body, "anthropic_version").Exists() {
		payload["anthropic_version"] = DefaultVersion
	}
	newBody, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}

	newPath := fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:%s",
		url.PathEscape(b.projectID), url.PathEscape(b.region), url.PathEscape(model), verb)
	return newPath, newBody, nil
}

// SignRequest attaches a fresh OAuth token. The token source caches and
// refreshes on expiry.
func (b *Backend) SignRequest(ctx context.Context, req *http.Request) error {
	tok, err := b.tokens.Token()
	if err != nil {
		return fmt.Errorf("vertex: fetch access token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

func (b *Backend) Capabilities() anthropic.Capabilities {
	return anthropic.Capabilities{TokenCounting: true}
}
