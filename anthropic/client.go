package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/lgc202/anthropic-kit/httpx"
	"github.com/lgc202/anthropic-kit/version"
)

const (
	// DefaultBaseURL is the first-party API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is the provider version header value this SDK speaks.
	APIVersion = "2023-06-01"
)

// Backend translates logical API calls into provider-specific HTTP requests
// and signs them. The default backend talks to the first-party API; the
// bedrock and vertex packages provide alternatives. It is the only place
// where logical-to-physical URL translation happens.
type Backend interface {
	// BaseURL returns the provider's endpoint.
	BaseURL() string
	// PrepareRequest may rewrite the path and body for the provider.
	PrepareRequest(method, path string, body []byte, stream bool) (string, []byte, error)
	// SignRequest authenticates one outgoing attempt. It may mutate headers.
	SignRequest(ctx context.Context, req *http.Request) error
	// Capabilities reports which optional API surface the provider carries.
	Capabilities() Capabilities
}

// StreamTransport is an optional Backend extension for providers whose
// streaming responses are not text/event-stream. The client checks the CT
// it reports and feeds the body through its decoder instead of the SSE one.
type StreamTransport interface {
	// StreamContentType is the content type streaming responses carry.
	StreamContentType() string
	// NewStreamDecoder wraps a streaming response body.
	NewStreamDecoder(body io.Reader) StreamDecoder
}

// Capabilities is a static capability query for a Backend: optional API
// surface that some providers lack entirely.
type Capabilities struct {
	MessageBatches     bool
	TokenCounting      bool
	NativeOutputFormat bool
}

// Client is the SDK entry point. Construct with New; zero value is not
// usable. A Client is safe for concurrent use; every call builds its own
// request state and the connection pool is the only shared resource.
type Client struct {
	http    *httpx.Client
	backend Backend

	Messages    *MessagesService
	Completions *CompletionsService
}

// New builds a Client from environment defaults plus options. Exactly one
// auth strategy may be configured; supplying more than one returns
// ErrMutuallyExclusiveAuth.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		baseURL:    os.Getenv("ANTHROPIC_BASE_URL"),
		apiKey:     os.Getenv("ANTHROPIC_API_KEY"),
		authToken:  os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		maxRetries: -1,
	}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}

	authModes := 0
	if cfg.apiKey != "" {
		authModes++
	}
	if cfg.authToken != "" {
		authModes++
	}
	if cfg.backend != nil {
		authModes++
	}
	if authModes > 1 {
		return nil, ErrMutuallyExclusiveAuth
	}

	backend := cfg.backend
	if backend == nil {
		backend = &directBackend{baseURL: cfg.baseURL, apiKey: cfg.apiKey, authToken: cfg.authToken}
	}

	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = backend.BaseURL()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	retry := httpx.DefaultRetryConfig()
	if cfg.maxRetries >= 0 {
		retry.MaxRetries = cfg.maxRetries
	}

	httpOpts := []httpx.Option{
		httpx.WithBaseURL(baseURL),
		httpx.WithUserAgent(version.UserAgent()),
		httpx.WithRetry(retry),
		httpx.WithDefaultHeader("Anthropic-Version", APIVersion),
		httpx.WithDefaultHeader("X-Stainless-Lang", "go"),
		httpx.WithDefaultHeader("X-Stainless-Package-Version", version.Version()),
	}
	if cfg.timeout > 0 {
		httpOpts = append(httpOpts, httpx.WithTimeout(cfg.timeout))
	}
	if cfg.transport != nil {
		httpOpts = append(httpOpts, httpx.WithTransport(cfg.transport))
	}
	if cfg.beta != "" {
		httpOpts = append(httpOpts, httpx.WithDefaultHeader("Anthropic-Beta", cfg.beta))
	}
	for k, v := range cfg.headers {
		httpOpts = append(httpOpts, httpx.WithDefaultHeader(k, v))
	}

	hc, err := httpx.New(httpOpts...)
	if err != nil {
		return nil, err
	}
	// The backend signs every attempt: SigV4 signatures cover headers that
	// may change between attempts.
	hc.WithHooks([]httpx.BeforeHook{func(req *http.Request, attempt int) error {
		return backend.SignRequest(req.Context(), req)
	}}, nil)

	c := &Client{http: hc, backend: backend}
	c.Messages = &MessagesService{client: c, Batches: &MessageBatchesService{client: c}}
	c.Completions = &CompletionsService{client: c}
	return c, nil
}

// Capabilities reports the optional API surface of the configured backend.
func (c *Client) Capabilities() Capabilities { return c.backend.Capabilities() }

// directBackend is the first-party API: no URL rewriting, header auth.
type directBackend struct {
	baseURL   string
	apiKey    string
	authToken string
}

func (b *directBackend) BaseURL() string {
	if b.baseURL != "" {
		return b.baseURL
	}
	return DefaultBaseURL
}

func (b *directBackend) PrepareRequest(method, path string, body []byte, stream bool) (string, []byte, error) {
	return path, body, nil
}

func (b *directBackend) SignRequest(ctx context.Context, req *http.Request) error {
	switch {
	case b.apiKey != "":
		req.Header.Set("X-Api-Key", b.apiKey)
	case b.authToken != "":
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}
	return nil
}

func (b *directBackend) Capabilities() Capabilities {
	return Capabilities{MessageBatches: true, TokenCounting: true, NativeOutputFormat: true}
}

// requestJSON performs a unary JSON call: build, prepare via the backend,
// send with retries, decode into out, and classify failures into *APIError.
func (c *Client) requestJSON(ctx context.Context, method, path string, body, out any, opts ...httpx.RequestOption) error {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("anthropic: encode request: %w", err)
		}
		raw = b
	}
	path, raw, err := c.backend.PrepareRequest(method, path, raw, false)
	if err != nil {
		return err
	}

	reqOpts := make([]httpx.RequestOption, 0, len(opts)+2)
	if raw != nil {
		reqOpts = append(reqOpts, httpx.WithBodyBytes(raw), httpx.WithHeader("Content-Type", "application/json"))
	}
	reqOpts = append(reqOpts, opts...)

	req, err := c.http.NewRequest(ctx, method, path, reqOpts...)
	if err != nil {
		return classifyError(method, path, err)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if _, err := c.http.DoJSONInto(req, out); err != nil {
		return classifyError(method, path, err)
	}
	return nil
}

// requestStream performs a streaming call and returns the raw SSE response.
func (c *Client) requestStream(ctx context.Context, method, path string, body any, opts ...httpx.RequestOption) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}
	path, raw, err = c.backend.PrepareRequest(method, path, raw, true)
	if err != nil {
		return nil, err
	}

	wantCT := "text/event-stream"
	if st, ok := c.backend.(StreamTransport); ok {
		wantCT = st.StreamContentType()
	}

	reqOpts := make([]httpx.RequestOption, 0, len(opts)+3)
	reqOpts = append(reqOpts,
		httpx.WithBodyBytes(raw),
		httpx.WithHeader("Content-Type", "application/json"),
		httpx.WithHeader("Accept", wantCT),
	)
	reqOpts = append(reqOpts, opts...)

	req, err := c.http.NewRequest(ctx, method, path, reqOpts...)
	if err != nil {
		return nil, classifyError(method, path, err)
	}
	resp, err := c.http.DoStatus(req)
	if err != nil {
		return nil, classifyError(method, path, err)
	}
	if err := httpx.CheckContentType(resp, wantCT); err != nil {
		_ = resp.Body.Close()
		return nil, &APIError{
			Kind:    ErrKindResponseValidation,
			Method:  method,
			URL:     req.URL.String(),
			Message: err.Error(),
		}
	}
	return resp, nil
}

// streamDecoder picks the wire decoder for a streaming response: the
// backend's own framing when it provides one, SSE otherwise.
func (c *Client) streamDecoder(resp *http.Response) StreamDecoder {
	if st, ok := c.backend.(StreamTransport); ok {
		return st.NewStreamDecoder(resp.Body)
	}
	return newSSEDecoder(resp.Body)
}

// classifyError maps engine errors onto the SDK taxonomy.
func classifyError(method, path string, err error) error {
	if err == nil {
		return nil
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae
	}

	if he, ok := httpx.AsError(err); ok {
		out := &APIError{
			Method:     he.Method,
			URL:        he.URL,
			StatusCode: he.StatusCode,
			RequestID:  he.RequestID,
			RetryAfter: he.RetryAfter,
			Raw:        he.RawBody,
			Cause:      he,
		}
		if he.StatusCode != 0 {
			out.Kind = kindForStatus(he.StatusCode)
			out.Type = he.ErrorType
			out.Message = he.ErrorMessage
			return out
		}
		if isTimeout(he.Cause) {
			out.Kind = ErrKindTimeout
			return out
		}
		out.Kind = ErrKindConnection
		return out
	}

	kind := ErrKindConnection
	if isTimeout(err) {
		kind = ErrKindTimeout
	}
	return &APIError{Kind: kind, Method: method, URL: path, Cause: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
