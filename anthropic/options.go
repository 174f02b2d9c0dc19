package anthropic

import (
	"net/http"
	"strings"
	"time"
)

type clientConfig struct {
	baseURL    string
	apiKey     string
	authToken  string
	backend    Backend
	timeout    time.Duration
	maxRetries int
	transport  http.RoundTripper
	beta       string
	headers    map[string]string
}

// Option configures a Client.
type Option func(*clientConfig)

// WithAPIKey authenticates with an API key (X-Api-Key header).
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.apiKey = key
		c.authToken = ""
	}
}

// WithAuthToken authenticates with a bearer token (Authorization header).
func WithAuthToken(token string) Option {
	return func(c *clientConfig) {
		c.authToken = token
		c.apiKey = ""
	}
}

// WithBackend routes requests through an alternative provider, such as
// Bedrock or Vertex. The backend owns authentication; combining it with an
// API key or auth token is rejected at construction.
func WithBackend(b Backend) Option {
	return func(c *clientConfig) {
		c.backend = b
		c.apiKey = ""
		c.authToken = ""
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-request timeout. The default is generous because
// model inference routinely runs for minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithMaxRetries sets how many times failed requests are retried.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithHTTPTransport replaces the underlying transport.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *clientConfig) { c.transport = rt }
}

// WithBetas opts in to beta API features. The names are joined into a
// single comma-separated Anthropic-Beta header.
func WithBetas(names ...string) Option {
	return func(c *clientConfig) { c.beta = strings.Join(names, ",") }
}

// WithDefaultHeader adds a header to every request.
func WithDefaultHeader(key, value string) Option {
	return func(c *clientConfig) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[key] = value
	}
}
