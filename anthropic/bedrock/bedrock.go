// Package bedrock routes API calls through Amazon Bedrock. It rewrites
// logical endpoints into Bedrock invoke URLs and signs every attempt with
// AWS Signature V4.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/tidwall/gjson"

	"github.com/lgc202/anthropic-kit/anthropic"
)

// DefaultVersion is the anthropic_version Bedrock expects in request bodies.
const DefaultVersion = "bedrock-2023-05-31"

const serviceName = "bedrock"

// Backend implements anthropic.Backend against the Bedrock runtime.
type Backend struct {
	region  string
	baseURL string
	creds   aws.CredentialsProvider
	signer  *v4.Signer
}

// Option configures a Backend.
type Option func(*Backend)

// WithBaseURL overrides the runtime endpoint, e.g. for VPC endpoints.
func WithBaseURL(u string) Option {
	return func(b *Backend) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithCredentials bypasses the default credential chain.
func WithCredentials(p aws.CredentialsProvider) Option {
	return func(b *Backend) { b.creds = p }
}

// New builds a Backend for region using the ambient AWS credential chain.
// An empty region falls back to AWS_REGION, and ANTHROPIC_BEDROCK_BASE_URL
// overrides the endpoint unless WithBaseURL is given.
func New(ctx context.Context, region string, opts ...Option) (*Backend, error) {
	b := &Backend{region: region, signer: v4.NewSigner()}
	if b.region == "" {
		b.region = os.Getenv("AWS_REGION")
	}
	if u := os.Getenv("ANTHROPIC_BEDROCK_BASE_URL"); u != "" {
		b.baseURL = strings.TrimRight(u, "/")
	}
	for _, o := range opts {
		o(b)
	}
	if b.region == "" {
		return nil, fmt.Errorf("bedrock: region is required")
	}
	if b.creds == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.region))
		if err != nil {
			return nil, fmt.Errorf("bedrock: load aws config: %w", err)
		}
		b.creds = cfg.Credentials
	}
	return b, nil
}

func (b *Backend) BaseURL() string {
	if b.baseURL != "" {
		return b.baseURL
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", b.region)
}

// PrepareRequest maps /v1/messages and /v1/complete onto the Bedrock invoke
// endpoints. The model travels in the URL, so it is stripped from the body
// along with the stream flag, and anthropic_version is injected when absent.
func (b *Backend) PrepareRequest(method, path string, body []byte, stream bool) (string, []byte, error) {
	switch path {
	case "/v1/messages", "/v1/complete":
	default:
		return "", nil, fmt.Errorf("bedrock: unsupported endpoint %s", path)
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		return "", nil, fmt.Errorf("bedrock: request body carries no model")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, fmt.Errorf("bedrock: decode request body: %w", err)
	}
	delete(payload, "model")
	delete(payload, "stream")
	if !gjson.GetBytes(body, "anthropic_version").Exists() {
		payload["anthropic_version"] = DefaultVersion
	}
	newBody, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}

	verb := "invoke"
	if stream {
		verb = "invoke-with-response-stream"
	}
	return fmt.Sprintf("/model/%s/%s", url.PathEscape(model), verb), newBody, nil
}

// SignRequest computes the SigV4 signature for one attempt. The Connection
// header is dropped first: proxies strip it, and a stripped header breaks
// the signature downstream.
func (b *Backend) SignRequest(ctx context.Context, req *http.Request) error {
	req.Header.Del("Connection")

	hash, err := payloadHash(req)
	if err != nil {
		return fmt.Errorf("bedrock: hash request body: %w", err)
	}
	creds, err := b.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("bedrock: retrieve credentials: %w", err)
	}
	if err := b.signer.SignHTTP(ctx, creds, req, hash, serviceName, b.region, time.Now()); err != nil {
		return fmt.Errorf("bedrock: sign request: %w", err)
	}
	return nil
}

func (b *Backend) Capabilities() anthropic.Capabilities {
	return anthropic.Capabilities{}
}

// payloadHash returns the hex sha256 of the request body without consuming
// it; retries replay the body through GetBody.
func payloadHash(req *http.Request) (string, error) {
	if req.Body == nil {
		return hex.EncodeToString(sha256.New().Sum(nil)), nil
	}
	if req.GetBody == nil {
		return "", fmt.Errorf("request body is not replayable")
	}
	rc, err := req.GetBody()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
