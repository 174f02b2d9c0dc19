package anthropic

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind is the stable classification of an SDK error.
type ErrorKind string

const (
	ErrKindConnection          ErrorKind = "connection"
	ErrKindTimeout             ErrorKind = "timeout"
	ErrKindBadRequest          ErrorKind = "bad_request"
	ErrKindAuthentication      ErrorKind = "authentication"
	ErrKindPermissionDenied    ErrorKind = "permission_denied"
	ErrKindNotFound            ErrorKind = "not_found"
	ErrKindConflict            ErrorKind = "conflict"
	ErrKindUnprocessableEntity ErrorKind = "unprocessable_entity"
	ErrKindRateLimit           ErrorKind = "rate_limit"
	ErrKindInternalServer      ErrorKind = "internal_server"
	ErrKindStatus              ErrorKind = "status"
	ErrKindResponseValidation  ErrorKind = "response_validation"
)

// APIError covers every failure of an API call: transport errors (StatusCode
// 0), timeouts, and non-2xx responses. Kind gives the stable classification.
type APIError struct {
	Kind ErrorKind

	// Method/URL identify the originating request.
	Method string
	URL    string

	// StatusCode is 0 when no response was received.
	StatusCode int

	// Code/Type/Message are parsed from the API error body when present.
	Code    string
	Type    string
	Message string

	RequestID  string
	RetryAfter time.Duration

	// Raw is the (truncated) response body.
	Raw []byte

	Cause error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("anthropic: ")
	if e.StatusCode != 0 {
		b.WriteString(fmt.Sprintf("http %d", e.StatusCode))
	} else {
		b.WriteString(string(e.Kind))
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.StatusCode != 0 {
		msg = http.StatusText(e.StatusCode)
	}
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if strings.TrimSpace(e.RequestID) != "" {
		b.WriteString(" request_id=")
		b.WriteString(strings.TrimSpace(e.RequestID))
	}
	if e.StatusCode == 0 && e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Cause }

// Retryable reports whether the engine would have retried this error had
// budget remained.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case ErrKindConnection, ErrKindTimeout, ErrKindConflict, ErrKindRateLimit, ErrKindInternalServer:
		return true
	case ErrKindStatus:
		return e.StatusCode == http.StatusRequestTimeout
	}
	return false
}

func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return ErrKindBadRequest
	case status == http.StatusUnauthorized:
		return ErrKindAuthentication
	case status == http.StatusForbidden:
		return ErrKindPermissionDenied
	case status == http.StatusNotFound:
		return ErrKindNotFound
	case status == http.StatusConflict:
		return ErrKindConflict
	case status == http.StatusUnprocessableEntity:
		return ErrKindUnprocessableEntity
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimit
	case status >= 500:
		return ErrKindInternalServer
	default:
		return ErrKindStatus
	}
}

// IsRateLimit reports whether err is a 429 API error.
func IsRateLimit(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Kind == ErrKindRateLimit
}

// IsAuth reports whether err is an authentication or permission error.
func IsAuth(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && (ae.Kind == ErrKindAuthentication || ae.Kind == ErrKindPermissionDenied)
}

// ErrStreamClosed is returned by Recv after the stream was closed or fully
// consumed and then read again.
var ErrStreamClosed = errors.New("anthropic: stream closed")

// UnexpectedEventOrderError reports a stream that violated the accumulator's
// state machine (e.g. a delta before message_start, or a skipped index).
type UnexpectedEventOrderError struct {
	Event  StreamEventType
	Reason string
}

func (e *UnexpectedEventOrderError) Error() string {
	return fmt.Sprintf("anthropic: unexpected %s event: %s", e.Event, e.Reason)
}

// InvalidToolInputError reports tool input that failed the tool's schema
// before the handler was invoked.
type InvalidToolInputError struct {
	Tool  string
	Cause error
}

func (e *InvalidToolInputError) Error() string {
	return fmt.Sprintf("anthropic: invalid input for tool %q: %v", e.Tool, e.Cause)
}

func (e *InvalidToolInputError) Unwrap() error { return e.Cause }

// StructuredOutputParseError reports that the model's text could not be
// parsed as the requested type under the prompt-injected fallback.
type StructuredOutputParseError struct {
	Text  string
	Cause error
}

func (e *StructuredOutputParseError) Error() string {
	return fmt.Sprintf("anthropic: structured output parse failed: %v", e.Cause)
}

func (e *StructuredOutputParseError) Unwrap() error { return e.Cause }

// ErrMutuallyExclusiveAuth is returned when more than one auth strategy is
// configured on a single client.
var ErrMutuallyExclusiveAuth = errors.New("anthropic: api key, auth token and custom signers are mutually exclusive")
