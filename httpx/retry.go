package httpx

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HeaderShouldRetry lets the server override the client's retry heuristics.
// A value of "true" forces a retry (budget permitting); "false" forbids one.
const HeaderShouldRetry = "X-Should-Retry"

type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// 0 disables retries.
	MaxRetries int

	// MaxElapsed is the max total time spent across attempts (including backoff sleeps).
	// If zero, it is not enforced (the request context/Client.Timeout still apply).
	MaxElapsed time.Duration

	// Backoff computes the sleep duration before the next retry.
	// If nil, DefaultBackoff() is used.
	Backoff Backoff

	// RespectRetryAfter uses the Retry-After header as the backoff when present
	// and within (0, MaxRetryAfter].
	RespectRetryAfter bool

	// MaxRetryAfter bounds how large a Retry-After value is obeyed.
	// Values above it fall back to exponential backoff.
	MaxRetryAfter time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		Backoff:           DefaultBackoff(),
		RespectRetryAfter: true,
		MaxRetryAfter:     60 * time.Second,
	}
}

// ShouldRetryResponse reports whether a received response warrants a retry.
// The X-Should-Retry header, when present, wins over the status heuristics:
// the server knows better than the client whether the condition is transient.
func ShouldRetryResponse(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get(HeaderShouldRetry))) {
	case "true":
		return true
	case "false":
		return false
	}
	switch {
	case resp.StatusCode == http.StatusRequestTimeout:
		return true
	case resp.StatusCode == http.StatusConflict:
		return true
	case resp.StatusCode == http.StatusTooManyRequests:
		return true
	case resp.StatusCode >= 500:
		return true
	}
	return false
}

// ShouldRetryError reports whether a transport-level failure warrants a retry.
// Only errors raised before a response was received qualify: a timeout while
// reading a body whose headers already arrived means the server accepted the
// request and is still working, and retrying would duplicate that work.
func ShouldRetryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	// DNS, TCP and TLS failures surface as *net.OpError under a *url.Error.
	var oe *net.OpError
	return errors.As(err, &oe)
}

type Backoff interface {
	// Next returns how long to sleep before retry number attempt (attempt >= 1).
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows Base * 2^(attempt-1) up to Max, then adds a
// uniformly distributed additive jitter of +/- Jitter (floored at zero).
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

var (
	jitterMu  sync.Mutex
	jitterRng = rand.New(rand.NewPCG(seed64(), seed64()))
)

func seed64() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:])
	}
	// Fallback: time-based seed (still better than deterministic).
	return uint64(time.Now().UnixNano())
}

func jitterFloat64() float64 {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return jitterRng.Float64()
}

func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Base:   500 * time.Millisecond,
		Max:    8 * time.Second,
		Jitter: 250 * time.Millisecond,
	}
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 8 * time.Second
	}

	// base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			d = max
			break
		}
		d *= 2
	}
	if d > max {
		d = max
	}

	if b.Jitter > 0 {
		d += time.Duration((jitterFloat64()*2 - 1) * float64(b.Jitter))
	}
	if d < 0 {
		d = 0
	}
	return d
}

// RetryDelay resolves the wait before retry number attempt, preferring a
// server-provided Retry-After within (0, MaxRetryAfter].
func (c RetryConfig) RetryDelay(attempt int, resp *http.Response) time.Duration {
	if c.RespectRetryAfter && resp != nil {
		if ra, ok := parseRetryAfter(resp, time.Now()); ok && ra > 0 {
			max := c.MaxRetryAfter
			if max <= 0 {
				max = 60 * time.Second
			}
			if ra <= max {
				return ra
			}
		}
	}
	backoff := c.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	return backoff.Next(attempt)
}

func parseRetryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
