package httpx

import "github.com/google/uuid"

type IdempotencyKeyFunc func() string

// IdempotencyConfig controls idempotency-key injection. The key is generated
// once per logical request (in NewRequest), so every retry of that request
// carries the same key and the server can deduplicate.
type IdempotencyConfig struct {
	// Header is the header name carrying the key. If empty, injection is disabled.
	Header string

	// New generates a key when the header is missing. If nil, a default
	// UUID-based generator is used.
	New IdempotencyKeyFunc
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Header: "Idempotency-Key",
		New:    DefaultIdempotencyKey,
	}
}

func DefaultIdempotencyKey() string {
	return uuid.NewString()
}
