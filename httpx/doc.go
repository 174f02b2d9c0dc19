// Package httpx is the request engine under the SDK surface:
// - safe, reusable transports with sane defaults for long-lived streams
// - request building with base URL, default headers and an omit sentinel
// - retry with exponential backoff + jitter, Retry-After and X-Should-Retry
// - idempotency keys generated per logical request, stable across retries
// - error type carrying status, request id, retry-after and limited body
// - hook points for signing/logging/metrics without hard dependencies
package httpx
