// Package anthropic is the client for the Anthropic Messages API:
// - Messages, legacy Completions, token counting and message batches
// - SSE streaming with an accumulator that rebuilds the final message
// - live previews of half-streamed tool input via partial JSON parsing
// - an agentic tool runner with schema-validated, typed tool handlers
// - structured output with schema derivation and a prompt-injected fallback
// - pluggable backends: the first-party API, Bedrock and Vertex
package anthropic
