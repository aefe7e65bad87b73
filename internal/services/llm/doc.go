// Package llm provides a client for OpenAI-compatible chat completion APIs
// (OpenRouter by default) used by the inference stages.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON response.
// Client.CompleteJSONWithImages: same, with inline JPEG frames as data URLs.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: tolerant decoding of code-fenced or chatty JSON replies.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Retry-After headers take precedence over backoff.
// Context cancellation aborts retries immediately.
package llm
