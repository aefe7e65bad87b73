// Package inference implements the three model-backed stages that follow
// frame extraction: per-frame analysis, batch enhancement, and report
// synthesis.
//
// The stages talk to a Provider. LLMProvider backs it with the
// OpenAI-compatible client in internal/services/llm; tests substitute stubs.
// Analysis runs frames sequentially and reports per-frame progress. Frames that
// failed extraction are skipped, and a run that yields no findings fails with
// ErrNoFindings.
package inference
