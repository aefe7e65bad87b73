package preflight

import (
	"context"

	"reelsight/internal/config"
	"reelsight/internal/inference"
	"reelsight/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options adjust RunAll.
type Options struct {
	// SkipLLM leaves out the network check against the inference provider.
	SkipLLM bool
	// LLMOptions are passed to the health check client.
	LLMOptions []llm.Option
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)}
	results = append(results, CheckMediaBinaries(cfg)...)
	if !opts.SkipLLM {
		results = append(results, CheckLLM(ctx, "Inference LLM", inference.LLMConfig(cfg), opts.LLMOptions...))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
