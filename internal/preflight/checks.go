package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelsight/internal/config"
	"reelsight/internal/deps"
	"reelsight/internal/services/llm"
)

const llmCheckTimeout = 30 * time.Second

func pass(name, detail string) Result { return Result{Name: name, Passed: true, Detail: detail} }

func fail(name, detail string) Result { return Result{Name: name, Detail: detail} }

// CheckLLM sends one health prompt to the provider, without retries, bounded
// by llmCheckTimeout.
func CheckLLM(ctx context.Context, name string, cfg llm.Config, opts ...llm.Option) Result {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fail(name, "API key missing")
	}

	checkCtx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()

	client := llm.NewClient(cfg, append([]llm.Option{llm.WithRetryMaxAttempts(1)}, opts...)...)
	if err := client.HealthCheck(checkCtx); err != nil {
		return fail(name, describeLLMError(err))
	}
	return pass(name, "API reachable")
}

// CheckDirectoryAccess requires path to be an existing directory the process
// can list, write, and traverse.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fail(name, path+" (error: does not exist)")
	case err != nil:
		return fail(name, fmt.Sprintf("%s (error: stat: %v)", path, err))
	case !info.IsDir():
		return fail(name, path+" (error: is not a directory)")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail(name, fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err))
	}
	return pass(name, path+" (read/write ok)")
}

// CheckMediaBinaries reports whether ffmpeg and ffprobe resolve on PATH.
func CheckMediaBinaries(cfg *config.Config) []Result {
	var results []Result
	for _, status := range deps.CheckBinaries(deps.MediaRequirements(cfg)) {
		if status.Available {
			results = append(results, pass(status.Name, status.Command))
		} else {
			results = append(results, fail(status.Name, status.Detail))
		}
	}
	return results
}

func describeLLMError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "health check timed out (LLM API unresponsive)"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
