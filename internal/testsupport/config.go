package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reelsight/internal/config"
)

// ConfigOption mutates the config built by NewConfig. Options run after the
// temp directories are assigned.
type ConfigOption func(t testing.TB, cfg *config.Config)

// NewConfig returns a default config rooted in a fresh temp directory, with
// an ephemeral API bind, a placeholder LLM key, and millisecond retry delays.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.LLM.APIKey = "test"
	cfg.Pipeline.RetryBaseDelayMS = 1
	cfg.Pipeline.RetryMaxDelayMS = 2

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

func WithAPIToken(token string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Paths.APIToken = token }
}

func WithQuota(limit int) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Quota.MaxResultsPerOwner = limit }
}

// WithStubbedBinaries puts no-op executables named after names (default: the
// configured ffmpeg and ffprobe) at the front of PATH for the test duration.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary}
		}
		binDir := filepath.Join(BaseDir(cfg), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
