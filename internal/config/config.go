package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Pipeline contains the orchestration knobs shared by every job.
type Pipeline struct {
	Workers              int            `toml:"workers"`
	UnitRetries          int            `toml:"unit_retries"`
	RetryBaseDelayMS     int            `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS      int            `toml:"retry_max_delay_ms"`
	CleanupDelaySeconds  int            `toml:"cleanup_delay_seconds"`
	StageTimeoutSeconds  int            `toml:"stage_timeout_seconds"`
	FrameIntervalSeconds float64        `toml:"frame_interval_seconds"`
	MaxFrames            int            `toml:"max_frames"`
	Weights              map[string]int `toml:"weights"`
}

// Media contains the external binaries used for frame extraction.
type Media struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	FrameWidth    int    `toml:"frame_width"`
}

// LLM contains OpenAI-compatible chat API connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Quota limits the number of stored results per owner. Zero disables the check.
type Quota struct {
	MaxResultsPerOwner int `toml:"max_results_per_owner"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelsight.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories, API bind address and token
//   - Pipeline: worker pool, retries, cleanup, and stage weights
//   - Media: ffmpeg/ffprobe binaries and frame sizing
//   - LLM: inference provider connection
//   - Notifications: ntfy push notification settings
//   - Quota: per-owner result limits
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Media         Media         `toml:"media"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Quota         Quota         `toml:"quota"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelsight.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorageRoot is the directory backing the local object store.
func (c *Config) StorageRoot() string {
	return filepath.Join(c.Paths.DataDir, "store")
}

// HistoryPath is the sqlite database holding terminal job records.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// LockPath is the flock file guarding single daemon instances.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "reelsightd.lock")
}

// PIDPath is where the daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "reelsightd.pid")
}

// RetryBaseDelay returns the first backoff delay for failed work units.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap for failed work units.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryMaxDelayMS) * time.Millisecond
}

// CleanupDelay returns how long workspaces linger after a job ends.
func (c *Config) CleanupDelay() time.Duration {
	return time.Duration(c.Pipeline.CleanupDelaySeconds) * time.Second
}

// StageTimeout returns the per-stage deadline. Zero means no deadline.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// FrameInterval returns the spacing between extracted frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Pipeline.FrameIntervalSeconds * float64(time.Second))
}

// StageWeights returns a copy of the weight table.
func (c *Config) StageWeights() map[string]int {
	out := make(map[string]int, len(c.Pipeline.Weights))
	for k, v := range c.Pipeline.Weights {
		out[k] = v
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
