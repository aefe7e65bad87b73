package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if c.Quota.MaxResultsPerOwner < 0 {
		return errors.New("quota.max_results_per_owner must be zero or positive")
	}
	return c.validateLogging()
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if p.UnitRetries < 0 {
		return errors.New("pipeline.unit_retries must be zero or positive")
	}
	if p.RetryBaseDelayMS <= 0 {
		return errors.New("pipeline.retry_base_delay_ms must be positive")
	}
	if p.RetryMaxDelayMS < p.RetryBaseDelayMS {
		return errors.New("pipeline.retry_max_delay_ms must be at least pipeline.retry_base_delay_ms")
	}
	if p.CleanupDelaySeconds < 0 {
		return errors.New("pipeline.cleanup_delay_seconds must be zero or positive")
	}
	if p.StageTimeoutSeconds < 0 {
		return errors.New("pipeline.stage_timeout_seconds must be zero or positive")
	}
	if p.FrameIntervalSeconds <= 0 {
		return errors.New("pipeline.frame_interval_seconds must be positive")
	}
	if p.MaxFrames <= 0 {
		return errors.New("pipeline.max_frames must be positive")
	}
	names := make([]string, 0, len(p.Weights))
	for name := range p.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p.Weights[name] < 0 {
			return fmt.Errorf("pipeline.weights.%s must be zero or positive", name)
		}
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.FrameWidth <= 0 {
		return errors.New("media.frame_width must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
