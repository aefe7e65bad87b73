package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelsight/internal/config"
	"reelsight/internal/logging"
	"reelsight/internal/media/ffmpeg"
	"reelsight/internal/runner"
	"reelsight/internal/services"
	"reelsight/internal/stage"
	"reelsight/internal/storage"
)

// StageName is the pipeline name of the extraction stage.
const StageName = config.StageExtraction

// DefaultWorkers bounds concurrent frame units when Options.Workers is zero.
const DefaultWorkers = 8

// ErrNoFrames is returned when every extraction unit failed.
var ErrNoFrames = errors.New("no frames extracted")

// FrameExtractor pulls still images from a local media file.
type FrameExtractor interface {
	Extract(ctx context.Context, source string, timestamps []float64) ([]ffmpeg.Artifact, error)
}

// Prober returns the duration of a local media file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// PathResolver maps a storage key to a local file path readable by ffmpeg.
type PathResolver interface {
	Path(key string) (string, error)
}

// Options tune timestamp selection and the unit runner.
type Options struct {
	Interval  float64
	MaxFrames int
	Workers   int
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// OptionsFromConfig reads the pipeline section.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{Workers: DefaultWorkers}
	}
	return Options{
		Interval:  cfg.Pipeline.FrameIntervalSeconds,
		MaxFrames: cfg.Pipeline.MaxFrames,
		Workers:   cfg.Pipeline.Workers,
		Retries:   cfg.Pipeline.UnitRetries,
		BaseDelay: cfg.RetryBaseDelay(),
		MaxDelay:  cfg.RetryMaxDelay(),
	}
}

// Stage extracts frames from the uploaded media.
type Stage struct {
	store     storage.Store
	paths     PathResolver
	prober    Prober
	extractor FrameExtractor
	opts      Options
	logger    *slog.Logger
}

// NewStage constructs the extraction stage.
func NewStage(store storage.Store, paths PathResolver, prober Prober, extractor FrameExtractor, opts Options, logger *slog.Logger) *Stage {
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	return &Stage{
		store:     store,
		paths:     paths,
		prober:    prober,
		extractor: extractor,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "extraction"),
	}
}

// NewFFmpegStage wires the stage to the configured ffmpeg and ffprobe binaries.
func NewFFmpegStage(cfg *config.Config, store *storage.LocalFS, logger *slog.Logger) *Stage {
	prober := FFprobe{Binary: cfg.Media.FFprobeBinary}
	extractor := ffmpeg.NewExtractor(cfg.Media.FFmpegBinary, cfg.Media.FrameWidth)
	return NewStage(store, store, prober, extractor, OptionsFromConfig(cfg), logger)
}

func (s *Stage) Name() string { return StageName }

// Execute expects a stage.Source and returns Frames.
func (s *Stage) Execute(ctx context.Context, input any, report stage.ReportFunc) (any, error) {
	src, err := stage.As[stage.Source](StageName, input)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(src.Key) == "" {
		return nil, services.Wrap(services.ErrValidation, StageName, "resolve source", "Job has no uploaded media", nil)
	}
	logger := logging.WithContext(ctx, s.logger)

	path, err := s.paths.Path(src.Key)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, StageName, "resolve source", "Uploaded media key is invalid", err)
	}
	duration, err := s.prober.Duration(ctx, path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, StageName, "ffprobe", "Failed to inspect uploaded media", err)
	}

	timestamps := Timestamps(duration, s.opts.Interval, s.opts.MaxFrames)
	logger.Info("frame extraction planned",
		logging.String(logging.FieldEventType, "extraction_planned"),
		logging.Float64("duration_seconds", duration),
		logging.Int("frame_count", len(timestamps)),
	)
	report(0, fmt.Sprintf("Extracting %d frames", len(timestamps)))

	workspace := src.Workspace
	if workspace == "" {
		workspace = src.JobID
	}
	results, err := runner.Run(ctx, timestamps, runner.Options{
		Workers:   s.opts.Workers,
		Retries:   s.opts.Retries,
		BaseDelay: s.opts.BaseDelay,
		MaxDelay:  s.opts.MaxDelay,
		Progress: func(completed, total int) {
			report(float64(completed)*100/float64(total), fmt.Sprintf("Frames %d/%d", completed, total))
		},
	}, func(ctx context.Context, index int, ts float64, attempt int) (string, error) {
		return s.extractUnit(ctx, path, workspace, index, ts)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrDefect, StageName, "run units", "Frame runner rejected its arguments", err)
	}

	frames := Frames{
		Source:   src.Key,
		Filename: src.Filename,
		Duration: duration,
		Items:    make([]Frame, len(results)),
		Total:    len(results),
	}
	for i, res := range results {
		item := Frame{Index: res.Index, Timestamp: timestamps[i], Attempts: res.Attempts}
		if res.OK() {
			item.Key = res.Value
			frames.Succeeded++
		} else {
			item.Error = res.Err.Error()
			frames.Failed++
			logger.Debug("frame unit failed",
				logging.Int("frame_index", res.Index),
				logging.Int("attempts", res.Attempts),
				logging.Error(res.Err),
			)
		}
		frames.Items[i] = item
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frames.Succeeded == 0 {
		return nil, services.Wrap(services.ErrExternalTool, StageName, "extract", "No frames could be extracted", ErrNoFrames)
	}
	if frames.Failed > 0 {
		logging.WarnWithContext(logger, "some frames failed to extract", "extraction_partial",
			logging.Int("failed", frames.Failed),
			logging.Int("total", frames.Total),
			logging.String(logging.FieldErrorHint, "check the ffmpeg log output for the failed timestamps"),
			logging.String(logging.FieldImpact, "the report is built from fewer frames"),
		)
	}
	return frames, nil
}

func (s *Stage) extractUnit(ctx context.Context, path, workspace string, index int, ts float64) (string, error) {
	artifacts, err := s.extractor.Extract(ctx, path, []float64{ts})
	if err != nil {
		return "", err
	}
	if len(artifacts) == 0 || len(artifacts[0].Data) == 0 {
		return "", fmt.Errorf("frame %d: empty artifact", index)
	}
	key := storage.FrameKey(workspace, index)
	if err := s.store.Write(ctx, key, artifacts[0].Data); err != nil {
		return "", fmt.Errorf("store frame %d: %w", index, err)
	}
	return key, nil
}

// DecodeInput rebuilds a stage.Source from a stored artifact.
func (s *Stage) DecodeInput(raw []byte) (any, error) {
	return stage.DecodeJSON[stage.Source](StageName, raw)
}

// HealthCheck verifies the stage dependencies are wired.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	switch {
	case s.store == nil:
		return stage.Unhealthy(StageName, "storage unavailable")
	case s.paths == nil:
		return stage.Unhealthy(StageName, "path resolver unavailable")
	case s.prober == nil || s.extractor == nil:
		return stage.Unhealthy(StageName, "ffmpeg unavailable")
	}
	return stage.Healthy(StageName)
}

// FFprobe adapts ffmpeg.Probe to Prober.
type FFprobe struct {
	Binary string
}

// Duration returns the probed duration in seconds.
func (p FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	result, err := ffmpeg.Probe(ctx, p.Binary, path)
	if err != nil {
		return 0, err
	}
	if result.VideoStreamCount() == 0 {
		return 0, errors.New("no video stream found")
	}
	return result.DurationSeconds(), nil
}
