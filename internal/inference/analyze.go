package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reelsight/internal/config"
	"reelsight/internal/extraction"
	"reelsight/internal/logging"
	"reelsight/internal/services"
	"reelsight/internal/stage"
	"reelsight/internal/storage"
)

// AnalyzeStage runs the provider over each extracted frame.
type AnalyzeStage struct {
	store    storage.Store
	provider Provider
	logger   *slog.Logger
}

// NewAnalyzeStage constructs the inference stage.
func NewAnalyzeStage(store storage.Store, provider Provider, logger *slog.Logger) *AnalyzeStage {
	return &AnalyzeStage{
		store:    store,
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "inference"),
	}
}

func (s *AnalyzeStage) Name() string { return config.StageInference }

// Execute expects extraction.Frames and returns an Analysis.
func (s *AnalyzeStage) Execute(ctx context.Context, input any, report stage.ReportFunc) (any, error) {
	frames, err := stage.As[extraction.Frames](s.Name(), input)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, s.logger)
	extracted := frames.Extracted()
	analysis := Analysis{
		Metadata: Metadata{
			Source:     frames.Source,
			Filename:   frames.Filename,
			Duration:   frames.Duration,
			FrameCount: frames.Total,
		},
		Findings: make([]Finding, 0, len(extracted)),
		Skipped:  frames.Total - len(extracted),
	}
	report(0, fmt.Sprintf("Analyzing %d frames", len(extracted)))

	for i, item := range extracted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		finding, err := s.analyzeOne(ctx, item)
		switch {
		case err == nil:
			analysis.Findings = append(analysis.Findings, finding)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			analysis.Skipped++
			logger.Debug("frame analysis failed",
				logging.Int("frame_index", item.Index),
				logging.Error(err),
			)
		}
		report(float64(i+1)*100/float64(len(extracted)), fmt.Sprintf("Frame %d/%d", i+1, len(extracted)))
	}

	if len(analysis.Findings) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, s.Name(), "analyze", "No frame produced a finding", ErrNoFindings)
	}
	logger.Info("frame analysis complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.Int("findings", len(analysis.Findings)),
		logging.Int("skipped", analysis.Skipped),
	)
	return analysis, nil
}

func (s *AnalyzeStage) analyzeOne(ctx context.Context, item extraction.Frame) (Finding, error) {
	data, err := s.store.Read(ctx, item.Key)
	if err != nil {
		return Finding{}, fmt.Errorf("read frame %d: %w", item.Index, err)
	}
	finding, err := s.provider.AnalyzeFrame(ctx, Frame{
		Index:       item.Index,
		Timestamp:   item.Timestamp,
		ContentType: "image/jpeg",
		Data:        data,
	})
	if err != nil {
		return Finding{}, err
	}
	finding.Index = item.Index
	finding.Timestamp = item.Timestamp
	return finding, nil
}

// DecodeInput rebuilds extraction.Frames from the stored extraction artifact.
func (s *AnalyzeStage) DecodeInput(raw []byte) (any, error) {
	return stage.DecodeJSON[extraction.Frames](s.Name(), raw)
}

func (s *AnalyzeStage) HealthCheck(ctx context.Context) stage.Health {
	if s.store == nil {
		return stage.Unhealthy(s.Name(), "storage unavailable")
	}
	return providerHealth(ctx, s.Name(), s.provider)
}

func providerHealth(ctx context.Context, name string, provider Provider) stage.Health {
	if provider == nil {
		return stage.Unhealthy(name, "inference provider unavailable")
	}
	checker, ok := provider.(HealthChecker)
	if !ok {
		return stage.Healthy(name)
	}
	if err := checker.HealthCheck(ctx); err != nil {
		detail := err.Error()
		if errors.Is(err, services.ErrConfiguration) {
			detail = "provider not configured: " + detail
		}
		return stage.Unhealthy(name, detail)
	}
	return stage.Healthy(name)
}
