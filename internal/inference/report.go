package inference

import (
	"context"
	"log/slog"
	"strings"

	"reelsight/internal/config"
	"reelsight/internal/logging"
	"reelsight/internal/services"
	"reelsight/internal/stage"
)

// ReportStage synthesizes the final document from the findings.
type ReportStage struct {
	provider Provider
	logger   *slog.Logger
}

// NewReportStage constructs the report stage.
func NewReportStage(provider Provider, logger *slog.Logger) *ReportStage {
	return &ReportStage{provider: provider, logger: logging.NewComponentLogger(logger, "report")}
}

func (s *ReportStage) Name() string { return config.StageReport }

// Execute expects an Analysis and returns a Report.
func (s *ReportStage) Execute(ctx context.Context, input any, report stage.ReportFunc) (any, error) {
	analysis, err := stage.As[Analysis](s.Name(), input)
	if err != nil {
		return nil, err
	}
	if len(analysis.Findings) == 0 {
		return nil, services.Wrap(services.ErrValidation, s.Name(), "synthesize", "Nothing to report on", ErrNoFindings)
	}
	report(0, "Synthesizing report")
	doc, err := s.provider.Synthesize(ctx, analysis.Findings, analysis.Metadata)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, s.Name(), "synthesize", "Report synthesis failed", err)
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = analysis.Metadata.Filename
	}
	report(100, "Report ready")
	logging.WithContext(ctx, s.logger).Debug("report synthesized",
		logging.Int("sections", len(doc.Sections)),
		logging.Int("tags", len(doc.Tags)),
	)
	return doc, nil
}

// DecodeInput rebuilds the Analysis stored by the enhance stage.
func (s *ReportStage) DecodeInput(raw []byte) (any, error) {
	return stage.DecodeJSON[Analysis](s.Name(), raw)
}

func (s *ReportStage) HealthCheck(ctx context.Context) stage.Health {
	return providerHealth(ctx, s.Name(), s.provider)
}
