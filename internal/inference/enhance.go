package inference

import (
	"context"
	"fmt"
	"log/slog"

	"reelsight/internal/config"
	"reelsight/internal/logging"
	"reelsight/internal/services"
	"reelsight/internal/stage"
)

// EnhanceStage refines all findings in a single provider call.
type EnhanceStage struct {
	provider Provider
	logger   *slog.Logger
}

// NewEnhanceStage constructs the enhance stage.
func NewEnhanceStage(provider Provider, logger *slog.Logger) *EnhanceStage {
	return &EnhanceStage{provider: provider, logger: logging.NewComponentLogger(logger, "enhance")}
}

func (s *EnhanceStage) Name() string { return config.StageEnhance }

// Execute expects an Analysis and returns the refined Analysis.
func (s *EnhanceStage) Execute(ctx context.Context, input any, report stage.ReportFunc) (any, error) {
	analysis, err := stage.As[Analysis](s.Name(), input)
	if err != nil {
		return nil, err
	}
	report(0, fmt.Sprintf("Enhancing %d findings", len(analysis.Findings)))
	refined, err := s.provider.Enhance(ctx, analysis.Findings)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, s.Name(), "enhance", "Enhancement request failed", err)
	}
	if len(refined) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, s.Name(), "enhance", "Enhancement returned no findings", ErrNoFindings)
	}
	analysis.Findings = refined
	analysis.Enhanced = true
	report(100, "Enhancement complete")
	logging.WithContext(ctx, s.logger).Debug("findings enhanced", logging.Int("findings", len(refined)))
	return analysis, nil
}

// DecodeInput rebuilds the Analysis stored by the inference stage.
func (s *EnhanceStage) DecodeInput(raw []byte) (any, error) {
	return stage.DecodeJSON[Analysis](s.Name(), raw)
}

func (s *EnhanceStage) HealthCheck(ctx context.Context) stage.Health {
	return providerHealth(ctx, s.Name(), s.provider)
}
