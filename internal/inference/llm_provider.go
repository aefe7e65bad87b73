package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reelsight/internal/config"
	"reelsight/internal/services"
	"reelsight/internal/services/llm"
)

const (
	analyzeSystemPrompt = `You describe a single still frame from a video.
Respond with JSON only: {"description": string, "labels": [string], "confidence": number between 0 and 1}.`

	enhanceSystemPrompt = `You receive per-frame findings from one video in time order.
Merge duplicates, fix inconsistent labels, and keep one entry per input index.
Respond with JSON only: {"findings": [{"index": int, "timestamp": number, "description": string, "labels": [string], "confidence": number}]}.`

	synthesizeSystemPrompt = `You write a structured report about a video from its frame findings.
Respond with JSON only: {"title": string, "summary": string, "sections": [{"heading": string, "body": string}], "tags": [string]}.`
)

// Completer is the subset of llm.Client the provider uses.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSONWithImages(ctx context.Context, systemPrompt, userPrompt string, images []llm.Image) (string, error)
}

// LLMProvider implements Provider on top of a chat completion API.
type LLMProvider struct {
	client Completer
}

// NewLLMProvider wraps client.
func NewLLMProvider(client Completer) *LLMProvider {
	return &LLMProvider{client: client}
}

// NewLLMProviderFromConfig builds the client from the [llm] section.
func NewLLMProviderFromConfig(cfg *config.Config, opts ...llm.Option) *LLMProvider {
	return NewLLMProvider(llm.NewClient(LLMConfig(cfg), opts...))
}

// LLMConfig maps the [llm] section onto the client settings.
func LLMConfig(cfg *config.Config) llm.Config {
	if cfg == nil {
		return llm.Config{}
	}
	return llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
}

// AnalyzeFrame sends one frame as an inline image.
func (p *LLMProvider) AnalyzeFrame(ctx context.Context, frame Frame) (Finding, error) {
	user := fmt.Sprintf("Frame %d at %.1f seconds.", frame.Index, frame.Timestamp)
	content, err := p.client.CompleteJSONWithImages(ctx, analyzeSystemPrompt, user, []llm.Image{{
		ContentType: frame.ContentType,
		Data:        frame.Data,
	}})
	if err != nil {
		return Finding{}, err
	}
	var finding Finding
	if err := llm.DecodeLLMJSON(content, &finding); err != nil {
		return Finding{}, err
	}
	if strings.TrimSpace(finding.Description) == "" {
		return Finding{}, services.Wrap(services.ErrValidation, config.StageInference, "decode finding", "Model returned an empty description", nil)
	}
	finding.Confidence = clampConfidence(finding.Confidence)
	return finding, nil
}

// Enhance refines the findings in one batch call. Entries the model drops
// are kept as they were.
func (p *LLMProvider) Enhance(ctx context.Context, findings []Finding) ([]Finding, error) {
	payload, err := json.Marshal(findings)
	if err != nil {
		return nil, err
	}
	content, err := p.client.CompleteJSON(ctx, enhanceSystemPrompt, string(payload))
	if err != nil {
		return nil, err
	}
	var resp struct {
		Findings []Finding `json:"findings"`
	}
	if err := llm.DecodeLLMJSON(content, &resp); err != nil {
		return nil, err
	}
	byIndex := make(map[int]Finding, len(resp.Findings))
	for _, f := range resp.Findings {
		if strings.TrimSpace(f.Description) != "" {
			byIndex[f.Index] = f
		}
	}
	out := make([]Finding, len(findings))
	for i, original := range findings {
		refined, ok := byIndex[original.Index]
		if !ok {
			out[i] = original
			continue
		}
		refined.Timestamp = original.Timestamp
		refined.Confidence = clampConfidence(refined.Confidence)
		out[i] = refined
	}
	return out, nil
}

// Synthesize builds the report document.
func (p *LLMProvider) Synthesize(ctx context.Context, findings []Finding, meta Metadata) (Report, error) {
	payload, err := json.Marshal(struct {
		Metadata Metadata  `json:"metadata"`
		Findings []Finding `json:"findings"`
	}{meta, findings})
	if err != nil {
		return Report{}, err
	}
	content, err := p.client.CompleteJSON(ctx, synthesizeSystemPrompt, string(payload))
	if err != nil {
		return Report{}, err
	}
	var doc Report
	if err := llm.DecodeLLMJSON(content, &doc); err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(doc.Summary) == "" {
		return Report{}, services.Wrap(services.ErrValidation, config.StageReport, "decode report", "Model returned an empty summary", nil)
	}
	return doc, nil
}

// HealthCheck probes the backend when the client supports it.
func (p *LLMProvider) HealthCheck(ctx context.Context) error {
	if checker, ok := p.client.(interface{ HealthCheck(context.Context) error }); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
