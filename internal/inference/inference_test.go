package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelsight/internal/extraction"
	"reelsight/internal/inference"
	"reelsight/internal/logging"
	"reelsight/internal/services"
	"reelsight/internal/services/llm"
	"reelsight/internal/storage"
	"reelsight/internal/testsupport"
)

type stubProvider struct {
	failIndex  map[int]bool
	analyzed   []int
	enhanceErr error
	report     inference.Report
}

func (p *stubProvider) AnalyzeFrame(ctx context.Context, frame inference.Frame) (inference.Finding, error) {
	p.analyzed = append(p.analyzed, frame.Index)
	if p.failIndex[frame.Index] {
		return inference.Finding{}, errors.New("model refused")
	}
	return inference.Finding{Description: "frame " + string(frame.Data), Labels: []string{"scene"}}, nil
}

func (p *stubProvider) Enhance(ctx context.Context, findings []inference.Finding) ([]inference.Finding, error) {
	if p.enhanceErr != nil {
		return nil, p.enhanceErr
	}
	out := make([]inference.Finding, len(findings))
	for i, f := range findings {
		f.Description = strings.ToUpper(f.Description)
		out[i] = f
	}
	return out, nil
}

func (p *stubProvider) Synthesize(ctx context.Context, findings []inference.Finding, meta inference.Metadata) (inference.Report, error) {
	return p.report, nil
}

func seedFrames(t *testing.T, store storage.Store) extraction.Frames {
	t.Helper()
	frames := extraction.Frames{Source: "uploads/j/clip.mp4", Filename: "clip.mp4", Duration: 15, Total: 3, Succeeded: 2, Failed: 1}
	for i := 0; i < 3; i++ {
		item := extraction.Frame{Index: i, Timestamp: float64(i * 5), Attempts: 1}
		if i == 1 {
			item.Error = "decode error"
		} else {
			item.Key = storage.FrameKey("ws", i)
			if err := store.Write(context.Background(), item.Key, []byte{byte('a' + i)}); err != nil {
				t.Fatalf("seed frame: %v", err)
			}
		}
		frames.Items = append(frames.Items, item)
	}
	return frames
}

func TestAnalyzeSkipsFailedFramesAndReportsPerFrame(t *testing.T) {
	store := testsupport.NewMemoryStore()
	frames := seedFrames(t, store)
	provider := &stubProvider{}
	st := inference.NewAnalyzeStage(store, provider, logging.NewNop())

	var reports []float64
	out, err := st.Execute(context.Background(), frames, func(pct float64, msg string) { reports = append(reports, pct) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	analysis := out.(inference.Analysis)
	if len(analysis.Findings) != 2 || analysis.Skipped != 1 {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if analysis.Findings[1].Index != 2 || analysis.Findings[1].Timestamp != 10 || analysis.Findings[1].Description != "frame c" {
		t.Fatalf("unexpected second finding %+v", analysis.Findings[1])
	}
	if len(provider.analyzed) != 2 {
		t.Fatalf("expected 2 provider calls, got %v", provider.analyzed)
	}
	if len(reports) != 3 || reports[1] != 50 || reports[2] != 100 {
		t.Fatalf("unexpected reports %v", reports)
	}
	if analysis.Metadata.Filename != "clip.mp4" || analysis.Metadata.FrameCount != 3 {
		t.Fatalf("unexpected metadata %+v", analysis.Metadata)
	}
}

func TestAnalyzeFailsWithoutFindings(t *testing.T) {
	store := testsupport.NewMemoryStore()
	frames := seedFrames(t, store)
	st := inference.NewAnalyzeStage(store, &stubProvider{failIndex: map[int]bool{0: true, 2: true}}, nil)
	_, err := st.Execute(context.Background(), frames, func(float64, string) {})
	if !errors.Is(err, inference.ErrNoFindings) {
		t.Fatalf("expected ErrNoFindings, got %v", err)
	}
}

func TestAnalyzeAcceptsDecodedArtifact(t *testing.T) {
	store := testsupport.NewMemoryStore()
	frames := seedFrames(t, store)
	raw, err := json.Marshal(frames)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	st := inference.NewAnalyzeStage(store, &stubProvider{}, nil)
	input, err := st.DecodeInput(raw)
	if err != nil {
		t.Fatalf("DecodeInput: %v", err)
	}
	if _, err := st.Execute(context.Background(), input, func(float64, string) {}); err != nil {
		t.Fatalf("Execute with decoded input: %v", err)
	}
	if _, err := st.DecodeInput([]byte("{")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnhanceAndReport(t *testing.T) {
	provider := &stubProvider{report: inference.Report{Summary: "A walk on the beach."}}
	analysis := inference.Analysis{
		Metadata: inference.Metadata{Filename: "beach.mp4"},
		Findings: []inference.Finding{{Index: 0, Description: "sand"}},
	}

	enhanced, err := inference.NewEnhanceStage(provider, nil).Execute(context.Background(), analysis, func(float64, string) {})
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	got := enhanced.(inference.Analysis)
	if !got.Enhanced || got.Findings[0].Description != "SAND" {
		t.Fatalf("unexpected enhanced analysis %+v", got)
	}

	out, err := inference.NewReportStage(provider, nil).Execute(context.Background(), got, func(float64, string) {})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	doc := out.(inference.Report)
	if doc.Title != "beach.mp4" || doc.Summary != "A walk on the beach." {
		t.Fatalf("unexpected report %+v", doc)
	}
}

func TestEnhanceWrapsProviderErrors(t *testing.T) {
	provider := &stubProvider{enhanceErr: errors.New("503")}
	analysis := inference.Analysis{Findings: []inference.Finding{{Description: "x"}}}
	_, err := inference.NewEnhanceStage(provider, nil).Execute(context.Background(), analysis, func(float64, string) {})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := inference.NewReportStage(provider, nil).Execute(context.Background(), inference.Analysis{}, func(float64, string) {}); !errors.Is(err, inference.ErrNoFindings) {
		t.Fatalf("expected ErrNoFindings for empty report input, got %v", err)
	}
}

type scriptedCompleter struct {
	replies []string
	images  [][]llm.Image
	users   []string
}

func (c *scriptedCompleter) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return c.CompleteJSONWithImages(ctx, system, user, nil)
}

func (c *scriptedCompleter) CompleteJSONWithImages(ctx context.Context, system, user string, images []llm.Image) (string, error) {
	c.users = append(c.users, user)
	c.images = append(c.images, images)
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func TestLLMProviderAnalyzeFrame(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"```json\n{\"description\":\"a dog\",\"labels\":[\"dog\"],\"confidence\":1.4}\n```"}}
	provider := inference.NewLLMProvider(completer)
	finding, err := provider.AnalyzeFrame(context.Background(), inference.Frame{Index: 3, Timestamp: 15, ContentType: "image/jpeg", Data: []byte{1}})
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if finding.Description != "a dog" || finding.Confidence != 1 {
		t.Fatalf("unexpected finding %+v", finding)
	}
	if len(completer.images[0]) != 1 || !strings.Contains(completer.users[0], "15.0 seconds") {
		t.Fatalf("unexpected request: %v %v", completer.users, completer.images)
	}

	completer.replies = []string{`{"description":""}`}
	if _, err := provider.AnalyzeFrame(context.Background(), inference.Frame{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty description, got %v", err)
	}
}

func TestLLMProviderEnhanceKeepsDroppedFindings(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{`{"findings":[{"index":1,"timestamp":99,"description":"two people talking"}]}`}}
	provider := inference.NewLLMProvider(completer)
	in := []inference.Finding{
		{Index: 0, Timestamp: 0, Description: "a room"},
		{Index: 1, Timestamp: 5, Description: "people"},
	}
	out, err := provider.Enhance(context.Background(), in)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if len(out) != 2 || out[0].Description != "a room" {
		t.Fatalf("expected untouched first finding, got %+v", out)
	}
	if out[1].Description != "two people talking" || out[1].Timestamp != 5 {
		t.Fatalf("expected refined second finding with original timestamp, got %+v", out[1])
	}
}

func TestLLMProviderSynthesizeOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"title":"Beach day","summary":"Waves and sand.","sections":[{"heading":"Scenes","body":"Beach"}],"tags":["beach"]}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.LLM.BaseURL = server.URL
	provider := inference.NewLLMProviderFromConfig(cfg)
	doc, err := provider.Synthesize(context.Background(), []inference.Finding{{Description: "sand"}}, inference.Metadata{Filename: "beach.mp4"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if doc.Title != "Beach day" || len(doc.Sections) != 1 || doc.Tags[0] != "beach" {
		t.Fatalf("unexpected report %+v", doc)
	}
}
