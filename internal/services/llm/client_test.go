package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type labelPayload struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func choicesResponse(choice map[string]any) map[string]any {
	return map[string]any{"choices": []any{choice}}
}

func messageChoice(content string) map[string]any {
	return map[string]any{"message": map[string]any{"content": content}}
}

func serveJSON(t *testing.T, fn func(r *http.Request) (int, any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, payload := fn(r)
		if status != http.StatusOK {
			w.WriteHeader(status)
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientHealthCheck(t *testing.T) {
	server := serveJSON(t, func(r *http.Request) (int, any) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		return http.StatusOK, choicesResponse(messageChoice(`{"ok":true}`))
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := serveJSON(t, func(r *http.Request) (int, any) {
		return http.StatusOK, choicesResponse(messageChoice("```json\n{\"ok\":true}\n```"))
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := serveJSON(t, func(r *http.Request) (int, any) {
		return http.StatusUnauthorized, map[string]string{"error": "unauthorized"}
	})

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
	if err := NewClient(Config{BaseURL: server.URL}).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected missing api key to fail")
	}
}

func TestCompleteJSONWithImagesSendsDataURLs(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff}
	server := serveJSON(t, func(r *http.Request) (int, any) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
			return http.StatusBadRequest, map[string]string{"error": "bad"}
		}
		var parts []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		}
		if err := json.Unmarshal(req.Messages[1].Content, &parts); err != nil {
			t.Errorf("expected multipart content: %v", err)
		}
		want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)
		if len(parts) != 2 || parts[0].Type != "text" || parts[1].ImageURL.URL != want {
			t.Errorf("unexpected parts: %+v", parts)
		}
		return http.StatusOK, choicesResponse(messageChoice(`{"label":"beach","confidence":0.9}`))
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "vision"})
	content, err := client.CompleteJSONWithImages(context.Background(), "describe", "frame at 5s", []Image{{Data: frame}})
	if err != nil {
		t.Fatalf("CompleteJSONWithImages: %v", err)
	}
	var got labelPayload
	if err := DecodeLLMJSON(content, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Label != "beach" {
		t.Fatalf("unexpected label %q", got.Label)
	}
}

func TestCompleteJSONPlainContentIsString(t *testing.T) {
	server := serveJSON(t, func(r *http.Request) (int, any) {
		var req struct {
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var text string
		if len(req.Messages) != 2 || json.Unmarshal(req.Messages[1].Content, &text) != nil || text != "summarize" {
			t.Errorf("expected plain string user content, got %s", req.Messages[1].Content)
		}
		return http.StatusOK, choicesResponse(messageChoice(`{"label":"x"}`))
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	if _, err := client.CompleteJSON(context.Background(), "system", "summarize"); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if _, err := client.CompleteJSON(context.Background(), "", "summarize"); err == nil {
		t.Fatal("expected missing system prompt to fail")
	}
}

func TestClientToolCallsArguments(t *testing.T) {
	server := serveJSON(t, func(r *http.Request) (int, any) {
		return http.StatusOK, choicesResponse(map[string]any{
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"content": "",
				"tool_calls": []any{
					map[string]any{
						"type": "function",
						"id":   "call_1",
						"function": map[string]any{
							"name":      "label_frame",
							"arguments": `{"label":"street","confidence":0.7}`,
						},
					},
				},
			},
		})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if !strings.Contains(content, `"street"`) {
		t.Fatalf("expected tool call arguments, got %q", content)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := serveJSON(t, func(r *http.Request) (int, any) {
		return http.StatusOK, choicesResponse(map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": ""},
		})
	})

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientDeltaAndLegacyText(t *testing.T) {
	for name, choice := range map[string]map[string]any{
		"delta":  {"delta": map[string]any{"content": `{"label":"delta"}`}},
		"legacy": {"finish_reason": "stop", "text": `{"label":"legacy"}`},
	} {
		t.Run(name, func(t *testing.T) {
			server := serveJSON(t, func(r *http.Request) (int, any) {
				return http.StatusOK, choicesResponse(choice)
			})
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			content, err := client.CompleteJSON(context.Background(), "system", "user")
			if err != nil {
				t.Fatalf("CompleteJSON: %v", err)
			}
			var got labelPayload
			if err := DecodeLLMJSON(content, &got); err != nil || got.Label != name {
				t.Fatalf("unexpected payload %q (%v)", content, err)
			}
		})
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := serveJSON(t, func(r *http.Request) (int, any) {
		calls++
		if calls == 1 {
			return http.StatusTooManyRequests, map[string]string{"error": "rate limited"}
		}
		return http.StatusOK, choicesResponse(messageChoice(`{"label":"ok"}`))
	})

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(250*time.Millisecond, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != 250*time.Millisecond {
		t.Fatalf("expected single backoff sleep, got %v", slept)
	}
}

func TestClientHonoursRetryAfter(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(choicesResponse(messageChoice(`{"ok":true}`)))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
	)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := serveJSON(t, func(r *http.Request) (int, any) {
		calls++
		return http.StatusBadRequest, map[string]string{"error": "bad request"}
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := serveJSON(t, func(r *http.Request) (int, any) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"label":"late"}`
		}
		return http.StatusOK, choicesResponse(map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": content},
		})
	})

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if !strings.Contains(content, "late") {
		t.Fatalf("unexpected content %q", content)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var got labelPayload
	if err := DecodeLLMJSON("Here you go: {\"label\":\"park\",\"confidence\":0.5} thanks", &got); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if got.Label != "park" || got.Confidence != 0.5 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if err := DecodeLLMJSON("   ", &got); err == nil {
		t.Fatal("expected empty payload error")
	}
}
