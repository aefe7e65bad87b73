package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reelsight/internal/api"
	"reelsight/internal/storage"
	"reelsight/internal/testsupport"
)

func newTestServer(t *testing.T, f *fixture, token string) *api.Client {
	t.Helper()
	srv := httptest.NewServer(f.daemon.Handler())
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, token)
}

func submit(t *testing.T, client *api.Client, owner string) string {
	t.Helper()
	resp, err := client.SubmitReader(context.Background(), "clip.mp4", strings.NewReader("video-bytes"), owner)
	if err != nil {
		t.Fatalf("SubmitReader: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected job id")
	}
	return resp.JobID
}

func statusCode(err error) int {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func TestSubmitWatchAndResult(t *testing.T) {
	f := newFixture(t)
	client := newTestServer(t, f, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := submit(t, client, "alice")
	upload, err := f.store.Read(ctx, storage.UploadKey(id, "clip.mp4"))
	if err != nil || string(upload) != "video-bytes" {
		t.Fatalf("upload not stored: %q %v", upload, err)
	}

	status, err := client.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Owner != "alice" || status.Input.Filename != "clip.mp4" || status.Terminal() {
		t.Fatalf("unexpected status: %+v", status)
	}

	if _, err := client.Result(ctx, id); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected result 404 before completion, got %v", err)
	}

	var seen []api.Event
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, id, func(evt api.Event) error {
			if len(seen) == 0 {
				f.release()
			}
			seen = append(seen, evt)
			return nil
		})
	}()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(seen) < 2 {
		t.Fatalf("expected snapshot and terminal events, got %d", len(seen))
	}
	if seen[0].Type != "snapshot" {
		t.Fatalf("first event type = %s", seen[0].Type)
	}
	last := seen[len(seen)-1]
	if last.Type != "completed" || last.Job.Progress != 100 || last.Detail == nil || last.Detail.ResultKey != storage.ResultKey(id) {
		t.Fatalf("unexpected terminal event: %+v", last)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Seq <= seen[i-1].Seq {
			t.Fatalf("sequence not increasing: %d then %d", seen[i-1].Seq, seen[i].Seq)
		}
	}

	result, err := client.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	var doc struct {
		JobID string `json:"jobId"`
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(result, &doc); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if doc.JobID != id || doc.Owner != "alice" {
		t.Fatalf("unexpected result document: %s", result)
	}

	usage, err := client.Usage(ctx, "alice")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Results != 1 {
		t.Fatalf("usage results = %d", usage.Results)
	}

	// A late subscriber gets the terminal snapshot and the stream closes.
	var replay []api.Event
	if err := client.Watch(ctx, id, func(evt api.Event) error {
		replay = append(replay, evt)
		return nil
	}); err != nil {
		t.Fatalf("late Watch: %v", err)
	}
	if len(replay) != 1 || replay[0].Type != "snapshot" || replay[0].Job.Status != "completed" {
		t.Fatalf("unexpected replay: %+v", replay)
	}
}

func TestSubmitRequiresMediaPart(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.daemon.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/jobs", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, testsupport.WithAPIToken("secret"))
	srv := httptest.NewServer(f.daemon.Handler())
	defer srv.Close()
	ctx := context.Background()

	if _, err := api.NewClient(srv.URL, "").Health(ctx); statusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	if _, err := api.NewClient(srv.URL, "wrong").Health(ctx); statusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %v", err)
	}
	health, err := api.NewClient(srv.URL, "secret").Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Ready || len(health.Stages) != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should not require auth, got %d", resp.StatusCode)
	}
}

func TestSubmitEnforcesOwnerQuota(t *testing.T) {
	f := newFixture(t, testsupport.WithQuota(1))
	client := newTestServer(t, f, "")
	ctx := context.Background()

	if err := f.store.Write(ctx, storage.ResultKey("earlier"), []byte(`{"jobId":"earlier","owner":"alice"}`)); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	_, err := client.SubmitReader(ctx, "clip.mp4", strings.NewReader("x"), "alice")
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests || statusErr.Code != "quota_exceeded" {
		t.Fatalf("expected quota rejection, got %v", err)
	}
	uploads, err := f.store.List(ctx, "uploads/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(uploads) != 0 {
		t.Fatalf("rejected upload was stored: %v", uploads)
	}

	submit(t, client, "bob")
	submit(t, client, "")
}

func TestCancelAndResumeConflicts(t *testing.T) {
	f := newFixture(t)
	client := newTestServer(t, f, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := submit(t, client, "")
	if _, err := client.Resume(ctx, id, ""); statusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 resuming an active job, got %v", err)
	}

	snap, err := client.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if snap.Status != "cancelled" {
		t.Fatalf("status after cancel = %s", snap.Status)
	}
	if _, err := client.Cancel(ctx, id); statusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 cancelling twice, got %v", err)
	}
	if _, err := client.Resume(ctx, id, "nonsense"); statusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %v", err)
	}
}

func TestUnknownJobReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	client := newTestServer(t, f, "")
	ctx := context.Background()

	if _, err := client.Status(ctx, "missing"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Status: expected not found, got %v", err)
	}
	if _, err := client.Cancel(ctx, "missing"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Cancel: expected not found, got %v", err)
	}
	if _, err := client.Resume(ctx, "missing", ""); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Resume: expected not found, got %v", err)
	}
	if _, err := client.Result(ctx, "missing"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Result: expected not found, got %v", err)
	}
	err := client.Watch(ctx, "missing", func(api.Event) error { return nil })
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Watch: expected not found, got %v", err)
	}
}

func TestHistoryAndUsageValidation(t *testing.T) {
	f := newFixture(t)
	client := newTestServer(t, f, "")
	ctx := context.Background()

	entries, err := client.History(ctx, api.HistoryQuery{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %+v", entries)
	}
	if _, err := client.Usage(ctx, ""); statusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner, got %v", err)
	}
}
