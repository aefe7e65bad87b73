package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelsight/internal/api"
	"reelsight/internal/config"
	"reelsight/internal/daemon"
	"reelsight/internal/events"
	"reelsight/internal/history"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/pipeline"
	"reelsight/internal/stage"
	"reelsight/internal/storage"
	"reelsight/internal/testsupport"
	"reelsight/internal/workflow"
)

type echoStage struct{ name string }

func (s echoStage) Name() string { return s.name }

func (s echoStage) Execute(_ context.Context, _ any, report stage.ReportFunc) (any, error) {
	report(100, "done")
	return map[string]string{"stage": s.name}, nil
}

func (s echoStage) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	addr       string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	body := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\n", cfg.Paths.DataDir, cfg.Paths.LogDir)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store, err := storage.NewLocalFS(cfg.StorageRoot())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	bus := events.NewBroadcaster()
	handlers := []pipeline.Handler{echoStage{name: config.StageExtraction}, echoStage{name: config.StageReport}}
	machine, err := pipeline.NewMachine(handlers, store, bus, pipeline.Options{Weights: cfg.StageWeights()}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	manager, err := workflow.NewManager(cfg, workflow.Dependencies{
		Machine:     machine,
		Registry:    job.NewRegistry(),
		Broadcaster: bus,
		Store:       store,
		History:     hist,
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(manager.Stop)

	d, err := daemon.New(cfg, daemon.Dependencies{Manager: manager, Store: store, History: hist, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)

	return &cliTestEnv{cfg: cfg, configPath: configPath, addr: srv.URL}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--addr", e.addr}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func submittedID(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if id, ok := strings.CutPrefix(line, "Submitted job "); ok {
			return strings.TrimSpace(id)
		}
	}
	t.Fatalf("no job id in output:\n%s", output)
	return ""
}

func TestSubmitWatchStatusResultHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	media := filepath.Join(testsupport.BaseDir(env.cfg), "clip.mp4")
	if err := os.WriteFile(media, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "submit", media, "--owner", "alice", "--watch")
	if err != nil {
		t.Fatalf("submit: %v\n%s", err, out)
	}
	id := submittedID(t, out)
	if !strings.Contains(out, "completed") {
		t.Fatalf("watch output missing completion:\n%s", out)
	}

	out, err = env.run(t, "status", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Job " + id, "completed", "100%", "alice", "Extraction", "Report"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "result", id)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !strings.Contains(out, `"jobId": "`+id+`"`) {
		t.Fatalf("unexpected result output:\n%s", out)
	}

	// History is recorded just after the terminal event is published.
	deadline := time.Now().Add(2 * time.Second)
	for {
		out, err = env.run(t, "history", "--owner", "alice")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if strings.Contains(out, id) && strings.Contains(out, "completed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history missing job:\n%s", out)
		}
		time.Sleep(20 * time.Millisecond)
	}

	out, err = env.run(t, "usage", "--owner", "alice")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(out, "alice: 1 stored results (limit unlimited)") {
		t.Fatalf("unexpected usage output: %s", out)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestUsageRequiresOwner(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "usage"); err == nil || !strings.Contains(err.Error(), "--owner") {
		t.Fatalf("expected owner error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "reelsight.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite guard, got %v", err)
	}

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", target, "config", "validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration valid") {
		t.Fatalf("unexpected validate output: %s", out.String())
	}
}

func TestHistoryRowsPreferFailedStage(t *testing.T) {
	rows := historyRows([]api.HistoryEntry{
		{ID: "a", Status: "failed", CurrentStage: "report", FailedStage: "inference", Progress: 40},
		{ID: "b", Status: "completed", Owner: "bob", Progress: 100},
	})
	if rows[0][3] != "Inference" || rows[0][1] != "-" || rows[0][4] != "40%" {
		t.Fatalf("unexpected failed row: %v", rows[0])
	}
	if rows[1][1] != "bob" || rows[1][3] != "-" {
		t.Fatalf("unexpected completed row: %v", rows[1])
	}
}

func TestRenderStatusLineColors(t *testing.T) {
	plain := renderStatusLine("Status", statusError, "failed", false)
	if strings.Contains(plain, "\x1b[") || !strings.Contains(plain, "[ERROR] failed") {
		t.Fatalf("unexpected plain line %q", plain)
	}
	colored := renderStatusLine("Status", statusOK, "", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("unexpected colored line %q", colored)
	}
}
