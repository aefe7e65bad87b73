package job

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

var stageNames = []string{"extraction", "inference", "enhance", "report"}

func newTestJob() *Job {
	return New(Params{
		ID:     "job-1",
		Owner:  "alice",
		Input:  Input{Filename: "clip.mp4", Key: "uploads/job-1/clip.mp4", SizeBytes: 1024},
		Stages: stageNames,
		Now:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

func TestNewJobStartsPending(t *testing.T) {
	j := newTestJob()
	snap := j.Snapshot()
	if snap.Status != StatusPending {
		t.Fatalf("expected pending, got %s", snap.Status)
	}
	if snap.CurrentStage != StageInitialization {
		t.Fatalf("expected initialization, got %q", snap.CurrentStage)
	}
	if j.Workspace() != "job-1" {
		t.Fatalf("expected workspace to default to id, got %q", j.Workspace())
	}
	if len(snap.Stages) != len(stageNames) {
		t.Fatalf("expected %d stages, got %d", len(stageNames), len(snap.Stages))
	}
	for i, rec := range snap.Stages {
		if rec.Name != stageNames[i] || rec.Status != StagePending {
			t.Fatalf("stage %d: unexpected record %+v", i, rec)
		}
	}
}

func TestLifecycleToCompleted(t *testing.T) {
	j := newTestJob()
	now := time.Now()
	for _, name := range stageNames {
		if !j.StartStage(name, now) {
			t.Fatalf("StartStage(%s) rejected", name)
		}
		if !j.UpdateStage(name, 50, "halfway", 10) {
			t.Fatalf("UpdateStage(%s) rejected", name)
		}
		if !j.CompleteStage(name, 20, now) {
			t.Fatalf("CompleteStage(%s) rejected", name)
		}
	}
	if !j.Complete("results/job-1.json", now) {
		t.Fatal("Complete rejected")
	}
	snap := j.Snapshot()
	if snap.Status != StatusCompleted || snap.Progress != 100 || snap.CurrentStage != StageDone {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
	if snap.ResultKey != "results/job-1.json" || snap.EndedAt == nil {
		t.Fatalf("missing completion fields: %+v", snap)
	}
	if j.Cancel(now) {
		t.Fatal("cancel of completed job should be rejected")
	}
	if j.Fail("report", "transient", "late", now) {
		t.Fatal("fail of completed job should be rejected")
	}
}

func TestFailLeavesLaterStagesPending(t *testing.T) {
	j := newTestJob()
	now := time.Now()
	j.StartStage("extraction", now)
	j.CompleteStage("extraction", 25, now)
	j.StartStage("inference", now)
	if !j.Fail("inference", "external_tool", "provider down", now) {
		t.Fatal("Fail rejected")
	}
	snap := j.Snapshot()
	if snap.Status != StatusFailed || snap.FailedStage != "inference" || snap.CurrentStage != "inference" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if rec, _ := snap.Stage("inference"); rec.Status != StageFailed {
		t.Fatalf("expected failed inference record, got %+v", rec)
	}
	for _, name := range []string{"enhance", "report"} {
		if rec, _ := snap.Stage(name); rec.Status != StagePending {
			t.Fatalf("expected %s pending, got %s", name, rec.Status)
		}
	}
	if j.UpdateStage("enhance", 10, "", 50) {
		t.Fatal("updates after failure should be dropped")
	}
}

func TestCancelThenCompleteIsAllowed(t *testing.T) {
	j := newTestJob()
	now := time.Now()
	j.StartStage("report", now)
	if !j.Cancel(now) {
		t.Fatal("Cancel rejected")
	}
	if j.Cancel(now) {
		t.Fatal("second cancel should be rejected")
	}
	if j.Fail("report", "cancelled", "context canceled", now) {
		t.Fatal("failure after cancel should be suppressed")
	}
	if !j.Complete("results/job-1.json", now) {
		t.Fatal("complete after cancel should be accepted")
	}
	snap := j.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if rec, _ := snap.Stage("report"); rec.Status != StageCompleted {
		t.Fatalf("expected in-flight stage completed, got %+v", rec)
	}
}

func TestSkipCompletedForResume(t *testing.T) {
	j := newTestJob()
	j.SkipCompleted("enhance", 65)
	snap := j.Snapshot()
	for _, name := range []string{"extraction", "inference"} {
		rec, _ := snap.Stage(name)
		if rec.Status != StageCompleted || rec.Progress != 100 {
			t.Fatalf("expected %s completed, got %+v", name, rec)
		}
	}
	if rec, _ := snap.Stage("enhance"); rec.Status != StagePending {
		t.Fatalf("expected enhance pending, got %+v", rec)
	}
	if snap.Progress != 65 {
		t.Fatalf("expected seeded progress 65, got %d", snap.Progress)
	}
}

func TestSnapshotBytesAreStable(t *testing.T) {
	j := newTestJob()
	now := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	j.StartStage("extraction", now)
	j.UpdateStage("extraction", 40, "frames 4/10", 10)

	first, err := json.Marshal(j.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(j.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("snapshot bytes differ:\n%s\n%s", first, second)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	j := newTestJob()
	now := time.Now()
	j.StartStage("extraction", now)
	snap := j.Snapshot()
	*snap.Stages[0].StartedAt = time.Time{}
	snap.Stages[0].Progress = 99
	again := j.Snapshot()
	if again.Stages[0].StartedAt.IsZero() || again.Stages[0].Progress == 99 {
		t.Fatal("snapshot mutation leaked into job")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := New(Params{ID: "a", Stages: stageNames, Now: time.Unix(10, 0)})
	b := New(Params{ID: "b", Stages: stageNames, Now: time.Unix(5, 0)})
	if err := r.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(a); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if got, ok := r.Get("a"); !ok || got != a {
		t.Fatal("Get(a) failed")
	}
	list := r.List()
	if len(list) != 2 || list[0].ID() != "b" || list[1].ID() != "a" {
		t.Fatalf("unexpected order: %v %v", list[0].ID(), list[1].ID())
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d", r.Len())
	}
}
