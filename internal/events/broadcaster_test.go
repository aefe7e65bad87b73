package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelsight/internal/job"
)

func snapshot(id string, status job.Status, progress int) job.Snapshot {
	return job.Snapshot{ID: id, Status: status, Progress: progress}
}

func queued(sub *Subscription) int {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return len(sub.queue)
}

func nextWithin(t *testing.T, sub *Subscription) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return evt
}

func TestPublishDeliversInOrderWithSequence(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("job-1")
	defer b.Unsubscribe(sub)

	for i := 1; i <= 5; i++ {
		b.Publish("job-1", TypeSnapshot, snapshot("job-1", job.StatusProcessing, i*10), nil)
	}
	b.Publish("job-1", TypeCompleted, snapshot("job-1", job.StatusCompleted, 100), &Detail{ResultKey: "results/job-1.json"})

	var last int64
	for i := 1; i <= 5; i++ {
		evt := nextWithin(t, sub)
		if evt.Type != TypeSnapshot || evt.Snapshot.Progress != i*10 {
			t.Fatalf("event %d: unexpected %+v", i, evt)
		}
		if evt.Seq <= last {
			t.Fatalf("sequence not increasing: %d after %d", evt.Seq, last)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp")
		}
		last = evt.Seq
	}
	done := nextWithin(t, sub)
	if done.Type != TypeCompleted || done.Detail == nil || done.Detail.ResultKey != "results/job-1.json" {
		t.Fatalf("unexpected terminal event %+v", done)
	}
	if !done.Type.IsTerminal() {
		t.Fatal("completed should be terminal")
	}
}

func TestPublishDoesNotBlockWithoutReaders(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("job-1")
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish("job-1", TypeSnapshot, snapshot("job-1", job.StatusProcessing, i%100), nil)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on an idle subscriber")
	}
	if queued(sub) != 10000 {
		t.Fatalf("expected 10000 queued events, got %d", queued(sub))
	}
}

func TestLateSubscriberGetsSingleTerminalSnapshot(t *testing.T) {
	b := NewBroadcaster()
	b.Publish("job-1", TypeSnapshot, snapshot("job-1", job.StatusProcessing, 50), nil)
	b.Publish("job-1", TypeCompleted, snapshot("job-1", job.StatusCompleted, 100), &Detail{ResultKey: "k"})

	sub := b.Subscribe("job-1")
	if queued(sub) != 1 {
		t.Fatalf("expected exactly one replayed event, got %d", queued(sub))
	}
	evt := nextWithin(t, sub)
	if evt.Type != TypeSnapshot || evt.Snapshot.Status != job.StatusCompleted || evt.Snapshot.Progress != 100 {
		t.Fatalf("unexpected replay %+v", evt)
	}
}

func TestSubscriptionsAreScopedToJob(t *testing.T) {
	b := NewBroadcaster()
	a := b.Subscribe("a")
	other := b.Subscribe("b")
	b.Publish("a", TypeSnapshot, snapshot("a", job.StatusProcessing, 1), nil)
	if queued(other) != 0 {
		t.Fatal("subscriber for b received event for a")
	}
	if queued(a) != 1 {
		t.Fatal("subscriber for a missed its event")
	}
}

func TestUnsubscribeClosesAfterDrain(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("job-1")
	b.Publish("job-1", TypeFailed, snapshot("job-1", job.StatusFailed, 30), &Detail{Error: "boom"})
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if evt := nextWithin(t, sub); evt.Type != TypeFailed {
		t.Fatalf("expected queued failure first, got %+v", evt)
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if b.Subscribers("job-1") != 0 {
		t.Fatal("expected no subscribers")
	}
	b.Publish("job-1", TypeSnapshot, snapshot("job-1", job.StatusFailed, 30), nil)
	if queued(sub) != 0 {
		t.Fatal("closed subscription received an event")
	}
}

func TestNextHonoursContext(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("job-1")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestNextWakesBlockedReader(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("job-1")
	got := make(chan Event, 1)
	go func() {
		evt, err := sub.Next(context.Background())
		if err == nil {
			got <- evt
		}
	}()
	time.Sleep(10 * time.Millisecond)
	b.Publish("job-1", TypeSnapshot, snapshot("job-1", job.StatusProcessing, 5), nil)
	select {
	case evt := <-got:
		if evt.Snapshot.Progress != 5 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked reader was not woken")
	}
}

func TestStaleSnapshotAfterTerminalIsDropped(t *testing.T) {
	b := NewBroadcaster()
	live := b.Subscribe("job-1")
	b.Publish("job-1", TypeCancelled, snapshot("job-1", job.StatusCancelled, 30), nil)
	// Captured before the cancel landed, forwarded after it.
	if evt := b.Publish("job-1", TypeSnapshot, snapshot("job-1", job.StatusProcessing, 30), nil); evt.Seq != 0 {
		t.Fatalf("stale snapshot was published: %+v", evt)
	}

	if evt := nextWithin(t, live); evt.Type != TypeCancelled {
		t.Fatalf("unexpected live event %+v", evt)
	}
	if queued(live) != 0 {
		t.Fatal("live subscriber received the stale snapshot")
	}
	late := b.Subscribe("job-1")
	if evt := nextWithin(t, late); evt.Snapshot.Status != job.StatusCancelled {
		t.Fatalf("late subscriber replayed %s, want cancelled", evt.Snapshot.Status)
	}

	// A cancelled job may still complete.
	b.Publish("job-1", TypeCompleted, snapshot("job-1", job.StatusCompleted, 100), &Detail{ResultKey: "k"})
	if evt := nextWithin(t, late); evt.Type != TypeCompleted {
		t.Fatalf("expected completion after cancel, got %+v", evt)
	}
}
