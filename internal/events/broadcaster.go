package events

import (
	"errors"
	"sync"
	"time"

	"reelsight/internal/job"
)

// Type classifies an event.
type Type string

const (
	TypeSnapshot  Type = "snapshot"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeCancelled Type = "cancelled"
)

// IsTerminal reports whether the event type ends a job's stream.
func (t Type) IsTerminal() bool {
	return t == TypeCompleted || t == TypeFailed || t == TypeCancelled
}

// ErrClosed is returned by Next once a subscription is closed and drained.
var ErrClosed = errors.New("events: subscription closed")

// Detail carries terminal event context.
type Detail struct {
	ResultKey string `json:"resultKey,omitempty"`
	Stage     string `json:"stage,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event is a sequenced job update.
type Event struct {
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	JobID     string       `json:"jobId"`
	Type      Type         `json:"type"`
	Snapshot  job.Snapshot `json:"snapshot"`
	Detail    *Detail      `json:"detail,omitempty"`
}

// Broadcaster routes events to subscriptions keyed by job id.
type Broadcaster struct {
	mu     sync.Mutex
	seq    int64
	nextID uint64
	subs   map[string]map[uint64]*Subscription
	latest map[string]Event
	now    func() time.Time
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string]map[uint64]*Subscription),
		latest: make(map[string]Event),
		now:    time.Now,
	}
}

// Publish assigns a sequence number and timestamp, records the snapshot as the
// latest for its job, and appends the event to every attached mailbox.
//
// Snapshots are taken before this lock is held, so a non-terminal snapshot
// can arrive after the job was already published as terminal. Such events
// are dropped and the zero Event is returned; the terminal snapshot stays
// latest.
func (b *Broadcaster) Publish(jobID string, typ Type, snapshot job.Snapshot, detail *Detail) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.latest[jobID]; ok && prev.Snapshot.IsTerminal() && !snapshot.IsTerminal() {
		return Event{}
	}
	b.seq++
	evt := Event{
		Seq:       b.seq,
		Timestamp: b.now().UTC(),
		JobID:     jobID,
		Type:      typ,
		Snapshot:  snapshot,
		Detail:    detail,
	}
	b.latest[jobID] = evt
	for _, sub := range b.subs[jobID] {
		sub.push(evt)
	}
	return evt
}

// Subscribe attaches a mailbox for jobID. When a snapshot has already been
// published it is queued first as a snapshot event.
func (b *Broadcaster) Subscribe(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		jobID:  jobID,
		notify: make(chan struct{}, 1),
	}
	if latest, ok := b.latest[jobID]; ok {
		latest.Type = TypeSnapshot
		latest.Detail = nil
		sub.push(latest)
	}
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[uint64]*Subscription)
	}
	b.subs[jobID][sub.id] = sub
	return sub
}

// Unsubscribe detaches and closes sub. It is safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if set, ok := b.subs[sub.jobID]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(b.subs, sub.jobID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// Subscribers returns how many mailboxes are attached to jobID.
func (b *Broadcaster) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
