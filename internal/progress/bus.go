// Package progress fans task lifecycle events out to subscribers. Delivery is
// at-most-once: each subscriber owns a bounded buffer, and when it falls
// behind the oldest undelivered event is dropped so publishers never block on
// a slow consumer.
package progress

import (
	"sync"
	"time"

	"subgen/internal/subtitle"
	"subgen/internal/task"
)

// Kind identifies what an event reports.
type Kind string

const (
	KindProgress            Kind = "progress"
	KindSubtitleAdded       Kind = "subtitle_added"
	KindTranslationProgress Kind = "translation_progress"
	KindSynthesisProgress   Kind = "synthesis_progress"
	KindCompleted           Kind = "completed"
	KindFailed              Kind = "failed"
	KindCancelled           Kind = "cancelled"
	KindPaused              Kind = "paused"
	KindResumed             Kind = "resumed"
)

// Event is one observation of a task's progress.
type Event struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	TaskID    string          `json:"taskId"`
	Kind      Kind            `json:"kind"`
	Stage     task.Stage      `json:"stage,omitempty"`
	Progress  float64         `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Entry     *subtitle.Entry `json:"entry,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// DefaultBuffer is the per-subscriber event buffer size.
const DefaultBuffer = 64

// Bus distributes events to subscribers.
type Bus struct {
	mu      sync.Mutex
	nextSeq uint64
	subs    map[*Subscription]struct{}
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives events for one task, or for all tasks when taskID is
// empty.
type Subscription struct {
	bus    *Bus
	taskID string
	ch     chan Event
	once   sync.Once
}

// Events returns the receive channel. It is closed when the subscription is
// closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a subscriber for events matching taskID. An empty
// taskID receives every event. A non-positive buffer uses DefaultBuffer.
func (b *Bus) Subscribe(taskID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		bus:    b,
		taskID: taskID,
		ch:     make(chan Event, buffer),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers evt to every matching subscriber. A full subscriber buffer
// sheds its oldest event to make room.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	evt.Seq = b.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	for sub := range b.subs {
		if sub.taskID != "" && sub.taskID != evt.TaskID {
			continue
		}
		for {
			select {
			case sub.ch <- evt:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports how many subscriptions are active.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
