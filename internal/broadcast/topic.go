// Package broadcast implements the bounded multi-producer/multi-subscriber
// bus backing each channel's ChannelCore. A publish is never allowed to
// block the publisher: a subscriber that cannot keep up is disconnected
// rather than stalling everyone else, mirroring the slow-consumer policy
// the reference broadcast path already applies to its own fan-out.
package broadcast

import (
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity. This is a
// fan-out backpressure knob, not a durability guarantee: messages are
// ephemeral and a lagging subscriber may simply miss some.
const DefaultBuffer = 32

// Message is the payload type carried on a Topic.
type Message struct {
	UserID    string
	Timestamp int64
	Content   Content
}

// Content is either text or raw audio bytes, mirroring the
// Text(string)|Audio(bytes) variant from the external interface.
type Content struct {
	Text  string
	Audio []byte
}

// Subscriber is a single subscriber's receive side plus its lagged
// signal. A Topic closes Lagged exactly once if the subscriber falls
// behind; callers select on both Messages and Lagged.
type Subscriber struct {
	id       uint64
	messages chan Message
	lagged   chan struct{}
	once     sync.Once
}

// Messages returns the channel a subscriber reads published messages
// from.
func (s *Subscriber) Messages() <-chan Message { return s.messages }

// Lagged is closed exactly once if this subscriber's buffer overflowed
// and it was dropped by the topic.
func (s *Subscriber) Lagged() <-chan struct{} { return s.lagged }

func (s *Subscriber) markLagged() {
	s.once.Do(func() { close(s.lagged) })
}

// Topic is one channel's broadcast bus. The zero value is not usable;
// build with NewTopic. Topic is safe for concurrent use by many
// publishers and subscribers.
type Topic struct {
	mu       sync.Mutex
	buffer   int
	subs     map[uint64]*Subscriber
	nextID   uint64
	dropFunc func(reason string)
}

// NewTopic builds a Topic with the given per-subscriber buffer size. A
// buffer <= 0 falls back to DefaultBuffer. onDrop, if non-nil, is called
// whenever a subscriber is disconnected for lagging — used by the worker
// to increment its broadcast_dropped_total metric without this package
// needing to know about Prometheus.
func NewTopic(buffer int, onDrop func(reason string)) *Topic {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if onDrop == nil {
		onDrop = func(string) {}
	}
	return &Topic{
		buffer:   buffer,
		subs:     make(map[uint64]*Subscriber),
		dropFunc: onDrop,
	}
}

// Subscribe registers a new Subscriber and returns it along with an
// unsubscribe function the caller must run when done (idempotent).
func (t *Topic) Subscribe() (*Subscriber, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	sub := &Subscriber{
		id:       id,
		messages: make(chan Message, t.buffer),
		lagged:   make(chan struct{}),
	}
	t.subs[id] = sub

	unsubscribe := func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
	return sub, unsubscribe
}

// Publish fans msg out to every current subscriber. A subscriber whose
// buffer is full is marked lagged and dropped from the topic rather than
// blocking this call — publish must never suspend on a slow peer.
func (t *Topic) Publish(msg Message) {
	t.mu.Lock()
	targets := make([]*Subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		targets = append(targets, s)
	}
	t.mu.Unlock()

	for _, s := range targets {
		select {
		case s.messages <- msg:
		default:
			t.dropFunc("buffer_full")
			s.markLagged()
			t.mu.Lock()
			delete(t.subs, s.id)
			t.mu.Unlock()
		}
	}
}

// SubscriberCount reports the number of live subscribers, used by the
// worker to decide whether a ChannelCore's last user just left.
func (t *Topic) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
