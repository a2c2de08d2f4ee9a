// Package events carries ledger outcomes to observers such as notifications
// and the dashboard. Delivery is best effort: emitting never blocks the ledger
// and a failing observer never fails a grant.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindGrant   Kind = "grant"
	KindRevoke  Kind = "revoke"
	KindLevelUp Kind = "level-up"
)

// Event is a grant, revoke or level-up outcome.
type Event struct {
	Kind          Kind      `json:"kind"`
	Amount        int64     `json:"amount"`
	Source        string    `json:"source"`
	SourceID      string    `json:"sourceId,omitempty"`
	LeveledUp     bool      `json:"leveledUp"`
	Milestone     bool      `json:"milestone"`
	PreviousLevel int       `json:"previousLevel"`
	NewLevel      int       `json:"newLevel"`
	TotalXP       int64     `json:"totalXP"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives events. Emitters wrap any sink that is not NonBlocking in a
// Queue (see Detach), so Emit may take its time.
type Sink interface {
	Emit(Event)
}

// NonBlocking is implemented by sinks whose Emit never waits on a consumer.
type NonBlocking interface {
	Sink
	nonBlocking()
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type nop struct{}

func (nop) Emit(Event) {}
func (nop) nonBlocking() {}

// Nop discards every event.
var Nop Sink = nop{}

// Bus fans events out to subscribers. A subscriber whose buffer is full
// misses the event; the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan Event
	dropped atomic.Int64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

func (b *Bus) nonBlocking() {}

// Recorder keeps every event it receives. Useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) nonBlocking() {}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Multi emits to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// Queue delivers events to a sink from its own goroutine. Emit never blocks:
// when the buffer is full, or the queue is closed, the event is dropped and
// counted.
type Queue struct {
	sink    Sink
	onPanic func(Event, any)
	ch      chan Event
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewQueue starts a queue in front of sink. onPanic, when set, is called with
// the event and the recovered value if sink panics.
func NewQueue(sink Sink, buffer int, onPanic func(Event, any)) *Queue {
	if buffer < 1 {
		buffer = 1
	}
	q := &Queue{
		sink:    sink,
		onPanic: onPanic,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for e := range q.ch {
		q.deliver(e)
	}
}

func (q *Queue) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(e, r)
		}
	}()
	q.sink.Emit(e)
}

func (q *Queue) Emit(e Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	select {
	case q.ch <- e:
	default:
		q.dropped.Add(1)
	}
}

func (q *Queue) nonBlocking() {}

// Dropped reports how many events never reached the sink.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops accepting events and waits until the queued ones are delivered
// or ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach returns sink as is when it is NonBlocking, and otherwise a Queue in
// front of it. The returned function closes the queue, if any.
func Detach(sink Sink, buffer int, onPanic func(Event, any)) (Sink, func(context.Context) error) {
	if nb, ok := sink.(NonBlocking); ok {
		return nb, func(context.Context) error { return nil }
	}
	q := NewQueue(sink, buffer, onPanic)
	return q, q.Close
}
