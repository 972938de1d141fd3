package tutoring

import (
	"sync"

	"github.com/chalklabs/chalk-core/core/events"
)

// eventQueue buffers pipeline events for a single consumer. Events are
// retained after delivery, so breaking out of All and ranging again resumes
// where the previous range stopped instead of dropping events.
type eventQueue struct {
	mu           sync.Mutex
	events       []events.Event
	consumed     int
	closed       bool
	updateSignal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		updateSignal: make(chan struct{}, 1),
	}
}

func (q *eventQueue) Push(event events.Event) {
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()
	q.signalUpdate()
}

// Close marks the queue complete. All returns once every buffered event has
// been delivered.
func (q *eventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signalUpdate()
}

// All yields buffered events in push order, blocking while the queue is
// open and empty. It is safe for a single consumer at a time.
func (q *eventQueue) All(yield func(events.Event) bool) {
	for {
		q.mu.Lock()
		if q.consumed < len(q.events) {
			event := q.events[q.consumed]
			q.consumed++
			q.mu.Unlock()
			if !yield(event) {
				return
			}
			continue
		}

		if q.closed {
			q.mu.Unlock()
			return
		}

		q.mu.Unlock()
		<-q.updateSignal
	}
}

func (q *eventQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
