// Package bus provides the thread-safe publish/subscribe bridge between
// background bot loops and event-stream consumers. Producers publish from any
// goroutine; each subscriber consumes from its own bounded channel and
// receives a replay of recent history before live events.
package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHistorySize is the number of events kept for replay to new
	// subscribers.
	DefaultHistorySize = 300

	// subscriberBuffer must exceed the history size so a replay never blocks
	// the subscribing caller.
	subscriberBuffer = 512
)

// Event is the envelope delivered to subscribers and serialized onto the
// websocket stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	TS   float64     `json:"ts"`
}

// Subscription is an attached consumer. Read events from Events(); pass the
// subscription back to Unsubscribe when done.
type Subscription struct {
	ch     chan Event
	closed bool
}

// Events returns the subscriber's event stream. The channel is closed by
// Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Bus is a thread-safe event bus with ring-buffered history.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	history     []Event
	historySize int
	logger      *zap.Logger
}

// New creates a bus with the given history capacity (DefaultHistorySize when
// historySize <= 0).
func New(historySize int, logger *zap.Logger) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		logger:      logger,
	}
}

// Publish delivers an event to every attached subscriber and records it in
// history. It never blocks: a subscriber whose queue is full loses its oldest
// queued event instead (subscribers must tolerate gaps).
func (b *Bus) Publish(eventType string, data interface{}) {
	evt := Event{
		Type: eventType,
		Data: data,
		TS:   float64(time.Now().UnixNano()) / float64(time.Second),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) >= b.historySize {
		copy(b.history, b.history[1:])
		b.history = b.history[:len(b.history)-1]
	}
	b.history = append(b.history, evt)

	for sub := range b.subscribers {
		select {
		case sub.ch <- evt:
		default:
			// Queue full — drop the oldest queued event to make room.
			select {
			case <-sub.ch:
				EventsDroppedTotal.Inc()
			default:
			}
			select {
			case sub.ch <- evt:
			default:
				EventsDroppedTotal.Inc()
			}
		}
	}

	EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// Subscribe attaches a new consumer. The returned subscription's channel
// first replays history in publish order, then streams live events; the
// replay is complete before Subscribe returns.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, evt := range b.history {
		sub.ch <- evt
	}
	b.subscribers[sub] = struct{}{}
	SubscribersGauge.Set(float64(len(b.subscribers)))

	return sub
}

// Unsubscribe detaches a consumer and closes its channel. Idempotent.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	delete(b.subscribers, sub)
	sub.closed = true
	close(sub.ch)
	SubscribersGauge.Set(float64(len(b.subscribers)))
}

// History returns a copy of the buffered events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)

	return out
}
