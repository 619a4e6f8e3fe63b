package events

import "sync"

// Handler processes one published event. Handlers run synchronously on
// the publishing goroutine and must not block; long work belongs on a
// queue the handler feeds. Handlers must not publish back onto the same
// bus from inside the callback.
type Handler func(topic string, payload any)

// Bus is a topic-keyed in-process event fan-out, scoped to a single
// consultation (or shared process-wide via Default). Dispatch is
// serialized: the handlers for one Publish run to completion, in
// subscription order, before the next Publish proceeds, so listeners
// never observe events out of emit order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wildcard []Handler

	// dispatchMu serializes handler execution across publishers.
	dispatchMu sync.Mutex
}

// NewBus creates a bus with a no-op listener pre-installed on the error
// topic, so error emission with zero application listeners never has to
// be special-cased by publishers.
func NewBus() *Bus {
	b := &Bus{handlers: make(map[string][]Handler)}
	b.Subscribe(TopicError, func(string, any) {})
	return b
}

// defaultBus serves callers that run one consultation at a time and do
// not construct a scoped instance.
var defaultBus = NewBus()

// Default returns the process-wide shared bus.
func Default() *Bus { return defaultBus }

// Subscribe registers fn for a single topic.
func (b *Bus) Subscribe(topic string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], fn)
}

// SubscribeAll registers fn for every topic published on this bus.
// Wildcard handlers run after topic handlers for each emit.
func (b *Bus) SubscribeAll(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, fn)
}

// Publish dispatches payload to the topic's handlers, then to wildcard
// handlers. Safe to call from any goroutine.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	topical := b.handlers[topic]
	handlers := make([]Handler, 0, len(topical)+len(b.wildcard))
	handlers = append(handlers, topical...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	for _, fn := range handlers {
		fn(topic, payload)
	}
}

// ListenerCount returns the number of handlers that would receive an
// emit on topic (wildcard handlers included).
func (b *Bus) ListenerCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic]) + len(b.wildcard)
}
