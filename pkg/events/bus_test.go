package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DispatchOrder(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(TopicRoundStart, func(_ string, payload any) {
		got = append(got, "first")
	})
	bus.Subscribe(TopicRoundStart, func(_ string, payload any) {
		got = append(got, "second")
	})

	bus.Publish(TopicRoundStart, RoundStartPayload{Round: 1})

	assert.Equal(t, []string{"first", "second"}, got,
		"handlers run synchronously in subscription order")
}

func TestBus_SynchronousDispatch(t *testing.T) {
	bus := NewBus()

	delivered := false
	bus.Subscribe(TopicRoundCompleted, func(_ string, _ any) {
		delivered = true
	})

	bus.Publish(TopicRoundCompleted, RoundCompletedPayload{Round: 2})

	// No goroutines involved: the handler has run before Publish returns.
	assert.True(t, delivered)
}

func TestBus_ErrorTopicAlwaysDeliverable(t *testing.T) {
	bus := NewBus()

	// No application listener on the error topic — the default no-op
	// listener makes this a safe emit, not a panic or a drop error.
	assert.NotPanics(t, func() {
		bus.Publish(TopicError, ErrorPayload{Message: "provider exploded"})
	})
	assert.GreaterOrEqual(t, bus.ListenerCount(TopicError), 1)
}

func TestBus_WildcardReceivesAllTopics(t *testing.T) {
	bus := NewBus()

	var topics []string
	bus.SubscribeAll(func(topic string, _ any) {
		topics = append(topics, topic)
	})

	bus.Publish(TopicRoundStart, RoundStartPayload{Round: 1})
	bus.Publish(TopicAgentThinking, AgentThinkingPayload{AgentID: "architect"})
	bus.Publish(TopicConsultationCompleted, ConsultationCompletedPayload{})

	assert.Equal(t, []string{TopicRoundStart, TopicAgentThinking, TopicConsultationCompleted}, topics)
}

func TestBus_WildcardRunsAfterTopicHandlers(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.SubscribeAll(func(string, any) { got = append(got, "wildcard") })
	bus.Subscribe(TopicRoundStart, func(string, any) { got = append(got, "topical") })

	bus.Publish(TopicRoundStart, RoundStartPayload{Round: 1})

	assert.Equal(t, []string{"topical", "wildcard"}, got)
}

func TestBus_UnsubscribedTopicIsDropped(t *testing.T) {
	bus := NewBus()

	count := 0
	bus.Subscribe(TopicRoundStart, func(string, any) { count++ })

	bus.Publish(TopicRoundCompleted, RoundCompletedPayload{Round: 1})

	assert.Zero(t, count, "handler for a different topic must not fire")
}

func TestBus_ConcurrentPublishersSerialize(t *testing.T) {
	bus := NewBus()

	// A handler that records interleaving: if two dispatches overlapped,
	// inHandler would be observed true on entry.
	var mu sync.Mutex
	inHandler := false
	overlapped := false
	bus.Subscribe(TopicAgentCompleted, func(string, any) {
		mu.Lock()
		if inHandler {
			overlapped = true
		}
		inHandler = true
		mu.Unlock()

		mu.Lock()
		inHandler = false
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(TopicAgentCompleted, AgentCompletedPayload{})
		}()
	}
	wg.Wait()

	assert.False(t, overlapped, "dispatches must not interleave")
}

func TestDefault_SharedInstance(t *testing.T) {
	assert.Same(t, Default(), Default())
}
