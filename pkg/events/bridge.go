package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// bridgeWriteTimeout bounds each store-and-forward write. A fresh
// background context is used so events emitted during consultation
// cancellation still reach the database.
const bridgeWriteTimeout = 10 * time.Second

// AttachBridge subscribes a store-and-forward listener to a scoped bus:
// every event is persisted and broadcast on the consultation's channel,
// and lifecycle events (started, completed) additionally get a
// transient copy on the global consultations channel for the list page.
//
// Delivery is best-effort. A failed write is logged and dropped; the
// deliberation itself never blocks on, or fails because of, event
// delivery.
func AttachBridge(bus *Bus, publisher *EventPublisher, consultationID string) {
	if bus == nil || publisher == nil {
		return
	}
	b := &bridge{publisher: publisher, consultationID: consultationID}
	bus.SubscribeAll(b.forward)
}

// AttachHealthBridge forwards health topics from a bus (typically the
// process-wide default) as transient broadcasts on the health channel.
// Health events are never persisted: the monitor's current state is the
// source of truth and is queryable over REST.
func AttachHealthBridge(bus *Bus, publisher *EventPublisher) {
	if bus == nil || publisher == nil {
		return
	}
	forward := func(topic string, payload any) {
		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("Failed to marshal health event", "topic", topic, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), bridgeWriteTimeout)
		defer cancel()
		if err := publisher.PublishTransient(ctx, HealthChannel, payloadJSON); err != nil {
			slog.Warn("Failed to broadcast health event", "topic", topic, "error", err)
		}
	}
	bus.Subscribe(TopicHealthCheckStarted, forward)
	bus.Subscribe(TopicHealthStatusUpdated, forward)
}

type bridge struct {
	publisher      *EventPublisher
	consultationID string
}

func (b *bridge) forward(topic string, payload any) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to marshal consultation event",
			"consultation_id", b.consultationID, "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeWriteTimeout)
	defer cancel()

	channel := ConsultationChannel(b.consultationID)
	if err := b.publisher.Publish(ctx, b.consultationID, channel, payloadJSON); err != nil {
		slog.Warn("Failed to forward consultation event",
			"consultation_id", b.consultationID, "topic", topic, "error", err)
	}

	// Lifecycle events also reach the list page.
	if topic == TopicConsultationStarted || topic == TopicConsultationCompleted {
		if err := b.publisher.PublishTransient(ctx, GlobalConsultationsChannel, payloadJSON); err != nil {
			slog.Warn("Failed to broadcast consultation lifecycle event",
				"consultation_id", b.consultationID, "topic", topic, "error", err)
		}
	}
}
