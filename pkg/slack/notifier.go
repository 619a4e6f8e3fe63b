package slack

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/models"
)

// notifyTimeout bounds the asynchronous post for one notification.
const notifyTimeout = 15 * time.Second

// AttachNotifier subscribes a verdict notifier to a consultation's bus.
// The error topic is tracked so failed runs carry their terminal error
// into the notification. Safe to call with a nil service.
func AttachNotifier(bus *events.Bus, svc *Service, consultationID string) {
	if bus == nil || svc == nil {
		return
	}

	// Bus dispatch is serialized, so the error handler always finishes
	// before the completion handler reads lastError.
	var lastError string
	bus.Subscribe(events.TopicError, func(_ string, payload any) {
		if pl, ok := payload.(events.ErrorPayload); ok {
			lastError = pl.Message
		}
	})
	bus.Subscribe(events.TopicConsultationCompleted, func(_ string, payload any) {
		pl, ok := payload.(events.ConsultationCompletedPayload)
		if !ok {
			return
		}
		var res models.ConsultationResult
		if err := json.Unmarshal(pl.Result, &res); err != nil {
			slog.Warn("Could not decode consultation result for notification",
				"consultation_id", consultationID, "error", err)
			return
		}
		input := ConsultationCompletedInput{
			ConsultationID: consultationID,
			Question:       res.Question,
			State:          string(res.State),
			Recommendation: res.Recommendation,
			Confidence:     res.Confidence,
			Dissent:        res.Dissent,
			CostUSD:        res.ActualCost,
			ErrorMessage:   lastError,
		}
		// Post off the bus goroutine so dispatch never waits on Slack.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			svc.NotifyConsultationCompleted(ctx, input)
		}()
	})
}
