package cost

import (
	"context"
	"fmt"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/interact"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Decision is the gate's verdict on a consultation's estimated cost.
type Decision struct {
	Proceed bool
	Reason  string
}

// Gate blocks consultations whose estimate exceeds a USD threshold until
// the user consents. A threshold of zero or less disables gating.
type Gate struct {
	thresholdUSD float64
	prompter     interact.Prompter
}

// NewGate builds a gate. The prompter supplies consent; unattended runs
// pass an interact.Policy whose confirm default decides for them, and a
// policy without an explicit default declines.
func NewGate(thresholdUSD float64, prompter interact.Prompter) *Gate {
	return &Gate{thresholdUSD: thresholdUSD, prompter: prompter}
}

// Check publishes the estimate and, when it exceeds the threshold, asks
// for consent. The returned error is non-nil only when the prompt itself
// failed (cancellation); a declined estimate is a normal Decision.
func (g *Gate) Check(ctx context.Context, estimate models.Cost, publisher *events.Publisher) (Decision, error) {
	required := g.thresholdUSD > 0 && estimate.USD > g.thresholdUSD
	publisher.CostEstimated(estimate, required)

	if !required {
		return Decision{Proceed: true}, nil
	}

	prompt := fmt.Sprintf("Estimated cost $%.2f exceeds the $%.2f gate. Proceed anyway?",
		estimate.USD, g.thresholdUSD)
	accepted, err := g.prompter.Confirm(ctx, prompt, false)
	if err != nil {
		return Decision{}, fmt.Errorf("cost consent prompt: %w", err)
	}
	publisher.UserConsent(accepted)

	if !accepted {
		return Decision{
			Proceed: false,
			Reason: fmt.Sprintf("estimated cost $%.2f exceeds the $%.2f threshold and consent was declined",
				estimate.USD, g.thresholdUSD),
		}, nil
	}
	return Decision{Proceed: true}, nil
}
