// Package hedge executes one logical inference call with low tail
// latency: a primary request races a staggered backup picked from the
// provider's tier chain, the winner's response is used, and the loser is
// cancelled. Total failure falls back to a user-driven recovery prompt.
package hedge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/interact"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// DefaultStagger is how long the primary runs alone before a backup is
// hedged in.
const DefaultStagger = 10 * time.Second

// ErrConsultationAborted is returned when the user chooses to abort the
// whole consultation from a failure prompt.
var ErrConsultationAborted = errors.New("consultation aborted by user")

// Health is the slice of the health monitor the manager needs: status
// snapshots for backup selection, and outcome reporting so real calls
// feed the same classification as probes. Snapshot reads may be stale;
// the next probe wave corrects them.
type Health interface {
	GetHealth(providerID string) (*models.ProviderHealth, error)
	UpdateStatus(providerID string, success bool, latency time.Duration)
}

// Manager runs hedged calls for one consultation.
type Manager struct {
	registry  *provider.Registry
	health    Health
	prompter  interact.Prompter
	publisher *events.Publisher
	stagger   time.Duration
	logger    *slog.Logger
}

// NewManager builds a hedge manager. stagger <= 0 hedges immediately,
// which only makes sense in tests.
func NewManager(registry *provider.Registry, health Health, prompter interact.Prompter, publisher *events.Publisher, stagger time.Duration) *Manager {
	return &Manager{
		registry:  registry,
		health:    health,
		prompter:  prompter,
		publisher: publisher,
		stagger:   stagger,
		logger:    slog.Default().With("component", "hedge"),
	}
}

// callResult is one settled provider call.
type callResult struct {
	resp    *provider.ChatResponse
	err     *provider.Error
	latency time.Duration
}

// Execute runs one logical call for the agent. It always returns a
// response, failed calls included, except when the user aborts the
// consultation or cancels mid-prompt. Failed responses carry empty
// content and a populated ProviderError.
func (m *Manager) Execute(ctx context.Context, agent models.Agent, round int, messages []provider.Message, systemPrompt string) (*models.AgentResponse, error) {
	req := &provider.ChatRequest{Messages: messages, SystemPrompt: systemPrompt}

	primaryEntry, err := m.registry.Get(agent.ProviderID)
	if err != nil {
		return m.failedResponse(agent, round, provider.NewError(agent.ProviderID, provider.ErrorKindInvalidResponse, "provider not registered", err)), nil
	}

	primaryCtx, cancelPrimary := context.WithCancel(ctx)
	defer cancelPrimary()
	primaryCh := m.dispatch(primaryCtx, primaryEntry.Provider, req)

	stagger := time.NewTimer(m.stagger)
	defer stagger.Stop()

	var primary *callResult
	select {
	case primary = <-primaryCh:
		// Primary settled before the stagger; its outcome stands and no
		// backup is launched.
	case <-stagger.C:
		tried := map[string]bool{agent.ProviderID: true}
		backupID := m.selectBackup(agent.ProviderID, primaryEntry.Tier, tried)
		if backupID == "" {
			m.logger.Debug("No healthy backup available, awaiting primary",
				"agent_id", agent.ID, "provider", agent.ProviderID)
			primary = <-primaryCh
			break
		}
		return m.raceWithBackup(ctx, agent, round, req, primaryCh, cancelPrimary, backupID, tried)
	case <-ctx.Done():
		// Cancelled before settle; the dispatch goroutine unblocks via
		// primaryCtx and reports a cancelled result.
		primary = <-primaryCh
	}

	if primary.err == nil {
		return m.wonResponse(agent, round, primary, ""), nil
	}
	// The primary settled with a failure before any backup launched;
	// its outcome stands. Recovery only follows a hedged race in which
	// both requests failed.
	return m.failedResponse(agent, round, primary.err), nil
}

// raceWithBackup runs steps five and six: launch the backup, race both,
// first success wins and the loser is cancelled. Both failing falls
// through to recovery.
func (m *Manager) raceWithBackup(ctx context.Context, agent models.Agent, round int, req *provider.ChatRequest, primaryCh <-chan *callResult, cancelPrimary context.CancelFunc, backupID string, tried map[string]bool) (*models.AgentResponse, error) {
	// The substitution event goes out before the backup request.
	m.publisher.ProviderSubstituted(agent.ID, agent.ProviderID, backupID, events.SubstitutionReasonTimeout)
	m.logger.Info("Hedging slow primary with backup",
		"agent_id", agent.ID, "primary", agent.ProviderID, "backup", backupID)

	backupEntry, err := m.registry.Get(backupID)
	if err != nil {
		primary := <-primaryCh
		if primary.err == nil {
			return m.wonResponse(agent, round, primary, ""), nil
		}
		return m.failedResponse(agent, round, primary.err), nil
	}
	tried[backupID] = true

	backupCtx, cancelBackup := context.WithCancel(ctx)
	defer cancelBackup()
	backupCh := m.dispatch(backupCtx, backupEntry.Provider, req)

	var primary, backup *callResult
	for {
		select {
		case primary = <-pending(primaryCh, primary):
			if primary.err == nil {
				cancelBackup()
				return m.wonResponse(agent, round, primary, ""), nil
			}
			if backup != nil {
				return m.recoverTotalFailure(ctx, agent, round, req, primary.err, tried)
			}
		case backup = <-pending(backupCh, backup):
			if backup.err == nil {
				cancelPrimary()
				return m.wonResponse(agent, round, backup, backupID), nil
			}
			if primary != nil {
				return m.recoverTotalFailure(ctx, agent, round, req, primary.err, tried)
			}
		}
	}
}

// pending nils a result channel once it has delivered so the race
// select stops polling it.
func pending(ch <-chan *callResult, settled *callResult) <-chan *callResult {
	if settled != nil {
		return nil
	}
	return ch
}

// recoverTotalFailure is step seven: every raced request failed. When a
// healthy substitute exists the user picks between substituting,
// skipping the agent, and aborting the consultation; without one the
// failure is final. Unattended runs substitute by default.
func (m *Manager) recoverTotalFailure(ctx context.Context, agent models.Agent, round int, req *provider.ChatRequest, cause *provider.Error, tried map[string]bool) (*models.AgentResponse, error) {
	if ctx.Err() != nil {
		return m.failedResponse(agent, round, cause), nil
	}
	m.logger.Warn("All hedged requests failed for agent",
		"agent_id", agent.ID, "provider", agent.ProviderID, "error", cause.Error())

	primaryTier := models.TierCheap
	if entry, err := m.registry.Get(agent.ProviderID); err == nil {
		primaryTier = entry.Tier
	}
	candidateID := m.selectBackup(agent.ProviderID, primaryTier, tried)
	if candidateID == "" {
		return m.failedResponse(agent, round, cause), nil
	}

	action, err := m.prompter.ChooseFailureAction(ctx, &interact.FailurePrompt{
		AgentID:   agent.ID,
		AgentName: agent.DisplayName,
		Provider:  agent.ProviderID,
		Candidate: candidateID,
		Reason:    cause.Error(),
	})
	if err != nil {
		return nil, fmt.Errorf("failure recovery prompt: %w", err)
	}

	switch action {
	case interact.ActionAbort:
		return nil, fmt.Errorf("%w: agent %s provider failure", ErrConsultationAborted, agent.ID)
	case interact.ActionSkip:
		resp := m.failedResponse(agent, round, cause)
		resp.ProviderError = fmt.Sprintf("skipped by user after failure: %s", cause.Error())
		return resp, nil
	}

	return m.executeSubstitute(ctx, agent, round, req, cause, candidateID)
}

// executeSubstitute runs the user-approved substitute once. Its failure
// is final; there is no second recovery pass.
func (m *Manager) executeSubstitute(ctx context.Context, agent models.Agent, round int, req *provider.ChatRequest, cause *provider.Error, candidateID string) (*models.AgentResponse, error) {
	m.publisher.ProviderSubstituted(agent.ID, agent.ProviderID, candidateID, events.SubstitutionReasonFailure)
	m.logger.Info("Executing substitute provider",
		"agent_id", agent.ID, "primary", agent.ProviderID, "substitute", candidateID)

	entry, err := m.registry.Get(candidateID)
	if err != nil {
		return m.failedResponse(agent, round, cause), nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	res := <-m.dispatch(subCtx, entry.Provider, req)
	if res.err != nil {
		resp := m.failedResponse(agent, round, res.err)
		resp.Substituted = true
		resp.SubstituteProvider = candidateID
		return resp, nil
	}
	return m.wonResponse(agent, round, res, candidateID), nil
}

// dispatch launches one provider call on its own goroutine. The channel
// is buffered so an abandoned loser never leaks its goroutine, and the
// settled outcome feeds the health monitor unless it was a caller
// cancellation.
func (m *Manager) dispatch(ctx context.Context, p provider.Provider, req *provider.ChatRequest) <-chan *callResult {
	ch := make(chan *callResult, 1)
	go func() {
		start := time.Now()
		resp, err := p.Chat(ctx, req)
		latency := time.Since(start)

		res := &callResult{resp: resp, latency: latency}
		if err != nil {
			res.err = provider.Classify(ctx, p.Name(), err)
		}
		if res.err == nil || res.err.Kind != provider.ErrorKindCancelled {
			m.health.UpdateStatus(p.Name(), res.err == nil, latency)
		}
		ch <- res
	}()
	return ch
}

// selectBackup walks the primary's tier chain and returns the first
// provider that is not excluded and currently Healthy. Health reads are
// snapshots; a stale pick is tolerated.
func (m *Manager) selectBackup(primaryID string, primaryTier models.Tier, exclude map[string]bool) string {
	for _, tier := range primaryTier.Chain() {
		for _, id := range m.registry.IDsByTier(tier) {
			if id == primaryID || exclude[id] {
				continue
			}
			h, err := m.health.GetHealth(id)
			if err != nil || !h.IsHealthy() {
				continue
			}
			return id
		}
	}
	return ""
}

// wonResponse shapes a settled successful call. substituteID is empty
// when the primary served the call.
func (m *Manager) wonResponse(agent models.Agent, round int, res *callResult, substituteID string) *models.AgentResponse {
	resp := &models.AgentResponse{
		AgentID:    agent.ID,
		ProviderID: agent.ProviderID,
		Round:      round,
		Content:    res.resp.Text,
		Usage:      res.resp.Usage,
		LatencyMs:  res.latency.Milliseconds(),
	}
	if substituteID != "" {
		resp.Substituted = true
		resp.SubstituteProvider = substituteID
	}
	return resp
}

// failedResponse shapes a terminal failure as an empty-content response.
func (m *Manager) failedResponse(agent models.Agent, round int, cause *provider.Error) *models.AgentResponse {
	return &models.AgentResponse{
		AgentID:       agent.ID,
		ProviderID:    agent.ProviderID,
		Round:         round,
		ProviderError: cause.Error(),
	}
}
