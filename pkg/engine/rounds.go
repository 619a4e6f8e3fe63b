package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conclave-ai/conclave/pkg/artifact"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// callAgent runs one logical provider call under pulse supervision and
// records its outcome. The response is never nil when err is nil; a
// non-nil err means the user aborted the consultation or a recovery
// prompt failed, and the round must stop.
func (e *Engine) callAgent(ctx context.Context, r *run, agent models.Agent, round int, system string, messages []provider.Message) (*models.AgentResponse, error) {
	r.publisher.AgentThinking(agent.ID, agent.DisplayName, round)

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()
	stop := r.watchdog.Watch(callCtx, agent.ID, agent.DisplayName, cancelCall)
	defer stop()

	resp, err := r.hedge.Execute(callCtx, agent, round, messages, system)
	if err != nil {
		return nil, err
	}
	if resp.Failed() && r.watchdog.Cancelled(agent.ID) {
		resp.ProviderError = "cancelled by user via pulse check"
	}

	r.publisher.AgentCompleted(agent.ID, agent.DisplayName, round, !resp.Failed(), resp.LatencyMs)
	r.addResponse(resp)
	r.store.response(*resp)
	return resp, nil
}

// runRound1 fans the question out to every panelist in parallel and
// collects their independent positions. Failed agents are excluded
// rather than failing the round; artifacts keep configuration order
// regardless of completion order.
func (e *Engine) runRound1(ctx context.Context, r *run) error {
	r.publisher.RoundStart(1)
	r.logger.Info("Round 1: independent positions", "agents", len(r.agents))

	roundCtx, cancelRound := context.WithCancel(ctx)
	defer cancelRound()

	type positionResult struct {
		index    int
		artifact *models.IndependentArtifact
		err      error
	}

	results := make(chan positionResult, len(r.agents))
	var wg sync.WaitGroup
	for i, agent := range r.agents {
		wg.Add(1)
		go func(index int, agent models.Agent) {
			defer wg.Done()

			system, messages := independentPrompt(agent, r.projectContext, r.question)
			resp, err := e.callAgent(roundCtx, r, agent, 1, system, messages)
			if err != nil {
				// User abort: stop the siblings too.
				cancelRound()
				results <- positionResult{index: index, err: err}
				return
			}
			if resp.Failed() {
				r.logger.Warn("Agent excluded from round 1",
					"agent_id", agent.ID, "error", resp.ProviderError)
				results <- positionResult{index: index}
				return
			}

			art, aerr := artifact.ExtractIndependent(resp.Content, agent.ID)
			if aerr != nil {
				r.logger.Warn("Agent response unusable, excluded from round 1",
					"agent_id", agent.ID, "error", aerr)
				r.publisher.Error(fmt.Sprintf("agent %s produced no usable position: %v", agent.ID, aerr), "round1")
				results <- positionResult{index: index}
				return
			}
			results <- positionResult{index: index, artifact: art}
		}(i, agent)
	}
	wg.Wait()
	close(results)

	collected := make([]positionResult, 0, len(r.agents))
	for res := range results {
		collected = append(collected, res)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	for _, res := range collected {
		if res.err != nil {
			return res.err
		}
	}
	for _, res := range collected {
		if res.artifact == nil {
			continue
		}
		r.round1 = append(r.round1, res.artifact)
		r.store.artifact(res.artifact)
		r.publisher.RoundArtifact(1, res.artifact)
	}

	if len(r.round1) > 0 {
		r.publisher.RoundCompleted(1, models.ArtifactTypeIndependent)
		r.logger.Info("Round 1 complete", "positions", len(r.round1), "excluded", len(r.agents)-len(r.round1))
	}
	return nil
}

// runRound2 has the judge map consensus and tension across the
// surviving positions. A failed judge call or unusable synthesis is
// fatal for the consultation.
func (e *Engine) runRound2(ctx context.Context, r *run) error {
	r.publisher.RoundStart(2)
	r.logger.Info("Round 2: judge synthesis", "positions", len(r.round1))

	system, messages := synthesisPrompt(r.question, r.round1)
	resp, err := e.callAgent(ctx, r, r.judge, 2, system, messages)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return fmt.Errorf("round 2 synthesis: %w: %s", ErrJudgeFailure, resp.ProviderError)
	}

	synth, err := artifact.ExtractSynthesis(resp.Content)
	if err != nil {
		return fmt.Errorf("round 2 synthesis: %w: %v", ErrJudgeFailure, err)
	}

	r.synthesis = synth
	r.store.artifact(synth)
	r.publisher.RoundArtifact(2, synth)
	r.publisher.RoundCompleted(2, models.ArtifactTypeSynthesis)
	return nil
}

// contribution is one panelist's round-3 cross-examination text.
type contribution struct {
	agentID string
	text    string
}

// runRound3 runs cross-examination: every surviving panelist
// challenges the synthesis in parallel, then the judge consolidates
// the exchange into a structured artifact. Losing individual panelists
// here is tolerable; losing all of them or the judge is not.
func (e *Engine) runRound3(ctx context.Context, r *run) error {
	r.publisher.RoundStart(3)

	filtered := r.filter.Synthesis(r.synthesis)
	r.filteredSynthesis = filtered
	stats := r.ensureEfficiency()
	stats.SynthesisCharsBefore = len(artifactJSON(r.synthesis))
	stats.SynthesisCharsAfter = len(artifactJSON(filtered))

	// Only agents with a surviving round-1 position participate.
	positionsByAgent := make(map[string]*models.IndependentArtifact, len(r.round1))
	validAgents := make([]string, 0, len(r.round1))
	for _, pos := range r.round1 {
		positionsByAgent[pos.AgentID] = pos
		validAgents = append(validAgents, pos.AgentID)
	}
	participants := make([]models.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if positionsByAgent[agent.ID] != nil {
			participants = append(participants, agent)
		}
	}

	r.logger.Info("Round 3: cross-examination", "participants", len(participants))

	roundCtx, cancelRound := context.WithCancel(ctx)
	defer cancelRound()

	type examResult struct {
		index int
		contr *contribution
		err   error
	}

	results := make(chan examResult, len(participants))
	var wg sync.WaitGroup
	for i, agent := range participants {
		wg.Add(1)
		go func(index int, agent models.Agent) {
			defer wg.Done()

			system, messages := crossExamPrompt(agent, positionsByAgent[agent.ID], filtered, r.question)
			resp, err := e.callAgent(roundCtx, r, agent, 3, system, messages)
			if err != nil {
				cancelRound()
				results <- examResult{index: index, err: err}
				return
			}
			if resp.Failed() {
				r.logger.Warn("Agent excluded from cross-examination",
					"agent_id", agent.ID, "error", resp.ProviderError)
				results <- examResult{index: index}
				return
			}
			results <- examResult{index: index, contr: &contribution{agentID: agent.ID, text: resp.Content}}
		}(i, agent)
	}
	wg.Wait()
	close(results)

	collected := make([]examResult, 0, len(participants))
	for res := range results {
		collected = append(collected, res)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	for _, res := range collected {
		if res.err != nil {
			return res.err
		}
	}
	contributions := make([]contribution, 0, len(collected))
	for _, res := range collected {
		if res.contr != nil {
			contributions = append(contributions, *res.contr)
		}
	}
	if len(contributions) == 0 {
		return fmt.Errorf("round 3: %w", ErrAllAgentsFailed)
	}

	system, messages := consolidationPrompt(r.question, contributions, filtered)
	resp, err := e.callAgent(ctx, r, r.judge, 3, system, messages)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return fmt.Errorf("round 3 consolidation: %w: %s", ErrJudgeFailure, resp.ProviderError)
	}

	exam, err := artifact.ExtractCrossExam(resp.Content, validAgents)
	if err != nil {
		return fmt.Errorf("round 3 consolidation: %w: %v", ErrJudgeFailure, err)
	}

	r.crossExam = exam
	r.store.artifact(exam)
	r.publisher.RoundArtifact(3, exam)
	r.publisher.RoundCompleted(3, models.ArtifactTypeCrossExam)
	return nil
}

// runRound4 has the judge deliver the final verdict over the filtered
// synthesis and cross-exam. Verbose runs replay the original positions
// as additional evidence.
func (e *Engine) runRound4(ctx context.Context, r *run) error {
	r.publisher.RoundStart(4)
	r.logger.Info("Round 4: final verdict")

	filteredExam := r.filter.CrossExam(r.crossExam)
	stats := r.ensureEfficiency()
	stats.CrossExamCharsBefore = len(artifactJSON(r.crossExam))
	stats.CrossExamCharsAfter = len(artifactJSON(filteredExam))

	var positions []*models.IndependentArtifact
	if r.opts.Verbose {
		positions = r.round1
	}

	system, messages := verdictPrompt(r.question, r.filteredSynthesis, filteredExam, positions)
	resp, err := e.callAgent(ctx, r, r.judge, 4, system, messages)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return fmt.Errorf("round 4 verdict: %w: %s", ErrJudgeFailure, resp.ProviderError)
	}

	verdict, err := artifact.ExtractVerdict(resp.Content)
	if err != nil {
		return fmt.Errorf("round 4 verdict: %w: %v", ErrJudgeFailure, err)
	}

	r.verdict = verdict
	r.store.artifact(verdict)
	r.publisher.RoundArtifact(4, verdict)
	r.publisher.RoundCompleted(4, models.ArtifactTypeVerdict)
	return nil
}
