// Package engine runs consultations end to end: cost gating, the four
// deliberation rounds, cancellation, and result assembly. It composes
// the hedge manager, pulse watchdog, artifact extraction, and the
// persistence services into the single facade the API, CLI, and MCP
// surfaces call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/pkg/artifact"
	"github.com/conclave-ai/conclave/pkg/config"
	"github.com/conclave-ai/conclave/pkg/cost"
	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/hedge"
	"github.com/conclave-ai/conclave/pkg/interact"
	"github.com/conclave-ai/conclave/pkg/masking"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
	"github.com/conclave-ai/conclave/pkg/pulse"
	"github.com/conclave-ai/conclave/pkg/services"
)

// judgeAgentID is the reserved agent ID for the judge's calls in
// rounds 2 through 4.
const judgeAgentID = "judge"

// ContextLoader resolves a project path into the prose block prepended
// to round-1 prompts. Implemented by projectctx.Loader.
type ContextLoader interface {
	Load(ctx context.Context, path string) (string, error)
}

// BusHook is invoked with each consultation's scoped event bus before
// the run starts. The server attaches the store-and-forward bridge
// here; tests attach recorders.
type BusHook func(consultationID string, bus *events.Bus)

// Engine schedules consultations. One engine serves all surfaces of a
// process; each consultation gets its own event bus, hedge manager,
// and watchdog.
type Engine struct {
	cfg           *config.Config
	registry      *provider.Registry
	health        hedge.Health
	prompter      interact.Prompter
	contextLoader ContextLoader
	db            *ent.Client
	busHook       BusHook
	masker        *masking.Service
	pool          *Pool
	logger        *slog.Logger
}

// New builds an engine. health must not be nil; the hedge manager
// consults it on every call. prompter serves interactive runs and may
// be nil, in which case prompts resolve from unattended policy
// defaults. contextLoader, db, and busHook may each be nil to disable
// project context loading, persistence, and event delivery.
func New(cfg *config.Config, registry *provider.Registry, health hedge.Health, prompter interact.Prompter, contextLoader ContextLoader, db *ent.Client, busHook BusHook) *Engine {
	return &Engine{
		cfg:           cfg,
		registry:      registry,
		health:        health,
		prompter:      prompter,
		contextLoader: contextLoader,
		db:            db,
		busHook:       busHook,
		masker:        masking.NewService(cfg.Masking),
		pool:          NewPool(),
		logger:        slog.Default().With("component", "engine"),
	}
}

// Pool exposes the active-consultation registry.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// Cancel aborts a running consultation. Returns ErrNotActive when the
// ID is unknown or already finished.
func (e *Engine) Cancel(consultationID string) error {
	if !e.pool.Cancel(consultationID) {
		return fmt.Errorf("%w: %s", ErrNotActive, consultationID)
	}
	e.logger.Info("Consultation cancelled", "consultation_id", consultationID)
	return nil
}

// Consult runs one consultation to completion and returns its result.
// Terminal non-complete outcomes (cost rejection, all agents failed,
// judge failure, timeout, abort) return the partial result together
// with a sentinel error; only a fully completed run returns a nil
// error. Validation failures return a nil result.
func (e *Engine) Consult(ctx context.Context, question, projectContext string, opts *Options) (*models.ConsultationResult, error) {
	return e.run(ctx, uuid.New().String(), question, projectContext, opts)
}

// Submit starts a consultation asynchronously and returns its ID.
// Validation runs synchronously so bad requests fail here; the run
// itself proceeds in the background under the engine's own context and
// is reachable through Cancel.
func (e *Engine) Submit(question, projectContext string, opts *Options) (string, error) {
	if _, err := e.prepare(question, opts); err != nil {
		return "", err
	}
	id := uuid.New().String()
	go func() {
		if _, err := e.run(context.Background(), id, question, projectContext, opts); err != nil {
			e.logger.Warn("Background consultation ended with error",
				"consultation_id", id, "error", err)
		}
	}()
	return id, nil
}

// prepare validates the question and resolves options against the
// configured defaults.
func (e *Engine) prepare(question string, opts *Options) (*Options, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question must not be empty")
	}
	if opts == nil {
		opts = &Options{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if e.cfg.Defaults == nil {
		return nil, errors.New("configuration is missing defaults")
	}
	// An empty panel is not a validation error: the run enters round 1,
	// dispatches nothing, and fails with ErrAllAgentsFailed.
	if e.cfg.AgentRegistry == nil {
		return nil, errors.New("configuration is missing the agent registry")
	}
	resolved := opts.withDefaults(e.cfg.Defaults)
	if !resolved.singleRound() && (e.cfg.Judge == nil || e.cfg.Judge.Provider == "") {
		return nil, errors.New("full deliberation requires a judge provider")
	}
	return resolved, nil
}

// panelAgents maps the configured panel into runtime agents, keeping
// configuration order.
func (e *Engine) panelAgents() []models.Agent {
	panel := e.cfg.Panel()
	agents := make([]models.Agent, 0, len(panel))
	for _, a := range panel {
		display := a.DisplayName
		if display == "" {
			display = a.ID
		}
		agents = append(agents, models.Agent{
			ID:          a.ID,
			DisplayName: display,
			ProviderID:  a.Provider,
			Role:        a.Role,
		})
	}
	return agents
}

// judgeAgent is the pseudo-agent that carries rounds 2 through 4. It
// runs through the same hedge path as the panelists so judge calls get
// the identical failure handling.
func (e *Engine) judgeAgent() models.Agent {
	agent := models.Agent{ID: judgeAgentID, DisplayName: "Judge"}
	if e.cfg.Judge != nil {
		agent.ProviderID = e.cfg.Judge.Provider
	}
	return agent
}

// prompters resolves the cost-gate prompter and the in-run prompter
// for one consultation. Interactive runs use the engine's prompter for
// both. Unattended runs answer the gate from CostConsent and answer
// failure and pulse prompts from plain policy defaults, so a declined
// cost consent can never cancel agents mid-round.
func (e *Engine) prompters(opts *Options) (gate, inRun interact.Prompter) {
	if opts.Interactive && e.prompter != nil {
		return e.prompter, e.prompter
	}
	gateP := interact.NewPolicy()
	gateP.ConfirmDefault = opts.CostConsent
	return gateP, interact.NewPolicy()
}

// run executes one consultation synchronously: setup, the state
// machine, then persistence and the completion event. The returned
// result is non-nil whenever the run got far enough to have an ID row,
// whatever the outcome.
func (e *Engine) run(ctx context.Context, id, question, projectContext string, opts *Options) (*models.ConsultationResult, error) {
	opts, err := e.prepare(question, opts)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if opts.TimeoutMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	e.pool.Register(id, cancel)
	defer e.pool.Unregister(id)

	if projectContext == "" && opts.ProjectPath != "" && e.contextLoader != nil {
		text, cerr := e.contextLoader.Load(ctx, opts.ProjectPath)
		if cerr != nil {
			e.logger.Warn("Project context load failed, continuing without it",
				"consultation_id", id, "path", opts.ProjectPath, "error", cerr)
		} else {
			projectContext = text
		}
	}

	bus := events.NewBus()
	if e.busHook != nil {
		e.busHook(id, bus)
	}
	publisher := events.NewPublisher(bus, id)

	gateP, runP := e.prompters(opts)

	r := &run{
		id:             id,
		question:       question,
		projectContext: projectContext,
		opts:           opts,
		agents:         e.panelAgents(),
		judge:          e.judgeAgent(),
		machine:        newMachine(),
		publisher:      publisher,
		hedge:          hedge.NewManager(e.registry, e.health, runP, publisher, e.cfg.Defaults.HedgeDelay()),
		watchdog:       pulse.NewWatchdog(e.cfg.Defaults.PulseThreshold(), runP, publisher),
		filter:         artifact.NewFilter(e.cfg.FilterCaps, opts.Verbose),
		estimator:      cost.NewEstimator(e.cfg.Prices, e.cfg.ProviderModels(), e.cfg.JudgeModel()),
		gate:           cost.NewGate(e.cfg.Defaults.CostGate(), gateP),
		store:          e.newStore(id),
		masker:         e.masker,
		modelOf:        e.cfg.ProviderModels(),
		prices:         e.cfg.Prices,
		judgeModel:     e.cfg.JudgeModel(),
		startedAt:      time.Now().UTC(),
		logger:         e.logger.With("consultation_id", id),
	}

	// The consultation row must exist before the first event reaches
	// the store-and-forward bridge.
	r.store.create(question, opts.Mode, projectContext, r.agents)

	r.logger.Info("Consultation starting",
		"mode", opts.Mode, "max_rounds", opts.MaxRounds, "agents", len(r.agents),
		"interactive", opts.Interactive, "timeout_ms", opts.TimeoutMs)

	state, runErr := e.execute(ctx, r)

	result := r.result(state)
	errMsg := ""
	if runErr != nil {
		errMsg = r.masker.Mask(runErr.Error())
		r.publisher.Error(errMsg, string(state))
	}
	r.store.complete(result, errMsg)
	r.publisher.ConsultationCompleted(result)

	r.logger.Info("Consultation finished",
		"state", result.State, "duration_ms", result.DurationMs,
		"calls", len(result.AgentResponses), "cost_usd", result.Cost.USD)

	return result, runErr
}

// execute drives the state machine through the rounds. It returns the
// terminal machine state and the error that ended the run, nil only
// for a completed consultation.
func (e *Engine) execute(ctx context.Context, r *run) (State, error) {
	if err := r.to(StateEstimating); err != nil {
		return StateAborted, err
	}
	r.publisher.ConsultationStarted(r.question, r.agents)

	r.estimate = r.estimator.Estimate(r.question, r.agents, r.opts.estimateMode())
	r.store.estimate(r.estimate)

	decision, err := r.gate.Check(ctx, r.estimate, r.publisher)
	if err != nil {
		return e.interruptState(ctx, r, fmt.Errorf("cost gate: %w", err))
	}
	if !decision.Proceed {
		if err := r.to(StateCostRejected); err != nil {
			return StateAborted, err
		}
		r.logger.Info("Consultation rejected by cost gate",
			"estimated_usd", r.estimate.USD, "reason", decision.Reason)
		return StateCostRejected, fmt.Errorf("%w: %s", ErrCostRejected, decision.Reason)
	}

	if err := r.to(StateAwaitingRound1); err != nil {
		return StateAborted, err
	}
	r.store.started()

	if err := r.to(StateRound1); err != nil {
		return StateAborted, err
	}
	if err := e.runRound1(ctx, r); err != nil {
		return e.interruptState(ctx, r, err)
	}
	if state, err := e.checkDeadline(ctx, r); err != nil {
		return state, err
	}
	if len(r.round1) == 0 {
		if err := r.to(StateAllAgentsFailed); err != nil {
			return StateAborted, err
		}
		return StateAllAgentsFailed, fmt.Errorf("round 1: %w", ErrAllAgentsFailed)
	}

	if r.opts.singleRound() {
		if err := r.to(StateComplete); err != nil {
			return StateAborted, err
		}
		return StateComplete, nil
	}

	if err := r.to(StateRound2); err != nil {
		return StateAborted, err
	}
	if err := e.runRound2(ctx, r); err != nil {
		return e.interruptState(ctx, r, err)
	}
	if state, err := e.checkDeadline(ctx, r); err != nil {
		return state, err
	}

	if err := r.to(StateRound3); err != nil {
		return StateAborted, err
	}
	if err := e.runRound3(ctx, r); err != nil {
		return e.interruptState(ctx, r, err)
	}
	if state, err := e.checkDeadline(ctx, r); err != nil {
		return state, err
	}

	if err := r.to(StateRound4); err != nil {
		return StateAborted, err
	}
	if err := e.runRound4(ctx, r); err != nil {
		return e.interruptState(ctx, r, err)
	}

	if err := r.to(StateComplete); err != nil {
		return StateAborted, err
	}
	return StateComplete, nil
}

// checkDeadline ends the run once the root context has expired between
// rounds. Returns the zero state and nil while the context is live.
func (e *Engine) checkDeadline(ctx context.Context, r *run) (State, error) {
	if ctx.Err() == nil {
		return "", nil
	}
	return e.interruptState(ctx, r, ctx.Err())
}

// interruptState maps a failed phase onto its terminal state. Deadline
// expiry becomes a timeout where the machine allows it; everything
// else aborts with the cause preserved for the caller.
func (e *Engine) interruptState(ctx context.Context, r *run, cause error) (State, error) {
	phase := r.machine.current()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && r.machine.can(StateTimedOut) {
		if err := r.to(StateTimedOut); err != nil {
			return StateAborted, err
		}
		r.logger.Warn("Consultation timed out", "timeout_ms", r.opts.TimeoutMs, "phase", phase)
		return StateTimedOut, fmt.Errorf("%w after %dms", ErrTimedOut, r.opts.TimeoutMs)
	}
	if err := r.to(StateAborted); err != nil {
		return StateAborted, err
	}
	return StateAborted, cause
}

// run carries the mutable state of one consultation through its rounds.
type run struct {
	id             string
	question       string
	projectContext string
	opts           *Options
	agents         []models.Agent
	judge          models.Agent

	machine   *machine
	publisher *events.Publisher
	hedge     *hedge.Manager
	watchdog  *pulse.Watchdog
	filter    *artifact.Filter
	estimator *cost.Estimator
	gate      *cost.Gate
	store     *runStore
	masker    *masking.Service
	logger    *slog.Logger

	modelOf    map[string]string
	prices     cost.PriceTable
	judgeModel string

	startedAt time.Time
	estimate  models.Cost

	mu        sync.Mutex
	actual    models.Cost
	responses []models.AgentResponse

	round1            []*models.IndependentArtifact
	synthesis         *models.SynthesisArtifact
	filteredSynthesis *models.SynthesisArtifact
	crossExam         *models.CrossExamArtifact
	verdict           *models.VerdictArtifact
	efficiency        *models.TokenEfficiencyStats
}

func (r *run) to(next State) error {
	return r.machine.to(next)
}

// addResponse records a settled call, masks any provider error, and
// accrues cost priced at the model that actually served the call.
func (r *run) addResponse(resp *models.AgentResponse) {
	resp.ProviderError = r.masker.Mask(resp.ProviderError)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses = append(r.responses, *resp)
	r.actual.Tokens.Add(resp.Usage)

	served := resp.ProviderID
	if resp.SubstituteProvider != "" {
		served = resp.SubstituteProvider
	}
	model := r.modelOf[served]
	if resp.AgentID == judgeAgentID && !resp.Substituted && r.judgeModel != "" {
		model = r.judgeModel
	}
	price := r.prices.Lookup(model)
	r.actual.USD += float64(resp.Usage.Input)*price.InputPerMTok/1e6 +
		float64(resp.Usage.Output)*price.OutputPerMTok/1e6
}

// result assembles the consultation result for the given terminal
// state. Safe to call regardless of how far the run got.
func (r *run) result(state State) *models.ConsultationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	round1 := r.round1
	if round1 == nil {
		round1 = []*models.IndependentArtifact{}
	}

	res := &models.ConsultationResult{
		ConsultationID: r.id,
		Question:       r.question,
		Mode:           r.opts.Mode,
		Timestamp:      r.startedAt,
		DurationMs:     time.Since(r.startedAt).Milliseconds(),
		State:          state.ResultState(),
		Responses: models.Responses{
			Round1: round1,
			Round2: r.synthesis,
			Round3: r.crossExam,
			Round4: r.verdict,
		},
		Dissent:              []string{},
		Cost:                 r.actual,
		EstimatedCost:        r.estimate,
		ActualCost:           r.actual.USD,
		Agents:               r.agents,
		AgentResponses:       append([]models.AgentResponse(nil), r.responses...),
		ProjectContext:       r.projectContext,
		TokenEfficiencyStats: r.efficiency,
		PulseMetadata:        r.watchdog.Metadata(),
	}
	if r.verdict != nil {
		res.Recommendation = r.verdict.Recommendation
		confidence := r.verdict.Confidence
		res.Confidence = &confidence
		res.Dissent = append([]string{}, r.verdict.Dissent...)
	}
	return res
}

// ensureEfficiency lazily creates the filtering stats record. Filtering
// first runs entering round 3, so single-round and early-terminated
// consultations never carry one.
func (r *run) ensureEfficiency() *models.TokenEfficiencyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.efficiency == nil {
		r.efficiency = &models.TokenEfficiencyStats{FilterEnabled: r.filter.Enabled()}
	}
	return r.efficiency
}

// runStore persists consultation progress through the services layer.
// A nil store (no database) drops every write; failures are logged and
// never interrupt a run. Writes use background contexts so late
// persistence survives consultation cancellation.
type runStore struct {
	id            string
	consultations *services.ConsultationService
	responses     *services.ResponseService
	artifacts     *services.ArtifactService
	logger        *slog.Logger
}

func (e *Engine) newStore(id string) *runStore {
	if e.db == nil {
		return nil
	}
	return &runStore{
		id:            id,
		consultations: services.NewConsultationService(e.db),
		responses:     services.NewResponseService(e.db),
		artifacts:     services.NewArtifactService(e.db),
		logger:        slog.Default().With("component", "engine", "consultation_id", id),
	}
}

func (s *runStore) create(question string, mode models.Mode, projectContext string, agents []models.Agent) {
	if s == nil {
		return
	}
	_, err := s.consultations.CreateConsultation(context.Background(), services.CreateConsultationInput{
		ConsultationID: s.id,
		Question:       question,
		Mode:           mode,
		ProjectContext: projectContext,
		Agents:         agents,
	})
	if err != nil {
		s.logger.Error("Failed to create consultation record", "error", err)
	}
}

func (s *runStore) estimate(estimate models.Cost) {
	if s == nil {
		return
	}
	if err := s.consultations.RecordEstimate(context.Background(), s.id, estimate); err != nil {
		s.logger.Warn("Failed to persist cost estimate", "error", err)
	}
}

func (s *runStore) started() {
	if s == nil {
		return
	}
	if err := s.consultations.MarkStarted(context.Background(), s.id); err != nil {
		s.logger.Warn("Failed to mark consultation started", "error", err)
	}
}

func (s *runStore) response(resp models.AgentResponse) {
	if s == nil {
		return
	}
	if _, err := s.responses.RecordResponse(context.Background(), s.id, resp); err != nil {
		s.logger.Warn("Failed to persist agent response",
			"agent_id", resp.AgentID, "round", resp.Round, "error", err)
	}
}

func (s *runStore) artifact(art models.Artifact) {
	if s == nil {
		return
	}
	if _, err := s.artifacts.SaveArtifact(context.Background(), s.id, art); err != nil {
		s.logger.Warn("Failed to persist round artifact",
			"round", art.Round(), "type", art.Kind(), "error", err)
	}
}

func (s *runStore) complete(result *models.ConsultationResult, errMsg string) {
	if s == nil {
		return
	}
	if err := s.consultations.CompleteConsultation(context.Background(), s.id, result); err != nil {
		s.logger.Error("Failed to persist consultation result", "error", err)
	}
	if errMsg != "" {
		if err := s.consultations.SetErrorMessage(context.Background(), s.id, errMsg); err != nil {
			s.logger.Warn("Failed to persist consultation error", "error", err)
		}
	}
}
