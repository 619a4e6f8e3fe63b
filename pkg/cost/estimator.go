package cost

import (
	"github.com/conclave-ai/conclave/pkg/models"
)

// Token accounting for the estimate. Rough 4-chars-per-token heuristic;
// rounds that replay upstream artifacts charge the full output budget of
// every artifact they consume, so the estimate is an upper bound rather
// than a prediction.
const (
	charsPerToken      = 4
	systemPromptTokens = 700  // persona + schema instructions per call
	outputBudgetTokens = 2000 // response budget per call
)

// Estimator computes an upper-bound pre-flight cost for a consultation.
type Estimator struct {
	prices     PriceTable
	modelOf    map[string]string // provider id -> configured model
	judgeModel string
}

// NewEstimator builds an estimator. modelOf maps provider ids to their
// configured model names so each call is priced against the model that
// will actually serve it.
func NewEstimator(prices PriceTable, modelOf map[string]string, judgeModel string) *Estimator {
	if prices == nil {
		prices = DefaultPrices()
	}
	copied := make(map[string]string, len(modelOf))
	for id, model := range modelOf {
		copied[id] = model
	}
	return &Estimator{prices: prices, modelOf: copied, judgeModel: judgeModel}
}

// Estimate sizes the full consultation before any provider call. Quick
// mode runs round 1 only (one call per agent); full mode adds a second
// agent fan-out and three judge passes.
func (e *Estimator) Estimate(question string, agents []models.Agent, mode models.Mode) models.Cost {
	questionTokens := len(question)/charsPerToken + 1

	var cost models.Cost
	addCall := func(model string, inputTokens int) {
		price := e.prices.Lookup(model)
		cost.Tokens.Input += inputTokens
		cost.Tokens.Output += outputBudgetTokens
		cost.USD += float64(inputTokens)*price.InputPerMTok/1e6 +
			float64(outputBudgetTokens)*price.OutputPerMTok/1e6
	}

	// Round 1: each agent sees the question plus its persona prompt.
	for _, agent := range agents {
		addCall(e.modelOf[agent.ProviderID], systemPromptTokens+questionTokens)
	}

	if mode != models.ModeQuick {
		n := len(agents)
		// Round 2: judge synthesis over every round-1 artifact.
		addCall(e.judgeModel, systemPromptTokens+questionTokens+n*outputBudgetTokens)
		// Round 3: each agent replays its own artifact plus the
		// filtered synthesis, then a judge pass consolidates.
		for _, agent := range agents {
			addCall(e.modelOf[agent.ProviderID], systemPromptTokens+questionTokens+2*outputBudgetTokens)
		}
		addCall(e.judgeModel, systemPromptTokens+questionTokens+n*outputBudgetTokens)
		// Round 4: judge verdict over synthesis + cross-exam.
		addCall(e.judgeModel, systemPromptTokens+questionTokens+2*outputBudgetTokens)
	}

	cost.Tokens.Total = cost.Tokens.Input + cost.Tokens.Output
	return cost
}

// CallCount reports how many provider calls the given mode will make for
// a panel of n agents. Round 1 is n calls; full mode adds n round-3
// calls and three judge passes.
func CallCount(n int, mode models.Mode) int {
	if mode == models.ModeQuick {
		return n
	}
	return 2*n + 3
}
