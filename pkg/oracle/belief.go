package oracle

import "math"

// Belief dimensions and update mixing weights.
const (
	beliefDims       = 16
	beliefStateMix   = 0.7
	beliefActionMix  = 0.3
	confidenceStep   = 0.05
	confidenceCeil   = 0.95
	basketSlot       = 3
	boxSlot          = 5
)

// AgentBelief is the tracked mental state of one named agent.
type AgentBelief struct {
	State      [beliefDims]float64
	Confidence float64
	Updates    int
}

// BeliefTracker maintains per-agent belief vectors so the oracle can
// reason about what a change author believes versus what is true.
type BeliefTracker struct {
	agents map[string]*AgentBelief
}

func NewBeliefTracker() *BeliefTracker {
	return &BeliefTracker{agents: make(map[string]*AgentBelief)}
}

// Observe folds an observed (state, action) pair into the agent's
// belief: 0.7 of the observed state plus 0.3 of the action taken.
// Confidence grows by 0.05 per observation, capped at 0.95 because
// another mind is never fully knowable.
func (t *BeliefTracker) Observe(agent string, state, action []float64) {
	b, ok := t.agents[agent]
	if !ok {
		b = &AgentBelief{}
		t.agents[agent] = b
	}
	for i := 0; i < beliefDims; i++ {
		var s, a float64
		if i < len(state) {
			s = state[i]
		}
		if i < len(action) {
			a = action[i]
		}
		b.State[i] = beliefStateMix*s + beliefActionMix*a
	}
	b.Confidence = math.Min(confidenceCeil, b.Confidence+confidenceStep)
	b.Updates++
}

// Belief returns the tracked belief for an agent, or nil.
func (t *BeliefTracker) Belief(agent string) *AgentBelief {
	return t.agents[agent]
}

// PredictAction runs the forward model: tanh of the belief state,
// component-wise, as the expected next action.
func (t *BeliefTracker) PredictAction(agent string) []float64 {
	b := t.agents[agent]
	if b == nil {
		return make([]float64, beliefDims)
	}
	out := make([]float64, beliefDims)
	for i, x := range b.State {
		out[i] = math.Tanh(x)
	}
	return out
}

// SallyAnne runs the classic false-belief probe as a self-test of the
// tracker. Sally sees the marble in the basket (slot 3) and leaves;
// the marble moves to the box (slot 5) while she is away. A tracker
// with a working model predicts Sally searches the basket, not the
// box. Returns true when the false belief is correctly maintained.
func SallyAnne() bool {
	t := NewBeliefTracker()

	marbleInBasket := make([]float64, beliefDims)
	marbleInBasket[basketSlot] = 1.0
	t.Observe("sally", marbleInBasket, nil)

	// The move happens while Sally is absent; her belief is not updated.
	prediction := t.PredictAction("sally")
	return prediction[basketSlot] > prediction[boxSlot]
}
