package oracle

// Forward-rollout parameters.
const (
	planHorizon  = 5
	planDiscount = 0.95
)

// Rollout is one imagined trajectory with its discounted value.
type Rollout struct {
	Candidate int
	Value     float64
}

// Planner performs a bounded forward rollout over candidate change
// embeddings, scoring each by discounted similarity to remembered
// good episodes. Non-gating; it ranks alternatives for diagnostics.
type Planner struct {
	memory *EpisodicStore
}

func NewPlanner(memory *EpisodicStore) *Planner {
	return &Planner{memory: memory}
}

// Evaluate scores each candidate over the rollout horizon. At every
// step the candidate is compared with its nearest remembered episodes
// and the mean (similarity·valence) is discounted into the total, so
// trajectories echoing well-received past changes score higher.
func (p *Planner) Evaluate(candidates [][]float64) []Rollout {
	out := make([]Rollout, len(candidates))
	for i, cand := range candidates {
		out[i] = Rollout{Candidate: i, Value: p.rollout(cand)}
	}
	return out
}

func (p *Planner) rollout(embedding []float64) float64 {
	var total, discount float64
	discount = 1.0
	for step := 0; step < planHorizon; step++ {
		neighbors := p.memory.Recall(embedding, episodicK)
		if len(neighbors) == 0 {
			break
		}
		var stepValue float64
		for _, n := range neighbors {
			stepValue += Cosine(n.Embedding, embedding) * n.Valence
		}
		stepValue /= float64(len(neighbors))
		total += discount * stepValue
		discount *= planDiscount
	}
	return total
}

// Best returns the index of the highest-value candidate, or -1 when
// there are none.
func (p *Planner) Best(candidates [][]float64) int {
	rollouts := p.Evaluate(candidates)
	best := -1
	bestVal := 0.0
	for _, r := range rollouts {
		if best == -1 || r.Value > bestVal {
			best, bestVal = r.Candidate, r.Value
		}
	}
	return best
}
