package oracle

import "math/rand"

// Working-memory capacity levels and the energy model behind their
// selection cost.
var capacityLevels = [...]int{4, 6, 9, 12, 15}

const (
	numCapacityLevels = len(capacityLevels)
	numContextBins    = 10

	// E(n) = eNeuron + betaEnergy*n^2/2, relative to E(4).
	eNeuron           = 5e-12
	betaEnergy        = 1.5e-11
	energyPenalty     = 0.1
	defaultEpsilon    = 0.1
	defaultLearnRate  = 0.1
	maxCapacityLevel  = 15
	baseCapacityLevel = 4
)

// Energy returns the metabolic cost model for dimension n in joules.
func Energy(n int) float64 {
	return eNeuron + betaEnergy*float64(n*n)/2.0
}

// RelativeEnergy normalizes Energy(n) against the base level.
func RelativeEnergy(n int) float64 {
	return Energy(n) / Energy(baseCapacityLevel)
}

// CapacitySelector learns which working-memory dimension to allocate
// for a given context via tabular ε-greedy Q-learning. Rows are
// capacity levels, columns are 10 context bins discretized from task
// complexity and cognitive load.
type CapacitySelector struct {
	q       [numCapacityLevels][numContextBins]float64
	visits  [numCapacityLevels]int
	current int
	epochs  int
	rng     *rand.Rand
}

// NewCapacitySelector seeds the Q-table with small ascending values
// so higher capacities start mildly preferred until experience says
// otherwise.
func NewCapacitySelector(rng *rand.Rand) *CapacitySelector {
	cs := &CapacitySelector{current: baseCapacityLevel, rng: rng}
	for i := 0; i < numCapacityLevels; i++ {
		for j := 0; j < numContextBins; j++ {
			cs.q[i][j] = 0.1 * float64(i+1)
		}
	}
	return cs
}

func contextBin(taskComplexity, cognitiveLoad float64) int {
	avg := (taskComplexity + cognitiveLoad) / 2.0
	bin := int(avg * 9.99)
	if bin > numContextBins-1 {
		bin = numContextBins - 1
	}
	if bin < 0 {
		bin = 0
	}
	return bin
}

func levelIndex(n int) int {
	for i, lvl := range capacityLevels {
		if lvl == n {
			return i
		}
	}
	return 0
}

// Select picks a dimension ε-greedily for the given context and
// records the visit. Extreme cognitive load short-circuits to a high
// but not maximal level.
func (cs *CapacitySelector) Select(taskComplexity, cognitiveLoad, eps float64) int {
	if cognitiveLoad > 0.9 {
		cs.current = 12
		cs.record()
		return cs.current
	}
	bin := contextBin(taskComplexity, cognitiveLoad)
	if cs.rng.Float64() < eps {
		cs.current = capacityLevels[cs.rng.Intn(numCapacityLevels)]
	} else {
		best, bestQ := 0, cs.q[0][bin]
		for i := 1; i < numCapacityLevels; i++ {
			if cs.q[i][bin] > bestQ {
				best, bestQ = i, cs.q[i][bin]
			}
		}
		cs.current = capacityLevels[best]
	}
	cs.record()
	return cs.current
}

func (cs *CapacitySelector) record() {
	cs.visits[levelIndex(cs.current)]++
	cs.epochs++
}

// Force pins the current dimension, bypassing the policy. Crisis
// handling forces the maximum level.
func (cs *CapacitySelector) Force(n int) {
	for _, lvl := range capacityLevels {
		if lvl == n {
			cs.current = n
			return
		}
	}
}

// Update applies the Q-learning rule for the most recent selection:
// Q ← Q + lr·(reward − Q), reward = accuracy − 0.1·E_relative(n).
func (cs *CapacitySelector) Update(taskComplexity, cognitiveLoad, accuracy float64) {
	reward := accuracy - energyPenalty*RelativeEnergy(cs.current)
	bin := contextBin(taskComplexity, cognitiveLoad)
	idx := levelIndex(cs.current)
	cs.q[idx][bin] += defaultLearnRate * (reward - cs.q[idx][bin])
}

// Current returns the last selected dimension.
func (cs *CapacitySelector) Current() int { return cs.current }

// Distribution reports the fraction of selections at each level, in
// level order. Uniform before any selection.
func (cs *CapacitySelector) Distribution() []float64 {
	dist := make([]float64, numCapacityLevels)
	if cs.epochs == 0 {
		for i := range dist {
			dist[i] = 1.0 / float64(numCapacityLevels)
		}
		return dist
	}
	total := 0
	for _, v := range cs.visits {
		total += v
	}
	if total == 0 {
		total = 1
	}
	for i, v := range cs.visits {
		dist[i] = float64(v) / float64(total)
	}
	return dist
}
