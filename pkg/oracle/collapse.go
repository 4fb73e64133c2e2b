package oracle

import (
	"math"
	"math/rand"
)

// Collapse temperature bounds. Lower is harder (near one-hot).
const (
	tauMin     = 0.1
	tauMax     = 2.0
	tauDefault = 0.5
)

// CollapseResult describes one winner-take-all cycle.
type CollapseResult struct {
	Winner     int
	Collapsed  bool
	Entropy    float64
	Confidence float64
	Weights    []float64
}

// CollapseLoop reduces a probability distribution over working-memory
// slots to a single winner when the distribution is concentrated
// enough. It is a standalone faculty: useful for diagnostics and the
// cognitive-cycle endpoint, not on the allow/block path.
type CollapseLoop struct {
	dims      int
	tau       float64
	cycles    int
	collapses int
	rng       *rand.Rand
}

func NewCollapseLoop(dims int, rng *rand.Rand) *CollapseLoop {
	return &CollapseLoop{dims: dims, tau: tauDefault, rng: rng}
}

// SetDimensions resizes the loop for the next cycle.
func (c *CollapseLoop) SetDimensions(n int) { c.dims = n }

// SetTemperature clamps tau into [0.1, 2.0].
func (c *CollapseLoop) SetTemperature(tau float64) {
	c.tau = clamp(tau, tauMin, tauMax)
}

// Entropy returns the Shannon entropy of p in bits. Zero entries
// contribute nothing.
func Entropy(p []float64) float64 {
	var h float64
	for _, x := range p {
		if x > epsilon {
			h -= x * math.Log2(x)
		}
	}
	return h
}

// ShouldCollapse reports whether the distribution is concentrated
// enough to collapse: entropy below 80% of the uniform maximum.
func ShouldCollapse(p []float64) bool {
	n := len(p)
	if n <= 1 {
		return true
	}
	return Entropy(p) < 0.8*math.Log2(float64(n))
}

// ProcessCycle runs one cycle: if the distribution warrants collapse,
// sample Gumbel-softmax weights at the current temperature and take
// the argmax as the winner. Otherwise the state stays distributed.
func (c *CollapseLoop) ProcessCycle(p []float64) CollapseResult {
	c.cycles++
	res := CollapseResult{Entropy: Entropy(p), Winner: -1}

	if !ShouldCollapse(p) {
		res.Weights = append([]float64{}, p...)
		return res
	}

	weights := c.gumbelSoftmax(p)
	winner, best := 0, weights[0]
	for i, w := range weights {
		if w > best {
			winner, best = i, w
		}
	}

	c.collapses++
	res.Collapsed = true
	res.Winner = winner
	res.Confidence = best
	res.Weights = weights
	return res
}

// gumbelSoftmax perturbs log-probabilities with Gumbel noise and
// renormalizes through a temperature-scaled softmax.
func (c *CollapseLoop) gumbelSoftmax(p []float64) []float64 {
	logits := make([]float64, len(p))
	for i, x := range p {
		if x < epsilon {
			x = epsilon
		}
		g := -math.Log(-math.Log(c.rng.Float64() + epsilon))
		logits[i] = (math.Log(x) + g) / c.tau
	}

	// softmax with max-shift for stability
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// CollapseRate is the fraction of cycles that collapsed.
func (c *CollapseLoop) CollapseRate() float64 {
	if c.cycles == 0 {
		return 0
	}
	return float64(c.collapses) / float64(c.cycles)
}

// Cycles returns the number of processed cycles.
func (c *CollapseLoop) Cycles() int { return c.cycles }
