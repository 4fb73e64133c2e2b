package oracle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
)

const goodExplanation = "Refactor the parser because the previous fix left a bug in the update path and this change improves error reporting for the feature."

func testOracle() *Oracle {
	return NewWithRand(rand.New(rand.NewSource(11)))
}

func buildFP(path, oldContent, newContent string) *fingerprint.Fingerprint {
	return fingerprint.Build(path, oldContent, newContent, "tester", "maintenance")
}

func TestEvaluate(t *testing.T) {
	t.Run("well explained change allowed", func(t *testing.T) {
		o := testOracle()
		v := o.Evaluate(buildFP("src/a.go", "old\n", "new\n"), goodExplanation)
		assert.True(t, v.Allow)
		assert.GreaterOrEqual(t, v.ExplanationQuality, 0.5)
		assert.Contains(t, v.Rationale, "ALLOW")
	})

	t.Run("missing explanation blocked", func(t *testing.T) {
		o := testOracle()
		v := o.Evaluate(buildFP("src/a.go", "old\n", "new\n"), "")
		assert.False(t, v.Allow)
		assert.Equal(t, 0.0, v.ExplanationQuality)
		assert.Contains(t, v.Rationale, "BLOCK")
		assert.Contains(t, v.Rationale, "Insufficient explanation")
	})

	t.Run("verdict fields in range", func(t *testing.T) {
		o := testOracle()
		v := o.Evaluate(buildFP("src/a.go", "old\n", "new\n"), goodExplanation)
		assert.GreaterOrEqual(t, v.Valence, -1.0)
		assert.LessOrEqual(t, v.Valence, 1.0)
		assert.GreaterOrEqual(t, v.EpistemicRisk, 0.0)
		assert.LessOrEqual(t, v.EpistemicRisk, 1.0)
		assert.Contains(t, []int{4, 6, 9, 12, 15}, v.WorkingMemoryDim)
		assert.NotEmpty(t, v.Phenomenology)
	})

	t.Run("state survives a block", func(t *testing.T) {
		o := testOracle()
		o.Evaluate(buildFP("src/a.go", "old\n", "new\n"), "")
		st := o.Status()
		assert.Equal(t, 1, st.Evaluations)
		assert.Equal(t, 1, st.BufferLen)
	})
}

func TestHabituation(t *testing.T) {
	// The same change repeated loses novelty: the embedding lands in
	// the short-term buffer, later evaluations see it as familiar, and
	// the duplicate counter climbs while the affective novelty axis
	// falls below its first-exposure level.
	o := testOracle()
	fp := buildFP("src/same.go", "old\n", "new\n")

	first := o.Evaluate(fp, goodExplanation)
	var last *Verdict
	for i := 0; i < 5; i++ {
		last = o.Evaluate(fp, goodExplanation)
	}

	assert.Less(t, last.Novelty, first.Novelty)
	assert.Greater(t, o.Status().BufferDups, 0)
}

func TestCrisisForcesMaxCapacity(t *testing.T) {
	o := testOracle()

	// Warm the detector with a stable risk baseline: same small change,
	// known author, explanation present.
	for i := 0; i < 15; i++ {
		o.Evaluate(buildFP("src/stable.go", "aaaa\n", "aaab\n"), goodExplanation)
	}

	// A wildly expanding, unexplained, anonymous change spikes the
	// epistemic risk far outside the learned baseline.
	spike := fingerprint.Build("src/stable.go", "x\n", string(make([]byte, 4096)), "", "")
	v := o.Evaluate(spike, "")
	require.False(t, v.Allow)
	assert.Equal(t, 15, v.WorkingMemoryDim)
}

func TestStatus(t *testing.T) {
	o := testOracle()
	o.Evaluate(buildFP("src/a.go", "old\n", "new\n"), goodExplanation)
	st := o.Status()

	assert.Equal(t, 1, st.Evaluations)
	assert.True(t, st.SallyAnnePass)
	assert.Len(t, st.CapacityShares, 5)
	assert.GreaterOrEqual(t, st.SelfAwareness, 0.0)
	assert.LessOrEqual(t, st.SelfAwareness, 1.0)
	assert.NotEmpty(t, st.Emotion)
}

func TestChunker(t *testing.T) {
	c := NewChunker()

	t.Run("similar patterns merge", func(t *testing.T) {
		c.Learn(unitVec(0), "a")
		c.Learn(unitVec(0), "a")
		assert.Equal(t, 1, c.Size())
		assert.True(t, c.Recognize(unitVec(0)))
	})

	t.Run("distinct patterns accumulate and boost grows", func(t *testing.T) {
		for i := 1; i < 20; i++ {
			c.Learn(unitVec(i%embeddingDims), "p")
		}
		assert.Greater(t, c.Boost(), 1.0)
		assert.LessOrEqual(t, c.Boost(), chunkBoostMax)
	})
}

func TestPlanner(t *testing.T) {
	mem := NewEpisodicStore()
	mem.Record(unitVec(0), "good outcome", 0.9, 0.8)
	mem.Record(unitVec(1), "bad outcome", 0.9, -0.8)
	p := NewPlanner(mem)

	t.Run("prefers candidates echoing positive memories", func(t *testing.T) {
		best := p.Best([][]float64{unitVec(1), unitVec(0)})
		assert.Equal(t, 1, best)
	})

	t.Run("empty candidates", func(t *testing.T) {
		assert.Equal(t, -1, p.Best(nil))
	})
}
