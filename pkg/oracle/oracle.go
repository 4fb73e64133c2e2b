// Package oracle implements the risk-scoring faculty consulted before
// any self-modification is written. It keeps a persistent cognitive
// state across evaluations: an affective core, short- and long-term
// memories, a capacity selector, a belief tracker, a crisis detector
// and a self-monitor. Evaluations mutate this state whether or not
// the change is ultimately admitted.
package oracle

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
)

const embeddingDims = 64

// Verdict is the oracle's full assessment of one proposed change.
type Verdict struct {
	Allow              bool    `json:"allow"`
	ExplanationQuality float64 `json:"explanation_quality"`
	EpistemicRisk      float64 `json:"epistemic_risk"`
	Valence            float64 `json:"valence"`
	Arousal            float64 `json:"arousal"`
	Novelty            float64 `json:"novelty"`
	SelfAwareness      float64 `json:"self_awareness"`
	WorkingMemoryDim   int     `json:"working_memory_dimension"`
	Rationale          string  `json:"rationale"`
	Phenomenology      string  `json:"phenomenology"`
}

// Status is a point-in-time view of the oracle's internals for the
// health endpoint.
type Status struct {
	Evaluations    int             `json:"evaluations"`
	Emotion        string          `json:"emotion"`
	Intensity      float64         `json:"intensity"`
	InCrisis       bool            `json:"in_crisis"`
	Crises         int             `json:"crises"`
	BufferLen      int             `json:"buffer_len"`
	BufferDups     int             `json:"buffer_duplicates"`
	Episodes       int             `json:"episodes"`
	Chunks         int             `json:"chunks"`
	ChunkBoost     float64         `json:"chunk_boost"`
	SelfAwareness  float64         `json:"self_awareness"`
	Phenomenal     PhenomenalState `json:"phenomenal"`
	SallyAnnePass  bool            `json:"sally_anne_pass"`
	CapacityShares []float64       `json:"capacity_shares"`
}

// Oracle owns the cognitive stack. Safe for concurrent use; one
// evaluation runs at a time.
type Oracle struct {
	mu       sync.Mutex
	affect   *Affect
	capacity *CapacitySelector
	buffer   *ShortTermBuffer
	memory   *EpisodicStore
	beliefs  *BeliefTracker
	detector *CrisisDetector
	monitor  *Monitor
	chunker  *Chunker
	planner  *Planner

	evaluations int
}

// New builds an oracle with a time-seeded RNG.
func New() *Oracle {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand builds an oracle over a caller-controlled RNG, used by
// tests that need reproducible exploration.
func NewWithRand(rng *rand.Rand) *Oracle {
	memory := NewEpisodicStore()
	return &Oracle{
		affect:   NewAffect(),
		capacity: NewCapacitySelector(rng),
		buffer:   NewShortTermBuffer(),
		memory:   memory,
		beliefs:  NewBeliefTracker(),
		detector: NewCrisisDetector(),
		monitor:  NewMonitor(),
		chunker:  NewChunker(),
		planner:  NewPlanner(memory),
	}
}

// Evaluate scores one proposed change and updates the cognitive
// state. State mutations are not rolled back when the verdict is a
// block: a blocked change is still an experience.
func (o *Oracle) Evaluate(fp *fingerprint.Fingerprint, explanation string) *Verdict {
	o.mu.Lock()
	defer o.mu.Unlock()

	emb := changeEmbedding(fp)
	novel := !o.buffer.ContainsSimilar(emb, duplicateThreshold)

	quality := explanationQuality(explanation)
	risk := epistemicRisk(fp, explanation)

	reward := -0.3
	if quality > 0.7 {
		reward = 0.5
	}
	surprise := 0.2
	if novel {
		surprise = 0.8
	}
	o.affect.Update(reward, surprise, surprise)

	crisis := o.detector.Update(risk)
	taskComplexity := 0.5 + risk*0.5
	var dim int
	if crisis {
		o.capacity.Force(maxCapacityLevel)
		dim = maxCapacityLevel
	} else {
		dim = o.capacity.Select(taskComplexity, 0.5, defaultEpsilon)
	}

	o.monitor.Observe(Observation{
		Entropy:  0.5,
		Capacity: dim,
		Valence:  o.affect.Valence(),
		Arousal:  o.affect.Arousal(),
		Crisis:   crisis,
	})

	v := &Verdict{
		ExplanationQuality: quality,
		EpistemicRisk:      risk,
		Valence:            o.affect.Valence(),
		Arousal:            o.affect.Arousal(),
		Novelty:            o.affect.Novelty(),
		SelfAwareness:      o.monitor.SelfAwareness(),
		WorkingMemoryDim:   dim,
	}
	v.Allow = quality >= 0.5 && (!crisis || risk < 0.8) && v.Valence > -0.7
	v.Rationale = rationale(v, crisis)
	v.Phenomenology = o.monitor.Report()

	importance := (risk + math.Abs(v.Valence)) / 2.0
	if importance > 0.5 {
		o.memory.Record(emb, fp.Path+": "+fp.Intent, importance, v.Valence)
	}
	o.buffer.Push(emb, fp.Path, importance)
	o.chunker.Learn(emb, fp.Path)
	o.beliefs.Observe(authorOrUnknown(fp.Author), emb[:beliefDims], nil)

	// The selection policy learns from the explanation quality as its
	// accuracy signal: well-explained changes reinforce the allocated
	// capacity.
	if !crisis {
		o.capacity.Update(taskComplexity, 0.5, quality)
	}

	o.evaluations++
	return v
}

// Decay relaxes the affective state between evaluations.
func (o *Oracle) Decay() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.affect.Decay()
}

// Status snapshots the cognitive internals.
func (o *Oracle) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Evaluations:    o.evaluations,
		Emotion:        o.affect.Emotion(),
		Intensity:      o.affect.Intensity(),
		InCrisis:       o.detector.InCrisis(),
		Crises:         o.detector.Crises(),
		BufferLen:      o.buffer.Len(),
		BufferDups:     o.buffer.Duplicates(),
		Episodes:       o.memory.Len(),
		Chunks:         o.chunker.Size(),
		ChunkBoost:     o.chunker.Boost(),
		SelfAwareness:  o.monitor.SelfAwareness(),
		Phenomenal:     o.monitor.State(),
		SallyAnnePass:  SallyAnne(),
		CapacityShares: o.capacity.Distribution(),
	}
}

// changeEmbedding maps a fingerprint to a deterministic unit vector.
// Hash-based features, not learned: the same change always lands in
// the same place, which is what the habituation machinery needs.
func changeEmbedding(fp *fingerprint.Fingerprint) []float64 {
	h := fnv.New64a()
	h.Write([]byte(fp.Path))
	pathHash := h.Sum64()

	lengthRatio := float64(fp.NewSize) / math.Max(1, float64(fp.OldSize))
	intentComplexity := math.Log(1+float64(len(fp.Intent))) / 10.0

	emb := make([]float64, embeddingDims)
	for i := range emb {
		emb[i] = math.Sin(float64(pathHash+uint64(i)*1000)*0.01) * lengthRatio * intentComplexity
	}
	normalize(emb)
	return emb
}

var qualityKeywords = []string{
	"because", "reason", "purpose", "change", "improve",
	"fix", "bug", "feature", "update", "refactor",
}

// explanationQuality scores free text heuristically: a baseline for
// existing at all, a length bonus with diminishing returns, and a
// bonus per informative keyword.
func explanationQuality(explanation string) float64 {
	if explanation == "" {
		return 0
	}
	quality := 0.5
	quality += math.Min(1, float64(len(explanation))/200.0) * 0.2

	keywords := 0
	lower := strings.ToLower(explanation)
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			keywords++
		}
	}
	quality += math.Min(0.3, float64(keywords)*0.1)
	return clamp(quality, 0, 1)
}

// epistemicRisk weighs the size of the change, the absence of an
// explanation, and an unknown author.
func epistemicRisk(fp *fingerprint.Fingerprint, explanation string) float64 {
	sizeDiff := math.Abs(float64(fp.NewSize) - float64(fp.OldSize))
	sizeRatio := sizeDiff / math.Max(1, float64(fp.OldSize))
	sizeRisk := math.Min(1, sizeRatio/10.0)

	explanationRisk := 0.0
	if explanation == "" {
		explanationRisk = 1.0
	}
	authorRisk := 0.0
	if fp.Author == "" || fp.Author == "unknown" {
		authorRisk = 1.0
	}
	return sizeRisk*0.5 + explanationRisk*0.3 + authorRisk*0.2
}

func rationale(v *Verdict, crisis bool) string {
	var b strings.Builder
	b.WriteString("Cognitive assessment: ")
	fmt.Fprintf(&b, "explanation quality %.2f, epistemic risk %.2f, valence %.2f, arousal %.2f. ",
		v.ExplanationQuality, v.EpistemicRisk, v.Valence, v.Arousal)
	fmt.Fprintf(&b, "Working memory %dD allocated. ", v.WorkingMemoryDim)

	if v.Allow {
		b.WriteString("Recommendation: ALLOW.")
		return b.String()
	}
	b.WriteString("Recommendation: BLOCK.")
	if v.ExplanationQuality < 0.5 {
		b.WriteString(" Insufficient explanation.")
	}
	if crisis && v.EpistemicRisk >= 0.8 {
		b.WriteString(" Epistemic crisis with high risk.")
	}
	if v.Valence <= -0.7 {
		b.WriteString(" Strong negative affective response.")
	}
	return b.String()
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "unknown"
	}
	return author
}
