package oracle

import (
	"fmt"
	"math"
)

const (
	monitorCapacity  = 1000
	selfSalienceBase = 0.7
)

// Observation is one snapshot of the oracle's own processing.
type Observation struct {
	Entropy  float64
	Capacity int
	Valence  float64
	Arousal  float64
	Crisis   bool
}

// PhenomenalState summarizes how processing currently "feels" to the
// monitor: derived entirely from observations, no extra inputs.
type PhenomenalState struct {
	Intensity    float64 `json:"intensity"`
	Clarity      float64 `json:"clarity"`
	Flow         float64 `json:"flow"`
	Control      float64 `json:"control"`
	Presence     float64 `json:"presence"`
	SelfSalience float64 `json:"self_salience"`
}

// Monitor observes the oracle's own processing and produces a
// self-awareness score plus a first-person textual report. Purely
// introspective; nothing here gates a change.
type Monitor struct {
	observations []Observation
}

func NewMonitor() *Monitor { return &Monitor{} }

// Observe appends a processing snapshot, keeping at most 1000.
func (m *Monitor) Observe(o Observation) {
	m.observations = append(m.observations, o)
	if len(m.observations) > monitorCapacity {
		m.observations = m.observations[1:]
	}
}

// SelfAwareness scores 0..1 from observation depth, entropy
// variability, and a constant self-salience floor.
func (m *Monitor) SelfAwareness() float64 {
	depth := math.Min(1, float64(len(m.observations))/20.0)
	variability := math.Min(1, math.Sqrt(m.entropyVariance()))
	return 0.3*depth + 0.3*variability + 0.4*selfSalienceBase
}

func (m *Monitor) entropyVariance() float64 {
	if len(m.observations) == 0 {
		return 0
	}
	var mean float64
	for _, o := range m.observations {
		mean += o.Entropy
	}
	mean /= float64(len(m.observations))

	var variance float64
	for _, o := range m.observations {
		d := o.Entropy - mean
		variance += d * d
	}
	return variance / float64(len(m.observations))
}

// State derives the current phenomenal state from the latest
// observations.
func (m *Monitor) State() PhenomenalState {
	st := PhenomenalState{SelfSalience: selfSalienceBase}
	if len(m.observations) == 0 {
		return st
	}
	last := m.observations[len(m.observations)-1]

	st.Intensity = clamp(last.Arousal+math.Abs(last.Valence), 0, 1)
	st.Clarity = clamp(1-last.Entropy/4.0, 0, 1)
	st.Flow = clamp(float64(last.Capacity)/15.0, 0, 1)
	if last.Crisis {
		st.Control = 0.2
	} else {
		st.Control = 0.8
	}
	st.Presence = clamp(float64(len(m.observations))/20.0, 0, 1)
	return st
}

// Report renders a first-person account of the current state.
func (m *Monitor) Report() string {
	st := m.State()
	aware := m.SelfAwareness()

	var feel string
	switch {
	case st.Control < 0.5:
		feel = "strained, attention forced wide"
	case st.Clarity > 0.7:
		feel = "clear and settled"
	default:
		feel = "diffuse but steady"
	}
	return fmt.Sprintf(
		"Processing feels %s. Intensity %.2f, clarity %.2f, flow %.2f, control %.2f, presence %.2f. Self-awareness %.0f%%.",
		feel, st.Intensity, st.Clarity, st.Flow, st.Control, st.Presence, aware*100)
}

// Observations returns the number of retained observations.
func (m *Monitor) Observations() int { return len(m.observations) }
