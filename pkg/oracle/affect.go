package oracle

import "math"

// EMA retention factors. Valence persists longest, novelty fades
// fastest.
const (
	alphaValence = 0.9
	alphaArousal = 0.8
	alphaNovelty = 0.7

	valencePositiveThreshold = 0.3
	arousalHighThreshold     = 0.5
)

// Affect is a three-axis emotional state updated by exponential
// moving averages. It nudges the allow decision: strongly negative
// valence blocks regardless of other signals.
type Affect struct {
	valence float64
	arousal float64
	novelty float64
	updates int
}

// NewAffect starts at the neutral origin.
func NewAffect() *Affect { return &Affect{} }

// Update folds one outcome into the state. reward drives valence,
// |predictionError| drives arousal, contextNovelty drives novelty.
func (a *Affect) Update(reward, predictionError, contextNovelty float64) {
	a.valence = alphaValence*a.valence + (1-alphaValence)*reward
	a.arousal = alphaArousal*a.arousal + (1-alphaArousal)*math.Abs(predictionError)
	a.novelty = alphaNovelty*a.novelty + (1-alphaNovelty)*contextNovelty

	a.valence = clamp(a.valence, -1, 1)
	a.arousal = clamp(a.arousal, 0, 1)
	a.novelty = clamp(a.novelty, 0, 1)
	a.updates++
}

// Decay relaxes each axis toward neutral by its retention factor.
// Called between evaluations so affect does not stick indefinitely.
func (a *Affect) Decay() {
	a.valence *= alphaValence
	a.arousal *= alphaArousal
	a.novelty *= alphaNovelty
}

func (a *Affect) Valence() float64 { return a.valence }
func (a *Affect) Arousal() float64 { return a.arousal }
func (a *Affect) Novelty() float64 { return a.novelty }
func (a *Affect) Updates() int     { return a.updates }

// Intensity is the Euclidean distance from the neutral origin.
func (a *Affect) Intensity() float64 {
	return math.Sqrt(a.valence*a.valence + a.arousal*a.arousal + a.novelty*a.novelty)
}

// Emotion classifies the state on Russell's circumplex. Low
// intensity is neutral regardless of direction.
func (a *Affect) Emotion() string {
	if a.Intensity() < 0.3 {
		return "neutral"
	}
	pleasant := a.valence > valencePositiveThreshold
	highArousal := a.arousal > arousalHighThreshold
	switch {
	case pleasant && highArousal:
		return "excited/joyful"
	case pleasant:
		return "calm/content"
	case highArousal:
		return "anxious/distressed"
	default:
		return "sad/depressed"
	}
}
