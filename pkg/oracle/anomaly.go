package oracle

import "math"

// Crisis detection thresholds. Entry requires a 5-sigma excursion
// over a warmed-up window; exit needs the error to fall below half
// the entry threshold (hysteresis). The exit factor is a tunable, not
// a law: half the entry bar keeps the detector from flapping.
const (
	crisisWindow     = 100
	crisisWarmup     = 10
	crisisZThreshold = 5.0
	crisisExitFactor = 0.5
)

// CrisisDetector tracks a sliding window of error samples and flags
// statistical excursions as epistemic crises.
type CrisisDetector struct {
	window   []float64
	mean     float64
	stddev   float64
	inCrisis bool
	crises   int
	updates  int
	maxZ     float64
}

func NewCrisisDetector() *CrisisDetector { return &CrisisDetector{} }

// Update scores one error sample against the warmed-up window
// statistics, then folds it in. Scoring happens before the fold so an
// excursion cannot dilute the very baseline it is judged against.
// Reports whether this sample triggered a crisis; the detector stays
// latched until the z-score drops below the exit threshold.
func (d *CrisisDetector) Update(errSample float64) bool {
	warmed := len(d.window) >= crisisWarmup
	z := d.zScore(errSample)

	d.window = append(d.window, errSample)
	if len(d.window) > crisisWindow {
		d.window = d.window[1:]
	}
	d.recompute()
	d.updates++

	if z > d.maxZ {
		d.maxZ = z
	}

	if warmed && z >= crisisZThreshold {
		d.inCrisis = true
		d.crises++
		return true
	}
	if d.inCrisis && z < crisisZThreshold*crisisExitFactor {
		d.inCrisis = false
	}
	return false
}

func (d *CrisisDetector) recompute() {
	if len(d.window) == 0 {
		d.mean, d.stddev = 0, 0
		return
	}
	var sum float64
	for _, x := range d.window {
		sum += x
	}
	d.mean = sum / float64(len(d.window))

	var variance float64
	for _, x := range d.window {
		diff := x - d.mean
		variance += diff * diff
	}
	variance /= float64(len(d.window))
	d.stddev = math.Sqrt(variance)
}

// zScore measures x against the current window. A flat baseline has
// zero spread, so any real excursion from it counts as unbounded.
func (d *CrisisDetector) zScore(x float64) float64 {
	if d.stddev < epsilon {
		if math.Abs(x-d.mean) > epsilon && len(d.window) > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return math.Abs(x-d.mean) / d.stddev
}

// InCrisis reports the latched crisis state.
func (d *CrisisDetector) InCrisis() bool { return d.inCrisis }

// Crises returns the number of crisis entries observed.
func (d *CrisisDetector) Crises() int { return d.crises }

// Mean returns the running window mean.
func (d *CrisisDetector) Mean() float64 { return d.mean }

// StdDev returns the running window standard deviation.
func (d *CrisisDetector) StdDev() float64 { return d.stddev }
