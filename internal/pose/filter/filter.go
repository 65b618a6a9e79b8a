// Package filter provides per-channel temporal smoothing for angle and
// position series. Two policies are available: a fixed-decay
// exponential moving average, and an adaptive filter whose cutoff
// frequency opens with signal speed (low jitter at rest, low lag in
// motion).
//
// NaN inputs pass through as NaN and leave filter state untouched, so a
// momentary occlusion cannot corrupt the running estimate.
package filter

import (
	"math"
	"time"
)

// Smoother is a stateful per-channel filter.
type Smoother interface {
	// Update feeds the next raw value with its timestamp and returns
	// the smoothed value. NaN in, NaN out, state unchanged.
	Update(value float64, tsUnixNanos int64) float64
	// Reset clears all internal state.
	Reset()
}

//
// Exponential moving average
//

// DefaultEMAAlpha is the default blending weight for new samples.
const DefaultEMAAlpha = 0.25

// EMA is a fixed-decay exponential moving average.
type EMA struct {
	alpha  float64
	value  float64
	primed bool
}

// NewEMA creates an EMA smoother. Alpha outside (0,1] falls back to
// DefaultEMAAlpha.
func NewEMA(alpha float64) *EMA {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultEMAAlpha
	}
	return &EMA{alpha: alpha}
}

// Update implements Smoother.
func (e *EMA) Update(value float64, _ int64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	if !e.primed {
		e.value = value
		e.primed = true
		return value
	}
	e.value = e.alpha*value + (1-e.alpha)*e.value
	return e.value
}

// Reset implements Smoother.
func (e *EMA) Reset() {
	e.value = 0
	e.primed = false
}

//
// Adaptive (speed-dependent cutoff)
//

// AdaptiveParams tunes the adaptive smoother.
type AdaptiveParams struct {
	// MinCutoffHz is the cutoff frequency at rest. Lower means more
	// smoothing during near-static holds.
	MinCutoffHz float64
	// Beta scales how far the cutoff opens per unit of signal speed.
	Beta float64
	// DerivCutoffHz smooths the speed estimate itself.
	DerivCutoffHz float64
}

// DefaultAdaptiveParams returns tuning that suits joint-angle series at
// camera frame rates.
func DefaultAdaptiveParams() AdaptiveParams {
	return AdaptiveParams{
		MinCutoffHz:   1.5,
		Beta:          0.05,
		DerivCutoffHz: 1.0,
	}
}

// Adaptive is a speed-adaptive low-pass filter. The effective cutoff is
// MinCutoffHz + Beta*|smoothed velocity|, recomputed per sample from
// the actual inter-sample interval.
type Adaptive struct {
	params AdaptiveParams

	value     float64
	deriv     float64
	lastNanos int64
	primed    bool
}

// NewAdaptive creates an adaptive smoother. Zero-valued params fall
// back to DefaultAdaptiveParams fields.
func NewAdaptive(params AdaptiveParams) *Adaptive {
	def := DefaultAdaptiveParams()
	if params.MinCutoffHz <= 0 {
		params.MinCutoffHz = def.MinCutoffHz
	}
	if params.Beta < 0 {
		params.Beta = def.Beta
	}
	if params.DerivCutoffHz <= 0 {
		params.DerivCutoffHz = def.DerivCutoffHz
	}
	return &Adaptive{params: params}
}

// smoothingFactor converts a cutoff frequency and sample interval into
// a low-pass blending weight.
func smoothingFactor(cutoffHz, dtSecs float64) float64 {
	r := 2 * math.Pi * cutoffHz * dtSecs
	return r / (r + 1)
}

// Update implements Smoother.
func (a *Adaptive) Update(value float64, tsUnixNanos int64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	if !a.primed {
		a.value = value
		a.deriv = 0
		a.lastNanos = tsUnixNanos
		a.primed = true
		return value
	}

	dt := float64(tsUnixNanos-a.lastNanos) / float64(time.Second)
	if dt <= 0 {
		// Repeated or non-advancing timestamp: hold the estimate.
		return a.value
	}
	a.lastNanos = tsUnixNanos

	rawDeriv := (value - a.value) / dt
	ad := smoothingFactor(a.params.DerivCutoffHz, dt)
	a.deriv = ad*rawDeriv + (1-ad)*a.deriv

	cutoff := a.params.MinCutoffHz + a.params.Beta*math.Abs(a.deriv)
	av := smoothingFactor(cutoff, dt)
	a.value = av*value + (1-av)*a.value
	return a.value
}

// Reset implements Smoother.
func (a *Adaptive) Reset() {
	a.value = 0
	a.deriv = 0
	a.lastNanos = 0
	a.primed = false
}
