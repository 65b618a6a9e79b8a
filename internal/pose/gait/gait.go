// Package gait derives cadence, step time and left/right symmetry from
// periodic vertical-position minima of the ankle keypoints. Heel
// strikes are found with the same excursion detector used for rep
// counting, run inverted on the vertical-position channels.
package gait

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/repdetect"
)

// Params tunes the gait tracker.
type Params struct {
	// DipThreshold is the minimum vertical ankle dip, in hip-width
	// units, for a heel strike.
	DipThreshold float64
	// MinEventSeparation is the refractory interval between strikes on
	// the same side.
	MinEventSeparation time.Duration
	// MaxStrikeHistory bounds the per-side strike buffer.
	MaxStrikeHistory int
}

// DefaultParams returns tuning suitable for walking at camera frame
// rates.
func DefaultParams() Params {
	return Params{
		DipThreshold:       0.10,
		MinEventSeparation: 250 * time.Millisecond,
		MaxStrikeHistory:   64,
	}
}

// Metrics is the current gait summary. Zero-valued fields mean "not
// enough events yet"; they are never NaN.
type Metrics struct {
	CadenceSPM    float64 `json:"cadence_spm"`
	StepTimeLeft  float64 `json:"step_time_left_secs"`
	StepTimeRight float64 `json:"step_time_right_secs"`
	// SymmetryIndex is |left-right| step time over the larger of the
	// two, in [0,1]. Lower is better.
	SymmetryIndex float64 `json:"symmetry_index"`
	StrikesLeft   int     `json:"strikes_left"`
	StrikesRight  int     `json:"strikes_right"`
}

// Tracker consumes the smoothed ankle vertical-position stream. Owned
// by the analysis stage; not safe for concurrent use.
type Tracker struct {
	params Params

	left  *repdetect.Detector
	right *repdetect.Detector

	hipWidths []float64 // rolling sample for the normalization median
	hwHead    int

	strikesLeft  []int64
	strikesRight []int64
	totalLeft    int
	totalRight   int
}

const hipWidthHistory = 300

// NewTracker creates a gait tracker.
func NewTracker(params Params) (*Tracker, error) {
	if params.DipThreshold <= 0 {
		return nil, fmt.Errorf("dip_threshold must be positive, got %v", params.DipThreshold)
	}
	if params.MaxStrikeHistory < 2 {
		params.MaxStrikeHistory = 64
	}
	dp := repdetect.DefaultParams()
	dp.MinPeakHeight = params.DipThreshold
	dp.BaselineBand = params.DipThreshold * 1.2
	dp.MinPeakDistance = params.MinEventSeparation
	dp.Invert = true

	left, err := repdetect.NewDetector(pose.ChannelID("ankle_L_y"), dp)
	if err != nil {
		return nil, err
	}
	right, err := repdetect.NewDetector(pose.ChannelID("ankle_R_y"), dp)
	if err != nil {
		return nil, err
	}
	return &Tracker{params: params, left: left, right: right}, nil
}

// Update feeds one frame's ankle vertical positions (normalized image
// units, NaN when occluded) and the measured hip width. Timestamps
// must be strictly monotonic.
func (t *Tracker) Update(tsUnixNanos int64, leftY, rightY, hipWidth float64) error {
	if !math.IsNaN(hipWidth) && hipWidth > 1e-6 {
		if len(t.hipWidths) < hipWidthHistory {
			t.hipWidths = append(t.hipWidths, hipWidth)
		} else {
			t.hipWidths[t.hwHead] = hipWidth
			t.hwHead = (t.hwHead + 1) % hipWidthHistory
		}
	}
	scale := t.medianHipWidth()

	if ev, err := t.left.Update(norm(leftY, scale), tsUnixNanos); err != nil {
		return fmt.Errorf("gait left ankle: %w", err)
	} else if ev != nil {
		t.strikesLeft = appendBounded(t.strikesLeft, ev.PeakUnixNanos, t.params.MaxStrikeHistory)
		t.totalLeft++
	}
	if ev, err := t.right.Update(norm(rightY, scale), tsUnixNanos); err != nil {
		return fmt.Errorf("gait right ankle: %w", err)
	} else if ev != nil {
		t.strikesRight = appendBounded(t.strikesRight, ev.PeakUnixNanos, t.params.MaxStrikeHistory)
		t.totalRight++
	}
	return nil
}

func norm(y, scale float64) float64 {
	if math.IsNaN(y) {
		return math.NaN()
	}
	return y / scale
}

// medianHipWidth returns the rolling median, or 1 before any
// observation (raw image units).
func (t *Tracker) medianHipWidth() float64 {
	if len(t.hipWidths) == 0 {
		return 1
	}
	sorted := make([]float64, len(t.hipWidths))
	copy(sorted, t.hipWidths)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func appendBounded(xs []int64, v int64, max int) []int64 {
	xs = append(xs, v)
	if len(xs) > max {
		xs = xs[len(xs)-max:]
	}
	return xs
}

func lastStepTime(strikes []int64) float64 {
	n := len(strikes)
	if n < 2 {
		return 0
	}
	return float64(strikes[n-1]-strikes[n-2]) / float64(time.Second)
}

// Metrics computes the current gait summary.
func (t *Tracker) Metrics() Metrics {
	m := Metrics{
		StepTimeLeft:  lastStepTime(t.strikesLeft),
		StepTimeRight: lastStepTime(t.strikesRight),
		StrikesLeft:   t.totalLeft,
		StrikesRight:  t.totalRight,
	}

	var steps []float64
	if m.StepTimeLeft > 0 {
		steps = append(steps, m.StepTimeLeft)
	}
	if m.StepTimeRight > 0 {
		steps = append(steps, m.StepTimeRight)
	}
	if len(steps) > 0 {
		var sum float64
		for _, s := range steps {
			sum += s
		}
		m.CadenceSPM = 60 / (sum / float64(len(steps)))
	}

	if m.StepTimeLeft > 0 && m.StepTimeRight > 0 {
		longer := math.Max(m.StepTimeLeft, m.StepTimeRight)
		m.SymmetryIndex = math.Abs(m.StepTimeLeft-m.StepTimeRight) / longer
	}
	return m
}
