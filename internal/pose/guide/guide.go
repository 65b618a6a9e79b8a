// Package guide compares a live motion trajectory against a stored
// reference curve. Both series are resampled onto a common phase grid
// (rep duration varies run to run) before computing Pearson
// correlation and mean absolute error.
package guide

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/strideworks/motion.report/internal/pose"
)

// DefaultGridSize is the common resampling length.
const DefaultGridSize = 100

// MinLiveSamples is the minimum number of defined live samples for a
// meaningful comparison.
const MinLiveSamples = 4

// Result is the outcome of one curve comparison. When Indeterminate is
// set, Score, Correlation and MAE are zero-valued and must not be fed
// into a scorecard as measurements.
type Result struct {
	// Score is the headline match score: round(correlation*100, 2).
	Score float64 `json:"score"`
	// Correlation is the Pearson coefficient in [-1, 1].
	Correlation float64 `json:"correlation"`
	// MAE is the mean absolute error in the channel's units, retained
	// as a secondary diagnostic.
	MAE float64 `json:"mae"`
	// Indeterminate marks comparisons with no defined answer: too few
	// samples, or a zero-variance series.
	Indeterminate bool   `json:"indeterminate"`
	Reason        string `json:"reason,omitempty"`
}

func indeterminate(reason string) Result {
	return Result{Indeterminate: true, Reason: reason}
}

// Match compares a live trajectory against a reference curve sampled
// uniformly in phase. gridSize <= 1 falls back to DefaultGridSize.
func Match(live []pose.AngleSample, reference []float64, gridSize int) Result {
	if gridSize <= 1 {
		gridSize = DefaultGridSize
	}
	if len(reference) < 2 {
		return indeterminate("reference curve too short")
	}

	phases, values := definedPhase(live)
	if len(values) < MinLiveSamples {
		return indeterminate("too few defined live samples")
	}

	liveGrid := resample(phases, values, gridSize)
	refGrid := resample(uniformPhase(len(reference)), reference, gridSize)

	if isFlat(liveGrid) || isFlat(refGrid) {
		return indeterminate("zero-variance series")
	}

	corr := stat.Correlation(liveGrid, refGrid, nil)
	if math.IsNaN(corr) {
		return indeterminate("correlation undefined")
	}

	var mae float64
	for i := range liveGrid {
		mae += math.Abs(liveGrid[i] - refGrid[i])
	}
	mae /= float64(len(liveGrid))

	return Result{
		Score:       math.Round(corr*10000) / 100,
		Correlation: corr,
		MAE:         mae,
	}
}

// definedPhase converts live samples to (phase, value) pairs over the
// trajectory's own time span, dropping undefined samples.
func definedPhase(live []pose.AngleSample) ([]float64, []float64) {
	var defined []pose.AngleSample
	for _, s := range live {
		if s.Defined() {
			defined = append(defined, s)
		}
	}
	if len(defined) == 0 {
		return nil, nil
	}
	t0 := defined[0].TSUnixNanos
	t1 := defined[len(defined)-1].TSUnixNanos
	span := float64(t1 - t0)
	if span <= 0 {
		span = 1
	}
	phases := make([]float64, len(defined))
	values := make([]float64, len(defined))
	for i, s := range defined {
		phases[i] = float64(s.TSUnixNanos-t0) / span
		values[i] = s.Value
	}
	return phases, values
}

func uniformPhase(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / float64(n-1)
	}
	return out
}

// resample linearly interpolates (phases, values) onto a uniform grid
// of n points over [0, 1]. Phases must be non-decreasing.
func resample(phases, values []float64, n int) []float64 {
	out := make([]float64, n)
	j := 0
	for i := 0; i < n; i++ {
		p := float64(i) / float64(n-1)
		for j < len(phases)-1 && phases[j+1] < p {
			j++
		}
		switch {
		case p <= phases[0]:
			out[i] = values[0]
		case p >= phases[len(phases)-1]:
			out[i] = values[len(values)-1]
		default:
			p0, p1 := phases[j], phases[j+1]
			if p1 == p0 {
				out[i] = values[j]
				continue
			}
			frac := (p - p0) / (p1 - p0)
			out[i] = values[j] + frac*(values[j+1]-values[j])
		}
	}
	return out
}

// isFlat reports whether the series has (numerically) zero variance.
func isFlat(xs []float64) bool {
	if len(xs) == 0 {
		return true
	}
	min, max := xs[0], xs[0]
	for _, v := range xs {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return max-min < 1e-9
}
