// Package scoring converts completed rep trajectories into banded
// compliance scores and set-level quality metrics. Everything here is
// a pure function of its inputs so scorecards are reproducible
// bit-for-bit given the same detection sequence.
package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/strideworks/motion.report/internal/pose"
)

// Rules are the configurable scoring parameters. Templates may
// override the band thresholds per joint; the weights apply per set.
type Rules struct {
	// GreenMaxDeg is the maximum deviation from target scored Green.
	GreenMaxDeg float64 `json:"green_max_deg"`
	// AmberMaxDeg is the maximum deviation scored Amber.
	AmberMaxDeg float64 `json:"amber_max_deg"`
	// MeanWeight and StabilityWeight blend the set's mean rep score
	// and form stability into the final percent.
	MeanWeight      float64 `json:"mean_weight"`
	StabilityWeight float64 `json:"stability_weight"`
	// SymmetryPenaltyDeg is the symmetry index above which the final
	// score takes the asymmetry penalty.
	SymmetryPenaltyDeg float64 `json:"symmetry_penalty_deg"`
	// SymmetryPenaltyFactor multiplies the final score when the
	// penalty applies.
	SymmetryPenaltyFactor float64 `json:"symmetry_penalty_factor"`
}

// DefaultRules returns the production defaults: Green within 5 deg,
// Amber within 10, final = 0.7*mean + 0.3*stability, 10% penalty past
// 15 deg of asymmetry.
func DefaultRules() Rules {
	return Rules{
		GreenMaxDeg:           5.0,
		AmberMaxDeg:           10.0,
		MeanWeight:            0.7,
		StabilityWeight:       0.3,
		SymmetryPenaltyDeg:    15.0,
		SymmetryPenaltyFactor: 0.9,
	}
}

// Validate fails fast on rule sets that cannot score.
func (r Rules) Validate() error {
	if r.GreenMaxDeg <= 0 || r.AmberMaxDeg <= 0 {
		return fmt.Errorf("band thresholds must be positive, got green=%v amber=%v",
			r.GreenMaxDeg, r.AmberMaxDeg)
	}
	if r.AmberMaxDeg < r.GreenMaxDeg {
		return fmt.Errorf("amber_max_deg %v must not be below green_max_deg %v",
			r.AmberMaxDeg, r.GreenMaxDeg)
	}
	if r.MeanWeight < 0 || r.StabilityWeight < 0 || r.MeanWeight+r.StabilityWeight == 0 {
		return fmt.Errorf("invalid final-score weights %v/%v", r.MeanWeight, r.StabilityWeight)
	}
	return nil
}

// ScoreBand grades a measured peak angle against its target. The
// numeric score decays continuously with deviation inside the Green
// and Amber bands (1.0 at zero deviation, 0.75 at the Green edge, 0.5
// at the Amber edge) and is 0 in Red; the label stays discrete. An
// undefined measurement is Red with score 0.
func ScoreBand(measured, target float64, r Rules) (float64, pose.Band) {
	if math.IsNaN(measured) || math.IsInf(measured, 0) {
		return 0, pose.BandRed
	}
	d := math.Abs(measured - target)
	if d > r.AmberMaxDeg {
		return 0, pose.BandRed
	}
	score := 1 - d/(2*r.AmberMaxDeg)
	if d <= r.GreenMaxDeg {
		return score, pose.BandGreen
	}
	return score, pose.BandAmber
}

// FormStability measures set consistency as 1 minus the coefficient of
// variation of the rep scores, clamped to [0,1]. Fewer than two reps
// or a zero mean give 0 (no evidence of stability).
func FormStability(repScores []float64) float64 {
	if len(repScores) < 2 {
		return 0
	}
	mean := stat.Mean(repScores, nil)
	if mean <= 0 {
		return 0
	}
	cv := stat.StdDev(repScores, nil) / mean
	return clamp01(1 - cv)
}

// SymmetryIndex is the absolute difference between the mean left-side
// and mean right-side peak angles across the set, in degrees. Lower is
// better. With no observations on either side the index is 0 (no
// measurable imbalance).
func SymmetryIndex(leftPeaks, rightPeaks []float64) float64 {
	left := definedOnly(leftPeaks)
	right := definedOnly(rightPeaks)
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	return math.Abs(stat.Mean(left, nil) - stat.Mean(right, nil))
}

// FinalPercent blends the set's mean rep score and form stability into
// a 0-100 score, applying the asymmetry penalty when the symmetry
// index exceeds the configured threshold. Rounded to one decimal.
// The result depends only on the aggregate, never on rep order.
func FinalPercent(repScores []float64, formStability, symmetryIndex float64, r Rules) float64 {
	var meanRep float64
	if len(repScores) > 0 {
		meanRep = stat.Mean(repScores, nil)
	}
	total := r.MeanWeight + r.StabilityWeight
	score := (r.MeanWeight*meanRep + r.StabilityWeight*formStability) / total
	if symmetryIndex > r.SymmetryPenaltyDeg {
		score *= r.SymmetryPenaltyFactor
	}
	return math.Round(clamp01(score)*1000) / 10
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func definedOnly(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
