// Package config loads analysis tuning parameters from JSON. Fields
// are pointers so partial configs overlay cleanly on code defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/strideworks/motion.report/internal/pose/filter"
	"github.com/strideworks/motion.report/internal/pose/gait"
	"github.com/strideworks/motion.report/internal/pose/repdetect"
	"github.com/strideworks/motion.report/internal/pose/scoring"
	"github.com/strideworks/motion.report/internal/pose/session"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning configuration. The schema matches
// the values the session engine consumes at startup; every field is
// optional and falls back to the engine's own defaults.
type TuningConfig struct {
	// Geometry / intake
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`
	ChannelWindow   *string  `json:"channel_window,omitempty"` // duration string like "10s"
	QueueCapacity   *int     `json:"queue_capacity,omitempty"`

	// Smoothing
	Smoothing     *string  `json:"smoothing,omitempty"` // "ema" or "adaptive"
	EMAAlpha      *float64 `json:"ema_alpha,omitempty"`
	MinCutoffHz   *float64 `json:"min_cutoff_hz,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	DerivCutoffHz *float64 `json:"deriv_cutoff_hz,omitempty"`

	// Rep detection
	MinPeakHeight        *float64 `json:"min_peak_height_deg,omitempty"`
	MinPeakDistance      *string  `json:"min_peak_distance,omitempty"`
	Hysteresis           *float64 `json:"hysteresis_deg,omitempty"`
	ReversalHoldSamples  *int     `json:"reversal_hold_samples,omitempty"`
	ReturnFraction       *float64 `json:"return_fraction,omitempty"`
	BridgeGapLimit       *string  `json:"bridge_gap_limit,omitempty"`
	MaxExcursionDuration *string  `json:"max_excursion_duration,omitempty"`
	BaselineBand         *float64 `json:"baseline_band_deg,omitempty"`

	// Scoring
	GreenMaxDeg           *float64 `json:"green_max_deg,omitempty"`
	AmberMaxDeg           *float64 `json:"amber_max_deg,omitempty"`
	MeanWeight            *float64 `json:"mean_weight,omitempty"`
	StabilityWeight       *float64 `json:"stability_weight,omitempty"`
	SymmetryPenaltyDeg    *float64 `json:"symmetry_penalty_deg,omitempty"`
	SymmetryPenaltyFactor *float64 `json:"symmetry_penalty_factor,omitempty"`

	// Gait
	DipThreshold       *float64 `json:"dip_threshold,omitempty"`
	MinEventSeparation *string  `json:"min_event_separation,omitempty"`

	// Activity catalog overlay file, merged over the built-ins.
	ActivityFile *string `json:"activity_file,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file
// must have a .json extension and stay under 1MB. Fields omitted from
// the file keep the engine defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects values the engine cannot run with. Unset fields are
// always valid.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceFloor != nil && (*c.ConfidenceFloor < 0 || *c.ConfidenceFloor >= 1) {
		return fmt.Errorf("confidence_floor must be in [0,1), got %v", *c.ConfidenceFloor)
	}
	if c.Smoothing != nil {
		switch session.SmoothingPolicy(*c.Smoothing) {
		case session.SmoothEMA, session.SmoothAdaptive:
		default:
			return fmt.Errorf("smoothing must be %q or %q, got %q",
				session.SmoothEMA, session.SmoothAdaptive, *c.Smoothing)
		}
	}
	if c.EMAAlpha != nil && (*c.EMAAlpha <= 0 || *c.EMAAlpha > 1) {
		return fmt.Errorf("ema_alpha must be in (0,1], got %v", *c.EMAAlpha)
	}
	if c.MinPeakHeight != nil && *c.MinPeakHeight <= 0 {
		return fmt.Errorf("min_peak_height_deg must be positive, got %v", *c.MinPeakHeight)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be positive, got %d", *c.QueueCapacity)
	}
	if c.GreenMaxDeg != nil && *c.GreenMaxDeg <= 0 {
		return fmt.Errorf("green_max_deg must be positive, got %v", *c.GreenMaxDeg)
	}
	if c.AmberMaxDeg != nil && c.GreenMaxDeg != nil && *c.AmberMaxDeg <= *c.GreenMaxDeg {
		return fmt.Errorf("amber_max_deg (%v) must exceed green_max_deg (%v)", *c.AmberMaxDeg, *c.GreenMaxDeg)
	}
	if c.DipThreshold != nil && *c.DipThreshold <= 0 {
		return fmt.Errorf("dip_threshold must be positive, got %v", *c.DipThreshold)
	}
	for name, d := range map[string]*string{
		"channel_window":         c.ChannelWindow,
		"min_peak_distance":      c.MinPeakDistance,
		"bridge_gap_limit":       c.BridgeGapLimit,
		"max_excursion_duration": c.MaxExcursionDuration,
		"min_event_separation":   c.MinEventSeparation,
	} {
		if d == nil {
			continue
		}
		if _, err := time.ParseDuration(*d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// EngineOptions builds session engine options from the config,
// starting from the engine defaults and overlaying only the set
// fields.
func (c *TuningConfig) EngineOptions() session.Options {
	opts := session.Options{
		Detector: repdetect.DefaultParams(),
		Rules:    scoring.DefaultRules(),
		Gait:     gait.DefaultParams(),
		Adaptive: filter.DefaultAdaptiveParams(),
	}

	if c.ConfidenceFloor != nil {
		opts.ConfidenceFloor = *c.ConfidenceFloor
	}
	if c.ChannelWindow != nil {
		opts.ChannelWindow = mustDuration(*c.ChannelWindow)
	}
	if c.QueueCapacity != nil {
		opts.QueueCapacity = *c.QueueCapacity
	}

	if c.Smoothing != nil {
		opts.Smoothing = session.SmoothingPolicy(*c.Smoothing)
	}
	if c.EMAAlpha != nil {
		opts.EMAAlpha = *c.EMAAlpha
	}
	if c.MinCutoffHz != nil {
		opts.Adaptive.MinCutoffHz = *c.MinCutoffHz
	}
	if c.Beta != nil {
		opts.Adaptive.Beta = *c.Beta
	}
	if c.DerivCutoffHz != nil {
		opts.Adaptive.DerivCutoffHz = *c.DerivCutoffHz
	}

	if c.MinPeakHeight != nil {
		opts.Detector.MinPeakHeight = *c.MinPeakHeight
	}
	if c.MinPeakDistance != nil {
		opts.Detector.MinPeakDistance = mustDuration(*c.MinPeakDistance)
	}
	if c.Hysteresis != nil {
		opts.Detector.Hysteresis = *c.Hysteresis
	}
	if c.ReversalHoldSamples != nil {
		opts.Detector.ReversalHoldSamples = *c.ReversalHoldSamples
	}
	if c.ReturnFraction != nil {
		opts.Detector.ReturnFraction = *c.ReturnFraction
	}
	if c.BridgeGapLimit != nil {
		opts.Detector.BridgeGapLimit = mustDuration(*c.BridgeGapLimit)
	}
	if c.MaxExcursionDuration != nil {
		opts.Detector.MaxExcursionDuration = mustDuration(*c.MaxExcursionDuration)
	}
	if c.BaselineBand != nil {
		opts.Detector.BaselineBand = *c.BaselineBand
	}

	if c.GreenMaxDeg != nil {
		opts.Rules.GreenMaxDeg = *c.GreenMaxDeg
	}
	if c.AmberMaxDeg != nil {
		opts.Rules.AmberMaxDeg = *c.AmberMaxDeg
	}
	if c.MeanWeight != nil {
		opts.Rules.MeanWeight = *c.MeanWeight
	}
	if c.StabilityWeight != nil {
		opts.Rules.StabilityWeight = *c.StabilityWeight
	}
	if c.SymmetryPenaltyDeg != nil {
		opts.Rules.SymmetryPenaltyDeg = *c.SymmetryPenaltyDeg
	}
	if c.SymmetryPenaltyFactor != nil {
		opts.Rules.SymmetryPenaltyFactor = *c.SymmetryPenaltyFactor
	}

	if c.DipThreshold != nil {
		opts.Gait.DipThreshold = *c.DipThreshold
	}
	if c.MinEventSeparation != nil {
		opts.Gait.MinEventSeparation = mustDuration(*c.MinEventSeparation)
	}

	return opts
}

// GetActivityFile returns the catalog overlay path, empty when unset.
func (c *TuningConfig) GetActivityFile() string {
	if c.ActivityFile == nil {
		return ""
	}
	return *c.ActivityFile
}

// mustDuration parses a duration already vetted by Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q: %v", s, err))
	}
	return d
}
