// Package activity defines the guided-activity catalog: which angle
// channels each exercise tracks, the target peak per channel, and the
// geometric validity rules applied to every detected repetition.
package activity

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/scoring"
)

// BandOverride replaces the default Green/Amber thresholds for one
// activity.
type BandOverride struct {
	GreenMaxDeg float64 `json:"green_max_deg"`
	AmberMaxDeg float64 `json:"amber_max_deg"`
}

// Template describes one guided activity. ScoreJoint may carry an ANY
// side segment; the session locks it to a concrete side when the limb
// first becomes visible.
type Template struct {
	ID            string                     `json:"id"`
	Label         string                     `json:"label"`
	Reps          int                        `json:"reps"`
	PrimaryJoints []pose.ChannelID           `json:"primary_joints"`
	ScoreJoint    pose.ChannelID             `json:"score_joint"`
	Targets       map[pose.ChannelID]float64 `json:"targets"`
	// Reference is the per-rep guide curve on a uniform phase grid,
	// in degrees. Optional.
	Reference []float64     `json:"reference,omitempty"`
	Bands     *BandOverride `json:"bands,omitempty"`
}

// Validate checks the template before a session may start.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template missing id")
	}
	if t.Label == "" {
		return fmt.Errorf("template %q missing label", t.ID)
	}
	if t.Reps <= 0 {
		return fmt.Errorf("template %q: reps must be positive, got %d", t.ID, t.Reps)
	}
	if len(t.PrimaryJoints) == 0 {
		return fmt.Errorf("template %q: no primary joints", t.ID)
	}
	if t.ScoreJoint == "" {
		return fmt.Errorf("template %q: no score joint", t.ID)
	}
	for ch, target := range t.Targets {
		if math.IsNaN(target) || target <= 0 {
			return fmt.Errorf("template %q: target for %s must be positive, got %v", t.ID, ch, target)
		}
	}
	if n := len(t.Reference); n > 0 && n < 4 {
		return fmt.Errorf("template %q: reference curve needs at least 4 points, got %d", t.ID, n)
	}
	if t.Bands != nil {
		if t.Bands.GreenMaxDeg <= 0 || t.Bands.AmberMaxDeg < t.Bands.GreenMaxDeg {
			return fmt.Errorf("template %q: band override must satisfy 0 < green <= amber", t.ID)
		}
	}
	return nil
}

// Target returns the target peak for a channel, falling back when the
// template does not name it.
func (t *Template) Target(ch pose.ChannelID, fallback float64) float64 {
	if v, ok := t.Targets[ch]; ok {
		return v
	}
	return fallback
}

// ScoreTarget resolves the score joint's target for the locked side.
func (t *Template) ScoreTarget(side pose.Side, fallback float64) float64 {
	return t.Target(t.ScoreJoint.WithSide(side), fallback)
}

// Rules applies the template's band override, if any, to the base
// scoring rules.
func (t *Template) Rules(base scoring.Rules) scoring.Rules {
	if t.Bands == nil {
		return base
	}
	out := base
	out.GreenMaxDeg = t.Bands.GreenMaxDeg
	out.AmberMaxDeg = t.Bands.AmberMaxDeg
	return out
}

// Catalog is the set of available activity templates keyed by ID.
type Catalog struct {
	templates map[string]*Template
}

// Get looks up a template by ID.
func (c *Catalog) Get(id string) (*Template, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// IDs returns the template IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Put validates and inserts a template, replacing any existing one
// with the same ID.
func (c *Catalog) Put(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.templates[t.ID] = t
	return nil
}

// LoadFile merges templates from a JSON array file over the catalog.
// The whole file is rejected if any template fails validation.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var loaded []*Template
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for _, t := range loaded {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	for _, t := range loaded {
		c.templates[t.ID] = t
	}
	return nil
}

// referenceCurve builds a half-sine per-rep guide peaking at target.
func referenceCurve(target float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		phase := float64(i) / float64(n-1)
		out[i] = target * math.Sin(math.Pi*phase)
	}
	return out
}

const referenceGridSize = 48

// BuiltIn returns the default activity catalog.
func BuiltIn() *Catalog {
	c := &Catalog{templates: make(map[string]*Template)}
	for _, t := range []*Template{
		{
			ID:    "squat",
			Label: "Squat",
			Reps:  5,
			PrimaryJoints: []pose.ChannelID{
				"knee_L_flex", "knee_R_flex",
				"hip_L_flex", "hip_R_flex",
				"ankle_L_pf", "ankle_R_pf",
			},
			ScoreJoint: "knee_ANY_flex",
			Targets: map[pose.ChannelID]float64{
				"knee_L_flex": 100, "knee_R_flex": 100,
				"hip_L_flex": 60, "hip_R_flex": 60,
				"ankle_L_pf": 20, "ankle_R_pf": 20,
			},
			Reference: referenceCurve(100, referenceGridSize),
		},
		{
			ID:            "arm_abduction",
			Label:         "Arm Abduction",
			Reps:          5,
			PrimaryJoints: []pose.ChannelID{"shoulder_L_abd", "shoulder_R_abd"},
			ScoreJoint:    "shoulder_ANY_abd",
			Targets: map[pose.ChannelID]float64{
				"shoulder_L_abd": 175, "shoulder_R_abd": 175,
			},
			Reference: referenceCurve(175, referenceGridSize),
		},
		{
			ID:            "forward_flexion",
			Label:         "Forward Flexion",
			Reps:          5,
			PrimaryJoints: []pose.ChannelID{"shoulder_ANY_flex", "hip_ANY_flex"},
			ScoreJoint:    "shoulder_ANY_flex",
			Targets: map[pose.ChannelID]float64{
				"shoulder_L_flex": 90, "shoulder_R_flex": 90,
				"hip_L_flex": 30, "hip_R_flex": 30,
			},
			Reference: referenceCurve(90, referenceGridSize),
		},
		{
			ID:            "calf_raise",
			Label:         "Calf Raises",
			Reps:          10,
			PrimaryJoints: []pose.ChannelID{"ankle_L_pf", "ankle_R_pf"},
			ScoreJoint:    "ankle_ANY_pf",
			Targets: map[pose.ChannelID]float64{
				"ankle_L_pf": 25, "ankle_R_pf": 25,
			},
			Reference: referenceCurve(25, referenceGridSize),
		},
		{
			ID:    "jumping_jack",
			Label: "Jumping Jacks",
			Reps:  10,
			PrimaryJoints: []pose.ChannelID{
				"shoulder_L_abd", "shoulder_R_abd",
				"hip_L_abd", "hip_R_abd",
			},
			ScoreJoint: "shoulder_ANY_abd",
			Targets: map[pose.ChannelID]float64{
				"shoulder_L_abd": 175, "shoulder_R_abd": 175,
				"hip_L_abd": 30, "hip_R_abd": 30,
			},
			Reference: referenceCurve(175, referenceGridSize),
		},
	} {
		c.templates[t.ID] = t
	}
	return c
}
