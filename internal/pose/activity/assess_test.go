package activity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/scoring"
)

const (
	repStart = int64(0)
	repEnd   = int64(2 * time.Second)
)

// halfSine builds a channel series rising to peak and back over the
// rep interval.
func halfSine(ch pose.ChannelID, peak float64, n int) []pose.AngleSample {
	out := make([]pose.AngleSample, n)
	for i := range out {
		phase := float64(i) / float64(n-1)
		out[i] = pose.AngleSample{
			Channel:     ch,
			Value:       peak * math.Sin(math.Pi*phase),
			TSUnixNanos: repStart + int64(float64(repEnd-repStart)*phase),
		}
	}
	return out
}

func kp(x, y float64) pose.Keypoint { return pose.Keypoint{X: x, Y: y, Confidence: 0.9} }

// frameAt builds a snapshot with hips a fixed 0.1 apart plus extras.
func frameAt(ts int64, hipY float64, extras map[pose.JointName]pose.Keypoint) *pose.KeypointFrame {
	kps := map[pose.JointName]pose.Keypoint{
		pose.JointLeftHip:  kp(0.45, hipY),
		pose.JointRightHip: kp(0.55, hipY),
	}
	for name, p := range extras {
		kps[name] = p
	}
	return &pose.KeypointFrame{TSUnixNanos: ts, Keypoints: kps}
}

func mustTemplate(t *testing.T, id string) *Template {
	t.Helper()
	tpl, ok := BuiltIn().Get(id)
	require.True(t, ok)
	return tpl
}

func TestAssessSquat(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "squat")
	rules := scoring.DefaultRules()
	series := map[pose.ChannelID][]pose.AngleSample{
		"knee_L_flex": halfSine("knee_L_flex", 100, 30),
		"knee_R_flex": halfSine("knee_R_flex", 98, 30),
		"hip_L_flex":  halfSine("hip_L_flex", 60, 30),
		"hip_R_flex":  halfSine("hip_R_flex", 58, 30),
		"ankle_L_pf":  halfSine("ankle_L_pf", 20, 30),
		"ankle_R_pf":  halfSine("ankle_R_pf", 19, 30),
	}
	dropFrames := []*pose.KeypointFrame{
		frameAt(0, 0.50, nil),
		frameAt(repEnd/2, 0.56, nil),
		frameAt(repEnd, 0.50, nil),
	}

	t.Run("good rep counted", func(t *testing.T) {
		t.Parallel()
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: dropFrames}, rules)
		assert.True(t, a.Counted)
		assert.Equal(t, "ok", a.Message)
		assert.Equal(t, pose.BandGreen, a.Bands["knee_L_flex"].Band)
		assert.Len(t, a.Bands, 6)
	})

	t.Run("no hip drop", func(t *testing.T) {
		t.Parallel()
		flat := []*pose.KeypointFrame{
			frameAt(0, 0.50, nil),
			frameAt(repEnd/2, 0.51, nil),
			frameAt(repEnd, 0.50, nil),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: flat}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "lower hips")
	})

	t.Run("shallow knees", func(t *testing.T) {
		t.Parallel()
		shallow := map[pose.ChannelID][]pose.AngleSample{
			"knee_L_flex": halfSine("knee_L_flex", 80, 30),
			"knee_R_flex": halfSine("knee_R_flex", 78, 30),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: shallow, Frames: dropFrames}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "bend knees deeper")
		assert.Equal(t, pose.BandRed, a.Bands["knee_L_flex"].Band)
	})
}

func TestAssessArmAbduction(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "arm_abduction")
	rules := scoring.DefaultRules()
	series := map[pose.ChannelID][]pose.AngleSample{
		"shoulder_L_abd": halfSine("shoulder_L_abd", 173, 30),
		"shoulder_R_abd": halfSine("shoulder_R_abd", 171, 30),
	}
	wrists := func(lx, rx float64) map[pose.JointName]pose.Keypoint {
		return map[pose.JointName]pose.Keypoint{
			pose.JointLeftWrist:  kp(lx, 0.2),
			pose.JointRightWrist: kp(rx, 0.2),
		}
	}

	t.Run("crossing counted", func(t *testing.T) {
		t.Parallel()
		frames := []*pose.KeypointFrame{
			frameAt(0, 0.5, wrists(0.30, 0.70)),
			frameAt(repEnd/2, 0.5, wrists(0.55, 0.45)),
			frameAt(repEnd, 0.5, wrists(0.30, 0.70)),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: frames}, rules)
		assert.True(t, a.Counted)
	})

	t.Run("no crossing blocks", func(t *testing.T) {
		t.Parallel()
		frames := []*pose.KeypointFrame{
			frameAt(0, 0.5, wrists(0.30, 0.70)),
			frameAt(repEnd/2, 0.5, wrists(0.35, 0.65)),
			frameAt(repEnd, 0.5, wrists(0.30, 0.70)),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: frames}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "cross midline")
	})

	t.Run("unjudgeable crossing does not block", func(t *testing.T) {
		t.Parallel()
		frames := []*pose.KeypointFrame{frameAt(0, 0.5, nil)}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: frames}, rules)
		assert.True(t, a.Counted)
	})

	t.Run("weak range blocks", func(t *testing.T) {
		t.Parallel()
		weak := map[pose.ChannelID][]pose.AngleSample{
			"shoulder_L_abd": halfSine("shoulder_L_abd", 120, 30),
			"shoulder_R_abd": halfSine("shoulder_R_abd", 118, 30),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: weak}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "raise arms wider")
	})
}

func TestAssessForwardFlexion(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "forward_flexion")
	rules := scoring.DefaultRules()
	series := map[pose.ChannelID][]pose.AngleSample{
		"shoulder_L_flex": halfSine("shoulder_L_flex", 90, 30),
		"hip_L_flex":      halfSine("hip_L_flex", 30, 30),
	}
	reach := func(wristY pose.Keypoint) []*pose.KeypointFrame {
		return []*pose.KeypointFrame{
			frameAt(0, 0.5, map[pose.JointName]pose.Keypoint{
				pose.JointLeftWrist: kp(0.30, 0.40),
				pose.JointLeftAnkle: kp(0.33, 0.94),
			}),
			frameAt(repEnd/2, 0.5, map[pose.JointName]pose.Keypoint{
				pose.JointLeftWrist: wristY,
				pose.JointLeftAnkle: kp(0.33, 0.94),
			}),
		}
	}

	t.Run("reach counted", func(t *testing.T) {
		t.Parallel()
		// Wrist 0.05 from the ankle over a 0.1 hip width: 0.5 widths.
		frames := reach(kp(0.30, 0.90))
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: frames, Side: pose.SideLeft}, rules)
		assert.True(t, a.Counted)
		assert.Equal(t, pose.BandGreen, a.Bands["shoulder_L_flex"].Band)
	})

	t.Run("weak reach downgrades", func(t *testing.T) {
		t.Parallel()
		frames := reach(kp(0.30, 0.45))
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: frames, Side: pose.SideLeft}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "reach closer")
		assert.Equal(t, pose.BandAmber, a.Bands["shoulder_L_flex"].Band)
	})

	t.Run("unverifiable reach goes red", func(t *testing.T) {
		t.Parallel()
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Side: pose.SideLeft}, rules)
		assert.False(t, a.Counted)
		assert.Equal(t, pose.BandRed, a.Bands["shoulder_L_flex"].Band)
	})

	t.Run("locks to right side", func(t *testing.T) {
		t.Parallel()
		rSeries := map[pose.ChannelID][]pose.AngleSample{
			"shoulder_R_flex": halfSine("shoulder_R_flex", 90, 30),
		}
		frames := []*pose.KeypointFrame{
			frameAt(0, 0.5, map[pose.JointName]pose.Keypoint{
				pose.JointRightWrist: kp(0.33, 0.90),
				pose.JointRightAnkle: kp(0.33, 0.94),
			}),
			frameAt(repEnd/2, 0.5, map[pose.JointName]pose.Keypoint{
				pose.JointRightWrist: kp(0.33, 0.90),
				pose.JointRightAnkle: kp(0.33, 0.94),
			}),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: rSeries, Frames: frames, Side: pose.SideRight}, rules)
		assert.True(t, a.Counted)
		_, hasRight := a.Bands["shoulder_R_flex"]
		assert.True(t, hasRight)
	})
}

func TestAssessCalfRaise(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "calf_raise")
	rules := scoring.DefaultRules()
	series := map[pose.ChannelID][]pose.AngleSample{
		"ankle_L_pf": halfSine("ankle_L_pf", 25, 30),
	}
	ankleFrames := func(lowY, highY float64) []*pose.KeypointFrame {
		return []*pose.KeypointFrame{
			frameAt(0, 0.5, map[pose.JointName]pose.Keypoint{pose.JointLeftAnkle: kp(0.4, lowY)}),
			frameAt(repEnd/2, 0.5, map[pose.JointName]pose.Keypoint{pose.JointLeftAnkle: kp(0.4, highY)}),
			frameAt(repEnd, 0.5, map[pose.JointName]pose.Keypoint{pose.JointLeftAnkle: kp(0.4, lowY)}),
		}
	}

	t.Run("visible rise counted", func(t *testing.T) {
		t.Parallel()
		// 0.01 rise over a 0.1 hip width is 0.1 widths.
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: ankleFrames(0.90, 0.89), Side: pose.SideLeft}, rules)
		assert.True(t, a.Counted)
		assert.Equal(t, "ok", a.Message)
	})

	t.Run("flat ankle blocks", func(t *testing.T) {
		t.Parallel()
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Frames: ankleFrames(0.90, 0.899), Side: pose.SideLeft}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "rise onto toes")
		assert.Equal(t, pose.BandAmber, a.Bands["ankle_L_pf"].Band)
	})

	t.Run("no geometry goes red", func(t *testing.T) {
		t.Parallel()
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: series, Side: pose.SideLeft}, rules)
		assert.False(t, a.Counted)
		assert.Equal(t, pose.BandRed, a.Bands["ankle_L_pf"].Band)
	})
}

func TestAssessJumpingJack(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "jumping_jack")
	rules := scoring.DefaultRules()
	inPhase := map[pose.ChannelID][]pose.AngleSample{
		"shoulder_L_abd": halfSine("shoulder_L_abd", 175, 30),
		"shoulder_R_abd": halfSine("shoulder_R_abd", 173, 30),
		"hip_L_abd":      halfSine("hip_L_abd", 30, 30),
		"hip_R_abd":      halfSine("hip_R_abd", 29, 30),
	}

	t.Run("synchronized counted", func(t *testing.T) {
		t.Parallel()
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: inPhase}, rules)
		assert.True(t, a.Counted)
		assert.Len(t, a.Bands, 4)
	})

	t.Run("anti-phase rhythm blocks", func(t *testing.T) {
		t.Parallel()
		anti := map[pose.ChannelID][]pose.AngleSample{
			"shoulder_L_abd": halfSine("shoulder_L_abd", 175, 30),
			"shoulder_R_abd": halfSine("shoulder_R_abd", 173, 30),
		}
		// Legs peak at the window edges instead of the middle.
		for _, ch := range []pose.ChannelID{"hip_L_abd", "hip_R_abd"} {
			s := halfSine(ch, 30, 30)
			for i := range s {
				s[i].Value = 30 - s[i].Value
			}
			anti[ch] = s
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: anti}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "sync arms and legs")
	})

	t.Run("narrow legs block", func(t *testing.T) {
		t.Parallel()
		narrow := map[pose.ChannelID][]pose.AngleSample{
			"shoulder_L_abd": halfSine("shoulder_L_abd", 175, 30),
			"shoulder_R_abd": halfSine("shoulder_R_abd", 173, 30),
			"hip_L_abd":      halfSine("hip_L_abd", 10, 30),
			"hip_R_abd":      halfSine("hip_R_abd", 9, 30),
		}
		a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd, Series: narrow}, rules)
		assert.False(t, a.Counted)
		assert.Contains(t, a.Message, "spread legs wider")
	})
}

func TestAssessUnknownActivity(t *testing.T) {
	t.Parallel()

	tpl := &Template{ID: "custom", Label: "Custom", Reps: 3,
		PrimaryJoints: []pose.ChannelID{"knee_L_flex"},
		ScoreJoint:    "knee_L_flex"}
	a := Assess(tpl, RepWindow{StartUnixNanos: repStart, EndUnixNanos: repEnd}, scoring.DefaultRules())
	assert.True(t, a.Counted)
	assert.Equal(t, "ok", a.Message)
	assert.Empty(t, a.Bands)
}
