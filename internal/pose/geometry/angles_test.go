package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/motion.report/internal/pose"
)

func TestAngle(t *testing.T) {
	t.Parallel()

	t.Run("right angle", func(t *testing.T) {
		t.Parallel()
		got := Angle(Point{1, 0}, Point{0, 0}, Point{0, 1})
		assert.InDelta(t, 90.0, got, 1e-9)
	})

	t.Run("straight line", func(t *testing.T) {
		t.Parallel()
		got := Angle(Point{-1, 0}, Point{0, 0}, Point{1, 0})
		assert.InDelta(t, 180.0, got, 1e-9)
	})

	t.Run("zero angle", func(t *testing.T) {
		t.Parallel()
		got := Angle(Point{1, 1}, Point{0, 0}, Point{2, 2})
		assert.InDelta(t, 0.0, got, 1e-9)
	})

	t.Run("symmetric in outer points", func(t *testing.T) {
		t.Parallel()
		a := Point{0.3, 0.9}
		j := Point{0.5, 0.5}
		b := Point{0.8, 0.2}
		assert.Equal(t, Angle(a, j, b), Angle(b, j, a))
	})

	t.Run("range is 0 to 180", func(t *testing.T) {
		t.Parallel()
		pts := []Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.25}, {-2, 3}}
		for _, a := range pts {
			for _, b := range pts {
				j := Point{10, 10}
				got := Angle(a, j, b)
				require.False(t, math.IsNaN(got))
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 180.0)
			}
		}
	})

	t.Run("degenerate vector yields NaN", func(t *testing.T) {
		t.Parallel()
		j := Point{0.5, 0.5}
		assert.True(t, math.IsNaN(Angle(j, j, Point{1, 1})))
		assert.True(t, math.IsNaN(Angle(Point{1, 1}, j, j)))
		near := Point{j.X + Epsilon/10, j.Y}
		assert.True(t, math.IsNaN(Angle(near, j, Point{1, 1})))
	})
}

func frameWith(kps map[pose.JointName]pose.Keypoint) *pose.KeypointFrame {
	return &pose.KeypointFrame{TSUnixNanos: 1, Keypoints: kps}
}

func TestAnglesOfInterest(t *testing.T) {
	t.Parallel()

	t.Run("knee flexion from full leg", func(t *testing.T) {
		t.Parallel()
		f := frameWith(map[pose.JointName]pose.Keypoint{
			pose.JointLeftHip:   {X: 0.5, Y: 0.5, Confidence: 0.9},
			pose.JointLeftKnee:  {X: 0.5, Y: 0.7, Confidence: 0.9},
			pose.JointLeftAnkle: {X: 0.7, Y: 0.7, Confidence: 0.9},
		})
		out := AnglesOfInterest(f, DefaultConfidenceFloor)
		assert.InDelta(t, 90.0, out[pose.Channel("knee", pose.SideLeft, "flex")], 1e-6)
	})

	t.Run("low confidence input yields NaN", func(t *testing.T) {
		t.Parallel()
		f := frameWith(map[pose.JointName]pose.Keypoint{
			pose.JointLeftHip:   {X: 0.5, Y: 0.5, Confidence: 0.9},
			pose.JointLeftKnee:  {X: 0.5, Y: 0.7, Confidence: 0.1}, // below floor
			pose.JointLeftAnkle: {X: 0.7, Y: 0.7, Confidence: 0.9},
		})
		out := AnglesOfInterest(f, DefaultConfidenceFloor)
		assert.True(t, math.IsNaN(out[pose.Channel("knee", pose.SideLeft, "flex")]))
	})

	t.Run("missing joints yield NaN not panic", func(t *testing.T) {
		t.Parallel()
		out := AnglesOfInterest(frameWith(nil), DefaultConfidenceFloor)
		require.NotEmpty(t, out)
		for ch, v := range out {
			assert.True(t, math.IsNaN(v), "channel %s should be NaN", ch)
		}
	})
}

func TestDerivePoints(t *testing.T) {
	t.Parallel()

	f := frameWith(map[pose.JointName]pose.Keypoint{
		pose.JointLeftShoulder:  {X: 0.4, Y: 0.3, Confidence: 0.9},
		pose.JointRightShoulder: {X: 0.6, Y: 0.3, Confidence: 0.9},
		pose.JointLeftHip:       {X: 0.4, Y: 0.6, Confidence: 0.9},
		pose.JointRightHip:      {X: 0.6, Y: 0.6, Confidence: 0.9},
		pose.JointNose:          {X: 0.5, Y: 0.1, Confidence: 0.9},
	})
	d := DerivePoints(f, DefaultConfidenceFloor)

	require.True(t, d.HasShoulderCenter)
	assert.InDelta(t, 0.5, d.ShoulderCenter.X, 1e-9)
	require.True(t, d.HasHipCenter)
	assert.InDelta(t, 0.6, d.HipCenter.Y, 1e-9)
	require.True(t, d.HasTorsoAxis)
	assert.InDelta(t, -0.3, d.TorsoAxis.Y, 1e-9)
	require.True(t, d.HasNeck)
}

func TestHipWidth(t *testing.T) {
	t.Parallel()

	f := frameWith(map[pose.JointName]pose.Keypoint{
		pose.JointLeftHip:  {X: 0.4, Y: 0.6, Confidence: 0.9},
		pose.JointRightHip: {X: 0.6, Y: 0.6, Confidence: 0.9},
	})
	assert.InDelta(t, 0.2, HipWidth(f, DefaultConfidenceFloor), 1e-9)
	assert.True(t, math.IsNaN(HipWidth(frameWith(nil), DefaultConfidenceFloor)))
}
