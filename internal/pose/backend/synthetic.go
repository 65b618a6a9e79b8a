package backend

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/timeutil"
)

// SyntheticSource generates synthetic keypoint frames for testing and
// demos: a standing skeleton performing half-sine arm-raise cycles
// with the left arm. Frame timestamps sit exactly on the frame-rate
// grid, so downstream peak detection sees the nominal peak angles.
type SyntheticSource struct {
	// Configuration
	FrameRate   float64       // frames per second
	BaseDeg     float64       // resting abduction angle
	PeakDeg     float64       // peak abduction angle per cycle
	CyclePeriod time.Duration // duration of one raise-and-lower
	RestPeriod  time.Duration // pause between cycles
	CycleCount  int           // cycles to emit; 0 means unlimited
	ConfJitter  float64       // uniform confidence noise amplitude
	Realtime    bool          // pace frames at FrameRate
	Clock       timeutil.Clock

	startNanos int64
	frame      int
	rng        *rand.Rand
}

// NewSyntheticSource creates a synthetic skeleton source with demo
// defaults: 30 fps, 10 degree rest, 95 degree peaks, 2s cycles.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		FrameRate:   30.0,
		BaseDeg:     10.0,
		PeakDeg:     95.0,
		CyclePeriod: 2 * time.Second,
		RestPeriod:  time.Second,
		ConfJitter:  0.02,
		Clock:       timeutil.RealClock{},
		startNanos:  time.Now().UnixNano(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next implements Source.
func (s *SyntheticSource) Next(ctx context.Context) (*pose.KeypointFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	elapsed := time.Duration(float64(s.frame) / s.FrameRate * 1e9)
	if s.CycleCount > 0 {
		total := time.Duration(s.CycleCount)*(s.CyclePeriod+s.RestPeriod) + s.RestPeriod
		if elapsed > total {
			return nil, ErrEndOfStream
		}
	}
	if s.Realtime && s.frame > 0 {
		s.Clock.Sleep(time.Duration(1e9 / s.FrameRate))
	}
	f := s.frameAt(elapsed)
	s.frame++
	return f, nil
}

// Close implements Source.
func (s *SyntheticSource) Close() error { return nil }

// AngleAt returns the nominal left-shoulder abduction angle at the
// given elapsed time, before any keypoint noise.
func (s *SyntheticSource) AngleAt(elapsed time.Duration) float64 {
	// Cycles start after one rest period and repeat every
	// CyclePeriod+RestPeriod.
	slot := s.CyclePeriod + s.RestPeriod
	t := elapsed - s.RestPeriod
	if t < 0 {
		return s.BaseDeg
	}
	phase := t % slot
	if phase >= s.CyclePeriod {
		return s.BaseDeg
	}
	frac := float64(phase) / float64(s.CyclePeriod)
	return s.BaseDeg + (s.PeakDeg-s.BaseDeg)*math.Sin(math.Pi*frac)
}

// frameAt builds the full skeleton with the left arm rotated theta
// degrees away from hanging straight down.
func (s *SyntheticSource) frameAt(elapsed time.Duration) *pose.KeypointFrame {
	theta := s.AngleAt(elapsed) * math.Pi / 180

	const (
		shoulderLX = 0.35
		shoulderRX = 0.45
		shoulderY  = 0.30
		upperArm   = 0.10
		foreArm    = 0.09
		hipY       = 0.60
		kneeY      = 0.75
		ankleY     = 0.90
	)

	// Left arm swings outward (negative x) from straight down.
	elbowLX := shoulderLX - upperArm*math.Sin(theta)
	elbowLY := shoulderY + upperArm*math.Cos(theta)
	wristLX := elbowLX - foreArm*math.Sin(theta)
	wristLY := elbowLY + foreArm*math.Cos(theta)

	kp := map[pose.JointName]pose.Keypoint{
		pose.JointNose:          {X: 0.40, Y: 0.20},
		pose.JointLeftShoulder:  {X: shoulderLX, Y: shoulderY},
		pose.JointRightShoulder: {X: shoulderRX, Y: shoulderY},
		pose.JointLeftElbow:     {X: elbowLX, Y: elbowLY},
		pose.JointLeftWrist:     {X: wristLX, Y: wristLY},
		pose.JointRightElbow:    {X: shoulderRX, Y: shoulderY + upperArm},
		pose.JointRightWrist:    {X: shoulderRX, Y: shoulderY + upperArm + foreArm},
		pose.JointLeftHip:       {X: shoulderLX, Y: hipY},
		pose.JointRightHip:      {X: shoulderRX, Y: hipY},
		pose.JointLeftKnee:      {X: shoulderLX, Y: kneeY},
		pose.JointRightKnee:     {X: shoulderRX, Y: kneeY},
		pose.JointLeftAnkle:     {X: shoulderLX, Y: ankleY},
		pose.JointRightAnkle:    {X: shoulderRX, Y: ankleY},
	}
	for name, p := range kp {
		p.Confidence = 0.95 - s.rng.Float64()*s.ConfJitter
		kp[name] = p
	}

	return &pose.KeypointFrame{
		TSUnixNanos: s.startNanos + elapsed.Nanoseconds(),
		Keypoints:   kp,
	}
}
