// Package sideselect chooses which body side of a limb is currently
// more reliably visible. Selection is a pure function of the frame's
// confidences: it may flip between frames, and consumers re-route
// channels on a flip without resetting activity-level detector state.
package sideselect

import (
	"github.com/strideworks/motion.report/internal/pose"
)

// DefaultConfidenceFloor is the minimum mean confidence for a side to
// be selectable at all.
const DefaultConfidenceFloor = 0.3

// Limb names a bilateral keypoint group.
type Limb string

const (
	LimbArm  Limb = "arm"
	LimbLeg  Limb = "leg"
	LimbSide Limb = "trunk"
)

var limbJoints = map[Limb][2][]pose.JointName{
	LimbArm: {
		{pose.JointLeftShoulder, pose.JointLeftElbow, pose.JointLeftWrist},
		{pose.JointRightShoulder, pose.JointRightElbow, pose.JointRightWrist},
	},
	LimbLeg: {
		{pose.JointLeftHip, pose.JointLeftKnee, pose.JointLeftAnkle},
		{pose.JointRightHip, pose.JointRightKnee, pose.JointRightAnkle},
	},
	LimbSide: {
		{pose.JointLeftShoulder, pose.JointLeftHip},
		{pose.JointRightShoulder, pose.JointRightHip},
	},
}

// Selector scores limb visibility per frame. The zero value is not
// usable; construct with NewSelector.
type Selector struct {
	floor float64
}

// NewSelector creates a Selector with the given confidence floor. A
// non-positive floor falls back to DefaultConfidenceFloor.
func NewSelector(floor float64) *Selector {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Selector{floor: floor}
}

// meanConfidence averages the confidence of the named joints; absent
// joints count as zero confidence.
func meanConfidence(f *pose.KeypointFrame, names []pose.JointName) float64 {
	if len(names) == 0 {
		return 0
	}
	var sum float64
	for _, n := range names {
		if kp, ok := f.Keypoints[n]; ok {
			sum += kp.Confidence
		}
	}
	return sum / float64(len(names))
}

// Select returns the side of the limb with the higher mean keypoint
// confidence, or SideIndeterminate when both sides fall below the
// floor. Ties go to the left side for stability.
func (s *Selector) Select(f *pose.KeypointFrame, limb Limb) pose.Side {
	joints, ok := limbJoints[limb]
	if !ok || f == nil {
		return pose.SideIndeterminate
	}
	left := meanConfidence(f, joints[0])
	right := meanConfidence(f, joints[1])
	if left < s.floor && right < s.floor {
		return pose.SideIndeterminate
	}
	if right > left {
		return pose.SideRight
	}
	return pose.SideLeft
}

// Confidences reports the per-side mean confidences for a limb,
// exposed for the UI overlay boundary.
func (s *Selector) Confidences(f *pose.KeypointFrame, limb Limb) (left, right float64) {
	joints, ok := limbJoints[limb]
	if !ok || f == nil {
		return 0, 0
	}
	return meanConfidence(f, joints[0]), meanConfidence(f, joints[1])
}
