// Package geometry computes joint angles and derived landmarks from 2D
// keypoint frames. All angle functions fail closed: degenerate or
// missing inputs produce NaN, never an error, because partial occlusion
// is a steady-state condition for the pipeline.
package geometry

import (
	"math"

	"github.com/strideworks/motion.report/internal/pose"
)

const (
	// Epsilon is the minimum vector magnitude for a defined angle.
	Epsilon = 1e-6
	// DefaultConfidenceFloor is the minimum keypoint confidence for a
	// landmark to participate in angle computation.
	DefaultConfidenceFloor = 0.3
)

// Point is a 2D position in normalized image coordinates (y grows
// downward, matching the inference backends).
type Point struct {
	X, Y float64
}

func vec(a, b Point) (float64, float64) { return a.X - b.X, a.Y - b.Y }

// Angle returns the angle in degrees at vertex j formed by the rays
// j->a and j->b, in [0, 180]. Returns NaN when either ray is shorter
// than Epsilon. Angle(a, j, b) == Angle(b, j, a).
func Angle(a, j, b Point) float64 {
	v1x, v1y := vec(a, j)
	v2x, v2y := vec(b, j)
	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 < Epsilon || n2 < Epsilon {
		return math.NaN()
	}
	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Midpoint returns the midpoint of a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// joint fetches a keypoint as a Point, honouring the confidence floor.
func joint(f *pose.KeypointFrame, name pose.JointName, floor float64) (Point, bool) {
	kp, ok := f.Joint(name, floor)
	if !ok {
		return Point{}, false
	}
	return Point{X: kp.X, Y: kp.Y}, true
}

// Derived holds higher-level landmarks computed from bilateral pairs.
// Fields are NaN-valued Points guarded by their ok flags.
type Derived struct {
	ShoulderCenter Point
	HipCenter      Point
	Neck           Point
	TorsoAxis      Point // direction vector shoulder centre -> hip centre

	HasShoulderCenter bool
	HasHipCenter      bool
	HasNeck           bool
	HasTorsoAxis      bool
}

// DerivePoints computes the derived landmarks available in the frame.
func DerivePoints(f *pose.KeypointFrame, floor float64) Derived {
	var d Derived
	ls, okLS := joint(f, pose.JointLeftShoulder, floor)
	rs, okRS := joint(f, pose.JointRightShoulder, floor)
	lh, okLH := joint(f, pose.JointLeftHip, floor)
	rh, okRH := joint(f, pose.JointRightHip, floor)
	nose, okN := joint(f, pose.JointNose, floor)

	if okLS && okRS {
		d.ShoulderCenter = Midpoint(ls, rs)
		d.HasShoulderCenter = true
	}
	if okLH && okRH {
		d.HipCenter = Midpoint(lh, rh)
		d.HasHipCenter = true
	}
	if d.HasShoulderCenter && okN {
		d.Neck = Midpoint(d.ShoulderCenter, nose)
		d.HasNeck = true
	}
	if d.HasShoulderCenter && d.HasHipCenter {
		d.TorsoAxis = Point{
			X: d.ShoulderCenter.X - d.HipCenter.X,
			Y: d.ShoulderCenter.Y - d.HipCenter.Y,
		}
		d.HasTorsoAxis = true
	}
	return d
}

// HipWidth returns the distance between the hip keypoints, used as a
// camera-distance-invariant scale. Returns NaN if either hip is missing.
func HipWidth(f *pose.KeypointFrame, floor float64) float64 {
	lh, okL := joint(f, pose.JointLeftHip, floor)
	rh, okR := joint(f, pose.JointRightHip, floor)
	if !okL || !okR {
		return math.NaN()
	}
	return math.Hypot(lh.X-rh.X, lh.Y-rh.Y)
}

// sideJoints maps a side to its landmark names.
func sideJoints(s pose.Side) (shoulder, elbow, wrist, hip, knee, ankle pose.JointName) {
	if s == pose.SideLeft {
		return pose.JointLeftShoulder, pose.JointLeftElbow, pose.JointLeftWrist,
			pose.JointLeftHip, pose.JointLeftKnee, pose.JointLeftAnkle
	}
	return pose.JointRightShoulder, pose.JointRightElbow, pose.JointRightWrist,
		pose.JointRightHip, pose.JointRightKnee, pose.JointRightAnkle
}

// ChannelNeckFlex is the single midline angle channel.
const ChannelNeckFlex = pose.ChannelID("neck_flex")

// AnglesOfInterest computes the standard tracked angle set for one
// frame. Channels whose inputs are unavailable map to NaN so consumers
// can distinguish "occluded" from "not tracked".
func AnglesOfInterest(f *pose.KeypointFrame, floor float64) map[pose.ChannelID]float64 {
	out := make(map[pose.ChannelID]float64, 13)
	d := DerivePoints(f, floor)

	for _, side := range []pose.Side{pose.SideLeft, pose.SideRight} {
		shoulderN, elbowN, wristN, hipN, kneeN, ankleN := sideJoints(side)
		shoulder, okS := joint(f, shoulderN, floor)
		elbow, okE := joint(f, elbowN, floor)
		wrist, okW := joint(f, wristN, floor)
		hip, okH := joint(f, hipN, floor)
		knee, okK := joint(f, kneeN, floor)
		ankle, okA := joint(f, ankleN, floor)

		// Elbow flexion: wrist-elbow-shoulder.
		v := math.NaN()
		if okW && okE && okS {
			v = Angle(wrist, elbow, shoulder)
		}
		out[pose.Channel("elbow", side, "flex")] = v

		// Knee flexion: ankle-knee-hip.
		v = math.NaN()
		if okA && okK && okH {
			v = Angle(ankle, knee, hip)
		}
		out[pose.Channel("knee", side, "flex")] = v

		// Hip flexion: knee-hip-shoulder centre.
		v = math.NaN()
		if okK && okH && d.HasShoulderCenter {
			v = Angle(knee, hip, d.ShoulderCenter)
		}
		out[pose.Channel("hip", side, "flex")] = v

		// Shoulder abduction: elbow-shoulder-hip (frontal plane).
		v = math.NaN()
		if okE && okS && okH {
			v = Angle(elbow, shoulder, hip)
		}
		out[pose.Channel("shoulder", side, "abd")] = v

		// Shoulder flexion: upper arm against the torso axis through
		// the shoulder (sagittal plane proxy).
		v = math.NaN()
		if okE && okS && d.HasTorsoAxis {
			ref := Point{X: shoulder.X + d.TorsoAxis.X, Y: shoulder.Y + d.TorsoAxis.Y}
			v = Angle(elbow, shoulder, ref)
		}
		out[pose.Channel("shoulder", side, "flex")] = v

		// Hip abduction: knee-hip against the downward vertical.
		v = math.NaN()
		if okK && okH {
			down := Point{X: hip.X, Y: hip.Y + 0.1}
			v = Angle(knee, hip, down)
		}
		out[pose.Channel("hip", side, "abd")] = v

		// Ankle plantarflexion proxy: shank against the downward
		// vertical at the ankle.
		v = math.NaN()
		if okK && okA {
			down := Point{X: ankle.X, Y: ankle.Y + 0.1}
			v = Angle(knee, ankle, down)
		}
		out[pose.Channel("ankle", side, "pf")] = v
	}

	// Neck flexion: torso axis against neck->nose.
	v := math.NaN()
	if d.HasTorsoAxis && d.HasNeck {
		if nose, ok := joint(f, pose.JointNose, floor); ok {
			ref := Point{X: d.Neck.X + d.TorsoAxis.X, Y: d.Neck.Y + d.TorsoAxis.Y}
			v = Angle(nose, d.Neck, ref)
		}
	}
	out[ChannelNeckFlex] = v

	return out
}
