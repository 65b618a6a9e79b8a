// Package pose holds the shared domain types for the motion analysis
// pipeline: keypoint frames arriving from an inference backend, named
// angle channels derived from them, and the per-rep and per-set result
// records handed to storage and export.
package pose

import (
	"math"
)

//
// 0) Keypoints & frames
//

// JointName identifies a tracked body landmark, e.g. "left_shoulder".
type JointName string

// Standard keypoint names produced by the inference backends.
const (
	JointNose          JointName = "nose"
	JointLeftShoulder  JointName = "left_shoulder"
	JointRightShoulder JointName = "right_shoulder"
	JointLeftElbow     JointName = "left_elbow"
	JointRightElbow    JointName = "right_elbow"
	JointLeftWrist     JointName = "left_wrist"
	JointRightWrist    JointName = "right_wrist"
	JointLeftHip       JointName = "left_hip"
	JointRightHip      JointName = "right_hip"
	JointLeftKnee      JointName = "left_knee"
	JointRightKnee     JointName = "right_knee"
	JointLeftAnkle     JointName = "left_ankle"
	JointRightAnkle    JointName = "right_ankle"
)

// Keypoint is a single landmark observation in normalized image
// coordinates with detector confidence in [0,1].
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"conf"`
}

// KeypointFrame is one processed image frame worth of keypoints.
// Joints the backend could not see may be absent from the map entirely.
// Frames are immutable once produced; timestamps are monotonically
// increasing within a session.
type KeypointFrame struct {
	TSUnixNanos int64                  `json:"ts_unix_nanos"`
	Keypoints   map[JointName]Keypoint `json:"keypoints"`
}

// Joint returns the named keypoint if present with confidence at or
// above floor. The second return reports availability.
func (f *KeypointFrame) Joint(name JointName, floor float64) (Keypoint, bool) {
	kp, ok := f.Keypoints[name]
	if !ok || kp.Confidence < floor {
		return Keypoint{}, false
	}
	return kp, true
}

//
// 1) Sides
//

// Side identifies which body side a channel or selection refers to.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
	// SideIndeterminate means neither side met the confidence floor.
	SideIndeterminate Side = ""
	// SideAny is used in templates to mean "lock to whichever side is
	// visible"; it never appears on a live channel.
	SideAny Side = "ANY"
)

// Opposite returns the other body side. Indeterminate and ANY map to
// themselves.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	}
	return s
}

//
// 2) Channels & samples
//

// ChannelID names one continuously tracked scalar series, e.g.
// "knee_L_flex" or "ankle_R_y". The convention is joint_side_motion.
type ChannelID string

// Channel builds a ChannelID from its parts, e.g. Channel("knee",
// SideLeft, "flex") == "knee_L_flex".
func Channel(joint string, side Side, motion string) ChannelID {
	return ChannelID(joint + "_" + string(side) + "_" + motion)
}

// WithSide substitutes the side segment of an ANY channel, so
// "knee_ANY_flex".WithSide(SideLeft) == "knee_L_flex". IDs without an
// ANY segment are returned unchanged.
func (c ChannelID) WithSide(side Side) ChannelID {
	return ChannelID(replaceSegment(string(c), string(SideAny), string(side)))
}

// IsAny reports whether the channel has an unresolved side segment.
func (c ChannelID) IsAny() bool {
	return replaceSegment(string(c), string(SideAny), "*") != string(c)
}

// SideOf extracts the channel's side segment, SideIndeterminate for
// midline channels like "neck_flex".
func (c ChannelID) SideOf() Side {
	switch {
	case replaceSegment(string(c), string(SideLeft), "*") != string(c):
		return SideLeft
	case replaceSegment(string(c), string(SideRight), "*") != string(c):
		return SideRight
	case c.IsAny():
		return SideAny
	}
	return SideIndeterminate
}

// Mirror returns the opposite-side channel, e.g. "knee_L_flex" ->
// "knee_R_flex". Midline and ANY channels are returned unchanged.
func (c ChannelID) Mirror() ChannelID {
	switch c.SideOf() {
	case SideLeft:
		return ChannelID(replaceSegment(string(c), string(SideLeft), string(SideRight)))
	case SideRight:
		return ChannelID(replaceSegment(string(c), string(SideRight), string(SideLeft)))
	}
	return c
}

func replaceSegment(s, old, new string) string {
	// Segments are underscore-delimited; only whole segments match.
	out := make([]byte, 0, len(s))
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '_' {
			seg := s[start:i]
			if seg == old {
				seg = new
			}
			if start > 0 {
				out = append(out, '_')
			}
			out = append(out, seg...)
			start = i + 1
		}
	}
	return string(out)
}

// AngleSample is one observation on a channel. Value is in degrees for
// angle channels and normalized image units for position channels; NaN
// means "undefined for this frame" and must propagate without error.
type AngleSample struct {
	Channel     ChannelID `json:"channel"`
	Value       float64   `json:"value"`
	TSUnixNanos int64     `json:"ts_unix_nanos"`
}

// Defined reports whether the sample carries a usable value.
func (s AngleSample) Defined() bool { return !math.IsNaN(s.Value) }

// Undefined is the sentinel for "no value this frame".
func Undefined() float64 { return math.NaN() }
