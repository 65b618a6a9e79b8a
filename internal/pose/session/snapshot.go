package session

import (
	"sort"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/gait"
	"github.com/strideworks/motion.report/internal/pose/sideselect"
)

// Read-only snapshots for the HTTP layer. Each call copies under the
// engine lock so callers never observe a half-updated frame.

// LatestAngles returns the most recent smoothed value per channel.
// Undefined channels carry NaN.
func (e *Engine) LatestAngles() map[pose.ChannelID]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[pose.ChannelID]float64, len(e.channels))
	for ch, c := range e.channels {
		if s, ok := c.Latest(); ok {
			out[ch] = s.Value
		}
	}
	return out
}

// ChannelSamples returns a copy of one channel's live window.
func (e *Engine) ChannelSamples(ch pose.ChannelID) []pose.AngleSample {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.channels[ch]
	if !ok {
		return nil
	}
	return c.Samples()
}

// Channels lists the tracked channel IDs in sorted order.
func (e *Engine) Channels() []pose.ChannelID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]pose.ChannelID, 0, len(e.channels))
	for ch := range e.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sides reports the currently selected side per limb.
func (e *Engine) Sides() map[sideselect.Limb]pose.Side {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[sideselect.Limb]pose.Side, len(e.sides))
	for limb, side := range e.sides {
		out[limb] = side
	}
	return out
}

// FPS returns the smoothed measured frame rate.
func (e *Engine) FPS() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fps
}

// FramesSeen returns the total number of processed frames.
func (e *Engine) FramesSeen() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.framesSeen
}

// GaitMetrics returns the current gait summary.
func (e *Engine) GaitMetrics() gait.Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gait.Metrics()
}

// SessionStatus is the live view of the guided session.
type SessionStatus struct {
	SessionID   string         `json:"session_id"`
	ActivityID  string         `json:"activity_id"`
	SetIndex    int            `json:"set_index"`
	RepCount    int            `json:"rep_count"`
	CountedReps int            `json:"counted_reps"`
	TargetReps  int            `json:"target_reps"`
	ScoreCh     pose.ChannelID `json:"score_channel,omitempty"`
	LockedSide  pose.Side      `json:"locked_side,omitempty"`
	Poisoned    bool           `json:"poisoned,omitempty"`
}

// Status reports the guided session state, or false when none is
// active.
func (e *Engine) Status() (SessionStatus, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.sess
	if s == nil {
		return SessionStatus{}, false
	}
	return SessionStatus{
		SessionID:   s.id,
		ActivityID:  s.template.ID,
		SetIndex:    s.setIndex,
		RepCount:    len(s.reps),
		CountedReps: len(s.countedScores),
		TargetReps:  s.template.Reps,
		ScoreCh:     s.scoreCh,
		LockedSide:  s.lockedSide,
		Poisoned:    s.poisoned,
	}, true
}

// Scorecards returns the completed scorecards of the active session in
// set order.
func (e *Engine) Scorecards() []*pose.SessionScorecard {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess == nil {
		return nil
	}
	return append([]*pose.SessionScorecard(nil), e.sess.scorecards...)
}
