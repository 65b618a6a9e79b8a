// Package session runs the per-frame analysis stage: keypoint frames
// in, live angle channels, rep results and set scorecards out. All of
// the geometry, smoothing, detection and scoring executes synchronously
// inside ProcessFrame; the only concurrency is the bounded frame queue
// in front of it and read-only snapshots for the HTTP layer.
package session

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/motion.report/internal/monitoring"
	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/activity"
	"github.com/strideworks/motion.report/internal/pose/filter"
	"github.com/strideworks/motion.report/internal/pose/gait"
	"github.com/strideworks/motion.report/internal/pose/geometry"
	"github.com/strideworks/motion.report/internal/pose/guide"
	"github.com/strideworks/motion.report/internal/pose/repdetect"
	"github.com/strideworks/motion.report/internal/pose/scoring"
	"github.com/strideworks/motion.report/internal/pose/sideselect"
)

// SmoothingPolicy selects the per-channel filter.
type SmoothingPolicy string

const (
	SmoothEMA      SmoothingPolicy = "ema"
	SmoothAdaptive SmoothingPolicy = "adaptive"
)

// Sink receives results at rep and set boundaries. Implementations run
// on the analysis goroutine and must not call back into the engine. A
// sink that additionally implements SessionClosed(sessionID string) is
// told when a session ends, so it can drop per-session state.
type Sink interface {
	RepCompleted(sessionID string, rep pose.RepResult)
	SetCompleted(scorecard *pose.SessionScorecard)
}

type nopSink struct{}

func (nopSink) RepCompleted(string, pose.RepResult) {}
func (nopSink) SetCompleted(*pose.SessionScorecard) {}

// Options configures an Engine. Zero-valued fields take the documented
// defaults.
type Options struct {
	ConfidenceFloor float64
	Smoothing       SmoothingPolicy
	EMAAlpha        float64
	Adaptive        filter.AdaptiveParams
	Detector        repdetect.Params
	Rules           scoring.Rules
	Gait            gait.Params
	ChannelWindow   time.Duration
	QueueCapacity   int
	GuideGrid       int
	Sink            Sink
}

func (o Options) withDefaults() Options {
	if o.ConfidenceFloor <= 0 {
		o.ConfidenceFloor = geometry.DefaultConfidenceFloor
	}
	if o.Smoothing == "" {
		o.Smoothing = SmoothAdaptive
	}
	// Overlay field-by-field so a caller setting one detector or
	// scoring knob keeps the defaults for the rest.
	dd := repdetect.DefaultParams()
	if o.Detector.MinPeakHeight == 0 {
		o.Detector.MinPeakHeight = dd.MinPeakHeight
	}
	if o.Detector.MinPeakDistance == 0 {
		o.Detector.MinPeakDistance = dd.MinPeakDistance
	}
	if o.Detector.ReversalHoldSamples == 0 {
		o.Detector.ReversalHoldSamples = dd.ReversalHoldSamples
	}
	if o.Detector.ReturnFraction == 0 {
		o.Detector.ReturnFraction = dd.ReturnFraction
	}
	if o.Detector.BridgeGapLimit == 0 {
		o.Detector.BridgeGapLimit = dd.BridgeGapLimit
	}
	if o.Detector.MaxExcursionDuration == 0 {
		o.Detector.MaxExcursionDuration = dd.MaxExcursionDuration
	}
	if o.Detector.BaselineBand == 0 {
		o.Detector.BaselineBand = dd.BaselineBand
	}
	dr := scoring.DefaultRules()
	if o.Rules.GreenMaxDeg == 0 {
		o.Rules.GreenMaxDeg = dr.GreenMaxDeg
	}
	if o.Rules.AmberMaxDeg == 0 {
		o.Rules.AmberMaxDeg = dr.AmberMaxDeg
	}
	if o.Rules.MeanWeight == 0 && o.Rules.StabilityWeight == 0 {
		o.Rules.MeanWeight = dr.MeanWeight
		o.Rules.StabilityWeight = dr.StabilityWeight
	}
	if o.Rules.SymmetryPenaltyDeg == 0 {
		o.Rules.SymmetryPenaltyDeg = dr.SymmetryPenaltyDeg
	}
	if o.Rules.SymmetryPenaltyFactor == 0 {
		o.Rules.SymmetryPenaltyFactor = dr.SymmetryPenaltyFactor
	}
	dg := gait.DefaultParams()
	if o.Gait.DipThreshold == 0 {
		o.Gait.DipThreshold = dg.DipThreshold
	}
	if o.Gait.MinEventSeparation == 0 {
		o.Gait.MinEventSeparation = dg.MinEventSeparation
	}
	if o.Gait.MaxStrikeHistory == 0 {
		o.Gait.MaxStrikeHistory = dg.MaxStrikeHistory
	}
	if o.ChannelWindow <= 0 {
		o.ChannelWindow = pose.DefaultChannelWindow
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 64
	}
	if o.GuideGrid <= 0 {
		o.GuideGrid = guide.DefaultGridSize
	}
	if o.Sink == nil {
		o.Sink = nopSink{}
	}
	return o
}

// Position channels derived from raw keypoints for gait and display.
var (
	ChannelAnkleLeftY  = pose.ChannelID("ankle_L_y")
	ChannelAnkleRightY = pose.ChannelID("ankle_R_y")
)

const fpsAlpha = 0.1

// Engine is the analysis stage. One engine tracks one subject; guided
// sessions run one at a time on top of the always-on freestyle stream.
type Engine struct {
	mu   sync.RWMutex
	opts Options

	selector  *sideselect.Selector
	smoothers map[pose.ChannelID]filter.Smoother
	channels  map[pose.ChannelID]*pose.AngleChannel
	frames    []*pose.KeypointFrame
	gait      *gait.Tracker

	sides         map[sideselect.Limb]pose.Side
	lastUnixNanos int64
	fps           float64
	framesSeen    int64

	queue   chan *pose.KeypointFrame
	dropped int64

	sess *state
}

// state is the per-guided-session mutable record.
type state struct {
	id         string
	template   *activity.Template
	lockedSide pose.Side
	arena      *repdetect.Arena
	scoreCh    pose.ChannelID

	setIndex       int
	setStartNanos  int64
	reps           []pose.RepResult
	countedScores  []float64
	leftPeaks      []float64
	rightPeaks     []float64
	guideScores    []float64
	scorecards     []*pose.SessionScorecard
	startUnixNanos int64

	poisoned  bool
	poisonErr error
}

// Summary aggregates a finished session.
type Summary struct {
	SessionID        string                   `json:"session_id"`
	ActivityID       string                   `json:"activity_id"`
	Scorecards       []*pose.SessionScorecard `json:"scorecards"`
	TotalReps        int                      `json:"total_reps"`
	CountedReps      int                      `json:"counted_reps"`
	MeanFinalPercent float64                  `json:"mean_final_percent"`
	StartUnixNanos   int64                    `json:"start_unix_nanos"`
	EndUnixNanos     int64                    `json:"end_unix_nanos"`
}

// NewEngine creates an analysis engine.
func NewEngine(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Detector.Validate(); err != nil {
		return nil, fmt.Errorf("detector params: %w", err)
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("scoring rules: %w", err)
	}
	gt, err := gait.NewTracker(opts.Gait)
	if err != nil {
		return nil, fmt.Errorf("gait params: %w", err)
	}
	return &Engine{
		opts:      opts,
		selector:  sideselect.NewSelector(opts.ConfidenceFloor),
		smoothers: make(map[pose.ChannelID]filter.Smoother),
		channels:  make(map[pose.ChannelID]*pose.AngleChannel),
		gait:      gt,
		sides:     make(map[sideselect.Limb]pose.Side),
		queue:     make(chan *pose.KeypointFrame, opts.QueueCapacity),
	}, nil
}

// StartSession begins a guided session for the template. The template
// is validated before any frame is processed; an invalid template
// blocks the session entirely.
func (e *Engine) StartSession(t *activity.Template) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	leftTarget := t.Target(t.ScoreJoint.WithSide(pose.SideLeft), math.NaN())
	rightTarget := t.Target(t.ScoreJoint.WithSide(pose.SideRight), math.NaN())
	if math.IsNaN(leftTarget) && math.IsNaN(rightTarget) {
		return "", fmt.Errorf("start session: template %q has no target for score joint %s", t.ID, t.ScoreJoint)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		return "", fmt.Errorf("start session: session %s already active", e.sess.id)
	}
	arena, err := repdetect.NewArena(e.opts.Detector)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	e.sess = &state{
		id:       uuid.New().String(),
		template: t,
		arena:    arena,
	}
	if !t.ScoreJoint.IsAny() {
		e.sess.scoreCh = t.ScoreJoint
		e.sess.lockedSide = t.ScoreJoint.SideOf()
	}
	monitoring.Logf("[session] started %s activity=%s reps=%d", e.sess.id, t.ID, t.Reps)
	return e.sess.id, nil
}

// ProcessFrame runs the full per-frame pipeline. Frames must arrive in
// strictly increasing timestamp order; a violation poisons the current
// guided session but leaves the engine usable for the next one.
func (e *Engine) ProcessFrame(f *pose.KeypointFrame) error {
	if f == nil {
		return fmt.Errorf("process frame: nil frame")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastUnixNanos != 0 && f.TSUnixNanos <= e.lastUnixNanos {
		err := fmt.Errorf("process frame: timestamp %d not after %d", f.TSUnixNanos, e.lastUnixNanos)
		if e.sess != nil {
			e.sess.poisoned = true
			e.sess.poisonErr = err
		}
		return err
	}
	if e.lastUnixNanos != 0 {
		dt := float64(f.TSUnixNanos-e.lastUnixNanos) / float64(time.Second)
		inst := 1 / dt
		if e.fps == 0 {
			e.fps = inst
		} else {
			e.fps = fpsAlpha*inst + (1-fpsAlpha)*e.fps
		}
	}
	e.lastUnixNanos = f.TSUnixNanos
	e.framesSeen++

	for _, limb := range []sideselect.Limb{sideselect.LimbArm, sideselect.LimbLeg, sideselect.LimbSide} {
		e.sides[limb] = e.selector.Select(f, limb)
	}

	values := geometry.AnglesOfInterest(f, e.opts.ConfidenceFloor)
	values[ChannelAnkleLeftY] = ankleY(f, pose.JointLeftAnkle, e.opts.ConfidenceFloor)
	values[ChannelAnkleRightY] = ankleY(f, pose.JointRightAnkle, e.opts.ConfidenceFloor)

	smoothed := make(map[pose.ChannelID]float64, len(values))
	for _, ch := range sortedChannels(values) {
		v := e.smoother(ch).Update(values[ch], f.TSUnixNanos)
		smoothed[ch] = v
		e.channel(ch).Append(pose.AngleSample{Channel: ch, Value: v, TSUnixNanos: f.TSUnixNanos})
	}

	e.frames = append(e.frames, f)
	e.evictFrames(f.TSUnixNanos)

	hw := geometry.HipWidth(f, e.opts.ConfidenceFloor)
	if err := e.gait.Update(f.TSUnixNanos, smoothed[ChannelAnkleLeftY], smoothed[ChannelAnkleRightY], hw); err != nil {
		// Engine-level ordering was already checked; treat as fatal.
		return fmt.Errorf("process frame: %w", err)
	}

	s := e.sess
	if s == nil || s.poisoned {
		return nil
	}
	if s.startUnixNanos == 0 {
		s.startUnixNanos = f.TSUnixNanos
		s.setStartNanos = f.TSUnixNanos
	}
	e.lockScoreChannel(s)
	if s.scoreCh == "" {
		return nil
	}

	ev, err := s.arena.Update(s.scoreCh, smoothed[s.scoreCh], f.TSUnixNanos)
	if err != nil {
		s.poisoned = true
		s.poisonErr = err
		return fmt.Errorf("process frame: %w", err)
	}
	if ev != nil {
		e.completeRep(s, ev)
	}
	return nil
}

// lockScoreChannel resolves an ANY score joint once its limb becomes
// determinate. The lock is sticky: later side switches re-route display
// channels but never reset the detector.
func (e *Engine) lockScoreChannel(s *state) {
	if s.scoreCh != "" {
		return
	}
	limb := limbOfChannel(s.template.ScoreJoint)
	side := e.sides[limb]
	if side != pose.SideLeft && side != pose.SideRight {
		return
	}
	s.lockedSide = side
	s.scoreCh = s.template.ScoreJoint.WithSide(side)
	monitoring.Logf("[session] %s locked %s to side %s", s.id, s.template.ScoreJoint, side)
}

// completeRep scores a detected excursion, applies the activity's
// validity rules and emits the result.
func (e *Engine) completeRep(s *state, ev *repdetect.RepEvent) {
	t := s.template
	rules := t.Rules(e.opts.Rules)
	// StartSession guarantees a target on at least one side, so a
	// one-sided template locked to the other side scores against the
	// declared side's target.
	target := t.Target(s.scoreCh, math.NaN())
	if math.IsNaN(target) {
		target = t.Target(s.scoreCh.Mirror(), math.NaN())
	}
	score, band := scoring.ScoreBand(ev.PeakValue, target, rules)

	mirrorPeak := e.peakInWindow(s.scoreCh.Mirror(), ev.StartUnixNanos, ev.EndUnixNanos)
	symDelta := 0.0
	if !math.IsNaN(mirrorPeak) {
		symDelta = math.Abs(ev.PeakValue - mirrorPeak)
	}

	assessment := activity.Assess(t, activity.RepWindow{
		StartUnixNanos: ev.StartUnixNanos,
		EndUnixNanos:   ev.EndUnixNanos,
		Series:         e.seriesInWindow(ev.StartUnixNanos, ev.EndUnixNanos),
		Frames:         e.framesInWindow(ev.StartUnixNanos, ev.EndUnixNanos),
		Side:           s.lockedSide,
	}, e.opts.Rules)

	rep := pose.RepResult{
		RepIndex:       len(s.reps) + 1,
		Channel:        string(s.scoreCh),
		PeakAngle:      ev.PeakValue,
		TargetAngle:    target,
		Score:          score,
		Band:           band,
		SymmetryDelta:  symDelta,
		Counted:        assessment.Counted,
		Message:        assessment.Message,
		StartUnixNanos: ev.StartUnixNanos,
		EndUnixNanos:   ev.EndUnixNanos,
	}
	s.reps = append(s.reps, rep)

	if rep.Counted {
		s.countedScores = append(s.countedScores, score)
		switch s.scoreCh.SideOf() {
		case pose.SideLeft:
			s.leftPeaks = append(s.leftPeaks, ev.PeakValue)
			if !math.IsNaN(mirrorPeak) {
				s.rightPeaks = append(s.rightPeaks, mirrorPeak)
			}
		case pose.SideRight:
			s.rightPeaks = append(s.rightPeaks, ev.PeakValue)
			if !math.IsNaN(mirrorPeak) {
				s.leftPeaks = append(s.leftPeaks, mirrorPeak)
			}
		}
		if len(t.Reference) > 0 {
			if m := guide.Match(ev.Trajectory, t.Reference, e.opts.GuideGrid); !m.Indeterminate {
				s.guideScores = append(s.guideScores, m.Score)
			}
		}
	}

	e.opts.Sink.RepCompleted(s.id, rep)
	monitoring.Logf("[session] %s rep %d peak=%.1f band=%s counted=%v",
		s.id, rep.RepIndex, rep.PeakAngle, rep.Band, rep.Counted)

	if len(s.countedScores) >= t.Reps {
		e.finalizeSet(s, ev.EndUnixNanos)
	}
}

// finalizeSet freezes the current set into a scorecard, hands it to the
// sink and opens the next set.
func (e *Engine) finalizeSet(s *state, endNanos int64) {
	if len(s.reps) == 0 {
		return
	}
	rules := s.template.Rules(e.opts.Rules)
	stability := scoring.FormStability(s.countedScores)
	symmetry := scoring.SymmetryIndex(s.leftPeaks, s.rightPeaks)

	sc := &pose.SessionScorecard{
		SessionID:      s.id,
		ActivityID:     s.template.ID,
		SetIndex:       s.setIndex,
		RepResults:     append([]pose.RepResult(nil), s.reps...),
		FormStability:  stability,
		SymmetryIndex:  symmetry,
		FinalPercent:   scoring.FinalPercent(s.countedScores, stability, symmetry, rules),
		StartUnixNanos: s.setStartNanos,
		EndUnixNanos:   endNanos,
	}
	if len(s.guideScores) > 0 {
		g := mean(s.guideScores)
		sc.GuideScore = &g
	}
	s.scorecards = append(s.scorecards, sc)
	e.opts.Sink.SetCompleted(sc)
	monitoring.Logf("[session] %s set %d complete: %d reps, final=%.1f%%",
		s.id, sc.SetIndex, len(sc.RepResults), sc.FinalPercent)

	s.setIndex++
	s.setStartNanos = endNanos
	s.reps = nil
	s.countedScores = nil
	s.leftPeaks = nil
	s.rightPeaks = nil
	s.guideScores = nil
}

// EndSession stops the guided session: in-flight excursions are flushed
// (completed if qualifying, discarded otherwise), a partial set is
// finalized, and the summary returned. A poisoned session returns its
// sequencing error alongside no summary.
func (e *Engine) EndSession() (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sess
	if s == nil {
		return nil, fmt.Errorf("end session: no active session")
	}
	e.sess = nil

	if s.poisoned {
		monitoring.Logf("[session] %s ended poisoned: %v", s.id, s.poisonErr)
		return nil, fmt.Errorf("end session: %w", s.poisonErr)
	}

	for _, ev := range s.arena.Flush(e.lastUnixNanos) {
		e.completeRep(s, ev)
	}
	if len(s.reps) > 0 {
		e.finalizeSet(s, e.lastUnixNanos)
	}

	sum := &Summary{
		SessionID:      s.id,
		ActivityID:     s.template.ID,
		Scorecards:     s.scorecards,
		StartUnixNanos: s.startUnixNanos,
		EndUnixNanos:   e.lastUnixNanos,
	}
	var finals []float64
	for _, sc := range s.scorecards {
		finals = append(finals, sc.FinalPercent)
		sum.TotalReps += len(sc.RepResults)
		for _, rep := range sc.RepResults {
			if rep.Counted {
				sum.CountedReps++
			}
		}
	}
	if len(finals) > 0 {
		sum.MeanFinalPercent = mean(finals)
	}
	if c, ok := e.opts.Sink.(interface{ SessionClosed(sessionID string) }); ok {
		c.SessionClosed(s.id)
	}
	monitoring.Logf("[session] %s ended: %d sets, %d reps", s.id, len(sum.Scorecards), sum.TotalReps)
	return sum, nil
}

//
// Internal helpers
//

func (e *Engine) smoother(ch pose.ChannelID) filter.Smoother {
	sm, ok := e.smoothers[ch]
	if !ok {
		if e.opts.Smoothing == SmoothEMA {
			sm = filter.NewEMA(e.opts.EMAAlpha)
		} else {
			sm = filter.NewAdaptive(e.opts.Adaptive)
		}
		e.smoothers[ch] = sm
	}
	return sm
}

func (e *Engine) channel(ch pose.ChannelID) *pose.AngleChannel {
	c, ok := e.channels[ch]
	if !ok {
		c = pose.NewAngleChannel(ch, e.opts.ChannelWindow)
		e.channels[ch] = c
	}
	return c
}

func (e *Engine) evictFrames(nowNanos int64) {
	cutoff := nowNanos - e.opts.ChannelWindow.Nanoseconds()
	i := 0
	for i < len(e.frames) && e.frames[i].TSUnixNanos < cutoff {
		i++
	}
	if i > 0 {
		e.frames = append(e.frames[:0], e.frames[i:]...)
	}
}

func (e *Engine) peakInWindow(ch pose.ChannelID, t0, t1 int64) float64 {
	c, ok := e.channels[ch]
	if !ok {
		return math.NaN()
	}
	peak := math.NaN()
	for _, s := range c.Window(t0, t1) {
		if s.Defined() && (math.IsNaN(peak) || s.Value > peak) {
			peak = s.Value
		}
	}
	return peak
}

func (e *Engine) seriesInWindow(t0, t1 int64) map[pose.ChannelID][]pose.AngleSample {
	out := make(map[pose.ChannelID][]pose.AngleSample, len(e.channels))
	for ch, c := range e.channels {
		if w := c.Window(t0, t1); len(w) > 0 {
			out[ch] = w
		}
	}
	return out
}

func (e *Engine) framesInWindow(t0, t1 int64) []*pose.KeypointFrame {
	var out []*pose.KeypointFrame
	for _, f := range e.frames {
		if f.TSUnixNanos >= t0 && f.TSUnixNanos <= t1 {
			out = append(out, f)
		}
	}
	return out
}

func ankleY(f *pose.KeypointFrame, name pose.JointName, floor float64) float64 {
	kp, ok := f.Joint(name, floor)
	if !ok {
		return pose.Undefined()
	}
	return kp.Y
}

// limbOfChannel maps a channel's joint segment to the limb whose
// visibility decides its side lock.
func limbOfChannel(ch pose.ChannelID) sideselect.Limb {
	joint := string(ch)
	if i := strings.IndexByte(joint, '_'); i >= 0 {
		joint = joint[:i]
	}
	switch joint {
	case "shoulder", "elbow", "wrist":
		return sideselect.LimbArm
	case "hip", "knee", "ankle":
		return sideselect.LimbLeg
	}
	return sideselect.LimbSide
}

func sortedChannels(m map[pose.ChannelID]float64) []pose.ChannelID {
	out := make([]pose.ChannelID, 0, len(m))
	for ch := range m {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
