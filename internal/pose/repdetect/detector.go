// Package repdetect turns a smoothed scalar channel into discrete
// repetition events. Each channel owns an independent detector state
// machine; detectors for all tracked channels live in an Arena keyed by
// channel ID.
package repdetect

import (
	"fmt"
	"math"
	"time"

	"github.com/strideworks/motion.report/internal/pose"
)

// State is the lifecycle state of a channel detector.
type State string

const (
	// StateIdle means no defined sample has been seen yet.
	StateIdle State = "idle"
	// StateArmed means the detector is tracking baseline, waiting for
	// the signal to rise past the amplitude gate.
	StateArmed State = "armed"
	// StateRising means an excursion is in progress and still climbing.
	StateRising State = "rising"
	// StateAtPeak means a direction reversal has been seen but not yet
	// held long enough to confirm the peak.
	StateAtPeak State = "at_peak"
	// StateFalling means the peak is confirmed and the signal is
	// returning toward baseline.
	StateFalling State = "falling"
)

// Params tunes a detector. The zero value is unusable; start from
// DefaultParams.
type Params struct {
	// MinPeakHeight is the minimum deviation from baseline for an
	// excursion to count as a genuine rep.
	MinPeakHeight float64
	// MinPeakDistance is the refractory interval between consecutive
	// rep completions; excursions completing sooner are discarded.
	MinPeakDistance time.Duration
	// Hysteresis is the drop below the running peak required before a
	// direction reversal is even considered. Zero derives it as
	// 0.35 * MinPeakHeight.
	Hysteresis float64
	// ReversalHoldSamples is how many consecutive samples the reversal
	// must persist before the peak is confirmed.
	ReversalHoldSamples int
	// ReturnFraction positions the completion threshold between
	// baseline and peak; the rep completes once the signal falls back
	// below baseline + ReturnFraction*(peak-baseline).
	ReturnFraction float64
	// BridgeGapLimit bounds how long a NaN run inside an excursion may
	// be bridged with the last valid value before the excursion aborts.
	BridgeGapLimit time.Duration
	// MaxExcursionDuration aborts excursions that never complete.
	MaxExcursionDuration time.Duration
	// BaselineBand is how close to baseline a sample must be for the
	// slow baseline adaptation to run.
	BaselineBand float64
	// Invert processes the negated signal, turning local minima into
	// detectable peaks (used for heel-strike detection on vertical
	// position channels). Emitted trajectories keep original values.
	Invert bool
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MinPeakHeight:        5.0,
		MinPeakDistance:      500 * time.Millisecond,
		ReversalHoldSamples:  2,
		ReturnFraction:       0.5,
		BridgeGapLimit:       300 * time.Millisecond,
		MaxExcursionDuration: 6 * time.Second,
		BaselineBand:         6.0,
	}
}

// withDerived fills derived defaults on a copy of p.
func (p Params) withDerived() Params {
	if p.Hysteresis <= 0 {
		p.Hysteresis = 0.35 * p.MinPeakHeight
	}
	if p.ReversalHoldSamples < 1 {
		p.ReversalHoldSamples = 1
	}
	if p.ReturnFraction <= 0 || p.ReturnFraction >= 1 {
		p.ReturnFraction = 0.5
	}
	if p.BaselineBand <= 0 {
		p.BaselineBand = 6.0
	}
	return p
}

// Validate rejects parameter sets that cannot detect anything.
func (p Params) Validate() error {
	if p.MinPeakHeight <= 0 {
		return fmt.Errorf("min_peak_height must be positive, got %v", p.MinPeakHeight)
	}
	if p.MinPeakDistance < 0 {
		return fmt.Errorf("min_peak_distance must be non-negative, got %v", p.MinPeakDistance)
	}
	if p.MaxExcursionDuration <= 0 {
		return fmt.Errorf("max_excursion_duration must be positive, got %v", p.MaxExcursionDuration)
	}
	return nil
}

// RepEvent is one completed repetition on a channel.
type RepEvent struct {
	Channel        pose.ChannelID
	RepIndex       int // 1-based, monotonically increasing per channel
	PeakValue      float64
	PeakUnixNanos  int64
	StartUnixNanos int64
	EndUnixNanos   int64
	// Trajectory holds every sample between excursion start and
	// completion, bridged samples included, in time order.
	Trajectory []pose.AngleSample
	// BridgedSamples counts NaN inputs substituted with the last valid
	// value inside the excursion.
	BridgedSamples int
}

// Detector is the per-channel state machine. Not safe for concurrent
// use; the analysis stage owns it exclusively.
type Detector struct {
	channel pose.ChannelID
	params  Params

	state    State
	repCount int

	baseline    float64
	hasBaseline bool

	lastValue     float64
	lastUnixNanos int64
	hasLast       bool

	// Excursion tracking (working values are sign-adjusted when
	// Invert is set; segment keeps originals).
	segment        []pose.AngleSample
	excursionStart int64
	peakWork       float64
	peakOriginal   float64
	peakUnixNanos  int64
	reversalCount  int
	bridged        int

	gapStartNanos int64
	inGap         bool

	lastRepEndNanos int64
	hasLastRepEnd   bool
}

// NewDetector creates a detector for one channel.
func NewDetector(channel pose.ChannelID, params Params) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("detector %s: %w", channel, err)
	}
	return &Detector{
		channel: channel,
		params:  params.withDerived(),
		state:   StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (d *Detector) State() State { return d.state }

// RepCount returns the number of reps counted so far. It never
// decreases within a session.
func (d *Detector) RepCount() int { return d.repCount }

// Baseline returns the current adaptive baseline estimate.
func (d *Detector) Baseline() float64 {
	if !d.hasBaseline {
		return math.NaN()
	}
	return d.baseline
}

func (d *Detector) work(v float64) float64 {
	if d.params.Invert {
		return -v
	}
	return v
}

func (d *Detector) inExcursion() bool {
	return d.state == StateRising || d.state == StateAtPeak || d.state == StateFalling
}

// abortExcursion returns to ARMED without counting a rep.
func (d *Detector) abortExcursion() {
	d.state = StateArmed
	d.segment = nil
	d.reversalCount = 0
	d.bridged = 0
	d.inGap = false
}

// Update feeds one smoothed sample. It returns a non-nil RepEvent when
// a qualifying excursion completes. Timestamps must be strictly
// monotonic; violations are producer contract bugs and fail loudly.
func (d *Detector) Update(value float64, tsUnixNanos int64) (*RepEvent, error) {
	if d.hasLast && tsUnixNanos <= d.lastUnixNanos {
		return nil, fmt.Errorf("detector %s: timestamp %d not after %d (out-of-order frame)",
			d.channel, tsUnixNanos, d.lastUnixNanos)
	}

	if math.IsNaN(value) {
		return d.updateNaN(tsUnixNanos)
	}
	d.inGap = false

	sample := pose.AngleSample{Channel: d.channel, Value: value, TSUnixNanos: tsUnixNanos}
	return d.updateDefined(sample, false)
}

// updateNaN handles an undefined input: ignored outside excursions,
// bridged with the last valid value inside them, up to the gap limit.
func (d *Detector) updateNaN(tsUnixNanos int64) (*RepEvent, error) {
	if !d.inExcursion() {
		// Do not advance lastUnixNanos: baseline and direction state
		// are untouched by undefined frames outside an excursion.
		return nil, nil
	}
	if !d.inGap {
		d.inGap = true
		d.gapStartNanos = tsUnixNanos
	}
	if time.Duration(tsUnixNanos-d.gapStartNanos) > d.params.BridgeGapLimit {
		d.abortExcursion()
		return nil, nil
	}
	d.bridged++
	sample := pose.AngleSample{Channel: d.channel, Value: d.lastValue, TSUnixNanos: tsUnixNanos}
	return d.updateDefined(sample, true)
}

func (d *Detector) updateDefined(sample pose.AngleSample, bridged bool) (*RepEvent, error) {
	v := sample.Value
	ts := sample.TSUnixNanos
	w := d.work(v)

	if !d.hasBaseline {
		d.baseline = w
		d.hasBaseline = true
	}

	switch d.state {
	case StateIdle:
		d.state = StateArmed
		d.segment = []pose.AngleSample{sample}

	case StateArmed:
		d.adaptBaseline(w)
		d.trackArmedSegment(sample, w)
		if w-d.baseline >= d.params.MinPeakHeight {
			d.state = StateRising
			d.excursionStart = d.segment[0].TSUnixNanos
			d.peakWork = w
			d.peakOriginal = v
			d.peakUnixNanos = ts
			d.reversalCount = 0
			d.bridged = 0
		}

	case StateRising, StateAtPeak:
		d.segment = append(d.segment, sample)
		if w > d.peakWork {
			d.peakWork = w
			d.peakOriginal = v
			d.peakUnixNanos = ts
			d.reversalCount = 0
			d.state = StateRising
		} else if w < d.peakWork-d.params.Hysteresis {
			d.reversalCount++
			if d.reversalCount >= d.params.ReversalHoldSamples {
				d.state = StateFalling
			} else {
				d.state = StateAtPeak
			}
		}
		if d.excursionTimedOut(ts) {
			d.abortExcursion()
		}

	case StateFalling:
		d.segment = append(d.segment, sample)
		if w <= d.returnThreshold() {
			ev := d.completeExcursion(ts)
			d.lastValue = v
			d.lastUnixNanos = ts
			d.hasLast = true
			return ev, nil
		}
		if d.excursionTimedOut(ts) {
			d.abortExcursion()
		}
	}

	if !bridged {
		d.lastValue = v
	}
	d.lastUnixNanos = ts
	d.hasLast = true
	return nil, nil
}

// trackArmedSegment keeps the pre-excursion buffer anchored at the
// running minimum so a completed rep's trajectory starts at its local
// minimum.
func (d *Detector) trackArmedSegment(sample pose.AngleSample, w float64) {
	if len(d.segment) == 0 || w <= d.work(d.segment[0].Value) {
		d.segment = []pose.AngleSample{sample}
		return
	}
	d.segment = append(d.segment, sample)
	// Bound the pre-buffer to the excursion duration limit.
	maxNanos := d.params.MaxExcursionDuration.Nanoseconds()
	for len(d.segment) > 1 && sample.TSUnixNanos-d.segment[0].TSUnixNanos > maxNanos {
		d.segment = d.segment[1:]
	}
}

// adaptBaseline drifts the baseline slowly toward samples near it, so
// the detector tolerates posture creep without re-arming thresholds.
func (d *Detector) adaptBaseline(w float64) {
	if math.Abs(w-d.baseline) <= d.params.BaselineBand {
		d.baseline = 0.98*d.baseline + 0.02*w
	}
}

func (d *Detector) returnThreshold() float64 {
	return d.baseline + d.params.ReturnFraction*(d.peakWork-d.baseline)
}

func (d *Detector) excursionTimedOut(tsUnixNanos int64) bool {
	return time.Duration(tsUnixNanos-d.excursionStart) > d.params.MaxExcursionDuration
}

// completeExcursion ends the excursion at ts. Excursions completing
// inside the refractory interval are discarded as jitter.
func (d *Detector) completeExcursion(tsUnixNanos int64) *RepEvent {
	defer func() {
		d.state = StateArmed
		d.segment = nil
		d.reversalCount = 0
		d.bridged = 0
		d.inGap = false
	}()

	if d.hasLastRepEnd &&
		time.Duration(tsUnixNanos-d.lastRepEndNanos) < d.params.MinPeakDistance {
		// Too soon after the previous completion: jitter, not a rep.
		return nil
	}

	d.repCount++
	d.lastRepEndNanos = tsUnixNanos
	d.hasLastRepEnd = true

	traj := make([]pose.AngleSample, len(d.segment))
	copy(traj, d.segment)
	return &RepEvent{
		Channel:        d.channel,
		RepIndex:       d.repCount,
		PeakValue:      d.peakOriginal,
		PeakUnixNanos:  d.peakUnixNanos,
		StartUnixNanos: d.excursionStart,
		EndUnixNanos:   tsUnixNanos,
		Trajectory:     traj,
		BridgedSamples: d.bridged,
	}
}

// Flush ends the session for this channel. A confirmed excursion that
// already passed its peak is completed (subject to the usual gates);
// anything earlier is discarded. Returns the completion event, if any.
func (d *Detector) Flush(tsUnixNanos int64) *RepEvent {
	if d.state == StateFalling {
		ev := d.completeExcursion(tsUnixNanos)
		d.state = StateIdle
		return ev
	}
	d.abortExcursion()
	d.state = StateIdle
	return nil
}
