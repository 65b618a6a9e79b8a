package repdetect

import (
	"sort"

	"github.com/strideworks/motion.report/internal/pose"
)

// Arena owns the detector state for every tracked channel in a
// session. Channels are created lazily on first sample and destroyed
// together at session end. Owned exclusively by the analysis stage;
// not safe for concurrent use.
type Arena struct {
	params    Params
	detectors map[pose.ChannelID]*Detector
}

// NewArena creates an empty arena whose detectors share params.
func NewArena(params Params) (*Arena, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Arena{
		params:    params,
		detectors: make(map[pose.ChannelID]*Detector),
	}, nil
}

// Detector returns the detector for a channel, creating it on first
// use.
func (a *Arena) Detector(channel pose.ChannelID) *Detector {
	d, ok := a.detectors[channel]
	if !ok {
		// Params were validated at arena construction.
		d, _ = NewDetector(channel, a.params)
		a.detectors[channel] = d
	}
	return d
}

// DetectorWithParams registers a channel with channel-specific params,
// replacing any existing detector state for it.
func (a *Arena) DetectorWithParams(channel pose.ChannelID, params Params) (*Detector, error) {
	d, err := NewDetector(channel, params)
	if err != nil {
		return nil, err
	}
	a.detectors[channel] = d
	return d, nil
}

// Update feeds one sample to the channel's detector.
func (a *Arena) Update(channel pose.ChannelID, value float64, tsUnixNanos int64) (*RepEvent, error) {
	return a.Detector(channel).Update(value, tsUnixNanos)
}

// Flush flushes every detector and returns completion events in
// channel order (deterministic across runs).
func (a *Arena) Flush(tsUnixNanos int64) []*RepEvent {
	ids := make([]pose.ChannelID, 0, len(a.detectors))
	for id := range a.detectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var events []*RepEvent
	for _, id := range ids {
		if ev := a.detectors[id].Flush(tsUnixNanos); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

// Channels returns the IDs of all registered channels.
func (a *Arena) Channels() []pose.ChannelID {
	ids := make([]pose.ChannelID, 0, len(a.detectors))
	for id := range a.detectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
