package pose

import "time"

// AngleChannel is an append-only, time-bounded series of samples for
// one channel. Samples older than the window are evicted on append;
// eviction is O(1) amortized regardless of session length.
type AngleChannel struct {
	ID     ChannelID
	window time.Duration

	samples []AngleSample
	start   int // index of the oldest live sample
}

// DefaultChannelWindow bounds live-display channels to the last 10s.
const DefaultChannelWindow = 10 * time.Second

// NewAngleChannel creates a channel buffer bounded to the given window.
// A non-positive window falls back to DefaultChannelWindow.
func NewAngleChannel(id ChannelID, window time.Duration) *AngleChannel {
	if window <= 0 {
		window = DefaultChannelWindow
	}
	return &AngleChannel{ID: id, window: window}
}

// Append adds a sample and evicts entries older than the window
// relative to the new sample's timestamp.
func (c *AngleChannel) Append(s AngleSample) {
	c.samples = append(c.samples, s)
	cutoff := s.TSUnixNanos - c.window.Nanoseconds()
	for c.start < len(c.samples) && c.samples[c.start].TSUnixNanos < cutoff {
		c.start++
	}
	// Compact once the dead prefix dominates the backing array.
	if c.start > len(c.samples)/2 && c.start > 32 {
		live := len(c.samples) - c.start
		copy(c.samples, c.samples[c.start:])
		c.samples = c.samples[:live]
		c.start = 0
	}
}

// Len returns the number of live samples.
func (c *AngleChannel) Len() int { return len(c.samples) - c.start }

// Latest returns the most recent sample, or false if empty.
func (c *AngleChannel) Latest() (AngleSample, bool) {
	if c.Len() == 0 {
		return AngleSample{}, false
	}
	return c.samples[len(c.samples)-1], true
}

// Samples returns a copy of the live samples in time order.
func (c *AngleChannel) Samples() []AngleSample {
	out := make([]AngleSample, c.Len())
	copy(out, c.samples[c.start:])
	return out
}

// Window returns a copy of the samples with t0 <= ts <= t1.
func (c *AngleChannel) Window(t0, t1 int64) []AngleSample {
	var out []AngleSample
	for _, s := range c.samples[c.start:] {
		if s.TSUnixNanos >= t0 && s.TSUnixNanos <= t1 {
			out = append(out, s)
		}
	}
	return out
}
