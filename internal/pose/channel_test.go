package pose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(secs float64, v float64) AngleSample {
	return AngleSample{Channel: "knee_L_flex", Value: v, TSUnixNanos: int64(secs * float64(time.Second))}
}

func TestAngleChannelEviction(t *testing.T) {
	t.Parallel()

	c := NewAngleChannel("knee_L_flex", 2*time.Second)
	for i := 0; i < 100; i++ {
		c.Append(sampleAt(float64(i)*0.1, float64(i)))
	}

	// Only the trailing 2s survive.
	assert.Equal(t, 21, c.Len())
	got := c.Samples()
	assert.Equal(t, 79.0, got[0].Value)
	assert.Equal(t, 99.0, got[len(got)-1].Value)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, 99.0, latest.Value)
}

func TestAngleChannelLongSessionStaysBounded(t *testing.T) {
	t.Parallel()

	c := NewAngleChannel("knee_L_flex", time.Second)
	for i := 0; i < 100000; i++ {
		c.Append(sampleAt(float64(i)/30.0, float64(i)))
	}
	assert.LessOrEqual(t, c.Len(), 31)
	assert.LessOrEqual(t, cap(c.samples), 4096, "compaction keeps the backing array small")
}

func TestAngleChannelWindow(t *testing.T) {
	t.Parallel()

	c := NewAngleChannel("knee_L_flex", 10*time.Second)
	for i := 0; i <= 50; i++ {
		c.Append(sampleAt(float64(i)*0.1, float64(i)))
	}

	w := c.Window(int64(1*time.Second), int64(2*time.Second))
	require.NotEmpty(t, w)
	assert.Equal(t, 10.0, w[0].Value)
	assert.Equal(t, 20.0, w[len(w)-1].Value)

	assert.Empty(t, c.Window(int64(20*time.Second), int64(30*time.Second)))
}

func TestAngleChannelEmpty(t *testing.T) {
	t.Parallel()

	c := NewAngleChannel("x", 0)
	assert.Zero(t, c.Len())
	_, ok := c.Latest()
	assert.False(t, ok)
	assert.Empty(t, c.Samples())
}
