package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/timeutil"
)

// ReplayOptions configures a JSONL replay source.
type ReplayOptions struct {
	// Realtime paces frames by the recorded timestamp deltas. When
	// false, Next returns frames as fast as the consumer asks.
	Realtime bool
	// Speed scales realtime pacing; 2 plays back at double speed.
	// Non-positive means 1.
	Speed float64
	// Clock drives the pacing sleeps. Nil means the real clock.
	Clock timeutil.Clock
}

// ReplaySource replays a recorded keypoint log: one JSON-encoded
// KeypointFrame per line. Blank lines are skipped; a malformed line is
// a hard error, recordings are not best-effort.
type ReplaySource struct {
	file    *os.File
	scanner *bufio.Scanner
	opts    ReplayOptions
	line    int

	started   bool
	lastNanos int64
}

// NewReplaySource opens a keypoint JSONL recording.
func NewReplaySource(path string, opts ReplayOptions) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ReplaySource{file: f, scanner: sc, opts: opts}, nil
}

// Next implements Source.
func (r *ReplaySource) Next(ctx context.Context) (*pose.KeypointFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var f pose.KeypointFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", r.line, err)
		}
		if r.opts.Realtime && r.started && f.TSUnixNanos > r.lastNanos {
			wait := time.Duration(float64(f.TSUnixNanos-r.lastNanos) / r.opts.Speed)
			r.opts.Clock.Sleep(wait)
		}
		r.started = true
		r.lastNanos = f.TSUnixNanos
		return &f, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay read: %w", err)
	}
	return nil, ErrEndOfStream
}

// Close implements Source.
func (r *ReplaySource) Close() error {
	return r.file.Close()
}

// WriteRecording writes frames as a keypoint JSONL log, the format
// ReplaySource reads back.
func WriteRecording(path string, frames []*pose.KeypointFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, frame := range frames {
		if err := enc.Encode(frame); err != nil {
			f.Close()
			return fmt.Errorf("encode frame: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush recording: %w", err)
	}
	return f.Close()
}
