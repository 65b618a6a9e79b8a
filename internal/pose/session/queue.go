package session

import (
	"context"

	"github.com/strideworks/motion.report/internal/monitoring"
	"github.com/strideworks/motion.report/internal/pose"
)

// Enqueue hands a frame to the analysis stage without ever blocking the
// producer. When the queue is full the oldest unprocessed frame is
// dropped: live feedback beats completeness.
func (e *Engine) Enqueue(f *pose.KeypointFrame) {
	if f == nil {
		return
	}
	for {
		select {
		case e.queue <- f:
			return
		default:
		}
		select {
		case old := <-e.queue:
			e.mu.Lock()
			e.dropped++
			dropped := e.dropped
			e.mu.Unlock()
			if dropped == 1 || dropped%100 == 0 {
				monitoring.Logf("[session] analysis behind producer, dropped %d frames (last ts=%d)",
					dropped, old.TSUnixNanos)
			}
		default:
		}
	}
}

// Run consumes the queue until the context is cancelled. Per-frame
// errors are logged and the loop continues; the caller inspects the
// session's fate through EndSession.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-e.queue:
			if err := e.ProcessFrame(f); err != nil {
				monitoring.Logf("[session] %v", err)
			}
		}
	}
}

// DroppedFrames reports how many frames the queue discarded.
func (e *Engine) DroppedFrames() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dropped
}
