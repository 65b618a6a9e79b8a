// Package backend abstracts the pose-inference producers. The analysis
// engine depends only on the single capability of producing the next
// KeypointFrame; everything backend-specific (model, file format,
// pacing) stays behind the Source interface.
package backend

import (
	"context"
	"errors"

	"github.com/strideworks/motion.report/internal/pose"
)

// ErrEndOfStream signals an orderly end of a finite source.
var ErrEndOfStream = errors.New("backend: end of stream")

// Source produces keypoint frames in timestamp order.
type Source interface {
	// Next blocks until the next frame is available. It returns
	// ErrEndOfStream when the source is exhausted and the context's
	// error on cancellation.
	Next(ctx context.Context) (*pose.KeypointFrame, error)
	// Close releases the source's resources.
	Close() error
}

// Pump drains a source into deliver until exhaustion or cancellation.
// ErrEndOfStream is the normal return for finite sources and is
// reported as nil.
func Pump(ctx context.Context, src Source, deliver func(*pose.KeypointFrame)) error {
	for {
		f, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				return nil
			}
			return err
		}
		deliver(f)
	}
}
