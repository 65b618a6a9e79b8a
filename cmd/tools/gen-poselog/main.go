// Command gen-poselog generates sample .poselog recordings for testing replay.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/backend"
)

func main() {
	output := flag.String("o", "sample.poselog", "output path")
	cycles := flag.Int("n", 5, "number of arm-raise cycles")
	fps := flag.Float64("fps", 30, "frames per second")
	peak := flag.Float64("peak", 95, "peak abduction angle in degrees")
	cycle := flag.Duration("cycle", 2*time.Second, "duration of one raise-and-lower")
	rest := flag.Duration("rest", time.Second, "pause between cycles")
	flag.Parse()

	gen := backend.NewSyntheticSource()
	gen.FrameRate = *fps
	gen.PeakDeg = *peak
	gen.CyclePeriod = *cycle
	gen.RestPeriod = *rest
	gen.CycleCount = *cycles

	var frames []*pose.KeypointFrame
	for {
		f, err := gen.Next(context.Background())
		if err != nil {
			break
		}
		frames = append(frames, f)
		if len(frames)%100 == 0 {
			log.Printf("%d frames", len(frames))
		}
	}

	if err := backend.WriteRecording(*output, frames); err != nil {
		log.Fatalf("failed to write recording: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames)", *output, len(frames))
}
