// Command push-poselog streams a .poselog recording to a running
// motion server over its HTTP API, optionally wrapped in a guided
// session.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/strideworks/motion.report/internal/api"
	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/backend"
)

func main() {
	input := flag.String("i", "sample.poselog", "recording to stream")
	server := flag.String("server", "http://localhost:8080", "motion server base URL")
	speed := flag.Float64("speed", 1.0, "playback speed multiplier")
	activityID := flag.String("activity", "", "start a guided session for this activity id")
	flag.Parse()

	if *speed <= 0 {
		log.Fatal("Playback speed must be positive")
	}

	src, err := backend.NewReplaySource(*input, backend.ReplayOptions{
		Realtime: true,
		Speed:    *speed,
	})
	if err != nil {
		log.Fatalf("failed to open recording: %v", err)
	}
	defer src.Close()

	client := api.NewClient(*server, nil)
	if *activityID != "" {
		id, err := client.StartSession(*activityID)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("started session %s", id)
	}

	sent := 0
	err = backend.Pump(context.Background(), src, func(f *pose.KeypointFrame) {
		if err := client.PushFrame(f); err != nil {
			log.Printf("failed to push frame: %v", err)
			return
		}
		sent++
		if sent%100 == 0 {
			log.Printf("%d frames", sent)
		}
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	if *activityID != "" {
		sum, err := client.EndSession()
		if err != nil {
			log.Fatalf("failed to end session: %v", err)
		}
		log.Printf("✓ Session %s: %d reps (%d counted), %.1f%%",
			sum.SessionID, sum.TotalReps, sum.CountedReps, sum.MeanFinalPercent)
	}
	log.Printf("✓ Streamed %d frames from %s", sent, *input)
}
