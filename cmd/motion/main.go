// Command motion runs the pose analysis service. It ingests 2D
// keypoint frames, either pushed over the HTTP API or pumped from a
// replay recording or the synthetic generator, derives joint-angle
// channels, detects and scores reps, and serves live and stored
// results over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/strideworks/motion.report/internal/api"
	"github.com/strideworks/motion.report/internal/config"
	"github.com/strideworks/motion.report/internal/pose/activity"
	"github.com/strideworks/motion.report/internal/pose/backend"
	"github.com/strideworks/motion.report/internal/pose/session"
	"github.com/strideworks/motion.report/internal/pose/storage/sqlite"
	"github.com/strideworks/motion.report/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbFile      = flag.String("db", "motion_data.db", "SQLite database path")
	configFile  = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	replayFile  = flag.String("replay", "", "Replay a .poselog recording instead of live ingest")
	replaySpeed = flag.Float64("replay-speed", 1.0, "Replay speed multiplier")
	synthetic   = flag.Bool("synthetic", false, "Feed frames from the synthetic skeleton generator")
	activities  = flag.String("activities", "", "Extra activity templates JSON (optional)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func buildSource() (backend.Source, error) {
	switch {
	case *replayFile != "" && *synthetic:
		return nil, fmt.Errorf("-replay and -synthetic are mutually exclusive")
	case *replayFile != "":
		return backend.NewReplaySource(*replayFile, backend.ReplayOptions{
			Realtime: true,
			Speed:    *replaySpeed,
		})
	case *synthetic:
		src := backend.NewSyntheticSource()
		src.Realtime = true
		return src, nil
	default:
		return nil, nil
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("motion %s (%s)\n", version.Version, version.GitSHA)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *replaySpeed <= 0 {
		log.Fatal("Replay speed must be positive")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	opts := cfg.EngineOptions()
	opts.Sink = sqlite.NewRecorder(store)
	engine, err := session.NewEngine(opts)
	if err != nil {
		log.Fatalf("failed to create analysis engine: %v", err)
	}

	catalog := activity.BuiltIn()
	activityFile := *activities
	if activityFile == "" {
		activityFile = cfg.GetActivityFile()
	}
	if activityFile != "" {
		if err := catalog.LoadFile(activityFile); err != nil {
			log.Fatalf("failed to load activity templates: %v", err)
		}
		log.Printf("loaded activity templates from %s", activityFile)
	}

	source, err := buildSource()
	if err != nil {
		log.Fatal(err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the analysis routine that drains the frame queue
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("analysis routine failed: %v", err)
		}
		log.Print("analysis routine terminated")
	}()

	// pump frames from the configured source into the engine queue;
	// without a source the API is the only ingest path
	if source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer source.Close()
			if err := backend.Pump(ctx, source, engine.Enqueue); err != nil && err != context.Canceled {
				log.Printf("frame source failed: %v", err)
			}
			log.Print("frame source routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.NewServer(engine, catalog, store).Router(),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
