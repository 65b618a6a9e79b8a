// Package api exposes the analysis engine over HTTP: live angle and
// gait snapshots, guided-session control, stored session history, and
// debug chart rendering.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strideworks/motion.report/internal/monitoring"
	"github.com/strideworks/motion.report/internal/pose/activity"
	"github.com/strideworks/motion.report/internal/pose/session"
	"github.com/strideworks/motion.report/internal/pose/storage/sqlite"
	"github.com/strideworks/motion.report/internal/timeutil"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server wires the engine, activity catalog and (optionally) the
// session store to HTTP handlers. Store may be nil when running
// without persistence.
type Server struct {
	engine  *session.Engine
	catalog *activity.Catalog
	store   *sqlite.Store
	clock   timeutil.Clock
}

// NewServer creates an API server.
func NewServer(engine *session.Engine, catalog *activity.Catalog, store *sqlite.Store) *Server {
	return &Server{
		engine:  engine,
		catalog: catalog,
		store:   store,
		clock:   timeutil.RealClock{},
	}
}

// SetClock replaces the server clock, for tests.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/activities", s.listActivities)
		r.Get("/activities/{id}", s.showActivity)

		r.Post("/frames", s.ingestFrame)
		r.Get("/angles", s.showAngles)
		r.Get("/channels", s.listChannels)
		r.Get("/channels/{id}", s.showChannel)
		r.Get("/gait", s.showGait)

		r.Post("/session/start", s.startSession)
		r.Post("/session/end", s.endSession)
		r.Get("/session/status", s.showSessionStatus)
		r.Get("/session/scorecards", s.showLiveScorecards)

		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.showSession)
		r.Get("/sessions/{id}/scorecards", s.showStoredScorecards)
		r.Get("/sessions/{id}/reps", s.showStoredReps)
	})

	r.Get("/debug/channel-chart", s.channelChart)
	r.Get("/debug/trajectory.png", s.trajectoryPNG)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
