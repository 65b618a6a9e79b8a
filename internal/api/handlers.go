package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strideworks/motion.report/internal/httputil"
	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/session"
	"github.com/strideworks/motion.report/internal/units"
)

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	ids := s.catalog.IDs()
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		t, _ := s.catalog.Get(id)
		out = append(out, map[string]interface{}{
			"id":    t.ID,
			"label": t.Label,
			"reps":  t.Reps,
		})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.catalog.Get(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown activity %q", id))
		return
	}
	httputil.WriteJSONOK(w, t)
}

// ingestFrame accepts one keypoint frame from an external inference
// backend. Frames are queued, not processed inline; a saturated
// analysis loop drops the oldest frame rather than blocking the
// producer.
func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	var f pose.KeypointFrame
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid frame: %v", err))
		return
	}
	if f.TSUnixNanos == 0 {
		httputil.BadRequest(w, "frame missing ts_unix_nanos")
		return
	}
	s.engine.Enqueue(&f)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) showAngles(w http.ResponseWriter, r *http.Request) {
	target := units.Degrees
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'units' parameter, want one of: %s", units.GetValidUnitsString()))
			return
		}
		target = u
	}
	angles := s.engine.LatestAngles()
	for ch, v := range angles {
		// Undefined channels carry NaN, which JSON cannot encode.
		if math.IsNaN(v) {
			delete(angles, ch)
			continue
		}
		// Position channels are normalized image units, not angles.
		if ch == session.ChannelAnkleLeftY || ch == session.ChannelAnkleRightY {
			continue
		}
		angles[ch] = units.ConvertAngle(v, target)
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"angles":      angles,
		"units":       target,
		"sides":       s.engine.Sides(),
		"fps":         s.engine.FPS(),
		"frames_seen": s.engine.FramesSeen(),
	})
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.engine.Channels())
}

func (s *Server) showChannel(w http.ResponseWriter, r *http.Request) {
	ch := pose.ChannelID(chi.URLParam(r, "id"))
	samples := s.engine.ChannelSamples(ch)
	if len(samples) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no samples for channel %q", ch))
		return
	}
	// Undefined samples carry NaN, which JSON cannot encode.
	defined := samples[:0]
	for _, sm := range samples {
		if sm.Defined() {
			defined = append(defined, sm)
		}
	}
	httputil.WriteJSONOK(w, defined)
}

func (s *Server) showGait(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.engine.GaitMetrics())
}

type startSessionRequest struct {
	ActivityID string `json:"activity_id"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request: %v", err))
		return
	}
	t, ok := s.catalog.Get(req.ActivityID)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown activity %q", req.ActivityID))
		return
	}
	id, err := s.engine.StartSession(t)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.CreateSession(id, t.ID, s.clock.Now().UnixNano()); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("persist session: %v", err))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"session_id":  id,
		"activity_id": t.ID,
	})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.EndSession()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.CloseSession(summary.SessionID, summary.EndUnixNanos,
			summary.TotalReps, summary.CountedReps, summary.MeanFinalPercent); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("persist session: %v", err))
			return
		}
	}
	httputil.WriteJSONOK(w, summary)
}

func (s *Server) showSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.engine.Status()
	if !ok {
		httputil.NotFound(w, "no active session")
		return
	}
	httputil.WriteJSONOK(w, status)
}

func (s *Server) showLiveScorecards(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.engine.Scorecards())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "session store not configured")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = v
	}
	rows, err := s.store.RecentSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "session store not configured")
		return
	}
	row, err := s.store.Session(chi.URLParam(r, "id"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, row)
}

func (s *Server) showStoredScorecards(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "session store not configured")
		return
	}
	cards, err := s.store.Scorecards(chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, cards)
}

func (s *Server) showStoredReps(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "session store not configured")
		return
	}
	set := 0
	if v := r.URL.Query().Get("set"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "invalid 'set' parameter")
			return
		}
		set = parsed
	}
	reps, err := s.store.Reps(chi.URLParam(r, "id"), set)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, reps)
}
