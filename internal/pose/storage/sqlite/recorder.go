package sqlite

import (
	"sync"

	"github.com/strideworks/motion.report/internal/monitoring"
	"github.com/strideworks/motion.report/internal/pose"
)

// Recorder adapts a Store to the analysis engine's result sink. The
// engine delivers reps without a set index, so the recorder tracks the
// current set per session, advancing it on each finalized scorecard.
// Persistence failures are logged, not surfaced; losing a row must not
// interrupt a live session.
type Recorder struct {
	store *Store

	mu     sync.Mutex
	setIdx map[string]int
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, setIdx: make(map[string]int)}
}

// RepCompleted stores one completed rep against the session's current
// set.
func (r *Recorder) RepCompleted(sessionID string, rep pose.RepResult) {
	r.mu.Lock()
	set := r.setIdx[sessionID]
	r.mu.Unlock()

	if err := r.store.RecordRep(sessionID, set, rep); err != nil {
		monitoring.Logf("storage: record rep: %v", err)
	}
}

// SetCompleted stores a finalized scorecard and advances the session's
// set counter.
func (r *Recorder) SetCompleted(sc *pose.SessionScorecard) {
	if err := r.store.RecordScorecard(sc); err != nil {
		monitoring.Logf("storage: record scorecard: %v", err)
	}
	r.mu.Lock()
	r.setIdx[sc.SessionID] = sc.SetIndex + 1
	r.mu.Unlock()
}

// SessionClosed drops the recorder's per-session state.
func (r *Recorder) SessionClosed(sessionID string) {
	r.mu.Lock()
	delete(r.setIdx, sessionID)
	r.mu.Unlock()
}
