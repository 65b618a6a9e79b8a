// Package sqlite persists sessions, reps and scorecards to a local
// SQLite database. The schema is managed by embedded migrations; see
// migrate.go.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/strideworks/motion.report/internal/pose"
)

// Store wraps the session database.
type Store struct {
	*sql.DB
}

// Open opens (creating if necessary) the session database at path and
// applies any pending migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// modernc's driver serializes writes; a single connection avoids
	// table-lock errors under concurrent recorders.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SessionRow is the stored summary of one session.
type SessionRow struct {
	ID               string
	ActivityID       string
	StartUnixNanos   int64
	EndUnixNanos     int64
	TotalReps        int
	CountedReps      int
	MeanFinalPercent float64
}

// CreateSession inserts a new session record at session start.
func (s *Store) CreateSession(id, activityID string, startUnixNanos int64) error {
	_, err := s.Exec(`
		INSERT INTO sessions (id, activity_id, start_unix_nanos)
		VALUES (?, ?, ?)
	`, id, activityID, startUnixNanos)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

// CloseSession finalizes a session record at session end.
func (s *Store) CloseSession(id string, endUnixNanos int64, totalReps, countedReps int, meanFinalPercent float64) error {
	res, err := s.Exec(`
		UPDATE sessions
		SET end_unix_nanos = ?, total_reps = ?, counted_reps = ?, mean_final_percent = ?
		WHERE id = ?
	`, endUnixNanos, totalReps, countedReps, meanFinalPercent, id)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("close session %s: not found", id)
	}
	return nil
}

// Session fetches one session summary by ID.
func (s *Store) Session(id string) (*SessionRow, error) {
	row := s.QueryRow(`
		SELECT id, activity_id, start_unix_nanos,
		       COALESCE(end_unix_nanos, 0),
		       total_reps, counted_reps, COALESCE(mean_final_percent, 0)
		FROM sessions WHERE id = ?
	`, id)
	var sr SessionRow
	err := row.Scan(&sr.ID, &sr.ActivityID, &sr.StartUnixNanos, &sr.EndUnixNanos,
		&sr.TotalReps, &sr.CountedReps, &sr.MeanFinalPercent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", id, err)
	}
	return &sr, nil
}

// RecentSessions lists the most recently started sessions, newest
// first.
func (s *Store) RecentSessions(limit int) ([]SessionRow, error) {
	rows, err := s.Query(`
		SELECT id, activity_id, start_unix_nanos,
		       COALESCE(end_unix_nanos, 0),
		       total_reps, counted_reps, COALESCE(mean_final_percent, 0)
		FROM sessions
		ORDER BY start_unix_nanos DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var sr SessionRow
		if err := rows.Scan(&sr.ID, &sr.ActivityID, &sr.StartUnixNanos, &sr.EndUnixNanos,
			&sr.TotalReps, &sr.CountedReps, &sr.MeanFinalPercent); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// RecordRep stores one completed repetition.
func (s *Store) RecordRep(sessionID string, setIndex int, rep pose.RepResult) error {
	_, err := s.Exec(`
		INSERT INTO reps (session_id, set_index, rep_index, channel,
			peak_angle_deg, target_angle_deg, score, band,
			symmetry_delta_deg, counted, message,
			start_unix_nanos, end_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, setIndex, rep.RepIndex, rep.Channel,
		rep.PeakAngle, rep.TargetAngle, rep.Score, string(rep.Band),
		rep.SymmetryDelta, rep.Counted, rep.Message,
		rep.StartUnixNanos, rep.EndUnixNanos)
	if err != nil {
		return fmt.Errorf("insert rep %d for session %s: %w", rep.RepIndex, sessionID, err)
	}
	return nil
}

// Reps fetches the reps of one set in detection order.
func (s *Store) Reps(sessionID string, setIndex int) ([]pose.RepResult, error) {
	rows, err := s.Query(`
		SELECT rep_index, channel, peak_angle_deg, target_angle_deg,
		       score, band, symmetry_delta_deg, counted,
		       COALESCE(message, ''), start_unix_nanos, end_unix_nanos
		FROM reps
		WHERE session_id = ? AND set_index = ?
		ORDER BY rep_index
	`, sessionID, setIndex)
	if err != nil {
		return nil, fmt.Errorf("query reps for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []pose.RepResult
	for rows.Next() {
		var r pose.RepResult
		var band string
		if err := rows.Scan(&r.RepIndex, &r.Channel, &r.PeakAngle, &r.TargetAngle,
			&r.Score, &band, &r.SymmetryDelta, &r.Counted,
			&r.Message, &r.StartUnixNanos, &r.EndUnixNanos); err != nil {
			return nil, err
		}
		r.Band = pose.Band(band)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordScorecard stores one finalized set scorecard. The full
// scorecard JSON is kept alongside the query columns so exports
// round-trip exactly.
func (s *Store) RecordScorecard(sc *pose.SessionScorecard) error {
	payload, err := sc.ToJSON()
	if err != nil {
		return err
	}
	var guide sql.NullFloat64
	if sc.GuideScore != nil {
		guide = sql.NullFloat64{Float64: *sc.GuideScore, Valid: true}
	}
	_, err = s.Exec(`
		INSERT INTO scorecards (session_id, set_index, activity_id,
			final_percent, form_stability, symmetry_index, guide_score,
			start_unix_nanos, end_unix_nanos, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sc.SessionID, sc.SetIndex, sc.ActivityID,
		sc.FinalPercent, sc.FormStability, sc.SymmetryIndex, guide,
		sc.StartUnixNanos, sc.EndUnixNanos, payload)
	if err != nil {
		return fmt.Errorf("insert scorecard set %d for session %s: %w", sc.SetIndex, sc.SessionID, err)
	}
	return nil
}

// Scorecards fetches a session's scorecards in set order,
// reconstituted from the stored JSON.
func (s *Store) Scorecards(sessionID string) ([]*pose.SessionScorecard, error) {
	rows, err := s.Query(`
		SELECT payload FROM scorecards
		WHERE session_id = ?
		ORDER BY set_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query scorecards for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*pose.SessionScorecard
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		sc, err := pose.ParseSessionScorecard(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
