package pose

import (
	"encoding/json"
	"fmt"
)

// Band is the discretized quality grade for a rep against its target.
type Band string

const (
	BandGreen Band = "Green"
	BandAmber Band = "Amber"
	BandRed   Band = "Red"
)

// RepResult records one detected repetition. Immutable once produced;
// appended to the owning scorecard in detection order.
type RepResult struct {
	RepIndex       int     `json:"rep_index"`
	Channel        string  `json:"channel"`
	PeakAngle      float64 `json:"peak_angle_deg"`
	TargetAngle    float64 `json:"target_angle_deg"`
	Score          float64 `json:"score"`
	Band           Band    `json:"band"`
	SymmetryDelta  float64 `json:"symmetry_delta_deg"`
	Counted        bool    `json:"counted"`
	Message        string  `json:"message,omitempty"`
	StartUnixNanos int64   `json:"start_unix_nanos"`
	EndUnixNanos   int64   `json:"end_unix_nanos"`
}

// SessionScorecard aggregates one completed set. Created at set start,
// finalized (then immutable) at set completion, and handed to the
// export collaborator as a snapshot.
type SessionScorecard struct {
	SessionID      string      `json:"session_id"`
	ActivityID     string      `json:"activity_id"`
	SetIndex       int         `json:"set_index"`
	RepResults     []RepResult `json:"rep_results"`
	FormStability  float64     `json:"form_stability"`
	SymmetryIndex  float64     `json:"symmetry_index"`
	FinalPercent   float64     `json:"final_percent"`
	GuideScore     *float64    `json:"guide_score,omitempty"`
	StartUnixNanos int64       `json:"start_unix_nanos"`
	EndUnixNanos   int64       `json:"end_unix_nanos"`
}

// ToJSON serializes the scorecard for storage or export.
func (sc *SessionScorecard) ToJSON() (string, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("marshal scorecard: %w", err)
	}
	return string(data), nil
}

// ParseSessionScorecard deserializes a scorecard produced by ToJSON.
// Rep order and field values round-trip exactly.
func ParseSessionScorecard(data string) (*SessionScorecard, error) {
	var sc SessionScorecard
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		return nil, fmt.Errorf("parse scorecard: %w", err)
	}
	return &sc, nil
}
