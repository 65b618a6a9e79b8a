package pose

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorecardRoundTrip(t *testing.T) {
	t.Parallel()

	guide := 97.25
	sc := &SessionScorecard{
		SessionID:  "3f0e8964-1f5a-4c53-9f64-6ec4d4a2b0aa",
		ActivityID: "squat",
		SetIndex:   2,
		RepResults: []RepResult{
			{RepIndex: 1, Channel: "knee_L_flex", PeakAngle: 92, TargetAngle: 90, Score: 0.9, Band: BandGreen, Counted: true, StartUnixNanos: 100, EndUnixNanos: 900},
			{RepIndex: 2, Channel: "knee_L_flex", PeakAngle: 85, TargetAngle: 90, Score: 0.75, Band: BandGreen, SymmetryDelta: 3.5, Counted: true, Message: "ok", StartUnixNanos: 1000, EndUnixNanos: 1900},
			{RepIndex: 3, Channel: "knee_L_flex", PeakAngle: 98, TargetAngle: 90, Score: 0.6, Band: BandAmber, Counted: false, Message: "bend knees deeper", StartUnixNanos: 2000, EndUnixNanos: 2900},
		},
		FormStability:  0.87,
		SymmetryIndex:  3.5,
		FinalPercent:   81.3,
		GuideScore:     &guide,
		StartUnixNanos: 100,
		EndUnixNanos:   2900,
	}

	data, err := sc.ToJSON()
	require.NoError(t, err)

	back, err := ParseSessionScorecard(data)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(sc, back))

	// Rep order survives exactly.
	for i, rep := range back.RepResults {
		assert.Equal(t, i+1, rep.RepIndex)
	}
}

func TestScorecardParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseSessionScorecard("{not json")
	assert.Error(t, err)
}

func TestScorecardOmitsAbsentGuideScore(t *testing.T) {
	t.Parallel()

	sc := &SessionScorecard{SessionID: "s", ActivityID: "squat"}
	data, err := sc.ToJSON()
	require.NoError(t, err)
	assert.NotContains(t, data, "guide_score")
}
