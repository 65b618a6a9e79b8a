package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/motion.report/internal/testutil"
)

func TestChannelChart(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.feedFrames(t, 60)

	rec := ts.get(t, "/debug/channel-chart?channel=shoulder_L_abd")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
	assert.Contains(t, rec.Body.String(), "shoulder_L_abd")
}

func TestChannelChartErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec := ts.get(t, "/debug/channel-chart")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = ts.get(t, "/debug/channel-chart?channel=knee_L_flex")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestTrajectoryPNG(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.feedFrames(t, 60)

	rec := ts.get(t, "/debug/trajectory.png?channel=shoulder_L_abd")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Greater(t, rec.Body.Len(), 8)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"), "body should be a PNG")
}

func TestTrajectoryPNGErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec := ts.get(t, "/debug/trajectory.png")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = ts.get(t, "/debug/trajectory.png?channel=knee_L_flex")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}
