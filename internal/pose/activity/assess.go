package activity

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/geometry"
	"github.com/strideworks/motion.report/internal/pose/scoring"
)

// Geometric cue thresholds, in normalized image units unless noted.
const (
	// countableScore is the minimum band score for a countable joint
	// (the Amber floor).
	countableScore = 0.5
	// hipDropMin is the mid-hip vertical descent required for a squat.
	hipDropMin = 0.03
	// reachMaxHipWidths is the wrist-to-foot proximity bound for
	// forward flexion, in hip widths.
	reachMaxHipWidths = 0.60
	// ankleRiseMin is the vertical ankle excursion required for a calf
	// raise, in hip widths.
	ankleRiseMin = 0.05
	// rhythmMinCorrelation is the arm/leg trend correlation floor for
	// jumping jacks.
	rhythmMinCorrelation = 0.2
	// wristFloor is the confidence floor for midline-crossing checks.
	wristFloor = 0.4
	rhythmGrid = 20
)

// JointBand is one joint's score and band within a rep.
type JointBand struct {
	Score float64   `json:"score"`
	Band  pose.Band `json:"band"`
}

// Assessment is the activity-specific verdict for one detected rep.
type Assessment struct {
	Counted bool                         `json:"counted"`
	Bands   map[pose.ChannelID]JointBand `json:"bands"`
	Message string                       `json:"message"`
}

// RepWindow carries everything an assessor may inspect about one rep:
// the smoothed channel series, the raw keypoint frames inside the rep
// interval, and the side the session locked for ANY channels.
type RepWindow struct {
	StartUnixNanos int64
	EndUnixNanos   int64
	Series         map[pose.ChannelID][]pose.AngleSample
	Frames         []*pose.KeypointFrame
	Side           pose.Side
}

// Assess applies the activity's validity rules to a detected rep.
// Activities without specific rules count every detected rep.
func Assess(t *Template, w RepWindow, rules scoring.Rules) Assessment {
	rules = t.Rules(rules)
	switch t.ID {
	case "squat":
		return assessSquat(t, w, rules)
	case "arm_abduction":
		return assessArmAbduction(t, w, rules)
	case "forward_flexion":
		return assessForwardFlexion(t, w, rules)
	case "calf_raise":
		return assessCalfRaise(t, w, rules)
	case "jumping_jack":
		return assessJumpingJack(t, w, rules)
	}
	return Assessment{Counted: true, Bands: map[pose.ChannelID]JointBand{}, Message: "ok"}
}

// lockedSide resolves the side for single-sided rules, defaulting left.
func (w RepWindow) lockedSide() pose.Side {
	if w.Side == pose.SideLeft || w.Side == pose.SideRight {
		return w.Side
	}
	return pose.SideLeft
}

func verdict(counted bool, bands map[pose.ChannelID]JointBand, cues []string) Assessment {
	msg := "ok"
	if len(cues) > 0 {
		msg = strings.Join(cues, "; ")
	}
	return Assessment{Counted: counted, Bands: bands, Message: msg}
}

func assessSquat(t *Template, w RepWindow, rules scoring.Rules) Assessment {
	bands := make(map[pose.ChannelID]JointBand, len(t.PrimaryJoints))
	for _, ch := range t.PrimaryJoints {
		s, band := scoring.ScoreBand(w.peak(ch), t.Target(ch, 90), rules)
		bands[ch] = JointBand{Score: s, Band: band}
	}

	// Mid-hip descent cue. Image y grows downward, so a squat raises
	// the max-min spread of the hip centre's y.
	var hipYs []float64
	for _, f := range w.Frames {
		l, okL := f.Joint(pose.JointLeftHip, geometry.DefaultConfidenceFloor)
		r, okR := f.Joint(pose.JointRightHip, geometry.DefaultConfidenceFloor)
		if okL && okR {
			hipYs = append(hipYs, 0.5*(l.Y+r.Y))
		}
	}
	dropped := len(hipYs) >= 3 && spread(hipYs) >= hipDropMin

	bestKnee := math.Max(bands["knee_L_flex"].Score, bands["knee_R_flex"].Score)

	var cues []string
	if bestKnee < countableScore {
		cues = append(cues, "bend knees deeper")
	}
	if !dropped {
		cues = append(cues, "lower hips more")
	}
	return verdict(bestKnee >= countableScore && dropped, bands, cues)
}

func assessArmAbduction(t *Template, w RepWindow, rules scoring.Rules) Assessment {
	bands := make(map[pose.ChannelID]JointBand, 2)
	for _, ch := range t.PrimaryJoints {
		s, band := scoring.ScoreBand(w.peak(ch), t.Target(ch, 175), rules)
		bands[ch] = JointBand{Score: s, Band: band}
	}
	best := math.Max(bands["shoulder_L_abd"].Score, bands["shoulder_R_abd"].Score)

	// Midline-crossing cue: the left-right wrist x difference changes
	// sign when the wrists pass overhead.
	var wrx []float64
	for _, f := range w.Frames {
		lw, okL := f.Joint(pose.JointLeftWrist, wristFloor)
		rw, okR := f.Joint(pose.JointRightWrist, wristFloor)
		if okL && okR {
			wrx = append(wrx, lw.X-rw.X)
		}
	}
	crossed := false
	for i := 1; i < len(wrx); i++ {
		if wrx[i-1] == 0 || wrx[i] == 0 || (wrx[i-1] > 0) != (wrx[i] > 0) {
			crossed = true
			break
		}
	}
	// Too few visible wrist samples to judge: do not block the rep.
	judgeable := len(wrx) >= 3

	var cues []string
	if best < countableScore {
		cues = append(cues, "raise arms wider")
	}
	if judgeable && !crossed {
		cues = append(cues, "wrists did not cross midline")
	}
	return verdict(best >= countableScore && (crossed || !judgeable), bands, cues)
}

func assessForwardFlexion(t *Template, w RepWindow, rules scoring.Rules) Assessment {
	side := w.lockedSide()
	shoulderCh := pose.Channel("shoulder", side, "flex")
	hipCh := pose.Channel("hip", side, "flex")

	bands := make(map[pose.ChannelID]JointBand, 2)
	sSh, bSh := scoring.ScoreBand(w.peak(shoulderCh), t.Target(shoulderCh, 90), rules)
	bands[shoulderCh] = JointBand{Score: sSh, Band: bSh}
	sHip, bHip := scoring.ScoreBand(w.peak(hipCh), t.Target(hipCh, 30), rules)
	bands[hipCh] = JointBand{Score: sHip, Band: bHip}

	dmin, measured := w.minWristToFootNorm(side)
	proxOK := measured && dmin <= reachMaxHipWidths

	var cues []string
	if sSh < countableScore {
		cues = append(cues, "flex shoulder more")
	}
	if !proxOK {
		cues = append(cues, "reach closer to feet")
	}

	// Unverifiable or weak reach degrades the reported band even when
	// the angle itself was in range.
	if !measured {
		bands[shoulderCh] = JointBand{Score: sSh, Band: pose.BandRed}
	} else if !proxOK && bSh == pose.BandGreen {
		bands[shoulderCh] = JointBand{Score: countableScore, Band: pose.BandAmber}
	}
	return verdict(sSh >= countableScore && proxOK, bands, cues)
}

func assessCalfRaise(t *Template, w RepWindow, rules scoring.Rules) Assessment {
	side := w.lockedSide()
	ankleCh := pose.Channel("ankle", side, "pf")

	bands := make(map[pose.ChannelID]JointBand, 1)
	s, band := scoring.ScoreBand(w.peak(ankleCh), t.Target(ankleCh, 25), rules)
	bands[ankleCh] = JointBand{Score: s, Band: band}

	rise, measured := w.ankleRiseNorm(side)
	riseOK := measured && rise >= ankleRiseMin

	var cues []string
	if s < countableScore {
		cues = append(cues, "plantarflex more")
	}
	if !riseOK {
		cues = append(cues, "rise onto toes more")
	}

	if !measured {
		bands[ankleCh] = JointBand{Score: s, Band: pose.BandRed}
	} else if !riseOK && band == pose.BandGreen {
		bands[ankleCh] = JointBand{Score: countableScore, Band: pose.BandAmber}
	}
	return verdict(s >= countableScore && riseOK, bands, cues)
}

func assessJumpingJack(t *Template, w RepWindow, rules scoring.Rules) Assessment {
	bands := make(map[pose.ChannelID]JointBand, 4)
	for _, ch := range t.PrimaryJoints {
		s, band := scoring.ScoreBand(w.peak(ch), t.Target(ch, 90), rules)
		bands[ch] = JointBand{Score: s, Band: band}
	}
	bestArm := math.Max(bands["shoulder_L_abd"].Score, bands["shoulder_R_abd"].Score)
	bestLeg := math.Max(bands["hip_L_abd"].Score, bands["hip_R_abd"].Score)

	// Rhythm cue: arm and leg abduction should move together. Compare
	// the first differences of the mean arm and mean leg trajectories
	// on a shared grid.
	arms := w.meanSeries("shoulder_L_abd", "shoulder_R_abd")
	legs := w.meanSeries("hip_L_abd", "hip_R_abd")
	rhythmOK := true
	if len(arms) >= 4 && len(legs) >= 4 {
		da, dl := trendPair(arms, legs)
		corr := 0.0
		if stat.StdDev(da, nil) > 1e-3 && stat.StdDev(dl, nil) > 1e-3 {
			corr = stat.Correlation(da, dl, nil)
		}
		rhythmOK = corr >= rhythmMinCorrelation
	}

	var cues []string
	if bestArm < countableScore {
		cues = append(cues, "raise arms higher")
	}
	if bestLeg < countableScore {
		cues = append(cues, "spread legs wider")
	}
	if !rhythmOK {
		cues = append(cues, "sync arms and legs")
	}
	return verdict(bestArm >= countableScore && bestLeg >= countableScore && rhythmOK, bands, cues)
}

//
// Window helpers
//

// peak returns the maximum defined value of a channel inside the rep
// interval, NaN when nothing qualifies.
func (w RepWindow) peak(ch pose.ChannelID) float64 {
	peak := math.NaN()
	for _, s := range w.Series[ch] {
		if s.TSUnixNanos < w.StartUnixNanos || s.TSUnixNanos > w.EndUnixNanos || !s.Defined() {
			continue
		}
		if math.IsNaN(peak) || s.Value > peak {
			peak = s.Value
		}
	}
	return peak
}

func spread(xs []float64) float64 {
	min, max := xs[0], xs[0]
	for _, x := range xs[1:] {
		min = math.Min(min, x)
		max = math.Max(max, x)
	}
	return max - min
}

func sideWristAnkle(side pose.Side) (wrist, ankle pose.JointName) {
	if side == pose.SideRight {
		return pose.JointRightWrist, pose.JointRightAnkle
	}
	return pose.JointLeftWrist, pose.JointLeftAnkle
}

// minWristToFootNorm finds the smallest same-side wrist-to-ankle
// distance across the rep, in hip widths. The second return is false
// when no frame had the full geometry.
func (w RepWindow) minWristToFootNorm(side pose.Side) (float64, bool) {
	wristN, ankleN := sideWristAnkle(side)
	best := math.NaN()
	for _, f := range w.Frames {
		wp, okW := f.Joint(wristN, geometry.DefaultConfidenceFloor)
		ap, okA := f.Joint(ankleN, geometry.DefaultConfidenceFloor)
		hw := geometry.HipWidth(f, geometry.DefaultConfidenceFloor)
		if !okW || !okA || math.IsNaN(hw) || hw <= 1e-6 {
			continue
		}
		d := math.Hypot(wp.X-ap.X, wp.Y-ap.Y) / hw
		if math.IsNaN(best) || d < best {
			best = d
		}
	}
	return best, !math.IsNaN(best)
}

// ankleRiseNorm measures the vertical ankle excursion across the rep
// in hip widths, using the median hip width for scale.
func (w RepWindow) ankleRiseNorm(side pose.Side) (float64, bool) {
	_, ankleN := sideWristAnkle(side)
	var ys, hws []float64
	for _, f := range w.Frames {
		ap, ok := f.Joint(ankleN, geometry.DefaultConfidenceFloor)
		hw := geometry.HipWidth(f, geometry.DefaultConfidenceFloor)
		if !ok || math.IsNaN(hw) || hw <= 1e-6 {
			continue
		}
		ys = append(ys, ap.Y)
		hws = append(hws, hw)
	}
	if len(ys) < 2 {
		return 0, false
	}
	sort.Float64s(hws)
	return spread(ys) / hws[len(hws)/2], true
}

// meanSeries averages several channels' defined samples per timestamp
// inside the rep interval, returned in time order.
func (w RepWindow) meanSeries(chs ...pose.ChannelID) []pose.AngleSample {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[int64]*acc)
	for _, ch := range chs {
		for _, s := range w.Series[ch] {
			if s.TSUnixNanos < w.StartUnixNanos || s.TSUnixNanos > w.EndUnixNanos || !s.Defined() {
				continue
			}
			a := buckets[s.TSUnixNanos]
			if a == nil {
				a = &acc{}
				buckets[s.TSUnixNanos] = a
			}
			a.sum += s.Value
			a.n++
		}
	}
	out := make([]pose.AngleSample, 0, len(buckets))
	for ts, a := range buckets {
		out = append(out, pose.AngleSample{Value: a.sum / float64(a.n), TSUnixNanos: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TSUnixNanos < out[j].TSUnixNanos })
	return out
}

// trendPair resamples both series onto a shared grid over their time
// overlap and returns the first differences of each.
func trendPair(a, b []pose.AngleSample) (da, db []float64) {
	t0 := maxI64(a[0].TSUnixNanos, b[0].TSUnixNanos)
	t1 := minI64(a[len(a)-1].TSUnixNanos, b[len(b)-1].TSUnixNanos)
	if t1 <= t0 {
		return nil, nil
	}
	va := make([]float64, rhythmGrid)
	vb := make([]float64, rhythmGrid)
	for i := 0; i < rhythmGrid; i++ {
		ts := t0 + int64(float64(t1-t0)*float64(i)/float64(rhythmGrid-1))
		va[i] = interpAt(a, ts)
		vb[i] = interpAt(b, ts)
	}
	da = make([]float64, rhythmGrid-1)
	db = make([]float64, rhythmGrid-1)
	for i := 1; i < rhythmGrid; i++ {
		da[i-1] = va[i] - va[i-1]
		db[i-1] = vb[i] - vb[i-1]
	}
	return da, db
}

// interpAt linearly interpolates a time-ordered series at ts, clamping
// to the endpoints.
func interpAt(s []pose.AngleSample, ts int64) float64 {
	if ts <= s[0].TSUnixNanos {
		return s[0].Value
	}
	if ts >= s[len(s)-1].TSUnixNanos {
		return s[len(s)-1].Value
	}
	i := sort.Search(len(s), func(i int) bool { return s[i].TSUnixNanos >= ts })
	lo, hi := s[i-1], s[i]
	frac := float64(ts-lo.TSUnixNanos) / float64(hi.TSUnixNanos-lo.TSUnixNanos)
	return lo.Value + frac*(hi.Value-lo.Value)
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
