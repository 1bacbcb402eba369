package engine

import (
	"fmt"
	"math"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

// DipDetector is the primary lane: a pullback into a Fibonacci/support zone
// confirmed by a bounce candle on a dry-then-hot volume regime. All seven
// conditions must hold; the first failing one becomes the wait reason.
type DipDetector struct{}

func (DipDetector) Kind() CandidateKind { return KindDip }
func (DipDetector) Lane() Lane          { return LaneDip }

func (DipDetector) Detect(in DetectInput, cfg *Config) Candidate {
	bars, snap := in.Bars, in.Snap
	d := cfg.Dip
	n := len(bars)
	if n < 2 {
		return wait(KindDip, ReasonInsufficientHistory, "need at least 2 bars")
	}

	cur := bars[n-1]
	prev := bars[n-2]
	atr := floorValue(snap.ATR14, snap.Price)

	// Locate the recent swing high and the dip low after it.
	winStart := n - 1 - d.LookbackBars
	if winStart < 1 {
		winStart = 1
	}
	hiIdx := winStart
	for i := winStart; i < n; i++ {
		if bars[i].High > bars[hiIdx].High {
			hiIdx = i
		}
	}
	swingHigh := bars[hiIdx].High
	loIdx := hiIdx
	dipLow := bars[hiIdx].Low
	for i := hiIdx; i < n; i++ {
		if bars[i].Low < dipLow {
			dipLow = bars[i].Low
			loIdx = i
		}
	}
	depth := swingHigh - dipLow
	pullbackPct := 0.0
	if swingHigh > 0 {
		pullbackPct = depth / swingHigh * 100
	}

	// (a) real pullback
	if pullbackPct < d.MinPullbackPct && depth < d.MinPullbackATR*atr {
		return wait(KindDip, ReasonNoPullback,
			fmt.Sprintf("pullback %.2f%% / %.2f ATR below %.2f%% / %.2f ATR",
				pullbackPct, depth/atr, d.MinPullbackPct, d.MinPullbackATR))
	}

	// (b) retracement inside the Fibonacci band of the swing off the prior
	// pivot low
	priorLow := priorPivotLow(bars, hiIdx)
	swingSpan := swingHigh - priorLow
	retr := math.NaN()
	if swingSpan > 0 {
		retr = depth / swingSpan
	}
	if math.IsNaN(retr) || retr < d.FibLow-d.FibTolerance || retr > d.FibHigh+d.FibTolerance {
		return wait(KindDip, ReasonFibBand,
			fmt.Sprintf("retracement %.3f outside [%.3f, %.3f]",
				retr, d.FibLow-d.FibTolerance, d.FibHigh+d.FibTolerance))
	}

	// (c) fresh dip low sitting on MA support or a tested level
	age := n - 1 - loIdx
	if age > d.FreshnessBars {
		return wait(KindDip, ReasonDipStale,
			fmt.Sprintf("dip low %d bars old, max %d", age, d.FreshnessBars))
	}
	support := dipSupport(snap, dipLow, atr, d)
	if support == "" {
		if touches := countTouches(bars, dipLow, d.SupportTolATR*atr, loIdx); touches >= d.SupportTouches {
			support = fmt.Sprintf("level tested %dx", touches)
		}
	}
	if support == "" {
		return wait(KindDip, ReasonNoSupport, "dip low away from MA25/MA50 and untested")
	}

	// (d) confirmed bounce candle with enough strength off the low
	if !isBounceCandle(cur, prev) {
		return wait(KindDip, ReasonNoBounce, "no reclaim/hammer/engulfing/reversal bar")
	}
	strength := (cur.Close - dipLow) / atr
	if strength < d.MinBounceATR {
		return wait(KindDip, ReasonBounceWeak,
			fmt.Sprintf("bounce %.2f ATR below %.2f", strength, d.MinBounceATR))
	}

	// (e) dry pullback then hot bounce volume
	avg20 := snap.AvgVolume20
	pullAvg := avgVolume(bars, hiIdx+1, loIdx+1)
	dry := math.IsNaN(pullAvg) || (!math.IsNaN(avg20) && pullAvg <= d.DryVolumeMult*avg20)
	hot := !math.IsNaN(avg20) && cur.Volume >= d.HotVolumeMult*avg20
	if !dry || !hot {
		return wait(KindDip, ReasonVolumeRegime,
			fmt.Sprintf("pullback vol %.2fx avg, bounce vol %.2fx avg",
				ratioOrNaN(pullAvg, avg20), ratioOrNaN(cur.Volume, avg20)))
	}

	// (f) not already recovered past the cap
	if depth > 0 && cur.Close-dipLow > d.MaxRecovered*depth {
		return wait(KindDip, ReasonAlreadyRecovered,
			fmt.Sprintf("recovered %.0f%% of the dip span, cap %.0f%%",
				(cur.Close-dipLow)/depth*100, d.MaxRecovered*100))
	}

	// (g) higher low versus the window before the swing high
	priorWindowLow := lowestLowRange(bars, hiIdx-d.HigherLowBars, hiIdx)
	if !(dipLow > priorWindowLow) {
		return wait(KindDip, ReasonNoHigherLow,
			fmt.Sprintf("dip low %.2f not above prior window low %.2f", dipLow, priorWindowLow))
	}

	stop := dipLow - d.StopATR*atr
	target := cur.Close + d.TargetATR*atr
	if hh := highestHigh(bars, d.TargetHighBars); hh > target {
		target = hh
	}
	first, second, hasFirst, hasSecond := in.Levels.nearestAbove(cur.Close)
	nearestRes := 0.0
	if hasFirst {
		nearestRes = first
		if first-cur.Close < d.ResStepATR*atr && hasSecond {
			target = second
		}
	}

	return Candidate{
		Kind:      KindDip,
		Triggered: true,
		Why: fmt.Sprintf("DIP: %.1f%% pullback (%.0f%% retrace) to %s, bounce %.1f ATR on %.1fx volume",
			pullbackPct, retr*100, support, strength, ratioOrNaN(cur.Volume, avg20)),
		Stop:       stop,
		Target:     target,
		NearestRes: nearestRes,
	}
}

// priorPivotLow scans back from the swing high for the last pivot low; when
// no pivot exists it falls back to the lowest low of the 20 bars before the
// swing high.
func priorPivotLow(bars []marketdata.Bar, hiIdx int) float64 {
	stop := hiIdx - 40
	if stop < 1 {
		stop = 1
	}
	for j := hiIdx - 1; j >= stop; j-- {
		if isSwingLow(bars, j) {
			return bars[j].Low
		}
	}
	return lowestLowRange(bars, hiIdx-20, hiIdx)
}

// dipSupport describes which MA band holds the dip low, empty when neither.
func dipSupport(snap indicators.Snapshot, dipLow, atr float64, d DipConfig) string {
	near := func(ma float64) bool {
		if !indicators.HasMA(ma) {
			return false
		}
		dist := math.Abs(dipLow - ma)
		return dist <= d.MAToleranceATR*atr || dist/ma*100 <= d.MATolerancePct
	}
	if near(snap.MA25) {
		return "MA25"
	}
	if near(snap.MA50) {
		return "MA50"
	}
	return ""
}

// countTouches counts bars in the level window whose low printed within tol
// of level, excluding the dip-low bar itself.
func countTouches(bars []marketdata.Bar, level, tol float64, excludeIdx int) int {
	start := len(bars) - levelWindowBars
	if start < 0 {
		start = 0
	}
	count := 0
	for i := start; i < len(bars); i++ {
		if i == excludeIdx {
			continue
		}
		if math.Abs(bars[i].Low-level) <= tol {
			count++
		}
	}
	return count
}

func ratioOrNaN(v, base float64) float64 {
	if math.IsNaN(v) || math.IsNaN(base) || base <= 0 {
		return math.NaN()
	}
	return v / base
}
