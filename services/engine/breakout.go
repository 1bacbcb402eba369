package engine

import (
	"fmt"
	"math"
)

// BreakoutDetector is the strict resistance-breakout lane: a close pushing
// through the trailing base high on volume, with the opening gap capped.
type BreakoutDetector struct{}

func (BreakoutDetector) Kind() CandidateKind { return KindBreakout }
func (BreakoutDetector) Lane() Lane          { return LaneBreakout }

func (BreakoutDetector) Detect(in DetectInput, cfg *Config) Candidate {
	bars, snap := in.Bars, in.Snap
	b := cfg.Breakout
	n := len(bars)
	if n < b.BaseBars+b.ExcludeRecent+1 {
		return wait(KindBreakout, ReasonNoBase,
			fmt.Sprintf("need %d bars for the base, have %d", b.BaseBars+b.ExcludeRecent+1, n))
	}

	cur := bars[n-1]
	prev := bars[n-2]
	atr := floorValue(snap.ATR14, snap.Price)

	// Base high excludes the most recent bars so the breakout bar cannot
	// define its own resistance.
	end := n - b.ExcludeRecent
	resistance := math.Inf(-1)
	for i := end - b.BaseBars; i < end; i++ {
		if bars[i].High > resistance {
			resistance = bars[i].High
		}
	}

	required := resistance * (1 + b.MinClosePct/100)
	if cur.Close <= required {
		return wait(KindBreakout, ReasonNoBreakout,
			fmt.Sprintf("close %.2f below breakout level %.2f", cur.Close, required))
	}

	gapPct := 0.0
	if prev.Close > 0 {
		gapPct = (cur.Open - prev.Close) / prev.Close * 100
	}
	if gapPct > b.MaxGapPct {
		return wait(KindBreakout, ReasonGapTooWide,
			fmt.Sprintf("opening gap %.2f%% above cap %.2f%%", gapPct, b.MaxGapPct))
	}

	avg20 := snap.AvgVolume20
	if math.IsNaN(avg20) || cur.Volume < b.VolumeMult*avg20 {
		return wait(KindBreakout, ReasonVolumeLight,
			fmt.Sprintf("volume %.2fx the 20-day average, need %.2fx",
				ratioOrNaN(cur.Volume, avg20), b.VolumeMult))
	}

	if !math.IsNaN(snap.RSI14) && snap.RSI14 >= b.RSISoftCap {
		return wait(KindBreakout, ReasonRSIHot,
			fmt.Sprintf("RSI %.1f at or above soft cap %.1f", snap.RSI14, b.RSISoftCap))
	}

	nearestRes, _, hasRes, _ := in.Levels.nearestAbove(cur.Close)
	if !hasRes {
		nearestRes = 0
	}
	return Candidate{
		Kind:      KindBreakout,
		Triggered: true,
		Why: fmt.Sprintf("BREAKOUT: close %.2f above %d-bar high %.2f on %.1fx volume",
			cur.Close, b.BaseBars, resistance, ratioOrNaN(cur.Volume, avg20)),
		Stop:       resistance - b.StopATR*atr,
		Target:     cur.Close + b.TargetATR*atr,
		NearestRes: nearestRes,
	}
}

// LegacyBreakoutDetector is the flat-top variant: the base high must have
// been touched repeatedly before the push through.
type LegacyBreakoutDetector struct{}

func (LegacyBreakoutDetector) Kind() CandidateKind { return KindLegacyBreakout }
func (LegacyBreakoutDetector) Lane() Lane          { return LaneLegacyBreakout }

func (LegacyBreakoutDetector) Detect(in DetectInput, cfg *Config) Candidate {
	bars, snap := in.Bars, in.Snap
	l := cfg.Legacy
	n := len(bars)
	if n < l.BaseBars+1 {
		return wait(KindLegacyBreakout, ReasonNoBase,
			fmt.Sprintf("need %d bars for the base, have %d", l.BaseBars+1, n))
	}

	cur := bars[n-1]
	prev := bars[n-2]
	atr := floorValue(snap.ATR14, snap.Price)

	start := n - 1 - l.BaseBars
	level := math.Inf(-1)
	for i := start; i < n-1; i++ {
		if bars[i].High > level {
			level = bars[i].High
		}
	}

	touchFloor := level * (1 - l.TouchTolPct/100)
	touches := 0
	for i := start; i < n-1; i++ {
		if bars[i].High >= touchFloor {
			touches++
		}
	}
	if touches < l.MinTouches {
		return wait(KindLegacyBreakout, ReasonFewTouches,
			fmt.Sprintf("%d touches of %.2f, need %d", touches, level, l.MinTouches))
	}

	if cur.Close <= level || !isGreen(cur) {
		return wait(KindLegacyBreakout, ReasonNoBreakout,
			fmt.Sprintf("no decisive close above %.2f", level))
	}

	gapPct := 0.0
	if prev.Close > 0 {
		gapPct = (cur.Open - prev.Close) / prev.Close * 100
	}
	if gapPct > l.MaxGapPct {
		return wait(KindLegacyBreakout, ReasonGapTooWide,
			fmt.Sprintf("opening gap %.2f%% above cap %.2f%%", gapPct, l.MaxGapPct))
	}

	if !math.IsNaN(snap.RSI14) && snap.RSI14 >= l.RSICap {
		return wait(KindLegacyBreakout, ReasonRSIHot,
			fmt.Sprintf("RSI %.1f at or above cap %.1f", snap.RSI14, l.RSICap))
	}

	nearestRes, _, hasRes, _ := in.Levels.nearestAbove(cur.Close)
	if !hasRes {
		nearestRes = 0
	}
	return Candidate{
		Kind:      KindLegacyBreakout,
		Triggered: true,
		Why: fmt.Sprintf("FLAT-TOP: %d touches of %.2f, close %.2f through", touches,
			level, cur.Close),
		Stop:       level - l.StopATR*atr,
		Target:     cur.Close + l.TargetATR*atr,
		NearestRes: nearestRes,
	}
}
