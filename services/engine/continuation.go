package engine

import (
	"fmt"
	"math"

	"swing-engine/services/indicators"
)

// ContinuationDetector (SPC) admits friendly-tape pauses in a running trend:
// a tiny dip, an inside bar, or tight-range drift, with momentum intact. A
// strong-close override accepts a higher-high/higher-low bar even when the
// tape condition itself fails.
type ContinuationDetector struct{}

func (ContinuationDetector) Kind() CandidateKind { return KindContinuation }
func (ContinuationDetector) Lane() Lane          { return LaneContinuation }

func (ContinuationDetector) Detect(in DetectInput, cfg *Config) Candidate {
	bars, snap := in.Bars, in.Snap
	c := cfg.Continuation
	n := len(bars)
	if n < 3 {
		return wait(KindContinuation, ReasonInsufficientHistory, "need at least 3 bars")
	}

	cur := bars[n-1]
	prev := bars[n-2]
	atr := floorValue(snap.ATR14, snap.Price)

	if in.Structure.Trend == TrendDown {
		return wait(KindContinuation, ReasonTrendDown, "structure score 0")
	}

	tinyDip := highestHigh(bars, 10)-cur.Low <= c.TinyDipATR*atr
	inside := isInsideBar(cur, prev)
	drift := tightDrift(in, c)
	tape := tinyDip || inside || drift

	override := false
	if !tape {
		strongClose := closePosition(cur) >= c.StrongClosePos
		if strongClose && cur.High > prev.High && cur.Low > prev.Low {
			override = true
		} else {
			return wait(KindContinuation, ReasonTapeNotFriendly,
				"no tiny dip, inside bar or tight drift")
		}
	}

	twoDayHigh := prev.High
	if bars[n-3].High > twoDayHigh {
		twoDayHigh = bars[n-3].High
	}
	momentum := cur.Close > prev.High || cur.Close > twoDayHigh || isGreen(cur)
	if !momentum {
		return wait(KindContinuation, ReasonNoMomentum, "close below recent highs on a red day")
	}

	if indicators.HasMA(snap.MA25) {
		ext := (cur.Close - snap.MA25) / atr
		if ext > c.MaxExtensionATR {
			return wait(KindContinuation, ReasonOverExtendedSPC,
				fmt.Sprintf("%.2f ATR above MA25, cap %.2f", ext, c.MaxExtensionATR))
		}
	}

	nearestRes, _, hasRes, _ := in.Levels.nearestAbove(cur.Close)
	if hasRes {
		headroom := (nearestRes - cur.Close) / atr
		if headroom < c.MinHeadroomATR {
			return wait(KindContinuation, ReasonNoHeadroomSPC,
				fmt.Sprintf("%.2f ATR to resistance %.2f, need %.2f",
					headroom, nearestRes, c.MinHeadroomATR))
		}
	} else {
		nearestRes = 0
	}

	shape := "tiny dip"
	switch {
	case override:
		shape = "strong-close override"
	case inside:
		shape = "inside bar"
	case drift && !tinyDip:
		shape = "tight drift"
	}

	return Candidate{
		Kind:      KindContinuation,
		Triggered: true,
		Why: fmt.Sprintf("SPC: %s in %s trend, close %.2f", shape,
			in.Structure.Trend, cur.Close),
		Stop:       lowestLow(bars, 5) - c.StopATR*atr,
		Target:     cur.Close + c.TargetATR*atr,
		NearestRes: nearestRes,
	}
}

// tightDrift: the last DriftBars bars each held a range at or under
// TightRangePct of their close.
func tightDrift(in DetectInput, c ContinuationConfig) bool {
	bars := in.Bars
	n := len(bars)
	if c.DriftBars <= 0 || n < c.DriftBars {
		return false
	}
	for i := n - c.DriftBars; i < n; i++ {
		b := bars[i]
		if b.Close <= 0 {
			return false
		}
		if (b.High-b.Low)/b.Close*100 > c.TightRangePct {
			return false
		}
	}
	return !math.IsNaN(bars[n-1].Close)
}
