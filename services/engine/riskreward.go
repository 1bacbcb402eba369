package engine

import (
	"fmt"
	"math"

	"swing-engine/services/indicators"
)

// RRResult is the RR-evaluated, possibly adjusted version of a candidate.
type RRResult struct {
	Acceptable bool    `json:"acceptable"`
	Probation  bool    `json:"probation,omitempty"`
	Ratio      float64 `json:"ratio"`
	Stop       float64 `json:"stop"`
	Target     float64 `json:"target"`
	Need       float64 `json:"need"`
	Risk       float64 `json:"risk"`
	Reward     float64 `json:"reward"`
	ATR        float64 `json:"atr"`
	Detail     string  `json:"detail,omitempty"`
}

// EvaluateRR enforces the regime-dependent minimum stop distance, steps the
// target past a too-close first resistance, and tests the resulting ratio
// against the regime floor. swingLow is the recent swing low used for the
// structural-stop justification.
func EvaluateRR(entry float64, cand Candidate, snap indicators.Snapshot,
	ms MarketStructure, lv Levels, swingLow float64, cfg *Config) RRResult {

	rr := cfg.RR
	atr := floorValue(snap.ATR14, entry)
	stop := cand.Stop
	target := cand.Target

	// Minimum stop distance, unless the proposed stop is already anchored to
	// structure (swing low or MA25 computation), in which case the tighter
	// stop is trusted.
	minDist := rr.minStopATRFor(ms.Trend) * atr
	if entry-stop < minDist && !structuralStop(stop, swingLow, snap.MA25, atr, cfg) {
		stop = entry - minDist
	}

	// Step the target to the second resistance when the first sits on top of
	// the entry.
	first, second, hasFirst, hasSecond := lv.nearestAbove(entry)
	if hasFirst && first-entry < rr.ResStepATR*atr && hasSecond {
		target = second
	}

	risk := floorValue(entry-stop, entry)
	reward := target - entry

	need := rr.FloorBase
	if f := rr.floorFor(ms.Trend); f > need {
		need = f
	}
	atrPct := atr / entry * 100
	if atrPct < rr.LowATRPct {
		need -= rr.LowNudge
	} else if atrPct > rr.HighATRPct {
		need += rr.HighNudge
	}
	if need < 1.0 {
		need = 1.0
	}

	out := RRResult{
		Stop:   stop,
		Target: target,
		Need:   need,
		Risk:   risk,
		Reward: reward,
		ATR:    atr,
	}
	if reward <= 0 {
		out.Detail = fmt.Sprintf("target %.2f at or below entry %.2f", target, entry)
		return out
	}
	out.Ratio = reward / risk
	out.Acceptable = out.Ratio >= need

	if !out.Acceptable && rr.ProbationEnabled &&
		out.Ratio >= need-rr.ProbationSlack &&
		(ms.Trend == TrendStrongUp || ms.Trend == TrendUp) &&
		!math.IsNaN(snap.RSI14) && snap.RSI14 < rr.ProbationMaxRSI {
		out.Acceptable = true
		out.Probation = true
	}
	if !out.Acceptable {
		out.Detail = fmt.Sprintf("RR %.2f below %.2f floor", out.Ratio, need)
	}
	return out
}

// structuralStop reports whether stop sits within the structural tolerance
// of the swing-low or MA25 computation.
func structuralStop(stop, swingLow, ma25, atr float64, cfg *Config) bool {
	tol := cfg.RR.StructuralTolATR * atr
	if !math.IsInf(swingLow, 1) && math.Abs(stop-(swingLow-cfg.TrailSwingATR*atr)) <= tol {
		return true
	}
	if indicators.HasMA(ma25) && math.Abs(stop-(ma25-cfg.TrailMA25ATR*atr)) <= tol {
		return true
	}
	return false
}
