package engine

import (
	"math"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

// GuardDiagnostics is the payload attached to every guard verdict, vetoed or
// not, so telemetry can build distributions from passing bars too. Fields
// stay finite so the struct marshals cleanly; the Has flags mark which
// readings exist.
type GuardDiagnostics struct {
	RSI            float64 `json:"rsi"`
	HeadroomATR    float64 `json:"headroomATR"`
	HeadroomPct    float64 `json:"headroomPct"`
	DistFromMA25   float64 `json:"distFromMA25_ATR"`
	ConsecUp       int     `json:"consecUp"`
	HasResistance  bool    `json:"hasResistance"`
	HasMA25        bool    `json:"hasMA25"`
	ThinMarginUsed bool    `json:"thinMarginUsed,omitempty"`
}

// CheckGuards runs the veto chain on an RR-acceptable candidate. The order is
// fixed: RSI ceiling, headroom, extension above MA25, consecutive up-days.
// First veto wins; an empty code means the candidate passed.
func CheckGuards(bars []marketdata.Bar, snap indicators.Snapshot,
	lv Levels, rr RRResult, cfg *Config) (ReasonCode, GuardDiagnostics) {

	g := cfg.Guards
	atr := floorValue(snap.ATR14, snap.Price)

	diag := GuardDiagnostics{ConsecUp: consecUpDays(bars)}
	if !math.IsNaN(snap.RSI14) {
		diag.RSI = snap.RSI14
	}
	if first, _, ok, _ := lv.nearestAbove(snap.Price); ok {
		diag.HasResistance = true
		diag.HeadroomATR = (first - snap.Price) / atr
		diag.HeadroomPct = (first - snap.Price) / snap.Price * 100
	}
	if indicators.HasMA(snap.MA25) {
		diag.HasMA25 = true
		diag.DistFromMA25 = (snap.Price - snap.MA25) / atr
	}

	if !math.IsNaN(snap.RSI14) && snap.RSI14 >= g.RSICeiling {
		return ReasonRSICeiling, diag
	}

	// Headroom only vetoes when the RR cushion over the floor is thin; a fat
	// ratio is allowed to press into nearby resistance.
	if diag.HasResistance &&
		diag.HeadroomATR < g.MinHeadroomATR && diag.HeadroomPct < g.MinHeadroomPct {
		if rr.Ratio-rr.Need < g.ThinRRMargin {
			diag.ThinMarginUsed = true
			return ReasonHeadroomThin, diag
		}
	}

	if diag.HasMA25 && diag.DistFromMA25 > g.MaxExtensionATR {
		return ReasonOverExtended, diag
	}

	if diag.ConsecUp > g.MaxConsecUp {
		return ReasonConsecUp, diag
	}

	return "", diag
}
