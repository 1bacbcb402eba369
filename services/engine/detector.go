package engine

import (
	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

// CandidateKind names the entry thesis a detector proposes.
type CandidateKind string

const (
	KindDip            CandidateKind = "DIP"
	KindBreakout       CandidateKind = "BREAKOUT"
	KindLegacyBreakout CandidateKind = "LEGACY_BREAKOUT"
	KindContinuation   CandidateKind = "CONTINUATION"
)

// Candidate is one detector's proposal for the current bar. It is created
// and consumed within a single decision step. NearestRes is 0 when no
// resistance sits above the entry.
type Candidate struct {
	Kind       CandidateKind
	Triggered  bool
	Why        string
	WaitReason ReasonCode
	WaitDetail string
	Stop       float64
	Target     float64
	NearestRes float64
}

// DetectInput bundles the per-bar context shared by all detectors.
type DetectInput struct {
	Snap      indicators.Snapshot
	Bars      []marketdata.Bar
	Structure MarketStructure
	Levels    Levels
}

// Detector is the common contract: total over well-formed input, never
// panics, and always reports a wait reason when not triggering.
type Detector interface {
	Kind() CandidateKind
	Lane() Lane
	Detect(in DetectInput, cfg *Config) Candidate
}

// detectorsFor returns the detector instances for the enabled lanes, in
// fixed lane order.
func detectorsFor(lanes Lanes) []Detector {
	var out []Detector
	if lanes.Has(LaneDip) {
		out = append(out, DipDetector{})
	}
	if lanes.Has(LaneBreakout) {
		out = append(out, BreakoutDetector{})
	}
	if lanes.Has(LaneLegacyBreakout) {
		out = append(out, LegacyBreakoutDetector{})
	}
	if lanes.Has(LaneContinuation) {
		out = append(out, ContinuationDetector{})
	}
	return out
}

func wait(kind CandidateKind, code ReasonCode, detail string) Candidate {
	return Candidate{Kind: kind, WaitReason: code, WaitDetail: detail}
}
