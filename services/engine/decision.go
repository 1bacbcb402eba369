package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
	"swing-engine/services/sentiment"
)

// TimelineStage is one step of the post-entry management plan.
type TimelineStage struct {
	Trigger string  `json:"trigger"`
	Stop    float64 `json:"stop"`
	Action  string  `json:"action"`
}

// LaneWait records a detector that did not trigger on this bar.
type LaneWait struct {
	Kind   CandidateKind `json:"kind"`
	Code   ReasonCode    `json:"code"`
	Detail string        `json:"detail,omitempty"`
}

// RejectedCandidate is a detector trigger the aggregator turned down. The
// telemetry counterfactual lane replays these.
type RejectedCandidate struct {
	Candidate Candidate     `json:"-"`
	Kind      CandidateKind `json:"kind"`
	Code      ReasonCode    `json:"code"`
	Detail    string        `json:"detail,omitempty"`
	RR        RRResult      `json:"rr"`
}

// Decision is the aggregator verdict for one instrument bar.
type Decision struct {
	Ticker      string              `json:"ticker"`
	Date        time.Time           `json:"date"`
	BuyNow      bool                `json:"buyNow"`
	Kind        CandidateKind       `json:"kind,omitempty"`
	Why         string              `json:"why,omitempty"`
	WaitReason  ReasonCode          `json:"waitReason,omitempty"`
	WaitDetail  string              `json:"waitDetail,omitempty"`
	Entry       float64             `json:"entry"`
	Stop        float64             `json:"stop"`
	Target      float64             `json:"target"`
	Provisional bool                `json:"provisional,omitempty"`
	RR          RRResult            `json:"rr"`
	Guards      GuardDiagnostics    `json:"guards"`
	Timeline    []TimelineStage     `json:"timeline,omitempty"`
	Structure   MarketStructure     `json:"structure"`
	Levels      Levels              `json:"levels"`
	Sentiment   *sentiment.Scores   `json:"sentiment,omitempty"`
	Waits       []LaneWait          `json:"waits,omitempty"`
	Rejected    []RejectedCandidate `json:"rejected,omitempty"`
}

// Decide runs the enabled detectors on the latest bar, evaluates RR and the
// guard chain per trigger, and aggregates one verdict. Total over any input:
// short or broken series produce a non-actionable decision, never an error.
func Decide(bars []marketdata.Bar, snap indicators.Snapshot,
	scores *sentiment.Scores, cfg *Config) Decision {

	dec := Decision{
		Ticker:    snap.Ticker,
		Date:      snap.Date,
		Entry:     snap.Price,
		Sentiment: scores,
	}

	if len(bars) < cfg.MinHistoryBars {
		dec.WaitReason = ReasonInsufficientHistory
		dec.WaitDetail = fmt.Sprintf("%d bars, need %d", len(bars), cfg.MinHistoryBars)
		provisionalPlan(&dec, snap, cfg)
		return dec
	}
	if last := bars[len(bars)-1]; !last.Valid() {
		dec.WaitReason = ReasonInvalidBar
		dec.WaitDetail = last.Date.Format("2006-01-02")
		provisionalPlan(&dec, snap, cfg)
		return dec
	}

	dec.Structure = ClassifyStructure(snap, bars)
	dec.Levels = FindLevels(bars, snap.Price, snap.ATR14, snap.FiftyTwoWeekHigh)
	swingLow := lowestLow(bars, cfg.SwingLowBars)
	gateBlocked := scores != nil && !cfg.SentimentGate.Allows(*scores)

	type survivor struct {
		cand Candidate
		rr   RRResult
		diag GuardDiagnostics
	}
	var passed []survivor

	in := DetectInput{Snap: snap, Bars: bars, Structure: dec.Structure, Levels: dec.Levels}
	for _, det := range detectorsFor(cfg.Lanes) {
		cand := det.Detect(in, cfg)
		if !cand.Triggered {
			dec.Waits = append(dec.Waits, LaneWait{Kind: cand.Kind, Code: cand.WaitReason, Detail: cand.WaitDetail})
			continue
		}
		rr := EvaluateRR(snap.Price, cand, snap, dec.Structure, dec.Levels, swingLow, cfg)
		if cand.Kind == KindDip && gateBlocked {
			dec.Rejected = append(dec.Rejected, RejectedCandidate{
				Candidate: cand, Kind: cand.Kind, Code: ReasonSentimentGate,
				Detail: fmt.Sprintf("short %d long %d outside gate", scores.ShortTerm, scores.LongTerm),
				RR:     rr,
			})
			continue
		}
		if !rr.Acceptable {
			dec.Rejected = append(dec.Rejected, RejectedCandidate{
				Candidate: cand, Kind: cand.Kind, Code: ReasonRRShortfall, Detail: rr.Detail, RR: rr,
			})
			continue
		}
		code, diag := CheckGuards(bars, snap, dec.Levels, rr, cfg)
		dec.Guards = diag
		if code != "" {
			dec.Rejected = append(dec.Rejected, RejectedCandidate{
				Candidate: cand, Kind: cand.Kind, Code: code, RR: rr,
			})
			continue
		}
		passed = append(passed, survivor{cand: cand, rr: rr, diag: diag})
	}

	if len(passed) > 0 {
		best := passed[0]
		for _, s := range passed[1:] {
			if betterSurvivor(s.cand.Kind, s.rr.Ratio, best.cand.Kind, best.rr.Ratio) {
				best = s
			}
		}
		dec.BuyNow = true
		dec.Kind = best.cand.Kind
		dec.Why = best.cand.Why
		dec.RR = best.rr
		dec.Guards = best.diag
		dec.Stop = roundToTick(best.rr.Stop, cfg.TickSize)
		dec.Target = roundToTick(best.rr.Target, cfg.TickSize)
		trail := trailCandidate(dec.Stop, swingLow, snap.MA25, best.rr.ATR, cfg)
		dec.Timeline = buildTimeline(snap.Price, dec.Stop, trail, cfg.TickSize)
		return dec
	}

	dec.WaitReason, dec.WaitDetail = headlineBlock(dec.Waits, dec.Rejected)
	if len(dec.Rejected) > 0 {
		dec.RR = dec.Rejected[0].RR
	}
	provisionalPlan(&dec, snap, cfg)
	return dec
}

// betterSurvivor prefers DIP-kind candidates, then the higher RR ratio.
func betterSurvivor(kind CandidateKind, ratio float64, bestKind CandidateKind, bestRatio float64) bool {
	if (kind == KindDip) != (bestKind == KindDip) {
		return kind == KindDip
	}
	return ratio > bestRatio
}

// headlineBlock picks the clearest blocking reason: sentiment gate, then RR
// shortfall, then guard veto; with no trigger at all, the primary lane's
// wait code.
func headlineBlock(waits []LaneWait, rejected []RejectedCandidate) (ReasonCode, string) {
	if len(rejected) > 0 {
		best := rejected[0]
		for _, r := range rejected[1:] {
			if blockRank(r.Code) < blockRank(best.Code) ||
				(blockRank(r.Code) == blockRank(best.Code) && r.Kind == KindDip && best.Kind != KindDip) {
				best = r
			}
		}
		return best.Code, best.Detail
	}
	if len(waits) > 0 {
		return waits[0].Code, waits[0].Detail
	}
	return ReasonNoTrigger, ""
}

func blockRank(code ReasonCode) int {
	switch code.Bucket() {
	case BucketSentiment:
		return 0
	case BucketRisk:
		return 1
	case BucketGuard:
		return 2
	default:
		return 3
	}
}

// provisionalPlan fills a display-only stop/target on blocked decisions so
// downstream rendering always has a plan to show.
func provisionalPlan(dec *Decision, snap indicators.Snapshot, cfg *Config) {
	atr := floorValue(snap.ATR14, snap.Price)
	dec.Provisional = true
	dec.Stop = roundToTick(snap.Price-1.2*atr, cfg.TickSize)
	dec.Target = roundToTick(snap.Price+2.0*atr, cfg.TickSize)
}

// trailCandidate is the shared trailing-stop formula: the higher of the
// swing-low and MA25 anchors, never below floor.
func trailCandidate(floor, swingLow, ma25, atr float64, cfg *Config) float64 {
	trail := floor
	if !math.IsInf(swingLow, 1) {
		if v := swingLow - cfg.TrailSwingATR*atr; v > trail {
			trail = v
		}
	}
	if indicators.HasMA(ma25) {
		if v := ma25 - cfg.TrailMA25ATR*atr; v > trail {
			trail = v
		}
	}
	return trail
}

func buildTimeline(entry, stop, trail, tick float64) []TimelineStage {
	risk := entry - stop
	return []TimelineStage{
		{Trigger: "+1.0R", Stop: roundToTick(entry, tick), Action: "raise stop to entry"},
		{Trigger: "+1.5R", Stop: roundToTick(entry+0.5*risk, tick), Action: "lock in half the initial risk"},
		{Trigger: "+2.0R", Stop: roundToTick(trail, tick), Action: "switch to the trailing stop, raised only"},
	}
}

// roundToTick snaps a price to the instrument tick. Exact decimal arithmetic
// avoids the float drift a naive multiply-round-divide accumulates.
func roundToTick(v, tick float64) float64 {
	if tick <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	steps := decimal.NewFromFloat(v).Div(decimal.NewFromFloat(tick)).Round(0)
	out, _ := steps.Mul(decimal.NewFromFloat(tick)).Float64()
	return out
}
