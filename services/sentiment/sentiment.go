// Package sentiment scores short- and long-term bias on a 1–7 scale
// (1 = strongest bullish) and applies the entry gating policy.
package sentiment

import (
	"math"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

// Scores is the provider output consumed by the decision engine.
type Scores struct {
	ShortTerm int `json:"shortTerm"`
	LongTerm  int `json:"longTerm"`
}

// Scorer computes bias scores from a snapshot and its backing history.
type Scorer interface {
	Score(snap indicators.Snapshot, bars []marketdata.Bar) Scores
}

// Gate is the fixed policy deciding whether a DIP entry may proceed for a
// given score pair.
type Gate struct {
	MaxLong  int `json:"max_long"`
	MinShort int `json:"min_short"`
	MaxShort int `json:"max_short"`
}

// Allows reports whether the score pair clears the gate.
func (g Gate) Allows(s Scores) bool {
	return s.LongTerm <= g.MaxLong && s.ShortTerm >= g.MinShort && s.ShortTerm <= g.MaxShort
}

// DefaultGate admits any long-term score and the full short-term range.
var DefaultGate = Gate{MaxLong: 7, MinShort: 1, MaxShort: 7}

// StrictGate is the tightened variant.
var StrictGate = Gate{MaxLong: 3, MinShort: 2, MaxShort: 5}

// RuleScorer is the built-in deterministic scorer. It counts bullish
// conditions and maps them onto the 1–7 scale.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer { return &RuleScorer{} }

func (rs *RuleScorer) Score(snap indicators.Snapshot, bars []marketdata.Bar) Scores {
	return Scores{
		ShortTerm: clampScore(rs.shortTerm(snap)),
		LongTerm:  clampScore(rs.longTerm(snap)),
	}
}

func (rs *RuleScorer) shortTerm(snap indicators.Snapshot) int {
	points := 0
	if gt(snap.Price, snap.MA5) {
		points++
	}
	if gt(snap.Price, snap.PrevClose) {
		points++
	}
	if !math.IsNaN(snap.RSI14) && snap.RSI14 > 50 && snap.RSI14 <= 70 {
		points++
	}
	if gt(snap.StochK, snap.StochD) {
		points++
	}
	if gt(snap.MACD, snap.MACDSignal) {
		points++
	}
	score := 6 - points
	if !math.IsNaN(snap.RSI14) && snap.RSI14 < 40 {
		score++
	}
	return score
}

func (rs *RuleScorer) longTerm(snap indicators.Snapshot) int {
	points := 0
	if indicators.HasMA(snap.MA200) && snap.Price > snap.MA200 {
		points++
	}
	if indicators.HasMA(snap.MA50) && snap.Price > snap.MA50 {
		points++
	}
	if indicators.HasMA(snap.MA50) && indicators.HasMA(snap.MA200) && snap.MA50 > snap.MA200 {
		points++
	}
	if !math.IsNaN(snap.MACD) && snap.MACD > 0 {
		points++
	}
	if !math.IsNaN(snap.FiftyTwoWeekHigh) && snap.FiftyTwoWeekHigh > 0 &&
		snap.Price >= 0.8*snap.FiftyTwoWeekHigh {
		points++
	}
	score := 6 - points
	if indicators.HasMA(snap.MA200) && snap.Price < snap.MA200 {
		score++
	}
	return score
}

func gt(a, b float64) bool {
	return !math.IsNaN(a) && !math.IsNaN(b) && a > b
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 7 {
		return 7
	}
	return v
}
