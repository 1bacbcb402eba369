package engine

import (
	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

// Trend is the market-structure label derived from the MA stack.
type Trend string

const (
	TrendStrongUp Trend = "STRONG_UP"
	TrendUp       Trend = "UP"
	TrendWeakUp   Trend = "WEAK_UP"
	TrendDown     Trend = "DOWN"
)

// MarketStructure is a pure function of one snapshot, recomputed every bar.
type MarketStructure struct {
	Trend       Trend   `json:"trend"`
	Score       int     `json:"score"`
	MA5         float64 `json:"ma5"`
	MA25        float64 `json:"ma25"`
	MA50        float64 `json:"ma50"`
	MA75        float64 `json:"ma75"`
	MA200       float64 `json:"ma200"`
	StackedBull bool    `json:"stackedBull"`
	RecentHigh  float64 `json:"recentHigh"`
	RecentLow   float64 `json:"recentLow"`
}

const recentWindowBars = 20

// ClassifyStructure scores the MA stack 0–4 and labels the trend. An MA
// contributes only when it is computed and positive; missing averages are
// stored as zero so the structure marshals cleanly.
func ClassifyStructure(snap indicators.Snapshot, bars []marketdata.Bar) MarketStructure {
	ms := MarketStructure{
		MA5:   maOrZero(snap.MA5),
		MA25:  maOrZero(snap.MA25),
		MA50:  maOrZero(snap.MA50),
		MA75:  maOrZero(snap.MA75),
		MA200: maOrZero(snap.MA200),
	}

	score := 0
	if indicators.HasMA(snap.MA25) && snap.Price > snap.MA25 {
		score++
	}
	if indicators.HasMA(snap.MA50) && snap.Price > snap.MA50 {
		score++
	}
	if indicators.HasMA(snap.MA25) && indicators.HasMA(snap.MA50) && snap.MA25 > snap.MA50 {
		score++
	}
	if indicators.HasMA(snap.MA50) && indicators.HasMA(snap.MA200) && snap.MA50 > snap.MA200 {
		score++
	}
	ms.Score = score

	switch {
	case score >= 3:
		ms.Trend = TrendStrongUp
	case score == 2:
		ms.Trend = TrendUp
	case score == 1:
		ms.Trend = TrendWeakUp
	default:
		ms.Trend = TrendDown
	}

	ms.StackedBull = stackedBull(snap)

	n := len(bars)
	start := n - recentWindowBars
	if start < 0 {
		start = 0
	}
	for i := start; i < n; i++ {
		if bars[i].High > ms.RecentHigh {
			ms.RecentHigh = bars[i].High
		}
		if ms.RecentLow == 0 || bars[i].Low < ms.RecentLow {
			ms.RecentLow = bars[i].Low
		}
	}

	return ms
}

func maOrZero(v float64) float64 {
	if !indicators.HasMA(v) {
		return 0
	}
	return v
}

// stackedBull checks the full MA ordering. Without MA75 (shorter history)
// the four remaining averages must still be ordered.
func stackedBull(snap indicators.Snapshot) bool {
	for _, ma := range []float64{snap.MA5, snap.MA25, snap.MA50, snap.MA200} {
		if !indicators.HasMA(ma) {
			return false
		}
	}
	if snap.Price <= snap.MA5 || snap.MA5 <= snap.MA25 || snap.MA25 <= snap.MA50 {
		return false
	}
	if indicators.HasMA(snap.MA75) {
		return snap.MA50 > snap.MA75 && snap.MA75 > snap.MA200
	}
	return snap.MA50 > snap.MA200
}
