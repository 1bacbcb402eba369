// Package indicators builds the per-bar indicator snapshot the decision
// engine consumes. All values are computed with trailing-window formulas
// over the history ending at the snapshot bar; fields stay NaN when the
// history is too short, they never cause an error.
package indicators

import (
	"math"
	"time"

	talib "github.com/markcheno/go-talib"

	"swing-engine/services/marketdata"
)

// Snapshot is one bar's trading-day context plus precomputed indicators.
// Built once per bar and never mutated.
type Snapshot struct {
	Ticker string
	Date   time.Time

	Price     float64 // close of the snapshot bar
	DayOpen   float64
	DayHigh   float64
	DayLow    float64
	PrevClose float64

	FiftyTwoWeekHigh float64
	FiftyTwoWeekLow  float64

	MA5   float64
	MA20  float64
	MA25  float64
	MA50  float64
	MA75  float64
	MA200 float64

	RSI14      float64
	MACD       float64
	MACDSignal float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	ATR14  float64
	StochK float64
	StochD float64
	OBV    float64

	Volume      float64
	AvgVolume20 float64

	BarCount int
}

const yearBars = 252

// Build derives the snapshot for the last bar of bars. Short history leaves
// indicator fields NaN.
func Build(ticker string, bars []marketdata.Bar) Snapshot {
	n := len(bars)
	snap := Snapshot{Ticker: ticker, BarCount: n}
	if n == 0 {
		return nanSnapshot(snap)
	}

	last := bars[n-1]
	snap.Date = last.Date
	snap.Price = last.Close
	snap.DayOpen = last.Open
	snap.DayHigh = last.High
	snap.DayLow = last.Low
	snap.Volume = last.Volume
	snap.PrevClose = math.NaN()
	if n >= 2 {
		snap.PrevClose = bars[n-2].Close
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	vols := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		vols[i] = b.Volume
	}

	start := n - yearBars
	if start < 0 {
		start = 0
	}
	snap.FiftyTwoWeekHigh = highs[start]
	snap.FiftyTwoWeekLow = lows[start]
	for i := start + 1; i < n; i++ {
		if highs[i] > snap.FiftyTwoWeekHigh {
			snap.FiftyTwoWeekHigh = highs[i]
		}
		if lows[i] < snap.FiftyTwoWeekLow {
			snap.FiftyTwoWeekLow = lows[i]
		}
	}

	snap.MA5 = smaLast(closes, 5)
	snap.MA20 = smaLast(closes, 20)
	snap.MA25 = smaLast(closes, 25)
	snap.MA50 = smaLast(closes, 50)
	snap.MA75 = smaLast(closes, 75)
	snap.MA200 = smaLast(closes, 200)
	snap.AvgVolume20 = smaLast(vols, 20)

	snap.RSI14 = math.NaN()
	if n >= 15 {
		rsi := talib.Rsi(closes, 14)
		snap.RSI14 = rsi[n-1]
	}

	snap.MACD = math.NaN()
	snap.MACDSignal = math.NaN()
	if n >= 34 {
		macd, signal, _ := talib.Macd(closes, 12, 26, 9)
		snap.MACD = macd[n-1]
		snap.MACDSignal = signal[n-1]
	}

	snap.BBUpper = math.NaN()
	snap.BBMiddle = math.NaN()
	snap.BBLower = math.NaN()
	if n >= 20 {
		upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		snap.BBUpper = upper[n-1]
		snap.BBMiddle = middle[n-1]
		snap.BBLower = lower[n-1]
	}

	snap.ATR14 = math.NaN()
	if n >= 15 {
		atr := talib.Atr(highs, lows, closes, 14)
		snap.ATR14 = atr[n-1]
	}

	snap.StochK = math.NaN()
	snap.StochD = math.NaN()
	if n >= 18 {
		k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
		snap.StochK = k[n-1]
		snap.StochD = d[n-1]
	}

	snap.OBV = talib.Obv(closes, vols)[n-1]

	return snap
}

func smaLast(src []float64, length int) float64 {
	if len(src) < length || length <= 0 {
		return math.NaN()
	}
	out := talib.Sma(src, length)
	return out[len(out)-1]
}

func nanSnapshot(snap Snapshot) Snapshot {
	nan := math.NaN()
	snap.Price, snap.DayOpen, snap.DayHigh, snap.DayLow, snap.PrevClose = nan, nan, nan, nan, nan
	snap.FiftyTwoWeekHigh, snap.FiftyTwoWeekLow = nan, nan
	snap.MA5, snap.MA20, snap.MA25, snap.MA50, snap.MA75, snap.MA200 = nan, nan, nan, nan, nan, nan
	snap.RSI14, snap.MACD, snap.MACDSignal = nan, nan, nan
	snap.BBUpper, snap.BBMiddle, snap.BBLower = nan, nan, nan
	snap.ATR14, snap.StochK, snap.StochD, snap.OBV = nan, nan, nan, nan
	snap.Volume, snap.AvgVolume20 = nan, nan
	return snap
}

// HasMA reports whether an MA field is usable: computed and positive.
func HasMA(v float64) bool {
	return !math.IsNaN(v) && v > 0
}
