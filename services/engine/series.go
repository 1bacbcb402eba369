package engine

import (
	"math"

	"swing-engine/services/marketdata"
)

const epsilon = 1e-9

// floorValue guards divisions: max(v, price*0.005, epsilon).
func floorValue(v, price float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	floor := price * 0.005
	if v < floor {
		v = floor
	}
	if v < epsilon {
		v = epsilon
	}
	return v
}

// highestHigh returns the max high over the last n bars (all bars when the
// series is shorter).
func highestHigh(bars []marketdata.Bar, n int) float64 {
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	hi := math.Inf(-1)
	for i := start; i < len(bars); i++ {
		if bars[i].High > hi {
			hi = bars[i].High
		}
	}
	return hi
}

// lowestLow returns the min low over the last n bars.
func lowestLow(bars []marketdata.Bar, n int) float64 {
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	lo := math.Inf(1)
	for i := start; i < len(bars); i++ {
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	return lo
}

// lowestLowRange returns the min low over bars[from:to] (half-open, clamped).
func lowestLowRange(bars []marketdata.Bar, from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to > len(bars) {
		to = len(bars)
	}
	lo := math.Inf(1)
	for i := from; i < to; i++ {
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	return lo
}

// consecUpDays counts the trailing run of closes above the prior close.
func consecUpDays(bars []marketdata.Bar) int {
	count := 0
	for i := len(bars) - 1; i > 0; i-- {
		if bars[i].Close > bars[i-1].Close {
			count++
		} else {
			break
		}
	}
	return count
}

// avgVolume returns the mean volume of bars[from:to] (half-open, clamped);
// NaN when the range is empty.
func avgVolume(bars []marketdata.Bar, from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to > len(bars) {
		to = len(bars)
	}
	if from >= to {
		return math.NaN()
	}
	sum := 0.0
	for i := from; i < to; i++ {
		sum += bars[i].Volume
	}
	return sum / float64(to-from)
}
