package engine

import (
	"sort"

	"swing-engine/services/marketdata"
)

// Levels holds clustered support/resistance prices. Resistances are sorted
// ascending (nearest above price first), supports descending (nearest below
// price first).
type Levels struct {
	Resistances []float64 `json:"resistances"`
	Supports    []float64 `json:"supports"`
}

const (
	levelWindowBars = 60
	clusterTolATR   = 0.3
)

// FindLevels detects swing pivots in the trailing window and clusters them
// into discrete levels. hi52 is appended as a resistance when above price.
// Empty input yields empty output.
func FindLevels(bars []marketdata.Bar, price, atr, hi52 float64) Levels {
	var lv Levels
	n := len(bars)
	if n == 0 {
		return lv
	}

	start := n - levelWindowBars
	if start < 1 {
		start = 1
	}

	var resRaw, supRaw []float64
	for i := start; i < n-1; i++ {
		if isSwingHigh(bars, i) && bars[i].High > price {
			resRaw = append(resRaw, bars[i].High)
		}
		if isSwingLow(bars, i) && bars[i].Low < price {
			supRaw = append(supRaw, bars[i].Low)
		}
	}
	if hi52 > price {
		resRaw = append(resRaw, hi52)
	}

	tol := clusterTolATR * floorValue(atr, price)
	lv.Resistances = clusterLevels(resRaw, tol)
	lv.Supports = clusterLevels(supRaw, tol)

	// nearest-first in both directions
	sort.Float64s(lv.Resistances)
	sort.Sort(sort.Reverse(sort.Float64Slice(lv.Supports)))
	return lv
}

// isSwingHigh: the bar's high exceeds both neighbors' highs.
func isSwingHigh(bars []marketdata.Bar, i int) bool {
	if i <= 0 || i >= len(bars)-1 {
		return false
	}
	return bars[i].High > bars[i-1].High && bars[i].High > bars[i+1].High
}

// isSwingLow: the bar's low undercuts both neighbors' lows.
func isSwingLow(bars []marketdata.Bar, i int) bool {
	if i <= 0 || i >= len(bars)-1 {
		return false
	}
	return bars[i].Low < bars[i-1].Low && bars[i].Low < bars[i+1].Low
}

// clusterLevels merges values within tol of the running bucket mean. The
// input is sorted first, so clustering is insensitive to caller order.
func clusterLevels(values []float64, tol float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var out []float64
	bucketSum := sorted[0]
	bucketN := 1
	for _, v := range sorted[1:] {
		mean := bucketSum / float64(bucketN)
		if v-mean <= tol {
			bucketSum += v
			bucketN++
			continue
		}
		out = append(out, mean)
		bucketSum = v
		bucketN = 1
	}
	out = append(out, bucketSum/float64(bucketN))
	return out
}

// nearestAbove returns the first resistance above price and whether a second
// exists.
func (lv Levels) nearestAbove(price float64) (first, second float64, hasFirst, hasSecond bool) {
	for _, r := range lv.Resistances {
		if r > price {
			if !hasFirst {
				first = r
				hasFirst = true
				continue
			}
			second = r
			hasSecond = true
			break
		}
	}
	return first, second, hasFirst, hasSecond
}
