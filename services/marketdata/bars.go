package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is one daily OHLCV observation. Bars are immutable once loaded and
// must be strictly ordered by date; duplicate dates are invalid.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarSource fetches the daily history for one instrument. Implementations:
// DirSource (CSV files on disk) and BarStore (ClickHouse).
type BarSource interface {
	DailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
}

// IsValidPrice reports whether v is a usable price value.
func IsValidPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// Valid reports whether the bar carries finite, coherent OHLC values.
func (b Bar) Valid() bool {
	if !IsValidPrice(b.Open) || !IsValidPrice(b.High) || !IsValidPrice(b.Low) || !IsValidPrice(b.Close) {
		return false
	}
	if b.High < b.Low {
		return false
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return false
	}
	return true
}

// SortDedup orders bars by date ascending and collapses duplicate dates,
// keeping the last occurrence (mirrors replacing-merge ingest semantics).
func SortDedup(bars []Bar) []Bar {
	if len(bars) < 2 {
		return bars
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// ValidateSeries checks ordering and duplicate dates over an already-loaded
// series. Loaders call SortDedup; this is the engine-side safety check.
func ValidateSeries(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return fmt.Errorf("bars out of order at %s (prev %s)",
				bars[i].Date.Format("2006-01-02"), bars[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Clip returns the sub-series inside [from, to]. Zero bounds are open.
func Clip(bars []Bar, from, to time.Time) []Bar {
	lo := 0
	hi := len(bars)
	if !from.IsZero() {
		lo = sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(from) })
	}
	if !to.IsZero() {
		hi = sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(to) })
	}
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}
