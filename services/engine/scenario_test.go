package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

// Shared synthetic fixtures. Prices are chosen so thresholds clear with fat
// margins; dipTrendSeries keeps a constant true range until its final flush,
// pinning the smoothed ATR to a known value.

func day(i int) time.Time {
	return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func approxEq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func barAt(i int, o, h, l, c, v float64) marketdata.Bar {
	return marketdata.Bar{Date: day(i), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// dipScenario is a hand-checked pullback-and-bounce: a rise to 110, a seven
// bar slide to 104 near the crafted MA25, and a two-bar-confirmed bounce to
// 105 on hot volume. The paired snapshot carries exact indicator values so
// detector arithmetic is fully predictable.
func dipScenario() ([]marketdata.Bar, indicators.Snapshot) {
	var bars []marketdata.Bar
	add := func(o, h, l, c, v float64) {
		bars = append(bars, marketdata.Bar{Date: day(len(bars)), Open: o, High: h, Low: l, Close: c, Volume: v})
	}

	// 0: seeds the prior pivot low at 98 for the retracement span.
	add(98.5, 100.3, 98.0, 100.0, 1000)
	// 1..18: steady rise.
	for i := 1; i <= 18; i++ {
		c := 100 + 0.5*float64(i)
		add(c-0.3, c+0.3, c-0.6, c, 1000)
	}
	// 19: swing high at 110.
	add(109.2, 110.0, 109.0, 109.8, 1000)
	// 20..26: pullback to the dip low at 104, dry volume.
	pull := []struct{ o, h, l, c float64 }{
		{109.1, 109.3, 108.5, 108.8},
		{108.3, 108.5, 107.7, 108.0},
		{107.5, 107.7, 106.9, 107.2},
		{106.7, 106.9, 106.1, 106.4},
		{105.9, 106.1, 105.3, 105.6},
		{105.1, 105.3, 104.5, 104.8},
		{104.6, 104.8, 104.0, 104.3},
	}
	for _, p := range pull {
		add(p.o, p.h, p.l, p.c, 700)
	}
	// 27..28: quiet stabilization.
	add(104.3, 104.8, 104.15, 104.6, 1000)
	add(104.6, 104.9, 104.4, 104.8, 1000)
	// 29: bounce bar closing over the prior high on hot volume.
	add(104.8, 105.1, 104.7, 105.0, 1500)

	snap := indicators.Snapshot{
		Ticker:           "SYN",
		Date:             day(29),
		Price:            105.0,
		DayOpen:          104.8,
		DayHigh:          105.1,
		DayLow:           104.7,
		PrevClose:        104.8,
		FiftyTwoWeekHigh: math.NaN(),
		FiftyTwoWeekLow:  98.0,
		MA5:              104.9,
		MA20:             106.0,
		MA25:             104.5,
		MA50:             103.0,
		MA75:             101.5,
		MA200:            100.0,
		RSI14:            55,
		MACD:             0.4,
		MACDSignal:       0.2,
		ATR14:            2.0,
		AvgVolume20:      1000,
		Volume:           1500,
		BarCount:         len(bars),
	}
	return bars, snap
}

// memSource serves fixed in-memory histories; unknown tickers error.
type memSource map[string][]marketdata.Bar

var errNoData = errors.New("no data for ticker")

func (m memSource) DailyBars(_ context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error) {
	bars, ok := m[ticker]
	if !ok {
		return nil, errNoData
	}
	return marketdata.Clip(bars, from, to), nil
}

// dipTrendSeries is the end-to-end walk-forward fixture: 45 rising bars, a
// seven-bar dry pullback, a hot two-bar reversal that produces one buy at
// bar 52, a run to the target high at 122.3 and a trail-out on bar 61.
// Every bar before the final flush has a true range of exactly 0.9, so the
// smoothed ATR sits at 0.9 through the whole hold.
func dipTrendSeries() []marketdata.Bar {
	var bars []marketdata.Bar
	add := func(o, h, l, c, v float64) {
		bars = append(bars, marketdata.Bar{Date: day(len(bars)), Open: o, High: h, Low: l, Close: c, Volume: v})
	}
	for i := 0; i <= 44; i++ {
		c := 100 + 0.5*float64(i)
		add(c-0.3, c+0.3, c-0.6, c, 1000)
	}
	for i := 45; i <= 51; i++ {
		prev := bars[i-1].Close
		add(prev-0.1, prev, prev-0.9, prev-0.8, 600)
	}
	for i := 52; i <= 59; i++ {
		prev := bars[i-1].Close
		vol := 1000.0
		if i <= 53 {
			vol = 1600
		}
		add(prev+0.1, prev+0.9, prev+0.1, prev+0.8, vol)
	}
	add(122.7, 122.8, 121.9, 122.0, 900)
	add(121.9, 122.0, 118.4, 118.5, 1400)
	return bars
}

// flatSeries holds a constant price; useful for warmup and no-signal runs.
func flatSeries(n int) []marketdata.Bar {
	var bars []marketdata.Bar
	for i := 0; i < n; i++ {
		bars = append(bars, marketdata.Bar{Date: day(i), Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000})
	}
	return bars
}

// riseSeries climbs forever; no pullback ever forms.
func riseSeries(n int) []marketdata.Bar {
	var bars []marketdata.Bar
	for i := 0; i < n; i++ {
		c := 100 + 0.5*float64(i)
		bars = append(bars, marketdata.Bar{Date: day(i), Open: c - 0.3, High: c + 0.3, Low: c - 0.6, Close: c, Volume: 1000})
	}
	return bars
}
