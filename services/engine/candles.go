package engine

import "swing-engine/services/marketdata"

// Candle anatomy checks used by the detectors. All operate on daily bars.

func bodySize(b marketdata.Bar) float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

func upperWick(b marketdata.Bar) float64 {
	top := b.Close
	if b.Open > top {
		top = b.Open
	}
	return b.High - top
}

func lowerWick(b marketdata.Bar) float64 {
	bottom := b.Close
	if b.Open < bottom {
		bottom = b.Open
	}
	return bottom - b.Low
}

func isGreen(b marketdata.Bar) bool { return b.Close > b.Open }

// isHammer: long lower wick, small body near the top of the range.
func isHammer(b marketdata.Bar) bool {
	totalRange := b.High - b.Low
	if totalRange <= 0 {
		return false
	}
	body := bodySize(b)
	longLowerWick := lowerWick(b) >= body*2.0
	smallUpperWick := upperWick(b) <= totalRange*0.25
	closesUpperHalf := b.Close >= (b.High+b.Low)/2.0
	return longLowerWick && smallUpperWick && closesUpperHalf
}

// isBullishEngulfing: green body completely engulfs the prior red body.
func isBullishEngulfing(cur, prev marketdata.Bar) bool {
	// Previous must be red (bearish)
	if prev.Close >= prev.Open {
		return false
	}
	// Current must be green (bullish)
	if cur.Close <= cur.Open {
		return false
	}
	return cur.Open < prev.Close && cur.Close > prev.Open
}

// isTwoBarReversal: a red bar followed by a green bar reclaiming more than
// half the red body.
func isTwoBarReversal(cur, prev marketdata.Bar) bool {
	if prev.Close >= prev.Open || cur.Close <= cur.Open {
		return false
	}
	midpoint := (prev.Open + prev.Close) / 2.0
	return cur.Close > midpoint && cur.Low >= prev.Low
}

// closePosition returns where the close sits inside the day range, 0 at the
// low and 1 at the high.
func closePosition(b marketdata.Bar) float64 {
	totalRange := b.High - b.Low
	if totalRange <= 0 {
		return 0.5
	}
	return (b.Close - b.Low) / totalRange
}

// isInsideBar: today's range held inside yesterday's.
func isInsideBar(cur, prev marketdata.Bar) bool {
	return cur.High < prev.High && cur.Low > prev.Low
}

// isBounceCandle recognizes the confirmed-bounce shapes: close above the
// prior high, hammer, bullish engulfing, or two-bar reversal.
func isBounceCandle(cur, prev marketdata.Bar) bool {
	if cur.Close > prev.High {
		return true
	}
	if isHammer(cur) {
		return true
	}
	if isBullishEngulfing(cur, prev) {
		return true
	}
	return isTwoBarReversal(cur, prev)
}
