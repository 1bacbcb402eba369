package engine

import (
	"strings"
	"testing"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

func spcBars(cur marketdata.Bar) []marketdata.Bar {
	var bars []marketdata.Bar
	for i := 0; i < 11; i++ {
		bars = append(bars, barAt(i, 99.5, 100, 99, 99.6, 1000))
	}
	cur.Date = day(11)
	return append(bars, cur)
}

func spcSnap(ma25 float64) indicators.Snapshot {
	return indicators.Snapshot{Price: 99.8, ATR14: 2, RSI14: 55, MA25: ma25}
}

func TestContinuationTinyDip(t *testing.T) {
	bars := spcBars(bar(99.4, 99.9, 99.2, 99.8))
	in := DetectInput{Snap: spcSnap(98), Bars: bars, Structure: MarketStructure{Trend: TrendUp}}
	cfg := DefaultConfig()
	cand := ContinuationDetector{}.Detect(in, &cfg)
	if !cand.Triggered {
		t.Fatalf("no trigger: %s %s", cand.WaitReason, cand.WaitDetail)
	}
	if !strings.Contains(cand.Why, "tiny dip") {
		t.Fatalf("why = %q", cand.Why)
	}
	if !approxEq(cand.Stop, 98, 1e-9) || !approxEq(cand.Target, 103.8, 1e-9) {
		t.Fatalf("stop/target = %v/%v, want 98/103.8", cand.Stop, cand.Target)
	}
}

func TestContinuationStrongCloseOverride(t *testing.T) {
	bars := spcBars(bar(100.1, 101.5, 100.0, 101.3))
	in := DetectInput{Snap: spcSnap(99), Bars: bars, Structure: MarketStructure{Trend: TrendStrongUp}}
	cfg := DefaultConfig()
	cand := ContinuationDetector{}.Detect(in, &cfg)
	if !cand.Triggered {
		t.Fatalf("no trigger: %s %s", cand.WaitReason, cand.WaitDetail)
	}
	if !strings.Contains(cand.Why, "override") {
		t.Fatalf("why = %q", cand.Why)
	}
}

func TestContinuationTrendDown(t *testing.T) {
	bars := spcBars(bar(99.4, 99.9, 99.2, 99.8))
	in := DetectInput{Snap: spcSnap(98), Bars: bars, Structure: MarketStructure{Trend: TrendDown}}
	cfg := DefaultConfig()
	cand := ContinuationDetector{}.Detect(in, &cfg)
	if cand.WaitReason != ReasonTrendDown {
		t.Fatalf("got %s, want TREND_DOWN", cand.WaitReason)
	}
}

func TestContinuationTapeNotFriendly(t *testing.T) {
	// deep intraday flush, no inside bar, ranges too wide for drift
	bars := spcBars(bar(98.5, 99, 97.5, 98.8))
	in := DetectInput{Snap: spcSnap(98), Bars: bars, Structure: MarketStructure{Trend: TrendUp}}
	cfg := DefaultConfig()
	cand := ContinuationDetector{}.Detect(in, &cfg)
	if cand.WaitReason != ReasonTapeNotFriendly {
		t.Fatalf("got %s, want TAPE_NOT_FRIENDLY", cand.WaitReason)
	}
}

func TestContinuationOverExtended(t *testing.T) {
	bars := spcBars(bar(99.4, 99.9, 99.2, 99.8))
	in := DetectInput{Snap: spcSnap(95), Bars: bars, Structure: MarketStructure{Trend: TrendUp}}
	cfg := DefaultConfig()
	cand := ContinuationDetector{}.Detect(in, &cfg)
	if cand.WaitReason != ReasonOverExtendedSPC {
		t.Fatalf("got %s, want SPC_OVER_EXTENDED", cand.WaitReason)
	}
}

func TestContinuationNoHeadroom(t *testing.T) {
	bars := spcBars(bar(99.4, 99.9, 99.2, 99.8))
	in := DetectInput{
		Snap:      spcSnap(98),
		Bars:      bars,
		Structure: MarketStructure{Trend: TrendUp},
		Levels:    Levels{Resistances: []float64{100.5}},
	}
	cfg := DefaultConfig()
	cand := ContinuationDetector{}.Detect(in, &cfg)
	if cand.WaitReason != ReasonNoHeadroomSPC {
		t.Fatalf("got %s, want SPC_NO_HEADROOM", cand.WaitReason)
	}
}
