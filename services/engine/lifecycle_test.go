package engine

import (
	"testing"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
)

func openAt100(t *testing.T) Position {
	t.Helper()
	return OpenPosition(Decision{
		Ticker: "T",
		Date:   day(0),
		Kind:   KindDip,
		Entry:  100,
		Stop:   95,
		Target: 110,
		RR:     RRResult{Ratio: 2},
	}, 0)
}

// lows returns ten bars whose lowest low is exactly lo.
func lowsWindow(lo float64) []marketdata.Bar {
	var bars []marketdata.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, barAt(i, lo+2, lo+3, lo+1, lo+2.5, 1000))
	}
	bars[4].Low = lo
	return bars
}

func TestStepStopBeforeTarget(t *testing.T) {
	cfg := DefaultConfig()
	pos := openAt100(t)
	// both levels inside one bar: the stop must win
	tr := pos.Step(barAt(1, 100, 111, 94, 96, 1000), 1, indicators.Snapshot{}, nil, &cfg)
	if tr == nil || tr.ExitType != ExitStop {
		t.Fatalf("trade = %+v, want STOP", tr)
	}
	if tr.Exit != 95 || tr.R != -1 || tr.Result != ResultLoss {
		t.Fatalf("exit/R/result = %v/%v/%s", tr.Exit, tr.R, tr.Result)
	}
	if tr.HoldingDays != 1 {
		t.Fatalf("holdingDays = %d", tr.HoldingDays)
	}
}

func TestStepGapThroughStop(t *testing.T) {
	cfg := DefaultConfig()
	pos := openAt100(t)
	tr := pos.Step(barAt(1, 93, 94.5, 92, 94, 1000), 1, indicators.Snapshot{}, nil, &cfg)
	if tr == nil || tr.ExitType != ExitStop {
		t.Fatalf("trade = %+v, want STOP", tr)
	}
	if tr.Exit != 93 {
		t.Fatalf("exit = %v, want the gapped open 93", tr.Exit)
	}
	if !approxEq(tr.R, -1.4, 1e-9) {
		t.Fatalf("R = %v, want -1.4", tr.R)
	}
}

func TestStepTargetArmsTrailing(t *testing.T) {
	cfg := DefaultConfig()
	pos := openAt100(t)
	snap := indicators.Snapshot{ATR14: 2, MA25: 104}
	window := lowsWindow(101)

	tr := pos.Step(barAt(10, 100, 110.5, 103, 110, 1000), 1, snap, window, &cfg)
	if tr != nil {
		t.Fatalf("position closed early: %+v", tr)
	}
	if !pos.Trailing {
		t.Fatal("trailing not armed at the target")
	}
	if !approxEq(pos.Stop, 102.8, 1e-9) {
		t.Fatalf("stop = %v, want 102.8 (MA25 - 0.6 ATR)", pos.Stop)
	}

	// a weaker anchor never lowers the stop
	snap.MA25 = 103
	if tr := pos.Step(barAt(11, 107, 108, 105, 107, 1000), 2, snap, window, &cfg); tr != nil {
		t.Fatalf("position closed: %+v", tr)
	}
	if !approxEq(pos.Stop, 102.8, 1e-9) {
		t.Fatalf("stop lowered to %v", pos.Stop)
	}

	// a stronger anchor raises it
	snap.MA25 = 105
	if tr := pos.Step(barAt(12, 107, 108, 105, 107, 1000), 3, snap, window, &cfg); tr != nil {
		t.Fatalf("position closed: %+v", tr)
	}
	if !approxEq(pos.Stop, 103.8, 1e-9) {
		t.Fatalf("stop = %v, want raised to 103.8", pos.Stop)
	}

	// the raised trail catches the fade
	tr = pos.Step(barAt(13, 104, 104.5, 101, 102, 1000), 4, snap, window, &cfg)
	if tr == nil || tr.ExitType != ExitTrail {
		t.Fatalf("trade = %+v, want TRAIL", tr)
	}
	if !approxEq(tr.Exit, 103.8, 1e-9) || !approxEq(tr.R, 0.76, 1e-9) {
		t.Fatalf("exit/R = %v/%v, want 103.8/0.76", tr.Exit, tr.R)
	}
	if tr.Result != ResultWin {
		t.Fatalf("result = %s", tr.Result)
	}
}

func TestStepSameBarTrailBreach(t *testing.T) {
	cfg := DefaultConfig()
	pos := openAt100(t)
	snap := indicators.Snapshot{ATR14: 2, MA25: 107}
	window := lowsWindow(106)

	// tags the target intraday, then falls back through the fresh trail
	tr := pos.Step(barAt(10, 109.5, 110.2, 104, 105, 1000), 1, snap, window, &cfg)
	if tr == nil || tr.ExitType != ExitTrail {
		t.Fatalf("trade = %+v, want TRAIL", tr)
	}
	if !approxEq(tr.Exit, 105.8, 1e-9) {
		t.Fatalf("exit = %v, want the fresh trail 105.8", tr.Exit)
	}
	if !approxEq(tr.R, 1.16, 1e-9) || tr.Result != ResultWin {
		t.Fatalf("R/result = %v/%s", tr.R, tr.Result)
	}
}

func TestStepTargetExitWithoutTrailing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingAfterTarget = false
	pos := openAt100(t)

	tr := pos.Step(barAt(1, 100, 110.5, 103, 110, 1000), 1, indicators.Snapshot{}, nil, &cfg)
	if tr == nil || tr.ExitType != ExitTarget {
		t.Fatalf("trade = %+v, want TARGET", tr)
	}
	if tr.Exit != 110 || tr.R != 2 {
		t.Fatalf("exit/R = %v/%v, want 110/2", tr.Exit, tr.R)
	}

	// gap above the target fills at the open
	pos = openAt100(t)
	tr = pos.Step(barAt(1, 112, 113, 111, 112, 1000), 1, indicators.Snapshot{}, nil, &cfg)
	if tr == nil || tr.Exit != 112 || !approxEq(tr.R, 2.4, 1e-9) {
		t.Fatalf("trade = %+v, want exit 112 R 2.4", tr)
	}
}

func TestStepTimeExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingAfterTarget = false
	cfg.HoldBars = 3
	pos := openAt100(t)

	quiet := func(i int) marketdata.Bar { return barAt(i, 100, 101, 99, 100, 1000) }
	for i := 1; i < 3; i++ {
		if tr := pos.Step(quiet(i), i, indicators.Snapshot{}, nil, &cfg); tr != nil {
			t.Fatalf("closed at bar %d: %+v", i, tr)
		}
	}
	tr := pos.Step(quiet(3), 3, indicators.Snapshot{}, nil, &cfg)
	if tr == nil || tr.ExitType != ExitTime {
		t.Fatalf("trade = %+v, want TIME", tr)
	}
	if tr.R != 0 || tr.Result != ResultWin {
		t.Fatalf("flat exit scored %v/%s, want 0/WIN", tr.R, tr.Result)
	}
	if tr.HoldingDays != 3 {
		t.Fatalf("holdingDays = %d", tr.HoldingDays)
	}
}

func TestTradeExcursions(t *testing.T) {
	cfg := DefaultConfig()
	pos := openAt100(t)
	steps := []marketdata.Bar{
		barAt(1, 100, 104, 97, 103, 1000),
		barAt(2, 103, 108, 99, 100, 1000),
		barAt(3, 100, 101, 94.5, 95, 1000),
	}
	var tr *Trade
	for i, b := range steps {
		tr = pos.Step(b, i+1, indicators.Snapshot{}, nil, &cfg)
	}
	if tr == nil || tr.ExitType != ExitStop {
		t.Fatalf("trade = %+v, want STOP", tr)
	}
	if !approxEq(tr.MAEPct, -5.5, 1e-9) {
		t.Fatalf("MAE = %v, want -5.5", tr.MAEPct)
	}
	if !approxEq(tr.MFEPct, 8, 1e-9) {
		t.Fatalf("MFE = %v, want 8", tr.MFEPct)
	}
	if tr.HoldingDays != 3 {
		t.Fatalf("holdingDays = %d", tr.HoldingDays)
	}
}
