package engine

import (
	"testing"

	"swing-engine/services/sentiment"
)

func TestDecideBuy(t *testing.T) {
	bars, snap := dipScenario()
	cfg := DefaultConfig()
	dec := Decide(bars, snap, nil, &cfg)

	if !dec.BuyNow {
		t.Fatalf("no buy: %s %s", dec.WaitReason, dec.WaitDetail)
	}
	if dec.Kind != KindDip {
		t.Fatalf("kind = %s", dec.Kind)
	}
	if dec.Entry != 105 {
		t.Fatalf("entry = %v", dec.Entry)
	}
	if dec.Stop != 103.00 {
		t.Fatalf("stop = %v, want 103.00", dec.Stop)
	}
	if dec.Target != 110.00 {
		t.Fatalf("target = %v, want 110.00", dec.Target)
	}
	if !approxEq(dec.RR.Ratio, 2.5, 1e-9) {
		t.Fatalf("ratio = %v, want 2.5", dec.RR.Ratio)
	}
	if dec.Provisional {
		t.Fatal("a buy is never provisional")
	}
	if dec.Structure.Trend != TrendStrongUp {
		t.Fatalf("trend = %s", dec.Structure.Trend)
	}
	if len(dec.Levels.Resistances) != 1 || dec.Levels.Resistances[0] != 110 {
		t.Fatalf("resistances = %v", dec.Levels.Resistances)
	}

	if len(dec.Timeline) != 3 {
		t.Fatalf("timeline = %+v", dec.Timeline)
	}
	wantStops := []float64{105, 106, 103.3}
	for i, stage := range dec.Timeline {
		if !approxEq(stage.Stop, wantStops[i], 1e-9) {
			t.Fatalf("timeline[%d].Stop = %v, want %v", i, stage.Stop, wantStops[i])
		}
	}
}

func TestDecideRRShortfall(t *testing.T) {
	bars, snap := dipScenario()
	cfg := DefaultConfig()
	cfg.RR.FloorBase = 3.0
	cfg.RR.FloorStrongUp = 3.0
	dec := Decide(bars, snap, nil, &cfg)

	if dec.BuyNow {
		t.Fatal("2.5 ratio bought against a 3.0 floor")
	}
	if dec.WaitReason != ReasonRRShortfall {
		t.Fatalf("waitReason = %s", dec.WaitReason)
	}
	if !dec.Provisional {
		t.Fatal("blocked decision must carry a provisional plan")
	}
	// the rejected candidate's full RR rides along for telemetry
	if !approxEq(dec.RR.Ratio, 2.5, 1e-9) || dec.RR.Stop != 103 || dec.RR.Target != 110 {
		t.Fatalf("rr = %+v", dec.RR)
	}
	if len(dec.Rejected) != 1 || dec.Rejected[0].Code != ReasonRRShortfall {
		t.Fatalf("rejected = %+v", dec.Rejected)
	}
	// display plan falls back to the ATR formula
	if !approxEq(dec.Stop, 102.6, 1e-9) || !approxEq(dec.Target, 109, 1e-9) {
		t.Fatalf("provisional stop/target = %v/%v", dec.Stop, dec.Target)
	}
}

func TestDecideSentimentGate(t *testing.T) {
	bars, snap := dipScenario()
	cfg := DefaultConfig()
	cfg.SentimentGate = sentiment.StrictGate
	scores := &sentiment.Scores{ShortTerm: 6, LongTerm: 2}
	dec := Decide(bars, snap, scores, &cfg)

	if dec.BuyNow {
		t.Fatal("gated candidate bought")
	}
	if dec.WaitReason != ReasonSentimentGate {
		t.Fatalf("waitReason = %s", dec.WaitReason)
	}
	if len(dec.Rejected) != 1 || dec.Rejected[0].Code != ReasonSentimentGate {
		t.Fatalf("rejected = %+v", dec.Rejected)
	}
	if dec.Sentiment != scores {
		t.Fatal("scores not attached to the decision")
	}
}

func TestDecideInsufficientHistory(t *testing.T) {
	bars, snap := dipScenario()
	cfg := DefaultConfig()
	dec := Decide(bars[:10], snap, nil, &cfg)
	if dec.BuyNow || dec.WaitReason != ReasonInsufficientHistory {
		t.Fatalf("got %v/%s", dec.BuyNow, dec.WaitReason)
	}
	if !dec.Provisional {
		t.Fatal("short history must still produce a plan")
	}
}

func TestDecideInvalidLastBar(t *testing.T) {
	bars, snap := dipScenario()
	bars[29].High = 90 // below the low
	cfg := DefaultConfig()
	dec := Decide(bars, snap, nil, &cfg)
	if dec.WaitReason != ReasonInvalidBar {
		t.Fatalf("waitReason = %s", dec.WaitReason)
	}
}

func TestDecideRecordsLaneWaits(t *testing.T) {
	bars := riseSeries(30)
	_, snap := dipScenario()
	snap.Price = bars[len(bars)-1].Close
	cfg := DefaultConfig()
	dec := Decide(bars, snap, nil, &cfg)
	if dec.BuyNow {
		t.Fatal("monotone rise bought")
	}
	if dec.WaitReason != ReasonNoPullback {
		t.Fatalf("waitReason = %s", dec.WaitReason)
	}
	if len(dec.Waits) != 1 || dec.Waits[0].Kind != KindDip {
		t.Fatalf("waits = %+v", dec.Waits)
	}
}
