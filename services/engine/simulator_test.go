package engine

import (
	"context"
	"reflect"
	"testing"
)

func trendRunner(src memSource, workers int) *Runner {
	cfg := DefaultConfig()
	cfg.WarmupBars = 40
	opts := DefaultOptions()
	opts.Workers = workers
	return &Runner{Source: src, Cfg: cfg, Opts: opts}
}

func TestRunnerDipTrendSeries(t *testing.T) {
	src := memSource{"TREND": dipTrendSeries()}
	run, err := trendRunner(src, 1).Run(context.Background(), []string{"TREND"})
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Results) != 1 {
		t.Fatalf("results = %d", len(run.Results))
	}

	res := run.Results[0]
	if res.Signals != 1 {
		t.Fatalf("signals = %d, want 1", res.Signals)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	if res.OpenAtEnd != nil {
		t.Fatalf("open at end: %+v", res.OpenAtEnd)
	}

	tr := res.Trades[0]
	if tr.Kind != KindDip {
		t.Fatalf("kind = %s", tr.Kind)
	}
	if !approxEq(tr.Entry, 117.2, 1e-6) {
		t.Fatalf("entry = %v, want 117.2", tr.Entry)
	}
	if !approxEq(tr.StopInit, 115.85, 1e-9) {
		t.Fatalf("stopInit = %v, want 115.85", tr.StopInit)
	}
	if !approxEq(tr.Target, 122.3, 1e-9) {
		t.Fatalf("target = %v, want the prior swing high 122.3", tr.Target)
	}
	// the trail, not the fixed target, books the exit on the flush bar
	if tr.ExitType != ExitTrail {
		t.Fatalf("exitType = %s, want TRAIL", tr.ExitType)
	}
	if tr.Result != ResultWin || tr.R <= 1 || tr.R >= 2 {
		t.Fatalf("result/R = %s/%v, want WIN with R in (1,2)", tr.Result, tr.R)
	}
	if tr.HoldingDays != 9 {
		t.Fatalf("holdingDays = %d, want 9", tr.HoldingDays)
	}
	if !tr.ExitDate.Equal(day(61)) || !tr.EntryDate.Equal(day(52)) {
		t.Fatalf("entry/exit dates = %v/%v", tr.EntryDate, tr.ExitDate)
	}

	tel := run.Telemetry.Finalize()
	wantRejections := map[string]int{
		"WARMUP":      40,
		"NO_PULLBACK": 5,
		"FIB_BAND":    5,
		"NO_BOUNCE":   2,
		"IN_TRADE":    8,
	}
	for code, n := range wantRejections {
		if got := tel.Rejections[code]; got != n {
			t.Fatalf("rejections[%s] = %d, want %d (all: %v)", code, got, n, tel.Rejections)
		}
	}
	if tel.Counterfactual.Total != 0 {
		t.Fatalf("counterfactual = %+v, want none", tel.Counterfactual)
	}
}

func TestRunnerCooldownAfterExit(t *testing.T) {
	bars := dipTrendSeries()
	last := bars[len(bars)-1].Close
	for i := 0; i < 5; i++ {
		bars = append(bars, barAt(len(bars), last, last+0.2, last-0.2, last, 1000))
	}
	src := memSource{"TREND": bars}
	run, err := trendRunner(src, 1).Run(context.Background(), []string{"TREND"})
	if err != nil {
		t.Fatal(err)
	}
	tel := run.Telemetry.Finalize()
	if got := tel.Rejections["COOLDOWN"]; got != 5 {
		t.Fatalf("rejections[COOLDOWN] = %d, want 5 (all: %v)", got, tel.Rejections)
	}
}

func TestRunnerCounterfactualShadows(t *testing.T) {
	src := memSource{"TREND": dipTrendSeries()}
	r := trendRunner(src, 1)
	// floors nothing can clear: every trigger becomes a counterfactual
	r.Cfg.RR.FloorBase = 99
	r.Cfg.RR.FloorStrongUp = 99
	r.Cfg.RR.FloorUp = 99
	r.Cfg.RR.FloorWeakUp = 99
	r.Cfg.RR.FloorDown = 99

	run, err := r.Run(context.Background(), []string{"TREND"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Results[0].Signals != 0 || len(run.Results[0].Trades) != 0 {
		t.Fatalf("blocked run still traded: %+v", run.Results[0])
	}

	tel := run.Telemetry.Finalize()
	if got := tel.Rejections["RR_SHORTFALL"]; got != 2 {
		t.Fatalf("rejections[RR_SHORTFALL] = %d, want 2 (all: %v)", got, tel.Rejections)
	}
	cf := tel.Counterfactual
	if cf.Total != 2 || cf.Winners != 2 || cf.WinRate != 100 {
		t.Fatalf("counterfactual = %+v, want 2/2/100", cf)
	}
	if cf.OpenAtEnd != 0 {
		t.Fatalf("openAtEnd = %d", cf.OpenAtEnd)
	}
	bucket, ok := cf.Buckets["RR_SHORTFALL"]
	if !ok || bucket.Total != 2 || len(bucket.Examples) != 2 {
		t.Fatalf("bucket = %+v", bucket)
	}
	if !approxEq(bucket.Examples[0].Entry, 117.2, 1e-6) {
		t.Fatalf("example entry = %v", bucket.Examples[0].Entry)
	}
	if tel.RRShortfall.N != 2 {
		t.Fatalf("rr shortfall stat = %+v", tel.RRShortfall)
	}
}

func TestRunnerWarmupDominatesFlatTape(t *testing.T) {
	src := memSource{"FLAT": flatSeries(80)}
	r := trendRunner(src, 1)
	r.Cfg.WarmupBars = 60
	run, err := r.Run(context.Background(), []string{"FLAT"})
	if err != nil {
		t.Fatal(err)
	}
	tel := run.Telemetry.Finalize()
	if got := tel.Rejections["WARMUP"]; got != 60 {
		t.Fatalf("rejections[WARMUP] = %d, want 60", got)
	}
	if got := tel.Rejections["NO_PULLBACK"]; got != 20 {
		t.Fatalf("rejections[NO_PULLBACK] = %d, want 20 (all: %v)", got, tel.Rejections)
	}
	if run.Results[0].Signals != 0 {
		t.Fatalf("flat tape signaled %d times", run.Results[0].Signals)
	}
}

func TestRunnerFetchErrorContinues(t *testing.T) {
	src := memSource{
		"GOOD": dipTrendSeries(),
		"ALSO": flatSeries(80),
	}
	run, err := trendRunner(src, 1).Run(context.Background(), []string{"GOOD", "MISSING", "ALSO"})
	if err != nil {
		t.Fatal(err)
	}
	if len(run.FetchErrors) != 1 || run.FetchErrors[0].Ticker != "MISSING" {
		t.Fatalf("fetchErrors = %+v", run.FetchErrors)
	}
	if len(run.Results) != 2 || run.Results[0].Ticker != "GOOD" || run.Results[1].Ticker != "ALSO" {
		t.Fatalf("results out of order: %+v", run.Results)
	}
}

func TestRunnerDeterministicAcrossWorkers(t *testing.T) {
	src := memSource{
		"TREND": dipTrendSeries(),
		"FLAT":  flatSeries(80),
		"RISE":  riseSeries(70),
	}
	tickers := []string{"TREND", "FLAT", "RISE"}

	seq, err := trendRunner(src, 1).Run(context.Background(), tickers)
	if err != nil {
		t.Fatal(err)
	}
	par, err := trendRunner(src, 3).Run(context.Background(), tickers)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(seq.Results, par.Results) {
		t.Fatal("results differ across worker counts")
	}
	if !reflect.DeepEqual(seq.Telemetry.Finalize(), par.Telemetry.Finalize()) {
		t.Fatal("telemetry differs across worker counts")
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := trendRunner(memSource{"TREND": dipTrendSeries()}, 1).Run(ctx, []string{"TREND"})
	if err == nil {
		t.Fatal("cancelled run returned no error")
	}
}
