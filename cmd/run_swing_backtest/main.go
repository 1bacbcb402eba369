package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"swing-engine/services/arrowexport"
	"swing-engine/services/engine"
	"swing-engine/services/marketdata"
	"swing-engine/services/sentiment"
)

func main() {
	csvDir := flag.String("csv-dir", "", "Directory of per-ticker daily OHLCV CSV files")
	useCH := flag.Bool("clickhouse", false, "Load bars from ClickHouse (CH_* env) instead of CSV")
	envFile := flag.String("env", "", "Optional .env file with ClickHouse credentials")
	tickersFlag := flag.String("tickers", "", "Comma-separated tickers (default: every ticker the source has)")
	universe := flag.String("universe", "", "Path to a ticker list file, one symbol per line")
	limit := flag.Int("limit", 0, "Max tickers to run (0 = all)")
	fromFlag := flag.String("from", "", "Window start (YYYY-MM-DD)")
	toFlag := flag.String("to", "", "Window end (YYYY-MM-DD, default today)")
	months := flag.Int("months", 0, "Window size in months back from -to (alternative to -from)")
	variant := flag.String("variant", "default", "Config preset: "+strings.Join(engine.PresetNames(), ", "))
	lanesFlag := flag.String("lanes", "", "Override detector lanes, e.g. DIP,BREAKOUT")
	warmup := flag.Int("warmup", -1, "Override warm-up bars (-1 keeps the preset value)")
	cooldownDays := flag.Int("cooldown-days", -1, "Override cooldown bars after a close (-1 keeps the preset value)")
	holdBars := flag.Int("hold-bars", -1, "Override legacy time-exit cap (-1 keeps the preset value)")
	workers := flag.Int("workers", 1, "Parallel instrument workers")
	noSentiment := flag.Bool("no-sentiment", false, "Disable the sentiment scorer and gate")
	simRejected := flag.Bool("simulate-rejected", true, "Run the counterfactual lane for rejected signals")
	topRejected := flag.Int("top-rejected", 10, "Rows in the top-rejections table")
	examplesCap := flag.Int("examples-cap", 3, "Example trades kept per counterfactual bucket")
	includeTrades := flag.Bool("include-trades", true, "Embed per-ticker trade logs in the report")
	includeEvents := flag.Bool("include-events", true, "Embed the signal event stream in the report")
	targetPerDay := flag.Float64("target-per-day", 0, "Reporting-only trades/day target")
	outPath := flag.String("out", "swing_report.json", "Report JSON output path")
	arrowOut := flag.String("trades-arrow", "", "Optional Arrow IPC trade-log output path")
	flag.Parse()

	if *csvDir == "" && !*useCH {
		fmt.Fprintln(os.Stderr, "error: one of --csv-dir or --clickhouse is required")
		os.Exit(1)
	}
	if *fromFlag != "" && *months > 0 {
		fmt.Fprintln(os.Stderr, "error: --from and --months are mutually exclusive")
		os.Exit(1)
	}
	if *workers < 1 {
		fmt.Fprintln(os.Stderr, "error: --workers must be >= 1")
		os.Exit(1)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintln(os.Stderr, "error loading env file:", err)
			os.Exit(1)
		}
	} else {
		// best-effort; a missing .env is fine
		_ = godotenv.Load()
	}

	from, to, err := resolveWindow(*fromFlag, *toFlag, *months)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	cfg, err := engine.Preset(*variant)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *lanesFlag != "" {
		lanes, err := engine.ParseLanes(*lanesFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg.Lanes = lanes
	}
	if *warmup >= 0 {
		cfg.WarmupBars = *warmup
	}
	if *cooldownDays >= 0 {
		cfg.CooldownDays = *cooldownDays
	}
	if *holdBars >= 0 {
		cfg.HoldBars = *holdBars
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var source marketdata.BarSource
	var chTickers func() ([]string, error)
	if *useCH {
		store, err := marketdata.OpenBarStore(ctx, marketdata.ClickHouseConfigFromEnv())
		if err != nil {
			fmt.Fprintln(os.Stderr, "error connecting to ClickHouse:", marketdata.ExplainCHError(err))
			os.Exit(1)
		}
		defer store.Close()
		source = store
		chTickers = func() ([]string, error) { return store.Tickers(ctx) }
	} else {
		ds := marketdata.NewDirSource(*csvDir)
		source = ds
		chTickers = ds.Tickers
	}

	tickers, err := resolveTickers(*tickersFlag, *universe, chTickers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error resolving tickers:", err)
		os.Exit(1)
	}
	tickers = marketdata.ApplyLimit(tickers, *limit)
	if len(tickers) == 0 {
		fmt.Fprintln(os.Stderr, "error: no tickers to run")
		os.Exit(1)
	}

	var scorer sentiment.Scorer
	if !*noSentiment {
		scorer = sentiment.NewRuleScorer()
	}

	opts := engine.Options{
		From:               from,
		To:                 to,
		Workers:            *workers,
		SimulateRejected:   *simRejected,
		ExamplesCap:        *examplesCap,
		TopRejected:        *topRejected,
		TargetTradesPerDay: *targetPerDay,
		IncludeEvents:      *includeEvents,
		IncludeTrades:      *includeTrades,
	}
	runner := &engine.Runner{Source: source, Scorer: scorer, Cfg: cfg, Opts: opts}

	started := time.Now()
	run, err := runner.Run(ctx, tickers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error running backtest:", err)
		os.Exit(1)
	}
	report := engine.BuildReport(run, cfg, opts)

	if err := writeReport(*outPath, report); err != nil {
		fmt.Fprintln(os.Stderr, "error writing report:", err)
		os.Exit(1)
	}
	if *arrowOut != "" {
		exporter := arrowexport.NewExporter(arrowexport.Config{}, nil)
		if err := exporter.WriteFile(*arrowOut, collectTrades(run)); err != nil {
			fmt.Fprintln(os.Stderr, "error writing trade log:", err)
			os.Exit(1)
		}
	}

	s := report.Summary
	fmt.Printf("Variant: %s  Lanes: %s  Window: %s to %s\n", report.Variant, strings.Join(report.Lanes, ","), report.From, report.To)
	fmt.Printf("Tickers: %d  Signals: %d  Elapsed: %s\n", s.Tickers, s.Signals, time.Since(started).Round(time.Millisecond))
	fmt.Printf("Closed trades -> total: %d wins: %d losses: %d WinRate: %.2f%%\n", s.Trades, s.Wins, s.Losses, s.WinRatePct)
	fmt.Printf("Avg R: %.4f  Profit factor: %.2f  Avg return: %.2f%%  Avg hold: %.1f bars\n", s.AvgR, s.ProfitFactor, s.AvgReturnPct, s.AvgHoldingDays)
	fmt.Printf("Exits ->")
	for _, et := range []string{"TARGET", "TRAIL", "STOP", "TIME"} {
		fmt.Printf(" %s: %d", et, report.ExitCounts[et])
	}
	fmt.Printf("  Open at end: %d\n", s.OpenAtEnd)
	if len(report.FetchErrors) > 0 {
		fmt.Printf("Fetch errors: %d (see report)\n", len(report.FetchErrors))
	}
	fmt.Printf("Report saved to %s\n", *outPath)
	if *arrowOut != "" {
		fmt.Printf("Trade log saved to %s\n", *arrowOut)
	}
}

// resolveWindow turns the from/to/months flags into concrete dates. Zero
// times mean "unbounded" and pass through to the source.
func resolveWindow(fromStr, toStr string, months int) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, fmt.Errorf("bad --to %q: %w", toStr, err)
		}
	}
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return from, to, fmt.Errorf("bad --from %q: %w", fromStr, err)
		}
	} else if months > 0 {
		anchor := to
		if anchor.IsZero() {
			anchor = time.Now().UTC().Truncate(24 * time.Hour)
		}
		from = anchor.AddDate(0, -months, 0)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return from, to, nil
}

func resolveTickers(tickersFlag, universePath string, sourceList func() ([]string, error)) ([]string, error) {
	if tickersFlag != "" {
		var out []string
		for _, t := range strings.Split(tickersFlag, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t != "" {
				out = append(out, t)
			}
		}
		return out, nil
	}
	if universePath != "" {
		return marketdata.LoadUniverse(universePath)
	}
	return sourceList()
}

func writeReport(path string, report engine.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func collectTrades(run *engine.RunResult) []engine.Trade {
	var out []engine.Trade
	for _, res := range run.Results {
		out = append(out, res.Trades...)
	}
	return out
}
