package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"swing-engine/services/engine"
	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
	"swing-engine/services/sentiment"
)

func main() {
	csvDir := flag.String("csv-dir", "", "Directory of per-ticker daily OHLCV CSV files")
	useCH := flag.Bool("clickhouse", false, "Load bars from ClickHouse (CH_* env) instead of CSV")
	envFile := flag.String("env", "", "Optional .env file with ClickHouse credentials")
	tickersFlag := flag.String("tickers", "", "Comma-separated tickers (default: every ticker the source has)")
	universe := flag.String("universe", "", "Path to a ticker list file, one symbol per line")
	limit := flag.Int("limit", 0, "Max tickers to scan (0 = all)")
	asOf := flag.String("as-of", "", "Scan as of this date (YYYY-MM-DD, default latest bar)")
	variant := flag.String("variant", "default", "Config preset: "+strings.Join(engine.PresetNames(), ", "))
	lanesFlag := flag.String("lanes", "", "Override detector lanes, e.g. DIP,CONTINUATION")
	noSentiment := flag.Bool("no-sentiment", false, "Disable the sentiment scorer and gate")
	buysOnly := flag.Bool("buys-only", false, "Print only buy candidates")
	jsonOut := flag.String("json", "", "Optional decisions JSON output path")
	flag.Parse()

	if *csvDir == "" && !*useCH {
		fmt.Fprintln(os.Stderr, "error: one of --csv-dir or --clickhouse is required")
		os.Exit(1)
	}
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintln(os.Stderr, "error loading env file:", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	var cutoff time.Time
	if *asOf != "" {
		var err error
		cutoff, err = time.Parse("2006-01-02", *asOf)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: bad --as-of:", err)
			os.Exit(1)
		}
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

	ctx := context.Background()

	var source marketdata.BarSource
	var listTickers func() ([]string, error)
	if *useCH {
		store, err := marketdata.OpenBarStore(ctx, marketdata.ClickHouseConfigFromEnv())
		if err != nil {
			fmt.Fprintln(os.Stderr, "error connecting to ClickHouse:", marketdata.ExplainCHError(err))
			os.Exit(1)
		}
		defer store.Close()
		source = store
		listTickers = func() ([]string, error) { return store.Tickers(ctx) }
	} else {
		ds := marketdata.NewDirSource(*csvDir)
		source = ds
		listTickers = ds.Tickers
	}

	tickers, err := scanUniverse(*tickersFlag, *universe, listTickers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error resolving tickers:", err)
		os.Exit(1)
	}
	tickers = marketdata.ApplyLimit(tickers, *limit)
	if len(tickers) == 0 {
		fmt.Fprintln(os.Stderr, "error: no tickers to scan")
		os.Exit(1)
	}

	var scorer sentiment.Scorer
	if !*noSentiment {
		scorer = sentiment.NewRuleScorer()
	}

	var decisions []engine.Decision
	buys := 0
	for _, tk := range tickers {
		bars, err := source.DailyBars(ctx, tk, time.Time{}, cutoff)
		if err != nil {
			fmt.Printf("%-8s ERROR %s\n", tk, err)
			continue
		}
		if len(bars) == 0 {
			fmt.Printf("%-8s SKIP  no bars\n", tk)
			continue
		}
		snap := indicators.Build(tk, bars)
		var scores *sentiment.Scores
		if scorer != nil {
			s := scorer.Score(snap, bars)
			scores = &s
		}
		dec := engine.Decide(bars, snap, scores, &cfg)
		decisions = append(decisions, dec)

		if dec.BuyNow {
			buys++
			fmt.Printf("%-8s BUY   kind=%s rr=%.2f entry=%.2f stop=%.2f target=%.2f  %s\n",
				tk, dec.Kind, dec.RR.Ratio, dec.Entry, dec.Stop, dec.Target, dec.Why)
			continue
		}
		if !*buysOnly {
			detail := dec.WaitDetail
			if detail != "" {
				detail = " (" + detail + ")"
			}
			fmt.Printf("%-8s WAIT  %s%s\n", tk, dec.WaitReason, detail)
		}
	}
	fmt.Printf("Scanned %d tickers -> %d buy candidates\n", len(tickers), buys)

	if *jsonOut != "" {
		data, err := json.MarshalIndent(decisions, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error encoding decisions:", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "error writing decisions:", err)
			os.Exit(1)
		}
		fmt.Printf("Decisions saved to %s\n", *jsonOut)
	}
}

func scanUniverse(tickersFlag, universePath string, sourceList func() ([]string, error)) ([]string, error) {
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
