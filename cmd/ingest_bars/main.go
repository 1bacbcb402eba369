// One-shot loader: directory of <TICKER>.csv daily bars → ClickHouse with
// dedup via ReplacingMergeTree versioning.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"swing-engine/services/marketdata"
)

func main() {
	csvDir := flag.String("csv-dir", "", "directory of <TICKER>.csv files to load (required)")
	tickersFlag := flag.String("tickers", "", "comma-separated tickers (default: every CSV in -csv-dir)")
	universePath := flag.String("universe", "", "file with one ticker per line")
	limit := flag.Int("limit", 0, "load at most N tickers (0 = all)")
	envFile := flag.String("env", "", "optional .env file with CH_* settings")
	initSchema := flag.Bool("init-schema", true, "create the bars table if missing")
	flag.Parse()

	if *csvDir == "" {
		fmt.Fprintln(os.Stderr, "error: --csv-dir is required")
		os.Exit(1)
	}
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	ctx := context.Background()
	store, err := marketdata.OpenBarStore(ctx, marketdata.ClickHouseConfigFromEnv())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", marketdata.ExplainCHError(err))
		os.Exit(1)
	}
	defer store.Close()

	if *initSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "error: ensure schema:", marketdata.ExplainCHError(err))
			os.Exit(1)
		}
	}

	tickers, err := resolveTickers(*tickersFlag, *universePath, *csvDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	tickers = marketdata.ApplyLimit(tickers, *limit)
	if len(tickers) == 0 {
		fmt.Fprintln(os.Stderr, "error: no tickers to load")
		os.Exit(1)
	}

	start := time.Now()
	var loaded, rows, failed int
	for _, tk := range tickers {
		path := filepath.Join(*csvDir, tk+".csv")
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(*csvDir, strings.ToLower(tk)+".csv")
		}
		bars, err := marketdata.LoadBarsCSV(path)
		if err != nil {
			fmt.Printf("WARN: %s load failed: %v\n", tk, err)
			failed++
			continue
		}
		if len(bars) == 0 {
			fmt.Printf("WARN: %s has no valid bars, skipping\n", tk)
			failed++
			continue
		}
		if err := store.InsertDailyBars(ctx, tk, bars); err != nil {
			fmt.Printf("WARN: %s insert failed: %s\n", tk, marketdata.ExplainCHError(err))
			failed++
			continue
		}
		fmt.Printf("==> %s | %d bars %s to %s\n",
			tk, len(bars), bars[0].Date.Format("2006-01-02"), bars[len(bars)-1].Date.Format("2006-01-02"))
		loaded++
		rows += len(bars)
	}

	fmt.Printf("Loaded %d tickers (%d rows) in %s, %d failed\n",
		loaded, rows, time.Since(start).Round(time.Millisecond), failed)
	if failed > 0 && loaded == 0 {
		os.Exit(1)
	}
	fmt.Println("✅ Done. Daily bars installed with dedup safeguards.")
}

// resolveTickers prefers the explicit list, then the universe file, then the
// CSV directory contents.
func resolveTickers(tickersFlag, universePath, csvDir string) ([]string, error) {
	if tickersFlag != "" {
		var out []string
		for _, t := range strings.Split(tickersFlag, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				out = append(out, t)
			}
		}
		return out, nil
	}
	if universePath != "" {
		return marketdata.LoadUniverse(universePath)
	}
	return marketdata.NewDirSource(csvDir).Tickers()
}
