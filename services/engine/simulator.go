package engine

import (
	"context"
	"sync"
	"time"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
	"swing-engine/services/sentiment"
)

// Options are the per-run knobs around a Config.
type Options struct {
	From               time.Time
	To                 time.Time
	Workers            int
	SimulateRejected   bool
	ExamplesCap        int
	TopRejected        int
	TargetTradesPerDay float64
	IncludeEvents      bool
	IncludeTrades      bool
}

// DefaultOptions mirrors the runBacktest defaults.
func DefaultOptions() Options {
	return Options{
		Workers:          1,
		SimulateRejected: true,
		ExamplesCap:      3,
		TopRejected:      10,
		IncludeEvents:    true,
		IncludeTrades:    true,
	}
}

// FetchError records one instrument whose data could not be loaded. The
// batch continues past it.
type FetchError struct {
	Ticker string `json:"ticker"`
	Error  string `json:"error"`
}

// InstrumentResult is the walk-forward outcome for one ticker.
type InstrumentResult struct {
	Ticker    string
	Bars      int
	Trades    []Trade
	OpenAtEnd *Position
	Signals   int

	telemetry *TelemetryAggregator
}

// RunResult is the raw simulator output; the report layer shapes it for
// serialization.
type RunResult struct {
	From        time.Time
	To          time.Time
	Results     []InstrumentResult
	FetchErrors []FetchError
	Telemetry   *TelemetryAggregator
}

// Runner executes the walk-forward simulation over a universe.
type Runner struct {
	Source marketdata.BarSource
	Scorer sentiment.Scorer
	Cfg    Config
	Opts   Options
}

// Run walks every ticker. Instruments fan out over Opts.Workers goroutines;
// results and telemetry merge back in input order so identical inputs give
// byte-identical output regardless of worker count. Run stops early only on
// context cancellation.
func (r *Runner) Run(ctx context.Context, tickers []string) (*RunResult, error) {
	if err := r.Cfg.Validate(); err != nil {
		return nil, err
	}

	type slot struct {
		res InstrumentResult
		err error
	}
	slots := make([]slot, len(tickers))

	workers := r.Opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tickers) {
		workers = len(tickers)
	}

	if workers <= 1 {
		for i, tk := range tickers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			slots[i].res, slots[i].err = r.runInstrument(ctx, tk)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					if ctx.Err() != nil {
						slots[i].err = ctx.Err()
						continue
					}
					slots[i].res, slots[i].err = r.runInstrument(ctx, tickers[i])
				}
			}()
		}
		for i := range tickers {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	out := &RunResult{
		From:      r.Opts.From,
		To:        r.Opts.To,
		Telemetry: NewTelemetry(r.examplesCap()),
	}
	for i, s := range slots {
		if s.err != nil {
			out.FetchErrors = append(out.FetchErrors, FetchError{Ticker: tickers[i], Error: s.err.Error()})
			continue
		}
		out.Telemetry.Merge(s.res.telemetry)
		s.res.telemetry = nil
		out.Results = append(out.Results, s.res)
	}
	return out, nil
}

func (r *Runner) examplesCap() int {
	if r.Opts.ExamplesCap > 0 {
		return r.Opts.ExamplesCap
	}
	return 3
}

// runInstrument walks one ticker bar by bar: lifecycle while a position is
// open, eligibility gates otherwise, decision and entry at the signal bar's
// close. Counterfactual shadows ride alongside.
func (r *Runner) runInstrument(ctx context.Context, ticker string) (InstrumentResult, error) {
	bars, err := r.Source.DailyBars(ctx, ticker, r.Opts.From, r.Opts.To)
	if err != nil {
		return InstrumentResult{}, err
	}

	cfg := r.Cfg
	res := InstrumentResult{
		Ticker:    ticker,
		Bars:      len(bars),
		telemetry: NewTelemetry(r.examplesCap()),
	}

	var pos *Position
	var shadows []*Position
	cooldownUntil := -1

	for i := range bars {
		if i < cfg.WarmupBars {
			res.telemetry.RecordBlock(ReasonWarmup)
			continue
		}

		window := bars[:i+1]
		bar := bars[i]
		snap := indicators.Build(ticker, window)

		// Shadows opened on earlier bars advance first; ones spawned below
		// start stepping on the next bar.
		shadows = stepShadows(shadows, bar, i, snap, window, &cfg, res.telemetry)

		if pos != nil {
			if tr := pos.Step(bar, i, snap, window, &cfg); tr != nil {
				res.Trades = append(res.Trades, *tr)
				res.telemetry.RecordTrade(tr)
				cooldownUntil = i + cfg.CooldownDays
				pos = nil
			} else {
				res.telemetry.RecordBlock(ReasonInTrade)
			}
			continue
		}

		if i <= cooldownUntil {
			res.telemetry.RecordBlock(ReasonCooldown)
			continue
		}

		var scores *sentiment.Scores
		if r.Scorer != nil {
			s := r.Scorer.Score(snap, window)
			scores = &s
		}
		dec := Decide(window, snap, scores, &cfg)
		res.telemetry.RecordDecision(dec)

		if dec.BuyNow {
			p := OpenPosition(dec, i)
			pos = &p
			res.Signals++
			continue
		}
		if r.Opts.SimulateRejected {
			for _, rej := range dec.Rejected {
				sh := OpenPosition(Decision{
					Ticker:    dec.Ticker,
					Date:      dec.Date,
					Kind:      rej.Kind,
					Entry:     dec.Entry,
					Stop:      roundToTick(rej.RR.Stop, cfg.TickSize),
					Target:    roundToTick(rej.RR.Target, cfg.TickSize),
					RR:        rej.RR,
					Sentiment: dec.Sentiment,
				}, i)
				sh.BlockCode = rej.Code
				shadows = append(shadows, &sh)
			}
		}
	}

	if pos != nil {
		res.OpenAtEnd = pos
	}
	for _, sh := range shadows {
		res.telemetry.RecordShadowOpen(sh.BlockCode)
	}
	return res, nil
}

func stepShadows(shadows []*Position, bar marketdata.Bar, idx int,
	snap indicators.Snapshot, window []marketdata.Bar, cfg *Config,
	tel *TelemetryAggregator) []*Position {

	if len(shadows) == 0 {
		return shadows
	}
	keep := shadows[:0]
	for _, sh := range shadows {
		if tr := sh.Step(bar, idx, snap, window, cfg); tr != nil {
			tel.RecordShadowTrade(sh.BlockCode, tr)
			continue
		}
		keep = append(keep, sh)
	}
	return keep
}
