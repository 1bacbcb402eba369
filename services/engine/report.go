package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ReportVersion tags the serialized document layout.
const ReportVersion = "2.0"

// Summary is the closed-trade KPI block. Open positions are excluded.
type Summary struct {
	Tickers        int     `json:"tickers"`
	Signals        int     `json:"signals"`
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRatePct     float64 `json:"win_rate_pct"`
	AvgR           float64 `json:"avg_r"`
	SumR           float64 `json:"sum_r"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgReturnPct   float64 `json:"avg_return_pct"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
	OpenAtEnd      int     `json:"open_at_end"`
	TradesPerDay   float64 `json:"trades_per_day"`
	TargetPerDay   float64 `json:"target_trades_per_day,omitempty"`
}

// RejectionCount is one row of the top-rejections table.
type RejectionCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// TickerReport is the per-instrument block.
type TickerReport struct {
	Ticker    string  `json:"ticker"`
	Bars      int     `json:"bars"`
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate_pct"`
	AvgR      float64 `json:"avg_r"`
	OpenAtEnd bool    `json:"open_at_end,omitempty"`
	TradeLog  []Trade `json:"trade_log,omitempty"`
}

// EventSignal is the decision half of a signal event.
type EventSignal struct {
	BuyNow bool          `json:"buyNow"`
	Kind   CandidateKind `json:"kind"`
	Entry  float64       `json:"entry"`
	Stop   float64       `json:"stop"`
	Target float64       `json:"target"`
}

// EventSimulation is the walk-forward outcome attached to a taken signal.
type EventSimulation struct {
	R           float64 `json:"R"`
	Result      string  `json:"result"`
	ExitType    string  `json:"exitType"`
	ReturnPct   float64 `json:"returnPct"`
	HoldingDays int     `json:"holdingDays"`
	MAEPct      float64 `json:"maePct"`
	MFEPct      float64 `json:"mfePct"`
}

// EventRisk carries the entry-time risk figures.
type EventRisk struct {
	RRAtEntry float64 `json:"rrAtEntry"`
}

// SignalEvent is one taken signal in the wire format downstream tooling
// consumes. Field casing inside the event is part of that contract.
type SignalEvent struct {
	Ticker     string           `json:"ticker"`
	Date       string           `json:"date"`
	Signal     EventSignal      `json:"signal"`
	Risk       EventRisk        `json:"risk"`
	Simulation *EventSimulation `json:"simulation,omitempty"`
	OpenAtEnd  bool             `json:"openAtEnd,omitempty"`
}

// Report is the single JSON document a run produces.
type Report struct {
	Version     string           `json:"version"`
	RunID       string           `json:"run_id"`
	GeneratedAt string           `json:"generated_at"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Variant     string           `json:"variant"`
	Lanes       []string         `json:"lanes"`
	Summary     Summary          `json:"summary"`
	ExitCounts  map[string]int   `json:"exit_counts"`
	Blocked     map[string]int   `json:"blocked"`
	TopRejected []RejectionCount `json:"top_rejections"`
	Telemetry   TelemetryReport  `json:"telemetry"`
	Tickers     []TickerReport   `json:"tickers"`
	FetchErrors []FetchError     `json:"fetch_errors,omitempty"`
	Events      []SignalEvent    `json:"events,omitempty"`
}

// BuildReport shapes a finished run for serialization. All derived rates come
// from running sums; nothing here re-walks the bars.
func BuildReport(run *RunResult, cfg Config, opts Options) Report {
	rep := Report{
		Version:     ReportVersion,
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		From:        fmtDate(run.From),
		To:          fmtDate(run.To),
		Variant:     cfg.Variant,
		Lanes:       cfg.Lanes.Strings(),
		ExitCounts:  make(map[string]int),
		Blocked:     make(map[string]int),
		FetchErrors: run.FetchErrors,
	}

	var (
		wins, losses, holdSum  int
		sumR, sumPosR, sumNegR float64
		sumReturnPct           float64
		maxEvalBars            int
	)
	for _, res := range run.Results {
		tr := TickerReport{Ticker: res.Ticker, Bars: res.Bars, Trades: len(res.Trades)}
		var tWins int
		var tSumR float64
		for i := range res.Trades {
			t := &res.Trades[i]
			rep.ExitCounts[string(t.ExitType)]++
			sumR += t.R
			if t.R > 0 {
				sumPosR += t.R
			} else {
				sumNegR += t.R
			}
			sumReturnPct += t.ReturnPct
			holdSum += t.HoldingDays
			if t.Result == ResultWin {
				wins++
				tWins++
			} else {
				losses++
			}
			tSumR += t.R
			if opts.IncludeEvents {
				rep.Events = append(rep.Events, tradeEvent(t))
			}
		}
		tr.Wins = tWins
		if tr.Trades > 0 {
			tr.WinRate = float64(tWins) / float64(tr.Trades) * 100
			tr.AvgR = tSumR / float64(tr.Trades)
		}
		if res.OpenAtEnd != nil {
			tr.OpenAtEnd = true
			rep.Summary.OpenAtEnd++
			if opts.IncludeEvents {
				rep.Events = append(rep.Events, openEvent(res.OpenAtEnd))
			}
		}
		if opts.IncludeTrades {
			tr.TradeLog = res.Trades
		}
		rep.Summary.Signals += res.Signals
		if eval := res.Bars - cfg.WarmupBars; eval > maxEvalBars {
			maxEvalBars = eval
		}
		rep.Tickers = append(rep.Tickers, tr)
	}

	trades := wins + losses
	rep.Summary.Tickers = len(run.Results)
	rep.Summary.Trades = trades
	rep.Summary.Wins = wins
	rep.Summary.Losses = losses
	rep.Summary.SumR = sumR
	rep.Summary.TargetPerDay = opts.TargetTradesPerDay
	if trades > 0 {
		rep.Summary.WinRatePct = float64(wins) / float64(trades) * 100
		rep.Summary.AvgR = sumR / float64(trades)
		rep.Summary.AvgReturnPct = sumReturnPct / float64(trades)
		rep.Summary.AvgHoldingDays = float64(holdSum) / float64(trades)
	}
	if sumNegR < 0 {
		rep.Summary.ProfitFactor = sumPosR / -sumNegR
	}
	if maxEvalBars > 0 {
		rep.Summary.TradesPerDay = float64(trades) / float64(maxEvalBars)
	}

	rep.Telemetry = run.Telemetry.Finalize()
	rep.Blocked, rep.TopRejected = splitBlocked(rep.Telemetry.Rejections, opts.TopRejected)
	return rep
}

// splitBlocked pulls the simulator state counters out of the rejection
// histogram and ranks what remains.
func splitBlocked(rejections map[string]int, topN int) (map[string]int, []RejectionCount) {
	blocked := make(map[string]int)
	var rest []RejectionCount
	for code, n := range rejections {
		switch ReasonCode(code) {
		case ReasonWarmup, ReasonCooldown, ReasonInTrade:
			blocked[code] = n
		default:
			rest = append(rest, RejectionCount{Code: code, Count: n})
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Count != rest[j].Count {
			return rest[i].Count > rest[j].Count
		}
		return rest[i].Code < rest[j].Code
	})
	if topN <= 0 {
		topN = 10
	}
	if len(rest) > topN {
		rest = rest[:topN]
	}
	return blocked, rest
}

func tradeEvent(t *Trade) SignalEvent {
	return SignalEvent{
		Ticker: t.Ticker,
		Date:   fmtDate(t.EntryDate),
		Signal: EventSignal{BuyNow: true, Kind: t.Kind, Entry: t.Entry, Stop: t.StopInit, Target: t.Target},
		Risk:   EventRisk{RRAtEntry: t.RRAtEntry},
		Simulation: &EventSimulation{
			R:           t.R,
			Result:      string(t.Result),
			ExitType:    string(t.ExitType),
			ReturnPct:   t.ReturnPct,
			HoldingDays: t.HoldingDays,
			MAEPct:      t.MAEPct,
			MFEPct:      t.MFEPct,
		},
	}
}

func openEvent(p *Position) SignalEvent {
	return SignalEvent{
		Ticker:    p.Ticker,
		Date:      fmtDate(p.EntryDate),
		Signal:    EventSignal{BuyNow: true, Kind: p.Kind, Entry: p.Entry, Stop: p.StopInit, Target: p.Target},
		Risk:      EventRisk{RRAtEntry: p.RRAtEntry},
		OpenAtEnd: true,
	}
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
