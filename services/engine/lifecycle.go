package engine

import (
	"time"

	"swing-engine/services/indicators"
	"swing-engine/services/marketdata"
	"swing-engine/services/sentiment"
)

// ExitType names how a position closed.
type ExitType string

const (
	ExitTarget ExitType = "TARGET"
	ExitStop   ExitType = "STOP"
	ExitTime   ExitType = "TIME"
	ExitTrail  ExitType = "TRAIL"
)

// TradeResult is the binary outcome; WIN iff the R-multiple is non-negative.
type TradeResult string

const (
	ResultWin  TradeResult = "WIN"
	ResultLoss TradeResult = "LOSS"
)

// Position is one open simulated trade. The same structure drives the
// counterfactual lane; BlockCode is set only on those shadow positions.
type Position struct {
	Ticker    string
	Kind      CandidateKind
	EntryDate time.Time
	EntryIdx  int
	Entry     float64
	StopInit  float64
	Stop      float64
	Target    float64
	Trailing  bool
	RRAtEntry float64
	Probation bool
	Sentiment *sentiment.Scores

	BlockCode ReasonCode

	lowWater  float64
	highWater float64
}

// Trade is the closed-trade record emitted by Step.
type Trade struct {
	Ticker      string            `json:"ticker"`
	Kind        CandidateKind     `json:"kind"`
	EntryDate   time.Time         `json:"entryDate"`
	ExitDate    time.Time         `json:"exitDate"`
	Entry       float64           `json:"entry"`
	Exit        float64           `json:"exit"`
	StopInit    float64           `json:"stopInit"`
	Target      float64           `json:"target"`
	ExitType    ExitType          `json:"exitType"`
	Result      TradeResult       `json:"result"`
	R           float64           `json:"R"`
	ReturnPct   float64           `json:"returnPct"`
	HoldingDays int               `json:"holdingDays"`
	MAEPct      float64           `json:"maePct"`
	MFEPct      float64           `json:"mfePct"`
	RRAtEntry   float64           `json:"rrAtEntry"`
	Probation   bool              `json:"probation,omitempty"`
	Sentiment   *sentiment.Scores `json:"sentiment,omitempty"`
}

// OpenPosition creates a position from a positive decision at the signal
// bar's close.
func OpenPosition(dec Decision, idx int) Position {
	return Position{
		Ticker:    dec.Ticker,
		Kind:      dec.Kind,
		EntryDate: dec.Date,
		EntryIdx:  idx,
		Entry:     dec.Entry,
		StopInit:  dec.Stop,
		Stop:      dec.Stop,
		Target:    dec.Target,
		RRAtEntry: dec.RR.Ratio,
		Probation: dec.RR.Probation,
		Sentiment: dec.Sentiment,
		lowWater:  dec.Entry,
		highWater: dec.Entry,
	}
}

// Step advances the position by one bar. It returns a closed Trade when the
// bar exits, nil when the position survives. The stop check always precedes
// target and trail checks, modeling worst-case intrabar order.
func (p *Position) Step(bar marketdata.Bar, idx int, snap indicators.Snapshot,
	bars []marketdata.Bar, cfg *Config) *Trade {

	if bar.Low < p.lowWater {
		p.lowWater = bar.Low
	}
	if bar.High > p.highWater {
		p.highWater = bar.High
	}

	atr := floorValue(snap.ATR14, bar.Close)
	swingLow := lowestLow(bars, cfg.SwingLowBars)

	if p.Trailing {
		if cand := trailCandidate(p.Stop, swingLow, snap.MA25, atr, cfg); cand > p.Stop {
			p.Stop = cand
		}
		if bar.Low <= p.Stop {
			return p.close(bar, idx, gapFill(bar.Open, p.Stop, true), ExitTrail)
		}
		return nil
	}

	if bar.Low <= p.Stop {
		return p.close(bar, idx, gapFill(bar.Open, p.Stop, true), ExitStop)
	}

	if bar.High >= p.Target {
		if !cfg.TrailingAfterTarget {
			return p.close(bar, idx, gapFill(bar.Open, p.Target, false), ExitTarget)
		}
		p.Trailing = true
		trail := trailCandidate(p.StopInit, swingLow, snap.MA25, atr, cfg)
		p.Stop = trail
		// The bar that reached the target can fall back through the fresh
		// trail before the session ends.
		if bar.Low <= p.Stop {
			return p.close(bar, idx, p.Stop, ExitTrail)
		}
		return nil
	}

	if !cfg.TrailingAfterTarget && cfg.HoldBars > 0 && idx-p.EntryIdx >= cfg.HoldBars {
		return p.close(bar, idx, bar.Close, ExitTime)
	}

	return nil
}

// gapFill models the worse fill when the bar opens already through the
// level: stops fill at the open below, targets at the open above.
func gapFill(open, level float64, isStop bool) float64 {
	if isStop && open <= level {
		return open
	}
	if !isStop && open >= level {
		return open
	}
	return level
}

func (p *Position) close(bar marketdata.Bar, idx int, exit float64, et ExitType) *Trade {
	risk := floorValue(p.Entry-p.StopInit, p.Entry)
	r := (exit - p.Entry) / risk
	result := ResultLoss
	if r >= 0 {
		result = ResultWin
	}
	return &Trade{
		Ticker:      p.Ticker,
		Kind:        p.Kind,
		EntryDate:   p.EntryDate,
		ExitDate:    bar.Date,
		Entry:       p.Entry,
		Exit:        exit,
		StopInit:    p.StopInit,
		Target:      p.Target,
		ExitType:    et,
		Result:      result,
		R:           r,
		ReturnPct:   (exit - p.Entry) / p.Entry * 100,
		HoldingDays: idx - p.EntryIdx,
		MAEPct:      (p.lowWater - p.Entry) / p.Entry * 100,
		MFEPct:      (p.highWater - p.Entry) / p.Entry * 100,
		RRAtEntry:   p.RRAtEntry,
		Probation:   p.Probation,
		Sentiment:   p.Sentiment,
	}
}
