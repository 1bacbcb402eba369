package engine

import (
	"fmt"
	"math"
)

// runningStat is a mergeable single-pass accumulator.
type runningStat struct {
	N   int
	Sum float64
	Min float64
	Max float64
}

func (s *runningStat) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if s.N == 0 || v < s.Min {
		s.Min = v
	}
	if s.N == 0 || v > s.Max {
		s.Max = v
	}
	s.N++
	s.Sum += v
}

func (s *runningStat) Merge(o runningStat) {
	if o.N == 0 {
		return
	}
	if s.N == 0 || o.Min < s.Min {
		s.Min = o.Min
	}
	if s.N == 0 || o.Max > s.Max {
		s.Max = o.Max
	}
	s.N += o.N
	s.Sum += o.Sum
}

// StatSummary is the finalized form of a runningStat.
type StatSummary struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

func (s runningStat) summary() StatSummary {
	out := StatSummary{N: s.N, Min: s.Min, Max: s.Max}
	if s.N > 0 {
		out.Mean = s.Sum / float64(s.N)
	}
	return out
}

// shadowBucket accumulates counterfactual outcomes for one rejection code.
type shadowBucket struct {
	Total     int
	Winners   int
	SumR      float64
	OpenAtEnd int
	Examples  []Trade
}

// sentimentSide is one half (taken or rejected) of a sentiment-combo cell.
type sentimentSide struct {
	Total   int
	Winners int
	SumR    float64
}

func (s *sentimentSide) add(t *Trade) {
	s.Total++
	if t.Result == ResultWin {
		s.Winners++
	}
	s.SumR += t.R
}

type sentimentCell struct {
	Taken    sentimentSide
	Rejected sentimentSide
}

// TelemetryAggregator collects rejection, counterfactual and sentiment
// statistics for one run. It is not goroutine-safe: each worker owns an
// instance and the runner merges them in input order.
type TelemetryAggregator struct {
	examplesCap int

	rejections map[ReasonCode]int
	buckets    map[ReasonBucket]int

	rrShortfall  runningStat
	headroomATR  runningStat
	extensionATR runningStat

	shadowTotal     int
	shadowWinners   int
	shadowSumR      float64
	shadowOpenAtEnd int
	shadows         map[ReasonCode]*shadowBucket

	sentiment map[string]*sentimentCell
}

// NewTelemetry returns an empty aggregator keeping at most examplesCap
// counterfactual example trades per rejection code.
func NewTelemetry(examplesCap int) *TelemetryAggregator {
	t := &TelemetryAggregator{examplesCap: examplesCap}
	t.Reset()
	return t
}

// Reset clears all accumulated state so the instance can serve another run.
func (t *TelemetryAggregator) Reset() {
	t.rejections = make(map[ReasonCode]int)
	t.buckets = make(map[ReasonBucket]int)
	t.rrShortfall = runningStat{}
	t.headroomATR = runningStat{}
	t.extensionATR = runningStat{}
	t.shadowTotal = 0
	t.shadowWinners = 0
	t.shadowSumR = 0
	t.shadowOpenAtEnd = 0
	t.shadows = make(map[ReasonCode]*shadowBucket)
	t.sentiment = make(map[string]*sentimentCell)
}

// RecordBlock counts a simulator-level block (warm-up, cooldown, in-trade).
func (t *TelemetryAggregator) RecordBlock(code ReasonCode) {
	t.rejections[code]++
	t.buckets[code.Bucket()]++
}

// RecordDecision folds one negative decision into the histograms and the
// tuning distributions. Positive decisions contribute guard diagnostics only.
func (t *TelemetryAggregator) RecordDecision(dec Decision) {
	if !dec.BuyNow && dec.WaitReason != "" {
		t.rejections[dec.WaitReason]++
		t.buckets[dec.WaitReason.Bucket()]++
	}
	for _, r := range dec.Rejected {
		if r.Code == ReasonRRShortfall {
			t.rrShortfall.Add(r.RR.Need - r.RR.Ratio)
		}
	}
	if dec.Guards.HasResistance {
		t.headroomATR.Add(dec.Guards.HeadroomATR)
	}
	if dec.Guards.HasMA25 {
		t.extensionATR.Add(dec.Guards.DistFromMA25)
	}
}

// RecordTrade folds a taken, closed trade into the sentiment tables.
func (t *TelemetryAggregator) RecordTrade(tr *Trade) {
	if tr.Sentiment == nil {
		return
	}
	t.cell(tr.Sentiment.ShortTerm, tr.Sentiment.LongTerm).Taken.add(tr)
}

// RecordShadowTrade folds a closed counterfactual trade into its rejection
// bucket and the rejected side of the sentiment tables.
func (t *TelemetryAggregator) RecordShadowTrade(code ReasonCode, tr *Trade) {
	b := t.shadow(code)
	b.Total++
	t.shadowTotal++
	if tr.Result == ResultWin {
		b.Winners++
		t.shadowWinners++
	}
	b.SumR += tr.R
	t.shadowSumR += tr.R
	if len(b.Examples) < t.examplesCap {
		b.Examples = append(b.Examples, *tr)
	}
	if tr.Sentiment != nil {
		t.cell(tr.Sentiment.ShortTerm, tr.Sentiment.LongTerm).Rejected.add(tr)
	}
}

// RecordShadowOpen counts a counterfactual position still open when the data
// ended.
func (t *TelemetryAggregator) RecordShadowOpen(code ReasonCode) {
	t.shadow(code).OpenAtEnd++
	t.shadowOpenAtEnd++
}

func (t *TelemetryAggregator) shadow(code ReasonCode) *shadowBucket {
	b, ok := t.shadows[code]
	if !ok {
		b = &shadowBucket{}
		t.shadows[code] = b
	}
	return b
}

func (t *TelemetryAggregator) cell(short, long int) *sentimentCell {
	key := fmt.Sprintf("s%d_l%d", short, long)
	c, ok := t.sentiment[key]
	if !ok {
		c = &sentimentCell{}
		t.sentiment[key] = c
	}
	return c
}

// Merge folds another aggregator into this one. Callers merge worker
// instances in a fixed order so runs stay deterministic.
func (t *TelemetryAggregator) Merge(o *TelemetryAggregator) {
	for code, n := range o.rejections {
		t.rejections[code] += n
	}
	for b, n := range o.buckets {
		t.buckets[b] += n
	}
	t.rrShortfall.Merge(o.rrShortfall)
	t.headroomATR.Merge(o.headroomATR)
	t.extensionATR.Merge(o.extensionATR)

	t.shadowTotal += o.shadowTotal
	t.shadowWinners += o.shadowWinners
	t.shadowSumR += o.shadowSumR
	t.shadowOpenAtEnd += o.shadowOpenAtEnd
	for code, ob := range o.shadows {
		b := t.shadow(code)
		b.Total += ob.Total
		b.Winners += ob.Winners
		b.SumR += ob.SumR
		b.OpenAtEnd += ob.OpenAtEnd
		for _, ex := range ob.Examples {
			if len(b.Examples) >= t.examplesCap {
				break
			}
			b.Examples = append(b.Examples, ex)
		}
	}
	for key, oc := range o.sentiment {
		c, ok := t.sentiment[key]
		if !ok {
			c = &sentimentCell{}
			t.sentiment[key] = c
		}
		c.Taken.Total += oc.Taken.Total
		c.Taken.Winners += oc.Taken.Winners
		c.Taken.SumR += oc.Taken.SumR
		c.Rejected.Total += oc.Rejected.Total
		c.Rejected.Winners += oc.Rejected.Winners
		c.Rejected.SumR += oc.Rejected.SumR
	}
}

// ShadowBucketReport is the finalized counterfactual view for one code.
type ShadowBucketReport struct {
	Total     int     `json:"total"`
	Winners   int     `json:"winners"`
	WinRate   float64 `json:"win_rate"`
	AvgR      float64 `json:"avg_r"`
	OpenAtEnd int     `json:"open_at_end"`
	Examples  []Trade `json:"examples,omitempty"`
}

// CounterfactualReport quantifies the cost of the trades the engine refused.
type CounterfactualReport struct {
	Total     int                           `json:"total"`
	Winners   int                           `json:"winners"`
	WinRate   float64                       `json:"win_rate"`
	AvgR      float64                       `json:"avg_r"`
	OpenAtEnd int                           `json:"open_at_end"`
	Buckets   map[string]ShadowBucketReport `json:"buckets"`
}

// SentimentSideReport is half of a finalized sentiment cell.
type SentimentSideReport struct {
	Total      int     `json:"total"`
	Winners    int     `json:"winners"`
	WinRate    float64 `json:"win_rate"`
	Expectancy float64 `json:"expectancy"`
}

// SentimentCellReport keys on the short/long score pair.
type SentimentCellReport struct {
	Taken    SentimentSideReport `json:"taken"`
	Rejected SentimentSideReport `json:"rejected"`
}

// TelemetryReport is the finalized, serializable telemetry block.
type TelemetryReport struct {
	Rejections       map[string]int                 `json:"rejections"`
	RejectionBuckets map[string]int                 `json:"rejection_buckets"`
	RRShortfall      StatSummary                    `json:"rr_shortfall"`
	HeadroomATR      StatSummary                    `json:"headroom_atr"`
	ExtensionATR     StatSummary                    `json:"extension_atr"`
	Counterfactual   CounterfactualReport           `json:"counterfactual"`
	SentimentTables  map[string]SentimentCellReport `json:"sentiment_tables"`
}

// Finalize computes the derived rates once, from running sums only.
func (t *TelemetryAggregator) Finalize() TelemetryReport {
	out := TelemetryReport{
		Rejections:       make(map[string]int, len(t.rejections)),
		RejectionBuckets: make(map[string]int, len(t.buckets)),
		RRShortfall:      t.rrShortfall.summary(),
		HeadroomATR:      t.headroomATR.summary(),
		ExtensionATR:     t.extensionATR.summary(),
		SentimentTables:  make(map[string]SentimentCellReport, len(t.sentiment)),
	}
	for code, n := range t.rejections {
		out.Rejections[string(code)] = n
	}
	for b, n := range t.buckets {
		out.RejectionBuckets[string(b)] = n
	}

	cf := CounterfactualReport{
		Total:     t.shadowTotal,
		Winners:   t.shadowWinners,
		OpenAtEnd: t.shadowOpenAtEnd,
		Buckets:   make(map[string]ShadowBucketReport, len(t.shadows)),
	}
	if cf.Total > 0 {
		cf.WinRate = float64(cf.Winners) / float64(cf.Total) * 100
		cf.AvgR = t.shadowSumR / float64(cf.Total)
	}
	for code, b := range t.shadows {
		rep := ShadowBucketReport{
			Total:     b.Total,
			Winners:   b.Winners,
			OpenAtEnd: b.OpenAtEnd,
			Examples:  b.Examples,
		}
		if b.Total > 0 {
			rep.WinRate = float64(b.Winners) / float64(b.Total) * 100
			rep.AvgR = b.SumR / float64(b.Total)
		}
		cf.Buckets[string(code)] = rep
	}
	out.Counterfactual = cf

	for key, c := range t.sentiment {
		out.SentimentTables[key] = SentimentCellReport{
			Taken:    finalizeSide(c.Taken),
			Rejected: finalizeSide(c.Rejected),
		}
	}
	return out
}

func finalizeSide(s sentimentSide) SentimentSideReport {
	out := SentimentSideReport{Total: s.Total, Winners: s.Winners}
	if s.Total > 0 {
		out.WinRate = float64(s.Winners) / float64(s.Total) * 100
		out.Expectancy = s.SumR / float64(s.Total)
	}
	return out
}
