package engine

import (
	"fmt"
	"sort"
	"strings"

	"swing-engine/services/sentiment"
)

// Lane names one detector family the aggregator may run. The active subset
// is explicit configuration, never a clock read.
type Lane string

const (
	LaneDip            Lane = "DIP"
	LaneBreakout       Lane = "BREAKOUT"
	LaneLegacyBreakout Lane = "LEGACY_BREAKOUT"
	LaneContinuation   Lane = "CONTINUATION"
)

// Lanes is the enabled-detector subset.
type Lanes []Lane

func (l Lanes) Has(lane Lane) bool {
	for _, v := range l {
		if v == lane {
			return true
		}
	}
	return false
}

func (l Lanes) Strings() []string {
	out := make([]string, len(l))
	for i, v := range l {
		out[i] = string(v)
	}
	return out
}

// ParseLanes reads a comma-separated lane list ("DIP,BREAKOUT").
func ParseLanes(s string) (Lanes, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty lane list")
	}
	var out Lanes
	for _, part := range strings.Split(s, ",") {
		lane := Lane(strings.ToUpper(strings.TrimSpace(part)))
		switch lane {
		case LaneDip, LaneBreakout, LaneLegacyBreakout, LaneContinuation:
			out = append(out, lane)
		default:
			return nil, fmt.Errorf("unknown lane %q", part)
		}
	}
	return out, nil
}

// DipConfig holds the pullback-and-bounce thresholds. Percent fields are in
// percent units, ATR fields are ATR multiples.
type DipConfig struct {
	LookbackBars   int     // pullback search window
	MinPullbackPct float64 // percent
	MinPullbackATR float64
	FibLow         float64 // retracement band, fractions of the swing
	FibHigh        float64
	FibTolerance   float64
	FreshnessBars  int
	MATolerancePct float64 // percent distance of the dip low to MA25/MA50
	MAToleranceATR float64
	SupportTouches int
	SupportTolATR  float64
	MinBounceATR   float64 // bounce strength off the low
	DryVolumeMult  float64 // pullback average vs 20-day average
	HotVolumeMult  float64 // bounce bar vs 20-day average
	MaxRecovered   float64 // fraction of the dip span
	HigherLowBars  int
	StopATR        float64 // stop below the dip low
	TargetATR      float64 // target projection
	TargetHighBars int
	ResStepATR     float64 // step target when nearest resistance closer than this
}

// BreakoutConfig holds the strict resistance-breakout thresholds.
type BreakoutConfig struct {
	BaseBars      int
	ExcludeRecent int
	MinClosePct   float64 // percent above the base high
	MaxGapPct     float64 // percent
	VolumeMult    float64
	RSISoftCap    float64
	StopATR       float64
	TargetATR     float64
}

// LegacyBreakoutConfig holds the flat-top variant thresholds.
type LegacyBreakoutConfig struct {
	BaseBars    int
	TouchTolPct float64 // percent band counted as a touch
	MinTouches  int
	MaxGapPct   float64
	RSICap      float64
	StopATR     float64
	TargetATR   float64
}

// ContinuationConfig holds the friendly-tape (SPC) thresholds.
type ContinuationConfig struct {
	TinyDipATR      float64 // max pullback from the recent high
	TightRangePct   float64 // percent per-bar range counted as drift
	DriftBars       int
	MaxExtensionATR float64 // distance above MA25
	MinHeadroomATR  float64
	StrongClosePos  float64 // close position in the day range for the override
	StopATR         float64
	TargetATR       float64
}

// RRConfig holds the risk/reward evaluator knobs. Regime-dependent values
// carry one field per trend.
type RRConfig struct {
	MinStopATRStrongUp float64
	MinStopATRUp       float64
	MinStopATRWeakUp   float64
	MinStopATRDown     float64

	FloorBase     float64
	FloorStrongUp float64
	FloorUp       float64
	FloorWeakUp   float64
	FloorDown     float64

	StructuralTolATR float64 // proposed stop within this of a structural stop is trusted
	ResStepATR       float64 // step target when nearest resistance closer than this

	LowATRPct  float64 // ATR as % of price below this loosens the floor
	HighATRPct float64 // ... above this tightens it
	LowNudge   float64
	HighNudge  float64

	ProbationEnabled bool
	ProbationSlack   float64
	ProbationMaxRSI  float64
}

func (c RRConfig) minStopATRFor(t Trend) float64 {
	switch t {
	case TrendStrongUp:
		return c.MinStopATRStrongUp
	case TrendUp:
		return c.MinStopATRUp
	case TrendWeakUp:
		return c.MinStopATRWeakUp
	default:
		return c.MinStopATRDown
	}
}

func (c RRConfig) floorFor(t Trend) float64 {
	switch t {
	case TrendStrongUp:
		return c.FloorStrongUp
	case TrendUp:
		return c.FloorUp
	case TrendWeakUp:
		return c.FloorWeakUp
	default:
		return c.FloorDown
	}
}

// GuardConfig holds the veto-chain thresholds, applied in fixed order.
type GuardConfig struct {
	RSICeiling      float64
	MinHeadroomATR  float64
	MinHeadroomPct  float64 // percent
	ThinRRMargin    float64 // RR margin over the floor below which headroom vetoes
	MaxExtensionATR float64 // distance above MA25
	MaxConsecUp     int
}

// Config is the full engine configuration for one variant.
type Config struct {
	Variant string
	Lanes   Lanes

	WarmupBars          int
	CooldownDays        int
	HoldBars            int
	TrailingAfterTarget bool
	MinHistoryBars      int
	TickSize            float64

	TrailSwingATR float64 // trail = max(swing low − TrailSwingATR×ATR, MA25 − TrailMA25ATR×ATR)
	TrailMA25ATR  float64
	SwingLowBars  int // window for the trail swing low

	Dip          DipConfig
	Breakout     BreakoutConfig
	Legacy       LegacyBreakoutConfig
	Continuation ContinuationConfig
	RR           RRConfig
	Guards       GuardConfig

	SentimentGate sentiment.Gate
}

// DefaultConfig returns the dip-simplified reference variant.
func DefaultConfig() Config {
	return Config{
		Variant: "default",
		Lanes:   Lanes{LaneDip},

		WarmupBars:          60,
		CooldownDays:        5,
		HoldBars:            10,
		TrailingAfterTarget: true,
		MinHistoryBars:      25,
		TickSize:            0.01,

		TrailSwingATR: 0.5,
		TrailMA25ATR:  0.6,
		SwingLowBars:  10,

		Dip: DipConfig{
			LookbackBars:   10,
			MinPullbackPct: 3.0,
			MinPullbackATR: 1.2,
			FibLow:         0.5,
			FibHigh:        0.618,
			FibTolerance:   0.08,
			FreshnessBars:  5,
			MATolerancePct: 1.5,
			MAToleranceATR: 0.5,
			SupportTouches: 2,
			SupportTolATR:  0.35,
			MinBounceATR:   0.35,
			DryVolumeMult:  0.9,
			HotVolumeMult:  1.3,
			MaxRecovered:   0.65,
			HigherLowBars:  15,
			StopATR:        0.5,
			TargetATR:      2.0,
			TargetHighBars: 20,
			ResStepATR:     0.6,
		},
		Breakout: BreakoutConfig{
			BaseBars:      20,
			ExcludeRecent: 2,
			MinClosePct:   0.3,
			MaxGapPct:     2.0,
			VolumeMult:    1.5,
			RSISoftCap:    70,
			StopATR:       0.6,
			TargetATR:     2.0,
		},
		Legacy: LegacyBreakoutConfig{
			BaseBars:    30,
			TouchTolPct: 1.0,
			MinTouches:  3,
			MaxGapPct:   2.0,
			RSICap:      70,
			StopATR:     0.6,
			TargetATR:   2.0,
		},
		Continuation: ContinuationConfig{
			TinyDipATR:      0.5,
			TightRangePct:   1.0,
			DriftBars:       3,
			MaxExtensionATR: 1.5,
			MinHeadroomATR:  1.0,
			StrongClosePos:  0.75,
			StopATR:         0.5,
			TargetATR:       2.0,
		},
		RR: RRConfig{
			MinStopATRStrongUp: 0.9,
			MinStopATRUp:       1.0,
			MinStopATRWeakUp:   1.1,
			MinStopATRDown:     1.25,
			FloorBase:          1.8,
			FloorStrongUp:      1.8,
			FloorUp:            2.0,
			FloorWeakUp:        2.4,
			FloorDown:          2.6,
			StructuralTolATR:   0.6,
			ResStepATR:         0.7,
			LowATRPct:          1.2,
			HighATRPct:         4.0,
			LowNudge:           0.2,
			HighNudge:          0.3,
			ProbationEnabled:   false,
			ProbationSlack:     0.15,
			ProbationMaxRSI:    60,
		},
		Guards: GuardConfig{
			RSICeiling:      72,
			MinHeadroomATR:  0.8,
			MinHeadroomPct:  1.5,
			ThinRRMargin:    0.25,
			MaxExtensionATR: 2.2,
			MaxConsecUp:     5,
		},

		SentimentGate: sentiment.DefaultGate,
	}
}

// Preset returns a named variant. The default is the dip-simplified build;
// the others preserve earlier threshold sets as configuration.
func Preset(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "dip-simplified":
		return DefaultConfig(), nil
	case "classic":
		cfg := DefaultConfig()
		cfg.Variant = "classic"
		cfg.Lanes = Lanes{LaneDip, LaneBreakout, LaneLegacyBreakout}
		cfg.CooldownDays = 10
		cfg.Dip.MinPullbackPct = 2.5
		cfg.Guards.RSICeiling = 70
		return cfg, nil
	case "strict":
		cfg := DefaultConfig()
		cfg.Variant = "strict"
		cfg.SentimentGate = sentiment.StrictGate
		cfg.Guards.MaxConsecUp = 4
		cfg.RR.FloorUp = 2.2
		return cfg, nil
	case "legacy-hold":
		cfg := DefaultConfig()
		cfg.Variant = "legacy-hold"
		cfg.Lanes = Lanes{LaneDip, LaneContinuation}
		cfg.TrailingAfterTarget = false
		cfg.CooldownDays = 10
		return cfg, nil
	default:
		return Config{}, fmt.Errorf("unknown variant %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
}

// PresetNames lists the registered variants.
func PresetNames() []string {
	names := []string{"default", "classic", "strict", "legacy-hold"}
	sort.Strings(names)
	return names
}

// Validate rejects configurations the simulator cannot run.
func (c Config) Validate() error {
	if len(c.Lanes) == 0 {
		return fmt.Errorf("no lanes enabled")
	}
	if c.WarmupBars < c.MinHistoryBars {
		return fmt.Errorf("warmup %d below minimum history %d", c.WarmupBars, c.MinHistoryBars)
	}
	if c.CooldownDays < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	if !c.TrailingAfterTarget && c.HoldBars <= 0 {
		return fmt.Errorf("hold bars must be positive when trailing is off")
	}
	if c.TickSize < 0 {
		return fmt.Errorf("tick size must be >= 0")
	}
	return nil
}
