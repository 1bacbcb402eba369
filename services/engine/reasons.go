package engine

// ReasonCode is the closed set of rejection and blocking codes produced by
// detectors, the RR evaluator, the guard chain and the simulator. Telemetry
// keys on these codes directly; free-text details ride alongside and are
// never parsed back.
type ReasonCode string

const (
	// simulator / data gates
	ReasonWarmup              ReasonCode = "WARMUP"
	ReasonCooldown            ReasonCode = "COOLDOWN"
	ReasonInTrade             ReasonCode = "IN_TRADE"
	ReasonInsufficientHistory ReasonCode = "INSUFFICIENT_HISTORY"
	ReasonInvalidBar          ReasonCode = "INVALID_BAR"

	// dip detector
	ReasonNoPullback       ReasonCode = "NO_PULLBACK"
	ReasonFibBand          ReasonCode = "FIB_BAND"
	ReasonDipStale         ReasonCode = "DIP_STALE"
	ReasonNoSupport        ReasonCode = "NO_SUPPORT"
	ReasonNoBounce         ReasonCode = "NO_BOUNCE"
	ReasonBounceWeak       ReasonCode = "BOUNCE_WEAK"
	ReasonVolumeRegime     ReasonCode = "VOLUME_REGIME"
	ReasonAlreadyRecovered ReasonCode = "ALREADY_RECOVERED"
	ReasonNoHigherLow      ReasonCode = "NO_HIGHER_LOW"

	// breakout detectors
	ReasonNoBase      ReasonCode = "NO_BASE"
	ReasonNoBreakout  ReasonCode = "NO_BREAKOUT"
	ReasonGapTooWide  ReasonCode = "GAP_TOO_WIDE"
	ReasonVolumeLight ReasonCode = "VOLUME_LIGHT"
	ReasonRSIHot      ReasonCode = "RSI_HOT"
	ReasonFewTouches  ReasonCode = "FEW_TOUCHES"

	// continuation detector
	ReasonTrendDown       ReasonCode = "TREND_DOWN"
	ReasonTapeNotFriendly ReasonCode = "TAPE_NOT_FRIENDLY"
	ReasonNoMomentum      ReasonCode = "NO_MOMENTUM"
	ReasonOverExtendedSPC ReasonCode = "SPC_OVER_EXTENDED"
	ReasonNoHeadroomSPC   ReasonCode = "SPC_NO_HEADROOM"

	// risk/reward
	ReasonRRShortfall ReasonCode = "RR_SHORTFALL"

	// guards
	ReasonRSICeiling   ReasonCode = "RSI_CEILING"
	ReasonHeadroomThin ReasonCode = "HEADROOM_THIN"
	ReasonOverExtended ReasonCode = "OVER_EXTENDED"
	ReasonConsecUp     ReasonCode = "CONSEC_UP"

	// aggregator
	ReasonNoTrigger     ReasonCode = "NO_TRIGGER"
	ReasonSentimentGate ReasonCode = "SENTIMENT_GATE"
)

// ReasonBucket is the coarse grouping used for histogram rollups.
type ReasonBucket string

const (
	BucketState     ReasonBucket = "STATE"
	BucketData      ReasonBucket = "DATA"
	BucketPattern   ReasonBucket = "PATTERN"
	BucketRisk      ReasonBucket = "RISK"
	BucketGuard     ReasonBucket = "GUARD"
	BucketSentiment ReasonBucket = "SENTIMENT"
)

// Bucket maps a code to its coarse group.
func (c ReasonCode) Bucket() ReasonBucket {
	switch c {
	case ReasonWarmup, ReasonCooldown, ReasonInTrade:
		return BucketState
	case ReasonInsufficientHistory, ReasonInvalidBar:
		return BucketData
	case ReasonRRShortfall:
		return BucketRisk
	case ReasonRSICeiling, ReasonHeadroomThin, ReasonOverExtended, ReasonConsecUp:
		return BucketGuard
	case ReasonSentimentGate:
		return BucketSentiment
	default:
		return BucketPattern
	}
}
