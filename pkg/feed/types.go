package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// LayoutVersion is the only serialized account version this package reads.
	LayoutVersion uint8 = 2

	// DefaultHistoryCapacity is used when Params.HistoryCapacity is zero.
	DefaultHistoryCapacity = 1000
	// MaxHistoryCapacity bounds the history region.
	MaxHistoryCapacity = 100_000

	// MaxSources is the size of the per-account source registry.
	MaxSources = 16
	// MaxSourceNameLen is the fixed width of a source name.
	MaxSourceNameLen = 16
	// MaxPairIDLen is the fixed width of a pair id.
	MaxPairIDLen = 32
	// MaxSymbolLen is the fixed width of a base or quote symbol.
	MaxSymbolLen = 16
	// MaxErrorThreshold bounds Params.ErrorThreshold and the number of
	// error times the breaker keeps.
	MaxErrorThreshold = 16

	// MinConfidence and MaxConfidence bound every confidence value.
	MinConfidence = 0.0
	MaxConfidence = 1.0
)

// ValidConfidence reports whether c lies in [MinConfidence, MaxConfidence].
// NaN is never valid.
func ValidConfidence(c float64) bool {
	return c >= MinConfidence && c <= MaxConfidence
}

// TradingPair identifies the market a feed tracks.
type TradingPair struct {
	ID            string `json:"id"`
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	BaseDecimals  uint8  `json:"base_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals"`
}

// Validate checks that the identity fits the persisted layout.
func (p TradingPair) Validate() error {
	if p.ID == "" || p.Base == "" || p.Quote == "" {
		return fmt.Errorf("%w: id, base and quote are required", ErrInvalidPair)
	}
	if len(p.ID) > MaxPairIDLen {
		return fmt.Errorf("%w: pair id %q longer than %d bytes", ErrFieldTooLong, p.ID, MaxPairIDLen)
	}
	if len(p.Base) > MaxSymbolLen || len(p.Quote) > MaxSymbolLen {
		return fmt.Errorf("%w: symbols longer than %d bytes", ErrFieldTooLong, MaxSymbolLen)
	}
	return nil
}

// Symbol returns the BASE/QUOTE form used by market data sources.
func (p TradingPair) Symbol() string {
	return strings.ToUpper(p.Base) + "/" + strings.ToUpper(p.Quote)
}

// PriceSample is one recorded price. Samples are immutable once in history.
type PriceSample struct {
	Price       decimal.Decimal `json:"price"`
	Confidence  float64         `json:"confidence"`
	Sources     []string        `json:"sources"`
	SampleCount uint16          `json:"sample_count"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

func (s PriceSample) clone() PriceSample {
	if s.Sources != nil {
		s.Sources = append([]string(nil), s.Sources...)
	}
	return s
}

// Params is the per-feed configuration stored with the account.
type Params struct {
	HistoryCapacity int           `json:"history_capacity"`
	MaxAge          time.Duration `json:"max_age"`
	MinConfidence   float64       `json:"min_confidence"`
	MinimumSources  int           `json:"minimum_sources"`
	ErrorThreshold  int           `json:"error_threshold"`
	TimeWindow      time.Duration `json:"time_window"`
	RecoveryTime    time.Duration `json:"recovery_time"`
}

// DefaultParams returns the parameters used for zero fields.
func DefaultParams() Params {
	return Params{
		HistoryCapacity: DefaultHistoryCapacity,
		MaxAge:          2 * time.Minute,
		MinConfidence:   0.5,
		MinimumSources:  1,
		ErrorThreshold:  5,
		TimeWindow:      10 * time.Minute,
		RecoveryTime:    15 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.HistoryCapacity == 0 {
		p.HistoryCapacity = d.HistoryCapacity
	}
	if p.MaxAge == 0 {
		p.MaxAge = d.MaxAge
	}
	if p.MinimumSources == 0 {
		p.MinimumSources = d.MinimumSources
	}
	if p.ErrorThreshold == 0 {
		p.ErrorThreshold = d.ErrorThreshold
	}
	if p.TimeWindow == 0 {
		p.TimeWindow = d.TimeWindow
	}
	if p.RecoveryTime == 0 {
		p.RecoveryTime = d.RecoveryTime
	}
	return p
}

// Validate checks ranges, including what the layout can encode.
func (p Params) Validate() error {
	switch {
	case p.HistoryCapacity < 1 || p.HistoryCapacity > MaxHistoryCapacity:
		return fmt.Errorf("%w: history capacity %d not in [1, %d]", ErrInvalidParams, p.HistoryCapacity, MaxHistoryCapacity)
	case p.MaxAge <= 0:
		return fmt.Errorf("%w: max age must be positive", ErrInvalidParams)
	case !ValidConfidence(p.MinConfidence):
		return fmt.Errorf("%w: min confidence %v not in [0, 1]", ErrInvalidParams, p.MinConfidence)
	case p.MinimumSources < 1 || p.MinimumSources > MaxSources:
		return fmt.Errorf("%w: minimum sources %d not in [1, %d]", ErrInvalidParams, p.MinimumSources, MaxSources)
	case p.ErrorThreshold < 1 || p.ErrorThreshold > MaxErrorThreshold:
		return fmt.Errorf("%w: error threshold %d not in [1, %d]", ErrInvalidParams, p.ErrorThreshold, MaxErrorThreshold)
	case p.TimeWindow <= 0 || p.RecoveryTime <= 0:
		return fmt.Errorf("%w: breaker durations must be positive", ErrInvalidParams)
	}
	return nil
}

// WindowStats summarizes the samples recorded inside one time window.
// Volume is the number of source observations behind those samples.
type WindowStats struct {
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Change  decimal.Decimal `json:"change"`
	Volume  decimal.Decimal `json:"volume"`
	Updates uint32          `json:"updates"`
}

// Statistics holds rolling and all-time figures.
type Statistics struct {
	Day           WindowStats     `json:"day"`
	Week          WindowStats     `json:"week"`
	AllTimeHigh   decimal.Decimal `json:"all_time_high"`
	AllTimeLow    decimal.Decimal `json:"all_time_low"`
	AllTimeHighAt time.Time       `json:"all_time_high_at"`
	AllTimeLowAt  time.Time       `json:"all_time_low_at"`
	TotalUpdates  uint64          `json:"total_updates"`
}

// SourceStats tracks how often a source contributed to accepted updates.
type SourceStats struct {
	Name          string    `json:"name"`
	Contributions uint64    `json:"contributions"`
	LastSeen      time.Time `json:"last_seen"`
}

// CurrentPrice is the read view returned by Account.CurrentPrice.
type CurrentPrice struct {
	Price      decimal.Decimal `json:"price"`
	Confidence float64         `json:"confidence"`
	Sources    []string        `json:"sources"`
	Age        time.Duration   `json:"age"`
	IsStale    bool            `json:"is_stale"`
	Sequence   int64           `json:"sequence"`
}

// Violation names one failed health condition reported by Account.Validate.
type Violation string

const (
	ViolationNotInitialized   Violation = "not_initialized"
	ViolationNonPositivePrice Violation = "non_positive_price"
	ViolationLowConfidence    Violation = "low_confidence"
	ViolationStale            Violation = "stale"
	ViolationCircuitOpen      Violation = "circuit_open"
)
