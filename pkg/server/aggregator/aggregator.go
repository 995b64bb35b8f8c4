package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

const (
	// ModeAverage uses the weighted average of the surviving quotes.
	ModeAverage = "average"
	// ModeMedian uses the weighted median of the surviving quotes.
	ModeMedian = "median"
)

// Confidence constants. Two or more agreeing sources score
// clamp(1 - K*MARD, Floor, Ceiling); a lone source scores SingleSource.
const (
	DefaultK            = 10.0
	DefaultFloor        = 0.1
	DefaultCeiling      = 0.99
	DefaultSingleSource = 0.5
)

// Config is the immutable aggregator configuration.
type Config struct {
	MaxAge         time.Duration      // quotes older than this are discarded; 0 keeps all
	MinimumSources int                // fresh quotes required before aggregating
	OutlierZScore  float64            // 0 disables the outlier filter
	Mode           string             // ModeAverage or ModeMedian
	Weights        map[string]float64 // per source, default 1.0
	FetchTimeout   time.Duration      // per source in Collect

	K            float64
	Floor        float64
	Ceiling      float64
	SingleSource float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxAge:         time.Minute,
		MinimumSources: 1,
		Mode:           ModeAverage,
		FetchTimeout:   5 * time.Second,
		K:              DefaultK,
		Floor:          DefaultFloor,
		Ceiling:        DefaultCeiling,
		SingleSource:   DefaultSingleSource,
	}
}

// Validate checks that the confidence constants stay inside [0, 1].
func (c Config) Validate() error {
	if c.Mode != ModeAverage && c.Mode != ModeMedian {
		return fmt.Errorf("%w: %q (supported: average, median)", ErrUnknownMode, c.Mode)
	}
	if c.MinimumSources < 1 {
		return fmt.Errorf("%w: minimum sources must be at least 1", ErrInvalidConfig)
	}
	if !(c.OutlierZScore >= 0) || !(c.K >= 0) {
		return fmt.Errorf("%w: outlier z-score and k must not be negative", ErrInvalidConfig)
	}
	if !(c.Floor >= 0 && c.Floor <= c.Ceiling && c.Ceiling <= 1) {
		return fmt.Errorf("%w: need 0 <= floor <= ceiling <= 1", ErrInvalidConfig)
	}
	if !(c.SingleSource >= 0 && c.SingleSource <= 1) {
		return fmt.Errorf("%w: single source confidence outside [0, 1]", ErrInvalidConfig)
	}
	for name, w := range c.Weights {
		if !(w > 0) {
			return fmt.Errorf("%w: weight of %s must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}

// AggregatedQuote is the synthesized price for one symbol.
type AggregatedQuote struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Confidence  float64         `json:"confidence"`
	Sources     []string        `json:"sources"`
	SampleCount int             `json:"sample_count"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PriceAggregator filters, combines and scores quotes.
type PriceAggregator struct {
	cfg    Config
	logger *logging.Logger
}

// New creates an aggregator. Zero confidence constants fall back to the defaults.
func New(cfg Config, logger *logging.Logger) (*PriceAggregator, error) {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.MinimumSources == 0 {
		cfg.MinimumSources = def.MinimumSources
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.K == 0 && cfg.Floor == 0 && cfg.Ceiling == 0 && cfg.SingleSource == 0 {
		cfg.K, cfg.Floor, cfg.Ceiling, cfg.SingleSource = def.K, def.Floor, def.Ceiling, def.SingleSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &PriceAggregator{cfg: cfg, logger: logger}, nil
}

// Config returns the aggregator configuration.
func (a *PriceAggregator) Config() Config {
	return a.cfg
}

type weightedQuote struct {
	quote  sources.Quote
	weight float64
}

// Aggregate combines quotes for symbol as of now:
//  1. discard quotes older than MaxAge (one quote per source, the newest);
//  2. fail with ErrInsufficientSources below MinimumSources;
//  3. drop quotes whose z-score exceeds OutlierZScore;
//  4. combine the survivors by weighted average (or median);
//  5. score the agreement of the survivors.
//
// The result is stamped with the oldest surviving quote time, so its age
// is the age of the data it was built from.
func (a *PriceAggregator) Aggregate(symbol string, quotes []sources.Quote, now time.Time) (AggregatedQuote, error) {
	fresh := a.fresh(quotes, now)
	if len(fresh) < a.cfg.MinimumSources {
		return AggregatedQuote{Symbol: symbol, Timestamp: now}, fmt.Errorf("%w: %s has %d fresh of %d required",
			ErrInsufficientSources, symbol, len(fresh), a.cfg.MinimumSources)
	}

	survivors := a.rejectOutliers(symbol, fresh)

	var price decimal.Decimal
	if a.cfg.Mode == ModeMedian {
		price = weightedMedian(survivors)
	} else {
		price = weightedAverage(survivors)
	}

	names := make([]string, 0, len(survivors))
	oldest := survivors[0].quote.Timestamp
	for _, q := range survivors {
		names = append(names, q.quote.Source)
		if q.quote.Timestamp.Before(oldest) {
			oldest = q.quote.Timestamp
		}
	}

	out := AggregatedQuote{
		Symbol:      symbol,
		Price:       price,
		Confidence:  a.confidence(survivors, price),
		Sources:     names,
		SampleCount: len(survivors),
		Timestamp:   oldest,
	}

	a.logger.Debug("Aggregated quotes",
		"symbol", symbol,
		"price", out.Price.String(),
		"confidence", out.Confidence,
		"fresh", len(fresh),
		"used", len(survivors))
	return out, nil
}

func (a *PriceAggregator) fresh(quotes []sources.Quote, now time.Time) []weightedQuote {
	out := make([]weightedQuote, 0, len(quotes))
	index := make(map[string]int, len(quotes))
	for _, q := range quotes {
		if !q.Price.IsPositive() {
			continue
		}
		if a.cfg.MaxAge > 0 && now.Sub(q.Timestamp) > a.cfg.MaxAge {
			continue
		}
		if i, dup := index[q.Source]; dup {
			if q.Timestamp.After(out[i].quote.Timestamp) {
				out[i].quote = q
			}
			continue
		}
		index[q.Source] = len(out)
		out = append(out, weightedQuote{quote: q, weight: a.weight(q.Source)})
	}
	return out
}

func (a *PriceAggregator) weight(source string) float64 {
	if w, ok := a.cfg.Weights[source]; ok && w > 0 {
		return w
	}
	return 1.0
}

// rejectOutliers drops quotes with |p - mean| / σ > OutlierZScore.
// σ == 0 keeps everything.
func (a *PriceAggregator) rejectOutliers(symbol string, quotes []weightedQuote) []weightedQuote {
	if a.cfg.OutlierZScore <= 0 || len(quotes) < 3 {
		return quotes
	}

	mean := simpleMean(quotes)
	sigma := stdDev(quotes, mean)
	if sigma.IsZero() {
		return quotes
	}

	limit := decimal.NewFromFloat(a.cfg.OutlierZScore).Mul(sigma)
	kept := make([]weightedQuote, 0, len(quotes))
	for _, q := range quotes {
		deviation := q.quote.Price.Sub(mean).Abs()
		if deviation.GreaterThan(limit) {
			a.logger.Debug("Rejecting outlier",
				"symbol", symbol,
				"source", q.quote.Source,
				"price", q.quote.Price.String(),
				"mean", mean.String(),
				"stddev", sigma.String())
			metrics.RecordOutlierRejection(symbol)
			continue
		}
		kept = append(kept, q)
	}

	if len(kept) == 0 {
		a.logger.Warn("All quotes rejected as outliers, using all quotes", "symbol", symbol)
		return quotes
	}
	return kept
}

// confidence maps the mean absolute relative deviation of the survivors
// around the aggregate into [Floor, Ceiling].
func (a *PriceAggregator) confidence(quotes []weightedQuote, price decimal.Decimal) float64 {
	switch len(quotes) {
	case 0:
		return 0
	case 1:
		return a.cfg.SingleSource
	}
	if !price.IsPositive() {
		return a.cfg.Floor
	}

	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.quote.Price.Sub(price).Abs().Div(price))
	}
	mard, _ := sum.Div(decimal.NewFromInt(int64(len(quotes)))).Float64()

	return clamp(1-a.cfg.K*mard, a.cfg.Floor, a.cfg.Ceiling)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
