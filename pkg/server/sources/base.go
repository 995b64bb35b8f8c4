package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
	"github.com/Magicwander/OKX-submission-complete/pkg/version"
)

// DefaultRequestTimeout bounds a single HTTP request when the config sets none.
const DefaultRequestTimeout = 10 * time.Second

// BaseSource provides common functionality for all market data sources
type BaseSource struct {
	name       string
	sourcetype SourceType
	pairs      map[string]string // unified symbol -> source-specific symbol mapping
	prices     map[string]Quote
	pricesMu   sync.RWMutex
	lastUpdate time.Time
	healthy    bool
	stateMu    sync.RWMutex
	logger     *logging.Logger
}

// NewBaseSource creates a new base source with pair mappings
// pairs: map of unified symbol (e.g., "BTC/USDT") -> source-specific symbol (e.g., "BTC-USDT")
func NewBaseSource(name string, sourcetype SourceType, pairs map[string]string, logger *logging.Logger) *BaseSource {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &BaseSource{
		name:       name,
		sourcetype: sourcetype,
		pairs:      pairs,
		prices:     make(map[string]Quote),
		logger:     logger.With("source", name),
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Symbols returns the unified symbols this source provides, sorted.
func (b *BaseSource) Symbols() []string {
	symbols := make([]string, 0, len(b.pairs))
	for s := range b.pairs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Resolve converts a unified symbol to the source-specific one. A symbol
// without its own mapping falls back to an equivalent configured pair,
// so BTC/USD resolves through a BTC/USDT entry.
func (b *BaseSource) Resolve(symbol string) (string, error) {
	if s, ok := b.pairs[symbol]; ok && s != "" {
		return s, nil
	}
	for _, alias := range SymbolAliases(NormalizeSymbol(symbol)) {
		if s, ok := b.pairs[alias]; ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrSymbolNotConfigured, symbol, b.name)
}

// UnifiedSymbol finds the unified symbol for a source-specific symbol.
// Returns empty string if not found
func (b *BaseSource) UnifiedSymbol(sourceSymbol string) string {
	for unified, source := range b.pairs {
		if source == sourceSymbol {
			return unified
		}
	}
	return ""
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.healthy
}

// LastUpdate returns the time of the last successful quote
func (b *BaseSource) LastUpdate() time.Time {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.lastUpdate
}

// Observe records the outcome of a fetch in health state and metrics.
func (b *BaseSource) Observe(err error) {
	b.stateMu.Lock()
	b.healthy = err == nil
	if err == nil {
		b.lastUpdate = time.Now()
	}
	b.stateMu.Unlock()

	metrics.RecordSourceFetch(b.name, err)
	metrics.RecordSourceHealth(b.name, string(b.sourcetype), err == nil)
	if err != nil {
		b.logger.Debug("Fetch failed", "error", err)
	}
}

// NewQuote validates price and builds a quote attributed to this source.
func (b *BaseSource) NewQuote(symbol string, price decimal.Decimal, ts time.Time) (Quote, error) {
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s %s", ErrNonPositivePrice, symbol, price)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return Quote{Source: b.name, Symbol: symbol, Price: price, Timestamp: ts.UTC()}, nil
}

// SetPrice caches the latest quote for a symbol.
func (b *BaseSource) SetPrice(q Quote) {
	b.pricesMu.Lock()
	b.prices[q.Symbol] = q
	b.pricesMu.Unlock()
	b.Observe(nil)
}

// GetPrice returns the cached quote for a symbol.
func (b *BaseSource) GetPrice(symbol string) (Quote, bool) {
	b.pricesMu.RLock()
	defer b.pricesMu.RUnlock()
	q, ok := b.prices[symbol]
	return q, ok
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// NewHTTPClient returns a resty client configured from the source config
// keys "timeout" (Go duration string) and "headers" (string map).
func NewHTTPClient(config map[string]interface{}) *resty.Client {
	timeout := GetDurationFromConfig(config, "timeout", DefaultRequestTimeout)
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", version.AgentString()).
		SetHeader("Accept", "application/json")
	for k, v := range GetStringMapFromConfig(config, "headers") {
		client.SetHeader(k, v)
	}
	return client
}

// GetJSON performs a GET and returns the body of a 2xx response.
func GetJSON(ctx context.Context, client *resty.Client, url string, query map[string]string) ([]byte, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode(), url)
	}
	return resp.Body(), nil
}
