// Package priceserver reads quotes from another keeper's price API or any
// service exposing GET /v1/prices.
package priceserver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

// Price represents a single price from the price server
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// Source matches the requested symbol, or an equivalent one, in the
// server's price list.
type Source struct {
	*sources.BaseSource

	baseURL string
	client  *resty.Client
}

var _ sources.MarketDataSource = (*Source)(nil)

// NewSource creates a price server source. "pairs" is optional; without it
// symbols are looked up as requested.
func NewSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	baseURL := sources.GetStringFromConfig(config, "url", "")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: priceserver requires 'url'", sources.ErrInvalidConfig)
	}

	var pairs map[string]string
	if _, ok := config["pairs"]; ok {
		var err error
		if pairs, err = sources.ParsePairsFromMap(config); err != nil {
			return nil, fmt.Errorf("failed to parse pairs: %w", err)
		}
	}

	return &Source{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypePriceServer, pairs, logger),
		baseURL:    baseURL,
		client:     sources.NewHTTPClient(config),
	}, nil
}

// GetPrices fetches the full price list.
func (s *Source) GetPrices(ctx context.Context) ([]Price, error) {
	var prices []Price
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&prices).
		Get(s.baseURL + "/v1/prices")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: price server returned %d: %s", sources.ErrUnexpectedStatus, resp.StatusCode(), resp.String())
	}
	return prices, nil
}

// Fetch returns the server's price for symbol.
func (s *Source) Fetch(ctx context.Context, symbol string) (q sources.Quote, err error) {
	defer func() { s.Observe(err) }()

	want := symbol
	if len(s.Symbols()) > 0 {
		if want, err = s.Resolve(symbol); err != nil {
			return sources.Quote{}, err
		}
	}

	prices, err := s.GetPrices(ctx)
	if err != nil {
		return sources.Quote{}, err
	}

	for _, p := range prices {
		if p.Symbol == want {
			return s.NewQuote(symbol, p.Price, p.Timestamp)
		}
	}
	for _, p := range prices {
		if sources.IsEquivalentSymbol(p.Symbol, want) {
			return s.NewQuote(symbol, p.Price, p.Timestamp)
		}
	}
	return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrNoPricesAvailable, symbol)
}

func init() {
	sources.Register(string(sources.SourceTypePriceServer), NewSource)
}
