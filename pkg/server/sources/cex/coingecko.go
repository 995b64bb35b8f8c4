package cex

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

const (
	coinGeckoAPIURL    = "https://api.coingecko.com/api/v3"
	coinGeckoProAPIURL = "https://pro-api.coingecko.com/api/v3"
)

// CoinGeckoSource fetches prices from the CoinGecko simple price API.
// Pairs map unified symbols to coin IDs ("BTC/USD" => "bitcoin"); the
// QUOTE currency, normalized, selects vs_currency.
type CoinGeckoSource struct {
	*sources.BaseSource

	apiURL    string
	apiKey    string
	keyHeader string
	client    *resty.Client
}

var _ sources.MarketDataSource = (*CoinGeckoSource)(nil)

// NewCoinGeckoSource creates a new CoinGecko source. With "api_key" set the
// pro endpoint is used unless "demo" is true.
func NewCoinGeckoSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	apiKey := sources.GetStringFromConfig(config, "api_key", "")
	demo, _ := config["demo"].(bool)
	apiURL, keyHeader := coinGeckoAPIURL, "x-cg-demo-api-key"
	if apiKey != "" && !demo {
		apiURL, keyHeader = coinGeckoProAPIURL, "x-cg-pro-api-key"
	}

	return &CoinGeckoSource{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeCEX, pairs, logger),
		apiURL:     sources.GetStringFromConfig(config, "api_url", apiURL),
		apiKey:     apiKey,
		keyHeader:  keyHeader,
		client:     sources.NewHTTPClient(config),
	}, nil
}

// Fetch returns the price of symbol in its quote currency.
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbol string) (q sources.Quote, err error) {
	defer func() { s.Observe(err) }()

	coinID, err := s.Resolve(symbol)
	if err != nil {
		return sources.Quote{}, err
	}
	_, quote, err := sources.SplitSymbol(sources.NormalizeSymbol(symbol))
	if err != nil {
		return sources.Quote{}, err
	}
	vs := strings.ToLower(quote)

	req := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":                     coinID,
			"vs_currencies":           vs,
			"include_last_updated_at": "true",
		})
	if s.apiKey != "" {
		req.SetHeader(s.keyHeader, s.apiKey)
	}
	resp, err := req.Get(s.apiURL + "/simple/price")
	if err != nil {
		return sources.Quote{}, fmt.Errorf("request coingecko: %w", err)
	}
	if resp.IsError() {
		return sources.Quote{}, fmt.Errorf("%w: %d from coingecko", sources.ErrUnexpectedStatus, resp.StatusCode())
	}

	body := resp.Body()
	coin := gjson.GetBytes(body, gjson.Escape(coinID))
	if !coin.Exists() {
		return sources.Quote{}, fmt.Errorf("%w: coin %s missing", sources.ErrInvalidResponse, coinID)
	}
	price, err := sources.ParseDecimal(coin.Get(vs))
	if err != nil {
		return sources.Quote{}, err
	}
	return s.NewQuote(symbol, price, sources.ParseTimestamp(coin.Get("last_updated_at")))
}
