package cex

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

const okxAPIURL = "https://www.okx.com"

// OKXSource fetches spot tickers from the OKX v5 REST API.
type OKXSource struct {
	*sources.BaseSource

	apiURL string
	client *resty.Client
}

var _ sources.MarketDataSource = (*OKXSource)(nil)

// NewOKXSource creates a new OKX source. Pairs map unified symbols to
// instrument IDs, e.g. "BTC/USDT" => "BTC-USDT".
func NewOKXSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	return &OKXSource{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeCEX, pairs, logger),
		apiURL:     sources.GetStringFromConfig(config, "api_url", okxAPIURL),
		client:     sources.NewHTTPClient(config),
	}, nil
}

// Fetch returns the last traded price of symbol.
func (s *OKXSource) Fetch(ctx context.Context, symbol string) (q sources.Quote, err error) {
	defer func() { s.Observe(err) }()

	instID, err := s.Resolve(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	body, err := sources.GetJSON(ctx, s.client, s.apiURL+"/api/v5/market/ticker", map[string]string{"instId": instID})
	if err != nil {
		return sources.Quote{}, err
	}

	// code "0" means success
	if code := gjson.GetBytes(body, "code").String(); code != "0" {
		return sources.Quote{}, fmt.Errorf("%w: okx code %s: %s", sources.ErrAPIError, code, gjson.GetBytes(body, "msg").String())
	}

	price, err := sources.DecimalAt(body, "data.0.last")
	if err != nil {
		return sources.Quote{}, err
	}
	return s.NewQuote(symbol, price, sources.ParseTimestamp(gjson.GetBytes(body, "data.0.ts")))
}
