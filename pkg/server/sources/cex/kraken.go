package cex

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

const krakenAPIURL = "https://api.kraken.com"

// KrakenSource fetches prices from the Kraken public ticker.
type KrakenSource struct {
	*sources.BaseSource

	apiURL string
	client *resty.Client
}

var _ sources.MarketDataSource = (*KrakenSource)(nil)

// NewKrakenSource creates a new Kraken source ("BTC/USD" => "XBTUSD").
func NewKrakenSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	return &KrakenSource{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeCEX, pairs, logger),
		apiURL:     sources.GetStringFromConfig(config, "api_url", krakenAPIURL),
		client:     sources.NewHTTPClient(config),
	}, nil
}

// Fetch returns the last trade close price of symbol.
func (s *KrakenSource) Fetch(ctx context.Context, symbol string) (q sources.Quote, err error) {
	defer func() { s.Observe(err) }()

	pair, err := s.Resolve(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	body, err := sources.GetJSON(ctx, s.client, s.apiURL+"/0/public/Ticker", map[string]string{"pair": pair})
	if err != nil {
		return sources.Quote{}, err
	}
	if errs := gjson.GetBytes(body, "error").Array(); len(errs) > 0 {
		return sources.Quote{}, fmt.Errorf("%w: kraken: %s", sources.ErrAPIError, errs[0].String())
	}

	// result is keyed by Kraken's internal pair name (XXBTZUSD for XBTUSD)
	price, err := sources.DecimalAt(body, "result.*.c.0")
	if err != nil {
		return sources.Quote{}, err
	}
	return s.NewQuote(symbol, price, time.Time{})
}
