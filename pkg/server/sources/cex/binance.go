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

const binanceAPIURL = "https://api.binance.com"

// BinanceSource fetches prices from the Binance spot REST API.
type BinanceSource struct {
	*sources.BaseSource

	apiURL string
	client *resty.Client
}

var _ sources.MarketDataSource = (*BinanceSource)(nil)

// NewBinanceSource creates a new Binance source ("BTC/USDT" => "BTCUSDT").
func NewBinanceSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	return &BinanceSource{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeCEX, pairs, logger),
		apiURL:     sources.GetStringFromConfig(config, "api_url", binanceAPIURL),
		client:     sources.NewHTTPClient(config),
	}, nil
}

// Fetch returns the latest price of symbol. The ticker carries no
// timestamp, so the quote is stamped on receipt.
func (s *BinanceSource) Fetch(ctx context.Context, symbol string) (q sources.Quote, err error) {
	defer func() { s.Observe(err) }()

	market, err := s.Resolve(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	body, err := sources.GetJSON(ctx, s.client, s.apiURL+"/api/v3/ticker/price", map[string]string{"symbol": market})
	if err != nil {
		return sources.Quote{}, err
	}
	if msg := gjson.GetBytes(body, "msg"); msg.Exists() {
		return sources.Quote{}, fmt.Errorf("%w: binance: %s", sources.ErrAPIError, msg.String())
	}

	price, err := sources.DecimalAt(body, "price")
	if err != nil {
		return sources.Quote{}, err
	}
	return s.NewQuote(symbol, price, time.Time{})
}
