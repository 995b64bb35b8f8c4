// Package rest provides a configurable JSON-over-HTTP market data source.
package rest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

// ErrMissingTemplate indicates a source without url or price_path.
var ErrMissingTemplate = errors.New("rest source requires 'url' and 'price_path'")

// Source fetches one symbol per request from a URL template. The
// placeholders {symbol}, {base} and {quote} are replaced by the
// source-specific symbol and by the unified BASE and QUOTE. The same
// placeholders may appear in price_path and timestamp_path.
type Source struct {
	*sources.BaseSource

	url       string
	pricePath string
	timePath  string
	client    *resty.Client
}

var _ sources.MarketDataSource = (*Source)(nil)

// NewSource creates a REST source from config.
func NewSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	url := sources.GetStringFromConfig(config, "url", "")
	pricePath := sources.GetStringFromConfig(config, "price_path", "")
	if url == "" || pricePath == "" {
		return nil, fmt.Errorf("%w: %w", sources.ErrInvalidConfig, ErrMissingTemplate)
	}

	return &Source{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeREST, pairs, logger),
		url:        url,
		pricePath:  pricePath,
		timePath:   sources.GetStringFromConfig(config, "timestamp_path", ""),
		client:     sources.NewHTTPClient(config),
	}, nil
}

// Fetch requests the expanded URL and reads the price at the expanded path.
func (s *Source) Fetch(ctx context.Context, symbol string) (q sources.Quote, err error) {
	defer func() { s.Observe(err) }()

	market, err := s.Resolve(symbol)
	if err != nil {
		return sources.Quote{}, err
	}
	base, quote, err := sources.SplitSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}
	expand := strings.NewReplacer("{symbol}", market, "{base}", base, "{quote}", quote).Replace

	body, err := sources.GetJSON(ctx, s.client, expand(s.url), nil)
	if err != nil {
		return sources.Quote{}, err
	}
	price, err := sources.DecimalAt(body, expand(s.pricePath))
	if err != nil {
		return sources.Quote{}, err
	}

	ts := gjson.Result{}
	if s.timePath != "" {
		ts = gjson.GetBytes(body, expand(s.timePath))
	}
	return s.NewQuote(symbol, price, sources.ParseTimestamp(ts))
}

func init() {
	sources.Register(string(sources.SourceTypeREST), NewSource)
}
