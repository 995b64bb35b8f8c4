// Package sources provides the market data source interface, the shared
// base used by every adapter, and the factory registry.
package sources

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

// SourceType represents the type of market data source
type SourceType string

const (
	SourceTypeCEX         SourceType = "cex"
	SourceTypeREST        SourceType = "rest"
	SourceTypePriceServer SourceType = "priceserver"
	SourceTypeStream      SourceType = "websocket"
)

// Quote is one source's price for a symbol. Quotes are transient.
type Quote struct {
	Source    string          `json:"source"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarketDataSource fetches the latest price of a BASE/QUOTE symbol.
// Fetch is called concurrently for different symbols.
type MarketDataSource interface {
	Name() string
	Type() SourceType
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

// Runner is implemented by sources that keep a background connection.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error
}

// SourceFactory creates a configured source.
type SourceFactory func(name string, config map[string]interface{}, logger *logging.Logger) (MarketDataSource, error)
