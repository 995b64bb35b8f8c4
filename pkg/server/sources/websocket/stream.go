package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

const (
	okxPublicURL      = "wss://ws.okx.com:8443/ws/v5/public"
	defaultMaxAge     = 30 * time.Second
	defaultSymbolPath = "data.0.instId"
	defaultPricePath  = "data.0.last"
	defaultTimePath   = "data.0.ts"
)

// StreamSource keeps the latest ticker per symbol from a push feed and
// serves Fetch from that cache. The defaults match the OKX public tickers
// channel; other venues configure the gjson paths and a subscribe template
// in which {symbol} is replaced by each source-specific symbol.
type StreamSource struct {
	*sources.BaseSource

	client     *Client
	subscribe  string
	symbolPath string
	pricePath  string
	timePath   string
	maxAge     time.Duration
}

var (
	_ sources.MarketDataSource = (*StreamSource)(nil)
	_ sources.Runner           = (*StreamSource)(nil)
)

// NewStreamSource creates a streaming source from config.
func NewStreamSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.MarketDataSource, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	url := sources.GetStringFromConfig(config, "url", okxPublicURL)
	if url == "" {
		return nil, ErrMissingURL
	}

	base := sources.NewBaseSource(name, sources.SourceTypeStream, pairs, logger)
	s := &StreamSource{
		BaseSource: base,
		subscribe:  sources.GetStringFromConfig(config, "subscribe", ""),
		symbolPath: sources.GetStringFromConfig(config, "symbol_path", defaultSymbolPath),
		pricePath:  sources.GetStringFromConfig(config, "price_path", defaultPricePath),
		timePath:   sources.GetStringFromConfig(config, "timestamp_path", defaultTimePath),
		maxAge:     sources.GetDurationFromConfig(config, "max_age", defaultMaxAge),
	}

	headers := make(map[string][]string)
	for k, v := range sources.GetStringMapFromConfig(config, "headers") {
		headers[k] = []string{v}
	}
	s.client = NewClient(Config{
		URL:           url,
		ReconnectWait: sources.GetDurationFromConfig(config, "reconnect_wait", 0),
		PingInterval:  sources.GetDurationFromConfig(config, "ping_interval", 0),
		Logger:        base.Logger(),
		Headers:       headers,
	})
	s.client.SetHandlers(s.handleMessage, s.sendSubscriptions, func(err error) {
		s.Observe(err)
	})
	return s, nil
}

// Start connects and subscribes. Reconnects resubscribe automatically.
func (s *StreamSource) Start(ctx context.Context) error {
	s.Logger().Info("Starting stream source", "symbols", s.Symbols())
	return s.client.ConnectWithRetry(ctx)
}

// Stop closes the connection.
func (s *StreamSource) Stop() error {
	s.Logger().Info("Stream source stopped")
	return s.client.Close()
}

// Fetch returns the cached quote for symbol if it is fresh enough.
func (s *StreamSource) Fetch(_ context.Context, symbol string) (sources.Quote, error) {
	instID, err := s.Resolve(symbol)
	if err != nil {
		return sources.Quote{}, err
	}
	q, ok := s.GetPrice(instID)
	if !ok {
		return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrNoPricesAvailable, symbol)
	}
	if age := time.Since(q.Timestamp); age > s.maxAge {
		return sources.Quote{}, fmt.Errorf("%w: %s is %s old", ErrStaleQuote, symbol, age.Truncate(time.Millisecond))
	}
	q.Symbol = symbol
	return q, nil
}

func (s *StreamSource) sendSubscriptions() error {
	if s.subscribe == "" {
		args := make([]map[string]string, 0)
		for _, unified := range s.Symbols() {
			instID, _ := s.Resolve(unified)
			args = append(args, map[string]string{"channel": "tickers", "instId": instID})
		}
		return s.client.SendJSON(map[string]interface{}{"op": "subscribe", "args": args})
	}

	for _, unified := range s.Symbols() {
		instID, _ := s.Resolve(unified)
		msg := strings.ReplaceAll(s.subscribe, "{symbol}", instID)
		if !json.Valid([]byte(msg)) {
			return fmt.Errorf("%w: subscribe template is not valid JSON", sources.ErrInvalidConfig)
		}
		if err := s.client.Send([]byte(msg)); err != nil {
			return err
		}
	}
	return nil
}

// handleMessage caches quotes keyed by the source-specific symbol.
// Subscription acks and other events lack a price and are ignored.
func (s *StreamSource) handleMessage(msg []byte) {
	instID := gjson.GetBytes(msg, s.symbolPath).String()
	if instID == "" || s.UnifiedSymbol(instID) == "" {
		return
	}
	price, err := sources.DecimalAt(msg, s.pricePath)
	if err != nil {
		s.Logger().Debug("Ignoring message without price", "instrument", instID, "error", err)
		return
	}
	q, err := s.NewQuote(instID, price, sources.ParseTimestamp(gjson.GetBytes(msg, s.timePath)))
	if err != nil {
		s.Observe(err)
		return
	}
	s.SetPrice(q)
}
