package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

// tickerServer acknowledges the first subscription and pushes one ticker
// per subscribed instrument.
func tickerServer(t *testing.T, ts string) (string, <-chan []byte) {
	t.Helper()
	subs := make(chan []byte, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subs <- msg
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`))
		for _, arg := range gjson.GetBytes(msg, "args").Array() {
			inst := arg.Get("instId").String()
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"tickers"},"data":[{"instId":"`+inst+`","last":"64000.5","ts":"`+ts+`"}]}`))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), subs
}

func TestStreamSource_SubscribesAndCaches(t *testing.T) {
	now := time.Now().UnixMilli()
	url, subs := tickerServer(t, decimal.NewFromInt(now).String())

	src, err := sources.Create("websocket", "okx-ws", map[string]interface{}{
		"url":   url,
		"pairs": map[string]interface{}{"BTC/USDT": "BTC-USDT"},
	}, nil)
	require.NoError(t, err)
	stream := src.(*StreamSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, stream.Start(ctx))
	defer stream.Stop()

	sub := <-subs
	assert.Equal(t, "subscribe", gjson.GetBytes(sub, "op").String())
	assert.Equal(t, "BTC-USDT", gjson.GetBytes(sub, "args.0.instId").String())

	var q sources.Quote
	require.Eventually(t, func() bool {
		q, err = stream.Fetch(ctx, "BTC/USD")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "okx-ws", q.Source)
	assert.Equal(t, "BTC/USD", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("64000.5")))
	assert.True(t, stream.IsHealthy())
}

func TestStreamSource_StaleAndMissing(t *testing.T) {
	src, err := NewStreamSource("s", map[string]interface{}{
		"url":     "ws://unused",
		"max_age": "1s",
		"pairs":   map[string]interface{}{"ETH/USDT": "ETH-USDT", "BTC/USDT": "BTC-USDT"},
	}, nil)
	require.NoError(t, err)
	stream := src.(*StreamSource)

	_, err = stream.Fetch(context.Background(), "ETH/USDT")
	assert.ErrorIs(t, err, sources.ErrNoPricesAvailable)

	old := time.Now().Add(-time.Minute).UnixMilli()
	stream.handleMessage([]byte(`{"data":[{"instId":"ETH-USDT","last":"3000","ts":"` + decimal.NewFromInt(old).String() + `"}]}`))
	_, err = stream.Fetch(context.Background(), "ETH/USDT")
	assert.ErrorIs(t, err, ErrStaleQuote)

	// unknown instruments and events are ignored
	stream.handleMessage([]byte(`{"data":[{"instId":"DOGE-USDT","last":"1"}]}`))
	stream.handleMessage([]byte(`{"event":"error","msg":"x"}`))
	_, ok := stream.GetPrice("DOGE-USDT")
	assert.False(t, ok)
}

func TestStreamSource_CustomTemplate(t *testing.T) {
	src, err := NewStreamSource("binance-ws", map[string]interface{}{
		"url":            "ws://unused",
		"subscribe":      `{"method":"SUBSCRIBE","params":["{symbol}@ticker"],"id":1}`,
		"symbol_path":    "s",
		"price_path":     "c",
		"timestamp_path": "E",
		"pairs":          map[string]interface{}{"BTC/USDT": "btcusdt"},
	}, nil)
	require.NoError(t, err)
	stream := src.(*StreamSource)

	now := time.Now().UnixMilli()
	stream.handleMessage([]byte(`{"e":"24hrTicker","E":` + decimal.NewFromInt(now).String() + `,"s":"btcusdt","c":"65000.10"}`))
	q, err := stream.Fetch(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("65000.1")))
}
