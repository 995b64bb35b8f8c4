package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keeper"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

var (
	program = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	btcUSD  = feed.TradingPair{ID: "BTC/USD", Base: "BTC", Quote: "USD", BaseDecimals: 8, QuoteDecimals: 6}
	ethUSD  = feed.TradingPair{ID: "ETH/USD", Base: "ETH", Quote: "USD", BaseDecimals: 8, QuoteDecimals: 6}
	t0      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type stubKeeper struct {
	state keeper.State
	pairs []keeper.PairState
}

func (k stubKeeper) State() keeper.State          { return k.state }
func (k stubKeeper) Snapshot() []keeper.PairState { return k.pairs }

// newTestServer serves BTC/USD with one accepted price and ETH/USD uninitialized.
func newTestServer(t *testing.T) (*Server, *ledger.LocalLedger) {
	t.Helper()
	l, err := ledger.OpenLocal(ledger.LocalConfig{InMemory: true}, logging.NewNoopLogger())
	require.NoError(t, err)
	l.SetClock(func() time.Time { return t0 })
	t.Cleanup(func() { _ = l.Close() })

	signer, err := keystore.Generate()
	require.NoError(t, err)
	ctx := context.Background()

	initCmd := protocol.NewInitializeCommand(program, btcUSD, feed.Params{HistoryCapacity: 10})
	submit(t, l, initCmd, signer)
	submit(t, l, &protocol.UpdateCommand{
		Account:    initCmd.Account,
		Price:      decimal.RequireFromString("64000.5"),
		Confidence: 0.9,
		Sequence:   1,
		Timestamp:  t0,
		Sources:    []string{"okx", "binance"},
	}, signer)
	_, err = l.GetAccount(ctx, initCmd.Account)
	require.NoError(t, err)

	feeds := map[string]common.Address{
		btcUSD.ID: initCmd.Account,
		ethUSD.ID: feed.DeriveAddress(program, ethUSD.ID),
	}
	s := NewServer(Options{}, l, feeds, logging.NewNoopLogger())
	s.now = func() time.Time { return t0.Add(10 * time.Second) }
	return s, l
}

func submit(t *testing.T, l *ledger.LocalLedger, cmd protocol.Command, signer keystore.Signer) {
	t.Helper()
	b, err := protocol.Encode(cmd)
	require.NoError(t, err)
	_, err = l.Submit(context.Background(), b, signer)
	require.NoError(t, err)
}

func get(t *testing.T, h http.Handler, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	s.SetKeeper(stubKeeper{state: keeper.StateIdle})

	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, string(keeper.StateIdle), body["keeper"])
}

func TestFeeds(t *testing.T) {
	s, _ := newTestServer(t)

	var feeds []FeedSummary
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/feeds", &feeds))
	require.Len(t, feeds, 2)

	assert.Equal(t, btcUSD.ID, feeds[0].Pair)
	assert.True(t, feeds[0].Initialized)
	require.NotNil(t, feeds[0].Current)
	assert.True(t, feeds[0].Current.Price.Equal(decimal.RequireFromString("64000.5")))
	assert.Empty(t, feeds[0].Violations)

	assert.Equal(t, ethUSD.ID, feeds[1].Pair)
	assert.False(t, feeds[1].Initialized)
	assert.Nil(t, feeds[1].Current)
}

func TestPrice(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	var cp feed.CurrentPrice
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/price?pair=BTC/USD", &cp))
	assert.True(t, cp.Price.Equal(decimal.RequireFromString("64000.5")))
	assert.Equal(t, int64(1), cp.Sequence)
	assert.Equal(t, 10*time.Second, cp.Age)
	assert.False(t, cp.IsStale)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/feeds/price", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/feeds/price?pair=DOGE/USD", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/feeds/price?pair=ETH/USD", nil))
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	var history []feed.PriceSample
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/history?pair=BTC/USD&limit=5", &history))
	require.Len(t, history, 1)
	assert.Equal(t, []string{"okx", "binance"}, history[0].Sources)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/feeds/history?pair=BTC/USD&limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/feeds/history?pair=BTC/USD&limit=abc", nil))
}

func TestValidateAndStats(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	var body struct {
		Healthy    bool             `json:"healthy"`
		Violations []feed.Violation `json:"violations"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/validate?pair=BTC/USD", &body))
	assert.True(t, body.Healthy)
	assert.Empty(t, body.Violations)

	s.now = func() time.Time { return t0.Add(time.Hour) }
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/validate?pair=BTC/USD", &body))
	assert.False(t, body.Healthy)
	assert.Contains(t, body.Violations, feed.ViolationStale)

	var stats FeedSummary
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/stats?pair=BTC/USD", &stats))
	require.NotNil(t, stats.Stats)
	assert.Equal(t, uint64(1), stats.Stats.TotalUpdates)
	assert.Equal(t, 1.0, stats.Reliability["okx"])
}

func TestPrices_PriceServerFormat(t *testing.T) {
	s, _ := newTestServer(t)

	var prices []PriceEntry
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/prices", &prices))
	require.Len(t, prices, 1)
	assert.Equal(t, btcUSD.Symbol(), prices[0].Symbol)
	assert.True(t, prices[0].Price.Equal(decimal.RequireFromString("64000.5")))
	assert.Equal(t, "feed", prices[0].Source)
}

func TestKeeperEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/keeper", nil))

	s.SetKeeper(stubKeeper{state: keeper.StateIdle, pairs: []keeper.PairState{{Pair: btcUSD.ID, Sequence: 1}}})
	h = s.Handler()
	var body struct {
		State keeper.State       `json:"state"`
		Pairs []keeper.PairState `json:"pairs"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/keeper", &body))
	assert.Equal(t, keeper.StateIdle, body.State)
	require.Len(t, body.Pairs, 1)
	assert.Equal(t, int64(1), body.Pairs[0].Sequence)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/feeds", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLedgerRoutesMounted(t *testing.T) {
	s, l := newTestServer(t)
	s.SetLedger(ledger.NewHandler(l))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client, err := ledger.NewHTTPClient(ledger.HTTPConfig{Endpoints: []string{srv.URL}}, logging.NewNoopLogger())
	require.NoError(t, err)
	acct, err := ledger.FetchAccount(context.Background(), client, s.feeds[btcUSD.ID])
	require.NoError(t, err)
	assert.True(t, acct.Current.Price.Equal(decimal.RequireFromString("64000.5")))
}

func TestWebSocket_SubscribedPairsOnly(t *testing.T) {
	s, _ := newTestServer(t)
	ws := NewWebSocketServer(logging.NewNoopLogger())
	s.SetWebSocketServer(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ws.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "subscribe", Pairs: []string{ethUSD.ID}}))
	var ack map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])

	ws.Publish(keeper.Update{Pair: btcUSD.ID, Price: decimal.NewFromInt(64000), Sequence: 2})
	ws.Publish(keeper.Update{Pair: ethUSD.ID, Price: decimal.NewFromInt(3200), Sequence: 7})

	var msg FeedUpdateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "feed_update", msg.Type)
	assert.Equal(t, ethUSD.ID, msg.Update.Pair)
	assert.Equal(t, int64(7), msg.Update.Sequence)
	assert.Equal(t, 1, ws.ClientCount())
}
