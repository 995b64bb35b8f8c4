package priceserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

func newServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestSource_Fetch(t *testing.T) {
	url := newServer(t, http.StatusOK, `[
		{"symbol":"ETH/USD","price":"3000.1","timestamp":"2024-03-01T12:00:00Z","source":"agg"},
		{"symbol":"BTC/USDT","price":"64000","timestamp":"2024-03-01T12:00:00Z","source":"agg"}
	]`)

	src, err := sources.Create("priceserver", "upstream", map[string]interface{}{"url": url}, nil)
	require.NoError(t, err)

	q, err := src.Fetch(context.Background(), "ETH/USD")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("3000.1")))
	assert.Equal(t, "upstream", q.Source)

	q, err = src.Fetch(context.Background(), "BTC/USD")
	require.NoError(t, err, "equivalent symbols match")
	assert.True(t, q.Price.Equal(decimal.NewFromInt(64000)))

	_, err = src.Fetch(context.Background(), "SOL/USD")
	assert.ErrorIs(t, err, sources.ErrNoPricesAvailable)
}

func TestSource_Errors(t *testing.T) {
	_, err := NewSource("x", map[string]interface{}{}, nil)
	assert.ErrorIs(t, err, sources.ErrInvalidConfig)

	url := newServer(t, http.StatusServiceUnavailable, `{"error":"warming up"}`)
	src, err := NewSource("x", map[string]interface{}{"url": url}, nil)
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, sources.ErrUnexpectedStatus)
}
