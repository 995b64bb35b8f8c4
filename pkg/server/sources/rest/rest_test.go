package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

func TestSource_ExpandsTemplates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/prices/BTC-USD/spot", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"data":{"BTC":{"amount":"63999.99"}},"time":"2024-03-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	src, err := sources.Create("rest", "coinbase", map[string]interface{}{
		"url":            srv.URL + "/v2/prices/{symbol}/spot",
		"price_path":     "data.{base}.amount",
		"timestamp_path": "time",
		"headers":        map[string]interface{}{"X-Api-Key": "secret"},
		"pairs":          map[string]interface{}{"BTC/USD": "BTC-USD"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, sources.SourceTypeREST, src.Type())

	q, err := src.Fetch(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "coinbase", q.Source)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("63999.99")))
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), q.Timestamp)
}

func TestSource_Errors(t *testing.T) {
	_, err := NewSource("x", map[string]interface{}{"pairs": map[string]interface{}{"BTC/USD": "b"}}, nil)
	assert.ErrorIs(t, err, sources.ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrMissingTemplate)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":null}`))
	}))
	defer srv.Close()

	src, err := NewSource("x", map[string]interface{}{
		"url":        srv.URL,
		"price_path": "price",
		"pairs":      map[string]interface{}{"BTC/USD": "b"},
	}, nil)
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, sources.ErrInvalidResponse)
}
