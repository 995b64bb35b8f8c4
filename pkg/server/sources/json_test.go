package sources

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDecimalAt(t *testing.T) {
	body := []byte(`{"a":"64000.12345678","b":0.5,"c":true,"d":"x"}`)

	d, err := DecimalAt(body, "a")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("64000.12345678")))

	d, err = DecimalAt(body, "b")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("0.5")))

	for _, path := range []string{"c", "d", "missing"} {
		_, err = DecimalAt(body, path)
		assert.ErrorIs(t, err, ErrInvalidResponse, path)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"s":1709294400,"ms":"1709294400000","rfc":"2024-03-01T12:00:00Z","zero":0}`)

	assert.Equal(t, want, ParseTimestamp(gjson.GetBytes(body, "s")))
	assert.Equal(t, want, ParseTimestamp(gjson.GetBytes(body, "ms")))
	assert.Equal(t, want, ParseTimestamp(gjson.GetBytes(body, "rfc")))
	assert.True(t, ParseTimestamp(gjson.GetBytes(body, "zero")).IsZero())
	assert.True(t, ParseTimestamp(gjson.GetBytes(body, "missing")).IsZero())
}
