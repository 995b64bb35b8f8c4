package sources

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// unix seconds above this are taken as milliseconds
const millisThreshold = 1e11

// DecimalAt reads a JSON number or numeric string at path.
func DecimalAt(body []byte, path string) (decimal.Decimal, error) {
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return decimal.Zero, fmt.Errorf("%w: %q not found", ErrInvalidResponse, path)
	}
	return ParseDecimal(res)
}

// ParseDecimal converts a gjson value into a decimal.
func ParseDecimal(res gjson.Result) (decimal.Decimal, error) {
	switch res.Type {
	case gjson.Number, gjson.String:
		d, err := decimal.NewFromString(res.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidResponse, res.String())
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unexpected %s value", ErrInvalidResponse, res.Type)
	}
}

// ParseTimestamp accepts unix seconds, unix milliseconds (number or string)
// and RFC 3339 strings. Missing or unparsable values yield the zero time.
func ParseTimestamp(res gjson.Result) time.Time {
	if !res.Exists() {
		return time.Time{}
	}
	if res.Type == gjson.String {
		if t, err := time.Parse(time.RFC3339Nano, res.Str); err == nil {
			return t.UTC()
		}
	}
	n := res.Int()
	switch {
	case n <= 0:
		return time.Time{}
	case n > millisThreshold:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}
