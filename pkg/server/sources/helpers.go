package sources

import (
	"fmt"
	"strings"
	"time"
)

// ParsePairsFromMap extracts pair mappings from config where pairs is a map.
// Expected format: pairs: { "BTC/USDT": "BTC-USDT", "BTC/USD": "bitcoin" }.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok {
		return nil, fmt.Errorf("%w: 'pairs' key", ErrInvalidConfig)
	}

	pairs := make(map[string]string)
	switch raw := pairsRaw.(type) {
	case map[string]interface{}:
		for unified, sourceRaw := range raw {
			source, ok := sourceRaw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, unified, sourceRaw)
			}
			pairs[unified] = source
		}
	case map[string]string:
		for unified, source := range raw {
			pairs[unified] = source
		}
	default:
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	for unified := range pairs {
		if err := ValidateSymbolFormat(unified); err != nil {
			return nil, fmt.Errorf("unified symbol: %w", err)
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no pairs configured", ErrInvalidConfig)
	}
	return pairs, nil
}

// GetStringFromConfig returns config[key] as a string or def.
func GetStringFromConfig(config map[string]interface{}, key, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// GetIntFromConfig returns config[key] as an int or def.
func GetIntFromConfig(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// GetDurationFromConfig accepts a Go duration string or a number of seconds.
func GetDurationFromConfig(config map[string]interface{}, key string, def time.Duration) time.Duration {
	switch v := config[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// GetStringMapFromConfig returns config[key] as a string map; non-string
// values are skipped.
func GetStringMapFromConfig(config map[string]interface{}, key string) map[string]string {
	out := make(map[string]string)
	switch raw := config[key].(type) {
	case map[string]string:
		for k, v := range raw {
			out[k] = v
		}
	case map[string]interface{}:
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// SplitSymbol returns the BASE and QUOTE of a unified symbol.
func SplitSymbol(symbol string) (string, string, error) {
	if err := ValidateSymbolFormat(symbol); err != nil {
		return "", "", err
	}
	parts := strings.Split(symbol, "/")
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// ValidateSymbolFormat checks if a symbol is in valid BASE/QUOTE format
// Valid formats:
//   - "BTC/USD", "BTC/USDT" (crypto pairs)
//   - "EUR/USD" (fiat pairs)
//
// Invalid formats:
//   - "BTC" (no quote currency)
//   - "BTCUSDT" (no separator)
//   - "" (empty).
func ValidateSymbolFormat(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w", ErrInvalidSymbolFormat)
	}

	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %s", ErrInvalidSymbolFormat, symbol)
	}

	base := strings.TrimSpace(parts[0])
	quote := strings.TrimSpace(parts[1])

	if base == "" {
		return fmt.Errorf("%w: %s", ErrEmptyBaseCurrency, symbol)
	}
	if quote == "" {
		return fmt.Errorf("%w: %s", ErrEmptyQuoteCurrency, symbol)
	}

	return nil
}
