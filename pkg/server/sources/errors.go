// Package sources provides the market data source interface, the shared
// base used by every adapter, and the factory registry.
package sources

import "errors"

var (
	// ErrNoPricesAvailable indicates that no price is cached for the symbol yet.
	ErrNoPricesAvailable = errors.New("no prices available")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrAPIError indicates an error reported in the API payload.
	ErrAPIError = errors.New("API error")
	// ErrInvalidResponse indicates a response the adapter cannot parse.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrSymbolNotConfigured indicates a symbol without a pair mapping.
	ErrSymbolNotConfigured = errors.New("symbol not configured for source")
	// ErrNonPositivePrice indicates a quote whose price is zero or negative.
	ErrNonPositivePrice = errors.New("non-positive price in response")
	// ErrUnknownSource indicates a type/name without a registered factory.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidSymbolFormat indicates that the symbol format is invalid.
	ErrInvalidSymbolFormat = errors.New("symbol must be in BASE/QUOTE format")
	// ErrEmptyBaseCurrency indicates that the symbol BASE currency cannot be empty.
	ErrEmptyBaseCurrency = errors.New("symbol BASE currency cannot be empty")
	// ErrEmptyQuoteCurrency indicates that the symbol QUOTE currency cannot be empty.
	ErrEmptyQuoteCurrency = errors.New("symbol QUOTE currency cannot be empty")
)
