// Package feed implements the price-feed account: identity, current price,
// bounded history, rolling statistics and circuit-breaker state, together
// with its versioned binary layout.
package feed

import "errors"

var (
	// ErrAlreadyInitialized indicates that Initialize was called on an initialized account.
	ErrAlreadyInitialized = errors.New("account already initialized")
	// ErrNotInitialized indicates an operation on an account that was never initialized.
	ErrNotInitialized = errors.New("account not initialized")
	// ErrUnsupportedVersion indicates a serialized account with an unknown layout version.
	ErrUnsupportedVersion = errors.New("unsupported account version")
	// ErrInvalidLayout indicates a serialized account whose size or fields do not match the layout.
	ErrInvalidLayout = errors.New("invalid account layout")
	// ErrCircuitOpen indicates that the account's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrNonPositivePrice indicates a price that is zero or negative.
	ErrNonPositivePrice = errors.New("price must be positive")
	// ErrConfidenceOutOfRange indicates a confidence outside [0, 1].
	ErrConfidenceOutOfRange = errors.New("confidence out of range")
	// ErrOutOfOrder indicates a sample older than the account's current sample.
	ErrOutOfOrder = errors.New("sample older than current price")
	// ErrSourceRegistryFull indicates that no slot is left for a new source name.
	ErrSourceRegistryFull = errors.New("source registry full")
	// ErrPriceOverflow indicates a decimal whose coefficient does not fit 127 bits.
	ErrPriceOverflow = errors.New("decimal coefficient overflows 128-bit field")
	// ErrFieldTooLong indicates a string longer than its fixed-size field.
	ErrFieldTooLong = errors.New("field exceeds fixed size")
	// ErrInvalidPair indicates an incomplete trading pair identity.
	ErrInvalidPair = errors.New("invalid trading pair")
	// ErrInvalidParams indicates feed parameters outside their allowed range.
	ErrInvalidParams = errors.New("invalid feed parameters")
)
