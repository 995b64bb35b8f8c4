// Package aggregator combines independent source quotes into one candidate
// price with a confidence score.
package aggregator

import "errors"

var (
	// ErrInsufficientSources indicates that fewer fresh quotes than required remain.
	ErrInsufficientSources = errors.New("insufficient sources")
	// ErrUnknownMode indicates that the aggregation mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
	// ErrInvalidConfig indicates an aggregator configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid aggregator configuration")
)
