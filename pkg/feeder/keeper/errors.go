// Package keeper runs the timer-driven decision loop that fetches aggregated
// prices, decides whether a feed needs an update and submits it.
package keeper

import "errors"

var (
	// ErrAlreadyRunning indicates that Start was called on a running keeper.
	ErrAlreadyRunning = errors.New("keeper already running")
	// ErrNotRunning indicates that Stop was called on a keeper that is not running.
	ErrNotRunning = errors.New("keeper not running")
	// ErrTickInFlight indicates that a tick was skipped because the previous one has not finished.
	ErrTickInFlight = errors.New("previous tick still in flight")
	// ErrNoPairs indicates a keeper without pairs.
	ErrNoPairs = errors.New("no pairs configured")
	// ErrDuplicatePair indicates that a pair id was configured twice.
	ErrDuplicatePair = errors.New("duplicate pair")
	// ErrInvalidConfig indicates an unusable keeper configuration.
	ErrInvalidConfig = errors.New("invalid keeper configuration")
	// ErrNoSigner indicates a keeper without an authority signer.
	ErrNoSigner = errors.New("no signer configured")
)
