// Package ledger delivers signed feed commands to wherever the feed accounts
// live: an embedded badger store or a remote ledger API.
package ledger

import "errors"

var (
	// ErrAccountNotFound indicates that no account is stored at the address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNoEndpoints indicates that at least one ledger endpoint is required.
	ErrNoEndpoints = errors.New("at least one ledger endpoint is required")
	// ErrAllAttemptsFailed indicates that all attempts failed across ledger endpoints.
	ErrAllAttemptsFailed = errors.New("all attempts failed across ledger endpoints")
	// ErrUnexpectedStatus indicates an HTTP status the client does not understand.
	ErrUnexpectedStatus = errors.New("unexpected ledger response status")
	// ErrInvalidEncoding indicates a hex field that could not be decoded.
	ErrInvalidEncoding = errors.New("invalid hex encoding")
)
