// Package websocket provides the reconnecting WebSocket client and the
// streaming market data source built on it.
package websocket

import "errors"

var (
	// ErrMaxRetriesExceeded indicates that the maximum connection retries have been exceeded.
	ErrMaxRetriesExceeded = errors.New("max connection retries exceeded")
	// ErrNotConnected indicates that the client is not connected.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionLost indicates that the connection was lost.
	ErrConnectionLost = errors.New("connection lost")
	// ErrStaleQuote indicates that the cached quote is older than max_age.
	ErrStaleQuote = errors.New("cached quote is stale")
	// ErrMissingURL indicates that no stream URL was configured.
	ErrMissingURL = errors.New("websocket source requires 'url'")
)
