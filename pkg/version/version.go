// Package version provides version information for the feed keeper.
package version

// Version is the current version of the feed keeper.
const Version = "0.3.0"

// AgentString returns the User-Agent sent to market data APIs.
// Format: okx-feed-keeper/v{version}
func AgentString() string {
	return "okx-feed-keeper/v" + Version
}
