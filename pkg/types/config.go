package types

import "time"

// Config is the application configuration, merged from JSONC files and
// PRICEPILOT_* environment variables.
type Config struct {
	// UpstreamURL is the base URL of the pricing-copilot API.
	UpstreamURL string `json:"upstreamUrl,omitempty"`
	// MarketContextURL is where the market-context payload is fetched from.
	// Empty means no context is attached to turns.
	MarketContextURL string `json:"marketContextUrl,omitempty"`
	// HeartbeatSeconds is the keep-alive interval hint sent to the upstream
	// and used for the server's own SSE heartbeats.
	HeartbeatSeconds int `json:"heartbeatSeconds,omitempty"`
	// FailureThreshold is the number of consecutive failed turns after which
	// streaming is disabled for the rest of the process.
	FailureThreshold int `json:"failureThreshold,omitempty"`
	// DataDir is where transcripts are archived.
	DataDir string `json:"dataDir,omitempty"`
	// Port is the HTTP listen port.
	Port int `json:"port,omitempty"`
	// LogLevel is DEBUG, INFO, WARN, ERROR or FATAL.
	LogLevel string `json:"logLevel,omitempty"`
}

// Defaults applied by config.Load when a field is unset.
const (
	DefaultHeartbeatSeconds = 30
	DefaultFailureThreshold = 3
	DefaultPort             = 8080
)

// HeartbeatInterval returns the heartbeat hint as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	secs := c.HeartbeatSeconds
	if secs <= 0 {
		secs = DefaultHeartbeatSeconds
	}
	return time.Duration(secs) * time.Second
}
