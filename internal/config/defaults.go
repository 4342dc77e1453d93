package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL        = "http://localhost:8080/api/v1/dashboard"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBackoff   = 1 * time.Second
	DefaultPollInterval   = 30 * time.Second
	DefaultTransport      = TransportSSE
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingTimeout    = 60 * time.Second
	DefaultListenAddr     = ":8090"
	DefaultRecentEvents   = 10
	DefaultSendBuffer     = 64
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.PollInterval == 0 {
		c.API.PollInterval = DefaultPollInterval
	}

	// Stream defaults
	if c.Stream.Transport == "" {
		c.Stream.Transport = DefaultTransport
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}

	// Relay defaults
	if c.Relay.ListenAddr == "" {
		c.Relay.ListenAddr = DefaultListenAddr
	}
	if c.Relay.RecentEvents == 0 {
		c.Relay.RecentEvents = DefaultRecentEvents
	}
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = DefaultSendBuffer
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
