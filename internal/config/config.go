package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/issue-dashboard/internal/connection"
)

// Config is the root configuration for a dashboard client instance.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Stream StreamConfig `yaml:"stream"`
	Relay  RelayConfig  `yaml:"relay"`
	Log    LogConfig    `yaml:"log"`
}

// APIConfig holds dashboard REST API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"` // e.g. http://localhost:8080/api/v1/dashboard
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	PollInterval time.Duration `yaml:"poll_interval"` // REST polling while the stream is down
}

// Stream transports.
const (
	TransportSSE       = connection.TransportSSE
	TransportWebSocket = connection.TransportWebSocket
)

// StreamConfig holds push stream settings.
type StreamConfig struct {
	Transport      string        `yaml:"transport"` // sse | websocket
	URL            string        `yaml:"url"`       // Overrides {api.base_url}/stream
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingTimeout    time.Duration `yaml:"ping_timeout"` // websocket only
}

// WSConfig returns the WebSocket transport settings for this stream.
func (s StreamConfig) WSConfig() connection.WSConfig {
	ws := connection.DefaultWSConfig()
	if s.PingTimeout > 0 {
		ws.PingTimeout = s.PingTimeout
	}
	return ws
}

// RelayConfig holds the local websocket/HTTP relay settings.
type RelayConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	RecentEvents int    `yaml:"recent_events"`
	SendBuffer   int    `yaml:"send_buffer"` // Per-client queued messages
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
