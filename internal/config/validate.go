package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must be >= 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	switch c.Stream.Transport {
	case TransportSSE:
		if c.Stream.URL != "" {
			if err := validateURL("stream.url", c.Stream.URL, "http", "https"); err != nil {
				return err
			}
		}
	case TransportWebSocket:
		if c.Stream.URL == "" {
			return errors.New("stream.url is required for the websocket transport")
		}
		if err := validateURL("stream.url", c.Stream.URL, "ws", "wss"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("stream.transport must be %q or %q, got %q", TransportSSE, TransportWebSocket, c.Stream.Transport)
	}
	if c.API.PollInterval <= 0 {
		return errors.New("api.poll_interval must be > 0")
	}
	if c.Stream.ReconnectDelay <= 0 {
		return errors.New("stream.reconnect_delay must be > 0")
	}

	if c.Relay.RecentEvents < 1 {
		return errors.New("relay.recent_events must be >= 1")
	}
	if c.Relay.SendBuffer < 1 {
		return errors.New("relay.send_buffer must be >= 1")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s URL, got %q", field, schemes[0], raw)
}
