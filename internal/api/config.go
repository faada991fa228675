package api

import "time"

// Config holds HTTP server configuration.
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// ReadTimeout bounds reading the request headers and body.
	ReadTimeout time.Duration

	// IdleTimeout bounds keep-alive connections.
	IdleTimeout time.Duration

	// RequestTimeout bounds non-streaming request handling. Streaming
	// routes (audio and data downloads) are exempt: an encrypted audio
	// stream legitimately outlives any sane request timeout.
	RequestTimeout time.Duration
}

// applyDefaults fills in zero values. Idempotent with the defaults
// applied during config loading.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 3002
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}
