package server

import (
	"crypto/tls"
	"time"

	"github.com/hexalayer/gomodbus"
)

type config struct {
	bindAddress string
	maxSessions int
	idleTimeout time.Duration
	logger      modbus.Logger
	tlsConfig   *tls.Config
	handlers    map[uint8]Handler
}

func defaultConfig() *config {
	return &config{
		bindAddress: ":502",
		maxSessions: 0, // unbounded
		idleTimeout: 30 * time.Second,
		logger:      modbus.NopLogger{},
		handlers:    make(map[uint8]Handler),
	}
}

// Option configures a Server at construction time.
type Option func(*config)

// WithBindAddress sets the TCP listen address ("host:port").
func WithBindAddress(addr string) Option {
	return func(c *config) { c.bindAddress = addr }
}

// WithMaxSessions bounds concurrent accepted connections; additional
// connections are accepted then immediately closed. Zero means
// unbounded.
func WithMaxSessions(n int) Option {
	return func(c *config) { c.maxSessions = n }
}

// WithIdleTimeout closes a session that hasn't completed a full
// request/response exchange within d.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) { c.idleTimeout = d }
}

// WithLogger installs a structured logger. A nil logger is equivalent
// to omitting the option.
func WithLogger(l modbus.Logger) Option {
	return func(c *config) {
		if l == nil {
			l = modbus.NopLogger{}
		}
		c.logger = l
	}
}

// WithTLS makes the server require a TLS handshake (optionally mutual,
// depending on cfg.ClientAuth) on every accepted connection.
func WithTLS(cfg *tls.Config) Option {
	return func(c *config) { c.tlsConfig = cfg }
}

// WithUnitHandler registers handler as the target for requests
// addressed to unitID.
// Registering the same unit id twice replaces the earlier handler.
func WithUnitHandler(unitID uint8, handler Handler) Option {
	return func(c *config) { c.handlers[unitID] = handler }
}
