package client

import (
	"crypto/tls"
	"time"

	"github.com/hexalayer/gomodbus"
)

// RetryStrategy bounds the truncated-exponential backoff the session
// uses between failed connection attempts.
type RetryStrategy struct {
	Min    time.Duration
	Max    time.Duration
	Jitter bool
}

func defaultRetryStrategy() RetryStrategy {
	return RetryStrategy{Min: 1 * time.Second, Max: 10 * time.Second, Jitter: true}
}

// next returns the backoff to wait after the attempt-th consecutive
// failure (attempt is 1 for the first failure).
func (r RetryStrategy) next(attempt int) time.Duration {
	d := r.Min
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.Max {
			d = r.Max
			break
		}
	}
	if d > r.Max {
		d = r.Max
	}
	if r.Jitter {
		// a fixed 25% (see pseudoJitter), added rather than subtracted so
		// the floor (Min) is always honored.
		d += time.Duration(pseudoJitter(d))
	}
	return d
}

// pseudoJitter derives the added delay from the duration itself rather
// than pulling in a PRNG dependency for one call site. It always
// returns exactly d/4: the result is deterministic and does not vary
// between calls with the same d.
func pseudoJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d / 4) % (d/4 + 1)
}

// config collects everything an Option can set for OpenTCP.
type config struct {
	maxQueuedRequests int
	retry             RetryStrategy
	defaultTimeout    time.Duration
	logger            modbus.Logger
	tlsConfig         *tls.Config
	dialTimeout       time.Duration
}

func defaultConfig() *config {
	return &config{
		maxQueuedRequests: 32,
		retry:             defaultRetryStrategy(),
		defaultTimeout:    1 * time.Second,
		logger:            modbus.NopLogger{},
		dialTimeout:       5 * time.Second,
	}
}

// Option configures a Channel at construction time.
type Option func(*config)

// WithMaxQueuedRequests sets the submission queue's capacity. A value
// of 0 is rejected by OpenTCP.
func WithMaxQueuedRequests(n int) Option {
	return func(c *config) { c.maxQueuedRequests = n }
}

// WithConnectRetryStrategy sets the reconnection backoff bounds.
func WithConnectRetryStrategy(r RetryStrategy) Option {
	return func(c *config) { c.retry = r }
}

// WithRequestTimeoutDefault sets the timeout applied when a caller's
// RequestParam.Timeout is zero.
func WithRequestTimeoutDefault(d time.Duration) Option {
	return func(c *config) { c.defaultTimeout = d }
}

// WithLogger installs a structured logger. A nil logger is equivalent
// to omitting the option (falls back to a no-op logger).
func WithLogger(l modbus.Logger) Option {
	return func(c *config) {
		if l == nil {
			l = modbus.NopLogger{}
		}
		c.logger = l
	}
}

// WithTLS wraps the TCP dial in a TLS handshake. Modbus/TCP has no
// request-level authentication of its own, so mutual TLS is the only
// way to authenticate either end.
func WithTLS(cfg *tls.Config) Option {
	return func(c *config) { c.tlsConfig = cfg }
}

// WithDialTimeout bounds how long the initial TCP/TLS handshake may
// take before the attempt counts as a failure for backoff purposes.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}
