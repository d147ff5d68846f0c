package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryStrategyTruncatedExponential(t *testing.T) {
	r := RetryStrategy{Min: 1 * time.Second, Max: 10 * time.Second, Jitter: false}

	assert.Equal(t, 1*time.Second, r.next(1))
	assert.Equal(t, 2*time.Second, r.next(2))
	assert.Equal(t, 4*time.Second, r.next(3))
	assert.Equal(t, 8*time.Second, r.next(4))
	// doubling past Max truncates rather than overflowing.
	assert.Equal(t, 10*time.Second, r.next(5))
	assert.Equal(t, 10*time.Second, r.next(20))
}

func TestRetryStrategyJitterNeverGoesBelowMin(t *testing.T) {
	r := RetryStrategy{Min: 1 * time.Second, Max: 10 * time.Second, Jitter: true}

	for attempt := 1; attempt <= 6; attempt++ {
		d := r.next(attempt)
		assert.GreaterOrEqual(t, d, r.Min)
		assert.LessOrEqual(t, d, r.Max+r.Max/4)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Greater(t, cfg.maxQueuedRequests, 0)
	assert.Greater(t, cfg.defaultTimeout, time.Duration(0))
	assert.NotNil(t, cfg.logger)
}

func TestWithLoggerNilFallsBackToNop(t *testing.T) {
	cfg := defaultConfig()
	WithLogger(nil)(cfg)
	assert.NotNil(t, cfg.logger)
}
