// Package client implements the Modbus client channel and its
// session task: a public async-style API backed by goroutines
// that multiplexes many callers' requests onto a single ordered
// transport, correlating responses by transaction id.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hexalayer/gomodbus"
)

// Channel is the public handle callers submit requests through. It
// shares a bounded submission queue with the session task that owns
// the transport; the session's lifetime exceeds that of any Channel
// handle holder.
type Channel struct {
	submitCh       chan *submission
	closeCh        chan struct{}
	doneCh         chan struct{}
	closeOnce      sync.Once
	defaultTimeout time.Duration
	logger         modbus.Logger
}

// OpenTCP dials endpoint ("host:port") and starts the session task.
// The connection is established lazily by the session's state machine;
// OpenTCP returns as soon as the channel is ready to accept
// submissions, without waiting for the first connection attempt to
// succeed.
func OpenTCP(endpoint string, opts ...Option) (*Channel, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.maxQueuedRequests <= 0 {
		return nil, errors.New("modbus: max queued requests must be > 0")
	}

	ch := &Channel{
		submitCh:       make(chan *submission, cfg.maxQueuedRequests),
		closeCh:        make(chan struct{}),
		doneCh:         make(chan struct{}),
		defaultTimeout: cfg.defaultTimeout,
		logger:         cfg.logger,
	}

	s := newSession(endpoint, cfg, ch.submitCh, ch.closeCh)
	go func() {
		defer close(ch.doneCh)
		s.run()
	}()

	return ch, nil
}

// Request enqueues req for unit param.UnitID and waits for a response,
// a timeout, or ctx cancellation — whichever comes first. Submission
// order on a single Channel equals wire emission order; response
// delivery order is governed purely by transaction-id correlation and
// may differ from submission order.
func (ch *Channel) Request(ctx context.Context, req modbus.Request, param modbus.RequestParam) (modbus.Response, error) {
	timeout := param.Timeout
	if timeout <= 0 {
		timeout = ch.defaultTimeout
	}

	sub := &submission{
		req:      req,
		unitID:   param.UnitID,
		timeout:  timeout,
		resultCh: make(chan result, 1),
	}

	select {
	case ch.submitCh <- sub:
	default:
		return nil, modbus.ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-sub.resultCh:
		return r.resp, r.err
	case <-timer.C:
		sub.canceled.Store(true)
		return nil, modbus.ErrResponseTimeout
	case <-ctx.Done():
		sub.canceled.Store(true)
		return nil, ctx.Err()
	case <-ch.doneCh:
		return nil, modbus.ErrShutdown
	}
}

// Close stops accepting submissions, fails every pending request with
// ErrShutdown, and waits for the session task to exit. Close is
// idempotent.
func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() { close(ch.closeCh) })
	<-ch.doneCh
	return nil
}
