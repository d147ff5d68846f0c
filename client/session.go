package client

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/hexalayer/gomodbus"
)

// submission is what Channel.Request hands to the session over
// submitCh. canceled is set by the caller's goroutine when its context
// is done; the session checks it before spending a tx id on a
// not-yet-written submission, and pendingRequest.canceled (the same
// flag, carried forward) suppresses delivery for one already in
// flight.
type submission struct {
	req      modbus.Request
	unitID   uint8
	timeout  time.Duration
	resultCh chan result
	canceled atomic.Bool
}

// session owns the transport socket and the pending-request table
// exclusively: every field below is touched only from the goroutine
// running run().
type session struct {
	endpoint string
	cfg      *config
	submitCh <-chan *submission
	closeCh  <-chan struct{}
	logger   modbus.Logger

	pending *pendingTable
	waiting []*submission // submissions queued because no tx id was free
}

func newSession(endpoint string, cfg *config, submitCh <-chan *submission, closeCh <-chan struct{}) *session {
	return &session{
		endpoint: endpoint,
		cfg:      cfg,
		submitCh: submitCh,
		closeCh:  closeCh,
		logger:   cfg.logger,
		pending:  newPendingTable(),
	}
}

// run is the session's state machine, until closeCh fires: Disconnected
// -> Connecting -> Connected, or -> WaitingForRetry after a failed
// connect. A dropped connection goes back to Disconnected and redials
// at once, without a backoff wait.
func (s *session) run() {
	attempt := 0
	for {
		select {
		case <-s.closeCh:
			s.shutdown()
			return
		default:
		}

		conn, err := s.dial()
		if err != nil {
			attempt++
			s.logger.Warnw("connect failed", "endpoint", s.endpoint, "attempt", attempt, "err", err)
			if !s.waitBackoff(attempt) {
				s.shutdown()
				return
			}
			continue
		}

		attempt = 0
		s.logger.Infow("connected", "endpoint", s.endpoint)

		if done := s.runConnected(conn); done {
			return
		}
		// runConnected returning false means a transport/frame error
		// dropped the connection; loop back into Disconnected.
	}
}

func (s *session) waitBackoff(attempt int) bool {
	d := s.cfg.retry.next(attempt)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.closeCh:
		return false
	case <-timer.C:
		return true
	}
}

// shutdown fails every outstanding and queued submission with
// ErrShutdown. Called once, when closeCh fires.
func (s *session) shutdown() {
	for _, p := range s.pending.drainAll() {
		deliver(p, result{err: modbus.ErrShutdown})
	}
	for _, sub := range s.waiting {
		if !sub.canceled.Load() {
			sub.resultCh <- result{err: modbus.ErrShutdown}
		}
	}
	s.waiting = nil

	// drain anything still sitting in the submit queue.
	for {
		select {
		case sub := <-s.submitCh:
			if !sub.canceled.Load() {
				sub.resultCh <- result{err: modbus.ErrShutdown}
			}
		default:
			return
		}
	}
}

// runConnected drives one connection's lifetime: a reader goroutine
// decodes frames off the wire while this goroutine (still the single
// session goroutine — no new goroutine is spun up for writing) handles
// submissions, timeouts and shutdown from a select loop, preserving the
// single-writer-owns-the-socket discipline.
func (s *session) runConnected(conn net.Conn) (shutdownRequested bool) {
	defer conn.Close()

	frameCh := make(chan frameOrErr, 8)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readFrames(conn, frameCh)
	}()
	defer func() {
		conn.Close()
		<-readerDone
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	s.rearmTimer(timer)

	for {
		select {
		case <-s.closeCh:
			s.shutdown()
			return true

		case sub := <-s.submitCh:
			s.handleSubmission(conn, sub)
			s.rearmTimer(timer)

		case fe := <-frameCh:
			if fe.err != nil {
				s.logger.Warnw("transport error", "endpoint", s.endpoint, "err", fe.err)
				s.failAllPending(modbus.NewIOError("read", fe.err))
				return false
			}
			s.handleFrame(conn, fe.frame)
			s.rearmTimer(timer)

		case <-timer.C:
			s.expirePending(conn, time.Now())
			s.rearmTimer(timer)
		}
	}
}

// handleSubmission assigns a tx id and writes the frame, or queues the
// submission if the 2^16 outstanding-request ceiling is reached.
func (s *session) handleSubmission(conn net.Conn, sub *submission) {
	if sub.canceled.Load() {
		return
	}

	txID, ok := s.pending.allocateTxID()
	if !ok {
		s.waiting = append(s.waiting, sub)
		return
	}

	if err := s.writeRequest(conn, txID, sub); err != nil {
		s.logger.Warnw("write failed", "endpoint", s.endpoint, "err", err)
		sub.resultCh <- result{err: modbus.NewIOError("write", err)}
		s.failAllPending(modbus.NewIOError("write", err))
		return
	}

	s.pending.add(&pendingRequest{
		txID:     txID,
		unitID:   sub.unitID,
		req:      sub.req,
		deadline: time.Now().Add(sub.timeout),
		resultCh: sub.resultCh,
		canceled: &sub.canceled,
	})
}

func (s *session) writeRequest(conn net.Conn, txID uint16, sub *submission) error {
	pduBytes, err := modbus.EncodeRequestPDU(sub.req)
	if err != nil {
		return err
	}
	frame, err := modbus.EncodeMBAPFrame(txID, sub.unitID, pduBytes)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(s.cfg.dialTimeout))
	_, err = conn.Write(frame)
	return err
}

// handleFrame correlates an inbound frame with its pending request
// and delivers the decoded result.
func (s *session) handleFrame(conn net.Conn, frame *modbus.Frame) {
	p, ok := s.pending.remove(frame.TxID)
	if !ok {
		// late response for an already-timed-out or unknown tx id:
		// discarded per the open question.
		s.logger.Debugw("discarding unmatched frame", "tx_id", frame.TxID)
		s.drainWaiting(conn)
		return
	}

	if frame.UnitID != p.unitID {
		deliver(p, result{err: modbus.ErrBadUnitID})
		s.drainWaiting(conn)
		return
	}

	resp, err := modbus.DecodeResponsePDU(p.req, frame.PDU)
	deliver(p, result{resp: resp, err: err})
	s.drainWaiting(conn)
}

// expirePending fails every pending whose deadline has passed with
// ErrResponseTimeout. The tx id is not reused here: it was already
// freed by pendingTable.expire, matching the "wait for available slot"
// rule in handleSubmission/drainWaiting.
func (s *session) expirePending(conn net.Conn, now time.Time) {
	for _, p := range s.pending.expire(now) {
		deliver(p, result{err: modbus.ErrResponseTimeout})
	}
	s.drainWaiting(conn)
}

// drainWaiting retries submissions that were queued because the tx id
// space (2^16 entries) was exhausted, now that a response or expiry has
// freed at least one slot. In practice the queue only ever holds
// entries when callers have driven outstanding requests into the tens
// of thousands, so this path is cold; it exists for correctness at the
// ceiling rather than for routine use.
func (s *session) drainWaiting(conn net.Conn) {
	for len(s.waiting) > 0 {
		sub := s.waiting[0]
		s.waiting = s.waiting[1:]
		s.handleSubmission(conn, sub)
		if len(s.pending.byTxID) >= 1<<16 {
			break
		}
	}
}

func (s *session) failAllPending(err error) {
	for _, p := range s.pending.drainAll() {
		deliver(p, result{err: err})
	}
}

func (s *session) rearmTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	deadline, ok := s.pending.earliestDeadline()
	if !ok {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(deadline)
	if d <= 0 {
		d = time.Millisecond
	}
	timer.Reset(d)
}

// frameOrErr is what the reader goroutine feeds back to the session
// loop: exactly one of frame or err is set.
type frameOrErr struct {
	frame *modbus.Frame
	err   error
}

// readFrames blocks reading complete MBAP frames off conn until it
// hits an I/O or framing error, then sends the error once and returns.
// It never touches the pending table: that stays exclusively owned by
// the session goroutine.
func readFrames(conn net.Conn, out chan<- frameOrErr) {
	header := make([]byte, 7)
	for {
		if _, err := readFull(conn, header); err != nil {
			out <- frameOrErr{err: err}
			return
		}
		_, _, pduLen, err := modbus.DecodeMBAPHeader(header)
		if err != nil {
			out <- frameOrErr{err: err}
			return
		}
		body := make([]byte, 7+pduLen)
		copy(body, header)
		if _, err := readFull(conn, body[7:]); err != nil {
			out <- frameOrErr{err: err}
			return
		}
		frame, err := modbus.DecodeMBAPFrame(body)
		if err != nil {
			out <- frameOrErr{err: err}
			return
		}
		out <- frameOrErr{frame: frame}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
