package client

import (
	"sync/atomic"
	"time"

	"github.com/hexalayer/gomodbus"
)

// result is delivered to a caller's Request() exactly once: every
// request future resolves to either a Response or a single error.
type result struct {
	resp modbus.Response
	err  error
}

// pendingRequest is the ephemeral, session-owned bookkeeping entry for
// a request that has been written to the wire and awaits a matching
// response. It is created when the session goroutine writes the frame
// and destroyed when any of: a matching response arrives, the deadline
// elapses, a transport error occurs, or the channel shuts down.
type pendingRequest struct {
	txID     uint16
	unitID   uint8
	req      modbus.Request
	deadline time.Time
	resultCh chan<- result
	// canceled is the same flag submission.canceled points to: set when
	// the caller abandoned the result (context canceled) before a
	// response arrived. The tx id stays reserved until the real response
	// or timeout resolves it, but the result is never sent once
	// this is set.
	canceled *atomic.Bool
}

// pendingTable is the session's exclusive, lock-free (single-goroutine
// access only) map of outstanding requests, keyed by transaction id.
type pendingTable struct {
	byTxID map[uint16]*pendingRequest
	nextID uint16
}

func newPendingTable() *pendingTable {
	return &pendingTable{byTxID: make(map[uint16]*pendingRequest)}
}

// allocateTxID returns an id not currently live, wrapping the u16
// counter and skipping in-use values. It reports false if
// all 2^16 ids are in use.
func (t *pendingTable) allocateTxID() (uint16, bool) {
	if len(t.byTxID) >= 1<<16 {
		return 0, false
	}
	for {
		id := t.nextID
		t.nextID++
		if _, inUse := t.byTxID[id]; !inUse {
			return id, true
		}
	}
}

func (t *pendingTable) add(p *pendingRequest) {
	t.byTxID[p.txID] = p
}

func (t *pendingTable) remove(txID uint16) (*pendingRequest, bool) {
	p, ok := t.byTxID[txID]
	if ok {
		delete(t.byTxID, txID)
	}
	return p, ok
}

func (t *pendingTable) len() int { return len(t.byTxID) }

// earliestDeadline returns the soonest deadline among all pendings, or
// the zero Time if none are outstanding. The session uses this to
// reset a single timer rather than running one goroutine per request.
func (t *pendingTable) earliestDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, p := range t.byTxID {
		if !found || p.deadline.Before(earliest) {
			earliest = p.deadline
			found = true
		}
	}
	return earliest, found
}

// expire removes and returns every pending whose deadline is at or
// before now.
func (t *pendingTable) expire(now time.Time) []*pendingRequest {
	var expired []*pendingRequest
	for id, p := range t.byTxID {
		if !p.deadline.After(now) {
			expired = append(expired, p)
			delete(t.byTxID, id)
		}
	}
	return expired
}

// drainAll removes and returns every pending request, used on
// disconnect/shutdown to fail them all at once.
func (t *pendingTable) drainAll() []*pendingRequest {
	all := make([]*pendingRequest, 0, len(t.byTxID))
	for id, p := range t.byTxID {
		all = append(all, p)
		delete(t.byTxID, id)
	}
	return all
}

// deliver sends r to p's caller unless the request was abandoned
// (caller's context canceled). Never blocks: resultCh is always
// buffered with capacity 1.
func deliver(p *pendingRequest, r result) {
	if p.canceled != nil && p.canceled.Load() {
		return
	}
	p.resultCh <- r
}
