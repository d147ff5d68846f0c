package client

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hexalayer/gomodbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateTxIDSkipsInUse(t *testing.T) {
	table := newPendingTable()
	first, ok := table.allocateTxID()
	require.True(t, ok)
	table.add(&pendingRequest{txID: first, resultCh: make(chan result, 1)})

	second, ok := table.allocateTxID()
	require.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestAllocateTxIDWraps(t *testing.T) {
	table := newPendingTable()
	table.nextID = 65535
	first, ok := table.allocateTxID()
	require.True(t, ok)
	assert.Equal(t, uint16(65535), first)

	second, ok := table.allocateTxID()
	require.True(t, ok)
	assert.Equal(t, uint16(0), second)
}

func TestAllocateTxIDFailsWhenExhausted(t *testing.T) {
	table := newPendingTable()
	for i := 0; i < 1<<16; i++ {
		table.byTxID[uint16(i)] = &pendingRequest{}
	}
	_, ok := table.allocateTxID()
	assert.False(t, ok)
}

func TestEarliestDeadlineEmpty(t *testing.T) {
	table := newPendingTable()
	_, ok := table.earliestDeadline()
	assert.False(t, ok)
}

func TestEarliestDeadlinePicksSoonest(t *testing.T) {
	table := newPendingTable()
	now := time.Now()
	table.add(&pendingRequest{txID: 1, deadline: now.Add(5 * time.Second)})
	table.add(&pendingRequest{txID: 2, deadline: now.Add(1 * time.Second)})
	table.add(&pendingRequest{txID: 3, deadline: now.Add(10 * time.Second)})

	d, ok := table.earliestDeadline()
	require.True(t, ok)
	assert.True(t, d.Equal(now.Add(1 * time.Second)))
}

func TestExpireRemovesOnlyPastDeadline(t *testing.T) {
	table := newPendingTable()
	now := time.Now()
	table.add(&pendingRequest{txID: 1, deadline: now.Add(-1 * time.Second), resultCh: make(chan result, 1)})
	table.add(&pendingRequest{txID: 2, deadline: now.Add(1 * time.Hour), resultCh: make(chan result, 1)})

	expired := table.expire(now)
	require.Len(t, expired, 1)
	assert.Equal(t, uint16(1), expired[0].txID)
	assert.Equal(t, 1, table.len())
}

func TestDrainAllEmptiesTable(t *testing.T) {
	table := newPendingTable()
	table.add(&pendingRequest{txID: 1, resultCh: make(chan result, 1)})
	table.add(&pendingRequest{txID: 2, resultCh: make(chan result, 1)})

	all := table.drainAll()
	assert.Len(t, all, 2)
	assert.Equal(t, 0, table.len())
}

func TestDeliverSuppressedWhenCanceled(t *testing.T) {
	ch := make(chan result, 1)
	var canceled atomic.Bool
	canceled.Store(true)
	p := &pendingRequest{resultCh: ch, canceled: &canceled}

	deliver(p, result{err: modbus.ErrResponseTimeout})

	select {
	case <-ch:
		t.Fatal("canceled request should not receive a delivery")
	default:
	}
}

func TestDeliverSendsWhenNotCanceled(t *testing.T) {
	ch := make(chan result, 1)
	p := &pendingRequest{resultCh: ch}

	deliver(p, result{err: modbus.ErrResponseTimeout})

	r := <-ch
	assert.ErrorIs(t, r.err, modbus.ErrResponseTimeout)
}
