package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hexalayer/gomodbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts exactly one connection and replies to every
// request frame using respond, which receives the decoded request PDU
// and returns the response PDU to send back (echoing the tx id).
func fakeServer(t *testing.T, respond func(txID uint16, unitID uint8, pdu []byte) []byte) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, 7)
		for {
			if _, err := readFull(conn, header); err != nil {
				return
			}
			txID, unitID, pduLen, err := modbus.DecodeMBAPHeader(header)
			if err != nil {
				return
			}
			pdu := make([]byte, pduLen)
			if _, err := readFull(conn, pdu); err != nil {
				return
			}
			respPDU := respond(txID, unitID, pdu)
			frame, err := modbus.EncodeMBAPFrame(txID, unitID, respPDU)
			if err != nil {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}()

	return l.Addr().String()
}

func TestOpenTCPRejectsZeroQueueSize(t *testing.T) {
	_, err := OpenTCP("127.0.0.1:1", WithMaxQueuedRequests(0))
	assert.Error(t, err)
}

func TestRequestRoundTrip(t *testing.T) {
	addr := fakeServer(t, func(txID uint16, unitID uint8, pdu []byte) []byte {
		req, err := modbus.DecodeRequestPDU(pdu)
		require.NoError(t, err)
		rc := req.(*modbus.ReadHoldingRegistersRequest)
		resp := &modbus.ReadHoldingRegistersResponse{Registers: modbus.NewRegisters([]uint16{0x1234, 0x5678})}
		require.Equal(t, uint16(2), rc.Range.Count)
		out, err := modbus.EncodeResponsePDU(req, resp)
		require.NoError(t, err)
		return out
	})

	ch, err := OpenTCP(addr)
	require.NoError(t, err)
	defer ch.Close()

	req, err := modbus.NewReadHoldingRegistersRequest(0, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := ch.Request(ctx, req, modbus.RequestParam{UnitID: 1})
	require.NoError(t, err)
	regs := resp.(*modbus.ReadHoldingRegistersResponse)
	assert.Equal(t, []uint16{0x1234, 0x5678}, regs.Registers.All())
}

func TestRequestTimeoutWhenServerNeverReplies(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// accept but never write a response
		buf := make([]byte, 7)
		readFull(conn, buf)
		select {}
	}()

	ch, err := OpenTCP(l.Addr().String(), WithRequestTimeoutDefault(50*time.Millisecond))
	require.NoError(t, err)
	defer ch.Close()

	req, err := modbus.NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)

	_, err = ch.Request(context.Background(), req, modbus.RequestParam{UnitID: 1})
	assert.ErrorIs(t, err, modbus.ErrResponseTimeout)
}

func TestRequestQueueFull(t *testing.T) {
	// No server listening at all; the session stays Disconnected and
	// never drains submitCh, so a saturated queue reports ErrQueueFull
	// instead of blocking the caller.
	ch, err := OpenTCP("127.0.0.1:1", WithMaxQueuedRequests(1), WithConnectRetryStrategy(RetryStrategy{Min: time.Hour, Max: time.Hour}))
	require.NoError(t, err)
	defer ch.Close()

	req, err := modbus.NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// fill the one-slot queue directly so Request's non-blocking send fails.
	ch.submitCh <- &submission{req: req, resultCh: make(chan result, 1)}

	_, err = ch.Request(ctx, req, modbus.RequestParam{UnitID: 1})
	assert.ErrorIs(t, err, modbus.ErrQueueFull)
}

func TestCloseIsIdempotent(t *testing.T) {
	ch, err := OpenTCP("127.0.0.1:1")
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
}
