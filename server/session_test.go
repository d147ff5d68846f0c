package server

import (
	"net"
	"testing"
	"time"

	"github.com/hexalayer/gomodbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryHandler struct {
	UnimplementedHandler
	registers map[uint16]uint16
}

func newMemoryHandler() *memoryHandler {
	return &memoryHandler{registers: make(map[uint16]uint16)}
}

func (m *memoryHandler) HandleHoldingRegisters(r *HoldingRegistersRequest) ([]uint16, error) {
	if r.IsWrite {
		for i, v := range r.Args {
			m.registers[r.Addr+uint16(i)] = v
		}
		return nil, nil
	}
	out := make([]uint16, r.Quantity)
	for i := range out {
		out[i] = m.registers[r.Addr+uint16(i)]
	}
	return out, nil
}

func writeRequest(t *testing.T, conn net.Conn, txID uint16, unitID uint8, req modbus.Request) {
	t.Helper()
	pdu, err := modbus.EncodeRequestPDU(req)
	require.NoError(t, err)
	frame, err := modbus.EncodeMBAPFrame(txID, unitID, pdu)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func readResponse(t *testing.T, conn net.Conn) *modbus.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, 7)
	_, err := readFull(conn, header)
	require.NoError(t, err)
	_, _, pduLen, err := modbus.DecodeMBAPHeader(header)
	require.NoError(t, err)
	body := make([]byte, 7+pduLen)
	copy(body, header)
	_, err = readFull(conn, body[7:])
	require.NoError(t, err)
	frame, err := modbus.DecodeMBAPFrame(body)
	require.NoError(t, err)
	return frame
}

func startTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	s := New(append([]Option{WithBindAddress("127.0.0.1:0")}, opts...)...)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s, s.listener.Addr().String()
}

func TestServerReadWriteHoldingRegisters(t *testing.T) {
	mh := newMemoryHandler()
	_, addr := startTestServer(t, WithUnitHandler(1, mh))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	writeRequest(t, conn, 1, 1, &modbus.WriteMultipleRegistersRequest{Start: 0, Values: []uint16{42, 43}})
	frame := readResponse(t, conn)
	assert.Equal(t, uint16(1), frame.TxID)

	readReq, err := modbus.NewReadHoldingRegistersRequest(0, 2)
	require.NoError(t, err)
	writeRequest(t, conn, 2, 1, readReq)

	frame = readResponse(t, conn)
	resp, err := modbus.DecodeResponsePDU(readReq, frame.PDU)
	require.NoError(t, err)
	regs := resp.(*modbus.ReadHoldingRegistersResponse)
	assert.Equal(t, []uint16{42, 43}, regs.Registers.All())
}

func TestServerUnknownUnitIDGetsGatewayException(t *testing.T) {
	_, addr := startTestServer(t, WithUnitHandler(1, newMemoryHandler()))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	readReq, err := modbus.NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)
	writeRequest(t, conn, 7, 9, readReq)

	frame := readResponse(t, conn)
	_, err = modbus.DecodeResponsePDU(readReq, frame.PDU)
	var exc *modbus.ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, modbus.ExGatewayPathUnavailable, exc.Code)
}

func TestServerBroadcastWriteGetsNoResponse(t *testing.T) {
	mh := newMemoryHandler()
	_, addr := startTestServer(t, WithUnitHandler(1, mh))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	writeRequest(t, conn, 1, modbus.BroadcastUnitID, &modbus.WriteSingleRegisterRequest{Register: modbus.Register{Index: 0, Value: 99}})

	// follow up with a normal request on unit 1 to confirm the broadcast
	// landed and no stray response was queued ahead of it.
	readReq, err := modbus.NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)
	writeRequest(t, conn, 2, 1, readReq)

	frame := readResponse(t, conn)
	assert.Equal(t, uint16(2), frame.TxID)
	resp, err := modbus.DecodeResponsePDU(readReq, frame.PDU)
	require.NoError(t, err)
	regs := resp.(*modbus.ReadHoldingRegistersResponse)
	assert.Equal(t, []uint16{99}, regs.Registers.All())
}

func TestServerMaxSessionsRejectsExcessConnections(t *testing.T) {
	_, addr := startTestServer(t, WithMaxSessions(1), WithUnitHandler(1, newMemoryHandler()))

	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer first.Close()

	time.Sleep(50 * time.Millisecond)

	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.Error(t, err) // rejected connection is closed immediately
}
