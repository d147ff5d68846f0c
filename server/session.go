package server

import (
	"errors"
	"net"
	"time"

	"github.com/hexalayer/gomodbus"
)

// session runs one connection's read-decode-dispatch-respond loop.
// Responses on a single connection are emitted in request arrival
// order: the loop is strictly sequential, so pipelined requests are
// served one at a time rather than concurrently.
type session struct {
	conn       net.Conn
	clientAddr string
	cfg        *config
	logger     modbus.Logger
}

func newSession(conn net.Conn, cfg *config) *session {
	return &session{
		conn:       conn,
		clientAddr: conn.RemoteAddr().String(),
		cfg:        cfg,
		logger:     cfg.logger,
	}
}

func (sess *session) run() {
	header := make([]byte, 7)
	for {
		sess.conn.SetReadDeadline(time.Now().Add(sess.cfg.idleTimeout))

		if _, err := readFull(sess.conn, header); err != nil {
			return
		}
		txID, unitID, pduLen, err := modbus.DecodeMBAPHeader(header)
		if err != nil {
			sess.logger.Warnw("bad MBAP header, closing", "client_addr", sess.clientAddr, "err", err)
			return
		}

		body := make([]byte, pduLen)
		if _, err := readFull(sess.conn, body); err != nil {
			return
		}

		respPDU, fatal := sess.handleRequestPDU(unitID, body)
		if fatal {
			return
		}
		if respPDU == nil {
			// broadcast write: no response emitted.
			continue
		}

		frame, err := modbus.EncodeMBAPFrame(txID, unitID, respPDU)
		if err != nil {
			sess.logger.Errorw("failed to encode response frame", "client_addr", sess.clientAddr, "err", err)
			return
		}
		sess.conn.SetWriteDeadline(time.Now().Add(sess.cfg.idleTimeout))
		if _, err := sess.conn.Write(frame); err != nil {
			sess.logger.Warnw("failed to write response", "client_addr", sess.clientAddr, "err", err)
			return
		}
	}
}

// handleRequestPDU decodes and dispatches one request. It returns the
// response PDU to write, nil if no response is due (a broadcast
// write), and fatal=true if the connection must be closed rather than
// answered.
func (sess *session) handleRequestPDU(unitID uint8, body []byte) (respPDU []byte, fatal bool) {
	req, fc, err := decodeRequestForDispatch(body)
	if err != nil {
		if errors.Is(err, modbus.ErrInsufficientBytes) || errors.Is(err, modbus.ErrTrailingBytes) {
			sess.logger.Warnw("malformed frame, closing", "client_addr", sess.clientAddr, "err", err)
			return nil, true
		}
		return modbus.EncodeExceptionPDU(fc, exceptionForDecodeError(err)), false
	}

	if unitID == modbus.BroadcastUnitID {
		if !isWriteRequest(req) {
			return modbus.EncodeExceptionPDU(req.FunctionCode(), modbus.ExIllegalFunction), false
		}
		sess.dispatch(unitID, req)
		return nil, false
	}

	handler, ok := sess.cfg.handlers[unitID]
	if !ok {
		return modbus.EncodeExceptionPDU(req.FunctionCode(), modbus.ExGatewayPathUnavailable), false
	}

	resp, err := invoke(handler, sess.clientAddr, unitID, req)
	if err != nil {
		var exc *modbus.ExceptionError
		if errors.As(err, &exc) {
			return modbus.EncodeExceptionPDU(req.FunctionCode(), exc.Code), false
		}
		sess.logger.Errorw("handler failed", "client_addr", sess.clientAddr, "unit_id", unitID, "err", err)
		return modbus.EncodeExceptionPDU(req.FunctionCode(), modbus.ExServerDeviceFailure), false
	}

	pdu, err := modbus.EncodeResponsePDU(req, resp)
	if err != nil {
		sess.logger.Errorw("failed to encode response PDU", "client_addr", sess.clientAddr, "err", err)
		return modbus.EncodeExceptionPDU(req.FunctionCode(), modbus.ExServerDeviceFailure), false
	}
	return pdu, false
}

// dispatch invokes the handler for a broadcast write on every
// registered unit, discarding results: no response is ever emitted for
// unit_id 0.
func (sess *session) dispatch(unitID uint8, req modbus.Request) {
	for uid, h := range sess.cfg.handlers {
		if _, err := invoke(h, sess.clientAddr, uid, req); err != nil {
			sess.logger.Warnw("broadcast handler failed", "unit_id", uid, "err", err)
		}
	}
}

func isWriteRequest(req modbus.Request) bool {
	switch req.(type) {
	case *modbus.WriteSingleCoilRequest, *modbus.WriteSingleRegisterRequest,
		*modbus.WriteMultipleCoilsRequest, *modbus.WriteMultipleRegistersRequest:
		return true
	default:
		return false
	}
}

// exceptionForDecodeError maps a PDU decode failure that IS a
// spec-defined illegality (as opposed to a truncation/fatal framing
// error, already filtered out by the caller) to the exception code a
// client expects: IllegalFunction for an unrecognized
// function code, IllegalDataValue for an out-of-range quantity or a
// byte-count mismatch.
func exceptionForDecodeError(err error) modbus.ExceptionCode {
	switch {
	case errors.Is(err, modbus.ErrBadFunctionCode):
		return modbus.ExIllegalFunction
	case errors.Is(err, modbus.ErrInvalidRequest), errors.Is(err, modbus.ErrBadByteCount):
		return modbus.ExIllegalDataValue
	default:
		return modbus.ExServerDeviceFailure
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
