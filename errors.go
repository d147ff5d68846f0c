package modbus

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy. Callers distinguish them
// with errors.Is; BadFrame/BadResponse carry structured variants below
// for cases that need extra context (the offending byte, the expected
// range, ...).
var (
	// ErrInvalidRequest is returned synchronously by request
	// constructors when a precondition (range, count) is violated. It
	// never reaches the wire.
	ErrInvalidRequest = errors.New("modbus: invalid request")

	// ErrQueueFull is returned when the client's submission queue has
	// no room; submission never blocks waiting for space.
	ErrQueueFull = errors.New("modbus: submission queue full")

	// ErrShutdown is returned to every pending request when a channel
	// or session is closed.
	ErrShutdown = errors.New("modbus: channel closed")

	// ErrResponseTimeout is returned when a request's deadline elapses
	// with no matching response.
	ErrResponseTimeout = errors.New("modbus: response timed out")

	// ErrBadProtocolID is returned when an MBAP header's protocol id
	// field is non-zero. Fatal for the current connection.
	ErrBadProtocolID = errors.New("modbus: bad protocol id")

	// ErrBadLength is returned when an MBAP length field falls outside
	// 2..=254. Fatal for the current connection.
	ErrBadLength = errors.New("modbus: bad frame length")

	// ErrBadFunctionCode is returned when a decoded function code is
	// unrecognized, or when a response's function code matches neither
	// the request's FC nor FC|0x80.
	ErrBadFunctionCode = errors.New("modbus: bad function code")

	// ErrBadUnitID is returned when a response's unit id does not
	// match the unit id of the request it is supposed to answer.
	ErrBadUnitID = errors.New("modbus: bad unit id")

	// ErrBadByteCount is returned when a declared byte count disagrees
	// with the remaining bytes or the requested quantity.
	ErrBadByteCount = errors.New("modbus: bad byte count")

	// ErrInsufficientBytes is returned by cursor reads and decoders
	// when the input is shorter than required.
	ErrInsufficientBytes = errors.New("modbus: insufficient bytes")

	// ErrTrailingBytes is returned when a decoded PDU leaves unconsumed
	// bytes behind.
	ErrTrailingBytes = errors.New("modbus: trailing bytes")

	// ErrBufferFull is returned by the write cursor on overflow.
	ErrBufferFull = errors.New("modbus: buffer full")

	// ErrBadCRC is returned when an RTU frame's CRC16 does not match.
	ErrBadCRC = errors.New("modbus: bad crc")

	// ErrShortFrame is returned when an RTU frame is truncated.
	ErrShortFrame = errors.New("modbus: short frame")
)

// ExceptionError is the error surfaced to a caller when the peer
// returned a valid Modbus exception response. It carries both the
// mapped ExceptionCode and the raw byte, since unknown codes must
// still be recoverable by the caller.
type ExceptionError struct {
	Code ExceptionCode
	Raw  uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception %s (0x%02x)", e.Code, e.Raw)
}

// IOError wraps a transport-level read/write failure. It is always
// transient from the client's point of view: the session will attempt
// to reconnect.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("modbus: i/o error during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err as a transport-level failure for the given
// operation name ("read", "write", "dial", ...).
func NewIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

// BadFrameError reports a framing violation together with the field
// that failed validation.
type BadFrameError struct {
	Reason error
	Detail string
}

func (e *BadFrameError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("modbus: %v", e.Reason)
	}
	return fmt.Sprintf("modbus: %v: %s", e.Reason, e.Detail)
}

func (e *BadFrameError) Unwrap() error { return e.Reason }
