package server

import "github.com/hexalayer/gomodbus"

// CoilsRequest is passed to Handler.HandleCoils for the read coils
// (0x01), write single coil (0x05) and write multiple coils (0x0f)
// function codes.
type CoilsRequest struct {
	WriteFuncCode modbus.FunctionCode // zero for reads
	ClientAddr    string
	UnitID        uint8
	Addr          uint16
	Quantity      uint16
	IsWrite       bool
	Args          []bool // write values, Addr..Addr+Quantity-1; nil for reads
}

// DiscreteInputsRequest is passed to Handler.HandleDiscreteInputs for
// the read discrete inputs (0x02) function code.
type DiscreteInputsRequest struct {
	ClientAddr string
	UnitID     uint8
	Addr       uint16
	Quantity   uint16
}

// HoldingRegistersRequest is passed to Handler.HandleHoldingRegisters
// for the read holding registers (0x03), write single register (0x06)
// and write multiple registers (0x10) function codes.
type HoldingRegistersRequest struct {
	WriteFuncCode modbus.FunctionCode
	ClientAddr    string
	UnitID        uint8
	Addr          uint16
	Quantity      uint16
	IsWrite       bool
	Args          []uint16
}

// InputRegistersRequest is passed to Handler.HandleInputRegisters for
// the read input registers (0x04) function code.
type InputRegistersRequest struct {
	ClientAddr string
	UnitID     uint8
	Addr       uint16
	Quantity   uint16
}

// Handler is the contract a session dispatches decoded requests to:
// one operation per read/write kind, synchronous from the session's
// point of view. A handler returns either the data for a successful
// response, or an error.
//
// A returned error that is (or wraps) a modbus.ExceptionError is sent
// back verbatim as that exception code. Any other error is logged and
// reported as ExServerDeviceFailure: handlers should use ExceptionError
// for every condition a client is meant to distinguish (illegal
// address, illegal value, ...), reserving plain errors for genuine
// internal failures.
//
// Every session of a Server dispatches to the same registered Handler
// values, so a handler can be called concurrently from several
// connections. Server makes no synchronization guarantee beyond
// per-connection sequencing.
type Handler interface {
	HandleCoils(*CoilsRequest) ([]bool, error)
	HandleDiscreteInputs(*DiscreteInputsRequest) ([]bool, error)
	HandleHoldingRegisters(*HoldingRegistersRequest) ([]uint16, error)
	HandleInputRegisters(*InputRegistersRequest) ([]uint16, error)
}

// UnimplementedHandler answers every request with IllegalFunction; it
// exists to let callers embed it and override only the operations they
// support, without writing four no-op stubs each time.
type UnimplementedHandler struct{}

func (UnimplementedHandler) HandleCoils(*CoilsRequest) ([]bool, error) {
	return nil, &modbus.ExceptionError{Code: modbus.ExIllegalFunction}
}

func (UnimplementedHandler) HandleDiscreteInputs(*DiscreteInputsRequest) ([]bool, error) {
	return nil, &modbus.ExceptionError{Code: modbus.ExIllegalFunction}
}

func (UnimplementedHandler) HandleHoldingRegisters(*HoldingRegistersRequest) ([]uint16, error) {
	return nil, &modbus.ExceptionError{Code: modbus.ExIllegalFunction}
}

func (UnimplementedHandler) HandleInputRegisters(*InputRegistersRequest) ([]uint16, error) {
	return nil, &modbus.ExceptionError{Code: modbus.ExIllegalFunction}
}
