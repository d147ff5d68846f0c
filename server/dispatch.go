package server

import "github.com/hexalayer/gomodbus"

// decodeRequestForDispatch decodes a request PDU, also returning the
// raw function code when decoding fails, so the caller can still build
// an exception response addressed to the function the client actually
// asked for.
func decodeRequestForDispatch(body []byte) (modbus.Request, modbus.FunctionCode, error) {
	var fc modbus.FunctionCode
	if len(body) > 0 {
		fc = modbus.FunctionCode(body[0])
	}
	req, err := modbus.DecodeRequestPDU(body)
	if err != nil {
		return nil, fc, err
	}
	return req, req.FunctionCode(), nil
}

// invoke type-switches req onto the concrete request kind, builds the
// matching server.*Request value and calls the corresponding Handler
// method, then converts the handler's plain result back into a
// modbus.Response.
func invoke(h Handler, clientAddr string, unitID uint8, req modbus.Request) (modbus.Response, error) {
	switch r := req.(type) {
	case *modbus.ReadCoilsRequest:
		bits, err := h.HandleCoils(&CoilsRequest{
			ClientAddr: clientAddr,
			UnitID:     unitID,
			Addr:       r.Range.Start,
			Quantity:   r.Range.Count,
		})
		if err != nil {
			return nil, err
		}
		if err := checkCount(len(bits), int(r.Range.Count)); err != nil {
			return nil, err
		}
		return &modbus.ReadCoilsResponse{Bits: modbus.NewBits(bits)}, nil

	case *modbus.ReadDiscreteInputsRequest:
		bits, err := h.HandleDiscreteInputs(&DiscreteInputsRequest{
			ClientAddr: clientAddr,
			UnitID:     unitID,
			Addr:       r.Range.Start,
			Quantity:   r.Range.Count,
		})
		if err != nil {
			return nil, err
		}
		if err := checkCount(len(bits), int(r.Range.Count)); err != nil {
			return nil, err
		}
		return &modbus.ReadDiscreteInputsResponse{Bits: modbus.NewBits(bits)}, nil

	case *modbus.ReadHoldingRegistersRequest:
		regs, err := h.HandleHoldingRegisters(&HoldingRegistersRequest{
			ClientAddr: clientAddr,
			UnitID:     unitID,
			Addr:       r.Range.Start,
			Quantity:   r.Range.Count,
		})
		if err != nil {
			return nil, err
		}
		if err := checkCount(len(regs), int(r.Range.Count)); err != nil {
			return nil, err
		}
		return &modbus.ReadHoldingRegistersResponse{Registers: modbus.NewRegisters(regs)}, nil

	case *modbus.ReadInputRegistersRequest:
		regs, err := h.HandleInputRegisters(&InputRegistersRequest{
			ClientAddr: clientAddr,
			UnitID:     unitID,
			Addr:       r.Range.Start,
			Quantity:   r.Range.Count,
		})
		if err != nil {
			return nil, err
		}
		if err := checkCount(len(regs), int(r.Range.Count)); err != nil {
			return nil, err
		}
		return &modbus.ReadInputRegistersResponse{Registers: modbus.NewRegisters(regs)}, nil

	case *modbus.WriteSingleCoilRequest:
		_, err := h.HandleCoils(&CoilsRequest{
			WriteFuncCode: modbus.FCWriteSingleCoil,
			ClientAddr:    clientAddr,
			UnitID:        unitID,
			Addr:          r.Bit.Index,
			Quantity:      1,
			IsWrite:       true,
			Args:          []bool{r.Bit.Value},
		})
		if err != nil {
			return nil, err
		}
		return &modbus.WriteSingleCoilResponse{Bit: r.Bit}, nil

	case *modbus.WriteSingleRegisterRequest:
		_, err := h.HandleHoldingRegisters(&HoldingRegistersRequest{
			WriteFuncCode: modbus.FCWriteSingleRegister,
			ClientAddr:    clientAddr,
			UnitID:        unitID,
			Addr:          r.Register.Index,
			Quantity:      1,
			IsWrite:       true,
			Args:          []uint16{r.Register.Value},
		})
		if err != nil {
			return nil, err
		}
		return &modbus.WriteSingleRegisterResponse{Register: r.Register}, nil

	case *modbus.WriteMultipleCoilsRequest:
		_, err := h.HandleCoils(&CoilsRequest{
			WriteFuncCode: modbus.FCWriteMultipleCoils,
			ClientAddr:    clientAddr,
			UnitID:        unitID,
			Addr:          r.Start,
			Quantity:      uint16(len(r.Values)),
			IsWrite:       true,
			Args:          r.Values,
		})
		if err != nil {
			return nil, err
		}
		return &modbus.WriteMultipleCoilsResponse{
			Range: modbus.AddressRange{Start: r.Start, Count: uint16(len(r.Values))},
		}, nil

	case *modbus.WriteMultipleRegistersRequest:
		_, err := h.HandleHoldingRegisters(&HoldingRegistersRequest{
			WriteFuncCode: modbus.FCWriteMultipleRegisters,
			ClientAddr:    clientAddr,
			UnitID:        unitID,
			Addr:          r.Start,
			Quantity:      uint16(len(r.Values)),
			IsWrite:       true,
			Args:          r.Values,
		})
		if err != nil {
			return nil, err
		}
		return &modbus.WriteMultipleRegistersResponse{
			Range: modbus.AddressRange{Start: r.Start, Count: uint16(len(r.Values))},
		}, nil

	default:
		return nil, &modbus.ExceptionError{Code: modbus.ExIllegalFunction}
	}
}

// checkCount guards against a handler returning the wrong number of
// values for a read.
func checkCount(got, want int) error {
	if got != want {
		return &modbus.ExceptionError{Code: modbus.ExServerDeviceFailure}
	}
	return nil
}
