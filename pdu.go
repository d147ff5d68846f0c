package modbus

// PDU encode/decode: the function-code-specific wire bodies.
// Decoders are total — any malformed input yields one of the typed
// errors below, never a panic.

// EncodeRequestPDU serializes req as `function_code || body`, the PDU
// that a client writes (or a server would replay for testing).
func EncodeRequestPDU(req Request) ([]byte, error) {
	w := &writer{}
	if err := w.writeU8(uint8(req.FunctionCode())); err != nil {
		return nil, err
	}
	if err := req.encodeBody(w); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// DecodeRequestPDU parses a PDU received by a server into a typed
// Request. Quantity/range violations are reported as ErrInvalidRequest
// (there is no separate range error for decoding) and byte-count
// violations as ErrBadByteCount, so the server can map them to the
// exception codes rather than closing the connection.
func DecodeRequestPDU(pdu []byte) (Request, error) {
	c := newCursor(pdu)
	rawFC, err := c.readU8()
	if err != nil {
		return nil, err
	}
	fc := FunctionCode(rawFC)

	switch fc {
	case FCReadCoils, FCReadDiscreteInputs:
		rng, err := decodeReadBody(c, maxReadBitsQty)
		if err != nil {
			return nil, err
		}
		if fc == FCReadCoils {
			return &ReadCoilsRequest{Range: rng}, nil
		}
		return &ReadDiscreteInputsRequest{Range: rng}, nil

	case FCReadHoldingRegisters, FCReadInputRegisters:
		rng, err := decodeReadBody(c, maxReadRegsQty)
		if err != nil {
			return nil, err
		}
		if fc == FCReadHoldingRegisters {
			return &ReadHoldingRegistersRequest{Range: rng}, nil
		}
		return &ReadInputRegistersRequest{Range: rng}, nil

	case FCWriteSingleCoil:
		addr, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		raw, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		if err := c.expectEmpty(); err != nil {
			return nil, err
		}
		if raw != 0x0000 && raw != 0xff00 {
			return nil, ErrBadByteCount
		}
		return &WriteSingleCoilRequest{Bit: Bit{Index: addr, Value: raw == 0xff00}}, nil

	case FCWriteSingleRegister:
		addr, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		val, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		if err := c.expectEmpty(); err != nil {
			return nil, err
		}
		return &WriteSingleRegisterRequest{Register: Register{Index: addr, Value: val}}, nil

	case FCWriteMultipleCoils:
		start, qty, body, err := decodeWriteHeader(c, maxWriteCoilsQty)
		if err != nil {
			return nil, err
		}
		if len(body) != byteCountForBits(int(qty)) {
			return nil, ErrBadByteCount
		}
		return &WriteMultipleCoilsRequest{Start: start, Values: unpackBits(int(qty), body)}, nil

	case FCWriteMultipleRegisters:
		start, qty, body, err := decodeWriteHeader(c, maxWriteRegsQty)
		if err != nil {
			return nil, err
		}
		if len(body) != int(qty)*2 {
			return nil, ErrBadByteCount
		}
		regs := make([]uint16, qty)
		rc := newCursor(body)
		for i := range regs {
			v, err := rc.readU16BE()
			if err != nil {
				return nil, err
			}
			regs[i] = v
		}
		return &WriteMultipleRegistersRequest{Start: start, Values: regs}, nil

	default:
		return nil, ErrBadFunctionCode
	}
}

func decodeReadBody(c *cursor, max uint16) (AddressRange, error) {
	start, err := c.readU16BE()
	if err != nil {
		return AddressRange{}, err
	}
	qty, err := c.readU16BE()
	if err != nil {
		return AddressRange{}, err
	}
	if err := c.expectEmpty(); err != nil {
		return AddressRange{}, err
	}
	rng := AddressRange{Start: start, Count: qty}
	if err := rng.validate(max); err != nil {
		return AddressRange{}, err
	}
	return rng, nil
}

func decodeWriteHeader(c *cursor, max uint16) (start, qty uint16, body []byte, err error) {
	start, err = c.readU16BE()
	if err != nil {
		return
	}
	qty, err = c.readU16BE()
	if err != nil {
		return
	}
	byteCount, err := c.readU8()
	if err != nil {
		return
	}
	rng := AddressRange{Start: start, Count: qty}
	if verr := rng.validate(max); verr != nil {
		err = verr
		return
	}
	body, err = c.readBytes(int(byteCount))
	if err != nil {
		return
	}
	err = c.expectEmpty()
	return
}

// EncodeResponsePDU serializes a successful response matching req's
// function code.
func EncodeResponsePDU(req Request, resp Response) ([]byte, error) {
	w := &writer{}
	if err := w.writeU8(uint8(req.FunctionCode())); err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case *ReadCoilsResponse:
		if err := encodeBitsBody(w, r.Bits); err != nil {
			return nil, err
		}
	case *ReadDiscreteInputsResponse:
		if err := encodeBitsBody(w, r.Bits); err != nil {
			return nil, err
		}
	case *ReadHoldingRegistersResponse:
		if err := encodeRegsBody(w, r.Registers); err != nil {
			return nil, err
		}
	case *ReadInputRegistersResponse:
		if err := encodeRegsBody(w, r.Registers); err != nil {
			return nil, err
		}
	case *WriteSingleCoilResponse:
		if err := w.writeU16BE(r.Bit.Index); err != nil {
			return nil, err
		}
		if err := w.writeU16BE(coilWireValue(r.Bit.Value)); err != nil {
			return nil, err
		}
	case *WriteSingleRegisterResponse:
		if err := w.writeU16BE(r.Register.Index); err != nil {
			return nil, err
		}
		if err := w.writeU16BE(r.Register.Value); err != nil {
			return nil, err
		}
	case *WriteMultipleCoilsResponse:
		if err := w.writeU16BE(r.Range.Start); err != nil {
			return nil, err
		}
		if err := w.writeU16BE(r.Range.Count); err != nil {
			return nil, err
		}
	case *WriteMultipleRegistersResponse:
		if err := w.writeU16BE(r.Range.Start); err != nil {
			return nil, err
		}
		if err := w.writeU16BE(r.Range.Count); err != nil {
			return nil, err
		}
	default:
		return nil, ErrBadFunctionCode
	}

	return w.bytes(), nil
}

func encodeBitsBody(w *writer, bits Bits) error {
	packed := packBits(bits.All())
	if err := w.writeU8(uint8(len(packed))); err != nil {
		return err
	}
	return w.writeBytes(packed)
}

func encodeRegsBody(w *writer, regs Registers) error {
	if err := w.writeU8(uint8(regs.Len() * 2)); err != nil {
		return err
	}
	return w.writeBytes(regs.raw)
}

// EncodeExceptionPDU builds `request_fc|0x80, code`.
func EncodeExceptionPDU(fc FunctionCode, code ExceptionCode) []byte {
	return []byte{uint8(fc.Exception()), uint8(code)}
}

// DecodeResponsePDU parses a PDU received by a client in reply to req.
// A valid exception frame decodes to (nil, *ExceptionError); any other
// function-code/shape mismatch is ErrBadFunctionCode or ErrBadByteCount.
func DecodeResponsePDU(req Request, pdu []byte) (Response, error) {
	c := newCursor(pdu)
	rawFC, err := c.readU8()
	if err != nil {
		return nil, err
	}
	fc := FunctionCode(rawFC)

	if fc.IsException() {
		if fc.Plain() != req.FunctionCode() {
			return nil, ErrBadFunctionCode
		}
		code, err := c.readU8()
		if err != nil {
			return nil, err
		}
		if err := c.expectEmpty(); err != nil {
			return nil, err
		}
		return nil, &ExceptionError{Code: ExceptionCode(code), Raw: code}
	}

	if fc != req.FunctionCode() {
		return nil, ErrBadFunctionCode
	}

	switch r := req.(type) {
	case *ReadCoilsRequest:
		bits, err := decodeBitsBody(c, int(r.Range.Count))
		if err != nil {
			return nil, err
		}
		return &ReadCoilsResponse{Bits: bits}, nil

	case *ReadDiscreteInputsRequest:
		bits, err := decodeBitsBody(c, int(r.Range.Count))
		if err != nil {
			return nil, err
		}
		return &ReadDiscreteInputsResponse{Bits: bits}, nil

	case *ReadHoldingRegistersRequest:
		regs, err := decodeRegsBody(c, int(r.Range.Count))
		if err != nil {
			return nil, err
		}
		return &ReadHoldingRegistersResponse{Registers: regs}, nil

	case *ReadInputRegistersRequest:
		regs, err := decodeRegsBody(c, int(r.Range.Count))
		if err != nil {
			return nil, err
		}
		return &ReadInputRegistersResponse{Registers: regs}, nil

	case *WriteSingleCoilRequest:
		addr, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		raw, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		if err := c.expectEmpty(); err != nil {
			return nil, err
		}
		if addr != r.Bit.Index || raw != coilWireValue(r.Bit.Value) {
			return nil, ErrBadByteCount
		}
		return &WriteSingleCoilResponse{Bit: r.Bit}, nil

	case *WriteSingleRegisterRequest:
		addr, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		val, err := c.readU16BE()
		if err != nil {
			return nil, err
		}
		if err := c.expectEmpty(); err != nil {
			return nil, err
		}
		if addr != r.Register.Index || val != r.Register.Value {
			return nil, ErrBadByteCount
		}
		return &WriteSingleRegisterResponse{Register: r.Register}, nil

	case *WriteMultipleCoilsRequest:
		rng, err := decodeEchoRange(c, r.Start, uint16(len(r.Values)))
		if err != nil {
			return nil, err
		}
		return &WriteMultipleCoilsResponse{Range: rng}, nil

	case *WriteMultipleRegistersRequest:
		rng, err := decodeEchoRange(c, r.Start, uint16(len(r.Values)))
		if err != nil {
			return nil, err
		}
		return &WriteMultipleRegistersResponse{Range: rng}, nil

	default:
		return nil, ErrBadFunctionCode
	}
}

func decodeBitsBody(c *cursor, qty int) (Bits, error) {
	byteCount, err := c.readU8()
	if err != nil {
		return Bits{}, err
	}
	if int(byteCount) != byteCountForBits(qty) {
		return Bits{}, ErrBadByteCount
	}
	raw, err := c.readBytes(int(byteCount))
	if err != nil {
		return Bits{}, err
	}
	if err := c.expectEmpty(); err != nil {
		return Bits{}, err
	}
	return newBits(raw, qty), nil
}

func decodeRegsBody(c *cursor, qty int) (Registers, error) {
	byteCount, err := c.readU8()
	if err != nil {
		return Registers{}, err
	}
	if int(byteCount) != qty*2 {
		return Registers{}, ErrBadByteCount
	}
	raw, err := c.readBytes(int(byteCount))
	if err != nil {
		return Registers{}, err
	}
	if err := c.expectEmpty(); err != nil {
		return Registers{}, err
	}
	return newRegisters(raw), nil
}

func decodeEchoRange(c *cursor, wantStart, wantCount uint16) (AddressRange, error) {
	start, err := c.readU16BE()
	if err != nil {
		return AddressRange{}, err
	}
	count, err := c.readU16BE()
	if err != nil {
		return AddressRange{}, err
	}
	if err := c.expectEmpty(); err != nil {
		return AddressRange{}, err
	}
	if start != wantStart || count != wantCount {
		return AddressRange{}, ErrBadByteCount
	}
	return AddressRange{Start: start, Count: count}, nil
}
