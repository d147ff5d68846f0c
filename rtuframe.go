package modbus

// RTUFrame is a decoded serial ADU: unit id, PDU, and (implicitly) a
// verified CRC16. RTU framing is client-only: serial slaves aren't
// addressed by listening, so no server-side RTU decoder is provided.
type RTUFrame struct {
	UnitID uint8
	PDU    []byte
}

// minRTUFrameLen is unit_id + function_code + CRC16.
const minRTUFrameLen = 1 + 1 + 2

// maxRTUFrameLen bounds a full ADU: unit_id + PDU + CRC16.
const maxRTUFrameLen = 1 + maxPDULength + 2

// EncodeRTUFrame assembles `unit_id || pdu || crc_lo || crc_hi`.
func EncodeRTUFrame(unitID uint8, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 || len(pdu) > maxPDULength {
		return nil, &BadFrameError{Reason: ErrBadLength}
	}
	adu := make([]byte, 0, 1+len(pdu)+2)
	adu = append(adu, unitID)
	adu = append(adu, pdu...)

	c := newCRC16()
	c.add(adu)
	crcBytes := c.bytes()
	adu = append(adu, crcBytes[0], crcBytes[1])

	return adu, nil
}

// DecodeRTUFrame validates the CRC16 trailer of a complete ADU and
// splits it into unit id and PDU.
func DecodeRTUFrame(adu []byte) (*RTUFrame, error) {
	if len(adu) < minRTUFrameLen {
		return nil, ErrShortFrame
	}
	if len(adu) > maxRTUFrameLen {
		return nil, &BadFrameError{Reason: ErrBadLength}
	}

	body := adu[:len(adu)-2]
	wantLo, wantHi := adu[len(adu)-2], adu[len(adu)-1]

	c := newCRC16()
	c.add(body)
	got := c.bytes()
	if got[0] != wantLo || got[1] != wantHi {
		return nil, ErrBadCRC
	}

	return &RTUFrame{UnitID: body[0], PDU: body[1:]}, nil
}

// rtuResponsePDULength returns the total PDU length (function code
// byte included) for a given NON-exception response function code,
// given the byte that immediately follows the function code (a
// byte_count field for reads, the high byte of the echoed address for
// writes). Callers must check FunctionCode.IsException() themselves
// first: an exception PDU is always exactly 2 bytes (exception
// function code + exception code) regardless of the original function,
// so this function is never called for one.
func rtuResponsePDULength(fc FunctionCode, firstBodyByte uint8) (int, error) {
	switch fc.Plain() {
	case FCReadCoils, FCReadDiscreteInputs, FCReadHoldingRegisters, FCReadInputRegisters:
		// function code + byte_count field + byte_count data bytes
		return 2 + int(firstBodyByte), nil
	case FCWriteSingleCoil, FCWriteSingleRegister, FCWriteMultipleCoils, FCWriteMultipleRegisters:
		// function code + echoed 2-byte address + echoed 2-byte value/qty
		return 5, nil
	default:
		return 0, ErrBadFunctionCode
	}
}
