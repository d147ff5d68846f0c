package modbus

import "encoding/binary"

const (
	mbapHeaderLen = 7
	// maxMBAPFrameLen is the largest a full MBAP frame (header + PDU)
	// may be: 7-byte header + up to 253 PDU bytes.
	maxMBAPFrameLen = mbapHeaderLen + maxPDULength
)

// Frame is a decoded MBAP frame: the transaction/unit identifiers
// alongside the raw PDU bytes.
type Frame struct {
	TxID   uint16
	UnitID uint8
	PDU    []byte
}

// DecodeMBAPHeader parses the fixed 7-byte MBAP header and returns the
// transaction id, unit id and the number of PDU bytes that must follow
// (length-1). It never reads beyond the 7 bytes given.
func DecodeMBAPHeader(header []byte) (txID uint16, unitID uint8, pduLen int, err error) {
	if len(header) != mbapHeaderLen {
		err = ErrInsufficientBytes
		return
	}
	txID = binary.BigEndian.Uint16(header[0:2])
	protocolID := binary.BigEndian.Uint16(header[2:4])
	length := binary.BigEndian.Uint16(header[4:6])
	unitID = header[6]

	if protocolID != 0 {
		err = &BadFrameError{Reason: ErrBadProtocolID}
		return
	}
	// length counts unit_id + PDU; 1 <= length-1 <= 253.
	if length < 2 || length > 1+maxPDULength {
		err = &BadFrameError{Reason: ErrBadLength}
		return
	}
	pduLen = int(length) - 1
	return
}

// DecodeMBAPFrame decodes a complete MBAP frame (header + PDU) out of
// buf. buf must contain exactly header+PDU bytes; callers (the session
// transport loop) are responsible for reading the header first, sizing
// the body read from the decoded length, then calling this once both
// are available.
func DecodeMBAPFrame(buf []byte) (*Frame, error) {
	if len(buf) < mbapHeaderLen {
		return nil, ErrInsufficientBytes
	}
	txID, unitID, pduLen, err := DecodeMBAPHeader(buf[:mbapHeaderLen])
	if err != nil {
		return nil, err
	}
	if len(buf) != mbapHeaderLen+pduLen {
		return nil, ErrInsufficientBytes
	}
	return &Frame{TxID: txID, UnitID: unitID, PDU: buf[mbapHeaderLen:]}, nil
}

// EncodeMBAPFrame assembles `tx_id, 0x0000, len, unit_id, pdu`.
// It refuses PDUs larger than the wire allows.
func EncodeMBAPFrame(txID uint16, unitID uint8, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 || len(pdu) > maxPDULength {
		return nil, &BadFrameError{Reason: ErrBadLength}
	}
	out := make([]byte, mbapHeaderLen+len(pdu))
	binary.BigEndian.PutUint16(out[0:2], txID)
	binary.BigEndian.PutUint16(out[2:4], 0x0000)
	binary.BigEndian.PutUint16(out[4:6], uint16(1+len(pdu)))
	out[6] = unitID
	copy(out[7:], pdu)
	return out, nil
}
