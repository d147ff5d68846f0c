package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16InitValue(t *testing.T) {
	c := newCRC16()
	assert.Equal(t, uint16(0xffff), c.value)
	b := c.bytes()
	assert.Equal(t, [2]byte{0xff, 0xff}, b)
}

func TestCRC16KnownVector(t *testing.T) {
	c := newCRC16()
	c.add([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	assert.Equal(t, uint16(0xbb2a), c.value)

	b := c.bytes()
	assert.Equal(t, uint8(0x2a), b[0])
	assert.Equal(t, uint8(0xbb), b[1])
}

func TestRTUFrameRoundTrip(t *testing.T) {
	pdu := []byte{0x03, 0x00, 0x6b, 0x00, 0x03}
	adu, err := EncodeRTUFrame(0x11, pdu)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	frame, err := DecodeRTUFrame(adu)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert.Equal(t, uint8(0x11), frame.UnitID)
	assert.Equal(t, pdu, frame.PDU)
}

func TestRTUFrameBadCRC(t *testing.T) {
	pdu := []byte{0x03, 0x00, 0x6b, 0x00, 0x03}
	adu, err := EncodeRTUFrame(0x11, pdu)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	adu[len(adu)-1] ^= 0xff

	_, err = DecodeRTUFrame(adu)
	assert.ErrorIs(t, err, ErrBadCRC)
}

func TestRTUFrameShort(t *testing.T) {
	_, err := DecodeRTUFrame([]byte{0x11, 0x03})
	assert.ErrorIs(t, err, ErrShortFrame)
}
