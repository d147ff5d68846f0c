package modbus

import "encoding/binary"

// maxPDULength is the largest a PDU may be: a 260-byte MBAP frame
// minus its 7-byte header (the unit id is part of that header).
const maxPDULength = 253

// cursor is a bounds-checked read cursor over a byte slice. It is the
// only route PDU decoders use to pull bytes off the wire buffer, so
// every decoder is total: malformed input surfaces ErrInsufficientBytes
// instead of panicking.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) readU8() (uint8, error) {
	if c.remaining() < 1 {
		return 0, ErrInsufficientBytes
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readU16BE() (uint16, error) {
	if c.remaining() < 2 {
		return 0, ErrInsufficientBytes
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, ErrInsufficientBytes
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// expectEmpty fails with ErrTrailingBytes if bytes remain unconsumed.
func (c *cursor) expectEmpty() error {
	if c.remaining() != 0 {
		return ErrTrailingBytes
	}
	return nil
}

// writer is a fixed-capacity write cursor used to assemble a PDU. It
// mirrors cursor's bounds checking on the write side: any attempt to
// grow past the maximum PDU size (maxPDULength bytes) fails with
// ErrBufferFull rather than growing unbounded.
type writer struct {
	buf [maxPDULength]byte
	n   int
}

func (w *writer) writeU8(b uint8) error {
	if w.n+1 > len(w.buf) {
		return ErrBufferFull
	}
	w.buf[w.n] = b
	w.n++
	return nil
}

func (w *writer) writeU16BE(v uint16) error {
	if w.n+2 > len(w.buf) {
		return ErrBufferFull
	}
	binary.BigEndian.PutUint16(w.buf[w.n:w.n+2], v)
	w.n += 2
	return nil
}

func (w *writer) writeBytes(b []byte) error {
	if w.n+len(b) > len(w.buf) {
		return ErrBufferFull
	}
	copy(w.buf[w.n:], b)
	w.n += len(b)
	return nil
}

func (w *writer) bytes() []byte {
	out := make([]byte, w.n)
	copy(out, w.buf[:w.n])
	return out
}
