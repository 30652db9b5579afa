package ajp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadMagic is returned when a packet does not start with the expected magic bytes.
	ErrBadMagic = errors.New("ajp: bad packet magic")
	// ErrPacketTooLarge is returned when a packet exceeds the configured packet size.
	ErrPacketTooLarge = errors.New("ajp: packet too large")
	// ErrMalformed is returned when a packet payload cannot be decoded.
	ErrMalformed = errors.New("ajp: malformed packet")
	// ErrUnexpectedPacket is returned for a packet that is not valid in the current state.
	ErrUnexpectedPacket = errors.New("ajp: unexpected packet")
	// ErrSecretMismatch is returned when a request does not carry the configured secret.
	ErrSecretMismatch = errors.New("ajp: secret mismatch")
)

// packetLength inspects the header at the start of data.
//
// Returns:
//   - total: header plus payload length, or 0 if the header is incomplete
//   - err: ErrBadMagic or ErrPacketTooLarge
func packetLength(data []byte, magic0, magic1 byte, packetSize int) (int, error) {
	if len(data) < headerLength {
		// Fail fast on a bad first byte so garbage is not buffered.
		if len(data) > 0 && data[0] != magic0 {
			return 0, ErrBadMagic
		}
		return 0, nil
	}
	if data[0] != magic0 || data[1] != magic1 {
		return 0, fmt.Errorf("%w: %#02x %#02x", ErrBadMagic, data[0], data[1])
	}
	total := headerLength + int(binary.BigEndian.Uint16(data[2:4]))
	if total > packetSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrPacketTooLarge, total, packetSize)
	}
	return total, nil
}

// reader decodes the payload of one packet.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

func (r *reader) readInt() (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.pos)
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) peekInt() (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.pos)
	}
	return binary.BigEndian.Uint16(r.buf[r.pos:]), nil
}

// readString reads a length-prefixed, NUL-terminated string. ok is false for a
// null string.
func (r *reader) readString() (s string, ok bool, err error) {
	n, err := r.readInt()
	if err != nil {
		return "", false, err
	}
	if n == nullString {
		return "", false, nil
	}
	return r.stringOfLength(int(n))
}

func (r *reader) stringOfLength(n int) (string, bool, error) {
	if r.remaining() < n+1 {
		return "", false, fmt.Errorf("%w: string of %d bytes truncated at offset %d", ErrMalformed, n, r.pos)
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n + 1 // trailing NUL
	return s, true, nil
}

// writer appends packets to a byte slice.
type writer struct {
	buf   []byte
	start int
}

// begin starts a new packet whose header is filled in by end.
func (w *writer) begin(magic0, magic1 byte) {
	w.start = len(w.buf)
	w.buf = append(w.buf, magic0, magic1, 0, 0)
}

func (w *writer) end() {
	binary.BigEndian.PutUint16(w.buf[w.start+2:], uint16(len(w.buf)-w.start-headerLength))
}

func (w *writer) putByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) putBool(v bool) {
	if v {
		w.putByte(1)
	} else {
		w.putByte(0)
	}
}

func (w *writer) putInt(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) putString(s string) {
	w.putInt(uint16(len(s)))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *writer) putNull() {
	w.putInt(nullString)
}

func (w *writer) putBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

func (w *writer) reset() {
	w.buf = w.buf[:0]
	w.start = 0
}
