// Package ubx implements the u-blox binary (UBX) GPS protocol framing
// described in §4.4 of the logger spec: sync bytes 0xB5 0x62, a
// class/id/length header and an 8-bit Fletcher checksum variant, with
// resynchronisation on any framing or checksum mismatch.
package ubx

import "github.com/SELKIE-WP7/SELKIELogger/internal/protocol"

const (
	sync1 = 0xB5
	sync2 = 0x62
)

// Message is one fully framed and checksum-validated UBX message.
type Message struct {
	Class   uint8
	ID      uint8
	Payload []byte
}

// Decoder holds the rolling buffer state (buffer, read cursor, high-water
// mark) for one UBX byte stream, matching the per-source parser state of
// §4.4.
type Decoder struct {
	buf   []byte
	index int
	hw    int
}

// NewDecoder returns a Decoder with an empty rolling buffer.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 4096)}
}

// Feed appends newly read bytes to the rolling buffer. A zero-length feed
// is reported by the caller as protocol.ErrZeroRead, not by Feed itself.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
	d.hw = len(d.buf)
}

// compact moves the unconsumed tail [index, hw) to the front of the
// buffer, run after every Next call regardless of outcome.
func (d *Decoder) compact() {
	if d.index == 0 {
		return
	}
	remaining := d.hw - d.index
	copy(d.buf[:remaining], d.buf[d.index:d.hw])
	d.buf = d.buf[:remaining]
	d.index = 0
	d.hw = remaining
}

// fletcher computes the 8-bit Fletcher checksum variant used by UBX:
// a += byte; b += a; for every byte in data.
func fletcher(data []byte) (a, b uint8) {
	for _, c := range data {
		a += c
		b += a
	}
	return a, b
}

// Next extracts the next complete, checksum-valid message from the
// buffer, silently skipping leading garbage and any bytes that fail to
// resynchronise (S2), and returns protocol.ErrNeedMore once the buffered
// data is insufficient to make further progress.
func (d *Decoder) Next() (*Message, error) {
	for {
		for d.index < d.hw && d.buf[d.index] != sync1 {
			d.index++
		}
		if d.hw-d.index < 8 {
			d.compact()
			return nil, protocol.ErrNeedMore
		}
		if d.buf[d.index+1] != sync2 {
			d.index++
			continue
		}
		length := int(d.buf[d.index+4]) | int(d.buf[d.index+5])<<8
		if d.hw-d.index < length+8 {
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		class := d.buf[d.index+2]
		id := d.buf[d.index+3]
		payloadStart := d.index + 6
		payloadEnd := payloadStart + length
		a, b := fletcher(d.buf[d.index+2 : payloadEnd])
		csumA := d.buf[payloadEnd]
		csumB := d.buf[payloadEnd+1]
		if a != csumA || b != csumB {
			d.index++
			continue
		}

		payload := make([]byte, length)
		copy(payload, d.buf[payloadStart:payloadEnd])
		d.index += 8 + length
		d.compact()
		return &Message{Class: class, ID: id, Payload: payload}, nil
	}
}

// Encode serialises m into the wire form, including an unconditional
// checksum trailer. The original implementation's writer is known to
// omit the two checksum bytes when the payload length is zero; per the
// spec's §9 redesign note, this implementation always writes the
// trailer.
func Encode(m *Message) []byte {
	length := len(m.Payload)
	out := make([]byte, 0, 8+length)
	out = append(out, sync1, sync2, m.Class, m.ID, byte(length), byte(length>>8))
	out = append(out, m.Payload...)
	a, b := fletcher(out[2:])
	out = append(out, a, b)
	return out
}

// CheckChecksum reports whether wire is one complete frame: both sync
// bytes present, a length field matching the frame size, and a checksum
// trailer matching the recomputed one. Round-trip tests use it to confirm
// that flipping any byte of the frame invalidates it.
func CheckChecksum(wire []byte) bool {
	if len(wire) < 8 || wire[0] != sync1 || wire[1] != sync2 {
		return false
	}
	length := int(wire[4]) | int(wire[5])<<8
	if len(wire) != 8+length {
		return false
	}
	a, b := fletcher(wire[2 : 6+length])
	return a == wire[6+length] && b == wire[7+length]
}
