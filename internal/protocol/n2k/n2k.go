// Package n2k implements the Actisense NGT-1 byte-stuffed framing used to
// carry NMEA-2000 messages over a serial link, per §4.7: ESC SOT N2K
// start-of-frame, a fixed header, ESC-doubled data bytes and an ESC EOT
// trailer.
package n2k

import "github.com/SELKIE-WP7/SELKIELogger/internal/protocol"

const (
	escByte = 0x10 // ACT_ESC
	sot     = 0x02 // ACT_SOT
	eot     = 0x03 // ACT_EOT
	n2kTag  = 0x93 // ACT_N2K
)

// Message is one decoded Actisense-framed N2K message.
type Message struct {
	Length    uint8
	Priority  uint8
	PGN       uint32
	Dst       uint8
	Src       uint8
	Timestamp uint32
	Data      []byte
	Checksum  uint8
}

// Decoder holds the rolling buffer state for one N2K byte stream.
type Decoder struct {
	buf   []byte
	index int
	hw    int

	// DebugLog, if set, is called whenever a literal ESC EOT sequence is
	// found inside a message's data section, the case in §9's redesign
	// note: the in-progress message is dropped and scanning resumes
	// immediately after the offending sequence, rather than rewinding to
	// before the frame's start bytes.
	DebugLog func(string)
}

// NewDecoder returns a Decoder with an empty rolling buffer.
func NewDecoder() *Decoder { return &Decoder{buf: make([]byte, 0, 4096)} }

func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
	d.hw = len(d.buf)
}

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

func (d *Decoder) findStart() int {
	for i := d.index; i+2 < d.hw; i++ {
		if d.buf[i] == escByte && d.buf[i+1] == sot && d.buf[i+2] == n2kTag {
			return i
		}
	}
	return -1
}

// Next extracts the next complete, checksum-carrying N2K message. A
// message that turns out to be malformed (bad escape sequence, literal
// ESC EOT inside data, checksum mismatch) is dropped and scanning
// resumes; protocol.ErrNeedMore is returned once the buffered data cannot
// yet yield a decision either way.
func (d *Decoder) Next() (*Message, error) {
	for {
		start := d.findStart()
		if start < 0 {
			if d.hw-d.index > 2 {
				d.index = d.hw - 2
			}
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		if start+15 > d.hw {
			d.index = start
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		length := d.buf[start+3]
		if d.hw-start < int(length) {
			d.index = start
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		msg, consumed, status := d.decodeAt(start)
		switch status {
		case decodeNeedMore:
			d.index = start
			d.compact()
			return nil, protocol.ErrNeedMore
		case decodeDropResync:
			// §9: literal ESC EOT inside data - drop the in-progress
			// message and resume scanning right after the offending
			// bytes, not before the frame's start bytes.
			if d.DebugLog != nil {
				d.DebugLog("n2k: literal ESC EOT inside data, dropping message and resyncing")
			}
			d.index = start + consumed
			continue
		case decodeInvalid:
			d.index = start + 1
			continue
		default: // decodeOK
			d.index = start + consumed
			d.compact()
			return msg, nil
		}
	}
}

type decodeStatus int

const (
	decodeOK decodeStatus = iota
	decodeNeedMore
	decodeInvalid
	decodeDropResync
)

// decodeAt attempts to decode one message with its start-of-frame at
// buf[start], mirroring n2k_act_from_bytes's per-byte unstuffing loop.
func (d *Decoder) decodeAt(start int) (*Message, int, decodeStatus) {
	buf := d.buf
	length := buf[start+3]
	m := &Message{
		Length:   length,
		Priority: buf[start+4],
		PGN:      uint32(buf[start+5]) | uint32(buf[start+6])<<8 | uint32(buf[start+7])<<16,
		Dst:      buf[start+8],
		Src:      buf[start+9],
		Timestamp: uint32(buf[start+10]) | uint32(buf[start+11])<<8 |
			uint32(buf[start+12])<<16 | uint32(buf[start+13])<<24,
	}
	datalen := buf[start+14]

	var csum uint16
	for i := 2; i < 15; i++ {
		csum += uint16(buf[start+i])
	}

	data := make([]byte, 0, datalen)
	off := start + 15
	for i := 0; i < int(datalen); i++ {
		if off >= d.hw {
			return nil, 0, decodeNeedMore
		}
		c := buf[off]
		off++
		if c == escByte {
			if off >= d.hw {
				return nil, 0, decodeNeedMore
			}
			next := buf[off]
			off++
			switch next {
			case escByte:
				data = append(data, escByte)
				csum += uint16(escByte)
			case eot:
				// Message terminated early inside the data section.
				return nil, off - start, decodeDropResync
			default:
				return nil, off - start, decodeInvalid
			}
		} else {
			data = append(data, c)
			csum += uint16(c)
		}
	}
	m.Data = data

	if off+2 >= d.hw {
		return nil, 0, decodeNeedMore
	}
	m.Checksum = buf[off]
	off++
	ee := buf[off]
	off++
	et := buf[off]
	off++
	if ee != escByte || et != eot {
		return nil, off - start, decodeInvalid
	}

	want := uint8((256 - int(csum)) & 0xFF)
	if m.Checksum != want {
		return nil, off - start, decodeInvalid
	}
	return m, off - start, decodeOK
}

// Encode serialises m into the wire form, doubling any literal ESC bytes
// in the data section.
func Encode(m *Message) []byte {
	out := make([]byte, 0, len(m.Data)+20)
	out = append(out, escByte, sot, n2kTag, m.Length, m.Priority,
		byte(m.PGN), byte(m.PGN>>8), byte(m.PGN>>16),
		m.Dst, m.Src,
		byte(m.Timestamp), byte(m.Timestamp>>8), byte(m.Timestamp>>16), byte(m.Timestamp>>24),
		uint8(len(m.Data)))

	var csum uint16
	for i := 2; i < len(out); i++ {
		csum += uint16(out[i])
	}
	for _, b := range m.Data {
		out = append(out, b)
		csum += uint16(b)
		if b == escByte {
			out = append(out, escByte)
		}
	}
	out = append(out, uint8((256-int(csum))&0xFF), escByte, eot)
	return out
}
