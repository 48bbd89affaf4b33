// Package nmea implements the NMEA-0183 ASCII sentence framing described
// in §4.5: a '$' (standard) or '!' (encapsulated) start byte, a two- or
// four-character talker, a three-character message id, comma-separated
// fields, and an optional '*HH' checksum.
package nmea

import (
	"bytes"

	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
)

const maxMessageLen = 82

// Message is one framed NMEA-0183 sentence.
type Message struct {
	Talker             string
	ID                 string
	Payload            []byte // raw bytes between the message id and the checksum/terminator
	ChecksumPresent    bool
	ChecksumValid      bool
	UsedLFLFTerminator bool
}

// Decoder holds the rolling buffer state for one NMEA-0183 byte stream.
type Decoder struct {
	buf   []byte
	index int
	hw    int

	// DebugLog, if set, is called once per LFLF-terminator acceptance,
	// matching §9's "keep the compatibility hack but log at debug".
	DebugLog func(string)
}

// NewDecoder returns a Decoder with an empty rolling buffer.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 4096)}
}

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

func xorChecksum(data []byte) uint8 {
	var c uint8
	for _, b := range data {
		c ^= b
	}
	return c
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

func parseHex2(b []byte) (uint8, bool) {
	if len(b) != 2 {
		return 0, false
	}
	hi, ok1 := hexNibble(b[0])
	lo, ok2 := hexNibble(b[1])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

// Next extracts the next complete NMEA-0183 sentence, resynchronising
// past any content that does not parse as a valid, checksum-matching
// sentence.
func (d *Decoder) Next() (*Message, error) {
	for {
		for d.index < d.hw && d.buf[d.index] != '$' && d.buf[d.index] != '!' {
			d.index++
		}
		if d.hw-d.index < 8 {
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		end, usedLFLF := d.findTerminator()
		if end < 0 {
			if d.hw-d.index > maxMessageLen+2 {
				// No terminator within a sentence-and-a-bit worth of
				// bytes: this cannot be a valid sentence, resync.
				d.index++
				continue
			}
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		line := d.buf[d.index:end]
		if len(line) > maxMessageLen {
			d.index++
			continue
		}

		msg, ok := parseLine(line)
		if !ok {
			d.index++
			continue
		}
		msg.UsedLFLFTerminator = usedLFLF
		if usedLFLF && d.DebugLog != nil {
			d.DebugLog("nmea: accepted LFLF terminator in place of CRLF")
		}

		d.index = end + 2
		d.compact()
		return msg, nil
	}
}

// findTerminator scans for CRLF, or (compatibility hack, §9) LFLF,
// starting at d.index. Returns the offset of the first terminator byte,
// or -1 if none was found yet in the buffered data.
func (d *Decoder) findTerminator() (int, bool) {
	for i := d.index; i+1 < d.hw; i++ {
		if d.buf[i] == '\r' && d.buf[i+1] == '\n' {
			return i, false
		}
		if d.buf[i] == '\n' && d.buf[i+1] == '\n' {
			return i, true
		}
	}
	return -1, false
}

func parseLine(line []byte) (*Message, bool) {
	if len(line) < 1+2+3 {
		return nil, false
	}
	talkerLen := 2
	if line[1] == 'P' {
		talkerLen = 4
	}
	if len(line) < 1+talkerLen+3 {
		return nil, false
	}

	talker := string(line[1 : 1+talkerLen])
	id := string(line[1+talkerLen : 1+talkerLen+3])
	rest := line[1+talkerLen+3:]

	m := &Message{Talker: talker, ID: id}

	if star := bytes.IndexByte(rest, '*'); star >= 0 {
		m.Payload = append([]byte(nil), rest[:star]...)
		if star+3 <= len(rest) {
			if csum, ok := parseHex2(rest[star+1 : star+3]); ok {
				m.ChecksumPresent = true
				region := line[1 : 1+talkerLen+3+star]
				m.ChecksumValid = xorChecksum(region) == csum
				if !m.ChecksumValid {
					return nil, false
				}
				return m, true
			}
		}
		return nil, false
	}

	m.Payload = append([]byte(nil), rest...)
	return m, true
}
