// Package mp implements the MessagePack-wrapped message envelope
// described in §4.9: a 4-element MessagePack array whose first element,
// the fixed integer 0x55, combines with MessagePack's own 0x94
// fixarray-of-4 header to give every message a 2-byte signature
// (0x94 0x55) usable to locate message boundaries in a live byte stream.
// There is no checksum; framing relies entirely on MessagePack's
// self-describing length encoding.
package mp

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
)

const (
	syncByte1 = 0x94 // MessagePack fixarray-of-4 header
	syncByte2 = 0x55 // fixint 0x55, the envelope's own marker value
)

// Kind mirrors the payload discriminants observed on the wire.
type Kind int

const (
	KindFloat Kind = iota
	KindTimestamp
	KindString
	KindStringArray
	KindFloatArray
	KindBytes
)

// Message is one decoded envelope.
type Message struct {
	Source  uint8
	Channel uint8
	Kind    Kind

	Float       float64
	Timestamp   uint64
	Str         string
	StringArray []string
	FloatArray  []float32
	Bytes       []byte
}

// Decoder scans a byte stream for the 0x94 0x55 signature and decodes a
// 4-element MessagePack array at each candidate.
type Decoder struct {
	buf   []byte
	index int
	hw    int
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

// Next extracts the next complete, well-formed envelope, skipping
// leading garbage and any candidate signature that does not decode to a
// valid 4-element envelope.
func (d *Decoder) Next() (*Message, error) {
	for {
		start := -1
		for i := d.index; i+1 < d.hw; i++ {
			if d.buf[i] == syncByte1 && d.buf[i+1] == syncByte2 {
				start = i
				break
			}
		}
		if start < 0 {
			if d.hw-d.index > 1 {
				d.index = d.hw - 1
			}
			d.compact()
			return nil, protocol.ErrNeedMore
		}

		msg, consumed, err := decodeAt(d.buf[start:d.hw])
		switch {
		case errors.Is(err, protocol.ErrNeedMore):
			d.index = start
			d.compact()
			return nil, protocol.ErrNeedMore
		case err != nil:
			d.index = start + 1
			continue
		default:
			d.index = start + consumed
			d.compact()
			return msg, nil
		}
	}
}

// decodeAt attempts to decode one envelope with its signature at buf[0],
// returning the number of bytes consumed from buf on success.
func decodeAt(buf []byte) (*Message, int, error) {
	r := bytes.NewReader(buf)
	dec := msgpack.NewDecoder(r)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		if len(buf) < 64 {
			return nil, 0, protocol.ErrNeedMore
		}
		return nil, 0, err
	}
	if n != 4 {
		return nil, 0, errors.New("mp: envelope array length is not 4")
	}

	marker, err := dec.DecodeUint8()
	if err != nil || marker != syncByte2 {
		return nil, 0, errors.New("mp: bad marker element")
	}

	source, err := dec.DecodeUint8()
	if err != nil || source >= 128 {
		return nil, 0, errors.New("mp: invalid source id")
	}

	channel, err := dec.DecodeUint8()
	if err != nil || channel >= 128 {
		return nil, 0, errors.New("mp: invalid channel id")
	}

	m := &Message{Source: source, Channel: channel}
	if err := decodePayload(dec, m); err != nil {
		if errors.Is(err, errNeedMoreData) {
			return nil, 0, protocol.ErrNeedMore
		}
		return nil, 0, err
	}

	consumed := len(buf) - r.Len()
	return m, consumed, nil
}

var errNeedMoreData = errors.New("mp: incomplete payload element")

func decodePayload(dec *msgpack.Decoder, m *Message) error {
	code, err := dec.PeekCode()
	if err != nil {
		return errNeedMoreData
	}

	isArray := msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32

	switch {
	case msgpcode.IsStr(code):
		s, err := dec.DecodeString()
		if err != nil {
			return errNeedMoreData
		}
		m.Kind = KindString
		m.Str = s
	case msgpcode.IsBin(code):
		b, err := dec.DecodeBytes()
		if err != nil {
			return errNeedMoreData
		}
		m.Kind = KindBytes
		m.Bytes = b
	case code == msgpcode.Float || code == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return errNeedMoreData
		}
		m.Kind = KindFloat
		m.Float = f
	case isArray:
		return decodeArrayPayload(dec, m)
	default:
		// Unsigned integer family: treated as a millisecond timestamp.
		v, err := dec.DecodeUint64()
		if err != nil {
			return errNeedMoreData
		}
		m.Kind = KindTimestamp
		m.Timestamp = v
	}
	return nil
}

func decodeArrayPayload(dec *msgpack.Decoder, m *Message) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return errNeedMoreData
	}
	if n == 0 {
		m.Kind = KindFloatArray
		return nil
	}

	code, err := dec.PeekCode()
	if err != nil {
		return errNeedMoreData
	}

	if msgpcode.IsStr(code) {
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			s, err := dec.DecodeString()
			if err != nil {
				return errNeedMoreData
			}
			out = append(out, s)
		}
		m.Kind = KindStringArray
		m.StringArray = out
		return nil
	}

	out := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		f, err := dec.DecodeFloat32()
		if err != nil {
			return errNeedMoreData
		}
		out = append(out, f)
	}
	m.Kind = KindFloatArray
	m.FloatArray = out
	return nil
}

// Encode serialises m into its wire form: the 4-element envelope array
// with the fixed 0x55 marker element.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeArrayLen(4); err != nil {
		return nil, err
	}
	// EncodeUint writes values below 128 as a single positive fixint byte,
	// which keeps the 0x94 0x55 signature contiguous.
	if err := enc.EncodeUint(syncByte2); err != nil {
		return nil, err
	}
	if err := enc.EncodeUint8(m.Source); err != nil {
		return nil, err
	}
	if err := enc.EncodeUint8(m.Channel); err != nil {
		return nil, err
	}

	switch m.Kind {
	case KindFloat:
		if err := enc.EncodeFloat64(m.Float); err != nil {
			return nil, err
		}
	case KindTimestamp:
		if err := enc.EncodeUint64(m.Timestamp); err != nil {
			return nil, err
		}
	case KindString:
		if err := enc.EncodeString(m.Str); err != nil {
			return nil, err
		}
	case KindStringArray:
		if err := enc.EncodeArrayLen(len(m.StringArray)); err != nil {
			return nil, err
		}
		for _, s := range m.StringArray {
			if err := enc.EncodeString(s); err != nil {
				return nil, err
			}
		}
	case KindFloatArray:
		if err := enc.EncodeArrayLen(len(m.FloatArray)); err != nil {
			return nil, err
		}
		for _, f := range m.FloatArray {
			if err := enc.EncodeFloat32(f); err != nil {
				return nil, err
			}
		}
	case KindBytes:
		if err := enc.EncodeBytes(m.Bytes); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("mp: unknown message kind")
	}

	wire := buf.Bytes()
	if wire[0] != syncByte1 {
		return nil, errors.New("mp: encoder did not produce a 4-element fixarray header")
	}
	return wire, nil
}
