package message

import "fmt"

// DType is the tagged-union discriminant carried by every Message.
type DType uint8

const (
	Undefined DType = iota
	ErrorD          // decoder status only; MUST NOT be enqueued to the writer
	Float
	Timestamp
	Bytes
	String_
	StringArray_
	FloatArray
)

func (d DType) String() string {
	switch d {
	case Undefined:
		return "undefined"
	case ErrorD:
		return "error"
	case Float:
		return "float"
	case Timestamp:
		return "timestamp"
	case Bytes:
		return "bytes"
	case String_:
		return "string"
	case StringArray_:
		return "string_array"
	case FloatArray:
		return "float_array"
	default:
		return "unknown"
	}
}

// Conventional source id ranges (§3). Values outside [0,127] are invalid;
// values outside these conventional sub-ranges are permitted but should be
// flagged by the caller (see IsConventionalSource).
const (
	SourceInternal = 0x00
	SourceTool     = 0x01
	SourceTimer    = 0x02
	SourceGPSBase  = 0x10
	SourceADCBase  = 0x20
	SourceNMEABase = 0x30
	SourceI2CBase  = 0x40
	SourceN2KBase  = 0x50
	SourceExtBase  = 0x60
	SourceMax      = 0x7F
)

// IsConventionalSource reports whether source falls within one of the
// documented conventional bands. Callers that construct messages for
// sources outside this range must still accept them, but should log a
// warning, per spec.
func IsConventionalSource(source uint8) bool {
	return source < SourceExtBase+0x10
}

// Message is the normalised per-sample payload that every source decoder
// produces and that the FIFO/writer move around as an opaque unit.
type Message struct {
	Source uint8
	Type   uint8
	Length int
	DType  DType

	FloatVal     float32
	TimestampVal uint32
	BytesVal     []byte
	StringVal    String
	ArrayVal     *StringArray
	FloatArrVal  []float32

	// StatusCode carries a decoder status (§4.4/§4.8 style 0xFF/0xFD/0xEE/0xAA
	// codes) when DType == ErrorD. Such messages are never enqueued.
	StatusCode uint8
}

// NewFloat builds a single-precision float message.
func NewFloat(source, typ uint8, val float32) *Message {
	return &Message{Source: source, Type: typ, DType: Float, Length: 1, FloatVal: val}
}

// NewTimestamp builds an unsigned 32-bit timestamp message.
func NewTimestamp(source, typ uint8, ts uint32) *Message {
	return &Message{Source: source, Type: typ, DType: Timestamp, Length: 1, TimestampVal: ts}
}

// NewBytes copies data into a new bytes message.
func NewBytes(source, typ uint8, data []byte) *Message {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Message{Source: source, Type: typ, DType: Bytes, Length: len(buf), BytesVal: buf}
}

// NewStringMessage copies s into a new string message.
func NewStringMessage(source, typ uint8, s String) *Message {
	dup := s.Duplicate()
	return &Message{Source: source, Type: typ, DType: String_, Length: dup.Length, StringVal: dup}
}

// NewStringArrayMessage copies arr into a new string-array message.
func NewStringArrayMessage(source, typ uint8, arr *StringArray) *Message {
	dup := Copy(arr)
	return &Message{Source: source, Type: typ, DType: StringArray_, Length: dup.Count(), ArrayVal: dup}
}

// NewFloatArray copies vals into a new float-array message.
func NewFloatArray(source, typ uint8, vals []float32) *Message {
	buf := make([]float32, len(vals))
	copy(buf, vals)
	return &Message{Source: source, Type: typ, DType: FloatArray, Length: len(buf), FloatArrVal: buf}
}

// NewError builds an in-band decoder status message. It must never be
// enqueued to the writer (see FIFO push / writer checks).
func NewError(source, typ uint8, code uint8) *Message {
	return &Message{Source: source, Type: typ, DType: ErrorD, StatusCode: code}
}

// NewName builds the mandatory self-description Name message every source
// emits once after startup.
func NewName(source uint8, name string) *Message {
	return NewStringMessage(source, ChanName, NewStringFromText(name))
}

// NewChannelMap builds the mandatory ChannelMap message.
func NewChannelMap(source uint8, channels *StringArray) *Message {
	return NewStringArrayMessage(source, ChanChannelMap, channels)
}

// Release drops any buffers the message owns. Go's GC reclaims the memory
// regardless, but Release keeps the lifecycle explicit (and
// double-release safe) for decoders that abandon a partially built message
// on a checksum/resync failure, matching the teacher's explicit-ownership
// style.
func (m *Message) Release() {
	if m == nil {
		return
	}
	m.BytesVal = nil
	m.StringVal = String{}
	m.ArrayVal = nil
	m.FloatArrVal = nil
}

// ToString renders a single-line debug representation. It is explicitly
// not a wire format and must never be parsed back.
func (m *Message) ToString() string {
	if m == nil {
		return "<nil message>"
	}
	switch m.DType {
	case Undefined:
		return fmt.Sprintf("[%d:%d] undefined", m.Source, m.Type)
	case ErrorD:
		return fmt.Sprintf("[%d:%d] error status=%#x", m.Source, m.Type, m.StatusCode)
	case Float:
		return fmt.Sprintf("[%d:%d] float=%v", m.Source, m.Type, m.FloatVal)
	case Timestamp:
		return fmt.Sprintf("[%d:%d] timestamp=%v", m.Source, m.Type, m.TimestampVal)
	case Bytes:
		return fmt.Sprintf("[%d:%d] bytes(%d)=% x", m.Source, m.Type, len(m.BytesVal), m.BytesVal)
	case String_:
		return fmt.Sprintf("[%d:%d] string=%q", m.Source, m.Type, m.StringVal.String())
	case StringArray_:
		return fmt.Sprintf("[%d:%d] string_array(%d)", m.Source, m.Type, m.ArrayVal.Count())
	case FloatArray:
		return fmt.Sprintf("[%d:%d] float_array=%v", m.Source, m.Type, m.FloatArrVal)
	default:
		return fmt.Sprintf("[%d:%d] dtype=%d (unrecognised)", m.Source, m.Type, m.DType)
	}
}
