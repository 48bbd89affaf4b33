package lpms

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := &Message{ID: 1, Command: 0x08}
	m.Data = []byte{1, 2, 3, 4}
	m.Length = uint16(len(m.Data))
	wire := Encode(m)

	d := NewDecoder()
	d.Feed(wire)
	got, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
	require.Equal(t, m.Command, got.Command)
	require.Equal(t, m.Data, got.Data)
	require.Equal(t, Checksum(m), got.Checksum)

	_, err = d.Next()
	require.ErrorIs(t, err, protocol.ErrNeedMore)
}

func TestNeedMoreOnPartialFrame(t *testing.T) {
	m := &Message{ID: 1, Command: CmdGetIMUData, Data: []byte{1, 2, 3, 4}}
	m.Length = uint16(len(m.Data))
	wire := Encode(m)

	d := NewDecoder()
	d.Feed(wire[:len(wire)-3])
	_, err := d.Next()
	require.ErrorIs(t, err, protocol.ErrNeedMore)
}

func TestBadTerminatorResyncs(t *testing.T) {
	m := &Message{ID: 1, Command: CmdGetIMUData, Data: []byte{9, 9}}
	m.Length = uint16(len(m.Data))
	good := Encode(m)
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF // corrupt the final terminator byte

	stream := append(bad, good...)
	d := NewDecoder()
	d.Feed(stream)
	got, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, m.Data, got.Data)
}

func putFloat32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

func TestDecodeIMUDataTimestampOnly(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 0xAABBCCDD)
	m := &Message{Command: CmdGetIMUData, Data: data, Length: 4}

	out, err := DecodeIMUData(m, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xAABBCCDD), out.Timestamp)
}

// TestDecodeIMUDataCumulativeOffsets exercises the present-bit-gated,
// cumulative-offset layout: only a handful of fields are present, with
// non-contiguous bit numbers, and each must land at the correct
// offset once every present field before it in wire order is accounted for.
func TestDecodeIMUDataCumulativeOffsets(t *testing.T) {
	present := uint32(0)
	present |= 1 << PresentGyroCal
	present |= 1 << PresentQuaternion
	present |= 1 << PresentTemperature

	// Wire order: timestamp(4), gyro_cal(12), quaternion(16), temperature(4)
	data := make([]byte, 4+12+16+4)
	binary.LittleEndian.PutUint32(data[0:4], 42)
	putFloat32(data[4:8], 1.5)
	putFloat32(data[8:12], -2.5)
	putFloat32(data[12:16], 3.5)
	putFloat32(data[16:20], 0.1)
	putFloat32(data[20:24], 0.2)
	putFloat32(data[24:28], 0.3)
	putFloat32(data[28:32], 0.4)
	putFloat32(data[32:36], 99.9)

	m := &Message{Command: CmdGetIMUData, Data: data, Length: uint16(len(data))}
	out, err := DecodeIMUData(m, present)
	require.NoError(t, err)
	require.Equal(t, uint32(42), out.Timestamp)
	require.InDelta(t, 1.5, out.GyroCal[0], 1e-6)
	require.InDelta(t, -2.5, out.GyroCal[1], 1e-6)
	require.InDelta(t, 3.5, out.GyroCal[2], 1e-6)
	require.InDelta(t, 0.1, out.Quaternion[0], 1e-6)
	require.InDelta(t, 0.4, out.Quaternion[3], 1e-6)
	require.InDelta(t, 99.9, out.Temperature, 1e-4)

	require.Equal(t, [3]float32{}, out.AccelRaw)
}

func TestDecodeIMUDataRejectsWrongCommand(t *testing.T) {
	m := &Message{Command: CmdSetOutputs, Data: make([]byte, 4), Length: 4}
	_, err := DecodeIMUData(m, 0)
	require.Error(t, err)
}

func TestDecodeIMUDataNeedsMoreWhenTruncated(t *testing.T) {
	present := uint32(1) << PresentAccelRaw
	data := make([]byte, 4+6) // accel_raw needs 12 bytes, only 6 available
	m := &Message{Command: CmdGetIMUData, Data: data, Length: uint16(len(data))}
	_, err := DecodeIMUData(m, present)
	require.Error(t, err)
}
