package hxv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
)

// TestS3DecodeLineStructure is scenario S3 from §8. The spec's worked
// displacement figures ("approx -27cm" etc.) are illustrative, not an
// independent oracle; this test asserts the structural fields and exact
// per-byte formulae instead.
func TestS3DecodeLineStructure(t *testing.T) {
	wire := []byte("01,02,B34D,8EE9,2DE4,2F4C\r")
	d := NewDecoder()
	d.Feed(wire)

	line, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), line.Status)
	require.Equal(t, uint8(0x02), line.LineNumber)
	require.Equal(t, [8]byte{0xB3, 0x4D, 0x8E, 0xE9, 0x2D, 0xE4, 0x2F, 0x4C}, line.Data)

	_, err = d.Next()
	require.ErrorIs(t, err, protocol.ErrNeedMore)
}

func TestNeedMoreOnPartialLine(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("01,02,B34D"))
	_, err := d.Next()
	require.ErrorIs(t, err, protocol.ErrNeedMore)
}

// TestVerticalNorthWestSignRecovery is testable property 3: recovery of
// values across the full signed range, including the sign bit, for each
// of the three displacement axes.
func TestVerticalNorthWestSignRecovery(t *testing.T) {
	cases := []struct {
		name      string
		data      [8]byte
		wantVert  int16
		wantNorth int16
		wantWest  int16
	}{
		{
			name:      "all positive, max magnitude",
			data:      [8]byte{0, 0, 0x7F, 0xF0, 0x07, 0xFF, 0x7F, 0xF0},
			wantVert:  2047,
			wantNorth: 2047,
			wantWest:  2047,
		},
		{
			name:      "all negative, max magnitude",
			data:      [8]byte{0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0xF0, 0},
			wantVert:  -2047,
			wantNorth: -2047,
			wantWest:  -2047,
		},
		{
			name:      "all zero",
			data:      [8]byte{0, 0, 0, 0, 0, 0, 0, 0},
			wantVert:  0,
			wantNorth: 0,
			wantWest:  0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := &Line{Data: tc.data}
			require.Equal(t, tc.wantVert, l.Vertical())
			require.Equal(t, tc.wantNorth, l.North())
			require.Equal(t, tc.wantWest, l.West())
		})
	}
}

func TestCycDatRoundTrip(t *testing.T) {
	l := &Line{Data: [8]byte{0x7F, 0xFF, 0, 0, 0, 0, 0, 0}}
	require.Equal(t, uint16(SyncWord), l.CycDat())
}

func TestParseLineRejectsShortInput(t *testing.T) {
	_, err := ParseLine([]byte("01,02,B34D"))
	require.Error(t, err)
}

func TestParseLineRejectsNonHex(t *testing.T) {
	_, err := ParseLine([]byte("ZZ,02,B34D,8EE9,2DE4,2F4C"))
	require.Error(t, err)
}

func buildWindow(sysSeq uint8, sysWord uint16) []uint16 {
	w := make([]uint16, 18)
	w[0] = SyncWord
	w[1] = uint16(sysSeq)<<12 | (sysWord & 0x0FFF)
	for ix := 0; ix < 4; ix++ {
		w[2+4*ix] = 0x0500 | uint16(0x40) // bin=5 (<16), direction low byte
		w[3+4*ix] = 0x0032
		w[4+4*ix] = 0x0080
		w[5+4*ix] = 0x0020
	}
	return w
}

func TestSpectrumFromArrayDecodesEmbeddedSysWord(t *testing.T) {
	win := buildWindow(7, 0x0ABC)
	spec, err := SpectrumFromArray(win)
	require.NoError(t, err)
	require.Equal(t, uint8(7), spec.SysSeq)
	require.Equal(t, uint16(0x0ABC), spec.SysWord)
	for ix := 0; ix < 4; ix++ {
		require.Equal(t, uint8(5), spec.FrequencyBin[ix])
	}
}

func TestSpectrumFromArrayRejectsShortWindow(t *testing.T) {
	_, err := SpectrumFromArray(make([]uint16, 10))
	require.Error(t, err)
}

// TestCyclicAggregatorSyncsAndAligns feeds noise followed by a genuine
// window that starts with the sync word and confirms alignment only
// happens once the aggregator has actually observed SyncWord.
func TestCyclicAggregatorSyncsAndAligns(t *testing.T) {
	agg := &CyclicAggregator{}
	win := buildWindow(3, 0x0111)

	// Feeding noise before sync produces nothing.
	require.Nil(t, agg.Push(0x1234))
	require.Nil(t, agg.Push(0x5678))

	var got *Spectrum
	for _, w := range win {
		got = agg.Push(w)
	}
	require.NotNil(t, got)
	require.Equal(t, uint8(3), got.SysSeq)
	require.Equal(t, uint16(0x0111), got.SysWord)
}

// TestSystemAggregatorAssemblesAfter16DistinctSequences is testable
// property 3's system-record addendum.
func TestSystemAggregatorAssemblesAfter16DistinctSequences(t *testing.T) {
	agg := &SystemAggregator{}
	var sys *System
	var err error
	for seq := uint8(0); seq < 16; seq++ {
		sys, err = agg.Push(seq, uint16(seq)*11)
		require.NoError(t, err)
		if seq < 15 {
			require.Nil(t, sys)
		}
	}
	require.NotNil(t, sys)
}

func TestSystemAggregatorRejectsOutOfRangeSequence(t *testing.T) {
	agg := &SystemAggregator{}
	_, err := agg.Push(16, 0)
	require.Error(t, err)
}

func TestSystemFromArrayRejectsShortInput(t *testing.T) {
	_, err := SystemFromArray(make([]uint16, 4))
	require.Error(t, err)
}
