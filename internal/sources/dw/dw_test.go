package dw

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func TestChannelsDescribesDisplacementAndSystem(t *testing.T) {
	q := fifo.New()
	s := New(0x01, Config{Port: "/dev/ttyUSB0", Baud: 38400}, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	north, _ := cm.ArrayVal.Get(chanNorth)
	require.Equal(t, "North", north.String())
	sys, _ := cm.ArrayVal.Get(chanSystem)
	require.Equal(t, "System", sys.String())
	spec, _ := cm.ArrayVal.Get(chanSpectrumF0)
	require.Equal(t, "Spectrum", spec.String())
}

func TestNameIncludesPort(t *testing.T) {
	s := New(0x01, Config{Port: "/dev/ttyUSB0"}, fifo.New(), signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.Equal(t, "dw[/dev/ttyUSB0]", s.Name())
}
