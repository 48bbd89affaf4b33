package nmea

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func TestChannelsDescribesRawAndEpoch(t *testing.T) {
	q := fifo.New()
	s := New(0x01, Config{Port: "/dev/ttyUSB0", Baud: 4800}, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	raw, _ := cm.ArrayVal.Get(chanRaw)
	require.Equal(t, "Raw", raw.String())
	epoch, _ := cm.ArrayVal.Get(chanEpoch)
	require.Equal(t, "Epoch", epoch.String())
}

func TestNameIncludesPort(t *testing.T) {
	s := New(0x01, Config{Port: "/dev/ttyUSB0"}, fifo.New(), signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.Equal(t, "nmea[/dev/ttyUSB0]", s.Name())
}
