package mpnative

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func TestChannelsOnlyDescribesNameAndChannelMap(t *testing.T) {
	q := fifo.New()
	s := New(0x01, Config{Port: "/dev/ttyUSB0", Baud: 115200}, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.StringArray_, cm.DType)
	require.Equal(t, 2, cm.ArrayVal.Count())
}

func TestNameIncludesPort(t *testing.T) {
	s := New(0x01, Config{Port: "/dev/ttyUSB0"}, fifo.New(), signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.Equal(t, "mp[/dev/ttyUSB0]", s.Name())
}
