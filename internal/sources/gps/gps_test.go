package gps

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func TestChannelsDescribesPositionAndVelocity(t *testing.T) {
	q := fifo.New()
	s := New(0x01, Config{Port: "/dev/ttyACM0", Baud: 9600}, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	pos, _ := cm.ArrayVal.Get(chanPosition)
	require.Equal(t, "Position", pos.String())
	vel, _ := cm.ArrayVal.Get(chanVelocity)
	require.Equal(t, "Velocity", vel.String())
	ts, _ := cm.ArrayVal.Get(chanTimeUTC)
	require.Equal(t, "Timestamp", ts.String())
}

func TestNameIncludesPort(t *testing.T) {
	s := New(0x01, Config{Port: "/dev/ttyACM0"}, fifo.New(), signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.Equal(t, "gps[/dev/ttyACM0]", s.Name())
}
