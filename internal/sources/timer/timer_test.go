package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func TestNewDefaultsFrequency(t *testing.T) {
	s := New(0x02, 0, fifo.New(), signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.Equal(t, 10.0, s.Frequency)
}

func TestChannelsDescribesTickAndEpoch(t *testing.T) {
	q := fifo.New()
	s := New(0x02, 10, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.StringArray_, cm.DType)
	tick, _ := cm.ArrayVal.Get(ChannelTick)
	require.Equal(t, "Timestamp", tick.String())
	epoch, _ := cm.ArrayVal.Get(ChannelEpoch)
	require.Equal(t, "Epoch", epoch.String())
}

// TestLoggingTicksUntilShutdown runs the deadline loop at a high enough
// frequency that several ticks fall within 25 ms, after which another
// goroutine requests shutdown.
func TestLoggingTicksUntilShutdown(t *testing.T) {
	q := fifo.New()
	flags := signals.New()
	s := New(0x02, 200, q, flags, logging.New(logging.LevelCrit, logging.LevelCrit))
	require.NoError(t, s.Startup())

	go func() {
		time.Sleep(25 * time.Millisecond)
		flags.RequestShutdown()
	}()

	require.NoError(t, s.Logging())
	require.Greater(t, q.Count(), 0)
}
