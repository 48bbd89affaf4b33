package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func newTestSource(q *fifo.FIFO) *Source {
	return New(0x0a, Config{
		Broker: "tcp://localhost:1883",
		Topics: []Topic{{Name: "N/+/battery/+/Dc/0/Voltage", Channel: 0x10}},
	}, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
}

func TestChannelsDescribesConfiguredTopics(t *testing.T) {
	q := fifo.New()
	s := newTestSource(q)
	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	topic, _ := cm.ArrayVal.Get(0x10)
	require.Equal(t, "N/+/battery/+/Dc/0/Voltage", topic.String())
}

func TestLoggingDrainsPendingMessages(t *testing.T) {
	q := fifo.New()
	s := newTestSource(q)

	s.mu.Lock()
	s.pending = append(s.pending, message.NewBytes(s.ID, 0x10, []byte("12.6")))
	s.mu.Unlock()

	require.NoError(t, s.Logging())

	msg, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.Bytes, msg.DType)
	require.Equal(t, "12.6", string(msg.BytesVal))

	s.mu.Lock()
	require.Empty(t, s.pending)
	s.mu.Unlock()
}

func TestNameIncludesBroker(t *testing.T) {
	s := newTestSource(fifo.New())
	require.Equal(t, "mqtt[tcp://localhost:1883]", s.Name())
}
