// Package mpnative implements the native MessagePack source (§4.9): a
// serial or network link that already speaks the logger's own
// MessagePack envelope, so decoded messages are passed straight through
// to the FIFO instead of being reinterpreted.
package mpnative

import (
	"errors"
	"fmt"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol/mp"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

// Config is the mp source's per-section parameters.
type Config struct {
	Port string
	Baud int
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	port *serial.Port
	dec  *mp.Decoder
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("mp[%s]", s.Cfg.Port) }

func (s *Source) Startup() error {
	p, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
	if err != nil {
		return fmt.Errorf("mpnative: %w", err)
	}
	s.port = p
	s.dec = mp.NewDecoder()
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(2)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

func (s *Source) Logging() error {
	buf := make([]byte, 4096)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("mpnative: read: %w", err)
	}
	if n > 0 {
		s.dec.Feed(buf[:n])
	}

	for {
		m, err := s.dec.Next()
		if errors.Is(err, protocol.ErrNeedMore) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mpnative: decode: %w", err)
		}
		s.FIFO.Push(toMessage(m))
	}
}

// toMessage re-wraps a decoded wire envelope as the internal tagged
// message type, preserving the source/channel ids the upstream device
// chose rather than substituting this source's own id.
func toMessage(m *mp.Message) *message.Message {
	switch m.Kind {
	case mp.KindFloat:
		return message.NewFloat(m.Source, m.Channel, float32(m.Float))
	case mp.KindTimestamp:
		return message.NewTimestamp(m.Source, m.Channel, uint32(m.Timestamp))
	case mp.KindString:
		return message.NewStringMessage(m.Source, m.Channel, message.NewStringFromText(m.Str))
	case mp.KindStringArray:
		sa := message.NewStringArray(len(m.StringArray))
		for i, v := range m.StringArray {
			sa.Set(i, message.NewStringFromText(v))
		}
		return message.NewStringArrayMessage(m.Source, m.Channel, sa)
	case mp.KindFloatArray:
		return message.NewFloatArray(m.Source, m.Channel, m.FloatArray)
	case mp.KindBytes:
		return message.NewBytes(m.Source, m.Channel, m.Bytes)
	default:
		return message.NewBytes(m.Source, m.Channel, nil)
	}
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
