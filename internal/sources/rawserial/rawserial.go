// Package rawserial implements the generic serial source: a plain byte
// window over a serial device with no protocol decoding, framed purely
// by a configured min/max byte count (§6 `minbytes`/`maxbytes`).
package rawserial

import (
	"fmt"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const chanRaw = 0x03

// Config is the rawserial source's per-section parameters.
type Config struct {
	Port     string
	Baud     int
	MinBytes int
	MaxBytes int
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	port *serial.Port
	pend []byte
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("serial[%s]", s.Cfg.Port) }

func (s *Source) Startup() error {
	p, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
	if err != nil {
		return fmt.Errorf("rawserial: %w", err)
	}
	s.port = p
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(4)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(chanRaw, message.NewStringFromText("Raw"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

// Logging accumulates bytes until at least MinBytes are pending, then
// emits up to MaxBytes as one message, carrying any remainder forward.
func (s *Source) Logging() error {
	maxBytes := s.Cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 4096
	}
	buf := make([]byte, maxBytes)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("rawserial: read: %w", err)
	}
	if n > 0 {
		s.pend = append(s.pend, buf[:n]...)
	}

	minBytes := s.Cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	for len(s.pend) >= minBytes {
		chunk := s.pend
		if len(chunk) > maxBytes {
			chunk = chunk[:maxBytes]
		}
		s.FIFO.Push(message.NewBytes(s.ID, chanRaw, chunk))
		s.pend = s.pend[len(chunk):]
	}
	return nil
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
