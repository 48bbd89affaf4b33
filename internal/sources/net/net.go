// Package net implements the generic TCP raw-byte-window source: a
// reconnecting TCP client that frames the incoming byte stream by a
// configured min/max window rather than any specific protocol, emitting
// whatever arrives as raw bytes and treating prolonged silence as a
// link timeout per §5 ("no bytes read for N seconds" reconnect).
package net

import (
	"fmt"
	stdnet "net"
	"time"

	"github.com/jpillora/backoff"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const chanRaw = 0x03

// Config is the net source's per-section parameters.
type Config struct {
	Host     string
	Port     int
	MinBytes int
	MaxBytes int
	Timeout  time.Duration
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	conn stdnet.Conn
	boff *backoff.Backoff
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log,
		boff: &backoff.Backoff{Min: 200 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}}
}

func (s *Source) Name() string { return fmt.Sprintf("net[%s:%d]", s.Cfg.Host, s.Cfg.Port) }

func (s *Source) Startup() error {
	return s.connect()
}

func (s *Source) connect() error {
	addr := fmt.Sprintf("%s:%d", s.Cfg.Host, s.Cfg.Port)
	conn, err := stdnet.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("net: dial %s: %w", addr, err)
	}
	s.conn = conn
	s.boff.Reset()
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

// Logging reads one window's worth of bytes (bounded by MinBytes and
// MaxBytes) with a read deadline; a timeout or closed connection is
// treated as a link failure and triggers a backoff-paced reconnect
// rather than ending the source's thread.
func (s *Source) Logging() error {
	timeout := s.Cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))

	maxBytes := s.Cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 4096
	}
	buf := make([]byte, maxBytes)
	n, err := s.conn.Read(buf)
	if err != nil {
		s.Log.WarnOnce("net-link-down", fmt.Sprintf("%s: link error: %v, reconnecting", s.Name(), err))
		s.conn.Close()
		time.Sleep(s.boff.Duration())
		return s.connect()
	}
	if n < s.Cfg.MinBytes {
		return nil
	}
	s.FIFO.Push(message.NewBytes(s.ID, chanRaw, buf[:n]))
	return nil
}

func (s *Source) Shutdown() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
