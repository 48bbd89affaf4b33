// Package dw implements the Datawell buoy source (§4.6): a serial port
// carrying HXV ASCII telegrams, decoded via internal/protocol/hxv, with
// displacement, system and spectral records mapped onto their
// documented channels.
package dw

import (
	"errors"
	"fmt"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol/hxv"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const (
	chanRaw        = 0x03
	chanSignal     = 0x04
	chanNorth      = 0x05
	chanWest       = 0x06
	chanVertical   = 0x07
	chanSystem     = 0x08
	chanSpectrumF0 = 0x11
)

// Config is the dw source's per-section parameters.
type Config struct {
	Port    string
	Baud    int
	Timeout int // read from the config; this source neither times out nor reconnects on silence
	DumpAll bool
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	port *serial.Port
	dec  *hxv.Decoder
	cyc  hxv.CyclicAggregator
	sys  hxv.SystemAggregator
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("dw[%s]", s.Cfg.Port) }

func (s *Source) Startup() error {
	p, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
	if err != nil {
		return fmt.Errorf("dw: %w", err)
	}
	s.port = p
	s.dec = hxv.NewDecoder()
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(0x18)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(chanRaw, message.NewStringFromText("Raw"))
	cm.Set(chanSignal, message.NewStringFromText("Signal"))
	cm.Set(chanNorth, message.NewStringFromText("North"))
	cm.Set(chanWest, message.NewStringFromText("West"))
	cm.Set(chanVertical, message.NewStringFromText("Vertical"))
	cm.Set(chanSystem, message.NewStringFromText("System"))
	cm.Set(chanSpectrumF0, message.NewStringFromText("Spectrum"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

func (s *Source) Logging() error {
	buf := make([]byte, 4096)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("dw: read: %w", err)
	}
	if n > 0 {
		s.dec.Feed(buf[:n])
	}

	for {
		line, err := s.dec.Next()
		if errors.Is(err, protocol.ErrNeedMore) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dw: decode: %w", err)
		}
		s.emit(line)
	}
}

func (s *Source) emit(line *hxv.Line) {
	if s.Cfg.DumpAll {
		raw := append([]byte(nil), line.Data[:]...)
		s.FIFO.Push(message.NewBytes(s.ID, chanRaw, raw))
	}

	s.FIFO.Push(message.NewFloat(s.ID, chanSignal, float32(line.Status)))
	s.FIFO.Push(message.NewFloat(s.ID, chanNorth, float32(line.North())))
	s.FIFO.Push(message.NewFloat(s.ID, chanWest, float32(line.West())))
	s.FIFO.Push(message.NewFloat(s.ID, chanVertical, float32(line.Vertical())))

	cyc := line.CycDat()
	if spec := s.cyc.Push(cyc); spec != nil {
		s.FIFO.Push(message.NewFloatArray(s.ID, chanSpectrumF0, spectrumToFloats(spec)))
	}

	seq := uint8((cyc & 0xF000) >> 12)
	word := cyc & 0x0FFF
	if sys, err := s.sys.Push(seq, word); err == nil && sys != nil {
		s.FIFO.Push(message.NewFloatArray(s.ID, chanSystem, systemToFloats(sys)))
	}
}

func spectrumToFloats(sp *hxv.Spectrum) []float32 {
	out := make([]float32, 0, 4*6)
	for i := 0; i < 4; i++ {
		out = append(out,
			float32(sp.Frequency[i]), float32(sp.Direction[i]), float32(sp.Spread[i]),
			float32(sp.RPSD[i]), float32(sp.M2[i]), float32(sp.N2[i]),
		)
	}
	return out
}

func systemToFloats(sys *hxv.System) []float32 {
	gpsFix := float32(0)
	if sys.GPSFix {
		gpsFix = 1
	}
	return []float32{
		float32(sys.Number), gpsFix, float32(sys.Hrms), float32(sys.Fzero),
		float32(sys.RefTemp), float32(sys.WaterTemp), float32(sys.OpTime), float32(sys.BattStatus),
		float32(sys.Lat), float32(sys.Lon), float32(sys.Orient), float32(sys.Incl),
	}
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
