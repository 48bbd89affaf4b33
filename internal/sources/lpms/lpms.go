// Package lpms implements the LPMS IMU source (§4.8): a serial device
// speaking the LPMS framed protocol, which must obtain the enabled-output
// bitmask via GET_OUTPUTS before it can interpret GET_IMUDATA packets.
package lpms

import (
	"errors"
	"fmt"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	proto "github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol/lpms"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

// Channel mapping for each optional IMUData section, per §4.8's
// "0x04..0x1C" range.
const (
	chanRaw         = 0x03
	chanAccelRaw    = 0x04
	chanAccelCal    = 0x05
	chanGyroRaw     = 0x06
	chanGyroCal     = 0x07
	chanGyroAligned = 0x08
	chanMagRaw      = 0x09
	chanMagCal      = 0x0A
	chanOmega       = 0x0B
	chanQuaternion  = 0x0C
	chanEuler       = 0x0D
	chanAccelLinear = 0x0E
	chanPressure    = 0x0F
	chanAltitude    = 0x10
	chanTemperature = 0x11
	chanTimestamp   = 0x12
)

// Config is the lpms source's per-section parameters.
type Config struct {
	Port      string
	Baud      int
	Frequency float64
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	port *serial.Port
	dec  *lpms.Decoder

	haveOutputs bool
	present     uint32
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("lpms[%s]", s.Cfg.Port) }

func (s *Source) Startup() error {
	p, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
	if err != nil {
		return fmt.Errorf("lpms: %w", err)
	}
	s.port = p
	s.dec = lpms.NewDecoder()
	return s.requestOutputs()
}

func (s *Source) requestOutputs() error {
	req := &lpms.Message{Command: lpms.CmdGetOutputs}
	_, err := s.port.Write(lpms.Encode(req))
	return err
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(0x13)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(chanRaw, message.NewStringFromText("Raw"))
	cm.Set(chanAccelRaw, message.NewStringFromText("AccelRaw"))
	cm.Set(chanAccelCal, message.NewStringFromText("AccelCal"))
	cm.Set(chanGyroRaw, message.NewStringFromText("GyroRaw"))
	cm.Set(chanGyroCal, message.NewStringFromText("GyroCal"))
	cm.Set(chanGyroAligned, message.NewStringFromText("GyroAligned"))
	cm.Set(chanMagRaw, message.NewStringFromText("MagRaw"))
	cm.Set(chanMagCal, message.NewStringFromText("MagCal"))
	cm.Set(chanOmega, message.NewStringFromText("Omega"))
	cm.Set(chanQuaternion, message.NewStringFromText("Quaternion"))
	cm.Set(chanEuler, message.NewStringFromText("Euler"))
	cm.Set(chanAccelLinear, message.NewStringFromText("AccelLinear"))
	cm.Set(chanPressure, message.NewStringFromText("Pressure"))
	cm.Set(chanAltitude, message.NewStringFromText("Altitude"))
	cm.Set(chanTemperature, message.NewStringFromText("Temperature"))
	cm.Set(chanTimestamp, message.NewStringFromText("Timestamp"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

func (s *Source) Logging() error {
	buf := make([]byte, 4096)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("lpms: read: %w", err)
	}
	if n > 0 {
		s.dec.Feed(buf[:n])
	}

	for {
		m, err := s.dec.Next()
		if errors.Is(err, proto.ErrNeedMore) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lpms: decode: %w", err)
		}
		s.emit(m)
	}
}

func (s *Source) emit(m *lpms.Message) {
	switch m.Command {
	case lpms.CmdGetOutputs, lpms.CmdSetOutputs:
		if len(m.Data) >= 4 {
			s.present = uint32(m.Data[0]) | uint32(m.Data[1])<<8 | uint32(m.Data[2])<<16 | uint32(m.Data[3])<<24
			s.haveOutputs = true
		}
	case lpms.CmdGetIMUData:
		if !s.haveOutputs {
			s.Log.WarnOnce("lpms-no-outputs", fmt.Sprintf("%s: IMU data arrived before outputs bitmask, dropping and re-requesting", s.Name()))
			_ = s.requestOutputs()
			return
		}
		data, err := lpms.DecodeIMUData(m, s.present)
		if err != nil {
			return
		}
		s.emitIMUData(data)
	}
}

func (s *Source) emitIMUData(d *lpms.IMUData) {
	s.FIFO.Push(message.NewTimestamp(s.ID, chanTimestamp, d.Timestamp))
	push3 := func(ch uint8, bit uint, v [3]float32) {
		if lpms.Has(d.Present, bit) {
			s.FIFO.Push(message.NewFloatArray(s.ID, ch, v[:]))
		}
	}
	push3(chanAccelRaw, lpms.PresentAccelRaw, d.AccelRaw)
	push3(chanAccelCal, lpms.PresentAccelCal, d.AccelCal)
	push3(chanGyroRaw, lpms.PresentGyroRaw, d.GyroRaw)
	push3(chanGyroCal, lpms.PresentGyroCal, d.GyroCal)
	push3(chanGyroAligned, lpms.PresentGyroAligned, d.GyroAligned)
	push3(chanMagRaw, lpms.PresentMagRaw, d.MagRaw)
	push3(chanMagCal, lpms.PresentMagCal, d.MagCal)
	push3(chanOmega, lpms.PresentOmega, d.Omega)
	push3(chanEuler, lpms.PresentEuler, d.EulerAngles)
	push3(chanAccelLinear, lpms.PresentAccelLinear, d.AccelLinear)

	if lpms.Has(d.Present, lpms.PresentQuaternion) {
		s.FIFO.Push(message.NewFloatArray(s.ID, chanQuaternion, d.Quaternion[:]))
	}
	if lpms.Has(d.Present, lpms.PresentPressure) {
		s.FIFO.Push(message.NewFloat(s.ID, chanPressure, d.Pressure))
	}
	if lpms.Has(d.Present, lpms.PresentAltitude) {
		s.FIFO.Push(message.NewFloat(s.ID, chanAltitude, d.Altitude))
	}
	if lpms.Has(d.Present, lpms.PresentTemperature) {
		s.FIFO.Push(message.NewFloat(s.ID, chanTemperature, d.Temperature))
	}
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
