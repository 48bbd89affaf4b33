// Package n2k implements the Actisense NMEA-2000 source (§4.7): a
// serial gateway link decoded via internal/protocol/n2k, with a subset
// of well-known PGNs mapped onto dedicated channels and every message
// additionally re-serialized raw onto channel 0x03.
package n2k

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
	proton2k "github.com/SELKIE-WP7/SELKIELogger/internal/protocol/n2k"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const (
	chanRaw      = 0x03
	chanPosition = 0x04
	chanCOGSOG   = 0x05
	chanAttitude = 0x06
	chanDepth    = 0x07
	chanWind     = 0x08
	chanEnv      = 0x09
	chanDateTime = 0x0A
	chanHeading  = 0x0B
	chanROT      = 0x0C
)

// PGNs documented as first-class in §4.7.
const (
	pgnISOAddressClaim = 60928
	pgnHeading         = 127250
	pgnRateOfTurn      = 127251
	pgnAttitude        = 127257
	pgnWaterDepth      = 128267
	pgnPosition        = 129025
	pgnCOGSOG          = 129026
	pgnGNSSPosition    = 129029
	pgnDateTime        = 129033
	pgnWind            = 130306
	pgnEnvironmental   = 130311
)

const attitudeScale = 0.0057295779513082332 // rad->deg, per §4.7

// Config is the n2k source's per-section parameters.
type Config struct {
	Port    string
	Baud    int
	DumpAll bool
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	port *serial.Port
	dec  *proton2k.Decoder
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("n2k[%s]", s.Cfg.Port) }

func (s *Source) Startup() error {
	p, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
	if err != nil {
		return fmt.Errorf("n2k: %w", err)
	}
	s.port = p
	s.dec = proton2k.NewDecoder()
	s.dec.DebugLog = func(msg string) { s.Log.Debug(msg) }
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(0x0D)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(chanRaw, message.NewStringFromText("Raw"))
	cm.Set(chanPosition, message.NewStringFromText("Position"))
	cm.Set(chanCOGSOG, message.NewStringFromText("COGSOG"))
	cm.Set(chanAttitude, message.NewStringFromText("Attitude"))
	cm.Set(chanDepth, message.NewStringFromText("Depth"))
	cm.Set(chanWind, message.NewStringFromText("Wind"))
	cm.Set(chanEnv, message.NewStringFromText("Environmental"))
	cm.Set(chanDateTime, message.NewStringFromText("DateTime"))
	cm.Set(chanHeading, message.NewStringFromText("Heading"))
	cm.Set(chanROT, message.NewStringFromText("RateOfTurn"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

func (s *Source) Logging() error {
	buf := make([]byte, 4096)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("n2k: read: %w", err)
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
			return fmt.Errorf("n2k: decode: %w", err)
		}
		s.emit(m)
	}
}

func (s *Source) emit(m *proton2k.Message) {
	switch m.PGN {
	case pgnAttitude:
		s.emitAttitude(m)
	case pgnWaterDepth:
		s.emitDepth(m)
	case pgnPosition, pgnGNSSPosition:
		s.emitPosition(m)
	case pgnCOGSOG:
		s.emitCOGSOG(m)
	case pgnDateTime:
		s.emitDateTime(m)
	case pgnHeading:
		s.emitHeading(m)
	case pgnRateOfTurn:
		s.emitROT(m)
	case pgnWind:
		s.emitWind(m)
	case pgnEnvironmental:
		s.emitEnvironmental(m)
	case pgnISOAddressClaim:
		// Acknowledged but carries no dedicated channel; falls through to raw.
	}
	// §4.7: every message is re-serialized and emitted on the raw
	// channel regardless of whether a dedicated PGN channel also fired.
	s.FIFO.Push(message.NewBytes(s.ID, chanRaw, proton2k.Encode(m)))
}

func int16OrNaN(v int16) float32 {
	if v == math.MaxInt16 {
		return float32(math.NaN())
	}
	return float32(v)
}

func int32OrNaN(v int32) float32 {
	if v == math.MaxInt32 {
		return float32(math.NaN())
	}
	return float32(v)
}

func (s *Source) emitAttitude(m *proton2k.Message) {
	if len(m.Data) < 7 {
		return
	}
	yaw := int16(binary.LittleEndian.Uint16(m.Data[1:3]))
	pitch := int16(binary.LittleEndian.Uint16(m.Data[3:5]))
	roll := int16(binary.LittleEndian.Uint16(m.Data[5:7]))
	s.FIFO.Push(message.NewFloatArray(s.ID, chanAttitude, []float32{
		int16OrNaN(yaw) * attitudeScale,
		int16OrNaN(pitch) * attitudeScale,
		int16OrNaN(roll) * attitudeScale,
	}))
}

func (s *Source) emitDepth(m *proton2k.Message) {
	if len(m.Data) < 5 {
		return
	}
	depth := binary.LittleEndian.Uint32(m.Data[1:5])
	v := float32(depth) / 100
	if depth == math.MaxUint32 {
		v = float32(math.NaN())
	}
	s.FIFO.Push(message.NewFloat(s.ID, chanDepth, v))
}

func (s *Source) emitPosition(m *proton2k.Message) {
	if len(m.Data) < 8 {
		return
	}
	lat := int32(binary.LittleEndian.Uint32(m.Data[0:4]))
	lon := int32(binary.LittleEndian.Uint32(m.Data[4:8]))
	s.FIFO.Push(message.NewFloatArray(s.ID, chanPosition, []float32{
		int32OrNaN(lat) * 1e-7,
		int32OrNaN(lon) * 1e-7,
	}))
}

func (s *Source) emitCOGSOG(m *proton2k.Message) {
	if len(m.Data) < 6 {
		return
	}
	cog := int16(binary.LittleEndian.Uint16(m.Data[2:4]))
	sog := int16(binary.LittleEndian.Uint16(m.Data[4:6]))
	s.FIFO.Push(message.NewFloatArray(s.ID, chanCOGSOG, []float32{
		int16OrNaN(cog) * attitudeScale,
		int16OrNaN(sog) / 100,
	}))
}

func (s *Source) emitDateTime(m *proton2k.Message) {
	if len(m.Data) < 7 {
		return
	}
	daysSinceEpoch := binary.LittleEndian.Uint16(m.Data[1:3])
	secondsSinceMidnight := binary.LittleEndian.Uint32(m.Data[3:7])
	s.FIFO.Push(message.NewFloatArray(s.ID, chanDateTime, []float32{
		float32(daysSinceEpoch),
		float32(secondsSinceMidnight) / 10000,
	}))
}

func (s *Source) emitHeading(m *proton2k.Message) {
	if len(m.Data) < 3 {
		return
	}
	heading := int16(binary.LittleEndian.Uint16(m.Data[1:3]))
	s.FIFO.Push(message.NewFloat(s.ID, chanHeading, int16OrNaN(heading)*attitudeScale))
}

func (s *Source) emitROT(m *proton2k.Message) {
	if len(m.Data) < 5 {
		return
	}
	rot := int32(binary.LittleEndian.Uint32(m.Data[1:5]))
	s.FIFO.Push(message.NewFloat(s.ID, chanROT, int32OrNaN(rot)*attitudeScale))
}

func (s *Source) emitWind(m *proton2k.Message) {
	if len(m.Data) < 5 {
		return
	}
	speed := binary.LittleEndian.Uint16(m.Data[1:3])
	angle := int16(binary.LittleEndian.Uint16(m.Data[3:5]))
	s.FIFO.Push(message.NewFloatArray(s.ID, chanWind, []float32{
		float32(speed) / 100,
		int16OrNaN(angle) * attitudeScale,
	}))
}

func (s *Source) emitEnvironmental(m *proton2k.Message) {
	if len(m.Data) < 5 {
		return
	}
	waterTempK := binary.LittleEndian.Uint16(m.Data[1:3])
	airTempK := binary.LittleEndian.Uint16(m.Data[3:5])
	s.FIFO.Push(message.NewFloatArray(s.ID, chanEnv, []float32{
		float32(waterTempK)/100 - 273.15,
		float32(airTempK)/100 - 273.15,
	}))
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
