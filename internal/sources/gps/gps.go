// Package gps implements the UBX GPS source (§4.4): a serial port
// running u-blox binary protocol, configured at startup via CFG-* writes
// and decoded via internal/protocol/ubx, with NAV-PVT/NAV-TIMEUTC mapped
// onto their documented channels and everything else passed through raw.
package gps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol/ubx"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const (
	chanTimeUTC  = 0x02
	chanRaw      = 0x03
	chanPosition = 0x04
	chanVelocity = 0x05
	chanDatetime = 0x06
)

const (
	clsNAV = 0x01
	clsCFG = 0x06

	idNAVTIMEUTC = 0x21
	idNAVPVT     = 0x07

	idCFGPRT  = 0x00
	idCFGMSG  = 0x01
	idCFGRATE = 0x08
	idCFGGNSS = 0x3E
	idCFGRST  = 0x04
)

// Config is the gps source's per-section parameters (§6 config table).
type Config struct {
	Port         string
	InitialBaud  int
	Baud         int
	DumpAll      bool
	NavSatPeriod uint8 // cycles between NAV-SAT reports, 100-120
}

// Source is a single UBX GPS input.
type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	port *serial.Port
	dec  *ubx.Decoder
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("gps[%s]", s.Cfg.Port) }

// Startup opens the port at its pre-reconfiguration baud (if the device
// still needs switching into UBX mode), writes the CFG-* sequence from
// §4.4, then reopens at the operating baud.
func (s *Source) Startup() error {
	initBaud := s.Cfg.InitialBaud
	if initBaud == 0 {
		initBaud = s.Cfg.Baud
	}

	p, err := serial.Open(s.Cfg.Port, initBaud)
	if err != nil {
		return fmt.Errorf("gps: %w", err)
	}
	s.port = p
	s.dec = ubx.NewDecoder()

	for _, msg := range s.startupMessages() {
		if _, err := s.port.Write(ubx.Encode(msg)); err != nil {
			return fmt.Errorf("gps: config write: %w", err)
		}
		if msg.Class == clsCFG && msg.ID == idCFGGNSS {
			time.Sleep(galileoResetDelay)
		}
	}

	if initBaud != s.Cfg.Baud {
		s.port.Close()
		p2, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
		if err != nil {
			return fmt.Errorf("gps: reopen at operating baud: %w", err)
		}
		s.port = p2
	}
	return nil
}

// startupMessages builds the CFG-* sequence required by §4.4: enable UBX
// on the UART at the operating baud, NAV-PVT every cycle, NAV-SAT at the
// configured 100-120 cycle period, NAV-TIMEUTC every cycle, a 500 ms nav
// rate with one solution per rate, and Galileo enable (followed by the
// mandatory ≥3s reset delay, applied by the caller after Write returns).
func (s *Source) startupMessages() []*ubx.Message {
	satPeriod := s.Cfg.NavSatPeriod
	if satPeriod < 100 || satPeriod > 120 {
		satPeriod = 100
	}

	msgs := []*ubx.Message{
		cfgPortUART(s.Cfg.Baud),
		cfgMsgRate(clsNAV, idNAVPVT, 1),
		cfgMsgRate(clsNAV, 0x35 /* NAV-SAT */, satPeriod),
		cfgMsgRate(clsNAV, idNAVTIMEUTC, 1),
		cfgRate(500, 1),
		cfgGNSSEnableGalileo(),
	}
	return msgs
}

func cfgPortUART(baud int) *ubx.Message {
	payload := make([]byte, 20)
	payload[0] = 1 // UART1
	binary.LittleEndian.PutUint32(payload[4:], 0x000008D0)
	binary.LittleEndian.PutUint32(payload[8:], uint32(baud))
	binary.LittleEndian.PutUint16(payload[12:14], 0x0001) // inProtoMask: UBX
	binary.LittleEndian.PutUint16(payload[14:16], 0x0001) // outProtoMask: UBX
	return &ubx.Message{Class: clsCFG, ID: idCFGPRT, Payload: payload}
}

func cfgMsgRate(msgClass, msgID, rate uint8) *ubx.Message {
	return &ubx.Message{Class: clsCFG, ID: idCFGMSG, Payload: []byte{msgClass, msgID, rate}}
}

func cfgRate(measMS, navRate uint16) *ubx.Message {
	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:], measMS)
	binary.LittleEndian.PutUint16(payload[2:], navRate)
	binary.LittleEndian.PutUint16(payload[4:], 1) // time reference: UTC
	return &ubx.Message{Class: clsCFG, ID: idCFGRATE, Payload: payload}
}

func cfgGNSSEnableGalileo() *ubx.Message {
	// A single-block CFG-GNSS write enabling the Galileo constellation
	// (gnssId 2), leaving channel allocation at the receiver's defaults.
	payload := []byte{0x00, 0xFF, 0xFF, 0x01, 2, 8, 16, 0x00, 0x01, 0x00, 0x01, 0x00}
	return &ubx.Message{Class: clsCFG, ID: idCFGGNSS, Payload: payload}
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(7)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(chanTimeUTC, message.NewStringFromText("Timestamp"))
	cm.Set(chanRaw, message.NewStringFromText("Raw"))
	cm.Set(chanPosition, message.NewStringFromText("Position"))
	cm.Set(chanVelocity, message.NewStringFromText("Velocity"))
	cm.Set(chanDatetime, message.NewStringFromText("Datetime"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

// Logging reads available bytes, decodes every complete UBX message and
// pushes the mapped output, returning only once the port's VMIN=0/VTIME
// read times out with nothing buffered (protocol.ErrZeroRead) or the
// decoder genuinely needs more bytes.
func (s *Source) Logging() error {
	buf := make([]byte, 4096)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("gps: read: %w", err)
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
			return fmt.Errorf("gps: decode: %w", err)
		}
		s.emit(m)
	}
}

func (s *Source) emit(m *ubx.Message) {
	switch {
	case m.Class == clsNAV && m.ID == idNAVTIMEUTC && len(m.Payload) >= 4:
		tow := binary.LittleEndian.Uint32(m.Payload[0:4])
		s.FIFO.Push(message.NewTimestamp(s.ID, chanTimeUTC, tow))
	case m.Class == clsNAV && m.ID == idNAVPVT && len(m.Payload) >= 92:
		s.emitPVT(m.Payload)
	default:
		s.FIFO.Push(message.NewBytes(s.ID, chanRaw, m.Payload))
		return
	}
	if s.Cfg.DumpAll {
		s.FIFO.Push(message.NewBytes(s.ID, chanRaw, m.Payload))
	}
}

// emitPVT decodes the NAV-PVT payload's position, velocity and datetime
// fields per the u-blox UBX-NAV-PVT layout and the channel mapping in
// §4.4.
func (s *Source) emitPVT(p []byte) {
	year := binary.LittleEndian.Uint16(p[4:6])
	month, day, hour, minute, sec := p[6], p[7], p[8], p[9], p[10]
	nano := int32(binary.LittleEndian.Uint32(p[16:20]))

	lon := float64(int32(binary.LittleEndian.Uint32(p[24:28]))) * 1e-7
	lat := float64(int32(binary.LittleEndian.Uint32(p[28:32]))) * 1e-7
	heightMM := int32(binary.LittleEndian.Uint32(p[32:36]))
	haslMM := int32(binary.LittleEndian.Uint32(p[36:40]))
	hAccMM := binary.LittleEndian.Uint32(p[40:44])
	vAccMM := binary.LittleEndian.Uint32(p[44:48])

	velN := int32(binary.LittleEndian.Uint32(p[48:52]))
	velE := int32(binary.LittleEndian.Uint32(p[52:56]))
	velD := int32(binary.LittleEndian.Uint32(p[56:60]))
	gSpeed := int32(binary.LittleEndian.Uint32(p[60:64]))
	headMotion := int32(binary.LittleEndian.Uint32(p[64:68]))
	sAcc := binary.LittleEndian.Uint32(p[68:72])
	headAcc := binary.LittleEndian.Uint32(p[72:76])

	position := []float32{
		float32(lon), float32(lat),
		float32(heightMM) / 1000, float32(haslMM) / 1000,
		float32(hAccMM) / 1000, float32(vAccMM) / 1000,
	}
	velocity := []float32{
		float32(velN) / 1000, float32(velE) / 1000, float32(velD) / 1000,
		float32(gSpeed) / 1000, float32(headMotion) * 1e-5, float32(sAcc) / 1000,
		float32(headAcc) * 1e-5,
	}
	datetime := []float32{
		float32(year), float32(month), float32(day),
		float32(hour), float32(minute), float32(sec),
		float32(nano), 0,
	}

	s.FIFO.Push(message.NewFloatArray(s.ID, chanPosition, position))
	s.FIFO.Push(message.NewFloatArray(s.ID, chanVelocity, velocity))
	s.FIFO.Push(message.NewFloatArray(s.ID, chanDatetime, datetime))
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// galileoResetDelay is the mandatory ≥3s settle time after the Galileo
// CFG-GNSS write before the receiver is considered configured.
var galileoResetDelay = 3 * time.Second
