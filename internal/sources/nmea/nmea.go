// Package nmea implements the NMEA-0183 source (§4.5): a serial port
// decoded via internal/protocol/nmea, with II/ZDA mapped to an epoch
// timestamp on channel 0x04 and every other sentence passed through raw
// on channel 0x03.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol/nmea"
	"github.com/SELKIE-WP7/SELKIELogger/internal/serial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const (
	chanRaw   = 0x03
	chanEpoch = 0x04
)

// Config is the nmea source's per-section parameters.
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
	dec  *nmea.Decoder
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return fmt.Sprintf("nmea[%s]", s.Cfg.Port) }

func (s *Source) Startup() error {
	p, err := serial.Open(s.Cfg.Port, s.Cfg.Baud)
	if err != nil {
		return fmt.Errorf("nmea: %w", err)
	}
	s.port = p
	s.dec = nmea.NewDecoder()
	s.dec.DebugLog = func(msg string) { s.Log.Debug(msg) }
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	cm := message.NewStringArray(5)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(chanRaw, message.NewStringFromText("Raw"))
	cm.Set(chanEpoch, message.NewStringFromText("Epoch"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

func (s *Source) Logging() error {
	buf := make([]byte, 4096)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("nmea: read: %w", err)
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
			return fmt.Errorf("nmea: decode: %w", err)
		}
		s.emit(m)
	}
}

func (s *Source) emit(m *nmea.Message) {
	if m.Talker == "II" && m.ID == "ZDA" {
		if epoch, ok := parseZDA(m.Payload); ok {
			s.FIFO.Push(message.NewTimestamp(s.ID, chanEpoch, epoch))
			if !s.Cfg.DumpAll {
				return
			}
		}
	}
	s.FIFO.Push(message.NewBytes(s.ID, chanRaw, m.Payload))
}

// parseZDA extracts the Unix epoch seconds from a ZDA sentence's
// comma-separated fields: hhmmss.ss,day,month,year,...
func parseZDA(payload []byte) (uint32, bool) {
	fields := splitFields(payload)
	if len(fields) < 4 {
		return 0, false
	}
	hms := fields[0]
	if len(hms) < 6 {
		return 0, false
	}
	hh, err1 := strconv.Atoi(hms[0:2])
	mm, err2 := strconv.Atoi(hms[2:4])
	ss, err3 := strconv.Atoi(hms[4:6])
	day, err4 := strconv.Atoi(fields[1])
	month, err5 := strconv.Atoi(fields[2])
	year, err6 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return 0, false
	}
	t := time.Date(year, time.Month(month), day, hh, mm, ss, 0, time.UTC)
	return uint32(t.Unix()), true
}

func splitFields(payload []byte) []string {
	var fields []string
	start := 0
	for i := 0; i <= len(payload); i++ {
		if i == len(payload) || payload[i] == ',' {
			fields = append(fields, string(payload[start:i]))
			start = i + 1
		}
	}
	return fields
}

func (s *Source) Shutdown() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
