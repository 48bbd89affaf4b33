package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SELKIE-WP7/SELKIELogger/internal/config"
	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
	"github.com/SELKIE-WP7/SELKIELogger/internal/source"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/dw"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/gps"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/i2c"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/lpms"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/mpnative"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/mqtt"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/n2k"
	stdnetsource "github.com/SELKIE-WP7/SELKIELogger/internal/sources/net"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/nmea"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/rawserial"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/timer"
)

// buildSource translates one parsed [section] into the concrete source
// implementation named by its type= key (§6's family list). Unrecognised
// or malformed descriptors are a configuration error, not a runtime one:
// they fail before any source thread is started.
func buildSource(sc config.SourceConfig, defaultFrequency float64, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) (source.Source, error) {
	switch sc.Type {
	case "timer":
		return timer.New(sc.SourceNum, sc.Float("frequency", defaultFrequency), f, flags, log), nil

	case "gps":
		return gps.New(sc.SourceNum, gps.Config{
			Port:         sc.String("port", ""),
			InitialBaud:  sc.Int("initialbaud", 0),
			Baud:         sc.Int("baud", 9600),
			DumpAll:      sc.Bool("dumpall", false),
			NavSatPeriod: uint8(sc.Int("navsatperiod", 100)),
		}, f, flags, log), nil

	case "nmea":
		return nmea.New(sc.SourceNum, nmea.Config{
			Port:    sc.String("port", ""),
			Baud:    sc.Int("baud", 4800),
			DumpAll: sc.Bool("dumpall", false),
		}, f, flags, log), nil

	case "dw":
		return dw.New(sc.SourceNum, dw.Config{
			Port:    sc.String("port", ""),
			Baud:    sc.Int("baud", 38400),
			Timeout: sc.Int("timeout", 30),
			DumpAll: sc.Bool("dumpall", false),
		}, f, flags, log), nil

	case "n2k":
		return n2k.New(sc.SourceNum, n2k.Config{
			Port:    sc.String("port", ""),
			Baud:    sc.Int("baud", 115200),
			DumpAll: sc.Bool("dumpall", false),
		}, f, flags, log), nil

	case "lpms":
		return lpms.New(sc.SourceNum, lpms.Config{
			Port:      sc.String("port", ""),
			Baud:      sc.Int("baud", 115200),
			Frequency: sc.Float("frequency", 50),
		}, f, flags, log), nil

	case "i2c":
		ina219s, err := parseI2CDescriptors(sc.List("ina219"), "ina219")
		if err != nil {
			return nil, err
		}
		ads1015s, err := parseI2CDescriptors(sc.List("ads1015"), "ads1015")
		if err != nil {
			return nil, err
		}
		derived, err := parseDerived(sc.List("derived"))
		if err != nil {
			return nil, err
		}
		return i2c.New(sc.SourceNum, i2c.Config{
			Bus:       sc.String("bus", "/dev/i2c-1"),
			Frequency: sc.Float("frequency", 1),
			Ina219s:   ina219sToFamily(ina219s),
			Ads1015s:  ads1015sToFamily(ads1015s),
			Derived:   derived,
		}, f, flags, log), nil

	case "mp":
		return mpnative.New(sc.SourceNum, mpnative.Config{
			Port: sc.String("port", ""),
			Baud: sc.Int("baud", 115200),
		}, f, flags, log), nil

	case "net":
		timeout := sc.Duration("timeout", 10*time.Second)
		return stdnetsource.New(sc.SourceNum, stdnetsource.Config{
			Host:     sc.String("host", ""),
			Port:     sc.Int("port", 0),
			MinBytes: sc.Int("minbytes", 1),
			MaxBytes: sc.Int("maxbytes", 4096),
			Timeout:  timeout,
		}, f, flags, log), nil

	case "serial":
		return rawserial.New(sc.SourceNum, rawserial.Config{
			Port:     sc.String("port", ""),
			Baud:     sc.Int("baud", 115200),
			MinBytes: sc.Int("minbytes", 1),
			MaxBytes: sc.Int("maxbytes", 4096),
		}, f, flags, log), nil

	case "mqtt":
		topics, err := parseTopics(sc.List("topic"))
		if err != nil {
			return nil, err
		}
		return mqtt.New(sc.SourceNum, mqtt.Config{
			Broker:            sc.String("broker", ""),
			ClientID:          sc.String("clientid", sc.Name),
			Username:          sc.String("username", ""),
			Password:          sc.String("password", ""),
			Topics:            topics,
			KeepaliveInterval: sc.Duration("keepalive_interval", 60*time.Second),
			VictronKeepalives: sc.List("victron_keepalives"),
		}, f, flags, log), nil

	default:
		return nil, fmt.Errorf("unrecognised source type %q", sc.Type)
	}
}

// i2cDescriptor is one parsed "addr:msgid[:scale:offset:min:max]" entry;
// the scale/offset/min/max tail is accepted for forward compatibility
// with the original AutomationHat calibration fields but unused here,
// since internal/sources/i2c reports raw register values and leaves
// calibration to derived channels.
type i2cDescriptor struct {
	Address uint8
	Channel uint8
}

func parseI2CDescriptors(raw []string, family string) ([]i2cDescriptor, error) {
	out := make([]i2cDescriptor, 0, len(raw))
	for _, v := range raw {
		parts := strings.Split(v, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("%s descriptor %q: need addr:msgid", family, v)
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%s descriptor %q: address: %w", family, v, err)
		}
		msgid, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%s descriptor %q: msgid: %w", family, v, err)
		}
		out = append(out, i2cDescriptor{Address: uint8(addr), Channel: uint8(msgid)})
	}
	return out, nil
}

func ina219sToFamily(d []i2cDescriptor) []i2c.Ina219 {
	out := make([]i2c.Ina219, 0, len(d))
	for _, e := range d {
		out = append(out, i2c.Ina219{Name: fmt.Sprintf("ina219@0x%02x", e.Address), Address: e.Address, Channel: e.Channel})
	}
	return out
}

func ads1015sToFamily(ads []i2cDescriptor) []i2c.Ads1015 {
	out := make([]i2c.Ads1015, 0, len(ads))
	for _, e := range ads {
		out = append(out, i2c.Ads1015{Name: fmt.Sprintf("ads1015@0x%02x", e.Address), Address: e.Address, Channel: e.Channel})
	}
	return out
}

// parseDerived accepts "name:channel:expression" triples, the expression
// evaluated by internal/sources/i2c against the cycle's raw readings.
func parseDerived(raw []string) ([]i2c.Derived, error) {
	out := make([]i2c.Derived, 0, len(raw))
	for _, v := range raw {
		parts := strings.SplitN(v, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("derived descriptor %q: need name:channel:expression", v)
		}
		channel, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("derived descriptor %q: channel: %w", v, err)
		}
		out = append(out, i2c.Derived{Name: parts[0], Channel: uint8(channel), Expression: parts[2]})
	}
	return out, nil
}

// parseTopics accepts "topic[:text]" entries: the first field is the
// MQTT topic filter subscribed to (and the label recorded in the
// ChannelMap), an optional trailing field is a free-text note that is
// accepted but not otherwise used. Channels are auto-assigned
// sequentially from 0x10 to 0x7C, clear of the reserved low channels
// (0x00-0x03) and of the reserved log channels 0x7D-0x7F.
func parseTopics(raw []string) ([]mqtt.Topic, error) {
	out := make([]mqtt.Topic, 0, len(raw))
	for i, v := range raw {
		topic := strings.SplitN(v, ":", 2)[0]
		if i > 0x6C {
			return nil, fmt.Errorf("too many mqtt topics (max 109)")
		}
		out = append(out, mqtt.Topic{Name: topic, Channel: uint8(0x10 + i)})
	}
	return out, nil
}
