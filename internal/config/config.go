// Package config parses the logger's INI-like configuration file (§6)
// with gopkg.in/ini.v1: a top-level [logger] section for global
// parameters, and one further section per configured source, recorded
// with its type= value as a SourceConfig of raw key/value strings.
// Optional secrets
// (MQTT credentials, archiver cloud keys) may be supplied through a
// sibling .env file loaded with github.com/joho/godotenv rather than
// the checked-in config itself.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Global is the top-level [logger] section.
type Global struct {
	LogDirectory  string
	FilePrefix    string
	Frequency     float64
	Verbosity     int
	FileVerbosity int

	CatalogPath     string
	ArchiveGzip     bool
	ArchiveS3Bucket string

	DiagAddr           string
	DiagReportInterval time.Duration
}

// SourceConfig is one configured source section: its family, assigned
// id and a bag of raw key/value strings that buildSource in
// cmd/selkie-logger decodes into the family's own Config struct.
type SourceConfig struct {
	Type      string
	Name      string
	SourceNum uint8
	Raw       map[string]string
	RawLists  map[string][]string
}

// File is a fully parsed configuration file.
type File struct {
	Global  Global
	Sources []SourceConfig
}

// familyBase maps a source family to the base of its conventional
// source-id range (§3), used to resolve short-form sourcenum values.
var familyBase = map[string]uint8{
	"gps":    0x10,
	"nmea":   0x30,
	"dw":     0x60,
	"n2k":    0x50,
	"lpms":   0x20,
	"i2c":    0x40,
	"mp":     0x60,
	"net":    0x60,
	"serial": 0x60,
	"timer":  0x02,
	"mqtt":   0x60,
}

// Load reads path, plus a sibling .env file if one exists (ignored if
// absent), and returns the parsed configuration.
func Load(path string) (*File, error) {
	envPath := path + ".env"
	_ = godotenv.Load(envPath) // absent .env is not an error

	cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	f := &File{}
	logger := cfg.Section("logger")
	f.Global = Global{
		LogDirectory:    logger.Key("directory").MustString("."),
		FilePrefix:      logger.Key("prefix").MustString("selkie"),
		Frequency:       logger.Key("frequency").MustFloat64(10),
		Verbosity:       logger.Key("verbosity").MustInt(1),
		FileVerbosity:   logger.Key("fileverbosity").MustInt(0),
		CatalogPath:     logger.Key("catalog").MustString(""),
		ArchiveGzip:     logger.Key("archive_gzip").MustBool(false),
		ArchiveS3Bucket: logger.Key("archive_s3_bucket").MustString(""),

		DiagAddr:           logger.Key("diag_addr").MustString(""),
		DiagReportInterval: time.Duration(logger.Key("diag_report_interval").MustInt(0)) * time.Second,
	}

	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection || sec.Name() == "logger" {
			continue
		}
		sc, err := parseSourceSection(sec)
		if err != nil {
			return nil, fmt.Errorf("config: section %s: %w", sec.Name(), err)
		}
		f.Sources = append(f.Sources, sc)
	}
	return f, nil
}

func parseSourceSection(sec *ini.Section) (SourceConfig, error) {
	sc := SourceConfig{
		Type:     strings.ToLower(sec.Key("type").String()),
		Name:     sec.Key("name").MustString(sec.Name()),
		Raw:      make(map[string]string),
		RawLists: make(map[string][]string),
	}
	if sc.Type == "" {
		return sc, fmt.Errorf("missing type=")
	}

	base, ok := familyBase[sc.Type]
	if !ok {
		return sc, fmt.Errorf("unrecognised type %q", sc.Type)
	}

	if key := sec.Key("sourcenum"); key.String() != "" {
		n, err := key.Int()
		if err != nil {
			return sc, fmt.Errorf("sourcenum: %w", err)
		}
		if n < 10 {
			sc.SourceNum = base + uint8(n)
		} else {
			sc.SourceNum = uint8(n)
		}
	} else {
		sc.SourceNum = base
	}

	for _, key := range sec.Keys() {
		if key.Name() == "type" || key.Name() == "name" || key.Name() == "sourcenum" {
			continue
		}
		vals := key.ValueWithShadows()
		if len(vals) > 1 {
			sc.RawLists[key.Name()] = append(sc.RawLists[key.Name()], vals...)
		} else {
			sc.Raw[key.Name()] = key.String()
		}
	}
	return sc, nil
}

// String returns a raw key's value, or def if the key is unset.
func (sc SourceConfig) String(key, def string) string {
	if v, ok := sc.Raw[key]; ok {
		return v
	}
	return def
}

// Int returns a raw key's value parsed as an integer, or def on
// absence/parse failure.
func (sc SourceConfig) Int(key string, def int) int {
	v, ok := sc.Raw[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float returns a raw key's value parsed as a float, or def.
func (sc SourceConfig) Float(key string, def float64) float64 {
	v, ok := sc.Raw[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

// Bool returns a raw key's value parsed as a boolean, or def.
func (sc SourceConfig) Bool(key string, def bool) bool {
	v, ok := sc.Raw[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns a raw key's value, interpreted as seconds (fractional
// values are accepted), or def.
func (sc SourceConfig) Duration(key string, def time.Duration) time.Duration {
	v, ok := sc.Raw[key]
	if !ok {
		return def
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// List returns every value recorded for a repeatable key (e.g. `topic`,
// `ina219`, `ads1015`).
func (sc SourceConfig) List(key string) []string {
	if vals, ok := sc.RawLists[key]; ok {
		return vals
	}
	if v, ok := sc.Raw[key]; ok {
		return []string{v}
	}
	return nil
}
