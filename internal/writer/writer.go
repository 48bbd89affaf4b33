// Package writer implements the main loop (§4.11): it owns the output
// file handle, drains the FIFO in push order, serialises each message
// with internal/protocol/mp, and reacts to rotate/pause/shutdown
// signals. It is also the only place that opens the dated,
// serial-numbered output files §6 describes.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SELKIE-WP7/SELKIELogger/internal/catalog"
	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/protocol/mp"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
	"github.com/SELKIE-WP7/SELKIELogger/internal/source"
)

// Writer owns the current output file and drains the FIFO.
type Writer struct {
	Directory string
	Prefix    string
	Extension string

	FIFO    *fifo.FIFO
	Flags   *signals.Flags
	Log     *logging.Logger
	Catalog *catalog.Catalog // optional; nil disables rotation bookkeeping

	Sources []source.Source

	// OnRotate, if set, is called with the path of a file just closed
	// by rotation (including the final close on shutdown), so
	// the archiver can gzip/upload it. It is never called concurrently
	// with itself.
	OnRotate func(path string)

	// JoinSources, if set, is called once after the steady-state loop
	// exits on shutdown and before the final drain, so the writer does
	// not serialize a source's last messages out of order with its own
	// shutdown cleanup (§4.11: "join all source threads... drain the
	// FIFO").
	JoinSources func()

	file   *os.File
	serial int
	date   string
}

// New returns a Writer ready to have Run called on it.
func New(dir, prefix, ext string, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger, cat *catalog.Catalog, sources []source.Source) *Writer {
	return &Writer{Directory: dir, Prefix: prefix, Extension: ext, FIFO: f, Flags: flags, Log: log, Catalog: cat, Sources: sources}
}

// openNextFile opens the next dated, serial-numbered file
// (<prefix><YYYYMMDD><XX>.<ext>, XX 00..FF) with exclusive create,
// advancing the serial number whenever the date has not changed.
func (w *Writer) openNextFile() error {
	today := time.Now().Format("20060102")
	if today != w.date {
		w.date = today
		w.serial = 0
	}

	for w.serial <= 0xFF {
		name := fmt.Sprintf("%s%s%02X.%s", w.Prefix, w.date, w.serial, w.Extension)
		path := filepath.Join(w.Directory, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if w.file != nil {
				if w.Catalog != nil {
					w.Catalog.RecordClose(w.file.Name(), time.Now())
				}
				closed := w.file.Name()
				w.file.Close()
				if w.OnRotate != nil {
					w.OnRotate(closed)
				}
			}
			w.file = f
			w.serial++
			if w.Catalog != nil {
				w.Catalog.RecordOpen(path, time.Now(), sourceNames(w.Sources))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("writer: open %s: %w", path, err)
		}
		w.serial++
	}
	return fmt.Errorf("writer: serial number space exhausted for %s", w.date)
}

func sourceNames(sources []source.Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	return names
}

// Run implements the steady-state loop of §4.11: pop and serialise
// while not shut down; rotate when asked and not paused; stop draining
// (but keep polling flags) while paused; join sources and drain on
// shutdown.
func (w *Writer) Run() error {
	if err := w.openNextFile(); err != nil {
		return err
	}

	for !w.Flags.ShutdownRequested() {
		if w.Flags.RotateRequested() && !w.Flags.Paused() {
			if err := w.rotate(); err != nil {
				w.Log.Errorf("writer: rotate: %v", err)
			}
			w.Flags.ClearRotate()
		}

		if w.Flags.Paused() {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		msg, ok := w.FIFO.Pop()
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err := w.writeOne(msg); err != nil {
			return fmt.Errorf("writer: %w", err)
		}
	}

	if w.JoinSources != nil {
		w.JoinSources()
	}
	return w.drain()
}

// rotate closes the current file, opens a fresh one, and invokes every
// source's Channels callback so the new file is self-describing.
func (w *Writer) rotate() error {
	if err := w.openNextFile(); err != nil {
		return err
	}
	for _, s := range w.Sources {
		if err := s.Channels(); err != nil {
			w.Log.Warnf("writer: rotate: %s: channels: %v", s.Name(), err)
		}
	}
	return nil
}

// drain flushes whatever remains in the FIFO after shutdown has been
// requested, then closes the file.
func (w *Writer) drain() error {
	for {
		msg, ok := w.FIFO.Pop()
		if !ok {
			break
		}
		if err := w.writeOne(msg); err != nil {
			w.Log.Errorf("writer: drain: %v", err)
			break
		}
	}
	if w.file != nil {
		if w.Catalog != nil {
			w.Catalog.RecordClose(w.file.Name(), time.Now())
		}
		closed := w.file.Name()
		err := w.file.Close()
		if w.OnRotate != nil {
			w.OnRotate(closed)
		}
		return err
	}
	return nil
}

// writeOne serialises msg via the MessagePack envelope and writes it to
// the current file; a serialize or short-write failure is fatal (§4.9).
func (w *Writer) writeOne(msg *message.Message) error {
	defer msg.Release()

	wire, err := mp.Encode(toWireMessage(msg))
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	n, err := w.file.Write(wire)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n != len(wire) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(wire))
	}
	return nil
}

// toWireMessage adapts the internal tagged message to the wire
// envelope's own tagged type.
func toWireMessage(m *message.Message) *mp.Message {
	w := &mp.Message{Source: m.Source, Channel: m.Type}
	switch m.DType {
	case message.Float:
		w.Kind = mp.KindFloat
		w.Float = float64(m.FloatVal)
	case message.Timestamp:
		w.Kind = mp.KindTimestamp
		w.Timestamp = uint64(m.TimestampVal)
	case message.Bytes:
		w.Kind = mp.KindBytes
		w.Bytes = m.BytesVal
	case message.String_:
		w.Kind = mp.KindString
		w.Str = m.StringVal.String()
	case message.StringArray_:
		w.Kind = mp.KindStringArray
		out := make([]string, m.ArrayVal.Count())
		for i := range out {
			s, _ := m.ArrayVal.Get(i)
			out[i] = s.String()
		}
		w.StringArray = out
	case message.FloatArray:
		w.Kind = mp.KindFloatArray
		w.FloatArray = m.FloatArrVal
	}
	return w
}
