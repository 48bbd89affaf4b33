// Package source defines the callback-quadruple contract every logger
// input obeys, per §4.3: startup, channel self-description, logging and
// shutdown, plus the shared signal flags each logging loop polls.
package source

import (
	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

// Params is the shared context passed to every callback in the
// quadruple: the output FIFO, the source's assigned id and display name,
// the process-wide signal flags, a logger and the source's own return
// code. The source kinds in internal/sources do not embed it: each
// carries its own ID, FIFO, Flags and Log fields next to its
// configuration and per-connection state. The main loop only ever sees
// the Source interface, never the concrete params type.
type Params struct {
	ID     uint8
	Name   string
	FIFO   *fifo.FIFO
	Flags  *signals.Flags
	Log    *logging.Logger
	Return error
}

// Source is the callback quadruple every source kind implements: the
// equivalent of the original's "trait or tagged variant" choice (§9),
// modeled here as a Go interface so the main loop can treat every kind
// uniformly.
type Source interface {
	// Startup opens handles, allocates buffers and validates
	// configuration. A non-nil error is fatal: the main loop treats
	// this source as failed and begins process shutdown.
	Startup() error

	// Channels pushes exactly one Name message and one ChannelMap
	// message. Called once after Startup, and again by the writer after
	// every file rotation so each new file is self-describing.
	Channels() error

	// Logging does one polling iteration and returns; Run calls it
	// again until the shared shutdown flag is set. It must not
	// block except on bounded I/O reads, short sleeps between polling
	// iterations, or deadline waits. A non-nil return is logged and
	// ends this source's thread; the writer continues serving the
	// others.
	Logging() error

	// Shutdown closes handles and releases buffers. Always called
	// exactly once, even if Startup or Logging failed.
	Shutdown() error

	// Name returns the source's configured display name, used for log
	// labelling before Channels() has necessarily run.
	Name() string
}

// Run drives one source through the full startup → channels → logging
// → shutdown sequence, matching the main loop's per-source thread
// lifecycle (§4.3, §4.11). It is invoked as `go Run(s, flags, log,
// done)` once per configured source plus the timer.
func Run(s Source, flags *signals.Flags, log *logging.Logger, done chan<- error) {
	defer func() {
		if err := s.Shutdown(); err != nil {
			log.Errorf("%s: shutdown: %v", s.Name(), err)
		}
	}()

	if err := s.Startup(); err != nil {
		log.Errorf("%s: startup failed: %v", s.Name(), err)
		done <- err
		return
	}

	if err := s.Channels(); err != nil {
		log.Errorf("%s: channel descriptors: %v", s.Name(), err)
		done <- err
		return
	}

	for !flags.ShutdownRequested() {
		if err := s.Logging(); err != nil {
			log.Errorf("%s: logging: %v", s.Name(), err)
			done <- err
			return
		}
	}
	done <- nil
}
