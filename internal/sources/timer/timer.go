// Package timer implements the timer source (§4.10): a monotonic
// deadline loop that ticks at a configurable frequency, emitting a
// Timestamp on channel 0x02 every tick and an additional Timestamp on
// channel 0x04 whenever the wall-clock second changes.
//
// §5 restricts this thread's only suspension point to a deadline
// nanosleep, which is why this is a plain computed-deadline/time.Sleep
// loop rather than the gocron.Scheduler the teacher uses for its
// calendar-scheduled background jobs (see internal/taskManager in the
// teacher repo) — gocron's cron-style cadence has no way to express
// "warn if this exact deadline has already passed", so it is reserved
// here for the diagnostics package's periodic reporting instead.
package timer

import (
	"fmt"
	"time"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

const (
	// ChannelTick is the reserved monotonic-millisecond channel.
	ChannelTick = 0x02
	// ChannelEpoch carries the wall-clock second whenever it advances.
	ChannelEpoch = 0x04
)

// Source is the timer source. Frequency defaults to 10 Hz if zero.
type Source struct {
	ID        uint8
	Frequency float64
	FIFO      *fifo.FIFO
	Flags     *signals.Flags
	Log       *logging.Logger

	start      time.Time
	lastSecond int64
}

// New returns a timer Source ticking at hz (0 selects the 10 Hz default).
func New(id uint8, hz float64, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	if hz <= 0 {
		hz = 10
	}
	return &Source{ID: id, Frequency: hz, FIFO: f, Flags: flags, Log: log}
}

func (s *Source) Name() string { return "timer" }

func (s *Source) Startup() error {
	s.start = time.Now()
	s.lastSecond = s.start.Unix()
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, "Timer"))
	cm := message.NewStringArray(5)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	cm.Set(2, message.NewStringFromText("Timestamp"))
	cm.Set(4, message.NewStringFromText("Epoch"))
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

// Logging runs the deadline loop until shutdown is requested, one tick
// per call's worth of work per the source-thread contract's polling
// convention — here one call drives the whole loop, returning only on
// shutdown, since the timer has no other event to yield control on.
func (s *Source) Logging() error {
	period := time.Duration(float64(time.Second) / s.Frequency)
	deadline := time.Now().Add(period)

	for !s.Flags.ShutdownRequested() {
		now := time.Now()
		if now.After(deadline) {
			s.Log.WarnOnce("timer-deadline-missed", fmt.Sprintf("timer: deadline missed by %s", now.Sub(deadline)))
		} else {
			time.Sleep(deadline.Sub(now))
			now = time.Now()
		}

		elapsedMS := uint32(now.Sub(s.start).Milliseconds())
		s.FIFO.Push(message.NewTimestamp(s.ID, ChannelTick, elapsedMS))

		sec := now.Unix()
		if sec != s.lastSecond {
			s.lastSecond = sec
			s.FIFO.Push(message.NewTimestamp(s.ID, ChannelEpoch, uint32(sec)))
		}

		deadline = deadline.Add(period)
	}
	return nil
}

func (s *Source) Shutdown() error { return nil }
